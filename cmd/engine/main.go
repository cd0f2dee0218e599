package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"connect-you/internal/config"
	"connect-you/internal/database"
	"connect-you/internal/engine"
	"connect-you/internal/handlers"
	"connect-you/internal/middleware"
	"connect-you/internal/models"
	"connect-you/internal/services"
	"connect-you/internal/utils"
	"connect-you/internal/websocket"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/rs/zerolog"
)

const shutdownTimeout = 15 * time.Second

// store is everything the server needs from a backend.
type store interface {
	services.MessageStore
	services.ConversationIndex
	services.UserDirectory
	Ping(ctx context.Context) error
	Close(ctx context.Context) error
}

// app holds the wired components of one server instance.
type app struct {
	handler http.Handler
	store   store
	engine  *engine.Engine
	gateway *websocket.Gateway
	logger  zerolog.Logger
}

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		fallback := utils.NewLogger("info", false)
		fallback.Fatal().Err(err).Msg("invalid configuration")
	}
	logger := utils.NewLogger(cfg.LogLevel, cfg.Debug)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to start")
	}

	httpServer := &http.Server{
		Addr:              cfg.Server.Addr(),
		Handler:           a.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", httpServer.Addr).Str("db", cfg.Database.Type).Msg("starting server")
		serverErr <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-serverErr:
		if !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("server failed")
		}
	case <-ctx.Done():
		logger.Info().Msg("shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("http shutdown")
	}
	a.close(shutdownCtx)
}

func newApp(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*app, error) {
	st, err := openStore(ctx, cfg.Database, logger)
	if err != nil {
		return nil, err
	}

	metrics := utils.NewMetricsCollector()
	eng := engine.NewEngine(actor.NewActorSystem(), logger, metrics)
	chat := services.NewChatService(st, st, st, eng, metrics, logger)
	gateway := websocket.NewGateway(chat, eng, metrics, logger, cfg.AllowedOrigins)

	server := handlers.NewServer(chat, gateway, middleware.NewAuth(cfg.JWTSecret), st, metrics, logger)
	server.RequestTimeout = cfg.Server.RequestTimeout

	return &app{
		handler: server.NewRouter(middleware.DefaultCORSConfig(cfg.AllowedOrigins)),
		store:   st,
		engine:  eng,
		gateway: gateway,
		logger:  logger,
	}, nil
}

func openStore(ctx context.Context, cfg *config.DatabaseConfig, logger zerolog.Logger) (store, error) {
	if cfg.Type == "memory" {
		mem := database.NewMemoryStore()
		for _, id := range cfg.SeedUsers {
			mem.AddUser(&models.User{ID: id, Name: id})
		}
		logger.Warn().Int("seed_users", len(cfg.SeedUsers)).Msg("using in-memory store; data is not persisted")
		return mem, nil
	}

	db, err := database.NewMongoDB(ctx, cfg.URI, cfg.Name, logger)
	if err != nil {
		return nil, err
	}
	if err := db.EnsureIndexes(ctx); err != nil {
		_ = db.Close(context.Background())
		return nil, err
	}
	return db, nil
}

func (a *app) close(ctx context.Context) {
	a.gateway.Close()
	a.engine.Stop()
	if err := a.store.Close(ctx); err != nil {
		a.logger.Error().Err(err).Msg("closing store")
	}
}
