package handlers

import (
	"context"
	"net/http"
	"time"

	"connect-you/internal/middleware"
	"connect-you/internal/models"
	"connect-you/internal/services"
	"connect-you/internal/utils"

	"github.com/rs/zerolog"
)

// Realtime is what the REST surface needs from the gateway.
type Realtime interface {
	http.Handler
	PublishMessage(msg *models.Message)
}

// Pinger reports datastore health.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Server holds all server dependencies shared by the HTTP handlers
type Server struct {
	Chat           *services.ChatService
	Realtime       Realtime
	Auth           *middleware.Auth
	Store          Pinger
	Metrics        *utils.MetricsCollector
	Logger         zerolog.Logger
	RequestTimeout time.Duration
}

// NewServer creates a new Server instance with the given components
func NewServer(
	chat *services.ChatService,
	realtime Realtime,
	auth *middleware.Auth,
	store Pinger,
	metrics *utils.MetricsCollector,
	logger zerolog.Logger,
) *Server {
	if metrics == nil {
		metrics = utils.NewMetricsCollector()
	}
	return &Server{
		Chat:           chat,
		Realtime:       realtime,
		Auth:           auth,
		Store:          store,
		Metrics:        metrics,
		Logger:         logger.With().Str("component", "http").Logger(),
		RequestTimeout: 5 * time.Second, // Default timeout for service calls
	}
}
