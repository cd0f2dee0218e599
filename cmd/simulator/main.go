package main

import (
	"context"
	"os"
	"strings"
	"time"

	"connect-you/internal/utils"
	"connect-you/simulator"

	"github.com/joho/godotenv"
)

func main() {
	_ = godotenv.Load()
	logger := utils.NewLogger(os.Getenv("LOG_LEVEL"), os.Getenv("DEBUG") == "true")

	users := strings.Split(getEnvOrDefault("SEED_USERS", "alice,bob,carol,dave,erin"), ",")
	config := simulator.SimConfig{
		UserIDs:          users,
		SimulationTime:   10 * time.Minute,
		MessageFrequency: 120.0,
		ReadFrequency:    60.0,
		DisconnectRate:   0.01,
		ReconnectRate:    0.05,
		ZipfS:            1.07,
		EngineURL:        getEnvOrDefault("ENGINE_URL", "http://localhost:8080"),
		JWTSecret:        os.Getenv("JWT_SECRET"),
	}
	if d, err := time.ParseDuration(os.Getenv("SIMULATION_TIME")); err == nil {
		config.SimulationTime = d
	}

	logger.Info().
		Str("engine_url", config.EngineURL).
		Int("users", len(config.UserIDs)).
		Dur("duration", config.SimulationTime).
		Float64("messages_per_user_hour", config.MessageFrequency).
		Float64("reads_per_user_hour", config.ReadFrequency).
		Float64("zipf", config.ZipfS).
		Msg("starting simulation")

	sim := simulator.NewEnhancedSimulator(config, logger)
	ctx, cancel := context.WithTimeout(context.Background(), config.SimulationTime)
	defer cancel()

	if err := sim.Run(ctx); err != nil {
		logger.Fatal().Err(err).Msg("simulation failed")
	}

	metrics := sim.GetMetrics()
	logger.Info().
		Int("users", metrics.TotalUsers).
		Int("active_users", metrics.ActiveUsers).
		Int("messages_sent", metrics.MessagesSent).
		Int("history_reads", metrics.HistoryReads).
		Int("live_deliveries", metrics.LiveDeliveries).
		Int("receipts", metrics.ReceiptsSeen).
		Int("errors", metrics.ErrorCount).
		Msg("simulation completed")
}

func getEnvOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
