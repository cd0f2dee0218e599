// Command reindex rebuilds the conversation summaries from the messages
// collection. Run it after an outage left summaries stale.
package main

import (
	"context"
	"time"

	"connect-you/internal/config"
	"connect-you/internal/database"
	"connect-you/internal/utils"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		fallback := utils.NewLogger("info", false)
		fallback.Fatal().Err(err).Msg("invalid configuration")
	}
	logger := utils.NewLogger(cfg.LogLevel, cfg.Debug)
	if cfg.Database.Type != "mongo" {
		logger.Fatal().Str("db", cfg.Database.Type).Msg("reindex only applies to the mongo store")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	db, err := database.NewMongoDB(ctx, cfg.Database.URI, cfg.Database.Name, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect")
	}
	defer db.Close(context.Background())

	if err := db.EnsureIndexes(ctx); err != nil {
		logger.Fatal().Err(err).Msg("failed to ensure indexes")
	}

	start := time.Now()
	n, err := db.RebuildConversations(ctx)
	if err != nil {
		logger.Fatal().Err(err).Msg("rebuild failed")
	}
	logger.Info().Int("conversations", n).Dur("took", time.Since(start)).Msg("conversation index rebuilt")
}
