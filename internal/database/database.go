// internal/database/database.go
package database

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type MongoDB struct {
	Client        *mongo.Client
	Users         *mongo.Collection
	Messages      *mongo.Collection
	Conversations *mongo.Collection

	logger zerolog.Logger
	now    func() time.Time
}

func NewMongoDB(ctx context.Context, uri, dbName string, logger zerolog.Logger) (*MongoDB, error) {
	serverAPI := options.ServerAPI(options.ServerAPIVersion1)
	opts := options.Client().ApplyURI(uri).SetServerAPIOptions(serverAPI)

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	// Ping the database to verify connection
	if err := client.Database("admin").RunCommand(ctx, bson.D{{Key: "ping", Value: 1}}).Err(); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	logger.Info().Str("database", dbName).Msg("connected to MongoDB")

	db := client.Database(dbName)
	return &MongoDB{
		Client:        client,
		Users:         db.Collection("users"),
		Messages:      db.Collection("messages"),
		Conversations: db.Collection("conversations"),
		logger:        logger,
		now:           func() time.Time { return time.Now().UTC() },
	}, nil
}

// EnsureIndexes creates the indexes the history, unread and thread queries
// rely on. Creating an existing index is a no-op in MongoDB.
func (m *MongoDB) EnsureIndexes(ctx context.Context) error {
	_, err := m.Messages.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "conversationId", Value: 1}, {Key: "createdAt", Value: -1}},
			Options: options.Index().SetName("conversation_created"),
		},
		{
			Keys:    bson.D{{Key: "receiver", Value: 1}, {Key: "read", Value: 1}},
			Options: options.Index().SetName("receiver_read"),
		},
	})
	if err != nil {
		return fmt.Errorf("failed to create message indexes: %w", err)
	}

	_, err = m.Conversations.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "participants", Value: 1}, {Key: "lastMessageAt", Value: -1}},
		Options: options.Index().SetName("participants_last"),
	})
	if err != nil {
		return fmt.Errorf("failed to create conversation indexes: %w", err)
	}

	m.logger.Debug().Msg("MongoDB indexes ensured")
	return nil
}

// Ping reports whether the primary is reachable.
func (m *MongoDB) Ping(ctx context.Context) error {
	return m.Client.Ping(ctx, nil)
}

func (m *MongoDB) Close(ctx context.Context) error {
	m.logger.Info().Msg("closing MongoDB connection")
	return m.Client.Disconnect(ctx)
}
