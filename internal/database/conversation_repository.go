package database

import (
	"context"
	"time"

	"connect-you/internal/models"
	"connect-you/internal/utils"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// ConversationDocument is the per-pair summary row.
type ConversationDocument struct {
	ID            string    `bson:"_id"`
	Participants  []string  `bson:"participants"`
	LastMessageID string    `bson:"lastMessageId"`
	LastMessageAt time.Time `bson:"lastMessageAt"`
	UpdatedAt     time.Time `bson:"updatedAt"`
}

func (doc *ConversationDocument) toModel() *models.Conversation {
	return &models.Conversation{
		ID:            doc.ID,
		Participants:  doc.Participants,
		LastMessageID: doc.LastMessageID,
		LastMessageAt: doc.LastMessageAt,
		UpdatedAt:     doc.UpdatedAt,
	}
}

// UpsertConversation points the summary of msg's conversation at msg, unless
// the summary already references a message that is at least as recent.
//
// The filter only matches a summary older than msg. When a newer summary
// exists the upsert attempts an insert on the same _id and fails with a
// duplicate key, which means the stored pointer already wins.
func (m *MongoDB) UpsertConversation(ctx context.Context, msg *models.Message) error {
	filter := bson.M{
		"_id":           msg.ConversationID,
		"lastMessageAt": bson.M{"$lt": msg.CreatedAt},
	}
	update := bson.M{
		"$set": bson.M{
			"lastMessageId": msg.ID,
			"lastMessageAt": msg.CreatedAt,
			"updatedAt":     msg.CreatedAt,
		},
		"$setOnInsert": bson.M{
			"participants": models.Participants(msg.Sender, msg.Receiver),
		},
	}

	_, err := m.Conversations.UpdateOne(ctx, filter, update, options.Update().SetUpsert(true))
	if mongo.IsDuplicateKeyError(err) {
		m.logger.Debug().
			Str("conversation", msg.ConversationID).
			Str("message", msg.ID).
			Msg("conversation already points at a newer message")
		return nil
	}
	if err != nil {
		return utils.NewDatabaseError("failed to upsert conversation", err)
	}
	return nil
}

// ListConversationsForUser returns the summaries userID participates in,
// most recently active first.
func (m *MongoDB) ListConversationsForUser(ctx context.Context, userID string) ([]*models.Conversation, error) {
	opts := options.Find().SetSort(bson.D{{Key: "lastMessageAt", Value: -1}, {Key: "_id", Value: 1}})

	cursor, err := m.Conversations.Find(ctx, bson.M{"participants": userID}, opts)
	if err != nil {
		return nil, utils.NewDatabaseError("failed to query conversations", err)
	}
	defer cursor.Close(ctx)

	conversations := make([]*models.Conversation, 0)
	for cursor.Next(ctx) {
		var doc ConversationDocument
		if err := cursor.Decode(&doc); err != nil {
			return nil, utils.NewDatabaseError("failed to decode conversation", err)
		}
		conversations = append(conversations, doc.toModel())
	}
	if err := cursor.Err(); err != nil {
		return nil, utils.NewDatabaseError("conversation cursor failed", err)
	}
	return conversations, nil
}

// RebuildConversations recomputes every summary from the message collection
// and overwrites the stored rows. Returns the number of summaries written.
func (m *MongoDB) RebuildConversations(ctx context.Context) (int, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$sort", Value: bson.D{{Key: "createdAt", Value: 1}, {Key: "_id", Value: 1}}}},
		{{Key: "$group", Value: bson.M{
			"_id":           "$conversationId",
			"lastMessageId": bson.M{"$last": "$_id"},
			"lastMessageAt": bson.M{"$last": "$createdAt"},
			"sender":        bson.M{"$last": "$sender"},
			"receiver":      bson.M{"$last": "$receiver"},
		}}},
	}

	cursor, err := m.Messages.Aggregate(ctx, pipeline, options.Aggregate().SetAllowDiskUse(true))
	if err != nil {
		return 0, utils.NewDatabaseError("failed to aggregate conversations", err)
	}
	defer cursor.Close(ctx)

	var writes []mongo.WriteModel
	for cursor.Next(ctx) {
		var row struct {
			ConversationID string    `bson:"_id"`
			LastMessageID  string    `bson:"lastMessageId"`
			LastMessageAt  time.Time `bson:"lastMessageAt"`
			Sender         string    `bson:"sender"`
			Receiver       string    `bson:"receiver"`
		}
		if err := cursor.Decode(&row); err != nil {
			return 0, utils.NewDatabaseError("failed to decode conversation aggregate", err)
		}

		doc := ConversationDocument{
			ID:            row.ConversationID,
			Participants:  models.Participants(row.Sender, row.Receiver),
			LastMessageID: row.LastMessageID,
			LastMessageAt: row.LastMessageAt,
			UpdatedAt:     row.LastMessageAt,
		}
		writes = append(writes, mongo.NewReplaceOneModel().
			SetFilter(bson.M{"_id": doc.ID}).
			SetReplacement(doc).
			SetUpsert(true))
	}
	if err := cursor.Err(); err != nil {
		return 0, utils.NewDatabaseError("conversation aggregate cursor failed", err)
	}
	if len(writes) == 0 {
		return 0, nil
	}

	if _, err := m.Conversations.BulkWrite(ctx, writes, options.BulkWrite().SetOrdered(false)); err != nil {
		return 0, utils.NewDatabaseError("failed to write conversations", err)
	}

	m.logger.Info().Int("conversations", len(writes)).Msg("conversation index rebuilt")
	return len(writes), nil
}
