package database

import (
	"context"
	"errors"
	"time"

	"connect-you/internal/models"
	"connect-you/internal/utils"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const DefaultPageSize = 50

// MessageDocument represents the MongoDB document structure for chat messages
type MessageDocument struct {
	ID             string    `bson:"_id"`
	ConversationID string    `bson:"conversationId"`
	Sender         string    `bson:"sender"`
	Receiver       string    `bson:"receiver"`
	Content        string    `bson:"content"`
	Read           bool      `bson:"read"`
	CreatedAt      time.Time `bson:"createdAt"`
}

func newMessageDocument(msg *models.Message) MessageDocument {
	return MessageDocument{
		ID:             msg.ID,
		ConversationID: msg.ConversationID,
		Sender:         msg.Sender,
		Receiver:       msg.Receiver,
		Content:        msg.Content,
		Read:           msg.Read,
		CreatedAt:      msg.CreatedAt,
	}
}

func (doc *MessageDocument) toModel() *models.Message {
	return &models.Message{
		ID:             doc.ID,
		ConversationID: doc.ConversationID,
		Sender:         doc.Sender,
		Receiver:       doc.Receiver,
		Content:        doc.Content,
		Read:           doc.Read,
		CreatedAt:      doc.CreatedAt,
	}
}

// AppendMessage validates and persists a new message. The conversation id
// is derived from the participants, never taken from the caller.
func (m *MongoDB) AppendMessage(ctx context.Context, sender, receiver, content string) (*models.Message, error) {
	msg, err := models.NewMessage(sender, receiver, content, m.now())
	if err != nil {
		return nil, err
	}

	if _, err := m.Messages.InsertOne(ctx, newMessageDocument(msg)); err != nil {
		return nil, utils.NewDatabaseError("failed to save message", err)
	}
	return msg, nil
}

// ListByConversation returns one page of a conversation, newest first, and
// the total number of messages in it.
func (m *MongoDB) ListByConversation(ctx context.Context, conversationID string, page, pageSize int) ([]*models.Message, int64, error) {
	page, pageSize = normalizePage(page, pageSize)
	filter := bson.M{"conversationId": conversationID}

	total, err := m.Messages.CountDocuments(ctx, filter)
	if err != nil {
		return nil, 0, utils.NewDatabaseError("failed to count messages", err)
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "createdAt", Value: -1}, {Key: "_id", Value: -1}}).
		SetSkip(int64((page - 1) * pageSize)).
		SetLimit(int64(pageSize))

	messages, err := m.findMessages(ctx, filter, opts)
	if err != nil {
		return nil, 0, err
	}
	return messages, total, nil
}

// ListConversationMessages returns every message of a conversation, oldest first.
func (m *MongoDB) ListConversationMessages(ctx context.Context, conversationID string) ([]*models.Message, error) {
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: 1}, {Key: "_id", Value: 1}})
	return m.findMessages(ctx, bson.M{"conversationId": conversationID}, opts)
}

// FindByIDs loads the messages with the given ids; unknown ids are ignored.
func (m *MongoDB) FindByIDs(ctx context.Context, ids []string) ([]*models.Message, error) {
	if len(ids) == 0 {
		return []*models.Message{}, nil
	}
	return m.findMessages(ctx, bson.M{"_id": bson.M{"$in": ids}})
}

// CountUnread counts unread messages addressed to receiver across all conversations.
func (m *MongoDB) CountUnread(ctx context.Context, receiver string) (int64, error) {
	count, err := m.Messages.CountDocuments(ctx, bson.M{"receiver": receiver, "read": false})
	if err != nil {
		return 0, utils.NewDatabaseError("failed to count unread messages", err)
	}
	return count, nil
}

// CountUnreadByConversation groups the unread count of receiver by conversation.
func (m *MongoDB) CountUnreadByConversation(ctx context.Context, receiver string) (map[string]int64, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.M{"receiver": receiver, "read": false}}},
		{{Key: "$group", Value: bson.M{"_id": "$conversationId", "count": bson.M{"$sum": 1}}}},
	}

	cursor, err := m.Messages.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, utils.NewDatabaseError("failed to aggregate unread counts", err)
	}
	defer cursor.Close(ctx)

	var rows []struct {
		ConversationID string `bson:"_id"`
		Count          int64  `bson:"count"`
	}
	if err := cursor.All(ctx, &rows); err != nil {
		return nil, utils.NewDatabaseError("failed to decode unread counts", err)
	}

	counts := make(map[string]int64, len(rows))
	for _, row := range rows {
		counts[row.ConversationID] = row.Count
	}
	return counts, nil
}

// MarkRead flips the read flag of the listed messages addressed to
// receiver. Messages addressed to someone else, already read or unknown are
// skipped. Only the messages this call flipped are returned.
func (m *MongoDB) MarkRead(ctx context.Context, ids []string, receiver string) ([]*models.Message, error) {
	if len(ids) == 0 {
		return []*models.Message{}, nil
	}
	return m.markRead(ctx, bson.M{
		"_id":      bson.M{"$in": ids},
		"receiver": receiver,
		"read":     false,
	}, receiver)
}

// MarkConversationRead flips every unread message of the conversation
// addressed to receiver and returns the ones this call flipped.
func (m *MongoDB) MarkConversationRead(ctx context.Context, conversationID, receiver string) ([]*models.Message, error) {
	return m.markRead(ctx, bson.M{
		"conversationId": conversationID,
		"receiver":       receiver,
		"read":           false,
	}, receiver)
}

// markRead finds the unread candidates, then flips each one with a guarded
// findAndModify. A candidate another marker flipped in between no longer
// matches read=false and is left out of the result.
func (m *MongoDB) markRead(ctx context.Context, filter bson.M, receiver string) ([]*models.Message, error) {
	candidates, err := m.findMessages(ctx, filter,
		options.Find().
			SetProjection(bson.M{"_id": 1}).
			SetSort(bson.D{{Key: "createdAt", Value: 1}, {Key: "_id", Value: 1}}),
	)
	if err != nil {
		return nil, err
	}

	flipped := make([]*models.Message, 0, len(candidates))
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	for _, candidate := range candidates {
		var doc MessageDocument
		err := m.Messages.FindOneAndUpdate(ctx,
			bson.M{"_id": candidate.ID, "receiver": receiver, "read": false},
			bson.M{"$set": bson.M{"read": true}},
			opts,
		).Decode(&doc)
		if errors.Is(err, mongo.ErrNoDocuments) {
			m.logger.Debug().Str("message", candidate.ID).Msg("message already marked read")
			continue
		}
		if err != nil {
			return nil, utils.NewDatabaseError("failed to mark message read", err)
		}
		flipped = append(flipped, doc.toModel())
	}
	return flipped, nil
}

func (m *MongoDB) findMessages(ctx context.Context, filter interface{}, opts ...*options.FindOptions) ([]*models.Message, error) {
	cursor, err := m.Messages.Find(ctx, filter, opts...)
	if err != nil {
		return nil, utils.NewDatabaseError("failed to query messages", err)
	}
	defer cursor.Close(ctx)

	messages := make([]*models.Message, 0)
	for cursor.Next(ctx) {
		var doc MessageDocument
		if err := cursor.Decode(&doc); err != nil {
			return nil, utils.NewDatabaseError("failed to decode message", err)
		}
		messages = append(messages, doc.toModel())
	}
	if err := cursor.Err(); err != nil {
		return nil, utils.NewDatabaseError("message cursor failed", err)
	}
	return messages, nil
}

func normalizePage(page, pageSize int) (int, int) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = DefaultPageSize
	}
	return page, pageSize
}
