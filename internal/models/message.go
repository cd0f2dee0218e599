package models

import (
	"strings"
	"time"

	"connect-you/internal/utils"

	"github.com/google/uuid"
)

// Message is a single chat message between two participants.
type Message struct {
	ID             string    `json:"_id"`
	ConversationID string    `json:"conversationId"`
	Sender         string    `json:"sender"`
	Receiver       string    `json:"receiver"`
	Content        string    `json:"content"`
	Read           bool      `json:"read"`
	CreatedAt      time.Time `json:"createdAt"`
}

// ConversationID derives the canonical id for the pair (a, b). Ids are
// compared as plain strings, so "10" sorts before "2".
func ConversationID(a, b string) string {
	if b < a {
		a, b = b, a
	}
	return a + "_" + b
}

// OtherParticipant returns the participant of the message that is not userID.
func (m *Message) OtherParticipant(userID string) string {
	if m.Sender == userID {
		return m.Receiver
	}
	return m.Sender
}

// NewMessage validates the inputs and builds an unsaved message stamped with
// now. Content is kept as typed; only all-blank content is rejected. The
// conversation id is always recomputed here.
func NewMessage(sender, receiver, content string, now time.Time) (*Message, error) {
	sender = strings.TrimSpace(sender)
	receiver = strings.TrimSpace(receiver)
	if sender == "" || receiver == "" {
		return nil, utils.NewInvalidInputError("Sender and receiver are required")
	}
	if strings.TrimSpace(content) == "" {
		return nil, utils.NewInvalidInputError("Message content cannot be empty")
	}

	return &Message{
		ID:             uuid.NewString(),
		ConversationID: ConversationID(sender, receiver),
		Sender:         sender,
		Receiver:       receiver,
		Content:        content,
		Read:           false,
		CreatedAt:      now,
	}, nil
}

// PagedMessages is one page of a conversation, oldest first.
type PagedMessages struct {
	Messages    []*Message `json:"data"`
	Count       int        `json:"count"`
	Total       int64      `json:"total"`
	CurrentPage int        `json:"currentPage"`
	TotalPages  int        `json:"totalPages"`
}

// ReverseMessages flips a newest-first slice into display order in place.
func ReverseMessages(messages []*Message) {
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
}
