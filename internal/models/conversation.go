package models

import "time"

// Conversation is the denormalized per-pair summary kept alongside the
// message collection. It can always be rebuilt from messages.
type Conversation struct {
	ID            string    `json:"conversationId"`
	Participants  []string  `json:"participants"`
	LastMessageID string    `json:"lastMessageId"`
	LastMessageAt time.Time `json:"lastMessageAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

// ThreadSummary is one entry of a user's conversation list.
type ThreadSummary struct {
	ConversationID string      `json:"conversationId"`
	OtherUser      *PublicUser `json:"otherUser"`
	LastMessage    *Message    `json:"lastMessage"`
	UnreadCount    int64       `json:"unreadCount"`
	UpdatedAt      time.Time   `json:"updatedAt"`
}

// Participants returns the pair in the same order ConversationID joins them.
func Participants(a, b string) []string {
	if b < a {
		a, b = b, a
	}
	return []string{a, b}
}

// OtherParticipant returns the participant that is not userID.
func (c *Conversation) OtherParticipant(userID string) string {
	for _, p := range c.Participants {
		if p != userID {
			return p
		}
	}
	return userID
}
