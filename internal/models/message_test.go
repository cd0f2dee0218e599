package models

import (
	"testing"
	"time"

	"connect-you/internal/utils"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConversationIDIsSymmetric(t *testing.T) {
	pairs := [][2]string{
		{"alice", "bob"},
		{"bob", "alice"},
		{"10", "2"},
		{"65f1c0ffee", "65f1c0ffed"},
		{"same", "same"},
	}
	for _, p := range pairs {
		assert.Equal(t, ConversationID(p[0], p[1]), ConversationID(p[1], p[0]), "pair %v", p)
	}
}

func TestConversationIDUsesStringOrder(t *testing.T) {
	assert.Equal(t, "10_2", ConversationID("2", "10"))
	assert.Equal(t, "alice_bob", ConversationID("bob", "alice"))
}

func TestNewMessageValidates(t *testing.T) {
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	cases := []struct {
		name             string
		sender, receiver string
		content          string
	}{
		{"empty content", "alice", "bob", ""},
		{"blank content", "alice", "bob", "   \n"},
		{"missing sender", "", "bob", "hi"},
		{"missing receiver", "alice", " ", "hi"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			msg, err := NewMessage(tc.sender, tc.receiver, tc.content, now)
			assert.Nil(t, msg)
			assert.True(t, utils.IsErrorCode(err, utils.ErrInvalidInput))
		})
	}
}

func TestNewMessageDerivesConversation(t *testing.T) {
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	msg, err := NewMessage(" bob ", "alice", "  hi\n", now)
	require.NoError(t, err)
	assert.NotEmpty(t, msg.ID)
	assert.Equal(t, "alice_bob", msg.ConversationID)
	assert.Equal(t, "bob", msg.Sender)
	assert.Equal(t, "  hi\n", msg.Content)
	assert.False(t, msg.Read)
	assert.Equal(t, now, msg.CreatedAt)
	assert.Equal(t, "alice", msg.OtherParticipant("bob"))
}

func TestReverseMessages(t *testing.T) {
	msgs := []*Message{{ID: "3"}, {ID: "2"}, {ID: "1"}}
	ReverseMessages(msgs)
	assert.Equal(t, "1", msgs[0].ID)
	assert.Equal(t, "3", msgs[2].ID)
}
