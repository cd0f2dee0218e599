package database

import (
	"context"
	"testing"
	"time"

	"connect-you/internal/models"
	"connect-you/internal/utils"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func steppingClock(start time.Time, step time.Duration) func() time.Time {
	current := start
	return func() time.Time {
		current = current.Add(step)
		return current
	}
}

func newTestStore() *MemoryStore {
	store := NewMemoryStore()
	store.Now = steppingClock(time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC), time.Second)
	return store
}

func TestAppendRejectsEmptyContent(t *testing.T) {
	store := newTestStore()
	ctx := context.Background()

	_, err := store.AppendMessage(ctx, "alice", "bob", "")
	assert.True(t, utils.IsErrorCode(err, utils.ErrInvalidInput))

	count, _ := store.CountUnread(ctx, "bob")
	assert.Zero(t, count)
}

func TestListByConversationPagesNewestFirst(t *testing.T) {
	store := newTestStore()
	ctx := context.Background()

	var sent []*models.Message
	for i := 0; i < 5; i++ {
		msg, err := store.AppendMessage(ctx, "alice", "bob", "m")
		require.NoError(t, err)
		sent = append(sent, msg)
	}

	page1, total, err := store.ListByConversation(ctx, models.ConversationID("bob", "alice"), 1, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(5), total)
	require.Len(t, page1, 2)
	assert.Equal(t, sent[4].ID, page1[0].ID)
	assert.Equal(t, sent[3].ID, page1[1].ID)

	page3, _, err := store.ListByConversation(ctx, sent[0].ConversationID, 3, 2)
	require.NoError(t, err)
	require.Len(t, page3, 1)
	assert.Equal(t, sent[0].ID, page3[0].ID)

	beyond, _, err := store.ListByConversation(ctx, sent[0].ConversationID, 9, 2)
	require.NoError(t, err)
	assert.Empty(t, beyond)
}

func TestMarkReadOnlyFlipsCallersMessages(t *testing.T) {
	store := newTestStore()
	ctx := context.Background()

	toBob, _ := store.AppendMessage(ctx, "alice", "bob", "for bob")
	toAlice, _ := store.AppendMessage(ctx, "bob", "alice", "for alice")

	flipped, err := store.MarkRead(ctx, []string{toBob.ID, toAlice.ID, "unknown"}, "bob")
	require.NoError(t, err)
	require.Len(t, flipped, 1)
	assert.Equal(t, toBob.ID, flipped[0].ID)

	aliceUnread, _ := store.CountUnread(ctx, "alice")
	assert.Equal(t, int64(1), aliceUnread)

	again, err := store.MarkRead(ctx, []string{toBob.ID}, "bob")
	require.NoError(t, err)
	assert.Empty(t, again)

	bobUnread, _ := store.CountUnread(ctx, "bob")
	assert.Zero(t, bobUnread)
}

func TestUpsertConversationKeepsLatestMessage(t *testing.T) {
	store := newTestStore()
	ctx := context.Background()

	first, _ := store.AppendMessage(ctx, "alice", "bob", "one")
	second, _ := store.AppendMessage(ctx, "bob", "alice", "two")

	// Apply the index updates out of order.
	require.NoError(t, store.UpsertConversation(ctx, second))
	require.NoError(t, store.UpsertConversation(ctx, first))

	conv, ok := store.Conversation(first.ConversationID)
	require.True(t, ok)
	assert.Equal(t, second.ID, conv.LastMessageID)
	assert.Equal(t, []string{"alice", "bob"}, conv.Participants)
	assert.Equal(t, 1, store.ConversationCount())
}

func TestRebuildConversationsFromMessages(t *testing.T) {
	store := newTestStore()
	ctx := context.Background()

	_, _ = store.AppendMessage(ctx, "alice", "bob", "one")
	last, _ := store.AppendMessage(ctx, "bob", "alice", "two")
	other, _ := store.AppendMessage(ctx, "carol", "alice", "hey")

	n, err := store.RebuildConversations(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	list, err := store.ListConversationsForUser(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, other.ConversationID, list[0].ID)
	assert.Equal(t, last.ID, list[1].LastMessageID)
}

func TestCountUnreadByConversation(t *testing.T) {
	store := newTestStore()
	ctx := context.Background()

	a, _ := store.AppendMessage(ctx, "alice", "bob", "1")
	_, _ = store.AppendMessage(ctx, "alice", "bob", "2")
	c, _ := store.AppendMessage(ctx, "carol", "bob", "3")
	_, _ = store.AppendMessage(ctx, "bob", "carol", "4")

	counts, err := store.CountUnreadByConversation(ctx, "bob")
	require.NoError(t, err)
	assert.Equal(t, int64(2), counts[a.ConversationID])
	assert.Equal(t, int64(1), counts[c.ConversationID])

	flipped, err := store.MarkConversationRead(ctx, a.ConversationID, "bob")
	require.NoError(t, err)
	assert.Len(t, flipped, 2)

	total, _ := store.CountUnread(ctx, "bob")
	assert.Equal(t, int64(1), total)
}
