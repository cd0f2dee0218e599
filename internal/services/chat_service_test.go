package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"connect-you/internal/api"
	"connect-you/internal/database"
	"connect-you/internal/models"
	"connect-you/internal/utils"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type emitted struct {
	userID  string
	event   string
	payload interface{}
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []emitted
}

func (n *recordingNotifier) Emit(userID, event string, payload interface{}) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, emitted{userID: userID, event: event, payload: payload})
}

func (n *recordingNotifier) all() []emitted {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]emitted(nil), n.events...)
}

type failingIndex struct{}

func (failingIndex) UpsertConversation(context.Context, *models.Message) error {
	return errors.New("index unavailable")
}

func (failingIndex) ListConversationsForUser(context.Context, string) ([]*models.Conversation, error) {
	return nil, errors.New("index unavailable")
}

func newTestService(t *testing.T) (*ChatService, *database.MemoryStore, *recordingNotifier) {
	t.Helper()
	store := database.NewMemoryStore()
	current := time.Date(2026, 2, 1, 8, 0, 0, 0, time.UTC)
	store.Now = func() time.Time {
		current = current.Add(time.Second)
		return current
	}
	for _, u := range []*models.User{
		{ID: "alice", Name: "Alice", Role: "student"},
		{ID: "bob", Name: "Bob", Role: "alumni"},
		{ID: "carol", Name: "Carol", Role: "alumni"},
	} {
		store.AddUser(u)
	}

	notifier := &recordingNotifier{}
	svc := NewChatService(store, store, store, notifier, utils.NewMetricsCollector(), zerolog.Nop())
	return svc, store, notifier
}

func TestSendMessageCreatesSingleConversation(t *testing.T) {
	svc, store, _ := newTestService(t)
	ctx := context.Background()

	var last *models.Message
	for i := 0; i < 4; i++ {
		msg, err := svc.SendMessage(ctx, "alice", "bob", "hello")
		require.NoError(t, err)
		last = msg
	}

	assert.Equal(t, 1, store.ConversationCount())
	conv, ok := store.Conversation(models.ConversationID("alice", "bob"))
	require.True(t, ok)
	assert.Equal(t, last.ID, conv.LastMessageID)
	assert.False(t, conv.UpdatedAt.Before(last.CreatedAt))
}

func TestSendMessageRejectsEmptyContent(t *testing.T) {
	svc, store, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.SendMessage(ctx, "alice", "bob", "")
	require.Error(t, err)
	assert.True(t, utils.IsErrorCode(err, utils.ErrInvalidInput))

	history, err := svc.GetConversation(ctx, "alice", "bob")
	require.NoError(t, err)
	assert.Empty(t, history)
	assert.Zero(t, store.ConversationCount())
}

func TestSendMessageKeepsContentAsTyped(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	content := "    indented line\nsecond line\n"
	_, err := svc.SendMessage(ctx, "alice", "bob", content)
	require.NoError(t, err)

	history, err := svc.GetConversation(ctx, "alice", "bob")
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, content, history[0].Content)
}

func TestSendMessageUnknownUser(t *testing.T) {
	svc, _, _ := newTestService(t)

	_, err := svc.SendMessage(context.Background(), "alice", "mallory", "hi")
	require.Error(t, err)
	assert.True(t, utils.IsNotFound(err))
}

func TestSendMessageSurvivesIndexFailure(t *testing.T) {
	store := database.NewMemoryStore()
	store.AddUser(&models.User{ID: "alice"})
	store.AddUser(&models.User{ID: "bob"})
	svc := NewChatService(store, failingIndex{}, store, nil, nil, zerolog.Nop())

	msg, err := svc.SendMessage(context.Background(), "alice", "bob", "still stored")
	require.NoError(t, err)

	history, err := svc.GetConversation(context.Background(), "bob", "alice")
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, msg.ID, history[0].ID)
}

func TestOppositeSendsShareConversation(t *testing.T) {
	svc, store, _ := newTestService(t)
	ctx := context.Background()

	first, err := svc.SendMessage(ctx, "alice", "bob", "ping")
	require.NoError(t, err)
	second, err := svc.SendMessage(ctx, "bob", "alice", "pong")
	require.NoError(t, err)

	assert.Equal(t, first.ConversationID, second.ConversationID)
	conv, ok := store.Conversation(first.ConversationID)
	require.True(t, ok)
	assert.Equal(t, second.ID, conv.LastMessageID)
}

func TestGetHistoryMarksReadAndNotifiesSender(t *testing.T) {
	svc, _, notifier := newTestService(t)
	ctx := context.Background()

	sent, err := svc.SendMessage(ctx, "alice", "bob", "hi")
	require.NoError(t, err)

	page, err := svc.GetHistory(ctx, "bob", "alice", 1, 50)
	require.NoError(t, err)
	require.Len(t, page.Messages, 1)
	assert.True(t, page.Messages[0].Read)
	assert.Equal(t, int64(1), page.Total)
	assert.Equal(t, 1, page.TotalPages)

	events := notifier.all()
	require.Len(t, events, 1)
	assert.Equal(t, "alice", events[0].userID)
	assert.Equal(t, api.EventMessagesRead, events[0].event)
	assert.Equal(t, api.ReadReceipt{MessageIDs: []string{sent.ID}, Reader: "bob"}, events[0].payload)

	// Nothing left to flip: no second receipt.
	_, err = svc.GetHistory(ctx, "bob", "alice", 1, 50)
	require.NoError(t, err)
	assert.Len(t, notifier.all(), 1)

	// The sender reading their own history flips nothing.
	_, err = svc.GetHistory(ctx, "alice", "bob", 1, 50)
	require.NoError(t, err)
	assert.Len(t, notifier.all(), 1)
}

func TestGetHistoryPagesCoverConversation(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	var sent []string
	for i := 0; i < 7; i++ {
		from, to := "alice", "bob"
		if i%2 == 1 {
			from, to = to, from
		}
		msg, err := svc.SendMessage(ctx, from, to, "m")
		require.NoError(t, err)
		sent = append(sent, msg.ID)
	}

	var collected []*models.Message
	for page := 3; page >= 1; page-- {
		result, err := svc.GetHistory(ctx, "alice", "bob", page, 3)
		require.NoError(t, err)
		assert.Equal(t, 3, result.TotalPages)
		collected = append(collected, result.Messages...)
	}

	require.Len(t, collected, len(sent))
	for i := range sent {
		assert.Equal(t, sent[i], collected[i].ID)
		if i > 0 {
			assert.False(t, collected[i].CreatedAt.Before(collected[i-1].CreatedAt))
		}
	}
}

func TestMarkMessagesReadGroupsBySender(t *testing.T) {
	svc, _, notifier := newTestService(t)
	ctx := context.Background()

	fromAlice, _ := svc.SendMessage(ctx, "alice", "bob", "a1")
	fromCarol, _ := svc.SendMessage(ctx, "carol", "bob", "c1")
	fromAlice2, _ := svc.SendMessage(ctx, "alice", "bob", "a2")
	toCarol, _ := svc.SendMessage(ctx, "bob", "carol", "b1")

	flipped, err := svc.MarkMessagesRead(ctx, []string{fromAlice.ID, fromCarol.ID, fromAlice2.ID, toCarol.ID, "nope"}, "bob")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{fromAlice.ID, fromCarol.ID, fromAlice2.ID}, flipped)

	events := notifier.all()
	require.Len(t, events, 2)
	assert.Equal(t, "alice", events[0].userID)
	assert.Equal(t, []string{fromAlice.ID, fromAlice2.ID}, events[0].payload.(api.ReadReceipt).MessageIDs)
	assert.Equal(t, "carol", events[1].userID)

	carolUnread, err := svc.GetUnreadCount(ctx, "carol")
	require.NoError(t, err)
	assert.Equal(t, int64(1), carolUnread)
}

func TestUnreadCountIsIdempotentUnderRepeatedReads(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	m1, _ := svc.SendMessage(ctx, "alice", "bob", "1")
	_, _ = svc.SendMessage(ctx, "alice", "bob", "2")

	count, _ := svc.GetUnreadCount(ctx, "bob")
	assert.Equal(t, int64(2), count)

	_, err := svc.MarkMessagesRead(ctx, []string{m1.ID}, "bob")
	require.NoError(t, err)
	flipped, err := svc.MarkMessagesRead(ctx, []string{m1.ID}, "bob")
	require.NoError(t, err)
	assert.Empty(t, flipped)

	count, _ = svc.GetUnreadCount(ctx, "bob")
	assert.Equal(t, int64(1), count)
}

func TestMarkMessagesReadRequiresIDs(t *testing.T) {
	svc, _, _ := newTestService(t)

	_, err := svc.MarkMessagesRead(context.Background(), nil, "bob")
	assert.True(t, utils.IsErrorCode(err, utils.ErrInvalidInput))
}

func TestListThreadsOrdersByActivity(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	_, _ = svc.SendMessage(ctx, "alice", "bob", "old")
	_, _ = svc.SendMessage(ctx, "carol", "bob", "newer")
	latest, _ := svc.SendMessage(ctx, "bob", "alice", "newest")

	threads, err := svc.ListThreads(ctx, "bob")
	require.NoError(t, err)
	require.Len(t, threads, 2)

	assert.Equal(t, "alice", threads[0].OtherUser.ID)
	assert.Equal(t, "Alice", threads[0].OtherUser.Name)
	assert.Equal(t, latest.ID, threads[0].LastMessage.ID)
	assert.Equal(t, int64(1), threads[0].UnreadCount)

	assert.Equal(t, "carol", threads[1].OtherUser.ID)
	assert.Equal(t, int64(1), threads[1].UnreadCount)

	empty, err := svc.ListThreads(ctx, "nobody")
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestListThreadsStorageFailureIsDatabaseError(t *testing.T) {
	store := database.NewMemoryStore()
	svc := NewChatService(store, failingIndex{}, store, nil, nil, zerolog.Nop())

	_, err := svc.ListThreads(context.Background(), "bob")
	require.Error(t, err)
	assert.True(t, utils.IsErrorCode(err, utils.ErrDatabase))
	assert.Equal(t, "Internal server error", utils.ClientMessage(err))
}
