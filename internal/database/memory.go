package database

import (
	"context"
	"sort"
	"sync"
	"time"

	"connect-you/internal/models"
	"connect-you/internal/utils"
)

// MemoryStore keeps users, messages and conversation summaries in process
// memory. It satisfies the same contracts as MongoDB and backs local runs
// (DB_TYPE=memory) and tests.
type MemoryStore struct {
	mu            sync.RWMutex
	users         map[string]*models.User
	messages      map[string]*models.Message   // MessageID -> Message
	byChat        map[string][]*models.Message // ConversationID -> Messages in insert order
	conversations map[string]*models.Conversation

	// Now stamps new messages. Tests replace it with a deterministic clock.
	Now func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:         make(map[string]*models.User),
		messages:      make(map[string]*models.Message),
		byChat:        make(map[string][]*models.Message),
		conversations: make(map[string]*models.Conversation),
		Now:           func() time.Time { return time.Now().UTC() },
	}
}

// AddUser registers a user so that lookups succeed.
func (s *MemoryStore) AddUser(user *models.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *user
	s.users[user.ID] = &copied
}

func (s *MemoryStore) GetUser(_ context.Context, id string) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	user, ok := s.users[id]
	if !ok {
		return nil, utils.NewUserNotFoundError(id)
	}
	copied := *user
	return &copied, nil
}

func (s *MemoryStore) GetUsersByIDs(_ context.Context, ids []string) (map[string]*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	users := make(map[string]*models.User, len(ids))
	for _, id := range ids {
		if user, ok := s.users[id]; ok {
			copied := *user
			users[id] = &copied
		}
	}
	return users, nil
}

func (s *MemoryStore) AppendMessage(_ context.Context, sender, receiver, content string) (*models.Message, error) {
	msg, err := models.NewMessage(sender, receiver, content, s.Now())
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages[msg.ID] = msg
	s.byChat[msg.ConversationID] = append(s.byChat[msg.ConversationID], msg)

	copied := *msg
	return &copied, nil
}

func (s *MemoryStore) ListByConversation(_ context.Context, conversationID string, page, pageSize int) ([]*models.Message, int64, error) {
	page, pageSize = normalizePage(page, pageSize)

	s.mu.RLock()
	defer s.mu.RUnlock()
	sorted := s.sortedLocked(conversationID, true)
	total := int64(len(sorted))

	start := (page - 1) * pageSize
	if start >= len(sorted) {
		return []*models.Message{}, total, nil
	}
	end := start + pageSize
	if end > len(sorted) {
		end = len(sorted)
	}
	return sorted[start:end], total, nil
}

func (s *MemoryStore) ListConversationMessages(_ context.Context, conversationID string) ([]*models.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sortedLocked(conversationID, false), nil
}

func (s *MemoryStore) FindByIDs(_ context.Context, ids []string) ([]*models.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	found := make([]*models.Message, 0, len(ids))
	for _, id := range ids {
		if msg, ok := s.messages[id]; ok {
			copied := *msg
			found = append(found, &copied)
		}
	}
	return found, nil
}

func (s *MemoryStore) CountUnread(_ context.Context, receiver string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var count int64
	for _, msg := range s.messages {
		if msg.Receiver == receiver && !msg.Read {
			count++
		}
	}
	return count, nil
}

func (s *MemoryStore) CountUnreadByConversation(_ context.Context, receiver string) (map[string]int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	counts := make(map[string]int64)
	for _, msg := range s.messages {
		if msg.Receiver == receiver && !msg.Read {
			counts[msg.ConversationID]++
		}
	}
	return counts, nil
}

func (s *MemoryStore) MarkRead(_ context.Context, ids []string, receiver string) ([]*models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	flipped := make([]*models.Message, 0, len(ids))
	for _, id := range ids {
		msg, ok := s.messages[id]
		if !ok || msg.Receiver != receiver || msg.Read {
			continue
		}
		msg.Read = true
		copied := *msg
		flipped = append(flipped, &copied)
	}
	return flipped, nil
}

func (s *MemoryStore) MarkConversationRead(_ context.Context, conversationID, receiver string) ([]*models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	flipped := make([]*models.Message, 0)
	for _, msg := range s.byChat[conversationID] {
		if msg.Receiver != receiver || msg.Read {
			continue
		}
		msg.Read = true
		copied := *msg
		flipped = append(flipped, &copied)
	}
	return flipped, nil
}

func (s *MemoryStore) UpsertConversation(_ context.Context, msg *models.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	conv, ok := s.conversations[msg.ConversationID]
	if !ok {
		s.conversations[msg.ConversationID] = &models.Conversation{
			ID:            msg.ConversationID,
			Participants:  models.Participants(msg.Sender, msg.Receiver),
			LastMessageID: msg.ID,
			LastMessageAt: msg.CreatedAt,
			UpdatedAt:     msg.CreatedAt,
		}
		return nil
	}
	if msg.CreatedAt.After(conv.LastMessageAt) {
		conv.LastMessageID = msg.ID
		conv.LastMessageAt = msg.CreatedAt
		conv.UpdatedAt = msg.CreatedAt
	}
	return nil
}

func (s *MemoryStore) ListConversationsForUser(_ context.Context, userID string) ([]*models.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	list := make([]*models.Conversation, 0)
	for _, conv := range s.conversations {
		for _, p := range conv.Participants {
			if p == userID {
				copied := *conv
				list = append(list, &copied)
				break
			}
		}
	}
	sort.Slice(list, func(i, j int) bool {
		if list[i].LastMessageAt.Equal(list[j].LastMessageAt) {
			return list[i].ID < list[j].ID
		}
		return list[i].LastMessageAt.After(list[j].LastMessageAt)
	})
	return list, nil
}

// RebuildConversations recomputes every summary from stored messages.
func (s *MemoryStore) RebuildConversations(_ context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rebuilt := make(map[string]*models.Conversation, len(s.byChat))
	for id := range s.byChat {
		sorted := s.sortedLocked(id, true)
		if len(sorted) == 0 {
			continue
		}
		last := sorted[0]
		rebuilt[id] = &models.Conversation{
			ID:            id,
			Participants:  models.Participants(last.Sender, last.Receiver),
			LastMessageID: last.ID,
			LastMessageAt: last.CreatedAt,
			UpdatedAt:     last.CreatedAt,
		}
	}
	s.conversations = rebuilt
	return len(rebuilt), nil
}

// Conversation returns a copy of one summary, for inspection.
func (s *MemoryStore) Conversation(conversationID string) (*models.Conversation, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	conv, ok := s.conversations[conversationID]
	if !ok {
		return nil, false
	}
	copied := *conv
	return &copied, true
}

// ConversationCount reports how many summaries exist.
func (s *MemoryStore) ConversationCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.conversations)
}

func (s *MemoryStore) Ping(context.Context) error { return nil }

func (s *MemoryStore) Close(context.Context) error { return nil }

// sortedLocked copies the conversation ordered by createdAt, ties by id.
func (s *MemoryStore) sortedLocked(conversationID string, newestFirst bool) []*models.Message {
	src := s.byChat[conversationID]
	out := make([]*models.Message, len(src))
	for i, msg := range src {
		copied := *msg
		out[i] = &copied
	}
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if !a.CreatedAt.Equal(b.CreatedAt) {
			if newestFirst {
				return a.CreatedAt.After(b.CreatedAt)
			}
			return a.CreatedAt.Before(b.CreatedAt)
		}
		if newestFirst {
			return a.ID > b.ID
		}
		return a.ID < b.ID
	})
	return out
}
