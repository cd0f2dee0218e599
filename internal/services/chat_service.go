package services

import (
	"context"
	"sort"
	"strings"
	"time"

	"connect-you/internal/api"
	"connect-you/internal/models"
	"connect-you/internal/utils"

	"github.com/rs/zerolog"
)

const defaultHistoryPageSize = 50

// MessageStore persists individual chat messages.
type MessageStore interface {
	AppendMessage(ctx context.Context, sender, receiver, content string) (*models.Message, error)
	ListByConversation(ctx context.Context, conversationID string, page, pageSize int) ([]*models.Message, int64, error)
	ListConversationMessages(ctx context.Context, conversationID string) ([]*models.Message, error)
	FindByIDs(ctx context.Context, ids []string) ([]*models.Message, error)
	CountUnread(ctx context.Context, receiver string) (int64, error)
	CountUnreadByConversation(ctx context.Context, receiver string) (map[string]int64, error)
	MarkRead(ctx context.Context, ids []string, receiver string) ([]*models.Message, error)
	MarkConversationRead(ctx context.Context, conversationID, receiver string) ([]*models.Message, error)
}

// ConversationIndex is the per-pair summary cache derived from messages.
type ConversationIndex interface {
	UpsertConversation(ctx context.Context, msg *models.Message) error
	ListConversationsForUser(ctx context.Context, userID string) ([]*models.Conversation, error)
}

// UserDirectory resolves participant ids against the account store.
type UserDirectory interface {
	GetUser(ctx context.Context, id string) (*models.User, error)
	GetUsersByIDs(ctx context.Context, ids []string) (map[string]*models.User, error)
}

// Notifier pushes an event to every live connection of one participant.
type Notifier interface {
	Emit(userID, event string, payload interface{})
}

type nopNotifier struct{}

func (nopNotifier) Emit(string, string, interface{}) {}

// ChatService holds the messaging rules shared by the REST and realtime
// entry points.
type ChatService struct {
	messages      MessageStore
	conversations ConversationIndex
	users         UserDirectory
	notifier      Notifier
	metrics       *utils.MetricsCollector
	logger        zerolog.Logger
}

func NewChatService(
	messages MessageStore,
	conversations ConversationIndex,
	users UserDirectory,
	notifier Notifier,
	metrics *utils.MetricsCollector,
	logger zerolog.Logger,
) *ChatService {
	if notifier == nil {
		notifier = nopNotifier{}
	}
	if metrics == nil {
		metrics = utils.NewMetricsCollector()
	}
	return &ChatService{
		messages:      messages,
		conversations: conversations,
		users:         users,
		notifier:      notifier,
		metrics:       metrics,
		logger:        logger.With().Str("component", "chat_service").Logger(),
	}
}

// SendMessage persists a message from sender to receiver and refreshes the
// conversation summary. Both participants must exist.
func (s *ChatService) SendMessage(ctx context.Context, sender, receiver, content string) (*models.Message, error) {
	startTime := time.Now()
	defer func() { s.metrics.AddOperationLatency("send_message", time.Since(startTime)) }()

	sender = strings.TrimSpace(sender)
	receiver = strings.TrimSpace(receiver)
	if sender == "" || receiver == "" || strings.TrimSpace(content) == "" {
		return nil, utils.NewInvalidInputError("Sender, receiver, and content are required")
	}

	if _, err := s.users.GetUser(ctx, sender); err != nil {
		return nil, s.fail("send_message", err)
	}
	if _, err := s.users.GetUser(ctx, receiver); err != nil {
		return nil, s.fail("send_message", err)
	}

	msg, err := s.messages.AppendMessage(ctx, sender, receiver, content)
	if err != nil {
		return nil, s.fail("send_message", err)
	}

	// The message is the source of truth; a stale summary is rebuilt later.
	if err := s.conversations.UpsertConversation(ctx, msg); err != nil {
		s.logger.Error().Err(err).
			Str("conversation", msg.ConversationID).
			Str("message", msg.ID).
			Msg("conversation index upsert failed")
	}

	s.logger.Debug().
		Str("sender", sender).
		Str("receiver", receiver).
		Str("message", msg.ID).
		Msg("message sent")
	return msg, nil
}

// ListThreads returns one summary per conversation of userID, most recently
// active first.
func (s *ChatService) ListThreads(ctx context.Context, userID string) ([]*models.ThreadSummary, error) {
	startTime := time.Now()
	defer func() { s.metrics.AddOperationLatency("list_threads", time.Since(startTime)) }()

	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, utils.NewInvalidInputError("User ID is required")
	}

	conversations, err := s.conversations.ListConversationsForUser(ctx, userID)
	if err != nil {
		return nil, s.fail("list_threads", err)
	}
	if len(conversations) == 0 {
		return []*models.ThreadSummary{}, nil
	}

	unread, err := s.messages.CountUnreadByConversation(ctx, userID)
	if err != nil {
		return nil, s.fail("list_threads", err)
	}

	lastIDs := make([]string, 0, len(conversations))
	otherIDs := make([]string, 0, len(conversations))
	for _, conv := range conversations {
		lastIDs = append(lastIDs, conv.LastMessageID)
		otherIDs = append(otherIDs, conv.OtherParticipant(userID))
	}

	lastMessages, err := s.messages.FindByIDs(ctx, lastIDs)
	if err != nil {
		return nil, s.fail("list_threads", err)
	}
	byID := make(map[string]*models.Message, len(lastMessages))
	for _, msg := range lastMessages {
		byID[msg.ID] = msg
	}

	users, err := s.users.GetUsersByIDs(ctx, otherIDs)
	if err != nil {
		return nil, s.fail("list_threads", err)
	}

	threads := make([]*models.ThreadSummary, 0, len(conversations))
	for _, conv := range conversations {
		otherID := conv.OtherParticipant(userID)
		other := users[otherID].Public()
		if other == nil {
			other = &models.PublicUser{ID: otherID}
		}

		last := byID[conv.LastMessageID]
		if last == nil {
			s.logger.Warn().
				Str("conversation", conv.ID).
				Str("message", conv.LastMessageID).
				Msg("conversation summary references a missing message")
		}

		threads = append(threads, &models.ThreadSummary{
			ConversationID: conv.ID,
			OtherUser:      other,
			LastMessage:    last,
			UnreadCount:    unread[conv.ID],
			UpdatedAt:      conv.UpdatedAt,
		})
	}

	sort.SliceStable(threads, func(i, j int) bool {
		return threadActivity(threads[i]).After(threadActivity(threads[j]))
	})
	return threads, nil
}

// GetHistory returns one page of the conversation between userID and
// otherUserID in display order. Messages addressed to userID that were still
// unread are marked read and the other participant gets a read receipt.
func (s *ChatService) GetHistory(ctx context.Context, userID, otherUserID string, page, pageSize int) (*models.PagedMessages, error) {
	startTime := time.Now()
	defer func() { s.metrics.AddOperationLatency("get_history", time.Since(startTime)) }()

	userID = strings.TrimSpace(userID)
	otherUserID = strings.TrimSpace(otherUserID)
	if userID == "" || otherUserID == "" {
		return nil, utils.NewInvalidInputError("Sender and receiver are required")
	}
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = defaultHistoryPageSize
	}

	conversationID := models.ConversationID(userID, otherUserID)

	flipped, err := s.messages.MarkConversationRead(ctx, conversationID, userID)
	if err != nil {
		// Read state is best effort; history must still load.
		s.logger.Error().Err(err).Str("conversation", conversationID).Msg("failed to mark conversation read")
	} else {
		s.notifyReaders(flipped, userID)
	}

	messages, total, err := s.messages.ListByConversation(ctx, conversationID, page, pageSize)
	if err != nil {
		return nil, s.fail("get_history", err)
	}
	models.ReverseMessages(messages)

	totalPages := 0
	if total > 0 {
		totalPages = int((total + int64(pageSize) - 1) / int64(pageSize))
	}

	return &models.PagedMessages{
		Messages:    messages,
		Count:       len(messages),
		Total:       total,
		CurrentPage: page,
		TotalPages:  totalPages,
	}, nil
}

// GetConversation returns every message between user1 and user2, oldest first.
func (s *ChatService) GetConversation(ctx context.Context, user1, user2 string) ([]*models.Message, error) {
	user1 = strings.TrimSpace(user1)
	user2 = strings.TrimSpace(user2)
	if user1 == "" || user2 == "" {
		return nil, utils.NewInvalidInputError("Both user IDs are required")
	}

	messages, err := s.messages.ListConversationMessages(ctx, models.ConversationID(user1, user2))
	if err != nil {
		return nil, s.fail("get_conversation", err)
	}
	return messages, nil
}

// MarkMessagesRead flips the listed messages addressed to userID and sends
// one read receipt per original sender. Returns the ids this call flipped;
// ids addressed to someone else, already read or unknown are left out.
func (s *ChatService) MarkMessagesRead(ctx context.Context, messageIDs []string, userID string) ([]string, error) {
	startTime := time.Now()
	defer func() { s.metrics.AddOperationLatency("mark_read", time.Since(startTime)) }()

	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, utils.NewInvalidInputError("User ID is required")
	}

	ids := make([]string, 0, len(messageIDs))
	for _, id := range messageIDs {
		if id = strings.TrimSpace(id); id != "" {
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		return nil, utils.NewInvalidInputError("messageIds must be a non-empty array")
	}

	flipped, err := s.messages.MarkRead(ctx, ids, userID)
	if err != nil {
		return nil, s.fail("mark_read", err)
	}

	s.notifyReaders(flipped, userID)

	flippedIDs := make([]string, len(flipped))
	for i, msg := range flipped {
		flippedIDs[i] = msg.ID
	}
	return flippedIDs, nil
}

// GetUnreadCount counts unread messages addressed to userID.
func (s *ChatService) GetUnreadCount(ctx context.Context, userID string) (int64, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return 0, utils.NewInvalidInputError("User ID is required")
	}

	count, err := s.messages.CountUnread(ctx, userID)
	if err != nil {
		return 0, s.fail("unread_count", err)
	}
	return count, nil
}

// UserExists reports whether userID is a known participant.
func (s *ChatService) UserExists(ctx context.Context, userID string) error {
	if strings.TrimSpace(userID) == "" {
		return utils.NewInvalidInputError("userId is required")
	}
	if _, err := s.users.GetUser(ctx, userID); err != nil {
		return s.fail("user_lookup", err)
	}
	return nil
}

// notifyReaders groups flipped messages by sender and emits one receipt each.
func (s *ChatService) notifyReaders(flipped []*models.Message, reader string) {
	if len(flipped) == 0 {
		return
	}

	bySender := make(map[string][]string)
	var senders []string
	for _, msg := range flipped {
		if _, seen := bySender[msg.Sender]; !seen {
			senders = append(senders, msg.Sender)
		}
		bySender[msg.Sender] = append(bySender[msg.Sender], msg.ID)
	}

	for _, sender := range senders {
		s.notifier.Emit(sender, api.EventMessagesRead, api.ReadReceipt{
			MessageIDs: bySender[sender],
			Reader:     reader,
		})
	}
	s.metrics.AddReadReceipts(len(senders))
}

// fail normalises err into the application taxonomy. Anything that is not
// already an AppError is treated as a storage failure and logged in full.
func (s *ChatService) fail(operation string, err error) error {
	appErr, ok := utils.AsAppError(err)
	if !ok {
		appErr = utils.NewDatabaseError("storage failure", err)
	}
	if appErr.Code == utils.ErrDatabase {
		s.logger.Error().Err(appErr).Str("operation", operation).Msg("storage error")
	}
	s.metrics.IncrementErrors(appErr.Code)
	return appErr
}

func threadActivity(t *models.ThreadSummary) time.Time {
	if t.LastMessage != nil {
		return t.LastMessage.CreatedAt
	}
	return t.UpdatedAt
}
