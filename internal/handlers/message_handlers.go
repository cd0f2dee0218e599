package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"connect-you/internal/middleware"
	"connect-you/internal/models"
	"connect-you/internal/utils"

	"github.com/go-chi/chi/v5"
)

const (
	defaultPageLimit = 50
	maxPageLimit     = 100
)

// SendMessageRequest represents a request to send a chat message
type SendMessageRequest struct {
	Sender   string `json:"sender"`
	Receiver string `json:"receiver"`
	Content  string `json:"content"`
}

// MarkReadRequest lists the messages the caller has seen
type MarkReadRequest struct {
	MessageIDs []string `json:"messageIds"`
}

func forbidden(message string) error {
	return utils.NewAppError(utils.ErrForbidden, message, nil)
}

// HandleSendMessage stores a message and pushes it to both participant rooms.
// With a token the sender defaults to, and must equal, the caller.
func (s *Server) HandleSendMessage() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req SendMessageRequest
		if err := decodeJSON(w, r, &req); err != nil {
			s.writeError(w, err)
			return
		}

		sender := strings.TrimSpace(req.Sender)
		if caller, ok := middleware.GetUserIDFromContext(r.Context()); ok {
			if sender == "" {
				sender = caller
			} else if sender != caller {
				s.writeError(w, forbidden("Cannot send messages on behalf of another user"))
				return
			}
		}

		ctx, cancel := s.withTimeout(r)
		defer cancel()

		msg, err := s.Chat.SendMessage(ctx, sender, req.Receiver, req.Content)
		if err != nil {
			s.writeError(w, err)
			return
		}
		s.Metrics.IncrementMessagesSent("rest")
		s.Realtime.PublishMessage(msg)

		writeJSON(w, http.StatusCreated, map[string]interface{}{
			"success": true,
			"message": "Message sent successfully",
			"data":    msg,
		})
	}
}

// HandleGetConversation returns every message between two users, oldest
// first, with no read side effect.
func (s *Server) HandleGetConversation() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := s.withTimeout(r)
		defer cancel()

		messages, err := s.Chat.GetConversation(ctx, chi.URLParam(r, "user1"), chi.URLParam(r, "user2"))
		if err != nil {
			s.writeError(w, err)
			return
		}
		if messages == nil {
			messages = []*models.Message{}
		}
		writeJSON(w, http.StatusOK, messages)
	}
}

// HandleListThreads lists the caller's conversations, most recent first.
func (s *Server) HandleListThreads() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := chi.URLParam(r, "userId")
		if caller, _ := middleware.GetUserIDFromContext(r.Context()); caller != userID {
			s.writeError(w, forbidden("Cannot list another user's chats"))
			return
		}

		ctx, cancel := s.withTimeout(r)
		defer cancel()

		threads, err := s.Chat.ListThreads(ctx, userID)
		if err != nil {
			s.writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"success": true,
			"count":   len(threads),
			"data":    threads,
		})
	}
}

// HandleGetMessages returns one page of the caller's conversation with the
// other party named by sender/receiver, and marks it read for the caller.
func (s *Server) HandleGetMessages() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		query := r.URL.Query()
		sender := strings.TrimSpace(query.Get("sender"))
		receiver := strings.TrimSpace(query.Get("receiver"))
		if sender == "" || receiver == "" {
			s.writeError(w, utils.NewInvalidInputError("Sender and receiver are required"))
			return
		}

		caller, _ := middleware.GetUserIDFromContext(r.Context())
		var other string
		switch caller {
		case sender:
			other = receiver
		case receiver:
			other = sender
		default:
			s.writeError(w, forbidden("Cannot read another user's conversation"))
			return
		}

		page, err := intParam(query.Get("page"), 1)
		if err != nil {
			s.writeError(w, err)
			return
		}
		limit, err := intParam(query.Get("limit"), defaultPageLimit)
		if err != nil {
			s.writeError(w, err)
			return
		}
		if limit > maxPageLimit {
			limit = maxPageLimit
		}

		ctx, cancel := s.withTimeout(r)
		defer cancel()

		result, err := s.Chat.GetHistory(ctx, caller, other, page, limit)
		if err != nil {
			s.writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"success":     true,
			"count":       result.Count,
			"total":       result.Total,
			"currentPage": result.CurrentPage,
			"totalPages":  result.TotalPages,
			"data":        result.Messages,
		})
	}
}

// HandleMarkRead marks the listed messages addressed to the caller as read.
func (s *Server) HandleMarkRead() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req MarkReadRequest
		if err := decodeJSON(w, r, &req); err != nil {
			s.writeError(w, err)
			return
		}
		caller, _ := middleware.GetUserIDFromContext(r.Context())

		ctx, cancel := s.withTimeout(r)
		defer cancel()

		flipped, err := s.Chat.MarkMessagesRead(ctx, req.MessageIDs, caller)
		if err != nil {
			s.writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"success":       true,
			"message":       "Messages marked as read",
			"modifiedCount": len(flipped),
		})
	}
}

// HandleUnreadCount returns how many messages wait for the caller.
func (s *Server) HandleUnreadCount() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := chi.URLParam(r, "userId")
		if caller, _ := middleware.GetUserIDFromContext(r.Context()); caller != userID {
			s.writeError(w, forbidden("Cannot read another user's unread count"))
			return
		}

		ctx, cancel := s.withTimeout(r)
		defer cancel()

		count, err := s.Chat.GetUnreadCount(ctx, userID)
		if err != nil {
			s.writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"success":     true,
			"unreadCount": count,
		})
	}
}

func intParam(raw string, fallback int) (int, error) {
	if raw == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return 0, utils.NewInvalidInputError("page and limit must be positive integers")
	}
	return n, nil
}
