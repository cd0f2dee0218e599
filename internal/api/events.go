// Package api holds the wire types shared by the REST surface, the realtime
// gateway and the messaging service.
package api

import "encoding/json"

// Client to server events.
const (
	EventJoinRoom    = "joinRoom"
	EventSendMessage = "sendMessage"
	EventTyping      = "typing"
	EventStopTyping  = "stopTyping"
	EventMarkAsRead  = "markAsRead"
)

// Server to client events.
const (
	EventRoomJoined           = "roomJoined"
	EventReceiveMessage       = "receiveMessage"
	EventMessageSent          = "messageSent"
	EventUserTyping           = "userTyping"
	EventUserStopTyping       = "userStopTyping"
	EventMessagesMarkedAsRead = "messagesMarkedAsRead"
	EventMessagesRead         = "messagesRead"
	EventError                = "error"
)

// Envelope is the frame exchanged over the socket in both directions.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// NewEnvelope encodes payload as the data of an outgoing frame.
func NewEnvelope(event string, payload interface{}) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{Event: event, Data: data})
}

type JoinRoomRequest struct {
	UserID string `json:"userId"`
}

type RoomJoined struct {
	UserID  string `json:"userId"`
	Success bool   `json:"success"`
}

type SendMessageRequest struct {
	Sender   string `json:"sender"`
	Receiver string `json:"receiver"`
	Content  string `json:"content"`
}

type TypingRequest struct {
	Sender   string `json:"sender"`
	Receiver string `json:"receiver"`
}

type TypingNotice struct {
	Sender string `json:"sender"`
}

type MarkAsReadRequest struct {
	MessageIDs []string `json:"messageIds"`
	UserID     string   `json:"userId"`
}

type MessagesMarkedAsRead struct {
	MessageIDs []string `json:"messageIds"`
}

// ReadReceipt tells an original sender which of their messages were seen.
type ReadReceipt struct {
	MessageIDs []string `json:"messageIds"`
	Reader     string   `json:"reader"`
}

type ErrorNotice struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}
