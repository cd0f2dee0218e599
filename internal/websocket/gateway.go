package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"connect-you/internal/api"
	"connect-you/internal/engine/actors"
	"connect-you/internal/models"
	"connect-you/internal/utils"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const defaultEventTimeout = 10 * time.Second

// MessagingService is the part of the chat service the gateway drives.
type MessagingService interface {
	SendMessage(ctx context.Context, sender, receiver, content string) (*models.Message, error)
	MarkMessagesRead(ctx context.Context, messageIDs []string, userID string) ([]string, error)
	UserExists(ctx context.Context, userID string) error
}

// Presence is the room registry of one gateway.
type Presence interface {
	Join(userID string, conn actors.Connection) (int, error)
	Leave(connID string)
	Emit(userID, event string, payload interface{})
}

// delivery is one outgoing event. An empty room means the originating
// connection only.
type delivery struct {
	room    string
	event   string
	payload interface{}
}

type eventHandler func(ctx context.Context, c *Client, data json.RawMessage) ([]delivery, error)

// Gateway accepts realtime connections and mirrors chat activity to the
// participant rooms they joined.
type Gateway struct {
	chat         MessagingService
	presence     Presence
	metrics      *utils.MetricsCollector
	logger       zerolog.Logger
	upgrader     websocket.Upgrader
	handlers     map[string]eventHandler
	eventTimeout time.Duration

	mu      sync.Mutex
	clients map[string]*Client
}

func NewGateway(chat MessagingService, presence Presence, metrics *utils.MetricsCollector, logger zerolog.Logger, allowedOrigins []string) *Gateway {
	if metrics == nil {
		metrics = utils.NewMetricsCollector()
	}
	g := &Gateway{
		chat:         chat,
		presence:     presence,
		metrics:      metrics,
		logger:       logger.With().Str("component", "gateway").Logger(),
		eventTimeout: defaultEventTimeout,
		clients:      make(map[string]*Client),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originChecker(allowedOrigins),
		},
	}
	g.handlers = map[string]eventHandler{
		api.EventJoinRoom:    g.handleJoinRoom,
		api.EventSendMessage: g.handleSendMessage,
		api.EventTyping:      g.typingHandler(api.EventUserTyping),
		api.EventStopTyping:  g.typingHandler(api.EventUserStopTyping),
		api.EventMarkAsRead:  g.handleMarkAsRead,
	}
	return g
}

// ServeHTTP upgrades the request and starts the connection pumps.
func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// The upgrader has already written the HTTP error.
		g.logger.Warn().Err(err).Str("remote", r.RemoteAddr).Msg("websocket upgrade failed")
		return
	}

	client := newClient(g, conn)
	g.mu.Lock()
	g.clients[client.id] = client
	g.mu.Unlock()
	g.metrics.ConnectionOpened()
	client.logger.Debug().Str("remote", r.RemoteAddr).Msg("websocket connected")

	go client.WritePump()
	go client.ReadPump()
}

// PublishMessage pushes a stored message to both participant rooms. The REST
// send path and sendMessage events share it.
func (g *Gateway) PublishMessage(msg *models.Message) {
	g.broadcast(nil, messageDeliveries(msg))
}

// Close drops every open connection. Their read pumps clean up the rooms.
func (g *Gateway) Close() {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, c := range g.clients {
		c.conn.Close()
	}
}

func (g *Gateway) disconnect(c *Client) {
	g.presence.Leave(c.id)

	g.mu.Lock()
	delete(g.clients, c.id)
	g.mu.Unlock()
	g.metrics.ConnectionClosed()
}

// dispatch runs the handler for one frame, then either broadcasts its result
// or reports its error to the caller. Never both.
func (g *Gateway) dispatch(ctx context.Context, c *Client, raw []byte) {
	var env api.Envelope
	if err := json.Unmarshal(raw, &env); err != nil || env.Event == "" {
		g.emitError(c, "unknown", utils.NewProtocolError("Malformed frame"))
		return
	}

	handler, ok := g.handlers[env.Event]
	if !ok {
		g.emitError(c, "unknown", utils.NewProtocolError("Unknown event: "+env.Event))
		return
	}

	out, err := handler(ctx, c, env.Data)
	if err != nil {
		g.emitError(c, env.Event, err)
		return
	}
	g.broadcast(c, out)
	g.metrics.IncrementSocketEvent(env.Event, "ok")
}

func (g *Gateway) broadcast(c *Client, out []delivery) {
	for _, d := range out {
		if d.room != "" {
			g.presence.Emit(d.room, d.event, d.payload)
			continue
		}
		if c == nil {
			continue
		}
		frame, err := api.NewEnvelope(d.event, d.payload)
		if err != nil {
			c.logger.Error().Err(err).Str("event", d.event).Msg("failed to encode reply")
			continue
		}
		if status := c.Deliver(frame); status != actors.Delivered {
			c.logger.Warn().Str("event", d.event).Int("status", int(status)).Msg("reply not delivered")
		}
	}
}

func (g *Gateway) emitError(c *Client, event string, err error) {
	notice := api.ErrorNotice{Message: utils.ClientMessage(err)}
	if appErr, ok := utils.AsAppError(err); ok {
		notice.Code = appErr.Code
	}

	logEvent := c.logger.Debug()
	if utils.AppErrorToHTTPStatus(notice.Code) >= http.StatusInternalServerError {
		logEvent = c.logger.Error()
	}
	logEvent.Err(err).Str("event", event).Str("user", c.userID).Msg("socket event failed")
	g.metrics.IncrementSocketEvent(event, "error")

	frame, encodeErr := api.NewEnvelope(api.EventError, notice)
	if encodeErr != nil {
		return
	}
	c.Deliver(frame)
}

func (g *Gateway) handleJoinRoom(ctx context.Context, c *Client, data json.RawMessage) ([]delivery, error) {
	var req api.JoinRoomRequest
	if err := decode(data, &req); err != nil {
		return nil, err
	}
	userID := strings.TrimSpace(req.UserID)
	if err := g.chat.UserExists(ctx, userID); err != nil {
		return nil, err
	}

	size, err := g.presence.Join(userID, c)
	if err != nil {
		return nil, err
	}
	c.userID = userID
	c.logger.Debug().Str("user", userID).Int("connections", size).Msg("joined room")

	return []delivery{{event: api.EventRoomJoined, payload: api.RoomJoined{UserID: userID, Success: true}}}, nil
}

func (g *Gateway) handleSendMessage(ctx context.Context, c *Client, data json.RawMessage) ([]delivery, error) {
	var req api.SendMessageRequest
	if err := decode(data, &req); err != nil {
		return nil, err
	}
	sender, err := actingAs(c, req.Sender)
	if err != nil {
		return nil, err
	}

	msg, err := g.chat.SendMessage(ctx, sender, req.Receiver, req.Content)
	if err != nil {
		return nil, err
	}
	g.metrics.IncrementMessagesSent("socket")
	return messageDeliveries(msg), nil
}

// typingHandler builds the handler for typing and stopTyping. Nothing is
// stored and nothing is acknowledged.
func (g *Gateway) typingHandler(notice string) eventHandler {
	return func(ctx context.Context, c *Client, data json.RawMessage) ([]delivery, error) {
		var req api.TypingRequest
		if err := decode(data, &req); err != nil {
			return nil, err
		}
		sender, err := actingAs(c, req.Sender)
		if err != nil {
			return nil, err
		}
		receiver := strings.TrimSpace(req.Receiver)
		if receiver == "" {
			return nil, utils.NewInvalidInputError("receiver is required")
		}
		return []delivery{{room: receiver, event: notice, payload: api.TypingNotice{Sender: sender}}}, nil
	}
}

func (g *Gateway) handleMarkAsRead(ctx context.Context, c *Client, data json.RawMessage) ([]delivery, error) {
	var req api.MarkAsReadRequest
	if err := decode(data, &req); err != nil {
		return nil, err
	}
	userID, err := actingAs(c, req.UserID)
	if err != nil {
		return nil, err
	}

	// Receipts to the original senders are emitted by the service.
	flipped, err := g.chat.MarkMessagesRead(ctx, req.MessageIDs, userID)
	if err != nil {
		return nil, err
	}
	return []delivery{{event: api.EventMessagesMarkedAsRead, payload: api.MessagesMarkedAsRead{MessageIDs: flipped}}}, nil
}

func messageDeliveries(msg *models.Message) []delivery {
	return []delivery{
		{room: msg.Receiver, event: api.EventReceiveMessage, payload: msg},
		{room: msg.Sender, event: api.EventMessageSent, payload: msg},
	}
}

// actingAs resolves which participant an event speaks for. The connection
// must have joined a room and may only speak for that participant.
func actingAs(c *Client, claimed string) (string, error) {
	if c.userID == "" {
		return "", utils.NewProtocolError("Join a room before sending events")
	}
	claimed = strings.TrimSpace(claimed)
	if claimed != "" && claimed != c.userID {
		return "", utils.NewAppError(utils.ErrForbidden, "Cannot act on behalf of another user", nil)
	}
	return c.userID, nil
}

func decode(data json.RawMessage, v interface{}) error {
	if len(data) == 0 {
		return utils.NewProtocolError("Missing event payload")
	}
	if err := json.Unmarshal(data, v); err != nil {
		return utils.NewProtocolError("Malformed event payload")
	}
	return nil
}

func originChecker(allowed []string) func(*http.Request) bool {
	set := make(map[string]bool, len(allowed))
	for _, origin := range allowed {
		if origin == "*" {
			return func(*http.Request) bool { return true }
		}
		set[origin] = true
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		// Non-browser clients send no Origin header.
		return origin == "" || set[origin]
	}
}
