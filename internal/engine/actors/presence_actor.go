package actors

import (
	"connect-you/internal/utils"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/rs/zerolog"
)

// DeliveryStatus is the outcome of handing a frame to one connection.
type DeliveryStatus int

const (
	Delivered DeliveryStatus = iota
	// BufferFull means the client is too slow and the frame was dropped.
	BufferFull
	// ConnClosed means the connection shut down before its leave was processed.
	ConnClosed
)

// Connection is one live realtime connection as seen by the registry.
type Connection interface {
	ID() string
	// Deliver queues payload without blocking.
	Deliver(payload []byte) DeliveryStatus
}

// Message types for PresenceActor
type (
	// JoinRoomMsg adds a connection to a participant's room. A connection
	// lives in at most one room, so joining again moves it. Responds with the
	// new room size.
	JoinRoomMsg struct {
		UserID string
		Conn   Connection
	}

	// LeaveMsg drops a connection from whatever room it is in.
	LeaveMsg struct {
		ConnID string
	}

	// DeliverMsg pushes an encoded frame to every connection of UserID.
	DeliverMsg struct {
		UserID  string
		Payload []byte
	}

	// RoomSizeMsg responds with the number of connections in UserID's room.
	RoomSizeMsg struct {
		UserID string
	}
)

// PresenceActor owns participant rooms. Every membership change and every
// delivery goes through its mailbox, so frames reach a room in the order
// they were submitted.
type PresenceActor struct {
	rooms   map[string]map[string]Connection // UserID -> ConnID -> Connection
	roomOf  map[string]string                // ConnID -> UserID
	logger  zerolog.Logger
	metrics *utils.MetricsCollector
}

func NewPresenceActor(logger zerolog.Logger, metrics *utils.MetricsCollector) actor.Actor {
	return &PresenceActor{
		rooms:   make(map[string]map[string]Connection),
		roomOf:  make(map[string]string),
		logger:  logger.With().Str("component", "presence").Logger(),
		metrics: metrics,
	}
}

func (a *PresenceActor) Receive(context actor.Context) {
	switch msg := context.Message().(type) {
	case *JoinRoomMsg:
		context.Respond(a.join(msg))
	case *LeaveMsg:
		a.leave(msg.ConnID)
	case *DeliverMsg:
		a.deliver(msg)
	case *RoomSizeMsg:
		context.Respond(len(a.rooms[msg.UserID]))
	}
}

func (a *PresenceActor) join(msg *JoinRoomMsg) int {
	connID := msg.Conn.ID()
	if current, ok := a.roomOf[connID]; ok {
		if current == msg.UserID {
			return len(a.rooms[current])
		}
		a.leave(connID)
	}

	room, ok := a.rooms[msg.UserID]
	if !ok {
		room = make(map[string]Connection)
		a.rooms[msg.UserID] = room
	}
	room[connID] = msg.Conn
	a.roomOf[connID] = msg.UserID

	a.logger.Debug().
		Str("user", msg.UserID).
		Str("conn", connID).
		Int("connections", len(room)).
		Msg("connection joined room")
	return len(room)
}

func (a *PresenceActor) leave(connID string) {
	userID, ok := a.roomOf[connID]
	if !ok {
		return
	}
	delete(a.roomOf, connID)

	room := a.rooms[userID]
	delete(room, connID)
	if len(room) == 0 {
		delete(a.rooms, userID)
	}

	a.logger.Debug().
		Str("user", userID).
		Str("conn", connID).
		Int("remaining", len(room)).
		Msg("connection left room")
}

func (a *PresenceActor) deliver(msg *DeliverMsg) {
	room, ok := a.rooms[msg.UserID]
	if !ok {
		// Nobody is listening; realtime delivery is best effort.
		return
	}
	for connID, conn := range room {
		switch conn.Deliver(msg.Payload) {
		case BufferFull:
			a.logger.Warn().
				Str("user", msg.UserID).
				Str("conn", connID).
				Msg("send buffer full, frame dropped")
			a.countDelivery("dropped")
		case ConnClosed:
			// The pending LeaveMsg becomes a no-op.
			a.logger.Debug().
				Str("user", msg.UserID).
				Str("conn", connID).
				Msg("connection already closed, removing from room")
			a.leave(connID)
			a.countDelivery("closed")
		}
	}
}

func (a *PresenceActor) countDelivery(outcome string) {
	if a.metrics != nil {
		a.metrics.IncrementSocketEvent("deliver", outcome)
	}
}
