package websocket

import (
	"context"
	"sync"
	"time"

	"connect-you/internal/engine/actors"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	maxMessageSize = 16 * 1024

	// Outbound frames buffered per connection before new ones are dropped.
	sendBufferSize = 256
)

// Client is a middleman between the websocket connection and the gateway.
// It starts anonymous and becomes identified once joinRoom succeeds.
type Client struct {
	id      string
	gateway *Gateway

	// The websocket connection.
	conn *websocket.Conn

	// Buffered channel of outbound frames.
	send chan []byte

	// Closed once the read side has shut down.
	done      chan struct{}
	closeOnce sync.Once

	// Participant this connection acts as. Only touched from ReadPump.
	userID string

	logger zerolog.Logger
}

func newClient(g *Gateway, conn *websocket.Conn) *Client {
	id := uuid.NewString()
	return &Client{
		id:      id,
		gateway: g,
		conn:    conn,
		send:    make(chan []byte, sendBufferSize),
		done:    make(chan struct{}),
		logger:  g.logger.With().Str("conn", id).Logger(),
	}
}

// ID identifies the connection inside the presence registry.
func (c *Client) ID() string {
	return c.id
}

// Deliver queues an encoded frame without blocking.
func (c *Client) Deliver(payload []byte) actors.DeliveryStatus {
	select {
	case <-c.done:
		return actors.ConnClosed
	default:
	}

	select {
	case c.send <- payload:
		return actors.Delivered
	default:
		return actors.BufferFull
	}
}

// ReadPump pumps frames from the websocket connection to the gateway. Frames
// of one connection are handled in arrival order.
func (c *Client) ReadPump() {
	defer func() {
		c.gateway.disconnect(c)
		c.close()
		c.conn.Close()
		c.logger.Debug().Str("user", c.userID).Msg("read pump stopped")
	}()
	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error { c.conn.SetReadDeadline(time.Now().Add(pongWait)); return nil })
	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				c.logger.Warn().Err(err).Str("user", c.userID).Msg("websocket read error")
			}
			break
		}

		ctx, cancel := context.WithTimeout(context.Background(), c.gateway.eventTimeout)
		c.gateway.dispatch(ctx, c, message)
		cancel()
	}
}

// WritePump pumps frames from the send buffer to the websocket connection.
// Each frame goes out as its own text message.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case message := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				c.logger.Warn().Err(err).Msg("websocket write error")
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.logger.Debug().Err(err).Msg("websocket ping failed")
				return
			}
		case <-c.done:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		}
	}
}

func (c *Client) close() {
	c.closeOnce.Do(func() { close(c.done) })
}
