package websocket

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	writeWait  = 10 * time.Second
	pingPeriod = 30 * time.Second
	readWait   = 60 * time.Second
)

// Client is one live socket connection for an authenticated user.
type Client struct {
	ID     string
	UserID uuid.UUID
	Conn   *websocket.Conn
	send   chan []byte

	conversations map[uuid.UUID]bool
	mu            sync.RWMutex
	closed        bool
}

func NewClient(conn *websocket.Conn, userID uuid.UUID) *Client {
	return &Client{
		ID:            uuid.NewString(),
		UserID:        userID,
		Conn:          conn,
		send:          make(chan []byte, 256),
		conversations: make(map[uuid.UUID]bool),
	}
}

func (c *Client) joinConversation(id uuid.UUID) {
	c.mu.Lock()
	c.conversations[id] = true
	c.mu.Unlock()
}

func (c *Client) leaveConversation(id uuid.UUID) {
	c.mu.Lock()
	delete(c.conversations, id)
	c.mu.Unlock()
}

// Conversations returns a copy of the client's current channel memberships.
func (c *Client) Conversations() []uuid.UUID {
	c.mu.RLock()
	defer c.mu.RUnlock()
	ids := make([]uuid.UUID, 0, len(c.conversations))
	for id := range c.conversations {
		ids = append(ids, id)
	}
	return ids
}

// Send queues a payload without blocking. A full buffer drops the payload;
// undelivered live pushes carry no durability guarantee beyond the persisted
// message itself.
func (c *Client) Send(payload []byte) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- payload:
		return true
	default:
		return false
	}
}

// closeSend marks the client closed and shuts the send channel down. Sends
// arriving afterwards report undelivered instead of panicking on a closed
// channel.
func (c *Client) closeSend() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
}

// WriteLoop drains the send channel onto the wire and keeps the connection
// alive with pings.
func (c *Client) WriteLoop(ctx context.Context) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			_ = c.Conn.Close()
			return
		case msg, ok := <-c.send:
			if !ok {
				_ = c.Conn.Close()
				return
			}
			_ = c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				_ = c.Conn.Close()
				return
			}
		case <-ticker.C:
			_ = c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				_ = c.Conn.Close()
				return
			}
		}
	}
}
