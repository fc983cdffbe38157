package server

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/livecaster/liveasr/internal/session"
)

const writeDeadline = 10 * time.Second

// wsClient adapts a gorilla connection to the session Sender. The write
// mutex serializes broadcaster sends; gorilla allows one writer at a time.
type wsClient struct {
	id   string
	conn *websocket.Conn

	mu     sync.Mutex
	closed bool
}

func newWSClient(conn *websocket.Conn) *wsClient {
	return &wsClient{id: uuid.NewString(), conn: conn}
}

// ID is the connection's correlation identifier for logging.
func (c *wsClient) ID() string { return c.id }

// Send writes one JSON message.
func (c *wsClient) Send(msg session.Outbound) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return websocket.ErrCloseSent
	}
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeDeadline))
	return c.conn.WriteJSON(msg)
}

// Close tears down the connection. Idempotent.
func (c *wsClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	return c.conn.Close()
}

// CloseWithPolicy sends a policy-violation close frame, then closes.
func (c *wsClient) CloseWithPolicy(reason string) {
	c.mu.Lock()
	if !c.closed {
		_ = c.conn.SetWriteDeadline(time.Now().Add(writeDeadline))
		_ = c.conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.ClosePolicyViolation, reason))
	}
	c.mu.Unlock()
	_ = c.Close()
}
