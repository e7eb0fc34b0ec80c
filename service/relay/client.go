package relay

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ankit-kumarpr/lastchat/logger"
)

// Client is one live connection: the identity bound to it (after identify)
// and a bounded outbound queue drained by a single writer goroutine.
// gorilla/websocket forbids concurrent writes, so everything outbound goes
// through Send and only the writer touches the socket.
type Client struct {
	ConnID string
	ws     *websocket.Conn
	send   chan []byte
	done   chan struct{}

	closeOnce    sync.Once
	teardownOnce sync.Once

	mu     sync.RWMutex
	userID string
}

func NewClient(connID string, ws *websocket.Conn, sendQueueSize int) *Client {
	if sendQueueSize <= 0 {
		sendQueueSize = 256
	}
	return &Client{
		ConnID: connID,
		ws:     ws,
		send:   make(chan []byte, sendQueueSize),
		done:   make(chan struct{}),
	}
}

// UserID returns the bound identity, or "" before identify.
func (c *Client) UserID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.userID
}

// bind sets the identity once. Re-identifying as the same user is an
// accepted no-op; switching identities is not.
func (c *Client) bind(user string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.userID != "" {
		return c.userID == user
	}
	c.userID = user
	return true
}

// Enqueue hands a payload to the writer without blocking. It reports false
// when the connection is closed or the queue is saturated; the caller
// decides what that means (fan-out drops the delivery, the gateway closes
// chronically slow sessions).
func (c *Client) Enqueue(payload []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- payload:
		return true
	case <-c.done:
		return false
	default:
		return false
	}
}

// Close is idempotent. It stops the writer; the underlying socket is closed
// by the writer on its way out (or here when no writer was started).
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		close(c.done)
	})
}

func (c *Client) closed() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

// writePump is the per-connection writer: drains Send, keeps the peer alive
// with pings, and owns the socket shutdown. Pending deliveries at close time
// are simply dropped.
func (c *Client) writePump(writeWait, pingInterval time.Duration) {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
		_ = c.ws.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		_ = c.ws.Close()
	}()

	for {
		select {
		case <-c.done:
			return
		case payload := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.TextMessage, payload); err != nil {
				logger.Debugf("[relay] write err conn=%s user=%s: %v", c.ConnID, c.UserID(), err)
				c.Close()
				return
			}
		case <-ticker.C:
			if err := c.ws.WriteControl(websocket.PingMessage, []byte("ping"), time.Now().Add(writeWait)); err != nil {
				logger.Debugf("[relay] ping err conn=%s user=%s: %v", c.ConnID, c.UserID(), err)
				c.Close()
				return
			}
		}
	}
}
