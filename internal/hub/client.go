package hub

import (
	"sync"
	"time"

	"github.com/gofiber/websocket/v2"
	"golang.org/x/time/rate"

	"github.com/yourorg/support-chat/internal/chat"
)

// Client is one websocket connection bound to a participant.
type Client struct {
	UserID   string
	Role     chat.Role
	SocketID string

	conn    *websocket.Conn
	send    chan []byte
	limiter *rate.Limiter

	mu     sync.Mutex
	closed bool
}

func NewClient(conn *websocket.Conn, p chat.Participant, socketID string, rps int) *Client {
	if rps <= 0 {
		rps = 20
	}
	return &Client{
		UserID:   p.ID,
		Role:     p.Role,
		SocketID: socketID,
		conn:     conn,
		send:     make(chan []byte, 256),
		limiter:  rate.NewLimiter(rate.Limit(rps), rps),
	}
}

// enqueue hands a frame to the writer. Slow clients get frames dropped
// instead of blocking the hub.
func (c *Client) enqueue(b []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- b:
		return true
	default:
		return false
	}
}

func (c *Client) allow() bool { return c.limiter.Allow() }

func (c *Client) Close() {
	c.mu.Lock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
	c.mu.Unlock()
}

// writePump drains the send channel onto the wire and keeps the
// connection alive with pings. Runs on its own goroutine per socket.
func (c *Client) writePump(pingInterval, writeDeadline time.Duration) {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case b, ok := <-c.send:
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeDeadline))
			if err := c.conn.WriteMessage(websocket.TextMessage, b); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeDeadline))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
