package session

import (
	"context"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/yourorg/support-chat/internal/chat"
)

// Channel is the realtime transport a session owns. It is injected at
// construction so nothing holds a package-level socket.
type Channel interface {
	Send(env chat.Envelope) error
	// Events yields inbound frames in arrival order. The channel closes
	// when the transport fails or Close is called.
	Events() <-chan chat.Envelope
	// Err reports the transport failure after Events closes, nil on a
	// deliberate Close.
	Err() error
	Close() error
}

// WSChannel implements Channel over a websocket connection.
type WSChannel struct {
	conn   *websocket.Conn
	events chan chat.Envelope
	done   chan struct{}

	writeMu sync.Mutex

	mu     sync.Mutex
	err    error
	closed bool
}

// Dial opens the websocket, authenticating with the bearer token via the
// query string (the same path the server's upgrade middleware reads).
func Dial(ctx context.Context, wsURL, token string) (*WSChannel, error) {
	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, wsURL+"?token="+token, http.Header{})
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		return nil, err
	}
	ch := &WSChannel{
		conn:   conn,
		events: make(chan chat.Envelope, 64),
		done:   make(chan struct{}),
	}
	go ch.readLoop()
	return ch, nil
}

func (c *WSChannel) Send(env chat.Envelope) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteJSON(env)
}

func (c *WSChannel) Events() <-chan chat.Envelope { return c.events }

func (c *WSChannel) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

func (c *WSChannel) Close() error {
	c.mu.Lock()
	if !c.closed {
		c.closed = true
		close(c.done)
	}
	c.mu.Unlock()
	return c.conn.Close()
}

func (c *WSChannel) readLoop() {
	defer close(c.events)
	for {
		var env chat.Envelope
		if err := c.conn.ReadJSON(&env); err != nil {
			c.mu.Lock()
			if !c.closed {
				c.err = err
			}
			c.mu.Unlock()
			return
		}
		// nobody drains events after Close, so don't block on the buffer
		select {
		case c.events <- env:
		case <-c.done:
			return
		}
	}
}
