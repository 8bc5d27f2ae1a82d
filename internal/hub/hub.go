package hub

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/yourorg/support-chat/internal/chat"
)

// Hub tracks live sockets per participant. A participant may hold several
// sockets (multiple tabs); presence flips only on the first add and the
// last remove.
type Hub struct {
	mu            sync.RWMutex
	clientsByUser map[string]map[*Client]struct{}

	// PublishToPeers forwards a frame to other instances when the target
	// participant has no local socket. Optional.
	PublishToPeers func(ctx context.Context, userID string, payload []byte) error
}

func New() *Hub {
	return &Hub{clientsByUser: make(map[string]map[*Client]struct{})}
}

// Add registers a client and reports whether it is the participant's
// first live socket.
func (h *Hub) Add(c *Client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.clientsByUser[c.UserID]
	if !ok {
		set = make(map[*Client]struct{})
		h.clientsByUser[c.UserID] = set
	}
	set[c] = struct{}{}
	return len(set) == 1
}

// Remove unregisters a client and reports whether the participant has no
// sockets left.
func (h *Hub) Remove(c *Client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.clientsByUser[c.UserID]
	if !ok {
		return false
	}
	delete(set, c)
	if len(set) == 0 {
		delete(h.clientsByUser, c.UserID)
		return true
	}
	return false
}

// SendToUser enqueues env on every socket the participant holds locally.
// Returns true if at least one local socket took the frame. When no local
// socket exists the frame is handed to PublishToPeers.
func (h *Hub) SendToUser(ctx context.Context, userID string, env chat.Envelope) bool {
	b, _ := json.Marshal(env)

	h.mu.RLock()
	set, ok := h.clientsByUser[userID]
	delivered := false
	if ok {
		for c := range set {
			if c.enqueue(b) {
				delivered = true
			}
		}
	}
	h.mu.RUnlock()

	if !delivered && h.PublishToPeers != nil {
		_ = h.PublishToPeers(ctx, userID, b)
	}
	return delivered
}

// Broadcast enqueues env on every connected socket.
func (h *Hub) Broadcast(env chat.Envelope) {
	b, _ := json.Marshal(env)
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, set := range h.clientsByUser {
		for c := range set {
			c.enqueue(b)
		}
	}
}

// HasLocal reports whether the participant has a live socket on this
// instance.
func (h *Hub) HasLocal(userID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clientsByUser[userID]) > 0
}

// Close tears down every socket, used on shutdown.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, set := range h.clientsByUser {
		for c := range set {
			c.Close()
		}
	}
	h.clientsByUser = make(map[string]map[*Client]struct{})
}
