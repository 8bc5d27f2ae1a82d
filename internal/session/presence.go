package session

import (
	"sync"
	"time"
)

// Tracker holds the online/typing view of conversation partners.
// The snapshot is applied once after registration; incremental events are
// authoritative and overwrite per id (last write wins).
type Tracker struct {
	mu     sync.Mutex
	online map[string]bool
	typing map[string]bool
	timers map[string]*time.Timer

	expiry   time.Duration // receiver-side typing auto-expiry
	onChange func()
	closed   bool
}

func NewTracker(expiry time.Duration, onChange func()) *Tracker {
	if expiry == 0 {
		expiry = 5 * time.Second
	}
	return &Tracker{
		online:   make(map[string]bool),
		typing:   make(map[string]bool),
		timers:   make(map[string]*time.Timer),
		expiry:   expiry,
		onChange: onChange,
	}
}

// ApplySnapshot replaces the online set with the server's full list.
func (t *Tracker) ApplySnapshot(ids []string) {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}
	t.online = make(map[string]bool, len(ids))
	for _, id := range ids {
		t.online[id] = true
	}
	t.mu.Unlock()
	t.notify()
}

func (t *Tracker) SetOnline(id string, online bool) {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}
	t.online[id] = online
	if !online {
		// a disconnected partner cannot keep typing
		t.clearTypingLocked(id)
	}
	t.mu.Unlock()
	t.notify()
}

// SetTyping records a typing signal. A true flag arms an expiry timer so
// a dropped typing=false (partner disconnect) cannot pin the indicator.
func (t *Tracker) SetTyping(id string, isTyping bool) {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}
	if !isTyping {
		t.clearTypingLocked(id)
		t.mu.Unlock()
		t.notify()
		return
	}
	t.typing[id] = true
	if timer, ok := t.timers[id]; ok {
		timer.Stop()
	}
	t.timers[id] = time.AfterFunc(t.expiry, func() {
		t.SetTyping(id, false)
	})
	t.mu.Unlock()
	t.notify()
}

func (t *Tracker) clearTypingLocked(id string) {
	delete(t.typing, id)
	if timer, ok := t.timers[id]; ok {
		timer.Stop()
		delete(t.timers, id)
	}
}

func (t *Tracker) IsOnline(id string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.online[id]
}

func (t *Tracker) IsTyping(id string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.typing[id]
}

// StatusText derives the display line for a partner; typing wins over
// online/offline while active.
func (t *Tracker) StatusText(id string) string {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.typing[id] {
		return "typing…"
	}
	if t.online[id] {
		return "Online"
	}
	return "Offline"
}

func (t *Tracker) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
	for id, timer := range t.timers {
		timer.Stop()
		delete(t.timers, id)
	}
}

func (t *Tracker) notify() {
	if t.onChange != nil {
		t.onChange()
	}
}
