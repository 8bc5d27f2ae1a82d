package session

import (
	"sync"
	"time"
)

// TypingEmitter debounces the outgoing typing signal for one partner.
// The first keystroke of a burst emits typing=true; further keystrokes
// only push the idle timer out. After the idle window with no keystrokes
// exactly one typing=false is emitted.
type TypingEmitter struct {
	mu     sync.Mutex
	idle   time.Duration
	emit   func(isTyping bool)
	timer  *time.Timer
	active bool
	closed bool
}

func NewTypingEmitter(idle time.Duration, emit func(bool)) *TypingEmitter {
	if idle == 0 {
		idle = 2 * time.Second
	}
	return &TypingEmitter{idle: idle, emit: emit}
}

func (t *TypingEmitter) Keystroke() {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}
	fire := !t.active
	t.active = true
	if t.timer != nil {
		t.timer.Stop()
	}
	t.timer = time.AfterFunc(t.idle, t.expire)
	t.mu.Unlock()

	if fire {
		t.emit(true)
	}
}

func (t *TypingEmitter) expire() {
	t.mu.Lock()
	if t.closed || !t.active {
		t.mu.Unlock()
		return
	}
	t.active = false
	t.mu.Unlock()
	t.emit(false)
}

// Flush force-emits typing=false immediately, used on message send.
func (t *TypingEmitter) Flush() {
	t.mu.Lock()
	if t.closed || !t.active {
		t.mu.Unlock()
		return
	}
	t.active = false
	if t.timer != nil {
		t.timer.Stop()
	}
	t.mu.Unlock()
	t.emit(false)
}

func (t *TypingEmitter) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
	t.active = false
	if t.timer != nil {
		t.timer.Stop()
	}
}
