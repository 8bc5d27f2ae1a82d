package session

import (
	"sync"
	"time"
)

// ackTracker arms a bounded wait per optimistic send. If the sent ack
// never arrives (dropped connection, lost frame) the timeout callback
// fires so the entry can be surfaced as failed instead of sitting in
// pending forever.
type ackTracker struct {
	mu        sync.Mutex
	wait      time.Duration
	timers    map[string]*time.Timer
	onTimeout func(tempID string)
	closed    bool
}

func newAckTracker(wait time.Duration, onTimeout func(string)) *ackTracker {
	if wait == 0 {
		wait = 10 * time.Second
	}
	return &ackTracker{
		wait:      wait,
		timers:    make(map[string]*time.Timer),
		onTimeout: onTimeout,
	}
}

func (a *ackTracker) Track(tempID string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return
	}
	a.timers[tempID] = time.AfterFunc(a.wait, func() {
		a.mu.Lock()
		_, live := a.timers[tempID]
		delete(a.timers, tempID)
		closed := a.closed
		a.mu.Unlock()
		if live && !closed {
			a.onTimeout(tempID)
		}
	})
}

// Ack cancels the wait; returns false for an unknown (already timed out
// or never tracked) tempID.
func (a *ackTracker) Ack(tempID string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	timer, ok := a.timers[tempID]
	if !ok {
		return false
	}
	timer.Stop()
	delete(a.timers, tempID)
	return true
}

func (a *ackTracker) Close() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.closed = true
	for id, timer := range a.timers {
		timer.Stop()
		delete(a.timers, id)
	}
}
