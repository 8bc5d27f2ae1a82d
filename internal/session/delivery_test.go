package session

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestAckTracker_TimeoutFires(t *testing.T) {
	var mu sync.Mutex
	var fired []string
	a := newAckTracker(30*time.Millisecond, func(tempID string) {
		mu.Lock()
		fired = append(fired, tempID)
		mu.Unlock()
	})
	defer a.Close()

	a.Track("tmp-1")
	time.Sleep(150 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"tmp-1"}, fired)
}

func TestAckTracker_AckCancelsTimeout(t *testing.T) {
	var mu sync.Mutex
	fired := 0
	a := newAckTracker(30*time.Millisecond, func(string) {
		mu.Lock()
		fired++
		mu.Unlock()
	})
	defer a.Close()

	a.Track("tmp-1")
	assert.True(t, a.Ack("tmp-1"))
	assert.False(t, a.Ack("tmp-1"))

	time.Sleep(100 * time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	assert.Zero(t, fired)
}

func TestAckTracker_CloseSilencesTimers(t *testing.T) {
	var mu sync.Mutex
	fired := 0
	a := newAckTracker(30*time.Millisecond, func(string) {
		mu.Lock()
		fired++
		mu.Unlock()
	})

	a.Track("tmp-1")
	a.Close()

	time.Sleep(100 * time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	assert.Zero(t, fired)
}
