package session

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTracker_SnapshotThenIncremental(t *testing.T) {
	tr := NewTracker(time.Minute, nil)
	defer tr.Close()

	tr.ApplySnapshot([]string{"u1", "u2"})
	assert.True(t, tr.IsOnline("u1"))
	assert.True(t, tr.IsOnline("u2"))
	assert.False(t, tr.IsOnline("u3"))

	// incremental events are authoritative, last write wins
	tr.SetOnline("u1", false)
	assert.False(t, tr.IsOnline("u1"))
	tr.SetOnline("u3", true)
	assert.True(t, tr.IsOnline("u3"))
}

func TestTracker_SecondSnapshotReplaces(t *testing.T) {
	tr := NewTracker(time.Minute, nil)
	defer tr.Close()

	tr.ApplySnapshot([]string{"u1"})
	tr.ApplySnapshot([]string{"u2"})
	assert.False(t, tr.IsOnline("u1"))
	assert.True(t, tr.IsOnline("u2"))
}

func TestTracker_TypingTakesDisplayPrecedence(t *testing.T) {
	tr := NewTracker(time.Minute, nil)
	defer tr.Close()

	assert.Equal(t, "Offline", tr.StatusText("u1"))
	tr.SetOnline("u1", true)
	assert.Equal(t, "Online", tr.StatusText("u1"))
	tr.SetTyping("u1", true)
	assert.Equal(t, "typing…", tr.StatusText("u1"))
	tr.SetTyping("u1", false)
	assert.Equal(t, "Online", tr.StatusText("u1"))
}

func TestTracker_TypingAutoExpiry(t *testing.T) {
	tr := NewTracker(40*time.Millisecond, nil)
	defer tr.Close()

	tr.SetTyping("u1", true)
	assert.True(t, tr.IsTyping("u1"))

	// no refresh arrives (partner dropped): indicator clears on its own
	time.Sleep(150 * time.Millisecond)
	assert.False(t, tr.IsTyping("u1"))
}

func TestTracker_OfflineClearsTyping(t *testing.T) {
	tr := NewTracker(time.Minute, nil)
	defer tr.Close()

	tr.SetTyping("u1", true)
	tr.SetOnline("u1", false)
	assert.False(t, tr.IsTyping("u1"))
	assert.Equal(t, "Offline", tr.StatusText("u1"))
}

func TestTracker_ChangeNotifications(t *testing.T) {
	n := 0
	tr := NewTracker(time.Minute, func() { n++ })
	defer tr.Close()

	tr.ApplySnapshot([]string{"u1"})
	tr.SetOnline("u2", true)
	tr.SetTyping("u2", true)
	assert.Equal(t, 3, n)
}

func TestTracker_LateEventsAfterClose(t *testing.T) {
	n := 0
	tr := NewTracker(time.Minute, func() { n++ })
	tr.Close()

	// events racing the teardown must neither mutate state nor notify
	tr.ApplySnapshot([]string{"u1"})
	tr.SetOnline("u2", true)
	tr.SetTyping("u3", true)

	assert.Zero(t, n)
	assert.False(t, tr.IsOnline("u1"))
	assert.False(t, tr.IsOnline("u2"))
	assert.False(t, tr.IsTyping("u3"))
	assert.Equal(t, "Offline", tr.StatusText("u1"))
}
