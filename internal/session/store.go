package session

import (
	"sync"
	"time"

	"github.com/yourorg/support-chat/internal/chat"
)

// Store is the ordered local view of a conversation, reconciled against
// server-confirmed state. It is owned by one session instance and rebuilt
// from server history on every mount.
type Store struct {
	mu   sync.Mutex
	msgs []chat.Message
}

func NewStore() *Store {
	return &Store{}
}

// statusRank orders the forward-only delivery states. failed is terminal
// and reachable only from the optimistic states.
func statusRank(s chat.Status) int {
	switch s {
	case chat.StatusPending, chat.StatusSending:
		return 0
	case chat.StatusSent:
		return 1
	case chat.StatusDelivered:
		return 2
	case chat.StatusSeen:
		return 3
	case chat.StatusFailed:
		return 4
	}
	return 0
}

// Replace swaps in a freshly fetched history. Callers must not invoke it
// on a failed fetch; the previous sequence stays intact in that case.
func (s *Store) Replace(history []chat.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.msgs = append([]chat.Message(nil), history...)
}

// AppendIncoming inserts a pushed message idempotently: a second push
// with the same id (or, for id-less entries, the same createdAt+body) is
// dropped. Returns whether the message was inserted.
func (s *Store) AppendIncoming(m chat.Message) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.msgs {
		if m.ID != "" && s.msgs[i].ID == m.ID {
			return false
		}
		if m.ID == "" && s.msgs[i].ID == "" &&
			s.msgs[i].CreatedAt.Equal(m.CreatedAt) && s.msgs[i].Body == m.Body {
			return false
		}
	}
	s.insertOrdered(m)
	return true
}

// AppendOptimistic inserts a locally created entry before any network
// round trip, so the UI reflects the send immediately.
func (s *Store) AppendOptimistic(m chat.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.insertOrdered(m)
}

// Reconcile replaces the optimistic entry keyed by tempID with the
// confirmed copy, preserving its sequence position. If the confirmed id
// already exists elsewhere the optimistic entry is dropped instead, so at
// most one live entry per logical message remains.
func (s *Store) Reconcile(tempID string, confirmed chat.Message) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := -1
	for i := range s.msgs {
		if s.msgs[i].TempID == tempID {
			idx = i
			break
		}
	}
	if idx < 0 {
		// fall back to id equality
		for i := range s.msgs {
			if confirmed.ID != "" && s.msgs[i].ID == confirmed.ID {
				return false
			}
		}
		s.insertOrdered(confirmed)
		return true
	}
	if confirmed.ID != "" {
		for i := range s.msgs {
			if i != idx && s.msgs[i].ID == confirmed.ID {
				s.msgs = append(s.msgs[:idx], s.msgs[idx+1:]...)
				return true
			}
		}
	}
	confirmed.TempID = tempID
	if statusRank(confirmed.Status) < statusRank(s.msgs[idx].Status) {
		confirmed.Status = s.msgs[idx].Status
	}
	s.msgs[idx] = confirmed
	return true
}

// Remove deletes the optimistic entry for a rolled-back upload.
func (s *Store) Remove(tempID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.msgs {
		if s.msgs[i].TempID == tempID {
			s.msgs = append(s.msgs[:i], s.msgs[i+1:]...)
			return true
		}
	}
	return false
}

// MarkSent applies the server acknowledgment: the entry gains its
// permanent id and server timestamp, and moves pending -> sent. If an
// entry already carries the id, the pending copy is dropped.
func (s *Store) MarkSent(tempID, id string, createdAt time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := -1
	for i := range s.msgs {
		if s.msgs[i].TempID == tempID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return false
	}
	for i := range s.msgs {
		if i != idx && id != "" && s.msgs[i].ID == id {
			s.msgs = append(s.msgs[:idx], s.msgs[idx+1:]...)
			return true
		}
	}
	m := &s.msgs[idx]
	m.ID = id
	if !createdAt.IsZero() {
		m.CreatedAt = createdAt
	}
	if statusRank(chat.StatusSent) > statusRank(m.Status) {
		m.Status = chat.StatusSent
	}
	return true
}

// MarkDelivered flips every matching id sent -> delivered in one pass and
// returns how many entries changed. Out-of-order events are no-ops.
func (s *Store) MarkDelivered(ids ...string) int {
	set := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for i := range s.msgs {
		if _, ok := set[s.msgs[i].ID]; !ok {
			continue
		}
		if s.msgs[i].Status == chat.StatusSent {
			s.msgs[i].Status = chat.StatusDelivered
			n++
		}
	}
	return n
}

// MarkDeliveredTemp handles a delivered event that arrived before the
// confirming ack or upload response and so is keyed by tempId. The
// optimistic entry jumps straight to delivered; the late confirmation
// then keeps the higher status via Reconcile/MarkSent.
func (s *Store) MarkDeliveredTemp(tempID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.msgs {
		if s.msgs[i].TempID != tempID {
			continue
		}
		if statusRank(s.msgs[i].Status) < statusRank(chat.StatusDelivered) {
			s.msgs[i].Status = chat.StatusDelivered
			return true
		}
		return false
	}
	return false
}

// MarkSeenBy flips messages selfID sent to the viewing partner. Only
// entries not already seen (and not failed) change.
func (s *Store) MarkSeenBy(selfID, by string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for i := range s.msgs {
		m := &s.msgs[i]
		if m.SenderID != selfID || m.ReceiverID != by {
			continue
		}
		if m.Status == chat.StatusSeen || m.Status == chat.StatusFailed {
			continue
		}
		m.Status = chat.StatusSeen
		n++
	}
	return n
}

// MarkFailed flips an optimistic entry whose ack never arrived. Only
// pending/sending entries can fail; anything the server already
// acknowledged stays put.
func (s *Store) MarkFailed(tempID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.msgs {
		if s.msgs[i].TempID != tempID {
			continue
		}
		if statusRank(s.msgs[i].Status) == 0 {
			s.msgs[i].Status = chat.StatusFailed
			return true
		}
		return false
	}
	return false
}

// Messages returns a copy of the current ordered sequence.
func (s *Store) Messages() []chat.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]chat.Message(nil), s.msgs...)
}

func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.msgs)
}

// insertOrdered keeps createdAt ascending with ties broken by insertion
// order. Confirmations may race, so scanning from the tail keeps the
// visible sequence non-decreasing without reshuffling history.
func (s *Store) insertOrdered(m chat.Message) {
	i := len(s.msgs)
	for i > 0 && s.msgs[i-1].CreatedAt.After(m.CreatedAt) {
		i--
	}
	s.msgs = append(s.msgs, chat.Message{})
	copy(s.msgs[i+1:], s.msgs[i:])
	s.msgs[i] = m
}
