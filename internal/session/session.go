package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/yourorg/support-chat/internal/chat"
)

var ErrClosed = errors.New("session closed")

type Config struct {
	BaseURL string // REST endpoint for history and uploads
	Token   string
	Self    chat.Participant

	AckWait        time.Duration // bounded wait before a send is surfaced as failed
	TypingIdle     time.Duration // keystroke debounce window
	TypingExpiry   time.Duration // receiver-side typing auto-expiry
	ErrorAutoClear time.Duration // transient error display window

	HTTPClient *http.Client
}

// Callbacks surface state changes to the owning screen. All callbacks may
// fire from the event-loop goroutine.
type Callbacks struct {
	// OnChange fires whenever the message sequence or presence view
	// changed and the screen should re-render.
	OnChange func()
	// OnError surfaces a transient failure; it is called again with an
	// empty string when the auto-clear window elapses.
	OnError func(msg string)
}

// Session owns one chat screen's client-side state: the message store,
// the presence view, typing emission, and the channel. It is discarded on
// unmount and rebuilt from server state on remount.
type Session struct {
	cfg  Config
	cb   Callbacks
	ch   Channel
	log  *zap.SugaredLogger
	http *http.Client

	store    *Store
	presence *Tracker
	acks     *ackTracker

	mu       sync.Mutex
	typing   map[string]*TypingEmitter // partner id -> emitter
	errTimer *time.Timer
	closed   bool
	done     chan struct{}
}

// New builds a session around an injected channel handle. The channel is
// owned by the session from here on and closed with it.
func New(cfg Config, ch Channel, log *zap.SugaredLogger, cb Callbacks) *Session {
	if cfg.ErrorAutoClear == 0 {
		cfg.ErrorAutoClear = 5 * time.Second
	}
	httpc := cfg.HTTPClient
	if httpc == nil {
		httpc = &http.Client{Timeout: 30 * time.Second}
	}
	s := &Session{
		cfg:    cfg,
		cb:     cb,
		ch:     ch,
		log:    log,
		http:   httpc,
		store:  NewStore(),
		typing: make(map[string]*TypingEmitter),
		done:   make(chan struct{}),
	}
	s.presence = NewTracker(cfg.TypingExpiry, s.notifyChange)
	s.acks = newAckTracker(cfg.AckWait, s.onAckTimeout)
	return s
}

// Connect registers the participant on the channel and starts consuming
// events. Call once.
func (s *Session) Connect() error {
	err := s.ch.Send(chat.NewEnvelope(chat.TypeRegister, chat.RegisterPayload{
		ID:   s.cfg.Self.ID,
		Role: s.cfg.Self.Role,
	}))
	if err != nil {
		return fmt.Errorf("register: %w", err)
	}
	go s.eventLoop()
	return nil
}

// Close tears the session down: channel closed, timers cancelled, late
// events and responses dropped.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	close(s.done)
	if s.errTimer != nil {
		s.errTimer.Stop()
	}
	emitters := make([]*TypingEmitter, 0, len(s.typing))
	for _, e := range s.typing {
		emitters = append(emitters, e)
	}
	s.mu.Unlock()

	for _, e := range emitters {
		e.Close()
	}
	s.acks.Close()
	s.presence.Close()
	return s.ch.Close()
}

func (s *Session) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Messages returns the current ordered conversation view.
func (s *Session) Messages() []chat.Message { return s.store.Messages() }

// StatusText returns the partner's display line ("typing…" wins).
func (s *Session) StatusText(partnerID string) string { return s.presence.StatusText(partnerID) }

// SendText appends an optimistic pending entry, emits the frame, and arms
// the ack wait. The returned tempID identifies the entry until the server
// assigns a permanent id.
func (s *Session) SendText(receiverID, body string) (string, error) {
	if s.isClosed() {
		return "", ErrClosed
	}
	tempID := uuid.NewString()
	s.store.AppendOptimistic(chat.Message{
		TempID:     tempID,
		SenderID:   s.cfg.Self.ID,
		ReceiverID: receiverID,
		Kind:       chat.KindText,
		Body:       body,
		Status:     chat.StatusPending,
		CreatedAt:  time.Now().UTC(),
	})
	s.notifyChange()

	// sending ends the typing burst immediately
	s.emitterFor(receiverID).Flush()

	s.acks.Track(tempID)
	err := s.ch.Send(chat.NewEnvelope(chat.TypeSendMessage, chat.SendMessagePayload{
		SenderID:   s.cfg.Self.ID,
		ReceiverID: receiverID,
		Body:       body,
		TempID:     tempID,
	}))
	if err != nil {
		s.surfaceError("failed to send message")
	}
	return tempID, nil
}

// Keystroke reports input activity toward a partner; emission is
// debounced by the typing emitter.
func (s *Session) Keystroke(partnerID string) {
	if s.isClosed() {
		return
	}
	s.emitterFor(partnerID).Keystroke()
}

// MarkSeen tells the server this participant has the conversation open.
func (s *Session) MarkSeen(partnerID string) error {
	if s.isClosed() {
		return ErrClosed
	}
	return s.ch.Send(chat.NewEnvelope(chat.TypeMarkSeen, chat.MarkSeenPayload{
		SenderID:   s.cfg.Self.ID,
		ReceiverID: partnerID,
	}))
}

// LoadHistory fetches the conversation and replaces the local sequence.
// On failure the previous sequence is left intact and the error is
// returned for a retry affordance.
func (s *Session) LoadHistory(ctx context.Context, partnerID string) error {
	url := fmt.Sprintf("%s/v1/conversations/%s/messages", s.cfg.BaseURL, partnerID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+s.cfg.Token)

	resp, err := s.http.Do(req)
	if err != nil {
		return fmt.Errorf("history fetch: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("history fetch: status %d", resp.StatusCode)
	}

	var out struct {
		Data []chat.Message `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return fmt.Errorf("history decode: %w", err)
	}
	if s.isClosed() {
		// late response after unmount, drop it
		return ErrClosed
	}
	s.store.Replace(out.Data)
	s.notifyChange()
	return nil
}

func (s *Session) emitterFor(partnerID string) *TypingEmitter {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.typing[partnerID]
	if !ok {
		e = NewTypingEmitter(s.cfg.TypingIdle, func(isTyping bool) {
			_ = s.ch.Send(chat.NewEnvelope(chat.TypeTyping, chat.TypingPayload{
				SenderID:   s.cfg.Self.ID,
				ReceiverID: partnerID,
				IsTyping:   isTyping,
			}))
		})
		s.typing[partnerID] = e
	}
	return e
}

func (s *Session) eventLoop() {
	for env := range s.ch.Events() {
		if s.isClosed() {
			return
		}
		s.handleEvent(env)
	}
	// channel closed underneath us
	if !s.isClosed() {
		if err := s.ch.Err(); err != nil {
			s.log.Warnw("channel closed", "err", err)
			s.surfaceError("connection lost")
		}
	}
}

func (s *Session) handleEvent(env chat.Envelope) {
	switch env.Type {
	case chat.TypeNewMessage:
		var m chat.Message
		if err := json.Unmarshal(env.Payload, &m); err != nil {
			return
		}
		if s.store.AppendIncoming(m) {
			// a fresh message supersedes any typing indicator
			s.presence.SetTyping(m.SenderID, false)
			s.notifyChange()
		}
	case chat.TypeMessageSent:
		var pl chat.MessageSentPayload
		if err := json.Unmarshal(env.Payload, &pl); err != nil {
			return
		}
		s.acks.Ack(pl.TempID)
		if s.store.MarkSent(pl.TempID, pl.ID, pl.CreatedAt) {
			s.notifyChange()
		}
	case chat.TypeMessageDelivered:
		var pl chat.MessageDeliveredPayload
		if err := json.Unmarshal(env.Payload, &pl); err != nil {
			return
		}
		changed := false
		if pl.ID != "" {
			changed = s.store.MarkDelivered(pl.ID) > 0
		}
		if !changed && pl.TempID != "" {
			// the entry may not carry its permanent id yet
			changed = s.store.MarkDeliveredTemp(pl.TempID)
		}
		if changed {
			s.notifyChange()
		}
	case chat.TypeMessagesDelivered:
		var pl chat.MessagesDeliveredPayload
		if err := json.Unmarshal(env.Payload, &pl); err != nil {
			return
		}
		if s.store.MarkDelivered(pl.IDs...) > 0 {
			s.notifyChange()
		}
	case chat.TypeMessagesSeen:
		var pl chat.MessagesSeenPayload
		if err := json.Unmarshal(env.Payload, &pl); err != nil {
			return
		}
		if s.store.MarkSeenBy(s.cfg.Self.ID, pl.By) > 0 {
			s.notifyChange()
		}
	case chat.TypeUserTyping:
		var pl chat.UserTypingPayload
		if err := json.Unmarshal(env.Payload, &pl); err != nil {
			return
		}
		s.presence.SetTyping(pl.ID, pl.IsTyping)
	case chat.TypeOnlineUsers:
		var pl chat.OnlineUsersPayload
		if err := json.Unmarshal(env.Payload, &pl); err != nil {
			return
		}
		s.presence.ApplySnapshot(pl.IDs)
	case chat.TypeUserOnline:
		var pl chat.UserOnlinePayload
		if err := json.Unmarshal(env.Payload, &pl); err != nil {
			return
		}
		s.presence.SetOnline(pl.ID, pl.Online)
	default:
		// unknown frame, ignore
	}
}

func (s *Session) onAckTimeout(tempID string) {
	if s.isClosed() {
		return
	}
	if s.store.MarkFailed(tempID) {
		s.notifyChange()
		s.surfaceError("failed to send")
	}
}

// surfaceError reports a transient failure and schedules the auto-clear.
func (s *Session) surfaceError(msg string) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	if s.errTimer != nil {
		s.errTimer.Stop()
	}
	s.errTimer = time.AfterFunc(s.cfg.ErrorAutoClear, func() {
		if s.isClosed() {
			return
		}
		if s.cb.OnError != nil {
			s.cb.OnError("")
		}
	})
	s.mu.Unlock()

	if s.cb.OnError != nil {
		s.cb.OnError(msg)
	}
}

func (s *Session) notifyChange() {
	if s.cb.OnChange != nil {
		s.cb.OnChange()
	}
}
