package hub

import (
	"context"
	"encoding/json"
	"time"

	"github.com/gofiber/websocket/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/yourorg/support-chat/internal/chat"
	"github.com/yourorg/support-chat/internal/events"
	"github.com/yourorg/support-chat/internal/metrics"
	"github.com/yourorg/support-chat/internal/repository"
)

type Options struct {
	PingInterval  time.Duration
	WriteDeadline time.Duration
	MaxMsgSize    int64
	RateLimit     int
}

// Presence is what the handler needs from the presence store.
type Presence interface {
	SetOnline(ctx context.Context, id string) error
	SetOffline(ctx context.Context, id string) error
	Refresh(ctx context.Context, id string) error
	IsOnline(ctx context.Context, id string) (bool, error)
	OnlineIDs(ctx context.Context) ([]string, error)
}

// Handler terminates one websocket session per participant and routes the
// protocol frames: register, sendMessage, typing, markSeen inbound;
// everything in the chat envelope vocabulary outbound.
type Handler struct {
	hub      *Hub
	repo     repository.MessageRepository
	presence Presence
	producer *events.Producer
	log      *zap.SugaredLogger
	opts     Options
}

func NewHandler(h *Hub, repo repository.MessageRepository, ps Presence, prod *events.Producer, log *zap.SugaredLogger, opts Options) *Handler {
	if opts.PingInterval == 0 {
		opts.PingInterval = 25 * time.Second
	}
	if opts.WriteDeadline == 0 {
		opts.WriteDeadline = 10 * time.Second
	}
	if opts.MaxMsgSize == 0 {
		opts.MaxMsgSize = 64 * 1024
	}
	return &Handler{hub: h, repo: repo, presence: ps, producer: prod, log: log, opts: opts}
}

// Serve runs the session loop for an upgraded connection. The participant
// identity was verified before the upgrade and stashed in conn locals.
func (h *Handler) Serve(conn *websocket.Conn) {
	p, ok := conn.Locals("participant").(chat.Participant)
	if !ok || p.ID == "" {
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"error":"unauthorized"}`))
		_ = conn.Close()
		return
	}

	ctx := context.Background()
	client := NewClient(conn, p, uuid.NewString(), h.opts.RateLimit)
	first := h.hub.Add(client)
	metrics.ConnectsTotal.Inc()

	if err := h.presence.SetOnline(ctx, p.ID); err != nil {
		h.log.Warnw("presence set online", "user", p.ID, "err", err)
	}
	if first {
		h.hub.Broadcast(chat.NewEnvelope(chat.TypeUserOnline, chat.UserOnlinePayload{ID: p.ID, Online: true}))
	}

	go client.writePump(h.opts.PingInterval, h.opts.WriteDeadline)

	h.readLoop(ctx, client)

	// cleanup on disconnect
	last := h.hub.Remove(client)
	client.Close()
	if last {
		if err := h.presence.SetOffline(ctx, p.ID); err != nil {
			h.log.Warnw("presence set offline", "user", p.ID, "err", err)
		}
		h.hub.Broadcast(chat.NewEnvelope(chat.TypeUserOnline, chat.UserOnlinePayload{ID: p.ID, Online: false}))
	}
}

func (h *Handler) readLoop(ctx context.Context, client *Client) {
	conn := client.conn
	conn.SetReadLimit(h.opts.MaxMsgSize)

	for {
		mt, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		if mt != websocket.TextMessage {
			continue
		}
		if !client.allow() {
			continue
		}
		_ = h.presence.Refresh(ctx, client.UserID)

		var env chat.Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			continue
		}

		switch env.Type {
		case chat.TypeRegister:
			h.onRegister(ctx, client)
		case chat.TypeSendMessage:
			var pl chat.SendMessagePayload
			if err := json.Unmarshal(env.Payload, &pl); err != nil {
				continue
			}
			h.onSendMessage(ctx, client, pl)
		case chat.TypeTyping:
			var pl chat.TypingPayload
			if err := json.Unmarshal(env.Payload, &pl); err != nil {
				continue
			}
			h.hub.SendToUser(ctx, pl.ReceiverID, chat.NewEnvelope(chat.TypeUserTyping,
				chat.UserTypingPayload{ID: client.UserID, IsTyping: pl.IsTyping}))
		case chat.TypeMarkSeen:
			var pl chat.MarkSeenPayload
			if err := json.Unmarshal(env.Payload, &pl); err != nil {
				continue
			}
			h.onMarkSeen(ctx, client, pl.ReceiverID)
		default:
			// unknown frame, ignore
		}
	}
}

// onRegister answers the client's register signal: a presence snapshot,
// then a catch-up pass marking everything addressed to this participant
// delivered in one batch per sender.
func (h *Handler) onRegister(ctx context.Context, client *Client) {
	ids, err := h.presence.OnlineIDs(ctx)
	if err != nil {
		h.log.Warnw("presence snapshot", "err", err)
		ids = []string{}
	}
	h.hub.SendToUser(ctx, client.UserID, chat.NewEnvelope(chat.TypeOnlineUsers, chat.OnlineUsersPayload{IDs: ids}))

	bySender, err := h.repo.UndeliveredFor(ctx, client.UserID)
	if err != nil {
		h.log.Warnw("undelivered lookup", "user", client.UserID, "err", err)
		return
	}
	for sender, msgIDs := range bySender {
		if err := h.repo.MarkDelivered(ctx, msgIDs); err != nil {
			h.log.Warnw("mark delivered", "err", err)
			continue
		}
		metrics.DeliveryAcks.Inc()
		h.hub.SendToUser(ctx, sender, chat.NewEnvelope(chat.TypeMessagesDelivered,
			chat.MessagesDeliveredPayload{IDs: msgIDs}))
		if h.producer != nil {
			_ = h.producer.Publish(ctx, events.MessageEvent{
				Type:           events.EventMessageDelivered,
				MessageIDs:     msgIDs,
				ConversationID: chat.ConversationID(sender, client.UserID),
				ReceiverID:     client.UserID,
			})
		}
	}
}

func (h *Handler) onSendMessage(ctx context.Context, client *Client, pl chat.SendMessagePayload) {
	if pl.ReceiverID == "" || pl.Body == "" {
		return
	}
	// sender identity comes from the verified token, not the payload
	m := &chat.Message{
		TempID:     pl.TempID,
		SenderID:   client.UserID,
		ReceiverID: pl.ReceiverID,
		Kind:       chat.KindText,
		Body:       pl.Body,
		Status:     chat.StatusSent,
	}
	m, err := h.repo.InsertMessage(ctx, m)
	if err != nil {
		h.log.Errorw("insert message", "err", err)
		return
	}
	metrics.MessagesRouted.Inc()

	// ack the sender on every socket they hold
	h.hub.SendToUser(ctx, client.UserID, chat.NewEnvelope(chat.TypeMessageSent,
		chat.MessageSentPayload{TempID: pl.TempID, ID: m.ID, CreatedAt: m.CreatedAt}))

	h.hub.SendToUser(ctx, pl.ReceiverID, chat.NewEnvelope(chat.TypeNewMessage, m))

	online, err := h.presence.IsOnline(ctx, pl.ReceiverID)
	if err == nil && online {
		if err := h.repo.MarkDelivered(ctx, []string{m.ID}); err == nil {
			metrics.DeliveryAcks.Inc()
			h.hub.SendToUser(ctx, client.UserID, chat.NewEnvelope(chat.TypeMessageDelivered,
				chat.MessageDeliveredPayload{ID: m.ID, TempID: pl.TempID}))
		}
	}

	if h.producer != nil {
		if err := h.producer.PublishSent(ctx, m); err != nil {
			h.log.Warnw("publish message event", "err", err)
		}
	}
}

func (h *Handler) onMarkSeen(ctx context.Context, client *Client, partnerID string) {
	changed, err := h.repo.MarkSeen(ctx, client.UserID, partnerID)
	if err != nil {
		h.log.Warnw("mark seen", "err", err)
		return
	}
	if !changed {
		return
	}
	h.hub.SendToUser(ctx, partnerID, chat.NewEnvelope(chat.TypeMessagesSeen,
		chat.MessagesSeenPayload{By: client.UserID}))
	if h.producer != nil {
		_ = h.producer.Publish(ctx, events.MessageEvent{
			Type:           events.EventMessageSeen,
			ConversationID: chat.ConversationID(client.UserID, partnerID),
			SenderID:       partnerID,
			ReceiverID:     client.UserID,
		})
	}
}
