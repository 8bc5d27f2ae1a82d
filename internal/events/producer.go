package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/yourorg/support-chat/internal/chat"
)

// Event types published for downstream consumers (notifications, audit).
const (
	EventMessageSent      = "message.sent"
	EventMessageDelivered = "message.delivered"
	EventMessageSeen      = "message.seen"
)

type MessageEvent struct {
	Type           string    `json:"type"`
	MessageID      string    `json:"message_id,omitempty"`
	MessageIDs     []string  `json:"message_ids,omitempty"`
	ConversationID string    `json:"conversation_id"`
	SenderID       string    `json:"sender_id,omitempty"`
	ReceiverID     string    `json:"receiver_id,omitempty"`
	At             time.Time `json:"at"`
}

type Producer struct {
	writer *kafka.Writer
}

func NewProducer(brokers []string, topic string) *Producer {
	w := &kafka.Writer{
		Addr:     kafka.TCP(brokers...),
		Topic:    topic,
		Balancer: &kafka.LeastBytes{},
	}
	return &Producer{writer: w}
}

func (p *Producer) Publish(ctx context.Context, ev MessageEvent) error {
	if ev.At.IsZero() {
		ev.At = time.Now().UTC()
	}
	b, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(ev.ConversationID),
		Value: b,
		Time:  ev.At,
	})
}

func (p *Producer) PublishSent(ctx context.Context, m *chat.Message) error {
	return p.Publish(ctx, MessageEvent{
		Type:           EventMessageSent,
		MessageID:      m.ID,
		ConversationID: m.ConversationID,
		SenderID:       m.SenderID,
		ReceiverID:     m.ReceiverID,
	})
}

func (p *Producer) Close() error { return p.writer.Close() }
