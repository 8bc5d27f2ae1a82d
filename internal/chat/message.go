package chat

import (
	"sort"
	"strings"
	"time"
)

// Role of a participant on the support channel.
type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

type Participant struct {
	ID   string `json:"id"`
	Role Role   `json:"role"`
}

// Status is the delivery state of an outgoing message.
// Transitions only move forward; see session.Store.
type Status string

const (
	StatusPending   Status = "pending"
	StatusSending   Status = "sending" // optimistic attachment upload in flight
	StatusSent      Status = "sent"
	StatusDelivered Status = "delivered"
	StatusSeen      Status = "seen"
	StatusFailed    Status = "failed" // ack never arrived within the bounded wait
)

// Kind of message body.
type Kind string

const (
	KindText  Kind = "text"
	KindImage Kind = "image"
	KindFile  Kind = "file"
)

type Message struct {
	ID             string    `bson:"_id,omitempty" json:"id,omitempty"`
	TempID         string    `bson:"temp_id,omitempty" json:"temp_id,omitempty"`
	ConversationID string    `bson:"conversation_id" json:"conversation_id,omitempty"`
	SenderID       string    `bson:"sender_id" json:"sender_id"`
	ReceiverID     string    `bson:"receiver_id" json:"receiver_id"`
	Kind           Kind      `bson:"kind" json:"kind"`
	Body           string    `bson:"body" json:"body"`
	FileName       string    `bson:"file_name,omitempty" json:"file_name,omitempty"`
	FileURL        string    `bson:"file_url,omitempty" json:"file_url,omitempty"`
	ThumbURL       string    `bson:"thumb_url,omitempty" json:"thumb_url,omitempty"`
	Status         Status    `bson:"status" json:"status"`
	CreatedAt      time.Time `bson:"created_at" json:"created_at"`

	// PreviewPath is a local-only reference to the file picked for an
	// optimistic attachment entry. Never serialized.
	PreviewPath string `bson:"-" json:"-"`
}

type Conversation struct {
	ID        string    `bson:"_id" json:"id"`
	Members   []string  `bson:"members" json:"members"`
	CreatedAt time.Time `bson:"created_at" json:"created_at"`
	UpdatedAt time.Time `bson:"updated_at" json:"updated_at"`
}

// ConversationID derives the canonical id for the unordered {user, admin}
// pair so both sides address the same conversation.
func ConversationID(a, b string) string {
	pair := []string{a, b}
	sort.Strings(pair)
	return strings.Join(pair, ":")
}
