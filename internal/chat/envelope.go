package chat

import (
	"encoding/json"
	"time"
)

// Envelope is the standard wire format for ws frames, both directions.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Client -> server frame types.
const (
	TypeRegister    = "register"
	TypeSendMessage = "sendMessage"
	TypeTyping      = "typing"
	TypeMarkSeen    = "markSeen"
)

// Server -> client frame types.
const (
	TypeNewMessage        = "newMessage"
	TypeMessageSent       = "messageSent"
	TypeMessageDelivered  = "messageDelivered"
	TypeMessagesDelivered = "messagesDelivered"
	TypeMessagesSeen      = "messagesSeen"
	TypeUserTyping        = "userTyping"
	TypeOnlineUsers       = "onlineUsers"
	TypeUserOnline        = "userOnline"
)

type RegisterPayload struct {
	ID   string `json:"id"`
	Role Role   `json:"role"`
}

type SendMessagePayload struct {
	SenderID   string `json:"sender_id"`
	ReceiverID string `json:"receiver_id"`
	Body       string `json:"body"`
	TempID     string `json:"temp_id"`
}

type TypingPayload struct {
	SenderID   string `json:"sender_id"`
	ReceiverID string `json:"receiver_id"`
	IsTyping   bool   `json:"is_typing"`
}

type MarkSeenPayload struct {
	SenderID   string `json:"sender_id"`   // the participant who viewed
	ReceiverID string `json:"receiver_id"` // the conversation partner
}

type MessageSentPayload struct {
	TempID    string    `json:"temp_id"`
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
}

type MessageDeliveredPayload struct {
	ID     string `json:"id,omitempty"`
	TempID string `json:"temp_id,omitempty"`
}

type MessagesDeliveredPayload struct {
	IDs []string `json:"ids"`
}

type MessagesSeenPayload struct {
	By string `json:"by"`
}

type UserTypingPayload struct {
	ID       string `json:"id"`
	IsTyping bool   `json:"is_typing"`
}

type OnlineUsersPayload struct {
	IDs []string `json:"ids"`
}

type UserOnlinePayload struct {
	ID     string `json:"id"`
	Online bool   `json:"online"`
}

// NewEnvelope marshals payload into an Envelope. Marshal errors cannot
// occur for the payload types above, so they are swallowed.
func NewEnvelope(typ string, payload any) Envelope {
	b, _ := json.Marshal(payload)
	return Envelope{Type: typ, Payload: b}
}
