package model

import (
	"encoding/json"
	"time"
)

// Message directions.
const (
	DirectionInbound  = "inbound"
	DirectionOutbound = "outbound"
)

// Actor tags recorded on every message.
const (
	SentByHuman    = "human"
	SentByAI       = "ai"
	SentByDrip     = "drip"
	SentByCustomer = "customer"
)

// Message delivery statuses.
const (
	MessageStatusPending   = "pending"
	MessageStatusSent      = "sent"
	MessageStatusFailed    = "failed"
	MessageStatusDelivered = "delivered"
)

// Message is one entry in the append-only per-conversation message log.
type Message struct {
	ID             int64     `json:"-"`
	MessageID      string    `json:"message_id"`
	ConversationID string    `json:"conversation_id"`
	Direction      string    `json:"direction"`
	Content        string    `json:"content"`
	SentBy         string    `json:"sent_by"`
	Status         string    `json:"status"`
	CreatedAt      time.Time `json:"created_at"`
}

// IsQuestion reports whether the message content reads as a question. The
// drip ack short-circuit only fires when the prior outbound was not one.
func (m *Message) IsQuestion() bool {
	content := m.Content
	for i := len(content) - 1; i >= 0; i-- {
		switch content[i] {
		case ' ', '\n', '\t':
			continue
		case '?':
			return true
		default:
			return false
		}
	}
	return false
}

func (m *Message) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}
