package chatlog

import "time"

type Direction string

const (
	DirectionInbound  Direction = "inbound"
	DirectionOutbound Direction = "outbound"
)

type ChatStatus string

const (
	ChatActive   ChatStatus = "active"
	ChatArchived ChatStatus = "archived"
)

// Chat is one conversation between a clinic and a canonical phone identity.
type Chat struct {
	ID            string     `json:"id"`
	TenantID      string     `json:"tenant_id"`
	Phone         string     `json:"phone"`
	DisplayName   string     `json:"display_name"`
	LastMessage   string     `json:"last_message"`
	LastMessageAt time.Time  `json:"last_message_at"`
	Unread        int        `json:"unread"`
	Status        ChatStatus `json:"status"`
}

// Message is append-only; only the delivery status may change after insert.
type Message struct {
	ID         string    `json:"id"`
	ChatID     string    `json:"chat_id"`
	Direction  Direction `json:"direction"`
	ExternalID string    `json:"external_id,omitempty"`
	Body       string    `json:"body"`
	Timestamp  time.Time `json:"timestamp"`
	Status     string    `json:"status"`
}

// Record is the input for persisting one message.
type Record struct {
	TenantID    string
	Phone       string
	DisplayName string
	ExternalID  string
	Body        string
	Timestamp   time.Time
	Direction   Direction
}
