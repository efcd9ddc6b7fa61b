package entity

import "time"

// TypingSignal marks a user typing in a conversation until ExpiresAt
type TypingSignal struct {
	ConversationId string    `json:"conversation_id"`
	UserId         string    `json:"user_id"`
	ExpiresAt      time.Time `json:"expires_at"`
}

// TypingEvent is a remote start or stop notification
type TypingEvent struct {
	ConversationId string `json:"conversation_id"`
	UserId         string `json:"user_id"`
	Typing         bool   `json:"typing"`
}

// ReadReceipt marks messages of a conversation read by a user
type ReadReceipt struct {
	ConversationId string `json:"conversation_id"`
	UserId         string `json:"user_id"`
	UpToMessageId  string `json:"up_to_message_id,omitempty"`
	// UpToSeq is the upstream sequence of UpToMessageId, when known
	UpToSeq int64     `json:"up_to_seq,omitempty"`
	All     bool      `json:"all"`
	ReadAt  time.Time `json:"read_at"`
}

// DeletionEvent reports a message removed remotely
type DeletionEvent struct {
	ConversationId string `json:"conversation_id"`
	MessageId      string `json:"message_id"`
}

// PresenceStatus is the basic presence state of a user
type PresenceStatus string

const (
	PresenceOffline PresenceStatus = "offline"
	PresenceOnline  PresenceStatus = "online"
	PresenceAway    PresenceStatus = "away"
)

// Presence is the last known presence of a user
type Presence struct {
	UserId   string         `json:"user_id"`
	Status   PresenceStatus `json:"status"`
	LastSeen time.Time      `json:"last_seen"`
}
