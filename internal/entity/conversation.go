package entity

import (
	"time"

	"github.com/mbeoliero/nexosync/pkg/constant"
)

// ConversationType mirrors the upstream session type
type ConversationType int32

const (
	ConversationTypeDirect ConversationType = constant.SessionTypeSingle
	ConversationTypeGroup  ConversationType = constant.SessionTypeGroup
)

func (t ConversationType) String() string {
	if t == ConversationTypeGroup {
		return "group"
	}
	return "direct"
}

// Participant represents a conversation member as seen by the engine
type Participant struct {
	UserId   string `json:"user_id"`
	Nickname string `json:"nickname"`
	Avatar   string `json:"avatar"`
}

// Conversation represents a conversation held by the store
type Conversation struct {
	Id             string           `json:"id"`
	Type           ConversationType `json:"type"`
	Title          string           `json:"title,omitempty"`
	Avatar         string           `json:"avatar,omitempty"`
	Participants   []Participant    `json:"participants"`
	LastMessageId  string           `json:"last_message_id,omitempty"`
	LastMessage    *Message         `json:"last_message,omitempty"`
	LastActivityAt time.Time        `json:"last_activity_at"`
	UnreadCounts   map[string]int64 `json:"unread_counts"`
	Archived       bool             `json:"archived"`
	// Stub is set until a fetch fills a conversation first seen through an event
	Stub bool `json:"stub"`
}

// NewStubConversation creates a placeholder for an unknown conversation Id
func NewStubConversation(conversationId string) *Conversation {
	return &Conversation{
		Id:           conversationId,
		Type:         ConversationTypeOf(conversationId),
		UnreadCounts: make(map[string]int64),
		Stub:         true,
	}
}

// Unread returns the unread count of userId, never negative
func (c *Conversation) Unread(userId string) int64 {
	if n := c.UnreadCounts[userId]; n > 0 {
		return n
	}
	return 0
}

// Participant returns the member with userId
func (c *Conversation) Participant(userId string) (Participant, bool) {
	for _, p := range c.Participants {
		if p.UserId == userId {
			return p, true
		}
	}
	return Participant{}, false
}

// HasParticipant reports whether userId is a known member
func (c *Conversation) HasParticipant(userId string) bool {
	_, ok := c.Participant(userId)
	return ok
}

// PeerId returns the other member of a direct conversation
func (c *Conversation) PeerId(self string) string {
	if c.Type != ConversationTypeDirect {
		return ""
	}
	for _, p := range c.Participants {
		if p.UserId != self {
			return p.UserId
		}
	}
	return PeerOf(c.Id, self)
}

// Clone returns a deep copy
func (c *Conversation) Clone() *Conversation {
	if c == nil {
		return nil
	}
	cp := *c
	cp.Participants = append([]Participant(nil), c.Participants...)
	cp.UnreadCounts = make(map[string]int64, len(c.UnreadCounts))
	for k, v := range c.UnreadCounts {
		cp.UnreadCounts[k] = v
	}
	cp.LastMessage = c.LastMessage.Clone()
	return &cp
}
