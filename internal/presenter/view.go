package presenter

import (
	"sort"
	"time"

	"github.com/mbeoliero/nexosync/internal/entity"
)

// PreviewLength is the rune budget of a conversation preview
const PreviewLength = 60

// Lookups supplies the transient state a view needs besides the store snapshot
type Lookups struct {
	Self string
	Now  time.Time
	// Typing returns the ids of users typing in a conversation
	Typing func(conversationId string) []string
	// Online reports a user's presence
	Online func(userId string) bool
	// SeenBy returns the users who read a message
	SeenBy func(conversationId, messageId string) []string
}

// ConversationView is one row of the conversation list
type ConversationView struct {
	Id             string    `json:"id"`
	Type           string    `json:"type"`
	DisplayName    string    `json:"display_name"`
	Avatar         string    `json:"avatar"`
	Preview        string    `json:"preview"`
	LastActivity   string    `json:"last_activity"`
	LastActivityAt time.Time `json:"last_activity_at"`
	Unread         int64     `json:"unread"`
	Archived       bool      `json:"archived"`
	Typing         string    `json:"typing,omitempty"`
	PeerOnline     bool      `json:"peer_online"`
}

// AttachmentView is an attachment as rendered
type AttachmentView struct {
	Url      string `json:"url"`
	Name     string `json:"name,omitempty"`
	MimeType string `json:"mime_type,omitempty"`
	Size     string `json:"size,omitempty"`
}

// MessageView is one row of the message list
type MessageView struct {
	Id           string           `json:"id"`
	ClientTempId string           `json:"client_temp_id,omitempty"`
	SenderId     string           `json:"sender_id"`
	SenderName   string           `json:"sender_name"`
	Content      string           `json:"content"`
	Type         int32            `json:"type"`
	Attachments  []AttachmentView `json:"attachments,omitempty"`
	Status       string           `json:"status"`
	Timestamp    string           `json:"timestamp"`
	CreatedAt    time.Time        `json:"created_at"`
	Mine         bool             `json:"mine"`
	Deleted      bool             `json:"deleted"`
	Retryable    bool             `json:"retryable"`
	Error        string           `json:"error,omitempty"`
	SeenBy       []string         `json:"seen_by,omitempty"`
}

// MapConversation builds one conversation row
func MapConversation(conv *entity.Conversation, l Lookups) ConversationView {
	v := ConversationView{
		Id:             conv.Id,
		Type:           conv.Type.String(),
		DisplayName:    DisplayName(conv, l.Self),
		Avatar:         Avatar(conv, l.Self),
		Preview:        Preview(conv.LastMessage, l.Self, PreviewLength),
		LastActivity:   RelativeTime(conv.LastActivityAt, l.Now),
		LastActivityAt: conv.LastActivityAt,
		Unread:         conv.Unread(l.Self),
		Archived:       conv.Archived,
	}
	if l.Typing != nil {
		ids := l.Typing(conv.Id)
		names := make([]string, 0, len(ids))
		for _, id := range ids {
			names = append(names, SenderName(conv, id))
		}
		v.Typing = TypingText(names)
	}
	if l.Online != nil && conv.Type == entity.ConversationTypeDirect {
		if peerId := conv.PeerId(l.Self); peerId != "" {
			v.PeerOnline = l.Online(peerId)
		}
	}
	return v
}

// MapConversations builds the conversation list, most recent activity first
func MapConversations(convs []*entity.Conversation, l Lookups) []ConversationView {
	views := make([]ConversationView, 0, len(convs))
	for _, c := range convs {
		if c != nil {
			views = append(views, MapConversation(c, l))
		}
	}
	sort.SliceStable(views, func(i, j int) bool {
		if views[i].LastActivityAt.Equal(views[j].LastActivityAt) {
			return views[i].Id < views[j].Id
		}
		return views[i].LastActivityAt.After(views[j].LastActivityAt)
	})
	return views
}

// MapMessages builds the message list of a conversation, keeping the given order
func MapMessages(conv *entity.Conversation, msgs []*entity.Message, l Lookups) []MessageView {
	views := make([]MessageView, 0, len(msgs))
	for _, m := range msgs {
		if m == nil {
			continue
		}
		v := MessageView{
			Id:           m.Id,
			ClientTempId: m.ClientTempId,
			SenderId:     m.SenderId,
			SenderName:   SenderName(conv, m.SenderId),
			Content:      m.Content,
			Type:         m.Type,
			Status:       string(m.Status),
			Timestamp:    RelativeTime(m.CreatedAt, l.Now),
			CreatedAt:    m.CreatedAt,
			Mine:         m.SenderId == l.Self,
			Deleted:      m.IsDeleted,
			Retryable:    m.Status == entity.MessageStatusFailed && !m.IsDeleted,
			Error:        m.LastError,
		}
		if m.IsDeleted {
			v.Content = ""
		}
		for _, a := range m.Attachments {
			v.Attachments = append(v.Attachments, AttachmentView{Url: a.Url, Name: a.Name, MimeType: a.MimeType, Size: FileSize(a.Size)})
		}
		if v.Mine && l.SeenBy != nil && m.IsConfirmed() {
			v.SeenBy = l.SeenBy(m.ConversationId, m.Id)
		}
		views = append(views, v)
	}
	return views
}
