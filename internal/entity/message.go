package entity

import (
	"strings"
	"time"

	"github.com/mbeoliero/nexosync/pkg/constant"
)

// MessageStatus is the delivery state of a message
type MessageStatus string

const (
	MessageStatusPending   MessageStatus = "pending"
	MessageStatusSent      MessageStatus = "sent"
	MessageStatusDelivered MessageStatus = "delivered"
	MessageStatusRead      MessageStatus = "read"
	MessageStatusFailed    MessageStatus = "failed"
)

// Rank orders the successful states, failed ranks below pending
func (s MessageStatus) Rank() int {
	switch s {
	case MessageStatusPending:
		return 0
	case MessageStatusSent:
		return 1
	case MessageStatusDelivered:
		return 2
	case MessageStatusRead:
		return 3
	default:
		return -1
	}
}

// MessageContent represents the content of a message on the upstream wire
type MessageContent struct {
	Text   string `json:"text,omitempty"`
	Image  string `json:"image,omitempty"`
	Video  string `json:"video,omitempty"`
	Audio  string `json:"audio,omitempty"`
	File   string `json:"file,omitempty"`
	Custom string `json:"custom,omitempty"`
}

// Attachment represents an already uploaded file referenced by a message
type Attachment struct {
	Url      string `json:"url"`
	Name     string `json:"name,omitempty"`
	MimeType string `json:"mime_type,omitempty"`
	Size     int64  `json:"size,omitempty"`
}

// Message represents a message held by the store
type Message struct {
	Id             string        `json:"id"`
	ConversationId string        `json:"conversation_id"`
	SenderId       string        `json:"sender_id"`
	Content        string        `json:"content"`
	Type           int32         `json:"type"`
	Attachments    []Attachment  `json:"attachments,omitempty"`
	Status         MessageStatus `json:"status"`
	CreatedAt      time.Time     `json:"created_at"`
	ClientTempId   string        `json:"client_temp_id,omitempty"`
	Seq            int64         `json:"seq,omitempty"`
	IsDeleted      bool          `json:"is_deleted"`
	LastError      string        `json:"last_error,omitempty"`
}

// IsConfirmed reports whether the server has assigned an Id
func (m *Message) IsConfirmed() bool {
	return m.Id != "" && m.Id != m.ClientTempId
}

// UpgradeStatus moves the status forward only, reporting whether it changed
func (m *Message) UpgradeStatus(s MessageStatus) bool {
	if s.Rank() <= m.Status.Rank() {
		return false
	}
	m.Status = s
	return true
}

// Tombstone clears the message body while keeping its position
func (m *Message) Tombstone() {
	m.IsDeleted = true
	m.Content = ""
	m.Attachments = nil
}

// Clone returns a deep copy
func (m *Message) Clone() *Message {
	if m == nil {
		return nil
	}
	cp := *m
	cp.Attachments = append([]Attachment(nil), m.Attachments...)
	return &cp
}

// GetContent returns the upstream content for a message body
func GetContent(msgType int32, text string, attachments []Attachment) MessageContent {
	var c MessageContent
	var url string
	if len(attachments) > 0 {
		url = attachments[0].Url
	}
	switch msgType {
	case constant.MsgTypeImage:
		c.Image = url
	case constant.MsgTypeVideo:
		c.Video = url
	case constant.MsgTypeAudio:
		c.Audio = url
	case constant.MsgTypeFile:
		c.File = url
	case constant.MsgTypeCustom:
		c.Custom = text
		return c
	}
	c.Text = text
	return c
}

// SetContent fills text and attachments from upstream content
func (m *Message) SetContent(c MessageContent) {
	m.Content = c.Text
	m.Attachments = nil
	switch {
	case c.Image != "":
		m.Attachments = []Attachment{{Url: c.Image}}
	case c.Video != "":
		m.Attachments = []Attachment{{Url: c.Video}}
	case c.Audio != "":
		m.Attachments = []Attachment{{Url: c.Audio}}
	case c.File != "":
		m.Attachments = []Attachment{{Url: c.File}}
	}
	if m.Type == constant.MsgTypeCustom && c.Custom != "" {
		m.Content = c.Custom
	}
}

// MessageTypeFor picks the message type for an outgoing body
func MessageTypeFor(attachments []Attachment) int32 {
	if len(attachments) == 0 {
		return constant.MsgTypeText
	}
	switch mime := attachments[0].MimeType; {
	case strings.HasPrefix(mime, "image/"):
		return constant.MsgTypeImage
	case strings.HasPrefix(mime, "video/"):
		return constant.MsgTypeVideo
	case strings.HasPrefix(mime, "audio/"):
		return constant.MsgTypeAudio
	default:
		return constant.MsgTypeFile
	}
}
