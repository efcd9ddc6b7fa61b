package entity

// ConversationPage is one page of the conversation list
type ConversationPage struct {
	Conversations []*Conversation `json:"conversations"`
	NextCursor    string          `json:"next_cursor,omitempty"`
	HasMore       bool            `json:"has_more"`
}

// MessagePage is one page of history, in any order; NextCursor points to older messages
type MessagePage struct {
	Messages   []*Message `json:"messages"`
	NextCursor string     `json:"next_cursor,omitempty"`
	HasMore    bool       `json:"has_more"`
}

// SendRequest is what the store hands to the History API for a send
type SendRequest struct {
	ConversationId   string           `json:"conversation_id"`
	ConversationType ConversationType `json:"conversation_type"`
	PeerId           string           `json:"peer_id,omitempty"`
	GroupId          string           `json:"group_id,omitempty"`
	ClientTempId     string           `json:"client_temp_id"`
	Content          string           `json:"content"`
	Type             int32            `json:"type"`
	Attachments      []Attachment     `json:"attachments,omitempty"`
}
