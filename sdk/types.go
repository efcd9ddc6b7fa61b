package sdk

import "encoding/json"

// Response represents the standard API response
type Response struct {
	Code int             `json:"code"`
	Msg  string          `json:"msg"`
	Data json.RawMessage `json:"data,omitempty"`
}

// UserInfo represents public user info
type UserInfo struct {
	Id        string  `json:"id"`
	Nickname  string  `json:"nickname"`
	Avatar    string  `json:"avatar"`
	Extra     *string `json:"extra,omitempty"`
	CreatedAt int64   `json:"created_at"`
}

// MessageContent represents the content of a message
type MessageContent struct {
	Text   string `json:"text,omitempty"`
	Image  string `json:"image,omitempty"`
	Video  string `json:"video,omitempty"`
	Audio  string `json:"audio,omitempty"`
	File   string `json:"file,omitempty"`
	Custom string `json:"custom,omitempty"`
}

// MessageInfo represents message info
type MessageInfo struct {
	Id             int64          `json:"id"`
	ConversationId string         `json:"conversation_id"`
	Seq            int64          `json:"seq"`
	ClientMsgId    string         `json:"client_msg_id"`
	SenderId       string         `json:"sender_id"`
	SessionType    int32          `json:"session_type"`
	MsgType        int32          `json:"msg_type"`
	Content        MessageContent `json:"content"`
	SendAt         int64          `json:"send_at"`
	IsDeleted      bool           `json:"is_deleted,omitempty"`
}

// ConversationInfo represents conversation info
type ConversationInfo struct {
	ConversationId   string `json:"conversation_id"`
	ConversationType int32  `json:"conversation_type"`
	PeerUserId       string `json:"peer_user_id,omitempty"`
	GroupId          string `json:"group_id,omitempty"`
	RecvMsgOpt       int32  `json:"recv_msg_opt"`
	IsPinned         bool   `json:"is_pinned"`
	IsArchived       bool   `json:"is_archived"`
	UnreadCount      int64  `json:"unread_count"`
	MaxSeq           int64  `json:"max_seq"`
	ReadSeq          int64  `json:"read_seq"`
	UpdatedAt        int64  `json:"updated_at"`
}

// GroupInfo represents group info
type GroupInfo struct {
	Id            string `json:"id"`
	Name          string `json:"name"`
	Introduction  string `json:"introduction"`
	Avatar        string `json:"avatar"`
	Status        int32  `json:"status"`
	CreatorUserId string `json:"creator_user_id"`
	MemberCount   int64  `json:"member_count"`
	CreatedAt     int64  `json:"created_at"`
}

// GroupMember represents a member of a group
type GroupMember struct {
	GroupId       string `json:"group_id"`
	UserId        string `json:"user_id"`
	GroupNickname string `json:"group_nickname"`
	GroupAvatar   string `json:"group_avatar"`
	RoleLevel     int32  `json:"role_level"`
	Status        int32  `json:"status"`
	JoinedAt      int64  `json:"joined_at"`
}

// OnlineStatus
type OnlineStatus struct {
	UserId   string `json:"user_id"`
	Status   int    `json:"status"`
	Platform string `json:"platform,omitempty"`
}

// ===== Request types =====

// GetUsersInfoRequest represents batch get users info request
type GetUsersInfoRequest struct {
	UserIds []string `json:"user_ids"`
}

// GetUsersOnlineStatusRequest represents get users online status request
type GetUsersOnlineStatusRequest struct {
	UserIds []string `json:"user_ids"`
}

// SendMessageRequest represents send message request
type SendMessageRequest struct {
	ClientMsgId string         `json:"client_msg_id"`
	RecvId      string         `json:"recv_id,omitempty"`  // For single chat
	GroupId     string         `json:"group_id,omitempty"` // For group chat
	SessionType int32          `json:"session_type"`
	MsgType     int32          `json:"msg_type"`
	Content     MessageContent `json:"content"`
}

// PullMessagesResponse represents pull messages response
type PullMessagesResponse struct {
	Messages []*MessageInfo `json:"messages"`
	MaxSeq   int64          `json:"max_seq"`
}

// MarkReadRequest represents mark read request
type MarkReadRequest struct {
	ConversationId string `json:"conversation_id"`
	ReadSeq        int64  `json:"read_seq"`
}

// ArchiveConversationRequest represents archive conversation request
type ArchiveConversationRequest struct {
	ConversationId string `json:"conversation_id"`
	IsArchived     bool   `json:"is_archived"`
}

// DeleteMessageRequest represents delete message request
type DeleteMessageRequest struct {
	ConversationId string `json:"conversation_id"`
	ServerMsgId    int64  `json:"server_msg_id"`
}

// MaxSeqResponse represents max seq response
type MaxSeqResponse struct {
	MaxSeq int64 `json:"max_seq"`
}
