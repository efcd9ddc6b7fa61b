package gateway

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/mbeoliero/nexosync/internal/entity"
	"github.com/mbeoliero/nexosync/pkg/constant"
)

// WSRequest represents a WebSocket request message
type WSRequest struct {
	ReqIdentifier int32  `json:"req_identifier"` // Request type
	MsgIncr       string `json:"msg_incr"`       // Client message counter/trace Id
	OperationId   string `json:"operation_id"`   // Operation Id
	SendId        string `json:"send_id"`        // Sender user Id
	Data          []byte `json:"data"`           // Business data
}

// WSResponse represents a WebSocket response message
type WSResponse struct {
	ReqIdentifier int32  `json:"req_identifier"` // Request type (echo back)
	MsgIncr       string `json:"msg_incr"`       // Message counter (echo back)
	OperationId   string `json:"operation_id"`   // Operation Id (echo back)
	ErrCode       int    `json:"err_code"`       // Error code, 0 = success
	ErrMsg        string `json:"err_msg"`        // Error message
	Data          []byte `json:"data"`           // Response data
}

// RoomReq represents join/leave room request data
type RoomReq struct {
	ConversationId string `json:"conversation_id"`
}

// TypingReq represents typing request data
type TypingReq struct {
	ConversationId string `json:"conversation_id"`
	Typing         bool   `json:"typing"`
}

// MessageData represents message data in a push
type MessageData struct {
	ServerMsgId    int64                 `json:"server_msg_id"`
	ConversationId string                `json:"conversation_id"`
	Seq            int64                 `json:"seq"`
	ClientMsgId    string                `json:"client_msg_id"`
	SenderId       string                `json:"sender_id"`
	RecvId         string                `json:"recv_id,omitempty"`
	GroupId        string                `json:"group_id,omitempty"`
	SessionType    int32                 `json:"session_type"`
	MsgType        int32                 `json:"msg_type"`
	Content        entity.MessageContent `json:"content"`
	SendAt         int64                 `json:"send_at"`
}

// PushMsgData represents push message data
type PushMsgData struct {
	Msgs map[string][]*MessageData `json:"msgs"` // conversation_id -> messages
}

// TypingData represents a typing push
type TypingData struct {
	ConversationId string `json:"conversation_id"`
	UserId         string `json:"user_id"`
	Typing         bool   `json:"typing"`
}

// ReadData represents a read receipt push
type ReadData struct {
	ConversationId string `json:"conversation_id"`
	UserId         string `json:"user_id"`
	ServerMsgId    int64  `json:"server_msg_id,omitempty"`
	ReadSeq        int64  `json:"read_seq,omitempty"`
	All            bool   `json:"all,omitempty"`
	ReadAt         int64  `json:"read_at"`
}

// DeletedData represents a message deletion push
type DeletedData struct {
	ConversationId string `json:"conversation_id"`
	ServerMsgId    int64  `json:"server_msg_id"`
}

// PresenceData represents a presence push
type PresenceData struct {
	UserId   string `json:"user_id"`
	Status   int    `json:"status"`
	LastSeen int64  `json:"last_seen"`
}

// KickData represents the optional reason of a kick
type KickData struct {
	Reason string `json:"reason"`
}

// Encode encodes data to JSON bytes
func Encode(v interface{}) ([]byte, error) {
	return json.Marshal(v)
}

// Decode decodes JSON bytes to struct
func Decode(data []byte, v interface{}) error {
	return json.Unmarshal(data, v)
}

// ToMessage converts a pushed message, rejecting payloads without identity
func (d *MessageData) ToMessage(conversationId string) (*entity.Message, error) {
	if d.ConversationId == "" {
		d.ConversationId = conversationId
	}
	if d.ServerMsgId == 0 || d.ConversationId == "" || d.SenderId == "" {
		return nil, fmt.Errorf("%w: message missing id, conversation or sender", ErrInvalidProtocol)
	}
	msg := &entity.Message{
		Id:             strconv.FormatInt(d.ServerMsgId, 10),
		ConversationId: d.ConversationId,
		SenderId:       d.SenderId,
		Type:           d.MsgType,
		Status:         entity.MessageStatusSent,
		ClientTempId:   d.ClientMsgId,
		Seq:            d.Seq,
	}
	if d.SendAt > 0 {
		msg.CreatedAt = time.UnixMilli(d.SendAt)
	}
	msg.SetContent(d.Content)
	return msg, nil
}

// ToTypingEvent validates and converts a typing push
func (d *TypingData) ToTypingEvent() (*entity.TypingEvent, error) {
	if d.ConversationId == "" || d.UserId == "" {
		return nil, fmt.Errorf("%w: typing missing conversation or user", ErrInvalidProtocol)
	}
	return &entity.TypingEvent{ConversationId: d.ConversationId, UserId: d.UserId, Typing: d.Typing}, nil
}

// ToReceipt validates and converts a read push
func (d *ReadData) ToReceipt() (*entity.ReadReceipt, error) {
	if d.ConversationId == "" || d.UserId == "" {
		return nil, fmt.Errorf("%w: receipt missing conversation or user", ErrInvalidProtocol)
	}
	if !d.All && d.ServerMsgId == 0 && d.ReadSeq == 0 {
		return nil, fmt.Errorf("%w: receipt without boundary", ErrInvalidProtocol)
	}
	r := &entity.ReadReceipt{
		ConversationId: d.ConversationId,
		UserId:         d.UserId,
		UpToSeq:        d.ReadSeq,
		All:            d.All,
	}
	if d.ServerMsgId != 0 {
		r.UpToMessageId = strconv.FormatInt(d.ServerMsgId, 10)
	}
	if d.ReadAt > 0 {
		r.ReadAt = time.UnixMilli(d.ReadAt)
	}
	return r, nil
}

// ToDeletion validates and converts a deletion push
func (d *DeletedData) ToDeletion() (*entity.DeletionEvent, error) {
	if d.ConversationId == "" || d.ServerMsgId == 0 {
		return nil, fmt.Errorf("%w: deletion missing conversation or message", ErrInvalidProtocol)
	}
	return &entity.DeletionEvent{
		ConversationId: d.ConversationId,
		MessageId:      strconv.FormatInt(d.ServerMsgId, 10),
	}, nil
}

// ToPresence validates and converts a presence push
func (d *PresenceData) ToPresence() (*entity.Presence, error) {
	if d.UserId == "" {
		return nil, fmt.Errorf("%w: presence missing user", ErrInvalidProtocol)
	}
	p := &entity.Presence{UserId: d.UserId}
	switch d.Status {
	case constant.StatusOnline:
		p.Status = entity.PresenceOnline
	case constant.StatusAway:
		p.Status = entity.PresenceAway
	default:
		p.Status = entity.PresenceOffline
	}
	if d.LastSeen > 0 {
		p.LastSeen = time.UnixMilli(d.LastSeen)
	}
	return p, nil
}
