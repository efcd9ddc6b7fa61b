package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/mbeoliero/kit/log"

	"github.com/mbeoliero/nexosync/internal/entity"
	"github.com/mbeoliero/nexosync/pkg/errcode"
)

// PrepareSend appends a pending message with a fresh client temp id.
// A zero msgType is derived from the attachments.
func (s *Store) PrepareSend(conversationId, content string, msgType int32, attachments []entity.Attachment) (*entity.Message, error) {
	if conversationId == "" {
		return nil, errcode.ErrInvalidParam.Wrap(errors.New("conversation id is empty"))
	}
	if content == "" && len(attachments) == 0 {
		return nil, errcode.ErrInvalidParam.Wrap(errors.New("message body is empty"))
	}
	for _, a := range attachments {
		if a.Url == "" {
			return nil, errcode.ErrInvalidParam.Wrap(errors.New("attachment url is empty"))
		}
	}
	tempId, err := s.ids.NextID()
	if err != nil {
		return nil, fmt.Errorf("generate client temp id: %w", err)
	}
	if msgType == 0 {
		msgType = entity.MessageTypeFor(attachments)
	}

	s.mu.Lock()
	if s.self == "" {
		s.mu.Unlock()
		return nil, errcode.ErrUnauthorized
	}
	now := s.now()
	msg := &entity.Message{
		Id:             tempId,
		ConversationId: conversationId,
		SenderId:       s.self,
		Content:        content,
		Type:           msgType,
		Attachments:    append([]entity.Attachment(nil), attachments...),
		Status:         entity.MessageStatusPending,
		CreatedAt:      now,
		ClientTempId:   tempId,
	}
	t := s.threadLocked(conversationId)
	e := &entry{msg: msg, rank: s.nextLiveRank(), sentAt: now}
	t.insert(e)
	t.refreshLast()
	out := msg.Clone()
	s.mu.Unlock()

	s.emit(Change{Kind: ChangeMessages, ConversationId: conversationId}, Change{Kind: ChangeConversation, ConversationId: conversationId})
	return out, nil
}

// DeliverSend sends a prepared message and reconciles that same row in place.
// On failure the row is marked failed and kept visible.
func (s *Store) DeliverSend(ctx context.Context, conversationId, clientTempId string) (*entity.Message, error) {
	s.mu.Lock()
	t, ok := s.threads[conversationId]
	if !ok {
		s.mu.Unlock()
		return nil, errcode.ErrConvNotFound
	}
	e, ok := t.byTemp[clientTempId]
	if !ok {
		s.mu.Unlock()
		return nil, errcode.ErrMessageNotFound
	}
	if e.msg.IsConfirmed() {
		out := e.msg.Clone()
		s.mu.Unlock()
		return out, nil
	}
	req := &entity.SendRequest{
		ConversationId:   conversationId,
		ConversationType: t.conv.Type,
		PeerId:           t.conv.PeerId(s.self),
		GroupId:          entity.GroupIdOf(conversationId),
		ClientTempId:     clientTempId,
		Content:          e.msg.Content,
		Type:             e.msg.Type,
		Attachments:      append([]entity.Attachment(nil), e.msg.Attachments...),
	}
	s.mu.Unlock()

	server, sendErr := s.api.SendMessage(ctx, req)

	s.mu.Lock()
	// the thread may have been evicted or reset while the request was in flight
	t, ok = s.threads[conversationId]
	if ok {
		e, ok = t.byTemp[clientTempId]
	}
	if !ok {
		s.mu.Unlock()
		if sendErr != nil {
			return nil, coded(errcode.ErrSendFailed, sendErr)
		}
		return server, nil
	}

	switch {
	case sendErr == nil:
		server = server.Clone()
		server.ClientTempId = clientTempId
		s.confirmLocked(t, e, server)
	case e.msg.IsConfirmed():
		// the echo confirmed it while the request failed
		log.CtxInfo(ctx, "send error after echo confirm: conversation_id=%s, client_temp_id=%s, err=%v", conversationId, clientTempId, sendErr)
		sendErr = nil
	default:
		e.msg.Status = entity.MessageStatusFailed
		e.msg.LastError = sendErr.Error()
	}
	out := e.msg.Clone()
	s.mu.Unlock()

	s.emit(Change{Kind: ChangeMessages, ConversationId: conversationId}, Change{Kind: ChangeConversation, ConversationId: conversationId})

	if sendErr != nil {
		log.CtxWarn(ctx, "send message failed: conversation_id=%s, client_temp_id=%s, err=%v", conversationId, clientTempId, sendErr)
		return out, coded(errcode.ErrSendFailed, sendErr)
	}
	log.CtxDebug(ctx, "send message confirmed: conversation_id=%s, client_temp_id=%s, message_id=%s", conversationId, clientTempId, out.Id)
	return out, nil
}

// RetrySend re-sends a failed message under its original client temp id
func (s *Store) RetrySend(ctx context.Context, conversationId, clientTempId string) (*entity.Message, error) {
	s.mu.Lock()
	t, ok := s.threads[conversationId]
	if !ok {
		s.mu.Unlock()
		return nil, errcode.ErrConvNotFound
	}
	e := t.lookup(clientTempId)
	if e == nil || e.msg.ClientTempId == "" {
		s.mu.Unlock()
		return nil, errcode.ErrMessageNotFound
	}
	if e.msg.Status != entity.MessageStatusFailed || e.msg.IsDeleted {
		s.mu.Unlock()
		return nil, errcode.ErrMessageNotRetry
	}
	e.msg.Status = entity.MessageStatusPending
	e.msg.LastError = ""
	e.sentAt = s.now()
	tempId := e.msg.ClientTempId
	s.mu.Unlock()

	s.emit(Change{Kind: ChangeMessages, ConversationId: conversationId})
	return s.DeliverSend(ctx, conversationId, tempId)
}

// SendMessage prepares and delivers a message
func (s *Store) SendMessage(ctx context.Context, conversationId, content string, msgType int32, attachments []entity.Attachment) (*entity.Message, error) {
	msg, err := s.PrepareSend(conversationId, content, msgType, attachments)
	if err != nil {
		return nil, err
	}
	return s.DeliverSend(ctx, conversationId, msg.ClientTempId)
}

// confirmLocked reconciles a local row with its server copy. A duplicate row
// already holding the server id is folded into e.
func (s *Store) confirmLocked(t *thread, e *entry, server *entity.Message) {
	if dup, ok := t.byId[server.Id]; ok && dup != e {
		t.remove(dup)
		e.msg.UpgradeStatus(dup.msg.Status)
		e.counted = e.counted || dup.counted
	}

	oldId := e.msg.Id
	if oldId != server.Id {
		if t.byId[oldId] == e {
			delete(t.byId, oldId)
		}
		e.msg.Id = server.Id
		t.byId[server.Id] = e
	}
	if server.Seq != 0 {
		e.msg.Seq = server.Seq
	}
	status := server.Status
	if status == "" || status == entity.MessageStatusPending {
		status = entity.MessageStatusSent
	}
	if e.msg.Status == entity.MessageStatusFailed {
		e.msg.Status = entity.MessageStatusPending
	}
	e.msg.UpgradeStatus(status)
	e.msg.LastError = ""
	t.retime(e, server.CreatedAt)

	if t.deleted[server.Id] || server.IsDeleted {
		e.msg.Tombstone()
	}
	if t.conv.LastMessageId == oldId {
		t.conv.LastMessageId = server.Id
	}
	t.bumpUnread(e, s.self)
	t.refreshLast()
}
