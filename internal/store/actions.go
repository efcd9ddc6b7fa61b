package store

import (
	"context"
	"errors"

	"github.com/mbeoliero/kit/log"

	"github.com/mbeoliero/nexosync/internal/entity"
	"github.com/mbeoliero/nexosync/pkg/errcode"
)

// Archive sets the archived flag locally, then upstream; a failed call reverts it
func (s *Store) Archive(ctx context.Context, conversationId string, archived bool) error {
	s.mu.Lock()
	t, ok := s.threads[conversationId]
	if !ok {
		s.mu.Unlock()
		return errcode.ErrConvNotFound
	}
	if t.conv.Archived == archived {
		s.mu.Unlock()
		return nil
	}
	t.conv.Archived = archived
	s.mu.Unlock()
	s.emit(Change{Kind: ChangeConversation, ConversationId: conversationId})

	if err := s.api.ArchiveConversation(ctx, conversationId, archived); err != nil {
		s.mu.Lock()
		if t, ok := s.threads[conversationId]; ok && t.conv.Archived == archived {
			t.conv.Archived = !archived
		}
		s.mu.Unlock()
		s.emit(Change{Kind: ChangeConversation, ConversationId: conversationId})

		log.CtxWarn(ctx, "archive conversation failed: conversation_id=%s, archived=%v, err=%v", conversationId, archived, err)
		return coded(errcode.ErrArchiveFailed, err)
	}
	log.CtxInfo(ctx, "conversation archived: conversation_id=%s, archived=%v", conversationId, archived)
	return nil
}

// DeleteMessage tombstones a message locally, then upstream; a failed call restores it.
// A failed local send is tombstoned without an upstream call.
func (s *Store) DeleteMessage(ctx context.Context, conversationId, messageId string) error {
	s.mu.Lock()
	t, ok := s.threads[conversationId]
	if !ok {
		s.mu.Unlock()
		return errcode.ErrConvNotFound
	}
	e := t.lookup(messageId)
	if e == nil {
		s.mu.Unlock()
		return errcode.ErrMessageNotFound
	}
	if e.msg.IsDeleted {
		s.mu.Unlock()
		return nil
	}
	if !e.msg.IsConfirmed() {
		if e.msg.Status != entity.MessageStatusFailed {
			s.mu.Unlock()
			return errcode.ErrInvalidParam.Wrap(errors.New("message is still sending"))
		}
		e.msg.Tombstone()
		s.mu.Unlock()
		s.emit(Change{Kind: ChangeMessages, ConversationId: conversationId}, Change{Kind: ChangeConversation, ConversationId: conversationId})
		return nil
	}

	serverId := e.msg.Id
	content, attachments := e.msg.Content, e.msg.Attachments
	e.msg.Tombstone()
	s.mu.Unlock()
	s.emit(Change{Kind: ChangeMessages, ConversationId: conversationId}, Change{Kind: ChangeConversation, ConversationId: conversationId})

	if err := s.api.DeleteMessage(ctx, conversationId, serverId); err != nil {
		s.mu.Lock()
		if t, ok := s.threads[conversationId]; ok && !t.deleted[serverId] {
			if e, ok := t.byId[serverId]; ok && e.msg.IsDeleted {
				e.msg.IsDeleted = false
				e.msg.Content = content
				e.msg.Attachments = attachments
			}
		}
		s.mu.Unlock()
		s.emit(Change{Kind: ChangeMessages, ConversationId: conversationId}, Change{Kind: ChangeConversation, ConversationId: conversationId})

		log.CtxWarn(ctx, "delete message failed: conversation_id=%s, message_id=%s, err=%v", conversationId, serverId, err)
		return coded(errcode.ErrDeleteFailed, err)
	}
	log.CtxInfo(ctx, "message deleted: conversation_id=%s, message_id=%s", conversationId, serverId)
	return nil
}

// ApplyRemoteDeletion tombstones a message deleted elsewhere. A deletion of a message
// not loaded yet is remembered and applied when a page brings it in.
func (s *Store) ApplyRemoteDeletion(ctx context.Context, ev *entity.DeletionEvent) bool {
	if ev == nil || ev.ConversationId == "" || ev.MessageId == "" {
		return false
	}

	s.mu.Lock()
	t := s.threadLocked(ev.ConversationId)
	t.deleted[ev.MessageId] = true
	e, ok := t.byId[ev.MessageId]
	if !ok || e.msg.IsDeleted {
		s.mu.Unlock()
		log.CtxDebug(ctx, "deletion remembered: conversation_id=%s, message_id=%s", ev.ConversationId, ev.MessageId)
		return false
	}
	e.msg.Tombstone()
	s.mu.Unlock()

	s.emit(Change{Kind: ChangeMessages, ConversationId: ev.ConversationId}, Change{Kind: ChangeConversation, ConversationId: ev.ConversationId})
	return true
}
