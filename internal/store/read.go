package store

import (
	"context"

	"github.com/mbeoliero/kit/log"

	"github.com/mbeoliero/nexosync/internal/entity"
	"github.com/mbeoliero/nexosync/pkg/errcode"
)

// MarkRead moves the local user's read boundary to upToMessageId, or to the newest
// message when all is set. The unread count only decreases. It reports whether
// anything changed; the receipt is nil when there is nothing confirmed to report.
func (s *Store) MarkRead(ctx context.Context, conversationId, upToMessageId string, all bool) (*entity.ReadReceipt, bool, error) {
	s.mu.Lock()
	t, ok := s.threads[conversationId]
	if !ok {
		s.mu.Unlock()
		return nil, false, errcode.ErrConvNotFound
	}

	idx := len(t.entries) - 1
	if !all && upToMessageId != "" {
		e := t.lookup(upToMessageId)
		if e == nil {
			s.mu.Unlock()
			return nil, false, errcode.ErrMessageNotFound
		}
		idx = t.position(e)
	} else {
		all = true
	}

	markIdx := -1
	if t.readMark != nil {
		markIdx = t.position(t.readMark)
	}
	prev := t.conv.Unread(s.self)
	unread := int64(0)
	if !all && idx >= 0 {
		unread = min(prev, t.unreadAfter(idx, s.self))
	}
	advanced := idx > markIdx
	if unread >= prev && !advanced {
		s.mu.Unlock()
		return nil, false, nil
	}

	t.conv.UnreadCounts[s.self] = unread
	var receipt *entity.ReadReceipt
	if idx >= 0 {
		t.readMark = t.entries[idx]
		if boundary := t.newestConfirmed(idx); boundary != nil {
			receipt = &entity.ReadReceipt{
				ConversationId: conversationId,
				UserId:         s.self,
				UpToMessageId:  boundary.msg.Id,
				UpToSeq:        boundary.msg.Seq,
				All:            all,
				ReadAt:         s.now(),
			}
		}
	} else {
		receipt = &entity.ReadReceipt{ConversationId: conversationId, UserId: s.self, All: true, ReadAt: s.now()}
	}
	s.mu.Unlock()

	log.CtxDebug(ctx, "marked read: conversation_id=%s, unread=%d->%d, all=%v", conversationId, prev, unread, all)
	s.emit(Change{Kind: ChangeConversation, ConversationId: conversationId})
	return receipt, true, nil
}

// ApplyPeerReceipt applies a receipt from another user: their unread count only
// moves toward zero, and local messages up to the boundary become read.
// Receipts of the local user are ignored.
func (s *Store) ApplyPeerReceipt(ctx context.Context, r *entity.ReadReceipt) bool {
	if r == nil || r.ConversationId == "" || r.UserId == "" {
		return false
	}

	s.mu.Lock()
	if r.UserId == s.self {
		s.mu.Unlock()
		return false
	}
	t := s.threadLocked(r.ConversationId)

	idx := -1
	switch {
	case r.All:
		idx = len(t.entries) - 1
	case r.UpToMessageId != "" && t.lookup(r.UpToMessageId) != nil:
		idx = t.position(t.lookup(r.UpToMessageId))
	case r.UpToSeq > 0:
		for i, e := range t.entries {
			if e.msg.Seq > 0 && e.msg.Seq <= r.UpToSeq {
				idx = i
			}
		}
	}

	changed := false
	prev := t.conv.Unread(r.UserId)
	next := prev
	if r.All {
		next = 0
	} else if idx >= 0 {
		next = min(prev, t.unreadAfter(idx, r.UserId))
	}
	if next < prev {
		t.conv.UnreadCounts[r.UserId] = next
		changed = true
	}

	messagesChanged := false
	for i := 0; i <= idx; i++ {
		e := t.entries[i]
		if e.msg.SenderId == s.self && e.msg.IsConfirmed() && e.msg.UpgradeStatus(entity.MessageStatusRead) {
			messagesChanged = true
		}
	}
	s.mu.Unlock()

	if !changed && !messagesChanged {
		return false
	}
	log.CtxDebug(ctx, "peer receipt applied: conversation_id=%s, user_id=%s, unread=%d->%d", r.ConversationId, r.UserId, prev, next)
	changes := []Change{{Kind: ChangeConversation, ConversationId: r.ConversationId}}
	if messagesChanged {
		changes = append(changes, Change{Kind: ChangeMessages, ConversationId: r.ConversationId})
	}
	s.emit(changes...)
	return true
}
