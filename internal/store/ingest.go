package store

import (
	"context"

	"github.com/mbeoliero/kit/log"

	"github.com/mbeoliero/nexosync/internal/entity"
)

// IngestResult tells how a live message was merged
type IngestResult int

const (
	IngestIgnored IngestResult = iota
	IngestAppended
	IngestDuplicate
	IngestCollapsed
)

func (r IngestResult) String() string {
	switch r {
	case IngestAppended:
		return "appended"
	case IngestDuplicate:
		return "duplicate"
	case IngestCollapsed:
		return "collapsed"
	default:
		return "ignored"
	}
}

// IngestRemoteMessage merges a live message. An already known server id is a duplicate;
// a pending local row is collapsed by the echoed client id, otherwise by the oldest
// pending row of the same sender with an equal body inside the echo window. Anything
// else is appended and counted unread for every member but the sender.
func (s *Store) IngestRemoteMessage(ctx context.Context, msg *entity.Message) IngestResult {
	if msg == nil || msg.Id == "" || msg.ConversationId == "" {
		return IngestIgnored
	}
	msg = msg.Clone()
	if msg.Status == "" {
		msg.Status = entity.MessageStatusSent
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = s.now()
	}

	s.mu.Lock()
	t := s.threadLocked(msg.ConversationId)
	if t.deleted[msg.Id] {
		msg.Tombstone()
	}

	result := IngestAppended
	if e, ok := t.byId[msg.Id]; ok {
		mergeConfirmed(e, msg)
		result = IngestDuplicate
	} else if e := s.echoOfLocked(t, msg); e != nil {
		s.confirmLocked(t, e, msg)
		result = IngestCollapsed
	} else {
		e := &entry{msg: msg, rank: s.nextLiveRank()}
		t.insert(e)
		t.bumpUnread(e, s.self)
		t.refreshLast()
	}
	s.mu.Unlock()

	log.CtxDebug(ctx, "remote message ingested: conversation_id=%s, message_id=%s, result=%s", msg.ConversationId, msg.Id, result)
	s.emit(Change{Kind: ChangeMessages, ConversationId: msg.ConversationId}, Change{Kind: ChangeConversation, ConversationId: msg.ConversationId})
	return result
}

// echoOfLocked finds the local pending row msg confirms
func (s *Store) echoOfLocked(t *thread, msg *entity.Message) *entry {
	if msg.ClientTempId != "" {
		if e, ok := t.byTemp[msg.ClientTempId]; ok {
			return e
		}
	}
	if msg.SenderId == "" || msg.SenderId != s.self {
		return nil
	}
	now := s.now()
	var oldest *entry
	for _, e := range t.entries {
		if e.msg.Status != entity.MessageStatusPending || e.msg.IsConfirmed() {
			continue
		}
		if e.msg.SenderId != msg.SenderId || !sameBody(e.msg, msg) {
			continue
		}
		if now.Sub(e.sentAt) > s.opts.EchoWindow {
			continue
		}
		if oldest == nil || e.sentAt.Before(oldest.sentAt) {
			oldest = e
		}
	}
	return oldest
}
