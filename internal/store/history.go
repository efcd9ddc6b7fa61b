package store

import (
	"context"
	"sort"

	"github.com/mbeoliero/kit/log"

	"github.com/mbeoliero/nexosync/internal/entity"
	"github.com/mbeoliero/nexosync/pkg/errcode"
)

// LoadHistory fetches the page older than cursor (the newest page for an empty cursor)
// and merges it. Identical concurrent loads share one fetch. A failed fetch leaves
// merged state untouched.
func (s *Store) LoadHistory(ctx context.Context, conversationId, cursor string) error {
	_, err, shared := s.sf.Do("history:"+conversationId+":"+cursor, func() (interface{}, error) {
		page, err := s.api.FetchMessages(ctx, conversationId, cursor, s.opts.PageSize)
		if err != nil {
			log.CtxWarn(ctx, "load history failed: conversation_id=%s, cursor=%s, err=%v", conversationId, cursor, err)
			return nil, coded(errcode.ErrHistoryFailed, err)
		}

		s.mu.Lock()
		t := s.threadLocked(conversationId)
		s.mergePageLocked(t, page, true)
		if cursor != "" || !t.loaded {
			t.cursor = page.NextCursor
			t.hasMore = page.HasMore
		}
		t.loaded = true
		n := len(t.entries)
		s.mu.Unlock()

		log.CtxDebug(ctx, "history merged: conversation_id=%s, cursor=%s, page=%d, total=%d", conversationId, cursor, len(page.Messages), n)
		s.emit(Change{Kind: ChangeMessages, ConversationId: conversationId}, Change{Kind: ChangeConversation, ConversationId: conversationId})
		return nil, nil
	})
	if shared {
		log.CtxDebug(ctx, "history fetch shared: conversation_id=%s, cursor=%s", conversationId, cursor)
	}
	return err
}

// RefreshLatest re-fetches the newest page to repair a gap left by a disconnect.
// Peer messages newer than the previously newest known message count as unread.
// It returns the number of messages the page added.
func (s *Store) RefreshLatest(ctx context.Context, conversationId string) (int, error) {
	v, err, _ := s.sf.Do("latest:"+conversationId, func() (interface{}, error) {
		page, err := s.api.FetchMessages(ctx, conversationId, "", s.opts.PageSize)
		if err != nil {
			log.CtxWarn(ctx, "refresh latest failed: conversation_id=%s, err=%v", conversationId, err)
			return 0, coded(errcode.ErrHistoryFailed, err)
		}

		s.mu.Lock()
		t := s.threadLocked(conversationId)
		var boundary *entry
		if t.loaded {
			boundary = t.newestConfirmed(len(t.entries) - 1)
		}
		added := s.mergePageLocked(t, page, false)
		if !t.loaded {
			t.cursor = page.NextCursor
			t.hasMore = page.HasMore
			t.loaded = true
		} else if len(added) == len(page.Messages) && page.HasMore && boundary != nil {
			log.CtxWarn(ctx, "gap exceeds one page: conversation_id=%s, page=%d", conversationId, len(page.Messages))
		}
		if boundary != nil {
			for _, e := range added {
				if e.msg.SenderId != s.self && e.msg.CreatedAt.After(boundary.msg.CreatedAt) {
					t.bumpUnread(e, s.self)
				}
			}
		}
		s.mu.Unlock()

		if len(added) > 0 {
			log.CtxInfo(ctx, "gap repaired: conversation_id=%s, added=%d", conversationId, len(added))
			s.emit(Change{Kind: ChangeMessages, ConversationId: conversationId}, Change{Kind: ChangeConversation, ConversationId: conversationId})
		}
		return len(added), nil
	})
	if err != nil {
		return 0, err
	}
	return v.(int), nil
}

// mergePageLocked merges page rows, oldest first, and returns the rows it added.
// Older pages take decreasing ranks so they sort before rows of equal time.
func (s *Store) mergePageLocked(t *thread, page *entity.MessagePage, older bool) []*entry {
	msgs := make([]*entity.Message, 0, len(page.Messages))
	for _, m := range page.Messages {
		if m != nil && m.Id != "" {
			msgs = append(msgs, m)
		}
	}
	sort.SliceStable(msgs, func(i, j int) bool {
		if msgs[i].CreatedAt.Equal(msgs[j].CreatedAt) {
			return msgs[i].Seq < msgs[j].Seq
		}
		return msgs[i].CreatedAt.Before(msgs[j].CreatedAt)
	})

	base := s.history - int64(len(msgs))
	if older {
		s.history = base
	}

	var added []*entry
	for i, m := range msgs {
		m = m.Clone()
		m.ConversationId = t.conv.Id
		if t.deleted[m.Id] {
			m.Tombstone()
		}

		if e, ok := t.byId[m.Id]; ok {
			mergeConfirmed(e, m)
			continue
		}
		if m.ClientTempId != "" {
			if e, ok := t.byTemp[m.ClientTempId]; ok {
				s.confirmLocked(t, e, m)
				continue
			}
		}

		// history rows are already reflected in listed unread counts
		e := &entry{msg: m, counted: older}
		if older {
			e.rank = base + int64(i) + 1
		} else {
			e.rank = s.nextLiveRank()
		}
		t.insert(e)
		added = append(added, e)
	}
	t.refreshLast()
	return added
}

// mergeConfirmed folds a server copy into an existing row without regressing it
func mergeConfirmed(e *entry, m *entity.Message) {
	e.msg.UpgradeStatus(m.Status)
	if e.msg.Seq == 0 {
		e.msg.Seq = m.Seq
	}
	if m.IsDeleted && !e.msg.IsDeleted {
		e.msg.Tombstone()
	}
}

// RefreshConversations re-reads the conversation list and merges it
func (s *Store) RefreshConversations(ctx context.Context) error {
	page, err := s.api.ListConversations(ctx, "")
	if err != nil {
		log.CtxWarn(ctx, "refresh conversations failed: err=%v", err)
		return coded(errcode.ErrConversationsStale, err)
	}
	s.UpsertConversations(page)
	return nil
}

// UpsertConversations merges a conversation list page. Metadata is replaced;
// unread counts already held locally are never overwritten.
func (s *Store) UpsertConversations(page *entity.ConversationPage) {
	if page == nil {
		return
	}
	var changes []Change

	s.mu.Lock()
	for _, c := range page.Conversations {
		if c == nil || c.Id == "" {
			continue
		}
		t := s.threadLocked(c.Id)
		conv := t.conv

		conv.Type = c.Type
		conv.Title = c.Title
		conv.Avatar = c.Avatar
		conv.Archived = c.Archived
		conv.Stub = false
		if len(c.Participants) > 0 {
			conv.Participants = append([]entity.Participant(nil), c.Participants...)
		}
		for userId, n := range c.UnreadCounts {
			if _, ok := conv.UnreadCounts[userId]; !ok && n > 0 {
				conv.UnreadCounts[userId] = n
			}
		}
		if c.LastActivityAt.After(conv.LastActivityAt) {
			conv.LastActivityAt = c.LastActivityAt
		}
		if last := t.newest(); last == nil || (c.LastMessage != nil && c.LastMessage.CreatedAt.After(last.msg.CreatedAt)) {
			if c.LastMessage != nil {
				conv.LastMessage = c.LastMessage.Clone()
				conv.LastMessageId = c.LastMessage.Id
			}
		}
		changes = append(changes, Change{Kind: ChangeConversation, ConversationId: c.Id})
	}
	s.mu.Unlock()

	s.emit(changes...)
}
