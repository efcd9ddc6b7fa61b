package service

import (
	"context"
	"errors"

	"github.com/mbeoliero/kit/log"

	"github.com/mbeoliero/nexosync/internal/presenter"
	"github.com/mbeoliero/nexosync/pkg/errcode"
)

// SelectConversation opens a conversation: its room is joined, it is pinned against
// eviction, and its first page loads in the background when not loaded yet.
// The previously open conversation is closed.
func (m *Messenger) SelectConversation(ctx context.Context, conversationId string) error {
	if conversationId == "" {
		return errcode.ErrInvalidParam.Wrap(errors.New("conversation id is empty"))
	}

	m.mu.Lock()
	prev := m.selected
	m.selected = conversationId
	m.mu.Unlock()

	if prev != conversationId {
		if prev != "" {
			m.closeConversation(ctx, prev)
		}
		m.store.Pin(conversationId)
		if err := m.rooms.Enter(ctx, conversationId); err != nil {
			// the reference is kept, resync joins it
			log.CtxInfo(ctx, "join room deferred: conversation_id=%s, err=%v", conversationId, err)
		}
		m.seedPresence(ctx, conversationId)
		m.notify(Update{Kind: UpdateMessages, ConversationId: conversationId})
	}

	if !m.store.Loaded(conversationId) {
		m.loadHistory(conversationId, "", false)
	}
	return nil
}

// CloseConversation closes the open conversation, if any
func (m *Messenger) CloseConversation(ctx context.Context) {
	m.mu.Lock()
	prev := m.selected
	m.selected = ""
	m.mu.Unlock()
	if prev != "" {
		m.closeConversation(ctx, prev)
		m.notify(Update{Kind: UpdateStatus})
	}
}

func (m *Messenger) closeConversation(ctx context.Context, conversationId string) {
	if m.typing.IsLocalTyping(conversationId) {
		_ = m.typing.SetTyping(ctx, conversationId, false)
	}
	if err := m.rooms.Leave(ctx, conversationId); err != nil {
		log.CtxDebug(ctx, "leave room failed: conversation_id=%s, err=%v", conversationId, err)
	}
	m.store.Unpin(conversationId)
}

// LoadMoreMessages loads the next older page of the open conversation in the background
func (m *Messenger) LoadMoreMessages(ctx context.Context) error {
	conversationId, err := m.selectedOrErr()
	if err != nil {
		return err
	}
	if !m.store.HasMore(conversationId) {
		return nil
	}
	m.loadHistory(conversationId, m.store.Cursor(conversationId), true)
	return nil
}

// loadHistory fetches one page in the background. A load already running for the
// same conversation and direction is not doubled; other conversations load freely.
func (m *Messenger) loadHistory(conversationId, cursor string, older bool) {
	m.mu.Lock()
	inflight := m.loading
	if older {
		inflight = m.loadingMore
	}
	if inflight[conversationId] {
		m.mu.Unlock()
		return
	}
	inflight[conversationId] = true
	m.mu.Unlock()
	m.notify(Update{Kind: UpdateStatus})

	m.goAsync(func(ctx context.Context) {
		err := m.store.LoadHistory(ctx, conversationId, cursor)
		m.metrics.ObserveHistory(err)
		if err != nil {
			log.CtxWarn(ctx, "load history failed: conversation_id=%s, cursor=%s, err=%v", conversationId, cursor, err)
		}

		m.mu.Lock()
		delete(inflight, conversationId)
		if err != nil {
			m.lastErr = err
		}
		m.mu.Unlock()
		m.notify(Update{Kind: UpdateStatus})
	})
}

// RefreshConversations reloads the conversation list
func (m *Messenger) RefreshConversations(ctx context.Context) error {
	if err := m.store.RefreshConversations(ctx); err != nil {
		m.setError(err)
		return err
	}
	return nil
}

// MarkAsRead marks the open conversation read up to a message, or entirely for an empty id
func (m *Messenger) MarkAsRead(ctx context.Context, upToMessageId string) error {
	conversationId, err := m.selectedOrErr()
	if err != nil {
		return err
	}
	if err := m.receipts.MarkAsRead(ctx, conversationId, upToMessageId); err != nil {
		m.setError(err)
		return err
	}
	return nil
}

// ArchiveConversation archives or unarchives a conversation, the open one for an empty id
func (m *Messenger) ArchiveConversation(ctx context.Context, conversationId string, archived bool) error {
	if conversationId == "" {
		var err error
		if conversationId, err = m.selectedOrErr(); err != nil {
			return err
		}
	}
	if err := m.store.Archive(ctx, conversationId, archived); err != nil {
		m.setError(err)
		return err
	}
	return nil
}

// Conversations returns the conversation list view, most recent activity first
func (m *Messenger) Conversations() []presenter.ConversationView {
	return presenter.MapConversations(m.store.Conversations(), m.lookups())
}

func (m *Messenger) lookups() presenter.Lookups {
	return presenter.Lookups{
		Self:   m.store.UserId(),
		Now:    m.now(),
		Typing: m.typing.TypingUsers,
		Online: func(userId string) bool {
			return m.presence.IsOnline(m.ctx, userId)
		},
		SeenBy: m.receipts.SeenBy,
	}
}
