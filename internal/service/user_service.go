package service

import (
	"context"

	"github.com/mbeoliero/kit/log"

	"github.com/mbeoliero/nexosync/internal/entity"
)

// seedPresence fetches the peer's presence of a direct conversation in the background,
// so the conversation shows online before any presence push arrives
func (m *Messenger) seedPresence(ctx context.Context, conversationId string) {
	if m.profiles == nil || entity.ConversationTypeOf(conversationId) != entity.ConversationTypeDirect {
		return
	}
	self := m.store.UserId()
	peerId := entity.PeerOf(conversationId, self)
	if conv, ok := m.store.Conversation(conversationId); ok {
		peerId = conv.PeerId(self)
	}
	if peerId == "" {
		return
	}
	if _, known := m.presence.Get(peerId); known {
		return
	}

	m.goAsync(func(ctx context.Context) {
		list, err := m.profiles.Presence(ctx, []string{peerId})
		if err != nil {
			log.CtxDebug(ctx, "seed presence failed: user_id=%s, err=%v", peerId, err)
			return
		}
		changed := false
		for _, p := range list {
			changed = m.presence.Apply(ctx, p) || changed
		}
		if changed {
			m.notify(Update{Kind: UpdateConversations, ConversationId: conversationId})
		}
	})
}

// IsOnline reports a user's presence
func (m *Messenger) IsOnline(ctx context.Context, userId string) bool {
	return m.presence.IsOnline(ctx, userId)
}

// OnlineUsers returns the users known online
func (m *Messenger) OnlineUsers() []string {
	return m.presence.OnlineUserIds()
}
