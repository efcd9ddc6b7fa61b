package service

import (
	"context"
	"errors"

	"github.com/mbeoliero/kit/log"

	"github.com/mbeoliero/nexosync/internal/entity"
	"github.com/mbeoliero/nexosync/internal/gateway"
	"github.com/mbeoliero/nexosync/internal/store"
	"github.com/mbeoliero/nexosync/pkg/errcode"
	"github.com/mbeoliero/nexosync/pkg/jwt"
)

// UpdateToken installs a credential and connects with it in the background.
// A credential of another user drops the previous user's state first.
func (m *Messenger) UpdateToken(ctx context.Context, token string) error {
	claims, err := jwt.InspectToken(token, m.now())
	if err != nil {
		log.CtxWarn(ctx, "update token rejected: err=%v", err)
		m.setError(err)
		return err
	}

	m.mu.Lock()
	prevUser := m.userId
	switched := prevUser != "" && prevUser != claims.UserId
	m.token = token
	m.userId = claims.UserId
	m.lastErr = nil
	if switched {
		m.selected = ""
		m.resetLoading()
	}
	if m.connectCancel != nil {
		m.connectCancel()
	}
	connectCtx, cancel := context.WithCancel(m.ctx)
	m.connectCancel = cancel
	m.mu.Unlock()

	if switched {
		log.CtxInfo(ctx, "session user changed: from=%s, to=%s", prevUser, claims.UserId)
		m.resetState()
	}
	if m.session != nil {
		m.session.SetToken(token, claims.UserId)
	}
	m.store.SetUserId(claims.UserId)
	m.typing.SetUserId(claims.UserId)
	m.wire()

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		if err := m.conn.Connect(connectCtx, token); err != nil {
			log.CtxWarn(connectCtx, "connect failed: user_id=%s, err=%v", claims.UserId, err)
			m.setError(err)
		}
	}()
	m.notify(Update{Kind: UpdateStatus})
	return nil
}

// Token returns the installed credential
func (m *Messenger) Token() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.token
}

// Logout disconnects, cancels any retry and drops every piece of session state
func (m *Messenger) Logout(ctx context.Context) {
	m.mu.Lock()
	if m.connectCancel != nil {
		m.connectCancel()
		m.connectCancel = nil
	}
	userId := m.userId
	m.token = ""
	m.userId = ""
	m.selected = ""
	m.resetLoading()
	m.lastErr = nil
	m.wired = false
	m.mu.Unlock()

	m.conn.Disconnect()
	if m.session != nil {
		m.session.SetToken("", "")
	}
	m.resetState()
	log.CtxInfo(ctx, "logged out: user_id=%s", userId)
	m.notify(Update{Kind: UpdateStatus})
}

func (m *Messenger) resetState() {
	m.rooms.Reset()
	m.typing.Reset()
	m.receipts.Reset()
	m.presence.Reset()
	m.store.Reset()
}

// wire subscribes to the connection once per session; Disconnect clears these listeners
func (m *Messenger) wire() {
	m.mu.Lock()
	if m.wired {
		m.mu.Unlock()
		return
	}
	m.wired = true
	m.mu.Unlock()

	m.conn.SetResync(m.resync)
	m.conn.SubscribeStatus(m.onStatus)

	bus := m.conn.Bus()
	bus.Subscribe(gateway.EventNewMessage, m.onMessage)
	bus.Subscribe(gateway.EventTyping, m.onTyping)
	bus.Subscribe(gateway.EventReadReceipt, m.onReceipt)
	bus.Subscribe(gateway.EventMessageDeleted, m.onDeletion)
	bus.Subscribe(gateway.EventPresence, m.onPresence)
}

func (m *Messenger) onStatus(c entity.Connection) {
	m.metrics.ObserveConnection(c)
	if c.Terminal && c.LastError != "" {
		m.mu.Lock()
		m.lastErr = errcode.ErrNotConnected.Wrap(errors.New(c.LastError))
		m.mu.Unlock()
	}
	m.notify(Update{Kind: UpdateStatus})
}

func (m *Messenger) onMessage(ctx context.Context, ev *gateway.Event) {
	m.metrics.ObserveEvent(ev.Kind.String())
	result := m.store.IngestRemoteMessage(ctx, ev.Message)
	m.metrics.ObserveIngest(result.String())

	// a peer's message ends their typing indicator
	if result == store.IngestAppended && ev.Message.SenderId != m.store.UserId() {
		m.typing.OnRemoteTyping(ctx, &entity.TypingEvent{
			ConversationId: ev.Message.ConversationId,
			UserId:         ev.Message.SenderId,
			Typing:         false,
		})
	}
}

func (m *Messenger) onTyping(ctx context.Context, ev *gateway.Event) {
	m.metrics.ObserveEvent(ev.Kind.String())
	m.typing.OnRemoteTyping(ctx, ev.Typing)
}

func (m *Messenger) onReceipt(ctx context.Context, ev *gateway.Event) {
	m.metrics.ObserveEvent(ev.Kind.String())
	if m.receipts.OnRemoteReceipt(ctx, ev.Receipt) {
		m.notify(Update{Kind: UpdateMessages, ConversationId: ev.ConversationId})
	}
}

func (m *Messenger) onDeletion(ctx context.Context, ev *gateway.Event) {
	m.metrics.ObserveEvent(ev.Kind.String())
	m.store.ApplyRemoteDeletion(ctx, ev.Deletion)
}

func (m *Messenger) onPresence(ctx context.Context, ev *gateway.Event) {
	m.metrics.ObserveEvent(ev.Kind.String())
	if m.presence.Apply(ctx, ev.Presence) {
		m.notify(Update{Kind: UpdateConversations})
	}
}
