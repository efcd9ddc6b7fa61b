package service

import (
	"context"
	"sync"
	"time"

	"github.com/mbeoliero/nexosync/internal/entity"
	"github.com/mbeoliero/nexosync/internal/gateway"
	"github.com/mbeoliero/nexosync/internal/metrics"
	"github.com/mbeoliero/nexosync/internal/presence"
	"github.com/mbeoliero/nexosync/internal/receipt"
	"github.com/mbeoliero/nexosync/internal/room"
	"github.com/mbeoliero/nexosync/internal/store"
	"github.com/mbeoliero/nexosync/internal/typing"
	"github.com/mbeoliero/nexosync/pkg/errcode"
)

// Session switches the credential of upstream requests
type Session interface {
	SetToken(token, userId string)
}

// PresenceSource fetches presence on demand
type PresenceSource interface {
	Presence(ctx context.Context, userIds []string) ([]*entity.Presence, error)
}

// Deps are the components a Messenger drives. Profiles, Session and Metrics are optional.
type Deps struct {
	Conn     *gateway.Manager
	Store    *store.Store
	Rooms    *room.Controller
	Typing   *typing.Aggregator
	Receipts *receipt.Propagator
	Presence *presence.Tracker
	Session  Session
	Profiles PresenceSource
	Metrics  *metrics.Metrics
	Now      func() time.Time
}

// Options tunes the Messenger
type Options struct {
	ResyncTimeout  time.Duration
	ResyncParallel int
	SweepInterval  time.Duration
}

func (o Options) withDefaults() Options {
	if o.ResyncTimeout <= 0 {
		o.ResyncTimeout = 30 * time.Second
	}
	if o.ResyncParallel <= 0 {
		o.ResyncParallel = 4
	}
	if o.SweepInterval <= 0 {
		o.SweepInterval = time.Second
	}
	return o
}

// UpdateKind tells subscribers which view to re-read
type UpdateKind int

const (
	UpdateConversations UpdateKind = iota + 1
	UpdateMessages
	UpdateTyping
	UpdateStatus
)

// Update notifies a view change; ConversationId is empty for global changes
type Update struct {
	Kind           UpdateKind
	ConversationId string
}

// Messenger composes the sync components behind the operations a UI calls
type Messenger struct {
	conn     *gateway.Manager
	store    *store.Store
	rooms    *room.Controller
	typing   *typing.Aggregator
	receipts *receipt.Propagator
	presence *presence.Tracker
	session  Session
	profiles PresenceSource
	metrics  *metrics.Metrics
	now      func() time.Time
	opts     Options

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	loops  sync.WaitGroup

	mu            sync.Mutex
	token         string
	userId        string
	selected      string
	loading       map[string]bool
	loadingMore   map[string]bool
	lastErr       error
	wired         bool
	connectCancel context.CancelFunc

	subMu     sync.RWMutex
	subs      map[int]func(Update)
	nextSubId int
}

// NewMessenger wires the components together; nothing connects until UpdateToken
func NewMessenger(deps Deps, opts Options) *Messenger {
	ctx, cancel := context.WithCancel(context.Background())
	m := &Messenger{
		conn:     deps.Conn,
		store:    deps.Store,
		rooms:    deps.Rooms,
		typing:   deps.Typing,
		receipts: deps.Receipts,
		presence: deps.Presence,
		session:  deps.Session,
		profiles: deps.Profiles,
		metrics:  deps.Metrics,
		now:      deps.Now,
		opts:     opts.withDefaults(),
		ctx:      ctx,
		cancel:   cancel,
		subs:     make(map[int]func(Update)),
	}
	m.resetLoading()
	if m.now == nil {
		m.now = time.Now
	}

	m.store.Subscribe(m.onStoreChange)
	m.typing.Subscribe(func(conversationId string) {
		m.notify(Update{Kind: UpdateTyping, ConversationId: conversationId})
	})
	return m
}

// Start runs the typing sweep and the presence refresh until Stop
func (m *Messenger) Start() {
	m.loops.Add(2)
	go func() {
		defer m.loops.Done()
		m.typing.Run(m.ctx, m.opts.SweepInterval)
	}()
	go func() {
		defer m.loops.Done()
		m.presence.Run(m.ctx)
	}()
}

// Stop disconnects, cancels background work and waits for it
func (m *Messenger) Stop() {
	m.cancel()
	m.conn.Disconnect()
	m.wg.Wait()
	m.loops.Wait()
	m.conn.Wait()
}

// Wait blocks until every fire-and-forget operation started so far has finished
func (m *Messenger) Wait() {
	m.wg.Wait()
}

// Subscribe registers fn for every view update until the returned cancel is called
func (m *Messenger) Subscribe(fn func(Update)) func() {
	m.subMu.Lock()
	m.nextSubId++
	id := m.nextSubId
	m.subs[id] = fn
	m.subMu.Unlock()

	return func() {
		m.subMu.Lock()
		delete(m.subs, id)
		m.subMu.Unlock()
	}
}

func (m *Messenger) notify(u Update) {
	m.subMu.RLock()
	fns := make([]func(Update), 0, len(m.subs))
	for _, fn := range m.subs {
		fns = append(fns, fn)
	}
	m.subMu.RUnlock()

	for _, fn := range fns {
		fn(u)
	}
}

func (m *Messenger) onStoreChange(c store.Change) {
	switch c.Kind {
	case store.ChangeConversation:
		m.notify(Update{Kind: UpdateConversations, ConversationId: c.ConversationId})
	case store.ChangeMessages:
		m.notify(Update{Kind: UpdateMessages, ConversationId: c.ConversationId})
	case store.ChangeReset:
		m.notify(Update{Kind: UpdateConversations})
		m.notify(Update{Kind: UpdateMessages})
	}
}

// goAsync runs fn in the background under the Messenger lifetime
func (m *Messenger) goAsync(fn func(ctx context.Context)) {
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		fn(m.ctx)
	}()
}

func (m *Messenger) setError(err error) {
	m.mu.Lock()
	m.lastErr = err
	m.mu.Unlock()
	m.notify(Update{Kind: UpdateStatus})
}

// selectedOrErr returns the open conversation
func (m *Messenger) selectedOrErr() (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.selected == "" {
		return "", errcode.ErrNoConversation
	}
	return m.selected, nil
}

// Selected returns the open conversation, empty when none
func (m *Messenger) Selected() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.selected
}

// IsConnected reports whether a transport is up, resync included
func (m *Messenger) IsConnected() bool {
	return m.conn.Status().Status.IsUp()
}

// LoadingMessages reports whether the first page of the open conversation is loading
func (m *Messenger) LoadingMessages() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.loading[m.selected]
}

// LoadingMoreMessages reports whether an older page of the open conversation is loading
func (m *Messenger) LoadingMoreMessages() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.loadingMore[m.selected]
}

// resetLoading forgets in-flight loads; callers hold mu or own m exclusively
func (m *Messenger) resetLoading() {
	m.loading = make(map[string]bool)
	m.loadingMore = make(map[string]bool)
}

// HasMoreMessages reports whether the open conversation has older history
func (m *Messenger) HasMoreMessages() bool {
	conversationId := m.Selected()
	if conversationId == "" {
		return false
	}
	return m.store.HasMore(conversationId)
}

// Error returns the last operation error, nil once cleared
func (m *Messenger) Error() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastErr
}

// ClearError dismisses the last error
func (m *Messenger) ClearError() {
	m.setError(nil)
}

// Status is the snapshot of every flag
type Status struct {
	Connection          entity.Connection `json:"connection"`
	UserId              string            `json:"user_id"`
	Selected            string            `json:"selected,omitempty"`
	IsConnected         bool              `json:"is_connected"`
	LoadingMessages     bool              `json:"loading_messages"`
	LoadingMoreMessages bool              `json:"loading_more_messages"`
	HasMoreMessages     bool              `json:"has_more_messages"`
	Error               string            `json:"error,omitempty"`
	OnlineUsers         int               `json:"online_users"`
}

// Status returns the current flags
func (m *Messenger) Status() Status {
	conn := m.conn.Status()
	m.mu.Lock()
	st := Status{
		Connection:          conn,
		UserId:              m.userId,
		Selected:            m.selected,
		IsConnected:         conn.Status.IsUp(),
		LoadingMessages:     m.loading[m.selected],
		LoadingMoreMessages: m.loadingMore[m.selected],
	}
	if m.lastErr != nil {
		st.Error = m.lastErr.Error()
	}
	m.mu.Unlock()

	if st.Selected != "" {
		st.HasMoreMessages = m.store.HasMore(st.Selected)
	}
	st.OnlineUsers = m.presence.OnlineCount()
	return st
}
