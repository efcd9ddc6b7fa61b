package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/simplelru"
	"github.com/mbeoliero/kit/log"
	"golang.org/x/sync/singleflight"

	"github.com/mbeoliero/nexosync/internal/entity"
	"github.com/mbeoliero/nexosync/pkg/errcode"
	"github.com/mbeoliero/nexosync/pkg/idgen"
)

// HistoryAPI is the request/response side of the upstream
type HistoryAPI interface {
	ListConversations(ctx context.Context, cursor string) (*entity.ConversationPage, error)
	FetchMessages(ctx context.Context, conversationId, cursor string, limit int) (*entity.MessagePage, error)
	SendMessage(ctx context.Context, req *entity.SendRequest) (*entity.Message, error)
	MarkRead(ctx context.Context, receipt *entity.ReadReceipt) error
	ArchiveConversation(ctx context.Context, conversationId string, archived bool) error
	DeleteMessage(ctx context.Context, conversationId, messageId string) error
}

// ChangeKind tells subscribers which snapshot to re-read
type ChangeKind int

const (
	ChangeConversation ChangeKind = iota + 1
	ChangeMessages
	ChangeReset
)

// Change is emitted after every committed mutation
type Change struct {
	Kind           ChangeKind
	ConversationId string
}

// Options tunes the store
type Options struct {
	PageSize         int
	EchoWindow       time.Duration
	MaxConversations int
}

func (o Options) withDefaults() Options {
	if o.PageSize <= 0 {
		o.PageSize = 30
	}
	if o.EchoWindow <= 0 {
		o.EchoWindow = 30 * time.Second
	}
	if o.MaxConversations < 0 {
		o.MaxConversations = 0
	}
	return o
}

// Option configures a Store
type Option func(*Store)

// WithClock replaces time.Now
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

// WithIdGenerator replaces the client temp id generator
func WithIdGenerator(gen idgen.IDGenerator) Option {
	return func(s *Store) {
		s.ids = gen
	}
}

// Store is the single source of truth for conversations and messages.
// IO runs outside the lock; results are merged atomically.
type Store struct {
	api  HistoryAPI
	opts Options
	now  func() time.Time
	ids  idgen.IDGenerator
	sf   singleflight.Group

	mu      sync.Mutex
	self    string
	threads map[string]*thread
	pinned  map[string]int
	recent  *simplelru.LRU[string, struct{}]
	live    int64
	history int64

	subMu  sync.RWMutex
	subs   map[int]func(Change)
	nextId int
}

// New creates an empty store backed by api
func New(api HistoryAPI, opts Options, extra ...Option) *Store {
	s := &Store{
		api:     api,
		opts:    opts.withDefaults(),
		now:     time.Now,
		ids:     idgen.NewClientTempIdGenerator(),
		threads: make(map[string]*thread),
		pinned:  make(map[string]int),
		subs:    make(map[int]func(Change)),
	}
	for _, opt := range extra {
		opt(s)
	}
	if s.opts.MaxConversations > 0 {
		// capacity above the cap: eviction is done by hand so pinned threads survive
		s.recent, _ = simplelru.NewLRU[string, struct{}](s.opts.MaxConversations*4, nil)
	}
	return s
}

// SetUserId sets the local user
func (s *Store) SetUserId(userId string) {
	s.mu.Lock()
	s.self = userId
	s.mu.Unlock()
}

// UserId returns the local user
func (s *Store) UserId() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.self
}

// Reset drops all state, used on logout
func (s *Store) Reset() {
	s.mu.Lock()
	s.self = ""
	s.threads = make(map[string]*thread)
	s.pinned = make(map[string]int)
	if s.recent != nil {
		s.recent.Purge()
	}
	s.mu.Unlock()
	s.emit(Change{Kind: ChangeReset})
}

// Subscribe registers fn for every change until the returned cancel is called
func (s *Store) Subscribe(fn func(Change)) func() {
	s.subMu.Lock()
	s.nextId++
	id := s.nextId
	s.subs[id] = fn
	s.subMu.Unlock()

	return func() {
		s.subMu.Lock()
		delete(s.subs, id)
		s.subMu.Unlock()
	}
}

func (s *Store) emit(changes ...Change) {
	if len(changes) == 0 {
		return
	}
	s.subMu.RLock()
	ids := make([]int, 0, len(s.subs))
	for id := range s.subs {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	fns := make([]func(Change), 0, len(ids))
	for _, id := range ids {
		fns = append(fns, s.subs[id])
	}
	s.subMu.RUnlock()

	for _, c := range changes {
		for _, fn := range fns {
			fn(c)
		}
	}
}

// Pin protects an open conversation from eviction
func (s *Store) Pin(conversationId string) {
	s.mu.Lock()
	s.pinned[conversationId]++
	s.mu.Unlock()
}

// Unpin releases one Pin
func (s *Store) Unpin(conversationId string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n := s.pinned[conversationId]; n > 1 {
		s.pinned[conversationId] = n - 1
	} else {
		delete(s.pinned, conversationId)
	}
	s.evictLocked()
}

// threadLocked returns the thread of conversationId, creating a stub when unknown
func (s *Store) threadLocked(conversationId string) *thread {
	t, ok := s.threads[conversationId]
	if !ok {
		t = newThread(entity.NewStubConversation(conversationId))
		s.threads[conversationId] = t
	}
	if s.recent != nil {
		s.recent.Add(conversationId, struct{}{})
		s.evictLocked()
	}
	return t
}

// evictLocked drops the least recently used unpinned threads above the cap
func (s *Store) evictLocked() {
	if s.recent == nil {
		return
	}
	for _, id := range s.recent.Keys() {
		if len(s.threads) <= s.opts.MaxConversations {
			return
		}
		if s.pinned[id] > 0 {
			continue
		}
		delete(s.threads, id)
		s.recent.Remove(id)
		log.Debug("conversation evicted: conversation_id=%s", id)
	}
}

func (s *Store) nextLiveRank() int64 {
	s.live++
	return s.live
}

// Conversations returns deep copies of every conversation, most recent activity first
func (s *Store) Conversations() []*entity.Conversation {
	s.mu.Lock()
	out := make([]*entity.Conversation, 0, len(s.threads))
	for _, t := range s.threads {
		out = append(out, t.conv.Clone())
	}
	s.mu.Unlock()

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].LastActivityAt.Equal(out[j].LastActivityAt) {
			return out[i].Id < out[j].Id
		}
		return out[i].LastActivityAt.After(out[j].LastActivityAt)
	})
	return out
}

// Conversation returns a deep copy of one conversation
func (s *Store) Conversation(conversationId string) (*entity.Conversation, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.threads[conversationId]
	if !ok {
		return nil, false
	}
	return t.conv.Clone(), true
}

// Messages returns deep copies of a conversation's messages in display order
func (s *Store) Messages(conversationId string) []*entity.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.threads[conversationId]
	if !ok {
		return nil
	}
	return t.snapshot()
}

// Message returns a deep copy of one message, by server id or client temp id
func (s *Store) Message(conversationId, messageId string) (*entity.Message, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.threads[conversationId]
	if !ok {
		return nil, false
	}
	e := t.lookup(messageId)
	if e == nil {
		return nil, false
	}
	return e.msg.Clone(), true
}

// Cursor returns the cursor of the next older page
func (s *Store) Cursor(conversationId string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.threads[conversationId]; ok {
		return t.cursor
	}
	return ""
}

// HasMore reports whether older history exists; unknown conversations have more
func (s *Store) HasMore(conversationId string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.threads[conversationId]
	if !ok || !t.loaded {
		return true
	}
	return t.hasMore
}

// Loaded reports whether at least one history page was merged
func (s *Store) Loaded(conversationId string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.threads[conversationId]
	return ok && t.loaded
}

// Unread returns the unread count of userId in a conversation
func (s *Store) Unread(conversationId, userId string) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.threads[conversationId]; ok {
		return t.conv.Unread(userId)
	}
	return 0
}

// coded keeps an already coded error and wraps anything else into base
func coded(base *errcode.Error, err error) error {
	if errcode.CodeOf(err) != errcode.ErrInternal.Code {
		return err
	}
	return base.Wrap(err)
}
