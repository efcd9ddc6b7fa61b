package typing

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/mbeoliero/kit/log"
	"golang.org/x/time/rate"

	"github.com/mbeoliero/nexosync/internal/entity"
)

// Emitter sends the local user's typing state on the live connection
type Emitter interface {
	SendTyping(ctx context.Context, conversationId string, typing bool) error
}

// Options tunes typing timing
type Options struct {
	// TTL bounds how long a remote start stays visible without a refresh
	TTL time.Duration
	// RefreshInterval is the minimum gap between two local start emissions
	RefreshInterval time.Duration
	// IdleTimeout auto-stops local typing without input
	IdleTimeout time.Duration
}

func (o Options) withDefaults() Options {
	if o.TTL <= 0 {
		o.TTL = 5 * time.Second
	}
	if o.RefreshInterval <= 0 {
		o.RefreshInterval = 3 * time.Second
	}
	if o.IdleTimeout <= 0 {
		o.IdleTimeout = 4 * time.Second
	}
	return o
}

type localState struct {
	limiter   *rate.Limiter
	lastInput time.Time
}

// Aggregator tracks remote typing signals per conversation and user, and
// throttles the local user's own start/stop emissions. Expiry is swept in one place.
type Aggregator struct {
	emitter Emitter
	opts    Options
	now     func() time.Time

	mu      sync.Mutex
	self    string
	signals map[string]map[string]time.Time // conversationId -> userId -> expiresAt
	local   map[string]*localState

	subMu  sync.RWMutex
	subs   map[int]func(conversationId string)
	nextId int
}

// Option configures an Aggregator
type Option func(*Aggregator)

// WithClock replaces time.Now
func WithClock(now func() time.Time) Option {
	return func(a *Aggregator) {
		a.now = now
	}
}

// NewAggregator creates an empty aggregator
func NewAggregator(emitter Emitter, opts Options, extra ...Option) *Aggregator {
	a := &Aggregator{
		emitter: emitter,
		opts:    opts.withDefaults(),
		now:     time.Now,
		signals: make(map[string]map[string]time.Time),
		local:   make(map[string]*localState),
		subs:    make(map[int]func(string)),
	}
	for _, opt := range extra {
		opt(a)
	}
	return a
}

// SetUserId sets the local user, whose own remote echoes are ignored
func (a *Aggregator) SetUserId(userId string) {
	a.mu.Lock()
	a.self = userId
	a.mu.Unlock()
}

// Subscribe calls fn with the conversation id whenever its typing set changes
func (a *Aggregator) Subscribe(fn func(conversationId string)) func() {
	a.subMu.Lock()
	a.nextId++
	id := a.nextId
	a.subs[id] = fn
	a.subMu.Unlock()

	return func() {
		a.subMu.Lock()
		delete(a.subs, id)
		a.subMu.Unlock()
	}
}

func (a *Aggregator) notify(conversationIds ...string) {
	if len(conversationIds) == 0 {
		return
	}
	a.subMu.RLock()
	ids := make([]int, 0, len(a.subs))
	for id := range a.subs {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	fns := make([]func(string), 0, len(ids))
	for _, id := range ids {
		fns = append(fns, a.subs[id])
	}
	a.subMu.RUnlock()

	for _, conversationId := range conversationIds {
		for _, fn := range fns {
			fn(conversationId)
		}
	}
}

// SetTyping reports local input. A start is emitted at most once per refresh
// interval; a stop is emitted once, and automatically after the idle timeout.
func (a *Aggregator) SetTyping(ctx context.Context, conversationId string, isTyping bool) error {
	now := a.now()

	a.mu.Lock()
	st, active := a.local[conversationId]
	emit := false
	switch {
	case isTyping && !active:
		st = &localState{limiter: rate.NewLimiter(rate.Every(a.opts.RefreshInterval), 1)}
		a.local[conversationId] = st
		st.lastInput = now
		emit = st.limiter.AllowN(now, 1)
	case isTyping:
		st.lastInput = now
		emit = st.limiter.AllowN(now, 1)
	case active:
		delete(a.local, conversationId)
		emit = true
	}
	a.mu.Unlock()

	if !emit {
		return nil
	}
	if err := a.emitter.SendTyping(ctx, conversationId, isTyping); err != nil {
		log.CtxDebug(ctx, "emit typing failed: conversation_id=%s, typing=%v, err=%v", conversationId, isTyping, err)
		return err
	}
	return nil
}

// OnRemoteTyping applies a remote start (replacing any previous signal) or stop
func (a *Aggregator) OnRemoteTyping(ctx context.Context, ev *entity.TypingEvent) bool {
	if ev == nil || ev.ConversationId == "" || ev.UserId == "" {
		return false
	}
	now := a.now()

	a.mu.Lock()
	if ev.UserId == a.self {
		a.mu.Unlock()
		return false
	}
	users := a.signals[ev.ConversationId]
	changed := false
	if ev.Typing {
		if users == nil {
			users = make(map[string]time.Time)
			a.signals[ev.ConversationId] = users
		}
		prev, ok := users[ev.UserId]
		changed = !ok || !prev.After(now)
		users[ev.UserId] = now.Add(a.opts.TTL)
	} else if _, ok := users[ev.UserId]; ok {
		delete(users, ev.UserId)
		if len(users) == 0 {
			delete(a.signals, ev.ConversationId)
		}
		changed = true
	}
	a.mu.Unlock()

	if changed {
		log.CtxDebug(ctx, "remote typing: conversation_id=%s, user_id=%s, typing=%v", ev.ConversationId, ev.UserId, ev.Typing)
		a.notify(ev.ConversationId)
	}
	return changed
}

// Sweep removes expired remote signals and auto-stops idle local typing
func (a *Aggregator) Sweep(ctx context.Context) {
	now := a.now()
	var expired, idle []string

	a.mu.Lock()
	for conversationId, users := range a.signals {
		n := len(users)
		for userId, expiresAt := range users {
			if !expiresAt.After(now) {
				delete(users, userId)
			}
		}
		if len(users) != n {
			expired = append(expired, conversationId)
		}
		if len(users) == 0 {
			delete(a.signals, conversationId)
		}
	}
	for conversationId, st := range a.local {
		if now.Sub(st.lastInput) >= a.opts.IdleTimeout {
			delete(a.local, conversationId)
			idle = append(idle, conversationId)
		}
	}
	a.mu.Unlock()

	sort.Strings(expired)
	sort.Strings(idle)
	for _, conversationId := range idle {
		if err := a.emitter.SendTyping(ctx, conversationId, false); err != nil {
			log.CtxDebug(ctx, "emit idle typing stop failed: conversation_id=%s, err=%v", conversationId, err)
		}
	}
	a.notify(expired...)
}

// Run sweeps every interval until ctx is done
func (a *Aggregator) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			a.Sweep(ctx)
		}
	}
}

// TypingUsers returns the users typing in a conversation, sorted. Expired
// signals are never reported, even before a sweep.
func (a *Aggregator) TypingUsers(conversationId string) []string {
	now := a.now()
	a.mu.Lock()
	defer a.mu.Unlock()

	users := make([]string, 0, len(a.signals[conversationId]))
	for userId, expiresAt := range a.signals[conversationId] {
		if expiresAt.After(now) {
			users = append(users, userId)
		}
	}
	sort.Strings(users)
	return users
}

// IsTyping reports whether userId is typing in a conversation
func (a *Aggregator) IsTyping(conversationId, userId string) bool {
	now := a.now()
	a.mu.Lock()
	defer a.mu.Unlock()
	expiresAt, ok := a.signals[conversationId][userId]
	return ok && expiresAt.After(now)
}

// Signals returns the live signals of a conversation
func (a *Aggregator) Signals(conversationId string) []entity.TypingSignal {
	now := a.now()
	a.mu.Lock()
	defer a.mu.Unlock()

	out := make([]entity.TypingSignal, 0, len(a.signals[conversationId]))
	for userId, expiresAt := range a.signals[conversationId] {
		if expiresAt.After(now) {
			out = append(out, entity.TypingSignal{ConversationId: conversationId, UserId: userId, ExpiresAt: expiresAt})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserId < out[j].UserId })
	return out
}

// IsLocalTyping reports whether the local user is typing in a conversation
func (a *Aggregator) IsLocalTyping(conversationId string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	_, ok := a.local[conversationId]
	return ok
}

// Reset drops all signals without emitting, used on logout
func (a *Aggregator) Reset() {
	a.mu.Lock()
	a.self = ""
	a.signals = make(map[string]map[string]time.Time)
	a.local = make(map[string]*localState)
	a.mu.Unlock()
}
