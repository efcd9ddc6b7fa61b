package gateway

import (
	"context"
	"sync"

	"github.com/mbeoliero/kit/log"

	"github.com/mbeoliero/nexosync/internal/entity"
)

// EventKind identifies a live domain event
type EventKind int

const (
	EventNewMessage EventKind = iota + 1
	EventTyping
	EventReadReceipt
	EventMessageDeleted
	EventPresence
)

func (k EventKind) String() string {
	switch k {
	case EventNewMessage:
		return "new_message"
	case EventTyping:
		return "typing"
	case EventReadReceipt:
		return "read_receipt"
	case EventMessageDeleted:
		return "message_deleted"
	case EventPresence:
		return "presence"
	default:
		return "unknown"
	}
}

// Event is a decoded live event; exactly one payload field is set per kind
type Event struct {
	Kind           EventKind
	ConversationId string
	Message        *entity.Message
	Typing         *entity.TypingEvent
	Receipt        *entity.ReadReceipt
	Deletion       *entity.DeletionEvent
	Presence       *entity.Presence
}

// Handler consumes events synchronously on the read loop
type Handler func(ctx context.Context, ev *Event)

type subscription struct {
	id int
	fn Handler
}

// EventBus fans decoded events out to typed subscribers
type EventBus struct {
	mu       sync.RWMutex
	nextId   int
	handlers map[EventKind][]subscription
}

// NewEventBus creates an empty bus
func NewEventBus() *EventBus {
	return &EventBus{handlers: make(map[EventKind][]subscription)}
}

// Subscribe registers fn for kind and returns its cancel function
func (b *EventBus) Subscribe(kind EventKind, fn Handler) func() {
	b.mu.Lock()
	b.nextId++
	id := b.nextId
	b.handlers[kind] = append(b.handlers[kind], subscription{id: id, fn: fn})
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		subs := b.handlers[kind]
		for i, s := range subs {
			if s.id == id {
				b.handlers[kind] = append(subs[:i:i], subs[i+1:]...)
				return
			}
		}
	}
}

// Publish delivers ev to every subscriber of its kind in registration order.
// A panicking handler is logged and skipped.
func (b *EventBus) Publish(ctx context.Context, ev *Event) {
	b.mu.RLock()
	subs := append([]subscription(nil), b.handlers[ev.Kind]...)
	b.mu.RUnlock()

	for _, s := range subs {
		b.call(ctx, s.fn, ev)
	}
}

func (b *EventBus) call(ctx context.Context, fn Handler, ev *Event) {
	defer func() {
		if r := recover(); r != nil {
			log.CtxError(ctx, "event handler panic: kind=%s, conversation_id=%s, error=%v", ev.Kind, ev.ConversationId, r)
		}
	}()
	fn(ctx, ev)
}

// Clear drops every subscriber
func (b *EventBus) Clear() {
	b.mu.Lock()
	b.handlers = make(map[EventKind][]subscription)
	b.mu.Unlock()
}

// Len returns the number of subscribers of kind
func (b *EventBus) Len(kind EventKind) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.handlers[kind])
}
