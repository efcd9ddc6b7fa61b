package receipt

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/mbeoliero/kit/log"

	"github.com/mbeoliero/nexosync/internal/entity"
	"github.com/mbeoliero/nexosync/pkg/errcode"
)

// Store is the read state the propagator drives
type Store interface {
	MarkRead(ctx context.Context, conversationId, upToMessageId string, all bool) (*entity.ReadReceipt, bool, error)
	ApplyPeerReceipt(ctx context.Context, r *entity.ReadReceipt) bool
	Message(conversationId, messageId string) (*entity.Message, bool)
	Messages(conversationId string) []*entity.Message
}

// API reports the local user's receipts upstream
type API interface {
	MarkRead(ctx context.Context, receipt *entity.ReadReceipt) error
}

// marker is how far a user has read a conversation
type marker struct {
	seq int64
	at  time.Time
}

// Propagator emits local read receipts and tracks remote read markers for "seen by"
type Propagator struct {
	store Store
	api   API

	mu      sync.Mutex
	markers map[string]map[string]marker // conversationId -> userId -> marker
	pending map[string]*entity.ReadReceipt
}

// NewPropagator creates a Propagator
func NewPropagator(store Store, api API) *Propagator {
	return &Propagator{
		store:   store,
		api:     api,
		markers: make(map[string]map[string]marker),
		pending: make(map[string]*entity.ReadReceipt),
	}
}

// MarkAsRead marks a conversation read up to a message, or entirely for an empty id.
// Repeated calls with the same or an earlier boundary emit nothing, unless an
// earlier emission failed.
func (p *Propagator) MarkAsRead(ctx context.Context, conversationId, upToMessageId string) error {
	receipt, changed, err := p.store.MarkRead(ctx, conversationId, upToMessageId, upToMessageId == "")
	if err != nil {
		return err
	}

	p.mu.Lock()
	if !changed || receipt == nil {
		receipt = p.pending[conversationId]
	}
	delete(p.pending, conversationId)
	p.mu.Unlock()

	if receipt == nil {
		return nil
	}
	if err := p.api.MarkRead(ctx, receipt); err != nil {
		p.mu.Lock()
		if _, ok := p.pending[conversationId]; !ok {
			p.pending[conversationId] = receipt
		}
		p.mu.Unlock()
		log.CtxWarn(ctx, "emit read receipt failed: conversation_id=%s, up_to=%s, err=%v", conversationId, receipt.UpToMessageId, err)
		if errcode.CodeOf(err) != errcode.ErrInternal.Code {
			return err
		}
		return errcode.ErrMarkReadFailed.Wrap(err)
	}
	log.CtxDebug(ctx, "read receipt emitted: conversation_id=%s, up_to=%s, all=%v", conversationId, receipt.UpToMessageId, receipt.All)
	return nil
}

// OnRemoteReceipt applies a peer receipt to the store and advances that peer's
// read marker. Markers never move backward.
func (p *Propagator) OnRemoteReceipt(ctx context.Context, r *entity.ReadReceipt) bool {
	if r == nil || r.ConversationId == "" || r.UserId == "" {
		return false
	}
	changed := p.store.ApplyPeerReceipt(ctx, r)

	seq := r.UpToSeq
	if seq == 0 && r.UpToMessageId != "" {
		if m, ok := p.store.Message(r.ConversationId, r.UpToMessageId); ok {
			seq = m.Seq
		}
	}
	if r.All {
		for _, m := range p.store.Messages(r.ConversationId) {
			seq = max(seq, m.Seq)
		}
	}
	if seq == 0 {
		return changed
	}

	p.mu.Lock()
	users := p.markers[r.ConversationId]
	if users == nil {
		users = make(map[string]marker)
		p.markers[r.ConversationId] = users
	}
	if cur, ok := users[r.UserId]; !ok || seq > cur.seq {
		users[r.UserId] = marker{seq: seq, at: r.ReadAt}
		changed = true
	}
	p.mu.Unlock()
	return changed
}

// SeenBy returns the users other than the sender whose marker covers a message, sorted
func (p *Propagator) SeenBy(conversationId, messageId string) []string {
	m, ok := p.store.Message(conversationId, messageId)
	if !ok || m.Seq == 0 {
		return nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	var users []string
	for userId, mk := range p.markers[conversationId] {
		if userId != m.SenderId && mk.seq >= m.Seq {
			users = append(users, userId)
		}
	}
	sort.Strings(users)
	return users
}

// ReadSeq returns the read marker of userId in a conversation
func (p *Propagator) ReadSeq(conversationId, userId string) int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.markers[conversationId][userId].seq
}

// Reset drops every marker and pending receipt, used on logout
func (p *Propagator) Reset() {
	p.mu.Lock()
	p.markers = make(map[string]map[string]marker)
	p.pending = make(map[string]*entity.ReadReceipt)
	p.mu.Unlock()
}
