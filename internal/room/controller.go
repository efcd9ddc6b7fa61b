package room

import (
	"context"
	"sort"
	"sync"

	"github.com/mbeoliero/kit/log"
)

// Joiner subscribes the live connection to conversation channels
type Joiner interface {
	Join(ctx context.Context, conversationId string) error
	Leave(ctx context.Context, conversationId string) error
}

// Controller reference counts room subscriptions across viewers.
// A room is joined on the first Enter and left when the last viewer leaves.
type Controller struct {
	joiner Joiner

	mu      sync.Mutex
	refs    map[string]int
	joined  map[string]bool
	joining map[string]bool
}

// NewController creates an empty subscription table
func NewController(joiner Joiner) *Controller {
	return &Controller{
		joiner:  joiner,
		refs:    make(map[string]int),
		joined:  make(map[string]bool),
		joining: make(map[string]bool),
	}
}

// Enter registers a viewer of conversationId and joins the room if it is not joined yet.
// A failed join keeps the reference so the next Replay picks it up.
// If the last viewer left while the join was in flight, the room is left again.
func (c *Controller) Enter(ctx context.Context, conversationId string) error {
	c.mu.Lock()
	c.refs[conversationId]++
	if c.joined[conversationId] || c.joining[conversationId] {
		c.mu.Unlock()
		return nil
	}
	c.joining[conversationId] = true
	c.mu.Unlock()

	err := c.joiner.Join(ctx, conversationId)

	c.mu.Lock()
	delete(c.joining, conversationId)
	_, viewed := c.refs[conversationId]
	if viewed {
		c.joined[conversationId] = err == nil
	}
	c.mu.Unlock()

	if !viewed {
		if err != nil {
			return nil
		}
		log.CtxDebug(ctx, "room released during join: conversation_id=%s", conversationId)
		return c.joiner.Leave(ctx, conversationId)
	}
	if err != nil {
		log.CtxDebug(ctx, "join deferred to replay: conversation_id=%s, err=%v", conversationId, err)
		return err
	}
	log.CtxDebug(ctx, "room joined: conversation_id=%s", conversationId)
	return nil
}

// Leave drops one viewer and leaves the room when none remain
func (c *Controller) Leave(ctx context.Context, conversationId string) error {
	c.mu.Lock()
	n, ok := c.refs[conversationId]
	if !ok {
		c.mu.Unlock()
		return nil
	}
	if n > 1 {
		c.refs[conversationId] = n - 1
		c.mu.Unlock()
		return nil
	}
	delete(c.refs, conversationId)
	wasJoined := c.joined[conversationId]
	delete(c.joined, conversationId)
	c.mu.Unlock()

	if !wasJoined {
		return nil
	}
	if err := c.joiner.Leave(ctx, conversationId); err != nil {
		log.CtxWarn(ctx, "leave room failed: conversation_id=%s, err=%v", conversationId, err)
		return err
	}
	log.CtxDebug(ctx, "room left: conversation_id=%s", conversationId)
	return nil
}

// Replay re-joins every room with a positive count, after a reconnect.
// Every room is attempted; the first error is returned.
func (c *Controller) Replay(ctx context.Context) error {
	rooms := c.Active()

	var firstErr error
	for _, conversationId := range rooms {
		if err := ctx.Err(); err != nil {
			return err
		}
		err := c.joiner.Join(ctx, conversationId)

		c.mu.Lock()
		if _, ok := c.refs[conversationId]; ok {
			c.joined[conversationId] = err == nil
		}
		c.mu.Unlock()

		if err != nil {
			log.CtxWarn(ctx, "replay join failed: conversation_id=%s, err=%v", conversationId, err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	log.CtxInfo(ctx, "rooms replayed: count=%d", len(rooms))
	return firstErr
}

// Active returns the rooms with a positive count, sorted
func (c *Controller) Active() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	rooms := make([]string, 0, len(c.refs))
	for id := range c.refs {
		rooms = append(rooms, id)
	}
	sort.Strings(rooms)
	return rooms
}

// RefCount returns the number of viewers of conversationId
func (c *Controller) RefCount(conversationId string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.refs[conversationId]
}

// IsJoined reports whether the room is currently joined on the live connection
func (c *Controller) IsJoined(conversationId string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.joined[conversationId]
}

// Reset forgets every room without leaving, used on logout
func (c *Controller) Reset() {
	c.mu.Lock()
	c.refs = make(map[string]int)
	c.joined = make(map[string]bool)
	c.joining = make(map[string]bool)
	c.mu.Unlock()
}
