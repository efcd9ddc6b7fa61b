package service

import (
	"context"
	"errors"
	"time"

	"github.com/mbeoliero/kit/log"
	"golang.org/x/sync/errgroup"

	"github.com/mbeoliero/nexosync/internal/entity"
	"github.com/mbeoliero/nexosync/pkg/errcode"
)

// resync runs after every (re)connect: rooms are replayed, then every open room
// and the conversation list are refreshed in parallel to repair the event gap.
// Both phases always run; their failures are joined.
func (m *Messenger) resync(ctx context.Context, advance func(entity.ConnStatus)) error {
	start := time.Now()
	ctx, cancel := context.WithTimeout(ctx, m.opts.ResyncTimeout)
	defer cancel()

	var errs []error
	advance(entity.ConnStatusResyncingRooms)
	if err := m.rooms.Replay(ctx); err != nil {
		errs = append(errs, err)
	}

	advance(entity.ConnStatusResyncingHistory)
	var g errgroup.Group
	g.SetLimit(m.opts.ResyncParallel)
	rooms := m.rooms.Active()
	for _, conversationId := range rooms {
		g.Go(func() error {
			added, err := m.store.RefreshLatest(ctx, conversationId)
			m.metrics.ObserveHistory(err)
			if err != nil {
				return err
			}
			if added > 0 {
				log.CtxInfo(ctx, "gap repaired: conversation_id=%s, added=%d", conversationId, added)
			}
			return nil
		})
	}
	g.Go(func() error {
		return m.store.RefreshConversations(ctx)
	})
	if err := g.Wait(); err != nil {
		errs = append(errs, err)
	}

	err := errors.Join(errs...)
	m.metrics.ObserveResync(time.Since(start), err)
	if err != nil {
		return errcode.ErrResyncIncomplete.Wrap(err)
	}
	log.CtxDebug(ctx, "resync done: rooms=%d, elapsed=%s", len(rooms), time.Since(start))
	return nil
}
