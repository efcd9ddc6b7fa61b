package presence

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/mbeoliero/kit/log"
	"github.com/redis/go-redis/v9"

	"github.com/mbeoliero/nexosync/internal/entity"
	"github.com/mbeoliero/nexosync/pkg/constant"
)

// Tracker keeps the last known presence of users
type Tracker struct {
	mu    sync.RWMutex
	users map[string]*entity.Presence // userId -> presence
	rdb   *redis.Client
	ttl   time.Duration
}

// NewTracker creates a new Tracker; rdb may be nil to keep presence process local
func NewTracker(rdb *redis.Client, ttl time.Duration) *Tracker {
	if ttl <= 0 {
		ttl = 2 * time.Minute
	}
	return &Tracker{
		users: make(map[string]*entity.Presence),
		rdb:   rdb,
		ttl:   ttl,
	}
}

// Apply records a presence update, reporting whether the status changed
func (t *Tracker) Apply(ctx context.Context, p *entity.Presence) bool {
	if p == nil || p.UserId == "" {
		return false
	}

	t.mu.Lock()
	prev, exists := t.users[p.UserId]
	if exists && !p.LastSeen.IsZero() && p.LastSeen.Before(prev.LastSeen) {
		// stale update
		t.mu.Unlock()
		return false
	}
	cp := *p
	t.users[p.UserId] = &cp
	changed := !exists || prev.Status != p.Status
	t.mu.Unlock()

	// Update Redis presence
	if p.Status == entity.PresenceOffline {
		t.setOffline(ctx, p.UserId)
	} else {
		t.setOnline(ctx, p.UserId, p.Status)
	}
	return changed
}

// Get returns the presence of userId
func (t *Tracker) Get(userId string) (entity.Presence, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	p, exists := t.users[userId]
	if !exists {
		return entity.Presence{}, false
	}
	return *p, true
}

// Status returns the status of userId, offline when unknown
func (t *Tracker) Status(userId string) entity.PresenceStatus {
	if p, ok := t.Get(userId); ok {
		return p.Status
	}
	return entity.PresenceOffline
}

// hasPresence checks if user is known online or away locally
func (t *Tracker) hasPresence(userId string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()

	p, exists := t.users[userId]
	return exists && p.Status != entity.PresenceOffline
}

// IsOnline checks if user is online (checks Redis for sibling engine processes)
func (t *Tracker) IsOnline(ctx context.Context, userId string) bool {
	// First check local
	if t.hasPresence(userId) {
		return true
	}
	if _, known := t.Get(userId); known {
		return false
	}

	// Then check Redis for multi-instance support
	if t.rdb != nil {
		key := fmt.Sprintf(constant.RedisKeyPresence(), userId)
		exists, err := t.rdb.Exists(ctx, key).Result()
		if err != nil {
			log.CtxDebug(ctx, "presence lookup failed: user_id=%s, err=%v", userId, err)
			return false
		}
		return exists > 0
	}

	return false
}

// OnlineCount returns the number of users known online or away
func (t *Tracker) OnlineCount() int {
	t.mu.RLock()
	defer t.mu.RUnlock()

	count := 0
	for _, p := range t.users {
		if p.Status != entity.PresenceOffline {
			count++
		}
	}
	return count
}

// OnlineUserIds returns all users known online or away, sorted (local only)
func (t *Tracker) OnlineUserIds() []string {
	t.mu.RLock()
	userIds := make([]string, 0, len(t.users))
	for userId, p := range t.users {
		if p.Status != entity.PresenceOffline {
			userIds = append(userIds, userId)
		}
	}
	t.mu.RUnlock()

	sort.Strings(userIds)
	return userIds
}

// Refresh extends the Redis TTL of every user known online
func (t *Tracker) Refresh(ctx context.Context) {
	if t.rdb == nil {
		return
	}

	for _, userId := range t.OnlineUserIds() {
		key := fmt.Sprintf(constant.RedisKeyPresence(), userId)
		if err := t.rdb.Expire(ctx, key, t.ttl).Err(); err != nil {
			log.CtxDebug(ctx, "refresh presence failed: user_id=%s, err=%v", userId, err)
		}
	}
}

// Run refreshes the Redis mirror every half TTL until ctx is done
func (t *Tracker) Run(ctx context.Context) {
	if t.rdb == nil {
		return
	}
	ticker := time.NewTicker(t.ttl / 2)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			t.Refresh(ctx)
		}
	}
}

// Reset forgets every user locally, used on logout
func (t *Tracker) Reset() {
	t.mu.Lock()
	t.users = make(map[string]*entity.Presence)
	t.mu.Unlock()
}

// setOnline marks user as present in Redis
func (t *Tracker) setOnline(ctx context.Context, userId string, status entity.PresenceStatus) {
	if t.rdb == nil {
		return
	}

	key := fmt.Sprintf(constant.RedisKeyPresence(), userId)
	if err := t.rdb.Set(ctx, key, string(status), t.ttl).Err(); err != nil {
		log.CtxWarn(ctx, "mirror presence failed: user_id=%s, err=%v", userId, err)
	}
}

// setOffline removes user presence from Redis
func (t *Tracker) setOffline(ctx context.Context, userId string) {
	if t.rdb == nil {
		return
	}

	key := fmt.Sprintf(constant.RedisKeyPresence(), userId)
	if err := t.rdb.Del(ctx, key).Err(); err != nil {
		log.CtxWarn(ctx, "clear presence failed: user_id=%s, err=%v", userId, err)
	}
}
