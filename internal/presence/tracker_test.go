package presence

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mbeoliero/nexosync/internal/entity"
	"github.com/mbeoliero/nexosync/pkg/constant"
)

func TestApplyTracksStatus(t *testing.T) {
	ctx := context.Background()
	tr := NewTracker(nil, time.Minute)
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	assert.Equal(t, entity.PresenceOffline, tr.Status("bob"))
	assert.True(t, tr.Apply(ctx, &entity.Presence{UserId: "bob", Status: entity.PresenceOnline, LastSeen: now}))
	assert.False(t, tr.Apply(ctx, &entity.Presence{UserId: "bob", Status: entity.PresenceOnline, LastSeen: now.Add(time.Second)}))
	assert.True(t, tr.IsOnline(ctx, "bob"))

	// an older update is ignored
	assert.False(t, tr.Apply(ctx, &entity.Presence{UserId: "bob", Status: entity.PresenceOffline, LastSeen: now}))
	assert.Equal(t, entity.PresenceOnline, tr.Status("bob"))

	assert.True(t, tr.Apply(ctx, &entity.Presence{UserId: "carol", Status: entity.PresenceAway}))
	assert.Equal(t, 2, tr.OnlineCount())
	assert.Equal(t, []string{"bob", "carol"}, tr.OnlineUserIds())

	assert.True(t, tr.Apply(ctx, &entity.Presence{UserId: "bob", Status: entity.PresenceOffline, LastSeen: now.Add(time.Minute)}))
	assert.False(t, tr.IsOnline(ctx, "bob"))
	assert.Equal(t, []string{"carol"}, tr.OnlineUserIds())

	assert.False(t, tr.Apply(ctx, &entity.Presence{}))
	tr.Reset()
	assert.Equal(t, 0, tr.OnlineCount())
}

// TestRedisMirror needs a live Redis; set REDIS_ADDR to run it
func TestRedisMirror(t *testing.T) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set")
	}
	ctx := context.Background()
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	defer rdb.Close()
	require.NoError(t, rdb.Ping(ctx).Err())

	constant.InitRedisKeyPrefix("nexosync_test:")
	writer := NewTracker(rdb, time.Minute)
	reader := NewTracker(rdb, time.Minute)

	writer.Apply(ctx, &entity.Presence{UserId: "mirror_user", Status: entity.PresenceOnline})
	assert.True(t, reader.IsOnline(ctx, "mirror_user"))

	writer.Refresh(ctx)
	ttl, err := rdb.TTL(ctx, "nexosync_test:presence:mirror_user").Result()
	require.NoError(t, err)
	assert.Greater(t, ttl, time.Duration(0))

	writer.Apply(ctx, &entity.Presence{UserId: "mirror_user", Status: entity.PresenceOffline})
	assert.False(t, reader.IsOnline(ctx, "mirror_user"))
}
