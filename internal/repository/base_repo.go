package repository

import (
	"context"
	"fmt"

	"github.com/mbeoliero/kit/log"
	"github.com/redis/go-redis/v9"

	"github.com/mbeoliero/nexosync/internal/config"
	"github.com/mbeoliero/nexosync/sdk"
)

// Repositories holds all repositories
type Repositories struct {
	Upstream *sdk.Client
	// Redis is nil unless redis.enabled is set
	Redis   *redis.Client
	Profile *ProfileRepo
	History *HistoryRepo
}

// NewRepositories creates all repositories
func NewRepositories(cfg *config.Config) (*Repositories, error) {
	upstream, err := sdk.NewClient(cfg.Upstream.APIBaseURL,
		sdk.WithToken(cfg.Upstream.Token),
		sdk.WithTimeout(cfg.Upstream.RequestTimeout),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create upstream client: %w", err)
	}

	repos := &Repositories{Upstream: upstream}
	if cfg.Redis.Enabled {
		repos.Redis = initRedis(cfg)
	}

	repos.Profile = NewProfileRepo(upstream, cfg.Profile.CacheSize, cfg.Profile.CacheTTL)
	repos.History = NewHistoryRepo(upstream, repos.Profile)

	return repos, nil
}

// initRedis initializes Redis connection
func initRedis(cfg *config.Config) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr(),
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
}

// SetToken switches every upstream call to a new credential
func (r *Repositories) SetToken(token, userId string) {
	r.Upstream.SetToken(token)
	r.History.SetUserId(userId)
}

// Close closes all connections
func (r *Repositories) Close() error {
	if r.Redis == nil {
		return nil
	}
	return r.Redis.Close()
}

// CheckConnection checks the optional redis connection is alive
func (r *Repositories) CheckConnection(ctx context.Context) error {
	if r.Redis == nil {
		return nil
	}
	if err := r.Redis.Ping(ctx).Err(); err != nil {
		log.CtxError(ctx, "redis ping failed: %v", err)
		return err
	}
	return nil
}
