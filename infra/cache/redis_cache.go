package cache

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/amirasaad/treasury/pkg/cache"
	"github.com/amirasaad/treasury/pkg/domain/sunset"
	"github.com/redis/go-redis/v9"
)

const progressKey = "sunset:progress"

// RedisProgressCache implements ProgressCache using Redis so every replica
// serves the same snapshot.
type RedisProgressCache struct {
	client *redis.Client
	prefix string
	logger *slog.Logger
}

// NewRedisProgressCache creates a cache from a redis:// URL.
func NewRedisProgressCache(url, prefix string, logger *slog.Logger) (*RedisProgressCache, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	return NewRedisProgressCacheWithClient(redis.NewClient(opt), prefix, logger), nil
}

// NewRedisProgressCacheWithClient wraps an existing client.
func NewRedisProgressCacheWithClient(client *redis.Client, prefix string, logger *slog.Logger) *RedisProgressCache {
	if logger == nil {
		logger = slog.Default()
	}
	return &RedisProgressCache{client: client, prefix: prefix, logger: logger}
}

func (r *RedisProgressCache) key() string {
	return r.prefix + progressKey
}

func (r *RedisProgressCache) Get(ctx context.Context) (*sunset.Progress, error) {
	val, err := r.client.Get(ctx, r.key()).Bytes()
	if errors.Is(err, redis.Nil) {
		r.logger.Debug("Redis cache miss", "key", r.key())
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Redis cache get error", "key", r.key(), "error", err)
		return nil, err
	}
	var p sunset.Progress
	if err := json.Unmarshal(val, &p); err != nil {
		r.logger.Error("Redis cache unmarshal error", "key", r.key(), "error", err)
		return nil, err
	}
	return &p, nil
}

func (r *RedisProgressCache) Set(ctx context.Context, p sunset.Progress, ttl time.Duration) error {
	data, err := json.Marshal(p)
	if err != nil {
		return err
	}
	if err := r.client.Set(ctx, r.key(), data, ttl).Err(); err != nil {
		r.logger.Error("Redis cache set error", "key", r.key(), "error", err)
		return err
	}
	r.logger.Debug("Redis cache set", "key", r.key(), "ttl", ttl)
	return nil
}

func (r *RedisProgressCache) Delete(ctx context.Context) error {
	return r.client.Del(ctx, r.key()).Err()
}

var _ cache.ProgressCache = (*RedisProgressCache)(nil)
