package repository

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"room_chat/pkg/logger"
)

// RateLimitRepository counts events per key in fixed windows.
type RateLimitRepository interface {
	// Increment bumps the counter for key and returns the count within the
	// current window. The window starts with the first hit.
	Increment(ctx context.Context, key string, window time.Duration) (int64, error)
	// TTL reports how long until the current window for key resets.
	TTL(ctx context.Context, key string) (time.Duration, error)
}

type rateLimitRepository struct {
	redis *redis.Client
	log   logger.Logger
}

func NewRateLimitRepository(redis *redis.Client, log logger.Logger) RateLimitRepository {
	return &rateLimitRepository{redis: redis, log: log}
}

func (r *rateLimitRepository) Increment(ctx context.Context, key string, window time.Duration) (int64, error) {
	count, err := r.redis.Incr(ctx, key).Result()
	if err != nil {
		r.log.Error("Failed to increment rate limit", "key", key, "error", err)
		return 0, err
	}

	if count == 1 {
		if err := r.redis.Expire(ctx, key, window).Err(); err != nil {
			r.log.Error("Failed to set rate limit window", "key", key, "error", err)
			return 0, err
		}
	}
	return count, nil
}

func (r *rateLimitRepository) TTL(ctx context.Context, key string) (time.Duration, error) {
	ttl, err := r.redis.TTL(ctx, key).Result()
	if err != nil {
		r.log.Error("Failed to read rate limit ttl", "key", key, "error", err)
		return 0, err
	}
	if ttl < 0 {
		return 0, nil
	}
	return ttl, nil
}
