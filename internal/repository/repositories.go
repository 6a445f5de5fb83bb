package repository

import (
	"github.com/redis/go-redis/v9"
	"room_chat/pkg/logger"
)

type Repositories struct {
	Directory DirectoryStore
	// RateLimit is nil when no Redis is configured.
	RateLimit RateLimitRepository
}

func NewRepositories(directory DirectoryStore, redis *redis.Client, log logger.Logger) *Repositories {
	repos := &Repositories{
		Directory: directory,
	}

	if redis != nil {
		repos.RateLimit = NewRateLimitRepository(redis, log)
		log.Info("Rate limit repository initialized")
	} else {
		log.Warn("Redis is not configured, send rate limiting disabled")
	}

	return repos
}

