package service

import (
	"context"
	"time"

	"room_chat/internal/repository"
	"room_chat/pkg/logger"
)

type RateLimitResult struct {
	Allowed    bool
	Limit      int
	Remaining  int
	RetryAfter time.Duration
}

// RateLimitService applies a fixed-window limit on message sends per user.
type RateLimitService interface {
	AllowSend(ctx context.Context, userID string) (*RateLimitResult, error)
}

type rateLimitService struct {
	rateLimitRepo repository.RateLimitRepository
	limit         int
	window        time.Duration
	log           logger.Logger
}

func NewRateLimitService(rateLimitRepo repository.RateLimitRepository, limit int, window time.Duration, log logger.Logger) RateLimitService {
	return &rateLimitService{
		rateLimitRepo: rateLimitRepo,
		limit:         limit,
		window:        window,
		log:           log,
	}
}

func sendLimitKey(userID string) string {
	return "ratelimit:send:" + userID
}

func (s *rateLimitService) AllowSend(ctx context.Context, userID string) (*RateLimitResult, error) {
	key := sendLimitKey(userID)

	count, err := s.rateLimitRepo.Increment(ctx, key, s.window)
	if err != nil {
		return nil, err
	}

	result := &RateLimitResult{
		Allowed:   count <= int64(s.limit),
		Limit:     s.limit,
		Remaining: max(s.limit-int(count), 0),
	}

	if !result.Allowed {
		ttl, err := s.rateLimitRepo.TTL(ctx, key)
		if err != nil {
			ttl = s.window
		}
		result.RetryAfter = ttl
		s.log.Debug("Send rate limit exceeded", "user_id", userID, "count", count)
	}

	return result, nil
}
