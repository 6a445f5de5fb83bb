package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"room_chat/pkg/logger"
)

type memoryCounter struct {
	counts map[string]int64
	err    error
}

func (m *memoryCounter) Increment(_ context.Context, key string, _ time.Duration) (int64, error) {
	if m.err != nil {
		return 0, m.err
	}
	m.counts[key]++
	return m.counts[key], nil
}

func (m *memoryCounter) TTL(context.Context, string) (time.Duration, error) {
	return 42 * time.Second, nil
}

func TestAllowSend(t *testing.T) {
	counter := &memoryCounter{counts: map[string]int64{}}
	limiter := NewRateLimitService(counter, 2, time.Minute, logger.NewNop())
	ctx := context.Background()

	first, err := limiter.AllowSend(ctx, "alice")
	require.NoError(t, err)
	assert.True(t, first.Allowed)
	assert.Equal(t, 1, first.Remaining)

	second, err := limiter.AllowSend(ctx, "alice")
	require.NoError(t, err)
	assert.True(t, second.Allowed)
	assert.Equal(t, 0, second.Remaining)

	third, err := limiter.AllowSend(ctx, "alice")
	require.NoError(t, err)
	assert.False(t, third.Allowed)
	assert.Equal(t, 0, third.Remaining)
	assert.Equal(t, 42*time.Second, third.RetryAfter)

	other, err := limiter.AllowSend(ctx, "bob")
	require.NoError(t, err)
	assert.True(t, other.Allowed)

	assert.Equal(t, int64(3), counter.counts["ratelimit:send:alice"])
}

func TestAllowSendPropagatesErrors(t *testing.T) {
	limiter := NewRateLimitService(&memoryCounter{err: errors.New("redis down")}, 2, time.Minute, logger.NewNop())

	_, err := limiter.AllowSend(context.Background(), "alice")
	assert.Error(t, err)
}
