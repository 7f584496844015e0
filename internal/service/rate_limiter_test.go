package service

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
)

func newMiniredisClient(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return client, mr
}

func TestRateLimiter_Basic(t *testing.T) {
	client, _ := newMiniredisClient(t)
	limiter := NewRateLimiter(client)
	ctx := context.Background()

	t.Run("allows requests within limit", func(t *testing.T) {
		key := "test:user1"
		limit := 3
		window := 10 * time.Second

		for i := 0; i < limit; i++ {
			decision := limiter.CheckLimit(ctx, key, limit, window)
			assert.True(t, decision.Allowed, "Request %d should be allowed", i+1)
			assert.Equal(t, limit-i-1, decision.Remaining)
		}

		decision := limiter.CheckLimit(ctx, key, limit, window)
		assert.False(t, decision.Allowed, "Request should be rate limited")
		assert.Equal(t, 0, decision.Remaining)
		assert.True(t, decision.ResetAt.After(time.Now().Add(-time.Second)), "Reset time should not be in the past")
	})

	t.Run("different keys are independent", func(t *testing.T) {
		limit := 1
		window := 10 * time.Second

		assert.True(t, limiter.CheckLimit(ctx, "test:independent1", limit, window).Allowed)
		assert.False(t, limiter.CheckLimit(ctx, "test:independent1", limit, window).Allowed)
		assert.True(t, limiter.CheckLimit(ctx, "test:independent2", limit, window).Allowed)
	})

	t.Run("keys are namespaced", func(t *testing.T) {
		limiter.CheckLimit(ctx, "test:namespaced", 5, time.Minute)
		n, err := client.Exists(ctx, "ratelimit:test:namespaced").Result()
		assert.NoError(t, err)
		assert.Equal(t, int64(1), n)
	})
}

func TestRateLimiter_DeniesOnRedisFailure(t *testing.T) {
	client, mr := newMiniredisClient(t)
	limiter := NewRateLimiter(client)
	mr.Close()

	decision := limiter.CheckLimit(context.Background(), "test:key", 1, time.Minute)
	assert.False(t, decision.Allowed)
	assert.True(t, decision.ResetAt.After(time.Now()))
}
