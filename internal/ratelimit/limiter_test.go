package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLimiter(t *testing.T) (*Limiter, *redis.Client) {
	t.Helper()
	client := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Skipf("redis not available: %v", err)
	}
	t.Cleanup(func() {
		iter := client.Scan(ctx, 0, "rl:test:*", 100).Iterator()
		for iter.Next(ctx) {
			client.Del(ctx, iter.Val())
		}
		client.Close()
	})
	return NewLimiter(client, zerolog.Nop()), client
}

func TestLimiterAllow(t *testing.T) {
	l, client := newTestLimiter(t)
	ctx := context.Background()
	rule := Rule{Key: "rl:test:", Limit: 2, Window: time.Minute}

	ok, err := l.Allow(ctx, "u1", rule)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, _ = l.Allow(ctx, "u1", rule)
	assert.True(t, ok)
	ok, _ = l.Allow(ctx, "u1", rule)
	assert.False(t, ok)

	ttl, err := client.TTL(ctx, "rl:test:u1").Result()
	require.NoError(t, err)
	assert.Greater(t, ttl, time.Duration(0))

	remaining, err := l.Remaining(ctx, "u1", rule)
	require.NoError(t, err)
	assert.Equal(t, 0, remaining)

	remaining, err = l.Remaining(ctx, "u2", rule)
	require.NoError(t, err)
	assert.Equal(t, 2, remaining)
}

func TestLimiterFailsOpen(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "localhost:1", MaxRetries: -1, DialTimeout: 100 * time.Millisecond})
	defer client.Close()
	l := NewLimiter(client, zerolog.Nop())

	ok, err := l.Allow(context.Background(), "u1", RuleSearch)
	assert.Error(t, err)
	assert.True(t, ok)
}
