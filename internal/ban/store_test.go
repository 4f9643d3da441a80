package ban

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestStore creates a Store connected to a local Redis instance and flushes
// all test ban and report keys. Tests that call this helper require a running
// Redis on localhost:6379.
func newTestStore(t *testing.T) (*Store, *redis.Client) {
	t.Helper()
	client := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Skipf("redis not available: %v", err)
	}
	clean := func() {
		for _, prefix := range []string{BanPrefix + "test_*", ReportsPrefix + "test_*"} {
			iter := client.Scan(ctx, 0, prefix, 100).Iterator()
			for iter.Next(ctx) {
				client.Del(ctx, iter.Val())
			}
		}
	}
	clean()
	t.Cleanup(func() {
		clean()
		client.Close()
	})
	return NewStore(client), client
}

func TestIsBanned_NotBanned(t *testing.T) {
	store, _ := newTestStore(t)

	st, err := store.IsBanned(context.Background(), "test_no_ban")
	require.NoError(t, err)
	assert.False(t, st.Banned)
	assert.Zero(t, st.Remaining)
}

func TestBanAndUnban(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Ban(ctx, "test_ban", 30*time.Second, "spam"))

	st, err := store.IsBanned(ctx, "test_ban")
	require.NoError(t, err)
	assert.True(t, st.Banned)
	assert.Equal(t, "spam", st.Reason)
	assert.InDelta(t, 30, st.Remaining.Seconds(), 2)

	require.NoError(t, store.Unban(ctx, "test_ban"))
	st, err = store.IsBanned(ctx, "test_ban")
	require.NoError(t, err)
	assert.False(t, st.Banned)
}

func TestEscalationDuration(t *testing.T) {
	tests := []struct {
		count int
		want  time.Duration
	}{
		{0, Ban15Min},
		{1, Ban15Min},
		{2, Ban1Hour},
		{3, Ban24Hour},
		{10, Ban24Hour},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, escalationDuration(tt.count), "count=%d", tt.count)
	}
}

func TestEscalate(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()
	user := "test_escalate"

	for i, want := range []time.Duration{Ban15Min, Ban1Hour, Ban24Hour, Ban24Hour} {
		got, err := store.Escalate(ctx, user, "spam")
		require.NoError(t, err)
		assert.Equal(t, want, got, "offense %d", i+1)
	}

	count, err := store.GetOffenseCount(ctx, user)
	require.NoError(t, err)
	assert.Equal(t, 4, count)

	st, err := store.IsBanned(ctx, user)
	require.NoError(t, err)
	assert.True(t, st.Banned)
	assert.Equal(t, "spam", st.Reason)
}

func TestOffenseCounterTTL(t *testing.T) {
	store, client := newTestStore(t)
	ctx := context.Background()

	_, err := store.Escalate(ctx, "test_ttl", ReasonReports)
	require.NoError(t, err)

	ttl, err := client.TTL(ctx, ReportsPrefix+"test_ttl").Result()
	require.NoError(t, err)
	assert.InDelta(t, ReportsTTL.Seconds(), ttl.Seconds(), 5)
}

func TestGetOffenseCount_NoOffenses(t *testing.T) {
	store, _ := newTestStore(t)

	count, err := store.GetOffenseCount(context.Background(), "test_clean")
	require.NoError(t, err)
	assert.Zero(t, count)
}
