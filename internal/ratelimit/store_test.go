package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	now := time.Unix(1_000, 0)

	b, err := s.Hit(ctx, "k", time.Minute, now)
	require.NoError(t, err)
	assert.Equal(t, 1, b.Count)
	assert.Equal(t, now.Add(time.Minute), b.ResetAt)

	b, _ = s.Hit(ctx, "k", time.Minute, now.Add(59*time.Second))
	assert.Equal(t, 2, b.Count)
	assert.Equal(t, now.Add(time.Minute), b.ResetAt, "reset time is fixed for the window")

	b, _ = s.Hit(ctx, "k", time.Minute, now.Add(time.Minute))
	assert.Equal(t, 1, b.Count, "reaching the reset time starts a new window")
	assert.Equal(t, now.Add(2*time.Minute), b.ResetAt)
}

func TestMemoryStorePrune(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	now := time.Unix(1_000, 0)

	_, _ = s.Hit(ctx, "short", time.Second, now)
	_, _ = s.Hit(ctx, "long", time.Hour, now)
	require.Equal(t, 2, s.Len())

	assert.Equal(t, 1, s.Prune(now.Add(time.Second)))
	assert.Equal(t, 1, s.Len())
}

func TestMemoryStoreJanitorStops(t *testing.T) {
	s := NewMemoryStore()
	_, _ = s.Hit(context.Background(), "k", time.Nanosecond, time.Now())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.RunJanitor(ctx, 5*time.Millisecond)
		close(done)
	}()

	assert.Eventually(t, func() bool { return s.Len() == 0 }, time.Second, 5*time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("janitor did not stop")
	}
}

func newRedisStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewRedisStore(rdb, ""), mr
}

func TestRedisStore(t *testing.T) {
	s, mr := newRedisStore(t)
	ctx := context.Background()
	now := time.Unix(2_000, 0)

	for i := 1; i <= 3; i++ {
		b, err := s.Hit(ctx, "admin:login:post:1.1.1.1", time.Minute, now)
		require.NoError(t, err)
		assert.Equal(t, i, b.Count)
		assert.Equal(t, now.Add(time.Minute), b.ResetAt)
	}
	assert.True(t, mr.Exists("rl:admin:login:post:1.1.1.1"))

	mr.FastForward(20 * time.Second)
	b, err := s.Hit(ctx, "admin:login:post:1.1.1.1", time.Minute, now)
	require.NoError(t, err)
	assert.Equal(t, 4, b.Count)
	assert.Equal(t, now.Add(40*time.Second), b.ResetAt)

	mr.FastForward(40 * time.Second)
	b, err = s.Hit(ctx, "admin:login:post:1.1.1.1", time.Minute, now)
	require.NoError(t, err)
	assert.Equal(t, 1, b.Count, "expired key starts a new window")
}

func TestRedisStoreWithLimiter(t *testing.T) {
	s, _ := newRedisStore(t)
	l := New(s, Rule{Window: time.Minute, Max: 2})
	rule := l.Rule("chat:post")
	ctx := context.Background()

	assert.True(t, l.Take(ctx, "chat:post", "a", rule).Allowed)
	assert.True(t, l.Take(ctx, "chat:post", "a", rule).Allowed)
	d := l.Take(ctx, "chat:post", "a", rule)
	assert.False(t, d.Allowed)
	assert.Greater(t, d.RetryAfter, time.Duration(0))
	assert.True(t, l.Take(ctx, "chat:post", "b", rule).Allowed)
}

func TestRedisStoreUnavailable(t *testing.T) {
	rdb := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		MaxRetries:  -1,
		DialTimeout: 100 * time.Millisecond,
	})
	t.Cleanup(func() { _ = rdb.Close() })
	s := NewRedisStore(rdb, "")

	_, err := s.Hit(context.Background(), "k", time.Minute, time.Now())
	assert.ErrorIs(t, err, ErrStoreUnavailable)

	l := New(s, Rule{Window: time.Minute, Max: 1})
	assert.True(t, l.Take(context.Background(), "r", "c", l.Rule("r")).Allowed, "limiter fails open")
}
