package store

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	ratelimiter "github.com/jassus213/go-quota-limiter"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestRedis(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return client, mr
}

func TestRedisStore_Increment(t *testing.T) {
	client, mr := setupTestRedis(t)
	s := NewRedis(client, "rl:")
	ctx := context.Background()
	initial := ratelimiter.Counter{Timestamp: windowStart}

	c, err := s.Increment(ctx, "id", 1, initial, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 1.0, c.Count)
	assert.True(t, c.Timestamp.Equal(windowStart))

	c, err = s.Increment(ctx, "id", 0.5, initial, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 1.5, c.Count)

	assert.True(t, mr.Exists("rl:id"))
	assert.Equal(t, "1.5", mr.HGet("rl:id", "count"))
}

func TestRedisStore_ExpiryIsArmedOnce(t *testing.T) {
	client, mr := setupTestRedis(t)
	s := NewRedis(client, "")
	ctx := context.Background()
	initial := ratelimiter.Counter{Timestamp: windowStart}

	_, err := s.Increment(ctx, "id", 1, initial, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, time.Minute, mr.TTL("id"))

	mr.FastForward(20 * time.Second)
	_, err = s.Increment(ctx, "id", 1, initial, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 40*time.Second, mr.TTL("id"), "later increments must not extend the expiry")

	mr.FastForward(40 * time.Second)
	assert.False(t, mr.Exists("id"))

	c, err := s.Increment(ctx, "id", 1, initial, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 1.0, c.Count)
}

func TestRedisStore_NewWindowResetsCounter(t *testing.T) {
	client, _ := setupTestRedis(t)
	s := NewRedis(client, "")
	ctx := context.Background()

	_, err := s.Increment(ctx, "id", 7, ratelimiter.Counter{Timestamp: windowStart}, time.Minute)
	require.NoError(t, err)

	next := windowStart.Add(time.Minute)
	c, err := s.Increment(ctx, "id", 1, ratelimiter.Counter{Timestamp: next}, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 1.0, c.Count)
	assert.True(t, c.Timestamp.Equal(next))
}

func TestRedisStore_ConcurrentIncrementsAreNotLost(t *testing.T) {
	client, _ := setupTestRedis(t)
	s := NewRedis(client, "")
	ctx := context.Background()
	initial := ratelimiter.Counter{Timestamp: windowStart}

	const n = 1000
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.Increment(ctx, "id", 0.1, initial, time.Hour)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	c, ok, err := s.Get(ctx, "id")
	require.NoError(t, err)
	require.True(t, ok)
	assert.InDelta(t, 100.0, c.Count, 1e-6)
}

func TestRedisStore_GetSetRemove(t *testing.T) {
	client, mr := setupTestRedis(t)
	s := NewRedis(client, "p:")
	ctx := context.Background()

	_, ok, err := s.Get(ctx, "id")
	require.NoError(t, err)
	assert.False(t, ok)

	want := ratelimiter.Counter{Count: 4.25, Timestamp: windowStart}
	require.NoError(t, s.Set(ctx, "id", want, time.Minute))
	assert.Equal(t, time.Minute, mr.TTL("p:id"))

	got, ok, err := s.Get(ctx, "id")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, want.Count, got.Count)
	assert.True(t, want.Timestamp.Equal(got.Timestamp))

	require.NoError(t, s.Remove(ctx, "id"))
	require.NoError(t, s.Remove(ctx, "id"))
	_, ok, err = s.Get(ctx, "id")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRedisStore_Unavailable(t *testing.T) {
	client, mr := setupTestRedis(t)
	s := NewRedis(client, "")
	mr.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	_, err := s.Increment(ctx, "id", 1, ratelimiter.Counter{Timestamp: windowStart}, time.Minute)
	require.Error(t, err)
	assert.ErrorIs(t, err, ratelimiter.ErrStoreUnavailable)

	_, _, err = s.Get(ctx, "id")
	assert.ErrorIs(t, err, ratelimiter.ErrStoreUnavailable)
	assert.ErrorIs(t, s.Ping(ctx), ratelimiter.ErrStoreUnavailable)
}
