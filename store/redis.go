package store

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	ratelimiter "github.com/jassus213/go-quota-limiter"
	"github.com/redis/go-redis/v9"
)

// Hash fields of a counter entry.
const (
	fieldCount = "count"
	fieldTS    = "ts"
)

// incrementLua adds ARGV[1] to the count of KEYS[1] and returns {count, ts}.
//
// ARGV[2] is the start of the caller's window in Unix milliseconds and
// ARGV[3] the window length in milliseconds. An entry whose window ended at
// or before ARGV[2] is dropped first. The expiry is armed only when the entry
// has none, so it is never extended by later increments.
const incrementLua = `
	local key = KEYS[1]
	local start = tonumber(ARGV[2])
	local window = tonumber(ARGV[3])

	local ts = redis.call("HGET", key, "ts")
	if ts and tonumber(ts) + window <= start then
		redis.call("DEL", key)
	end

	local count = redis.call("HINCRBYFLOAT", key, "count", ARGV[1])
	redis.call("HSETNX", key, "ts", ARGV[2])
	if redis.call("PTTL", key) == -1 then
		redis.call("PEXPIRE", key, window)
	end

	return {count, redis.call("HGET", key, "ts")}
`

// RedisStore implements ratelimiter.CounterStore using Redis as the backend.
// It is suitable for distributed systems where multiple application instances
// need to share a common rate-limiting state. Increment is one Lua script,
// so no local lock is involved.
type RedisStore struct {
	client          redis.UniversalClient
	prefix          string
	incrementScript *redis.Script
}

// NewRedis creates a RedisStore that prepends prefix to every counter id.
func NewRedis(client redis.UniversalClient, prefix string) *RedisStore {
	return &RedisStore{
		client:          client,
		prefix:          prefix,
		incrementScript: redis.NewScript(incrementLua),
	}
}

// Get reads the counter hash stored under id.
func (s *RedisStore) Get(ctx context.Context, id string) (ratelimiter.Counter, bool, error) {
	vals, err := s.client.HMGet(ctx, s.prefix+id, fieldCount, fieldTS).Result()
	if err != nil {
		return ratelimiter.Counter{}, false, ratelimiter.NewStoreError("get", id, err)
	}
	if len(vals) != 2 || vals[0] == nil || vals[1] == nil {
		return ratelimiter.Counter{}, false, nil
	}

	c, err := parseCounter(vals[0], vals[1])
	if err != nil {
		return ratelimiter.Counter{}, false, ratelimiter.NewStoreError("get", id, err)
	}
	return c, true, nil
}

// Set replaces the counter hash under id and sets its expiry to ttl.
func (s *RedisStore) Set(ctx context.Context, id string, counter ratelimiter.Counter, ttl time.Duration) error {
	key := s.prefix + id
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, key)
		pipe.HSet(ctx, key, fieldCount, counter.Count, fieldTS, counter.Timestamp.UnixMilli())
		if ttl > 0 {
			pipe.PExpire(ctx, key, ttl)
		}
		return nil
	})
	return ratelimiter.NewStoreError("set", id, err)
}

// Remove deletes the counter under id.
func (s *RedisStore) Remove(ctx context.Context, id string) error {
	return ratelimiter.NewStoreError("remove", id, s.client.Del(ctx, s.prefix+id).Err())
}

// Increment executes the pre-loaded Lua script and parses its {count, ts}
// reply.
func (s *RedisStore) Increment(ctx context.Context, id string, delta float64, initial ratelimiter.Counter, ttl time.Duration) (ratelimiter.Counter, error) {
	res, err := s.incrementScript.Run(ctx, s.client, []string{s.prefix + id},
		delta, initial.Timestamp.UnixMilli(), ttl.Milliseconds()).Result()
	if err != nil {
		return ratelimiter.Counter{}, ratelimiter.NewStoreError("increment", id, err)
	}

	arr, ok := res.([]interface{})
	if !ok || len(arr) < 2 {
		return ratelimiter.Counter{}, ratelimiter.NewStoreError("increment", id, fmt.Errorf("unexpected reply %v", res))
	}
	c, err := parseCounter(arr[0], arr[1])
	if err != nil {
		return ratelimiter.Counter{}, ratelimiter.NewStoreError("increment", id, err)
	}
	return c, nil
}

// Ping checks connectivity.
func (s *RedisStore) Ping(ctx context.Context) error {
	return ratelimiter.NewStoreError("ping", "", s.client.Ping(ctx).Err())
}

func parseCounter(count, ts interface{}) (ratelimiter.Counter, error) {
	cs, ok1 := count.(string)
	tss, ok2 := ts.(string)
	if !ok1 || !ok2 {
		return ratelimiter.Counter{}, errors.New("counter fields are not strings")
	}
	n, err := strconv.ParseFloat(cs, 64)
	if err != nil {
		return ratelimiter.Counter{}, fmt.Errorf("parse count: %w", err)
	}
	ms, err := strconv.ParseInt(tss, 10, 64)
	if err != nil {
		return ratelimiter.Counter{}, fmt.Errorf("parse ts: %w", err)
	}
	return ratelimiter.Counter{Count: n, Timestamp: time.UnixMilli(ms).UTC()}, nil
}
