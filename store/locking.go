package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	ratelimiter "github.com/jassus213/go-quota-limiter"
	"github.com/jassus213/go-quota-limiter/keylock"
)

// LockingStore implements ratelimiter.CounterStore over a Cache. Increment
// runs get, add and set while holding the per-key lock of the counter id.
//
// The expiry is re-armed on every write, so an entry outlives its window
// while traffic continues. A counter read from an earlier window is
// therefore replaced by the initial counter instead of being extended.
type LockingStore struct {
	cache Cache
	locks *keylock.Registry
}

// NewLockingStore creates a LockingStore. Stores that must serialize against
// each other can share locks; a nil locks creates a private registry.
func NewLockingStore(cache Cache, locks *keylock.Registry) *LockingStore {
	if locks == nil {
		locks = keylock.New()
	}
	return &LockingStore{cache: cache, locks: locks}
}

// Get returns the counter stored under id.
func (s *LockingStore) Get(ctx context.Context, id string) (ratelimiter.Counter, bool, error) {
	var c ratelimiter.Counter

	b, ok, err := s.cache.Get(ctx, id)
	if err != nil {
		return c, false, ratelimiter.NewStoreError("get", id, err)
	}
	if !ok {
		return c, false, nil
	}
	if err := json.Unmarshal(b, &c); err != nil {
		return c, false, ratelimiter.NewStoreError("get", id, fmt.Errorf("decode counter: %w", err))
	}
	return c, true, nil
}

// Set stores counter under id for ttl.
func (s *LockingStore) Set(ctx context.Context, id string, counter ratelimiter.Counter, ttl time.Duration) error {
	b, err := json.Marshal(counter)
	if err != nil {
		return ratelimiter.NewStoreError("set", id, err)
	}
	return ratelimiter.NewStoreError("set", id, s.cache.Set(ctx, id, b, ttl))
}

// Remove deletes the counter stored under id.
func (s *LockingStore) Remove(ctx context.Context, id string) error {
	return ratelimiter.NewStoreError("remove", id, s.cache.Delete(ctx, id))
}

// Increment adds delta to the counter under id while holding its lock.
// Lock failures (cancellation, keylock.ErrLockTimeout) are returned before
// anything is read or written.
func (s *LockingStore) Increment(ctx context.Context, id string, delta float64, initial ratelimiter.Counter, ttl time.Duration) (ratelimiter.Counter, error) {
	h, err := s.locks.Acquire(ctx, id)
	if err != nil {
		return ratelimiter.Counter{}, fmt.Errorf("lock counter %q: %w", id, err)
	}
	defer h.Release()

	c, ok, err := s.Get(ctx, id)
	if err != nil {
		return ratelimiter.Counter{}, err
	}
	if !ok || !c.Timestamp.Add(ttl).After(initial.Timestamp) {
		c = initial
	}
	c.Count += delta

	if err := s.Set(ctx, id, c, ttl); err != nil {
		return ratelimiter.Counter{}, err
	}
	return c, nil
}
