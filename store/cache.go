// Package store provides counter and policy storage for
// github.com/jassus213/go-quota-limiter.
//
// Counter stores:
//   - LockingStore: read-modify-write under a per-key lock over any Cache.
//     Consistent within one process (or wherever its keylock.Registry is
//     shared).
//   - RedisStore: one atomic Lua script per increment. Consistent across
//     every process sharing the Redis instance.
//
// Caches, the per-entry-expiry key/value layer below LockingStore and
// CachePolicies:
//   - MemoryCache: in-memory, for single-instance applications
//   - RedisCache: Redis strings with PX expiry
//
// Policy stores:
//   - MemoryPolicies: in-process maps
//   - CachePolicies: JSON documents in any Cache
//
// Example usage:
//
//	ctx := context.Background()
//	counters := store.NewLockingStore(store.NewMemory(ctx, time.Minute), nil)
//	policies := store.NewMemoryPolicies()
//	p, err := ratelimiter.NewClientProcessor(opts, counters, policies)
package store

import (
	"context"
	"time"
)

// Cache is a byte-valued key/value store with per-entry expiry.
type Cache interface {
	// Get returns the value stored under key. The boolean is false when the
	// key is absent or expired.
	Get(ctx context.Context, key string) ([]byte, bool, error)
	// Set stores value under key. A ttl of zero or less never expires.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	// Delete removes key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error
}
