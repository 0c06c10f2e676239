// Package ratelimiter decides whether a request is within quota.
//
// A request is described by an Identity (client id, client ip, path, verb).
// Rules from the matching client or IP policy and from the general rule set
// are resolved to at most one rule per period, a counter is incremented for
// every resolved rule, and the counters are compared to the rule limits.
//
// The package defines three core abstractions:
//   - CounterStore: windowed counters with an atomic Increment
//     (see store.LockingStore and store.RedisStore)
//   - PolicyStore: lookup of client and IP policies
//     (see store.MemoryPolicies and store.CachePolicies)
//   - Processor: rule matching, counting and the quota Decision
//
// HTTP integration lives in middleware/nethttp and middleware/gin.
package ratelimiter

import (
	"context"
	"time"
)

// Counter is the usage accumulated in one fixed window. Timestamp is the
// window start; the window covers [Timestamp, Timestamp+period).
type Counter struct {
	Count     float64   `json:"count"`
	Timestamp time.Time `json:"timestamp"`
}

// Expired reports whether the window of length period starting at
// c.Timestamp has elapsed at now. An expired counter is treated as absent.
func (c Counter) Expired(period time.Duration, now time.Time) bool {
	return !now.Before(c.Timestamp.Add(period))
}

// CounterStore keeps counters in a cache with per-entry expiry.
//
// Implementations must be safe for concurrent use and must never lose an
// update when Increment is called concurrently for the same id.
type CounterStore interface {
	// Get returns the stored counter. The boolean is false when the entry is
	// absent or its expiry has passed.
	Get(ctx context.Context, id string) (Counter, bool, error)

	// Set stores counter and arms an expiry of ttl from now.
	Set(ctx context.Context, id string, counter Counter, ttl time.Duration) error

	// Remove deletes the entry. Removing an absent id is not an error.
	Remove(ctx context.Context, id string) error

	// Increment adds delta to the counter for id and returns the new value.
	// It starts from initial when the entry is absent or its window, of
	// length ttl, ended at or before initial.Timestamp. The expiry is ttl.
	Increment(ctx context.Context, id string, delta float64, initial Counter, ttl time.Duration) (Counter, error)
}

// PolicyStore looks up the policies attached to clients and IP ranges.
type PolicyStore interface {
	// ClientPolicy returns the policy stored under key.
	ClientPolicy(ctx context.Context, key string) (*ClientPolicy, bool, error)
	// IPPolicies returns the IP policy collection stored under key.
	IPPolicies(ctx context.Context, key string) (*IPPolicies, bool, error)
}

// Metrics receives decision and store events. See package metrics for a
// Prometheus implementation.
type Metrics interface {
	ObserveDecision(d *Decision)
	ObserveViolation(rule *Rule, monitor bool)
	ObserveIncrement(elapsed time.Duration, err error)
}

type noopMetrics struct{}

func (noopMetrics) ObserveDecision(*Decision)             {}
func (noopMetrics) ObserveViolation(*Rule, bool)          {}
func (noopMetrics) ObserveIncrement(time.Duration, error) {}
