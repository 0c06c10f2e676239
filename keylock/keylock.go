// Package keylock provides mutual exclusion scoped to a string key.
//
// Callers locking the same key are serialized; callers locking different keys
// never wait for each other. Waiting honours context cancellation, so a
// stalled key does not pin a goroutine past its deadline.
//
// Entries are reference-counted and removed when the last holder or waiter
// leaves, so the registry does not grow with the number of distinct keys
// ever seen.
//
// Example usage:
//
//	locks := keylock.New(keylock.WithTimeout(time.Second))
//
//	h, err := locks.Acquire(ctx, "counter-id")
//	if err != nil {
//		return err
//	}
//	defer h.Release()
//
//	// read-modify-write the value behind "counter-id"
package keylock

import (
	"context"
	"errors"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"
)

// ErrLockTimeout is returned when a lock could not be acquired within the
// registry timeout.
var ErrLockTimeout = errors.New("keylock: timed out waiting for lock")

type entry struct {
	sem  *semaphore.Weighted
	refs int
}

// Registry hands out per-key locks. The zero value is not usable; create one
// with New. A Registry is safe for concurrent use.
type Registry struct {
	mu      sync.Mutex
	entries map[string]*entry
	timeout time.Duration
}

// Option configures a Registry.
type Option func(*Registry)

// WithTimeout bounds how long Acquire waits. Zero waits until the context is
// done.
func WithTimeout(d time.Duration) Option {
	return func(r *Registry) {
		r.timeout = d
	}
}

// New creates an empty Registry.
func New(opts ...Option) *Registry {
	r := &Registry{entries: make(map[string]*entry)}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Handle is a held lock. Release it exactly once; further calls are no-ops.
type Handle struct {
	r    *Registry
	key  string
	e    *entry
	once sync.Once
}

// Acquire blocks until the lock for key is held, ctx is done or the registry
// timeout elapses. On error the lock is not held and nothing needs to be
// released.
func (r *Registry) Acquire(ctx context.Context, key string) (*Handle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	e := r.ref(key)

	waitCtx := ctx
	if r.timeout > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	if err := e.sem.Acquire(waitCtx, 1); err != nil {
		r.unref(key, e)
		if ctx.Err() == nil && errors.Is(err, context.DeadlineExceeded) {
			return nil, ErrLockTimeout
		}
		return nil, err
	}
	return &Handle{r: r, key: key, e: e}, nil
}

// TryAcquire takes the lock for key only if it is free.
func (r *Registry) TryAcquire(key string) (*Handle, bool) {
	e := r.ref(key)
	if !e.sem.TryAcquire(1) {
		r.unref(key, e)
		return nil, false
	}
	return &Handle{r: r, key: key, e: e}, true
}

// Release unlocks the key.
func (h *Handle) Release() {
	h.once.Do(func() {
		h.e.sem.Release(1)
		h.r.unref(h.key, h.e)
	})
}

// Len returns the number of keys that are held or awaited.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

func (r *Registry) ref(key string) *entry {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[key]
	if !ok {
		e = &entry{sem: semaphore.NewWeighted(1)}
		r.entries[key] = e
	}
	e.refs++
	return e
}

func (r *Registry) unref(key string, e *entry) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e.refs--
	if e.refs == 0 {
		delete(r.entries, key)
	}
}
