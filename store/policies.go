package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	ratelimiter "github.com/jassus213/go-quota-limiter"
)

// PolicyWriter stores policies. Both MemoryPolicies and CachePolicies
// implement it.
type PolicyWriter interface {
	SetClientPolicy(ctx context.Context, key string, policy *ratelimiter.ClientPolicy) error
	SetIPPolicies(ctx context.Context, key string, policies *ratelimiter.IPPolicies) error
}

// Seed validates and stores the configured policies: every client policy
// under "{ClientPolicyPrefix}_{ClientID}" and the IP policies under
// IPPolicyKey. opts must have its defaults applied.
func Seed(ctx context.Context, w PolicyWriter, opts ratelimiter.Options, clients []*ratelimiter.ClientPolicy, ips *ratelimiter.IPPolicies) error {
	for i, p := range clients {
		if p == nil || p.ClientID == "" {
			return &ratelimiter.ConfigurationError{Field: fmt.Sprintf("client_policies[%d]", i), Err: fmt.Errorf("missing client id")}
		}
		if err := ratelimiter.ValidateRules(fmt.Sprintf("client_policies[%d].rules", i), p.Rules, opts.EnableRegexRuleMatching); err != nil {
			return err
		}
		if err := w.SetClientPolicy(ctx, opts.ClientPolicyPrefix+"_"+p.ClientID, p); err != nil {
			return err
		}
	}

	if ips == nil {
		return nil
	}
	for i, p := range ips.IPRules {
		field := fmt.Sprintf("ip_policies[%d]", i)
		if p == nil {
			return &ratelimiter.ConfigurationError{Field: field, Err: fmt.Errorf("nil policy")}
		}
		if _, err := ratelimiter.ParseIPRange(p.IP); err != nil {
			return &ratelimiter.ConfigurationError{Field: field + ".ip", Err: err}
		}
		if err := ratelimiter.ValidateRules(field+".rules", p.Rules, opts.EnableRegexRuleMatching); err != nil {
			return err
		}
	}
	return w.SetIPPolicies(ctx, opts.IPPolicyKey, ips)
}

// MemoryPolicies keeps policies in process. Stored rules are shared, so
// their parsed periods are reused across requests.
type MemoryPolicies struct {
	mu      sync.RWMutex
	clients map[string]*ratelimiter.ClientPolicy
	ips     map[string]*ratelimiter.IPPolicies
}

// NewMemoryPolicies creates an empty MemoryPolicies.
func NewMemoryPolicies() *MemoryPolicies {
	return &MemoryPolicies{
		clients: make(map[string]*ratelimiter.ClientPolicy),
		ips:     make(map[string]*ratelimiter.IPPolicies),
	}
}

func (m *MemoryPolicies) ClientPolicy(_ context.Context, key string) (*ratelimiter.ClientPolicy, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.clients[key]
	return p, ok, nil
}

func (m *MemoryPolicies) IPPolicies(_ context.Context, key string) (*ratelimiter.IPPolicies, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.ips[key]
	return p, ok, nil
}

func (m *MemoryPolicies) SetClientPolicy(_ context.Context, key string, policy *ratelimiter.ClientPolicy) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.clients[key] = policy
	return nil
}

func (m *MemoryPolicies) SetIPPolicies(_ context.Context, key string, policies *ratelimiter.IPPolicies) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ips[key] = policies
	return nil
}

// RemoveClientPolicy deletes the policy stored under key.
func (m *MemoryPolicies) RemoveClientPolicy(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.clients, key)
	return nil
}

// CachePolicies stores policies as JSON documents in a Cache, so processes
// sharing a RedisCache share their policies. Documents never expire.
//
// Decoded policies are kept per key and reused while the stored document is
// unchanged, so their rules keep the parsed period between requests.
// Callers must treat returned policies as read-only.
type CachePolicies struct {
	cache Cache

	mu      sync.Mutex
	decoded map[string]decodedPolicy
}

type decodedPolicy struct {
	raw   string
	value interface{}
}

// NewCachePolicies creates a CachePolicies over cache.
func NewCachePolicies(cache Cache) *CachePolicies {
	return &CachePolicies{cache: cache, decoded: make(map[string]decodedPolicy)}
}

func (c *CachePolicies) ClientPolicy(ctx context.Context, key string) (*ratelimiter.ClientPolicy, bool, error) {
	return loadPolicy[ratelimiter.ClientPolicy](ctx, c, key)
}

func (c *CachePolicies) IPPolicies(ctx context.Context, key string) (*ratelimiter.IPPolicies, bool, error) {
	return loadPolicy[ratelimiter.IPPolicies](ctx, c, key)
}

func (c *CachePolicies) SetClientPolicy(ctx context.Context, key string, policy *ratelimiter.ClientPolicy) error {
	return c.save(ctx, key, policy)
}

func (c *CachePolicies) SetIPPolicies(ctx context.Context, key string, policies *ratelimiter.IPPolicies) error {
	return c.save(ctx, key, policies)
}

// RemoveClientPolicy deletes the policy stored under key.
func (c *CachePolicies) RemoveClientPolicy(ctx context.Context, key string) error {
	c.forget(key)
	return ratelimiter.NewStoreError("remove policy", key, c.cache.Delete(ctx, key))
}

func loadPolicy[T any](ctx context.Context, c *CachePolicies, key string) (*T, bool, error) {
	b, ok, err := c.cache.Get(ctx, key)
	if err != nil {
		return nil, false, ratelimiter.NewStoreError("get policy", key, err)
	}
	if !ok {
		c.forget(key)
		return nil, false, nil
	}

	raw := string(b)
	c.mu.Lock()
	d, hit := c.decoded[key]
	c.mu.Unlock()
	if hit && d.raw == raw {
		if v, ok := d.value.(*T); ok {
			return v, true, nil
		}
	}

	v := new(T)
	if err := json.Unmarshal(b, v); err != nil {
		return nil, false, ratelimiter.NewStoreError("get policy", key, fmt.Errorf("decode: %w", err))
	}
	c.mu.Lock()
	c.decoded[key] = decodedPolicy{raw: raw, value: v}
	c.mu.Unlock()
	return v, true, nil
}

func (c *CachePolicies) forget(key string) {
	c.mu.Lock()
	delete(c.decoded, key)
	c.mu.Unlock()
}

func (c *CachePolicies) save(ctx context.Context, key string, v interface{}) error {
	b, err := json.Marshal(v)
	if err != nil {
		return ratelimiter.NewStoreError("set policy", key, err)
	}
	return ratelimiter.NewStoreError("set policy", key, c.cache.Set(ctx, key, b, 0))
}
