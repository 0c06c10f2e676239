package store

import (
	"context"
	"testing"

	ratelimiter "github.com/jassus213/go-quota-limiter"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type policyStore interface {
	ratelimiter.PolicyStore
	PolicyWriter
	RemoveClientPolicy(ctx context.Context, key string) error
}

func testPolicies() ([]*ratelimiter.ClientPolicy, *ratelimiter.IPPolicies) {
	clients := []*ratelimiter.ClientPolicy{{
		ClientID: "client-a",
		Rules: []*ratelimiter.Rule{
			{Endpoint: "*", Period: "1m", Limit: 10},
			{Endpoint: "get:/api/*", Period: "1h", Limit: 100},
		},
	}}
	ips := &ratelimiter.IPPolicies{IPRules: []*ratelimiter.IPPolicy{
		{IP: "10.0.0.0/8", Rules: []*ratelimiter.Rule{{Endpoint: "*", Period: "1s", Limit: 2}}},
	}}
	return clients, ips
}

func TestPolicyStores(t *testing.T) {
	client, _ := setupTestRedis(t)
	stores := map[string]policyStore{
		"memory":       NewMemoryPolicies(),
		"memory cache": NewCachePolicies(NewMemory(context.Background(), 0)),
		"redis cache":  NewCachePolicies(NewRedisCache(client, "policies:")),
	}

	for name, s := range stores {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			opts := ratelimiter.DefaultOptions()
			clients, ips := testPolicies()

			require.NoError(t, Seed(ctx, s, opts, clients, ips))

			p, ok, err := s.ClientPolicy(ctx, "crlp_client-a")
			require.NoError(t, err)
			require.True(t, ok)
			assert.Equal(t, "client-a", p.ClientID)
			require.Len(t, p.Rules, 2)
			assert.Equal(t, "get:/api/*", p.Rules[1].Endpoint)
			assert.Equal(t, 100.0, p.Rules[1].Limit)

			_, ok, err = s.ClientPolicy(ctx, "crlp_unknown")
			require.NoError(t, err)
			assert.False(t, ok)

			got, ok, err := s.IPPolicies(ctx, "ippp")
			require.NoError(t, err)
			require.True(t, ok)
			require.Len(t, got.IPRules, 1)
			assert.Equal(t, "10.0.0.0/8", got.IPRules[0].IP)

			require.NoError(t, s.RemoveClientPolicy(ctx, "crlp_client-a"))
			_, ok, err = s.ClientPolicy(ctx, "crlp_client-a")
			require.NoError(t, err)
			assert.False(t, ok)
		})
	}
}

func TestSeedRejectsInvalidPolicies(t *testing.T) {
	ctx := context.Background()
	opts := ratelimiter.DefaultOptions()

	tests := []struct {
		name    string
		clients []*ratelimiter.ClientPolicy
		ips     *ratelimiter.IPPolicies
		field   string
	}{
		{
			name:    "missing client id",
			clients: []*ratelimiter.ClientPolicy{{Rules: []*ratelimiter.Rule{{Endpoint: "*", Period: "1m", Limit: 1}}}},
			field:   "client_policies[0]",
		},
		{
			name:    "bad period",
			clients: []*ratelimiter.ClientPolicy{{ClientID: "a", Rules: []*ratelimiter.Rule{{Endpoint: "*", Period: "soon", Limit: 1}}}},
			field:   "client_policies[0].rules[0].period",
		},
		{
			name:  "bad ip range",
			ips:   &ratelimiter.IPPolicies{IPRules: []*ratelimiter.IPPolicy{{IP: "10.0.0.300"}}},
			field: "ip_policies[0].ip",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Seed(ctx, NewMemoryPolicies(), opts, tt.clients, tt.ips)
			require.Error(t, err)
			assert.ErrorIs(t, err, ratelimiter.ErrConfiguration)

			var ce *ratelimiter.ConfigurationError
			require.ErrorAs(t, err, &ce)
			assert.Equal(t, tt.field, ce.Field)
		})
	}
}

func TestMemoryPoliciesShareRules(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryPolicies()
	rule := &ratelimiter.Rule{Endpoint: "*", Period: "1m", Limit: 1}
	require.NoError(t, s.SetClientPolicy(ctx, "k", &ratelimiter.ClientPolicy{ClientID: "c", Rules: []*ratelimiter.Rule{rule}}))

	p, ok, err := s.ClientPolicy(ctx, "k")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Same(t, rule, p.Rules[0])
}

func TestCachePoliciesReuseDecodedRules(t *testing.T) {
	ctx := context.Background()
	s := NewCachePolicies(NewMemory(ctx, 0))
	policy := &ratelimiter.ClientPolicy{ClientID: "c", Rules: []*ratelimiter.Rule{{Endpoint: "*", Period: "1m", Limit: 1}}}
	require.NoError(t, s.SetClientPolicy(ctx, "k", policy))

	first, ok, err := s.ClientPolicy(ctx, "k")
	require.NoError(t, err)
	require.True(t, ok)
	_, err = first.Rules[0].PeriodDuration()
	require.NoError(t, err)

	again, _, err := s.ClientPolicy(ctx, "k")
	require.NoError(t, err)
	assert.Same(t, first, again)
	assert.Same(t, first.Rules[0], again.Rules[0])

	policy.Rules[0].Limit = 5
	require.NoError(t, s.SetClientPolicy(ctx, "k", policy))
	updated, _, err := s.ClientPolicy(ctx, "k")
	require.NoError(t, err)
	assert.NotSame(t, first, updated)
	assert.Equal(t, 5.0, updated.Rules[0].Limit)

	require.NoError(t, s.RemoveClientPolicy(ctx, "k"))
	_, ok, err = s.ClientPolicy(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)
}
