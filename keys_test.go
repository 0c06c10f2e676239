package ratelimiter

import (
	"encoding/base64"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCounterKey_IsStable(t *testing.T) {
	rule := &Rule{Endpoint: "get:/api/*", Period: "1m", Limit: 10}
	id := NewIdentity("client-a", "10.0.0.1", "/api/values", "GET")
	b := NewCounterKeyBuilder(ClientKeyBuilder("crlc"), EndpointKeyBuilder())

	first := b.Build(id, rule)
	for i := 0; i < 100; i++ {
		assert.Equal(t, first, b.Build(id, rule))
	}
	assert.Equal(t, first, NewCounterKeyBuilder(ClientKeyBuilder("crlc"), EndpointKeyBuilder()).Build(id, rule))
}

func TestCounterKey_IsBoundedAndURLSafe(t *testing.T) {
	long := "/" + string(make([]byte, 4096))
	id := NewIdentity("c", "::1", long, "post")
	key := NewCounterKeyBuilder(IPKeyBuilder("crlc"), EndpointKeyBuilder()).Build(id, &Rule{Endpoint: `^post:/(a|b)+$`, Period: "1s"})

	raw, err := base64.RawURLEncoding.DecodeString(key)
	require.NoError(t, err)
	assert.Len(t, raw, 32)
	assert.NotContains(t, key, "/")
	assert.NotContains(t, key, "+")
}

func TestCounterKey_Discriminates(t *testing.T) {
	builders := map[string]*CounterKeyBuilder{
		"client": NewCounterKeyBuilder(ClientKeyBuilder("crlc"), EndpointKeyBuilder()),
		"ip":     NewCounterKeyBuilder(IPKeyBuilder("crlc"), EndpointKeyBuilder()),
	}
	rules := []*Rule{
		{Endpoint: "*", Period: "1s"},
		{Endpoint: "*", Period: "1m"},
		{Endpoint: "get:/a", Period: "1s"},
		{Endpoint: "*:/a", Period: "1s"},
	}
	verbs := []string{"get", "post"}

	for name, b := range builders {
		t.Run(name, func(t *testing.T) {
			seen := make(map[string]string)
			for i := 0; i < 1300; i++ {
				for _, verb := range verbs {
					for ri, rule := range rules {
						var id Identity
						if name == "client" {
							id = NewIdentity(fmt.Sprintf("client-%d", i%650), "10.0.0.1", fmt.Sprintf("/p/%d", i/650), verb)
						} else {
							id = NewIdentity("anon", fmt.Sprintf("10.0.%d.%d", i/256, i%256), fmt.Sprintf("/p/%d", i%2), verb)
						}
						in := fmt.Sprintf("%s|%s|%s|%s|%d", id.ClientID, id.ClientIP, id.Path, id.HTTPVerb, ri)
						key := b.Build(id, rule)
						if prev, dup := seen[key]; dup {
							t.Fatalf("collision between %s and %s", prev, in)
						}
						seen[key] = in
					}
				}
			}
			assert.GreaterOrEqual(t, len(seen), 10400)
		})
	}
}

func TestCounterKey_EndpointSalt(t *testing.T) {
	rule := &Rule{Endpoint: "*", Period: "1m"}
	a := NewIdentity("c", "1.1.1.1", "/a", "get")
	b := NewIdentity("c", "1.1.1.1", "/b", "get")

	plain := NewCounterKeyBuilder(ClientKeyBuilder("crlc"), nil)
	assert.Equal(t, plain.Build(a, rule), plain.Build(b, rule), "without the endpoint builder a wildcard rule shares one counter")

	salted := NewCounterKeyBuilder(ClientKeyBuilder("crlc"), EndpointKeyBuilder())
	assert.NotEqual(t, salted.Build(a, rule), salted.Build(b, rule))
}

func TestComposeKey_IsUnambiguous(t *testing.T) {
	assert.NotEqual(t, composeKey("ab", "c"), composeKey("a", "bc"))
	assert.NotEqual(t, composeKey("a:", "b"), composeKey("a", ":b"))
	assert.NotEqual(t, composeKey("", "x"), composeKey("x", ""))
}
