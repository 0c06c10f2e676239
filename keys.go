package ratelimiter

import (
	"crypto/sha256"
	"encoding/base64"
	"strconv"
	"strings"
)

// KeyBuilder composes the identifying string for an (identity, rule) pair.
type KeyBuilder interface {
	Build(identity Identity, rule *Rule) string
}

// KeyBuilderFunc adapts a function to KeyBuilder.
type KeyBuilderFunc func(identity Identity, rule *Rule) string

func (f KeyBuilderFunc) Build(identity Identity, rule *Rule) string {
	return f(identity, rule)
}

// ClientKeyBuilder identifies client-wide counters: client id, rule period and
// rule endpoint.
func ClientKeyBuilder(prefix string) KeyBuilder {
	return KeyBuilderFunc(func(identity Identity, rule *Rule) string {
		return composeKey(prefix, "client", identity.ClientID, rule.Period, rule.Endpoint)
	})
}

// IPKeyBuilder identifies per-address counters: client ip, rule period and
// rule endpoint.
func IPKeyBuilder(prefix string) KeyBuilder {
	return KeyBuilderFunc(func(identity Identity, rule *Rule) string {
		return composeKey(prefix, "ip", identity.ClientIP, rule.Period, rule.Endpoint)
	})
}

// EndpointKeyBuilder salts a key with the request verb and path so that each
// endpoint gets its own counter under a wildcard rule.
func EndpointKeyBuilder() KeyBuilder {
	return KeyBuilderFunc(func(identity Identity, _ *Rule) string {
		return composeKey("endpoint", identity.HTTPVerb, identity.Path)
	})
}

// composeKey joins parts unambiguously: every part is length-prefixed, so no
// two distinct part lists produce the same string.
func composeKey(parts ...string) string {
	var sb strings.Builder
	for _, p := range parts {
		sb.WriteString(strconv.Itoa(len(p)))
		sb.WriteByte(':')
		sb.WriteString(p)
		sb.WriteByte(';')
	}
	return sb.String()
}

// CounterKeyBuilder turns a composed key into a bounded, storage-safe counter
// id: the URL-safe base64 of its SHA-256 digest.
type CounterKeyBuilder struct {
	base     KeyBuilder
	endpoint KeyBuilder
}

// NewCounterKeyBuilder hashes base's output. When endpoint is non-nil its
// output is appended before hashing; pass nil unless endpoint rate limiting
// is enabled.
func NewCounterKeyBuilder(base, endpoint KeyBuilder) *CounterKeyBuilder {
	return &CounterKeyBuilder{base: base, endpoint: endpoint}
}

// Build returns the counter id for identity under rule.
func (b *CounterKeyBuilder) Build(identity Identity, rule *Rule) string {
	key := b.base.Build(identity, rule)
	if b.endpoint != nil {
		key += b.endpoint.Build(identity, rule)
	}
	sum := sha256.Sum256([]byte(key))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}
