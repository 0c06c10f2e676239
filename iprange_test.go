package ratelimiter

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIPRange(t *testing.T) {
	tests := []struct {
		expr string
		in   []string
		out  []string
	}{
		{"10.0.0.1", []string{"10.0.0.1", "::ffff:10.0.0.1"}, []string{"10.0.0.2"}},
		{"10.0.0.0/8", []string{"10.0.0.0", "10.255.255.255", "10.1.2.3"}, []string{"11.0.0.0", "9.255.255.255"}},
		{"192.168.1.10/30", []string{"192.168.1.8", "192.168.1.11"}, []string{"192.168.1.12"}},
		{"10.0.0.1-10.0.0.9", []string{"10.0.0.1", "10.0.0.5", "10.0.0.9"}, []string{"10.0.0.10", "10.0.0.0"}},
		{"10.0.0.9 - 10.0.0.1", []string{"10.0.0.5"}, nil},
		{"2001:db8::/32", []string{"2001:db8::1", "2001:db8:ffff::"}, []string{"2001:db9::", "10.0.0.1"}},
		{"::1", []string{"::1"}, []string{"127.0.0.1"}},
	}
	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			r, err := ParseIPRange(tt.expr)
			require.NoError(t, err)
			for _, ip := range tt.in {
				assert.True(t, r.Contains(ip), "%s should contain %s", tt.expr, ip)
			}
			for _, ip := range tt.out {
				assert.False(t, r.Contains(ip), "%s should not contain %s", tt.expr, ip)
			}
			assert.False(t, r.Contains("not-an-ip"))
		})
	}
}

func TestParseIPRange_Invalid(t *testing.T) {
	for _, expr := range []string{"", "10.0.0", "10.0.0.0/33", "10.0.0.1-::1", "a-b"} {
		_, err := ParseIPRange(expr)
		assert.Error(t, err, expr)
	}
}

func TestIPSet(t *testing.T) {
	set, err := ParseIPSet([]string{"127.0.0.1", "10.0.0.0/8"})
	require.NoError(t, err)
	assert.True(t, set.Contains("127.0.0.1"))
	assert.True(t, set.Contains("10.20.30.40"))
	assert.False(t, set.Contains("192.168.0.1"))

	_, err = ParseIPSet([]string{"127.0.0.1", "bad"})
	assert.Error(t, err)

	assert.True(t, ContainsIP("10.0.0.0/8", "10.1.1.1"))
	assert.False(t, ContainsIP("bad", "10.1.1.1"))
}
