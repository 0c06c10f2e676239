package ratelimiter

import (
	"math"
	"sync"
	"time"
)

// MaxRetryAfter is reported as Retry-After for rules whose limit is zero or
// negative: no window recovery applies to them.
const MaxRetryAfter = math.MaxInt32

// QuotaExceededResponse overrides the response written when a rule blocks.
// Content may contain {0} (limit), {1} (period) and {2} (retry after).
type QuotaExceededResponse struct {
	Content     string `yaml:"content" json:"content"`
	ContentType string `yaml:"content_type" json:"content_type"`
	StatusCode  int    `yaml:"status_code" json:"status_code"`
}

// Rule limits an endpoint pattern to Limit units per Period.
//
// Rules are read-only once loaded and must be shared by pointer; the parsed
// period is computed once and cached on the rule.
type Rule struct {
	// Endpoint is "*", a "{verb}:{path}" wildcard pattern such as "get:/api/*",
	// or a regular expression when regex matching is enabled.
	Endpoint string `yaml:"endpoint" json:"endpoint"`
	// Period is the window length in ParsePeriod format.
	Period string `yaml:"period" json:"period"`
	// Limit is the admitted amount per window. Zero or less denies everything.
	Limit float64 `yaml:"limit" json:"limit"`
	// MonitorMode records violations without blocking.
	MonitorMode bool `yaml:"monitor_mode" json:"monitor_mode,omitempty"`

	QuotaExceededResponse *QuotaExceededResponse `yaml:"quota_exceeded_response" json:"quota_exceeded_response,omitempty"`

	periodOnce     sync.Once
	periodDuration time.Duration
	periodErr      error
}

// PeriodDuration returns the parsed Period, parsing it on first use.
func (r *Rule) PeriodDuration() (time.Duration, error) {
	r.periodOnce.Do(func() {
		r.periodDuration, r.periodErr = ParsePeriod(r.Period)
	})
	return r.periodDuration, r.periodErr
}

// window returns the parsed period, or zero if the period is malformed.
// Rules reaching the processor have already been parsed by the matcher.
func (r *Rule) window() time.Duration {
	d, _ := r.PeriodDuration()
	return d
}

// WindowStart returns the start of the fixed window of length period that
// contains now. Windows are aligned to the Unix epoch so independent
// processes agree on the boundaries without coordination.
func WindowStart(period time.Duration, now time.Time) time.Time {
	if period <= 0 {
		return now.UTC()
	}
	ns := now.UnixNano()
	return time.Unix(0, ns-ns%int64(period)).UTC()
}

// RetryAfter returns the whole seconds until the window starting at start
// closes, never less than one.
func RetryAfter(start time.Time, period time.Duration, now time.Time) int {
	secs := math.Ceil(start.Add(period).Sub(now).Seconds())
	if secs < 1 {
		return 1
	}
	if secs > MaxRetryAfter {
		return MaxRetryAfter
	}
	return int(secs)
}

// ClientPolicy is the set of rules bound to one client id.
type ClientPolicy struct {
	ClientID string  `yaml:"client_id" json:"client_id"`
	Rules    []*Rule `yaml:"rules" json:"rules"`
}

// IPPolicy is the set of rules bound to an address, CIDR block or "a-b" range.
type IPPolicy struct {
	IP    string  `yaml:"ip" json:"ip"`
	Rules []*Rule `yaml:"rules" json:"rules"`
}

// IPPolicies is the collection stored under the IP policy key.
type IPPolicies struct {
	IPRules []*IPPolicy `yaml:"ip_rules" json:"ip_rules"`
}
