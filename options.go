package ratelimiter

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// Default option values.
const (
	DefaultHTTPStatusCode       = http.StatusTooManyRequests
	DefaultClientIDHeader       = "X-ClientId"
	DefaultRealIPHeader         = "X-Real-IP"
	DefaultClientPolicyPrefix   = "crlp"
	DefaultIPPolicyKey          = "ippp"
	DefaultCounterPrefix        = "crlc"
	DefaultQuotaExceededMessage = "API calls quota exceeded! maximum admitted {0} per {1}."
)

// Options is the static configuration of a Processor. It is usually loaded
// from YAML by package config and must not be modified after it has been
// passed to a Processor.
type Options struct {
	// ClientWhitelist lists client ids that are never limited.
	ClientWhitelist []string `yaml:"client_whitelist"`
	// IPWhitelist lists addresses, CIDR blocks or "a-b" ranges that are never
	// limited.
	IPWhitelist []string `yaml:"ip_whitelist"`
	// EndpointWhitelist lists "{verb}:{path}" patterns that are never limited.
	EndpointWhitelist []string `yaml:"endpoint_whitelist"`
	// GeneralRules apply to every identity. Policy rules override them per
	// period.
	GeneralRules []*Rule `yaml:"general_rules"`

	EnableEndpointRateLimiting bool `yaml:"enable_endpoint_rate_limiting"`
	EnableRegexRuleMatching    bool `yaml:"enable_regex_rule_matching"`
	StackBlockedRequests       bool `yaml:"stack_blocked_requests"`
	DisableRateLimitHeaders    bool `yaml:"disable_rate_limit_headers"`

	// HTTPStatusCode is written when a request is blocked.
	HTTPStatusCode int `yaml:"http_status_code"`
	// QuotaExceededMessage may contain {0} (limit), {1} (period) and
	// {2} (retry after).
	QuotaExceededMessage string `yaml:"quota_exceeded_message"`
	// QuotaExceededResponse replaces the plain text response for all rules
	// that have no override of their own.
	QuotaExceededResponse *QuotaExceededResponse `yaml:"quota_exceeded_response"`

	ClientIDHeader     string `yaml:"client_id_header"`
	RealIPHeader       string `yaml:"real_ip_header"`
	ClientPolicyPrefix string `yaml:"client_policy_prefix"`
	IPPolicyKey        string `yaml:"ip_policy_key"`
	CounterPrefix      string `yaml:"counter_prefix"`
}

// DefaultOptions returns Options with every default applied and no rules.
func DefaultOptions() Options {
	var o Options
	o.ApplyDefaults()
	return o
}

// ApplyDefaults fills every zero-valued field that has a default.
func (o *Options) ApplyDefaults() {
	if o.HTTPStatusCode == 0 {
		o.HTTPStatusCode = DefaultHTTPStatusCode
	}
	if o.ClientIDHeader == "" {
		o.ClientIDHeader = DefaultClientIDHeader
	}
	if o.RealIPHeader == "" {
		o.RealIPHeader = DefaultRealIPHeader
	}
	if o.ClientPolicyPrefix == "" {
		o.ClientPolicyPrefix = DefaultClientPolicyPrefix
	}
	if o.IPPolicyKey == "" {
		o.IPPolicyKey = DefaultIPPolicyKey
	}
	if o.CounterPrefix == "" {
		o.CounterPrefix = DefaultCounterPrefix
	}
	if o.QuotaExceededMessage == "" {
		o.QuotaExceededMessage = DefaultQuotaExceededMessage
	}
}

// Validate parses every general rule period, whitelist range and, when regex
// matching is enabled, every endpoint pattern. It returns a
// *ConfigurationError for the first problem found.
func (o *Options) Validate() error {
	if o.HTTPStatusCode != 0 && (o.HTTPStatusCode < 100 || o.HTTPStatusCode > 599) {
		return configError("http_status_code", fmt.Errorf("invalid status %d", o.HTTPStatusCode))
	}
	if err := ValidateRules("general_rules", o.GeneralRules, o.EnableRegexRuleMatching); err != nil {
		return err
	}
	if _, err := ParseIPSet(o.IPWhitelist); err != nil {
		return configError("ip_whitelist", err)
	}
	if o.EnableRegexRuleMatching {
		for _, p := range o.EndpointWhitelist {
			if _, err := compileEndpoint(p, true); err != nil {
				return configError("endpoint_whitelist", err)
			}
		}
	}
	return nil
}

// ValidateRules checks that every rule is non-nil, has an endpoint and a
// parseable period. field names the rule set in the returned error.
func ValidateRules(field string, rules []*Rule, regex bool) error {
	for i, r := range rules {
		name := fmt.Sprintf("%s[%d]", field, i)
		if r == nil {
			return configError(name, fmt.Errorf("nil rule"))
		}
		if strings.TrimSpace(r.Endpoint) == "" {
			return configError(name+".endpoint", fmt.Errorf("empty endpoint"))
		}
		if _, err := r.PeriodDuration(); err != nil {
			return configError(name+".period", err)
		}
		if regex {
			if _, err := compileEndpoint(r.Endpoint, true); err != nil {
				return configError(name+".endpoint", err)
			}
		}
	}
	return nil
}

// Incrementer returns the amount a request adds to its counters. Use it for
// cost-weighted requests; the default is 1.
type Incrementer func(identity Identity, rule *Rule) float64

// BlockedHook is called for every rule violation, monitor mode included.
type BlockedHook func(ctx context.Context, identity Identity, counter Counter, rule *Rule)

// ProcessorOption configures optional collaborators of a Processor.
type ProcessorOption func(*Processor)

// WithIncrementer sets the function computing each request's delta.
func WithIncrementer(f Incrementer) ProcessorOption {
	return func(p *Processor) {
		if f != nil {
			p.incrementer = f
		}
	}
}

// WithEndpointKeyBuilder salts counter keys with b's output. It only takes
// effect when EnableEndpointRateLimiting is set.
func WithEndpointKeyBuilder(b KeyBuilder) ProcessorOption {
	return func(p *Processor) {
		p.endpointKeys = b
	}
}

// WithProcessorLogger sets the logger used for blocked requests and store
// failures.
func WithProcessorLogger(l Logger) ProcessorOption {
	return func(p *Processor) {
		if l != nil {
			p.logger = l
		}
	}
}

// WithMetrics sets the metrics sink.
func WithMetrics(m Metrics) ProcessorOption {
	return func(p *Processor) {
		if m != nil {
			p.metrics = m
		}
	}
}

// WithClock replaces time.Now. Tests use it to move across windows.
func WithClock(now func() time.Time) ProcessorOption {
	return func(p *Processor) {
		if now != nil {
			p.now = now
		}
	}
}

// WithBlockedHook sets a callback run for every violation.
func WithBlockedHook(h BlockedHook) ProcessorOption {
	return func(p *Processor) {
		p.blockedHook = h
	}
}

// Logger is a simple interface for logging.
// Users can provide their own logger that implements this interface; see the
// adapters directory for zap, zerolog, logrus and the standard library.
type Logger interface {
	Debugf(format string, args ...interface{})
	Infof(format string, args ...interface{})
	Errorf(format string, args ...interface{})
}

// noopLogger is used when no logger is provided to avoid nil checks.
type noopLogger struct{}

func (noopLogger) Debugf(string, ...interface{}) {}
func (noopLogger) Infof(string, ...interface{})  {}
func (noopLogger) Errorf(string, ...interface{}) {}

// ErrorHandler writes the response for a request that is not admitted.
// err is ErrorExceeded when a rule blocked the request, in which case d is
// the blocking Decision. For any other error d is nil.
type ErrorHandler func(w http.ResponseWriter, r *http.Request, err error, d *Decision)

// Config holds the configurable parameters of the HTTP middlewares.
// Users interact with it via functional options.
type Config struct {
	// IdentityFunc resolves the request identity. When nil, the middleware
	// uses the processor's ResolveIdentity with its configured headers.
	IdentityFunc IdentityFunc
	ErrorHandler ErrorHandler
	Logger       Logger
	// FailOpen admits requests when the identity or the store fails.
	FailOpen bool
}

// Option applies a setting to a Config.
type Option func(*Config)

// NewConfig creates a Config with default settings and applies opts.
func NewConfig(opts ...Option) *Config {
	cfg := &Config{
		ErrorHandler: DefaultErrorHandler,
		Logger:       noopLogger{},
	}
	for _, opt := range opts {
		opt(cfg)
	}
	return cfg
}

// WithIdentityFunc sets a custom identity resolver, for instance to read the
// client id from an authenticated principal instead of a header.
func WithIdentityFunc(f IdentityFunc) Option {
	return func(c *Config) {
		if f != nil {
			c.IdentityFunc = f
		}
	}
}

// WithErrorHandler sets a custom handler for blocked requests and failures.
// This is useful for sending structured JSON error responses.
func WithErrorHandler(f ErrorHandler) Option {
	return func(c *Config) {
		if f != nil {
			c.ErrorHandler = f
		}
	}
}

// WithLogger sets the middleware logger.
func WithLogger(l Logger) Option {
	return func(c *Config) {
		if l != nil {
			c.Logger = l
		}
	}
}

// WithFailOpen admits requests when the counter store or identity
// resolution fails. The default is to fail closed with a 500.
func WithFailOpen() Option {
	return func(c *Config) {
		c.FailOpen = true
	}
}
