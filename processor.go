package ratelimiter

import (
	"context"
	"errors"
	"strconv"
	"time"
)

// RuleSource returns the policy rules bound to identity. It returns nil when
// no policy applies; general rules are added by the Processor.
type RuleSource func(ctx context.Context, identity Identity) ([]*Rule, error)

// ClientPolicyRules looks up the policy stored under "{prefix}_{clientID}".
func ClientPolicyRules(policies PolicyStore, prefix string) RuleSource {
	return func(ctx context.Context, identity Identity) ([]*Rule, error) {
		policy, ok, err := policies.ClientPolicy(ctx, prefix+"_"+identity.ClientID)
		if err != nil || !ok || policy == nil {
			return nil, err
		}
		return policy.Rules, nil
	}
}

// IPPolicyRules loads the IP policy collection stored under key and returns
// the rules of every entry whose range contains the client address.
func IPPolicyRules(policies PolicyStore, key string) RuleSource {
	return func(ctx context.Context, identity Identity) ([]*Rule, error) {
		all, ok, err := policies.IPPolicies(ctx, key)
		if err != nil || !ok || all == nil {
			return nil, err
		}
		var rules []*Rule
		for _, p := range all.IPRules {
			if p != nil && ContainsIP(p.IP, identity.ClientIP) {
				rules = append(rules, p.Rules...)
			}
		}
		return rules, nil
	}
}

// Processor resolves the rules that apply to a request, maintains their
// counters and decides whether the request is within quota.
//
// The client and IP variants differ only in the RuleSource and the key
// dimension; use NewClientProcessor or NewIPProcessor for those. A Processor
// is safe for concurrent use.
type Processor struct {
	opts            Options
	counters        CounterStore
	rules           RuleSource
	keys            *CounterKeyBuilder
	baseKeys        KeyBuilder
	endpointKeys    KeyBuilder
	clientWhitelist map[string]struct{}
	ipWhitelist     IPSet

	incrementer Incrementer
	blockedHook BlockedHook
	logger      Logger
	metrics     Metrics
	now         func() time.Time
}

// NewProcessor creates a Processor counting into counters, taking policy
// rules from rules and deriving counter keys with keys.
//
// opts is copied; defaults are applied to the copy and it is validated.
// Missing collaborators and invalid options yield a *ConfigurationError.
func NewProcessor(opts Options, counters CounterStore, rules RuleSource, keys KeyBuilder, options ...ProcessorOption) (*Processor, error) {
	if counters == nil {
		return nil, configError("counter_store", errors.New("no counter store configured"))
	}
	if rules == nil {
		return nil, configError("rule_source", errors.New("no rule source configured"))
	}
	if keys == nil {
		return nil, configError("key_builder", errors.New("no key builder configured"))
	}

	opts.ApplyDefaults()
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	ips, err := ParseIPSet(opts.IPWhitelist)
	if err != nil {
		return nil, configError("ip_whitelist", err)
	}

	p := &Processor{
		opts:            opts,
		counters:        counters,
		rules:           rules,
		baseKeys:        keys,
		clientWhitelist: make(map[string]struct{}, len(opts.ClientWhitelist)),
		ipWhitelist:     ips,
		logger:          noopLogger{},
		metrics:         noopMetrics{},
		now:             time.Now,
	}
	for _, id := range opts.ClientWhitelist {
		p.clientWhitelist[id] = struct{}{}
	}
	for _, o := range options {
		o(p)
	}

	var endpoint KeyBuilder
	if opts.EnableEndpointRateLimiting {
		endpoint = p.endpointKeys
	}
	p.keys = NewCounterKeyBuilder(p.baseKeys, endpoint)
	return p, nil
}

// NewClientProcessor limits by client id. Policies are looked up under
// "{ClientPolicyPrefix}_{clientID}".
func NewClientProcessor(opts Options, counters CounterStore, policies PolicyStore, options ...ProcessorOption) (*Processor, error) {
	if policies == nil {
		return nil, configError("policy_store", errors.New("no policy store configured"))
	}
	opts.ApplyDefaults()
	return NewProcessor(opts, counters, ClientPolicyRules(policies, opts.ClientPolicyPrefix), ClientKeyBuilder(opts.CounterPrefix), options...)
}

// NewIPProcessor limits by client address. The IP policy collection is
// stored under IPPolicyKey.
func NewIPProcessor(opts Options, counters CounterStore, policies PolicyStore, options ...ProcessorOption) (*Processor, error) {
	if policies == nil {
		return nil, configError("policy_store", errors.New("no policy store configured"))
	}
	opts.ApplyDefaults()
	return NewProcessor(opts, counters, IPPolicyRules(policies, opts.IPPolicyKey), IPKeyBuilder(opts.CounterPrefix), options...)
}

// Options returns a copy of the effective options.
func (p *Processor) Options() Options {
	return p.opts
}

// IdentityFunc returns the request resolver matching the configured client
// id and real ip headers.
func (p *Processor) IdentityFunc() IdentityFunc {
	return ResolveIdentity(p.opts.ClientIDHeader, p.opts.RealIPHeader)
}

// IsWhitelisted reports whether identity bypasses every limit: its client id
// is whitelisted, its address is inside a whitelisted range, or its endpoint
// matches a whitelisted pattern.
func (p *Processor) IsWhitelisted(identity Identity) bool {
	if _, ok := p.clientWhitelist[identity.ClientID]; ok {
		return true
	}
	if identity.ClientIP != "" && p.ipWhitelist.Contains(identity.ClientIP) {
		return true
	}
	if len(p.opts.EndpointWhitelist) > 0 {
		verb := identity.HTTPVerb + ":" + identity.Path
		anyVerb := "*:" + identity.Path
		for _, pattern := range p.opts.EndpointWhitelist {
			if MatchEndpoint(verb, pattern, p.opts.EnableRegexRuleMatching) ||
				MatchEndpoint(anyVerb, pattern, p.opts.EnableRegexRuleMatching) {
				return true
			}
		}
	}
	return false
}

// MatchingRules returns the rules identity is checked against, at most one
// per period, in evaluation order.
func (p *Processor) MatchingRules(ctx context.Context, identity Identity) ([]*Rule, error) {
	policyRules, err := p.rules(ctx, identity)
	if err != nil {
		p.logger.Errorf("Policy lookup failed for client %s ip %s: %v", identity.ClientID, identity.ClientIP, err)
		return nil, err
	}
	return MatchRules(identity, policyRules, p.opts.GeneralRules, MatchOptions{
		EnableEndpointRateLimiting: p.opts.EnableEndpointRateLimiting,
		EnableRegexRuleMatching:    p.opts.EnableRegexRuleMatching,
		StackBlockedRequests:       p.opts.StackBlockedRequests,
	})
}

// CounterKey returns the counter id for identity under rule.
func (p *Processor) CounterKey(identity Identity, rule *Rule) string {
	return p.keys.Build(identity, rule)
}

// ProcessRequest adds the request's cost to the counter of rule and returns
// the updated counter. A new window starts at WindowStart of the current
// time; the counter lives for one period.
func (p *Processor) ProcessRequest(ctx context.Context, identity Identity, rule *Rule) (Counter, error) {
	period, err := rule.PeriodDuration()
	if err != nil {
		return Counter{}, err
	}

	delta := 1.0
	if p.incrementer != nil {
		delta = p.incrementer(identity, rule)
	}
	initial := Counter{Timestamp: WindowStart(period, p.now())}
	id := p.CounterKey(identity, rule)

	start := time.Now()
	counter, err := p.counters.Increment(ctx, id, delta, initial, period)
	p.metrics.ObserveIncrement(time.Since(start), err)
	if err != nil {
		p.logger.Errorf("Increment of counter %s for rule %s/%s failed: %v", id, rule.Endpoint, rule.Period, err)
		return Counter{}, err
	}
	return counter, nil
}

// ResetLimits removes the counters of every rule currently matching
// identity. The next request starts a fresh window.
func (p *Processor) ResetLimits(ctx context.Context, identity Identity) error {
	rules, err := p.MatchingRules(ctx, identity)
	if err != nil {
		return err
	}
	var errs []error
	for _, rule := range rules {
		if err := p.counters.Remove(ctx, p.CounterKey(identity, rule)); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) == 0 {
		p.logger.Debugf("Reset %d counters for client %s ip %s", len(rules), identity.ClientID, identity.ClientIP)
	}
	return errors.Join(errs...)
}

// Headers are the X-Rate-Limit-* values for one rule.
type Headers struct {
	Limit     string
	Remaining string
	Reset     string
}

// RateLimitHeaders computes the headers of rule for counter. A nil or expired
// counter reports the full limit and the end of the current window.
func (p *Processor) RateLimitHeaders(rule *Rule, counter *Counter) Headers {
	period := rule.window()
	now := p.now()

	var remaining float64
	var reset time.Time
	if counter != nil && !counter.Expired(period, now) {
		remaining = rule.Limit - counter.Count
		reset = counter.Timestamp.Add(period)
	} else {
		remaining = rule.Limit
		reset = WindowStart(period, now).Add(period)
	}

	return Headers{
		Limit:     rule.Period,
		Remaining: formatAmount(remaining),
		Reset:     reset.UTC().Format(time.RFC3339),
	}
}

func formatAmount(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
