package ratelimiter

import (
	"context"
	"strconv"
	"strings"
)

// Violation is one rule whose counter went over its limit.
type Violation struct {
	Rule       *Rule
	Counter    Counter
	RetryAfter int
}

// Response is the rendered quota exceeded response.
type Response struct {
	StatusCode  int
	ContentType string
	Body        string
}

// Decision is the outcome of Check.
type Decision struct {
	Identity Identity
	// Allowed is false when a rule outside monitor mode blocked the request.
	Allowed bool
	// Whitelisted requests skip rule evaluation entirely.
	Whitelisted bool

	// Rule, Counter, RetryAfter and Response describe the blocking violation.
	// They are zero when the request is allowed.
	Rule       *Rule
	Counter    Counter
	RetryAfter int
	Response   *Response

	// Headers are the X-Rate-Limit-* values of the longest evaluated window.
	// Nil when headers are disabled or no rule with a live counter matched.
	Headers *Headers
	// Violations lists every violation in evaluation order, monitor mode
	// included.
	Violations []Violation
}

// Check runs the full admission sequence for identity: whitelist, rule
// matching, one increment per rule and the quota comparison.
//
// Rules are evaluated in MatchingRules order and evaluation stops at the
// first blocking violation. A counter whose window has already elapsed is
// skipped and left out of the headers. LockingStore and RedisStore replace
// old windows on increment, so only a custom CounterStore can return one.
// A rule with a limit of zero or less always blocks with MaxRetryAfter.
// Store errors are returned as is; Check never turns them into a decision.
func (p *Processor) Check(ctx context.Context, identity Identity) (*Decision, error) {
	d := &Decision{Identity: identity, Allowed: true}

	if p.IsWhitelisted(identity) {
		d.Whitelisted = true
		p.metrics.ObserveDecision(d)
		return d, nil
	}

	rules, err := p.MatchingRules(ctx, identity)
	if err != nil {
		return nil, err
	}

	var (
		headerRule    *Rule
		headerCounter Counter
	)
	now := p.now()
	for _, rule := range rules {
		counter, err := p.ProcessRequest(ctx, identity, rule)
		if err != nil {
			return nil, err
		}
		period := rule.window()
		if rule.Limit > 0 && counter.Expired(period, now) {
			continue
		}

		if headerRule == nil || period > headerRule.window() {
			headerRule, headerCounter = rule, counter
		}

		var retryAfter int
		switch {
		case rule.Limit <= 0:
			retryAfter = MaxRetryAfter
		case counter.Count > rule.Limit:
			retryAfter = RetryAfter(counter.Timestamp, period, now)
		default:
			continue
		}

		v := Violation{Rule: rule, Counter: counter, RetryAfter: retryAfter}
		d.Violations = append(d.Violations, v)
		p.violated(ctx, identity, v)

		if !rule.MonitorMode {
			d.Allowed = false
			d.Rule = rule
			d.Counter = counter
			d.RetryAfter = retryAfter
			resp := p.QuotaExceededResponse(rule, retryAfter)
			d.Response = &resp
			break
		}
	}

	if headerRule != nil && !p.opts.DisableRateLimitHeaders {
		h := p.RateLimitHeaders(headerRule, &headerCounter)
		d.Headers = &h
	}
	p.metrics.ObserveDecision(d)
	return d, nil
}

func (p *Processor) violated(ctx context.Context, identity Identity, v Violation) {
	rule := v.Rule
	p.logger.Infof(
		"Request %s:%s from client %s ip %s has been blocked, quota %s/%s exceeded by %s. Blocked by rule %s. MonitorMode: %t",
		identity.HTTPVerb, identity.Path, identity.ClientID, identity.ClientIP,
		formatAmount(rule.Limit), rule.Period, formatAmount(v.Counter.Count-rule.Limit),
		rule.Endpoint, rule.MonitorMode,
	)
	p.metrics.ObserveViolation(rule, rule.MonitorMode)
	if p.blockedHook != nil {
		p.blockedHook(ctx, identity, v.Counter, rule)
	}
}

// QuotaExceededResponse renders the response for a request blocked by rule.
// The rule override wins over the options override, which wins over
// HTTPStatusCode and QuotaExceededMessage. In the content, {0} is replaced by
// the limit, {1} by the period and {2} by retryAfter.
func (p *Processor) QuotaExceededResponse(rule *Rule, retryAfter int) Response {
	resp := Response{
		StatusCode:  p.opts.HTTPStatusCode,
		ContentType: "text/plain",
		Body:        p.opts.QuotaExceededMessage,
	}
	for _, o := range []*QuotaExceededResponse{p.opts.QuotaExceededResponse, rule.QuotaExceededResponse} {
		if o == nil {
			continue
		}
		if o.StatusCode != 0 {
			resp.StatusCode = o.StatusCode
		}
		if o.ContentType != "" {
			resp.ContentType = o.ContentType
		}
		if o.Content != "" {
			resp.Body = o.Content
		}
	}

	period := rule.Period
	if d := rule.window(); d > 0 {
		period = FormatPeriod(d)
	}
	resp.Body = strings.NewReplacer(
		"{0}", formatAmount(rule.Limit),
		"{1}", period,
		"{2}", strconv.Itoa(retryAfter),
	).Replace(resp.Body)
	return resp
}
