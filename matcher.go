package ratelimiter

import (
	"cmp"
	"slices"
)

// MatchOptions are the flags that change how rules are selected.
type MatchOptions struct {
	EnableEndpointRateLimiting bool
	EnableRegexRuleMatching    bool
	StackBlockedRequests       bool
}

// MatchRules resolves the limits that apply to identity. policyRules come from
// the client or IP policy and may be empty; generalRules apply to everyone.
//
// The result holds at most one rule per distinct Period: the policy rule with
// the smallest limit when one exists, otherwise the most restrictive general
// rule. It is sorted by window length, shortest first, or longest first when
// StackBlockedRequests is set. Rules with a malformed period cause an error.
func MatchRules(identity Identity, policyRules, generalRules []*Rule, opts MatchOptions) ([]*Rule, error) {
	var limits []*Rule

	if len(policyRules) > 0 {
		limits = reducePerPeriod(selectRules(identity, policyRules, opts), func(a, b *Rule) int {
			return cmp.Compare(a.Limit, b.Limit)
		})
	}

	if len(generalRules) > 0 {
		general := reducePerPeriod(selectRules(identity, generalRules, opts), func(a, b *Rule) int {
			if c := cmp.Compare(a.Limit, b.Limit); c != 0 {
				return c
			}
			return cmp.Compare(a.Endpoint, b.Endpoint)
		})
		for _, g := range general {
			if !slices.ContainsFunc(limits, func(l *Rule) bool { return l.Period == g.Period }) {
				limits = append(limits, g)
			}
		}
	}

	for _, l := range limits {
		if _, err := l.PeriodDuration(); err != nil {
			return nil, err
		}
	}

	slices.SortStableFunc(limits, func(a, b *Rule) int {
		return cmp.Compare(a.window(), b.window())
	})
	if opts.StackBlockedRequests {
		slices.Reverse(limits)
	}
	return limits, nil
}

// selectRules keeps the rules whose endpoint applies to identity: "*:{path}"
// and "{verb}:{path}" matches when endpoint limiting is on, otherwise only
// rules with endpoint "*".
func selectRules(identity Identity, rules []*Rule, opts MatchOptions) []*Rule {
	var out []*Rule

	if !opts.EnableEndpointRateLimiting {
		for _, r := range rules {
			if r != nil && r.Endpoint == "*" {
				out = append(out, r)
			}
		}
		return out
	}

	anyVerb := "*:" + identity.Path
	verb := identity.HTTPVerb + ":" + identity.Path
	for _, r := range rules {
		if r != nil && MatchEndpoint(anyVerb, r.Endpoint, opts.EnableRegexRuleMatching) {
			out = append(out, r)
		}
	}
	for _, r := range rules {
		if r != nil && MatchEndpoint(verb, r.Endpoint, opts.EnableRegexRuleMatching) {
			out = append(out, r)
		}
	}
	return out
}

// reducePerPeriod keeps, for every distinct Period, the first rule that is
// minimal under compare. Periods keep the order of their first appearance.
func reducePerPeriod(rules []*Rule, compare func(a, b *Rule) int) []*Rule {
	var out []*Rule
	index := make(map[string]int)

	for _, r := range rules {
		i, seen := index[r.Period]
		if !seen {
			index[r.Period] = len(out)
			out = append(out, r)
			continue
		}
		if compare(r, out[i]) < 0 {
			out[i] = r
		}
	}
	return out
}
