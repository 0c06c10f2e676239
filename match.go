package ratelimiter

import (
	"regexp"
	"strings"
	"sync"
)

// patternCache holds compiled endpoint patterns. Patterns come from rules and
// whitelists, so the set is bounded by configuration.
var patternCache sync.Map // map[patternKey]*regexp.Regexp

type patternKey struct {
	pattern string
	regex   bool
}

// MatchEndpoint reports whether source ("{verb}:{path}" or "*:{path}")
// matches pattern. In wildcard mode "*" matches any run of characters and "?"
// any single character. In regex mode pattern is anchored at both ends. Both
// modes are case-insensitive. The pattern "*" matches everything in either
// mode.
func MatchEndpoint(source, pattern string, useRegex bool) bool {
	switch pattern {
	case "":
		return false
	case "*":
		return true
	}
	re, err := compileEndpoint(pattern, useRegex)
	if err != nil {
		return false
	}
	return re.MatchString(source)
}

func compileEndpoint(pattern string, useRegex bool) (*regexp.Regexp, error) {
	if pattern == "*" {
		pattern, useRegex = ".*", true
	}
	key := patternKey{pattern: pattern, regex: useRegex}
	if re, ok := patternCache.Load(key); ok {
		return re.(*regexp.Regexp), nil
	}

	var expr string
	if useRegex {
		expr = pattern
		if !strings.HasSuffix(expr, "$") {
			expr += "$"
		}
		if !strings.HasPrefix(expr, "^") {
			expr = "^" + expr
		}
		expr = "(?i)" + expr
	} else {
		expr = regexp.QuoteMeta(pattern)
		expr = strings.ReplaceAll(expr, `\*`, ".*")
		expr = strings.ReplaceAll(expr, `\?`, ".")
		expr = "(?is)^" + expr + "$"
	}

	re, err := regexp.Compile(expr)
	if err != nil {
		return nil, err
	}
	patternCache.Store(key, re)
	return re, nil
}
