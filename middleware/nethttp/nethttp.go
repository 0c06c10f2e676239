// Package nethttp adapts a ratelimiter.Processor to net/http.
package nethttp

import (
	"net/http"

	ratelimiter "github.com/jassus213/go-quota-limiter"
)

// Middleware creates a new middleware handler for the standard `net/http` library.
//
// It wraps an existing `http.Handler` and checks incoming requests against the
// provided Processor. Admitted requests get the `X-Rate-Limit-*` headers of
// the longest matching window; blocked requests are passed to the configured
// ErrorHandler with ratelimiter.ErrorExceeded. Store failures are answered
// with 500 unless ratelimiter.WithFailOpen is set.
//
// Example:
//
//	p, _ := ratelimiter.NewClientProcessor(opts, counters, policies)
//	mux := http.NewServeMux()
//	mux.HandleFunc("/", myHandler)
//
//	rateLimitMiddleware := nethttp.Middleware(p)
//	http.ListenAndServe(":8080", rateLimitMiddleware(mux))
func Middleware(p *ratelimiter.Processor, options ...ratelimiter.Option) func(http.Handler) http.Handler {
	cfg := ratelimiter.NewConfig(options...)
	if cfg.IdentityFunc == nil {
		cfg.IdentityFunc = p.IdentityFunc()
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity, err := cfg.IdentityFunc(r)
			if err != nil {
				cfg.Logger.Errorf("Failed to resolve identity: %v", err)
				fail(cfg, next, w, r, err)
				return
			}

			d, err := p.Check(r.Context(), identity)
			if err != nil {
				cfg.Logger.Errorf("Rate limit check failed for client '%s': %v", identity.ClientID, err)
				fail(cfg, next, w, r, err)
				return
			}

			if !d.Allowed {
				cfg.Logger.Debugf(
					"Request denied for client '%s' by rule %s/%s. Retry after: %ds",
					identity.ClientID, d.Rule.Endpoint, d.Rule.Period, d.RetryAfter,
				)
				cfg.ErrorHandler(w, r, ratelimiter.ErrorExceeded, d)
				return
			}

			ratelimiter.SetRateLimitHeaders(w.Header(), d.Headers)
			cfg.Logger.Debugf("Request allowed for client '%s'", identity.ClientID)
			next.ServeHTTP(w, r)
		})
	}
}

func fail(cfg *ratelimiter.Config, next http.Handler, w http.ResponseWriter, r *http.Request, err error) {
	if cfg.FailOpen {
		next.ServeHTTP(w, r)
		return
	}
	cfg.ErrorHandler(w, r, err, nil)
}
