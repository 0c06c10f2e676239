// Package gin adapts a ratelimiter.Processor to the Gin web framework.
package gin

import (
	"github.com/gin-gonic/gin"
	ratelimiter "github.com/jassus213/go-quota-limiter"
)

// RateLimiter creates a new Gin middleware handler.
//
// It uses the provided Processor to check whether a request is within quota.
// The behavior of the middleware can be customized by passing functional
// options, such as changing how a client is identified (WithIdentityFunc),
// how blocked requests are answered (WithErrorHandler) or whether store
// failures admit the request (WithFailOpen).
//
// Example:
//
//	p, _ := ratelimiter.NewClientProcessor(opts, counters, policies)
//	router := gin.Default()
//	// Apply middleware globally
//	router.Use(ginlimiter.RateLimiter(p))
func RateLimiter(p *ratelimiter.Processor, options ...ratelimiter.Option) gin.HandlerFunc {
	cfg := ratelimiter.NewConfig(options...)
	if cfg.IdentityFunc == nil {
		cfg.IdentityFunc = p.IdentityFunc()
	}

	return func(c *gin.Context) {
		identity, err := cfg.IdentityFunc(c.Request)
		if err != nil {
			cfg.Logger.Errorf("Failed to resolve identity: %v", err)
			fail(cfg, c, err)
			return
		}

		d, err := p.Check(c.Request.Context(), identity)
		if err != nil {
			cfg.Logger.Errorf("Rate limit check failed for client '%s': %v", identity.ClientID, err)
			fail(cfg, c, err)
			return
		}

		if !d.Allowed {
			cfg.Logger.Debugf(
				"Request denied for client '%s' by rule %s/%s. Retry after: %ds",
				identity.ClientID, d.Rule.Endpoint, d.Rule.Period, d.RetryAfter,
			)
			cfg.ErrorHandler(c.Writer, c.Request, ratelimiter.ErrorExceeded, d)
			c.Abort()
			return
		}

		ratelimiter.SetRateLimitHeaders(c.Writer.Header(), d.Headers)
		cfg.Logger.Debugf("Request allowed for client '%s'", identity.ClientID)
		c.Next()
	}
}

func fail(cfg *ratelimiter.Config, c *gin.Context, err error) {
	if cfg.FailOpen {
		c.Next()
		return
	}
	cfg.ErrorHandler(c.Writer, c.Request, err, nil)
	c.Abort()
}
