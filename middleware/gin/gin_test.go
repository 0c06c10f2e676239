package gin

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	ratelimiter "github.com/jassus213/go-quota-limiter"
	"github.com/jassus213/go-quota-limiter/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRouter(t *testing.T, opts ratelimiter.Options, options ...ratelimiter.Option) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	counters := store.NewLockingStore(store.NewMemory(context.Background(), 0), nil)
	p, err := ratelimiter.NewIPProcessor(opts, counters, store.NewMemoryPolicies())
	require.NoError(t, err)

	r := gin.New()
	r.Use(RateLimiter(p, options...))
	r.GET("/ping", func(c *gin.Context) { c.String(http.StatusOK, "pong") })
	r.POST("/ping", func(c *gin.Context) { c.String(http.StatusOK, "pong") })
	return r
}

func do(r http.Handler, method, ip string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(method, "/ping", nil)
	req.Header.Set("X-Real-IP", ip)
	r.ServeHTTP(rec, req)
	return rec
}

func TestRateLimiter_PerIP(t *testing.T) {
	r := newRouter(t, ratelimiter.Options{
		GeneralRules: []*ratelimiter.Rule{{Endpoint: "*", Period: "1h", Limit: 1}},
	})

	rec := do(r, http.MethodGet, "10.0.0.1")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "pong", rec.Body.String())
	assert.Equal(t, "0", rec.Header().Get(ratelimiter.HeaderRemaining))

	rec = do(r, http.MethodGet, "10.0.0.1")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEqual(t, "pong", rec.Body.String(), "handler must not run after abort")

	rec = do(r, http.MethodGet, "10.0.0.2")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRateLimiter_EndpointRules(t *testing.T) {
	r := newRouter(t, ratelimiter.Options{
		EnableEndpointRateLimiting: true,
		GeneralRules: []*ratelimiter.Rule{
			{Endpoint: "post:/ping", Period: "1h", Limit: 1},
		},
	})

	assert.Equal(t, http.StatusOK, do(r, http.MethodPost, "10.0.0.1").Code)
	assert.Equal(t, http.StatusTooManyRequests, do(r, http.MethodPost, "10.0.0.1").Code)

	for i := 0; i < 3; i++ {
		assert.Equal(t, http.StatusOK, do(r, http.MethodGet, "10.0.0.1").Code, "GET has no matching rule")
	}
}

func TestRateLimiter_Whitelist(t *testing.T) {
	r := newRouter(t, ratelimiter.Options{
		IPWhitelist:  []string{"192.168.0.0/16"},
		GeneralRules: []*ratelimiter.Rule{{Endpoint: "*", Period: "1h", Limit: 0}},
	})

	rec := do(r, http.MethodGet, "192.168.10.20")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Header().Get(ratelimiter.HeaderLimit))

	assert.Equal(t, http.StatusTooManyRequests, do(r, http.MethodGet, "10.0.0.1").Code)
}

func TestRateLimiter_CustomStatusAndHeadersDisabled(t *testing.T) {
	r := newRouter(t, ratelimiter.Options{
		HTTPStatusCode:          http.StatusServiceUnavailable,
		DisableRateLimitHeaders: true,
		QuotaExceededMessage:    "slow down: {0} per {1}",
		GeneralRules:            []*ratelimiter.Rule{{Endpoint: "*", Period: "90s", Limit: 1}},
	})

	rec := do(r, http.MethodGet, "10.0.0.1")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Header().Get(ratelimiter.HeaderRemaining))

	rec = do(r, http.MethodGet, "10.0.0.1")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Empty(t, rec.Header().Get(ratelimiter.HeaderRetryAfter))
	assert.Equal(t, "slow down: 1 per 1m30s", rec.Body.String())
}
