package ratelimiter

import (
	"errors"
	"net/http"
	"strconv"
)

// Response header names.
const (
	HeaderLimit      = "X-Rate-Limit-Limit"
	HeaderRemaining  = "X-Rate-Limit-Remaining"
	HeaderReset      = "X-Rate-Limit-Reset"
	HeaderRetryAfter = "Retry-After"
)

// SetRateLimitHeaders writes the X-Rate-Limit-* headers. A nil h is a no-op.
func SetRateLimitHeaders(header http.Header, h *Headers) {
	if h == nil {
		return
	}
	header.Set(HeaderLimit, h.Limit)
	header.Set(HeaderRemaining, h.Remaining)
	header.Set(HeaderReset, h.Reset)
}

// DefaultErrorHandler renders the quota exceeded response of a blocking
// Decision, with Retry-After unless rate limit headers are disabled. Any
// other error is answered with 500.
func DefaultErrorHandler(w http.ResponseWriter, r *http.Request, err error, d *Decision) {
	if !errors.Is(err, ErrorExceeded) || d == nil || d.Response == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	if d.Headers != nil {
		w.Header().Set(HeaderRetryAfter, strconv.Itoa(d.RetryAfter))
	}
	w.Header().Set("Content-Type", d.Response.ContentType)
	w.WriteHeader(d.Response.StatusCode)
	_, _ = w.Write([]byte(d.Response.Body))
}
