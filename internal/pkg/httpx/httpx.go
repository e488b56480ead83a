package httpx

import (
	"context"
	"errors"
	"math/rand"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// HTTPStatusCoder is implemented by errors that carry an HTTP status code.
type HTTPStatusCoder interface {
	HTTPStatusCode() int
}

// IsRetryableHTTPStatus reports whether a status code indicates a transient
// condition (timeout, rate limit, server error).
func IsRetryableHTTPStatus(code int) bool {
	if code == http.StatusRequestTimeout || code == http.StatusTooManyRequests {
		return true
	}
	return code >= 500 && code <= 599
}

// IsRetryableError reports whether err is worth retrying at the caller's
// discretion. The embedding client itself never retries; ingestion and repair
// use this to decide whether a failed document stays eligible for a later pass.
func IsRetryableError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	var sc HTTPStatusCoder
	if errors.As(err, &sc) {
		return IsRetryableHTTPStatus(sc.HTTPStatusCode())
	}
	return false
}

// RetryAfterDuration honors a Retry-After header when present, bounded by max.
func RetryAfterDuration(resp *http.Response, fallback, max time.Duration) time.Duration {
	wait := fallback
	if resp != nil {
		if ra := strings.TrimSpace(resp.Header.Get("Retry-After")); ra != "" {
			if secs, err := strconv.Atoi(ra); err == nil && secs > 0 {
				wait = time.Duration(secs) * time.Second
			}
		}
	}
	if max > 0 && wait > max {
		wait = max
	}
	return wait
}

// Jitter spreads a base duration by +/-20% so concurrent workers do not
// synchronize their retries.
func Jitter(base time.Duration) time.Duration {
	if base <= 0 {
		return 0
	}
	spread := float64(base) * 0.2
	return time.Duration(float64(base) - spread + rand.Float64()*2*spread)
}
