// Package ratelimit implements advisory backoff for the GitHub APIs.
// It inspects throttled responses (403/429) and the Retry-After,
// X-RateLimit-Reset and X-RateLimit-Remaining headers, then blocks the
// caller for the cooldown the provider asked for.
package ratelimit

import (
	"net/http"
	"strconv"
	"strings"
	"time"
)

// Response headers consulted by the backoff.
const (
	HeaderRetryAfter = "Retry-After"
	HeaderReset      = "X-RateLimit-Reset"
	HeaderRemaining  = "X-RateLimit-Remaining"
)

// DefaultFallbackWait is used when a throttled response carries neither
// Retry-After nor X-RateLimit-Reset.
const DefaultFallbackWait = 10 * time.Second

// resetBuffer is added on top of the time remaining until X-RateLimit-Reset.
const resetBuffer = 1 * time.Second

// Signal is the rate limit information derived from a single response.
// It is transient and never persisted.
type Signal struct {
	// Throttled is true when the status code is 403 or 429.
	Throttled bool

	// RetryAfter is the explicit cooldown from the Retry-After header.
	RetryAfter    time.Duration
	HasRetryAfter bool

	// ResetAt is when the current quota window resets (X-RateLimit-Reset, unix seconds).
	ResetAt  time.Time
	HasReset bool

	// Remaining is the quota left in the window, -1 when unknown.
	Remaining int
}

// ParseSignal extracts a Signal from a status code and response headers.
// Unparseable headers are ignored.
func ParseSignal(statusCode int, headers http.Header) Signal {
	s := Signal{
		Throttled: IsThrottleStatus(statusCode),
		Remaining: -1,
	}

	if v := strings.TrimSpace(headers.Get(HeaderRetryAfter)); v != "" {
		if secs, err := strconv.Atoi(v); err == nil && secs >= 0 {
			s.RetryAfter = time.Duration(secs) * time.Second
			s.HasRetryAfter = true
		}
	}

	if v := strings.TrimSpace(headers.Get(HeaderReset)); v != "" {
		if unix, err := strconv.ParseInt(v, 10, 64); err == nil {
			s.ResetAt = time.Unix(unix, 0)
			s.HasReset = true
		}
	}

	if v := strings.TrimSpace(headers.Get(HeaderRemaining)); v != "" {
		if remaining, err := strconv.Atoi(v); err == nil {
			s.Remaining = remaining
		}
	}

	return s
}

// IsThrottleStatus reports whether a status code means "forbidden/throttled".
func IsThrottleStatus(statusCode int) bool {
	return statusCode == http.StatusForbidden || statusCode == http.StatusTooManyRequests
}

// Wait returns the cooldown for a throttled signal.
// Resolution order: Retry-After exactly, then reset timestamp plus one
// second, then the fallback. Unthrottled signals wait zero.
func (s Signal) Wait(now time.Time, fallback time.Duration) time.Duration {
	if !s.Throttled {
		return 0
	}

	if s.HasRetryAfter {
		return s.RetryAfter
	}

	if s.HasReset {
		// Whole seconds, the way the provider reports the reset.
		remaining := s.ResetAt.Unix() - now.Unix()
		if remaining < 0 {
			remaining = 0
		}
		return time.Duration(remaining)*time.Second + resetBuffer
	}

	return fallback
}

// Source names the header that determined the wait, for logs and metrics.
func (s Signal) Source() string {
	switch {
	case !s.Throttled:
		return "none"
	case s.HasRetryAfter:
		return "retry_after"
	case s.HasReset:
		return "reset"
	default:
		return "fallback"
	}
}
