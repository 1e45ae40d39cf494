package ai

import (
	"context"
	"errors"
	"strings"
)

// IsRateLimited reports whether an error from an AI backend indicates
// throttling rather than an outage. Throttled calls are worth retrying
// against the same backend; outages are not.
//
// The langchaingo clients surface HTTP failures as opaque errors, so
// this falls back to probing the message text.
func IsRateLimited(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "429") ||
		strings.Contains(msg, "rate limit") ||
		strings.Contains(msg, "too many requests")
}

// IsTransient reports whether an error from an AI backend is likely to
// succeed on retry: throttling, timeouts, dropped connections and
// server-side 5xx responses.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) || IsRateLimited(err) {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, probe := range []string{
		"timeout",
		"connection refused",
		"connection reset",
		"unexpected eof",
		"status code: 5",
		"service unavailable",
	} {
		if strings.Contains(msg, probe) {
			return true
		}
	}
	return false
}
