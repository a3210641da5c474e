package retry

import (
	"context"
	"errors"
	"strings"
)

// Category buckets a failure for retry decisions.
type Category int

const (
	CategoryUnknown Category = iota
	CategoryNetwork
	CategoryTimeout
	CategoryRateLimit
	CategoryServer
)

func (c Category) String() string {
	switch c {
	case CategoryNetwork:
		return "network"
	case CategoryTimeout:
		return "timeout"
	case CategoryRateLimit:
		return "rate_limit"
	case CategoryServer:
		return "server_5xx"
	default:
		return "unknown"
	}
}

// Classify maps an arbitrary failure to a retry category.
//
// Structured information wins: an error implementing Categorized is trusted
// outright, and context deadline errors are timeouts. Everything else falls
// back to best-effort, case-insensitive substring matching on the message.
// The heuristic is intentionally simple; callers that know better should
// wrap with WithCategory.
func Classify(err error) Category {
	if err == nil {
		return CategoryUnknown
	}

	var c Categorized
	if errors.As(err, &c) {
		return c.RetryCategory()
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return CategoryTimeout
	}

	msg := strings.ToLower(err.Error())
	switch {
	case containsAny(msg, "network", "fetch", "connection refused", "connection reset", "no such host"):
		return CategoryNetwork
	case containsAny(msg, "timeout", "timed out", "deadline exceeded"):
		return CategoryTimeout
	case containsAny(msg, "rate limit", "429", "too many requests"):
		return CategoryRateLimit
	case containsAny(msg, "500", "502", "503", "bad gateway", "service unavailable", "internal server error"):
		return CategoryServer
	default:
		return CategoryUnknown
	}
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
