package retry

import (
	"errors"
	"fmt"
	"time"
)

// NoRetry marks an error as non-retryable.
//
// Operations can wrap validation errors or other permanent failures with
// NoRetry so the executor won't waste time retrying.
//
// Example:
//
//	return retry.NoRetry(fmt.Errorf("bad input: %w", err))
func NoRetry(err error) error {
	if err == nil {
		return nil
	}
	return noRetryError{err: err}
}

// IsNoRetry reports whether err is wrapped with NoRetry.
func IsNoRetry(err error) bool {
	var e noRetryError
	return errors.As(err, &e)
}

type noRetryError struct{ err error }

func (e noRetryError) Error() string { return fmt.Sprintf("no-retry: %v", e.err) }
func (e noRetryError) Unwrap() error { return e.err }

// RetryAfter provides a suggested delay before retrying.
//
// This is useful when the downstream system returns a Retry-After value
// (e.g., HTTP 429). The executor will respect the hint (bounded by MaxDelay)
// and still apply the configured jitter.
func RetryAfter(err error, after time.Duration) error {
	if err == nil {
		return nil
	}
	if after < 0 {
		after = 0
	}
	return retryAfterError{err: err, after: after}
}

// RetryAfterError is implemented by errors that carry an explicit retry delay.
type RetryAfterError interface {
	error
	RetryAfter() time.Duration
}

type retryAfterError struct {
	err   error
	after time.Duration
}

func (e retryAfterError) Error() string             { return fmt.Sprintf("retry-after(%s): %v", e.after, e.err) }
func (e retryAfterError) Unwrap() error             { return e.err }
func (e retryAfterError) RetryAfter() time.Duration { return e.after }

// WithCategory attaches a structured classification to an error so the
// classifier doesn't have to sniff the message.
func WithCategory(err error, cat Category) error {
	if err == nil {
		return nil
	}
	return categorizedError{err: err, cat: cat}
}

// Categorized is implemented by errors that carry their own classification.
// It takes precedence over message matching in Classify.
type Categorized interface {
	error
	RetryCategory() Category
}

type categorizedError struct {
	err error
	cat Category
}

func (e categorizedError) Error() string           { return e.err.Error() }
func (e categorizedError) Unwrap() error           { return e.err }
func (e categorizedError) RetryCategory() Category { return e.cat }

// ExhaustedError is returned when every attempt failed with a retryable
// error. It is distinct from a non-retryable failure, which is returned
// unwrapped after the first attempt that produced it.
type ExhaustedError struct {
	Label    string
	Attempts int
	Last     error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("retry exhausted after %d attempts (%s): %v", e.Attempts, e.Label, e.Last)
}

func (e *ExhaustedError) Unwrap() error { return e.Last }
