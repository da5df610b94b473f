package llm

import (
	"errors"
	"fmt"
	"time"
)

// ErrorKind classifies model invocation failures.
type ErrorKind string

const (
	KindRateLimited ErrorKind = "rate_limited" // 429 or governor exhaustion. Retry after backoff.
	KindTimeout     ErrorKind = "timeout"      // Deadline exceeded. Retry-eligible.
	KindUnavailable ErrorKind = "unavailable"  // 5xx or connection failure. Retry-eligible.
	KindMalformed   ErrorKind = "malformed"    // Unparseable response. One stricter retry, then template fallback.
)

// ModelError is a typed model invocation failure.
type ModelError struct {
	Kind       ErrorKind
	Message    string
	StatusCode int           // HTTP status when applicable, 0 otherwise.
	RetryAfter time.Duration // Backoff hint from the backend. 0 = none.
}

func (e *ModelError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("model %s (status %d): %s", e.Kind, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("model %s: %s", e.Kind, e.Message)
}

// Retryable reports whether the failure is worth another attempt.
// Malformed responses are handled separately (stricter re-prompt, not blind retry).
func (e *ModelError) Retryable() bool {
	switch e.Kind {
	case KindRateLimited, KindTimeout, KindUnavailable:
		return true
	default:
		return false
	}
}

// AsModelError unwraps err into a *ModelError, or nil if it is not one.
func AsModelError(err error) *ModelError {
	var me *ModelError
	if errors.As(err, &me) {
		return me
	}
	return nil
}
