package agent

import (
	"errors"
	"fmt"
)

// ErrorKind classifies agent invocation failures.
type ErrorKind string

const (
	KindMissingScope      ErrorKind = "missing_scope"      // Scope ID required but absent. Terminal.
	KindNoData            ErrorKind = "no_data"            // Upstream has no data for the query. Terminal.
	KindUpstreamTransient ErrorKind = "upstream_transient" // 5xx / rate limit. Retry-eligible.
	KindUpstreamPermanent ErrorKind = "upstream_permanent" // 4xx-class upstream rejection. Terminal.
	KindTimeout           ErrorKind = "timeout"            // Call deadline exceeded. Retry-eligible.
	KindInternal          ErrorKind = "internal"           // Dispatcher bookkeeping failure. Terminal.
)

// Error is a typed agent invocation failure.
type Error struct {
	Domain  Domain
	Kind    ErrorKind
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s agent %s: %s", e.Domain, e.Kind, e.Message)
}

// Transient reports whether the failure is worth another attempt.
func (e *Error) Transient() bool {
	return e.Kind == KindUpstreamTransient || e.Kind == KindTimeout
}

// AsError unwraps err into an agent *Error, or nil if it is not one.
func AsError(err error) *Error {
	var ae *Error
	if errors.As(err, &ae) {
		return ae
	}
	return nil
}
