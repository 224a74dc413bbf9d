// Package companionerr defines the closed error taxonomy shared by every
// subsystem: engines, the audio pipeline, the store, and the conversation
// core all report failures through this Kind rather than bare strings.
package companionerr

import (
	"errors"
	"fmt"
)

// Kind identifies one of the error categories every subsystem reports
// through. It is never extended per-package — new failure modes get mapped
// onto an existing Kind.
type Kind string

const (
	// EngineUnavailable means an engine failed to initialize or has gone
	// away. Surfaced on the bus; triggers fallback in the audio pipeline.
	EngineUnavailable Kind = "engine_unavailable"
	// DecodeFailed means STT produced no usable output (very short audio,
	// silence misclassified). Recovered locally by re-entering LISTENING.
	DecodeFailed Kind = "decode_failed"
	// Timeout means a bounded call exceeded its deadline.
	Timeout Kind = "timeout"
	// InvalidKey means a store operation was attempted without a full
	// Interaction Key. This is a caller bug, not a transient condition.
	InvalidKey Kind = "invalid_key"
	// Overflow means a bounded queue dropped messages.
	Overflow Kind = "overflow"
	// InvariantViolation is fatal to the owning worker only; the process
	// continues serving other Interaction Keys.
	InvariantViolation Kind = "invariant_violation"
)

// Error wraps an underlying cause with a Kind so callers can branch with
// errors.As without string matching, and an optional component tag for logs.
type Error struct {
	Kind      Kind
	Component string
	Cause     error
}

func (e *Error) Error() string {
	if e.Cause == nil {
		return fmt.Sprintf("%s: %s", e.Component, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %v", e.Component, e.Kind, e.Cause)
}

func (e *Error) Unwrap() error { return e.Cause }

// New builds an Error for the given kind and component.
func New(kind Kind, component string, cause error) *Error {
	return &Error{Kind: kind, Component: component, Cause: cause}
}

// Is reports whether err carries the given Kind anywhere in its chain.
func Is(err error, kind Kind) bool {
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Kind == kind
	}
	return false
}
