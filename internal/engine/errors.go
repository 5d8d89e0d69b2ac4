package engine

import (
	"errors"
	"fmt"
)

var (
	// ErrCapacity is returned when the registry's concurrent-session
	// cap is reached. Callers should retry later.
	ErrCapacity = errors.New("session capacity exceeded")

	// ErrNotFound is returned for unknown or reaped session IDs.
	ErrNotFound = errors.New("session not found")

	// ErrAlreadyTerminal is returned when cancelling a session that
	// already reached a terminal state.
	ErrAlreadyTerminal = errors.New("session already terminal")
)

// ValidationError reports an invalid QuerySpec. It is surfaced
// synchronously at submit time; no session is created for it.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "invalid query: " + e.Reason
	}
	return fmt.Sprintf("invalid query: %s: %s", e.Field, e.Reason)
}

func validationErr(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}
