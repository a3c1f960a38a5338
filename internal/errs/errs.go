// Package errs defines the typed error kinds surfaced by the core.
// Callers distinguish kinds with errors.As; no kind is ever silently swallowed.
package errs

import (
	"fmt"
	"time"
)

// ValidationError rejects bad input before any state mutation.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string { return "validation: " + e.Msg }

// Validationf builds a ValidationError.
func Validationf(format string, args ...any) *ValidationError {
	return &ValidationError{Msg: fmt.Sprintf(format, args...)}
}

// QuotaExceededError is a rate gate denial. Wait is advisory only.
type QuotaExceededError struct {
	Op   string
	Wait time.Duration
}

func (e *QuotaExceededError) Error() string {
	return fmt.Sprintf("quota exceeded for %s: retry in %s", e.Op, e.Wait.Round(time.Second))
}

// NotFoundError reports an unknown record id.
type NotFoundError struct {
	Kind string
	ID   string
}

func (e *NotFoundError) Error() string { return fmt.Sprintf("%s %s not found", e.Kind, e.ID) }

// InvalidTransitionError reports an event not allowed in the current state.
type InvalidTransitionError struct {
	From  string
	Event string
	Msg   string
}

func (e *InvalidTransitionError) Error() string {
	if e.Msg != "" {
		return fmt.Sprintf("cannot %s from %s: %s", e.Event, e.From, e.Msg)
	}
	return fmt.Sprintf("cannot %s from %s", e.Event, e.From)
}

// ExternalCallError wraps a platform client failure or timeout.
// Transient failures may be retried by re-invoking publish; permanent ones should not.
type ExternalCallError struct {
	Op        string
	Transient bool
	Err       error
}

func (e *ExternalCallError) Error() string {
	kind := "permanent"
	if e.Transient {
		kind = "transient"
	}
	return fmt.Sprintf("%s failed (%s): %v", e.Op, kind, e.Err)
}

func (e *ExternalCallError) Unwrap() error { return e.Err }
