package providers

import (
	"errors"
	"fmt"
)

// ErrorKind classifies provider call failures. The orchestrator retries
// transient kinds and records permanent kinds as failed findings.
type ErrorKind string

// Provider failure kinds.
const (
	KindRateLimited    ErrorKind = "RateLimited"
	KindUnavailable    ErrorKind = "Unavailable"
	KindTimeout        ErrorKind = "Timeout"
	KindInvalidRequest ErrorKind = "InvalidRequest"
)

// Error is a typed provider failure. Raw backend errors are wrapped, never
// surfaced to clients directly.
type Error struct {
	Kind     ErrorKind
	Provider string
	Message  string
	Cause    error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (%s): %v", e.Provider, e.Message, e.Kind, e.Cause)
	}
	return fmt.Sprintf("%s: %s (%s)", e.Provider, e.Message, e.Kind)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Transient reports whether the failure is worth retrying.
func (e *Error) Transient() bool {
	switch e.Kind {
	case KindRateLimited, KindUnavailable, KindTimeout:
		return true
	default:
		return false
	}
}

// NewError constructs a typed provider error.
func NewError(kind ErrorKind, provider, message string, cause error) *Error {
	return &Error{Kind: kind, Provider: provider, Message: message, Cause: cause}
}

// IsTransient reports whether err is a provider error worth retrying.
func IsTransient(err error) bool {
	var pe *Error
	return errors.As(err, &pe) && pe.Transient()
}

// KindOf extracts the provider error kind, or "" for non-provider errors.
func KindOf(err error) ErrorKind {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return ""
}
