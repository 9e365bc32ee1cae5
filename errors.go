package breakerbox

import (
	"errors"
	"fmt"
	"time"
)

// ConfigError reports an invalid configuration value. Constructors return it
// synchronously; it is never delivered as a call rejection.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("breakerbox: invalid %s: %s", e.Field, e.Reason)
}

// CircuitOpenError rejects calls short-circuited while the circuit is open
// or while a half-open probe is already in flight. Cause is the failure that
// last opened the circuit, if any.
type CircuitOpenError struct {
	Breaker string
	Cause   error
}

func (e *CircuitOpenError) Error() string {
	msg := "breakerbox: circuit open"
	if e.Breaker != "" {
		msg = fmt.Sprintf("breakerbox: circuit %q open", e.Breaker)
	}
	if e.Cause != nil {
		return msg + ": " + e.Cause.Error()
	}
	return msg
}

func (e *CircuitOpenError) Unwrap() error { return e.Cause }

// MaxAttemptsError reports retry exhaustion. Cause is the error from the
// final attempt.
type MaxAttemptsError struct {
	Attempts int
	Cause    error
}

func (e *MaxAttemptsError) Error() string {
	return fmt.Sprintf("breakerbox: %d attempts exhausted: %v", e.Attempts, e.Cause)
}

func (e *MaxAttemptsError) Unwrap() error { return e.Cause }

// TimeoutError reports that an operation exceeded its time limit.
type TimeoutError struct {
	After   time.Duration
	Message string
}

func (e *TimeoutError) Error() string {
	if e.Message != "" {
		return "breakerbox: " + e.Message
	}
	return fmt.Sprintf("breakerbox: operation timed out after %s", e.After)
}

// DisposedError rejects calls made after a wrapper has been closed, and is
// the cause delivered to delays pending at the moment of disposal.
type DisposedError struct {
	Reason string
}

func (e *DisposedError) Error() string {
	if e.Reason != "" {
		return "breakerbox: disposed: " + e.Reason
	}
	return "breakerbox: disposed"
}

// IsCircuitOpen reports whether err is a short-circuit rejection.
func IsCircuitOpen(err error) bool {
	var e *CircuitOpenError
	return errors.As(err, &e)
}

// IsMaxAttempts reports whether err is a retry exhaustion error.
func IsMaxAttempts(err error) bool {
	var e *MaxAttemptsError
	return errors.As(err, &e)
}

// IsTimeout reports whether err is a timeout error.
func IsTimeout(err error) bool {
	var e *TimeoutError
	return errors.As(err, &e)
}

// IsDisposed reports whether err came from a closed wrapper.
func IsDisposed(err error) bool {
	var e *DisposedError
	return errors.As(err, &e)
}
