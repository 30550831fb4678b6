// Package adapters defines the shared contract for the three external-system
// adapters (infra provisioner, configuration runner, cluster control plane):
// the error taxonomy every adapter classifies its failures into, and the
// bounded wait helper all wait-until operations go through.
package adapters

import (
	"errors"
	"fmt"
	"time"
)

// TransientError marks a failure worth retrying (resource not yet present,
// connection flakes, propagation delays).
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string { return e.Err.Error() }
func (e *TransientError) Unwrap() error { return e.Err }

// Transient wraps an error as retryable.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &TransientError{Err: err}
}

// IsTransient checks whether an error was classified as retryable.
func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}

// FatalError marks an unrecoverable adapter failure; the current workflow
// step must not retry it.
type FatalError struct {
	Err error
}

func (e *FatalError) Error() string { return e.Err.Error() }
func (e *FatalError) Unwrap() error { return e.Err }

// Fatal wraps an error as unrecoverable.
func Fatal(err error) error {
	if err == nil {
		return nil
	}
	return &FatalError{Err: err}
}

// IsFatal checks whether an error was classified as unrecoverable.
func IsFatal(err error) bool {
	var fe *FatalError
	return errors.As(err, &fe)
}

// TimeoutError is returned when a bounded wait expires before its condition
// holds. Callers decide per step whether that is fatal or only a warning.
type TimeoutError struct {
	Op      string
	Timeout time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("timed out after %s waiting for %s", e.Timeout, e.Op)
}

// IsTimeout checks whether an error is a wait timeout.
func IsTimeout(err error) bool {
	var te *TimeoutError
	return errors.As(err, &te)
}
