package batch

import (
	"errors"
	"fmt"
	"time"
)

// Common batch processing errors.
var (
	ErrInvalidConfig    = errors.New("invalid batch configuration")
	ErrNilOperation     = errors.New("batch operation cannot be nil")
	ErrRetriesExhausted = errors.New("retry budget exhausted")
	ErrTimeout          = errors.New("operation timeout")
	ErrGroupFault       = errors.New("batch group fault")
	ErrOperationPanic   = errors.New("operation panicked")
)

// RetryExhaustedError is returned when every permitted attempt failed.
// It matches both ErrRetriesExhausted and the last underlying error with errors.Is.
type RetryExhaustedError struct {
	Retries int
	Err     error
}

func (e *RetryExhaustedError) Error() string {
	return fmt.Sprintf("operation failed after %d retries: %s", e.Retries, e.Err.Error())
}

// Unwrap exposes the sentinel and the last attempt's error.
func (e *RetryExhaustedError) Unwrap() []error {
	return []error{ErrRetriesExhausted, e.Err}
}

// TimeoutError reports an attempt that did not settle within the configured timeout.
// The message carries the TIMEOUT token so ShouldRetry treats it as transient.
type TimeoutError struct {
	Label   string
	ID      string
	Timeout time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s operation for '%s' exceeded timeout of %s", e.Label, e.ID, e.Timeout)
}

func (e *TimeoutError) Unwrap() error { return ErrTimeout }

// PanicError reports an operation that panicked. Only the identifier it ran
// for is failed; it is never retried.
type PanicError struct {
	ID    string
	Cause any
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("operation for '%s' panicked: %v", e.ID, e.Cause)
}

func (e *PanicError) Unwrap() error { return ErrOperationPanic }

// GroupFaultError is raised when a group cannot settle because the group
// machinery itself failed. Every identifier in the group is marked failed.
type GroupFaultError struct {
	Group int
	Cause any
}

func (e *GroupFaultError) Error() string {
	return fmt.Sprintf("chunk %d faulted: %v", e.Group, e.Cause)
}

func (e *GroupFaultError) Unwrap() error { return ErrGroupFault }
