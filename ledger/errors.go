/*
errors.go - Centralized error types for the ledger

PURPOSE:
  All error types in one place for consistency and discoverability.
  Stores wrap driver errors into these so callers can use errors.Is.

ERROR CATEGORIES:
  1. Validation errors - bad amounts or week boundaries, rejected before any write
  2. Consistency errors - missing live row, duplicate row, stale version
  3. Transient errors - store busy/unreachable, safe to retry

USAGE:
  if errors.Is(err, ledger.ErrNotFound) { ... }
  if ledger.IsRetryable(err) { ... }

SEE ALSO:
  - retry.go: retries only IsRetryable errors
  - api/handlers.go: maps categories to HTTP status codes
*/
package ledger

import (
	"errors"
	"fmt"
	"time"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrValidation is returned for negative or malformed amounts and
	// missing week boundaries.
	ErrValidation = errors.New("validation failed")

	// ErrNotFound is returned when a referenced row does not exist.
	ErrNotFound = errors.New("not found")

	// ErrConsistency is returned when an operation would break a ledger
	// invariant: rolling over a row that is gone, or a second live row for
	// the same customer and week.
	ErrConsistency = errors.New("ledger consistency violation")

	// ErrConcurrentModification is returned when a write carries a stale
	// version. It matches ErrConsistency as well.
	ErrConcurrentModification = fmt.Errorf("concurrent modification detected: %w", ErrConsistency)

	// ErrDuplicate is returned on unique constraint violations. It matches
	// ErrConsistency as well.
	ErrDuplicate = fmt.Errorf("duplicate row: %w", ErrConsistency)

	// ErrTransient marks store failures that may succeed on retry.
	ErrTransient = errors.New("transient store error")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// ValidationError describes one rejected input field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

// ConsistencyError is returned by rollover when the target live row cannot be
// closed. Err carries the underlying cause (ErrNotFound, ErrDuplicate, ...).
type ConsistencyError struct {
	CustomerID CustomerID
	WeekStart  time.Time
	Reason     string
	Err        error
}

func (e *ConsistencyError) Error() string {
	return fmt.Sprintf("rollover %s week %s: %s",
		e.CustomerID, e.WeekStart.Format(DateLayout), e.Reason)
}

func (e *ConsistencyError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrConsistency}
	}
	return []error{ErrConsistency, e.Err}
}

// TransientError wraps a driver error that is worth retrying.
type TransientError struct {
	Op  string
	Err error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *TransientError) Unwrap() []error {
	return []error{ErrTransient, e.Err}
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsRetryable returns true if the error might succeed on retry.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrTransient)
}

// IsClientError returns true if the error is due to invalid client input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrValidation)
}

// IsNotFound returns true if the error indicates a missing row.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsConflict returns true for invariant and concurrency violations.
func IsConflict(err error) bool {
	return errors.Is(err, ErrConsistency)
}
