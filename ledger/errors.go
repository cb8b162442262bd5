/*
errors.go - Centralized error types for the ledger engine

PURPOSE:
  All engine-level error types in one place. Domain packages (shop)
  wrap these with business context.

ERROR CATEGORIES:
  1. Storage errors - The underlying store could not complete an operation
  2. Concurrency errors - Isolation conflicts, safe to retry the whole unit
  3. Idempotency errors - A logical operation was replayed

USAGE:
  if errors.Is(err, ledger.ErrConcurrentModification) {
      // retry the whole logical operation from validation
  }

SEE ALSO:
  - store.go: Interfaces that return these errors
  - shop/errors.go: Business-rule errors built on top
*/
package ledger

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrStorage wraps any failure of the underlying store. Never retried
	// by the engine itself; retry policy belongs to the caller.
	ErrStorage = errors.New("storage failure")

	// ErrConcurrentModification is returned when the store could not
	// guarantee isolation for a unit. No state was committed; the
	// documented recovery is to retry the whole operation from validation.
	ErrConcurrentModification = errors.New("concurrent modification detected")

	// ErrDuplicateIdempotencyKey is returned when an entry with the same
	// idempotency key already exists. Expected behavior for retries.
	ErrDuplicateIdempotencyKey = errors.New("duplicate idempotency key")

	// ErrNoSnapshot is returned when no materialized snapshot has been
	// written yet. Callers should reconcile to produce one.
	ErrNoSnapshot = errors.New("no snapshot available")

	// ErrNoCapacity is returned when capacity limits have not been seeded.
	ErrNoCapacity = errors.New("capacity limits not initialized")
)

// StorageError carries the failed operation along with the driver error.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage: %s: %v", e.Op, e.Err)
}

// Unwrap exposes the driver error so errors.Is/As can reach it (a
// wrapped context.DeadlineExceeded, for example). Matching against the
// ErrStorage sentinel goes through Is.
func (e *StorageError) Unwrap() error { return e.Err }

func (e *StorageError) Is(target error) bool { return target == ErrStorage }

// NewStorageError wraps a driver error. Returns nil for a nil error so
// stores can pass results through unconditionally.
func NewStorageError(op string, err error) error {
	if err == nil {
		return nil
	}
	return &StorageError{Op: op, Err: err}
}

// IsRetryable returns true if the error might succeed on retry.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrConcurrentModification)
}
