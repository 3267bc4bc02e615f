/*
errors.go - Centralized error types for the ledger engine

PURPOSE:
  All error types in one place for consistency and discoverability.
  Consuming packages (pos, transfer, api) wrap these with their own context.

ERROR CATEGORIES:
  1. Validation errors - Rejected before any write
  2. Idempotency errors - Duplicate detection (usually not surfaced as
     failures; callers translate them into no-op successes)
  3. Store errors - Persistence-level failures

USAGE:
  if errors.Is(err, ledger.ErrValidation) {
      // reject with 400, nothing was written
  }
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
	// ErrValidation is the base of all input validation failures. Validation
	// happens before any write; a validation error guarantees nothing was
	// persisted.
	ErrValidation = errors.New("validation failed")

	// ErrEventExists is returned when an event with the same ID is appended
	// twice. Event IDs are assigned by Prepare, so hitting this indicates a
	// caller reusing a prepared batch.
	ErrEventExists = errors.New("event already exists")

	// ErrDuplicateCorrelationID is returned by deduction-aware stores when a
	// deduction record for the correlation id already exists. This is the
	// losing side of a concurrent race and is expected behavior for retries.
	ErrDuplicateCorrelationID = errors.New("duplicate correlation id")

	// ErrOrderNotFound is returned when a referenced purchase order does not
	// exist.
	ErrOrderNotFound = errors.New("purchase order not found")

	// ErrOrderAlreadyReceived is returned when a purchase order is received a
	// second time. Callers treat it as a no-op success.
	ErrOrderAlreadyReceived = errors.New("purchase order already received")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// ValidationError reports which field of an event or request was rejected.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed: %s %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsClientError returns true if the error is due to invalid caller input
// rather than a storage failure.
func IsClientError(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrOrderNotFound)
}

// IsDuplicate returns true if the error signals "already applied" semantics
// that callers should translate into idempotent success.
func IsDuplicate(err error) bool {
	return errors.Is(err, ErrDuplicateCorrelationID) ||
		errors.Is(err, ErrOrderAlreadyReceived) ||
		errors.Is(err, ErrEventExists)
}
