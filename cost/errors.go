/*
errors.go - Centralized error types for the cost engine

PURPOSE:
  All error types in one place for consistency and discoverability.
  Callers (api, catalog, CLI) branch on these with errors.Is / errors.As.

ERROR CATEGORIES:
  1. Lookup errors - A requested org entity or catalog item doesn't exist
  2. Validation errors - Bad input to catalog writes
  3. History errors - Effective-dated history transitions that can't apply

WHAT IS NOT AN ERROR:
  A tenant item with zero covered headcount prices at zero and is
  reported to the Observer. A requirement pointing at a missing catalog
  item is dropped from the summary. Neither aborts a calculation.

SEE ALSO:
  - position.go: Returns NotFoundError for unknown positions
  - history.go: Returns history errors
*/
package cost

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrNotFound is returned when a requested position, division,
	// department or catalog item does not exist or is inactive.
	ErrNotFound = errors.New("not found")

	// ErrValidation is returned when input fails a business rule.
	ErrValidation = errors.New("validation failed")

	// ErrInvalidLicenseModel is returned for an unknown license model.
	ErrInvalidLicenseModel = errors.New("invalid license model")

	// ErrInvalidScope is returned when a coverage rule has an unknown scope type.
	ErrInvalidScope = errors.New("invalid coverage scope")

	// ErrOpenRecordExists is returned when an initial cost record is written
	// for an item that already has an open history record.
	ErrOpenRecordExists = errors.New("cost history already has an open record")

	// ErrNonMonotonicChange is returned when a cost change is stamped
	// before the effective date of the record it would close.
	ErrNonMonotonicChange = errors.New("cost change predates the open record")

	// ErrConcurrentModification is returned when a concurrent writer already
	// opened a history record for the same item. The caller retries the edit.
	ErrConcurrentModification = errors.New("concurrent modification detected")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// NotFoundError names the missing entity.
type NotFoundError struct {
	Entity string // "position", "division", "department", "hardware", "software"
	ID     int64
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %d not found", e.Entity, e.ID)
}

func (e *NotFoundError) Unwrap() error {
	return ErrNotFound
}

func notFound(entity string, id int64) error {
	return &NotFoundError{Entity: entity, ID: id}
}

// ValidationError names the offending field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsNotFound returns true if the error indicates a missing resource.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsClientError returns true if the error is due to invalid client input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrInvalidLicenseModel) ||
		errors.Is(err, ErrInvalidScope)
}

// IsConflict returns true if the error is a history state conflict.
func IsConflict(err error) bool {
	return errors.Is(err, ErrConcurrentModification) ||
		errors.Is(err, ErrOpenRecordExists) ||
		errors.Is(err, ErrNonMonotonicChange)
}

// IsRetryable returns true if the error might succeed on retry.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrConcurrentModification)
}
