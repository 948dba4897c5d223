/*
errors.go - Centralized error types for the habit engine

ERROR CATEGORIES:
  1. Not found - Referenced habit or completion does not exist (for this owner)
  2. Conflict - A completion already exists for the habit on that date
  3. Validation - Malformed input rejected before reaching the ledger

  Store failures are wrapped with context and surface as server errors.

USAGE:
    if errors.Is(err, habit.ErrDuplicateDate) {
        var dup *habit.DuplicateDateError
        errors.As(err, &dup) // dup.Date, dup.ExistingID
    }

SEE ALSO:
  - ledger.go: Returns these errors
  - api/handlers.go: Maps them to HTTP status codes
*/
package habit

import (
	"errors"
	"fmt"
	"strings"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrHabitNotFound is returned when a habit id does not exist for the owner.
	ErrHabitNotFound = errors.New("habit not found")

	// ErrCompletionNotFound is returned when a completion id does not exist
	// or belongs to a habit of another owner.
	ErrCompletionNotFound = errors.New("completion not found")

	// ErrDuplicateDate is returned when a habit already has a completion on a date.
	ErrDuplicateDate = errors.New("completion already exists for this habit on this date")

	// ErrValidation is returned for malformed input.
	ErrValidation = errors.New("validation failed")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// DuplicateDateError describes a one-per-day violation.
type DuplicateDateError struct {
	HabitID    HabitID
	Date       Date
	ExistingID CompletionID // zero when only the database constraint caught it
}

func (e *DuplicateDateError) Error() string {
	if e.ExistingID != 0 {
		return fmt.Sprintf("habit %d already completed on %s (completion %d)", e.HabitID, e.Date, e.ExistingID)
	}
	return fmt.Sprintf("habit %d already completed on %s", e.HabitID, e.Date)
}

func (e *DuplicateDateError) Unwrap() error { return ErrDuplicateDate }

// FieldError is one rejected input field.
type FieldError struct {
	Field   string
	Message string
}

// ValidationError collects every rejected field of one request.
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	parts := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		parts[i] = f.Field + ": " + f.Message
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// Add appends a field error.
func (e *ValidationError) Add(field, message string) {
	e.Fields = append(e.Fields, FieldError{Field: field, Message: message})
}

// OrNil returns e if any field was rejected, nil otherwise.
func (e *ValidationError) OrNil() error {
	if e == nil || len(e.Fields) == 0 {
		return nil
	}
	return e
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsNotFound returns true if the error indicates a missing resource.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrHabitNotFound) || errors.Is(err, ErrCompletionNotFound)
}

// IsClientError returns true if the error is due to invalid client input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrDuplicateDate) || errors.Is(err, ErrValidation)
}
