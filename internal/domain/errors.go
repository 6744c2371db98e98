package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is the root of every missing-entity error.
	ErrNotFound = errors.New("not found")
	// ErrDrillNotFound is returned when a drill definition is absent or archived.
	ErrDrillNotFound = fmt.Errorf("drill %w", ErrNotFound)
	// ErrAttemptNotFound is returned when an attempt is absent or owned by someone else.
	ErrAttemptNotFound = fmt.Errorf("drill attempt %w", ErrNotFound)
	// ErrUserNotFound is returned when no progression is registered for a user.
	ErrUserNotFound = fmt.Errorf("user %w", ErrNotFound)

	// ErrInvalidState indicates the operation is illegal for the attempt status.
	ErrInvalidState = errors.New("drill attempt is not in progress")
	// ErrScenarioMismatch indicates an out-of-order or duplicate response.
	ErrScenarioMismatch = errors.New("scenario index does not match the current scenario")
	// ErrInvalidOption indicates the selected option index is out of range.
	ErrInvalidOption = errors.New("selected option is out of range")
	// ErrAttemptLimitExceeded indicates the user used up all attempts for a drill.
	ErrAttemptLimitExceeded = errors.New("maximum attempts reached for this drill")
	// ErrUnknownBadge indicates a badge code outside the catalog.
	ErrUnknownBadge = errors.New("unknown badge")
	// ErrValidation is the root of every ValidationError.
	ErrValidation = errors.New("validation failed")
	// ErrConflict indicates a concurrent writer won the race for the same entity.
	ErrConflict = errors.New("concurrent modification")
)

// ValidationError describes a malformed input field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// Invalid is shorthand for building a ValidationError.
func Invalid(field, format string, args ...any) error {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// AttemptLimitError carries the limit that was hit.
type AttemptLimitError struct {
	Max int
}

func (e *AttemptLimitError) Error() string {
	return fmt.Sprintf("maximum attempts (%d) reached for this drill", e.Max)
}

func (e *AttemptLimitError) Unwrap() error { return ErrAttemptLimitExceeded }
