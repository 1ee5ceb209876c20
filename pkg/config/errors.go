package config

import (
	"errors"
	"fmt"
)

var (
	// ErrScenarioNotFound indicates the named scenario is not registered.
	ErrScenarioNotFound = errors.New("scenario not found")

	// ErrInvalidYAML indicates YAML parsing failed.
	ErrInvalidYAML = errors.New("invalid YAML syntax")

	// ErrValidationFailed indicates manifest validation failed.
	ErrValidationFailed = errors.New("manifest validation failed")
)

// ValidationError wraps manifest validation errors with context.
type ValidationError struct {
	Scenario string // scenario being validated
	Field    string // field name (optional)
	Err      error  // underlying error
}

// Error returns the formatted error message.
func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("scenario '%s': field '%s': %v", e.Scenario, e.Field, e.Err)
	}
	return fmt.Sprintf("scenario '%s': %v", e.Scenario, e.Err)
}

// Unwrap returns the underlying error.
func (e *ValidationError) Unwrap() error { return e.Err }

// NewValidationError creates a ValidationError.
func NewValidationError(scenario, field string, err error) *ValidationError {
	return &ValidationError{Scenario: scenario, Field: field, Err: err}
}
