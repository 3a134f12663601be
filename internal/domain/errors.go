package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors for common error conditions.
var (
	// ErrNotFound indicates that a requested entity was not found.
	ErrNotFound = errors.New("not found")

	// ErrAlreadyExists indicates that an entity already exists.
	ErrAlreadyExists = errors.New("already exists")

	// ErrInvalidInput indicates that the input data is invalid.
	ErrInvalidInput = errors.New("invalid input")

	// ErrInvalidTransition indicates a disallowed task status transition.
	ErrInvalidTransition = errors.New("invalid status transition")

	// ErrDimensionMismatch indicates an embedding vector whose length does
	// not match the configured embedding dimension.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")

	// ErrServiceUnavailable indicates that an external service is unavailable.
	ErrServiceUnavailable = errors.New("service unavailable")
)

// RetryableError wraps a transient failure (parser, embedder or generation
// backend unreachable or erroring). The dispatcher counts it against the
// task's retry budget and returns the task to pending.
type RetryableError struct {
	Phase TaskStatus
	Cause error
}

// Error implements the error interface.
func (e *RetryableError) Error() string {
	return fmt.Sprintf("retryable failure in %s phase: %v", e.Phase, e.Cause)
}

// Unwrap returns the underlying cause error.
func (e *RetryableError) Unwrap() error { return e.Cause }

// FatalError wraps a missing-prerequisite failure (no version for a task,
// no file for a version). Retrying cannot fix missing data, so the task
// goes straight to a terminal error status.
type FatalError struct {
	Phase TaskStatus
	Cause error
}

// Error implements the error interface.
func (e *FatalError) Error() string {
	return fmt.Sprintf("fatal failure in %s phase: %v", e.Phase, e.Cause)
}

// Unwrap returns the underlying cause error.
func (e *FatalError) Unwrap() error { return e.Cause }

// NewRetryableError wraps cause as a retryable phase failure.
func NewRetryableError(phase TaskStatus, cause error) *RetryableError {
	return &RetryableError{Phase: phase, Cause: cause}
}

// NewFatalError wraps cause as a non-retryable phase failure.
func NewFatalError(phase TaskStatus, cause error) *FatalError {
	return &FatalError{Phase: phase, Cause: cause}
}

// IsRetryable reports whether err should be counted against the retry
// budget rather than terminating the task. Errors that are neither
// retryable nor fatal default to retryable: an unclassified failure is
// assumed transient until the budget runs out.
func IsRetryable(err error) bool {
	var fatal *FatalError
	return !errors.As(err, &fatal)
}

// NotFoundError provides details about a not found entity.
type NotFoundError struct {
	Entity string
	ID     string
}

// Error implements the error interface.
func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Entity, e.ID)
}

// Unwrap returns the underlying sentinel error for use with errors.Is.
func (e *NotFoundError) Unwrap() error { return ErrNotFound }

// NewNotFoundError creates a new NotFoundError.
func NewNotFoundError(entity, id string) *NotFoundError {
	return &NotFoundError{Entity: entity, ID: id}
}

// ValidationError represents a validation error for a specific field.
type ValidationError struct {
	Field   string
	Message string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error: %s: %s", e.Field, e.Message)
}

// Unwrap returns the underlying sentinel error for use with errors.Is.
func (e *ValidationError) Unwrap() error { return ErrInvalidInput }

// NewValidationError creates a new ValidationError.
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}
