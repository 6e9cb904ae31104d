// Package persistence provides standardized error types for persistence operations.
package persistence

import (
	"errors"
	"fmt"
)

// Standard persistence error types that all implementations should use.
var (
	// ErrExecutionNotFound indicates an execution was not found by the given identifier.
	ErrExecutionNotFound = errors.New("execution not found")

	// ErrExecutionAlreadyExists indicates an execution with the same identifier already exists.
	ErrExecutionAlreadyExists = errors.New("execution already exists")

	// ErrExecutionFinished indicates the execution already has an end time.
	ErrExecutionFinished = errors.New("execution already finished")

	// ErrStepNotFound indicates an execution step was not found.
	ErrStepNotFound = errors.New("execution step not found")

	// ErrStepAlreadyClosed indicates the step already has an end time.
	ErrStepAlreadyClosed = errors.New("execution step already closed")

	// ErrSpecNotFound indicates a workflow specification was not found.
	ErrSpecNotFound = errors.New("workflow specification not found")

	// ErrEntityNotFound indicates a provenance entity was not found.
	ErrEntityNotFound = errors.New("entity not found")

	// ErrProvenanceNotFound indicates no provenance was captured for the execution.
	ErrProvenanceNotFound = errors.New("provenance not found")

	// ErrAlreadyCaptured indicates provenance was already captured for the execution.
	ErrAlreadyCaptured = errors.New("provenance already captured")
)

// ExecutionError wraps execution-related errors with additional context.
type ExecutionError struct {
	Op          string // Operation being performed (e.g., "GetByID", "Finish", "CloseStep")
	ExecutionID string // Execution ID if applicable
	Err         error  // Underlying error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("%s operation failed for execution %s: %v", e.Op, e.ExecutionID, e.Err)
}

func (e *ExecutionError) Unwrap() error {
	return e.Err
}

// Is implements error comparison for execution errors.
func (e *ExecutionError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// NewExecutionError creates a new execution error with context.
func NewExecutionError(op, executionID string, err error) *ExecutionError {
	return &ExecutionError{
		Op:          op,
		ExecutionID: executionID,
		Err:         err,
	}
}

// StoreError marks a failure of the storage backend itself, as opposed to a
// missing or conflicting record.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("store %s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

// NewStoreError wraps err as a storage backend failure. A nil err stays nil.
func NewStoreError(op string, err error) error {
	if err == nil {
		return nil
	}

	return &StoreError{Op: op, Err: err}
}

// IsExecutionNotFound checks if an error indicates an execution was not found.
func IsExecutionNotFound(err error) bool {
	return errors.Is(err, ErrExecutionNotFound)
}

// IsSpecNotFound checks if an error indicates a workflow specification was not found.
func IsSpecNotFound(err error) bool {
	return errors.Is(err, ErrSpecNotFound)
}

// IsNotFound checks if an error indicates any record was not found.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrExecutionNotFound) ||
		errors.Is(err, ErrSpecNotFound) ||
		errors.Is(err, ErrEntityNotFound) ||
		errors.Is(err, ErrProvenanceNotFound) ||
		errors.Is(err, ErrStepNotFound)
}

// IsAlreadyCaptured checks if an error indicates provenance was already captured.
func IsAlreadyCaptured(err error) bool {
	return errors.Is(err, ErrAlreadyCaptured)
}

// IsStoreError checks if an error is a storage backend failure.
func IsStoreError(err error) bool {
	var storeErr *StoreError

	return errors.As(err, &storeErr)
}
