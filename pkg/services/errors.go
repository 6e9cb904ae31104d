// Package services coordinates submissions, monitoring and provenance on behalf of
// an authenticated identity.
package services

import (
	"errors"
	"fmt"

	"github.com/dukex/provtrack/pkg/cwl"
	"github.com/dukex/provtrack/pkg/persistence"
	"github.com/dukex/provtrack/pkg/provenance"
	"github.com/dukex/provtrack/pkg/provenance/dot"
	"github.com/dukex/provtrack/pkg/reana"
)

// Business Logic Errors - These indicate client errors (4xx responses).
var (
	// Validation Errors.
	ErrInvalidRequest = errors.New("invalid request")
	ErrEmptyGroup     = errors.New("identity group cannot be empty")

	// ErrExecutionNotFound is returned when an execution does not exist or belongs to another group.
	ErrExecutionNotFound = persistence.ErrExecutionNotFound

	// ErrSpecNotFound is returned when a workflow specification does not exist.
	ErrSpecNotFound = persistence.ErrSpecNotFound
)

// ServiceError wraps service-level errors with additional context.
type ServiceError struct {
	Op      string // Operation name
	Code    string // Error code for API responses
	Message string // Human-readable message
	Err     error  // Underlying error
}

func (e *ServiceError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: %s", e.Op, e.Message)
	}

	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *ServiceError) Unwrap() error {
	return e.Err
}

func (e *ServiceError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// NewValidationError creates a new validation error with context.
func NewValidationError(op, code, message string, err error) *ServiceError {
	return &ServiceError{
		Op:      op,
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// IsNotFound checks if an error means the requested record does not exist for the caller.
func IsNotFound(err error) bool {
	return persistence.IsNotFound(err)
}

// IsConflict checks if an error is a precondition the record is not in yet, or no longer in.
func IsConflict(err error) bool {
	return errors.Is(err, provenance.ErrExecutionNotFinished) ||
		errors.Is(err, provenance.ErrAlreadyCaptured) ||
		errors.Is(err, persistence.ErrExecutionAlreadyExists) ||
		errors.Is(err, persistence.ErrExecutionFinished)
}

// IsValidation checks if an error is an invalid request, specification or reference.
func IsValidation(err error) bool {
	return errors.Is(err, ErrInvalidRequest) ||
		errors.Is(err, ErrEmptyGroup) ||
		errors.Is(err, cwl.ErrInvalidDocument) ||
		errors.Is(err, cwl.ErrUnresolvablePlaceholder) ||
		errors.Is(err, cwl.ErrDuplicateOutput) ||
		errors.Is(err, cwl.ErrDuplicateEntityName) ||
		errors.Is(err, cwl.ErrUnsupportedSource) ||
		errors.Is(err, provenance.ErrResolution) ||
		errors.Is(err, dot.ErrUnsupportedFormat)
}

// IsRemote checks if an error came from the execution service.
func IsRemote(err error) bool {
	return reana.IsRemoteError(err)
}

// IsStore checks if an error is a failure of the storage backend.
func IsStore(err error) bool {
	return persistence.IsStoreError(err)
}

// ErrorCode returns the API error code of err, preferring an explicit ServiceError code.
func ErrorCode(err error) string {
	var serviceErr *ServiceError
	if errors.As(err, &serviceErr) && serviceErr.Code != "" {
		return serviceErr.Code
	}

	switch {
	case errors.Is(err, provenance.ErrAlreadyCaptured):
		return "already_captured"
	case errors.Is(err, provenance.ErrExecutionNotFinished):
		return "execution_not_finished"
	case errors.Is(err, cwl.ErrUnresolvablePlaceholder):
		return "unresolvable_placeholder"
	case errors.Is(err, provenance.ErrResolution):
		return "resolution_failed"
	case IsNotFound(err):
		return "not_found"
	case IsConflict(err):
		return "conflict"
	case IsValidation(err):
		return "validation_error"
	case IsRemote(err):
		return "remote_error"
	case IsStore(err):
		return "store_error"
	default:
		return "internal_error"
	}
}
