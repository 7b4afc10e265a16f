// Package services implements the workflow and run use cases behind the HTTP API and the activator.
package services

import (
	"errors"
	"fmt"

	"github.com/dukex/flows/pkg/persistence"
)

// Business Logic Errors - These indicate client errors (4xx responses).
var (
	// Validation Errors (400 Bad Request).
	ErrInvalidRequest = errors.New("invalid request")
	ErrWorkflowNil    = errors.New("workflow cannot be nil")
	ErrInvalidEvent   = errors.New("invalid event")

	// Not Found Errors (404 Not Found).
	ErrWorkflowNotFound = persistence.ErrWorkflowNotFound
	ErrRunNotFound      = persistence.ErrRunNotFound

	// Business Logic Conflicts (409 Conflict).
	ErrWorkflowArchived = persistence.ErrWorkflowArchived
	ErrActionInUse      = persistence.ErrActionInUse
	ErrRunNotRetryable  = persistence.ErrRunNotRetryable
	ErrIDConflict       = persistence.ErrIDConflict
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

// IsValidationError checks if an error is a validation error that should return HTTP 400.
func IsValidationError(err error) bool {
	return errors.Is(err, ErrInvalidRequest) ||
		errors.Is(err, ErrWorkflowNil) ||
		errors.Is(err, ErrInvalidEvent)
}

// IsNotFoundError checks if an error should return HTTP 404.
func IsNotFoundError(err error) bool {
	return errors.Is(err, ErrWorkflowNotFound) ||
		errors.Is(err, ErrRunNotFound)
}

// IsConflictError checks if an error is a business logic conflict that should return HTTP 409.
func IsConflictError(err error) bool {
	return errors.Is(err, ErrWorkflowArchived) ||
		errors.Is(err, ErrActionInUse) ||
		errors.Is(err, ErrRunNotRetryable) ||
		errors.Is(err, ErrIDConflict)
}

// NewValidationError creates a new validation error with context. The result matches both
// ErrInvalidRequest and err.
func NewValidationError(op, code string, err error) *ServiceError {
	return &ServiceError{
		Op:      op,
		Code:    code,
		Message: err.Error(),
		Err:     fmt.Errorf("%w: %w", ErrInvalidRequest, err),
	}
}
