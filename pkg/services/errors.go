// Package services provides standardized error types for service layer operations.
package services

import (
	"errors"
	"fmt"
)

// Business Logic Errors - These indicate client errors (4xx responses).
var (
	// Validation Errors (400 Bad Request).
	ErrInvalidRequest = errors.New("invalid request")
	ErrInvalidStatus  = errors.New("invalid workflow status")
	ErrInvalidGraph   = errors.New("invalid workflow graph")
	ErrEmptyOrgID     = errors.New("org ID cannot be empty")
	ErrWorkflowNil    = errors.New("workflow cannot be nil")

	// Block errors (404 Not Found).
	ErrBlockNotFound      = errors.New("block not found")
	ErrConnectionNotFound = errors.New("connection not found")

	// Business Logic Conflicts (409 Conflict).
	ErrInvalidTransition  = errors.New("workflow status transition not allowed")
	ErrCannotModifyActive = errors.New("cannot modify the graph of an active or archived workflow")
	ErrCannotDeleteActive = errors.New("cannot delete an active workflow")
	ErrBlockExists        = errors.New("block already exists")
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
		errors.Is(err, ErrInvalidStatus) ||
		errors.Is(err, ErrInvalidGraph) ||
		errors.Is(err, ErrEmptyOrgID) ||
		errors.Is(err, ErrWorkflowNil)
}

// IsConflictError checks if an error is a business logic conflict that should return HTTP 409.
func IsConflictError(err error) bool {
	return errors.Is(err, ErrInvalidTransition) ||
		errors.Is(err, ErrCannotModifyActive) ||
		errors.Is(err, ErrCannotDeleteActive) ||
		errors.Is(err, ErrBlockExists)
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
