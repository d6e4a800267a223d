package orchestrator

import (
	"errors"
	"fmt"
)

// Orchestrator errors. Provider failures are reported with the sentinels of
// the generation package (ErrProviderUnavailable, ErrSubmissionRejected).
var (
	// ErrInvalidRequest indicates the request failed validation.
	ErrInvalidRequest = errors.New("invalid generation request")

	// ErrTaskNotFound indicates that no task exists for the correlation ID.
	ErrTaskNotFound = errors.New("generation task not found")

	// ErrCorrelationConflict indicates the correlation ID is already used by a
	// task with a different owner or kind.
	ErrCorrelationConflict = errors.New("correlation ID already used for a different request")

	// ErrNotOwned indicates the task belongs to another user.
	ErrNotOwned = errors.New("generation task is owned by another user")

	// ErrNotExtendable indicates the source of an extension is not a completed video.
	ErrNotExtendable = errors.New("source task cannot be extended")
)

// ServiceError wraps failures of the orchestrator's collaborators, typically
// persistence, with the operation that hit them.
type ServiceError struct {
	Operation string
	Message   string
	Err       error
}

// Error implements the error interface for ServiceError.
func (e *ServiceError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("generation %s failed: %s: %v", e.Operation, e.Message, e.Err)
	}
	return fmt.Sprintf("generation %s failed: %s", e.Operation, e.Message)
}

// Unwrap returns the wrapped error to support errors.Is/errors.As.
func (e *ServiceError) Unwrap() error {
	return e.Err
}

// NewServiceError creates a new ServiceError.
func NewServiceError(operation, message string, err error) *ServiceError {
	return &ServiceError{
		Operation: operation,
		Message:   message,
		Err:       err,
	}
}
