package generation

import (
	"errors"
	"fmt"
)

// Common errors returned by gateways.
var (
	// ErrProviderUnavailable is returned for network failures and timeouts.
	// It is the only class eligible for caller-side retry.
	ErrProviderUnavailable = errors.New("provider unavailable")

	// ErrSubmissionRejected is returned when the provider declined a request
	// or answered with a non-success or malformed response.
	ErrSubmissionRejected = errors.New("submission rejected by provider")

	// ErrUnsupported is returned when a gateway does not implement an operation.
	ErrUnsupported = errors.New("operation not supported by provider")

	// ErrInvalidCallback is returned when a callback body cannot be decoded.
	ErrInvalidCallback = errors.New("invalid callback payload")

	// ErrUnknownProvider is returned when no gateway is registered for a name or kind.
	ErrUnknownProvider = errors.New("unknown provider")
)

// ProviderError describes a response the provider returned but that could not
// be accepted. It always matches ErrSubmissionRejected with errors.Is.
type ProviderError struct {
	Provider   string // gateway name
	Operation  string // e.g. "submit", "extend", "status"
	HTTPStatus int    // transport status, 0 when not applicable
	Code       string // provider error code
	Message    string // provider error message
}

// Error implements the error interface for ProviderError.
func (e *ProviderError) Error() string {
	if e.HTTPStatus != 0 {
		return fmt.Sprintf("%s %s rejected (http %d): code=%s: %s",
			e.Provider, e.Operation, e.HTTPStatus, e.Code, e.Message)
	}
	return fmt.Sprintf("%s %s rejected: code=%s: %s", e.Provider, e.Operation, e.Code, e.Message)
}

// Unwrap returns ErrSubmissionRejected.
func (e *ProviderError) Unwrap() error {
	return ErrSubmissionRejected
}

// NewProviderError creates a ProviderError.
func NewProviderError(provider, operation string, httpStatus int, code, message string) *ProviderError {
	return &ProviderError{
		Provider:   provider,
		Operation:  operation,
		HTTPStatus: httpStatus,
		Code:       code,
		Message:    message,
	}
}

// Unavailable wraps err as ErrProviderUnavailable, keeping the cause.
func Unavailable(provider, operation string, err error) error {
	return fmt.Errorf("%w: %s %s: %w", ErrProviderUnavailable, provider, operation, err)
}
