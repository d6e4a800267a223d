package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/phrazzld/genflow/internal/api/shared"
	"github.com/phrazzld/genflow/internal/generation"
	"github.com/phrazzld/genflow/internal/service/auth"
	"github.com/phrazzld/genflow/internal/service/orchestrator"
	"github.com/phrazzld/genflow/internal/store"
)

// Request errors raised by the handlers themselves.
var (
	// ErrUnauthorized indicates the request carries no authenticated user.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrInvalidPathParam indicates a missing or malformed path parameter.
	ErrInvalidPathParam = errors.New("invalid path parameter")

	// ErrInvalidBody indicates the request body could not be decoded.
	ErrInvalidBody = errors.New("invalid request body")
)

// MapErrorToStatusCode maps internal errors to appropriate HTTP status codes
// based on the error type. This prevents leaking internal error types or
// messages to clients.
func MapErrorToStatusCode(err error) int {
	switch {
	// Authentication errors
	case errors.Is(err, ErrUnauthorized),
		errors.Is(err, auth.ErrInvalidToken),
		errors.Is(err, auth.ErrExpiredToken),
		errors.Is(err, auth.ErrTokenNotYetValid),
		errors.Is(err, auth.ErrMissingToken):
		return http.StatusUnauthorized

	// Not found errors. A task owned by someone else is reported as missing.
	case errors.Is(err, orchestrator.ErrTaskNotFound),
		errors.Is(err, orchestrator.ErrNotOwned),
		errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound

	// Conflict errors
	case errors.Is(err, orchestrator.ErrCorrelationConflict),
		errors.Is(err, orchestrator.ErrNotExtendable):
		return http.StatusConflict

	// Bad request errors
	case errors.Is(err, ErrInvalidPathParam),
		errors.Is(err, ErrInvalidBody),
		errors.Is(err, orchestrator.ErrInvalidRequest),
		errors.Is(err, generation.ErrSubmissionRejected),
		errors.Is(err, store.ErrInvalidEntity):
		return http.StatusBadRequest

	// The provider could not be reached; the same request may be retried.
	case errors.Is(err, generation.ErrProviderUnavailable):
		return http.StatusServiceUnavailable

	// Default: internal server error
	default:
		return http.StatusInternalServerError
	}
}

// GetSafeErrorMessage returns a sanitized, user-friendly error message
// based on the error type. This prevents leaking sensitive internal details.
func GetSafeErrorMessage(err error) string {
	if err == nil {
		return "An unexpected error occurred"
	}

	switch {
	case errors.Is(err, auth.ErrExpiredToken):
		return "Token expired"

	case errors.Is(err, ErrUnauthorized),
		errors.Is(err, auth.ErrMissingToken):
		return "Authentication required"

	case errors.Is(err, auth.ErrInvalidToken),
		errors.Is(err, auth.ErrTokenNotYetValid):
		return "Invalid token"

	case errors.Is(err, orchestrator.ErrTaskNotFound),
		errors.Is(err, orchestrator.ErrNotOwned),
		errors.Is(err, store.ErrNotFound):
		return "Generation not found"

	case errors.Is(err, orchestrator.ErrCorrelationConflict):
		return "Correlation ID already used for a different request"

	case errors.Is(err, orchestrator.ErrNotExtendable):
		return "Only completed videos can be extended"

	case errors.Is(err, ErrInvalidPathParam):
		return "Invalid ID"

	case errors.Is(err, ErrInvalidBody):
		return "Invalid request format"

	case errors.Is(err, orchestrator.ErrInvalidRequest):
		return SanitizeValidationError(err)

	case errors.Is(err, generation.ErrSubmissionRejected):
		return "Generation request rejected by provider"

	case errors.Is(err, generation.ErrProviderUnavailable):
		return "Generation provider temporarily unavailable"

	case errors.Is(err, store.ErrInvalidEntity):
		return "Invalid entity data"

	default:
		return "An unexpected error occurred"
	}
}

// SanitizeValidationError removes sensitive details from validation errors
// and returns a user-friendly message naming the first offending field.
func SanitizeValidationError(err error) string {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		return fmt.Sprintf("Invalid %s: %s", fe.Field(), getValidationTagMessage(fe.Tag()))
	}
	return "Validation error"
}

// getValidationTagMessage maps validation tags to user-friendly error messages
func getValidationTagMessage(tag string) string {
	switch tag {
	case "required":
		return "required field"
	case "uuid", "uuid4":
		return "must be a UUID"
	case "url":
		return "must be a URL"
	case "min":
		return "too short"
	case "max":
		return "too long"
	case "oneof":
		return "invalid value"
	default:
		return "validation failed"
	}
}

// HandleAPIError writes the status and safe message for err. A non-empty
// message overrides the safe message derived from err.
func HandleAPIError(w http.ResponseWriter, r *http.Request, err error, message string) {
	status := MapErrorToStatusCode(err)
	if message == "" {
		message = GetSafeErrorMessage(err)
	}
	shared.RespondWithErrorAndLog(w, r, status, message, err)
}
