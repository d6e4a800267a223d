package api

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/phrazzld/genflow/internal/generation"
	"github.com/phrazzld/genflow/internal/service/auth"
	"github.com/phrazzld/genflow/internal/service/orchestrator"
	"github.com/phrazzld/genflow/internal/store"
	"github.com/stretchr/testify/assert"
)

func TestMapErrorToStatusCode(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name           string
		err            error
		expectedStatus int
		expectedMsg    string
	}{
		{"nil error", nil, http.StatusInternalServerError, "An unexpected error occurred"},
		{"unauthorized", ErrUnauthorized, http.StatusUnauthorized, "Authentication required"},
		{"expired token", fmt.Errorf("auth: %w", auth.ErrExpiredToken), http.StatusUnauthorized, "Token expired"},
		{"invalid token", auth.ErrInvalidToken, http.StatusUnauthorized, "Invalid token"},
		{"task not found", orchestrator.ErrTaskNotFound, http.StatusNotFound, "Generation not found"},
		{"not owned", orchestrator.ErrNotOwned, http.StatusNotFound, "Generation not found"},
		{
			"store not found",
			fmt.Errorf("load: %w", store.ErrGenerationTaskNotFound),
			http.StatusNotFound,
			"Generation not found",
		},
		{
			"correlation conflict",
			orchestrator.ErrCorrelationConflict,
			http.StatusConflict,
			"Correlation ID already used for a different request",
		},
		{"not extendable", orchestrator.ErrNotExtendable, http.StatusConflict, "Only completed videos can be extended"},
		{"invalid path", ErrInvalidPathParam, http.StatusBadRequest, "Invalid ID"},
		{"invalid body", fmt.Errorf("%w: EOF", ErrInvalidBody), http.StatusBadRequest, "Invalid request format"},
		{"invalid request", orchestrator.ErrInvalidRequest, http.StatusBadRequest, "Validation error"},
		{
			"provider rejected",
			fmt.Errorf("%w: %w", generation.ErrSubmissionRejected,
				generation.NewProviderError("kie_veo", "submit", 400, "400", "bad prompt")),
			http.StatusBadRequest,
			"Generation request rejected by provider",
		},
		{
			"provider unavailable",
			generation.Unavailable("kie_veo", "submit", errors.New("dial tcp: i/o timeout")),
			http.StatusServiceUnavailable,
			"Generation provider temporarily unavailable",
		},
		{
			"persistence failure",
			orchestrator.NewServiceError("submit", "failed to create task", errors.New("connection reset")),
			http.StatusInternalServerError,
			"An unexpected error occurred",
		},
		{"invalid entity", store.ErrInvalidEntity, http.StatusBadRequest, "Invalid entity data"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expectedStatus, MapErrorToStatusCode(tt.err))
			assert.Equal(t, tt.expectedMsg, GetSafeErrorMessage(tt.err))
		})
	}
}

func TestSanitizeValidationError(t *testing.T) {
	t.Parallel()

	type sample struct {
		Prompt string `validate:"required"`
		Kind   string `validate:"oneof=a b"`
	}

	err := validator.New().Struct(sample{Kind: "a"})
	assert.Equal(t, "Invalid Prompt: required field", SanitizeValidationError(err))

	wrapped := fmt.Errorf("%w: %w", orchestrator.ErrInvalidRequest, validator.New().Struct(sample{Prompt: "x", Kind: "c"}))
	assert.Equal(t, "Invalid Kind: invalid value", SanitizeValidationError(wrapped))

	assert.Equal(t, "Validation error", SanitizeValidationError(errors.New("Key: 'x' secret details")))
}

func TestHandleAPIError(t *testing.T) {
	t.Parallel()

	req := httptest.NewRequest(http.MethodGet, "/api/generations/x", nil)

	rec := httptest.NewRecorder()
	HandleAPIError(rec, req, orchestrator.NewServiceError("get", "failed to load task",
		errors.New("pq: password=hunter22 rejected")), "")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "hunter22")
	assert.Contains(t, rec.Body.String(), "An unexpected error occurred")

	rec = httptest.NewRecorder()
	HandleAPIError(rec, req, orchestrator.ErrTaskNotFound, "Custom message")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "Custom message")
}
