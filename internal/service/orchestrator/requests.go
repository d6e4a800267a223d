package orchestrator

import (
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/phrazzld/genflow/internal/domain"
)

// Request is implemented by every orchestrator request. Requests that
// mutate tasks require a commit and run inside a store transaction; queries
// run directly against the store.
type Request interface {
	RequiresCommit() bool
}

var validate = validator.New()

// SubmitRequest asks for a new video or image generation.
type SubmitRequest struct {
	CorrelationID uuid.UUID                   `validate:"required"`
	UserID        uuid.UUID                   `validate:"required"`
	Kind          domain.GenerationKind       `validate:"required,oneof=video_generate image_generate"`
	Parameters    domain.GenerationParameters `validate:"-"`
}

// RequiresCommit implements Request.
func (SubmitRequest) RequiresCommit() bool { return true }

// Validate checks the request shape.
func (r SubmitRequest) Validate() error {
	return validateRequest(r)
}

// ExtendRequest asks for a continuation of a completed video.
type ExtendRequest struct {
	CorrelationID       uuid.UUID                   `validate:"required"`
	UserID              uuid.UUID                   `validate:"required"`
	SourceCorrelationID uuid.UUID                   `validate:"required"`
	Parameters          domain.GenerationParameters `validate:"-"`
}

// RequiresCommit implements Request.
func (ExtendRequest) RequiresCommit() bool { return true }

// Validate checks the request shape.
func (r ExtendRequest) Validate() error {
	if err := validateRequest(r); err != nil {
		return err
	}
	if r.SourceCorrelationID == r.CorrelationID {
		return fmt.Errorf("%w: extension must use a new correlation ID", ErrInvalidRequest)
	}
	return nil
}

// transitionRequest applies one decision to a task.
type transitionRequest struct {
	CorrelationID uuid.UUID
	// ProviderTaskID is the handle the trigger reported, empty if unknown.
	ProviderTaskID string
	// Provider names the gateway the report came from, empty if unknown.
	Provider string
	Decision Decision
	// Trigger names the source of the decision for logs: callback, poll, api.
	Trigger string
}

func (transitionRequest) RequiresCommit() bool { return true }

// taskQuery reads a task.
type taskQuery struct {
	CorrelationID uuid.UUID
}

func (taskQuery) RequiresCommit() bool { return false }

func validateRequest(r interface{}) error {
	if err := validate.Struct(r); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}
	return nil
}
