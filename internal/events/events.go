package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/genflow/internal/domain"
)

// Event types.
const (
	TypeGenerationStarted   = "generation.started"
	TypeGenerationCompleted = "generation.completed"
	TypeGenerationFailed    = "generation.failed"
)

// Event is the envelope published for every lifecycle transition.
type Event struct {
	// ID is deterministic for a (correlation ID, type) pair.
	ID uuid.UUID `json:"id"`

	// Type is one of the Type* constants.
	Type string `json:"type"`

	// CorrelationID addresses the generation task the event belongs to.
	CorrelationID uuid.UUID `json:"correlation_id"`

	// Payload contains the type-specific data serialized as JSON.
	Payload json.RawMessage `json:"payload"`

	// OccurredAt is the time of the transition.
	OccurredAt time.Time `json:"occurred_at"`
}

// UnmarshalPayload decodes the event payload into the provided structure.
func (e *Event) UnmarshalPayload(v interface{}) error {
	return json.Unmarshal(e.Payload, v)
}

// EventID derives the ID of the event of eventType for correlationID.
func EventID(correlationID uuid.UUID, eventType string) uuid.UUID {
	return uuid.NewSHA1(correlationID, []byte(eventType))
}

// NewEvent creates an Event with the given type and payload.
func NewEvent(eventType string, correlationID uuid.UUID, payload interface{}, at time.Time) (*Event, error) {
	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s payload: %w", eventType, err)
	}

	return &Event{
		ID:            EventID(correlationID, eventType),
		Type:          eventType,
		CorrelationID: correlationID,
		Payload:       payloadBytes,
		OccurredAt:    at.UTC(),
	}, nil
}

// GenerationStarted is published once the provider has accepted a task.
type GenerationStarted struct {
	CorrelationID       uuid.UUID                   `json:"correlation_id"`
	ParentCorrelationID *uuid.UUID                  `json:"parent_correlation_id,omitempty"`
	UserID              uuid.UUID                   `json:"user_id"`
	Kind                domain.GenerationKind       `json:"kind"`
	ProviderTaskID      string                      `json:"provider_task_id"`
	Parameters          domain.GenerationParameters `json:"parameters"`
	CreatedAt           time.Time                   `json:"created_at"`
}

// GenerationCompleted is published when a task reaches the completed state.
type GenerationCompleted struct {
	CorrelationID  uuid.UUID `json:"correlation_id"`
	UserID         uuid.UUID `json:"user_id"`
	ProviderTaskID string    `json:"provider_task_id"`
	ResultURLs     []string  `json:"result_urls"`
	OriginURLs     []string  `json:"origin_urls,omitempty"`
	Resolution     string    `json:"resolution,omitempty"`
	CompletedAt    time.Time `json:"completed_at"`
}

// GenerationFailed is published when a task reaches the failed state.
type GenerationFailed struct {
	CorrelationID  uuid.UUID `json:"correlation_id"`
	UserID         uuid.UUID `json:"user_id"`
	ProviderTaskID string    `json:"provider_task_id,omitempty"`
	ErrorCode      string    `json:"error_code,omitempty"`
	ErrorMessage   string    `json:"error_message"`
	FailedAt       time.Time `json:"failed_at"`
}

// NewGenerationStartedEvent builds the started event for a submitted task.
func NewGenerationStartedEvent(task *domain.GenerationTask) (*Event, error) {
	at := task.CreatedAt
	if task.SubmittedAt != nil {
		at = *task.SubmittedAt
	}
	return NewEvent(TypeGenerationStarted, task.CorrelationID, GenerationStarted{
		CorrelationID:       task.CorrelationID,
		ParentCorrelationID: task.ParentCorrelationID,
		UserID:              task.UserID,
		Kind:                task.Kind,
		ProviderTaskID:      task.ProviderTaskID,
		Parameters:          task.Parameters,
		CreatedAt:           task.CreatedAt,
	}, at)
}

// NewGenerationCompletedEvent builds the completed event for a completed task.
func NewGenerationCompletedEvent(task *domain.GenerationTask) (*Event, error) {
	if task.Status != domain.TaskStatusCompleted || task.Result == nil || task.CompletedAt == nil {
		return nil, fmt.Errorf("%w: task %s is %s", domain.ErrInconsistentTask, task.CorrelationID, task.Status)
	}
	return NewEvent(TypeGenerationCompleted, task.CorrelationID, GenerationCompleted{
		CorrelationID:  task.CorrelationID,
		UserID:         task.UserID,
		ProviderTaskID: task.ProviderTaskID,
		ResultURLs:     task.Result.ResultURLs,
		OriginURLs:     task.Result.OriginURLs,
		Resolution:     task.Result.Resolution,
		CompletedAt:    *task.CompletedAt,
	}, *task.CompletedAt)
}

// NewGenerationFailedEvent builds the failed event for a failed task.
func NewGenerationFailedEvent(task *domain.GenerationTask) (*Event, error) {
	if task.Status != domain.TaskStatusFailed || task.CompletedAt == nil {
		return nil, fmt.Errorf("%w: task %s is %s", domain.ErrInconsistentTask, task.CorrelationID, task.Status)
	}
	return NewEvent(TypeGenerationFailed, task.CorrelationID, GenerationFailed{
		CorrelationID:  task.CorrelationID,
		UserID:         task.UserID,
		ProviderTaskID: task.ProviderTaskID,
		ErrorCode:      task.ErrorCode,
		ErrorMessage:   task.ErrorMessage,
		FailedAt:       *task.CompletedAt,
	}, *task.CompletedAt)
}

// EventHandler defines an interface for in-process consumers of events.
type EventHandler interface {
	// HandleEvent processes the given event within the provided context.
	// Returns an error if the event cannot be handled successfully.
	HandleEvent(ctx context.Context, event *Event) error
}

// EventEmitter defines an interface for components that can emit events.
// This allows the orchestrator to publish events without knowing where they go.
type EventEmitter interface {
	// EmitEvent publishes the given event.
	// Returns an error if the event cannot be emitted.
	EmitEvent(ctx context.Context, event *Event) error
}
