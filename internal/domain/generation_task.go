package domain

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// GenerationKind selects which provider and parameter set applies to a task.
type GenerationKind string

const (
	KindVideoGenerate GenerationKind = "video_generate"
	KindVideoExtend   GenerationKind = "video_extend"
	KindImageGenerate GenerationKind = "image_generate"
)

// IsValid reports whether k is a known kind.
func (k GenerationKind) IsValid() bool {
	switch k {
	case KindVideoGenerate, KindVideoExtend, KindImageGenerate:
		return true
	default:
		return false
	}
}

// IsVideo reports whether k produces a video.
func (k GenerationKind) IsVideo() bool {
	return k == KindVideoGenerate || k == KindVideoExtend
}

// TaskStatus is the lifecycle state of a generation task.
type TaskStatus string

const (
	// TaskStatusPending means the task exists but the provider has not acknowledged it.
	TaskStatusPending TaskStatus = "pending"
	// TaskStatusSubmitted means the provider accepted the task and assigned a handle.
	TaskStatusSubmitted TaskStatus = "submitted"
	// TaskStatusExtending is the submitted state of a video extension.
	TaskStatusExtending TaskStatus = "extending"
	// TaskStatusCompleted is terminal: the result payload is available.
	TaskStatusCompleted TaskStatus = "completed"
	// TaskStatusFailed is terminal: error code and message are available.
	TaskStatusFailed TaskStatus = "failed"
)

// IsValid reports whether s is a known status.
func (s TaskStatus) IsValid() bool {
	switch s {
	case TaskStatusPending, TaskStatusSubmitted, TaskStatusExtending,
		TaskStatusCompleted, TaskStatusFailed:
		return true
	default:
		return false
	}
}

// IsTerminal reports whether no further transitions are possible from s.
func (s TaskStatus) IsTerminal() bool {
	return s == TaskStatusCompleted || s == TaskStatusFailed
}

// IsAwaitingProvider reports whether the provider holds the task.
func (s TaskStatus) IsAwaitingProvider() bool {
	return s == TaskStatusSubmitted || s == TaskStatusExtending
}

// GenerationParameters is the request captured at submission time. It is
// stored verbatim for auditability and replay.
type GenerationParameters struct {
	Prompt               string   `json:"prompt"`
	Model                string   `json:"model,omitempty"`
	AspectRatio          string   `json:"aspect_ratio,omitempty"`
	Resolution           string   `json:"resolution,omitempty"`
	Seeds                *int     `json:"seeds,omitempty"`
	Watermark            string   `json:"watermark,omitempty"`
	ImageURLs            []string `json:"image_urls,omitempty"`
	OutputFormat         string   `json:"output_format,omitempty"`
	NegativePrompt       string   `json:"negative_prompt,omitempty"`
	EnableFallback       bool     `json:"enable_fallback,omitempty"`
	SourceProviderTaskID string   `json:"source_provider_task_id,omitempty"`
}

// ResultPayload is the outcome of a completed task.
type ResultPayload struct {
	ResultURLs []string `json:"result_urls"`
	OriginURLs []string `json:"origin_urls,omitempty"`
	Resolution string   `json:"resolution,omitempty"`
}

// GenerationTask is the durable correlation record of one generation request.
// It is addressed by CorrelationID, independently of the provider's handle,
// and only changes through its transition methods.
type GenerationTask struct {
	CorrelationID       uuid.UUID
	ParentCorrelationID *uuid.UUID
	UserID              uuid.UUID
	Kind                GenerationKind
	Provider            string
	ProviderTaskID      string
	Parameters          GenerationParameters
	Status              TaskStatus
	Result              *ResultPayload
	ErrorCode           string
	ErrorMessage        string
	CreatedAt           time.Time
	UpdatedAt           time.Time
	SubmittedAt         *time.Time
	CompletedAt         *time.Time
	Version             int
}

// NewGenerationTask creates a pending task. The correlation ID is supplied by
// the caller so that retried requests address the same task.
func NewGenerationTask(
	correlationID uuid.UUID,
	userID uuid.UUID,
	kind GenerationKind,
	params GenerationParameters,
) (*GenerationTask, error) {
	now := time.Now().UTC()
	task := &GenerationTask{
		CorrelationID: correlationID,
		UserID:        userID,
		Kind:          kind,
		Parameters:    params,
		Status:        TaskStatusPending,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := task.Validate(); err != nil {
		return nil, err
	}
	return task, nil
}

// NewExtendTask creates a pending video extension of the task identified by parent.
func NewExtendTask(
	correlationID uuid.UUID,
	userID uuid.UUID,
	parent *GenerationTask,
	params GenerationParameters,
) (*GenerationTask, error) {
	if parent == nil {
		return nil, ErrMissingParent
	}
	params.SourceProviderTaskID = parent.ProviderTaskID
	task, err := NewGenerationTask(correlationID, userID, KindVideoExtend, params)
	if err != nil {
		return nil, err
	}
	parentID := parent.CorrelationID
	task.ParentCorrelationID = &parentID
	return task, task.Validate()
}

// Validate checks the task's invariants.
func (t *GenerationTask) Validate() error {
	if t.CorrelationID == uuid.Nil {
		return ErrEmptyCorrelationID
	}
	if t.UserID == uuid.Nil {
		return ErrEmptyUserID
	}
	if !t.Kind.IsValid() {
		return fmt.Errorf("%w: %q", ErrInvalidKind, t.Kind)
	}
	if !t.Status.IsValid() {
		return fmt.Errorf("%w: %q", ErrInvalidStatus, t.Status)
	}
	if strings.TrimSpace(t.Parameters.Prompt) == "" {
		return ErrEmptyPrompt
	}
	if t.Kind == KindVideoExtend && t.ParentCorrelationID == nil && t.Status != TaskStatusPending {
		return ErrMissingParent
	}
	if (t.Status == TaskStatusCompleted) != (t.Result != nil) {
		return fmt.Errorf("%w: result present=%t status=%s", ErrInconsistentTask, t.Result != nil, t.Status)
	}
	hasError := t.ErrorCode != "" || t.ErrorMessage != ""
	if (t.Status == TaskStatusFailed) != hasError {
		return fmt.Errorf("%w: error present=%t status=%s", ErrInconsistentTask, hasError, t.Status)
	}
	if t.Status.IsAwaitingProvider() && t.ProviderTaskID == "" {
		return fmt.Errorf("%w: %s task without provider task ID", ErrInconsistentTask, t.Status)
	}
	return nil
}

// IsTerminal reports whether the task is completed or failed.
func (t *GenerationTask) IsTerminal() bool {
	return t.Status.IsTerminal()
}

// submittedStatus is the status a task takes once the provider acknowledges it.
func (t *GenerationTask) submittedStatus() TaskStatus {
	if t.Kind == KindVideoExtend {
		return TaskStatusExtending
	}
	return TaskStatusSubmitted
}

// MarkSubmitted records the provider's acknowledgement.
func (t *GenerationTask) MarkSubmitted(provider, providerTaskID string, at time.Time) error {
	if t.IsTerminal() {
		return ErrTaskTerminal
	}
	if t.Status != TaskStatusPending {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, t.Status, t.submittedStatus())
	}
	if err := t.assignProviderTaskID(providerTaskID); err != nil {
		return err
	}
	at = at.UTC()
	t.Provider = provider
	t.Status = t.submittedStatus()
	t.SubmittedAt = &at
	t.UpdatedAt = at
	return nil
}

func (t *GenerationTask) assignProviderTaskID(providerTaskID string) error {
	if providerTaskID == "" {
		return ErrEmptyProviderTaskID
	}
	if t.ProviderTaskID != "" && t.ProviderTaskID != providerTaskID {
		return ErrProviderTaskIDImmutable
	}
	t.ProviderTaskID = providerTaskID
	return nil
}

// Complete moves a task the provider holds into the completed state. A
// pending task must be marked submitted first.
func (t *GenerationTask) Complete(result ResultPayload, at time.Time) error {
	if t.IsTerminal() {
		return ErrTaskTerminal
	}
	if !t.Status.IsAwaitingProvider() {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, t.Status, TaskStatusCompleted)
	}
	if result.ResultURLs == nil {
		result.ResultURLs = []string{}
	}
	at = at.UTC()
	t.Status = TaskStatusCompleted
	t.Result = &result
	t.CompletedAt = &at
	t.UpdatedAt = at
	return nil
}

// Fail moves the task into the failed state. It applies both to a task the
// provider holds and to a pending task whose submission was refused.
func (t *GenerationTask) Fail(code, message string, at time.Time) error {
	if t.IsTerminal() {
		return ErrTaskTerminal
	}
	if code == "" && message == "" {
		message = "unknown error"
	}
	at = at.UTC()
	t.Status = TaskStatusFailed
	t.ErrorCode = code
	t.ErrorMessage = message
	t.CompletedAt = &at
	t.UpdatedAt = at
	return nil
}

// ParametersJSON serializes the request parameters for storage.
func (t *GenerationTask) ParametersJSON() ([]byte, error) {
	return json.Marshal(t.Parameters)
}

// ResultJSON serializes the result payload for storage. It returns nil when
// the task has no result.
func (t *GenerationTask) ResultJSON() ([]byte, error) {
	if t.Result == nil {
		return nil, nil
	}
	return json.Marshal(t.Result)
}

// Clone returns a deep copy of the task.
func (t *GenerationTask) Clone() *GenerationTask {
	c := *t
	if t.ParentCorrelationID != nil {
		id := *t.ParentCorrelationID
		c.ParentCorrelationID = &id
	}
	if t.Parameters.Seeds != nil {
		seeds := *t.Parameters.Seeds
		c.Parameters.Seeds = &seeds
	}
	c.Parameters.ImageURLs = append([]string(nil), t.Parameters.ImageURLs...)
	if t.Result != nil {
		r := *t.Result
		r.ResultURLs = append([]string{}, t.Result.ResultURLs...)
		r.OriginURLs = append([]string(nil), t.Result.OriginURLs...)
		c.Result = &r
	}
	if t.SubmittedAt != nil {
		at := *t.SubmittedAt
		c.SubmittedAt = &at
	}
	if t.CompletedAt != nil {
		at := *t.CompletedAt
		c.CompletedAt = &at
	}
	return &c
}
