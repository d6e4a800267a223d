package events

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/genflow/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func completedTask(t *testing.T) *domain.GenerationTask {
	t.Helper()
	task, err := domain.NewGenerationTask(uuid.New(), uuid.New(), domain.KindVideoGenerate,
		domain.GenerationParameters{Prompt: "waves"})
	require.NoError(t, err)
	now := time.Now()
	require.NoError(t, task.MarkSubmitted("kie_veo", "P1", now))
	require.NoError(t, task.Complete(domain.ResultPayload{
		ResultURLs: []string{"https://x/a.mp4"},
		Resolution: "1080p",
	}, now))
	return task
}

func TestNewEvent(t *testing.T) {
	correlationID := uuid.New()
	at := time.Now()

	event, err := NewEvent("test_event", correlationID, map[string]string{"key": "value"}, at)
	require.NoError(t, err)

	assert.Equal(t, EventID(correlationID, "test_event"), event.ID)
	assert.Equal(t, correlationID, event.CorrelationID)
	assert.Equal(t, "test_event", event.Type)
	assert.True(t, at.Equal(event.OccurredAt))

	var decoded map[string]string
	require.NoError(t, event.UnmarshalPayload(&decoded))
	assert.Equal(t, "value", decoded["key"])

	_, err = NewEvent("bad", correlationID, make(chan int), at)
	assert.Error(t, err)
}

func TestEventID_Deterministic(t *testing.T) {
	a := uuid.New()
	b := uuid.New()

	assert.Equal(t, EventID(a, TypeGenerationCompleted), EventID(a, TypeGenerationCompleted))
	assert.NotEqual(t, EventID(a, TypeGenerationCompleted), EventID(a, TypeGenerationFailed))
	assert.NotEqual(t, EventID(a, TypeGenerationCompleted), EventID(b, TypeGenerationCompleted))
}

func TestNewGenerationCompletedEvent(t *testing.T) {
	task := completedTask(t)

	event, err := NewGenerationCompletedEvent(task)
	require.NoError(t, err)
	assert.Equal(t, TypeGenerationCompleted, event.Type)

	var payload GenerationCompleted
	require.NoError(t, event.UnmarshalPayload(&payload))
	assert.Equal(t, task.CorrelationID, payload.CorrelationID)
	assert.Equal(t, "P1", payload.ProviderTaskID)
	assert.Equal(t, []string{"https://x/a.mp4"}, payload.ResultURLs)
	assert.Equal(t, "1080p", payload.Resolution)

	_, err = NewGenerationFailedEvent(task)
	assert.ErrorIs(t, err, domain.ErrInconsistentTask)
}

func TestNewGenerationFailedEvent(t *testing.T) {
	task, err := domain.NewGenerationTask(uuid.New(), uuid.New(), domain.KindImageGenerate,
		domain.GenerationParameters{Prompt: "cat"})
	require.NoError(t, err)
	require.NoError(t, task.MarkSubmitted("kie_image", "P2", time.Now()))

	_, err = NewGenerationCompletedEvent(task)
	assert.ErrorIs(t, err, domain.ErrInconsistentTask)

	require.NoError(t, task.Fail("501", "quota exceeded", time.Now()))
	event, err := NewGenerationFailedEvent(task)
	require.NoError(t, err)

	var payload GenerationFailed
	require.NoError(t, event.UnmarshalPayload(&payload))
	assert.Equal(t, "501", payload.ErrorCode)
	assert.Equal(t, "quota exceeded", payload.ErrorMessage)
	assert.Equal(t, "P2", payload.ProviderTaskID)
}

func TestNewGenerationStartedEvent(t *testing.T) {
	task, err := domain.NewGenerationTask(uuid.New(), uuid.New(), domain.KindVideoGenerate,
		domain.GenerationParameters{Prompt: "waves", AspectRatio: "9:16"})
	require.NoError(t, err)
	require.NoError(t, task.MarkSubmitted("kie_veo", "P1", time.Now()))

	event, err := NewGenerationStartedEvent(task)
	require.NoError(t, err)

	var payload GenerationStarted
	require.NoError(t, event.UnmarshalPayload(&payload))
	assert.Equal(t, task.UserID, payload.UserID)
	assert.Equal(t, "9:16", payload.Parameters.AspectRatio)
	assert.Equal(t, domain.KindVideoGenerate, payload.Kind)
}

// MockEventHandler implements the EventHandler interface for testing
type MockEventHandler struct {
	// The last event received by this handler
	LastEvent *Event
	// Error to return from HandleEvent
	HandlerError error
	// Count of events handled
	HandledCount int
}

// HandleEvent implements the EventHandler interface
func (h *MockEventHandler) HandleEvent(ctx context.Context, event *Event) error {
	h.LastEvent = event
	h.HandledCount++
	return h.HandlerError
}

func TestEventHandler(t *testing.T) {
	handler := &MockEventHandler{}

	event, err := NewEvent("test_type", uuid.New(), map[string]string{"key": "value"}, time.Now())
	require.NoError(t, err)

	err = handler.HandleEvent(context.Background(), event)
	assert.NoError(t, err)
	assert.Equal(t, 1, handler.HandledCount)
	assert.Equal(t, event, handler.LastEvent)

	expectedErr := errors.New("handler error")
	handler.HandlerError = expectedErr
	err = handler.HandleEvent(context.Background(), event)
	assert.Equal(t, expectedErr, err)
	assert.Equal(t, 2, handler.HandledCount)
}
