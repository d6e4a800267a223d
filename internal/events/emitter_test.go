package events

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testEvent(t *testing.T) *Event {
	t.Helper()
	event, err := NewEvent("test-event", uuid.New(), map[string]string{"key": "value"}, time.Now())
	require.NoError(t, err)
	return event
}

func TestInMemoryEventEmitter(t *testing.T) {
	// Create a minimal logger that discards output
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	t.Run("emit event with no handlers", func(t *testing.T) {
		emitter := NewInMemoryEventEmitter(logger)
		assert.NoError(t, emitter.EmitEvent(context.Background(), testEvent(t)))
	})

	t.Run("emit event with successful handlers", func(t *testing.T) {
		emitter := NewInMemoryEventEmitter(logger)

		handler1 := &MockEventHandler{}
		handler2 := &MockEventHandler{}
		emitter.RegisterHandler(handler1)
		emitter.RegisterHandler(handler2)

		event := testEvent(t)
		assert.NoError(t, emitter.EmitEvent(context.Background(), event))

		assert.Equal(t, 1, handler1.HandledCount)
		assert.Equal(t, 1, handler2.HandledCount)
		assert.Equal(t, event, handler1.LastEvent)
		assert.Equal(t, event, handler2.LastEvent)
	})

	t.Run("emit event with failing handler", func(t *testing.T) {
		emitter := NewInMemoryEventEmitter(logger)

		successHandler := &MockEventHandler{}
		failingHandler := &MockEventHandler{
			HandlerError: errors.New("handler error"),
		}
		emitter.RegisterHandler(failingHandler)
		emitter.RegisterHandler(successHandler)

		err := emitter.EmitEvent(context.Background(), testEvent(t))
		require.Error(t, err)
		assert.Equal(t, "handler error", err.Error())

		// Both handlers should still have received the event
		assert.Equal(t, 1, successHandler.HandledCount)
		assert.Equal(t, 1, failingHandler.HandledCount)
	})
}

type emitterFunc func(ctx context.Context, event *Event) error

func (f emitterFunc) EmitEvent(ctx context.Context, event *Event) error { return f(ctx, event) }

func TestFanOutEmitter(t *testing.T) {
	var calls []string
	first := emitterFunc(func(ctx context.Context, event *Event) error {
		calls = append(calls, "first")
		return errors.New("bus down")
	})
	second := emitterFunc(func(ctx context.Context, event *Event) error {
		calls = append(calls, "second")
		return nil
	})

	fan := NewFanOutEmitter(first, nil, second)
	err := fan.EmitEvent(context.Background(), testEvent(t))

	require.Error(t, err)
	assert.Contains(t, err.Error(), "bus down")
	assert.Equal(t, []string{"first", "second"}, calls)

	assert.NoError(t, NewFanOutEmitter().EmitEvent(context.Background(), testEvent(t)))
}

func TestLoggingHandler(t *testing.T) {
	handler := NewLoggingHandler(slog.New(slog.NewTextHandler(io.Discard, nil)))
	assert.NoError(t, handler.HandleEvent(context.Background(), testEvent(t)))
}
