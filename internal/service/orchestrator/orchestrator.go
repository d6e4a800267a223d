package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/genflow/internal/domain"
	"github.com/phrazzld/genflow/internal/events"
	"github.com/phrazzld/genflow/internal/generation"
	"github.com/phrazzld/genflow/internal/platform/logger"
	"github.com/phrazzld/genflow/internal/store"
)

// Orchestrator applies lifecycle transitions to generation tasks.
// It is safe for concurrent use.
type Orchestrator struct {
	store     store.GenerationTaskStore
	gateways  *generation.Router
	events    events.EventEmitter
	callbacks *CallbackURLs
	now       func() time.Time
	logger    *slog.Logger
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithClock overrides the time source used for transition timestamps.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) {
		o.now = now
	}
}

// NewOrchestrator creates an Orchestrator. If logger is nil, a default
// logger will be used.
func NewOrchestrator(
	taskStore store.GenerationTaskStore,
	gateways *generation.Router,
	emitter events.EventEmitter,
	callbacks *CallbackURLs,
	logger *slog.Logger,
	opts ...Option,
) *Orchestrator {
	if taskStore == nil {
		panic("taskStore cannot be nil")
	}
	if gateways == nil {
		panic("gateways cannot be nil")
	}
	if emitter == nil {
		panic("emitter cannot be nil")
	}
	if callbacks == nil {
		panic("callbacks cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}

	o := &Orchestrator{
		store:     taskStore,
		gateways:  gateways,
		events:    emitter,
		callbacks: callbacks,
		now:       time.Now,
		logger:    logger.With(slog.String("component", "orchestrator")),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// execute runs fn in a transaction for requests that commit and directly
// against the store for queries.
func (o *Orchestrator) execute(
	ctx context.Context,
	req Request,
	fn func(ctx context.Context, s store.GenerationTaskStore) error,
) error {
	if req.RequiresCommit() {
		return o.store.RunInTransaction(ctx, fn)
	}
	return fn(ctx, o.store)
}

// Submit creates a task for req and hands it to the provider gateway for
// its kind. A correlation ID that was already submitted returns the stored
// task without contacting the provider again.
//
// When the provider is unavailable nothing is persisted and an error
// matching generation.ErrProviderUnavailable is returned, so the caller may
// retry with the same correlation ID. When the provider rejects the request
// the task is stored as failed and returned together with an error matching
// generation.ErrSubmissionRejected.
func (o *Orchestrator) Submit(ctx context.Context, req SubmitRequest) (*domain.GenerationTask, error) {
	log := logger.FromContextOrDefault(ctx, o.logger)

	if err := req.Validate(); err != nil {
		log.Warn("invalid submit request", slog.String("error", err.Error()))
		return nil, err
	}

	gw, err := o.gateways.ForKind(req.Kind)
	if err != nil {
		return nil, NewServiceError("submit", "no gateway for kind", err)
	}

	task, err := domain.NewGenerationTask(req.CorrelationID, req.UserID, req.Kind, req.Parameters)
	if err != nil {
		log.Warn("invalid generation task",
			slog.String("correlation_id", req.CorrelationID.String()),
			slog.String("error", err.Error()))
		return nil, fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}

	return o.submit(ctx, req, submission{
		operation: "submit",
		task:      task,
		gateway:   gw,
		call: func(ctx context.Context, t *domain.GenerationTask, callbackURL string) (string, error) {
			return gw.Submit(ctx, t.Kind, t.Parameters, callbackURL)
		},
	})
}

// Extend continues the completed video identified by req.SourceCorrelationID
// as a new task under req.CorrelationID. The extension goes to the gateway
// that produced the source video and follows the same rules as Submit.
func (o *Orchestrator) Extend(ctx context.Context, req ExtendRequest) (*domain.GenerationTask, error) {
	log := logger.FromContextOrDefault(ctx, o.logger)

	if err := req.Validate(); err != nil {
		log.Warn("invalid extend request", slog.String("error", err.Error()))
		return nil, err
	}

	source, err := o.GetTask(ctx, req.SourceCorrelationID)
	if err != nil {
		return nil, err
	}
	if source.UserID != req.UserID {
		log.Warn("extend requested for task owned by another user",
			slog.String("source_correlation_id", source.CorrelationID.String()),
			slog.String("user_id", req.UserID.String()))
		return nil, ErrNotOwned
	}
	if !source.Kind.IsVideo() || source.Status != domain.TaskStatusCompleted || source.ProviderTaskID == "" {
		return nil, fmt.Errorf("%w: %s task is %s", ErrNotExtendable, source.Kind, source.Status)
	}

	gw, err := o.gateways.ByName(source.Provider)
	if err != nil {
		return nil, NewServiceError("extend", "no gateway for source provider", err)
	}

	task, err := domain.NewExtendTask(req.CorrelationID, req.UserID, source, req.Parameters)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}

	return o.submit(ctx, req, submission{
		operation: "extend",
		task:      task,
		gateway:   gw,
		call: func(ctx context.Context, t *domain.GenerationTask, callbackURL string) (string, error) {
			return gw.Extend(ctx, t.Parameters.SourceProviderTaskID, t.Parameters, callbackURL)
		},
	})
}

type submission struct {
	operation string
	task      *domain.GenerationTask
	gateway   generation.Gateway
	call      func(ctx context.Context, task *domain.GenerationTask, callbackURL string) (string, error)
}

// submit holds the correlation lock across create, provider call and the
// recorded acknowledgement, so a callback racing the provider's response
// waits for the submission to commit.
func (o *Orchestrator) submit(ctx context.Context, req Request, sub submission) (*domain.GenerationTask, error) {
	task := sub.task
	log := logger.FromContextOrDefault(ctx, o.logger).With(
		slog.String("correlation_id", task.CorrelationID.String()),
		slog.String("kind", string(task.Kind)),
		slog.String("provider", sub.gateway.Name()),
	)

	var (
		result   *domain.GenerationTask
		created  bool
		rejected error
	)
	err := o.execute(ctx, req, func(ctx context.Context, tx store.GenerationTaskStore) error {
		existing, err := tx.GetByCorrelationIDForUpdate(ctx, task.CorrelationID)
		if err == nil {
			if existing.UserID != task.UserID || existing.Kind != task.Kind {
				return ErrCorrelationConflict
			}
			result = existing
			return nil
		}
		if !errors.Is(err, store.ErrNotFound) {
			return NewServiceError(sub.operation, "failed to lock task", err)
		}

		if err := tx.Create(ctx, task); err != nil {
			return NewServiceError(sub.operation, "failed to create task", err)
		}

		providerTaskID, err := sub.call(ctx, task, o.callbacks.For(sub.gateway.Name(), task.CorrelationID))
		if err != nil {
			if errors.Is(err, generation.ErrProviderUnavailable) {
				return err
			}
			code, message := rejectionDetails(err)
			task.Provider = sub.gateway.Name()
			if err := task.Fail(code, message, o.now()); err != nil {
				return NewServiceError(sub.operation, "failed to record rejection", err)
			}
			if err := tx.Update(ctx, task); err != nil {
				return NewServiceError(sub.operation, "failed to record rejection", err)
			}
			result, created, rejected = task, true, err
			return nil
		}

		if err := task.MarkSubmitted(sub.gateway.Name(), providerTaskID, o.now()); err != nil {
			return NewServiceError(sub.operation, "invalid provider acknowledgement", err)
		}
		if err := tx.Update(ctx, task); err != nil {
			return NewServiceError(sub.operation, "failed to record submission", err)
		}
		result, created = task, true
		return nil
	})
	if err != nil {
		switch {
		case errors.Is(err, generation.ErrProviderUnavailable):
			log.Warn("provider unavailable, submission rolled back", slog.String("error", err.Error()))
		case errors.Is(err, ErrCorrelationConflict):
			log.Warn("correlation ID reused for a different request")
		default:
			log.Error("submission failed", slog.String("error", err.Error()))
		}
		return nil, err
	}

	if !created {
		log.Info("correlation ID already submitted, returning existing task",
			slog.String("status", string(result.Status)))
		return result, nil
	}

	if rejected != nil {
		log.Warn("provider rejected submission",
			slog.String("error_code", result.ErrorCode),
			slog.String("error", rejected.Error()))
		o.publish(ctx, result, events.NewGenerationFailedEvent)
		if !errors.Is(rejected, generation.ErrSubmissionRejected) {
			rejected = fmt.Errorf("%w: %w", generation.ErrSubmissionRejected, rejected)
		}
		return result, rejected
	}

	log.Info("generation submitted",
		slog.String("provider_task_id", result.ProviderTaskID),
		slog.String("status", string(result.Status)))
	o.publish(ctx, result, events.NewGenerationStartedEvent)
	return result, nil
}

// rejectionDetails extracts the error code and message recorded on a task
// whose submission the provider refused.
func rejectionDetails(err error) (code, message string) {
	var perr *generation.ProviderError
	if errors.As(err, &perr) {
		code = perr.Code
		if code == "" && perr.HTTPStatus != 0 {
			code = strconv.Itoa(perr.HTTPStatus)
		}
		return code, firstNonEmpty(perr.Message, err.Error())
	}
	if errors.Is(err, generation.ErrUnsupported) {
		return "unsupported", err.Error()
	}
	return "", err.Error()
}

// Complete marks the task completed with result. It is a no-op on a task
// that is already terminal.
func (o *Orchestrator) Complete(
	ctx context.Context,
	id uuid.UUID,
	result domain.ResultPayload,
) (*domain.GenerationTask, error) {
	task, _, err := o.transition(ctx, transitionRequest{
		CorrelationID: id,
		Decision:      Completed(result),
		Trigger:       "api",
	})
	return task, err
}

// Fail marks the task failed. It is a no-op on a task that is already terminal.
func (o *Orchestrator) Fail(
	ctx context.Context,
	id uuid.UUID,
	code, message string,
) (*domain.GenerationTask, error) {
	task, _, err := o.transition(ctx, transitionRequest{
		CorrelationID: id,
		Decision:      Failed(code, message),
		Trigger:       "api",
	})
	return task, err
}

// Poll asks the task's provider for its status and applies the answer like a
// callback. A status fetch that fails leaves the task unchanged; the stored
// task is returned with the error.
func (o *Orchestrator) Poll(ctx context.Context, id uuid.UUID) (*domain.GenerationTask, error) {
	log := logger.FromContextOrDefault(ctx, o.logger).With(slog.String("correlation_id", id.String()))

	task, err := o.GetTask(ctx, id)
	if err != nil {
		return nil, err
	}
	if task.IsTerminal() || task.ProviderTaskID == "" {
		return task, nil
	}

	gw, err := o.gateways.ByName(task.Provider)
	if err != nil {
		return task, NewServiceError("poll", "no gateway for provider", err)
	}

	report, err := gw.FetchStatus(ctx, task.ProviderTaskID)
	if err != nil {
		if errors.Is(err, generation.ErrProviderUnavailable) {
			log.Info("provider unavailable during poll, task unchanged", slog.String("error", err.Error()))
		} else {
			log.Warn("status fetch failed, task unchanged", slog.String("error", err.Error()))
		}
		return task, NewServiceError("poll", "status fetch failed", err)
	}
	if report.ProviderTaskID == "" {
		report.ProviderTaskID = task.ProviderTaskID
	}

	updated, _, err := o.transition(ctx, transitionRequest{
		CorrelationID:  id,
		ProviderTaskID: report.ProviderTaskID,
		Decision:       Decide(report),
		Trigger:        "poll",
	})
	return updated, err
}

// GetTask returns the task for id.
func (o *Orchestrator) GetTask(ctx context.Context, id uuid.UUID) (*domain.GenerationTask, error) {
	var task *domain.GenerationTask
	err := o.execute(ctx, taskQuery{CorrelationID: id}, func(ctx context.Context, s store.GenerationTaskStore) error {
		t, err := s.GetByCorrelationID(ctx, id)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return ErrTaskNotFound
			}
			return NewServiceError("get", "failed to load task", err)
		}
		task = t
		return nil
	})
	if err != nil {
		return nil, err
	}
	return task, nil
}

// FindStale returns up to limit tasks that have waited on their provider
// since before cutoff.
func (o *Orchestrator) FindStale(ctx context.Context, cutoff time.Time, limit int) ([]*domain.GenerationTask, error) {
	tasks, err := o.store.FindAwaitingProvider(ctx, cutoff, limit)
	if err != nil {
		return nil, NewServiceError("find_stale", "failed to query tasks", err)
	}
	return tasks, nil
}

type transitionResult int

const (
	resultApplied transitionResult = iota
	resultUnchanged
	resultAlreadyTerminal
	resultProviderMismatch
	resultUnacknowledged
)

// transition re-reads the task under its lock and applies req.Decision.
// A task that is already terminal, or whose stored provider handle differs
// from the reported one, is left untouched. A report for a pending task is
// the provider's acknowledgement: the task is marked submitted with the
// reported handle before the decision applies. A completion for a pending
// task without a handle is ignored.
func (o *Orchestrator) transition(
	ctx context.Context,
	req transitionRequest,
) (*domain.GenerationTask, transitionResult, error) {
	log := logger.FromContextOrDefault(ctx, o.logger).With(
		slog.String("correlation_id", req.CorrelationID.String()),
		slog.String("trigger", req.Trigger),
	)

	var (
		task   *domain.GenerationTask
		result transitionResult
	)
	err := o.execute(ctx, req, func(ctx context.Context, tx store.GenerationTaskStore) error {
		current, err := tx.GetByCorrelationIDForUpdate(ctx, req.CorrelationID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return ErrTaskNotFound
			}
			return NewServiceError("transition", "failed to lock task", err)
		}
		task = current

		if req.ProviderTaskID != "" && current.ProviderTaskID != "" && req.ProviderTaskID != current.ProviderTaskID {
			result = resultProviderMismatch
			return nil
		}
		if current.IsTerminal() {
			result = resultAlreadyTerminal
			return nil
		}

		now := o.now()
		acknowledged := false
		switch {
		case current.Status != domain.TaskStatusPending:
		case req.ProviderTaskID != "":
			if err := current.MarkSubmitted(o.providerFor(current, req.Provider), req.ProviderTaskID, now); err != nil {
				return NewServiceError("transition", "failed to record provider acknowledgement", err)
			}
			acknowledged = true
		case req.Decision.Outcome == OutcomeCompleted:
			result = resultUnacknowledged
			return nil
		}

		switch req.Decision.Outcome {
		case OutcomeCompleted:
			err = current.Complete(req.Decision.Result, now)
		case OutcomeFailed:
			err = current.Fail(req.Decision.ErrorCode, req.Decision.ErrorMessage, now)
		default:
			result = resultUnchanged
			if !acknowledged {
				return nil
			}
		}
		if err != nil {
			return NewServiceError("transition", "invalid transition", err)
		}

		if err := tx.Update(ctx, current); err != nil {
			return NewServiceError("transition", "failed to persist transition", err)
		}
		if req.Decision.Outcome != OutcomePending {
			result = resultApplied
		}
		return nil
	})
	if err != nil {
		if !errors.Is(err, ErrTaskNotFound) {
			log.Error("transition failed", slog.String("error", err.Error()))
		}
		return nil, 0, err
	}

	switch result {
	case resultProviderMismatch:
		log.Warn("provider task ID mismatch, ignoring report",
			slog.String("stored_provider_task_id", task.ProviderTaskID),
			slog.String("reported_provider_task_id", req.ProviderTaskID))
	case resultAlreadyTerminal:
		log.Info("task already terminal, ignoring report",
			slog.String("status", string(task.Status)),
			slog.String("outcome", req.Decision.Outcome.String()))
	case resultUnacknowledged:
		log.Warn("completion for unsubmitted task carries no provider task ID, ignoring report")
	case resultUnchanged:
		log.Debug("provider still working on task",
			slog.String("provider_task_id", task.ProviderTaskID))
	case resultApplied:
		if req.Decision.MalformedResult {
			log.Warn("malformed result payload, completing with empty result",
				slog.String("provider_task_id", task.ProviderTaskID))
		}
		log.Info("task transitioned",
			slog.String("status", string(task.Status)),
			slog.String("provider_task_id", task.ProviderTaskID))
		if task.Status == domain.TaskStatusCompleted {
			o.publish(ctx, task, events.NewGenerationCompletedEvent)
		} else {
			o.publish(ctx, task, events.NewGenerationFailedEvent)
		}
	}
	return task, result, nil
}

// providerFor names the gateway that holds task: the reporting provider when
// known, otherwise the gateway routed for the task's kind.
func (o *Orchestrator) providerFor(task *domain.GenerationTask, reported string) string {
	if reported != "" {
		return reported
	}
	if task.Provider != "" {
		return task.Provider
	}
	if gw, err := o.gateways.ForKind(task.Kind); err == nil {
		return gw.Name()
	}
	return ""
}

// publish emits the event built from task. Failures are logged only: the
// stored transition stays authoritative.
func (o *Orchestrator) publish(
	ctx context.Context,
	task *domain.GenerationTask,
	build func(*domain.GenerationTask) (*events.Event, error),
) {
	log := logger.FromContextOrDefault(ctx, o.logger)

	event, err := build(task)
	if err != nil {
		log.Error("failed to build event",
			slog.String("correlation_id", task.CorrelationID.String()),
			slog.String("error", err.Error()))
		return
	}
	if err := o.events.EmitEvent(context.WithoutCancel(ctx), event); err != nil {
		log.Error("failed to publish event",
			slog.String("correlation_id", task.CorrelationID.String()),
			slog.String("event_type", event.Type),
			slog.String("event_id", event.ID.String()),
			slog.String("error", err.Error()))
	}
}
