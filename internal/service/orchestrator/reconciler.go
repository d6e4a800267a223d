package orchestrator

import (
	"context"
	"errors"
	"log/slog"

	"github.com/google/uuid"
	"github.com/phrazzld/genflow/internal/generation"
	"github.com/phrazzld/genflow/internal/platform/logger"
	"github.com/phrazzld/genflow/internal/store"
)

// Callback is an inbound provider notification as received over HTTP.
type Callback struct {
	// Provider is the gateway name taken from the callback route.
	Provider string
	// CorrelationID is uuid.Nil when the callback URL carried none.
	CorrelationID uuid.UUID
	// Token is the shared secret echoed back on the callback URL.
	Token string
	Body  []byte
}

// Reconciler turns provider callbacks into task transitions. It absorbs every
// problem that originates with the caller (unknown correlation, foreign
// provider handle, bad token, undecodable body) and returns an error only
// when a transition could not be persisted.
type Reconciler struct {
	orchestrator *Orchestrator
	logger       *slog.Logger
}

// NewReconciler creates a Reconciler that applies decisions through o.
func NewReconciler(o *Orchestrator, logger *slog.Logger) *Reconciler {
	if o == nil {
		panic("orchestrator cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Reconciler{
		orchestrator: o,
		logger:       logger.With(slog.String("component", "reconciler")),
	}
}

// HandleProviderCallback authenticates and decodes cb with the named
// provider's gateway, then reconciles it.
func (r *Reconciler) HandleProviderCallback(ctx context.Context, cb Callback) error {
	log := logger.FromContextOrDefault(ctx, r.logger).With(
		slog.String("provider", cb.Provider),
		slog.String("correlation_id", cb.CorrelationID.String()),
	)

	if !r.orchestrator.callbacks.Verify(cb.Token) {
		log.Warn("callback token mismatch, ignoring callback")
		return nil
	}

	gw, err := r.orchestrator.gateways.ByName(cb.Provider)
	if err != nil {
		log.Warn("callback for unknown provider, ignoring", slog.String("error", err.Error()))
		return nil
	}

	report, err := gw.ParseCallback(cb.Body)
	if err != nil {
		log.Warn("invalid callback payload, ignoring", slog.String("error", err.Error()))
		return nil
	}

	if cb.CorrelationID == uuid.Nil {
		return r.HandleOrphanCallback(ctx, cb.Provider, report)
	}
	return r.reconcile(ctx, cb.Provider, cb.CorrelationID, report)
}

// HandleCallback reconciles a decoded report for the task addressed by
// correlationID.
func (r *Reconciler) HandleCallback(ctx context.Context, correlationID uuid.UUID, report generation.Report) error {
	return r.reconcile(ctx, "", correlationID, report)
}

func (r *Reconciler) reconcile(
	ctx context.Context,
	provider string,
	correlationID uuid.UUID,
	report generation.Report,
) error {
	log := logger.FromContextOrDefault(ctx, r.logger).With(
		slog.String("correlation_id", correlationID.String()),
		slog.String("provider_task_id", report.ProviderTaskID),
	)

	decision := Decide(report)
	log.Debug("callback decided",
		slog.Int("code", report.Code),
		slog.String("state", report.State),
		slog.String("outcome", decision.Outcome.String()))

	_, _, err := r.orchestrator.transition(ctx, transitionRequest{
		CorrelationID:  correlationID,
		ProviderTaskID: report.ProviderTaskID,
		Provider:       provider,
		Decision:       decision,
		Trigger:        "callback",
	})
	if errors.Is(err, ErrTaskNotFound) {
		log.Warn("callback for unknown correlation ID, ignoring")
		return nil
	}
	return err
}

// HandleOrphanCallback reconciles a report that arrived without a
// correlation ID by looking the task up through the named provider's handle.
func (r *Reconciler) HandleOrphanCallback(ctx context.Context, provider string, report generation.Report) error {
	log := logger.FromContextOrDefault(ctx, r.logger).With(
		slog.String("provider", provider),
		slog.String("provider_task_id", report.ProviderTaskID),
	)

	if report.ProviderTaskID == "" {
		log.Warn("callback carries neither correlation ID nor provider task ID, ignoring")
		return nil
	}

	task, err := r.orchestrator.store.GetByProviderTaskID(ctx, provider, report.ProviderTaskID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			log.Warn("callback for unknown provider task ID, ignoring")
			return nil
		}
		return NewServiceError("reconcile", "failed to look up provider task", err)
	}
	return r.reconcile(ctx, provider, task.CorrelationID, report)
}
