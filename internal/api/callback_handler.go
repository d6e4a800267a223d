package api

import (
	"context"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/phrazzld/genflow/internal/api/shared"
	"github.com/phrazzld/genflow/internal/platform/logger"
	"github.com/phrazzld/genflow/internal/redact"
	"github.com/phrazzld/genflow/internal/service/orchestrator"
)

// CallbackReconciler applies provider callbacks to tasks.
type CallbackReconciler interface {
	HandleProviderCallback(ctx context.Context, cb orchestrator.Callback) error
}

// CallbackHandler receives provider webhooks. Every callback is answered with
// 200 so providers never retry on account of our internal state.
type CallbackHandler struct {
	reconciler CallbackReconciler
	logger     *slog.Logger
}

// NewCallbackHandler creates a new CallbackHandler
func NewCallbackHandler(reconciler CallbackReconciler, logger *slog.Logger) *CallbackHandler {
	if reconciler == nil {
		panic("reconciler cannot be nil for CallbackHandler")
	}
	if logger == nil {
		panic("logger cannot be nil for CallbackHandler")
	}
	return &CallbackHandler{
		reconciler: reconciler,
		logger:     logger.With(slog.String("component", "callback_handler")),
	}
}

// HandleCallback handles POST /api/callbacks/{provider}/{correlationID} and
// POST /api/callbacks/{provider}.
func (h *CallbackHandler) HandleCallback(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContextOrDefault(r.Context(), h.logger)
	provider := chi.URLParam(r, "provider")

	correlationID := uuid.Nil
	if raw := chi.URLParam(r, "correlationID"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			log.Warn("callback with malformed correlation ID, ignoring",
				slog.String("provider", provider))
			h.ack(w, r)
			return
		}
		correlationID = id
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, shared.MaxBodyBytes))
	if err != nil {
		log.Warn("failed to read callback body, ignoring",
			slog.String("provider", provider),
			slog.String("error", err.Error()))
		h.ack(w, r)
		return
	}

	// Processing continues if the provider hangs up early.
	ctx := context.WithoutCancel(r.Context())
	err = h.reconciler.HandleProviderCallback(ctx, orchestrator.Callback{
		Provider:      provider,
		CorrelationID: correlationID,
		Token:         r.URL.Query().Get("token"),
		Body:          body,
	})
	if err != nil {
		log.Error("failed to reconcile callback",
			slog.String("provider", provider),
			slog.String("correlation_id", correlationID.String()),
			slog.String("error", redact.Error(err)))
	}
	h.ack(w, r)
}

func (h *CallbackHandler) ack(w http.ResponseWriter, r *http.Request) {
	shared.RespondWithJSON(w, r, http.StatusOK, CallbackAck{Status: "ok"})
}
