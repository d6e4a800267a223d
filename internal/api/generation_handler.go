package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"github.com/phrazzld/genflow/internal/api/shared"
	"github.com/phrazzld/genflow/internal/domain"
	"github.com/phrazzld/genflow/internal/generation"
	"github.com/phrazzld/genflow/internal/platform/logger"
	"github.com/phrazzld/genflow/internal/redact"
	"github.com/phrazzld/genflow/internal/service/orchestrator"
)

// GenerationService is the subset of the orchestrator the handlers use.
type GenerationService interface {
	Submit(ctx context.Context, req orchestrator.SubmitRequest) (*domain.GenerationTask, error)
	Extend(ctx context.Context, req orchestrator.ExtendRequest) (*domain.GenerationTask, error)
	GetTask(ctx context.Context, id uuid.UUID) (*domain.GenerationTask, error)
	Poll(ctx context.Context, id uuid.UUID) (*domain.GenerationTask, error)
}

// GenerationHandler handles generation-related HTTP requests
type GenerationHandler struct {
	generations GenerationService
	logger      *slog.Logger
}

// NewGenerationHandler creates a new GenerationHandler
func NewGenerationHandler(generations GenerationService, logger *slog.Logger) *GenerationHandler {
	if generations == nil {
		panic("generations cannot be nil for GenerationHandler")
	}
	if logger == nil {
		panic("logger cannot be nil for GenerationHandler")
	}
	return &GenerationHandler{
		generations: generations,
		logger:      logger.With(slog.String("component", "generation_handler")),
	}
}

// SubmitVideo handles POST /api/generations/videos requests.
func (h *GenerationHandler) SubmitVideo(w http.ResponseWriter, r *http.Request) {
	var req SubmitVideoRequest
	h.submit(w, r, &req, domain.KindVideoGenerate, func() (string, domain.GenerationParameters) {
		return req.CorrelationID, req.Parameters()
	})
}

// SubmitImage handles POST /api/generations/images requests.
func (h *GenerationHandler) SubmitImage(w http.ResponseWriter, r *http.Request) {
	var req SubmitImageRequest
	h.submit(w, r, &req, domain.KindImageGenerate, func() (string, domain.GenerationParameters) {
		return req.CorrelationID, req.Parameters()
	})
}

func (h *GenerationHandler) submit(
	w http.ResponseWriter,
	r *http.Request,
	body interface{},
	kind domain.GenerationKind,
	fields func() (string, domain.GenerationParameters),
) {
	log := logger.FromContextOrDefault(r.Context(), h.logger)

	userID, ok := getUserIDFromContext(r)
	if !ok {
		log.Warn("user ID not found or invalid in request context")
		HandleAPIError(w, r, ErrUnauthorized, "")
		return
	}
	if !decodeAndValidate(w, r, body, log) {
		return
	}

	rawID, params := fields()
	correlationID := uuid.MustParse(rawID)

	task, err := h.generations.Submit(r.Context(), orchestrator.SubmitRequest{
		CorrelationID: correlationID,
		UserID:        userID,
		Kind:          kind,
		Parameters:    params,
	})
	h.respondSubmission(w, r, log, task, err)
}

// ExtendVideo handles POST /api/generations/videos/{correlationID}/extend requests.
func (h *GenerationHandler) ExtendVideo(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContextOrDefault(r.Context(), h.logger)

	userID, sourceID, ok := handleUserIDAndPathUUID(w, r, "correlationID", log)
	if !ok {
		return
	}

	var req ExtendVideoRequest
	if !decodeAndValidate(w, r, &req, log) {
		return
	}

	task, err := h.generations.Extend(r.Context(), orchestrator.ExtendRequest{
		CorrelationID:       uuid.MustParse(req.CorrelationID),
		UserID:              userID,
		SourceCorrelationID: sourceID,
		Parameters:          req.Parameters(),
	})
	h.respondSubmission(w, r, log, task, err)
}

// respondSubmission answers 202 with the accepted task. A provider rejection
// is a 400 carrying no task: the failed task stays queryable by its ID.
func (h *GenerationHandler) respondSubmission(
	w http.ResponseWriter,
	r *http.Request,
	log *slog.Logger,
	task *domain.GenerationTask,
	err error,
) {
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}
	log.Debug("generation accepted",
		slog.String("correlation_id", task.CorrelationID.String()),
		slog.String("status", string(task.Status)))
	shared.RespondWithJSON(w, r, http.StatusAccepted, generationToResponse(task))
}

// GetGeneration handles GET /api/generations/{correlationID} requests.
func (h *GenerationHandler) GetGeneration(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContextOrDefault(r.Context(), h.logger)

	userID, id, ok := handleUserIDAndPathUUID(w, r, "correlationID", log)
	if !ok {
		return
	}

	task, ok := h.ownedTask(w, r, log, userID, id)
	if !ok {
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, generationToResponse(task))
}

// RefreshGeneration handles POST /api/generations/{correlationID}/refresh
// requests by asking the provider for the task's status.
func (h *GenerationHandler) RefreshGeneration(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContextOrDefault(r.Context(), h.logger)

	userID, id, ok := handleUserIDAndPathUUID(w, r, "correlationID", log)
	if !ok {
		return
	}
	if _, ok := h.ownedTask(w, r, log, userID, id); !ok {
		return
	}

	task, err := h.generations.Poll(r.Context(), id)
	if err != nil {
		if task == nil || errors.Is(err, generation.ErrProviderUnavailable) {
			HandleAPIError(w, r, err, "")
			return
		}
		log.Warn("status refresh failed, returning stored task",
			slog.String("correlation_id", id.String()),
			slog.String("error", redact.Error(err)))
	}
	shared.RespondWithJSON(w, r, http.StatusOK, generationToResponse(task))
}

// ownedTask loads the task and checks that userID owns it. Tasks of other
// users are answered like missing ones.
func (h *GenerationHandler) ownedTask(
	w http.ResponseWriter,
	r *http.Request,
	log *slog.Logger,
	userID, id uuid.UUID,
) (*domain.GenerationTask, bool) {
	task, err := h.generations.GetTask(r.Context(), id)
	if err != nil {
		HandleAPIError(w, r, err, "")
		return nil, false
	}
	if task.UserID != userID {
		log.Warn("generation requested by non-owner",
			slog.String("correlation_id", id.String()),
			slog.String("user_id", userID.String()))
		HandleAPIError(w, r, orchestrator.ErrNotOwned, "")
		return nil, false
	}
	return task, true
}
