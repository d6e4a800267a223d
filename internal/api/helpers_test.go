package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/phrazzld/genflow/internal/api/middleware"
	"github.com/phrazzld/genflow/internal/api/shared"
	"github.com/phrazzld/genflow/internal/domain"
	"github.com/phrazzld/genflow/internal/generation"
	"github.com/phrazzld/genflow/internal/mocks"
	"github.com/phrazzld/genflow/internal/platform/logger"
	"github.com/phrazzld/genflow/internal/platform/memory"
	"github.com/phrazzld/genflow/internal/service/auth"
	"github.com/phrazzld/genflow/internal/service/orchestrator"
	"github.com/stretchr/testify/require"
)

const callbackToken = "cb-secret"

var fixedNow = time.Date(2025, time.June, 1, 12, 0, 0, 0, time.UTC)

// apiHarness wires the handlers to a real orchestrator over the in-memory
// store. A bearer token is accepted when it is a user UUID.
type apiHarness struct {
	store   *memory.GenerationTaskStore
	video   *mocks.MockGateway
	image   *mocks.MockGateway
	emitter *mocks.MockEventEmitter
	orch    *orchestrator.Orchestrator
	logs    *logger.TestLogBuffer
	router  http.Handler
}

func newAPIHarness(t *testing.T) *apiHarness {
	t.Helper()

	log, buf := logger.NewTestLogger()
	h := &apiHarness{
		store:   memory.NewGenerationTaskStore(),
		video:   &mocks.MockGateway{GatewayName: "kie_veo"},
		image:   &mocks.MockGateway{GatewayName: "kie_image"},
		emitter: &mocks.MockEventEmitter{},
		logs:    buf,
	}
	h.orch = orchestrator.NewOrchestrator(
		h.store,
		generation.NewRouter(h.video, h.image),
		h.emitter,
		orchestrator.NewCallbackURLs("https://genflow.example.com", callbackToken),
		log,
		orchestrator.WithClock(func() time.Time { return fixedNow }),
	)

	jwt := &mocks.MockJWTService{
		ValidateTokenFn: func(_ context.Context, token string) (*auth.Claims, error) {
			id, err := uuid.Parse(token)
			if err != nil {
				return nil, auth.ErrInvalidToken
			}
			return &auth.Claims{UserID: id}, nil
		},
	}

	r := chi.NewRouter()
	r.Use(middleware.NewTraceMiddleware(log))
	RegisterRoutes(r,
		NewGenerationHandler(h.orch, log),
		NewCallbackHandler(orchestrator.NewReconciler(h.orch, log), log),
		middleware.NewAuthMiddleware(jwt).Authenticate,
	)
	h.router = r
	return h
}

func (h *apiHarness) do(t *testing.T, method, path string, userID uuid.UUID, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	switch b := body.(type) {
	case nil:
	case string:
		buf.WriteString(b)
	default:
		require.NoError(t, json.NewEncoder(&buf).Encode(b))
	}

	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if userID != uuid.Nil {
		req.Header.Set("Authorization", "Bearer "+userID.String())
	}
	rec := httptest.NewRecorder()
	h.router.ServeHTTP(rec, req)
	return rec
}

// submitVideo creates a video task acknowledged by the video gateway as
// "mock-task-1".
func (h *apiHarness) submitVideo(t *testing.T, userID uuid.UUID) uuid.UUID {
	t.Helper()
	id := uuid.New()
	rec := h.do(t, http.MethodPost, "/api/generations/videos", userID, map[string]interface{}{
		"correlation_id": id.String(),
		"prompt":         "a lighthouse at dusk",
	})
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	return id
}

func (h *apiHarness) task(t *testing.T, id uuid.UUID) *domain.GenerationTask {
	t.Helper()
	task, err := h.store.GetByCorrelationID(context.Background(), id)
	require.NoError(t, err)
	return task
}

func decodeGeneration(t *testing.T, rec *httptest.ResponseRecorder) GenerationResponse {
	t.Helper()
	var resp GenerationResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp), rec.Body.String())
	return resp
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) shared.ErrorResponse {
	t.Helper()
	var resp shared.ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp), rec.Body.String())
	return resp
}
