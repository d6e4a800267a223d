package orchestrator

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/genflow/internal/domain"
	"github.com/phrazzld/genflow/internal/generation"
	"github.com/phrazzld/genflow/internal/mocks"
	"github.com/phrazzld/genflow/internal/platform/logger"
	"github.com/phrazzld/genflow/internal/platform/memory"
	"github.com/phrazzld/genflow/internal/store"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2025, time.June, 1, 12, 0, 0, 0, time.UTC)

type harness struct {
	store      *memory.GenerationTaskStore
	video      *mocks.MockGateway
	image      *mocks.MockGateway
	emitter    *mocks.MockEventEmitter
	logs       *logger.TestLogBuffer
	orch       *Orchestrator
	reconciler *Reconciler
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	return newHarnessWithStore(t, nil)
}

// newHarnessWithStore builds a harness whose orchestrator uses wrap(memory)
// as its store when wrap is non-nil.
func newHarnessWithStore(
	t *testing.T,
	wrap func(store.GenerationTaskStore) store.GenerationTaskStore,
) *harness {
	t.Helper()

	log, buf := logger.NewTestLogger()
	h := &harness{
		store:   memory.NewGenerationTaskStore(),
		video:   &mocks.MockGateway{GatewayName: "kie_veo"},
		image:   &mocks.MockGateway{GatewayName: "kie_image"},
		emitter: &mocks.MockEventEmitter{},
		logs:    buf,
	}

	var s store.GenerationTaskStore = h.store
	if wrap != nil {
		s = wrap(h.store)
	}

	h.orch = NewOrchestrator(
		s,
		generation.NewRouter(h.video, h.image),
		h.emitter,
		NewCallbackURLs("https://genflow.example.com", "secret"),
		log,
		WithClock(func() time.Time { return fixedNow }),
	)
	h.reconciler = NewReconciler(h.orch, log)
	return h
}

func videoRequest(id uuid.UUID, userID uuid.UUID) SubmitRequest {
	return SubmitRequest{
		CorrelationID: id,
		UserID:        userID,
		Kind:          domain.KindVideoGenerate,
		Parameters:    domain.GenerationParameters{Prompt: "a lighthouse at dusk", AspectRatio: "16:9"},
	}
}

// submitVideo submits a video task that the video gateway acknowledges with providerTaskID.
func (h *harness) submitVideo(t *testing.T, providerTaskID string) *domain.GenerationTask {
	t.Helper()
	h.video.ProviderTaskID = providerTaskID
	task, err := h.orch.Submit(context.Background(), videoRequest(uuid.New(), uuid.New()))
	require.NoError(t, err)
	return task
}

func (h *harness) load(t *testing.T, id uuid.UUID) *domain.GenerationTask {
	t.Helper()
	task, err := h.store.GetByCorrelationID(context.Background(), id)
	require.NoError(t, err)
	return task
}

func successReport(providerTaskID, resultJSON string) generation.Report {
	return generation.Report{
		Code:           generation.CodeOK,
		Message:        "success",
		ProviderTaskID: providerTaskID,
		State:          generation.StateSuccess,
		ResultJSON:     resultJSON,
	}
}

func failReport(providerTaskID, failMsg string) generation.Report {
	return generation.Report{
		Code:           generation.CodeOK,
		ProviderTaskID: providerTaskID,
		State:          generation.StateFail,
		FailMessage:    failMsg,
	}
}

var errStoreDown = errors.New("store down")

// failingUpdates makes every Update inside a transaction fail.
type failingUpdates struct {
	store.GenerationTaskStore
}

func (f *failingUpdates) RunInTransaction(
	ctx context.Context,
	fn func(ctx context.Context, s store.GenerationTaskStore) error,
) error {
	return f.GenerationTaskStore.RunInTransaction(ctx, func(ctx context.Context, s store.GenerationTaskStore) error {
		return fn(ctx, &failingUpdateTx{GenerationTaskStore: s})
	})
}

type failingUpdateTx struct {
	store.GenerationTaskStore
}

func (f *failingUpdateTx) Update(context.Context, *domain.GenerationTask) error {
	return errStoreDown
}
