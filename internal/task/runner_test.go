package task

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/genflow/internal/config"
	"github.com/phrazzld/genflow/internal/domain"
	"github.com/phrazzld/genflow/internal/generation"
	"github.com/phrazzld/genflow/internal/platform/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePoller struct {
	mu       sync.Mutex
	stale    []*domain.GenerationTask
	findErr  error
	cutoffs  []time.Time
	limits   []int
	pollFn   func(ctx context.Context, id uuid.UUID) (*domain.GenerationTask, error)
	polled   []uuid.UUID
	inFlight atomic.Int32
	maxSeen  atomic.Int32
}

func (f *fakePoller) FindStale(_ context.Context, cutoff time.Time, limit int) ([]*domain.GenerationTask, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cutoffs = append(f.cutoffs, cutoff)
	f.limits = append(f.limits, limit)
	if f.findErr != nil {
		return nil, f.findErr
	}
	return f.stale, nil
}

func (f *fakePoller) Poll(ctx context.Context, id uuid.UUID) (*domain.GenerationTask, error) {
	n := f.inFlight.Add(1)
	defer f.inFlight.Add(-1)
	for {
		seen := f.maxSeen.Load()
		if n <= seen || f.maxSeen.CompareAndSwap(seen, n) {
			break
		}
	}

	f.mu.Lock()
	f.polled = append(f.polled, id)
	fn := f.pollFn
	f.mu.Unlock()

	if fn != nil {
		return fn(ctx, id)
	}
	return &domain.GenerationTask{CorrelationID: id, Status: domain.TaskStatusSubmitted}, nil
}

func staleTasks(n int) []*domain.GenerationTask {
	tasks := make([]*domain.GenerationTask, n)
	for i := range tasks {
		tasks[i] = &domain.GenerationTask{CorrelationID: uuid.New(), Status: domain.TaskStatusSubmitted}
	}
	return tasks
}

func testConfig() PollRunnerConfig {
	return PollRunnerConfig{
		Interval:      10 * time.Millisecond,
		StaleAfter:    2 * time.Minute,
		BatchSize:     25,
		Concurrency:   2,
		RatePerSecond: 1000,
	}
}

func TestPollRunner_RunOnce(t *testing.T) {
	t.Parallel()

	tasks := staleTasks(4)
	outcomes := map[uuid.UUID]func() (*domain.GenerationTask, error){
		tasks[0].CorrelationID: func() (*domain.GenerationTask, error) {
			return &domain.GenerationTask{Status: domain.TaskStatusCompleted}, nil
		},
		tasks[1].CorrelationID: func() (*domain.GenerationTask, error) {
			return &domain.GenerationTask{Status: domain.TaskStatusFailed}, nil
		},
		tasks[2].CorrelationID: func() (*domain.GenerationTask, error) {
			return &domain.GenerationTask{Status: domain.TaskStatusSubmitted}, nil
		},
		tasks[3].CorrelationID: func() (*domain.GenerationTask, error) {
			return &domain.GenerationTask{Status: domain.TaskStatusSubmitted},
				generation.Unavailable("kie_veo", "status", context.DeadlineExceeded)
		},
	}
	poller := &fakePoller{
		stale: tasks,
		pollFn: func(_ context.Context, id uuid.UUID) (*domain.GenerationTask, error) {
			return outcomes[id]()
		},
	}

	log, _ := logger.NewTestLogger()
	runner := NewPollRunner(poller, testConfig(), log)
	now := time.Date(2025, time.June, 1, 12, 0, 0, 0, time.UTC)
	runner.now = func() time.Time { return now }

	stats, err := runner.RunOnce(context.Background())
	require.NoError(t, err)

	assert.Equal(t, PollStats{Found: 4, Completed: 1, Failed: 1, Unchanged: 1, Errors: 1}, stats)
	assert.Equal(t, []time.Time{now.Add(-2 * time.Minute)}, poller.cutoffs)
	assert.Equal(t, []int{25}, poller.limits)
	assert.ElementsMatch(t, []uuid.UUID{
		tasks[0].CorrelationID, tasks[1].CorrelationID, tasks[2].CorrelationID, tasks[3].CorrelationID,
	}, poller.polled)
}

func TestPollRunner_BoundsConcurrency(t *testing.T) {
	t.Parallel()

	poller := &fakePoller{
		stale: staleTasks(12),
		pollFn: func(_ context.Context, id uuid.UUID) (*domain.GenerationTask, error) {
			time.Sleep(5 * time.Millisecond)
			return &domain.GenerationTask{CorrelationID: id, Status: domain.TaskStatusSubmitted}, nil
		},
	}

	log, _ := logger.NewTestLogger()
	runner := NewPollRunner(poller, testConfig(), log)

	stats, err := runner.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 12, stats.Unchanged)
	assert.LessOrEqual(t, poller.maxSeen.Load(), int32(2))
}

func TestPollRunner_FindError(t *testing.T) {
	t.Parallel()

	boom := errors.New("db down")
	log, _ := logger.NewTestLogger()
	runner := NewPollRunner(&fakePoller{findErr: boom}, testConfig(), log)

	_, err := runner.RunOnce(context.Background())
	assert.ErrorIs(t, err, boom)
}

func TestPollRunner_CancelledContext(t *testing.T) {
	t.Parallel()

	log, _ := logger.NewTestLogger()
	runner := NewPollRunner(&fakePoller{stale: staleTasks(3)}, testConfig(), log)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := runner.RunOnce(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestPollRunner_StartStop(t *testing.T) {
	t.Parallel()

	poller := &fakePoller{stale: staleTasks(1)}
	log, _ := logger.NewTestLogger()
	runner := NewPollRunner(poller, testConfig(), log)

	runner.Start()
	assert.Eventually(t, func() bool {
		poller.mu.Lock()
		defer poller.mu.Unlock()
		return len(poller.polled) >= 2
	}, time.Second, 5*time.Millisecond)
	runner.Stop()

	poller.mu.Lock()
	calls := len(poller.cutoffs)
	poller.mu.Unlock()
	time.Sleep(30 * time.Millisecond)
	poller.mu.Lock()
	defer poller.mu.Unlock()
	assert.Equal(t, calls, len(poller.cutoffs))
}

func TestPollRunnerConfigFrom(t *testing.T) {
	t.Parallel()

	c := PollRunnerConfigFrom(config.PollerConfig{Interval: time.Minute, Concurrency: 8})
	assert.Equal(t, time.Minute, c.Interval)
	assert.Equal(t, 8, c.Concurrency)
	assert.Equal(t, DefaultPollRunnerConfig().StaleAfter, c.StaleAfter)
	assert.Equal(t, DefaultPollRunnerConfig().BatchSize, c.BatchSize)
}
