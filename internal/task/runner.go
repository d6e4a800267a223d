package task

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/genflow/internal/config"
	"github.com/phrazzld/genflow/internal/domain"
	"github.com/phrazzld/genflow/internal/generation"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

// Poller is the part of the orchestrator the runner drives.
type Poller interface {
	// FindStale returns up to limit tasks waiting on their provider since before cutoff.
	FindStale(ctx context.Context, cutoff time.Time, limit int) ([]*domain.GenerationTask, error)

	// Poll fetches the provider status of a task and applies it.
	Poll(ctx context.Context, id uuid.UUID) (*domain.GenerationTask, error)
}

// PollRunnerConfig holds configuration for the poll runner
type PollRunnerConfig struct {
	// Interval defines how often to look for stale tasks
	Interval time.Duration

	// StaleAfter defines how long a task may wait on its provider
	// before it is polled instead of waiting for a callback
	StaleAfter time.Duration

	// BatchSize caps the number of tasks polled per tick
	BatchSize int

	// Concurrency caps the number of status requests in flight
	Concurrency int

	// RatePerSecond caps the rate of status requests sent to providers
	RatePerSecond float64
}

// DefaultPollRunnerConfig returns a PollRunnerConfig with reasonable defaults
func DefaultPollRunnerConfig() PollRunnerConfig {
	return PollRunnerConfig{
		Interval:      30 * time.Second,
		StaleAfter:    2 * time.Minute,
		BatchSize:     50,
		Concurrency:   4,
		RatePerSecond: 5,
	}
}

// PollRunnerConfigFrom converts the application's poller settings, falling
// back to defaults for unset values.
func PollRunnerConfigFrom(cfg config.PollerConfig) PollRunnerConfig {
	c := DefaultPollRunnerConfig()
	if cfg.Interval > 0 {
		c.Interval = cfg.Interval
	}
	if cfg.StaleAfter > 0 {
		c.StaleAfter = cfg.StaleAfter
	}
	if cfg.BatchSize > 0 {
		c.BatchSize = cfg.BatchSize
	}
	if cfg.Concurrency > 0 {
		c.Concurrency = cfg.Concurrency
	}
	if cfg.RatePerSecond > 0 {
		c.RatePerSecond = cfg.RatePerSecond
	}
	return c
}

// PollStats summarizes one polling pass.
type PollStats struct {
	Found     int
	Completed int
	Failed    int
	Unchanged int
	Errors    int
}

// PollRunner periodically polls providers for tasks whose callback has not
// arrived, as a fallback for lost callbacks.
type PollRunner struct {
	poller     Poller
	config     PollRunnerConfig
	limiter    *rate.Limiter
	now        func() time.Time
	ctx        context.Context
	cancelFunc context.CancelFunc
	wg         sync.WaitGroup
	logger     *slog.Logger
}

// NewPollRunner creates a new PollRunner
func NewPollRunner(poller Poller, config PollRunnerConfig, logger *slog.Logger) *PollRunner {
	if poller == nil {
		panic("poller cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	defaults := DefaultPollRunnerConfig()
	if config.Interval <= 0 {
		config.Interval = defaults.Interval
	}
	if config.BatchSize <= 0 {
		config.BatchSize = defaults.BatchSize
	}
	if config.Concurrency <= 0 {
		config.Concurrency = defaults.Concurrency
	}
	if config.RatePerSecond <= 0 {
		config.RatePerSecond = defaults.RatePerSecond
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &PollRunner{
		poller:     poller,
		config:     config,
		limiter:    rate.NewLimiter(rate.Limit(config.RatePerSecond), config.Concurrency),
		now:        time.Now,
		ctx:        ctx,
		cancelFunc: cancel,
		logger:     logger.With("component", "poll_runner"),
	}
}

// Start begins polling in the background
func (r *PollRunner) Start() {
	r.logger.Info("starting poll runner",
		"interval", r.config.Interval,
		"stale_after", r.config.StaleAfter,
		"concurrency", r.config.Concurrency)

	r.wg.Add(1)
	go r.monitor()
}

// Stop cancels in-flight polls and waits for the runner to exit
func (r *PollRunner) Stop() {
	r.cancelFunc()
	r.wg.Wait()
}

// monitor runs a polling pass on every tick until the runner is stopped
func (r *PollRunner) monitor() {
	defer r.wg.Done()

	ticker := time.NewTicker(r.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-r.ctx.Done():
			r.logger.Debug("stopping poll runner")
			return

		case <-ticker.C:
			stats, err := r.RunOnce(r.ctx)
			if err != nil {
				if !errors.Is(err, context.Canceled) {
					r.logger.Error("polling pass failed", "error", err)
				}
				continue
			}
			if stats.Found > 0 {
				r.logger.Info("polling pass finished",
					"found", stats.Found,
					"completed", stats.Completed,
					"failed", stats.Failed,
					"unchanged", stats.Unchanged,
					"errors", stats.Errors)
			}
		}
	}
}

// RunOnce polls every task that has waited longer than StaleAfter, up to
// BatchSize. Per-task failures are counted, not returned; the task stays as
// it was and is picked up again on a later pass.
func (r *PollRunner) RunOnce(ctx context.Context) (PollStats, error) {
	cutoff := r.now().Add(-r.config.StaleAfter)
	tasks, err := r.poller.FindStale(ctx, cutoff, r.config.BatchSize)
	if err != nil {
		return PollStats{}, fmt.Errorf("failed to find stale tasks: %w", err)
	}

	var completed, failed, unchanged, errCount atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.config.Concurrency)
	for _, t := range tasks {
		id := t.CorrelationID
		g.Go(func() error {
			if err := r.limiter.Wait(gctx); err != nil {
				return err
			}

			updated, err := r.poller.Poll(gctx, id)
			switch {
			case err != nil:
				errCount.Add(1)
				level := slog.LevelWarn
				if errors.Is(err, generation.ErrProviderUnavailable) {
					level = slog.LevelInfo
				}
				r.logger.Log(gctx, level, "poll failed, will retry",
					"correlation_id", id.String(),
					"error", err)
			case updated.Status == domain.TaskStatusCompleted:
				completed.Add(1)
			case updated.Status == domain.TaskStatusFailed:
				failed.Add(1)
			default:
				unchanged.Add(1)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return PollStats{}, err
	}

	return PollStats{
		Found:     len(tasks),
		Completed: int(completed.Load()),
		Failed:    int(failed.Load()),
		Unchanged: int(unchanged.Load()),
		Errors:    int(errCount.Load()),
	}, nil
}
