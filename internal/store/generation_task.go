package store

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/genflow/internal/domain"
)

// GenerationTaskStore defines persistence for generation tasks, keyed by
// correlation ID.
// Version: 1.0
type GenerationTaskStore interface {
	// Create saves a new task.
	// Returns ErrDuplicateCorrelationID if a task already exists for the correlation ID.
	Create(ctx context.Context, task *domain.GenerationTask) error

	// GetByCorrelationID retrieves a task without locking it.
	// Returns ErrGenerationTaskNotFound if no task exists.
	GetByCorrelationID(ctx context.Context, id uuid.UUID) (*domain.GenerationTask, error)

	// GetByCorrelationIDForUpdate retrieves a task and takes the exclusive
	// per-correlation lock, held until the enclosing transaction ends. The lock
	// is taken even when no task exists yet, so it also serializes creation.
	// Returns ErrGenerationTaskNotFound if no task exists.
	GetByCorrelationIDForUpdate(ctx context.Context, id uuid.UUID) (*domain.GenerationTask, error)

	// GetByProviderTaskID retrieves a task by the identifier the named provider
	// assigned to it. Provider handles are only unique per provider.
	// Returns ErrGenerationTaskNotFound if no task of that provider carries the ID.
	GetByProviderTaskID(ctx context.Context, provider, providerTaskID string) (*domain.GenerationTask, error)

	// Update persists the full task after a transition. The write is rejected
	// with ErrUpdateFailed if the stored version differs from task.Version;
	// on success task.Version is incremented.
	Update(ctx context.Context, task *domain.GenerationTask) error

	// FindAwaitingProvider returns up to limit tasks that were handed to the
	// provider before the cutoff and have not reached a terminal state,
	// oldest first.
	FindAwaitingProvider(ctx context.Context, submittedBefore time.Time, limit int) ([]*domain.GenerationTask, error)

	// RunInTransaction executes fn with a store bound to a single transaction.
	// Locks taken through the bound store are released when fn returns. The
	// transaction commits if fn returns nil and rolls back otherwise.
	RunInTransaction(ctx context.Context, fn func(ctx context.Context, s GenerationTaskStore) error) error
}
