package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/genflow/internal/domain"
	"github.com/phrazzld/genflow/internal/store"
)

// GenerationTaskStore implements store.GenerationTaskStore in memory.
type GenerationTaskStore struct {
	data  *taskData
	locks *lockTable
	tx    *transaction // nil outside a transaction
}

type taskData struct {
	mu    sync.RWMutex
	tasks map[uuid.UUID]*domain.GenerationTask
}

// transaction buffers writes until commit and tracks the locks it holds.
type transaction struct {
	held   map[uuid.UUID]bool
	writes map[uuid.UUID]*domain.GenerationTask
	order  []uuid.UUID
}

// Ensure GenerationTaskStore implements store.GenerationTaskStore.
var _ store.GenerationTaskStore = (*GenerationTaskStore)(nil)

// NewGenerationTaskStore creates an empty store.
func NewGenerationTaskStore() *GenerationTaskStore {
	return &GenerationTaskStore{
		data:  &taskData{tasks: make(map[uuid.UUID]*domain.GenerationTask)},
		locks: newLockTable(),
	}
}

// lookup returns the task visible to this store, without copying.
func (s *GenerationTaskStore) lookup(id uuid.UUID) (*domain.GenerationTask, bool) {
	if s.tx != nil {
		if t, ok := s.tx.writes[id]; ok {
			return t, true
		}
	}
	s.data.mu.RLock()
	defer s.data.mu.RUnlock()
	t, ok := s.data.tasks[id]
	return t, ok
}

// write records task, buffering it when inside a transaction.
func (s *GenerationTaskStore) write(task *domain.GenerationTask) {
	if s.tx != nil {
		if _, ok := s.tx.writes[task.CorrelationID]; !ok {
			s.tx.order = append(s.tx.order, task.CorrelationID)
		}
		s.tx.writes[task.CorrelationID] = task
		return
	}
	s.data.mu.Lock()
	defer s.data.mu.Unlock()
	s.data.tasks[task.CorrelationID] = task
}

// Create implements store.GenerationTaskStore.
func (s *GenerationTaskStore) Create(ctx context.Context, task *domain.GenerationTask) error {
	if err := task.Validate(); err != nil {
		return fmt.Errorf("%w: %w", store.ErrInvalidEntity, err)
	}
	if _, exists := s.lookup(task.CorrelationID); exists {
		return store.ErrDuplicateCorrelationID
	}
	if s.tx == nil {
		// Check and insert atomically outside a transaction.
		s.data.mu.Lock()
		defer s.data.mu.Unlock()
		if _, exists := s.data.tasks[task.CorrelationID]; exists {
			return store.ErrDuplicateCorrelationID
		}
		task.Version = 1
		s.data.tasks[task.CorrelationID] = task.Clone()
		return nil
	}
	task.Version = 1
	s.write(task.Clone())
	return nil
}

// GetByCorrelationID implements store.GenerationTaskStore.
func (s *GenerationTaskStore) GetByCorrelationID(ctx context.Context, id uuid.UUID) (*domain.GenerationTask, error) {
	t, ok := s.lookup(id)
	if !ok {
		return nil, store.ErrGenerationTaskNotFound
	}
	return t.Clone(), nil
}

// GetByCorrelationIDForUpdate implements store.GenerationTaskStore. Outside
// a transaction it behaves like GetByCorrelationID.
func (s *GenerationTaskStore) GetByCorrelationIDForUpdate(
	ctx context.Context,
	id uuid.UUID,
) (*domain.GenerationTask, error) {
	if s.tx != nil && !s.tx.held[id] {
		if err := s.locks.acquire(ctx, id); err != nil {
			return nil, fmt.Errorf("failed to lock generation task %s: %w", id, err)
		}
		s.tx.held[id] = true
	}
	return s.GetByCorrelationID(ctx, id)
}

// GetByProviderTaskID implements store.GenerationTaskStore.
func (s *GenerationTaskStore) GetByProviderTaskID(
	ctx context.Context,
	provider string,
	providerTaskID string,
) (*domain.GenerationTask, error) {
	if providerTaskID == "" {
		return nil, store.ErrGenerationTaskNotFound
	}
	if s.tx != nil {
		for _, t := range s.tx.writes {
			if t.Provider == provider && t.ProviderTaskID == providerTaskID {
				return t.Clone(), nil
			}
		}
	}
	s.data.mu.RLock()
	defer s.data.mu.RUnlock()
	for _, t := range s.data.tasks {
		if t.Provider == provider && t.ProviderTaskID == providerTaskID {
			return t.Clone(), nil
		}
	}
	return nil, store.ErrGenerationTaskNotFound
}

// Update implements store.GenerationTaskStore.
func (s *GenerationTaskStore) Update(ctx context.Context, task *domain.GenerationTask) error {
	if err := task.Validate(); err != nil {
		return fmt.Errorf("%w: %w", store.ErrInvalidEntity, err)
	}
	if s.tx == nil {
		s.data.mu.Lock()
		defer s.data.mu.Unlock()
		return applyUpdate(s.data.tasks, task)
	}
	current, ok := s.lookup(task.CorrelationID)
	if !ok {
		return store.ErrGenerationTaskNotFound
	}
	if current.Version != task.Version {
		return fmt.Errorf("%w: generation task %s version %d, stored %d",
			store.ErrUpdateFailed, task.CorrelationID, task.Version, current.Version)
	}
	task.Version++
	s.write(task.Clone())
	return nil
}

func applyUpdate(tasks map[uuid.UUID]*domain.GenerationTask, task *domain.GenerationTask) error {
	current, ok := tasks[task.CorrelationID]
	if !ok {
		return store.ErrGenerationTaskNotFound
	}
	if current.Version != task.Version {
		return fmt.Errorf("%w: generation task %s version %d, stored %d",
			store.ErrUpdateFailed, task.CorrelationID, task.Version, current.Version)
	}
	task.Version++
	tasks[task.CorrelationID] = task.Clone()
	return nil
}

// FindAwaitingProvider implements store.GenerationTaskStore.
func (s *GenerationTaskStore) FindAwaitingProvider(
	ctx context.Context,
	submittedBefore time.Time,
	limit int,
) ([]*domain.GenerationTask, error) {
	s.data.mu.RLock()
	var found []*domain.GenerationTask
	for _, t := range s.data.tasks {
		if !t.Status.IsAwaitingProvider() || t.SubmittedAt == nil {
			continue
		}
		if t.SubmittedAt.Before(submittedBefore) {
			found = append(found, t.Clone())
		}
	}
	s.data.mu.RUnlock()

	sort.Slice(found, func(i, j int) bool {
		return found[i].SubmittedAt.Before(*found[j].SubmittedAt)
	})
	if limit > 0 && len(found) > limit {
		found = found[:limit]
	}
	return found, nil
}

// RunInTransaction implements store.GenerationTaskStore. Calls on a store
// already bound to a transaction join it.
func (s *GenerationTaskStore) RunInTransaction(
	ctx context.Context,
	fn func(ctx context.Context, s store.GenerationTaskStore) error,
) (err error) {
	if s.tx != nil {
		return fn(ctx, s)
	}

	tx := &transaction{
		held:   make(map[uuid.UUID]bool),
		writes: make(map[uuid.UUID]*domain.GenerationTask),
	}
	bound := &GenerationTaskStore{data: s.data, locks: s.locks, tx: tx}

	defer func() {
		for id := range tx.held {
			s.locks.release(id)
		}
	}()

	if err := fn(ctx, bound); err != nil {
		return err
	}
	return s.commit(tx)
}

// commit applies buffered writes. A write whose version was overtaken by a
// concurrent writer without the lock aborts the whole transaction.
func (s *GenerationTaskStore) commit(tx *transaction) error {
	s.data.mu.Lock()
	defer s.data.mu.Unlock()

	for _, id := range tx.order {
		t := tx.writes[id]
		if current, ok := s.data.tasks[id]; ok && current.Version >= t.Version {
			return fmt.Errorf("%w: generation task %s changed during transaction",
				store.ErrUpdateFailed, id)
		}
	}
	for _, id := range tx.order {
		s.data.tasks[id] = tx.writes[id]
	}
	return nil
}

// Len returns the number of committed tasks.
func (s *GenerationTaskStore) Len() int {
	s.data.mu.RLock()
	defer s.data.mu.RUnlock()
	return len(s.data.tasks)
}
