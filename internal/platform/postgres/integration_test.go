package postgres

import (
	"context"
	"database/sql"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/genflow/internal/domain"
	"github.com/phrazzld/genflow/internal/store"
	"github.com/phrazzld/genflow/internal/testdb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// openTestDB connects to the test database and applies migrations, skipping
// the test when no database is configured.
func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db := testdb.Open(t)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	require.NoError(t, Migrate(ctx, db, "up", nil))
	return db
}

func TestIntegration_TaskLifecycle(t *testing.T) {
	db := openTestDB(t)
	s := NewPostgresGenerationTaskStore(db, nil)
	ctx := context.Background()

	task := newTask(t)
	require.NoError(t, s.Create(ctx, task))
	assert.ErrorIs(t, s.Create(ctx, task.Clone()), store.ErrDuplicateCorrelationID)

	err := s.RunInTransaction(ctx, func(ctx context.Context, tx store.GenerationTaskStore) error {
		locked, err := tx.GetByCorrelationIDForUpdate(ctx, task.CorrelationID)
		if err != nil {
			return err
		}
		if err := locked.MarkSubmitted("kie_veo", "int-"+uuid.NewString(), time.Now()); err != nil {
			return err
		}
		return tx.Update(ctx, locked)
	})
	require.NoError(t, err)

	got, err := s.GetByCorrelationID(ctx, task.CorrelationID)
	require.NoError(t, err)
	assert.Equal(t, domain.TaskStatusSubmitted, got.Status)
	assert.Equal(t, 2, got.Version)

	byProvider, err := s.GetByProviderTaskID(ctx, "kie_veo", got.ProviderTaskID)
	require.NoError(t, err)
	assert.Equal(t, task.CorrelationID, byProvider.CorrelationID)

	_, err = s.GetByProviderTaskID(ctx, "kie_image", got.ProviderTaskID)
	assert.ErrorIs(t, err, store.ErrGenerationTaskNotFound)

	stale := got.Clone()
	require.NoError(t, got.Complete(domain.ResultPayload{ResultURLs: []string{"https://cdn/a.mp4"}}, time.Now()))
	require.NoError(t, s.Update(ctx, got))
	require.NoError(t, stale.Fail("500", "late", time.Now()))
	assert.ErrorIs(t, s.Update(ctx, stale), store.ErrUpdateFailed)
}

func TestIntegration_ForUpdateSerializesCreators(t *testing.T) {
	db := openTestDB(t)
	s := NewPostgresGenerationTaskStore(db, nil)
	ctx := context.Background()
	id := uuid.New()

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		created int
	)
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := s.RunInTransaction(ctx, func(ctx context.Context, tx store.GenerationTaskStore) error {
				if _, err := tx.GetByCorrelationIDForUpdate(ctx, id); err == nil {
					return nil
				}
				task, err := domain.NewGenerationTask(id, uuid.New(), domain.KindImageGenerate,
					domain.GenerationParameters{Prompt: "a red fox"})
				if err != nil {
					return err
				}
				if err := tx.Create(ctx, task); err != nil {
					return err
				}
				mu.Lock()
				created++
				mu.Unlock()
				return nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, created)
}

func TestIntegration_FindAwaitingProviderInTx(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	submittedAt := time.Now().Add(-time.Hour)

	var id uuid.UUID
	testdb.WithTx(t, db, func(t *testing.T, tx *sql.Tx) {
		s := NewPostgresGenerationTaskStore(db, nil).WithTx(tx)

		task := newTask(t)
		id = task.CorrelationID
		require.NoError(t, s.Create(ctx, task))
		require.NoError(t, task.MarkSubmitted("kie_veo", "int-"+uuid.NewString(), submittedAt))
		require.NoError(t, s.Update(ctx, task))

		stale, err := s.FindAwaitingProvider(ctx, time.Now().Add(-time.Minute), 1000)
		require.NoError(t, err)
		found := false
		for _, st := range stale {
			found = found || st.CorrelationID == id
		}
		assert.True(t, found)
	})

	_, err := NewPostgresGenerationTaskStore(db, nil).GetByCorrelationID(ctx, id)
	assert.ErrorIs(t, err, store.ErrGenerationTaskNotFound)
}
