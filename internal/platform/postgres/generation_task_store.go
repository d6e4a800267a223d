package postgres

import (
	"context"
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/genflow/internal/domain"
	"github.com/phrazzld/genflow/internal/platform/logger"
	"github.com/phrazzld/genflow/internal/store"
)

const primaryKeyConstraint = "generation_tasks_pkey"

const taskColumns = `
	correlation_id, parent_correlation_id, user_id, kind, provider, provider_task_id,
	parameters, status, result, error_code, error_message, version,
	created_at, updated_at, submitted_at, completed_at`

// PostgresGenerationTaskStore implements the store.GenerationTaskStore interface
// using a PostgreSQL database as the storage backend.
type PostgresGenerationTaskStore struct {
	db     store.DBTX
	sqlDB  *sql.DB // nil when bound to a transaction
	inTx   bool
	logger *slog.Logger
}

// NewPostgresGenerationTaskStore creates a new PostgreSQL implementation of the
// GenerationTaskStore interface. If logger is nil, a default logger will be used.
func NewPostgresGenerationTaskStore(db *sql.DB, logger *slog.Logger) *PostgresGenerationTaskStore {
	if db == nil {
		panic("db cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresGenerationTaskStore{
		db:     db,
		sqlDB:  db,
		logger: logger.With(slog.String("component", "generation_task_store")),
	}
}

// WithTx returns a store that runs every query in tx.
func (s *PostgresGenerationTaskStore) WithTx(tx *sql.Tx) *PostgresGenerationTaskStore {
	return &PostgresGenerationTaskStore{
		db:     tx,
		inTx:   true,
		logger: s.logger,
	}
}

// Ensure PostgresGenerationTaskStore implements store.GenerationTaskStore interface
var _ store.GenerationTaskStore = (*PostgresGenerationTaskStore)(nil)

// advisoryKey maps a correlation ID onto the bigint space of pg advisory locks.
func advisoryKey(id uuid.UUID) int64 {
	return int64(binary.BigEndian.Uint64(id[:8]))
}

func nullableJSON(b []byte) any {
	if b == nil {
		return nil
	}
	return b
}

func nullableString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullableTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func nullableUUID(id *uuid.UUID) uuid.NullUUID {
	if id == nil {
		return uuid.NullUUID{}
	}
	return uuid.NullUUID{UUID: *id, Valid: true}
}

// Create implements store.GenerationTaskStore.Create
func (s *PostgresGenerationTaskStore) Create(ctx context.Context, task *domain.GenerationTask) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	if err := task.Validate(); err != nil {
		log.Warn("generation task validation failed during create",
			slog.String("error", err.Error()),
			slog.String("correlation_id", task.CorrelationID.String()))
		return fmt.Errorf("%w: %w", store.ErrInvalidEntity, err)
	}

	params, err := task.ParametersJSON()
	if err != nil {
		return fmt.Errorf("%w: parameters: %v", store.ErrInvalidEntity, err)
	}
	result, err := task.ResultJSON()
	if err != nil {
		return fmt.Errorf("%w: result: %v", store.ErrInvalidEntity, err)
	}

	query := `
		INSERT INTO generation_tasks (` + taskColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, 1, $12, $13, $14, $15)
	`
	_, err = s.db.ExecContext(ctx, query,
		task.CorrelationID,
		nullableUUID(task.ParentCorrelationID),
		task.UserID,
		string(task.Kind),
		task.Provider,
		nullableString(task.ProviderTaskID),
		params,
		string(task.Status),
		nullableJSON(result),
		nullableString(task.ErrorCode),
		nullableString(task.ErrorMessage),
		task.CreatedAt,
		task.UpdatedAt,
		nullableTime(task.SubmittedAt),
		nullableTime(task.CompletedAt),
	)
	if err != nil {
		if uniqueViolationOn(err, primaryKeyConstraint) {
			log.Warn("duplicate correlation ID",
				slog.String("correlation_id", task.CorrelationID.String()))
			return fmt.Errorf("%w: %s", store.ErrDuplicateCorrelationID, task.CorrelationID)
		}
		log.Error("failed to create generation task",
			slog.String("error", err.Error()),
			slog.String("correlation_id", task.CorrelationID.String()))
		return store.NewStoreError("generation_task", "create", "insert failed", MapError(err))
	}

	task.Version = 1
	log.Debug("generation task created",
		slog.String("correlation_id", task.CorrelationID.String()),
		slog.String("status", string(task.Status)))
	return nil
}

// GetByCorrelationID implements store.GenerationTaskStore.GetByCorrelationID
func (s *PostgresGenerationTaskStore) GetByCorrelationID(
	ctx context.Context,
	id uuid.UUID,
) (*domain.GenerationTask, error) {
	query := `SELECT ` + taskColumns + ` FROM generation_tasks WHERE correlation_id = $1`
	return s.getOne(ctx, "get", query, id)
}

// GetByCorrelationIDForUpdate implements store.GenerationTaskStore.GetByCorrelationIDForUpdate.
// Inside a transaction it first takes an advisory lock keyed on the
// correlation ID, so concurrent creators of the same ID serialize too.
func (s *PostgresGenerationTaskStore) GetByCorrelationIDForUpdate(
	ctx context.Context,
	id uuid.UUID,
) (*domain.GenerationTask, error) {
	if !s.inTx {
		return s.GetByCorrelationID(ctx, id)
	}

	if _, err := s.db.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, advisoryKey(id)); err != nil {
		logger.FromContextOrDefault(ctx, s.logger).Error("failed to acquire correlation lock",
			slog.String("error", err.Error()),
			slog.String("correlation_id", id.String()))
		return nil, store.NewStoreError("generation_task", "lock", "advisory lock failed", err)
	}

	query := `SELECT ` + taskColumns + ` FROM generation_tasks WHERE correlation_id = $1 FOR UPDATE`
	return s.getOne(ctx, "get_for_update", query, id)
}

// GetByProviderTaskID implements store.GenerationTaskStore.GetByProviderTaskID
func (s *PostgresGenerationTaskStore) GetByProviderTaskID(
	ctx context.Context,
	provider string,
	providerTaskID string,
) (*domain.GenerationTask, error) {
	if providerTaskID == "" {
		return nil, store.ErrGenerationTaskNotFound
	}
	query := `SELECT ` + taskColumns + ` FROM generation_tasks
		WHERE provider = $1 AND provider_task_id = $2`
	return s.getOne(ctx, "get_by_provider_task_id", query, provider, providerTaskID)
}

func (s *PostgresGenerationTaskStore) getOne(
	ctx context.Context,
	op string,
	query string,
	args ...any,
) (*domain.GenerationTask, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	task, err := scanTask(s.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			log.Debug("generation task not found", slog.String("operation", op), slog.Any("key", args))
			return nil, store.ErrGenerationTaskNotFound
		}
		log.Error("failed to load generation task",
			slog.String("operation", op),
			slog.String("error", err.Error()))
		return nil, store.NewStoreError("generation_task", op, "query failed", MapError(err))
	}
	return task, nil
}

// Update implements store.GenerationTaskStore.Update
func (s *PostgresGenerationTaskStore) Update(ctx context.Context, task *domain.GenerationTask) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	if err := task.Validate(); err != nil {
		log.Warn("generation task validation failed during update",
			slog.String("error", err.Error()),
			slog.String("correlation_id", task.CorrelationID.String()))
		return fmt.Errorf("%w: %w", store.ErrInvalidEntity, err)
	}

	result, err := task.ResultJSON()
	if err != nil {
		return fmt.Errorf("%w: result: %v", store.ErrInvalidEntity, err)
	}

	query := `
		UPDATE generation_tasks
		SET provider = $2,
			provider_task_id = $3,
			status = $4,
			result = $5,
			error_code = $6,
			error_message = $7,
			updated_at = $8,
			submitted_at = $9,
			completed_at = $10,
			version = version + 1
		WHERE correlation_id = $1 AND version = $11
	`
	res, err := s.db.ExecContext(ctx, query,
		task.CorrelationID,
		task.Provider,
		nullableString(task.ProviderTaskID),
		string(task.Status),
		nullableJSON(result),
		nullableString(task.ErrorCode),
		nullableString(task.ErrorMessage),
		task.UpdatedAt,
		nullableTime(task.SubmittedAt),
		nullableTime(task.CompletedAt),
		task.Version,
	)
	if err != nil {
		log.Error("failed to update generation task",
			slog.String("error", err.Error()),
			slog.String("correlation_id", task.CorrelationID.String()))
		return store.NewStoreError("generation_task", "update", "update failed", MapError(err))
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return store.NewStoreError("generation_task", "update", "rows affected unavailable", err)
	}
	if rows == 0 {
		var exists bool
		err := s.db.QueryRowContext(ctx,
			`SELECT EXISTS (SELECT 1 FROM generation_tasks WHERE correlation_id = $1)`,
			task.CorrelationID,
		).Scan(&exists)
		if err != nil {
			return store.NewStoreError("generation_task", "update", "existence check failed", MapError(err))
		}
		if !exists {
			return store.ErrGenerationTaskNotFound
		}
		log.Warn("stale generation task version",
			slog.String("correlation_id", task.CorrelationID.String()),
			slog.Int("version", task.Version))
		return fmt.Errorf("%w: generation task %s changed since version %d",
			store.ErrUpdateFailed, task.CorrelationID, task.Version)
	}

	task.Version++
	log.Debug("generation task updated",
		slog.String("correlation_id", task.CorrelationID.String()),
		slog.String("status", string(task.Status)),
		slog.Int("version", task.Version))
	return nil
}

// FindAwaitingProvider implements store.GenerationTaskStore.FindAwaitingProvider
func (s *PostgresGenerationTaskStore) FindAwaitingProvider(
	ctx context.Context,
	submittedBefore time.Time,
	limit int,
) ([]*domain.GenerationTask, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	query := `SELECT ` + taskColumns + ` FROM generation_tasks
		WHERE status IN ('submitted', 'extending') AND submitted_at < $1
		ORDER BY submitted_at ASC
		LIMIT $2`

	rows, err := s.db.QueryContext(ctx, query, submittedBefore, limit)
	if err != nil {
		log.Error("failed to query tasks awaiting provider", slog.String("error", err.Error()))
		return nil, store.NewStoreError("generation_task", "find_awaiting", "query failed", MapError(err))
	}
	defer func() { _ = rows.Close() }()

	var tasks []*domain.GenerationTask
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, store.NewStoreError("generation_task", "find_awaiting", "scan failed", err)
		}
		tasks = append(tasks, task)
	}
	if err := rows.Err(); err != nil {
		return nil, store.NewStoreError("generation_task", "find_awaiting", "iteration failed", err)
	}
	return tasks, nil
}

// RunInTransaction implements store.GenerationTaskStore.RunInTransaction.
// A store already bound to a transaction runs fn within it.
func (s *PostgresGenerationTaskStore) RunInTransaction(
	ctx context.Context,
	fn func(ctx context.Context, s store.GenerationTaskStore) error,
) error {
	if s.inTx {
		return fn(ctx, s)
	}
	return store.RunInTransaction(ctx, s.sqlDB, func(ctx context.Context, tx *sql.Tx) error {
		return fn(ctx, s.WithTx(tx))
	})
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(row rowScanner) (*domain.GenerationTask, error) {
	var (
		task           domain.GenerationTask
		parent         uuid.NullUUID
		kind, status   string
		providerTaskID sql.NullString
		params         []byte
		result         []byte
		errorCode      sql.NullString
		errorMessage   sql.NullString
		submittedAt    sql.NullTime
		completedAt    sql.NullTime
	)

	err := row.Scan(
		&task.CorrelationID,
		&parent,
		&task.UserID,
		&kind,
		&task.Provider,
		&providerTaskID,
		&params,
		&status,
		&result,
		&errorCode,
		&errorMessage,
		&task.Version,
		&task.CreatedAt,
		&task.UpdatedAt,
		&submittedAt,
		&completedAt,
	)
	if err != nil {
		return nil, err
	}

	task.Kind = domain.GenerationKind(kind)
	task.Status = domain.TaskStatus(status)
	task.ProviderTaskID = providerTaskID.String
	task.ErrorCode = errorCode.String
	task.ErrorMessage = errorMessage.String
	if parent.Valid {
		id := parent.UUID
		task.ParentCorrelationID = &id
	}
	if submittedAt.Valid {
		at := submittedAt.Time.UTC()
		task.SubmittedAt = &at
	}
	if completedAt.Valid {
		at := completedAt.Time.UTC()
		task.CompletedAt = &at
	}
	task.CreatedAt = task.CreatedAt.UTC()
	task.UpdatedAt = task.UpdatedAt.UTC()

	if err := json.Unmarshal(params, &task.Parameters); err != nil {
		return nil, fmt.Errorf("failed to decode parameters for %s: %w", task.CorrelationID, err)
	}
	if result != nil {
		var r domain.ResultPayload
		if err := json.Unmarshal(result, &r); err != nil {
			return nil, fmt.Errorf("failed to decode result for %s: %w", task.CorrelationID, err)
		}
		if r.ResultURLs == nil {
			r.ResultURLs = []string{}
		}
		task.Result = &r
	}
	return &task, nil
}
