package postgres

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/phrazzld/genflow/internal/store"
)

// PostgreSQL SQLSTATE codes the store distinguishes.
const (
	uniqueViolationCode     = "23505"
	foreignKeyViolationCode = "23503"
	checkViolationCode      = "23514"
	notNullViolationCode    = "23502"
	lockNotAvailableCode    = "55P03"
	deadlockDetectedCode    = "40P01"
)

// pgErrorClass says which store sentinel a SQLSTATE maps to and how the
// violation is described.
type pgErrorClass struct {
	sentinel error
	label    string
	detail   func(*pgconn.PgError) string
}

func constraintName(e *pgconn.PgError) string { return e.ConstraintName }
func columnName(e *pgconn.PgError) string     { return e.ColumnName }

var pgErrorClasses = map[string]pgErrorClass{
	uniqueViolationCode:     {store.ErrDuplicate, "unique violation", constraintName},
	foreignKeyViolationCode: {store.ErrInvalidEntity, "foreign key violation", constraintName},
	checkViolationCode:      {store.ErrInvalidEntity, "check constraint violation", constraintName},
	notNullViolationCode:    {store.ErrInvalidEntity, "not null violation", columnName},
	lockNotAvailableCode:    {store.ErrTransactionFailed, "lock not available", constraintName},
	deadlockDetectedCode:    {store.ErrTransactionFailed, "deadlock detected", constraintName},
}

// MapError translates a database error into the store's sentinel errors,
// keeping the original error in the chain. Unrecognized errors pass through
// unchanged.
func MapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: %w", store.ErrNotFound, err)
	}

	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}
	class, ok := pgErrorClasses[pgErr.Code]
	if !ok {
		return err
	}
	if d := class.detail(pgErr); d != "" {
		return fmt.Errorf("%w: %s (%s): %w", class.sentinel, class.label, d, err)
	}
	return fmt.Errorf("%w: %s: %w", class.sentinel, class.label, err)
}

// uniqueViolationOn reports whether err is a unique violation of the named constraint.
func uniqueViolationOn(err error, constraint string) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolationCode && pgErr.ConstraintName == constraint
}
