// Package postgres provides the PostgreSQL implementation of the
// store.GenerationTaskStore interface, the embedded schema migrations, and
// the mapping of driver errors onto store errors.
//
// Queries go through database/sql with the pgx stdlib driver. Per-correlation
// locking combines a transaction-scoped advisory lock, which also covers rows
// that do not exist yet, with SELECT ... FOR UPDATE on existing rows.
package postgres
