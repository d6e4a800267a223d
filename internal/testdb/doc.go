// Package testdb provides helpers for tests that run against a real
// PostgreSQL database.
//
// Tests are skipped unless a database URL is configured, so the default
// `go test ./...` run needs no external services. When a database is
// available, WithTx runs each test inside a transaction that is rolled back
// afterwards, so tests can share the schema without cleaning up:
//
//	func TestStore(t *testing.T) {
//	    db := testdb.Open(t)
//	    testdb.WithTx(t, db, func(t *testing.T, tx *sql.Tx) {
//	        s := postgres.NewPostgresGenerationTaskStore(db, nil).WithTx(tx)
//	        ...
//	    })
//	}
//
// # Environment Variables
//
//   - DATABASE_URL: primary connection string
//   - GENFLOW_TEST_DB_URL: used when DATABASE_URL is unset
//   - GENFLOW_DATABASE_URL: the application's own setting, used last
package testdb
