package testdb

import (
	"context"
	"database/sql"
	"fmt"
	"testing"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // pgx driver
	"github.com/phrazzld/genflow/internal/redact"
)

// TestTimeout bounds connection checks made by the helpers.
const TestTimeout = 5 * time.Second

// Open connects to the configured test database and closes it when the test
// ends. The test is skipped when no database is configured; in CI a missing
// database is a failure instead, so integration jobs cannot pass vacuously.
func Open(t *testing.T) *sql.DB {
	t.Helper()

	dbURL := GetTestDatabaseURL()
	if dbURL == "" {
		if isCIEnvironment() && requireDatabaseInCI() {
			t.Fatal("database required in CI but no database URL is set")
		}
		t.Skip("DATABASE_URL not set - skipping integration test")
	}

	db, err := sql.Open("pgx", dbURL)
	if err != nil {
		t.Fatalf("failed to open test database: %v", connectionError(err, dbURL))
	}
	t.Cleanup(func() {
		if err := db.Close(); err != nil {
			t.Logf("warning: failed to close test database: %v", err)
		}
	})

	ctx, cancel := context.WithTimeout(context.Background(), TestTimeout)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		t.Fatalf("failed to ping test database: %v", connectionError(err, dbURL))
	}
	return db
}

// connectionError describes a connection failure without exposing credentials.
func connectionError(err error, dbURL string) error {
	return fmt.Errorf("%s (url: %s)", redact.Error(err), redact.String(dbURL))
}
