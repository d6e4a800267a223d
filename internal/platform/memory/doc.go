// Package memory provides an in-process implementation of
// store.GenerationTaskStore, used by tests and local development.
//
// It honours the same contract as the Postgres store: per-correlation locks
// held until the enclosing transaction ends, optimistic versioning, and
// writes that become visible only when the transaction commits.
package memory
