// Package store defines interfaces for data persistence operations.
// The generation task store is the only mutable shared resource of the
// orchestration subsystem; its implementations live under internal/platform.
package store
