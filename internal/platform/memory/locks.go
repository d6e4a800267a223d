package memory

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// lockTable hands out one exclusive lock per correlation ID. Entries are
// reference counted and dropped when no goroutine holds or waits for them.
type lockTable struct {
	mu      sync.Mutex
	entries map[uuid.UUID]*lockEntry
}

type lockEntry struct {
	ch   chan struct{}
	refs int
}

func newLockTable() *lockTable {
	return &lockTable{entries: make(map[uuid.UUID]*lockEntry)}
}

// acquire blocks until the lock for id is held or ctx is done.
func (t *lockTable) acquire(ctx context.Context, id uuid.UUID) error {
	t.mu.Lock()
	e, ok := t.entries[id]
	if !ok {
		e = &lockEntry{ch: make(chan struct{}, 1)}
		t.entries[id] = e
	}
	e.refs++
	t.mu.Unlock()

	select {
	case e.ch <- struct{}{}:
		return nil
	case <-ctx.Done():
		t.unref(id, e)
		return ctx.Err()
	}
}

// release frees the lock for id.
func (t *lockTable) release(id uuid.UUID) {
	t.mu.Lock()
	e, ok := t.entries[id]
	t.mu.Unlock()
	if !ok {
		return
	}
	<-e.ch
	t.unref(id, e)
}

func (t *lockTable) unref(id uuid.UUID, e *lockEntry) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e.refs--
	if e.refs == 0 {
		delete(t.entries, id)
	}
}

// size returns the number of live entries.
func (t *lockTable) size() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}
