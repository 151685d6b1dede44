package index

import (
	"sync"

	"github.com/mnohosten/laura-core/pkg/storage"
)

// latchTable hands out one RWMutex per tree page id, used to implement
// latch crabbing: a page's pin keeps it resident in the
// buffer pool, while its latch controls concurrent access to its decoded
// contents. The two are deliberately independent, mirroring how a real
// system layers page-level concurrency control over a buffer manager.
type latchTable struct {
	mu      sync.Mutex
	latches map[storage.PageID]*sync.RWMutex
}

func newLatchTable() *latchTable {
	return &latchTable{latches: make(map[storage.PageID]*sync.RWMutex)}
}

func (t *latchTable) get(id storage.PageID) *sync.RWMutex {
	t.mu.Lock()
	defer t.mu.Unlock()
	l, ok := t.latches[id]
	if !ok {
		l = &sync.RWMutex{}
		t.latches[id] = l
	}
	return l
}

// forget drops the latch for a page that has been deleted (merged away),
// so the table does not grow without bound over the life of the tree.
func (t *latchTable) forget(id storage.PageID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.latches, id)
}
