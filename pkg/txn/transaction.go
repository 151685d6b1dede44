// Package txn implements the concurrency-control collaborator for the core:
// transactions carry lock sets and latch/pin scratch space, and the Lock
// Manager enforces tuple-level shared/exclusive locking with wait-die
// deadlock prevention.
package txn

import (
	"sync"
	"sync/atomic"

	"github.com/mnohosten/laura-core/pkg/rid"
	"github.com/mnohosten/laura-core/pkg/storage"
)

// TxnID is a unique, monotonically increasing transaction identifier.
// Wait-die compares two txns' ids directly: a lower id is "older".
type TxnID uint64

// State is a transaction's position in the two-phase-locking state machine:
// GROWING -> SHRINKING -> (COMMITTED|ABORTED), or GROWING -> ABORTED.
type State int

const (
	StateGrowing State = iota
	StateShrinking
	StateCommitted
	StateAborted
)

func (s State) String() string {
	switch s {
	case StateGrowing:
		return "GROWING"
	case StateShrinking:
		return "SHRINKING"
	case StateCommitted:
		return "COMMITTED"
	case StateAborted:
		return "ABORTED"
	default:
		return "UNKNOWN"
	}
}

var nextTxnID uint64

// Transaction is the Lock Manager's collaborator: it owns the locks a
// caller currently holds, plus page-set and deleted-page-set scratch space
// that callers fill and drain themselves.
type Transaction struct {
	mu sync.Mutex

	id    TxnID
	state State

	sharedLockSet    map[rid.RID]struct{}
	exclusiveLockSet map[rid.RID]struct{}

	// pageSet and deletedPageSet are scratch sets of page ids: pages an
	// operation has latched/pinned, and pages it has marked for deletion.
	// pkg/index's BPlusTree takes no Transaction and never fills them; it
	// tracks its own write path and deletes merged pages directly.
	pageSet       map[storage.PageID]struct{}
	deletedPageSet map[storage.PageID]struct{}
}

// New allocates a fresh transaction in the GROWING state with the next
// monotonic id.
func New() *Transaction {
	return &Transaction{
		id:               TxnID(atomic.AddUint64(&nextTxnID, 1)),
		state:            StateGrowing,
		sharedLockSet:    make(map[rid.RID]struct{}),
		exclusiveLockSet: make(map[rid.RID]struct{}),
		pageSet:          make(map[storage.PageID]struct{}),
		deletedPageSet:   make(map[storage.PageID]struct{}),
	}
}

func (t *Transaction) ID() TxnID { return t.id }

func (t *Transaction) GetState() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

func (t *Transaction) SetState(s State) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.state = s
}

// GetSharedLockSet returns the set of RIDs this transaction currently holds
// a shared lock on.
func (t *Transaction) GetSharedLockSet() map[rid.RID]struct{} {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make(map[rid.RID]struct{}, len(t.sharedLockSet))
	for r := range t.sharedLockSet {
		out[r] = struct{}{}
	}
	return out
}

// GetExclusiveLockSet returns the set of RIDs this transaction currently
// holds an exclusive lock on.
func (t *Transaction) GetExclusiveLockSet() map[rid.RID]struct{} {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make(map[rid.RID]struct{}, len(t.exclusiveLockSet))
	for r := range t.exclusiveLockSet {
		out[r] = struct{}{}
	}
	return out
}

func (t *Transaction) addSharedLock(r rid.RID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.sharedLockSet[r] = struct{}{}
}

func (t *Transaction) addExclusiveLock(r rid.RID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.exclusiveLockSet[r] = struct{}{}
}

func (t *Transaction) removeSharedLock(r rid.RID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.sharedLockSet, r)
}

func (t *Transaction) removeExclusiveLock(r rid.RID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.exclusiveLockSet, r)
}

func (t *Transaction) holdsShared(r rid.RID) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.sharedLockSet[r]
	return ok
}

func (t *Transaction) holdsExclusive(r rid.RID) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.exclusiveLockSet[r]
	return ok
}

// AddIntoPageSet records a page this transaction has pinned/latched during
// the current tree operation.
func (t *Transaction) AddIntoPageSet(id storage.PageID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.pageSet[id] = struct{}{}
}

// GetPageSet returns and clears the set of pages accumulated during the
// current tree operation.
func (t *Transaction) GetPageSet() []storage.PageID {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]storage.PageID, 0, len(t.pageSet))
	for id := range t.pageSet {
		out = append(out, id)
	}
	t.pageSet = make(map[storage.PageID]struct{})
	return out
}

// AddIntoDeletedPageSet records a page the current operation has decided to
// free (a leaf or internal node coalesced away).
func (t *Transaction) AddIntoDeletedPageSet(id storage.PageID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.deletedPageSet[id] = struct{}{}
}

// GetDeletedPageSet returns and clears the set of pages the current
// operation has marked for deletion.
func (t *Transaction) GetDeletedPageSet() []storage.PageID {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]storage.PageID, 0, len(t.deletedPageSet))
	for id := range t.deletedPageSet {
		out = append(out, id)
	}
	t.deletedPageSet = make(map[storage.PageID]struct{})
	return out
}
