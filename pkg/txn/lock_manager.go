package txn

import (
	"fmt"
	"sync"

	"github.com/mnohosten/laura-core/pkg/events"
	"github.com/mnohosten/laura-core/pkg/rid"
)

type lockMode int

const (
	sharedLock lockMode = iota
	exclusiveLock
)

// lockRequest is one entry in a per-RID lock list: either a granted holder
// or a waiter blocked on signal.
type lockRequest struct {
	txnID   TxnID
	mode    lockMode
	granted bool
	signal  chan bool // single-shot: true on grant, false on wait-die abort
}

// lockRequestQueue is the per-RID lock list. upgrading holds
// the txn id currently mid-upgrade on this RID, or 0 if none.
type lockRequestQueue struct {
	requests  []*lockRequest
	upgrading TxnID
}

// LockManager grants and releases tuple-level shared/exclusive locks using
// wait-die deadlock prevention: a request older than every conflicting
// holder waits, a younger one aborts. Grounded on
// pkg/database/doc_lock.go's per-key sync.RWMutex table for the "one entry
// per key, lazily created" shape, generalized from advisory mutex striping
// to an explicit wait/grant queue with conflict-aware admission.
type LockManager struct {
	mu        sync.Mutex
	strict2PL bool
	table     map[rid.RID]*lockRequestQueue
	events    *events.Bus
}

// NewLockManager constructs a Lock Manager. strict2PL controls whether
// Unlock is only legal once the caller's transaction has committed or
// aborted under strict two-phase locking. bus may be nil;
// when set, every grant and wait-die abort publishes an event for the admin
// server's /watch subscribers.
func NewLockManager(strict2PL bool, bus *events.Bus) *LockManager {
	return &LockManager{
		strict2PL: strict2PL,
		table:     make(map[rid.RID]*lockRequestQueue),
		events:    bus,
	}
}

func (lm *LockManager) publishGrant(t *Transaction, r rid.RID, mode lockMode) {
	modeName := "shared"
	if mode == exclusiveLock {
		modeName = "exclusive"
	}
	lm.events.Publish("lock_manager.grant", map[string]interface{}{
		"txn_id": uint64(t.id),
		"rid":    r.String(),
		"mode":   modeName,
	})
}

func (lm *LockManager) publishAbort(t *Transaction, r rid.RID) {
	lm.events.Publish("lock_manager.abort", map[string]interface{}{
		"txn_id": uint64(t.id),
		"rid":    r.String(),
	})
}

func (lm *LockManager) queueFor(r rid.RID) *lockRequestQueue {
	q, ok := lm.table[r]
	if !ok {
		q = &lockRequestQueue{}
		lm.table[r] = q
	}
	return q
}

// shouldWaitLocked applies wait-die: requester waits iff its id is smaller
// (older) than every other entry currently in the queue; otherwise it dies.
// Called with lm.mu held.
func (lm *LockManager) shouldWaitLocked(requester TxnID, q *lockRequestQueue) bool {
	for _, req := range q.requests {
		if requester >= req.txnID {
			return false
		}
	}
	return true
}

// LockShared acquires a shared lock on rid for txn, blocking if necessary.
// Returns false if the request was rejected by wait-die or the transaction
// was already aborted.
func (lm *LockManager) LockShared(t *Transaction, r rid.RID) (bool, error) {
	if t.GetState() == StateAborted {
		return false, nil
	}
	if t.GetState() == StateShrinking {
		return false, fmt.Errorf("%w: lock_shared called on a SHRINKING transaction", ErrContractViolation)
	}
	if t.holdsShared(r) || t.holdsExclusive(r) {
		return true, nil
	}

	lm.mu.Lock()
	q := lm.queueFor(r)

	conflictsWithExclusive := false
	for _, req := range q.requests {
		if req.mode == exclusiveLock {
			conflictsWithExclusive = true
			break
		}
	}
	if !conflictsWithExclusive {
		q.requests = append(q.requests, &lockRequest{txnID: t.id, mode: sharedLock, granted: true})
		lm.mu.Unlock()
		t.addSharedLock(r)
		lm.publishGrant(t, r, sharedLock)
		return true, nil
	}

	if !lm.shouldWaitLocked(t.id, q) {
		lm.mu.Unlock()
		t.SetState(StateAborted)
		lm.publishAbort(t, r)
		return false, nil
	}

	req := &lockRequest{txnID: t.id, mode: sharedLock, signal: make(chan bool, 1)}
	q.requests = append(q.requests, req)
	lm.mu.Unlock()

	if granted := <-req.signal; !granted || t.GetState() == StateAborted {
		t.SetState(StateAborted)
		lm.publishAbort(t, r)
		return false, nil
	}
	t.addSharedLock(r)
	lm.publishGrant(t, r, sharedLock)
	return true, nil
}

// LockExclusive acquires an exclusive lock on rid for txn, blocking if
// necessary. An exclusive requester never piggybacks on an existing holder:
// it is only granted immediately when the queue is empty.
func (lm *LockManager) LockExclusive(t *Transaction, r rid.RID) (bool, error) {
	if t.GetState() == StateAborted {
		return false, nil
	}
	if t.GetState() == StateShrinking {
		return false, fmt.Errorf("%w: lock_exclusive called on a SHRINKING transaction", ErrContractViolation)
	}
	if t.holdsExclusive(r) {
		return true, nil
	}

	lm.mu.Lock()
	q := lm.queueFor(r)

	if len(q.requests) == 0 {
		q.requests = append(q.requests, &lockRequest{txnID: t.id, mode: exclusiveLock, granted: true})
		lm.mu.Unlock()
		t.addExclusiveLock(r)
		lm.publishGrant(t, r, exclusiveLock)
		return true, nil
	}

	if !lm.shouldWaitLocked(t.id, q) {
		lm.mu.Unlock()
		t.SetState(StateAborted)
		lm.publishAbort(t, r)
		return false, nil
	}

	req := &lockRequest{txnID: t.id, mode: exclusiveLock, signal: make(chan bool, 1)}
	q.requests = append(q.requests, req)
	lm.mu.Unlock()

	if granted := <-req.signal; !granted || t.GetState() == StateAborted {
		t.SetState(StateAborted)
		lm.publishAbort(t, r)
		return false, nil
	}
	t.addExclusiveLock(r)
	lm.publishGrant(t, r, exclusiveLock)
	return true, nil
}

// LockUpgrade promotes txn's shared lock on rid to exclusive. txn must
// already hold the shared lock. If it is the sole shared holder the
// promotion happens in place; otherwise it enqueues as an exclusive waiter
// under wait-die.
func (lm *LockManager) LockUpgrade(t *Transaction, r rid.RID) (bool, error) {
	if !t.holdsShared(r) {
		return false, fmt.Errorf("%w: lock_upgrade called without holding a shared lock", ErrContractViolation)
	}
	if t.GetState() == StateShrinking {
		return false, fmt.Errorf("%w: lock_upgrade called on a SHRINKING transaction", ErrContractViolation)
	}

	lm.mu.Lock()
	q := lm.queueFor(r)

	soleHolder := true
	var ownShared *lockRequest
	for _, req := range q.requests {
		if req.txnID == t.id && req.mode == sharedLock && req.granted {
			ownShared = req
			continue
		}
		if req.granted {
			soleHolder = false
		}
	}

	if soleHolder && ownShared != nil {
		ownShared.mode = exclusiveLock
		lm.mu.Unlock()
		t.removeSharedLock(r)
		t.addExclusiveLock(r)
		lm.publishGrant(t, r, exclusiveLock)
		return true, nil
	}

	if q.upgrading != 0 && q.upgrading != t.id {
		// Another transaction is already mid-upgrade on this RID; bustub's
		// lock manager treats a second concurrent upgrader as a conflict.
		lm.mu.Unlock()
		t.SetState(StateAborted)
		lm.publishAbort(t, r)
		return false, nil
	}

	if !lm.shouldWaitOtherLocked(t.id, q) {
		lm.mu.Unlock()
		t.SetState(StateAborted)
		lm.publishAbort(t, r)
		return false, nil
	}

	q.upgrading = t.id
	req := &lockRequest{txnID: t.id, mode: exclusiveLock, signal: make(chan bool, 1)}
	q.requests = append(q.requests, req)
	lm.mu.Unlock()

	if granted := <-req.signal; !granted || t.GetState() == StateAborted {
		t.SetState(StateAborted)
		lm.publishAbort(t, r)
		return false, nil
	}
	t.removeSharedLock(r)
	t.addExclusiveLock(r)
	lm.publishGrant(t, r, exclusiveLock)
	return true, nil
}

// shouldWaitOtherLocked is shouldWaitLocked excluding the requester's own
// already-granted shared entry, used by LockUpgrade.
func (lm *LockManager) shouldWaitOtherLocked(requester TxnID, q *lockRequestQueue) bool {
	for _, req := range q.requests {
		if req.txnID == requester {
			continue
		}
		if requester >= req.txnID {
			return false
		}
	}
	return true
}

// Unlock releases txn's lock on rid. Under strict 2PL this is only legal
// once the transaction has committed or aborted; otherwise it transitions
// the transaction GROWING -> SHRINKING. Waiting requests are promoted per
// the wake-successors rule below.
func (lm *LockManager) Unlock(t *Transaction, r rid.RID) error {
	if lm.strict2PL {
		switch t.GetState() {
		case StateCommitted, StateAborted:
		default:
			return fmt.Errorf("%w: unlock called before commit/abort under strict 2PL", ErrContractViolation)
		}
	} else if t.GetState() == StateGrowing {
		t.SetState(StateShrinking)
	}

	lm.mu.Lock()
	defer lm.mu.Unlock()

	q, ok := lm.table[r]
	if !ok {
		return fmt.Errorf("%w: unlock called on an RID with no lock list", ErrContractViolation)
	}

	released := -1
	for i, req := range q.requests {
		if req.txnID == t.id && req.granted {
			released = i
			break
		}
	}
	if released == -1 {
		return fmt.Errorf("%w: unlock called on an RID this transaction does not hold", ErrContractViolation)
	}

	releasedMode := q.requests[released].mode
	q.requests = append(q.requests[:released], q.requests[released+1:]...)
	if releasedMode == sharedLock {
		t.removeSharedLock(r)
	} else {
		t.removeExclusiveLock(r)
	}

	lm.wakeSuccessorsLocked(q)

	if len(q.requests) == 0 {
		delete(lm.table, r)
	}
	return nil
}

// Stats reports lock table occupancy counters for the admin server.
func (lm *LockManager) Stats() map[string]interface{} {
	lm.mu.Lock()
	defer lm.mu.Unlock()

	granted, waiting := 0, 0
	for _, q := range lm.table {
		for _, req := range q.requests {
			if req.granted {
				granted++
			} else {
				waiting++
			}
		}
	}
	return map[string]interface{}{
		"locked_rids":   len(lm.table),
		"granted_locks": granted,
		"waiting_locks": waiting,
		"strict_two_pl": lm.strict2PL,
	}
}

// wakeSuccessorsLocked grants as many queued waiters as the now-current
// queue state allows: every contiguous leading shared waiter if the queue
// holds no exclusive grant, or a single leading exclusive waiter if the
// queue holds no granted entry at all. Called with lm.mu held.
func (lm *LockManager) wakeSuccessorsLocked(q *lockRequestQueue) {
	if q.upgrading != 0 {
		lm.wakeUpgradeLocked(q)
		return
	}

	hasGrantedExclusive := false
	hasGrantedAny := false
	for _, req := range q.requests {
		if req.granted {
			hasGrantedAny = true
			if req.mode == exclusiveLock {
				hasGrantedExclusive = true
			}
		}
	}
	if hasGrantedExclusive {
		return
	}

	for _, req := range q.requests {
		if req.granted {
			continue
		}
		if req.mode == sharedLock {
			req.granted = true
			req.signal <- true
			hasGrantedAny = true
			continue
		}
		// Exclusive waiter: only grantable while nothing else is granted.
		if hasGrantedAny {
			return
		}
		req.granted = true
		req.signal <- true
		return
	}
}

// wakeUpgradeLocked handles the pending-upgrade case: once every granted
// entry besides the upgrading transaction's own (soon to be collapsed)
// shared grant has drained, its pending exclusive waiter is promoted and
// the stale shared grant entry is removed — "a shared-then-exclusive pair
// belonging to the same txn collapses into an exclusive grant. Called
// with lm.mu held.
func (lm *LockManager) wakeUpgradeLocked(q *lockRequestQueue) {
	for _, req := range q.requests {
		if req.granted && req.txnID != q.upgrading {
			return
		}
	}

	oldSharedIdx, waiterIdx := -1, -1
	for i, req := range q.requests {
		if req.txnID != q.upgrading {
			continue
		}
		if req.granted && req.mode == sharedLock {
			oldSharedIdx = i
		} else if !req.granted && req.mode == exclusiveLock {
			waiterIdx = i
		}
	}
	if waiterIdx == -1 {
		return
	}

	q.requests[waiterIdx].granted = true
	q.requests[waiterIdx].signal <- true
	if oldSharedIdx != -1 {
		q.requests = append(q.requests[:oldSharedIdx], q.requests[oldSharedIdx+1:]...)
	}
	q.upgrading = 0
}
