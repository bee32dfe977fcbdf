package txnlock

import (
	"fmt"
	"sync"
)

// Manager is the row-granular lock table. The single mutex here guards
// only the map of per-RID queues; once a queue pointer is obtained, all
// further synchronization happens on that queue's own mutex.
type Manager struct {
	registry *Registry

	mu     sync.Mutex
	queues map[RID]*requestQueue
}

func NewManager(registry *Registry) *Manager {
	return &Manager{registry: registry, queues: make(map[RID]*requestQueue)}
}

func (m *Manager) queueFor(rid RID) *requestQueue {
	m.mu.Lock()
	defer m.mu.Unlock()
	q, ok := m.queues[rid]
	if !ok {
		q = newRequestQueue()
		m.queues[rid] = q
	}
	return q
}

// selfCheck applies the universal preconditions before any acquisition
// attempt. ok is false whenever the caller must not proceed; err is nil
// only when the transaction was already terminal (no new abort raised).
func selfCheck(txn *Transaction, rid RID, m mode) (ok bool, err error) {
	switch txn.State() {
	case Aborted:
		return false, nil
	case Shrinking:
		txn.SetState(Aborted)
		return false, abortError(LockOnShrinking, rid)
	}
	if m == shared && txn.IsolationLevel() == ReadUncommitted {
		txn.SetState(Aborted)
		return false, abortError(LockSharedOnReadUncommitted, rid)
	}
	return true, nil
}

// LockShared acquires a shared lock on rid for txn, blocking until
// granted, wounded, or rejected by SelfCheck.
func (m *Manager) LockShared(txn *Transaction, rid RID) error {
	if ok, err := selfCheck(txn, rid, shared); !ok {
		return err
	}
	if txn.HasShared(rid) || txn.HasExclusive(rid) {
		return nil
	}

	q := m.queueFor(rid)
	return m.acquire(txn, rid, q, shared)
}

// LockExclusive acquires an exclusive lock on rid for txn, blocking until
// granted, wounded, or rejected by SelfCheck.
func (m *Manager) LockExclusive(txn *Transaction, rid RID) error {
	if ok, err := selfCheck(txn, rid, exclusive); !ok {
		return err
	}
	if txn.HasExclusive(rid) {
		return nil
	}

	q := m.queueFor(rid)
	return m.acquire(txn, rid, q, exclusive)
}

// acquire enqueues req at the tail and waits until it is at the head of
// the wait queue and compatible with the granted set, wounding younger
// blockers along the way. Must not be called while already holding any
// lock of equal or greater strength on rid.
func (m *Manager) acquire(txn *Transaction, rid RID, q *requestQueue, mo mode) error {
	q.mu.Lock()

	r := &request{txnID: txn.ID(), mode: mo}
	q.wait = append(q.wait, r)

	for {
		if r.wounded {
			q.removeFromWait(r)
			q.cond.Broadcast()
			q.mu.Unlock()
			txn.SetState(Aborted)
			return abortError(Deadlock, rid)
		}
		if q.wait[0] == r && q.compatibleHead() {
			break
		}
		if q.woundYounger(txn.ID(), rid, m.registry) {
			q.cond.Broadcast()
			continue
		}
		q.cond.Wait()
	}

	q.removeFromWait(r)
	q.granted[r.txnID] = r
	if mo == shared {
		q.sharedCount++
	} else {
		q.exclusiveGranted = true
	}
	q.cond.Broadcast()
	q.mu.Unlock()

	if mo == shared {
		txn.addShared(rid)
	} else {
		txn.addExclusive(rid)
	}
	return nil
}

// LockUpgrade promotes the caller's held shared lock on rid to exclusive.
// The caller must already hold the shared lock.
func (m *Manager) LockUpgrade(txn *Transaction, rid RID) error {
	if !txn.HasShared(rid) {
		return fmt.Errorf("upgrade requires holding a shared lock on %s", rid)
	}
	if ok, err := selfCheck(txn, rid, exclusive); !ok {
		return err
	}

	q := m.queueFor(rid)
	q.mu.Lock()
	if q.upgrading != 0 && q.upgrading != txn.ID() {
		q.mu.Unlock()
		txn.SetState(Aborted)
		return abortError(UpgradeConflict, rid)
	}

	if held, ok := q.granted[txn.ID()]; ok {
		delete(q.granted, txn.ID())
		if !held.wounded {
			q.sharedCount--
		}
	}
	q.upgrading = txn.ID()
	txn.removeShared(rid)

	r := &request{txnID: txn.ID(), mode: exclusive}
	q.wait = append(q.wait, r)

	for {
		if r.wounded {
			q.removeFromWait(r)
			q.upgrading = 0
			q.cond.Broadcast()
			q.mu.Unlock()
			txn.SetState(Aborted)
			return abortError(Deadlock, rid)
		}
		if q.wait[0] == r && q.compatibleHead() {
			break
		}
		if q.woundYounger(txn.ID(), rid, m.registry) {
			q.cond.Broadcast()
			continue
		}
		q.cond.Wait()
	}

	q.removeFromWait(r)
	q.granted[r.txnID] = r
	q.exclusiveGranted = true
	q.upgrading = 0
	q.cond.Broadcast()
	q.mu.Unlock()

	txn.addExclusive(rid)
	return nil
}

// Unlock releases txn's lock on rid, grants any now-satisfiable waiters,
// and applies the 2PL GROWING -> SHRINKING transition.
func (m *Manager) Unlock(txn *Transaction, rid RID) error {
	q := m.queueFor(rid)

	q.mu.Lock()
	r, ok := q.granted[txn.ID()]
	if !ok {
		q.mu.Unlock()
		return fmt.Errorf("transaction %d does not hold a lock on %s", txn.ID(), rid)
	}
	delete(q.granted, txn.ID())
	if !r.wounded {
		if r.mode == shared {
			q.sharedCount--
		} else {
			q.exclusiveGranted = false
		}
	}
	q.cond.Broadcast()
	q.mu.Unlock()

	if r.mode == shared {
		txn.removeShared(rid)
	} else {
		txn.removeExclusive(rid)
	}

	if txn.State() == Growing {
		if !(txn.IsolationLevel() == ReadCommitted && r.mode == shared) {
			txn.SetState(Shrinking)
		}
	}
	return nil
}
