package txnlock

import (
	"sync"

	"coredb/pkg/logging"
)

// mode is a lock request's mode: shared or exclusive.
type mode int

const (
	shared mode = iota
	exclusive
)

// request is one transaction's pending or granted lock request.
type request struct {
	txnID   int64
	mode    mode
	wounded bool
}

// requestQueue is the FIFO wait queue and granted set for a single RID,
// created lazily on first use and kept for the process lifetime.
type requestQueue struct {
	mu   sync.Mutex
	cond *sync.Cond

	wait    []*request
	granted map[int64]*request

	sharedCount      int
	exclusiveGranted bool
	upgrading        int64 // 0 means no upgrade in flight
}

func newRequestQueue() *requestQueue {
	q := &requestQueue{granted: make(map[int64]*request)}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// compatibleHead reports whether the request at the head of the wait
// queue could be granted against the currently granted set.
func (q *requestQueue) compatibleHead() bool {
	if len(q.wait) == 0 {
		return false
	}
	head := q.wait[0]
	if len(q.granted) == 0 {
		return true
	}
	if head.mode == shared {
		return !q.exclusiveGranted
	}
	return q.sharedCount == 0 && !q.exclusiveGranted
}

func (q *requestQueue) removeFromWait(r *request) {
	for i, w := range q.wait {
		if w == r {
			q.wait = append(q.wait[:i], q.wait[i+1:]...)
			return
		}
	}
}

// woundYounger marks every request (granted or waiting) belonging to a
// transaction younger than callerID as wounded, aborts its owner, and
// repairs the granted counters so the caller's predicate can eventually
// be satisfied. Returns true if it wounded anyone.
func (q *requestQueue) woundYounger(callerID int64, rid RID, registry *Registry) bool {
	any := false
	wound := func(r *request) {
		if r.wounded || r.txnID <= callerID {
			return
		}
		r.wounded = true
		any = true
		if txn, ok := registry.Get(r.txnID); ok {
			txn.SetState(Aborted)
		}
		if _, isGranted := q.granted[r.txnID]; isGranted {
			// Leave the entry in q.granted: Unlock consults r.wounded to
			// decide whether the counters still need decrementing, so the
			// wounded holder's eventual Unlock is what removes it.
			if r.mode == shared {
				q.sharedCount--
			} else {
				q.exclusiveGranted = false
			}
		}
		logging.Debug("wound", "page_id", rid.Page, "txn_id", r.txnID, "wounded_by", callerID)
	}

	for _, r := range q.granted {
		wound(r)
	}
	for _, r := range q.wait {
		wound(r)
	}
	return any
}
