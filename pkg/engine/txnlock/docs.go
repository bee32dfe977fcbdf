package txnlock

// Lock compatibility for a queue's head request:
//
//	granted set empty                         -> always grantable
//	head wants SHARED, no exclusive granted    -> grantable
//	head wants EXCLUSIVE, no shared and no
//	exclusive granted                          -> grantable
//
// "Granted" here means counted by sharedCount/exclusiveGranted: a wounded
// holder stays in the granted set until its own Unlock, but no longer
// counts.
//
// A request that cannot be granted parks on the queue's condition
// variable. Before parking, it scans the queue for any request owned by
// a younger transaction (wound-wait: the older transaction never waits
// for the younger one) and wounds every one it finds, aborting their
// owners and repairing the granted counters so the head's predicate can
// eventually hold. A wounded request wakes, finds itself marked, removes
// itself from the queue, and returns a DEADLOCK abort to its caller.
//
// The table itself (Manager.queues) is locked only long enough to find
// or create the per-RID queue; all blocking happens on that queue's own
// mutex and condition variable, never on the table lock.
