package txnlock

import (
	dberror "coredb/pkg/error"
)

// Reason enumerates the structured abort causes the lock manager raises
// against the caller's transaction.
type Reason string

const (
	LockOnShrinking             Reason = "LOCK_ON_SHRINKING"
	LockSharedOnReadUncommitted Reason = "LOCKSHARED_ON_READ_UNCOMMITTED"
	UpgradeConflict             Reason = "UPGRADE_CONFLICT"
	Deadlock                    Reason = "DEADLOCK"
)

func abortError(reason Reason, rid RID) *dberror.DBError {
	err := dberror.New(dberror.ErrCategoryConcurrency, string(reason), abortMessage(reason))
	err.Detail = rid.String()
	err.Component = "LockManager"
	return err
}

func abortMessage(reason Reason) string {
	switch reason {
	case LockOnShrinking:
		return "lock requested after transaction entered the shrinking phase"
	case LockSharedOnReadUncommitted:
		return "shared lock requested under READ_UNCOMMITTED isolation"
	case UpgradeConflict:
		return "another transaction is already upgrading this lock"
	case Deadlock:
		return "transaction wounded by an older waiter"
	default:
		return "lock manager abort"
	}
}
