package resource

import "context"

// Store is the durable keyed mapping from (bldg_id, resource_id) to a Record.
// Every LeaseEngine write goes through UpdateLease; there is no other mutation
// path. Implementations must make Get/ListAll/UpdateLease/SweepExpired
// linearizable with respect to one another — concurrent callers observe a
// total order over any one key.
type Store interface {
	// Get returns the current record for key, or ErrNotFound.
	Get(ctx context.Context, key Key) (Record, error)

	// ListAll returns every record, for debug enumeration (/api/all_data).
	ListAll(ctx context.Context) ([]Record, error)

	// UpdateLease atomically applies assignments to key's row iff the row's
	// current lease fields satisfy preconditions. Returns ErrNotFound if the
	// key doesn't exist, ErrPreconditionFailed if preconditions didn't hold,
	// or an opaque error for any other backend fault.
	UpdateLease(ctx context.Context, key Key, pre Preconditions, asn Assignments) error

	// SweepExpired atomically clears every row whose lease has passed its
	// absolute ceiling (locked_time + max_timeout < nowMs) and returns the
	// prior state of each cleared row.
	SweepExpired(ctx context.Context, nowMs int64) ([]Record, error)

	// Seed idempotently inserts a Definition's initial (unleased) row if no
	// row for its key exists yet. Used by the Bootstrapper; existing rows
	// (and any in-flight lease they hold) are left untouched.
	Seed(ctx context.Context, def Definition) error

	// Close releases any resources held by the backend.
	Close() error
}

// preconditionsMatch reports whether a row currently satisfies pre. Shared by
// every backend's UpdateLease so the CAS semantics can't drift between them.
func preconditionsMatch(r Record, pre Preconditions) bool {
	if pre.RequireUnleased {
		return r.LockedBy == ""
	}
	return r.LockedBy == pre.RequireLockedBy
}
