package schema

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned by store lookups and mutations when the target
// record does not exist. It is a signal, not a failure: callers decide
// whether a missing record is an error in their context.
var ErrNotFound = errors.New("record not found")

// ErrSyncInProgress is reported when a sync run is requested while another
// run holds the orchestrator mutex. It is non-fatal; the caller's data is
// untouched.
var ErrSyncInProgress = errors.New("sync already in progress")

// AuthError indicates the engine has no usable credential for the remote
// service: the token provider returned nothing, or the remote rejected the
// token and a single refresh attempt also failed.
type AuthError struct {
	Reason string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("authentication failed: %s", e.Reason)
}

// NetworkError indicates connectivity or timeout trouble reaching the
// remote service. Sync runs report it and leave local data intact.
type NetworkError struct {
	Op  string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("network error during %s: %v", e.Op, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// ValidationError indicates a disallowed operation or malformed input,
// such as deleting a protected table or an inverted time range.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Reason
	}
	return fmt.Sprintf("%s %s", e.Field, e.Reason)
}

// ConflictError indicates the conflict resolver could not determine a
// winner. The last-write-wins ordering is total, so this is currently
// unreachable, but the resolver interface allows signaling it.
type ConflictError struct {
	Table string
	ID    string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("unresolvable conflict for %s/%s", e.Table, e.ID)
}

// MaxRetriesError is reported when a sync queue item has failed too many
// times and has been dropped instead of retried indefinitely.
type MaxRetriesError struct {
	ItemID   string
	Table    string
	Attempts int
	LastErr  string
}

func (e *MaxRetriesError) Error() string {
	return fmt.Sprintf("queue item %s (%s) dropped after %d failed attempts: %s",
		e.ItemID, e.Table, e.Attempts, e.LastErr)
}

// QuotaError indicates a bounded structure reached its configured cap.
// Caches handle it by silent eviction; it surfaces only where eviction is
// not an option.
type QuotaError struct {
	Resource string
	Limit    int
}

func (e *QuotaError) Error() string {
	return fmt.Sprintf("%s quota exceeded (limit %d)", e.Resource, e.Limit)
}
