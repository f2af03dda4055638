// Package conflict decides between local and remote versions of a record
// during sync.
//
// The policy is deterministic last-write-wins with a tie-break field merge:
// the strictly newer side wins wholesale; on equal timestamps the remote
// record is taken as the base and a small set of locally-authoritative
// fields is overlaid. It is not a CRDT — concurrent non-conflicting edits
// on both sides are not preserved beyond the named fields.
package conflict

import (
	"encoding/json"
	"fmt"

	"github.com/jayminstro/gaplyv2-sub004/internal/schema"
)

// Outcome says how a resolution was reached.
type Outcome string

const (
	// OutcomeAdoptedRemote: no local counterpart existed.
	OutcomeAdoptedRemote Outcome = "adopted_remote"
	// OutcomeKeptLocal: no remote counterpart existed.
	OutcomeKeptLocal Outcome = "kept_local"
	// OutcomeLocalWins: local was strictly newer.
	OutcomeLocalWins Outcome = "local_wins"
	// OutcomeRemoteWins: remote was strictly newer.
	OutcomeRemoteWins Outcome = "remote_wins"
	// OutcomeMerged: equal timestamps, field-level merge applied.
	OutcomeMerged Outcome = "merged"
)

// Resolver implements the merge policy. The interface admits an
// unresolvable outcome (ConflictError) even though the last-write-wins
// ordering is total and never produces one.
type Resolver interface {
	Resolve(local, remote schema.Record) (schema.Record, Outcome, error)
}

// LastWriteWins is the default Resolver.
type LastWriteWins struct{}

// New returns the engine's default resolver.
func New() *LastWriteWins {
	return &LastWriteWins{}
}

// Resolve picks or merges the two sides. Either side may be nil, but not
// both. The returned record is always safe to write back: its envelope is
// marked synced except in the kept-local and local-wins cases, where the
// local record is returned untouched for the push phase to deliver.
func (r *LastWriteWins) Resolve(local, remote schema.Record) (schema.Record, Outcome, error) {
	switch {
	case local == nil && remote == nil:
		return nil, "", fmt.Errorf("resolve called with no records")
	case local == nil:
		adopted, err := clone(remote)
		if err != nil {
			return nil, "", err
		}
		meta := adopted.Meta()
		meta.IsSynced = true
		if meta.LocalUpdatedAt.IsZero() {
			meta.LocalUpdatedAt = adopted.RemoteUpdatedAt()
		}
		return adopted, OutcomeAdoptedRemote, nil
	case remote == nil:
		return local, OutcomeKeptLocal, nil
	}

	if local.Table() != remote.Table() {
		return nil, "", &schema.ConflictError{Table: local.Table(), ID: local.Meta().ID}
	}

	localAt := local.Meta().LocalUpdatedAt
	remoteAt := remote.RemoteUpdatedAt()

	switch {
	case localAt.After(remoteAt):
		return local, OutcomeLocalWins, nil

	case remoteAt.After(localAt):
		winner, err := clone(remote)
		if err != nil {
			return nil, "", err
		}
		meta := winner.Meta()
		meta.SyncVersion = maxVersion(local, remote) + 1
		meta.IsSynced = true
		meta.LocalUpdatedAt = localAt
		return winner, OutcomeRemoteWins, nil

	default:
		merged, err := merge(local, remote)
		if err != nil {
			return nil, "", err
		}
		meta := merged.Meta()
		meta.SyncVersion = maxVersion(local, remote) + 1
		meta.IsSynced = true
		meta.LocalUpdatedAt = localAt
		return merged, OutcomeMerged, nil
	}
}

// merge builds the tie-break result: remote as the base, overlaid with the
// entity's locally-authoritative fields.
func merge(local, remote schema.Record) (schema.Record, error) {
	merged, err := clone(remote)
	if err != nil {
		return nil, err
	}

	switch lc := local.(type) {
	case *schema.Task:
		m := merged.(*schema.Task)
		m.Notes = lc.Notes
		m.Timer = lc.Timer
	case *schema.TimeGap:
		m := merged.(*schema.TimeGap)
		m.IsAvailable = lc.IsAvailable
		m.ModifiedBy = lc.ModifiedBy
	}

	return merged, nil
}

// clone deep-copies a record through its JSON form.
func clone(rec schema.Record) (schema.Record, error) {
	raw, err := json.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("failed to clone %s record: %w", rec.Table(), err)
	}
	out, err := schema.NewRecord(rec.Table())
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return nil, fmt.Errorf("failed to clone %s record: %w", rec.Table(), err)
	}
	return out, nil
}

func maxVersion(a, b schema.Record) int {
	av, bv := a.Meta().SyncVersion, b.Meta().SyncVersion
	if av > bv {
		return av
	}
	return bv
}
