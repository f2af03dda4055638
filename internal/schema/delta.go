package schema

import (
	"encoding/json"
	"fmt"
	"time"
)

// Operation tags a delta or queue item with the mutation it represents.
type Operation string

const (
	OpCreate Operation = "create"
	OpUpdate Operation = "update"
	OpDelete Operation = "delete"
)

// Delta is the minimal payload pushed to the remote service for one local
// mutation: the syncable field subset of the record plus identity,
// operation tag, and timestamp. Delete deltas carry no payload.
type Delta struct {
	ID        string          `json:"id"`
	Table     string          `json:"table"`
	Operation Operation       `json:"operation"`
	Timestamp time.Time       `json:"timestamp"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

// localOnlyFields are envelope fields that never leave the device. The
// remote service derives its own sync state; a running timer is likewise
// meaningful only where it runs.
var localOnlyFields = []string{"is_synced", "timer_state"}

// CalculateDelta classifies a record's pending mutation and extracts its
// syncable field subset.
//
// Classification: a soft-deleted record yields a delete delta; an unsynced
// record still at version 1 yields a create; anything else is an update.
func CalculateDelta(rec Record) (*Delta, error) {
	meta := rec.Meta()
	d := &Delta{
		ID:        meta.ID,
		Table:     rec.Table(),
		Timestamp: meta.LocalUpdatedAt,
	}

	switch {
	case meta.IsDeleted():
		d.Operation = OpDelete
		return d, nil
	case meta.SyncVersion == 1 && !meta.IsSynced:
		d.Operation = OpCreate
	default:
		d.Operation = OpUpdate
	}

	payload, err := SyncablePayload(rec)
	if err != nil {
		return nil, err
	}
	d.Payload = payload
	return d, nil
}

// SyncablePayload marshals a record with its local-only fields stripped.
func SyncablePayload(rec Record) (json.RawMessage, error) {
	raw, err := json.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s record: %w", rec.Table(), err)
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, fmt.Errorf("failed to reshape %s record: %w", rec.Table(), err)
	}
	for _, f := range localOnlyFields {
		delete(fields, f)
	}

	payload, err := json.Marshal(fields)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s payload: %w", rec.Table(), err)
	}
	return payload, nil
}

// SyncQueueItem is one durable queue entry per local mutation that has not
// yet been confirmed against the remote service.
type SyncQueueItem struct {
	ID           string          `json:"id"`
	RecordID     string          `json:"record_id"`
	Table        string          `json:"table"`
	Operation    Operation       `json:"operation"`
	Data         json.RawMessage `json:"data,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
	RetryCount   int             `json:"retry_count"`
	LastRetryAt  *time.Time      `json:"last_retry_at,omitempty"`
	ErrorMessage string          `json:"error_message,omitempty"`
}

// MaxQueueRetries bounds how many times a queue item is attempted before
// it is dropped and reported as a MaxRetriesError.
const MaxQueueRetries = 5

// DeleteOperation is a pending safe-delete awaiting remote confirmation.
// The queue holding these is in-memory; it is rebuilt from soft-deleted
// rows at engine start.
type DeleteOperation struct {
	ID        string    `json:"id"`
	Table     string    `json:"table"`
	Timestamp time.Time `json:"timestamp"`
	OwnerID   string    `json:"owner_id"`
	Reason    string    `json:"reason,omitempty"`
}
