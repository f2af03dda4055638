// Package sync orchestrates bidirectional synchronization between the
// local store and the remote API.
//
// A sync cycle runs three phases in order: push local unsynced records,
// pull remote changes since the last completed cycle, then drain the
// durable mutation queue (retries and pending deletes). Phases are fault
// isolated: a failure in one is recorded in the result and the next phase
// still runs. At most one cycle runs at a time; a concurrent call fails
// fast with ErrSyncInProgress instead of queueing.
//
// The Scheduler layers periodic background cycles and reconnect-triggered
// cycles on top of the same single-flight guard.
package sync
