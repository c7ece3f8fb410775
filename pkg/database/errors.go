// Sentinel errors for ledger database operations. Explicit errors
// instead of nil, nil so callers can't mistake "not found" for success.

package database

import "errors"

var (
	// ErrNotFound is returned when a requested entity is not found.
	ErrNotFound = errors.New("entity not found")

	// ErrInstanceNotFound is returned when no running state exists for an instanceId.
	ErrInstanceNotFound = errors.New("instance not found")

	// ErrEventNotFound is returned when an event row is not found.
	ErrEventNotFound = errors.New("event not found")

	// ErrCheckpointNotFound is returned when no checkpoint exists for a seqNo.
	ErrCheckpointNotFound = errors.New("checkpoint not found")

	// ErrCommitmentNotFound is returned when no commitment exists for a seqNo.
	ErrCommitmentNotFound = errors.New("commitment not found")

	// ErrSeqGap is returned when an incoming event's seqNo does not
	// immediately follow the instance's last stored seqNo.
	ErrSeqGap = errors.New("seqNo gap")

	// ErrPrevHashMismatch is returned when an incoming event's prevHash
	// does not match the instance's stored lastEventHash.
	ErrPrevHashMismatch = errors.New("prevHash mismatch")

	// ErrConflictingEvent is returned when a client resubmits a seqNo
	// already stored under a different eventHash (§4.F idempotency rule).
	ErrConflictingEvent = errors.New("conflicting event at seqNo")
)
