// Package chain verifies the hash-chain invariants of an event sequence:
// contiguous seqNo, prevHash linkage, and recomputed eventHash equality.
// Grounded on the teacher's canonical-event VerifyHash approach (recompute
// and compare), generalized from a single event to a whole ordered chain.
package chain

import (
	"errors"
	"fmt"

	"github.com/trackrecord/ledger/pkg/event"
)

// Break kinds (§7).
var (
	ErrSeqGap            = errors.New("chain: sequence gap")
	ErrPrevHashMismatch  = errors.New("chain: prevHash mismatch")
	ErrEventHashMismatch = errors.New("chain: eventHash mismatch")
)

// VerifySingleEvent checks e against the chain's current tip
// (lastSeqNo, lastEventHash). It does not know about idempotent retries;
// the caller (the ingest path) must detect "same seqNo, same eventHash"
// before calling this, per §4.D.
func VerifySingleEvent(e event.Event, instanceID string, lastSeqNo uint64, lastEventHash string) error {
	if e.SeqNo != lastSeqNo+1 {
		return fmt.Errorf("%w: expected %d, got %d", ErrSeqGap, lastSeqNo+1, e.SeqNo)
	}
	// For a fresh instance (lastSeqNo==0) the caller passes lastEventHash
	// == event.Genesis, per §3's seqNo=1 invariant.
	if e.PrevHash != lastEventHash {
		return fmt.Errorf("%w: seqNo %d: expected %s, got %s", ErrPrevHashMismatch, e.SeqNo, lastEventHash, e.PrevHash)
	}
	want, err := event.ComputeHash(instanceID, e.EventType, e.SeqNo, e.PrevHash, e.Timestamp, e.Payload)
	if err != nil {
		return fmt.Errorf("chain: seqNo %d: %w", e.SeqNo, err)
	}
	if want != e.EventHash {
		return fmt.Errorf("%w: seqNo %d: expected %s, got %s", ErrEventHashMismatch, e.SeqNo, want, e.EventHash)
	}
	return nil
}

// Result is the outcome of verifying a whole chain.
type Result struct {
	Valid          bool
	ChainLength    int
	FirstEventHash string
	LastEventHash  string
	BreakAtSeqNo   uint64
	Err            error
}

// VerifyChain walks events (assumed already sorted by seqNo ascending)
// from expectedSeqNo=1, expectedPrevHash=GENESIS, and reports the first
// break, if any.
func VerifyChain(events []event.Event, instanceID string) Result {
	if len(events) == 0 {
		return Result{Valid: true, ChainLength: 0}
	}
	lastSeqNo := uint64(0)
	lastHash := event.Genesis
	for _, e := range events {
		if err := VerifySingleEvent(e, instanceID, lastSeqNo, lastHash); err != nil {
			return Result{Valid: false, BreakAtSeqNo: e.SeqNo, Err: err}
		}
		lastSeqNo = e.SeqNo
		lastHash = e.EventHash
	}
	return Result{
		Valid:          true,
		ChainLength:    len(events),
		FirstEventHash: events[0].EventHash,
		LastEventHash:  events[len(events)-1].EventHash,
	}
}
