// Package state implements the ingest path of §4.F: the per-instance
// locked transaction that validates an incoming event against the
// chain, appends it, re-derives the running state, and conditionally
// emits a checkpoint and/or commitment.
//
// The per-instance exclusive-lock-then-transact shape is grounded on
// the teacher's pkg/ledger.LedgerStore, whose doc comment states the
// same single-writer assumption this package makes explicit with an
// in-process per-instance mutex in front of the database's row lock.
package state

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/trackrecord/ledger/pkg/chain"
	"github.com/trackrecord/ledger/pkg/commitment"
	"github.com/trackrecord/ledger/pkg/database"
	"github.com/trackrecord/ledger/pkg/event"
	"github.com/trackrecord/ledger/pkg/logging"
	"github.com/trackrecord/ledger/pkg/notarize"
	"github.com/trackrecord/ledger/pkg/replay"
)

// Outcome is the result of an ingest attempt, mirroring §6's response
// code table: Created (new event appended), IdempotentReplay (already
// stored, same hash, no-op), or an error for SeqGap/PrevHashMismatch/
// ConflictingEvent/schema errors.
type Outcome int

const (
	Created Outcome = iota
	IdempotentReplay
)

// Service runs the ingest transaction for one or more instances. It is
// safe for concurrent use; per-instance operations serialize via an
// in-process mutex in addition to the database's row-level lock, so a
// single process never issues two overlapping transactions for the
// same instance.
type Service struct {
	repos              *database.Repositories
	checkpointInterval uint64
	commitmentInterval uint64
	hmacSecret         []byte
	notarizer          notarize.Notarizer
	logger             *logging.Logger

	locksMu sync.Mutex
	locks   map[string]*sync.Mutex
}

// NewService builds an ingest service. notarizer may be notarize.NoopNotarizer{}.
func NewService(repos *database.Repositories, checkpointInterval, commitmentInterval uint64, hmacSecret []byte, notarizer notarize.Notarizer) *Service {
	return &Service{
		repos:              repos,
		checkpointInterval: checkpointInterval,
		commitmentInterval: commitmentInterval,
		hmacSecret:         hmacSecret,
		notarizer:          notarizer,
		locks:              make(map[string]*sync.Mutex),
	}
}

// SetLogger attaches a logger used to report notarization failures, which
// never fail Ingest itself (notarization is a best-effort, post-commit step).
func (s *Service) SetLogger(logger *logging.Logger) {
	s.logger = logger
}

func (s *Service) lockFor(instanceID string) *sync.Mutex {
	s.locksMu.Lock()
	defer s.locksMu.Unlock()
	l, ok := s.locks[instanceID]
	if !ok {
		l = &sync.Mutex{}
		s.locks[instanceID] = l
	}
	return l
}

// financialFields is the subset of running state a Checkpoint's HMAC
// covers, per §3's Checkpoint definition.
type financialFields struct {
	Balance       string `json:"balance"`
	Equity        string `json:"equity"`
	HighWaterMark string `json:"highWaterMark"`
}

// Ingest validates and appends a single incoming event for instanceID,
// implementing §4.F's six-step transaction and its idempotency rule.
func (s *Service) Ingest(ctx context.Context, client *database.Client, instanceID string, e event.Event) (Outcome, error) {
	lock := s.lockFor(instanceID)
	lock.Lock()
	defer lock.Unlock()

	if e.InstanceID != instanceID {
		return 0, fmt.Errorf("state: event instanceId %q does not match target instance %q", e.InstanceID, instanceID)
	}
	if err := e.ValidateEnvelope(); err != nil {
		return 0, fmt.Errorf("state: %w", err)
	}
	if err := e.ValidatePayload(); err != nil {
		return 0, fmt.Errorf("state: %w", err)
	}

	tx, err := client.BeginTx(ctx)
	if err != nil {
		return 0, fmt.Errorf("state: begin tx: %w", err)
	}
	defer tx.Rollback()

	lastSeqNo := uint64(0)
	lastEventHash := event.Genesis
	head, err := s.repos.Heads.GetHeadForUpdateTx(ctx, tx, instanceID)
	switch {
	case err == database.ErrInstanceNotFound:
		// fresh instance; lastSeqNo/lastEventHash stay at their zero values.
	case err != nil:
		return 0, fmt.Errorf("state: load head: %w", err)
	default:
		lastSeqNo = head.LastSeqNo
		lastEventHash = head.LastEventHash
	}

	if e.SeqNo <= lastSeqNo {
		stored, err := s.repos.Events.GetEvent(ctx, instanceID, e.SeqNo)
		if err != nil {
			return 0, fmt.Errorf("state: resolve idempotency: %w", err)
		}
		if stored.EventHash != e.EventHash {
			return 0, fmt.Errorf("state: %w: seqNo %d already stored under a different eventHash", database.ErrConflictingEvent, e.SeqNo)
		}
		return IdempotentReplay, nil
	}

	if err := chain.VerifySingleEvent(e, instanceID, lastSeqNo, lastEventHash); err != nil {
		return 0, fmt.Errorf("state: %w", err)
	}

	if err := s.repos.Events.AppendEventTx(ctx, tx, e); err != nil {
		return 0, fmt.Errorf("state: append event: %w", err)
	}

	// Reloads and replays the full event history on every ingest rather
	// than applying e incrementally onto the persisted instance_heads
	// row. O(n) per append; deliberate simplification, not an oversight —
	// keeps replay.ReplayAll as the single source of truth for state
	// derivation instead of a second, incremental code path that could
	// drift from it. Revisit if per-instance event counts make this a
	// measured bottleneck.
	events, err := s.repos.Events.ListEvents(ctx, instanceID, 0, 0)
	if err != nil {
		return 0, fmt.Errorf("state: reload events: %w", err)
	}
	// The just-appended row may not be visible to a query issued on the
	// same *sql.Tx via a different connection path in all drivers; append
	// it in memory too so replay always sees it regardless of read path.
	if len(events) == 0 || events[len(events)-1].SeqNo != e.SeqNo {
		events = append(events, e)
	}

	newState, err := replay.ReplayAll(events)
	if err != nil {
		return 0, fmt.Errorf("state: replay: %w", err)
	}

	newHead := database.InstanceHead{
		InstanceID:         instanceID,
		LastSeqNo:          e.SeqNo,
		LastEventHash:      e.EventHash,
		Balance:            newState.Balance,
		Equity:             newState.Equity,
		HighWaterMark:      newState.HighWaterMark,
		CumulativeCashflow: newState.CumulativeCashflow,
		MaxDrawdown:        newState.MaxDrawdown,
		MaxDrawdownPct:     newState.MaxDrawdownPct,
	}
	if err := s.repos.Heads.UpsertHeadTx(ctx, tx, newHead); err != nil {
		return 0, fmt.Errorf("state: upsert head: %w", err)
	}

	var pendingCommitment *commitment.Commitment

	shouldCommit := commitment.ShouldCreateCommitment(e.SeqNo)
	if s.commitmentInterval > 0 {
		shouldCommit = e.SeqNo%s.commitmentInterval == 0
	}

	if s.checkpointInterval > 0 && e.SeqNo%s.checkpointInterval == 0 {
		fields := financialFields{
			Balance:       newState.Balance.String(),
			Equity:        newState.Equity.String(),
			HighWaterMark: newState.HighWaterMark.String(),
		}
		mac, err := commitment.StateHMAC(s.hmacSecret, fields)
		if err != nil {
			return 0, fmt.Errorf("state: compute checkpoint hmac: %w", err)
		}
		cp := database.Checkpoint{
			InstanceID:    instanceID,
			SeqNo:         e.SeqNo,
			Balance:       newState.Balance,
			Equity:        newState.Equity,
			HighWaterMark: newState.HighWaterMark,
			HMAC:          mac,
		}
		if err := s.repos.Checkpoints.InsertCheckpointTx(ctx, tx, cp); err != nil {
			return 0, fmt.Errorf("state: insert checkpoint: %w", err)
		}

		if shouldCommit {
			c := commitment.Build(instanceID, e.SeqNo, e.EventHash, mac)
			if err := s.repos.Commitments.InsertCommitmentTx(ctx, tx, c); err != nil {
				return 0, fmt.Errorf("state: insert commitment: %w", err)
			}
			pendingCommitment = &c
		}
	} else if shouldCommit {
		// Commitment interval may not divide the checkpoint interval;
		// still emit a commitment with a freshly computed HMAC.
		fields := financialFields{
			Balance:       newState.Balance.String(),
			Equity:        newState.Equity.String(),
			HighWaterMark: newState.HighWaterMark.String(),
		}
		mac, err := commitment.StateHMAC(s.hmacSecret, fields)
		if err != nil {
			return 0, fmt.Errorf("state: compute commitment hmac: %w", err)
		}
		c := commitment.Build(instanceID, e.SeqNo, e.EventHash, mac)
		if err := s.repos.Commitments.InsertCommitmentTx(ctx, tx, c); err != nil {
			return 0, fmt.Errorf("state: insert commitment: %w", err)
		}
		pendingCommitment = &c
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("state: commit: %w", err)
	}

	if pendingCommitment != nil {
		s.notarizeCommitment(ctx, *pendingCommitment)
	}
	return Created, nil
}

// notarizeCommitment submits a freshly committed commitment's hash to the
// configured Notarizer and records the resulting receipt. It runs after
// tx.Commit so a slow or unreachable notarization provider never holds the
// row lock open, and a failure here never fails Ingest: it is logged, and
// the commitment stays un-notarized, since Ingest makes one attempt and
// nothing in this package retries it. NoopNotarizer always errors, so this
// is a no-op by default.
func (s *Service) notarizeCommitment(ctx context.Context, c commitment.Commitment) {
	receipt, err := s.notarizer.Notarize(ctx, c.CommitmentHash)
	if err != nil {
		if s.logger != nil {
			s.logger.WithError(err).Warn("notarization failed", "instanceId", c.InstanceID, "seqNo", c.SeqNo)
		}
		return
	}
	notarizationReceipt := commitment.NotarizationReceipt{
		Provider:  receipt.Provider,
		Hash:      receipt.Hash,
		Timestamp: receipt.Timestamp,
		Proof:     receipt.Proof,
		VerifyURL: receipt.VerifyURL,
	}
	if err := s.repos.Commitments.RecordNotarization(ctx, c.InstanceID, c.SeqNo, notarizationReceipt, time.Unix(receipt.Timestamp, 0).UTC()); err != nil {
		if s.logger != nil {
			s.logger.WithError(err).Warn("record notarization failed", "instanceId", c.InstanceID, "seqNo", c.SeqNo)
		}
	}
}
