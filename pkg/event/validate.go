package event

import (
	"errors"
	"fmt"

	"github.com/trackrecord/ledger/pkg/decimal"
)

// Sentinel schema errors (§7 SchemaError). Each is non-retriable: the
// client must fix the payload and resubmit as a new seqNo, not retry the
// same one.
var (
	ErrUnknownEventType  = errors.New("event: unknown event type")
	ErrInvalidTimestamp  = errors.New("event: timestamp must be positive")
	ErrInvalidHash       = errors.New("event: hash must be 64-char lowercase hex")
	ErrInvalidDirection  = errors.New("event: direction must be BUY or SELL")
	ErrInvalidCashflow   = errors.New("event: cashflow type must be DEPOSIT or WITHDRAWAL")
	ErrNonPositiveLots   = errors.New("event: lots must be > 0")
	ErrNegativeRemaining = errors.New("event: remainingLots must be >= 0")
)

func isHexSha256(s string) bool {
	if len(s) != 64 {
		return false
	}
	for _, r := range s {
		if (r >= '0' && r <= '9') || (r >= 'a' && r <= 'f') {
			continue
		}
		return false
	}
	return true
}

// ValidateEnvelope checks the fields common to every event: timestamp
// positivity and hex-hash shape. It does not check seqNo contiguity or
// prevHash/eventHash linkage — that is pkg/chain's job.
func (e Event) ValidateEnvelope() error {
	if !e.EventType.Valid() {
		return fmt.Errorf("%w: %q", ErrUnknownEventType, e.EventType)
	}
	if e.Timestamp <= 0 {
		return fmt.Errorf("%w: got %d", ErrInvalidTimestamp, e.Timestamp)
	}
	if e.PrevHash != Genesis && !isHexSha256(e.PrevHash) {
		return fmt.Errorf("%w: prevHash %q", ErrInvalidHash, e.PrevHash)
	}
	if !isHexSha256(e.EventHash) {
		return fmt.Errorf("%w: eventHash %q", ErrInvalidHash, e.EventHash)
	}
	return nil
}

// ValidatePayload decodes and checks the type-specific payload invariants
// of §4.C: monetary fields are always finite by construction (pkg/decimal
// has no non-finite representation), so only the shape constraints that
// require cross-field or domain checks are enforced here.
func (e Event) ValidatePayload() error {
	switch e.EventType {
	case SessionStart:
		var p SessionStartPayload
		if err := e.Decode(&p); err != nil {
			return err
		}
		p.Normalize()
		if p.Mode != Live && p.Mode != Paper {
			return fmt.Errorf("event: seqNo %d: mode must be LIVE or PAPER, got %q", e.SeqNo, p.Mode)
		}
		return nil

	case SessionEnd, Snapshot, TradeModify, BrokerHistoryDigest, ChainRecovery:
		var raw map[string]interface{}
		return e.Decode(&raw)

	case TradeOpen:
		var p TradeOpenPayload
		if err := e.Decode(&p); err != nil {
			return err
		}
		p.Normalize()
		if p.Direction != Buy && p.Direction != Sell {
			return fmt.Errorf("%w: seqNo %d: %q", ErrInvalidDirection, e.SeqNo, p.Direction)
		}
		if !p.Lots.GreaterThan(decimal.Zero(p.Lots.Scale())) {
			return fmt.Errorf("%w: seqNo %d", ErrNonPositiveLots, e.SeqNo)
		}
		return nil

	case TradeClose:
		var p TradeClosePayload
		if err := e.Decode(&p); err != nil {
			return err
		}
		p.Normalize()
		return nil

	case PartialClose:
		var p PartialClosePayload
		if err := e.Decode(&p); err != nil {
			return err
		}
		p.Normalize()
		if p.RemainingLots.Sign() < 0 {
			return fmt.Errorf("%w: seqNo %d", ErrNegativeRemaining, e.SeqNo)
		}
		return nil

	case Cashflow:
		var p CashflowPayload
		if err := e.Decode(&p); err != nil {
			return err
		}
		p.Normalize()
		if p.Type != Deposit && p.Type != Withdrawal {
			return fmt.Errorf("%w: seqNo %d: %q", ErrInvalidCashflow, e.SeqNo, p.Type)
		}
		return nil

	case BrokerEvidence:
		var p BrokerEvidencePayload
		if err := e.Decode(&p); err != nil {
			return err
		}
		p.Normalize()
		if p.Action != BrokerOpen && p.Action != BrokerClose {
			return fmt.Errorf("event: seqNo %d: broker action must be OPEN or CLOSE, got %q", e.SeqNo, p.Action)
		}
		return nil
	}
	return fmt.Errorf("%w: %q", ErrUnknownEventType, e.EventType)
}
