// Package verify implements §4.L: a standalone, database-free verifier
// over a self-contained proof bundle. It never touches pkg/database or
// pkg/state — every check is a pure function of the bundle's own bytes,
// mirroring the teacher's UnifiedVerifierConfig shape (a leveled verifier
// that runs cheaper checks first and only attempts costlier ones when the
// inputs for them are present), generalized from attestation verification
// to ledger-bundle verification.
package verify

import (
	"crypto/sha256"
	"fmt"
	"math"

	"github.com/trackrecord/ledger/pkg/canonical"
	"github.com/trackrecord/ledger/pkg/commitment"
	"github.com/trackrecord/ledger/pkg/decimal"
	"github.com/trackrecord/ledger/pkg/event"
	"github.com/trackrecord/ledger/pkg/manifest"
	"github.com/trackrecord/ledger/pkg/replay"
	"github.com/trackrecord/ledger/pkg/report"
)

// priceTolerance and timeTolerance are the L2 matching thresholds of §4.L.
const (
	priceTolerance = 1e-4
	timeToleranceSeconds = 60
)

// Checkpoint is the database-free view of a stored checkpoint: just the
// fields the L1 checkpoint-replay check needs.
type Checkpoint struct {
	SeqNo         uint64    `json:"seqNo"`
	Balance       decimal.D `json:"balance"`
	Equity        decimal.D `json:"equity"`
	HighWaterMark decimal.D `json:"highWaterMark"`
}

// BrokerEvidenceEntry pairs a BROKER_EVIDENCE event's seqNo with its
// decoded payload, so L2 matching doesn't need to re-decode raw events.
type BrokerEvidenceEntry struct {
	SeqNo   uint64                      `json:"seqNo"`
	Payload event.BrokerEvidencePayload `json:"payload"`
}

// BrokerDigestEntry pairs a BROKER_HISTORY_DIGEST event's seqNo with its
// decoded payload.
type BrokerDigestEntry struct {
	SeqNo   uint64                           `json:"seqNo"`
	Payload event.BrokerHistoryDigestPayload `json:"payload"`
}

// Bundle is the self-contained input to Verify: everything a third party
// needs to recompute the same answer the assembler embedded, per §4.K.
type Bundle struct {
	Report         report.Report          `json:"report"`
	Events         []event.Event          `json:"events"`
	Checkpoints    []Checkpoint           `json:"checkpoints"`
	BrokerEvidence []BrokerEvidenceEntry  `json:"brokerEvidence"`
	BrokerDigests  []BrokerDigestEntry    `json:"brokerDigests"`
	Commitments    []commitment.Commitment `json:"commitments"`
}

// L1Result is the outcome of the always-run ledger-level checks.
type L1Result struct {
	ChainValid          bool     `json:"chainValid"`
	ChainBreakAtSeqNo    uint64   `json:"chainBreakAtSeqNo,omitempty"`
	SignatureValid       bool     `json:"signatureValid"`
	LedgerRootValid      bool     `json:"ledgerRootValid"`
	BodyHashValid        bool     `json:"bodyHashValid"`
	ReportReproducible   bool     `json:"reportReproducible"`
	CheckpointsValid     bool     `json:"checkpointsValid"`
	Caveats              []string `json:"caveats,omitempty"`
	Err                  string   `json:"error,omitempty"`
}

func (r L1Result) allGood() bool {
	return r.ChainValid && r.SignatureValid && r.LedgerRootValid && r.BodyHashValid && r.ReportReproducible && r.CheckpointsValid
}

// L2Result is the outcome of broker-evidence cross-checking, run only
// when the bundle carries broker evidence or digests.
type L2Result struct {
	Ran         bool `json:"ran"`
	Matched     int  `json:"matched"`
	Mismatched  int  `json:"mismatched"`
	DigestValid bool `json:"digestValid"`
}

func (r L2Result) allGood() bool {
	return r.Ran && r.Mismatched == 0 && r.Matched > 0 && r.DigestValid
}

// L3Result is the outcome of commitment recomputation, run only when the
// bundle carries commitments.
type L3Result struct {
	Ran        bool `json:"ran"`
	Valid      bool `json:"valid"`
	Notarized  bool `json:"notarized"`
}

// Result is the top-level verifier output of §4.L.
type Result struct {
	Level   report.VerificationLevel `json:"level"`
	L1      L1Result                 `json:"l1"`
	L2      L2Result                 `json:"l2"`
	L3      L3Result                 `json:"l3"`
	Verified bool                    `json:"verified"`
	Summary string                   `json:"summary"`
}

// Verify runs §4.L's leveled checks over b. trustedKeys may be nil or
// empty, in which case the trusted-registry SHOULD-reject is skipped (no
// registry configured).
func Verify(b Bundle, instanceID string, trustedKeys *manifest.TrustedKeyRegistry) Result {
	l1 := verifyL1(b, instanceID, trustedKeys)
	l2 := verifyL2(b)
	l3 := verifyL3(b)

	level := report.L0None
	if l1.allGood() {
		level = report.L1Ledger
		if l2.Ran && l2.allGood() {
			level = report.L2Broker
			if l3.Ran && l3.Valid && l3.Notarized {
				level = report.L3Notarized
			}
		}
	}

	verified := l1.allGood()
	summary := summarize(level, l1, l2, l3)

	return Result{Level: level, L1: l1, L2: l2, L3: l3, Verified: verified, Summary: summary}
}

func summarize(level report.VerificationLevel, l1 L1Result, l2 L2Result, l3 L3Result) string {
	if !l1.allGood() {
		if l1.Err != "" {
			return fmt.Sprintf("verification failed at L1: %s", l1.Err)
		}
		return "verification failed at L1"
	}
	switch level {
	case report.L3Notarized:
		return "verified at L3: ledger, broker evidence, and notarized commitments all check out"
	case report.L2Broker:
		return "verified at L2: ledger checks out and broker evidence matches"
	default:
		return "verified at L1: ledger is internally consistent and signed"
	}
}

func verifyL1(b Bundle, instanceID string, trustedKeys *manifest.TrustedKeyRegistry) L1Result {
	var l1 L1Result
	l1.ChainValid = true

	// 1. Chain: seqNo contiguity and prevHash linkage. The first event's
	// prevHash is trusted since the range may start mid-chain.
	for i, e := range b.Events {
		if i > 0 {
			prev := b.Events[i-1]
			if e.SeqNo != prev.SeqNo+1 {
				l1.ChainValid = false
				l1.ChainBreakAtSeqNo = e.SeqNo
				l1.Err = fmt.Sprintf("seqNo gap: expected %d, got %d", prev.SeqNo+1, e.SeqNo)
				break
			}
			if e.PrevHash != prev.EventHash {
				l1.ChainValid = false
				l1.ChainBreakAtSeqNo = e.SeqNo
				l1.Err = fmt.Sprintf("prevHash mismatch at seqNo %d", e.SeqNo)
				break
			}
		}
		want, err := event.ComputeHash(instanceID, e.EventType, e.SeqNo, e.PrevHash, e.Timestamp, e.Payload)
		if err != nil {
			l1.ChainValid = false
			l1.ChainBreakAtSeqNo = e.SeqNo
			l1.Err = fmt.Sprintf("seqNo %d: %v", e.SeqNo, err)
			break
		}
		if want != e.EventHash {
			l1.ChainValid = false
			l1.ChainBreakAtSeqNo = e.SeqNo
			l1.Err = fmt.Sprintf("eventHash mismatch at seqNo %d", e.SeqNo)
			break
		}
		if e.EventType == event.SessionStart {
			var p event.SessionStartPayload
			if err := e.Decode(&p); err == nil && p.Mode == event.Live {
				l1.Caveats = append(l1.Caveats, "trading mode is self-reported and unverifiable at L1.")
			}
		}
	}

	// 3 & 4. Ledger root and body hash.
	bodyBytes, err := canonical.MarshalValue(b.Report.Body)
	if err != nil {
		l1.Err = appendErr(l1.Err, fmt.Sprintf("canonicalize body: %v", err))
	} else {
		bodyHash := sha256.Sum256(bodyBytes)
		l1.BodyHashValid = fmt.Sprintf("%x", bodyHash) == b.Report.Manifest.ReportBodyHash

		// 2. Signature.
		if err := manifest.VerifySignature(b.Report.Manifest, bodyHash); err != nil {
			l1.Err = appendErr(l1.Err, err.Error())
		} else {
			l1.SignatureValid = true
			if trustedKeys.Len() > 0 && !trustedKeys.IsTrusted(b.Report.Manifest.SigningKeyVersion) {
				l1.SignatureValid = false
				l1.Err = appendErr(l1.Err, fmt.Sprintf("signingKeyVersion %q is not in the trusted registry", b.Report.Manifest.SigningKeyVersion))
			}
		}

		eventHashes := make([][]byte, len(b.Events))
		for i, e := range b.Events {
			eventHashes[i] = []byte(e.EventHash)
		}
		l1.LedgerRootValid = canonical.HashConcat(eventHashes...) == b.Report.Manifest.LedgerRootHash
	}

	// 5. Replay reproducibility.
	l1.ReportReproducible = checkReproducibility(b)

	// 6. Checkpoints.
	l1.CheckpointsValid = checkCheckpoints(b, instanceID)

	return l1
}

func appendErr(existing, next string) string {
	if existing == "" {
		return next
	}
	return existing + "; " + next
}

// checkReproducibility replays b.Events from scratch and compares the
// resulting balance/drawdown/trade-count/series-lengths against the
// values embedded in the bundle's own report body: the last balance-curve
// sample for finalBalance, the last drawdown-series sample for
// maxDrawdownAbs (both series are monotone point logs, so their final
// entries are the final/maximum values respectively), and len() for the
// trade and series counts.
func checkReproducibility(b Bundle) bool {
	st, err := replay.ReplayAll(b.Events)
	if err != nil {
		return false
	}
	fresh := replay.BuildDailyReturns(st)

	wantBalance := decimal.Zero(decimal.ScaleCents)
	if n := len(b.Report.Body.BalanceCurve); n > 0 {
		wantBalance = b.Report.Body.BalanceCurve[n-1].Value
	}
	wantDrawdown := decimal.Zero(decimal.ScaleCents)
	if n := len(b.Report.Body.DrawdownSeries); n > 0 {
		wantDrawdown = b.Report.Body.DrawdownSeries[n-1].Abs
	}

	if st.Balance.String() != wantBalance.String() {
		return false
	}
	if st.MaxDrawdown.String() != wantDrawdown.String() {
		return false
	}
	if st.TotalTrades != len(b.Report.Body.Trades) {
		return false
	}
	if len(fresh) != len(b.Report.Body.DailyReturns) {
		return false
	}
	if len(st.EquityCurve) != len(b.Report.Body.EquityCurve) {
		return false
	}
	return true
}

// checkCheckpoints replays the prefix of b.Events through each
// checkpoint's seqNo and requires exact (balance, equity, highWaterMark)
// canonical-string equality. An empty checkpoint list is vacuously valid.
func checkCheckpoints(b Bundle, instanceID string) bool {
	for _, cp := range b.Checkpoints {
		var prefix []event.Event
		for _, e := range b.Events {
			if e.SeqNo > cp.SeqNo {
				break
			}
			prefix = append(prefix, e)
		}
		st, err := replay.ReplayAll(prefix)
		if err != nil {
			return false
		}
		if st.Balance.String() != cp.Balance.String() {
			return false
		}
		if st.Equity.String() != cp.Equity.String() {
			return false
		}
		if st.HighWaterMark.String() != cp.HighWaterMark.String() {
			return false
		}
	}
	return true
}

func verifyL2(b Bundle) L2Result {
	var l2 L2Result
	if len(b.BrokerEvidence) == 0 && len(b.BrokerDigests) == 0 {
		return l2
	}
	l2.Ran = true

	for _, ev := range b.BrokerEvidence {
		if matchesLedgerEvent(b.Events, ev.Payload) {
			l2.Matched++
		} else {
			l2.Mismatched++
		}
	}

	l2.DigestValid = true
	for _, d := range b.BrokerDigests {
		if !hasMatchingDigestEvent(b.Events, d) {
			l2.DigestValid = false
		}
	}

	return l2
}

func matchesLedgerEvent(events []event.Event, ev event.BrokerEvidencePayload) bool {
	for _, e := range events {
		var ledgerPrice decimal.D
		switch {
		case e.EventType == event.TradeOpen && ev.Action == event.BrokerOpen:
			var p event.TradeOpenPayload
			if err := e.Decode(&p); err != nil || p.Ticket != ev.LinkedTicket {
				continue
			}
			ledgerPrice = p.OpenPrice
		case e.EventType == event.TradeClose && ev.Action == event.BrokerClose:
			var p event.TradeClosePayload
			if err := e.Decode(&p); err != nil || p.Ticket != ev.LinkedTicket {
				continue
			}
			ledgerPrice = p.ClosePrice
		default:
			continue
		}

		dt := e.Timestamp - ev.ExecutionTimestamp
		if dt < 0 {
			dt = -dt
		}
		if dt >= timeToleranceSeconds {
			continue
		}
		if math.Abs(ledgerPrice.Float64()-ev.ExecutionPrice.Float64()) >= priceTolerance {
			continue
		}
		return true
	}
	return false
}

func hasMatchingDigestEvent(events []event.Event, d BrokerDigestEntry) bool {
	for _, e := range events {
		if e.EventType != event.BrokerHistoryDigest {
			continue
		}
		var p event.BrokerHistoryDigestPayload
		if err := e.Decode(&p); err != nil {
			continue
		}
		if p.HistoryHash == d.Payload.HistoryHash {
			return true
		}
	}
	return false
}

func verifyL3(b Bundle) L3Result {
	var l3 L3Result
	if len(b.Commitments) == 0 {
		return l3
	}
	l3.Ran = true

	byHash := make(map[uint64]string, len(b.Events))
	for _, e := range b.Events {
		byHash[e.SeqNo] = e.EventHash
	}

	l3.Valid = true
	notarizedAndValid := false
	for _, c := range b.Commitments {
		if !commitment.Verify(c) {
			l3.Valid = false
			continue
		}
		if eh, ok := byHash[c.SeqNo]; !ok || eh != c.LastEventHash {
			l3.Valid = false
			continue
		}
		if c.IsNotarized() {
			notarizedAndValid = true
		}
	}
	l3.Notarized = l3.Valid && notarizedAndValid

	return l3
}
