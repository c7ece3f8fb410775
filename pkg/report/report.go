// Package report implements §4.J: it turns a loaded event range into a
// signed manifest plus a deterministic report body (equity/balance/
// drawdown series, trade log, daily returns, statistics, and an audit
// section), the same replay-then-assemble shape the teacher applies to
// its own proof generation pipeline, generalized to the ledger's domain.
package report

import (
	"crypto/sha256"
	"encoding/hex"

	"github.com/google/uuid"

	"github.com/trackrecord/ledger/pkg/canonical"
	"github.com/trackrecord/ledger/pkg/chain"
	"github.com/trackrecord/ledger/pkg/event"
	"github.com/trackrecord/ledger/pkg/manifest"
	"github.com/trackrecord/ledger/pkg/metrics"
	"github.com/trackrecord/ledger/pkg/replay"
)

// CalculationVersion is embedded in every manifest so a future engine
// revision is distinguishable from this one in stored reports.
const CalculationVersion = "1.0.0"

// VerificationLevel mirrors §4.L / §4.J's level enum.
type VerificationLevel string

const (
	L0None       VerificationLevel = "L0_NONE"
	L1Ledger     VerificationLevel = "L1_LEDGER"
	L2Broker     VerificationLevel = "L2_BROKER"
	L3Notarized  VerificationLevel = "L3_NOTARIZED"
)

// Audit is the report body's audit section.
type Audit struct {
	ChainVerified  bool   `json:"chainVerified"`
	ChainBreakAt   uint64 `json:"chainBreakAtSeqNo,omitempty"`
	DrawdownCaveat string `json:"drawdownCaveat"`
}

// Instance identifies the range a report was generated over.
type Instance struct {
	InstanceID    string `json:"instanceId"`
	FromSeqNo     uint64 `json:"fromSeqNo"`
	ToSeqNo       uint64 `json:"toSeqNo"`
	FromTimestamp int64  `json:"fromTimestamp"`
	ToTimestamp   int64  `json:"toTimestamp"`
}

// Body is the canonicalized, hashed, and signed content of a report.
type Body struct {
	Instance       Instance               `json:"instance"`
	EquityCurve    []replay.EquityPoint   `json:"equityCurve"`
	BalanceCurve   []replay.EquityPoint   `json:"balanceCurve"`
	DrawdownSeries []replay.DrawdownPoint `json:"drawdownSeries"`
	Trades         []replay.ClosedTrade   `json:"trades"`
	DailyReturns   []replay.DailyReturn   `json:"dailyReturns"`
	Statistics     metrics.Statistics     `json:"statistics"`
	Audit          Audit                  `json:"audit"`
}

// Report bundles a Body with the manifest that binds and signs it.
type Report struct {
	Manifest          manifest.Manifest `json:"manifest"`
	Body              Body              `json:"body"`
	VerificationLevel VerificationLevel `json:"verificationLevel"`
}

// Generate implements §4.J's eight steps over an already-loaded event
// range. The caller is responsible for loading exactly the
// [fromSeqNo, toSeqNo] range from storage (pkg/database); Generate
// itself is a pure function of that slice plus the signer.
func Generate(events []event.Event, instanceID string, signer *manifest.ManifestSigner, generatedAt int64) (Report, error) {
	chainResult := chain.VerifyChain(events, instanceID)

	st, err := replay.ReplayAll(events)
	if err != nil {
		return Report{}, err
	}
	dailyReturns := replay.BuildDailyReturns(st)

	stats := metrics.Compute(st.ClosedTrades, st.MaxDrawdown, st.Balance, st.CumulativeCashflow)

	hasDigests := st.Counters.BrokerHistoryDigests > 0 || st.Counters.BrokerEvidences > 0
	level := L0None
	if hasDigests {
		level = L2Broker
	} else if chainResult.Valid {
		level = L1Ledger
	}

	var fromSeqNo, toSeqNo uint64
	var fromTimestamp, toTimestamp int64
	if len(events) > 0 {
		fromSeqNo, toSeqNo = events[0].SeqNo, events[len(events)-1].SeqNo
		fromTimestamp, toTimestamp = events[0].Timestamp, events[len(events)-1].Timestamp
	}

	body := Body{
		Instance: Instance{
			InstanceID:    instanceID,
			FromSeqNo:     fromSeqNo,
			ToSeqNo:       toSeqNo,
			FromTimestamp: fromTimestamp,
			ToTimestamp:   toTimestamp,
		},
		EquityCurve:    st.EquityCurve,
		BalanceCurve:   st.BalanceCurve,
		DrawdownSeries: st.DrawdownSeries,
		Trades:         st.ClosedTrades,
		DailyReturns:   dailyReturns,
		Statistics:     stats,
		Audit: Audit{
			ChainVerified:  chainResult.Valid,
			ChainBreakAt:   chainResult.BreakAtSeqNo,
			DrawdownCaveat: "peak/drawdown are sampled at event boundaries; the true intrabar extremum between two snapshots is unobservable",
		},
	}

	bodyHashBytes, err := canonical.MarshalValue(body)
	if err != nil {
		return Report{}, err
	}
	bodyHash := sha256.Sum256(bodyHashBytes)

	eventHashes := make([][]byte, len(events))
	for i, e := range events {
		eventHashes[i] = []byte(e.EventHash)
	}
	ledgerRootHash := canonical.HashConcat(eventHashes...)

	firstEventHash, lastEventHash := "", ""
	if len(events) > 0 {
		firstEventHash = events[0].EventHash
		lastEventHash = events[len(events)-1].EventHash
	}

	m := manifest.Manifest{
		SchemaVersion:      manifest.SchemaVersion,
		ReportID:           uuid.NewString(),
		InstanceID:         instanceID,
		CalculationVersion: CalculationVersion,
		FromSeqNo:          fromSeqNo,
		ToSeqNo:            toSeqNo,
		FromTimestamp:      fromTimestamp,
		ToTimestamp:        toTimestamp,
		EquityPolicy:       manifest.EquityPolicy,
		CashflowPolicy:     manifest.CashflowPolicy,
		FirstEventHash:     firstEventHash,
		LastEventHash:      lastEventHash,
		LedgerRootHash:     ledgerRootHash,
		ReportBodyHash:     hex.EncodeToString(bodyHash[:]),
		Signature:          signer.Sign(bodyHash),
		PublicKey:          signer.PublicKeyHex(),
		SigningKeyVersion:  signer.KeyVersion(),
		GeneratedAt:        generatedAt,
	}

	return Report{Manifest: m, Body: body, VerificationLevel: level}, nil
}
