package report

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"testing"

	"github.com/trackrecord/ledger/pkg/canonical"
	"github.com/trackrecord/ledger/pkg/decimal"
	"github.com/trackrecord/ledger/pkg/event"
	"github.com/trackrecord/ledger/pkg/manifest"
)

// buildWorkedExample mirrors pkg/replay's worked example: a session start,
// two round-trip trades, and a deposit, with no broker evidence attached.
func buildWorkedExample(t *testing.T) []event.Event {
	t.Helper()
	const inst = "inst-report"
	var evs []event.Event
	prev := event.Genesis
	seq := uint64(0)
	ts := int64(1700000000)

	add := func(typ event.Type, payload interface{}) {
		seq++
		ts++
		p, err := json.Marshal(payload)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		h, err := event.ComputeHash(inst, typ, seq, prev, ts, p)
		if err != nil {
			t.Fatalf("ComputeHash: %v", err)
		}
		evs = append(evs, event.Event{
			InstanceID: inst, SeqNo: seq, EventType: typ,
			PrevHash: prev, EventHash: h, Timestamp: ts, Payload: p,
		})
		prev = h
	}

	cents := decimal.ScaleCents
	price := decimal.ScalePrice
	lots := decimal.ScaleLots

	add(event.SessionStart, event.SessionStartPayload{Mode: event.Live, Balance: decimal.MustParse("10000.00", cents)})
	add(event.Snapshot, event.SnapshotPayload{Balance: decimal.MustParse("10000.00", cents), Equity: decimal.MustParse("10000.00", cents)})
	add(event.TradeOpen, event.TradeOpenPayload{Ticket: "T1", Symbol: "EURUSD", Direction: event.Buy, Lots: decimal.MustParse("0.10", lots), OpenPrice: decimal.MustParse("1.085", price)})
	add(event.TradeClose, event.TradeClosePayload{Ticket: "T1", ClosePrice: decimal.MustParse("1.0875", price), Profit: decimal.MustParse("25.00", cents), Swap: decimal.MustParse("-1.20", cents), Commission: decimal.MustParse("-3.50", cents)})
	add(event.Snapshot, event.SnapshotPayload{Balance: decimal.MustParse("10020.30", cents), Equity: decimal.MustParse("10020.30", cents)})
	add(event.Cashflow, event.CashflowPayload{Type: event.Deposit, Amount: decimal.MustParse("5000.00", cents), BalanceBefore: decimal.MustParse("10020.30", cents), BalanceAfter: decimal.MustParse("15020.30", cents)})
	add(event.TradeOpen, event.TradeOpenPayload{Ticket: "T2", Symbol: "GBPUSD", Direction: event.Buy, Lots: decimal.MustParse("0.20", lots), OpenPrice: decimal.MustParse("1.26", price)})
	add(event.TradeClose, event.TradeClosePayload{Ticket: "T2", ClosePrice: decimal.MustParse("1.25", price), Profit: decimal.MustParse("-200.00", cents), Swap: decimal.MustParse("-2.50", cents), Commission: decimal.MustParse("-7.00", cents)})
	add(event.Snapshot, event.SnapshotPayload{Balance: decimal.MustParse("14810.80", cents), Equity: decimal.MustParse("14810.80", cents)})

	return evs
}

func mustSigner(t *testing.T) *manifest.ManifestSigner {
	t.Helper()
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	s, err := manifest.NewManifestSigner(priv)
	if err != nil {
		t.Fatalf("NewManifestSigner: %v", err)
	}
	return s
}

func TestGenerateProducesVerifiableManifest(t *testing.T) {
	events := buildWorkedExample(t)
	signer := mustSigner(t)

	rpt, err := Generate(events, "inst-report", signer, 1700001000)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}

	bodyBytes, err := canonical.MarshalValue(rpt.Body)
	if err != nil {
		t.Fatalf("MarshalValue: %v", err)
	}
	wantHash := sha256.Sum256(bodyBytes)

	if rpt.Manifest.ReportBodyHash != hex.EncodeToString(wantHash[:]) {
		t.Errorf("reportBodyHash mismatch: got %s, want %s", rpt.Manifest.ReportBodyHash, hex.EncodeToString(wantHash[:]))
	}

	if err := manifest.VerifySignature(rpt.Manifest, wantHash); err != nil {
		t.Errorf("VerifySignature: %v", err)
	}

	eventHashes := make([][]byte, len(events))
	for i, e := range events {
		eventHashes[i] = []byte(e.EventHash)
	}
	wantRoot := canonical.HashConcat(eventHashes...)
	if rpt.Manifest.LedgerRootHash != wantRoot {
		t.Errorf("ledgerRootHash = %s, want %s", rpt.Manifest.LedgerRootHash, wantRoot)
	}

	if rpt.Manifest.FirstEventHash != events[0].EventHash {
		t.Errorf("firstEventHash = %s, want %s", rpt.Manifest.FirstEventHash, events[0].EventHash)
	}
	if rpt.Manifest.LastEventHash != events[len(events)-1].EventHash {
		t.Errorf("lastEventHash = %s, want %s", rpt.Manifest.LastEventHash, events[len(events)-1].EventHash)
	}
	if rpt.Manifest.FromSeqNo != 1 || rpt.Manifest.ToSeqNo != uint64(len(events)) {
		t.Errorf("seqNo range = [%d,%d], want [1,%d]", rpt.Manifest.FromSeqNo, rpt.Manifest.ToSeqNo, len(events))
	}
}

func TestGenerateLevelIsLedgerWithoutBrokerEvidence(t *testing.T) {
	events := buildWorkedExample(t)
	rpt, err := Generate(events, "inst-report", mustSigner(t), 1700001000)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if rpt.VerificationLevel != L1Ledger {
		t.Errorf("verificationLevel = %s, want %s", rpt.VerificationLevel, L1Ledger)
	}
	if !rpt.Body.Audit.ChainVerified {
		t.Error("audit.chainVerified = false, want true for an unbroken chain")
	}
}

func TestGenerateDetectsBrokenChain(t *testing.T) {
	events := buildWorkedExample(t)
	events[3].PrevHash = "tampered"

	rpt, err := Generate(events, "inst-report", mustSigner(t), 1700001000)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if rpt.Body.Audit.ChainVerified {
		t.Error("audit.chainVerified = true, want false for a tampered prevHash")
	}
	if rpt.VerificationLevel != L0None {
		t.Errorf("verificationLevel = %s, want %s", rpt.VerificationLevel, L0None)
	}
}

func TestGenerateEmptyRange(t *testing.T) {
	rpt, err := Generate(nil, "inst-report", mustSigner(t), 1700001000)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if rpt.Manifest.FromSeqNo != 0 || rpt.Manifest.ToSeqNo != 0 {
		t.Errorf("empty range should have zero seqNos, got [%d,%d]", rpt.Manifest.FromSeqNo, rpt.Manifest.ToSeqNo)
	}
	if rpt.Manifest.FirstEventHash != "" || rpt.Manifest.LastEventHash != "" {
		t.Error("empty range should have empty event hashes")
	}
}
