package verify

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/json"
	"testing"

	"github.com/trackrecord/ledger/pkg/decimal"
	"github.com/trackrecord/ledger/pkg/event"
	"github.com/trackrecord/ledger/pkg/manifest"
	"github.com/trackrecord/ledger/pkg/report"
)

const testInstance = "inst-verify"

func buildChainWithMode(t *testing.T, mode event.Mode) []event.Event {
	t.Helper()
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
		h, err := event.ComputeHash(testInstance, typ, seq, prev, ts, p)
		if err != nil {
			t.Fatalf("ComputeHash: %v", err)
		}
		evs = append(evs, event.Event{
			InstanceID: testInstance, SeqNo: seq, EventType: typ,
			PrevHash: prev, EventHash: h, Timestamp: ts, Payload: p,
		})
		prev = h
	}

	cents := decimal.ScaleCents
	price := decimal.ScalePrice
	lots := decimal.ScaleLots

	add(event.SessionStart, event.SessionStartPayload{Mode: mode, Balance: decimal.MustParse("10000.00", cents)})
	add(event.TradeOpen, event.TradeOpenPayload{Ticket: "T1", Symbol: "EURUSD", Direction: event.Buy, Lots: decimal.MustParse("0.10", lots), OpenPrice: decimal.MustParse("1.085", price)})
	add(event.TradeClose, event.TradeClosePayload{Ticket: "T1", ClosePrice: decimal.MustParse("1.0875", price), Profit: decimal.MustParse("25.00", cents), Swap: decimal.MustParse("-1.20", cents), Commission: decimal.MustParse("-3.50", cents)})

	return evs
}

func buildChain(t *testing.T) []event.Event {
	return buildChainWithMode(t, event.Paper)
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

func buildBundle(t *testing.T) (Bundle, []event.Event) {
	t.Helper()
	events := buildChain(t)
	signer := mustSigner(t)
	rpt, err := report.Generate(events, testInstance, signer, 1700001000)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	return Bundle{Report: rpt, Events: events}, events
}

func TestVerifyCleanChainIsL1(t *testing.T) {
	b, _ := buildBundle(t)
	result := Verify(b, testInstance, nil)
	if !result.Verified {
		t.Fatalf("expected verified=true, got false: %+v", result.L1)
	}
	if result.Level != report.L1Ledger {
		t.Errorf("level = %s, want %s", result.Level, report.L1Ledger)
	}
	if !result.L1.ChainValid || !result.L1.SignatureValid || !result.L1.LedgerRootValid ||
		!result.L1.BodyHashValid || !result.L1.ReportReproducible || !result.L1.CheckpointsValid {
		t.Errorf("expected all L1 checks to pass: %+v", result.L1)
	}
}

func TestVerifyDetectsTamperedEventHash(t *testing.T) {
	b, _ := buildBundle(t)
	b.Events[1].EventHash = "0000000000000000000000000000000000000000000000000000000000000000"
	result := Verify(b, testInstance, nil)
	if result.L1.ChainValid {
		t.Error("expected chainValid=false for a tampered eventHash")
	}
	if result.Verified {
		t.Error("expected verified=false")
	}
	if result.Level != report.L0None {
		t.Errorf("level = %s, want %s", result.Level, report.L0None)
	}
}

func TestVerifyDetectsTamperedSignature(t *testing.T) {
	b, _ := buildBundle(t)
	b.Report.Manifest.Signature = "00"
	result := Verify(b, testInstance, nil)
	if result.L1.SignatureValid {
		t.Error("expected signatureValid=false for a corrupted signature")
	}
}

func TestVerifyRejectsUntrustedKey(t *testing.T) {
	b, _ := buildBundle(t)
	registry := manifest.NewTrustedKeyRegistry()
	registry.Trust("deadbeef00000000")
	result := Verify(b, testInstance, registry)
	if result.L1.SignatureValid {
		t.Error("expected signatureValid=false when signingKeyVersion is absent from the trusted registry")
	}
}

func TestVerifyAcceptsTrustedKey(t *testing.T) {
	b, _ := buildBundle(t)
	registry := manifest.NewTrustedKeyRegistry()
	registry.Trust(b.Report.Manifest.SigningKeyVersion)
	result := Verify(b, testInstance, registry)
	if !result.L1.SignatureValid {
		t.Error("expected signatureValid=true when signingKeyVersion is present in the trusted registry")
	}
}

func TestVerifyLiveModeCaveat(t *testing.T) {
	events := buildChainWithMode(t, event.Live)
	signer := mustSigner(t)
	rpt, err := report.Generate(events, testInstance, signer, 1700001000)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	result := Verify(Bundle{Report: rpt, Events: events}, testInstance, nil)
	found := false
	for _, c := range result.L1.Caveats {
		if c != "" {
			found = true
		}
	}
	if !found {
		t.Error("expected a LIVE-mode caveat")
	}
}

func TestVerifyEmptyCheckpointsVacuouslyValid(t *testing.T) {
	b, _ := buildBundle(t)
	b.Checkpoints = nil
	result := Verify(b, testInstance, nil)
	if !result.L1.CheckpointsValid {
		t.Error("empty checkpoint list should be vacuously valid")
	}
}

func TestVerifyNoBrokerEvidenceSkipsL2(t *testing.T) {
	b, _ := buildBundle(t)
	result := Verify(b, testInstance, nil)
	if result.L2.Ran {
		t.Error("L2 should not run when no broker evidence or digests are present")
	}
}
