package bundle

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

const testInstance = "inst-bundle"

func buildChain(t *testing.T) []event.Event {
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

	add(event.SessionStart, event.SessionStartPayload{Mode: event.Paper, Balance: decimal.MustParse("10000.00", cents)})
	add(event.TradeOpen, event.TradeOpenPayload{Ticket: "T1", Symbol: "EURUSD", Direction: event.Buy, Lots: decimal.MustParse("0.10", lots), OpenPrice: decimal.MustParse("1.085", price)})
	add(event.BrokerEvidence, event.BrokerEvidencePayload{
		BrokerTicket: "B1", ExecutionTimestamp: ts, Symbol: "EURUSD",
		Volume: decimal.MustParse("0.10", lots), ExecutionPrice: decimal.MustParse("1.085", price),
		Action: event.BrokerOpen, LinkedTicket: "T1",
	})
	add(event.TradeClose, event.TradeClosePayload{Ticket: "T1", ClosePrice: decimal.MustParse("1.0875", price), Profit: decimal.MustParse("25.00", cents), Swap: decimal.MustParse("-1.20", cents), Commission: decimal.MustParse("-3.50", cents)})

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

func TestAssembleEmbedsOwnVerification(t *testing.T) {
	events := buildChain(t)
	b, err := Assemble(Input{
		InstanceID:  testInstance,
		Events:      events,
		Signer:      mustSigner(t),
		GeneratedAt: 1700001000,
	})
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	if !b.Verification.Verified {
		t.Fatalf("expected embedded verification to report verified=true: %+v", b.Verification.L1)
	}
	if b.Verification.Level != report.L2Broker {
		t.Errorf("level = %s, want %s (one BROKER_EVIDENCE matches T1's open)", b.Verification.Level, report.L2Broker)
	}
	if len(b.BrokerEvidence) != 1 {
		t.Errorf("brokerEvidence entries = %d, want 1", len(b.BrokerEvidence))
	}
}

func TestAssembleReproducibleAcrossCalls(t *testing.T) {
	events := buildChain(t)
	signer := mustSigner(t)
	in := Input{InstanceID: testInstance, Events: events, Signer: signer, GeneratedAt: 1700001000}

	b1, err := Assemble(in)
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	b2, err := Assemble(in)
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	if b1.Report.Manifest.ReportBodyHash != b2.Report.Manifest.ReportBodyHash {
		t.Error("reportBodyHash should be deterministic across assemblies of the same input")
	}
	if b1.Verification.Level != b2.Verification.Level {
		t.Error("verification level should be deterministic across assemblies of the same input")
	}
}
