package event

import (
	"encoding/json"
	"testing"

	"github.com/trackrecord/ledger/pkg/decimal"
)

func TestBuildCanonicalMergesPayloadAtTopLevel(t *testing.T) {
	payload, err := json.Marshal(SessionStartPayload{
		Broker:  "IC Markets",
		Account: "12345",
		Symbol:  "EURUSD",
		Mode:    Live,
		Balance: decimal.MustParse("10000.00", decimal.ScaleCents),
	})
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	b, err := BuildCanonical("inst-1", SessionStart, 1, Genesis, 1700000000, payload)
	if err != nil {
		t.Fatalf("BuildCanonical: %v", err)
	}
	var m map[string]interface{}
	if err := json.Unmarshal(b, &m); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	for _, k := range []string{"instanceId", "eventType", "seqNo", "prevHash", "timestamp", "broker", "balance"} {
		if _, ok := m[k]; !ok {
			t.Errorf("canonical form missing key %q: %s", k, b)
		}
	}
	if _, ok := m["eventHash"]; ok {
		t.Errorf("canonical form must not include eventHash (self-referential): %s", b)
	}
}

func TestComputeHashDeterministic(t *testing.T) {
	payload, _ := json.Marshal(SnapshotPayload{
		Balance: decimal.MustParse("10000.00", decimal.ScaleCents),
		Equity:  decimal.MustParse("10000.00", decimal.ScaleCents),
	})
	h1, err := ComputeHash("inst-1", Snapshot, 2, Genesis, 1700000001, payload)
	if err != nil {
		t.Fatalf("ComputeHash: %v", err)
	}
	h2, err := ComputeHash("inst-1", Snapshot, 2, Genesis, 1700000001, payload)
	if err != nil {
		t.Fatalf("ComputeHash: %v", err)
	}
	if h1 != h2 {
		t.Fatalf("ComputeHash not deterministic: %s != %s", h1, h2)
	}
	if len(h1) != 64 {
		t.Fatalf("ComputeHash length = %d, want 64", len(h1))
	}
}

func TestValidatePayloadTradeOpenRejectsNonPositiveLots(t *testing.T) {
	payload, _ := json.Marshal(TradeOpenPayload{
		Ticket:    "T1",
		Symbol:    "EURUSD",
		Direction: Buy,
		Lots:      decimal.Zero(decimal.ScaleLots),
		OpenPrice: decimal.MustParse("1.085", decimal.ScalePrice),
	})
	e := Event{EventType: TradeOpen, SeqNo: 3, Payload: payload}
	if err := e.ValidatePayload(); err == nil {
		t.Fatal("expected error for zero lots, got nil")
	}
}

func TestValidatePayloadCashflowRejectsUnknownType(t *testing.T) {
	payload, _ := json.Marshal(map[string]interface{}{
		"type":          "TRANSFER",
		"amount":        "100.00",
		"balanceBefore": "0.00",
		"balanceAfter":  "100.00",
	})
	e := Event{EventType: Cashflow, SeqNo: 5, Payload: payload}
	if err := e.ValidatePayload(); err == nil {
		t.Fatal("expected error for unknown cashflow type, got nil")
	}
}

func TestValidateEnvelopeRejectsBadTimestamp(t *testing.T) {
	e := Event{
		EventType: Snapshot,
		Timestamp: 0,
		PrevHash:  Genesis,
		EventHash: Genesis,
	}
	if err := e.ValidateEnvelope(); err == nil {
		t.Fatal("expected error for zero timestamp, got nil")
	}
}

func TestValidateEnvelopeAcceptsGenesisPrevHash(t *testing.T) {
	e := Event{
		EventType: SessionStart,
		Timestamp: 1,
		PrevHash:  Genesis,
		EventHash: "0000000000000000000000000000000000000000000000000000000000000" + "0ab", // 64 hex chars
	}
	if err := e.ValidateEnvelope(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
