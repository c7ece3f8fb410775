package chain

import (
	"encoding/json"
	"testing"

	"github.com/trackrecord/ledger/pkg/decimal"
	"github.com/trackrecord/ledger/pkg/event"
)

func mkEvent(t *testing.T, instanceID string, seqNo uint64, prevHash string, ts int64, typ event.Type, payload interface{}) event.Event {
	t.Helper()
	p, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	h, err := event.ComputeHash(instanceID, typ, seqNo, prevHash, ts, p)
	if err != nil {
		t.Fatalf("ComputeHash: %v", err)
	}
	return event.Event{
		InstanceID: instanceID,
		SeqNo:      seqNo,
		EventType:  typ,
		PrevHash:   prevHash,
		EventHash:  h,
		Timestamp:  ts,
		Payload:    p,
	}
}

func buildChain(t *testing.T) []event.Event {
	t.Helper()
	const inst = "inst-1"
	e1 := mkEvent(t, inst, 1, event.Genesis, 1700000000, event.SessionStart, event.SessionStartPayload{
		Balance: decimal.MustParse("10000.00", decimal.ScaleCents),
		Mode:    event.Live,
	})
	e2 := mkEvent(t, inst, 2, e1.EventHash, 1700000001, event.Snapshot, event.SnapshotPayload{
		Balance: decimal.MustParse("10000.00", decimal.ScaleCents),
		Equity:  decimal.MustParse("10000.00", decimal.ScaleCents),
	})
	return []event.Event{e1, e2}
}

func TestVerifyChainValid(t *testing.T) {
	events := buildChain(t)
	res := VerifyChain(events, "inst-1")
	if !res.Valid {
		t.Fatalf("expected valid chain, got error: %v", res.Err)
	}
	if res.ChainLength != 2 {
		t.Errorf("ChainLength = %d, want 2", res.ChainLength)
	}
	if res.FirstEventHash != events[0].EventHash || res.LastEventHash != events[1].EventHash {
		t.Errorf("first/last event hash mismatch")
	}
}

func TestVerifyChainEmpty(t *testing.T) {
	res := VerifyChain(nil, "inst-1")
	if !res.Valid || res.ChainLength != 0 {
		t.Fatalf("expected {valid:true, chainLength:0}, got %+v", res)
	}
}

func TestVerifyChainTamperDetected(t *testing.T) {
	events := buildChain(t)
	// Flip a byte in the payload after hashing.
	var p event.SnapshotPayload
	if err := json.Unmarshal(events[1].Payload, &p); err != nil {
		t.Fatal(err)
	}
	p.Balance = decimal.MustParse("99999.00", decimal.ScaleCents)
	tampered, _ := json.Marshal(p)
	events[1].Payload = tampered

	res := VerifyChain(events, "inst-1")
	if res.Valid {
		t.Fatal("expected invalid chain after tamper")
	}
	if res.BreakAtSeqNo != 2 {
		t.Errorf("BreakAtSeqNo = %d, want 2", res.BreakAtSeqNo)
	}
}

func TestVerifyChainOutOfOrderDetectsPrevHashMismatch(t *testing.T) {
	events := buildChain(t)
	events[0], events[1] = events[1], events[0]
	res := VerifyChain(events, "inst-1")
	if res.Valid {
		t.Fatal("expected invalid chain for permuted events")
	}
}
