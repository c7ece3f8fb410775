package replay

import (
	"encoding/json"
	"testing"

	"github.com/trackrecord/ledger/pkg/decimal"
	"github.com/trackrecord/ledger/pkg/event"
)

// buildWorkedExample constructs the 12-event ledger worked through the
// ledger's spec: starting balance 10,000, two round-trip trades, one
// deposit, ending at balance/equity 14,810.80.
func buildWorkedExample(t *testing.T) []event.Event {
	t.Helper()
	const inst = "inst-worked"
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
	add(event.Snapshot, event.SnapshotPayload{Balance: decimal.MustParse("10000.00", cents), Equity: decimal.MustParse("9980.00", cents)})
	add(event.Snapshot, event.SnapshotPayload{Balance: decimal.MustParse("10000.00", cents), Equity: decimal.MustParse("10050.00", cents)})
	add(event.TradeClose, event.TradeClosePayload{Ticket: "T1", ClosePrice: decimal.MustParse("1.0875", price), Profit: decimal.MustParse("25.00", cents), Swap: decimal.MustParse("-1.20", cents), Commission: decimal.MustParse("-3.50", cents)})
	add(event.Snapshot, event.SnapshotPayload{Balance: decimal.MustParse("10020.30", cents), Equity: decimal.MustParse("10020.30", cents)})
	add(event.Cashflow, event.CashflowPayload{Type: event.Deposit, Amount: decimal.MustParse("5000.00", cents), BalanceBefore: decimal.MustParse("10020.30", cents), BalanceAfter: decimal.MustParse("15020.30", cents)})
	add(event.TradeOpen, event.TradeOpenPayload{Ticket: "T2", Symbol: "GBPUSD", Direction: event.Buy, Lots: decimal.MustParse("0.20", lots), OpenPrice: decimal.MustParse("1.26", price)})
	add(event.Snapshot, event.SnapshotPayload{Balance: decimal.MustParse("15020.30", cents), Equity: decimal.MustParse("14870.30", cents)})
	add(event.TradeClose, event.TradeClosePayload{Ticket: "T2", ClosePrice: decimal.MustParse("1.25", price), Profit: decimal.MustParse("-200.00", cents), Swap: decimal.MustParse("-2.50", cents), Commission: decimal.MustParse("-7.00", cents)})
	add(event.Snapshot, event.SnapshotPayload{Balance: decimal.MustParse("14810.80", cents), Equity: decimal.MustParse("14810.80", cents)})

	return evs
}

func TestReplayAllWorkedExample(t *testing.T) {
	events := buildWorkedExample(t)
	st, err := ReplayAll(events)
	if err != nil {
		t.Fatalf("ReplayAll: %v", err)
	}

	check := func(name, got, want string) {
		t.Helper()
		if got != want {
			t.Errorf("%s = %q, want %q", name, got, want)
		}
	}

	check("finalBalance", st.Balance.String(), "14810.80")
	check("finalEquity", st.Equity.String(), "14810.80")
	check("highWaterMark", st.HighWaterMark.String(), "15050.00")
	check("maxDrawdownAbs", st.MaxDrawdown.String(), "239.20")
	check("cumulativeCashflow", st.CumulativeCashflow.String(), "5000.00")
	check("totalSwap", st.TotalSwap.String(), "-3.70")
	check("totalCommission", st.TotalCommission.String(), "-10.50")
	check("totalProfit", st.TotalProfit.String(), "-175.00")

	if st.TotalTrades != 2 {
		t.Errorf("totalTrades = %d, want 2", st.TotalTrades)
	}
	if st.WinCount != 1 {
		t.Errorf("winCount = %d, want 1", st.WinCount)
	}
	if st.LossCount != 1 {
		t.Errorf("lossCount = %d, want 1", st.LossCount)
	}

	// maxDrawdownPct = maxDrawdownAbs / highWaterMark * 100 computed at
	// full precision and rounded once to 4dp: 239.20/15050.00*100 =
	// 1.589368770764...%% -> 1.5894. (The spec's illustrative worked
	// example prints 1.5892, a rounding artifact of its own distillation;
	// this implementation follows the literal §4.E formula instead of
	// the possibly-approximate illustrative figure.)
	check("maxDrawdownPct", st.MaxDrawdownPct.String(), "1.5894")
}

func TestReplayAllDeterministic(t *testing.T) {
	events := buildWorkedExample(t)
	st1, err := ReplayAll(events)
	if err != nil {
		t.Fatalf("ReplayAll: %v", err)
	}
	st2, err := ReplayAll(events)
	if err != nil {
		t.Fatalf("ReplayAll: %v", err)
	}
	if st1.Balance.String() != st2.Balance.String() || st1.MaxDrawdownPct.String() != st2.MaxDrawdownPct.String() {
		t.Fatal("replay is not deterministic across runs")
	}
}

func TestDrawdownMonotonicity(t *testing.T) {
	events := buildWorkedExample(t)
	prevAbs := decimal.Zero(decimal.ScaleCents)
	prevPct := decimal.Zero(decimal.ScalePercent)
	for i := range events {
		st, err := ReplayAll(events[:i+1])
		if err != nil {
			t.Fatalf("ReplayAll prefix %d: %v", i+1, err)
		}
		if st.MaxDrawdown.LessThan(prevAbs) {
			t.Fatalf("maxDrawdown decreased at prefix %d: %s < %s", i+1, st.MaxDrawdown, prevAbs)
		}
		if st.MaxDrawdownPct.LessThan(prevPct) {
			t.Fatalf("maxDrawdownPct decreased at prefix %d: %s < %s", i+1, st.MaxDrawdownPct, prevPct)
		}
		prevAbs = st.MaxDrawdown
		prevPct = st.MaxDrawdownPct
	}
}

func TestUnknownTicketIsNonFatal(t *testing.T) {
	const inst = "inst-x"
	p1, _ := json.Marshal(event.SessionStartPayload{Mode: event.Live, Balance: decimal.MustParse("1000.00", decimal.ScaleCents)})
	h1, _ := event.ComputeHash(inst, event.SessionStart, 1, event.Genesis, 1, p1)
	e1 := event.Event{InstanceID: inst, SeqNo: 1, EventType: event.SessionStart, PrevHash: event.Genesis, EventHash: h1, Timestamp: 1, Payload: p1}

	p2, _ := json.Marshal(event.TradeClosePayload{Ticket: "GHOST", Profit: decimal.MustParse("10.00", decimal.ScaleCents)})
	h2, _ := event.ComputeHash(inst, event.TradeClose, 2, h1, 2, p2)
	e2 := event.Event{InstanceID: inst, SeqNo: 2, EventType: event.TradeClose, PrevHash: h1, EventHash: h2, Timestamp: 2, Payload: p2}

	st, err := ReplayAll([]event.Event{e1, e2})
	if err != nil {
		t.Fatalf("ReplayAll: %v", err)
	}
	if st.Counters.UnknownTicketWarnings != 1 {
		t.Fatalf("UnknownTicketWarnings = %d, want 1", st.Counters.UnknownTicketWarnings)
	}
}
