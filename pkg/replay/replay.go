// Package replay implements the deterministic replay engine: a pure
// function from an ordered event list to the full derived state of a
// trading instance, including the time series an investor report is
// built from. Same events in, byte-identical state out — no wall clock,
// no randomness, no floating-point accumulation.
package replay

import (
	"fmt"
	"sort"
	"time"

	"github.com/trackrecord/ledger/pkg/decimal"
	"github.com/trackrecord/ledger/pkg/event"
)

// OpenPosition mirrors §3's OpenPosition shape.
type OpenPosition struct {
	Ticket    string
	Symbol    string
	Direction event.Direction
	Lots      decimal.D
	OpenPrice decimal.D
	SL        decimal.D
	TP        decimal.D
}

// ClosedTrade is one entry of the replay's trade log, built from the
// matching OpenPosition plus the closing event's fields.
type ClosedTrade struct {
	Ticket         string
	Symbol         string
	Direction      event.Direction
	Lots           decimal.D
	OpenPrice      decimal.D
	ClosePrice     decimal.D
	Profit         decimal.D
	Swap           decimal.D
	Commission     decimal.D
	NetProfit      decimal.D
	CloseReason    string
	OpenTimestamp  int64
	CloseTimestamp int64
}

// Point is one sample of an equity, balance, or drawdown time series.
type Point struct {
	Timestamp int64
	Cause     string
}

// EquityPoint is an equity or balance curve sample.
type EquityPoint struct {
	Point
	Value decimal.D
}

// DrawdownPoint is a drawdown series sample.
type DrawdownPoint struct {
	Point
	Abs decimal.D
	Pct decimal.D
}

// DailyEquity is one day's entry of the dailyEquity map (§4.E).
type DailyEquity struct {
	Date        string
	StartEquity decimal.D
	EndEquity   decimal.D
	Cashflow    decimal.D
	started     bool
}

// DailyReturn is one entry of the TWR series derived from DailyEquity.
type DailyReturn struct {
	Date string
	TWR  decimal.D // percent, 4dp
}

// Counters tallies events by class, including the supplemented
// unknown-ticket-warning counter (additive; does not change §3's Running
// state fields).
type Counters struct {
	SessionStarts         int
	SessionEnds           int
	Snapshots             int
	TradeOpens            int
	TradeCloses           int
	TradeModifies         int
	PartialCloses         int
	Cashflows             int
	BrokerEvidences       int
	BrokerHistoryDigests  int
	ChainRecoveries       int
	UnknownTicketWarnings int
}

// State is the ReplayState of §4.E: the running state of §3 extended
// with the time series a report is built from.
type State struct {
	LastSeqNo     uint64
	LastEventHash string

	Balance                decimal.D
	Equity                 decimal.D
	HighWaterMark          decimal.D
	MaxDrawdown            decimal.D
	MaxDrawdownPct         decimal.D
	TotalTrades            int
	TotalProfit            decimal.D
	TotalSwap              decimal.D
	TotalCommission        decimal.D
	WinCount               int
	LossCount              int
	CumulativeCashflow     decimal.D
	MaxDrawdownDurationSec int64
	DrawdownStartTimestamp int64
	PeakEquityTimestamp    int64

	openPositions    []*OpenPosition
	openPositionIdx  map[string]int
	OpenTradeTimestamps map[string]int64

	EquityCurve    []EquityPoint
	BalanceCurve   []EquityPoint
	DrawdownSeries []DrawdownPoint
	ClosedTrades   []ClosedTrade
	DailyEquity    map[string]*DailyEquity

	Counters Counters

	// UnknownTicketEvents collects the (seqNo, ticket) pairs that the
	// supplemented warn-on-unknown-ticket behavior observed. The ingest
	// layer does not read or log it. Does not affect replay determinism
	// of any other field.
	UnknownTicketEvents []UnknownTicketWarning
}

// UnknownTicketWarning records a TRADE_CLOSE/TRADE_MODIFY/PARTIAL_CLOSE
// referencing a ticket with no open position. Not fatal (§4.E).
type UnknownTicketWarning struct {
	SeqNo  uint64
	Ticket string
}

// NewState returns a zero-valued ReplayState ready for event application.
func NewState() *State {
	return &State{
		Balance:             decimal.Zero(decimal.ScaleCents),
		Equity:              decimal.Zero(decimal.ScaleCents),
		HighWaterMark:       decimal.Zero(decimal.ScaleCents),
		MaxDrawdown:         decimal.Zero(decimal.ScaleCents),
		MaxDrawdownPct:      decimal.Zero(decimal.ScalePercent),
		TotalProfit:         decimal.Zero(decimal.ScaleCents),
		TotalSwap:           decimal.Zero(decimal.ScaleCents),
		TotalCommission:     decimal.Zero(decimal.ScaleCents),
		CumulativeCashflow:  decimal.Zero(decimal.ScaleCents),
		openPositionIdx:     make(map[string]int),
		OpenTradeTimestamps: make(map[string]int64),
		DailyEquity:         make(map[string]*DailyEquity),
	}
}

// OpenPositions returns the currently open positions in insertion order
// (a flat multiset keyed by ticket, per §9 — no back-reference cycles).
func (s *State) OpenPositions() []OpenPosition {
	out := make([]OpenPosition, 0, len(s.openPositions))
	for _, p := range s.openPositions {
		if p != nil {
			out = append(out, *p)
		}
	}
	return out
}

func (s *State) findOpen(ticket string) *OpenPosition {
	i, ok := s.openPositionIdx[ticket]
	if !ok {
		return nil
	}
	return s.openPositions[i]
}

func (s *State) addOpen(p *OpenPosition) {
	s.openPositionIdx[p.Ticket] = len(s.openPositions)
	s.openPositions = append(s.openPositions, p)
}

func (s *State) removeOpen(ticket string) {
	i, ok := s.openPositionIdx[ticket]
	if !ok {
		return
	}
	s.openPositions[i] = nil
	delete(s.openPositionIdx, ticket)
}

var hundred = decimal.MustParse("100", decimal.ScaleCents)

func dayKey(ts int64) string {
	return time.Unix(ts, 0).UTC().Format("2006-01-02")
}

func (s *State) dailyEquityFor(ts int64) *DailyEquity {
	k := dayKey(ts)
	d, ok := s.DailyEquity[k]
	if !ok {
		d = &DailyEquity{
			Date:        k,
			StartEquity: s.Equity,
			EndEquity:   s.Equity,
			Cashflow:    decimal.Zero(decimal.ScaleCents),
		}
		s.DailyEquity[k] = d
	}
	if !d.started {
		d.StartEquity = s.Equity
		d.started = true
	}
	return d
}

func (s *State) emitEquityPoint(ts int64, cause string) {
	s.EquityCurve = append(s.EquityCurve, EquityPoint{Point: Point{Timestamp: ts, Cause: cause}, Value: s.Equity})
}

func (s *State) emitBalancePoint(ts int64, cause string) {
	s.BalanceCurve = append(s.BalanceCurve, EquityPoint{Point: Point{Timestamp: ts, Cause: cause}, Value: s.Balance})
}

func (s *State) emitDrawdownPoint(ts int64) {
	s.DrawdownSeries = append(s.DrawdownSeries, DrawdownPoint{
		Point: Point{Timestamp: ts},
		Abs:   s.MaxDrawdown,
		Pct:   s.MaxDrawdownPct,
	})
}

// updatePeakDrawdown is the algorithm of §4.E, invoked wherever equity
// changes.
func (s *State) updatePeakDrawdown(ts int64) {
	if s.Equity.GreaterThan(s.HighWaterMark) {
		s.HighWaterMark = s.Equity
		s.PeakEquityTimestamp = ts
		if s.DrawdownStartTimestamp > 0 {
			dur := ts - s.DrawdownStartTimestamp
			if dur > s.MaxDrawdownDurationSec {
				s.MaxDrawdownDurationSec = dur
			}
			s.DrawdownStartTimestamp = 0
		}
		return
	}
	if s.HighWaterMark.Sign() > 0 {
		if s.DrawdownStartTimestamp == 0 {
			s.DrawdownStartTimestamp = s.PeakEquityTimestamp
		}
		ddAbs := s.HighWaterMark.Sub(s.Equity).AtScale(decimal.ScaleCents)
		// ddPct = ddAbs / highWaterMark * 100, rounded once to 4dp — the
		// spec names one target scale for this whole expression, so the
		// ratio and the *100 must not each round independently.
		ddPct := ddAbs.DivHighPrecision(s.HighWaterMark, 16).MulHighPrecision(hundred).AtScale(decimal.ScalePercent)
		s.MaxDrawdown = decimal.Max(s.MaxDrawdown, ddAbs)
		s.MaxDrawdownPct = decimal.Max(s.MaxDrawdownPct, ddPct)
		dur := ts - s.DrawdownStartTimestamp
		if dur > s.MaxDrawdownDurationSec {
			s.MaxDrawdownDurationSec = dur
		}
	}
}

// ReplayAll is the pure function of §4.E: sequence of events → full
// derived state. Events MUST already be in seqNo-ascending order; this
// function does not re-sort or re-verify the chain (that is pkg/chain's
// job) but will not panic on a malformed sequence — it simply applies
// each event's semantics in the order given.
func ReplayAll(events []event.Event) (*State, error) {
	s := NewState()
	for _, e := range events {
		if err := s.apply(e); err != nil {
			return s, fmt.Errorf("replay: seqNo %d: %w", e.SeqNo, err)
		}
		s.LastSeqNo = e.SeqNo
		s.LastEventHash = e.EventHash
	}
	return s, nil
}

func (s *State) apply(e event.Event) error {
	switch e.EventType {
	case event.SessionStart:
		return s.applySessionStart(e)
	case event.SessionEnd:
		return s.applySessionEnd(e)
	case event.Snapshot:
		return s.applySnapshot(e)
	case event.TradeOpen:
		return s.applyTradeOpen(e)
	case event.TradeClose:
		return s.applyTradeClose(e)
	case event.TradeModify:
		return s.applyTradeModify(e)
	case event.PartialClose:
		return s.applyPartialClose(e)
	case event.Cashflow:
		return s.applyCashflow(e)
	case event.BrokerEvidence:
		s.Counters.BrokerEvidences++
		return nil
	case event.BrokerHistoryDigest:
		s.Counters.BrokerHistoryDigests++
		return nil
	case event.ChainRecovery:
		s.Counters.ChainRecoveries++
		return nil
	default:
		return fmt.Errorf("unknown event type %q", e.EventType)
	}
}

func (s *State) applySessionStart(e event.Event) error {
	s.Counters.SessionStarts++
	var p event.SessionStartPayload
	if err := e.Decode(&p); err != nil {
		return err
	}
	p.Normalize()
	if s.LastSeqNo <= 1 || s.Balance.IsZero() {
		s.Balance = p.Balance
		s.Equity = p.Balance
		s.HighWaterMark = p.Balance
		s.PeakEquityTimestamp = e.Timestamp
	}
	s.emitEquityPoint(e.Timestamp, string(event.SessionStart))
	s.emitBalancePoint(e.Timestamp, string(event.SessionStart))
	return nil
}

func (s *State) applySessionEnd(e event.Event) error {
	s.Counters.SessionEnds++
	var p event.SessionEndPayload
	if err := e.Decode(&p); err != nil {
		return err
	}
	p.Normalize()
	if !p.FinalBalance.IsZero() || !p.FinalEquity.IsZero() {
		s.Balance = p.FinalBalance
		s.Equity = p.FinalEquity
	}
	s.updatePeakDrawdown(e.Timestamp)
	s.emitEquityPoint(e.Timestamp, string(event.SessionEnd))
	s.emitBalancePoint(e.Timestamp, string(event.SessionEnd))
	s.emitDrawdownPoint(e.Timestamp)
	return nil
}

func (s *State) applySnapshot(e event.Event) error {
	s.Counters.Snapshots++
	var p event.SnapshotPayload
	if err := e.Decode(&p); err != nil {
		return err
	}
	p.Normalize()
	s.Balance = p.Balance
	s.Equity = p.Equity
	s.updatePeakDrawdown(e.Timestamp)
	s.emitEquityPoint(e.Timestamp, string(event.Snapshot))
	s.emitDrawdownPoint(e.Timestamp)
	d := s.dailyEquityFor(e.Timestamp)
	d.EndEquity = s.Equity
	return nil
}

func (s *State) applyTradeOpen(e event.Event) error {
	s.Counters.TradeOpens++
	var p event.TradeOpenPayload
	if err := e.Decode(&p); err != nil {
		return err
	}
	p.Normalize()
	s.addOpen(&OpenPosition{
		Ticket:    p.Ticket,
		Symbol:    p.Symbol,
		Direction: p.Direction,
		Lots:      p.Lots,
		OpenPrice: p.OpenPrice,
		SL:        p.SL,
		TP:        p.TP,
	})
	s.OpenTradeTimestamps[p.Ticket] = e.Timestamp
	return nil
}

func (s *State) applyTradeClose(e event.Event) error {
	s.Counters.TradeCloses++
	var p event.TradeClosePayload
	if err := e.Decode(&p); err != nil {
		return err
	}
	p.Normalize()

	pos := s.findOpen(p.Ticket)
	if pos == nil {
		s.Counters.UnknownTicketWarnings++
		s.UnknownTicketEvents = append(s.UnknownTicketEvents, UnknownTicketWarning{SeqNo: e.SeqNo, Ticket: p.Ticket})
		return nil
	}

	netProfit := p.Profit.Add(p.Swap).Add(p.Commission).AtScale(decimal.ScaleCents)
	s.removeOpen(p.Ticket)

	s.ClosedTrades = append(s.ClosedTrades, ClosedTrade{
		Ticket:         p.Ticket,
		Symbol:         pos.Symbol,
		Direction:      pos.Direction,
		Lots:           pos.Lots,
		OpenPrice:      pos.OpenPrice,
		ClosePrice:     p.ClosePrice,
		Profit:         p.Profit,
		Swap:           p.Swap,
		Commission:     p.Commission,
		NetProfit:      netProfit,
		CloseReason:    p.CloseReason,
		OpenTimestamp:  s.OpenTradeTimestamps[p.Ticket],
		CloseTimestamp: e.Timestamp,
	})

	s.TotalTrades++
	if netProfit.Sign() >= 0 {
		s.WinCount++
	} else {
		s.LossCount++
	}
	s.TotalProfit = s.TotalProfit.Add(p.Profit)
	s.TotalSwap = s.TotalSwap.Add(p.Swap)
	s.TotalCommission = s.TotalCommission.Add(p.Commission)
	s.Balance = s.Balance.Add(netProfit)
	s.Equity = s.Balance

	s.updatePeakDrawdown(e.Timestamp)
	s.emitEquityPoint(e.Timestamp, string(event.TradeClose))
	s.emitBalancePoint(e.Timestamp, string(event.TradeClose))
	s.emitDrawdownPoint(e.Timestamp)
	return nil
}

func (s *State) applyTradeModify(e event.Event) error {
	s.Counters.TradeModifies++
	var p event.TradeModifyPayload
	if err := e.Decode(&p); err != nil {
		return err
	}
	p.Normalize()
	pos := s.findOpen(p.Ticket)
	if pos == nil {
		s.Counters.UnknownTicketWarnings++
		s.UnknownTicketEvents = append(s.UnknownTicketEvents, UnknownTicketWarning{SeqNo: e.SeqNo, Ticket: p.Ticket})
		return nil
	}
	pos.SL = p.NewSL
	pos.TP = p.NewTP
	return nil
}

func (s *State) applyPartialClose(e event.Event) error {
	s.Counters.PartialCloses++
	var p event.PartialClosePayload
	if err := e.Decode(&p); err != nil {
		return err
	}
	p.Normalize()
	pos := s.findOpen(p.Ticket)
	if pos == nil {
		s.Counters.UnknownTicketWarnings++
		s.UnknownTicketEvents = append(s.UnknownTicketEvents, UnknownTicketWarning{SeqNo: e.SeqNo, Ticket: p.Ticket})
		return nil
	}
	pos.Lots = p.RemainingLots
	s.TotalProfit = s.TotalProfit.Add(p.Profit)
	s.Balance = s.Balance.Add(p.Profit)
	s.Equity = s.Balance
	s.updatePeakDrawdown(e.Timestamp)
	s.emitEquityPoint(e.Timestamp, string(event.PartialClose))
	s.emitBalancePoint(e.Timestamp, string(event.PartialClose))
	s.emitDrawdownPoint(e.Timestamp)
	return nil
}

func (s *State) applyCashflow(e event.Event) error {
	s.Counters.Cashflows++
	var p event.CashflowPayload
	if err := e.Decode(&p); err != nil {
		return err
	}
	p.Normalize()

	signed := p.Amount
	if p.Type == event.Withdrawal {
		signed = signed.Neg()
	}
	s.Balance = s.Balance.Add(signed)
	s.Equity = s.Equity.Add(signed)
	s.HighWaterMark = s.HighWaterMark.Add(signed)
	s.CumulativeCashflow = s.CumulativeCashflow.Add(signed)

	d := s.dailyEquityFor(e.Timestamp)
	d.Cashflow = d.Cashflow.Add(signed)

	s.emitEquityPoint(e.Timestamp, string(event.Cashflow))
	s.emitBalancePoint(e.Timestamp, string(event.Cashflow))
	return nil
}

// BuildDailyReturns derives the TWR series from s.DailyEquity, enumerated
// in ascending lexicographic date order (§4.E).
func BuildDailyReturns(s *State) []DailyReturn {
	keys := make([]string, 0, len(s.DailyEquity))
	for k := range s.DailyEquity {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]DailyReturn, 0, len(keys))
	for _, k := range keys {
		d := s.DailyEquity[k]
		numerator := d.EndEquity.Sub(d.StartEquity).Sub(d.Cashflow)
		// twr = (endEquity - startEquity - cashflow) / startEquity * 100,
		// rounded once to 4dp (same composition rule as drawdown pct).
		twr := numerator.DivHighPrecision(d.StartEquity, 16).MulHighPrecision(hundred).AtScale(decimal.ScalePercent)
		out = append(out, DailyReturn{Date: k, TWR: twr})
	}
	return out
}
