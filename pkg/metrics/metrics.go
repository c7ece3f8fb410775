// Package metrics computes the investor statistics of §4.H — Sharpe,
// Sortino, Calmar, profit factor, and consecutive win/loss streaks — over
// a replayed instance's closed trades and drawdown series.
//
// No library in the example pack offers these particular statistics
// (Sharpe/Sortino/Calmar are a narrow enough domain that none of the
// pack's dependencies cover them); this package is necessarily built on
// the standard library's math package. Intermediate values are float64;
// each final statistic is converted back to a canonical decimal via
// pkg/decimal rather than left as a float.
package metrics

import (
	"encoding/json"
	"math"

	"github.com/trackrecord/ledger/pkg/decimal"
	"github.com/trackrecord/ledger/pkg/replay"
)

// Statistics is the canonical-decimal-string statistics block of a
// report body.
type Statistics struct {
	Sharpe            decimal.D `json:"sharpe"`
	Sortino           decimal.D `json:"sortino"`
	Calmar            decimal.D `json:"calmar"`
	ProfitFactor      decimal.D `json:"profitFactor"`
	ProfitFactorIsInf bool      `json:"profitFactorIsInf"` // true when grossLoss==0 && grossProfit>0; MarshalJSON then emits InfSentinel for profitFactor instead of this placeholder zero
	ConsecutiveWins   int       `json:"consecutiveWins"`
	ConsecutiveLosses int       `json:"consecutiveLosses"`
}

// InfSentinel is the canonical JSON string the report body serializes in
// place of a non-finite profit factor (§9 open question: the source
// formats this as the illegal JSON token Infinity; we choose the string
// "inf" and document it here, never a floating-point infinity).
const InfSentinel = "inf"

// statisticsAlias has Statistics' fields without its MarshalJSON method,
// so MarshalJSON below can delegate to the default encoder without recursing.
type statisticsAlias Statistics

// MarshalJSON emits profitFactor as InfSentinel when ProfitFactorIsInf is
// set, rather than the placeholder zero value Compute leaves in that field.
func (s Statistics) MarshalJSON() ([]byte, error) {
	if !s.ProfitFactorIsInf {
		return json.Marshal(statisticsAlias(s))
	}
	return json.Marshal(struct {
		statisticsAlias
		ProfitFactor string `json:"profitFactor"`
	}{statisticsAlias: statisticsAlias(s), ProfitFactor: InfSentinel})
}

// UnmarshalJSON accepts InfSentinel in place of a decimal string for
// profitFactor, the inverse of MarshalJSON's substitution.
func (s *Statistics) UnmarshalJSON(b []byte) error {
	var probe struct {
		ProfitFactor json.RawMessage `json:"profitFactor"`
	}
	if err := json.Unmarshal(b, &probe); err != nil {
		return err
	}

	var isInf bool
	if len(probe.ProfitFactor) > 0 {
		var sentinel string
		if err := json.Unmarshal(probe.ProfitFactor, &sentinel); err == nil && sentinel == InfSentinel {
			isInf = true
		}
	}

	if !isInf {
		return json.Unmarshal(b, (*statisticsAlias)(s))
	}

	var withoutProfitFactor struct {
		statisticsAlias
		ProfitFactor json.RawMessage `json:"profitFactor"`
	}
	if err := json.Unmarshal(b, &withoutProfitFactor); err != nil {
		return err
	}
	*s = Statistics(withoutProfitFactor.statisticsAlias)
	s.ProfitFactor = decimal.Zero(decimal.ScalePercent)
	s.ProfitFactorIsInf = true
	return nil
}

// Compute derives the statistics block from a replayed instance's closed
// trades and final drawdown figures.
func Compute(trades []replay.ClosedTrade, maxDrawdownAbs decimal.D, balance decimal.D, cumulativeCashflow decimal.D) Statistics {
	netProfits := make([]float64, len(trades))
	grossProfit := decimal.Zero(decimal.ScaleCents)
	grossLoss := decimal.Zero(decimal.ScaleCents)
	for i, tr := range trades {
		netProfits[i] = tr.NetProfit.Float64()
		// Profit factor is computed from the trade's raw profit (before
		// swap/commission), matching the worked example's expected
		// 0.1250 for gross 25.00/200.00 rather than net 20.30/209.50.
		if tr.Profit.Sign() > 0 {
			grossProfit = grossProfit.Add(tr.Profit)
		} else if tr.Profit.Sign() < 0 {
			grossLoss = grossLoss.Add(tr.Profit.Neg())
		}
	}

	st := Statistics{
		Sharpe:  sharpe(netProfits),
		Sortino: sortino(netProfits),
		Calmar:  calmar(balance, cumulativeCashflow, maxDrawdownAbs),
	}

	if grossLoss.IsZero() {
		if grossProfit.Sign() > 0 {
			st.ProfitFactorIsInf = true
			st.ProfitFactor = decimal.Zero(decimal.ScalePercent)
		} else {
			st.ProfitFactor = decimal.Zero(decimal.ScalePercent)
		}
	} else {
		st.ProfitFactor = grossProfit.DivHighPrecision(grossLoss, 16).AtScale(decimal.ScalePercent)
	}

	st.ConsecutiveWins, st.ConsecutiveLosses = streaks(trades)
	return st
}

func mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	sum := 0.0
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

// sampleStddev is the sample standard deviation (n-1 denominator).
func sampleStddev(xs []float64, m float64) float64 {
	if len(xs) < 2 {
		return 0
	}
	var ss float64
	for _, x := range xs {
		d := x - m
		ss += d * d
	}
	return math.Sqrt(ss / float64(len(xs)-1))
}

func sharpe(netProfits []float64) decimal.D {
	if len(netProfits) < 2 {
		return decimal.Zero(decimal.ScalePercent)
	}
	m := mean(netProfits)
	sd := sampleStddev(netProfits, m)
	if sd == 0 {
		return decimal.Zero(decimal.ScalePercent)
	}
	return decimal.FromFloat(m/sd, decimal.ScalePercent)
}

func sortino(netProfits []float64) decimal.D {
	if len(netProfits) < 2 {
		return decimal.Zero(decimal.ScalePercent)
	}
	m := mean(netProfits)
	var ss float64
	for _, x := range netProfits {
		if x < 0 {
			ss += x * x
		}
	}
	downside := math.Sqrt(ss / float64(len(netProfits)-1))
	if downside == 0 {
		return decimal.Zero(decimal.ScalePercent)
	}
	return decimal.FromFloat(m/downside, decimal.ScalePercent)
}

func calmar(balance, cumulativeCashflow, maxDrawdownAbs decimal.D) decimal.D {
	if maxDrawdownAbs.IsZero() {
		return decimal.Zero(decimal.ScalePercent)
	}
	totalReturn := balance.Sub(cumulativeCashflow)
	return totalReturn.DivHighPrecision(maxDrawdownAbs, 16).AtScale(decimal.ScalePercent)
}

// streaks returns the longest run of consecutive wins and the longest
// run of consecutive losses over the netProfit>=0 boolean stream.
func streaks(trades []replay.ClosedTrade) (wins int, losses int) {
	curWin, curLoss := 0, 0
	for _, tr := range trades {
		if tr.NetProfit.Sign() >= 0 {
			curWin++
			curLoss = 0
		} else {
			curLoss++
			curWin = 0
		}
		if curWin > wins {
			wins = curWin
		}
		if curLoss > losses {
			losses = curLoss
		}
	}
	return wins, losses
}
