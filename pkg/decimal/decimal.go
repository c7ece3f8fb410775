// Package decimal implements the fixed-precision monetary arithmetic used
// throughout the ledger: cents at 2 decimal places, percentages and ratios
// at 4, prices at 8, lots at 2. Every arithmetic operation rounds its
// result to the operand's scale immediately, half away from zero, so two
// independent implementations that perform the same sequence of operations
// produce byte-identical canonical strings.
package decimal

import (
	"encoding/json"
	"fmt"
	"strings"

	shopspring "github.com/shopspring/decimal"
)

// Scale is the number of digits after the decimal point a value is fixed to.
type Scale int32

const (
	ScaleCents   Scale = 2 // balances, profit, swap, commission, HWM, drawdown abs
	ScalePercent Scale = 4 // drawdown pct, TWR, profit factor, ratios
	ScalePrice   Scale = 8 // open/close prices, SL/TP
	ScaleLots    Scale = 2 // lot sizes

	// scaleRaw marks a value parsed off the wire whose scale has not yet
	// been fixed by payload validation. MarshalJSON on a raw value emits
	// the shortest exact decimal representation per §4.B, not a fixed
	// number of places.
	scaleRaw Scale = -1
)

// D is a scale-fixed decimal value.
type D struct {
	v     shopspring.Decimal
	scale Scale
}

// Zero returns 0 fixed at scale.
func Zero(scale Scale) D {
	return D{v: shopspring.Zero, scale: scale}
}

// Parse parses a decimal string and rounds it to scale.
func Parse(s string, scale Scale) (D, error) {
	v, err := shopspring.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return D{}, fmt.Errorf("decimal: parse %q: %w", s, err)
	}
	return D{v: v.Round(int32(scale)), scale: scale}, nil
}

// MustParse is Parse but panics on error; for constants and tests.
func MustParse(s string, scale Scale) D {
	d, err := Parse(s, scale)
	if err != nil {
		panic(err)
	}
	return d
}

// FromFloat builds a decimal from a float64, rounded to scale. Use only at
// trust boundaries (e.g. converting a statistic computed via math.Sqrt back
// into canonical form); never use float64 as the arithmetic representation
// itself.
func FromFloat(f float64, scale Scale) D {
	return D{v: shopspring.NewFromFloat(f).Round(int32(scale)), scale: scale}
}

// FromInt64Minor builds a decimal from an integer count of minor units
// (e.g. cents) at the given scale.
func FromInt64Minor(minor int64, scale Scale) D {
	return D{v: shopspring.New(minor, -int32(scale)), scale: scale}
}

// raw parses a wire value without committing to a scale yet; payload
// validation calls AtScale once the field's scale is known.
func raw(s string) (D, error) {
	v, err := shopspring.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return D{}, fmt.Errorf("decimal: parse %q: %w", s, err)
	}
	return D{v: v, scale: scaleRaw}, nil
}

// AtScale rounds d to scale, fixing it for canonical output.
func (d D) AtScale(scale Scale) D {
	return D{v: d.v.Round(int32(scale)), scale: scale}
}

// Scale reports the value's fixed scale.
func (d D) Scale() Scale { return d.scale }

// Add returns d+o rounded to d's scale. The caller is responsible for
// operating on values of matching scale; mixed-scale addition computes
// the exact sum first and then rounds it to d's scale.
func (d D) Add(o D) D {
	return D{v: d.v.Add(o.v).Round(int32(d.scale)), scale: d.scale}
}

func (d D) Sub(o D) D {
	return D{v: d.v.Sub(o.v).Round(int32(d.scale)), scale: d.scale}
}

func (d D) Mul(o D) D {
	return D{v: d.v.Mul(o.v).Round(int32(d.scale)), scale: d.scale}
}

// Div returns d/o rounded to d's scale. Division by zero yields zero, by
// the convention of this system.
func (d D) Div(o D) D {
	if o.v.IsZero() {
		return Zero(d.scale)
	}
	return D{v: d.v.DivRound(o.v, int32(d.scale)+2).Round(int32(d.scale)), scale: d.scale}
}

// DivHighPrecision divides d by o keeping guardDigits decimal places
// without committing to a final scale. Use this to compose a multi-step
// formula (e.g. ratio * 100) where only the END result has a named
// target scale — rounding at every intermediate step would compound
// error that the spec's per-quantity scale annotation does not intend.
// Division by zero yields zero.
func (d D) DivHighPrecision(o D, guardDigits int32) D {
	if o.v.IsZero() {
		return D{v: shopspring.Zero, scale: scaleRaw}
	}
	return D{v: d.v.DivRound(o.v, guardDigits), scale: scaleRaw}
}

// MulHighPrecision multiplies without rounding, for the same
// formula-composition reason as DivHighPrecision.
func (d D) MulHighPrecision(o D) D {
	return D{v: d.v.Mul(o.v), scale: scaleRaw}
}

func (d D) Neg() D { return D{v: d.v.Neg(), scale: d.scale} }

func (d D) IsZero() bool { return d.v.IsZero() }

func (d D) Sign() int { return d.v.Sign() }

func (d D) Cmp(o D) int { return d.v.Cmp(o.v) }

func (d D) GreaterThan(o D) bool { return d.v.GreaterThan(o.v) }

func (d D) GreaterThanOrEqual(o D) bool { return d.v.GreaterThanOrEqual(o.v) }

func (d D) LessThan(o D) bool { return d.v.LessThan(o.v) }

func (d D) Equal(o D) bool { return d.v.Equal(o.v) }

// Float64 converts to float64 for use in statistics that require
// transcendental functions (sqrt) and for tolerance comparisons. The
// result is never fed back into ledger state.
func (d D) Float64() float64 {
	f, _ := d.v.Float64()
	return f
}

// Max returns whichever of a, b compares greater.
func Max(a, b D) D {
	if a.GreaterThan(b) {
		return a
	}
	return b
}

// Min returns whichever of a, b compares lesser.
func Min(a, b D) D {
	if a.LessThan(b) {
		return a
	}
	return b
}

// Sum adds a slice of same-scale decimals, rounding to scale after each
// addition.
func Sum(ds []D, scale Scale) D {
	total := Zero(scale)
	for _, d := range ds {
		total = total.Add(d)
	}
	return total
}

// String renders the canonical fixed-point form: exactly Scale() digits
// after the point, no scientific notation, "-0.00" normalized to "0.00".
func (d D) String() string {
	if d.scale == scaleRaw {
		return d.v.String()
	}
	s := d.v.StringFixed(int32(d.scale))
	if isNegativeZero(s) {
		return s[1:]
	}
	return s
}

func isNegativeZero(s string) bool {
	if !strings.HasPrefix(s, "-") {
		return false
	}
	for _, c := range s[1:] {
		if c != '0' && c != '.' {
			return false
		}
	}
	return true
}

// MarshalJSON encodes the value as a canonical decimal string, per §6:
// monetary/percentage/price/lots fields are JSON strings, never bare
// floating-point numbers.
func (d D) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

// UnmarshalJSON accepts either a JSON string or a bare JSON number (for
// leniency with hand-written test fixtures) and leaves the scale unset;
// callers MUST call AtScale with the field's expected scale during
// payload validation before treating the value as canonical.
func (d *D) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		v, err := raw(s)
		if err != nil {
			return err
		}
		*d = v
		return nil
	}
	v, err := raw(strings.TrimSpace(string(b)))
	if err != nil {
		return fmt.Errorf("decimal: unmarshal %s: %w", b, err)
	}
	*d = v
	return nil
}
