// Package amount implements the fixed-point base-unit monetary arithmetic
// used throughout the consensus engine. No floating-point value ever
// participates in a consensus computation; all conversions from a decimal
// external representation go through ParseDecimal, which rejects precision
// loss.
package amount

import (
	"math"
	"strconv"

	"github.com/pkg/errors"
)

// Unit is the number of base units per whole unit: 10^-8 precision,
// matching Bitcoin-style "satoshi" scaling.
const Unit = 100_000_000

// MaxSupply is the maximum number of whole units that may ever exist.
const MaxSupply = 121_000_000

// MaxSupplyBaseUnits is MaxSupply expressed in base units: 12.1e15.
const MaxSupplyBaseUnits uint64 = MaxSupply * Unit

// Amount represents a non-negative count of base units. It is the only
// numeric type permitted to flow through consensus arithmetic.
type Amount uint64

// ErrNegative is returned when a decimal string or arithmetic result would
// be negative.
var ErrNegative = errors.New("amount: negative value not permitted")

// ErrExceedsMaxSupply is returned when an amount or arithmetic result would
// exceed MaxSupplyBaseUnits.
var ErrExceedsMaxSupply = errors.New("amount: value exceeds max supply")

// ErrPrecisionLoss is returned when a decimal string carries more than 8
// fractional digits and so cannot be represented exactly in base units.
var ErrPrecisionLoss = errors.New("amount: decimal value has sub base-unit precision")

// ErrOverflow is returned when an arithmetic operation overflows uint64.
var ErrOverflow = errors.New("amount: arithmetic overflow")

// NewAmount validates and returns the Amount, rejecting values above
// MaxSupplyBaseUnits.
func NewAmount(baseUnits uint64) (Amount, error) {
	if baseUnits > MaxSupplyBaseUnits {
		return 0, ErrExceedsMaxSupply
	}
	return Amount(baseUnits), nil
}

// ParseDecimal converts a decimal string (e.g. "1.50000000") into an Amount,
// failing rather than rounding if the string encodes sub base-unit
// precision. This is the only boundary conversion permitted from an
// external float/decimal representation into consensus arithmetic.
func ParseDecimal(s string) (Amount, error) {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, errors.Wrap(err, "amount: malformed decimal")
	}
	if f < 0 {
		return 0, ErrNegative
	}
	if math.IsInf(f, 0) || math.IsNaN(f) {
		return 0, errors.New("amount: non-finite decimal")
	}
	scaled := f * Unit
	rounded := math.Round(scaled)
	if math.Abs(scaled-rounded) > 1e-6 {
		return 0, ErrPrecisionLoss
	}
	if rounded < 0 || rounded > float64(MaxSupplyBaseUnits) {
		return 0, ErrExceedsMaxSupply
	}
	return NewAmount(uint64(rounded))
}

// Add returns a+b, failing if the result would overflow or exceed
// MaxSupplyBaseUnits.
func (a Amount) Add(b Amount) (Amount, error) {
	sum := uint64(a) + uint64(b)
	if sum < uint64(a) {
		return 0, ErrOverflow
	}
	return NewAmount(sum)
}

// Sub returns a-b, failing if b > a (consensus amounts are never negative).
func (a Amount) Sub(b Amount) (Amount, error) {
	if b > a {
		return 0, ErrNegative
	}
	return a - b, nil
}

// Mul returns a*n, failing on overflow or max-supply breach.
func (a Amount) Mul(n uint64) (Amount, error) {
	if n != 0 && uint64(a) > math.MaxUint64/n {
		return 0, ErrOverflow
	}
	return NewAmount(uint64(a) * n)
}

// DivRound returns a/d rounded to the nearest base unit (half away from
// zero), failing on division by zero.
func (a Amount) DivRound(d uint64) (Amount, error) {
	if d == 0 {
		return 0, errors.New("amount: division by zero")
	}
	q := uint64(a) / d
	r := uint64(a) % d
	if r*2 >= d {
		q++
	}
	return NewAmount(q)
}

// Cmp compares a and b: -1, 0, or 1.
func (a Amount) Cmp(b Amount) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

// ToDecimal renders the amount as a fixed 8-decimal-place string, suitable
// only for display at a collaborator boundary, never for re-entry into
// consensus arithmetic.
func (a Amount) ToDecimal() string {
	whole := uint64(a) / Unit
	frac := uint64(a) % Unit
	return strconv.FormatUint(whole, 10) + "." + zeroPad(frac, 8)
}

func zeroPad(v uint64, width int) string {
	s := strconv.FormatUint(v, 10)
	for len(s) < width {
		s = "0" + s
	}
	return s
}

// Sum adds a slice of amounts, failing on overflow or max-supply breach.
func Sum(amounts []Amount) (Amount, error) {
	var total Amount
	var err error
	for _, a := range amounts {
		total, err = total.Add(a)
		if err != nil {
			return 0, err
		}
	}
	return total, nil
}
