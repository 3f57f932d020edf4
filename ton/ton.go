package ton

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// NanosPerTON is the number of nanotons in one TON.
const NanosPerTON int64 = 1_000_000_000

var nanoFactor = decimal.NewFromInt(NanosPerTON)

// Parse converts a decimal TON string (e.g. "0.4999") to nanotons.
// Rejects negative amounts and anything finer than 9 decimal places.
func Parse(s string) (int64, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, fmt.Errorf("invalid TON amount %q", s)
	}
	return FromDecimal(d)
}

// FromDecimal converts a decimal TON amount to nanotons.
func FromDecimal(d decimal.Decimal) (int64, error) {
	if d.IsNegative() {
		return 0, fmt.Errorf("negative TON amount %s", d)
	}
	n := d.Mul(nanoFactor)
	if !n.IsInteger() {
		return 0, fmt.Errorf("TON amount %s has sub-nanoton precision", d)
	}
	if !n.BigInt().IsInt64() {
		return 0, fmt.Errorf("TON amount %s out of range", d)
	}
	return n.IntPart(), nil
}

// Format renders nanotons as a decimal TON string with trailing zeros trimmed.
func Format(nanos int64) string {
	return decimal.NewFromInt(nanos).Div(nanoFactor).String()
}

// ToDecimal returns the decimal TON value of a nanoton amount.
func ToDecimal(nanos int64) decimal.Decimal {
	return decimal.NewFromInt(nanos).Div(nanoFactor)
}
