// Package units converts between base-unit amounts and human-readable coin
// amounts ("1.5" ether for 1500000000000000000 wei).
package units

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/predictbase/marketd/internal/domain"
)

// Format renders a as a whole-coin decimal with trailing zeros trimmed.
func Format(a domain.Amount, decimals int32) string {
	return decimal.NewFromBigInt(a.Big(), -decimals).String()
}

// Parse converts a whole-coin decimal string into base units. Values with
// more fractional digits than decimals, and negative values, are rejected.
func Parse(s string, decimals int32) (domain.Amount, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return domain.Amount{}, fmt.Errorf("units: %q: %v: %w", s, err, domain.ErrInvalidInput)
	}
	if d.Sign() < 0 {
		return domain.Amount{}, fmt.Errorf("units: %q is negative: %w", s, domain.ErrInvalidInput)
	}
	base := d.Shift(decimals)
	if !base.IsInteger() {
		return domain.Amount{}, fmt.Errorf("units: %q has more than %d decimals: %w", s, decimals, domain.ErrInvalidInput)
	}
	return domain.AmountFromBig(base.BigInt())
}
