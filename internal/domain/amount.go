package domain

import (
	"database/sql/driver"
	"fmt"
	"math/big"
	"strconv"
	"strings"

	"github.com/holiman/uint256"
)

// Amount is a non-negative stake or payout in base units (wei on the default
// network). It is a 256-bit unsigned integer so that on-chain quantities fit
// without loss; arithmetic reports overflow instead of wrapping.
type Amount struct {
	v uint256.Int
}

// NewAmount returns an Amount holding n base units.
func NewAmount(n uint64) Amount {
	var a Amount
	a.v.SetUint64(n)
	return a
}

// ParseAmount parses a base-10 integer string such as "1000000000000000000".
// Leading "+" signs, fractions and negative values are rejected.
func ParseAmount(s string) (Amount, error) {
	s = strings.TrimSpace(s)
	if s == "" || strings.HasPrefix(s, "+") || strings.HasPrefix(s, "-") {
		return Amount{}, fmt.Errorf("amount %q: %w", s, ErrInvalidInput)
	}
	var a Amount
	if err := a.v.SetFromDecimal(s); err != nil {
		return Amount{}, fmt.Errorf("amount %q: %v: %w", s, err, ErrInvalidInput)
	}
	return a, nil
}

// AmountFromBig converts a big.Int, failing on negative or >256-bit values.
func AmountFromBig(b *big.Int) (Amount, error) {
	if b == nil || b.Sign() < 0 {
		return Amount{}, fmt.Errorf("amount %v: %w", b, ErrInvalidInput)
	}
	var a Amount
	if overflow := a.v.SetFromBig(b); overflow {
		return Amount{}, fmt.Errorf("amount %v exceeds 256 bits: %w", b, ErrInvalidInput)
	}
	return a, nil
}

// IsZero reports whether the amount is zero.
func (a Amount) IsZero() bool { return a.v.IsZero() }

// Cmp compares a and b and returns -1, 0 or +1.
func (a Amount) Cmp(b Amount) int { return a.v.Cmp(&b.v) }

// Add returns a+b and whether the sum overflowed 256 bits.
func (a Amount) Add(b Amount) (Amount, bool) {
	var out Amount
	_, overflow := out.v.AddOverflow(&a.v, &b.v)
	return out, overflow
}

// Sub returns a-b and whether the subtraction underflowed.
func (a Amount) Sub(b Amount) (Amount, bool) {
	var out Amount
	_, underflow := out.v.SubOverflow(&a.v, &b.v)
	return out, underflow
}

// MulDiv returns floor(a*m/d) computed with a 512-bit intermediate, and
// whether the quotient overflowed 256 bits. Division by zero yields zero and
// overflow=true.
func (a Amount) MulDiv(m, d Amount) (Amount, bool) {
	if d.IsZero() {
		return Amount{}, true
	}
	var out Amount
	_, overflow := out.v.MulDivOverflow(&a.v, &m.v, &d.v)
	return out, overflow
}

// Big returns the amount as a newly allocated big.Int.
func (a Amount) Big() *big.Int { return a.v.ToBig() }

// Uint64 returns the amount truncated to 64 bits and whether it fit.
func (a Amount) Uint64() (uint64, bool) { return a.v.Uint64(), a.v.IsUint64() }

// String returns the base-10 representation.
func (a Amount) String() string { return a.v.Dec() }

// MarshalText implements encoding.TextMarshaler.
func (a Amount) MarshalText() ([]byte, error) { return []byte(a.v.Dec()), nil }

// UnmarshalText implements encoding.TextUnmarshaler.
func (a *Amount) UnmarshalText(text []byte) error {
	parsed, err := ParseAmount(string(text))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

// MarshalJSON encodes the amount as a quoted decimal string so that values
// above 2^53 survive JavaScript clients.
func (a Amount) MarshalJSON() ([]byte, error) {
	return []byte(strconv.Quote(a.v.Dec())), nil
}

// UnmarshalJSON accepts either a quoted decimal string or a bare integer.
func (a *Amount) UnmarshalJSON(data []byte) error {
	s := string(data)
	if s == "null" {
		*a = Amount{}
		return nil
	}
	if unq, err := strconv.Unquote(s); err == nil {
		s = unq
	}
	return a.UnmarshalText([]byte(s))
}

// Value implements driver.Valuer. Amounts are stored as decimal text.
func (a Amount) Value() (driver.Value, error) { return a.v.Dec(), nil }

// Scan implements sql.Scanner for decimal text, byte and integer columns.
func (a *Amount) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*a = Amount{}
		return nil
	case string:
		return a.UnmarshalText([]byte(v))
	case []byte:
		return a.UnmarshalText(v)
	case int64:
		if v < 0 {
			return fmt.Errorf("amount: negative column value %d", v)
		}
		*a = NewAmount(uint64(v))
		return nil
	default:
		return fmt.Errorf("amount: unsupported column type %T", src)
	}
}
