// Package ledger holds the fixed-point arithmetic used for token amounts.
//
// Amounts are unsigned 256-bit integers counted in the token's smallest unit,
// the same domain as an ERC-20 balance. Nothing in this package performs
// floating point math.
package ledger

import (
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/holiman/uint256"
)

// ErrOverflow is returned when a sum leaves the 256-bit amount domain.
var ErrOverflow = errors.New("amount overflow")

// ErrInvalidAmountFormat is returned when text cannot be parsed as an amount.
var ErrInvalidAmountFormat = errors.New("invalid amount format")

// Amount is a token quantity in smallest units. The zero value is 0.
// Amount is a comparable value type; == compares quantities.
type Amount struct {
	v uint256.Int
}

// Zero is the zero amount.
var Zero Amount

// MaxAmount is the largest representable amount, 2^256-1.
var MaxAmount = func() Amount {
	var a Amount
	a.v.SetAllOne()
	return a
}()

// NewAmount builds an amount from a uint64.
func NewAmount(units uint64) Amount {
	var a Amount
	a.v.SetUint64(units)
	return a
}

// ParseAmount parses a base-10 integer string.
func ParseAmount(s string) (Amount, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Zero, fmt.Errorf("%w: empty", ErrInvalidAmountFormat)
	}
	if s[0] == '+' || s[0] == '-' {
		return Zero, fmt.Errorf("%w: %q", ErrInvalidAmountFormat, s)
	}
	var a Amount
	if err := a.v.SetFromDecimal(s); err != nil {
		return Zero, fmt.Errorf("%w: %q", ErrInvalidAmountFormat, s)
	}
	return a, nil
}

// MustParseAmount is ParseAmount for constants and tests.
func MustParseAmount(s string) Amount {
	a, err := ParseAmount(s)
	if err != nil {
		panic(err)
	}
	return a
}

// FromBig converts a big.Int. Negative values and values wider than 256 bits
// are rejected.
func FromBig(b *big.Int) (Amount, error) {
	if b == nil {
		return Zero, nil
	}
	if b.Sign() < 0 {
		return Zero, fmt.Errorf("%w: negative value", ErrInvalidAmountFormat)
	}
	v, overflow := uint256.FromBig(b)
	if overflow {
		return Zero, ErrOverflow
	}
	return Amount{v: *v}, nil
}

// Big returns the amount as a newly allocated big.Int.
func (a Amount) Big() *big.Int {
	return a.v.ToBig()
}

// IsZero reports whether the amount is 0.
func (a Amount) IsZero() bool {
	return a.v.IsZero()
}

// Cmp compares a and b and returns -1, 0 or +1.
func (a Amount) Cmp(b Amount) int {
	return a.v.Cmp(&b.v)
}

// LessThan reports whether a < b.
func (a Amount) LessThan(b Amount) bool {
	return a.v.Lt(&b.v)
}

// String renders the amount in base 10.
func (a Amount) String() string {
	return a.v.Dec()
}

// MarshalText encodes the amount as a base-10 string so JSON payloads never
// lose precision through float64.
func (a Amount) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

// UnmarshalText accepts a base-10 string.
func (a *Amount) UnmarshalText(text []byte) error {
	parsed, err := ParseAmount(string(text))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}
