package ledger

import "github.com/holiman/uint256"

// Add returns a+b, or ErrOverflow when the sum exceeds MaxAmount.
func Add(a, b Amount) (Amount, error) {
	var sum Amount
	if _, overflow := sum.v.AddOverflow(&a.v, &b.v); overflow {
		return Zero, ErrOverflow
	}
	return sum, nil
}

// Sub returns a-b, or ErrOverflow when b > a.
func Sub(a, b Amount) (Amount, error) {
	var diff Amount
	if _, underflow := diff.v.SubOverflow(&a.v, &b.v); underflow {
		return Zero, ErrOverflow
	}
	return diff, nil
}

var hundred = uint256.NewInt(100)

// PercentOf returns min(raised*100/target, 100) truncated toward zero.
// A zero target yields 0. The intermediate product is computed at 512 bits,
// so raised values near MaxAmount do not wrap.
func PercentOf(raised, target Amount) uint64 {
	if target.IsZero() {
		return 0
	}
	if !raised.LessThan(target) {
		return 100
	}
	var pct uint256.Int
	// raised < target, so the quotient is below 100 and cannot overflow.
	pct.MulDivOverflow(&raised.v, hundred, &target.v)
	return pct.Uint64()
}
