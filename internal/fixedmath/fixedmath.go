// Package fixedmath implements deterministic unsigned fixed-point arithmetic
// scaled by Precision. Every operation reports overflow and division by zero
// as an error instead of panicking, because the callers settle real balances.
//
// Intermediates are carried in 256-bit integers so that a product of two
// 64-bit operands can never wrap before it is scaled back down.
package fixedmath

import (
	"errors"
	"math"

	"github.com/holiman/uint256"
)

const (
	// Precision is the fixed-point scale: Precision represents 1.0.
	Precision uint64 = 1_000_000_000_000

	// FeePrecision is the denominator of fee and percentage rates (10000 = 100%).
	FeePrecision uint64 = 10_000

	// BpsPrecision is the denominator of basis-point values.
	BpsPrecision uint64 = 10_000

	// Ln2 is ln(2) scaled by Precision.
	Ln2 uint64 = 693_147_180_560

	// MaxExpInput is the largest argument for which Exp(x) still fits in a
	// uint64 once scaled: ln(2^64 / Precision) * Precision, rounded down.
	MaxExpInput uint64 = 16_730_000_000_000

	maxSeriesTerms = 24
)

var (
	// ErrMathOverflow is returned when a result or intermediate does not fit.
	ErrMathOverflow = errors.New("math overflow")
	// ErrDivisionByZero is returned for a zero divisor or a zero log/pow operand.
	ErrDivisionByZero = errors.New("division by zero")
)

// Mul returns a*b/Precision, truncated.
func Mul(a, b uint64) (uint64, error) {
	return MulDiv(a, b, Precision)
}

// Div returns a*Precision/b, truncated.
func Div(a, b uint64) (uint64, error) {
	if b == 0 {
		return 0, ErrDivisionByZero
	}
	return MulDiv(a, Precision, b)
}

// MulDiv returns a*b/d rounded down, computed with a 256-bit intermediate.
func MulDiv(a, b, d uint64) (uint64, error) {
	if d == 0 {
		return 0, ErrDivisionByZero
	}
	prod, overflow := new(uint256.Int).MulOverflow(uint256.NewInt(a), uint256.NewInt(b))
	if overflow {
		return 0, ErrMathOverflow
	}
	prod.Div(prod, uint256.NewInt(d))
	if !prod.IsUint64() {
		return 0, ErrMathOverflow
	}
	return prod.Uint64(), nil
}

// FromRatio converts num/den into a fixed-point value.
func FromRatio(num, den uint64) (uint64, error) {
	return MulDiv(num, Precision, den)
}

// FeeOf returns amount*rate/FeePrecision rounded down. The rate must not
// exceed FeePrecision, which keeps the fee at or below the amount.
func FeeOf(amount, rate uint64) (uint64, error) {
	if rate > FeePrecision {
		return 0, ErrMathOverflow
	}
	return MulDiv(amount, rate, FeePrecision)
}

// Add is a checked uint64 addition.
func Add(a, b uint64) (uint64, error) {
	if a > math.MaxUint64-b {
		return 0, ErrMathOverflow
	}
	return a + b, nil
}

// Sub is a checked uint64 subtraction; underflow is reported as overflow.
func Sub(a, b uint64) (uint64, error) {
	if b > a {
		return 0, ErrMathOverflow
	}
	return a - b, nil
}

// DeviationBps returns |aNum/aDen - bNum/bDen| / (bNum/bDen) in basis points,
// rounded down. It is used to compare two prices expressed as ratios without
// first truncating either of them.
func DeviationBps(aNum, aDen, bNum, bDen uint64) (uint64, error) {
	if aDen == 0 || bDen == 0 || bNum == 0 {
		return 0, ErrDivisionByZero
	}
	// a/b - 1 = (aNum*bDen - bNum*aDen) / (bNum*aDen)
	left := new(uint256.Int).Mul(uint256.NewInt(aNum), uint256.NewInt(bDen))
	right := new(uint256.Int).Mul(uint256.NewInt(bNum), uint256.NewInt(aDen))

	diff := new(uint256.Int)
	if left.Gt(right) {
		diff.Sub(left, right)
	} else {
		diff.Sub(right, left)
	}

	diff.Mul(diff, uint256.NewInt(BpsPrecision))
	diff.Div(diff, right)
	if !diff.IsUint64() {
		return math.MaxUint64, nil
	}
	return diff.Uint64(), nil
}
