package fixedmath

import "math"

// Ln returns the natural logarithm of x as a signed fixed-point value.
//
// The argument is scaled by powers of two into [1, 2) and the shift count is
// folded back as count*ln(2). The remaining mantissa m is evaluated with the
// series
//
//	ln(m) = 2 * (y + y^3/3 + y^5/5 + ...),  y = (m-1)/(m+1)
//
// which converges in a handful of terms because |y| < 1/3.
func Ln(x uint64) (int64, error) {
	if x == 0 {
		return 0, ErrDivisionByZero
	}
	if x < Precision {
		var shifts uint64
		m := x
		for m < Precision {
			m <<= 1
			shifts++
		}
		v, err := lnAtLeastOne(m)
		if err != nil {
			return 0, err
		}
		return v - int64(shifts*Ln2), nil
	}
	return lnAtLeastOne(x)
}

func lnAtLeastOne(x uint64) (int64, error) {
	var shifts uint64
	m := x
	for m >= 2*Precision {
		m >>= 1
		shifts++
	}

	y, err := Div(m-Precision, m+Precision)
	if err != nil {
		return 0, err
	}
	y2, err := Mul(y, y)
	if err != nil {
		return 0, err
	}

	var sum uint64
	term := y
	for n := uint64(0); n < maxSeriesTerms && term > 0; n++ {
		sum += term / (2*n + 1)
		if term, err = Mul(term, y2); err != nil {
			return 0, err
		}
	}

	return int64(shifts*Ln2 + 2*sum), nil
}

// Exp returns e^x for a signed fixed-point x.
//
// The argument is reduced to x = k*ln(2) + r with 0 <= r < ln(2), e^r is summed
// as a truncated Taylor series and the result is shifted by k. Positive
// arguments above MaxExpInput fail with ErrMathOverflow; large negative
// arguments underflow to zero.
func Exp(x int64) (uint64, error) {
	if x == 0 {
		return Precision, nil
	}

	negative := x < 0
	var mag uint64
	if negative {
		mag = uint64(-(x + 1)) + 1
	} else {
		mag = uint64(x)
	}
	if !negative && mag > MaxExpInput {
		return 0, ErrMathOverflow
	}

	k := mag / Ln2
	r := mag - k*Ln2

	e, err := expSeries(r)
	if err != nil {
		return 0, err
	}

	if negative {
		inv, err := Div(Precision, e)
		if err != nil {
			return 0, err
		}
		if k >= 64 {
			return 0, nil
		}
		return inv >> k, nil
	}

	if k >= 64 || e > math.MaxUint64>>k {
		return 0, ErrMathOverflow
	}
	return e << k, nil
}

// expSeries sums r^i/i! for a fixed-point r in [0, ln 2).
func expSeries(r uint64) (uint64, error) {
	sum := Precision
	term := Precision
	for i := uint64(1); i <= maxSeriesTerms; i++ {
		var err error
		if term, err = Mul(term, r); err != nil {
			return 0, err
		}
		term /= i
		if term == 0 {
			break
		}
		if sum, err = Add(sum, term); err != nil {
			return 0, err
		}
	}
	return sum, nil
}

// Pow returns base^exp where both operands are fixed-point values.
//
// Whole exponents use square-and-multiply with renormalisation after every
// product. Fractional exponents are evaluated as exp(exp * ln(base)).
func Pow(base, exp uint64) (uint64, error) {
	if base == 0 {
		return 0, ErrDivisionByZero
	}
	if exp == 0 || base == Precision {
		return Precision, nil
	}
	if exp%Precision == 0 {
		return powInt(base, exp/Precision)
	}

	lnBase, err := Ln(base)
	if err != nil {
		return 0, err
	}

	negative := lnBase < 0
	mag := uint64(lnBase)
	if negative {
		mag = uint64(-lnBase)
	}
	scaled, err := Mul(mag, exp)
	if err != nil {
		return 0, err
	}
	if scaled > math.MaxInt64 {
		if negative {
			return 0, nil
		}
		return 0, ErrMathOverflow
	}
	if negative {
		return Exp(-int64(scaled))
	}
	return Exp(int64(scaled))
}

func powInt(base, n uint64) (uint64, error) {
	result := Precision
	b := base
	for n > 0 {
		var err error
		if n&1 == 1 {
			if result, err = Mul(result, b); err != nil {
				return 0, err
			}
		}
		n >>= 1
		if n > 0 {
			if b, err = Mul(b, b); err != nil {
				return 0, err
			}
		}
	}
	return result, nil
}
