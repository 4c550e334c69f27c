package pool

import (
	"errors"

	"github.com/rovshanmuradov/bondingcurve/internal/fixedmath"
)

// DefaultFeeBps is the AMM's combined LP and protocol fee.
const DefaultFeeBps uint64 = 25

var ErrEmptyPool = errors.New("pool has no liquidity")

// SwapQuote prices a constant-product swap against the pool reserves:
// out = y * a' / (x + a') where a' is the input less the fee.
func (i *Info) SwapQuote(amountIn uint64, baseToQuote bool, feeBps uint64) (uint64, error) {
	x, y := i.QuoteReserve, i.BaseReserve
	if baseToQuote {
		x, y = i.BaseReserve, i.QuoteReserve
	}
	if x == 0 || y == 0 {
		return 0, ErrEmptyPool
	}

	fee, err := fixedmath.FeeOf(amountIn, feeBps)
	if err != nil {
		return 0, err
	}
	net := amountIn - fee
	den, err := fixedmath.Add(x, net)
	if err != nil {
		return 0, err
	}
	return fixedmath.MulDiv(y, net, den)
}
