package curve

import "errors"

var (
	ErrDustAmount            = errors.New("amount below dust threshold")
	ErrInsufficientAmountOut = errors.New("amount out is smaller than required amount")
	ErrExcessivePriceImpact  = errors.New("price impact exceeds limit")
	ErrInsufficientLiquidity = errors.New("reserve would fall below liquidity floor")
	ErrZeroReserves          = errors.New("curve has zero reserves")
	ErrInvalidDirection      = errors.New("invalid trade direction")

	ErrCurveCompleted   = errors.New("curve limit reached")
	ErrCurveNotComplete = errors.New("curve is not completed")
	ErrAlreadyMigrated  = errors.New("curve already migrated")
)
