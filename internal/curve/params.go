// =============================
// File: internal/curve/params.go
// =============================
package curve

import (
	"fmt"

	"github.com/rovshanmuradov/bondingcurve/internal/fixedmath"
)

const (
	// DefaultCRRNumerator and DefaultCRRDenominator give a reserve ratio of 0.651.
	DefaultCRRNumerator   uint64 = 6_510
	DefaultCRRDenominator uint64 = 10_000

	// MinBuyAmount is the smallest buy, in base units (0.001 SOL).
	MinBuyAmount uint64 = 1_000_000
	// MinSellAmount is the smallest sell, in token units (0.001 tokens).
	MinSellAmount uint64 = 1_000

	// DefaultMaxPriceImpactBps bounds how far one trade may move the price.
	DefaultMaxPriceImpactBps uint64 = 2_500

	// LamportsPerSol is one unit of the base currency.
	LamportsPerSol uint64 = 1_000_000_000
	// SolDecimals and TokenDecimals are the display decimals of both assets.
	SolDecimals   int32 = 9
	TokenDecimals int32 = 6

	// DefaultMinSolReserve is the virtual base reserve floor.
	DefaultMinSolReserve = LamportsPerSol
)

// Params are the pricing parameters shared by every curve of one deployment.
type Params struct {
	CRRNumerator      uint64 `mapstructure:"crr_numerator" json:"crr_numerator"`
	CRRDenominator    uint64 `mapstructure:"crr_denominator" json:"crr_denominator"`
	MinBuyAmount      uint64 `mapstructure:"min_buy_amount" json:"min_buy_amount"`
	MinSellAmount     uint64 `mapstructure:"min_sell_amount" json:"min_sell_amount"`
	MaxPriceImpactBps uint64 `mapstructure:"max_price_impact_bps" json:"max_price_impact_bps"`
	MinSolReserve     uint64 `mapstructure:"min_sol_reserve" json:"min_sol_reserve"`
}

// DefaultParams returns the canonical curve parameters.
func DefaultParams() Params {
	return Params{
		CRRNumerator:      DefaultCRRNumerator,
		CRRDenominator:    DefaultCRRDenominator,
		MinBuyAmount:      MinBuyAmount,
		MinSellAmount:     MinSellAmount,
		MaxPriceImpactBps: DefaultMaxPriceImpactBps,
		MinSolReserve:     DefaultMinSolReserve,
	}
}

// Validate checks that the parameters describe a usable curve.
func (p Params) Validate() error {
	if p.CRRDenominator == 0 || p.CRRNumerator == 0 {
		return fmt.Errorf("reserve ratio must be positive")
	}
	if p.CRRNumerator > p.CRRDenominator {
		return fmt.Errorf("reserve ratio %d/%d exceeds 1", p.CRRNumerator, p.CRRDenominator)
	}
	if p.MaxPriceImpactBps == 0 || p.MaxPriceImpactBps > fixedmath.BpsPrecision {
		return fmt.Errorf("invalid max price impact: %d bps", p.MaxPriceImpactBps)
	}
	if p.MinSolReserve == 0 {
		return fmt.Errorf("min sol reserve must be positive")
	}
	return nil
}

// crr returns the reserve ratio as a fixed-point value.
func (p Params) crr() (uint64, error) {
	return fixedmath.FromRatio(p.CRRNumerator, p.CRRDenominator)
}

// inverseCRR returns 1/crr as a fixed-point value.
func (p Params) inverseCRR() (uint64, error) {
	return fixedmath.FromRatio(p.CRRDenominator, p.CRRNumerator)
}
