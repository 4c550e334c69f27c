package curve

import (
	"github.com/shopspring/decimal"

	"github.com/rovshanmuradov/bondingcurve/internal/fixedmath"
)

// FormatSol renders base units as a decimal SOL string.
func FormatSol(lamports uint64) string {
	return decimal.NewFromUint64(lamports).Shift(-SolDecimals).String()
}

// FormatTokens renders token units as a decimal token string.
func FormatTokens(units uint64) string {
	return decimal.NewFromUint64(units).Shift(-TokenDecimals).String()
}

// PriceInSol converts a fixed-point price (base units per token unit) into SOL
// per whole token.
func PriceInSol(price uint64) decimal.Decimal {
	return decimal.NewFromUint64(price).
		Div(decimal.NewFromUint64(fixedmath.Precision)).
		Shift(TokenDecimals - SolDecimals)
}

// ParseSol converts a decimal SOL amount into base units, truncating any
// digits below one lamport.
func ParseSol(s string) (uint64, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, err
	}
	return toUnits(d, SolDecimals)
}

// ParseTokens converts a decimal token amount into token units.
func ParseTokens(s string) (uint64, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, err
	}
	return toUnits(d, TokenDecimals)
}

func toUnits(d decimal.Decimal, decimals int32) (uint64, error) {
	if d.IsNegative() {
		return 0, fixedmath.ErrMathOverflow
	}
	units := d.Shift(decimals).Truncate(0)
	bi := units.BigInt()
	if !bi.IsUint64() {
		return 0, fixedmath.ErrMathOverflow
	}
	return bi.Uint64(), nil
}
