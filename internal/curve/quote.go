// =============================
// File: internal/curve/quote.go
// =============================
package curve

import (
	"fmt"

	"github.com/rovshanmuradov/bondingcurve/internal/fixedmath"
)

// Direction is the side of a trade from the trader's point of view.
type Direction uint8

const (
	// Buy pays base currency and receives tokens.
	Buy Direction = iota
	// Sell pays tokens and receives base currency.
	Sell
)

func (d Direction) String() string {
	switch d {
	case Buy:
		return "buy"
	case Sell:
		return "sell"
	default:
		return fmt.Sprintf("direction(%d)", uint8(d))
	}
}

// ParseDirection accepts "buy" or "sell".
func ParseDirection(s string) (Direction, error) {
	switch s {
	case "buy":
		return Buy, nil
	case "sell":
		return Sell, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrInvalidDirection, s)
	}
}

func (d Direction) MarshalText() ([]byte, error) {
	if d != Buy && d != Sell {
		return nil, ErrInvalidDirection
	}
	return []byte(d.String()), nil
}

func (d *Direction) UnmarshalText(b []byte) error {
	v, err := ParseDirection(string(b))
	if err != nil {
		return err
	}
	*d = v
	return nil
}

// Reserves are the two virtual quantities that drive pricing.
type Reserves struct {
	Sol   uint64 `json:"virtual_sol_reserve"`
	Token uint64 `json:"virtual_token_reserve"`
}

// Price returns Sol/Token as a fixed-point value (base units per token unit).
func (r Reserves) Price() (uint64, error) {
	if r.Sol == 0 || r.Token == 0 {
		return 0, ErrZeroReserves
	}
	return fixedmath.Div(r.Sol, r.Token)
}

// Request describes one trade to be priced.
type Request struct {
	Direction    Direction
	AmountIn     uint64
	MinAmountOut uint64
	FeeRate      uint64 // parts per fixedmath.FeePrecision
}

// Quote is the outcome of pricing a trade against a reserve snapshot.
//
// For a buy the fee is taken from AmountIn and SolDelta = AmountIn - Fee enters
// the curve. For a sell the fee is taken from the gross output: SolDelta is the
// gross amount leaving the curve, Fee goes to the fee recipient and
// AmountOut = SolDelta - Fee goes to the trader.
type Quote struct {
	Direction      Direction `json:"direction"`
	AmountIn       uint64    `json:"amount_in"`
	AmountOut      uint64    `json:"amount_out"`
	Fee            uint64    `json:"fee"`
	SolDelta       uint64    `json:"sol_delta"`
	TokenDelta     uint64    `json:"token_delta"`
	Before         Reserves  `json:"before"`
	After          Reserves  `json:"after"`
	Price          uint64    `json:"price"`
	PriceImpactBps uint64    `json:"price_impact_bps"`
}

// Evaluate runs every pricing check for req against r: dust floor, the CRR
// quote, the caller's minimum output and the price-impact ceiling. It never
// mutates anything.
func Evaluate(r Reserves, req Request, p Params) (Quote, error) {
	q, err := Preview(r, req.Direction, req.AmountIn, req.FeeRate, p)
	if err != nil {
		return Quote{}, err
	}
	if q.AmountOut < req.MinAmountOut {
		return Quote{}, fmt.Errorf("%w: got %d, want at least %d", ErrInsufficientAmountOut, q.AmountOut, req.MinAmountOut)
	}
	if q.PriceImpactBps > p.MaxPriceImpactBps {
		return Quote{}, fmt.Errorf("%w: %d bps > %d bps", ErrExcessivePriceImpact, q.PriceImpactBps, p.MaxPriceImpactBps)
	}
	return q, nil
}

// Preview prices a trade without slippage or impact enforcement.
func Preview(r Reserves, dir Direction, amountIn, feeRate uint64, p Params) (Quote, error) {
	if err := CheckDust(dir, amountIn, p); err != nil {
		return Quote{}, err
	}
	if r.Sol == 0 || r.Token == 0 {
		return Quote{}, fmt.Errorf("%w: %w", ErrZeroReserves, fixedmath.ErrDivisionByZero)
	}

	var (
		q   Quote
		err error
	)
	if dir == Buy {
		q, err = quoteBuy(r, amountIn, feeRate, p)
	} else {
		q, err = quoteSell(r, amountIn, feeRate, p)
	}
	if err != nil {
		return Quote{}, err
	}

	if q.After.Sol < p.MinSolReserve || q.After.Token == 0 {
		return Quote{}, fmt.Errorf("%w: sol=%d token=%d", ErrInsufficientLiquidity, q.After.Sol, q.After.Token)
	}

	if q.Price, err = q.After.Price(); err != nil {
		return Quote{}, err
	}
	// execution price After.Sol/After.Token against spot Before.Sol/Before.Token
	if q.PriceImpactBps, err = fixedmath.DeviationBps(q.After.Sol, q.After.Token, r.Sol, r.Token); err != nil {
		return Quote{}, err
	}
	return q, nil
}

// CheckDust rejects amounts below the minimum for the trade direction.
func CheckDust(dir Direction, amountIn uint64, p Params) error {
	switch dir {
	case Buy:
		if amountIn < p.MinBuyAmount {
			return fmt.Errorf("%w: %d < %d", ErrDustAmount, amountIn, p.MinBuyAmount)
		}
	case Sell:
		if amountIn < p.MinSellAmount {
			return fmt.Errorf("%w: %d < %d", ErrDustAmount, amountIn, p.MinSellAmount)
		}
	default:
		return ErrInvalidDirection
	}
	return nil
}

// quoteBuy: tokens_out = token * (1 - (sol / (sol + net))^crr).
func quoteBuy(r Reserves, amountIn, feeRate uint64, p Params) (Quote, error) {
	fee, err := fixedmath.FeeOf(amountIn, feeRate)
	if err != nil {
		return Quote{}, err
	}
	net := amountIn - fee

	newSol, err := fixedmath.Add(r.Sol, net)
	if err != nil {
		return Quote{}, err
	}
	base, err := fixedmath.Div(r.Sol, newSol)
	if err != nil {
		return Quote{}, err
	}
	crr, err := p.crr()
	if err != nil {
		return Quote{}, err
	}
	ratio, err := fixedmath.Pow(base, crr)
	if err != nil {
		return Quote{}, err
	}
	if ratio > fixedmath.Precision {
		ratio = fixedmath.Precision
	}
	tokensOut, err := fixedmath.Mul(r.Token, fixedmath.Precision-ratio)
	if err != nil {
		return Quote{}, err
	}
	if tokensOut >= r.Token {
		return Quote{}, fmt.Errorf("%w: output %d exhausts token reserve %d", ErrInsufficientLiquidity, tokensOut, r.Token)
	}

	return Quote{
		Direction:  Buy,
		AmountIn:   amountIn,
		AmountOut:  tokensOut,
		Fee:        fee,
		SolDelta:   net,
		TokenDelta: tokensOut,
		Before:     r,
		After:      Reserves{Sol: newSol, Token: r.Token - tokensOut},
	}, nil
}

// quoteSell: sol_out = sol * (1 - (token / (token + amount))^(1/crr)).
func quoteSell(r Reserves, amountIn, feeRate uint64, p Params) (Quote, error) {
	newToken, err := fixedmath.Add(r.Token, amountIn)
	if err != nil {
		return Quote{}, err
	}
	base, err := fixedmath.Div(r.Token, newToken)
	if err != nil {
		return Quote{}, err
	}
	inv, err := p.inverseCRR()
	if err != nil {
		return Quote{}, err
	}
	ratio, err := fixedmath.Pow(base, inv)
	if err != nil {
		return Quote{}, err
	}
	if ratio > fixedmath.Precision {
		ratio = fixedmath.Precision
	}
	gross, err := fixedmath.Mul(r.Sol, fixedmath.Precision-ratio)
	if err != nil {
		return Quote{}, err
	}
	newSol, err := fixedmath.Sub(r.Sol, gross)
	if err != nil {
		return Quote{}, err
	}
	fee, err := fixedmath.FeeOf(gross, feeRate)
	if err != nil {
		return Quote{}, err
	}

	return Quote{
		Direction:  Sell,
		AmountIn:   amountIn,
		AmountOut:  gross - fee,
		Fee:        fee,
		SolDelta:   gross,
		TokenDelta: amountIn,
		Before:     r,
		After:      Reserves{Sol: newSol, Token: newToken},
	}, nil
}
