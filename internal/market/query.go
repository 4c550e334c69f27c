package market

import (
	"context"
	"fmt"

	"github.com/gagliardetto/solana-go"

	"github.com/rovshanmuradov/bondingcurve/internal/curve"
)

// DefaultPageSize applies when a list call passes limit <= 0.
const DefaultPageSize = 100

// Quote previews a trade against the current reserves without moving
// anything. The price-impact ceiling is reported, not enforced.
func (s *Service) Quote(ctx context.Context, mint solana.PublicKey, dir curve.Direction, amountIn uint64) (*curve.Quote, error) {
	cfg := s.config()
	if cfg == nil {
		return nil, ErrNotConfigured
	}
	c, err := s.loadCurve(ctx, mint)
	if err != nil {
		return nil, err
	}
	if err := c.CanTrade(); err != nil {
		return nil, err
	}
	feeRate := cfg.BuyFeePercentage
	if dir == curve.Sell {
		feeRate = cfg.SellFeePercentage
	}
	q, err := curve.Preview(c.Reserves(), dir, amountIn, feeRate, cfg.TradeParams(s.opts.Params))
	if err != nil {
		return nil, err
	}
	return &q, nil
}

// Curve returns the current state of mint's curve.
func (s *Service) Curve(ctx context.Context, mint solana.PublicKey) (*curve.BondingCurve, error) {
	return s.loadCurve(ctx, mint)
}

// Curves lists launched curves, newest first.
func (s *Service) Curves(ctx context.Context, limit, offset int) ([]*curve.BondingCurve, error) {
	if limit <= 0 {
		limit = DefaultPageSize
	}
	return s.store.ListCurves(ctx, limit, offset)
}

// Trades lists the settled trades of mint, oldest first.
func (s *Service) Trades(ctx context.Context, mint solana.PublicKey, limit, offset int) ([]*curve.Trade, error) {
	if limit <= 0 {
		limit = DefaultPageSize
	}
	return s.store.ListTrades(ctx, mint, limit, offset)
}

// Project samples mint's curve from its current reserves up to the curve
// limit.
func (s *Service) Project(ctx context.Context, mint solana.PublicKey, steps int) ([]curve.Point, error) {
	cfg := s.config()
	if cfg == nil {
		return nil, ErrNotConfigured
	}
	c, err := s.loadCurve(ctx, mint)
	if err != nil {
		return nil, err
	}
	if c.VirtualSolReserve >= cfg.CurveLimit {
		return nil, fmt.Errorf("%w: reserve already at limit", curve.ErrCurveCompleted)
	}
	return curve.Project(c.Reserves(), cfg.CurveLimit, steps, s.opts.Params)
}
