// =============================
// File: internal/market/trade.go
// =============================
package market

import (
	"context"
	"fmt"

	"github.com/gagliardetto/solana-go"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/rovshanmuradov/bondingcurve/internal/curve"
	"github.com/rovshanmuradov/bondingcurve/internal/events"
	"github.com/rovshanmuradov/bondingcurve/internal/ledger"
)

// TradeRequest is one buy or sell. For a buy AmountIn is base currency and
// MinAmountOut is tokens; for a sell the reverse.
type TradeRequest struct {
	Trader       solana.PublicKey `json:"trader"`
	Mint         solana.PublicKey `json:"mint"`
	AmountIn     uint64           `json:"amount_in"`
	MinAmountOut uint64           `json:"min_amount_out"`
}

// TradeResult is returned by a settled trade.
type TradeResult struct {
	Trade     *curve.Trade        `json:"trade"`
	Quote     curve.Quote         `json:"quote"`
	Completed bool                `json:"completed"`
	Curve     *curve.BondingCurve `json:"curve"`
}

// Buy pays base currency into the curve for tokens.
func (s *Service) Buy(ctx context.Context, req TradeRequest) (*TradeResult, error) {
	return s.trade(ctx, curve.Buy, req)
}

// Sell returns tokens to the curve for base currency.
func (s *Service) Sell(ctx context.Context, req TradeRequest) (*TradeResult, error) {
	return s.trade(ctx, curve.Sell, req)
}

// trade runs every check before moving anything. Transfers are applied as
// one ledger batch and the curve and trade records are written together; if
// the write fails the transfers are reversed.
func (s *Service) trade(ctx context.Context, dir curve.Direction, req TradeRequest) (*TradeResult, error) {
	op := dir.String()
	start := s.opts.Now()

	if req.Trader.IsZero() {
		return nil, s.fail(op, req.Mint, nil, req.AmountIn, req.MinAmountOut, fmt.Errorf("%w: trader required", ErrInvalidRequest))
	}

	unlock := s.lockCurve(req.Mint)
	defer unlock()

	cfg, err := s.tradingConfig()
	if err != nil {
		return nil, s.fail(op, req.Mint, nil, req.AmountIn, req.MinAmountOut, err)
	}
	c, err := s.loadCurve(ctx, req.Mint)
	if err != nil {
		return nil, s.fail(op, req.Mint, nil, req.AmountIn, req.MinAmountOut, err)
	}
	if err := c.CanTrade(); err != nil {
		return nil, s.fail(op, req.Mint, c, req.AmountIn, req.MinAmountOut, err)
	}

	feeRate := cfg.BuyFeePercentage
	if dir == curve.Sell {
		feeRate = cfg.SellFeePercentage
	}
	params := cfg.TradeParams(s.opts.Params)
	q, err := curve.Evaluate(c.Reserves(), curve.Request{
		Direction:    dir,
		AmountIn:     req.AmountIn,
		MinAmountOut: req.MinAmountOut,
		FeeRate:      feeRate,
	}, params)
	if err != nil {
		return nil, s.fail(op, req.Mint, c, req.AmountIn, req.MinAmountOut, err)
	}

	next := *c
	completed, err := next.Apply(q, params, cfg.CurveLimit)
	if err != nil {
		return nil, s.fail(op, req.Mint, c, req.AmountIn, req.MinAmountOut, err)
	}

	var transfers []ledger.Transfer
	switch dir {
	case curve.Buy:
		transfers = []ledger.Transfer{
			{Asset: ledger.BaseAsset, From: req.Trader, To: cfg.FeeRecipient, Amount: q.Fee},
			{Asset: ledger.BaseAsset, From: req.Trader, To: c.Custody, Amount: q.SolDelta},
			{Asset: c.Mint, From: c.Custody, To: req.Trader, Amount: q.AmountOut},
		}
	case curve.Sell:
		held, err := s.ledger.Balance(ctx, ledger.BaseAsset, c.Custody)
		if err != nil {
			return nil, s.fail(op, req.Mint, c, req.AmountIn, req.MinAmountOut, err)
		}
		if held < q.SolDelta {
			return nil, s.fail(op, req.Mint, c, req.AmountIn, req.MinAmountOut,
				fmt.Errorf("%w: custody holds %d, payout plus fee is %d", ErrInsufficientSolBalance, held, q.SolDelta))
		}
		transfers = []ledger.Transfer{
			{Asset: c.Mint, From: req.Trader, To: c.Custody, Amount: q.AmountIn},
			{Asset: ledger.BaseAsset, From: c.Custody, To: req.Trader, Amount: q.AmountOut},
			{Asset: ledger.BaseAsset, From: c.Custody, To: cfg.FeeRecipient, Amount: q.Fee},
		}
	}

	if err := s.ledger.Apply(ctx, transfers...); err != nil {
		return nil, s.fail(op, req.Mint, c, req.AmountIn, req.MinAmountOut, err)
	}

	now := s.opts.Now()
	next.UpdatedAt = now
	trade := curve.NewTrade(uuid.NewString(), c.Mint, req.Trader, q, completed, now)
	if err := s.store.SettleTrade(ctx, &next, trade); err != nil {
		s.rollback(ctx, op, transfers)
		return nil, s.fail(op, req.Mint, c, req.AmountIn, req.MinAmountOut, fmt.Errorf("persist trade: %w", err))
	}

	s.logger.Info("Trade settled",
		zap.String("direction", op),
		zap.String("mint", c.Mint.String()),
		zap.String("trader", req.Trader.String()),
		zap.Uint64("amount_in", q.AmountIn),
		zap.Uint64("amount_out", q.AmountOut),
		zap.Uint64("fee", q.Fee),
		zap.Uint64("price_impact_bps", q.PriceImpactBps))

	s.metrics.RecordTrade(op, trade.SolAmount, q.Fee, q.PriceImpactBps)
	s.metrics.UpdateReserves(c.Mint.String(), next.VirtualSolReserve, next.VirtualTokenReserve)
	s.metrics.ObserveSettlement(op, s.opts.Now().Sub(start))

	evType := events.TokenPurchased
	if dir == curve.Sell {
		evType = events.TokenSold
	}
	s.publish(&events.TradeEvent{
		BaseEvent:       events.NewBase(evType),
		Mint:            c.Mint,
		Trader:          req.Trader,
		SolAmount:       trade.SolAmount,
		TokenAmount:     trade.TokenAmount,
		FeeAmount:       q.Fee,
		Price:           q.Price,
		NewSolReserve:   next.VirtualSolReserve,
		NewTokenReserve: next.VirtualTokenReserve,
		PriceImpactBps:  q.PriceImpactBps,
	})
	if completed {
		s.logger.Info("Curve completed",
			zap.String("mint", c.Mint.String()),
			zap.Uint64("sol_reserve", next.VirtualSolReserve))
		s.metrics.RecordCompletion()
		s.publish(&events.CurveCompletedEvent{
			BaseEvent:         events.NewBase(events.CurveCompleted),
			Mint:              c.Mint,
			FinalSolReserve:   next.VirtualSolReserve,
			FinalTokenReserve: next.VirtualTokenReserve,
		})
	}

	return &TradeResult{Trade: trade, Quote: q, Completed: completed, Curve: &next}, nil
}
