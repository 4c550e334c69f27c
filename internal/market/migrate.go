package market

import (
	"context"
	"errors"
	"fmt"

	"github.com/gagliardetto/solana-go"
	"go.uber.org/zap"

	"github.com/rovshanmuradov/bondingcurve/internal/curve"
	"github.com/rovshanmuradov/bondingcurve/internal/events"
	"github.com/rovshanmuradov/bondingcurve/internal/fixedmath"
	"github.com/rovshanmuradov/bondingcurve/internal/ledger"
	"github.com/rovshanmuradov/bondingcurve/internal/pool"
	"github.com/rovshanmuradov/bondingcurve/internal/storage"
)

// MigrateRequest moves a completed curve's liquidity into Pool.
type MigrateRequest struct {
	Caller      solana.PublicKey `json:"caller"`
	Mint        solana.PublicKey `json:"mint"`
	Pool        solana.PublicKey `json:"pool"`
	MinSolOut   uint64           `json:"min_sol_out"`
	MinTokenOut uint64           `json:"min_token_out"`
}

// MigrationResult is returned by a settled migration.
type MigrationResult struct {
	Migration *curve.Migration    `json:"migration"`
	Curve     *curve.BondingCurve `json:"curve"`
}

// Migrate hands a completed curve's custody balances to an external pool,
// less the migration fee. It succeeds at most once per curve.
func (s *Service) Migrate(ctx context.Context, req MigrateRequest) (*MigrationResult, error) {
	const op = "migrate"
	start := s.opts.Now()

	unlock := s.lockCurve(req.Mint)
	defer unlock()

	cfg := s.config()
	if cfg == nil {
		return nil, s.fail(op, req.Mint, nil, 0, req.MinSolOut, ErrNotConfigured)
	}
	if req.Caller.IsZero() || !req.Caller.Equals(cfg.Authority) {
		return nil, s.fail(op, req.Mint, nil, 0, req.MinSolOut, fmt.Errorf("%w: %s", ErrUnauthorized, req.Caller))
	}

	c, err := s.loadCurve(ctx, req.Mint)
	if err != nil {
		return nil, s.fail(op, req.Mint, nil, 0, req.MinSolOut, err)
	}
	if err := c.CheckMigrationEligibility(); err != nil {
		return nil, s.fail(op, req.Mint, c, 0, req.MinSolOut, err)
	}

	target, err := s.pools.FetchPoolInfo(ctx, req.Pool)
	if err != nil {
		if errors.Is(err, pool.ErrPoolNotFound) {
			err = fmt.Errorf("%w: %v", ErrInvalidPoolState, err)
		}
		return nil, s.fail(op, req.Mint, c, 0, req.MinSolOut, err)
	}
	if !target.Tradable() {
		return nil, s.fail(op, req.Mint, c, 0, req.MinSolOut,
			fmt.Errorf("%w: %s flags=%08b", ErrInvalidPoolState, target.Address, target.DisableFlags))
	}
	if !target.Holds(c.Mint) || !target.Holds(ledger.BaseAsset) {
		return nil, s.fail(op, req.Mint, c, 0, req.MinSolOut,
			fmt.Errorf("%w: pool holds %s/%s", ErrInvalidPoolTokens, target.BaseMint, target.QuoteMint))
	}

	solBalance, err := s.ledger.Balance(ctx, ledger.BaseAsset, c.Custody)
	if err != nil {
		return nil, s.fail(op, req.Mint, c, 0, req.MinSolOut, err)
	}
	tokenBalance, err := s.ledger.Balance(ctx, c.Mint, c.Custody)
	if err != nil {
		return nil, s.fail(op, req.Mint, c, 0, req.MinSolOut, err)
	}

	fee, err := fixedmath.FeeOf(solBalance, cfg.MigrationFeePercentage)
	if err != nil {
		return nil, s.fail(op, req.Mint, c, solBalance, req.MinSolOut, err)
	}
	remaining, err := fixedmath.Sub(solBalance, fee)
	if err != nil {
		return nil, s.fail(op, req.Mint, c, solBalance, req.MinSolOut, fmt.Errorf("%w: %v", ErrInsufficientSolBalance, err))
	}
	if remaining < req.MinSolOut {
		return nil, s.fail(op, req.Mint, c, solBalance, req.MinSolOut,
			fmt.Errorf("%w: sol %d < minimum %d", ErrSlippageExceeded, remaining, req.MinSolOut))
	}
	if tokenBalance < req.MinTokenOut {
		return nil, s.fail(op, req.Mint, c, solBalance, req.MinSolOut,
			fmt.Errorf("%w: tokens %d < minimum %d", ErrSlippageExceeded, tokenBalance, req.MinTokenOut))
	}

	next := *c
	if err := next.MarkMigrated(); err != nil {
		return nil, s.fail(op, req.Mint, c, solBalance, req.MinSolOut, err)
	}
	next.RealSolReserve = 0
	next.RealTokenReserve = 0
	next.UpdatedAt = s.opts.Now()

	transfers := []ledger.Transfer{
		{Asset: ledger.BaseAsset, From: c.Custody, To: cfg.FeeRecipient, Amount: fee},
		{Asset: ledger.BaseAsset, From: c.Custody, To: target.Address, Amount: remaining},
		{Asset: c.Mint, From: c.Custody, To: target.Address, Amount: tokenBalance},
	}
	if err := s.ledger.Apply(ctx, transfers...); err != nil {
		return nil, s.fail(op, req.Mint, c, solBalance, req.MinSolOut, err)
	}

	m := &curve.Migration{
		Mint:        c.Mint,
		Pool:        target.Address,
		SolAmount:   remaining,
		TokenAmount: tokenBalance,
		Fee:         fee,
		CreatedAt:   next.UpdatedAt,
	}
	if err := s.store.SettleMigration(ctx, &next, m); err != nil {
		s.rollback(ctx, op, transfers)
		return nil, s.fail(op, req.Mint, c, solBalance, req.MinSolOut, fmt.Errorf("persist migration: %w", err))
	}

	// The balances already sit in the pool's custody; a failed deposit only
	// leaves the pool's reserve record behind.
	if err := s.pools.Deposit(ctx, target.Address, map[solana.PublicKey]uint64{
		ledger.BaseAsset: remaining,
		c.Mint:           tokenBalance,
	}); err != nil {
		s.logger.Error("Pool deposit record failed after migration",
			zap.String("mint", c.Mint.String()),
			zap.String("pool", target.Address.String()),
			zap.Error(err))
	}

	s.logger.Info("Curve migrated",
		zap.String("mint", c.Mint.String()),
		zap.String("pool", target.Address.String()),
		zap.Uint64("sol_amount", remaining),
		zap.Uint64("token_amount", tokenBalance),
		zap.Uint64("fee", fee))
	s.metrics.RecordMigration(fee)
	s.metrics.ObserveSettlement(op, s.opts.Now().Sub(start))
	s.publish(&events.MigrationCompletedEvent{
		BaseEvent:    events.NewBase(events.MigrationCompleted),
		Mint:         c.Mint,
		SolAmount:    remaining,
		TokenAmount:  tokenBalance,
		MigrationFee: fee,
		Pool:         target.Address,
	})

	return &MigrationResult{Migration: m, Curve: &next}, nil
}

// Migration returns the migration record of mint.
func (s *Service) Migration(ctx context.Context, mint solana.PublicKey) (*curve.Migration, error) {
	m, err := s.store.GetMigration(ctx, mint)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("no migration for %s: %w", mint, err)
	}
	return m, err
}
