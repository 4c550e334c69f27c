package market

import (
	"context"
	"fmt"

	"github.com/gagliardetto/solana-go"
	"go.uber.org/zap"

	"github.com/rovshanmuradov/bondingcurve/internal/curve"
	"github.com/rovshanmuradov/bondingcurve/internal/events"
)

// Configure installs or replaces the global configuration. The first caller
// becomes the authority. Later calls must come from the authority or one of
// its delegates and may not change the authority. A zero Authority in
// settings keeps the current one.
func (s *Service) Configure(ctx context.Context, caller solana.PublicKey, settings curve.GlobalConfig) (*curve.GlobalConfig, error) {
	const op = "configure"
	s.cfgMu.Lock()
	defer s.cfgMu.Unlock()

	next := settings.Clone()
	old := s.cfg
	if old == nil {
		if caller.IsZero() {
			return nil, s.fail(op, solana.PublicKey{}, nil, 0, 0, fmt.Errorf("%w: empty caller", ErrUnauthorized))
		}
		next.Authority = caller
	} else {
		if !old.IsAuthorized(caller) {
			return nil, s.fail(op, solana.PublicKey{}, nil, 0, 0, fmt.Errorf("%w: %s", ErrUnauthorized, caller))
		}
		if next.Authority.IsZero() {
			next.Authority = old.Authority
		}
		if !next.Authority.Equals(old.Authority) {
			return nil, s.fail(op, solana.PublicKey{}, nil, 0, 0, fmt.Errorf("%w: authority cannot be changed", ErrUnauthorized))
		}
	}
	if next.FeeRecipient.IsZero() {
		next.FeeRecipient = next.Authority
	}
	if err := next.Validate(); err != nil {
		return nil, s.fail(op, solana.PublicKey{}, nil, 0, 0, err)
	}

	if err := s.store.SaveConfig(ctx, next); err != nil {
		return nil, s.fail(op, solana.PublicKey{}, nil, 0, 0, fmt.Errorf("save configuration: %w", err))
	}
	s.cfg = next

	if old == nil {
		s.logger.Info("Market configured",
			zap.String("authority", next.Authority.String()),
			zap.Uint64("curve_limit", next.CurveLimit))
		s.publish(&events.ConfigurationInitializedEvent{
			BaseEvent: events.NewBase(events.ConfigurationInitialized),
			Admin:     caller,
			Config:    snapshot(next),
		})
	} else {
		s.logger.Info("Market configuration updated",
			zap.String("admin", caller.String()),
			zap.Bool("paused", next.Paused))
		s.publish(&events.ConfigurationUpdatedEvent{
			BaseEvent: events.NewBase(events.ConfigurationUpdated),
			Admin:     caller,
			Old:       snapshot(old),
			New:       snapshot(next),
		})
	}
	return next.Clone(), nil
}

// Config returns the current configuration.
func (s *Service) Config(_ context.Context) (*curve.GlobalConfig, error) {
	cfg := s.config()
	if cfg == nil {
		return nil, ErrNotConfigured
	}
	return cfg, nil
}

func snapshot(c *curve.GlobalConfig) events.ConfigSnapshot {
	return events.ConfigSnapshot{
		Authority:              c.Authority,
		FeeRecipient:           c.FeeRecipient,
		CurveLimit:             c.CurveLimit,
		InitialVirtualToken:    c.InitialVirtualTokenReserve,
		InitialVirtualSol:      c.InitialVirtualSolReserve,
		InitialRealToken:       c.InitialRealTokenReserve,
		TotalTokenSupply:       c.TotalTokenSupply,
		BuyFeePercentage:       c.BuyFeePercentage,
		SellFeePercentage:      c.SellFeePercentage,
		MigrationFeePercentage: c.MigrationFeePercentage,
		Paused:                 c.Paused,
	}
}
