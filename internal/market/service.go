// =============================
// File: internal/market/service.go
// =============================
package market

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gagliardetto/solana-go"
	"go.uber.org/zap"

	"github.com/rovshanmuradov/bondingcurve/internal/curve"
	"github.com/rovshanmuradov/bondingcurve/internal/events"
	"github.com/rovshanmuradov/bondingcurve/internal/ledger"
	"github.com/rovshanmuradov/bondingcurve/internal/pool"
	"github.com/rovshanmuradov/bondingcurve/internal/storage"
	"github.com/rovshanmuradov/bondingcurve/internal/utils/metrics"
)

// DefaultRentExemptMinimum is the rent-exempt balance of a curve custody
// account, in base units.
const DefaultRentExemptMinimum uint64 = 1_461_600

// Ledger moves and issues assets.
type Ledger interface {
	Balance(ctx context.Context, asset, owner solana.PublicKey) (uint64, error)
	Apply(ctx context.Context, transfers ...ledger.Transfer) error
	CreateMint(ctx context.Context, address, authority solana.PublicKey, decimals uint8) (*ledger.Mint, error)
	MintTo(ctx context.Context, mint, signer, owner solana.PublicKey, amount uint64) error
	RevokeMintAuthority(ctx context.Context, mint, signer solana.PublicKey) error
}

// Pools is the external liquidity venue that receives migrated curves.
type Pools interface {
	FetchPoolInfo(ctx context.Context, address solana.PublicKey) (*pool.Info, error)
	Deposit(ctx context.Context, address solana.PublicKey, amounts map[solana.PublicKey]uint64) error
}

// Options tune a Service.
type Options struct {
	Params            curve.Params
	ProgramID         solana.PublicKey
	RentExemptMinimum uint64
	Now               func() time.Time
}

// DefaultOptions returns the canonical settings.
func DefaultOptions() Options {
	return Options{
		Params:            curve.DefaultParams(),
		ProgramID:         ledger.ProgramID,
		RentExemptMinimum: DefaultRentExemptMinimum,
		Now:               func() time.Time { return time.Now().UTC() },
	}
}

// Service settles every market operation. Operations on one curve are
// serialized by a per-mint lock; the global configuration is read under a
// shared lock and replaced only by Configure.
type Service struct {
	store   storage.Storage
	ledger  Ledger
	pools   Pools
	bus     events.Publisher
	metrics *metrics.Collector
	logger  *zap.Logger
	opts    Options

	cfgMu sync.RWMutex
	cfg   *curve.GlobalConfig

	locksMu sync.Mutex
	locks   map[solana.PublicKey]*sync.Mutex
}

// NewService loads the stored configuration, if any, and returns a ready
// service. A nil bus discards events and a nil collector gets a private one.
func NewService(
	ctx context.Context,
	store storage.Storage,
	l Ledger,
	pools Pools,
	bus events.Publisher,
	collector *metrics.Collector,
	logger *zap.Logger,
	opts Options,
) (*Service, error) {
	if err := opts.Params.Validate(); err != nil {
		return nil, fmt.Errorf("invalid curve params: %w", err)
	}
	if opts.Now == nil {
		opts.Now = func() time.Time { return time.Now().UTC() }
	}
	if opts.ProgramID.IsZero() {
		opts.ProgramID = ledger.ProgramID
	}
	if bus == nil {
		bus = discard{}
	}
	if collector == nil {
		collector = metrics.NewCollector()
	}

	s := &Service{
		store:   store,
		ledger:  l,
		pools:   pools,
		bus:     bus,
		metrics: collector,
		logger:  logger.Named("market"),
		opts:    opts,
		locks:   make(map[solana.PublicKey]*sync.Mutex),
	}

	cfg, err := store.LoadConfig(ctx)
	switch {
	case err == nil:
		s.cfg = cfg
		s.logger.Info("Loaded market configuration",
			zap.String("authority", cfg.Authority.String()),
			zap.Bool("paused", cfg.Paused))
	case errors.Is(err, storage.ErrNotFound):
		s.logger.Info("Market not configured yet")
	default:
		return nil, fmt.Errorf("load configuration: %w", err)
	}
	return s, nil
}

// Params returns the pricing parameters in effect.
func (s *Service) Params() curve.Params {
	if cfg := s.config(); cfg != nil {
		return cfg.TradeParams(s.opts.Params)
	}
	return s.opts.Params
}

// lockCurve serializes operations on one mint.
func (s *Service) lockCurve(mint solana.PublicKey) func() {
	s.locksMu.Lock()
	m, ok := s.locks[mint]
	if !ok {
		m = &sync.Mutex{}
		s.locks[mint] = m
	}
	s.locksMu.Unlock()

	m.Lock()
	return m.Unlock
}

// config returns a copy of the current configuration or nil.
func (s *Service) config() *curve.GlobalConfig {
	s.cfgMu.RLock()
	defer s.cfgMu.RUnlock()
	if s.cfg == nil {
		return nil
	}
	return s.cfg.Clone()
}

// tradingConfig returns the configuration for an operation that needs the
// market open.
func (s *Service) tradingConfig() (*curve.GlobalConfig, error) {
	cfg := s.config()
	if cfg == nil {
		return nil, ErrNotConfigured
	}
	if cfg.Paused {
		return nil, ErrPaused
	}
	return cfg, nil
}

func (s *Service) loadCurve(ctx context.Context, mint solana.PublicKey) (*curve.BondingCurve, error) {
	c, err := s.store.GetCurve(ctx, mint)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrCurveNotFound, mint)
	}
	if err != nil {
		return nil, fmt.Errorf("load curve: %w", err)
	}
	return c, nil
}

// fail wraps err into an *Error, counts and logs it.
func (s *Service) fail(op string, mint solana.PublicKey, c *curve.BondingCurve, amountIn, minOut uint64, err error) error {
	e := &Error{
		Kind:         classify(err),
		Op:           op,
		Mint:         mint,
		AmountIn:     amountIn,
		MinAmountOut: minOut,
		Err:          err,
	}
	if c != nil {
		e.Reserves = c.Reserves()
	}
	s.metrics.RecordRejection(op, e.Kind.String())
	s.logger.Warn("Operation rejected",
		zap.String("op", op),
		zap.String("mint", mint.String()),
		zap.String("kind", e.Kind.String()),
		zap.Uint64("amount_in", amountIn),
		zap.Error(err))
	return e
}

// publish hands ev to the bus. Failures are logged and never returned.
func (s *Service) publish(ev events.Event) {
	if err := s.bus.Publish(ev); err != nil {
		s.logger.Warn("Failed to publish event",
			zap.String("event_type", string(ev.Type())),
			zap.Error(err))
	}
}

// rollback reverses transfers that were applied before a later step failed.
func (s *Service) rollback(ctx context.Context, op string, applied []ledger.Transfer) {
	reversed := make([]ledger.Transfer, 0, len(applied))
	for i := len(applied) - 1; i >= 0; i-- {
		t := applied[i]
		reversed = append(reversed, ledger.Transfer{Asset: t.Asset, From: t.To, To: t.From, Amount: t.Amount})
	}
	if err := s.ledger.Apply(context.WithoutCancel(ctx), reversed...); err != nil {
		s.logger.Error("Failed to roll back transfers",
			zap.String("op", op),
			zap.Int("transfers", len(reversed)),
			zap.Error(err))
	}
}

type discard struct{}

func (discard) Publish(events.Event) error { return nil }
