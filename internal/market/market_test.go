package market

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"github.com/rovshanmuradov/bondingcurve/internal/curve"
	"github.com/rovshanmuradov/bondingcurve/internal/events"
	"github.com/rovshanmuradov/bondingcurve/internal/ledger"
	"github.com/rovshanmuradov/bondingcurve/internal/pool"
	"github.com/rovshanmuradov/bondingcurve/internal/storage"
	"github.com/rovshanmuradov/bondingcurve/internal/storage/kv"
	"github.com/rovshanmuradov/bondingcurve/internal/utils/metrics"
)

const sol = curve.LamportsPerSol

// syncPublisher delivers events inline so tests can assert on them directly.
type syncPublisher struct {
	rec *events.Recorder
	err error
}

func (p *syncPublisher) Publish(ev events.Event) error {
	if p.err != nil {
		return p.err
	}
	return p.rec.Handle(context.Background(), ev)
}

func (p *syncPublisher) types() []events.EventType {
	var out []events.EventType
	for _, ev := range p.rec.Events() {
		out = append(out, ev.Type())
	}
	return out
}

// failingStore fails settlement writes once armed.
type failingStore struct {
	storage.Storage
	fail bool
}

func (s *failingStore) SettleTrade(ctx context.Context, c *curve.BondingCurve, t *curve.Trade) error {
	if s.fail {
		return errors.New("disk full")
	}
	return s.Storage.SettleTrade(ctx, c, t)
}

func (s *failingStore) SettleMigration(ctx context.Context, c *curve.BondingCurve, m *curve.Migration) error {
	if s.fail {
		return errors.New("disk full")
	}
	return s.Storage.SettleMigration(ctx, c, m)
}

type harness struct {
	ctx       context.Context
	svc       *Service
	store     *failingStore
	ledger    *ledger.Ledger
	pools     *pool.Registry
	bus       *syncPublisher
	collector *metrics.Collector
	admin     solana.PublicKey
	fees      solana.PublicKey
}

func newKey(t *testing.T) solana.PublicKey {
	t.Helper()
	k, err := ledger.NewMintAddress()
	require.NoError(t, err)
	return k
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	ctx := context.Background()
	logger := zaptest.NewLogger(t)

	kvStore, err := kv.OpenMemory(logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = kvStore.Close() })

	h := &harness{
		ctx:       ctx,
		store:     &failingStore{Storage: kvStore},
		ledger:    ledger.New(logger),
		pools:     pool.NewRegistry(logger, pool.ProgramID),
		bus:       &syncPublisher{rec: events.NewRecorder(64)},
		collector: metrics.NewCollector(),
		admin:     newKey(t),
		fees:      newKey(t),
	}
	h.svc, err = NewService(ctx, h.store, h.ledger, h.pools, h.bus, h.collector, logger, DefaultOptions())
	require.NoError(t, err)
	return h
}

// configure installs the default configuration with a separate fee
// recipient, applying mutate first.
func (h *harness) configure(t *testing.T, mutate func(*curve.GlobalConfig)) *curve.GlobalConfig {
	t.Helper()
	cfg := curve.DefaultGlobalConfig(h.admin)
	cfg.FeeRecipient = h.fees
	if mutate != nil {
		mutate(cfg)
	}
	out, err := h.svc.Configure(h.ctx, h.admin, *cfg)
	require.NoError(t, err)
	return out
}

func (h *harness) funded(t *testing.T, amount uint64) solana.PublicKey {
	t.Helper()
	k := newKey(t)
	require.NoError(t, h.ledger.Fund(h.ctx, k, amount))
	return k
}

func (h *harness) launch(t *testing.T) *curve.BondingCurve {
	t.Helper()
	creator := h.funded(t, sol)
	c, err := h.svc.Launch(h.ctx, LaunchRequest{Creator: creator, Name: "Test Token", Symbol: "TEST", URI: "https://example.com/t.json"})
	require.NoError(t, err)
	return c
}

func (h *harness) balance(t *testing.T, asset, owner solana.PublicKey) uint64 {
	t.Helper()
	b, err := h.ledger.Balance(h.ctx, asset, owner)
	require.NoError(t, err)
	return b
}

func (h *harness) curve(t *testing.T, mint solana.PublicKey) *curve.BondingCurve {
	t.Helper()
	c, err := h.svc.Curve(h.ctx, mint)
	require.NoError(t, err)
	return c
}

func requireKind(t *testing.T, err error, kind Kind) {
	t.Helper()
	require.Error(t, err)
	var me *Error
	require.True(t, errors.As(err, &me), "want *market.Error, got %T", err)
	assert.Equal(t, kind, me.Kind, "error: %v", err)
}

func TestConfigure(t *testing.T) {
	h := newHarness(t)
	stranger := newKey(t)
	delegate := newKey(t)

	_, err := h.svc.Config(h.ctx)
	assert.ErrorIs(t, err, ErrNotConfigured)

	// the first caller becomes the authority whatever the settings say
	settings := *curve.DefaultGlobalConfig(stranger)
	settings.FeeRecipient = solana.PublicKey{}
	settings.Delegates = []solana.PublicKey{delegate}
	cfg, err := h.svc.Configure(h.ctx, h.admin, settings)
	require.NoError(t, err)
	assert.Equal(t, h.admin, cfg.Authority)
	assert.Equal(t, h.admin, cfg.FeeRecipient)

	t.Run("stranger rejected", func(t *testing.T) {
		_, err := h.svc.Configure(h.ctx, stranger, *cfg)
		requireKind(t, err, KindAuthorization)
		assert.ErrorIs(t, err, ErrUnauthorized)
	})

	t.Run("authority cannot change", func(t *testing.T) {
		next := *cfg
		next.Authority = stranger
		_, err := h.svc.Configure(h.ctx, h.admin, next)
		requireKind(t, err, KindAuthorization)
	})

	t.Run("invalid settings rejected", func(t *testing.T) {
		next := *cfg
		next.BuyFeePercentage = 10_001
		_, err := h.svc.Configure(h.ctx, h.admin, next)
		requireKind(t, err, KindInvalidConfiguration)

		current, err := h.svc.Config(h.ctx)
		require.NoError(t, err)
		assert.Equal(t, uint64(100), current.BuyFeePercentage)
	})

	t.Run("delegate updates", func(t *testing.T) {
		next := *cfg
		next.Authority = solana.PublicKey{}
		next.Paused = true
		updated, err := h.svc.Configure(h.ctx, delegate, next)
		require.NoError(t, err)
		assert.True(t, updated.Paused)
		assert.Equal(t, h.admin, updated.Authority)
	})

	assert.Equal(t, []events.EventType{events.ConfigurationInitialized, events.ConfigurationUpdated}, h.bus.types())

	// a fresh service over the same store picks the configuration up
	again, err := NewService(h.ctx, h.store, h.ledger, h.pools, nil, nil, zap.NewNop(), DefaultOptions())
	require.NoError(t, err)
	loaded, err := again.Config(h.ctx)
	require.NoError(t, err)
	assert.True(t, loaded.Paused)
	assert.Equal(t, h.admin, loaded.Authority)
}

func TestLaunch(t *testing.T) {
	h := newHarness(t)
	creator := h.funded(t, sol)
	req := LaunchRequest{Creator: creator, Name: "Test Token", Symbol: "TEST"}

	_, err := h.svc.Launch(h.ctx, req)
	requireKind(t, err, KindInvalidConfiguration)

	cfg := h.configure(t, nil)

	t.Run("metadata limits", func(t *testing.T) {
		bad := req
		bad.Symbol = "WAYTOOLONGSYMBOL"
		_, err := h.svc.Launch(h.ctx, bad)
		requireKind(t, err, KindInvalidRequest)
		assert.ErrorIs(t, err, ErrInvalidMetadata)

		bad = req
		bad.Name = "  "
		_, err = h.svc.Launch(h.ctx, bad)
		assert.ErrorIs(t, err, ErrInvalidMetadata)
	})

	t.Run("creator cannot pay rent", func(t *testing.T) {
		poor := h.funded(t, 1_000)
		bad := req
		bad.Creator = poor
		_, err := h.svc.Launch(h.ctx, bad)
		requireKind(t, err, KindLiquidity)

		curves, err := h.svc.Curves(h.ctx, 0, 0)
		require.NoError(t, err)
		assert.Empty(t, curves)
	})

	c, err := h.svc.Launch(h.ctx, req)
	require.NoError(t, err)

	rent := 2 * DefaultRentExemptMinimum
	assert.Equal(t, curve.PhaseTrading, c.Phase)
	assert.Equal(t, cfg.InitialVirtualSolReserve, c.VirtualSolReserve)
	assert.Equal(t, cfg.InitialVirtualTokenReserve, c.VirtualTokenReserve)
	assert.Equal(t, cfg.InitialRealTokenReserve, c.RealTokenReserve)
	assert.Equal(t, rent, c.RealSolReserve)
	assert.Equal(t, "TEST", c.Metadata.Symbol)

	custody, bump, err := ledger.DeriveCustody(ledger.ProgramID, c.Mint)
	require.NoError(t, err)
	assert.Equal(t, custody, c.Custody)
	assert.Equal(t, bump, c.Bump)

	assert.Equal(t, rent, h.balance(t, ledger.BaseAsset, c.Custody))
	assert.Equal(t, sol-rent, h.balance(t, ledger.BaseAsset, creator))
	assert.Equal(t, cfg.TotalTokenSupply, h.balance(t, c.Mint, c.Custody))

	info, err := h.ledger.MintInfo(h.ctx, c.Mint)
	require.NoError(t, err)
	assert.Nil(t, info.Authority)
	assert.Equal(t, cfg.TotalTokenSupply, info.Supply)
	assert.Equal(t, uint8(curve.TokenDecimals), info.Decimals)

	stored := h.curve(t, c.Mint)
	assert.Equal(t, c.Reserves(), stored.Reserves())
	assert.Contains(t, h.bus.types(), events.TokenLaunched)

	// launch takes no per-mint lock
	h.svc.locksMu.Lock()
	_, locked := h.svc.locks[c.Mint]
	h.svc.locksMu.Unlock()
	assert.False(t, locked)
}

func TestBuy(t *testing.T) {
	h := newHarness(t)
	h.configure(t, nil)
	c := h.launch(t)
	trader := h.funded(t, 10*sol)

	res, err := h.svc.Buy(h.ctx, TradeRequest{Trader: trader, Mint: c.Mint, AmountIn: sol, MinAmountOut: 1})
	require.NoError(t, err)

	assert.Equal(t, uint64(10_000_000), res.Quote.Fee)
	assert.Equal(t, uint64(38_726_650_757_600), res.Quote.AmountOut)
	assert.Equal(t, uint64(1_340), res.Quote.PriceImpactBps)
	assert.False(t, res.Completed)
	assert.Equal(t, uint64(13_490_000_000), res.Curve.VirtualSolReserve)
	assert.Equal(t, uint64(761_273_349_242_400), res.Curve.VirtualTokenReserve)

	stored := h.curve(t, c.Mint)
	assert.Equal(t, res.Curve.Reserves(), stored.Reserves())
	assert.Equal(t, 2*DefaultRentExemptMinimum+990_000_000, stored.RealSolReserve)

	assert.Equal(t, 9*sol, h.balance(t, ledger.BaseAsset, trader))
	assert.Equal(t, uint64(10_000_000), h.balance(t, ledger.BaseAsset, h.fees))
	assert.Equal(t, 2*DefaultRentExemptMinimum+990_000_000, h.balance(t, ledger.BaseAsset, c.Custody))
	assert.Equal(t, res.Quote.AmountOut, h.balance(t, c.Mint, trader))

	trades, err := h.svc.Trades(h.ctx, c.Mint, 0, 0)
	require.NoError(t, err)
	require.Len(t, trades, 1)
	assert.Equal(t, curve.Buy, trades[0].Direction)
	assert.Equal(t, sol, trades[0].SolAmount)
	assert.Equal(t, res.Quote.AmountOut, trades[0].TokenAmount)

	assert.Equal(t, []events.EventType{events.ConfigurationInitialized, events.TokenLaunched, events.TokenPurchased}, h.bus.types())
}

func TestSell(t *testing.T) {
	h := newHarness(t)
	h.configure(t, nil)
	c := h.launch(t)
	trader := h.funded(t, 10*sol)

	bought, err := h.svc.Buy(h.ctx, TradeRequest{Trader: trader, Mint: c.Mint, AmountIn: sol})
	require.NoError(t, err)
	half := bought.Quote.AmountOut / 2

	t.Run("below minimum out leaves everything untouched", func(t *testing.T) {
		_, err := h.svc.Sell(h.ctx, TradeRequest{Trader: trader, Mint: c.Mint, AmountIn: half, MinAmountOut: sol})
		requireKind(t, err, KindSlippage)
		assert.ErrorIs(t, err, curve.ErrInsufficientAmountOut)

		var me *Error
		require.ErrorAs(t, err, &me)
		assert.Equal(t, bought.Curve.Reserves(), me.Reserves)
		assert.Equal(t, bought.Curve.Reserves(), h.curve(t, c.Mint).Reserves())
		assert.Equal(t, bought.Quote.AmountOut, h.balance(t, c.Mint, trader))
	})

	t.Run("seller without tokens", func(t *testing.T) {
		empty := h.funded(t, sol)
		_, err := h.svc.Sell(h.ctx, TradeRequest{Trader: empty, Mint: c.Mint, AmountIn: half})
		requireKind(t, err, KindLiquidity)
		assert.Equal(t, bought.Curve.Reserves(), h.curve(t, c.Mint).Reserves())
	})

	res, err := h.svc.Sell(h.ctx, TradeRequest{Trader: trader, Mint: c.Mint, AmountIn: half, MinAmountOut: 1})
	require.NoError(t, err)
	assert.Equal(t, uint64(510_567_901), res.Quote.SolDelta)
	assert.Equal(t, uint64(5_105_679), res.Quote.Fee)
	assert.Equal(t, uint64(505_462_222), res.Quote.AmountOut)
	assert.Equal(t, uint64(12_979_432_099), res.Curve.VirtualSolReserve)
	assert.Equal(t, uint64(780_636_674_621_200), res.Curve.VirtualTokenReserve)

	rent := 2 * DefaultRentExemptMinimum
	assert.Equal(t, rent+990_000_000-510_567_901, res.Curve.RealSolReserve)
	assert.Equal(t, rent+990_000_000-510_567_901, h.balance(t, ledger.BaseAsset, c.Custody))
	assert.Equal(t, 9*sol+505_462_222, h.balance(t, ledger.BaseAsset, trader))
	assert.Equal(t, uint64(10_000_000+5_105_679), h.balance(t, ledger.BaseAsset, h.fees))
	assert.Equal(t, bought.Quote.AmountOut-half, h.balance(t, c.Mint, trader))

	trades, err := h.svc.Trades(h.ctx, c.Mint, 0, 0)
	require.NoError(t, err)
	require.Len(t, trades, 2)
	assert.Equal(t, curve.Sell, trades[1].Direction)
	assert.Equal(t, uint64(505_462_222), trades[1].SolAmount)
	assert.Contains(t, h.bus.types(), events.TokenSold)
}

// shortCustodyLedger under-reports the base balance held by one custody.
type shortCustodyLedger struct {
	*ledger.Ledger
	custody solana.PublicKey
	short   bool
}

func (l *shortCustodyLedger) Balance(ctx context.Context, asset, owner solana.PublicKey) (uint64, error) {
	bal, err := l.Ledger.Balance(ctx, asset, owner)
	if err != nil || !l.short || !asset.Equals(ledger.BaseAsset) || !owner.Equals(l.custody) {
		return bal, err
	}
	return bal / 1_000, nil
}

func TestSellCustodyShortfall(t *testing.T) {
	h := newHarness(t)
	wrapped := &shortCustodyLedger{Ledger: h.ledger}
	svc, err := NewService(h.ctx, h.store, wrapped, h.pools, h.bus, h.collector, zap.NewNop(), DefaultOptions())
	require.NoError(t, err)
	h.svc = svc
	h.configure(t, nil)
	c := h.launch(t)
	wrapped.custody = c.Custody
	trader := h.funded(t, 10*sol)

	bought, err := h.svc.Buy(h.ctx, TradeRequest{Trader: trader, Mint: c.Mint, AmountIn: sol})
	require.NoError(t, err)
	traderSol := h.balance(t, ledger.BaseAsset, trader)
	custodySol := h.balance(t, ledger.BaseAsset, c.Custody)
	feesSol := h.balance(t, ledger.BaseAsset, h.fees)

	wrapped.short = true
	_, err = h.svc.Sell(h.ctx, TradeRequest{Trader: trader, Mint: c.Mint, AmountIn: bought.Quote.AmountOut / 2})
	requireKind(t, err, KindLiquidity)
	assert.ErrorIs(t, err, ErrInsufficientSolBalance)

	var me *Error
	require.ErrorAs(t, err, &me)
	assert.Equal(t, bought.Curve.Reserves(), me.Reserves)
	assert.Equal(t, bought.Curve.Reserves(), h.curve(t, c.Mint).Reserves())
	assert.Equal(t, traderSol, h.balance(t, ledger.BaseAsset, trader))
	assert.Equal(t, bought.Quote.AmountOut, h.balance(t, c.Mint, trader))
	assert.Equal(t, custodySol, h.balance(t, ledger.BaseAsset, c.Custody))
	assert.Equal(t, feesSol, h.balance(t, ledger.BaseAsset, h.fees))

	trades, err := h.svc.Trades(h.ctx, c.Mint, 0, 0)
	require.NoError(t, err)
	assert.Len(t, trades, 1)

	wrapped.short = false
	_, err = h.svc.Sell(h.ctx, TradeRequest{Trader: trader, Mint: c.Mint, AmountIn: bought.Quote.AmountOut / 2})
	require.NoError(t, err)
}

func TestTradeRejections(t *testing.T) {
	h := newHarness(t)
	h.configure(t, nil)
	c := h.launch(t)
	trader := h.funded(t, 10*sol)

	tests := []struct {
		name string
		req  TradeRequest
		sell bool
		kind Kind
		want error
	}{
		{"dust buy", TradeRequest{Trader: trader, Mint: c.Mint, AmountIn: curve.MinBuyAmount - 1}, false, KindDustAmount, curve.ErrDustAmount},
		{"dust sell", TradeRequest{Trader: trader, Mint: c.Mint, AmountIn: curve.MinSellAmount - 1}, true, KindDustAmount, curve.ErrDustAmount},
		{"unknown curve", TradeRequest{Trader: trader, Mint: newKey(t), AmountIn: sol}, false, KindNotFound, ErrCurveNotFound},
		{"missing trader", TradeRequest{Mint: c.Mint, AmountIn: sol}, false, KindInvalidRequest, ErrInvalidRequest},
		{"price impact", TradeRequest{Trader: trader, Mint: c.Mint, AmountIn: 5 * sol}, false, KindSlippage, curve.ErrExcessivePriceImpact},
		{"buyer cannot pay", TradeRequest{Trader: h.funded(t, 2_000_000), Mint: c.Mint, AmountIn: sol}, false, KindLiquidity, ledger.ErrInsufficientBalance},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var err error
			if tt.sell {
				_, err = h.svc.Sell(h.ctx, tt.req)
			} else {
				_, err = h.svc.Buy(h.ctx, tt.req)
			}
			requireKind(t, err, tt.kind)
			assert.ErrorIs(t, err, tt.want)
		})
	}

	assert.Equal(t, c.Reserves(), h.curve(t, c.Mint).Reserves())
	assert.Equal(t, 10*sol, h.balance(t, ledger.BaseAsset, trader))
}

func TestPausedMarket(t *testing.T) {
	h := newHarness(t)
	cfg := h.configure(t, nil)
	c := h.launch(t)
	trader := h.funded(t, 10*sol)

	bought, err := h.svc.Buy(h.ctx, TradeRequest{Trader: trader, Mint: c.Mint, AmountIn: sol})
	require.NoError(t, err)

	paused := *cfg
	paused.Paused = true
	_, err = h.svc.Configure(h.ctx, h.admin, paused)
	require.NoError(t, err)

	_, err = h.svc.Buy(h.ctx, TradeRequest{Trader: trader, Mint: c.Mint, AmountIn: sol})
	requireKind(t, err, KindState)
	assert.ErrorIs(t, err, ErrPaused)

	_, err = h.svc.Sell(h.ctx, TradeRequest{Trader: trader, Mint: c.Mint, AmountIn: bought.Quote.AmountOut})
	assert.ErrorIs(t, err, ErrPaused)

	_, err = h.svc.Launch(h.ctx, LaunchRequest{Creator: trader, Name: "Paused", Symbol: "P"})
	assert.ErrorIs(t, err, ErrPaused)

	assert.Equal(t, bought.Curve.Reserves(), h.curve(t, c.Mint).Reserves())
	assert.Equal(t, bought.Quote.AmountOut, h.balance(t, c.Mint, trader))

	paused.Paused = false
	_, err = h.svc.Configure(h.ctx, h.admin, paused)
	require.NoError(t, err)
	_, err = h.svc.Sell(h.ctx, TradeRequest{Trader: trader, Mint: c.Mint, AmountIn: bought.Quote.AmountOut})
	require.NoError(t, err)
}

// completedCurve launches a curve with a 14 SOL limit and fills it with two
// 1 SOL buys.
func completedCurve(t *testing.T, h *harness) (*curve.BondingCurve, solana.PublicKey) {
	t.Helper()
	h.configure(t, func(cfg *curve.GlobalConfig) { cfg.CurveLimit = 14 * sol })
	c := h.launch(t)
	trader := h.funded(t, 10*sol)

	first, err := h.svc.Buy(h.ctx, TradeRequest{Trader: trader, Mint: c.Mint, AmountIn: sol})
	require.NoError(t, err)
	require.False(t, first.Completed)

	second, err := h.svc.Buy(h.ctx, TradeRequest{Trader: trader, Mint: c.Mint, AmountIn: sol})
	require.NoError(t, err)
	require.True(t, second.Completed)
	assert.Equal(t, uint64(14_480_000_000), second.Curve.VirtualSolReserve)
	assert.Equal(t, uint64(34_300_700_171_113), second.Quote.AmountOut)
	return second.Curve, trader
}

func TestCurveCompletion(t *testing.T) {
	h := newHarness(t)
	c, trader := completedCurve(t, h)
	assert.Equal(t, curve.PhaseCompleted, h.curve(t, c.Mint).Phase)

	_, err := h.svc.Buy(h.ctx, TradeRequest{Trader: trader, Mint: c.Mint, AmountIn: sol})
	requireKind(t, err, KindState)
	assert.ErrorIs(t, err, curve.ErrCurveCompleted)

	_, err = h.svc.Sell(h.ctx, TradeRequest{Trader: trader, Mint: c.Mint, AmountIn: 1_000_000})
	assert.ErrorIs(t, err, curve.ErrCurveCompleted)

	_, err = h.svc.Quote(h.ctx, c.Mint, curve.Buy, sol)
	assert.ErrorIs(t, err, curve.ErrCurveCompleted)

	completions := 0
	for _, typ := range h.bus.types() {
		if typ == events.CurveCompleted {
			completions++
		}
	}
	assert.Equal(t, 1, completions)
}

func TestMigrate(t *testing.T) {
	h := newHarness(t)
	c, trader := completedCurve(t, h)
	other := h.launch(t)

	target, err := h.pools.CreatePool(h.ctx, h.admin, c.Mint, ledger.BaseAsset)
	require.NoError(t, err)
	wrong, err := h.pools.CreatePool(h.ctx, h.admin, other.Mint, ledger.BaseAsset)
	require.NoError(t, err)
	disabled, err := h.pools.CreatePool(h.ctx, trader, c.Mint, ledger.BaseAsset)
	require.NoError(t, err)
	require.NoError(t, h.pools.SetDisableFlags(h.ctx, disabled.Address, pool.DisableDeposit))

	req := MigrateRequest{Caller: h.admin, Mint: c.Mint, Pool: target.Address}

	custodySol := 2*DefaultRentExemptMinimum + 2*990_000_000
	custodyTokens := uint64(1_000_000_000_000_000 - 38_726_650_757_600 - 34_300_700_171_113)
	fee := custodySol / 100
	remaining := custodySol - fee

	rejections := []struct {
		name string
		req  MigrateRequest
		kind Kind
		want error
	}{
		{"not completed", MigrateRequest{Caller: h.admin, Mint: other.Mint, Pool: wrong.Address}, KindState, curve.ErrCurveNotComplete},
		{"not authority", MigrateRequest{Caller: trader, Mint: c.Mint, Pool: target.Address}, KindAuthorization, ErrUnauthorized},
		{"unknown pool", MigrateRequest{Caller: h.admin, Mint: c.Mint, Pool: newKey(t)}, KindCollaboratorMismatch, ErrInvalidPoolState},
		{"disabled pool", MigrateRequest{Caller: h.admin, Mint: c.Mint, Pool: disabled.Address}, KindCollaboratorMismatch, ErrInvalidPoolState},
		{"wrong tokens", MigrateRequest{Caller: h.admin, Mint: c.Mint, Pool: wrong.Address}, KindCollaboratorMismatch, ErrInvalidPoolTokens},
		{"sol slippage", MigrateRequest{Caller: h.admin, Mint: c.Mint, Pool: target.Address, MinSolOut: remaining + 1}, KindSlippage, ErrSlippageExceeded},
		{"token slippage", MigrateRequest{Caller: h.admin, Mint: c.Mint, Pool: target.Address, MinTokenOut: custodyTokens + 1}, KindSlippage, ErrSlippageExceeded},
	}
	for _, tt := range rejections {
		t.Run(tt.name, func(t *testing.T) {
			_, err := h.svc.Migrate(h.ctx, tt.req)
			requireKind(t, err, tt.kind)
			assert.ErrorIs(t, err, tt.want)
			assert.Equal(t, custodySol, h.balance(t, ledger.BaseAsset, c.Custody))
		})
	}

	feesBefore := h.balance(t, ledger.BaseAsset, h.fees)
	req.MinSolOut = remaining
	req.MinTokenOut = custodyTokens
	res, err := h.svc.Migrate(h.ctx, req)
	require.NoError(t, err)

	assert.Equal(t, fee, res.Migration.Fee)
	assert.Equal(t, remaining, res.Migration.SolAmount)
	assert.Equal(t, custodyTokens, res.Migration.TokenAmount)
	assert.Equal(t, curve.PhaseMigrated, res.Curve.Phase)
	assert.Zero(t, res.Curve.RealSolReserve)
	assert.Zero(t, res.Curve.RealTokenReserve)

	assert.Zero(t, h.balance(t, ledger.BaseAsset, c.Custody))
	assert.Zero(t, h.balance(t, c.Mint, c.Custody))
	assert.Equal(t, remaining, h.balance(t, ledger.BaseAsset, target.Address))
	assert.Equal(t, custodyTokens, h.balance(t, c.Mint, target.Address))
	assert.Equal(t, feesBefore+fee, h.balance(t, ledger.BaseAsset, h.fees))

	info, err := h.pools.FetchPoolInfo(h.ctx, target.Address)
	require.NoError(t, err)
	assert.Equal(t, custodyTokens, info.BaseReserve)
	assert.Equal(t, remaining, info.QuoteReserve)

	stored, err := h.svc.Migration(h.ctx, c.Mint)
	require.NoError(t, err)
	assert.Equal(t, target.Address, stored.Pool)
	assert.Equal(t, curve.PhaseMigrated, h.curve(t, c.Mint).Phase)

	_, err = h.svc.Migrate(h.ctx, req)
	requireKind(t, err, KindState)
	assert.ErrorIs(t, err, curve.ErrAlreadyMigrated)

	_, err = h.svc.Buy(h.ctx, TradeRequest{Trader: trader, Mint: c.Mint, AmountIn: sol})
	assert.ErrorIs(t, err, curve.ErrAlreadyMigrated)

	_, err = h.svc.Migration(h.ctx, other.Mint)
	assert.ErrorIs(t, err, storage.ErrNotFound)

	assert.Contains(t, h.bus.types(), events.MigrationCompleted)
}

func TestStorageFailureRollsBackTransfers(t *testing.T) {
	h := newHarness(t)
	h.configure(t, nil)
	c := h.launch(t)
	trader := h.funded(t, 10*sol)

	h.store.fail = true
	_, err := h.svc.Buy(h.ctx, TradeRequest{Trader: trader, Mint: c.Mint, AmountIn: sol})
	require.Error(t, err)

	assert.Equal(t, 10*sol, h.balance(t, ledger.BaseAsset, trader))
	assert.Zero(t, h.balance(t, ledger.BaseAsset, h.fees))
	assert.Zero(t, h.balance(t, c.Mint, trader))
	assert.Equal(t, 2*DefaultRentExemptMinimum, h.balance(t, ledger.BaseAsset, c.Custody))
	assert.Equal(t, c.Reserves(), h.curve(t, c.Mint).Reserves())

	trades, err := h.svc.Trades(h.ctx, c.Mint, 0, 0)
	require.NoError(t, err)
	assert.Empty(t, trades)

	h.store.fail = false
	_, err = h.svc.Buy(h.ctx, TradeRequest{Trader: trader, Mint: c.Mint, AmountIn: sol})
	require.NoError(t, err)
}

func TestPublishFailureDoesNotAbort(t *testing.T) {
	h := newHarness(t)
	h.configure(t, nil)
	c := h.launch(t)
	trader := h.funded(t, 10*sol)

	h.bus.err = events.ErrBusClosed
	res, err := h.svc.Buy(h.ctx, TradeRequest{Trader: trader, Mint: c.Mint, AmountIn: sol})
	require.NoError(t, err)
	assert.Equal(t, res.Curve.Reserves(), h.curve(t, c.Mint).Reserves())
}

func TestConcurrentBuys(t *testing.T) {
	h := newHarness(t)
	cfg := h.configure(t, nil)
	c := h.launch(t)

	const n = 20
	traders := make([]solana.PublicKey, n)
	for i := range traders {
		traders[i] = h.funded(t, sol)
	}

	var wg sync.WaitGroup
	errs := make(chan error, n)
	for _, trader := range traders {
		wg.Add(1)
		go func(trader solana.PublicKey) {
			defer wg.Done()
			_, err := h.svc.Buy(h.ctx, TradeRequest{Trader: trader, Mint: c.Mint, AmountIn: sol / 10})
			errs <- err
		}(trader)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	final := h.curve(t, c.Mint)
	assert.Equal(t, uint64(14_480_000_000), final.VirtualSolReserve)
	assert.Equal(t, uint64(726_972_648_970_871), final.VirtualTokenReserve)

	var held uint64
	for _, trader := range traders {
		held += h.balance(t, c.Mint, trader)
	}
	assert.Equal(t, cfg.TotalTokenSupply, held+h.balance(t, c.Mint, c.Custody))
	assert.Equal(t, cfg.InitialVirtualTokenReserve-final.VirtualTokenReserve, held)

	trades, err := h.svc.Trades(h.ctx, c.Mint, 0, 0)
	require.NoError(t, err)
	assert.Len(t, trades, n)
}

func TestQuoteAndProject(t *testing.T) {
	h := newHarness(t)
	h.configure(t, nil)
	c := h.launch(t)

	q, err := h.svc.Quote(h.ctx, c.Mint, curve.Buy, sol)
	require.NoError(t, err)
	assert.Equal(t, uint64(38_726_650_757_600), q.AmountOut)
	assert.Equal(t, c.Reserves(), h.curve(t, c.Mint).Reserves())

	// previews report impact beyond the ceiling instead of failing
	big, err := h.svc.Quote(h.ctx, c.Mint, curve.Buy, 5*sol)
	require.NoError(t, err)
	assert.Greater(t, big.PriceImpactBps, curve.DefaultMaxPriceImpactBps)

	points, err := h.svc.Project(h.ctx, c.Mint, 10)
	require.NoError(t, err)
	require.NotEmpty(t, points)
	assert.Equal(t, c.VirtualSolReserve, points[0].SolReserve)
	assert.Equal(t, 100*sol, points[len(points)-1].SolReserve)
}

func TestKindOf(t *testing.T) {
	assert.Equal(t, KindUnknown, KindOf(nil))
	assert.Equal(t, KindUnknown, KindOf(errors.New("boom")))
	assert.Equal(t, KindSlippage, KindOf(curve.ErrExcessivePriceImpact))
	assert.Equal(t, KindLiquidity, KindOf(&ledger.InsufficientBalanceError{}))
	assert.Equal(t, KindCollaboratorMismatch, KindOf(pool.ErrPoolNotFound))
	assert.Equal(t, KindAuthorization, KindOf(&Error{Kind: KindAuthorization, Err: errors.New("x")}))
	assert.Equal(t, "slippage_violation", KindSlippage.String())
}

func TestFixedClock(t *testing.T) {
	h := newHarness(t)
	at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	opts := DefaultOptions()
	opts.Now = func() time.Time { return at }
	svc, err := NewService(h.ctx, h.store, h.ledger, h.pools, h.bus, nil, zap.NewNop(), opts)
	require.NoError(t, err)
	h.svc = svc
	h.configure(t, nil)

	c := h.launch(t)
	assert.True(t, c.CreatedAt.Equal(at))
}
