// Package storagetest holds the behaviour every storage.Storage backend must
// share. Backends call Run from their own tests.
package storagetest

import (
	"context"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rovshanmuradov/bondingcurve/internal/curve"
	"github.com/rovshanmuradov/bondingcurve/internal/storage"
)

// Factory opens an empty, migrated store.
type Factory func(t *testing.T) storage.Storage

// Run exercises s against the storage contract.
func Run(t *testing.T, open Factory) {
	t.Run("ConfigRoundTrip", func(t *testing.T) { testConfig(t, open(t)) })
	t.Run("CurveLifecycle", func(t *testing.T) { testCurve(t, open(t)) })
	t.Run("TradeHistory", func(t *testing.T) { testTrades(t, open(t)) })
	t.Run("Migration", func(t *testing.T) { testMigration(t, open(t)) })
}

func key(t *testing.T) solana.PublicKey {
	t.Helper()
	k, err := solana.NewRandomPrivateKey()
	require.NoError(t, err)
	return k.PublicKey()
}

// NewCurve returns a freshly launched curve for mint.
func NewCurve(t *testing.T, mint solana.PublicKey) *curve.BondingCurve {
	now := time.Now().UTC().Truncate(time.Second)
	return &curve.BondingCurve{
		Mint:                mint,
		Custody:             key(t),
		Creator:             key(t),
		Bump:                254,
		Metadata:            curve.Metadata{Name: "Test", Symbol: "TST", URI: "https://example.com/t.json"},
		VirtualTokenReserve: 800_000_000_000_000,
		VirtualSolReserve:   12_500_000_000,
		RealTokenReserve:    800_000_000_000_000,
		RealSolReserve:      2_923_200,
		TokenTotalSupply:    1_000_000_000_000_000,
		Phase:               curve.PhaseTrading,
		CreatedAt:           now,
		UpdatedAt:           now,
	}
}

func testConfig(t *testing.T, s storage.Storage) {
	ctx := context.Background()
	_, err := s.LoadConfig(ctx)
	assert.ErrorIs(t, err, storage.ErrNotFound)

	cfg := curve.DefaultGlobalConfig(key(t))
	cfg.Delegates = []solana.PublicKey{key(t), key(t)}
	require.NoError(t, s.SaveConfig(ctx, cfg))

	got, err := s.LoadConfig(ctx)
	require.NoError(t, err)
	assert.Equal(t, cfg, got)

	cfg.Paused = true
	cfg.BuyFeePercentage = 250
	cfg.Delegates = nil
	require.NoError(t, s.SaveConfig(ctx, cfg))
	got, err = s.LoadConfig(ctx)
	require.NoError(t, err)
	assert.True(t, got.Paused)
	assert.Equal(t, uint64(250), got.BuyFeePercentage)
	assert.Empty(t, got.Delegates)
}

func testCurve(t *testing.T, s storage.Storage) {
	ctx := context.Background()
	mint := key(t)

	_, err := s.GetCurve(ctx, mint)
	assert.ErrorIs(t, err, storage.ErrNotFound)

	c := NewCurve(t, mint)
	require.NoError(t, s.CreateCurve(ctx, c))
	assert.Error(t, s.CreateCurve(ctx, c), "duplicate mint must be rejected")

	got, err := s.GetCurve(ctx, mint)
	require.NoError(t, err)
	assert.Equal(t, c.Mint, got.Mint)
	assert.Equal(t, c.Custody, got.Custody)
	assert.Equal(t, c.Creator, got.Creator)
	assert.Equal(t, c.Bump, got.Bump)
	assert.Equal(t, c.Metadata, got.Metadata)
	assert.Equal(t, c.Reserves(), got.Reserves())
	assert.Equal(t, curve.PhaseTrading, got.Phase)

	require.NoError(t, s.CreateCurve(ctx, NewCurve(t, key(t))))
	list, err := s.ListCurves(ctx, 10, 0)
	require.NoError(t, err)
	assert.Len(t, list, 2)

	list, err = s.ListCurves(ctx, 1, 0)
	require.NoError(t, err)
	assert.Len(t, list, 1)

	missing := NewCurve(t, key(t))
	err = s.SettleTrade(ctx, missing, &curve.Trade{ID: uuid.NewString(), Mint: missing.Mint, Trader: key(t)})
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func testTrades(t *testing.T, s storage.Storage) {
	ctx := context.Background()
	mint, trader := key(t), key(t)
	c := NewCurve(t, mint)
	require.NoError(t, s.CreateCurve(ctx, c))

	base := time.Now().UTC().Truncate(time.Second)
	for i, dir := range []curve.Direction{curve.Buy, curve.Buy, curve.Sell} {
		c.VirtualSolReserve += 1_000_000_000
		c.VirtualTokenReserve -= 1_000_000
		c.RealTokenReserve = 0
		c.UpdatedAt = base.Add(time.Duration(i) * time.Second)
		trade := &curve.Trade{
			ID:           uuid.NewString(),
			Mint:         mint,
			Trader:       trader,
			Direction:    dir,
			AmountIn:     uint64(i+1) * 1_000_000_000,
			AmountOut:    42,
			Fee:          10_000_000,
			SolReserve:   c.VirtualSolReserve,
			TokenReserve: c.VirtualTokenReserve,
			CreatedAt:    base.Add(time.Duration(i) * time.Second),
		}
		require.NoError(t, s.SettleTrade(ctx, c, trade))
	}

	got, err := s.GetCurve(ctx, mint)
	require.NoError(t, err)
	assert.Equal(t, c.Reserves(), got.Reserves())
	assert.Zero(t, got.RealTokenReserve)

	trades, err := s.ListTrades(ctx, mint, 10, 0)
	require.NoError(t, err)
	require.Len(t, trades, 3)
	assert.Equal(t, curve.Buy, trades[0].Direction)
	assert.Equal(t, uint64(1_000_000_000), trades[0].AmountIn)
	assert.Equal(t, curve.Sell, trades[2].Direction)
	assert.Equal(t, trader, trades[2].Trader)

	page, err := s.ListTrades(ctx, mint, 2, 1)
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, trades[1].ID, page[0].ID)

	none, err := s.ListTrades(ctx, key(t), 10, 0)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func testMigration(t *testing.T, s storage.Storage) {
	ctx := context.Background()
	mint := key(t)
	c := NewCurve(t, mint)
	require.NoError(t, s.CreateCurve(ctx, c))

	_, err := s.GetMigration(ctx, mint)
	assert.ErrorIs(t, err, storage.ErrNotFound)

	c.Phase = curve.PhaseMigrated
	c.RealSolReserve = 0
	c.RealTokenReserve = 0
	m := &curve.Migration{
		Mint:        mint,
		Pool:        key(t),
		SolAmount:   99_000_000_000,
		TokenAmount: 300_000_000_000_000,
		Fee:         1_000_000_000,
		CreatedAt:   time.Now().UTC().Truncate(time.Second),
	}
	require.NoError(t, s.SettleMigration(ctx, c, m))

	got, err := s.GetMigration(ctx, mint)
	require.NoError(t, err)
	assert.Equal(t, m.Pool, got.Pool)
	assert.Equal(t, m.SolAmount, got.SolAmount)
	assert.Equal(t, m.TokenAmount, got.TokenAmount)
	assert.Equal(t, m.Fee, got.Fee)

	stored, err := s.GetCurve(ctx, mint)
	require.NoError(t, err)
	assert.Equal(t, curve.PhaseMigrated, stored.Phase)
	assert.Zero(t, stored.RealSolReserve)
}
