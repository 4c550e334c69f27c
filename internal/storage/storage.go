// internal/storage/storage.go
package storage

import (
	"context"
	"errors"

	"github.com/gagliardetto/solana-go"

	"github.com/rovshanmuradov/bondingcurve/internal/curve"
)

// ErrNotFound is returned when a record does not exist.
var ErrNotFound = errors.New("record not found")

// Storage persists the global configuration, one curve per mint and the
// settled history of each curve. Settle* calls write their records as one
// unit.
type Storage interface {
	// Configuration
	LoadConfig(ctx context.Context) (*curve.GlobalConfig, error)
	SaveConfig(ctx context.Context, cfg *curve.GlobalConfig) error

	// Curves
	GetCurve(ctx context.Context, mint solana.PublicKey) (*curve.BondingCurve, error)
	ListCurves(ctx context.Context, limit, offset int) ([]*curve.BondingCurve, error)
	CreateCurve(ctx context.Context, c *curve.BondingCurve) error

	// Settlement
	SettleTrade(ctx context.Context, c *curve.BondingCurve, trade *curve.Trade) error
	SettleMigration(ctx context.Context, c *curve.BondingCurve, m *curve.Migration) error

	// History
	ListTrades(ctx context.Context, mint solana.PublicKey, limit, offset int) ([]*curve.Trade, error)
	GetMigration(ctx context.Context, mint solana.PublicKey) (*curve.Migration, error)

	RunMigrations() error
	Close() error
}
