// internal/storage/models/trade.go
package models

import (
	"time"

	"github.com/rovshanmuradov/bondingcurve/internal/curve"
)

type Trade struct {
	ID             string    `gorm:"primarykey;type:varchar(36)"`
	Mint           string    `gorm:"index:idx_trades_mint_created,priority:1;not null;type:varchar(44)"`
	Trader         string    `gorm:"index;not null;type:varchar(44)"`
	Direction      string    `gorm:"not null;type:varchar(8)"`
	AmountIn       uint64    `gorm:"not null"`
	AmountOut      uint64    `gorm:"not null"`
	Fee            uint64    `gorm:"not null"`
	SolAmount      uint64    `gorm:"not null"`
	TokenAmount    uint64    `gorm:"not null"`
	Price          uint64    `gorm:"not null"`
	PriceImpactBps uint64    `gorm:"not null"`
	SolReserve     uint64    `gorm:"not null"`
	TokenReserve   uint64    `gorm:"not null"`
	Completed      bool      `gorm:"not null;default:false"`
	CreatedAt      time.Time `gorm:"index:idx_trades_mint_created,priority:2;not null"`
}

func (Trade) TableName() string { return "trades" }

func FromTrade(t *curve.Trade) *Trade {
	return &Trade{
		ID:             t.ID,
		Mint:           t.Mint.String(),
		Trader:         t.Trader.String(),
		Direction:      t.Direction.String(),
		AmountIn:       t.AmountIn,
		AmountOut:      t.AmountOut,
		Fee:            t.Fee,
		SolAmount:      t.SolAmount,
		TokenAmount:    t.TokenAmount,
		Price:          t.Price,
		PriceImpactBps: t.PriceImpactBps,
		SolReserve:     t.SolReserve,
		TokenReserve:   t.TokenReserve,
		Completed:      t.Completed,
		CreatedAt:      t.CreatedAt,
	}
}

func (r *Trade) ToDomain() (*curve.Trade, error) {
	keys, err := parseKeys(r.Mint, r.Trader)
	if err != nil {
		return nil, err
	}
	dir, err := curve.ParseDirection(r.Direction)
	if err != nil {
		return nil, err
	}
	return &curve.Trade{
		ID:             r.ID,
		Mint:           keys[0],
		Trader:         keys[1],
		Direction:      dir,
		AmountIn:       r.AmountIn,
		AmountOut:      r.AmountOut,
		Fee:            r.Fee,
		SolAmount:      r.SolAmount,
		TokenAmount:    r.TokenAmount,
		Price:          r.Price,
		PriceImpactBps: r.PriceImpactBps,
		SolReserve:     r.SolReserve,
		TokenReserve:   r.TokenReserve,
		Completed:      r.Completed,
		CreatedAt:      r.CreatedAt,
	}, nil
}

type Migration struct {
	Mint        string    `gorm:"primarykey;type:varchar(44)"`
	Pool        string    `gorm:"not null;type:varchar(44)"`
	SolAmount   uint64    `gorm:"not null"`
	TokenAmount uint64    `gorm:"not null"`
	Fee         uint64    `gorm:"not null"`
	CreatedAt   time.Time `gorm:"not null"`
}

func (Migration) TableName() string { return "migrations" }

func FromMigration(m *curve.Migration) *Migration {
	return &Migration{
		Mint:        m.Mint.String(),
		Pool:        m.Pool.String(),
		SolAmount:   m.SolAmount,
		TokenAmount: m.TokenAmount,
		Fee:         m.Fee,
		CreatedAt:   m.CreatedAt,
	}
}

func (r *Migration) ToDomain() (*curve.Migration, error) {
	keys, err := parseKeys(r.Mint, r.Pool)
	if err != nil {
		return nil, err
	}
	return &curve.Migration{
		Mint:        keys[0],
		Pool:        keys[1],
		SolAmount:   r.SolAmount,
		TokenAmount: r.TokenAmount,
		Fee:         r.Fee,
		CreatedAt:   r.CreatedAt,
	}, nil
}
