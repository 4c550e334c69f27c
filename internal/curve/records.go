package curve

import (
	"time"

	"github.com/gagliardetto/solana-go"
)

// Trade is the settled record of one buy or sell.
type Trade struct {
	ID             string           `json:"id"`
	Mint           solana.PublicKey `json:"mint"`
	Trader         solana.PublicKey `json:"trader"`
	Direction      Direction        `json:"direction"`
	AmountIn       uint64           `json:"amount_in"`
	AmountOut      uint64           `json:"amount_out"`
	Fee            uint64           `json:"fee"`
	SolAmount      uint64           `json:"sol_amount"`
	TokenAmount    uint64           `json:"token_amount"`
	Price          uint64           `json:"price"`
	PriceImpactBps uint64           `json:"price_impact_bps"`
	SolReserve     uint64           `json:"sol_reserve"`
	TokenReserve   uint64           `json:"token_reserve"`
	Completed      bool             `json:"completed"`
	CreatedAt      time.Time        `json:"created_at"`
}

// NewTrade builds the record of q executed by trader. SolAmount is what the
// trader paid for a buy or received for a sell.
func NewTrade(id string, mint, trader solana.PublicKey, q Quote, completed bool, at time.Time) *Trade {
	t := &Trade{
		ID:             id,
		Mint:           mint,
		Trader:         trader,
		Direction:      q.Direction,
		AmountIn:       q.AmountIn,
		AmountOut:      q.AmountOut,
		Fee:            q.Fee,
		Price:          q.Price,
		PriceImpactBps: q.PriceImpactBps,
		SolReserve:     q.After.Sol,
		TokenReserve:   q.After.Token,
		Completed:      completed,
		CreatedAt:      at,
	}
	if q.Direction == Buy {
		t.SolAmount, t.TokenAmount = q.AmountIn, q.AmountOut
	} else {
		t.SolAmount, t.TokenAmount = q.AmountOut, q.AmountIn
	}
	return t
}

// Migration is the settled record of a curve's hand-off to a pool.
type Migration struct {
	Mint        solana.PublicKey `json:"mint"`
	Pool        solana.PublicKey `json:"pool"`
	SolAmount   uint64           `json:"sol_amount"`
	TokenAmount uint64           `json:"token_amount"`
	Fee         uint64           `json:"fee"`
	CreatedAt   time.Time        `json:"created_at"`
}
