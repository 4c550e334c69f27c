package kv

import (
	"bytes"
	"time"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"

	"github.com/rovshanmuradov/bondingcurve/internal/curve"
)

// Records are borsh encoded. Times are stored as unix nanoseconds.

type configRecord struct {
	Authority                  solana.PublicKey
	Delegates                  []solana.PublicKey
	FeeRecipient               solana.PublicKey
	CurveLimit                 uint64
	InitialVirtualTokenReserve uint64
	InitialVirtualSolReserve   uint64
	InitialRealTokenReserve    uint64
	TotalTokenSupply           uint64
	BuyFeePercentage           uint64
	SellFeePercentage          uint64
	MigrationFeePercentage     uint64
	MaxPriceImpactBps          uint64
	Paused                     bool
}

type curveRecord struct {
	Mint                solana.PublicKey
	Custody             solana.PublicKey
	Creator             solana.PublicKey
	Bump                uint8
	Name                string
	Symbol              string
	URI                 string
	VirtualTokenReserve uint64
	VirtualSolReserve   uint64
	RealTokenReserve    uint64
	RealSolReserve      uint64
	TokenTotalSupply    uint64
	Phase               uint8
	CreatedAt           int64
	UpdatedAt           int64
}

type tradeRecord struct {
	ID             string
	Mint           solana.PublicKey
	Trader         solana.PublicKey
	Direction      uint8
	AmountIn       uint64
	AmountOut      uint64
	Fee            uint64
	SolAmount      uint64
	TokenAmount    uint64
	Price          uint64
	PriceImpactBps uint64
	SolReserve     uint64
	TokenReserve   uint64
	Completed      bool
	CreatedAt      int64
}

type migrationRecord struct {
	Mint        solana.PublicKey
	Pool        solana.PublicKey
	SolAmount   uint64
	TokenAmount uint64
	Fee         uint64
	CreatedAt   int64
}

func encode(v interface{}) ([]byte, error) {
	buf := new(bytes.Buffer)
	if err := bin.NewBorshEncoder(buf).Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decode(data []byte, v interface{}) error {
	return bin.NewBorshDecoder(data).Decode(v)
}

func unixNano(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixNano()
}

func fromUnixNano(n int64) time.Time {
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n).UTC()
}

func toConfigRecord(c *curve.GlobalConfig) configRecord {
	return configRecord{
		Authority:                  c.Authority,
		Delegates:                  append([]solana.PublicKey{}, c.Delegates...),
		FeeRecipient:               c.FeeRecipient,
		CurveLimit:                 c.CurveLimit,
		InitialVirtualTokenReserve: c.InitialVirtualTokenReserve,
		InitialVirtualSolReserve:   c.InitialVirtualSolReserve,
		InitialRealTokenReserve:    c.InitialRealTokenReserve,
		TotalTokenSupply:           c.TotalTokenSupply,
		BuyFeePercentage:           c.BuyFeePercentage,
		SellFeePercentage:          c.SellFeePercentage,
		MigrationFeePercentage:     c.MigrationFeePercentage,
		MaxPriceImpactBps:          c.MaxPriceImpactBps,
		Paused:                     c.Paused,
	}
}

func (r configRecord) domain() *curve.GlobalConfig {
	var delegates []solana.PublicKey
	if len(r.Delegates) > 0 {
		delegates = append(delegates, r.Delegates...)
	}
	return &curve.GlobalConfig{
		Authority:                  r.Authority,
		Delegates:                  delegates,
		FeeRecipient:               r.FeeRecipient,
		CurveLimit:                 r.CurveLimit,
		InitialVirtualTokenReserve: r.InitialVirtualTokenReserve,
		InitialVirtualSolReserve:   r.InitialVirtualSolReserve,
		InitialRealTokenReserve:    r.InitialRealTokenReserve,
		TotalTokenSupply:           r.TotalTokenSupply,
		BuyFeePercentage:           r.BuyFeePercentage,
		SellFeePercentage:          r.SellFeePercentage,
		MigrationFeePercentage:     r.MigrationFeePercentage,
		MaxPriceImpactBps:          r.MaxPriceImpactBps,
		Paused:                     r.Paused,
	}
}

func toCurveRecord(c *curve.BondingCurve) curveRecord {
	return curveRecord{
		Mint:                c.Mint,
		Custody:             c.Custody,
		Creator:             c.Creator,
		Bump:                c.Bump,
		Name:                c.Metadata.Name,
		Symbol:              c.Metadata.Symbol,
		URI:                 c.Metadata.URI,
		VirtualTokenReserve: c.VirtualTokenReserve,
		VirtualSolReserve:   c.VirtualSolReserve,
		RealTokenReserve:    c.RealTokenReserve,
		RealSolReserve:      c.RealSolReserve,
		TokenTotalSupply:    c.TokenTotalSupply,
		Phase:               uint8(c.Phase),
		CreatedAt:           unixNano(c.CreatedAt),
		UpdatedAt:           unixNano(c.UpdatedAt),
	}
}

func (r curveRecord) domain() *curve.BondingCurve {
	return &curve.BondingCurve{
		Mint:                r.Mint,
		Custody:             r.Custody,
		Creator:             r.Creator,
		Bump:                r.Bump,
		Metadata:            curve.Metadata{Name: r.Name, Symbol: r.Symbol, URI: r.URI},
		VirtualTokenReserve: r.VirtualTokenReserve,
		VirtualSolReserve:   r.VirtualSolReserve,
		RealTokenReserve:    r.RealTokenReserve,
		RealSolReserve:      r.RealSolReserve,
		TokenTotalSupply:    r.TokenTotalSupply,
		Phase:               curve.Phase(r.Phase),
		CreatedAt:           fromUnixNano(r.CreatedAt),
		UpdatedAt:           fromUnixNano(r.UpdatedAt),
	}
}

func toTradeRecord(t *curve.Trade) tradeRecord {
	return tradeRecord{
		ID:             t.ID,
		Mint:           t.Mint,
		Trader:         t.Trader,
		Direction:      uint8(t.Direction),
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
		CreatedAt:      unixNano(t.CreatedAt),
	}
}

func (r tradeRecord) domain() *curve.Trade {
	return &curve.Trade{
		ID:             r.ID,
		Mint:           r.Mint,
		Trader:         r.Trader,
		Direction:      curve.Direction(r.Direction),
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
		CreatedAt:      fromUnixNano(r.CreatedAt),
	}
}

func toMigrationRecord(m *curve.Migration) migrationRecord {
	return migrationRecord{
		Mint:        m.Mint,
		Pool:        m.Pool,
		SolAmount:   m.SolAmount,
		TokenAmount: m.TokenAmount,
		Fee:         m.Fee,
		CreatedAt:   unixNano(m.CreatedAt),
	}
}

func (r migrationRecord) domain() *curve.Migration {
	return &curve.Migration{
		Mint:        r.Mint,
		Pool:        r.Pool,
		SolAmount:   r.SolAmount,
		TokenAmount: r.TokenAmount,
		Fee:         r.Fee,
		CreatedAt:   fromUnixNano(r.CreatedAt),
	}
}
