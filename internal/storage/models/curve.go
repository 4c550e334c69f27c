// internal/storage/models/curve.go
package models

import (
	"fmt"

	"github.com/gagliardetto/solana-go"

	"github.com/rovshanmuradov/bondingcurve/internal/curve"
)

type BondingCurve struct {
	BaseModel
	Mint                string `gorm:"primarykey;type:varchar(44)"`
	Custody             string `gorm:"not null;type:varchar(44)"`
	Creator             string `gorm:"index;not null;type:varchar(44)"`
	Bump                uint8  `gorm:"not null"`
	Name                string `gorm:"not null;type:varchar(64)"`
	Symbol              string `gorm:"not null;type:varchar(16)"`
	URI                 string `gorm:"type:text"`
	VirtualTokenReserve uint64 `gorm:"not null"`
	VirtualSolReserve   uint64 `gorm:"not null"`
	RealTokenReserve    uint64 `gorm:"not null"`
	RealSolReserve      uint64 `gorm:"not null"`
	TokenTotalSupply    uint64 `gorm:"not null"`
	Phase               string `gorm:"index;not null;type:varchar(16)"`
}

func (BondingCurve) TableName() string { return "bonding_curves" }

func FromCurve(c *curve.BondingCurve) *BondingCurve {
	return &BondingCurve{
		BaseModel:           BaseModel{CreatedAt: c.CreatedAt, UpdatedAt: c.UpdatedAt},
		Mint:                c.Mint.String(),
		Custody:             c.Custody.String(),
		Creator:             c.Creator.String(),
		Bump:                c.Bump,
		Name:                c.Metadata.Name,
		Symbol:              c.Metadata.Symbol,
		URI:                 c.Metadata.URI,
		VirtualTokenReserve: c.VirtualTokenReserve,
		VirtualSolReserve:   c.VirtualSolReserve,
		RealTokenReserve:    c.RealTokenReserve,
		RealSolReserve:      c.RealSolReserve,
		TokenTotalSupply:    c.TokenTotalSupply,
		Phase:               c.Phase.String(),
	}
}

func (r *BondingCurve) ToDomain() (*curve.BondingCurve, error) {
	keys, err := parseKeys(r.Mint, r.Custody, r.Creator)
	if err != nil {
		return nil, err
	}
	phase, err := curve.ParsePhase(r.Phase)
	if err != nil {
		return nil, err
	}
	return &curve.BondingCurve{
		Mint:                keys[0],
		Custody:             keys[1],
		Creator:             keys[2],
		Bump:                r.Bump,
		Metadata:            curve.Metadata{Name: r.Name, Symbol: r.Symbol, URI: r.URI},
		VirtualTokenReserve: r.VirtualTokenReserve,
		VirtualSolReserve:   r.VirtualSolReserve,
		RealTokenReserve:    r.RealTokenReserve,
		RealSolReserve:      r.RealSolReserve,
		TokenTotalSupply:    r.TokenTotalSupply,
		Phase:               phase,
		CreatedAt:           r.CreatedAt,
		UpdatedAt:           r.UpdatedAt,
	}, nil
}

func parseKeys(values ...string) ([]solana.PublicKey, error) {
	keys := make([]solana.PublicKey, len(values))
	for i, v := range values {
		k, err := solana.PublicKeyFromBase58(v)
		if err != nil {
			return nil, fmt.Errorf("parse key %q: %w", v, err)
		}
		keys[i] = k
	}
	return keys, nil
}
