// internal/storage/models/config.go
package models

import (
	"fmt"
	"strings"

	"github.com/gagliardetto/solana-go"

	"github.com/rovshanmuradov/bondingcurve/internal/curve"
)

// ConfigRowID is the primary key of the singleton configuration row.
const ConfigRowID = 1

type GlobalConfig struct {
	BaseModel
	ID                         uint   `gorm:"primarykey"`
	Authority                  string `gorm:"not null;type:varchar(44)"`
	Delegates                  string `gorm:"type:text"`
	FeeRecipient               string `gorm:"not null;type:varchar(44)"`
	CurveLimit                 uint64 `gorm:"not null"`
	InitialVirtualTokenReserve uint64 `gorm:"not null"`
	InitialVirtualSolReserve   uint64 `gorm:"not null"`
	InitialRealTokenReserve    uint64 `gorm:"not null"`
	TotalTokenSupply           uint64 `gorm:"not null"`
	BuyFeePercentage           uint64 `gorm:"not null"`
	SellFeePercentage          uint64 `gorm:"not null"`
	MigrationFeePercentage     uint64 `gorm:"not null"`
	MaxPriceImpactBps          uint64 `gorm:"not null"`
	Paused                     bool   `gorm:"not null;default:false"`
}

func (GlobalConfig) TableName() string { return "global_config" }

// FromConfig converts the domain configuration into its row.
func FromConfig(c *curve.GlobalConfig) *GlobalConfig {
	delegates := make([]string, 0, len(c.Delegates))
	for _, d := range c.Delegates {
		delegates = append(delegates, d.String())
	}
	return &GlobalConfig{
		ID:                         ConfigRowID,
		Authority:                  c.Authority.String(),
		Delegates:                  strings.Join(delegates, ","),
		FeeRecipient:               c.FeeRecipient.String(),
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

// ToDomain converts the row back into the domain configuration.
func (r *GlobalConfig) ToDomain() (*curve.GlobalConfig, error) {
	authority, err := solana.PublicKeyFromBase58(r.Authority)
	if err != nil {
		return nil, fmt.Errorf("authority: %w", err)
	}
	feeRecipient, err := solana.PublicKeyFromBase58(r.FeeRecipient)
	if err != nil {
		return nil, fmt.Errorf("fee recipient: %w", err)
	}
	var delegates []solana.PublicKey
	if r.Delegates != "" {
		for _, s := range strings.Split(r.Delegates, ",") {
			d, err := solana.PublicKeyFromBase58(s)
			if err != nil {
				return nil, fmt.Errorf("delegate %q: %w", s, err)
			}
			delegates = append(delegates, d)
		}
	}
	return &curve.GlobalConfig{
		Authority:                  authority,
		Delegates:                  delegates,
		FeeRecipient:               feeRecipient,
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
	}, nil
}
