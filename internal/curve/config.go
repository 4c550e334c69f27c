package curve

import (
	"errors"
	"fmt"

	"github.com/gagliardetto/solana-go"

	"github.com/rovshanmuradov/bondingcurve/internal/fixedmath"
)

// MaxDelegates bounds the delegate list of a GlobalConfig.
const MaxDelegates = 4

var ErrInvalidConfig = errors.New("invalid configuration")

// GlobalConfig is the process-wide market configuration. Seed values are
// copied into every curve at launch.
type GlobalConfig struct {
	Authority    solana.PublicKey   `json:"authority"`
	Delegates    []solana.PublicKey `json:"delegates,omitempty"`
	FeeRecipient solana.PublicKey   `json:"fee_recipient"`
	CurveLimit   uint64             `json:"curve_limit"`

	InitialVirtualTokenReserve uint64 `json:"initial_virtual_token_reserve"`
	InitialVirtualSolReserve   uint64 `json:"initial_virtual_sol_reserve"`
	InitialRealTokenReserve    uint64 `json:"initial_real_token_reserve"`
	TotalTokenSupply           uint64 `json:"total_token_supply"`

	BuyFeePercentage       uint64 `json:"buy_fee_percentage"`
	SellFeePercentage      uint64 `json:"sell_fee_percentage"`
	MigrationFeePercentage uint64 `json:"migration_fee_percentage"`
	MaxPriceImpactBps      uint64 `json:"max_price_impact_bps"`

	Paused bool `json:"paused"`
}

// Validate checks the configuration invariants.
func (c *GlobalConfig) Validate() error {
	if c.TotalTokenSupply == 0 {
		return fmt.Errorf("%w: total token supply must be positive", ErrInvalidConfig)
	}
	required, err := fixedmath.MulDiv(c.TotalTokenSupply, 8, 10)
	if err != nil {
		return err
	}
	if c.InitialVirtualTokenReserve < required {
		return fmt.Errorf("%w: initial virtual token reserve %d below 80%% of supply (%d)",
			ErrInvalidConfig, c.InitialVirtualTokenReserve, required)
	}
	if c.InitialVirtualSolReserve < LamportsPerSol {
		return fmt.Errorf("%w: initial virtual sol reserve %d below one unit", ErrInvalidConfig, c.InitialVirtualSolReserve)
	}
	if c.CurveLimit <= c.InitialVirtualSolReserve {
		return fmt.Errorf("%w: curve limit %d must exceed initial virtual sol reserve %d",
			ErrInvalidConfig, c.CurveLimit, c.InitialVirtualSolReserve)
	}
	if c.InitialRealTokenReserve > c.InitialVirtualTokenReserve {
		return fmt.Errorf("%w: initial real token reserve exceeds virtual reserve", ErrInvalidConfig)
	}
	if c.InitialRealTokenReserve > c.TotalTokenSupply {
		return fmt.Errorf("%w: initial real token reserve exceeds total supply", ErrInvalidConfig)
	}
	for name, fee := range map[string]uint64{
		"buy":       c.BuyFeePercentage,
		"sell":      c.SellFeePercentage,
		"migration": c.MigrationFeePercentage,
	} {
		if fee > fixedmath.FeePrecision {
			return fmt.Errorf("%w: %s fee %d exceeds %d", ErrInvalidConfig, name, fee, fixedmath.FeePrecision)
		}
	}
	if c.MaxPriceImpactBps > fixedmath.BpsPrecision {
		return fmt.Errorf("%w: max price impact %d bps exceeds %d", ErrInvalidConfig, c.MaxPriceImpactBps, fixedmath.BpsPrecision)
	}
	if len(c.Delegates) > MaxDelegates {
		return fmt.Errorf("%w: at most %d delegates", ErrInvalidConfig, MaxDelegates)
	}
	if c.Authority.IsZero() {
		return fmt.Errorf("%w: authority not set", ErrInvalidConfig)
	}
	return nil
}

// IsAuthorized reports whether key is the authority or one of its delegates.
func (c *GlobalConfig) IsAuthorized(key solana.PublicKey) bool {
	if key.IsZero() {
		return false
	}
	if c.Authority.Equals(key) {
		return true
	}
	for _, d := range c.Delegates {
		if d.Equals(key) {
			return true
		}
	}
	return false
}

// TradeParams overlays the configured price-impact ceiling on p.
func (c *GlobalConfig) TradeParams(p Params) Params {
	if c.MaxPriceImpactBps > 0 {
		p.MaxPriceImpactBps = c.MaxPriceImpactBps
	}
	return p
}

// Clone returns a deep copy.
func (c *GlobalConfig) Clone() *GlobalConfig {
	cp := *c
	cp.Delegates = append([]solana.PublicKey(nil), c.Delegates...)
	return &cp
}

// DefaultGlobalConfig returns the launch parameters of the reference
// deployment for authority.
func DefaultGlobalConfig(authority solana.PublicKey) *GlobalConfig {
	return &GlobalConfig{
		Authority:                  authority,
		FeeRecipient:               authority,
		CurveLimit:                 100 * LamportsPerSol,
		InitialVirtualTokenReserve: 800_000_000_000_000,
		InitialVirtualSolReserve:   12_500_000_000,
		InitialRealTokenReserve:    800_000_000_000_000,
		TotalTokenSupply:           1_000_000_000_000_000,
		BuyFeePercentage:           100,
		SellFeePercentage:          100,
		MigrationFeePercentage:     100,
		MaxPriceImpactBps:          DefaultMaxPriceImpactBps,
	}
}
