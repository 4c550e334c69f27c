// =============================
// File: internal/curve/state.go
// =============================
package curve

import (
	"fmt"
	"time"

	"github.com/gagliardetto/solana-go"

	"github.com/rovshanmuradov/bondingcurve/internal/fixedmath"
)

// Phase is the lifecycle stage of a bonding curve. Transitions only move
// forward: Trading -> Completed -> Migrated.
type Phase uint8

const (
	PhaseTrading Phase = iota
	PhaseCompleted
	PhaseMigrated
)

func (p Phase) String() string {
	switch p {
	case PhaseTrading:
		return "trading"
	case PhaseCompleted:
		return "completed"
	case PhaseMigrated:
		return "migrated"
	default:
		return fmt.Sprintf("phase(%d)", uint8(p))
	}
}

// ParsePhase is the inverse of Phase.String.
func ParsePhase(s string) (Phase, error) {
	switch s {
	case "trading":
		return PhaseTrading, nil
	case "completed":
		return PhaseCompleted, nil
	case "migrated":
		return PhaseMigrated, nil
	default:
		return 0, fmt.Errorf("unknown curve phase %q", s)
	}
}

func (p Phase) MarshalText() ([]byte, error) {
	if p > PhaseMigrated {
		return nil, fmt.Errorf("unknown curve phase %d", uint8(p))
	}
	return []byte(p.String()), nil
}

func (p *Phase) UnmarshalText(b []byte) error {
	v, err := ParsePhase(string(b))
	if err != nil {
		return err
	}
	*p = v
	return nil
}

// Metadata is the descriptive data registered for a launched token.
type Metadata struct {
	Name   string `json:"name"`
	Symbol string `json:"symbol"`
	URI    string `json:"uri"`
}

// BondingCurve is the authoritative record of one launched token.
type BondingCurve struct {
	Mint    solana.PublicKey `json:"mint"`
	Custody solana.PublicKey `json:"custody"`
	Creator solana.PublicKey `json:"creator"`
	Bump    uint8            `json:"bump"`

	Metadata Metadata `json:"metadata"`

	VirtualTokenReserve uint64 `json:"virtual_token_reserve"`
	VirtualSolReserve   uint64 `json:"virtual_sol_reserve"`
	RealTokenReserve    uint64 `json:"real_token_reserve"`
	RealSolReserve      uint64 `json:"real_sol_reserve"`
	TokenTotalSupply    uint64 `json:"token_total_supply"`

	Phase Phase `json:"phase"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Reserves returns the virtual reserve snapshot used for pricing.
func (c *BondingCurve) Reserves() Reserves {
	return Reserves{Sol: c.VirtualSolReserve, Token: c.VirtualTokenReserve}
}

// IsCompleted reports whether the funding target has been reached.
func (c *BondingCurve) IsCompleted() bool { return c.Phase >= PhaseCompleted }

// IsMigrated reports whether liquidity has been handed to the pool.
func (c *BondingCurve) IsMigrated() bool { return c.Phase == PhaseMigrated }

// CanTrade fails unless the curve is still in the trading phase.
func (c *BondingCurve) CanTrade() error {
	switch c.Phase {
	case PhaseTrading:
		return nil
	case PhaseMigrated:
		return ErrAlreadyMigrated
	default:
		return ErrCurveCompleted
	}
}

// UpdateReserves replaces both virtual reserves at once. The base reserve may
// not drop below minSol and neither reserve may reach zero.
func (c *BondingCurve) UpdateReserves(newSol, newToken, minSol uint64) error {
	if newSol < minSol || newSol == 0 || newToken == 0 {
		return fmt.Errorf("%w: sol=%d token=%d floor=%d", ErrInsufficientLiquidity, newSol, newToken, minSol)
	}
	c.VirtualSolReserve = newSol
	c.VirtualTokenReserve = newToken
	return nil
}

// CheckCompletion moves the curve to Completed once newSol reaches the limit.
// It is idempotent: a completed or migrated curve always reports true.
func (c *BondingCurve) CheckCompletion(newSol, curveLimit uint64) bool {
	if c.Phase >= PhaseCompleted {
		return true
	}
	if newSol >= curveLimit {
		c.Phase = PhaseCompleted
		return true
	}
	return false
}

// CheckMigrationEligibility requires a completed, not yet migrated curve.
func (c *BondingCurve) CheckMigrationEligibility() error {
	switch c.Phase {
	case PhaseCompleted:
		return nil
	case PhaseMigrated:
		return ErrAlreadyMigrated
	default:
		return ErrCurveNotComplete
	}
}

// MarkMigrated performs the terminal transition.
func (c *BondingCurve) MarkMigrated() error {
	if err := c.CheckMigrationEligibility(); err != nil {
		return err
	}
	c.Phase = PhaseMigrated
	return nil
}

// Apply commits a quote produced against c.Reserves(). It updates virtual and
// real reserves and reports whether the trade completed the curve. On error c
// is left untouched.
func (c *BondingCurve) Apply(q Quote, p Params, curveLimit uint64) (bool, error) {
	if err := c.CanTrade(); err != nil {
		return false, err
	}
	if q.Before != c.Reserves() {
		return false, fmt.Errorf("quote priced against stale reserves %+v, current %+v", q.Before, c.Reserves())
	}

	next := *c
	var err error
	switch q.Direction {
	case Buy:
		if next.RealSolReserve, err = fixedmath.Add(c.RealSolReserve, q.SolDelta); err != nil {
			return false, err
		}
		if next.RealTokenReserve, err = fixedmath.Sub(c.RealTokenReserve, q.TokenDelta); err != nil {
			return false, fmt.Errorf("%w: real token reserve %d < %d", ErrInsufficientLiquidity, c.RealTokenReserve, q.TokenDelta)
		}
	case Sell:
		if next.RealSolReserve, err = fixedmath.Sub(c.RealSolReserve, q.SolDelta); err != nil {
			return false, fmt.Errorf("%w: real sol reserve %d < %d", ErrInsufficientLiquidity, c.RealSolReserve, q.SolDelta)
		}
		if next.RealTokenReserve, err = fixedmath.Add(c.RealTokenReserve, q.TokenDelta); err != nil {
			return false, err
		}
	default:
		return false, ErrInvalidDirection
	}

	if err := next.UpdateReserves(q.After.Sol, q.After.Token, p.MinSolReserve); err != nil {
		return false, err
	}
	completed := next.CheckCompletion(q.After.Sol, curveLimit)

	*c = next
	return completed, nil
}
