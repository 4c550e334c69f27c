// =============================
// File: internal/market/errors.go
// =============================
package market

import (
	"errors"
	"fmt"

	"github.com/gagliardetto/solana-go"

	"github.com/rovshanmuradov/bondingcurve/internal/curve"
	"github.com/rovshanmuradov/bondingcurve/internal/fixedmath"
	"github.com/rovshanmuradov/bondingcurve/internal/ledger"
	"github.com/rovshanmuradov/bondingcurve/internal/pool"
	"github.com/rovshanmuradov/bondingcurve/internal/storage"
)

var (
	ErrUnauthorized           = errors.New("unauthorized address")
	ErrPaused                 = errors.New("market is paused")
	ErrNotConfigured          = errors.New("market is not configured")
	ErrCurveNotFound          = errors.New("bonding curve not found")
	ErrInvalidPoolState       = errors.New("pool is not tradable")
	ErrInvalidPoolTokens      = errors.New("pool assets do not match the curve")
	ErrSlippageExceeded       = errors.New("migration slippage exceeded")
	ErrInsufficientSolBalance = errors.New("curve custody cannot cover payout")
	ErrInvalidMetadata        = errors.New("invalid token metadata")
	ErrInvalidRequest         = errors.New("invalid request")
)

// Kind classifies why an operation was aborted.
type Kind uint8

const (
	KindUnknown Kind = iota
	KindAuthorization
	KindInvalidConfiguration
	KindArithmetic
	KindSlippage
	KindLiquidity
	KindState
	KindCollaboratorMismatch
	KindDustAmount
	KindInvalidRequest
	KindNotFound
)

func (k Kind) String() string {
	switch k {
	case KindAuthorization:
		return "authorization"
	case KindInvalidConfiguration:
		return "invalid_configuration"
	case KindArithmetic:
		return "arithmetic_failure"
	case KindSlippage:
		return "slippage_violation"
	case KindLiquidity:
		return "liquidity_violation"
	case KindState:
		return "state_violation"
	case KindCollaboratorMismatch:
		return "collaborator_mismatch"
	case KindDustAmount:
		return "dust_amount"
	case KindInvalidRequest:
		return "invalid_request"
	case KindNotFound:
		return "not_found"
	default:
		return "unknown"
	}
}

// Error is returned by every market operation that aborts. It carries the
// reserve snapshot the operation saw so a caller can adjust and resubmit.
type Error struct {
	Kind         Kind
	Op           string
	Mint         solana.PublicKey
	AmountIn     uint64
	MinAmountOut uint64
	Reserves     curve.Reserves
	Err          error
}

func (e *Error) Error() string {
	if e.Mint.IsZero() {
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s %s: %s: %v (amount_in=%d min_out=%d sol_reserve=%d token_reserve=%d)",
		e.Op, e.Mint, e.Kind, e.Err, e.AmountIn, e.MinAmountOut, e.Reserves.Sol, e.Reserves.Token)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf returns the kind of err, classifying bare errors by their sentinel.
func KindOf(err error) Kind {
	if err == nil {
		return KindUnknown
	}
	var me *Error
	if errors.As(err, &me) {
		return me.Kind
	}
	return classify(err)
}

func classify(err error) Kind {
	switch {
	case errors.Is(err, ErrUnauthorized):
		return KindAuthorization
	case errors.Is(err, ErrNotConfigured),
		errors.Is(err, curve.ErrInvalidConfig):
		return KindInvalidConfiguration
	case errors.Is(err, curve.ErrDustAmount):
		return KindDustAmount
	case errors.Is(err, curve.ErrInsufficientAmountOut),
		errors.Is(err, curve.ErrExcessivePriceImpact),
		errors.Is(err, ErrSlippageExceeded):
		return KindSlippage
	case errors.Is(err, curve.ErrInsufficientLiquidity),
		errors.Is(err, ErrInsufficientSolBalance),
		errors.Is(err, ledger.ErrInsufficientBalance):
		return KindLiquidity
	case errors.Is(err, fixedmath.ErrMathOverflow),
		errors.Is(err, fixedmath.ErrDivisionByZero),
		errors.Is(err, ledger.ErrBalanceOverflow),
		errors.Is(err, curve.ErrZeroReserves):
		return KindArithmetic
	case errors.Is(err, ErrPaused),
		errors.Is(err, curve.ErrCurveCompleted),
		errors.Is(err, curve.ErrCurveNotComplete),
		errors.Is(err, curve.ErrAlreadyMigrated):
		return KindState
	case errors.Is(err, ErrInvalidPoolState),
		errors.Is(err, ErrInvalidPoolTokens),
		errors.Is(err, pool.ErrPoolNotFound),
		errors.Is(err, pool.ErrDepositDisabled):
		return KindCollaboratorMismatch
	case errors.Is(err, ErrInvalidMetadata),
		errors.Is(err, ErrInvalidRequest),
		errors.Is(err, curve.ErrInvalidDirection):
		return KindInvalidRequest
	case errors.Is(err, ErrCurveNotFound),
		errors.Is(err, storage.ErrNotFound):
		return KindNotFound
	default:
		return KindUnknown
	}
}
