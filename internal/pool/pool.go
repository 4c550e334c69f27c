// =============================
// File: internal/pool/pool.go
// =============================
package pool

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"sync"

	"github.com/gagliardetto/solana-go"
	"go.uber.org/zap"
)

// ProgramID is the constant-product AMM that receives migrated liquidity.
var ProgramID = solana.MustPublicKeyFromBase58("pAMMBay6oceH9fJKBRHGP5D4bD4sWpmSwMn52FMfXEA")

// Disable flag bits, same layout as the AMM global config.
const (
	DisableCreatePool = 1 << iota
	DisableDeposit
	DisableWithdraw
	DisableBuy
	DisableSell
)

var (
	ErrPoolNotFound    = errors.New("pool not found")
	ErrPoolExists      = errors.New("pool already exists")
	ErrDepositDisabled = errors.New("pool deposits disabled")
	ErrSameMint        = errors.New("pool assets must differ")
)

// Info is the observable state of a pool.
type Info struct {
	Address      solana.PublicKey `json:"address"`
	Creator      solana.PublicKey `json:"creator"`
	BaseMint     solana.PublicKey `json:"base_mint"`
	QuoteMint    solana.PublicKey `json:"quote_mint"`
	LPMint       solana.PublicKey `json:"lp_mint"`
	Index        uint16           `json:"index"`
	Bump         uint8            `json:"bump"`
	BaseReserve  uint64           `json:"base_reserve"`
	QuoteReserve uint64           `json:"quote_reserve"`
	Initialized  bool             `json:"initialized"`
	DisableFlags uint8            `json:"disable_flags"`
}

// Tradable reports whether the pool is initialized with swaps and deposits
// enabled.
func (i *Info) Tradable() bool {
	return i.Initialized && i.DisableFlags&(DisableDeposit|DisableBuy|DisableSell) == 0
}

// Holds reports whether mint is one of the pool's two assets.
func (i *Info) Holds(mint solana.PublicKey) bool {
	return i.BaseMint.Equals(mint) || i.QuoteMint.Equals(mint)
}

// Registry keeps every pool created through it. Reads return copies.
type Registry struct {
	mu        sync.RWMutex
	programID solana.PublicKey
	pools     map[solana.PublicKey]*Info
	logger    *zap.Logger
}

// NewRegistry creates an empty registry for programID.
func NewRegistry(logger *zap.Logger, programID solana.PublicKey) *Registry {
	return &Registry{
		programID: programID,
		pools:     make(map[solana.PublicKey]*Info),
		logger:    logger.Named("pool"),
	}
}

// DerivePoolAddress returns the pool PDA for the given index, creator and
// asset pair.
func DerivePoolAddress(programID solana.PublicKey, index uint16, creator, baseMint, quoteMint solana.PublicKey) (solana.PublicKey, uint8, error) {
	idx := make([]byte, 2)
	binary.LittleEndian.PutUint16(idx, index)
	return solana.FindProgramAddress(
		[][]byte{[]byte("pool"), idx, creator.Bytes(), baseMint.Bytes(), quoteMint.Bytes()},
		programID,
	)
}

// CreatePool registers an initialized, empty pool for the pair.
func (r *Registry) CreatePool(_ context.Context, creator, baseMint, quoteMint solana.PublicKey) (*Info, error) {
	if baseMint.Equals(quoteMint) {
		return nil, ErrSameMint
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	var index uint16
	for _, p := range r.pools {
		if p.Creator.Equals(creator) && p.BaseMint.Equals(baseMint) && p.QuoteMint.Equals(quoteMint) && p.Index >= index {
			index = p.Index + 1
		}
	}
	addr, bump, err := DerivePoolAddress(r.programID, index, creator, baseMint, quoteMint)
	if err != nil {
		return nil, fmt.Errorf("derive pool address: %w", err)
	}
	if _, ok := r.pools[addr]; ok {
		return nil, fmt.Errorf("%w: %s", ErrPoolExists, addr)
	}
	lpMint, _, err := solana.FindProgramAddress([][]byte{[]byte("pool_lp_mint"), addr.Bytes()}, r.programID)
	if err != nil {
		return nil, fmt.Errorf("derive lp mint: %w", err)
	}

	info := &Info{
		Address:     addr,
		Creator:     creator,
		BaseMint:    baseMint,
		QuoteMint:   quoteMint,
		LPMint:      lpMint,
		Index:       index,
		Bump:        bump,
		Initialized: true,
	}
	r.pools[addr] = info

	r.logger.Info("Pool created",
		zap.String("pool", addr.String()),
		zap.String("base_mint", baseMint.String()),
		zap.String("quote_mint", quoteMint.String()))
	cp := *info
	return &cp, nil
}

// FetchPoolInfo returns the current state of the pool at address.
func (r *Registry) FetchPoolInfo(_ context.Context, address solana.PublicKey) (*Info, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.pools[address]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrPoolNotFound, address)
	}
	cp := *p
	return &cp, nil
}

// FindPool returns the first pool holding the two mints in either order.
func (r *Registry) FindPool(_ context.Context, mintA, mintB solana.PublicKey) (*Info, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var best *Info
	for _, p := range r.pools {
		if !p.Holds(mintA) || !p.Holds(mintB) {
			continue
		}
		if best == nil || p.Index < best.Index {
			best = p
		}
	}
	if best == nil {
		return nil, fmt.Errorf("%w: %s/%s", ErrPoolNotFound, mintA, mintB)
	}
	cp := *best
	return &cp, nil
}

// SetDisableFlags replaces the pool's disable mask.
func (r *Registry) SetDisableFlags(_ context.Context, address solana.PublicKey, flags uint8) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.pools[address]
	if !ok {
		return fmt.Errorf("%w: %s", ErrPoolNotFound, address)
	}
	p.DisableFlags = flags
	return nil
}

// Deposit records liquidity that has been moved into the pool's custody.
// Amounts are keyed by mint so callers need not know the pool's ordering.
func (r *Registry) Deposit(_ context.Context, address solana.PublicKey, amounts map[solana.PublicKey]uint64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.pools[address]
	if !ok {
		return fmt.Errorf("%w: %s", ErrPoolNotFound, address)
	}
	if !p.Initialized || p.DisableFlags&DisableDeposit != 0 {
		return ErrDepositDisabled
	}

	base, quote := p.BaseReserve, p.QuoteReserve
	for mint, amount := range amounts {
		switch {
		case p.BaseMint.Equals(mint):
			if base+amount < base {
				return fmt.Errorf("base reserve overflow")
			}
			base += amount
		case p.QuoteMint.Equals(mint):
			if quote+amount < quote {
				return fmt.Errorf("quote reserve overflow")
			}
			quote += amount
		default:
			return fmt.Errorf("mint %s is not part of pool %s", mint, address)
		}
	}
	p.BaseReserve, p.QuoteReserve = base, quote

	r.logger.Info("Liquidity deposited",
		zap.String("pool", address.String()),
		zap.Uint64("base_reserve", base),
		zap.Uint64("quote_reserve", quote))
	return nil
}
