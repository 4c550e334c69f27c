// =============================
// File: internal/ledger/ledger.go
// =============================
package ledger

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/gagliardetto/solana-go"
	"go.uber.org/zap"
)

var (
	ErrInsufficientBalance  = errors.New("insufficient balance")
	ErrUnknownMint          = errors.New("unknown mint")
	ErrMintExists           = errors.New("mint already exists")
	ErrMintAuthorityRevoked = errors.New("mint authority revoked")
	ErrNotMintAuthority     = errors.New("signer is not the mint authority")
	ErrBalanceOverflow      = errors.New("balance overflow")
	ErrZeroAmount           = errors.New("amount must be positive")
)

// BaseAsset identifies the native currency in every ledger call.
var BaseAsset = solana.SolMint

// InsufficientBalanceError reports the account that could not cover a debit.
type InsufficientBalanceError struct {
	Asset   solana.PublicKey
	Account solana.PublicKey
	Balance uint64
	Amount  uint64
}

func (e *InsufficientBalanceError) Error() string {
	return fmt.Sprintf("insufficient balance: account %s holds %d of %s, needs %d",
		e.Account, e.Balance, e.Asset, e.Amount)
}

func (e *InsufficientBalanceError) Unwrap() error {
	return ErrInsufficientBalance
}

// Transfer moves Amount of Asset between two owners.
type Transfer struct {
	Asset  solana.PublicKey
	From   solana.PublicKey
	To     solana.PublicKey
	Amount uint64
}

// Mint is the issuance record of a fungible token.
type Mint struct {
	Address   solana.PublicKey  `json:"address"`
	Authority *solana.PublicKey `json:"authority,omitempty"`
	Decimals  uint8             `json:"decimals"`
	Supply    uint64            `json:"supply"`
}

type accountKey struct {
	asset solana.PublicKey
	owner solana.PublicKey
}

// Ledger is an in-memory custody and issuance book. A batch passed to Apply
// is validated in full before any balance changes.
type Ledger struct {
	mu       sync.RWMutex
	balances map[accountKey]uint64
	mints    map[solana.PublicKey]*Mint
	logger   *zap.Logger
}

// New creates an empty ledger.
func New(logger *zap.Logger) *Ledger {
	return &Ledger{
		balances: make(map[accountKey]uint64),
		mints:    make(map[solana.PublicKey]*Mint),
		logger:   logger.Named("ledger"),
	}
}

// Balance returns the holding of owner in asset.
func (l *Ledger) Balance(_ context.Context, asset, owner solana.PublicKey) (uint64, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if !asset.Equals(BaseAsset) {
		if _, ok := l.mints[asset]; !ok {
			return 0, fmt.Errorf("%w: %s", ErrUnknownMint, asset)
		}
	}
	return l.balances[accountKey{asset, owner}], nil
}

// Fund credits base currency to owner. It is the only way base currency
// enters the ledger.
func (l *Ledger) Fund(_ context.Context, owner solana.PublicKey, amount uint64) error {
	if amount == 0 {
		return ErrZeroAmount
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	key := accountKey{BaseAsset, owner}
	next := l.balances[key] + amount
	if next < amount {
		return ErrBalanceOverflow
	}
	l.balances[key] = next
	l.logger.Debug("Funded account",
		zap.String("owner", owner.String()),
		zap.Uint64("amount", amount))
	return nil
}

// Apply executes transfers in order as one unit. Every debit is checked
// against the balance it would see at that point in the batch. If any step
// fails nothing is written.
func (l *Ledger) Apply(ctx context.Context, transfers ...Transfer) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	staged := make(map[accountKey]uint64)
	read := func(k accountKey) uint64 {
		if v, ok := staged[k]; ok {
			return v
		}
		return l.balances[k]
	}

	for i, t := range transfers {
		if t.Amount == 0 {
			continue
		}
		if !t.Asset.Equals(BaseAsset) {
			if _, ok := l.mints[t.Asset]; !ok {
				return fmt.Errorf("transfer %d: %w: %s", i, ErrUnknownMint, t.Asset)
			}
		}
		from := accountKey{t.Asset, t.From}
		to := accountKey{t.Asset, t.To}

		have := read(from)
		if have < t.Amount {
			return fmt.Errorf("transfer %d: %w", i, &InsufficientBalanceError{
				Asset:   t.Asset,
				Account: t.From,
				Balance: have,
				Amount:  t.Amount,
			})
		}
		staged[from] = have - t.Amount

		dst := read(to)
		if dst+t.Amount < dst {
			return fmt.Errorf("transfer %d: %w", i, ErrBalanceOverflow)
		}
		staged[to] = dst + t.Amount
	}

	for k, v := range staged {
		if v == 0 {
			delete(l.balances, k)
			continue
		}
		l.balances[k] = v
	}
	return nil
}

// CreateMint registers a new token with authority as its minting authority.
func (l *Ledger) CreateMint(_ context.Context, address, authority solana.PublicKey, decimals uint8) (*Mint, error) {
	if address.Equals(BaseAsset) {
		return nil, fmt.Errorf("%w: %s is the base asset", ErrMintExists, address)
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.mints[address]; ok {
		return nil, fmt.Errorf("%w: %s", ErrMintExists, address)
	}
	auth := authority
	m := &Mint{Address: address, Authority: &auth, Decimals: decimals}
	l.mints[address] = m

	l.logger.Info("Mint created",
		zap.String("mint", address.String()),
		zap.String("authority", authority.String()),
		zap.Uint8("decimals", decimals))
	return copyMint(m), nil
}

// MintTo issues amount new tokens to owner. signer must hold the authority.
func (l *Ledger) MintTo(_ context.Context, mint, signer, owner solana.PublicKey, amount uint64) error {
	if amount == 0 {
		return ErrZeroAmount
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	m, err := l.authorizedMint(mint, signer)
	if err != nil {
		return err
	}
	if m.Supply+amount < m.Supply {
		return ErrBalanceOverflow
	}
	key := accountKey{mint, owner}
	m.Supply += amount
	l.balances[key] += amount
	return nil
}

// RevokeMintAuthority removes the mint authority permanently.
func (l *Ledger) RevokeMintAuthority(_ context.Context, mint, signer solana.PublicKey) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	m, err := l.authorizedMint(mint, signer)
	if err != nil {
		return err
	}
	m.Authority = nil
	l.logger.Info("Mint authority revoked", zap.String("mint", mint.String()))
	return nil
}

// MintInfo returns a copy of the issuance record.
func (l *Ledger) MintInfo(_ context.Context, mint solana.PublicKey) (*Mint, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	m, ok := l.mints[mint]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownMint, mint)
	}
	return copyMint(m), nil
}

func (l *Ledger) authorizedMint(mint, signer solana.PublicKey) (*Mint, error) {
	m, ok := l.mints[mint]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownMint, mint)
	}
	if m.Authority == nil {
		return nil, fmt.Errorf("%w: %s", ErrMintAuthorityRevoked, mint)
	}
	if !m.Authority.Equals(signer) {
		return nil, ErrNotMintAuthority
	}
	return m, nil
}

func copyMint(m *Mint) *Mint {
	c := *m
	if m.Authority != nil {
		a := *m.Authority
		c.Authority = &a
	}
	return &c
}
