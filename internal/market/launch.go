package market

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/gagliardetto/solana-go"
	"go.uber.org/zap"

	"github.com/rovshanmuradov/bondingcurve/internal/curve"
	"github.com/rovshanmuradov/bondingcurve/internal/events"
	"github.com/rovshanmuradov/bondingcurve/internal/ledger"
)

// Metadata length limits, in characters.
const (
	MaxNameLength   = 32
	MaxSymbolLength = 10
	MaxURILength    = 200
)

// LaunchRequest creates a new token and its curve.
type LaunchRequest struct {
	Creator solana.PublicKey `json:"creator"`
	Name    string           `json:"name"`
	Symbol  string           `json:"symbol"`
	URI     string           `json:"uri"`
}

func (r LaunchRequest) metadata() (curve.Metadata, error) {
	m := curve.Metadata{
		Name:   strings.TrimSpace(r.Name),
		Symbol: strings.TrimSpace(r.Symbol),
		URI:    strings.TrimSpace(r.URI),
	}
	switch {
	case m.Name == "" || utf8.RuneCountInString(m.Name) > MaxNameLength:
		return m, fmt.Errorf("%w: name must be 1-%d characters", ErrInvalidMetadata, MaxNameLength)
	case m.Symbol == "" || utf8.RuneCountInString(m.Symbol) > MaxSymbolLength:
		return m, fmt.Errorf("%w: symbol must be 1-%d characters", ErrInvalidMetadata, MaxSymbolLength)
	case utf8.RuneCountInString(m.URI) > MaxURILength:
		return m, fmt.Errorf("%w: uri longer than %d characters", ErrInvalidMetadata, MaxURILength)
	}
	return m, nil
}

// Launch issues a new token, funds its custody with the rent buffer paid by
// the creator, mints the whole supply into custody, revokes the mint
// authority and opens the curve for trading.
func (s *Service) Launch(ctx context.Context, req LaunchRequest) (*curve.BondingCurve, error) {
	const op = "launch"
	start := s.opts.Now()
	var nomint solana.PublicKey

	if req.Creator.IsZero() {
		return nil, s.fail(op, nomint, nil, 0, 0, fmt.Errorf("%w: creator required", ErrInvalidRequest))
	}
	cfg, err := s.tradingConfig()
	if err != nil {
		return nil, s.fail(op, nomint, nil, 0, 0, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, s.fail(op, nomint, nil, 0, 0, err)
	}
	meta, err := req.metadata()
	if err != nil {
		return nil, s.fail(op, nomint, nil, 0, 0, err)
	}

	mint, err := ledger.NewMintAddress()
	if err != nil {
		return nil, s.fail(op, nomint, nil, 0, 0, err)
	}
	custody, bump, err := ledger.DeriveCustody(s.opts.ProgramID, mint)
	if err != nil {
		return nil, s.fail(op, mint, nil, 0, 0, err)
	}
	rentBuffer := 2 * s.opts.RentExemptMinimum
	funding := []ledger.Transfer{{Asset: ledger.BaseAsset, From: req.Creator, To: custody, Amount: rentBuffer}}
	if err := s.ledger.Apply(ctx, funding...); err != nil {
		return nil, s.fail(op, mint, nil, rentBuffer, 0, fmt.Errorf("fund custody: %w", err))
	}

	if err := s.issue(ctx, mint, custody, cfg.TotalTokenSupply); err != nil {
		s.rollback(ctx, op, funding)
		return nil, s.fail(op, mint, nil, 0, 0, err)
	}

	now := s.opts.Now()
	c := &curve.BondingCurve{
		Mint:                mint,
		Custody:             custody,
		Creator:             req.Creator,
		Bump:                bump,
		Metadata:            meta,
		VirtualTokenReserve: cfg.InitialVirtualTokenReserve,
		VirtualSolReserve:   cfg.InitialVirtualSolReserve,
		RealTokenReserve:    cfg.InitialRealTokenReserve,
		RealSolReserve:      rentBuffer,
		TokenTotalSupply:    cfg.TotalTokenSupply,
		Phase:               curve.PhaseTrading,
		CreatedAt:           now,
		UpdatedAt:           now,
	}
	if err := s.store.CreateCurve(ctx, c); err != nil {
		// The minted supply stays in custody of an unregistered mint; only the
		// creator's rent is returned.
		s.rollback(ctx, op, funding)
		return nil, s.fail(op, mint, nil, 0, 0, fmt.Errorf("store curve: %w", err))
	}

	s.logger.Info("Token launched",
		zap.String("mint", mint.String()),
		zap.String("custody", custody.String()),
		zap.String("creator", req.Creator.String()),
		zap.String("symbol", meta.Symbol))
	s.metrics.RecordLaunch(mint.String(), c.VirtualSolReserve, c.VirtualTokenReserve)
	s.metrics.ObserveSettlement(op, s.opts.Now().Sub(start))
	s.publish(&events.TokenLaunchedEvent{
		BaseEvent:           events.NewBase(events.TokenLaunched),
		Mint:                mint,
		Creator:             req.Creator,
		Name:                meta.Name,
		Symbol:              meta.Symbol,
		URI:                 meta.URI,
		TotalSupply:         c.TokenTotalSupply,
		VirtualSolReserve:   c.VirtualSolReserve,
		VirtualTokenReserve: c.VirtualTokenReserve,
	})

	cp := *c
	return &cp, nil
}

// issue creates the mint with custody as its authority, mints supply into
// custody and revokes the authority.
func (s *Service) issue(ctx context.Context, mint, custody solana.PublicKey, supply uint64) error {
	if _, err := s.ledger.CreateMint(ctx, mint, custody, uint8(curve.TokenDecimals)); err != nil {
		return fmt.Errorf("create mint: %w", err)
	}
	if err := s.ledger.MintTo(ctx, mint, custody, custody, supply); err != nil {
		return fmt.Errorf("mint supply: %w", err)
	}
	if err := s.ledger.RevokeMintAuthority(ctx, mint, custody); err != nil {
		return fmt.Errorf("revoke mint authority: %w", err)
	}
	return nil
}
