package api

import (
	"fmt"
	"net/http"

	"github.com/gagliardetto/solana-go"

	"github.com/rovshanmuradov/bondingcurve/internal/ledger"
	"github.com/rovshanmuradov/bondingcurve/internal/pool"
)

const defaultTail = 100

type fundRequest struct {
	Amount uint64 `json:"amount"`
}

type balanceResponse struct {
	Owner   solana.PublicKey `json:"owner"`
	Asset   solana.PublicKey `json:"asset"`
	Balance uint64           `json:"balance"`
}

type createPoolRequest struct {
	Creator   solana.PublicKey `json:"creator"`
	BaseMint  solana.PublicKey `json:"base_mint"`
	QuoteMint solana.PublicKey `json:"quote_mint"`
}

type poolFlagsRequest struct {
	DisableFlags uint8 `json:"disable_flags"`
}

type poolQuoteResponse struct {
	Pool        solana.PublicKey `json:"pool"`
	AmountIn    uint64           `json:"amount_in"`
	AmountOut   uint64           `json:"amount_out"`
	BaseToQuote bool             `json:"base_to_quote"`
	FeeBps      uint64           `json:"fee_bps"`
}

// FundAccount credits base currency to an owner.
func (s *Server) FundAccount(w http.ResponseWriter, r *http.Request) {
	owner, err := pathKey(r, "owner")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var req fundRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.accounts.Fund(r.Context(), owner, req.Amount); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeBalance(w, r, ledger.BaseAsset, owner)
}

// GetBalance reports ?asset= (base currency when omitted) held by owner.
func (s *Server) GetBalance(w http.ResponseWriter, r *http.Request) {
	owner, err := pathKey(r, "owner")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	asset := ledger.BaseAsset
	if r.URL.Query().Get("asset") != "" {
		if asset, err = queryKey(r, "asset"); err != nil {
			s.writeError(w, r, err)
			return
		}
	}
	s.writeBalance(w, r, asset, owner)
}

func (s *Server) writeBalance(w http.ResponseWriter, r *http.Request, asset, owner solana.PublicKey) {
	balance, err := s.accounts.Balance(r.Context(), asset, owner)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, balanceResponse{Owner: owner, Asset: asset, Balance: balance})
}

func (s *Server) CreatePool(w http.ResponseWriter, r *http.Request) {
	var req createPoolRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if req.Creator.IsZero() || req.BaseMint.IsZero() || req.QuoteMint.IsZero() {
		s.writeError(w, r, fmt.Errorf("%w: creator, base_mint and quote_mint are required", errBadRequest))
		return
	}
	info, err := s.pools.CreatePool(r.Context(), req.Creator, req.BaseMint, req.QuoteMint)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, info)
}

// FindPool looks a pool up by ?mint_a=&mint_b= in either order.
func (s *Server) FindPool(w http.ResponseWriter, r *http.Request) {
	a, err := queryKey(r, "mint_a")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	b, err := queryKey(r, "mint_b")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	info, err := s.pools.FindPool(r.Context(), a, b)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, info)
}

func (s *Server) GetPool(w http.ResponseWriter, r *http.Request) {
	address, err := pathKey(r, "address")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	info, err := s.pools.FetchPoolInfo(r.Context(), address)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, info)
}

func (s *Server) SetPoolFlags(w http.ResponseWriter, r *http.Request) {
	address, err := pathKey(r, "address")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var req poolFlagsRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.pools.SetDisableFlags(r.Context(), address, req.DisableFlags); err != nil {
		s.writeError(w, r, err)
		return
	}
	info, err := s.pools.FetchPoolInfo(r.Context(), address)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, info)
}

// GetPoolQuote prices ?amount= against the pool; ?side=sell swaps base for
// quote, anything else buys base with quote.
func (s *Server) GetPoolQuote(w http.ResponseWriter, r *http.Request) {
	address, err := pathKey(r, "address")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	amount, err := queryUint(r, "amount")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	info, err := s.pools.FetchPoolInfo(r.Context(), address)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	baseToQuote := r.URL.Query().Get("side") == "sell"
	out, err := info.SwapQuote(amount, baseToQuote, pool.DefaultFeeBps)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, poolQuoteResponse{
		Pool:        address,
		AmountIn:    amount,
		AmountOut:   out,
		BaseToQuote: baseToQuote,
		FeeBps:      pool.DefaultFeeBps,
	})
}

// ListEvents returns the most recent ?limit= events, oldest first.
func (s *Server) ListEvents(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit", defaultTail)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	recent := s.events.Events()
	if limit > 0 && len(recent) > limit {
		recent = recent[len(recent)-limit:]
	}
	s.writeJSON(w, http.StatusOK, recent)
}

func (s *Server) ListLogs(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit", defaultTail)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, s.logs.Recent(limit))
}
