package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gagliardetto/solana-go"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/rovshanmuradov/bondingcurve/internal/curve"
	"github.com/rovshanmuradov/bondingcurve/internal/export"
	"github.com/rovshanmuradov/bondingcurve/internal/market"
)

const (
	maxBodyBytes       = 1 << 20
	defaultProjectSize = 50
	maxProjectSize     = 1000
)

// ConfigRequest is the body of PUT /v1/config.
type ConfigRequest struct {
	Caller solana.PublicKey   `json:"caller"`
	Config curve.GlobalConfig `json:"config"`
}

type listResponse struct {
	Items  interface{} `json:"items"`
	Count  int         `json:"count"`
	Limit  int         `json:"limit"`
	Offset int         `json:"offset"`
}

func decodeBody(r *http.Request, v interface{}) error {
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: %v", errBadRequest, err)
	}
	return nil
}

func pathKey(r *http.Request, name string) (solana.PublicKey, error) {
	key, err := solana.PublicKeyFromBase58(chi.URLParam(r, name))
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("%w: invalid %s: %v", errBadRequest, name, err)
	}
	return key, nil
}

func queryKey(r *http.Request, name string) (solana.PublicKey, error) {
	key, err := solana.PublicKeyFromBase58(r.URL.Query().Get(name))
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("%w: invalid %s: %v", errBadRequest, name, err)
	}
	return key, nil
}

func queryInt(r *http.Request, name string, fallback int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return 0, fmt.Errorf("%w: invalid %s %q", errBadRequest, name, raw)
	}
	return v, nil
}

func queryUint(r *http.Request, name string) (uint64, error) {
	raw := r.URL.Query().Get(name)
	v, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: invalid %s %q", errBadRequest, name, raw)
	}
	return v, nil
}

func page(r *http.Request) (limit, offset int, err error) {
	if limit, err = queryInt(r, "limit", market.DefaultPageSize); err != nil {
		return 0, 0, err
	}
	if offset, err = queryInt(r, "offset", 0); err != nil {
		return 0, 0, err
	}
	return limit, offset, nil
}

func (s *Server) GetConfig(w http.ResponseWriter, r *http.Request) {
	cfg, err := s.market.Config(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, cfg)
}

func (s *Server) PutConfig(w http.ResponseWriter, r *http.Request) {
	var req ConfigRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	cfg, err := s.market.Configure(r.Context(), req.Caller, req.Config)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, cfg)
}

func (s *Server) LaunchCurve(w http.ResponseWriter, r *http.Request) {
	var req market.LaunchRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	c, err := s.market.Launch(r.Context(), req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, c)
}

func (s *Server) ListCurves(w http.ResponseWriter, r *http.Request) {
	limit, offset, err := page(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	curves, err := s.market.Curves(r.Context(), limit, offset)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, listResponse{Items: curves, Count: len(curves), Limit: limit, Offset: offset})
}

func (s *Server) GetCurve(w http.ResponseWriter, r *http.Request) {
	mint, err := pathKey(r, "mint")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	c, err := s.market.Curve(r.Context(), mint)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, c)
}

// GetQuote previews ?direction=buy|sell&amount=<base units>.
func (s *Server) GetQuote(w http.ResponseWriter, r *http.Request) {
	mint, err := pathKey(r, "mint")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	dir, err := curve.ParseDirection(r.URL.Query().Get("direction"))
	if err != nil {
		s.writeError(w, r, fmt.Errorf("%w: %v", errBadRequest, err))
		return
	}
	amount, err := queryUint(r, "amount")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	q, err := s.market.Quote(r.Context(), mint, dir, amount)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, q)
}

func (s *Server) GetProjection(w http.ResponseWriter, r *http.Request) {
	mint, err := pathKey(r, "mint")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	steps, err := queryInt(r, "steps", defaultProjectSize)
	if err != nil || steps == 0 || steps > maxProjectSize {
		s.writeError(w, r, fmt.Errorf("%w: steps must be within 1..%d", errBadRequest, maxProjectSize))
		return
	}
	points, err := s.market.Project(r.Context(), mint, steps)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, points)
}

// ListTrades pages a curve's trades; ?format=csv streams them as CSV.
func (s *Server) ListTrades(w http.ResponseWriter, r *http.Request) {
	mint, err := pathKey(r, "mint")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	limit, offset, err := page(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	format := export.FormatJSON
	if raw := r.URL.Query().Get("format"); raw != "" {
		if format, err = export.ParseFormat(raw); err != nil {
			s.writeError(w, r, fmt.Errorf("%w: %v", errBadRequest, err))
			return
		}
	}

	trades, err := s.market.Trades(r.Context(), mint, limit, offset)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if format == export.FormatJSON {
		s.writeJSON(w, http.StatusOK, listResponse{Items: trades, Count: len(trades), Limit: limit, Offset: offset})
		return
	}

	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", "trades_"+mint.String()+".csv"))
	w.WriteHeader(http.StatusOK)
	if err := s.exporter.Write(w, trades, export.FormatCSV); err != nil {
		s.logger.Warn("CSV export interrupted", zap.Error(err))
	}
}

func (s *Server) Buy(w http.ResponseWriter, r *http.Request) {
	s.trade(w, r, s.market.Buy)
}

func (s *Server) Sell(w http.ResponseWriter, r *http.Request) {
	s.trade(w, r, s.market.Sell)
}

type tradeFunc func(ctx context.Context, req market.TradeRequest) (*market.TradeResult, error)

func (s *Server) trade(w http.ResponseWriter, r *http.Request, exec tradeFunc) {
	mint, err := pathKey(r, "mint")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var req market.TradeRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if !req.Mint.IsZero() && !req.Mint.Equals(mint) {
		s.writeError(w, r, fmt.Errorf("%w: body mint does not match path", errBadRequest))
		return
	}
	req.Mint = mint

	res, err := exec(r.Context(), req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, res)
}

func (s *Server) Migrate(w http.ResponseWriter, r *http.Request) {
	mint, err := pathKey(r, "mint")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var req market.MigrateRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if !req.Mint.IsZero() && !req.Mint.Equals(mint) {
		s.writeError(w, r, fmt.Errorf("%w: body mint does not match path", errBadRequest))
		return
	}
	req.Mint = mint

	res, err := s.market.Migrate(r.Context(), req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, res)
}

func (s *Server) GetMigration(w http.ResponseWriter, r *http.Request) {
	mint, err := pathKey(r, "mint")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	m, err := s.market.Migration(r.Context(), mint)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, m)
}
