package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/rovshanmuradov/bondingcurve/internal/curve"
	"github.com/rovshanmuradov/bondingcurve/internal/ledger"
	"github.com/rovshanmuradov/bondingcurve/internal/market"
	"github.com/rovshanmuradov/bondingcurve/internal/pool"
)

var errBadRequest = errors.New("bad request")

// errorResponse is the body of every non-2xx reply.
type errorResponse struct {
	Error    string          `json:"error"`
	Kind     string          `json:"kind"`
	Op       string          `json:"op,omitempty"`
	Reserves *curve.Reserves `json:"reserves,omitempty"`
}

func statusFor(err error) (int, market.Kind) {
	var me *market.Error
	if !errors.As(err, &me) {
		switch {
		case errors.Is(err, errBadRequest),
			errors.Is(err, pool.ErrSameMint),
			errors.Is(err, ledger.ErrZeroAmount):
			return http.StatusBadRequest, market.KindInvalidRequest
		case errors.Is(err, pool.ErrPoolNotFound):
			return http.StatusNotFound, market.KindNotFound
		case errors.Is(err, pool.ErrPoolExists):
			return http.StatusConflict, market.KindState
		case errors.Is(err, pool.ErrEmptyPool):
			return http.StatusUnprocessableEntity, market.KindLiquidity
		}
	}

	kind := market.KindOf(err)
	switch kind {
	case market.KindAuthorization:
		return http.StatusForbidden, kind
	case market.KindInvalidRequest:
		return http.StatusBadRequest, kind
	case market.KindNotFound:
		return http.StatusNotFound, kind
	case market.KindState, market.KindSlippage:
		return http.StatusConflict, kind
	case market.KindInvalidConfiguration, market.KindLiquidity, market.KindDustAmount,
		market.KindCollaboratorMismatch, market.KindArithmetic:
		return http.StatusUnprocessableEntity, kind
	default:
		return http.StatusInternalServerError, kind
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Debug("Failed to encode response", zap.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, kind := statusFor(err)
	resp := errorResponse{Error: err.Error(), Kind: kind.String()}

	var me *market.Error
	if errors.As(err, &me) {
		resp.Op = me.Op
		if !me.Mint.IsZero() {
			reserves := me.Reserves
			resp.Reserves = &reserves
		}
	}

	if status >= http.StatusInternalServerError {
		s.logger.Error("Request failed",
			zap.String("path", r.URL.Path),
			zap.Error(err))
	}
	s.writeJSON(w, status, resp)
}
