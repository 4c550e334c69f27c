package api

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/rovshanmuradov/bondingcurve/internal/curve"
	"github.com/rovshanmuradov/bondingcurve/internal/events"
	"github.com/rovshanmuradov/bondingcurve/internal/export"
	"github.com/rovshanmuradov/bondingcurve/internal/ledger"
	"github.com/rovshanmuradov/bondingcurve/internal/market"
	"github.com/rovshanmuradov/bondingcurve/internal/pool"
	"github.com/rovshanmuradov/bondingcurve/internal/storage/kv"
	"github.com/rovshanmuradov/bondingcurve/internal/utils/logger"
	"github.com/rovshanmuradov/bondingcurve/internal/utils/metrics"
)

const sol = curve.LamportsPerSol

type recordingPublisher struct {
	rec *events.Recorder
}

func (p *recordingPublisher) Publish(ev events.Event) error {
	return p.rec.Handle(context.Background(), ev)
}

type fixture struct {
	t      *testing.T
	server *httptest.Server
	ledger *ledger.Ledger
	logs   *logger.Buffer
	admin  solana.PublicKey
}

func newKey(t *testing.T) solana.PublicKey {
	t.Helper()
	k, err := ledger.NewMintAddress()
	require.NoError(t, err)
	return k
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	log := zaptest.NewLogger(t)

	store, err := kv.OpenMemory(log)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	l := ledger.New(log)
	pools := pool.NewRegistry(log, pool.ProgramID)
	recorder := events.NewRecorder(32)
	collector := metrics.NewCollector()
	svc, err := market.NewService(context.Background(), store, l, pools, &recordingPublisher{rec: recorder}, collector, log, market.DefaultOptions())
	require.NoError(t, err)

	logs := logger.NewBuffer(8)
	srv := New(Config{
		Market:   svc,
		Accounts: l,
		Pools:    pools,
		Exporter: export.NewTradeExporter(log),
		Events:   recorder,
		Logs:     logs,
		Metrics:  collector.Handler(),
		Logger:   log,
	})
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	return &fixture{t: t, server: ts, ledger: l, logs: logs, admin: newKey(t)}
}

func (f *fixture) do(method, path string, body interface{}) *http.Response {
	f.t.Helper()
	var rd io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(f.t, err)
		rd = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, f.server.URL+path, rd)
	require.NoError(f.t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(f.t, err)
	f.t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func decode(t *testing.T, resp *http.Response, v interface{}) {
	t.Helper()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(v))
}

func (f *fixture) expectError(resp *http.Response, status int, kind string) errorResponse {
	f.t.Helper()
	require.Equal(f.t, status, resp.StatusCode)
	var body errorResponse
	decode(f.t, resp, &body)
	assert.Equal(f.t, kind, body.Kind)
	return body
}

func (f *fixture) configure() {
	f.t.Helper()
	cfg := curve.DefaultGlobalConfig(f.admin)
	resp := f.do(http.MethodPut, "/v1/config", ConfigRequest{Caller: f.admin, Config: *cfg})
	require.Equal(f.t, http.StatusOK, resp.StatusCode)
}

func (f *fixture) funded(amount uint64) solana.PublicKey {
	f.t.Helper()
	k := newKey(f.t)
	resp := f.do(http.MethodPost, "/v1/accounts/"+k.String()+"/fund", fundRequest{Amount: amount})
	require.Equal(f.t, http.StatusOK, resp.StatusCode)
	return k
}

func (f *fixture) launch() *curve.BondingCurve {
	f.t.Helper()
	creator := f.funded(sol)
	resp := f.do(http.MethodPost, "/v1/curves", market.LaunchRequest{Creator: creator, Name: "Test Token", Symbol: "TEST"})
	require.Equal(f.t, http.StatusCreated, resp.StatusCode)
	var c curve.BondingCurve
	decode(f.t, resp, &c)
	return &c
}

func TestHealthAndMetrics(t *testing.T) {
	f := newFixture(t)

	resp := f.do(http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp = f.do(http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `bonding_curve_trades_total{direction="buy"} 0`)
	assert.Contains(t, string(body), `bonding_curve_curve_transitions_total{event="launched"} 0`)
}

func TestConfigEndpoints(t *testing.T) {
	f := newFixture(t)

	f.expectError(f.do(http.MethodGet, "/v1/config", nil), http.StatusUnprocessableEntity, "invalid_configuration")

	f.configure()
	resp := f.do(http.MethodGet, "/v1/config", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var cfg curve.GlobalConfig
	decode(t, resp, &cfg)
	assert.Equal(t, f.admin, cfg.Authority)
	assert.Equal(t, f.admin, cfg.FeeRecipient)

	stranger := newKey(t)
	update := cfg
	update.Paused = true
	body := f.expectError(f.do(http.MethodPut, "/v1/config", ConfigRequest{Caller: stranger, Config: update}), http.StatusForbidden, "authorization")
	assert.Equal(t, "configure", body.Op)
	assert.Nil(t, body.Reserves)

	resp = f.do(http.MethodPut, "/v1/config", map[string]interface{}{"caller": f.admin, "bogus": 1})
	f.expectError(resp, http.StatusBadRequest, "invalid_request")
}

func TestTradingFlow(t *testing.T) {
	f := newFixture(t)
	f.configure()
	c := f.launch()
	assert.Equal(t, curve.PhaseTrading, c.Phase)
	mint := c.Mint.String()

	resp := f.do(http.MethodGet, "/v1/curves/"+mint+"/quote?direction=buy&amount=1000000000", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var q curve.Quote
	decode(t, resp, &q)
	assert.Equal(t, curve.Buy, q.Direction)
	assert.Equal(t, uint64(38_726_650_757_600), q.AmountOut)
	assert.Equal(t, uint64(1340), q.PriceImpactBps)

	trader := f.funded(2 * sol)
	resp = f.do(http.MethodPost, "/v1/curves/"+mint+"/buy", market.TradeRequest{Trader: trader, AmountIn: sol, MinAmountOut: 38_000_000_000_000})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var res market.TradeResult
	decode(t, resp, &res)
	assert.Equal(t, uint64(38_726_650_757_600), res.Quote.AmountOut)
	assert.Equal(t, uint64(10_000_000), res.Quote.Fee)
	assert.Equal(t, uint64(13_490_000_000), res.Curve.VirtualSolReserve)
	assert.False(t, res.Completed)

	resp = f.do(http.MethodGet, "/v1/accounts/"+trader.String()+"/balance?asset="+mint, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var bal balanceResponse
	decode(t, resp, &bal)
	assert.Equal(t, uint64(38_726_650_757_600), bal.Balance)

	body := f.expectError(
		f.do(http.MethodPost, "/v1/curves/"+mint+"/buy", market.TradeRequest{Trader: trader, AmountIn: sol, MinAmountOut: 40_000_000_000_000}),
		http.StatusConflict, "slippage_violation")
	assert.Equal(t, "buy", body.Op)
	require.NotNil(t, body.Reserves)
	assert.Equal(t, uint64(13_490_000_000), body.Reserves.Sol)
	assert.Equal(t, uint64(761_273_349_242_400), body.Reserves.Token)

	resp = f.do(http.MethodPost, "/v1/curves/"+mint+"/sell", market.TradeRequest{Trader: trader, AmountIn: 38_726_650_757_600 / 2})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	decode(t, resp, &res)
	assert.Equal(t, curve.Sell, res.Trade.Direction)
	assert.Equal(t, uint64(12_979_432_099), res.Curve.VirtualSolReserve)

	resp = f.do(http.MethodGet, "/v1/curves/"+mint+"/trades", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var page struct {
		Items []*curve.Trade `json:"items"`
		Count int            `json:"count"`
		Limit int            `json:"limit"`
	}
	decode(t, resp, &page)
	assert.Equal(t, 2, page.Count)
	assert.Equal(t, market.DefaultPageSize, page.Limit)

	resp = f.do(http.MethodGet, "/v1/curves/"+mint+"/trades?format=csv", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/csv", resp.Header.Get("Content-Type"))
	rows, err := csv.NewReader(resp.Body).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, export.CSVHeaders(), rows[0])

	resp = f.do(http.MethodGet, "/v1/curves/"+mint+"/projection?steps=4", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var points []curve.Point
	decode(t, resp, &points)
	assert.NotEmpty(t, points)

	resp = f.do(http.MethodGet, "/v1/curves?limit=10", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var curves struct {
		Count int `json:"count"`
	}
	decode(t, resp, &curves)
	assert.Equal(t, 1, curves.Count)

	resp = f.do(http.MethodGet, "/v1/events?limit=2", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var recent []map[string]interface{}
	decode(t, resp, &recent)
	require.Len(t, recent, 2)
	assert.Equal(t, string(events.TokenPurchased), recent[0]["type"])
	assert.Equal(t, string(events.TokenSold), recent[1]["type"])
}

func TestRequestErrors(t *testing.T) {
	f := newFixture(t)
	f.configure()
	c := f.launch()
	mint := c.Mint.String()

	f.expectError(f.do(http.MethodGet, "/v1/curves/not-a-key", nil), http.StatusBadRequest, "invalid_request")
	f.expectError(f.do(http.MethodGet, "/v1/curves/"+newKey(t).String(), nil), http.StatusNotFound, "not_found")
	f.expectError(f.do(http.MethodGet, "/v1/curves/"+mint+"/quote?direction=hold&amount=1", nil), http.StatusBadRequest, "invalid_request")
	f.expectError(f.do(http.MethodGet, "/v1/curves/"+mint+"/quote?direction=buy", nil), http.StatusBadRequest, "invalid_request")
	f.expectError(f.do(http.MethodGet, "/v1/curves/"+mint+"/trades?format=xml", nil), http.StatusBadRequest, "invalid_request")
	f.expectError(f.do(http.MethodGet, "/v1/curves/"+mint+"/projection?steps=0", nil), http.StatusBadRequest, "invalid_request")
	f.expectError(f.do(http.MethodGet, "/v1/curves/"+mint+"/migration", nil), http.StatusNotFound, "not_found")

	trader := f.funded(sol)
	f.expectError(f.do(http.MethodPost, "/v1/curves/"+mint+"/buy", market.TradeRequest{Trader: trader, AmountIn: 1}),
		http.StatusUnprocessableEntity, "dust_amount")
	f.expectError(f.do(http.MethodPost, "/v1/curves/"+mint+"/buy", market.TradeRequest{Trader: trader, Mint: newKey(t), AmountIn: sol}),
		http.StatusBadRequest, "invalid_request")
	f.expectError(f.do(http.MethodPost, "/v1/curves/"+mint+"/migrate", market.MigrateRequest{Caller: f.admin, Pool: newKey(t)}),
		http.StatusConflict, "state_violation")
	f.expectError(f.do(http.MethodPost, "/v1/accounts/"+trader.String()+"/fund", fundRequest{}),
		http.StatusBadRequest, "invalid_request")
}

func TestPoolEndpoints(t *testing.T) {
	f := newFixture(t)
	creator, base := newKey(t), newKey(t)

	resp := f.do(http.MethodPost, "/v1/pools", createPoolRequest{Creator: creator, BaseMint: base, QuoteMint: ledger.BaseAsset})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var info pool.Info
	decode(t, resp, &info)
	assert.True(t, info.Tradable())
	addr := info.Address.String()

	resp = f.do(http.MethodPost, "/v1/pools", createPoolRequest{Creator: creator, BaseMint: base, QuoteMint: ledger.BaseAsset})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var second pool.Info
	decode(t, resp, &second)
	assert.Equal(t, uint16(1), second.Index)
	assert.NotEqual(t, info.Address, second.Address)

	f.expectError(f.do(http.MethodPost, "/v1/pools", createPoolRequest{Creator: creator, BaseMint: base, QuoteMint: base}),
		http.StatusBadRequest, "invalid_request")
	f.expectError(f.do(http.MethodPost, "/v1/pools", createPoolRequest{Creator: creator}), http.StatusBadRequest, "invalid_request")

	resp = f.do(http.MethodGet, "/v1/pools?mint_a="+ledger.BaseAsset.String()+"&mint_b="+base.String(), nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var found pool.Info
	decode(t, resp, &found)
	assert.Equal(t, info.Address, found.Address)

	resp = f.do(http.MethodPut, "/v1/pools/"+addr+"/flags", poolFlagsRequest{DisableFlags: pool.DisableDeposit})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	decode(t, resp, &found)
	assert.False(t, found.Tradable())

	f.expectError(f.do(http.MethodGet, "/v1/pools/"+addr+"/quote?amount=1000", nil), http.StatusUnprocessableEntity, "liquidity_violation")
	f.expectError(f.do(http.MethodGet, "/v1/pools/"+newKey(t).String(), nil), http.StatusNotFound, "not_found")
}

func TestDebugLogs(t *testing.T) {
	f := newFixture(t)
	for _, msg := range []string{"one", "two", "three"} {
		f.logs.Add(logger.Entry{Level: "info", Message: msg})
	}

	resp := f.do(http.MethodGet, "/debug/logs?limit=2", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var entries []logger.Entry
	decode(t, resp, &entries)
	require.Len(t, entries, 2)
	assert.Equal(t, "two", entries[0].Message)
	assert.Equal(t, "three", entries[1].Message)
}

func TestOptionalRoutesAbsent(t *testing.T) {
	srv := New(Config{Market: nil})
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	for _, path := range []string{"/v1/pools/x", "/v1/events", "/debug/logs", "/metrics"} {
		resp, err := http.Get(ts.URL + path)
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusNotFound, resp.StatusCode, path)
	}
	resp, err := http.Get(ts.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	assert.True(t, strings.EqualFold("ok", string(body)))
}
