package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/rovshanmuradov/bondingcurve/internal/curve"
	"github.com/rovshanmuradov/bondingcurve/internal/events"
	"github.com/rovshanmuradov/bondingcurve/internal/export"
	"github.com/rovshanmuradov/bondingcurve/internal/market"
	"github.com/rovshanmuradov/bondingcurve/internal/pool"
	"github.com/rovshanmuradov/bondingcurve/internal/utils/logger"
)

// Market is the operation surface served over HTTP.
type Market interface {
	Configure(ctx context.Context, caller solana.PublicKey, settings curve.GlobalConfig) (*curve.GlobalConfig, error)
	Config(ctx context.Context) (*curve.GlobalConfig, error)
	Launch(ctx context.Context, req market.LaunchRequest) (*curve.BondingCurve, error)
	Buy(ctx context.Context, req market.TradeRequest) (*market.TradeResult, error)
	Sell(ctx context.Context, req market.TradeRequest) (*market.TradeResult, error)
	Migrate(ctx context.Context, req market.MigrateRequest) (*market.MigrationResult, error)
	Migration(ctx context.Context, mint solana.PublicKey) (*curve.Migration, error)
	Quote(ctx context.Context, mint solana.PublicKey, dir curve.Direction, amountIn uint64) (*curve.Quote, error)
	Curve(ctx context.Context, mint solana.PublicKey) (*curve.BondingCurve, error)
	Curves(ctx context.Context, limit, offset int) ([]*curve.BondingCurve, error)
	Trades(ctx context.Context, mint solana.PublicKey, limit, offset int) ([]*curve.Trade, error)
	Project(ctx context.Context, mint solana.PublicKey, steps int) ([]curve.Point, error)
}

// Accounts funds and reports ledger balances.
type Accounts interface {
	Fund(ctx context.Context, owner solana.PublicKey, amount uint64) error
	Balance(ctx context.Context, asset, owner solana.PublicKey) (uint64, error)
}

// Pools manages the migration venues.
type Pools interface {
	CreatePool(ctx context.Context, creator, baseMint, quoteMint solana.PublicKey) (*pool.Info, error)
	FetchPoolInfo(ctx context.Context, address solana.PublicKey) (*pool.Info, error)
	FindPool(ctx context.Context, mintA, mintB solana.PublicKey) (*pool.Info, error)
	SetDisableFlags(ctx context.Context, address solana.PublicKey, flags uint8) error
}

// Config captures the dependencies of the server. Only Market is required.
type Config struct {
	Market   Market
	Accounts Accounts
	Pools    Pools
	Exporter *export.TradeExporter
	Events   *events.Recorder
	Logs     *logger.Buffer
	Metrics  http.Handler
	Logger   *zap.Logger
	Timeout  time.Duration
}

// Server serves the market over HTTP.
type Server struct {
	market   Market
	accounts Accounts
	pools    Pools
	exporter *export.TradeExporter
	events   *events.Recorder
	logs     *logger.Buffer
	metrics  http.Handler
	logger   *zap.Logger
	timeout  time.Duration

	router http.Handler
}

// New constructs the router.
func New(cfg Config) *Server {
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}
	exporter := cfg.Exporter
	if exporter == nil {
		exporter = export.NewTradeExporter(log)
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	s := &Server{
		market:   cfg.Market,
		accounts: cfg.Accounts,
		pools:    cfg.Pools,
		exporter: exporter,
		events:   cfg.Events,
		logs:     cfg.Logs,
		metrics:  cfg.Metrics,
		logger:   log.Named("api"),
		timeout:  timeout,
	}
	s.router = s.buildRouter()
	return s
}

// Handler exposes the configured HTTP router.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(s.requestLogger)
	r.Use(chimw.Recoverer)
	r.Use(chimw.Timeout(s.timeout))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	if s.metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.metrics)
	}

	r.Route("/v1", func(api chi.Router) {
		api.Get("/config", s.GetConfig)
		api.Put("/config", s.PutConfig)

		api.Post("/curves", s.LaunchCurve)
		api.Get("/curves", s.ListCurves)
		api.Route("/curves/{mint}", func(c chi.Router) {
			c.Get("/", s.GetCurve)
			c.Get("/quote", s.GetQuote)
			c.Get("/projection", s.GetProjection)
			c.Get("/trades", s.ListTrades)
			c.Post("/buy", s.Buy)
			c.Post("/sell", s.Sell)
			c.Post("/migrate", s.Migrate)
			c.Get("/migration", s.GetMigration)
		})

		if s.accounts != nil {
			api.Post("/accounts/{owner}/fund", s.FundAccount)
			api.Get("/accounts/{owner}/balance", s.GetBalance)
		}
		if s.pools != nil {
			api.Post("/pools", s.CreatePool)
			api.Get("/pools", s.FindPool)
			api.Get("/pools/{address}", s.GetPool)
			api.Put("/pools/{address}/flags", s.SetPoolFlags)
			api.Get("/pools/{address}/quote", s.GetPoolQuote)
		}
		if s.events != nil {
			api.Get("/events", s.ListEvents)
		}
	})

	if s.logs != nil {
		r.Get("/debug/logs", s.ListLogs)
	}
	return r
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		s.logger.Debug("HTTP request",
			zap.String("request_id", chimw.GetReqID(r.Context())),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Int("bytes", ww.BytesWritten()),
			zap.Duration("duration", time.Since(start)))
	})
}
