// Package app wires the market daemon together from its configuration.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/gagliardetto/solana-go"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/rovshanmuradov/bondingcurve/internal/api"
	"github.com/rovshanmuradov/bondingcurve/internal/config"
	"github.com/rovshanmuradov/bondingcurve/internal/curve"
	"github.com/rovshanmuradov/bondingcurve/internal/events"
	"github.com/rovshanmuradov/bondingcurve/internal/export"
	"github.com/rovshanmuradov/bondingcurve/internal/ledger"
	"github.com/rovshanmuradov/bondingcurve/internal/market"
	"github.com/rovshanmuradov/bondingcurve/internal/pool"
	"github.com/rovshanmuradov/bondingcurve/internal/storage"
	"github.com/rovshanmuradov/bondingcurve/internal/storage/kv"
	"github.com/rovshanmuradov/bondingcurve/internal/storage/sqlstore"
	"github.com/rovshanmuradov/bondingcurve/internal/utils/logger"
	"github.com/rovshanmuradov/bondingcurve/internal/utils/metrics"
)

const recentEvents = 256

// App owns every long-lived component of the daemon.
type App struct {
	cfg    *config.Config
	logger *zap.Logger

	store     storage.Storage
	ledger    *ledger.Ledger
	pools     *pool.Registry
	bus       *events.Bus
	recorder  *events.Recorder
	journal   *export.Journal
	collector *metrics.Collector
	market    *market.Service
	api       *api.Server
	exporter  *export.TradeExporter

	shutdown *ShutdownHandler
}

// New opens storage and builds the market service and its HTTP surface.
// logs may be nil.
func New(ctx context.Context, cfg *config.Config, log *zap.Logger, logs *logger.Buffer) (*App, error) {
	a := &App{
		cfg:      cfg,
		logger:   log,
		shutdown: NewShutdownHandler(log, cfg.HTTP.ShutdownTimeout),
	}

	store, err := OpenStorage(ctx, cfg.Storage, log)
	if err != nil {
		return nil, err
	}
	a.store = store
	a.shutdown.Add("storage", store)

	if cfg.Export.JournalPath != "" {
		journal, err := export.OpenJournal(cfg.Export.JournalPath, cfg.Export.FlushInterval, log)
		if err != nil {
			a.Close(ctx)
			return nil, err
		}
		a.journal = journal
		a.shutdown.Add("journal", journal)
	}

	// closed first so queued events reach the journal and storage is idle
	a.bus = events.NewBus(log, cfg.EventBuffer)
	a.shutdown.AddFunc("event_bus", func() error {
		ctx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
		defer cancel()
		return a.bus.Shutdown(ctx)
	})

	a.recorder = events.NewRecorder(recentEvents)
	a.bus.Subscribe(events.AllEvents, a.recorder)
	if a.journal != nil {
		a.bus.Subscribe(events.AllEvents, a.journal)
	}

	a.ledger = ledger.New(log)
	a.pools = pool.NewRegistry(log, config.PublicKeyOr(cfg.PoolProgramID, pool.ProgramID))
	a.collector = metrics.NewCollector()
	a.exporter = export.NewTradeExporter(log)

	opts := market.DefaultOptions()
	opts.Params = cfg.Curve
	opts.ProgramID = config.PublicKeyOr(cfg.ProgramID, ledger.ProgramID)
	opts.RentExemptMinimum = cfg.RentExemptMinimum

	a.market, err = market.NewService(ctx, store, a.ledger, a.pools, a.bus, a.collector, log, opts)
	if err != nil {
		a.Close(ctx)
		return nil, fmt.Errorf("start market: %w", err)
	}

	apiCfg := api.Config{
		Market:   a.market,
		Accounts: a.ledger,
		Pools:    a.pools,
		Exporter: a.exporter,
		Events:   a.recorder,
		Logs:     logs,
		Logger:   log,
		Timeout:  cfg.HTTP.WriteTimeout,
	}
	if cfg.Metrics.Enabled && cfg.Metrics.Addr == "" {
		apiCfg.Metrics = a.collector.Handler()
	}
	a.api = api.New(apiCfg)

	return a, nil
}

// OpenStorage connects to the configured backend, retrying with exponential
// backoff, and applies the schema.
func OpenStorage(ctx context.Context, cfg config.StorageConfig, log *zap.Logger) (storage.Storage, error) {
	open := func() (storage.Storage, error) {
		switch cfg.Driver {
		case config.DriverMemory:
			s, err := kv.OpenMemory(log)
			if err != nil {
				return nil, backoff.Permanent(err)
			}
			return s, nil
		case config.DriverLevelDB:
			s, err := kv.Open(cfg.DSN, log)
			if err != nil {
				return nil, err
			}
			return s, nil
		case config.DriverPostgres, config.DriverSQLite:
			s, err := sqlstore.Open(sqlstore.Options{
				Driver:          cfg.Driver,
				DSN:             cfg.DSN,
				MaxIdleConns:    cfg.MaxIdleConns,
				MaxOpenConns:    cfg.MaxOpenConns,
				ConnMaxLifetime: cfg.ConnMaxLifetime,
				LogLevel:        cfg.LogLevel,
			}, log)
			if err != nil {
				return nil, err
			}
			return s, nil
		default:
			return nil, backoff.Permanent(fmt.Errorf("unsupported storage driver %q", cfg.Driver))
		}
	}

	policy := backoff.NewExponentialBackOff()
	if cfg.RetryDelay > 0 {
		policy.InitialInterval = cfg.RetryDelay
		policy.MaxInterval = cfg.RetryDelay * 10
	}
	notify := func(err error, next time.Duration) {
		log.Warn("Storage unavailable, retrying",
			zap.String("driver", cfg.Driver),
			zap.Duration("backoff", next),
			zap.Error(err))
	}

	store, err := backoff.Retry(ctx, open,
		backoff.WithBackOff(policy),
		backoff.WithMaxTries(uint(cfg.ConnectRetries)+1),
		backoff.WithNotify(notify))
	if err != nil {
		return nil, fmt.Errorf("open %s storage: %w", cfg.Driver, err)
	}

	if err := store.RunMigrations(); err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("migrate %s storage: %w", cfg.Driver, err)
	}
	log.Info("Storage ready", zap.String("driver", cfg.Driver))
	return store, nil
}

// Handler is the API router.
func (a *App) Handler() http.Handler {
	return a.api.Handler()
}

// Market is the running market service.
func (a *App) Market() *market.Service {
	return a.market
}

// Run serves HTTP until ctx is cancelled or a listener fails, then shuts
// every component down.
func (a *App) Run(ctx context.Context) error {
	servers := []*http.Server{a.newServer(a.cfg.HTTP.Addr, a.api.Handler())}
	if a.cfg.Metrics.Enabled && a.cfg.Metrics.Addr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", a.collector.Handler())
		servers = append(servers, a.newServer(a.cfg.Metrics.Addr, mux))
	}

	g, gCtx := errgroup.WithContext(ctx)
	for _, srv := range servers {
		srv := srv
		g.Go(func() error {
			a.logger.Info("HTTP listener started", zap.String("addr", srv.Addr))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("serve %s: %w", srv.Addr, err)
			}
			return nil
		})
	}
	g.Go(func() error {
		<-gCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.HTTP.ShutdownTimeout)
		defer cancel()

		var errs []error
		for _, srv := range servers {
			if err := srv.Shutdown(shutdownCtx); err != nil {
				errs = append(errs, fmt.Errorf("shutdown %s: %w", srv.Addr, err))
			}
		}
		return errors.Join(errs...)
	})

	runErr := g.Wait()
	closeErr := a.Close(context.Background())
	return errors.Join(runErr, closeErr)
}

func (a *App) newServer(addr string, h http.Handler) *http.Server {
	return &http.Server{
		Addr:         addr,
		Handler:      h,
		ReadTimeout:  a.cfg.HTTP.ReadTimeout,
		WriteTimeout: a.cfg.HTTP.WriteTimeout,
		ErrorLog:     zap.NewStdLog(a.logger.Named("http")),
	}
}

// Close releases every component in reverse order of creation.
func (a *App) Close(ctx context.Context) error {
	return a.shutdown.Shutdown(ctx)
}

// ExportTrades writes mint's full trade history under the export directory
// and returns the file path.
func (a *App) ExportTrades(ctx context.Context, opts export.ExportOptions) (string, error) {
	trades, err := a.history(ctx, opts.MintFilter)
	if err != nil {
		return "", err
	}
	if opts.OutputDir == "" {
		opts.OutputDir = a.cfg.Export.Dir
	}
	return a.exporter.ExportTrades(trades, opts)
}

// ExportDailyReport writes the hourly report of mint's trades on date. It
// returns an empty path when nothing traded that day.
func (a *App) ExportDailyReport(ctx context.Context, mint solana.PublicKey, date time.Time) (string, error) {
	trades, err := a.history(ctx, mint)
	if err != nil {
		return "", err
	}
	return a.exporter.ExportDailyReport(trades, date, a.cfg.Export.Dir)
}

func (a *App) history(ctx context.Context, mint solana.PublicKey) ([]*curve.Trade, error) {
	if mint.IsZero() {
		return nil, errors.New("export requires a mint")
	}
	var all []*curve.Trade
	for {
		page, err := a.market.Trades(ctx, mint, market.DefaultPageSize, len(all))
		if err != nil {
			return nil, err
		}
		all = append(all, page...)
		if len(page) < market.DefaultPageSize {
			return all, nil
		}
	}
}
