// ====================================
// File: cmd/curved/main.go
// ====================================
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gagliardetto/solana-go"
	"go.uber.org/zap"

	"github.com/rovshanmuradov/bondingcurve/internal/app"
	"github.com/rovshanmuradov/bondingcurve/internal/config"
	"github.com/rovshanmuradov/bondingcurve/internal/curve"
	"github.com/rovshanmuradov/bondingcurve/internal/export"
	"github.com/rovshanmuradov/bondingcurve/internal/utils/logger"
)

const logBufferSize = 1000

func main() {
	configPath := flag.String("config", "", "path to the configuration file")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "usage: %s [-config file] [serve | export -mint <mint> [-format csv|json] [-direction buy|sell] [-daily YYYY-MM-DD]]\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logs := logger.NewBuffer(logBufferSize)
	log, err := logger.New(&logger.Config{
		LogFile:     cfg.Log.File,
		MaxSize:     cfg.Log.MaxSize,
		MaxAge:      cfg.Log.MaxAge,
		MaxBackups:  cfg.Log.MaxBackups,
		Compress:    cfg.Log.Compress,
		Development: cfg.Log.Development,
	}, logs)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = log.Sync()
		_ = log.Close()
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	args := flag.Args()
	command := "serve"
	if len(args) > 0 {
		command, args = args[0], args[1:]
	}

	switch command {
	case "serve":
		err = serve(ctx, cfg, log, logs)
	case "export":
		err = exportTrades(ctx, cfg, log, args)
	default:
		flag.Usage()
		err = fmt.Errorf("unknown command %q", command)
	}
	if err != nil {
		log.Error("curved exited with error", zap.String("command", command), zap.Error(err))
		_ = log.Sync()
		os.Exit(1)
	}
}

func serve(ctx context.Context, cfg *config.Config, log *logger.Logger, logs *logger.Buffer) error {
	log.Info("Starting bonding curve daemon",
		zap.String("addr", cfg.HTTP.Addr),
		zap.String("storage", cfg.Storage.Driver))

	a, err := app.New(ctx, cfg, log.WithComponent("daemon"), logs)
	if err != nil {
		return err
	}
	return a.Run(ctx)
}

func exportTrades(ctx context.Context, cfg *config.Config, log *logger.Logger, args []string) error {
	fs := flag.NewFlagSet("export", flag.ContinueOnError)
	mintFlag := fs.String("mint", "", "mint whose trades are exported")
	formatFlag := fs.String("format", string(export.FormatCSV), "csv or json")
	directionFlag := fs.String("direction", "", "only export buy or sell trades")
	dailyFlag := fs.String("daily", "", "write the hourly report for this day (YYYY-MM-DD) instead")
	if err := fs.Parse(args); err != nil {
		return err
	}

	mint, err := solana.PublicKeyFromBase58(*mintFlag)
	if err != nil {
		return fmt.Errorf("invalid -mint: %w", err)
	}

	defer log.TrackPerformance("export")()

	a, err := app.New(ctx, cfg, log.WithOperation("export"), nil)
	if err != nil {
		return err
	}
	defer a.Close(context.Background())

	if *dailyFlag != "" {
		day, err := time.Parse("2006-01-02", *dailyFlag)
		if err != nil {
			return fmt.Errorf("invalid -daily: %w", err)
		}
		path, err := a.ExportDailyReport(ctx, mint, day)
		if err != nil {
			return err
		}
		if path == "" {
			log.Info("No trades on requested day", zap.String("day", *dailyFlag))
			return nil
		}
		log.Info("Daily report written", zap.String("file", path))
		return nil
	}

	format, err := export.ParseFormat(*formatFlag)
	if err != nil {
		return err
	}
	opts := export.ExportOptions{Format: format, MintFilter: mint}
	if *directionFlag != "" {
		dir, err := curve.ParseDirection(*directionFlag)
		if err != nil {
			return err
		}
		opts.DirectionFilter = &dir
	}

	path, err := a.ExportTrades(ctx, opts)
	if err != nil {
		return err
	}
	log.Info("Trades exported", zap.String("file", path))
	return nil
}
