package export

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/rovshanmuradov/bondingcurve/internal/curve"
)

// ExportFormat represents the export file format
type ExportFormat string

const (
	FormatCSV  ExportFormat = "csv"
	FormatJSON ExportFormat = "json"
)

// ParseFormat accepts "csv" or "json".
func ParseFormat(s string) (ExportFormat, error) {
	switch f := ExportFormat(s); f {
	case FormatCSV, FormatJSON:
		return f, nil
	default:
		return "", fmt.Errorf("unsupported format: %q", s)
	}
}

// ExportOptions configures the export behavior
type ExportOptions struct {
	Format          ExportFormat
	StartTime       time.Time
	EndTime         time.Time
	MintFilter      solana.PublicKey
	DirectionFilter *curve.Direction
	OutputDir       string
}

// TradeExporter writes settled curve trades as CSV or JSON.
type TradeExporter struct {
	logger *zap.Logger
	now    func() time.Time
}

// NewTradeExporter creates a new trade exporter
func NewTradeExporter(logger *zap.Logger) *TradeExporter {
	return &TradeExporter{
		logger: logger.Named("export"),
		now:    time.Now,
	}
}

// ExportTrades writes the trades matching options to a new file under
// options.OutputDir and returns its path.
func (te *TradeExporter) ExportTrades(trades []*curve.Trade, options ExportOptions) (string, error) {
	filtered := te.Filter(trades, options)
	if len(filtered) == 0 {
		return "", fmt.Errorf("no trades match the export criteria")
	}

	if err := os.MkdirAll(options.OutputDir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create output directory: %w", err)
	}
	outputPath := filepath.Join(options.OutputDir, te.generateFilename(options))

	file, err := os.Create(outputPath)
	if err != nil {
		return "", fmt.Errorf("failed to create export file: %w", err)
	}
	defer file.Close()

	if err := te.Write(file, filtered, options.Format); err != nil {
		return "", err
	}

	te.logger.Info("Trades exported",
		zap.String("file", outputPath),
		zap.Int("count", len(filtered)),
		zap.String("format", string(options.Format)))

	return outputPath, nil
}

// Write encodes trades to w in format. Trades are written oldest first.
func (te *TradeExporter) Write(w io.Writer, trades []*curve.Trade, format ExportFormat) error {
	sorted := append([]*curve.Trade(nil), trades...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].CreatedAt.Before(sorted[j].CreatedAt)
	})

	switch format {
	case FormatCSV:
		return writeCSV(w, sorted)
	case FormatJSON:
		return te.writeJSON(w, sorted)
	default:
		return fmt.Errorf("unsupported format: %s", format)
	}
}

// Filter applies the time, mint and direction filters of options.
func (te *TradeExporter) Filter(trades []*curve.Trade, options ExportOptions) []*curve.Trade {
	var filtered []*curve.Trade

	for _, trade := range trades {
		if !options.StartTime.IsZero() && trade.CreatedAt.Before(options.StartTime) {
			continue
		}
		if !options.EndTime.IsZero() && !trade.CreatedAt.Before(options.EndTime) {
			continue
		}
		if !options.MintFilter.IsZero() && !trade.Mint.Equals(options.MintFilter) {
			continue
		}
		if options.DirectionFilter != nil && trade.Direction != *options.DirectionFilter {
			continue
		}
		filtered = append(filtered, trade)
	}

	return filtered
}

func (te *TradeExporter) generateFilename(options ExportOptions) string {
	timestamp := te.now().Format("20060102_150405")

	prefix := "trades_all"
	if options.DirectionFilter != nil {
		prefix = "trades_" + options.DirectionFilter.String()
	}
	if !options.MintFilter.IsZero() {
		prefix += "_" + options.MintFilter.String()[:8]
	}

	return fmt.Sprintf("%s_%s.%s", prefix, timestamp, options.Format)
}

// CSVHeaders returns the column names written by the CSV export.
func CSVHeaders() []string {
	return []string{
		"id", "time", "mint", "trader", "direction",
		"sol_amount", "token_amount", "fee_sol", "price_sol",
		"price_impact_bps", "sol_reserve", "token_reserve", "completed",
	}
}

func csvRow(t *curve.Trade) []string {
	return []string{
		t.ID,
		t.CreatedAt.UTC().Format(time.RFC3339Nano),
		t.Mint.String(),
		t.Trader.String(),
		t.Direction.String(),
		curve.FormatSol(t.SolAmount),
		curve.FormatTokens(t.TokenAmount),
		curve.FormatSol(t.Fee),
		curve.PriceInSol(t.Price).String(),
		strconv.FormatUint(t.PriceImpactBps, 10),
		curve.FormatSol(t.SolReserve),
		curve.FormatTokens(t.TokenReserve),
		strconv.FormatBool(t.Completed),
	}
}

func writeCSV(w io.Writer, trades []*curve.Trade) error {
	writer := csv.NewWriter(w)

	if err := writer.Write(CSVHeaders()); err != nil {
		return fmt.Errorf("failed to write CSV headers: %w", err)
	}
	for _, trade := range trades {
		if err := writer.Write(csvRow(trade)); err != nil {
			return fmt.Errorf("failed to write trade %s: %w", trade.ID, err)
		}
	}

	writer.Flush()
	return writer.Error()
}

func (te *TradeExporter) writeJSON(w io.Writer, trades []*curve.Trade) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")

	exportData := struct {
		ExportTime time.Time      `json:"export_time"`
		TradeCount int            `json:"trade_count"`
		Trades     []*curve.Trade `json:"trades"`
		Summary    ExportSummary  `json:"summary"`
	}{
		ExportTime: te.now().UTC(),
		TradeCount: len(trades),
		Trades:     trades,
		Summary:    Summarize(trades),
	}

	if err := encoder.Encode(exportData); err != nil {
		return fmt.Errorf("failed to encode JSON: %w", err)
	}
	return nil
}

// ExportSummary contains summary statistics for exported trades. Volumes
// and fees are in whole base currency.
type ExportSummary struct {
	TotalTrades     int             `json:"total_trades"`
	BuyCount        int             `json:"buy_count"`
	SellCount       int             `json:"sell_count"`
	UniqueMints     int             `json:"unique_mints"`
	UniqueTraders   int             `json:"unique_traders"`
	TotalVolume     decimal.Decimal `json:"total_volume"`
	TotalBuyVolume  decimal.Decimal `json:"total_buy_volume"`
	TotalSellVolume decimal.Decimal `json:"total_sell_volume"`
	TotalFees       decimal.Decimal `json:"total_fees"`
	MaxImpactBps    uint64          `json:"max_price_impact_bps"`
	Completions     int             `json:"completions"`
	StartDate       time.Time       `json:"start_date"`
	EndDate         time.Time       `json:"end_date"`
}

// Summarize computes summary statistics over trades, which must be sorted
// oldest first for the date range to be meaningful.
func Summarize(trades []*curve.Trade) ExportSummary {
	summary := ExportSummary{
		TotalTrades:     len(trades),
		TotalVolume:     decimal.Zero,
		TotalBuyVolume:  decimal.Zero,
		TotalSellVolume: decimal.Zero,
		TotalFees:       decimal.Zero,
	}
	if len(trades) == 0 {
		return summary
	}

	summary.StartDate = trades[0].CreatedAt
	summary.EndDate = trades[len(trades)-1].CreatedAt

	mints := make(map[solana.PublicKey]struct{})
	traders := make(map[solana.PublicKey]struct{})
	var buyVolume, sellVolume, fees uint64

	for _, trade := range trades {
		mints[trade.Mint] = struct{}{}
		traders[trade.Trader] = struct{}{}
		fees += trade.Fee

		switch trade.Direction {
		case curve.Buy:
			summary.BuyCount++
			buyVolume += trade.SolAmount
		case curve.Sell:
			summary.SellCount++
			sellVolume += trade.SolAmount
		}
		if trade.PriceImpactBps > summary.MaxImpactBps {
			summary.MaxImpactBps = trade.PriceImpactBps
		}
		if trade.Completed {
			summary.Completions++
		}
	}

	summary.UniqueMints = len(mints)
	summary.UniqueTraders = len(traders)
	summary.TotalBuyVolume = toSol(buyVolume)
	summary.TotalSellVolume = toSol(sellVolume)
	summary.TotalVolume = summary.TotalBuyVolume.Add(summary.TotalSellVolume)
	summary.TotalFees = toSol(fees)

	return summary
}

func toSol(lamports uint64) decimal.Decimal {
	return decimal.NewFromUint64(lamports).Shift(-curve.SolDecimals)
}

// DailyReport represents one day of curve trading.
type DailyReport struct {
	Date            time.Time      `json:"date"`
	TradeCount      int            `json:"trade_count"`
	Summary         ExportSummary  `json:"summary"`
	HourlyBreakdown []HourlyStats  `json:"hourly_breakdown"`
	Trades          []*curve.Trade `json:"trades"`
}

// HourlyStats represents trading statistics for an hour
type HourlyStats struct {
	Hour       int             `json:"hour"`
	TradeCount int             `json:"trade_count"`
	BuyCount   int             `json:"buy_count"`
	SellCount  int             `json:"sell_count"`
	Volume     decimal.Decimal `json:"volume"`
}

// ExportDailyReport writes a JSON report of the trades made on date. It
// returns an empty path when there were none.
func (te *TradeExporter) ExportDailyReport(trades []*curve.Trade, date time.Time, outputDir string) (string, error) {
	startOfDay := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, date.Location())
	filtered := te.Filter(trades, ExportOptions{
		StartTime: startOfDay,
		EndTime:   startOfDay.Add(24 * time.Hour),
	})
	if len(filtered) == 0 {
		te.logger.Info("No trades for daily report", zap.Time("date", startOfDay))
		return "", nil
	}
	sort.SliceStable(filtered, func(i, j int) bool {
		return filtered[i].CreatedAt.Before(filtered[j].CreatedAt)
	})

	report := DailyReport{
		Date:            startOfDay,
		TradeCount:      len(filtered),
		Trades:          filtered,
		Summary:         Summarize(filtered),
		HourlyBreakdown: hourlyBreakdown(filtered, date.Location()),
	}

	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create output directory: %w", err)
	}
	outputPath := filepath.Join(outputDir, fmt.Sprintf("daily_report_%s.json", startOfDay.Format("20060102")))
	file, err := os.Create(outputPath)
	if err != nil {
		return "", fmt.Errorf("failed to create report file: %w", err)
	}
	defer file.Close()

	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(report); err != nil {
		return "", fmt.Errorf("failed to encode report: %w", err)
	}

	te.logger.Info("Daily report exported",
		zap.String("file", outputPath),
		zap.Time("date", startOfDay),
		zap.Int("trades", len(filtered)))

	return outputPath, nil
}

func hourlyBreakdown(trades []*curve.Trade, loc *time.Location) []HourlyStats {
	hourly := make(map[int]*HourlyStats)
	volume := make(map[int]uint64)

	for _, trade := range trades {
		hour := trade.CreatedAt.In(loc).Hour()
		stats, ok := hourly[hour]
		if !ok {
			stats = &HourlyStats{Hour: hour}
			hourly[hour] = stats
		}
		stats.TradeCount++
		volume[hour] += trade.SolAmount
		if trade.Direction == curve.Buy {
			stats.BuyCount++
		} else {
			stats.SellCount++
		}
	}

	var breakdown []HourlyStats
	for hour := 0; hour < 24; hour++ {
		if stats, ok := hourly[hour]; ok {
			stats.Volume = toSol(volume[hour])
			breakdown = append(breakdown, *stats)
		}
	}
	return breakdown
}
