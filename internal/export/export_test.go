package export

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/rovshanmuradov/bondingcurve/internal/curve"
)

var (
	mintA   = solana.PublicKey{1}
	mintB   = solana.PublicKey{2}
	traderA = solana.PublicKey{3}
	traderB = solana.PublicKey{4}
	day     = time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC)
)

func generateTestTrades() []*curve.Trade {
	return []*curve.Trade{
		{ID: "4", Mint: mintA, Trader: traderB, Direction: curve.Sell, SolAmount: 500_000_000, TokenAmount: 1_000_000, Fee: 5_000_000, PriceImpactBps: 600, CreatedAt: day.Add(15 * time.Hour)},
		{ID: "1", Mint: mintA, Trader: traderA, Direction: curve.Buy, SolAmount: 1_000_000_000, TokenAmount: 38_726_650_748_000, Fee: 10_000_000, Price: 17_720_310, PriceImpactBps: 1_340, CreatedAt: day.Add(9 * time.Hour)},
		{ID: "2", Mint: mintB, Trader: traderA, Direction: curve.Buy, SolAmount: 2_000_000_000, TokenAmount: 5_000_000, Fee: 20_000_000, PriceImpactBps: 2_100, Completed: true, CreatedAt: day.Add(9*time.Hour + 30*time.Minute)},
		{ID: "3", Mint: mintB, Trader: traderB, Direction: curve.Buy, SolAmount: 100_000_000, TokenAmount: 7_000, Fee: 1_000_000, CreatedAt: day.Add(-time.Hour)},
	}
}

func newExporter() *TradeExporter {
	te := NewTradeExporter(zap.NewNop())
	te.now = func() time.Time { return day.Add(20 * time.Hour) }
	return te
}

func TestTradeExportCSV(t *testing.T) {
	exporter := newExporter()
	tempDir := t.TempDir()

	outputPath, err := exporter.ExportTrades(generateTestTrades(), ExportOptions{Format: FormatCSV, OutputDir: tempDir})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(tempDir, "trades_all_20240310_200000.csv"), outputPath)

	f, err := os.Open(outputPath)
	require.NoError(t, err)
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)

	require.Len(t, rows, 5)
	assert.Equal(t, CSVHeaders(), rows[0])
	// oldest first
	assert.Equal(t, "3", rows[1][0])
	assert.Equal(t, "1", rows[2][0])
	assert.Equal(t, "buy", rows[2][4])
	assert.Equal(t, "1", rows[2][5])
	assert.Equal(t, "38726650.748", rows[2][6])
	assert.Equal(t, "0.01", rows[2][7])
	assert.Equal(t, "true", rows[3][12])
}

func TestTradeExportJSON(t *testing.T) {
	exporter := newExporter()

	var buf bytes.Buffer
	require.NoError(t, exporter.Write(&buf, generateTestTrades(), FormatJSON))

	var decoded struct {
		TradeCount int            `json:"trade_count"`
		Trades     []*curve.Trade `json:"trades"`
		Summary    ExportSummary  `json:"summary"`
	}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, 4, decoded.TradeCount)
	require.Len(t, decoded.Trades, 4)
	assert.Equal(t, curve.Sell, decoded.Trades[3].Direction)
	assert.Equal(t, "3.6", decoded.Summary.TotalVolume.String())
	assert.True(t, strings.Contains(buf.String(), `"direction": "sell"`))
}

func TestTradeExportFilters(t *testing.T) {
	exporter := newExporter()
	trades := generateTestTrades()
	sell := curve.Sell

	tests := []struct {
		name    string
		options ExportOptions
		want    []string
	}{
		{"time window", ExportOptions{StartTime: day, EndTime: day.Add(10 * time.Hour)}, []string{"1", "2"}},
		{"mint", ExportOptions{MintFilter: mintB}, []string{"2", "3"}},
		{"direction", ExportOptions{DirectionFilter: &sell}, []string{"4"}},
		{"none", ExportOptions{}, []string{"4", "1", "2", "3"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var ids []string
			for _, tr := range exporter.Filter(trades, tt.options) {
				ids = append(ids, tr.ID)
			}
			assert.Equal(t, tt.want, ids)
		})
	}

	_, err := exporter.ExportTrades(trades, ExportOptions{Format: FormatCSV, MintFilter: solana.PublicKey{9}, OutputDir: t.TempDir()})
	assert.Error(t, err)

	path, err := exporter.ExportTrades(trades, ExportOptions{Format: FormatJSON, MintFilter: mintA, DirectionFilter: &sell, OutputDir: t.TempDir()})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(filepath.Base(path), "trades_sell_"+mintA.String()[:8]))
}

func TestDailyReportExport(t *testing.T) {
	exporter := newExporter()
	tempDir := t.TempDir()

	outputPath, err := exporter.ExportDailyReport(generateTestTrades(), day.Add(12*time.Hour), tempDir)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(tempDir, "daily_report_20240310.json"), outputPath)

	content, err := os.ReadFile(outputPath)
	require.NoError(t, err)
	var report DailyReport
	require.NoError(t, json.Unmarshal(content, &report))
	assert.Equal(t, 3, report.TradeCount)
	require.Len(t, report.HourlyBreakdown, 2)
	assert.Equal(t, 9, report.HourlyBreakdown[0].Hour)
	assert.Equal(t, 2, report.HourlyBreakdown[0].BuyCount)
	assert.Equal(t, "3", report.HourlyBreakdown[0].Volume.String())
	assert.Equal(t, 1, report.HourlyBreakdown[1].SellCount)

	empty, err := exporter.ExportDailyReport(generateTestTrades(), day.Add(72*time.Hour), tempDir)
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestExportSummaryCalculation(t *testing.T) {
	summary := Summarize(generateTestTrades())

	assert.Equal(t, 4, summary.TotalTrades)
	assert.Equal(t, 3, summary.BuyCount)
	assert.Equal(t, 1, summary.SellCount)
	assert.Equal(t, 2, summary.UniqueMints)
	assert.Equal(t, 2, summary.UniqueTraders)
	assert.Equal(t, "3.1", summary.TotalBuyVolume.String())
	assert.Equal(t, "0.5", summary.TotalSellVolume.String())
	assert.Equal(t, "0.036", summary.TotalFees.String())
	assert.Equal(t, uint64(2_100), summary.MaxImpactBps)
	assert.Equal(t, 1, summary.Completions)

	empty := Summarize(nil)
	assert.Zero(t, empty.TotalTrades)
	assert.True(t, empty.TotalVolume.IsZero())
}

func TestParseFormat(t *testing.T) {
	f, err := ParseFormat("csv")
	require.NoError(t, err)
	assert.Equal(t, FormatCSV, f)
	_, err = ParseFormat("xml")
	assert.Error(t, err)
}
