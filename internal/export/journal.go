package export

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/rovshanmuradov/bondingcurve/internal/curve"
	"github.com/rovshanmuradov/bondingcurve/internal/events"
)

// JournalHeaders are the columns of the settlement journal.
var JournalHeaders = []string{"timestamp", "event", "mint", "account", "sol", "tokens", "fee", "sol_reserve", "token_reserve"}

// Journal appends every settled trade and migration to a CSV file. It is
// an events.Handler; subscribe it to events.AllEvents.
type Journal struct {
	mu       sync.Mutex
	writer   *csv.Writer
	file     *os.File
	ticker   *time.Ticker
	done     chan struct{}
	logger   *zap.Logger
	filePath string

	writtenRecords uint64
	flushCount     uint64
}

// OpenJournal opens or creates the journal at filePath and flushes it every
// flushInterval.
func OpenJournal(filePath string, flushInterval time.Duration, logger *zap.Logger) (*Journal, error) {
	if err := os.MkdirAll(filepath.Dir(filePath), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}
	file, err := os.OpenFile(filePath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open journal: %w", err)
	}
	stat, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("failed to stat journal: %w", err)
	}
	if flushInterval <= 0 {
		flushInterval = time.Second
	}

	j := &Journal{
		writer:   csv.NewWriter(file),
		file:     file,
		ticker:   time.NewTicker(flushInterval),
		done:     make(chan struct{}),
		logger:   logger.Named("journal"),
		filePath: filePath,
	}

	if stat.Size() == 0 {
		if err := j.writer.Write(JournalHeaders); err != nil {
			file.Close()
			return nil, fmt.Errorf("failed to write header: %w", err)
		}
		j.writer.Flush()
	}

	go j.periodicFlush()
	return j, nil
}

// Handle implements events.Handler. Events other than trades and
// migrations are ignored.
func (j *Journal) Handle(_ context.Context, event events.Event) error {
	var record []string
	ts := event.Timestamp().UTC().Format(time.RFC3339Nano)

	switch ev := event.(type) {
	case *events.TradeEvent:
		record = []string{
			ts, string(ev.Type()), ev.Mint.String(), ev.Trader.String(),
			curve.FormatSol(ev.SolAmount), curve.FormatTokens(ev.TokenAmount), curve.FormatSol(ev.FeeAmount),
			strconv.FormatUint(ev.NewSolReserve, 10), strconv.FormatUint(ev.NewTokenReserve, 10),
		}
	case *events.MigrationCompletedEvent:
		record = []string{
			ts, string(ev.Type()), ev.Mint.String(), ev.Pool.String(),
			curve.FormatSol(ev.SolAmount), curve.FormatTokens(ev.TokenAmount), curve.FormatSol(ev.MigrationFee),
			"0", "0",
		}
	default:
		return nil
	}
	return j.WriteRecord(record)
}

// WriteRecord appends one row.
func (j *Journal) WriteRecord(record []string) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if err := j.writer.Write(record); err != nil {
		return fmt.Errorf("failed to write record: %w", err)
	}
	j.writtenRecords++
	return nil
}

// Flush forces buffered rows to disk.
func (j *Journal) Flush() error {
	j.mu.Lock()
	defer j.mu.Unlock()

	j.writer.Flush()
	if err := j.writer.Error(); err != nil {
		return fmt.Errorf("CSV writer error: %w", err)
	}
	if err := j.file.Sync(); err != nil {
		return fmt.Errorf("failed to sync file: %w", err)
	}
	j.flushCount++
	return nil
}

func (j *Journal) periodicFlush() {
	for {
		select {
		case <-j.ticker.C:
			if err := j.Flush(); err != nil {
				j.logger.Error("Periodic journal flush failed",
					zap.String("file", j.filePath),
					zap.Error(err))
			}
		case <-j.done:
			return
		}
	}
}

// Close flushes and closes the journal.
func (j *Journal) Close() error {
	close(j.done)
	j.ticker.Stop()

	j.mu.Lock()
	defer j.mu.Unlock()

	j.writer.Flush()
	if err := j.writer.Error(); err != nil {
		return fmt.Errorf("CSV writer error on close: %w", err)
	}
	if err := j.file.Close(); err != nil {
		return fmt.Errorf("failed to close file: %w", err)
	}

	j.logger.Info("Journal closed",
		zap.String("file", j.filePath),
		zap.Uint64("written_records", j.writtenRecords),
		zap.Uint64("flush_count", j.flushCount))
	return nil
}

// Stats returns the number of rows written and flushes performed.
func (j *Journal) Stats() (records, flushes uint64) {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.writtenRecords, j.flushCount
}
