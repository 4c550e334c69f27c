// Package kv is an embedded storage.Storage backend on LevelDB.
package kv

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/gagliardetto/solana-go"
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/storage"
	"github.com/syndtr/goleveldb/leveldb/util"
	"go.uber.org/zap"

	"github.com/rovshanmuradov/bondingcurve/internal/curve"
	store "github.com/rovshanmuradov/bondingcurve/internal/storage"
)

var (
	configKey   = []byte("config")
	tradeSeqKey = []byte("seq/trade")

	curvePrefix     = []byte("curve/")
	tradePrefix     = []byte("trade/")
	migrationPrefix = []byte("migration/")
)

// Store keeps every record in one LevelDB database. Writes that touch more
// than one key go through a single batch.
type Store struct {
	mu     sync.Mutex
	db     *leveldb.DB
	logger *zap.Logger
}

var _ store.Storage = (*Store)(nil)

// Open creates or opens the database at path.
func Open(path string, logger *zap.Logger) (*Store, error) {
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, fmt.Errorf("open leveldb %s: %w", path, err)
	}
	return &Store{db: db, logger: logger.Named("kv")}, nil
}

// OpenMemory returns a store backed by memory only.
func OpenMemory(logger *zap.Logger) (*Store, error) {
	db, err := leveldb.Open(storage.NewMemStorage(), nil)
	if err != nil {
		return nil, err
	}
	return &Store{db: db, logger: logger.Named("kv")}, nil
}

// RunMigrations is a no-op; the key layout carries no schema.
func (s *Store) RunMigrations() error { return nil }

func (s *Store) Close() error { return s.db.Close() }

func curveKey(mint solana.PublicKey) []byte {
	return append(append([]byte{}, curvePrefix...), mint.Bytes()...)
}

func migrationKey(mint solana.PublicKey) []byte {
	return append(append([]byte{}, migrationPrefix...), mint.Bytes()...)
}

func tradeMintPrefix(mint solana.PublicKey) []byte {
	return append(append([]byte{}, tradePrefix...), mint.Bytes()...)
}

func tradeKey(mint solana.PublicKey, seq uint64) []byte {
	k := tradeMintPrefix(mint)
	return binary.BigEndian.AppendUint64(k, seq)
}

func (s *Store) get(key []byte, v interface{}) error {
	data, err := s.db.Get(key, nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return store.ErrNotFound
	}
	if err != nil {
		return err
	}
	if err := decode(data, v); err != nil {
		return fmt.Errorf("decode %q: %w", key, err)
	}
	return nil
}

func (s *Store) LoadConfig(_ context.Context) (*curve.GlobalConfig, error) {
	var rec configRecord
	if err := s.get(configKey, &rec); err != nil {
		return nil, err
	}
	return rec.domain(), nil
}

func (s *Store) SaveConfig(_ context.Context, cfg *curve.GlobalConfig) error {
	data, err := encode(toConfigRecord(cfg))
	if err != nil {
		return err
	}
	return s.db.Put(configKey, data, nil)
}

func (s *Store) GetCurve(_ context.Context, mint solana.PublicKey) (*curve.BondingCurve, error) {
	var rec curveRecord
	if err := s.get(curveKey(mint), &rec); err != nil {
		return nil, err
	}
	return rec.domain(), nil
}

func (s *Store) ListCurves(_ context.Context, limit, offset int) ([]*curve.BondingCurve, error) {
	it := s.db.NewIterator(util.BytesPrefix(curvePrefix), nil)
	defer it.Release()

	var out []*curve.BondingCurve
	for it.Next() {
		var rec curveRecord
		if err := decode(it.Value(), &rec); err != nil {
			return nil, fmt.Errorf("decode curve: %w", err)
		}
		out = append(out, rec.domain())
	}
	if err := it.Error(); err != nil {
		return nil, err
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return page(out, limit, offset), nil
}

func (s *Store) CreateCurve(_ context.Context, c *curve.BondingCurve) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := curveKey(c.Mint)
	exists, err := s.db.Has(key, nil)
	if err != nil {
		return err
	}
	if exists {
		return fmt.Errorf("curve %s already exists", c.Mint)
	}
	data, err := encode(toCurveRecord(c))
	if err != nil {
		return err
	}
	return s.db.Put(key, data, nil)
}

func (s *Store) SettleTrade(_ context.Context, c *curve.BondingCurve, trade *curve.Trade) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	batch, err := s.curveUpdate(c)
	if err != nil {
		return err
	}
	seq, err := s.nextTradeSeq()
	if err != nil {
		return err
	}
	data, err := encode(toTradeRecord(trade))
	if err != nil {
		return err
	}
	batch.Put(tradeKey(trade.Mint, seq), data)
	batch.Put(tradeSeqKey, binary.BigEndian.AppendUint64(nil, seq))
	return s.db.Write(batch, nil)
}

func (s *Store) SettleMigration(_ context.Context, c *curve.BondingCurve, m *curve.Migration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	batch, err := s.curveUpdate(c)
	if err != nil {
		return err
	}
	data, err := encode(toMigrationRecord(m))
	if err != nil {
		return err
	}
	batch.Put(migrationKey(m.Mint), data)
	return s.db.Write(batch, nil)
}

func (s *Store) ListTrades(_ context.Context, mint solana.PublicKey, limit, offset int) ([]*curve.Trade, error) {
	it := s.db.NewIterator(util.BytesPrefix(tradeMintPrefix(mint)), nil)
	defer it.Release()

	var out []*curve.Trade
	skipped := 0
	for it.Next() {
		if skipped < offset {
			skipped++
			continue
		}
		if limit > 0 && len(out) >= limit {
			break
		}
		var rec tradeRecord
		if err := decode(it.Value(), &rec); err != nil {
			return nil, fmt.Errorf("decode trade: %w", err)
		}
		out = append(out, rec.domain())
	}
	if err := it.Error(); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Store) GetMigration(_ context.Context, mint solana.PublicKey) (*curve.Migration, error) {
	var rec migrationRecord
	if err := s.get(migrationKey(mint), &rec); err != nil {
		return nil, err
	}
	return rec.domain(), nil
}

// curveUpdate starts a batch that overwrites an existing curve record. The
// caller holds s.mu.
func (s *Store) curveUpdate(c *curve.BondingCurve) (*leveldb.Batch, error) {
	key := curveKey(c.Mint)
	exists, err := s.db.Has(key, nil)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, fmt.Errorf("curve %s: %w", c.Mint, store.ErrNotFound)
	}
	data, err := encode(toCurveRecord(c))
	if err != nil {
		return nil, err
	}
	batch := new(leveldb.Batch)
	batch.Put(key, data)
	return batch, nil
}

func (s *Store) nextTradeSeq() (uint64, error) {
	data, err := s.db.Get(tradeSeqKey, nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return 1, nil
	}
	if err != nil {
		return 0, err
	}
	if len(data) != 8 {
		return 0, fmt.Errorf("corrupt trade sequence")
	}
	return binary.BigEndian.Uint64(data) + 1, nil
}

func page[T any](items []T, limit, offset int) []T {
	if offset >= len(items) {
		return nil
	}
	items = items[offset:]
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}
