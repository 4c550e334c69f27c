// internal/storage/sqlstore/sqlstore.go
package sqlstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/rovshanmuradov/bondingcurve/internal/curve"
	"github.com/rovshanmuradov/bondingcurve/internal/storage"
	"github.com/rovshanmuradov/bondingcurve/internal/storage/models"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"

	migrationLockID = 6510
)

// Options selects the database and tunes its connection pool.
type Options struct {
	Driver          string
	DSN             string
	MaxIdleConns    int
	MaxOpenConns    int
	ConnMaxLifetime time.Duration
	LogLevel        string
}

// Store implements storage.Storage on top of gorm.
type Store struct {
	db     *gorm.DB
	driver string
	logger *zap.Logger
}

var _ storage.Storage = (*Store)(nil)

// Open connects to the database described by opts.
func Open(opts Options, zapLogger *zap.Logger) (*Store, error) {
	var dialector gorm.Dialector
	switch opts.Driver {
	case DriverPostgres:
		dialector = postgres.Open(opts.DSN)
	case DriverSQLite, "":
		opts.Driver = DriverSQLite
		dialector = sqlite.Open(opts.DSN)
	default:
		return nil, fmt.Errorf("unsupported storage driver %q", opts.Driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: newGormLogger(zapLogger.Named("gorm"), parseLogLevel(opts.LogLevel)),
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
		DisableForeignKeyConstraintWhenMigrating: true,
		SkipDefaultTransaction:                   true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database instance: %w", err)
	}
	if opts.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(opts.MaxIdleConns)
	}
	if opts.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(opts.MaxOpenConns)
	}
	if opts.Driver == DriverSQLite {
		// sqlite allows a single writer
		sqlDB.SetMaxOpenConns(1)
	}
	if opts.ConnMaxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(opts.ConnMaxLifetime)
	}

	return &Store{
		db:     db,
		driver: opts.Driver,
		logger: zapLogger.Named("sqlstore"),
	}, nil
}

// RunMigrations creates or updates the schema. On postgres an advisory lock
// keeps concurrent daemons from migrating at once.
func (s *Store) RunMigrations() error {
	if s.driver == DriverPostgres {
		var lockObtained bool
		if err := s.db.Raw("SELECT pg_try_advisory_lock(?)", migrationLockID).Scan(&lockObtained).Error; err != nil {
			return fmt.Errorf("failed to acquire migration lock: %w", err)
		}
		if !lockObtained {
			return fmt.Errorf("another migration is in progress")
		}
		defer s.db.Exec("SELECT pg_advisory_unlock(?)", migrationLockID)
	}

	if err := s.db.AutoMigrate(
		&models.GlobalConfig{},
		&models.BondingCurve{},
		&models.Trade{},
		&models.Migration{},
	); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}

// Close releases the connection pool.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (s *Store) LoadConfig(ctx context.Context) (*curve.GlobalConfig, error) {
	var row models.GlobalConfig
	if err := s.db.WithContext(ctx).First(&row, models.ConfigRowID).Error; err != nil {
		return nil, notFound(err)
	}
	return row.ToDomain()
}

func (s *Store) SaveConfig(ctx context.Context, cfg *curve.GlobalConfig) error {
	row := models.FromConfig(cfg)
	return s.db.WithContext(ctx).
		Clauses(clause.OnConflict{UpdateAll: true}).
		Create(row).Error
}

func (s *Store) GetCurve(ctx context.Context, mint solana.PublicKey) (*curve.BondingCurve, error) {
	var row models.BondingCurve
	if err := s.db.WithContext(ctx).Where("mint = ?", mint.String()).First(&row).Error; err != nil {
		return nil, notFound(err)
	}
	return row.ToDomain()
}

func (s *Store) ListCurves(ctx context.Context, limit, offset int) ([]*curve.BondingCurve, error) {
	var rows []*models.BondingCurve
	err := s.db.WithContext(ctx).
		Order("created_at desc").
		Limit(limit).
		Offset(offset).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make([]*curve.BondingCurve, 0, len(rows))
	for _, r := range rows {
		c, err := r.ToDomain()
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}

func (s *Store) CreateCurve(ctx context.Context, c *curve.BondingCurve) error {
	return s.db.WithContext(ctx).Create(models.FromCurve(c)).Error
}

func (s *Store) SettleTrade(ctx context.Context, c *curve.BondingCurve, trade *curve.Trade) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := updateCurve(tx, c); err != nil {
			return err
		}
		return tx.Create(models.FromTrade(trade)).Error
	})
}

func (s *Store) SettleMigration(ctx context.Context, c *curve.BondingCurve, m *curve.Migration) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := updateCurve(tx, c); err != nil {
			return err
		}
		return tx.Create(models.FromMigration(m)).Error
	})
}

func (s *Store) ListTrades(ctx context.Context, mint solana.PublicKey, limit, offset int) ([]*curve.Trade, error) {
	var rows []*models.Trade
	err := s.db.WithContext(ctx).
		Where("mint = ?", mint.String()).
		Order("created_at asc").
		Limit(limit).
		Offset(offset).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make([]*curve.Trade, 0, len(rows))
	for _, r := range rows {
		t, err := r.ToDomain()
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, nil
}

func (s *Store) GetMigration(ctx context.Context, mint solana.PublicKey) (*curve.Migration, error) {
	var row models.Migration
	if err := s.db.WithContext(ctx).Where("mint = ?", mint.String()).First(&row).Error; err != nil {
		return nil, notFound(err)
	}
	return row.ToDomain()
}

// updateCurve writes the mutable columns of c. Zero values are written too.
func updateCurve(tx *gorm.DB, c *curve.BondingCurve) error {
	res := tx.Model(&models.BondingCurve{}).
		Where("mint = ?", c.Mint.String()).
		Updates(map[string]interface{}{
			"virtual_token_reserve": c.VirtualTokenReserve,
			"virtual_sol_reserve":   c.VirtualSolReserve,
			"real_token_reserve":    c.RealTokenReserve,
			"real_sol_reserve":      c.RealSolReserve,
			"phase":                 c.Phase.String(),
			"updated_at":            c.UpdatedAt,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("curve %s: %w", c.Mint, storage.ErrNotFound)
	}
	return nil
}

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return storage.ErrNotFound
	}
	return err
}
