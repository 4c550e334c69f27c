// =================================
// File: internal/config/config.go
// =================================
package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/spf13/viper"

	"github.com/rovshanmuradov/bondingcurve/internal/curve"
)

// Storage drivers.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
	DriverLevelDB  = "leveldb"
	DriverMemory   = "memory"
)

type Config struct {
	Storage           StorageConfig `mapstructure:"storage"`
	HTTP              HTTPConfig    `mapstructure:"http"`
	Metrics           MetricsConfig `mapstructure:"metrics"`
	Log               LogConfig     `mapstructure:"log"`
	Export            ExportConfig  `mapstructure:"export"`
	Curve             curve.Params  `mapstructure:"curve"`
	ProgramID         string        `mapstructure:"program_id"`
	PoolProgramID     string        `mapstructure:"pool_program_id"`
	RentExemptMinimum uint64        `mapstructure:"rent_exempt_minimum"`
	EventBuffer       int           `mapstructure:"event_buffer"`
}

type StorageConfig struct {
	Driver          string        `mapstructure:"driver"`
	DSN             string        `mapstructure:"dsn"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	LogLevel        string        `mapstructure:"log_level"`
	ConnectRetries  int           `mapstructure:"connect_retries"`
	RetryDelay      time.Duration `mapstructure:"retry_delay"`
}

type HTTPConfig struct {
	Addr            string        `mapstructure:"addr"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// MetricsConfig serves /metrics on its own listener when Addr is set;
// otherwise the API router serves it.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Addr    string `mapstructure:"addr"`
}

type LogConfig struct {
	File        string `mapstructure:"file"`
	MaxSize     int    `mapstructure:"max_size"`
	MaxAge      int    `mapstructure:"max_age"`
	MaxBackups  int    `mapstructure:"max_backups"`
	Compress    bool   `mapstructure:"compress"`
	Development bool   `mapstructure:"development"`
}

type ExportConfig struct {
	Dir           string        `mapstructure:"dir"`
	JournalPath   string        `mapstructure:"journal_path"`
	FlushInterval time.Duration `mapstructure:"flush_interval"`
}

const (
	EnvPrefix = "BONDING_CURVE"

	DefaultHTTPAddr          = ":8080"
	DefaultEventBuffer       = 1024
	DefaultRentExemptMinimum = 1_461_600
	DefaultConnectRetries    = 5
)

func defaults() map[string]interface{} {
	p := curve.DefaultParams()
	return map[string]interface{}{
		"storage.driver":            DriverSQLite,
		"storage.dsn":               "bondingcurve.db",
		"storage.max_idle_conns":    5,
		"storage.max_open_conns":    20,
		"storage.conn_max_lifetime": time.Hour,
		"storage.log_level":         "warn",
		"storage.connect_retries":   DefaultConnectRetries,
		"storage.retry_delay":       500 * time.Millisecond,

		"http.addr":             DefaultHTTPAddr,
		"http.read_timeout":     10 * time.Second,
		"http.write_timeout":    30 * time.Second,
		"http.shutdown_timeout": 15 * time.Second,

		"metrics.enabled": true,
		"metrics.addr":    "",

		"log.file":        "curved.log",
		"log.max_size":    100,
		"log.max_age":     7,
		"log.max_backups": 3,
		"log.compress":    true,
		"log.development": false,

		"export.dir":            "exports",
		"export.journal_path":   "",
		"export.flush_interval": time.Second,

		"curve.crr_numerator":        p.CRRNumerator,
		"curve.crr_denominator":      p.CRRDenominator,
		"curve.min_buy_amount":       p.MinBuyAmount,
		"curve.min_sell_amount":      p.MinSellAmount,
		"curve.max_price_impact_bps": p.MaxPriceImpactBps,
		"curve.min_sol_reserve":      p.MinSolReserve,

		"program_id":          "",
		"pool_program_id":     "",
		"rent_exempt_minimum": DefaultRentExemptMinimum,
		"event_buffer":        DefaultEventBuffer,
	}
}

// LoadConfig reads path (when non-empty) over the defaults and applies
// BONDING_CURVE_* environment overrides, e.g. BONDING_CURVE_STORAGE_DSN.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	for key, value := range defaults() {
		v.SetDefault(key, value)
	}
	bindEnvironment(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	return &cfg, cfg.Validate()
}

func bindEnvironment(v *viper.Viper) {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
}

// Validate checks the configuration for values the daemon cannot run with.
func (c *Config) Validate() error {
	if err := c.validateStorage(); err != nil {
		return err
	}
	if c.HTTP.Addr == "" {
		return errors.New("http.addr is empty")
	}
	if c.HTTP.ShutdownTimeout <= 0 {
		return errors.New("invalid http.shutdown_timeout")
	}
	if err := c.Curve.Validate(); err != nil {
		return fmt.Errorf("invalid curve parameters: %w", err)
	}
	if c.RentExemptMinimum == 0 {
		return errors.New("rent_exempt_minimum must be positive")
	}
	if c.EventBuffer <= 0 {
		return errors.New("invalid event_buffer")
	}
	if c.Log.MaxSize < 0 || c.Log.MaxAge < 0 || c.Log.MaxBackups < 0 {
		return errors.New("invalid log rotation settings")
	}
	for name, id := range map[string]string{"program_id": c.ProgramID, "pool_program_id": c.PoolProgramID} {
		if id == "" {
			continue
		}
		if _, err := solana.PublicKeyFromBase58(id); err != nil {
			return fmt.Errorf("invalid %s: %w", name, err)
		}
	}
	return nil
}

func (c *Config) validateStorage() error {
	s := c.Storage
	switch s.Driver {
	case DriverPostgres:
		if s.DSN == "" {
			return errors.New("storage.dsn is required for postgres")
		}
		if strings.Contains(s.DSN, "://") {
			if err := validateURL(s.DSN, "postgres"); err != nil {
				return fmt.Errorf("invalid storage.dsn: %w", err)
			}
		}
	case DriverSQLite, DriverLevelDB:
		if s.DSN == "" {
			return fmt.Errorf("storage.dsn is required for %s", s.Driver)
		}
	case DriverMemory:
	default:
		return fmt.Errorf("unsupported storage.driver %q", s.Driver)
	}
	if s.ConnectRetries < 0 {
		return errors.New("invalid storage.connect_retries")
	}
	if s.MaxIdleConns < 0 || s.MaxOpenConns < 0 {
		return errors.New("invalid storage connection pool size")
	}
	return nil
}

func validateURL(rawURL string, protocol string) error {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return errors.New("invalid URL format")
	}
	if !strings.HasPrefix(parsed.Scheme, protocol) {
		return errors.New("invalid URL protocol")
	}
	return nil
}

// PublicKeyOr parses s, returning fallback when s is empty. Validate has
// already rejected malformed keys.
func PublicKeyOr(s string, fallback solana.PublicKey) solana.PublicKey {
	if s == "" {
		return fallback
	}
	return solana.MustPublicKeyFromBase58(s)
}
