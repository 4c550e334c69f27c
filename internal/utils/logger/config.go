// internal/utils/logger/config.go
package logger

import "io"

type Config struct {
	LogFile     string // empty disables file output
	MaxSize     int    // megabytes
	MaxAge      int    // days
	MaxBackups  int    // files
	Compress    bool   // gzip rotated files
	Development bool

	// Console receives human-readable output; nil means stdout.
	Console io.Writer
}

// DefaultConfig returns the production defaults.
func DefaultConfig() *Config {
	return &Config{
		LogFile:     "curved.log",
		MaxSize:     100,
		MaxAge:      7,
		MaxBackups:  3,
		Compress:    true,
		Development: false,
	}
}
