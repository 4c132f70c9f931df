package store

import (
	"log/slog"

	"github.com/google/uuid"
)

// MaxBatchSize caps Config.BatchSize and FindOptions.BatchSize.
const MaxBatchSize = 1000

// Config holds configuration for a DB.
type Config struct {
	// Prefix is prepended to every collection name.
	// Default: "" (no prefix)
	Prefix string

	// KeyGenerator produces keys for new documents saved without one.
	// Default: uuid.NewString
	KeyGenerator func() string

	// BatchSize is the number of records a cursor fetches per backend round trip.
	// Default: 100
	// Max: 1000
	BatchSize int

	// Logger receives debug output for cascades and lock scopes.
	// Default: slog.Default()
	Logger *slog.Logger
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		KeyGenerator: uuid.NewString,
		BatchSize:    100,
		Logger:       slog.Default(),
	}
}

// validate ensures config values are within acceptable bounds.
func (c *Config) validate() {
	if c.KeyGenerator == nil {
		c.KeyGenerator = uuid.NewString
	}
	if c.BatchSize < 1 {
		c.BatchSize = 100
	}
	if c.BatchSize > MaxBatchSize {
		c.BatchSize = MaxBatchSize
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}
