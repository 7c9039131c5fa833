package journal

import (
	"time"

	"github.com/vnykmshr/qjournal/internal/journalfile"
	"github.com/vnykmshr/qjournal/internal/logging"
	"github.com/vnykmshr/qjournal/internal/metrics"
)

// defaultMaxItemSize bounds a single Put payload; Put rejects larger data
// with ErrInvalidItemSize. The record decoder does not consult this limit.
const defaultMaxItemSize = 16 * 1024 * 1024

// Config holds the resolved configuration for Open, built by applying
// Options in order over DefaultOptions.
type Config struct {
	MaxFileSize int64
	MaxItemSize int
	SyncEvery   time.Duration
	ArchiveDir  string
	Logger      logging.Logger
	Metrics     metrics.Collector
}

// Option is a functional option for Open.
type Option func(*Config) error

// DefaultOptions returns the configuration Open uses when no Option
// overrides a field.
func DefaultOptions() Config {
	return Config{
		MaxFileSize: 64 * 1024 * 1024,
		MaxItemSize: defaultMaxItemSize,
		SyncEvery:   0,
		Logger:      logging.NoopLogger{},
		Metrics:     metrics.NoopCollector{},
	}
}

// WithMaxFileSize sets the byte position at which an active data file is
// rotated after a put.
func WithMaxFileSize(n int64) Option {
	return func(c *Config) error {
		c.MaxFileSize = n
		return nil
	}
}

// WithMaxItemSize bounds the size of a single Put payload.
func WithMaxItemSize(n int) Option {
	return func(c *Config) error {
		c.MaxItemSize = n
		return nil
	}
}

// WithSyncInterval sets the writer's fsync coalescing window. 0 syncs on
// every write; journalfile.NeverSync disables implicit fsync entirely.
func WithSyncInterval(d time.Duration) Option {
	return func(c *Config) error {
		c.SyncEvery = d
		return nil
	}
}

// WithNeverSync disables implicit fsync; the caller accepts the durability
// risk in exchange for write throughput.
func WithNeverSync() Option {
	return WithSyncInterval(journalfile.NeverSync)
}

// WithArchiveDir makes garbage collection rename retired data files into
// dir instead of deleting them.
func WithArchiveDir(dir string) Option {
	return func(c *Config) error {
		c.ArchiveDir = dir
		return nil
	}
}

// WithLogger sets the structured logger used throughout the journal.
func WithLogger(l logging.Logger) Option {
	return func(c *Config) error {
		if l != nil {
			c.Logger = l
		}
		return nil
	}
}

// WithMetrics sets the metrics collector used throughout the journal.
func WithMetrics(m metrics.Collector) Option {
	return func(c *Config) error {
		if m != nil {
			c.Metrics = m
		}
		return nil
	}
}
