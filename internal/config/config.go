// Package config defines service configuration structures and loading hooks.
//
// Conventions:
// - Provide New() to build a Config with defaults.
// - Load layers a YAML file and SONGSORT_* environment variables on top.
// - Errors wrap this package's sentinels so callers can use errors.Is.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/okian/songsort/internal/validation"
)

// Store drivers.
const (
	StoreMemory = "memory"
	StoreBadger = "badger"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level" validate:"oneof=debug info warn warning error"`

	// LogFormat selects the handler: text or json.
	LogFormat string `koanf:"log_format" validate:"oneof=text json"`

	// Addr configures the HTTP listen address, e.g. ":9080".
	Addr string `koanf:"addr" validate:"required"`

	// StoreDriver selects the rating store: memory or badger.
	StoreDriver string `koanf:"store_driver" validate:"oneof=memory badger"`

	// BadgerDir is where the badger store keeps its files.
	BadgerDir string `koanf:"badger_dir" validate:"required_if=StoreDriver badger"`

	// ReplicaLag delays the memory store's read replica.
	ReplicaLag time.Duration `koanf:"replica_lag" validate:"min=0"`

	// BreakerMaxFailures trips the store breaker after this many
	// consecutive failures.
	BreakerMaxFailures int `koanf:"breaker_max_failures" validate:"min=1"`

	// BreakerOpenTimeout is how long the breaker stays open.
	BreakerOpenTimeout time.Duration `koanf:"breaker_open_timeout" validate:"gt=0"`

	// EloK is the maximum rating change per match.
	EloK float64 `koanf:"elo_k" validate:"gt=0"`

	// SessionIdleTimeout ends sessions unused for this long. Zero keeps
	// them forever.
	SessionIdleTimeout time.Duration `koanf:"session_idle_timeout" validate:"min=0"`

	// SessionReapInterval is how often idle sessions are looked for.
	SessionReapInterval time.Duration `koanf:"session_reap_interval" validate:"gt=0"`

	// DedupeSize caps the remembered outcome ids.
	DedupeSize int `koanf:"dedupe_size" validate:"min=1"`

	// ImportConcurrency bounds the in-flight creates of one import.
	ImportConcurrency int `koanf:"import_concurrency" validate:"min=1"`

	// JournalQueueSize, JournalWorkers and JournalRetention size the match
	// history pipeline.
	JournalQueueSize int `koanf:"journal_queue_size" validate:"min=1"`
	JournalWorkers   int `koanf:"journal_workers" validate:"min=1"`
	JournalRetention int `koanf:"journal_retention" validate:"min=1"`

	// MaxBodyBytes caps request bodies.
	MaxBodyBytes int64 `koanf:"max_body_bytes" validate:"min=1024"`

	// CORSOrigins is a comma separated list of allowed origins.
	CORSOrigins string `koanf:"cors_origins"`

	// DemoSeedFile is a YAML catalog imported at startup, replacing the
	// demo owner's data.
	DemoSeedFile string `koanf:"demo_seed_file"`

	// DemoOwner overrides the owner named in the seed file.
	DemoOwner string `koanf:"demo_owner"`

	// ShutdownTimeout bounds graceful shutdown.
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout" validate:"gt=0"`
}

// New creates a Config with defaults.
func New() *Config {
	return &Config{
		LogLevel:            "info",
		LogFormat:           "text",
		Addr:                ":9080",
		StoreDriver:         StoreMemory,
		BadgerDir:           "data",
		BreakerMaxFailures:  5,
		BreakerOpenTimeout:  10 * time.Second,
		EloK:                32,
		SessionIdleTimeout:  30 * time.Minute,
		SessionReapInterval: time.Minute,
		DedupeSize:          50_000,
		ImportConcurrency:   5,
		JournalQueueSize:    4096,
		JournalWorkers:      2,
		JournalRetention:    200,
		MaxBodyBytes:        1 << 20,
		CORSOrigins:         "*",
		ShutdownTimeout:     10 * time.Second,
	}
}

// Validate checks every field.
func (c *Config) Validate() error {
	if err := validation.Struct(c); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	return nil
}

// AllowedOrigins splits CORSOrigins.
func (c *Config) AllowedOrigins() []string {
	var out []string
	for _, o := range strings.Split(c.CORSOrigins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			out = append(out, o)
		}
	}
	return out
}
