package repository

import (
	"time"

	"github.com/okian/songsort/pkg/logger"
)

// MemoryOption applies a configuration option to the MemoryStore.
type MemoryOption func(*MemoryStore)

// WithReplicaLag delays every write by d before the read replica sees it.
func WithReplicaLag(d time.Duration) MemoryOption {
	return func(s *MemoryStore) {
		if d > 0 {
			s.lag = d
		}
	}
}

// WithClock replaces the wall clock used to age pending writes.
func WithClock(now func() time.Time) MemoryOption {
	return func(s *MemoryStore) {
		if now != nil {
			s.now = now
		}
	}
}

// BadgerOption applies a configuration option to the BadgerStore.
type BadgerOption func(*badgerSettings)

type badgerSettings struct {
	dir      string
	inMemory bool
	logger   logger.Logger
}

// WithDir persists the database under dir.
func WithDir(dir string) BadgerOption {
	return func(s *badgerSettings) {
		if dir != "" {
			s.dir = dir
			s.inMemory = false
		}
	}
}

// WithInMemory keeps the database in memory only.
func WithInMemory() BadgerOption {
	return func(s *badgerSettings) {
		s.dir = ""
		s.inMemory = true
	}
}

// WithBadgerLogger routes badger's own log lines through l.
func WithBadgerLogger(l logger.Logger) BadgerOption {
	return func(s *badgerSettings) {
		if l != nil {
			s.logger = l
		}
	}
}

// BreakerOption applies a configuration option to the BreakerStore.
type BreakerOption func(*breakerSettings)

type breakerSettings struct {
	name        string
	maxFailures uint32
	openTimeout time.Duration
	interval    time.Duration
	logger      logger.Logger
}

// WithBreakerName labels the breaker in logs and metrics.
func WithBreakerName(name string) BreakerOption {
	return func(s *breakerSettings) {
		if name != "" {
			s.name = name
		}
	}
}

// WithMaxFailures opens the circuit after n consecutive failures.
func WithMaxFailures(n int) BreakerOption {
	return func(s *breakerSettings) {
		if n > 0 {
			s.maxFailures = uint32(n)
		}
	}
}

// WithOpenTimeout sets how long the circuit stays open before probing.
func WithOpenTimeout(d time.Duration) BreakerOption {
	return func(s *breakerSettings) {
		if d > 0 {
			s.openTimeout = d
		}
	}
}

// WithCountInterval resets the closed-state failure counts every d.
func WithCountInterval(d time.Duration) BreakerOption {
	return func(s *breakerSettings) {
		if d > 0 {
			s.interval = d
		}
	}
}

// WithBreakerLogger logs state transitions through l.
func WithBreakerLogger(l logger.Logger) BreakerOption {
	return func(s *breakerSettings) {
		if l != nil {
			s.logger = l
		}
	}
}
