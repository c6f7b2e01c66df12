package service

import (
	"time"

	"github.com/okian/songsort/internal/domain/matchqueue"
	"github.com/okian/songsort/pkg/logger"
)

// Default service configuration constants.
const (
	defaultDedupeSize        = 50000
	defaultImportConcurrency = 5
	defaultIdleTimeout       = 30 * time.Minute
	defaultReapInterval      = time.Minute
	defaultJournalCapacity   = 4096
	defaultJournalWorkers    = 2
	defaultJournalRetention  = 200
)

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithEloK sets the maximum rating change per match.
func WithEloK(k float64) Option {
	return func(s *Service) {
		if k > 0 {
			s.eloK = k
		}
	}
}

// WithDedupeSize sets how many outcome ids are remembered for idempotency.
func WithDedupeSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.dedupeSize = size
		}
	}
}

// WithImportConcurrency bounds the in-flight record creations of an import.
func WithImportConcurrency(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.importConcurrency = n
		}
	}
}

// WithIdleTimeout sets how long a session may sit unused before it is
// reaped. Zero disables reaping.
func WithIdleTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d >= 0 {
			s.idleTimeout = d
		}
	}
}

// WithReapInterval sets how often the reaper looks for idle sessions.
func WithReapInterval(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.reapInterval = d
		}
	}
}

// WithQueueOptions passes options to every session's match queue.
func WithQueueOptions(opts ...matchqueue.Option) Option {
	return func(s *Service) {
		s.queueOpts = append(s.queueOpts, opts...)
	}
}

// WithJournal sizes the match journal: the queue capacity, the number of
// workers and the matches kept per collection.
func WithJournal(capacity, workers, retention int) Option {
	return func(s *Service) {
		if capacity > 0 {
			s.journalCapacity = capacity
		}
		if workers > 0 {
			s.journalWorkers = workers
		}
		if retention > 0 {
			s.journalRetention = retention
		}
	}
}

// WithClock overrides the time source for session activity and matches.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}
