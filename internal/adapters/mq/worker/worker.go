// Package worker drains applied match events into the match journal.
package worker

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/okian/songsort/internal/adapters/mq/queue"
	"github.com/okian/songsort/pkg/logger"
	"github.com/okian/songsort/pkg/metrics"
)

// Default worker configuration constants.
const (
	defaultWorkerCount  = 2
	poolShutdownTimeout = 10 * time.Second
)

// Event is what workers read off the queue.
type Event = queue.Event

// Appender stores a processed match.
type Appender interface {
	Append(ctx context.Context, m Event) error
}

// Queue defines how workers receive events.
type Queue interface {
	Dequeue(ctx context.Context) <-chan Event
}

// Worker processes events from a queue.
type Worker interface {
	// Run consumes events until the queue closes, ctx is done or Shutdown
	// is called.
	Run(ctx context.Context)

	// Shutdown stops the worker and waits for it to return.
	Shutdown(ctx context.Context) error
}

// InMemoryWorker appends every dequeued match to the journal.
type InMemoryWorker struct {
	queue    Queue
	appender Appender
	name     string
	now      func() time.Time

	shutdown     chan struct{}
	shutdownOnce sync.Once
	done         chan struct{}

	logger logger.Logger
}

// NewInMemoryWorker creates a worker with configuration options.
func NewInMemoryWorker(q Queue, appender Appender, opts ...Option) *InMemoryWorker {
	w := &InMemoryWorker{
		queue:    q,
		appender: appender,
		name:     "journal-worker",
		now:      time.Now,
		shutdown: make(chan struct{}),
		done:     make(chan struct{}),
		logger:   logger.Get(),
	}

	for _, opt := range opts {
		opt(w)
	}
	w.logger = w.logger.Named(w.name)

	return w
}

// Run starts the worker loop.
func (w *InMemoryWorker) Run(ctx context.Context) {
	defer close(w.done)

	events := w.queue.Dequeue(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.shutdown:
			return
		case e, ok := <-events:
			if !ok {
				return
			}
			if err := w.process(ctx, e); err != nil {
				w.logger.Error(ctx, "error journaling match", logger.Error(err))
			}
		}
	}
}

// Shutdown stops the worker.
func (w *InMemoryWorker) Shutdown(ctx context.Context) error {
	w.shutdownOnce.Do(func() { close(w.shutdown) })

	select {
	case <-w.done:
		return nil
	case <-ctx.Done():
		w.logger.Warn(ctx, "shutdown timed out")
		return fmt.Errorf("shutdown timed out: %w", ctx.Err())
	}
}

func (w *InMemoryWorker) process(ctx context.Context, e Event) error { //nolint:gocritic // hugeParam: Event is passed by value for channel semantics
	if err := w.appender.Append(ctx, e); err != nil {
		metrics.RecordErrorByComponent("journal_worker", "append_error")
		return fmt.Errorf("append match %s: %w", e.ID, err)
	}

	metrics.RecordJournalProcessed()
	if !e.At.IsZero() {
		metrics.RecordJournalLatency(float64(w.now().Sub(e.At).Milliseconds()))
	}
	return nil
}

// Pool runs a fixed set of workers over one queue.
type Pool struct {
	workers []*InMemoryWorker
	queue   Queue
	logger  logger.Logger
}

// NewPool creates a pool of workerCount workers. A count below one uses
// the default.
func NewPool(workerCount int, q Queue, appender Appender, opts ...Option) *Pool {
	if workerCount < 1 {
		workerCount = defaultWorkerCount
	}

	p := &Pool{
		workers: make([]*InMemoryWorker, workerCount),
		queue:   q,
		logger:  logger.Get().Named("journal-pool"),
	}
	for i := range p.workers {
		p.workers[i] = NewInMemoryWorker(q, appender,
			append(opts, WithName("journal-worker-"+strconv.Itoa(i)))...,
		)
	}

	return p
}

// Size returns the number of workers.
func (p *Pool) Size() int { return len(p.workers) }

// Serve runs the workers until ctx is done, then closes the queue and lets
// the workers drain what is left. It implements suture.Service.
func (p *Pool) Serve(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	defer cancel()

	for _, w := range p.workers {
		go w.Run(runCtx)
	}
	metrics.UpdateJournalWorkers(len(p.workers))
	p.logger.Info(ctx, "journal workers started", logger.Int("workers", len(p.workers)))

	<-ctx.Done()

	shutdownCtx, stop := context.WithTimeout(context.WithoutCancel(ctx), poolShutdownTimeout)
	defer stop()
	p.drain(shutdownCtx)
	metrics.UpdateJournalWorkers(0)

	return ctx.Err()
}

// drain closes the queue and waits for every worker to see the closed
// channel.
func (p *Pool) drain(ctx context.Context) {
	if closer, ok := p.queue.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			p.logger.Error(ctx, "error closing queue", logger.Error(err))
		}
	}

	for i, w := range p.workers {
		select {
		case <-w.done:
		case <-ctx.Done():
			p.logger.Warn(ctx, "worker shutdown timed out", logger.Int("worker_id", i))
			_ = w.Shutdown(ctx)
		}
	}
}

func (p *Pool) String() string { return "journal-pool" }
