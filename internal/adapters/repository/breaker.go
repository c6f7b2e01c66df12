package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/okian/songsort/internal/domain/model"
	"github.com/okian/songsort/pkg/logger"
	"github.com/okian/songsort/pkg/metrics"
)

// BreakerStore runs every call of the wrapped store through a circuit
// breaker and records per-operation latency. Lookups that miss and rejected
// input do not count as failures. While the circuit is open calls fail fast
// with ErrUnavailable.
type BreakerStore struct {
	next Store
	cb   *gobreaker.CircuitBreaker[struct{}]
	name string
}

// NewBreakerStore wraps next.
func NewBreakerStore(next Store, opts ...BreakerOption) *BreakerStore {
	st := breakerSettings{
		name:        "store",
		maxFailures: 5,
		openTimeout: 10 * time.Second,
		interval:    time.Minute,
		logger:      logger.Discard(),
	}
	for _, opt := range opts {
		opt(&st)
	}

	metrics.UpdateBreakerState(st.name, int(gobreaker.StateClosed))
	cb := gobreaker.NewCircuitBreaker[struct{}](gobreaker.Settings{
		Name:        st.name,
		MaxRequests: 1,
		Interval:    st.interval,
		Timeout:     st.openTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= st.maxFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			st.logger.Warn(context.Background(), "store circuit breaker state changed",
				logger.String("breaker", name),
				logger.String("from", from.String()),
				logger.String("to", to.String()),
			)
			metrics.UpdateBreakerState(name, int(to))
		},
		IsSuccessful: isHealthy,
	})

	return &BreakerStore{next: next, cb: cb, name: st.name}
}

// isHealthy reports whether err says nothing about the store's health.
func isHealthy(err error) bool {
	return err == nil ||
		errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrInvalidRecord) ||
		errors.Is(err, ErrInvalidToken) ||
		errors.Is(err, context.Canceled)
}

// State returns the current breaker state.
func (b *BreakerStore) State() gobreaker.State { return b.cb.State() }

func (b *BreakerStore) do(op string, fn func() error) error {
	start := time.Now()
	_, err := b.cb.Execute(func() (struct{}, error) {
		return struct{}{}, fn()
	})
	metrics.RecordStoreOpLatency(op, float64(time.Since(start).Microseconds())/1000)

	switch {
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		metrics.RecordStoreError(op)
		return fmt.Errorf("%w: %s: %w", ErrUnavailable, b.name, err)
	case !isHealthy(err):
		metrics.RecordStoreError(op)
	}
	return err
}

// GetRating implements Store.
func (b *BreakerStore) GetRating(ctx context.Context, owner, id string, tok Token) (r model.Rating, next Token, err error) {
	next = tok
	err = b.do("get_rating", func() error {
		var err error
		r, next, err = b.next.GetRating(ctx, owner, id, tok)
		return err
	})
	return r, next, err
}

// QueryRatings implements Store.
func (b *BreakerStore) QueryRatings(ctx context.Context, owner string, pred Predicate, tok Token) (rs []model.Rating, next Token, err error) {
	next = tok
	err = b.do("query_ratings", func() error {
		var err error
		rs, next, err = b.next.QueryRatings(ctx, owner, pred, tok)
		return err
	})
	return rs, next, err
}

// ReplaceRating implements Store.
func (b *BreakerStore) ReplaceRating(ctx context.Context, r model.Rating, tok Token) (next Token, err error) {
	next = tok
	err = b.do("replace_rating", func() error {
		var err error
		next, err = b.next.ReplaceRating(ctx, r, tok)
		return err
	})
	return next, err
}

// CreateRatingIfAbsent implements Store.
func (b *BreakerStore) CreateRatingIfAbsent(ctx context.Context, r model.Rating, tok Token) (next Token, err error) {
	next = tok
	err = b.do("create_rating", func() error {
		var err error
		next, err = b.next.CreateRatingIfAbsent(ctx, r, tok)
		return err
	})
	return next, err
}

// DeleteRatings implements Store.
func (b *BreakerStore) DeleteRatings(ctx context.Context, owner string, pred Predicate, tok Token) (n int, next Token, err error) {
	next = tok
	err = b.do("delete_ratings", func() error {
		var err error
		n, next, err = b.next.DeleteRatings(ctx, owner, pred, tok)
		return err
	})
	return n, next, err
}

// GetCollection implements Store.
func (b *BreakerStore) GetCollection(ctx context.Context, owner, id string, tok Token) (c model.Collection, next Token, err error) {
	next = tok
	err = b.do("get_collection", func() error {
		var err error
		c, next, err = b.next.GetCollection(ctx, owner, id, tok)
		return err
	})
	return c, next, err
}

// ListCollections implements Store.
func (b *BreakerStore) ListCollections(ctx context.Context, owner string, tok Token) (cs []model.Collection, next Token, err error) {
	next = tok
	err = b.do("list_collections", func() error {
		var err error
		cs, next, err = b.next.ListCollections(ctx, owner, tok)
		return err
	})
	return cs, next, err
}

// PutCollection implements Store.
func (b *BreakerStore) PutCollection(ctx context.Context, c model.Collection, tok Token) (next Token, err error) {
	next = tok
	err = b.do("put_collection", func() error {
		var err error
		next, err = b.next.PutCollection(ctx, c, tok)
		return err
	})
	return next, err
}

// DeleteCollection implements Store.
func (b *BreakerStore) DeleteCollection(ctx context.Context, owner, id string, tok Token) (next Token, err error) {
	next = tok
	err = b.do("delete_collection", func() error {
		var err error
		next, err = b.next.DeleteCollection(ctx, owner, id, tok)
		return err
	})
	return next, err
}

// Stats implements Store.
func (b *BreakerStore) Stats(ctx context.Context) (st Stats, err error) {
	err = b.do("stats", func() error {
		var err error
		st, err = b.next.Stats(ctx)
		return err
	})
	return st, err
}

// Close closes the wrapped store.
func (b *BreakerStore) Close() error {
	return b.next.Close()
}
