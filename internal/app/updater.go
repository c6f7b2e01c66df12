package service

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/okian/songsort/internal/adapters/repository"
	"github.com/okian/songsort/internal/domain/elo"
	"github.com/okian/songsort/internal/domain/model"
	"github.com/okian/songsort/pkg/logger"
	"github.com/okian/songsort/pkg/metrics"
)

// Updater applies match outcomes to stored ratings.
type Updater struct {
	store  repository.Store
	rater  elo.Rater
	logger logger.Logger
}

// NewUpdater creates an updater writing through store.
func NewUpdater(store repository.Store, rater elo.Rater, log logger.Logger) *Updater {
	if log == nil {
		log = logger.Discard()
	}
	return &Updater{store: store, rater: rater, logger: log}
}

// ApplyOutcome reads both ratings under the scope's token, exchanges points
// and writes both records concurrently. Both writes are awaited. It returns
// ErrNotFound without writing if either rating is missing, ErrStore if
// neither write landed and a *PartialUpdateError if exactly one did.
func (u *Updater) ApplyOutcome(ctx context.Context, scope *Scope, winnerID, loserID string) (model.Rating, model.Rating, error) {
	w, l, _, err := u.apply(ctx, scope, winnerID, loserID)
	return w, l, err
}

func (u *Updater) apply(ctx context.Context, scope *Scope, winnerID, loserID string) (model.Rating, model.Rating, elo.Exchange, error) {
	owner := scope.Owner()

	winner, err := u.read(ctx, scope, owner, winnerID)
	if err != nil {
		return model.Rating{}, model.Rating{}, elo.Exchange{}, err
	}
	loser, err := u.read(ctx, scope, owner, loserID)
	if err != nil {
		return model.Rating{}, model.Rating{}, elo.Exchange{}, err
	}

	w, l, ex := u.rater.Apply(winner, loser)

	// Both writes carry the token of the reads that produced the old values.
	tok := scope.Token()
	var (
		g          errgroup.Group
		wTok, lTok repository.Token
		wErr, lErr error
	)
	g.Go(func() error {
		wTok, wErr = u.replace(ctx, w, tok)
		return wErr
	})
	g.Go(func() error {
		lTok, lErr = u.replace(ctx, l, tok)
		return lErr
	})
	_ = g.Wait()

	switch {
	case wErr == nil && lErr == nil:
		scope.Observe(wTok, lTok)
		metrics.RecordRatingDelta(ex.WinnerDelta)
		return w, l, ex, nil
	case wErr != nil && lErr != nil:
		return model.Rating{}, model.Rating{}, elo.Exchange{}, fmt.Errorf("%w: %w", ErrStore, errors.Join(wErr, lErr))
	case wErr == nil:
		scope.Observe(wTok)
		metrics.RecordPartialUpdate()
		u.logger.Error(ctx, "outcome partially applied",
			logger.String("owner", owner),
			logger.String("committed", w.ID),
			logger.String("failed", l.ID),
			logger.Error(lErr),
		)
		return model.Rating{}, model.Rating{}, elo.Exchange{}, &PartialUpdateError{Committed: w, FailedID: l.ID, Err: lErr}
	default:
		scope.Observe(lTok)
		metrics.RecordPartialUpdate()
		u.logger.Error(ctx, "outcome partially applied",
			logger.String("owner", owner),
			logger.String("committed", l.ID),
			logger.String("failed", w.ID),
			logger.Error(wErr),
		)
		return model.Rating{}, model.Rating{}, elo.Exchange{}, &PartialUpdateError{Committed: l, FailedID: w.ID, Err: wErr}
	}
}

func (u *Updater) read(ctx context.Context, scope *Scope, owner, id string) (model.Rating, error) {
	r, err := call(ctx, scope, "get_rating", func(tok repository.Token) (model.Rating, repository.Token, error) {
		return u.store.GetRating(ctx, owner, id, tok)
	})
	if err != nil {
		return model.Rating{}, storeError(err, "rating "+id)
	}
	return r, nil
}

func (u *Updater) replace(ctx context.Context, r model.Rating, tok repository.Token) (repository.Token, error) {
	var next repository.Token
	err := retryOnce(ctx, "replace_rating", func() error {
		var err error
		next, err = u.store.ReplaceRating(ctx, r, tok)
		return err
	})
	return next, err
}

// call runs one store operation under the scope's current token, retrying
// once on a transient failure, and observes the token the store returns.
func call[T any](ctx context.Context, scope *Scope, op string, fn func(tok repository.Token) (T, repository.Token, error)) (T, error) {
	tok := scope.Token()
	var out T
	err := retryOnce(ctx, op, func() error {
		v, next, err := fn(tok)
		if err != nil {
			return err
		}
		out = v
		scope.Observe(next)
		return nil
	})
	return out, err
}

// retryOnce runs fn and, if it failed with a transient store error, runs
// it one more time. Callers reuse the same token for the second attempt.
func retryOnce(ctx context.Context, op string, fn func() error) error {
	err := fn()
	if !transient(err) || ctx.Err() != nil {
		return err
	}
	metrics.RecordStoreRetry(op)
	return fn()
}

// transient reports whether err is worth one more attempt.
func transient(err error) bool {
	switch {
	case err == nil,
		errors.Is(err, repository.ErrNotFound),
		errors.Is(err, repository.ErrInvalidRecord),
		errors.Is(err, repository.ErrInvalidToken),
		errors.Is(err, repository.ErrClosed),
		errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded):
		return false
	}
	return true
}

// storeError maps a repository error to the service taxonomy.
func storeError(err error, what string) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, repository.ErrNotFound):
		return fmt.Errorf("%s: %w", what, ErrNotFound)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return err
	}
	return fmt.Errorf("%w: %s: %w", ErrStore, what, err)
}
