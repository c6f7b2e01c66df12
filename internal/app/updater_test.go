package service

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/okian/songsort/internal/adapters/repository"
	"github.com/okian/songsort/internal/domain/elo"
	"github.com/okian/songsort/internal/domain/model"
	"github.com/okian/songsort/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

var errReset = errors.New("connection reset by peer")

// failingStore fails ReplaceRating for chosen ids a given number of times.
type failingStore struct {
	repository.Store

	mu    sync.Mutex
	fails map[string]int
	calls map[string]int
}

func newFailingStore(next repository.Store) *failingStore {
	return &failingStore{Store: next, fails: map[string]int{}, calls: map[string]int{}}
}

func (f *failingStore) failReplace(id string, times int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fails[id] = times
}

func (f *failingStore) replaceCalls(id string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[id]
}

func (f *failingStore) ReplaceRating(ctx context.Context, r model.Rating, tok repository.Token) (repository.Token, error) {
	f.mu.Lock()
	f.calls[r.ID]++
	if f.fails[r.ID] > 0 {
		f.fails[r.ID]--
		f.mu.Unlock()
		return tok, errReset
	}
	f.mu.Unlock()
	return f.Store.ReplaceRating(ctx, r, tok)
}

func seedPair(ctx context.Context, s repository.Store, owner string) {
	for _, id := range []string{"1", "2"} {
		if _, err := s.CreateRatingIfAbsent(ctx, model.NewRating(owner, "c1", id, id, "song "+id), ""); err != nil {
			panic(err)
		}
	}
}

func TestUpdater_ApplyOutcome(t *testing.T) {
	ctx := context.Background()

	Convey("Given two fresh ratings", t, func() {
		mem := repository.NewMemoryStore()
		store := newFailingStore(mem)
		seedPair(ctx, mem, "alice")
		u := NewUpdater(store, elo.NewCalculator(), logger.Discard())
		scope := newScope("alice")

		get := func(id string) model.Rating {
			r, _, err := mem.GetRating(ctx, "alice", id, "")
			So(err, ShouldBeNil)
			return r
		}

		Convey("When 1 beats 2", func() {
			w, l, err := u.ApplyOutcome(ctx, scope, "1", "2")

			Convey("Then the exchange is 16 points both ways", func() {
				So(err, ShouldBeNil)
				So(w.Rating, ShouldEqual, 1516)
				So(w.Wins, ShouldEqual, 1)
				So(l.Rating, ShouldEqual, 1484)
				So(l.Losses, ShouldEqual, 1)
			})

			Convey("Then both records are stored and the scope token advanced", func() {
				So(get("1").Rating, ShouldEqual, 1516)
				So(get("2").Rating, ShouldEqual, 1484)
				lsn, _ := scope.Token().LSN()
				So(lsn, ShouldBeGreaterThanOrEqualTo, 4)
			})
		})

		Convey("When the loser does not exist", func() {
			_, _, err := u.ApplyOutcome(ctx, scope, "1", "404")

			Convey("Then nothing is written", func() {
				So(errors.Is(err, ErrNotFound), ShouldBeTrue)
				So(store.replaceCalls("1"), ShouldEqual, 0)
				So(get("1").Rating, ShouldEqual, model.InitialRating)
				So(get("1").Wins, ShouldEqual, 0)
			})
		})

		Convey("When the loser write fails once", func() {
			store.failReplace("2", 1)
			_, l, err := u.ApplyOutcome(ctx, scope, "1", "2")

			Convey("Then it is retried and succeeds", func() {
				So(err, ShouldBeNil)
				So(l.Rating, ShouldEqual, 1484)
				So(store.replaceCalls("2"), ShouldEqual, 2)
			})
		})

		Convey("When the loser write keeps failing", func() {
			store.failReplace("2", 2)
			_, _, err := u.ApplyOutcome(ctx, scope, "1", "2")

			Convey("Then a partial update names the committed record", func() {
				So(errors.Is(err, ErrPartialUpdate), ShouldBeTrue)
				So(errors.Is(err, errReset), ShouldBeTrue)
				var pe *PartialUpdateError
				So(errors.As(err, &pe), ShouldBeTrue)
				So(pe.Committed.ID, ShouldEqual, "1")
				So(pe.Committed.Rating, ShouldEqual, 1516)
				So(pe.FailedID, ShouldEqual, "2")
				So(get("1").Rating, ShouldEqual, 1516)
				So(get("2").Rating, ShouldEqual, model.InitialRating)
			})
		})

		Convey("When both writes keep failing", func() {
			store.failReplace("1", 2)
			store.failReplace("2", 2)
			_, _, err := u.ApplyOutcome(ctx, scope, "1", "2")

			Convey("Then it is a store error and nothing changed", func() {
				So(errors.Is(err, ErrStore), ShouldBeTrue)
				So(errors.Is(err, ErrPartialUpdate), ShouldBeFalse)
				So(get("1").Rating, ShouldEqual, model.InitialRating)
				So(get("2").Rating, ShouldEqual, model.InitialRating)
			})
		})
	})
}

func TestRetryOnce(t *testing.T) {
	ctx := context.Background()

	Convey("Given operations failing in different ways", t, func() {
		count := func(errs ...error) (int, error) {
			n := 0
			err := retryOnce(ctx, "test", func() error {
				n++
				if n <= len(errs) {
					return errs[n-1]
				}
				return nil
			})
			return n, err
		}

		Convey("Then a transient failure is retried once", func() {
			n, err := count(errReset)
			So(err, ShouldBeNil)
			So(n, ShouldEqual, 2)
		})

		Convey("Then a second transient failure surfaces", func() {
			n, err := count(errReset, errReset)
			So(err, ShouldEqual, errReset)
			So(n, ShouldEqual, 2)
		})

		Convey("Then not found is not retried", func() {
			n, err := count(repository.ErrNotFound)
			So(errors.Is(err, repository.ErrNotFound), ShouldBeTrue)
			So(n, ShouldEqual, 1)
		})

		Convey("Then cancellation is not retried", func() {
			n, _ := count(context.Canceled)
			So(n, ShouldEqual, 1)
		})
	})

	Convey("Given store errors", t, func() {
		Convey("Then they map to the service taxonomy", func() {
			So(errors.Is(storeError(repository.ErrNotFound, "x"), ErrNotFound), ShouldBeTrue)
			So(errors.Is(storeError(repository.ErrUnavailable, "x"), ErrStore), ShouldBeTrue)
			So(storeError(context.Canceled, "x"), ShouldEqual, context.Canceled)
			So(storeError(nil, "x"), ShouldBeNil)
		})
	})
}

func TestScope_Observe(t *testing.T) {
	Convey("Given a scope", t, func() {
		sc := newScope("alice")
		So(sc.Token(), ShouldEqual, repository.Token(""))

		Convey("When tokens arrive out of order", func() {
			sc.Observe(repository.NewToken(5))
			sc.Observe(repository.NewToken(3), "garbage")

			Convey("Then the token never moves backwards", func() {
				So(sc.Token(), ShouldEqual, repository.NewToken(5))
			})
		})
	})
}
