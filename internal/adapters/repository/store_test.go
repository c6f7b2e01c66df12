package repository_test

import (
	"context"
	"errors"
	"testing"

	"github.com/okian/songsort/internal/adapters/repository"
	"github.com/okian/songsort/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

func TestToken(t *testing.T) {
	Convey("Given session tokens", t, func() {
		Convey("When parsing", func() {
			lsn, err := repository.NewToken(42).LSN()
			So(err, ShouldBeNil)
			So(lsn, ShouldEqual, 42)

			empty, err := repository.Token("").LSN()
			So(err, ShouldBeNil)
			So(empty, ShouldEqual, 0)

			_, err = repository.Token("abc").LSN()
			So(errors.Is(err, repository.ErrInvalidToken), ShouldBeTrue)
		})

		Convey("When picking the latest", func() {
			So(repository.Latest(), ShouldEqual, repository.Token(""))
			So(repository.Latest("", "3", "12", "7"), ShouldEqual, repository.Token("12"))
			So(repository.Latest("bogus", "2"), ShouldEqual, repository.Token("2"))
			So(repository.Latest("", "0"), ShouldEqual, repository.Token("0"))
		})
	})
}

// storeContract exercises the behavior every Store must share.
func storeContract(open func() repository.Store) {
	ctx := context.Background()
	s := open()
	Reset(func() { _ = s.Close() })

	seed := func(owner, collection string, ids ...string) repository.Token {
		var tok repository.Token
		for _, id := range ids {
			next, err := s.CreateRatingIfAbsent(ctx, model.NewRating(owner, collection, id, "track-"+id, "Song "+id), tok)
			So(err, ShouldBeNil)
			tok = repository.Latest(tok, next)
		}
		return tok
	}

	Convey("When ratings are created", func() {
		tok := seed("alice", "p1", "a", "b", "c")

		Convey("Then they can be read back with the session token", func() {
			r, next, err := s.GetRating(ctx, "alice", "b", tok)
			So(err, ShouldBeNil)
			So(r.Rating, ShouldEqual, model.InitialRating)
			So(r.Name, ShouldEqual, "Song b")
			So(next, ShouldNotBeEmpty)
		})

		Convey("Then another owner cannot see them", func() {
			_, _, err := s.GetRating(ctx, "bob", "b", tok)
			So(errors.Is(err, repository.ErrNotFound), ShouldBeTrue)

			rs, _, err := s.QueryRatings(ctx, "bob", nil, tok)
			So(err, ShouldBeNil)
			So(rs, ShouldBeEmpty)
		})

		Convey("Then creating again leaves the stored record alone", func() {
			r, _, _ := s.GetRating(ctx, "alice", "a", tok)
			r.Rating = 1600
			tok2, err := s.ReplaceRating(ctx, r, tok)
			So(err, ShouldBeNil)

			tok3, err := s.CreateRatingIfAbsent(ctx, model.NewRating("alice", "p1", "a", "track-a", "Song a"), tok2)
			So(err, ShouldBeNil)

			got, _, err := s.GetRating(ctx, "alice", "a", repository.Latest(tok2, tok3))
			So(err, ShouldBeNil)
			So(got.Rating, ShouldEqual, 1600)
		})

		Convey("Then replace overwrites the whole record", func() {
			r, _, _ := s.GetRating(ctx, "alice", "c", tok)
			r.Rating, r.Wins = 1516, 1
			next, err := s.ReplaceRating(ctx, r, tok)
			So(err, ShouldBeNil)

			got, _, err := s.GetRating(ctx, "alice", "c", next)
			So(err, ShouldBeNil)
			So(got.Rating, ShouldEqual, 1516)
			So(got.Wins, ShouldEqual, 1)
		})

		Convey("Then queries filter and order by id", func() {
			seed("alice", "p2", "z")
			rs, _, err := s.QueryRatings(ctx, "alice", repository.InCollection("p1"), repository.NewToken(1000))
			So(err, ShouldBeNil)
			So(len(rs), ShouldEqual, 3)
			So(rs[0].ID, ShouldEqual, "a")
			So(rs[2].ID, ShouldEqual, "c")

			picked, _, err := s.QueryRatings(ctx, "alice", repository.WithIDs("c", "z"), repository.NewToken(1000))
			So(err, ShouldBeNil)
			So(len(picked), ShouldEqual, 2)
		})

		Convey("Then deleting by predicate removes only matches", func() {
			tok2 := seed("alice", "p2", "z")
			n, next, err := s.DeleteRatings(ctx, "alice", repository.InCollection("p1"), tok2)
			So(err, ShouldBeNil)
			So(n, ShouldEqual, 3)

			rs, _, err := s.QueryRatings(ctx, "alice", nil, next)
			So(err, ShouldBeNil)
			So(len(rs), ShouldEqual, 1)
			So(rs[0].ID, ShouldEqual, "z")

			st, err := s.Stats(ctx)
			So(err, ShouldBeNil)
			So(st.Ratings, ShouldEqual, 1)
		})
	})

	Convey("When replacing a rating that does not exist", func() {
		_, err := s.ReplaceRating(ctx, model.NewRating("alice", "p1", "ghost", "t", "Ghost"), "")

		Convey("Then it fails with ErrNotFound", func() {
			So(errors.Is(err, repository.ErrNotFound), ShouldBeTrue)
		})
	})

	Convey("When writing an invalid record", func() {
		_, err := s.CreateRatingIfAbsent(ctx, model.Rating{ID: "x"}, "")

		Convey("Then it is rejected", func() {
			So(errors.Is(err, repository.ErrInvalidRecord), ShouldBeTrue)
		})
	})

	Convey("When storing collections", func() {
		c := model.Collection{ID: "p1", OwnerID: "alice", Name: "Road trip", Items: []string{"a", "b"}}
		tok, err := s.PutCollection(ctx, c, "")
		So(err, ShouldBeNil)
		tok, err = s.PutCollection(ctx, model.Collection{ID: "p0", OwnerID: "alice", Name: "Focus"}, tok)
		So(err, ShouldBeNil)

		Convey("Then they can be fetched and listed", func() {
			got, _, err := s.GetCollection(ctx, "alice", "p1", tok)
			So(err, ShouldBeNil)
			So(got.Items, ShouldResemble, []string{"a", "b"})

			all, _, err := s.ListCollections(ctx, "alice", tok)
			So(err, ShouldBeNil)
			So(len(all), ShouldEqual, 2)
			So(all[0].ID, ShouldEqual, "p0")
		})

		Convey("Then deleting removes them once", func() {
			next, err := s.DeleteCollection(ctx, "alice", "p1", tok)
			So(err, ShouldBeNil)

			_, _, err = s.GetCollection(ctx, "alice", "p1", next)
			So(errors.Is(err, repository.ErrNotFound), ShouldBeTrue)

			_, err = s.DeleteCollection(ctx, "alice", "p1", next)
			So(errors.Is(err, repository.ErrNotFound), ShouldBeTrue)
		})
	})

	Convey("When owner ids contain separators", func() {
		tok := seed("a/b", "p", "x")
		seed("a", "p", "y")

		Convey("Then partitions stay apart", func() {
			rs, _, err := s.QueryRatings(ctx, "a", nil, repository.Latest(tok, repository.NewToken(1000)))
			So(err, ShouldBeNil)
			So(len(rs), ShouldEqual, 1)
			So(rs[0].ID, ShouldEqual, "y")
		})
	})

	Convey("When a malformed token is passed", func() {
		_, _, err := s.GetRating(ctx, "alice", "a", "not-a-token")

		Convey("Then the call is rejected", func() {
			So(errors.Is(err, repository.ErrInvalidToken), ShouldBeTrue)
		})
	})

	Convey("When the context is already cancelled", func() {
		cctx, cancel := context.WithCancel(ctx)
		cancel()
		_, _, err := s.GetRating(cctx, "alice", "a", "")

		Convey("Then the call fails with the context error", func() {
			So(errors.Is(err, context.Canceled), ShouldBeTrue)
		})
	})
}

func TestMemoryStoreContract(t *testing.T) {
	Convey("Given a memory store", t, func() {
		storeContract(func() repository.Store { return repository.NewMemoryStore() })
	})
}

func TestBadgerStoreContract(t *testing.T) {
	Convey("Given an in-memory badger store", t, func() {
		storeContract(func() repository.Store {
			s, err := repository.NewBadgerStore(repository.WithInMemory())
			So(err, ShouldBeNil)
			return s
		})
	})
}

func TestBreakerStoreContract(t *testing.T) {
	Convey("Given a breaker around a memory store", t, func() {
		storeContract(func() repository.Store {
			return repository.NewBreakerStore(repository.NewMemoryStore())
		})
	})
}
