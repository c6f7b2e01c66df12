package journal_test

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/okian/songsort/internal/domain/journal"
	"github.com/okian/songsort/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

func m(owner, collection string, i int) model.Match {
	return model.Match{ID: fmt.Sprintf("m%d", i), OwnerID: owner, CollectionID: collection}
}

func TestJournal(t *testing.T) {
	ctx := context.Background()

	Convey("Given a journal keeping three matches per collection", t, func() {
		j := journal.New(journal.WithPerCollection(3))

		Convey("When five matches are appended", func() {
			for i := 1; i <= 5; i++ {
				So(j.Append(ctx, m("alice", "c1", i)), ShouldBeNil)
			}

			Convey("Then only the newest three remain, newest first", func() {
				got := j.Recent("alice", "c1", 0)
				So(got, ShouldHaveLength, 3)
				So(got[0].ID, ShouldEqual, "m5")
				So(got[2].ID, ShouldEqual, "m3")
				So(j.Len(), ShouldEqual, 3)
			})

			Convey("Then a limit trims the result", func() {
				got := j.Recent("alice", "c1", 2)
				So(got, ShouldHaveLength, 2)
				So(got[1].ID, ShouldEqual, "m4")
			})

			Convey("Then other collections and owners are unaffected", func() {
				So(j.Recent("alice", "c2", 0), ShouldBeEmpty)
				So(j.Recent("bob", "c1", 0), ShouldBeEmpty)
			})

			Convey("Then dropping the collection forgets it", func() {
				So(j.Drop("alice", "c1"), ShouldEqual, 3)
				So(j.Recent("alice", "c1", 0), ShouldBeEmpty)
				So(j.Len(), ShouldEqual, 0)
			})
		})

		Convey("When a match has no collection", func() {
			err := j.Append(ctx, model.Match{ID: "x", OwnerID: "alice"})

			Convey("Then it is rejected", func() {
				So(err, ShouldEqual, journal.ErrIncomplete)
			})
		})

		Convey("When appending concurrently across collections", func() {
			var wg sync.WaitGroup
			for c := 0; c < 4; c++ {
				wg.Add(1)
				go func(c int) {
					defer wg.Done()
					for i := 0; i < 10; i++ {
						_ = j.Append(ctx, m("alice", fmt.Sprintf("c%d", c), i))
					}
				}(c)
			}
			wg.Wait()

			Convey("Then every collection is capped independently", func() {
				So(j.Len(), ShouldEqual, 12)
			})
		})
	})
}
