package catalog_test

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/okian/songsort/internal/catalog"
	"github.com/okian/songsort/internal/domain/model"
	"github.com/okian/songsort/internal/validation"
	. "github.com/smartystreets/goconvey/convey"
)

func TestImportBuild(t *testing.T) {
	Convey("Given a playlist import", t, func() {
		imp := catalog.Import{
			Name:     "Road trip",
			SourceID: "spotify:playlist:1",
			Items: []catalog.Item{
				{ItemID: "t1", Name: "One", Album: "A", Artists: []string{"X"}},
				{ItemID: "t2", Name: "Two"},
				{ItemID: "t1", Name: "One again"},
			},
		}

		Convey("When built for an owner", func() {
			c, ratings := imp.Build("alice")

			Convey("Then every distinct item gets a fresh rating in order", func() {
				So(ratings, ShouldHaveLength, 2)
				So(c.Items, ShouldHaveLength, 2)
				So(c.Items[0], ShouldEqual, ratings[0].ID)
				So(ratings[0].ItemID, ShouldEqual, "t1")
				So(ratings[0].Name, ShouldEqual, "One")
				So(ratings[0].Rating, ShouldEqual, model.InitialRating)
				So(ratings[0].Artists, ShouldResemble, []string{"X"})
				So(ratings[1].CollectionID, ShouldEqual, c.ID)
			})

			Convey("Then record ids differ from item ids", func() {
				So(ratings[0].ID, ShouldNotEqual, "t1")
			})

			Convey("Then building again yields the same ids", func() {
				c2, r2 := imp.Build("alice")
				So(c2.ID, ShouldEqual, c.ID)
				So(r2[0].ID, ShouldEqual, ratings[0].ID)
			})

			Convey("Then another owner gets different ids", func() {
				c2, r2 := imp.Build("bob")
				So(c2.ID, ShouldNotEqual, c.ID)
				So(r2[0].ID, ShouldNotEqual, ratings[0].ID)
			})
		})

		Convey("When an explicit id is given", func() {
			imp.ID = "road-trip"
			c, _ := imp.Build("alice")

			Convey("Then it is used as the collection id", func() {
				So(c.ID, ShouldEqual, "road-trip")
			})
		})

		Convey("When the same item sits in two collections", func() {
			a := catalog.RecordID("alice", "c1", "t1")
			b := catalog.RecordID("alice", "c2", "t1")

			Convey("Then the records are independent", func() {
				So(a, ShouldNotEqual, b)
			})
		})
	})

	Convey("Given invalid imports", t, func() {
		Convey("When name and source are missing", func() {
			imp := catalog.Import{Kind: "radio", Items: []catalog.Item{{Name: "x"}}}
			err := imp.Validate()

			Convey("Then every problem is reported", func() {
				var verr *validation.Error
				So(errors.As(err, &verr), ShouldBeTrue)
				So(len(verr.Fields), ShouldEqual, 4)
			})
		})
	})
}

func TestLoadSeed(t *testing.T) {
	Convey("Given the demo seed file", t, func() {
		s, err := catalog.LoadSeed(filepath.Join("testdata", "demo.yaml"))

		Convey("Then it loads and validates", func() {
			So(err, ShouldBeNil)
			So(s.Owner, ShouldEqual, "demo")
			So(s.Collections, ShouldHaveLength, 1)
			So(s.Collections[0].Items, ShouldHaveLength, 5)
			So(s.Collections[0].Items[2].Artists, ShouldResemble, []string{"Lina Vey", "The Fjords"})
		})
	})

	Convey("Given a seed file with unknown keys", t, func() {
		path := filepath.Join(t.TempDir(), "bad.yaml")
		So(os.WriteFile(path, []byte("owner: demo\nplaylists: []\n"), 0o600), ShouldBeNil)
		_, err := catalog.LoadSeed(path)

		Convey("Then it is rejected", func() {
			So(errors.Is(err, catalog.ErrInvalidSeed), ShouldBeTrue)
		})
	})

	Convey("Given a seed without an owner", t, func() {
		path := filepath.Join(t.TempDir(), "anon.yaml")
		So(os.WriteFile(path, []byte("collections: []\n"), 0o600), ShouldBeNil)
		_, err := catalog.LoadSeed(path)

		Convey("Then it is rejected", func() {
			So(errors.Is(err, catalog.ErrInvalidSeed), ShouldBeTrue)
		})
	})

	Convey("Given a missing seed file", t, func() {
		_, err := catalog.LoadSeed(filepath.Join(t.TempDir(), "nope.yaml"))

		Convey("Then opening fails", func() {
			So(err, ShouldNotBeNil)
			So(errors.Is(err, catalog.ErrInvalidSeed), ShouldBeFalse)
		})
	})
}
