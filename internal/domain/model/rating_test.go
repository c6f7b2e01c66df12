package model_test

import (
	"testing"

	model "github.com/okian/songsort/internal/domain/model"
	"github.com/smartystreets/goconvey/convey"
)

func TestRating(t *testing.T) {
	convey.Convey("Given a freshly imported rating", t, func() {
		r := model.NewRating("user-1", "playlist-1", "rec-1", "track-1", "Song")

		convey.Convey("Then it should start at the initial rating with empty counters", func() {
			convey.So(r.Rating, convey.ShouldEqual, 1500)
			convey.So(r.Wins, convey.ShouldEqual, 0)
			convey.So(r.Losses, convey.ShouldEqual, 0)
			convey.So(r.Matches(), convey.ShouldEqual, 0)
			convey.So(r.Validate(), convey.ShouldBeNil)
		})

		convey.Convey("When the owner is missing", func() {
			r.OwnerID = ""

			convey.Convey("Then validation should fail", func() {
				convey.So(r.Validate(), convey.ShouldEqual, model.ErrMissingOwner)
			})
		})

		convey.Convey("When the id is missing", func() {
			r.ID = ""

			convey.Convey("Then validation should fail", func() {
				convey.So(r.Validate(), convey.ShouldEqual, model.ErrMissingID)
			})
		})

		convey.Convey("When a counter is negative", func() {
			r.Losses = -1

			convey.Convey("Then validation should fail", func() {
				convey.So(r.Validate(), convey.ShouldEqual, model.ErrNegativeCounter)
			})
		})

		convey.Convey("When the rating goes negative", func() {
			r.Rating = -40

			convey.Convey("Then it is still a valid record", func() {
				convey.So(r.Validate(), convey.ShouldBeNil)
			})
		})

		convey.Convey("When cloning a record with artists", func() {
			r.Artists = []string{"A", "B"}
			c := r.Clone()
			c.Artists[0] = "Z"

			convey.Convey("Then the original should be untouched", func() {
				convey.So(r.Artists[0], convey.ShouldEqual, "A")
			})
		})
	})
}

func TestCollection(t *testing.T) {
	convey.Convey("Given a collection", t, func() {
		c := model.Collection{ID: "p1", OwnerID: "u1", Items: []string{"a", "b"}}

		convey.Convey("Then membership should follow Items", func() {
			convey.So(c.Contains("a"), convey.ShouldBeTrue)
			convey.So(c.Contains("z"), convey.ShouldBeFalse)
			convey.So(c.Validate(), convey.ShouldBeNil)
		})

		convey.Convey("When cloning and mutating the copy", func() {
			cp := c.Clone()
			cp.Items[0] = "x"

			convey.Convey("Then the original should be untouched", func() {
				convey.So(c.Items[0], convey.ShouldEqual, "a")
			})
		})

		convey.Convey("When the owner is missing", func() {
			c.OwnerID = ""

			convey.Convey("Then validation should fail", func() {
				convey.So(c.Validate(), convey.ShouldEqual, model.ErrMissingOwner)
			})
		})
	})
}
