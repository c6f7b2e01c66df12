package standings_test

import (
	"testing"

	"github.com/okian/songsort/internal/domain/model"
	"github.com/okian/songsort/internal/domain/standings"
	. "github.com/smartystreets/goconvey/convey"
)

func song(id string, rating int, album string, artists ...string) model.Rating {
	r := model.NewRating("owner", "playlist", id, "track-"+id, "Song "+id)
	r.Rating = rating
	r.Album = album
	r.Artists = artists
	return r
}

func TestRank(t *testing.T) {
	Convey("Given a snapshot of ratings", t, func() {
		items := []model.Rating{
			song("a", 1490, "X", "Ann"),
			song("b", 1530, "X", "Ann"),
			song("c", 1500, "Y", "Bob"),
			song("d", 1530, "Y", "Bob", "Ann"),
			song("e", 1450, "", "Bob"),
		}

		Convey("When ranking", func() {
			got := standings.Rank(items)

			Convey("Then items are ordered by rating, ties in input order", func() {
				ids := make([]string, len(got))
				for i, s := range got {
					ids[i] = s.Item.ID
				}
				So(ids, ShouldResemble, []string{"b", "d", "c", "a", "e"})
			})

			Convey("Then tied ratings share a position and positions stay dense", func() {
				positions := make([]int, len(got))
				for i, s := range got {
					positions[i] = s.Position
				}
				So(positions, ShouldResemble, []int{1, 1, 2, 3, 4})
			})

			Convey("Then the input is left untouched", func() {
				So(items[0].ID, ShouldEqual, "a")
				got[1].Item.Artists[0] = "changed"
				So(items[3].Artists[0], ShouldEqual, "Bob")
			})

			Convey("Then ranking twice yields the same result", func() {
				So(standings.Rank(items), ShouldResemble, got)
			})
		})

		Convey("When ranking an empty snapshot", func() {
			Convey("Then the result is empty", func() {
				So(standings.Rank(nil), ShouldBeEmpty)
			})
		})
	})
}

func TestGroupAverage(t *testing.T) {
	Convey("Given ratings spread over albums and artists", t, func() {
		items := []model.Rating{
			song("a", 1500, "X", "Ann"),
			song("b", 1501, "X", "Ann"),
			song("c", 1600, "Y", "Bob"),
			song("d", 1400, "Y", "Bob"),
			song("e", 1700, "", "Cid", "Dee"),
			song("f", 1300, "Z"),
		}

		Convey("When averaging by album", func() {
			got := standings.GroupAverage(items, standings.ByAlbum)

			Convey("Then means are truncated and ties keep first-seen order", func() {
				So(got, ShouldResemble, []standings.GroupStanding{
					{Position: 1, Label: "X", Mean: 1500, Members: 2},
					{Position: 1, Label: "Y", Mean: 1500, Members: 2},
					{Position: 2, Label: "Z", Mean: 1300, Members: 1},
				})
			})
		})

		Convey("When averaging by artists", func() {
			got := standings.GroupAverage(items, standings.ByArtists)

			Convey("Then multi-artist credits form their own group", func() {
				So(got, ShouldHaveLength, 3)
				So(got[0].Label, ShouldEqual, "Cid, Dee")
				So(got[0].Mean, ShouldEqual, 1700)
				So(got[1].Label, ShouldEqual, "Ann")
				So(got[2].Label, ShouldEqual, "Bob")
			})

			Convey("Then items without artists are skipped", func() {
				total := 0
				for _, g := range got {
					total += g.Members
				}
				So(total, ShouldEqual, 5)
			})
		})

		Convey("When negative ratings average to a fraction", func() {
			got := standings.GroupAverage([]model.Rating{
				song("n1", -3, "N"),
				song("n2", -4, "N"),
			}, standings.ByAlbum)

			Convey("Then the mean is truncated toward zero", func() {
				So(got[0].Mean, ShouldEqual, -3)
			})
		})

		Convey("When averaging twice", func() {
			Convey("Then the output is identical", func() {
				So(standings.GroupAverage(items, standings.ByAlbum), ShouldResemble,
					standings.GroupAverage(items, standings.ByAlbum))
			})
		})
	})
}
