package elo_test

import (
	"testing"

	"github.com/okian/songsort/internal/domain/elo"
	"github.com/okian/songsort/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

func rated(id string, rating int) model.Rating {
	r := model.NewRating("u1", "p1", id, id, id)
	r.Rating = rating
	return r
}

func TestCalculator_Apply(t *testing.T) {
	Convey("Given a default calculator", t, func() {
		calc := elo.NewCalculator()

		Convey("Then K should be 32", func() {
			So(calc.K(), ShouldEqual, 32)
		})

		Convey("When two equal ratings meet", func() {
			w, l, x := calc.Apply(rated("1", 1500), rated("2", 1500))

			Convey("Then both expected scores are one half", func() {
				So(x.ExpectedWinner, ShouldEqual, 0.5)
				So(x.ExpectedLoser, ShouldEqual, 0.5)
			})

			Convey("Then the winner gains 16 and the loser drops 16", func() {
				So(w.Rating, ShouldEqual, 1516)
				So(l.Rating, ShouldEqual, 1484)
				So(w.Wins, ShouldEqual, 1)
				So(w.Losses, ShouldEqual, 0)
				So(l.Losses, ShouldEqual, 1)
				So(l.Wins, ShouldEqual, 0)
			})
		})

		Convey("When the favourite wins", func() {
			w, l, x := calc.Apply(rated("1", 1600), rated("2", 1400))

			Convey("Then 7.69 is truncated to 7 rather than rounded to 8", func() {
				So(x.WinnerDelta, ShouldEqual, 7)
				So(x.LoserDelta, ShouldEqual, 7)
				So(w.Rating, ShouldEqual, 1607)
				So(l.Rating, ShouldEqual, 1393)
			})
		})

		Convey("When the underdog wins", func() {
			w, l, _ := calc.Apply(rated("1", 1400), rated("2", 1600))

			Convey("Then 24.31 is truncated to 24", func() {
				So(w.Rating, ShouldEqual, 1424)
				So(l.Rating, ShouldEqual, 1576)
			})
		})

		Convey("When the gap is so large the delta truncates to zero", func() {
			w, l, x := calc.Apply(rated("1", 3000), rated("2", 1000))

			Convey("Then ratings are unchanged but counters still move", func() {
				So(x.WinnerDelta, ShouldEqual, 0)
				So(x.LoserDelta, ShouldEqual, 0)
				So(w.Rating, ShouldEqual, 3000)
				So(l.Rating, ShouldEqual, 1000)
				So(w.Wins, ShouldEqual, 1)
				So(l.Losses, ShouldEqual, 1)
			})
		})

		Convey("When a low rating keeps losing", func() {
			_, l, _ := calc.Apply(rated("1", 10), rated("2", 10))

			Convey("Then the rating may go negative", func() {
				So(l.Rating, ShouldEqual, -6)
			})
		})

		Convey("When applying an outcome", func() {
			winner := rated("1", 1500)
			winner.Artists = []string{"A"}
			w, _, _ := calc.Apply(winner, rated("2", 1500))
			w.Artists[0] = "B"

			Convey("Then the inputs should not be mutated", func() {
				So(winner.Rating, ShouldEqual, 1500)
				So(winner.Wins, ShouldEqual, 0)
				So(winner.Artists[0], ShouldEqual, "A")
			})
		})

		Convey("When applying outcomes across a spread of ratings", func() {
			Convey("Then the winner-loser gap never shrinks", func() {
				for _, pair := range [][2]int{{1500, 1500}, {1200, 1800}, {1800, 1200}, {-50, 40}, {2400, 2399}} {
					w, l, _ := calc.Apply(rated("w", pair[0]), rated("l", pair[1]))
					So(w.Rating-l.Rating, ShouldBeGreaterThanOrEqualTo, pair[0]-pair[1])
				}
			})
		})
	})

	Convey("Given a calculator with a custom K", t, func() {
		calc := elo.NewCalculator(elo.WithK(16), elo.WithScale(400))

		Convey("When two equal ratings meet", func() {
			w, l, _ := calc.Apply(rated("1", 1500), rated("2", 1500))

			Convey("Then the exchange should be 8 points", func() {
				So(w.Rating, ShouldEqual, 1508)
				So(l.Rating, ShouldEqual, 1492)
			})
		})

		Convey("When a non-positive K is given", func() {
			calc := elo.NewCalculator(elo.WithK(0), elo.WithScale(-1))

			Convey("Then the defaults should be kept", func() {
				So(calc.K(), ShouldEqual, elo.DefaultK)
				So(calc.Expected(1500, 1500), ShouldEqual, 0.5)
			})
		})
	})
}
