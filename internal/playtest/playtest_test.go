package playtest

import (
	"context"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	json "github.com/goccy/go-json"
	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/songsort/internal/adapters/http/api"
	"github.com/okian/songsort/internal/adapters/repository"
	service "github.com/okian/songsort/internal/app"
	"github.com/okian/songsort/pkg/logger"
)

func init() {
	if err := logger.Init(); err != nil {
		panic(err)
	}
}

func TestSpearman(t *testing.T) {
	Convey("Given hidden strengths in ranking order", t, func() {
		Convey("Then a perfect ranking scores 1", func() {
			So(spearman([]int{0, 1, 2, 3, 4}), ShouldEqual, 1)
		})

		Convey("Then a reversed ranking scores -1", func() {
			So(spearman([]int{4, 3, 2, 1, 0}), ShouldEqual, -1)
		})

		Convey("Then one swapped neighbour costs a little", func() {
			So(spearman([]int{1, 0, 2, 3, 4}), ShouldAlmostEqual, 0.9, 1e-9)
		})

		Convey("Then a single track is trivially ordered", func() {
			So(spearman([]int{0}), ShouldEqual, 1)
		})
	})
}

func TestGeneratePlaylist(t *testing.T) {
	Convey("Given a seed", t, func() {
		a := generatePlaylist(7, 10)
		b := generatePlaylist(7, 10)

		Convey("Then the playlist is valid and reproducible", func() {
			So(a.Import.Validate(), ShouldBeNil)
			So(a.Import.Items, ShouldHaveLength, 10)
			So(a.strength, ShouldResemble, b.strength)
		})

		Convey("Then strengths are a permutation", func() {
			seen := map[int]bool{}
			for _, s := range a.strength {
				So(s, ShouldBeBetweenOrEqual, 0, 9)
				seen[s] = true
			}
			So(seen, ShouldHaveLength, 10)
		})
	})

	Convey("Given a judge without noise", t, func() {
		j := newJudge(1, 0)

		Convey("Then the stronger track always wins", func() {
			for range 20 {
				w, l := j.pick("a", "b", 3, 1)
				So(w, ShouldEqual, "b")
				So(l, ShouldEqual, "a")
			}
		})
	})

	Convey("Given a judge that always errs", t, func() {
		j := newJudge(1, 1)

		Convey("Then the weaker track always wins", func() {
			w, _ := j.pick("a", "b", 0, 5)
			So(w, ShouldEqual, "b")
		})
	})
}

func TestRun(t *testing.T) {
	Convey("Given a running service", t, func() {
		svc := service.New(repository.NewMemoryStore())
		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan struct{})
		go func() {
			defer close(done)
			_ = svc.JournalPool().Serve(ctx)
		}()
		srv := httptest.NewServer(api.NewServer(svc).Handler())
		Reset(func() {
			srv.Close()
			cancel()
			<-done
		})

		out := filepath.Join(t.TempDir(), "report.json")
		cfg := &Config{
			BaseURL:        srv.URL,
			Owner:          "tester",
			Items:          8,
			Matches:        240,
			Workers:        3,
			Noise:          0,
			Replay:         5,
			MinCorrelation: 0.6,
			Seed:           42,
			Timeout:        5 * time.Second,
			OutputFile:     out,
		}

		Convey("When the play test runs", func() {
			report, err := Run(context.Background(), cfg)

			Convey("Then every comparison is accounted for", func() {
				So(err, ShouldBeNil)
				So(report.Recorded, ShouldEqual, 240)
				So(report.Duplicates, ShouldBeBetweenOrEqual, 46, 48)
				So(report.Failed, ShouldEqual, 0)
				So(report.Ranking, ShouldHaveLength, 8)
				So(report.Correlation, ShouldBeGreaterThanOrEqualTo, 0.6)
			})

			Convey("Then the report is written", func() {
				data, err := os.ReadFile(out)
				So(err, ShouldBeNil)
				var saved Report
				So(json.Unmarshal(data, &saved), ShouldBeNil)
				So(saved.Seed, ShouldEqual, 42)
			})

			Convey("Then the playlist is removed afterwards", func() {
				cs, err := svc.ListCollections(context.Background(), "tester")
				So(err, ShouldBeNil)
				So(cs, ShouldBeEmpty)
			})
		})

		Convey("When the service is unreachable", func() {
			srv.Close()
			_, err := Run(context.Background(), cfg)

			Convey("Then the health check fails", func() {
				So(err, ShouldNotBeNil)
				So(err.Error(), ShouldContainSubstring, "health check")
			})
		})
	})
}
