// Package standings derives leaderboards from a snapshot of ratings.
//
// Every function here is pure: it reads its input, never mutates it, and
// returns the same output for the same snapshot.
package standings

import (
	"cmp"
	"slices"
	"strings"

	"github.com/okian/songsort/internal/domain/model"
)

// Standing is one row of a collection leaderboard.
type Standing struct {
	Position int          `json:"position"`
	Item     model.Rating `json:"item"`
}

// GroupStanding is one row of a grouped leaderboard.
type GroupStanding struct {
	Position int    `json:"position"`
	Label    string `json:"label"`
	Mean     int    `json:"mean_rating"`
	Members  int    `json:"members"`
}

// KeyFunc extracts the group label of a rating. An empty label leaves the
// rating out of every group.
type KeyFunc func(model.Rating) string

// ByAlbum groups ratings by album name.
func ByAlbum(r model.Rating) string { return r.Album }

// ByArtists groups ratings by their full artist credit.
func ByArtists(r model.Rating) string { return strings.Join(r.Artists, ", ") }

// Rank orders items by rating, highest first. Items with equal ratings keep
// their input order and share a position.
func Rank(items []model.Rating) []Standing {
	sorted := make([]model.Rating, len(items))
	for i := range items {
		sorted[i] = items[i].Clone()
	}
	slices.SortStableFunc(sorted, func(a, b model.Rating) int {
		return cmp.Compare(b.Rating, a.Rating)
	})

	out := make([]Standing, len(sorted))
	for i := range sorted {
		out[i] = Standing{Item: sorted[i]}
	}
	assignPositions(len(out),
		func(i int) bool { return out[i].Item.Rating == out[i-1].Item.Rating },
		func(i, p int) { out[i].Position = p },
	)
	return out
}

// GroupAverage averages ratings per label. Means are truncated toward zero;
// groups are ordered by mean, highest first, with ties in first-seen order.
func GroupAverage(items []model.Rating, key KeyFunc) []GroupStanding {
	type acc struct {
		sum   int64
		count int
	}
	var labels []string
	groups := make(map[string]*acc)
	for i := range items {
		label := key(items[i])
		if label == "" {
			continue
		}
		g, ok := groups[label]
		if !ok {
			g = &acc{}
			groups[label] = g
			labels = append(labels, label)
		}
		g.sum += int64(items[i].Rating)
		g.count++
	}

	out := make([]GroupStanding, 0, len(labels))
	for _, label := range labels {
		g := groups[label]
		out = append(out, GroupStanding{
			Label:   label,
			Mean:    int(g.sum / int64(g.count)),
			Members: g.count,
		})
	}
	slices.SortStableFunc(out, func(a, b GroupStanding) int {
		return cmp.Compare(b.Mean, a.Mean)
	})
	assignPositions(len(out),
		func(i int) bool { return out[i].Mean == out[i-1].Mean },
		func(i, p int) { out[i].Position = p },
	)
	return out
}

// assignPositions gives consecutive positions to a sorted slice, repeating a
// position for every entry that ties with its predecessor.
func assignPositions(n int, tied func(i int) bool, set func(i, pos int)) {
	pos := 0
	for i := 0; i < n; i++ {
		if i == 0 || !tied(i) {
			pos++
		}
		set(i, pos)
	}
}
