package playtest

import (
	"fmt"
	"math/rand/v2"

	"github.com/okian/songsort/internal/catalog"
)

// playlist is the synthetic collection with its hidden order. strength[i]
// is the hidden rank of Import.Items[i]; 0 beats everything.
type playlist struct {
	Import   catalog.Import
	strength map[string]int // item id -> hidden rank
}

// generatePlaylist builds a playlist of n tracks in a shuffled order so the
// import order says nothing about strength.
func generatePlaylist(seed int64, n int) playlist {
	rng := rand.New(rand.NewPCG(uint64(seed), uint64(seed)^0x5eed)) //nolint:gosec // reproducible test data
	ranks := rng.Perm(n)

	p := playlist{
		Import: catalog.Import{
			ID:   fmt.Sprintf("playtest-%d", seed),
			Name: fmt.Sprintf("Play test %d", seed),
			Kind: catalog.KindPlaylist,
		},
		strength: make(map[string]int, n),
	}
	for i := range n {
		id := fmt.Sprintf("trk-%04d", i+1)
		p.Import.Items = append(p.Import.Items, catalog.Item{
			ItemID:  id,
			Name:    fmt.Sprintf("Track %d", i+1),
			Album:   fmt.Sprintf("Album %02d", i/tracksPerAlbum+1),
			Artists: []string{fmt.Sprintf("Artist %d", i%artistsCount+1)},
		})
		p.strength[id] = ranks[i]
	}
	return p
}

// judge decides comparisons: the stronger track wins unless noise flips it.
type judge struct {
	rng   *rand.Rand
	noise float64
}

func newJudge(seed int64, noise float64) *judge {
	return &judge{
		rng:   rand.New(rand.NewPCG(uint64(seed)+1, uint64(seed)^0x1dea)), //nolint:gosec // reproducible test data
		noise: noise,
	}
}

// pick returns the winner and loser among a and b given their strengths.
func (j *judge) pick(a, b string, sa, sb int) (string, string) {
	winner, loser := a, b
	if sb < sa {
		winner, loser = b, a
	}
	if j.rng.Float64() < j.noise {
		winner, loser = loser, winner
	}
	return winner, loser
}
