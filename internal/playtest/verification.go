package playtest

import (
	"context"
	"fmt"

	"github.com/okian/songsort/internal/domain/standings"
	"github.com/okian/songsort/pkg/logger"
)

// verifyResults checks the win and loss counters against what the run
// recorded, the ordering of the ranking, and the correlation threshold.
func verifyResults(ctx context.Context, cfg *Config, rows []standings.Standing, stats *Stats) error {
	if len(rows) != cfg.Items {
		return fmt.Errorf("%w: ranking has %d rows, want %d", ErrVerification, len(rows), cfg.Items)
	}

	var wins, losses int
	for i, row := range rows {
		wins += row.Item.Wins
		losses += row.Item.Losses
		if i > 0 && row.Item.Rating > rows[i-1].Item.Rating {
			return fmt.Errorf("%w: row %d rated above row %d", ErrVerification, i, i-1)
		}
	}
	// A partial update commits exactly one side of a match.
	if wins+losses != 2*stats.Recorded+stats.Partial {
		return fmt.Errorf("%w: %d wins and %d losses for %d recorded and %d partial outcomes",
			ErrVerification, wins, losses, stats.Recorded, stats.Partial)
	}
	if stats.Partial == 0 && wins != losses {
		return fmt.Errorf("%w: %d wins but %d losses", ErrVerification, wins, losses)
	}

	if cfg.MinCorrelation > 0 && stats.Correlation < cfg.MinCorrelation {
		return fmt.Errorf("%w: rank correlation %.3f below %.3f", ErrVerification, stats.Correlation, cfg.MinCorrelation)
	}

	logger.Get().Info(ctx, "results verified",
		logger.Int("wins", wins),
		logger.Int("losses", losses),
		logger.Float64("correlation", stats.Correlation))
	return nil
}

// buildReport joins the final ranking with the hidden strengths.
func buildReport(cfg *Config, collectionID string, rows []standings.Standing, pl playlist, stats *Stats) *Report {
	r := &Report{
		Seed:       cfg.Seed,
		Collection: collectionID,
		Items:      len(rows),
		Recorded:   stats.Recorded,
		Duplicates: stats.Duplicates,
		Failed:     stats.Failed,
		Ranking:    make([]RankedTrack, len(rows)),
	}
	strengths := make([]int, len(rows))
	for i, row := range rows {
		s := pl.strength[row.Item.ItemID]
		strengths[i] = s
		r.Ranking[i] = RankedTrack{
			Position: row.Position,
			ItemID:   row.Item.ItemID,
			Name:     row.Item.Name,
			Rating:   row.Item.Rating,
			Strength: s,
		}
	}
	r.Correlation = spearman(strengths)
	return r
}

// spearman returns the rank correlation between list order and the hidden
// strengths listed in that order. strengths must be a permutation of
// 0..n-1. A perfect ranking scores 1, a reversed one -1.
func spearman(strengths []int) float64 {
	n := len(strengths)
	if n < 2 {
		return 1
	}
	var d2 float64
	for i, s := range strengths {
		d := float64(i - s)
		d2 += d * d
	}
	nf := float64(n)
	return 1 - 6*d2/(nf*(nf*nf-1))
}
