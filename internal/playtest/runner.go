package playtest

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	json "github.com/goccy/go-json"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	service "github.com/okian/songsort/internal/app"
	"github.com/okian/songsort/internal/domain/model"
	"github.com/okian/songsort/internal/domain/standings"
	"github.com/okian/songsort/pkg/logger"
)

const (
	directoryPermission = 0750
	filePermission      = 0600
)

// ErrVerification reports a run whose results break a counting rule or
// miss the correlation threshold.
var ErrVerification = errors.New("play test verification failed")

type ackResponse struct {
	Status    string `json:"status"`
	Duplicate bool   `json:"duplicate"`
}

// counters are shared by the session workers.
type counters struct {
	sessions, pairs, recorded, duplicates, failed, partial atomic.Int64
}

// Run imports a synthetic playlist with a hidden order, plays cfg.Matches
// comparisons over HTTP and checks the standings the service ends up with.
func Run(ctx context.Context, cfg *Config) (*Report, error) {
	log := logger.Get().Named("playtest")
	stats := &Stats{StartTime: time.Now()}

	log.Info(ctx, "starting play test",
		logger.String("baseURL", cfg.BaseURL),
		logger.String("owner", cfg.Owner),
		logger.Int("items", cfg.Items),
		logger.Int("matches", cfg.Matches),
		logger.Int("workers", cfg.Workers),
		logger.Float64("noise", cfg.Noise),
		logger.Any("seed", cfg.Seed))

	c := newClient(cfg.BaseURL, cfg.Owner, cfg.Timeout)

	// Step 1: Check service health
	if _, err := c.do(ctx, http.MethodGet, "/healthz", nil, nil); err != nil {
		return nil, fmt.Errorf("service health check failed: %w", err)
	}

	// Step 2: Import the playlist
	pl := generatePlaylist(cfg.Seed, cfg.Items)
	var imported service.ImportResult
	if _, err := c.do(ctx, http.MethodPost, "/api/collections", pl.Import, &imported); err != nil {
		return nil, fmt.Errorf("import failed: %w", err)
	}
	collectionID := imported.Collection.ID
	log.Info(ctx, "playlist imported",
		logger.String("collection", collectionID),
		logger.Int("ratings", imported.Ratings))
	if !cfg.Keep {
		defer func() {
			cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.Timeout)
			defer cancel()
			if _, err := c.do(cctx, http.MethodDelete, "/api/collections/"+collectionID, nil, nil); err != nil {
				log.Warn(ctx, "failed to delete playlist", logger.Error(err))
			}
		}()
	}

	// Step 3: Play
	var cnt counters
	if err := play(ctx, c, cfg, pl, collectionID, &cnt); err != nil {
		return nil, fmt.Errorf("play failed: %w", err)
	}
	stats.Sessions = int(cnt.sessions.Load())
	stats.Pairs = int(cnt.pairs.Load())
	stats.Recorded = int(cnt.recorded.Load())
	stats.Duplicates = int(cnt.duplicates.Load())
	stats.Failed = int(cnt.failed.Load())
	stats.Partial = int(cnt.partial.Load())

	// Step 4: Read the standings
	var rows []standings.Standing
	if _, err := c.do(ctx, http.MethodGet, "/api/collections/"+collectionID+"/ranking", nil, &rows); err != nil {
		return nil, fmt.Errorf("ranking retrieval failed: %w", err)
	}
	logJournal(ctx, c, collectionID, stats.Recorded)

	// Step 5: Verify
	report := buildReport(cfg, collectionID, rows, pl, stats)
	stats.Correlation = report.Correlation
	stats.EndTime = time.Now()
	stats.Duration = stats.EndTime.Sub(stats.StartTime)
	report.Duration = stats.Duration
	displayFinalStats(ctx, stats)

	verr := verifyResults(ctx, cfg, rows, stats)

	// Step 6: Save the report
	if err := saveReport(ctx, cfg, report); err != nil {
		log.Warn(ctx, "failed to save report", logger.Error(err))
	}
	if verr != nil {
		return report, verr
	}
	log.Info(ctx, "play test completed successfully")
	return report, nil
}

// play runs cfg.Workers sessions until cfg.Matches pairs were decided.
func play(ctx context.Context, c *client, cfg *Config, pl playlist, collectionID string, cnt *counters) error {
	var budget atomic.Int64
	budget.Store(int64(cfg.Matches))

	g, gctx := errgroup.WithContext(ctx)
	for w := range cfg.Workers {
		g.Go(func() error {
			return playSession(gctx, c, cfg, pl, collectionID, newJudge(cfg.Seed+int64(w), cfg.Noise), &budget, cnt)
		})
	}
	return g.Wait()
}

func playSession(ctx context.Context, c *client, cfg *Config, pl playlist, collectionID string, j *judge, budget *atomic.Int64, cnt *counters) error {
	var info service.SessionInfo
	if _, err := c.do(ctx, http.MethodPost, "/api/sessions", map[string]string{"collection_id": collectionID}, &info); err != nil {
		return fmt.Errorf("start session: %w", err)
	}
	cnt.sessions.Add(1)
	base := "/api/sessions/" + info.ID
	defer func() {
		cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.Timeout)
		defer cancel()
		_, _ = c.do(cctx, http.MethodDelete, base, nil, nil)
	}()

	for n := 1; budget.Add(-1) >= 0; n++ {
		var pair service.Pair
		if _, err := c.do(ctx, http.MethodGet, base+"/pair", nil, &pair); err != nil {
			return fmt.Errorf("next pair: %w", err)
		}
		cnt.pairs.Add(1)

		winner, loser := j.pick(pair.A.ID, pair.B.ID, pl.strength[pair.A.ItemID], pl.strength[pair.B.ItemID])
		o := service.Outcome{WinnerID: winner, LoserID: loser, OutcomeID: uuid.NewString()}
		if err := submit(ctx, c, base, o, cnt); err != nil {
			return err
		}

		if cfg.Replay > 0 && n%cfg.Replay == 0 {
			var ack ackResponse
			if _, err := c.do(ctx, http.MethodPost, base+"/outcomes", o, &ack); err != nil {
				return fmt.Errorf("replay outcome: %w", err)
			}
			if !ack.Duplicate {
				return fmt.Errorf("%w: outcome %s applied twice", ErrVerification, o.OutcomeID)
			}
			cnt.duplicates.Add(1)
		}
	}
	return nil
}

// submit posts one outcome. Store failures are counted and the run goes on.
func submit(ctx context.Context, c *client, base string, o service.Outcome, cnt *counters) error {
	var ack ackResponse
	_, err := c.do(ctx, http.MethodPost, base+"/outcomes", o, &ack)
	var apiErr *apiError
	switch {
	case err == nil:
		cnt.recorded.Add(1)
		return nil
	case errors.As(err, &apiErr) && apiErr.Status == http.StatusConflict:
		cnt.partial.Add(1)
		return nil
	case errors.As(err, &apiErr) && apiErr.Status == http.StatusServiceUnavailable:
		cnt.failed.Add(1)
		return nil
	}
	return fmt.Errorf("record outcome: %w", err)
}

// logJournal waits briefly for the match history to catch up and logs how
// much of the run it holds.
func logJournal(ctx context.Context, c *client, collectionID string, recorded int) {
	want := min(recorded, maxJournalRead)
	deadline := time.Now().Add(journalWait)
	var ms []model.Match
	for {
		ms = ms[:0]
		_, err := c.do(ctx, http.MethodGet, fmt.Sprintf("/api/collections/%s/matches?limit=%d", collectionID, maxJournalRead), nil, &ms)
		if err != nil || len(ms) >= want || time.Now().After(deadline) {
			break
		}
		time.Sleep(journalPoll)
	}
	logger.Get().Info(ctx, "match history",
		logger.Int("listed", len(ms)),
		logger.Int("recorded", recorded))
}

// saveReport writes the report as indented JSON.
func saveReport(ctx context.Context, cfg *Config, r *Report) error {
	filename := cfg.OutputFile
	if filename == "" {
		filename = "playtest_report_" + time.Now().Format("20060102_150405") + ".json"
	}
	if dir := filepath.Dir(filename); dir != "." {
		if err := os.MkdirAll(dir, directoryPermission); err != nil {
			return fmt.Errorf("failed to create directory: %w", err)
		}
	}
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal report: %w", err)
	}
	if err := os.WriteFile(filename, data, filePermission); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	logger.Get().Info(ctx, "report saved", logger.String("filename", filename))
	return nil
}

// displayFinalStats logs the final test statistics.
func displayFinalStats(ctx context.Context, stats *Stats) {
	var successRate, matchesPerSecond float64
	if stats.Pairs > 0 {
		successRate = float64(stats.Recorded) / float64(stats.Pairs) * percentageMultiplier
	}
	if stats.Duration > 0 {
		matchesPerSecond = float64(stats.Recorded) / stats.Duration.Seconds()
	}

	logger.Get().Info(ctx, "final statistics",
		logger.Int("sessions", stats.Sessions),
		logger.Int("pairs", stats.Pairs),
		logger.Int("recorded", stats.Recorded),
		logger.Int("duplicates", stats.Duplicates),
		logger.Int("failed", stats.Failed),
		logger.Int("partial", stats.Partial),
		logger.Float64("correlation", stats.Correlation),
		logger.Duration("duration", stats.Duration),
		logger.Float64("successRate", successRate),
		logger.Float64("matchesPerSecond", matchesPerSecond))
}
