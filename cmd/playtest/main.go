package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/okian/songsort/internal/playtest"
)

const defaultRunTimeout = 10 * time.Minute

func main() {
	var (
		baseURL    = flag.String("url", playtest.DefaultBaseURL, "Base URL of the service")
		owner      = flag.String("owner", playtest.DefaultOwner, "Owner id to act for")
		items      = flag.Int("items", playtest.DefaultItems, "Tracks in the playlist")
		matches    = flag.Int("matches", playtest.DefaultMatches, "Comparisons to play")
		workers    = flag.Int("workers", playtest.DefaultWorkers, "Concurrent sessions")
		noise      = flag.Float64("noise", playtest.DefaultNoise, "Probability the weaker track wins")
		replay     = flag.Int("replay", playtest.DefaultReplay, "Resubmit every Nth outcome, 0 disables")
		minCorr    = flag.Float64("min-corr", 0, "Fail below this rank correlation, 0 disables")
		seed       = flag.Int64("seed", time.Now().UnixNano(), "Seed for the playlist and the judge")
		timeout    = flag.Duration("timeout", playtest.DefaultTimeout, "HTTP request timeout")
		outputFile = flag.String("output", "", "Report file (default: playtest_report_TIMESTAMP.json)")
		logFile    = flag.String("log", "", "Log file (default: playtest_log_TIMESTAMP.log)")
		keep       = flag.Bool("keep", false, "Keep the playlist after the run")
		verbose    = flag.Bool("verbose", false, "Enable debug logging")
		help       = flag.Bool("help", false, "Show help")
	)
	flag.Parse()

	if *help {
		playtest.ShowHelp()
		return
	}

	closeLog, err := playtest.SetupLogging(*logFile, *verbose)
	if err != nil {
		_, _ = os.Stderr.WriteString("Failed to setup logging: " + err.Error() + "\n")
		os.Exit(1)
	}
	defer func() { _ = closeLog() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, defaultRunTimeout)
	defer cancel()

	cfg := &playtest.Config{
		BaseURL:        *baseURL,
		Owner:          *owner,
		Items:          max(*items, 2),
		Matches:        *matches,
		Workers:        max(*workers, 1),
		Noise:          *noise,
		Replay:         *replay,
		MinCorrelation: *minCorr,
		Seed:           *seed,
		Timeout:        *timeout,
		OutputFile:     *outputFile,
		LogFile:        *logFile,
		Keep:           *keep,
		Verbose:        *verbose,
	}

	if _, err := playtest.Run(ctx, cfg); err != nil {
		_, _ = os.Stderr.WriteString("Play test failed: " + err.Error() + "\n")
		cancel()
		stop()
		_ = closeLog()
		os.Exit(1) //nolint:gocritic // deferred calls were run by hand above
	}
}
