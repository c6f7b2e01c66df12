package playtest

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/okian/songsort/pkg/logger"
)

const logFilePermission = 0600

// SetupLogging logs to both stdout and a file. If logFile is empty, a
// timestamped filename is generated. The returned func closes the file.
func SetupLogging(logFile string, verbose bool) (func() error, error) {
	if logFile == "" {
		logFile = "playtest_log_" + time.Now().Format("20060102_150405") + ".log"
	}

	file, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, logFilePermission)
	if err != nil {
		return nil, fmt.Errorf("failed to create log file: %w", err)
	}
	if err := logger.Init(logger.WithOutput(io.MultiWriter(os.Stdout, file))); err != nil {
		_ = file.Close()
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	if verbose {
		if err := logger.SetLevelString("debug"); err != nil {
			_ = file.Close()
			return nil, fmt.Errorf("failed to set log level: %w", err)
		}
	}
	logger.Get().Info(context.Background(), "logging to file", logger.String("logFile", logFile))
	return file.Close, nil
}

// ShowHelp prints usage information for the play test tool.
func ShowHelp() {
	_, _ = os.Stdout.WriteString(`songsort play test
==================

Imports a synthetic playlist with a hidden order, plays comparisons against a
running service and checks the ranking it converges to.

Usage:
  go run ./cmd/playtest [options]

Options:
  -url string         Base URL of the service (default "http://localhost:9080")
  -owner string       Owner id to act for (default "playtest")
  -items int          Tracks in the playlist (default 24)
  -matches int        Comparisons to play (default 600)
  -workers int        Concurrent sessions (default 4)
  -noise float        Probability the weaker track wins (default 0.1)
  -replay int         Resubmit every Nth outcome to check deduplication (default 10, 0 disables)
  -min-corr float     Fail below this rank correlation (default 0, disabled)
  -seed int           Seed for the playlist and the judge (default: current time)
  -timeout duration   HTTP request timeout (default 10s)
  -output string      Report file (default: playtest_report_TIMESTAMP.json)
  -log string         Log file (default: playtest_log_TIMESTAMP.log)
  -keep               Keep the playlist after the run
  -verbose            Enable debug logging
  -help               Show this help message

Examples:
  go run ./cmd/playtest -matches 2000 -workers 8
  go run ./cmd/playtest -noise 0 -min-corr 0.9 -seed 42
`)
}
