package playtest

import "time"

// Defaults used by the command line tool.
const (
	DefaultBaseURL = "http://localhost:9080"
	DefaultOwner   = "playtest"
	DefaultItems   = 24
	DefaultMatches = 600
	DefaultWorkers = 4
	DefaultNoise   = 0.1
	DefaultReplay  = 10
	DefaultTimeout = 10 * time.Second
)

const (
	tracksPerAlbum      = 4
	artistsCount        = 3
	percentageMultiplier = 100
	journalWait         = 2 * time.Second
	journalPoll         = 50 * time.Millisecond
	maxJournalRead      = 500
)
