package playtest

import "time"

// Config holds configuration for a play test.
type Config struct {
	BaseURL        string        // base URL of the service
	Owner          string        // X-Owner-ID the test acts for
	Items          int           // tracks in the synthetic playlist
	Matches        int           // comparisons to play across all sessions
	Workers        int           // concurrent sessions
	Noise          float64       // probability the weaker track wins a comparison
	Replay         int           // resubmit every Nth outcome id; 0 disables
	MinCorrelation float64       // fail when the rank correlation is lower; 0 disables
	Seed           int64         // seeds the playlist and the judge
	Timeout        time.Duration // HTTP request timeout
	OutputFile     string        // report file, empty for a timestamped name
	LogFile        string        // log file, empty for a timestamped name
	Keep           bool          // keep the playlist after the run
	Verbose        bool
}

// Stats holds play test counters.
type Stats struct {
	Sessions    int
	Pairs       int
	Recorded    int
	Duplicates  int
	Failed      int
	Partial     int
	Correlation float64
	StartTime   time.Time
	EndTime     time.Time
	Duration    time.Duration
}

// Report is what the test writes to its output file.
type Report struct {
	Seed        int64         `json:"seed"`
	Collection  string        `json:"collection"`
	Items       int           `json:"items"`
	Recorded    int           `json:"recorded"`
	Duplicates  int           `json:"duplicates"`
	Failed      int           `json:"failed"`
	Correlation float64       `json:"correlation"`
	Duration    time.Duration `json:"duration_ns"`
	Ranking     []RankedTrack `json:"ranking"`
}

// RankedTrack pairs a track's final position with its hidden strength.
type RankedTrack struct {
	Position int    `json:"position"`
	ItemID   string `json:"item_id"`
	Name     string `json:"name"`
	Rating   int    `json:"rating"`
	Strength int    `json:"strength"` // 0 is the strongest track
}
