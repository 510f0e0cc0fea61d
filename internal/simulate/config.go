// Package simulate drives a running duel service with synthetic voters and
// checks that the resulting leaderboard recovers a hidden strength order.
package simulate

import (
	"errors"
	"time"
)

// Defaults.
const (
	DefaultVotes   = 2000
	DefaultWorkers = 8
	DefaultTimeout = 10 * time.Second
	DefaultTop     = 50
)

// ErrVerification is returned when the service answered inconsistently.
var ErrVerification = errors.New("verification failed")

// Config holds configuration for a simulation run.
type Config struct {
	BaseURL string
	Votes   int
	Workers int
	Timeout time.Duration
	// Top is the leaderboard size fetched for verification.
	Top int

	Context string
	GroupID string
	Segment string

	// DuplicateRate is the share of votes posted a second time with the same id.
	DuplicateRate float64
	// SkipRate is the share of matchups skipped instead of decided.
	SkipRate float64
	// Token is sent as a bearer token when set.
	Token string
	Seed  uint64
	// Strengths pins hidden strengths per entity id. Other ids use Strength.
	Strengths map[string]float64
}

// Stats holds the outcome of a run.
type Stats struct {
	Matchups   int64
	Recorded   int64
	Skipped    int64
	Duplicates int64
	Conflicts  int64
	Failed     int64
	// DuplicateMismatches counts resubmissions not reported as duplicates.
	DuplicateMismatches int64

	LeaderboardEntries int
	// Concordance is the share of leaderboard pairs ordered like the hidden strengths.
	Concordance float64

	Duration time.Duration
}

func (c *Config) strength(id string) float64 {
	if s, ok := c.Strengths[id]; ok {
		return s
	}
	return Strength(id)
}

func (c *Config) withDefaults() Config {
	out := *c
	if out.Votes <= 0 {
		out.Votes = DefaultVotes
	}
	if out.Workers <= 0 {
		out.Workers = DefaultWorkers
	}
	if out.Timeout <= 0 {
		out.Timeout = DefaultTimeout
	}
	if out.Top <= 0 {
		out.Top = DefaultTop
	}
	return out
}
