package model

import "time"

// Filters is the matchup filter set a client used, kept on votes for analytics.
type Filters struct {
	Categories []string `json:"categories,omitempty" bson:"categories,omitempty"`
	Gender     string   `json:"gender,omitempty" bson:"gender,omitempty"`
}

// Vote is an immutable vote event. AppliedAt is set once the aggregates reflect it.
type Vote struct {
	ID        string
	CreatedAt time.Time
	Scope     Scope
	LeftID    string
	RightID   string
	WinnerID  string
	Skipped   bool
	SessionID string
	VoterID   string
	Filters   Filters
	// Plan is the rating change fixed by the first application. Replays reuse it.
	Plan *VotePlan
	// Steps records the aggregate records that already absorbed the vote.
	Steps     VoteStep
	AppliedAt *time.Time
}

// VotePlan holds each side's Elo delta, computed once from the pre-vote ratings.
type VotePlan struct {
	LeftDelta  float64
	RightDelta float64
}

// VoteStep is a bit set of aggregate records a vote has been applied to.
type VoteStep uint8

// Steps of a decided vote.
const (
	StepLeft VoteStep = 1 << iota
	StepRight
	StepPair

	StepsAll = StepLeft | StepRight | StepPair
)

// Has reports whether every step in want is set.
func (s VoteStep) Has(want VoteStep) bool { return s&want == want }

// LoserID returns the side of the pair that did not win. Empty for skips.
func (v Vote) LoserID() string {
	switch {
	case v.Skipped:
		return ""
	case v.WinnerID == v.LeftID:
		return v.RightID
	default:
		return v.LeftID
	}
}

// Pending reports whether the vote still needs its aggregate effect applied.
func (v Vote) Pending() bool { return v.AppliedAt == nil }
