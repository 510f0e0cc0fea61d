// Package types contains the read-side shapes returned to API clients.
package types

import (
	"time"

	"github.com/okian/duel/internal/domain/model"
)

// Matchup is a pair of entities selected for the next vote.
type Matchup struct {
	Left  model.PublicEntity `json:"left"`
	Right model.PublicEntity `json:"right"`
}

// LeaderboardEntry is one ranked row of a scope's leaderboard.
type LeaderboardEntry struct {
	Rank        int                `json:"rank"`
	Entity      model.PublicEntity `json:"entity"`
	Rating      float64            `json:"rating"`
	Wins        int64              `json:"wins"`
	Losses      int64              `json:"losses"`
	Comparisons int64              `json:"comparisons"`
}

// Edge is a confident directional relationship: From beats To.
type Edge struct {
	From        model.PublicEntity `json:"from"`
	To          model.PublicEntity `json:"to"`
	Confidence  float64            `json:"confidence"`
	Comparisons int64              `json:"comparisons"`
}

// Opponent is one head-to-head line of an entity's record.
type Opponent struct {
	Entity      model.PublicEntity `json:"entity"`
	Wins        int64              `json:"wins"`
	Losses      int64              `json:"losses"`
	Comparisons int64              `json:"comparisons"`
}

// HeadToHead is an entity's standing in a scope plus its most frequent opponents.
type HeadToHead struct {
	Entity      model.PublicEntity `json:"entity"`
	Rank        int                `json:"rank"`
	Rating      float64            `json:"rating"`
	Wins        int64              `json:"wins"`
	Losses      int64              `json:"losses"`
	Comparisons int64              `json:"comparisons"`
	Opponents   []Opponent         `json:"opponents"`
}

// VoteResult is returned after a vote is accepted.
type VoteResult struct {
	VoteID      string  `json:"vote_id,omitempty"`
	Result      string  `json:"result"`
	LeftRating  float64 `json:"left_rating"`
	RightRating float64 `json:"right_rating"`
	Duplicate   bool    `json:"duplicate,omitempty"`
}

// Vote result values.
const (
	ResultRecorded              = "recorded"
	ResultSkipped               = "skipped"
	ResultGuestVoteAcknowledged = "guest_vote_acknowledged"
)

// FeedEvent announces an applied vote to live subscribers of its scope.
type FeedEvent struct {
	VoteID      string    `json:"vote_id"`
	Scope       string    `json:"scope"`
	WinnerID    string    `json:"winner_id"`
	LoserID     string    `json:"loser_id"`
	WinnerScore float64   `json:"winner_rating"`
	LoserScore  float64   `json:"loser_rating"`
	At          time.Time `json:"at"`
}
