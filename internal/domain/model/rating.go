package model

import (
	"slices"
	"time"
)

// MaxRecentVotes bounds the vote ids remembered per aggregate record.
const MaxRecentVotes = 32

// Rating is the aggregate record of one entity inside one scope.
type Rating struct {
	Scope       Scope
	EntityID    string
	Rating      float64
	Wins        int64
	Losses      int64
	Comparisons int64
	// Version is the optimistic concurrency token. Zero means not yet stored.
	Version int64
	// RecentVotes lists the last vote ids applied to this record, oldest first.
	RecentVotes []string
	UpdatedAt   time.Time
}

// NewRating returns the lazily created record for an entity that has never been voted on.
func NewRating(scope Scope, entityID string, baseline float64) Rating {
	return Rating{Scope: scope, EntityID: entityID, Rating: baseline}
}

// Applied reports whether voteID already contributed to r.
func (r Rating) Applied(voteID string) bool { return slices.Contains(r.RecentVotes, voteID) }

// Clone returns a copy of r that does not share its vote list.
func (r Rating) Clone() Rating {
	r.RecentVotes = slices.Clone(r.RecentVotes)
	return r
}

// Pair is the head-to-head tally of two entities inside one scope.
// EntityA is always the lexicographically smaller id.
type Pair struct {
	Scope       Scope
	EntityA     string
	EntityB     string
	AWins       int64
	BWins       int64
	Comparisons int64
	Version     int64
	RecentVotes []string
	UpdatedAt   time.Time
}

// NewPair returns an empty pair record with canonical ordering.
func NewPair(scope Scope, x, y string) Pair {
	a, b := CanonicalPair(x, y)
	return Pair{Scope: scope, EntityA: a, EntityB: b}
}

// Applied reports whether voteID already contributed to p.
func (p Pair) Applied(voteID string) bool { return slices.Contains(p.RecentVotes, voteID) }

// Clone returns a copy of p that does not share its vote list.
func (p Pair) Clone() Pair {
	p.RecentVotes = slices.Clone(p.RecentVotes)
	return p
}

// Opponent returns the other side of the pair and the wins and losses of id against it.
func (p Pair) Opponent(id string) (opponent string, wins, losses int64) {
	if id == p.EntityA {
		return p.EntityB, p.AWins, p.BWins
	}
	return p.EntityA, p.BWins, p.AWins
}

// CanonicalPair orders two ids so that the smaller comes first.
func CanonicalPair(x, y string) (a, b string) {
	if y < x {
		return y, x
	}
	return x, y
}

// RememberVote appends voteID to a bounded vote list, dropping the oldest entries.
func RememberVote(votes []string, voteID string) []string {
	out := append(slices.Clone(votes), voteID)
	if len(out) > MaxRecentVotes {
		out = out[len(out)-MaxRecentVotes:]
	}
	return out
}
