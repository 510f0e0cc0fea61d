// Package repository defines the storage contracts of the engine: the entity
// feed, the rating aggregator, the pairwise statistics table and the vote log.
package repository

import (
	"context"
	"time"

	"github.com/okian/duel/internal/domain/model"
)

// DefaultBaseline is the rating returned for entities that have never been voted on.
const DefaultBaseline = 1000

// CandidateQuery selects matchup candidates. Status is always active.
type CandidateQuery struct {
	// Visibility restricts the pool when set (public scope uses public).
	Visibility model.Visibility
	// GroupID restricts the pool to a group's members when set.
	GroupID    string
	Categories []string
	Gender     string
	ExcludeIDs []string
	// Limit caps the pool. Backends draw the capped subset at random.
	Limit int
}

// EntityStore is the read-only entity feed.
type EntityStore interface {
	ListCandidates(ctx context.Context, q CandidateQuery) ([]model.Entity, error)
	PoolSize(ctx context.Context, groupID string) (int, error)
	// PoolContains reports whether every id belongs to the group pool.
	PoolContains(ctx context.Context, groupID string, ids ...string) (bool, error)
	// GetEntities returns the entities that exist among ids, keyed by id.
	GetEntities(ctx context.Context, ids []string) (map[string]model.Entity, error)
}

// EntityWriter loads entities and pool membership. Used by seeding only.
type EntityWriter interface {
	PutEntity(ctx context.Context, e model.Entity) error
	AddToPool(ctx context.Context, groupID string, ids ...string) error
}

// RatingMutator receives the current record and returns the next one.
// Returning changed=false leaves the stored record untouched.
type RatingMutator func(current model.Rating) (next model.Rating, changed bool)

// RatingStore is the rating aggregator.
type RatingStore interface {
	// GetRating returns the stored record or a baseline record with Version 0.
	GetRating(ctx context.Context, scope model.Scope, entityID string) (model.Rating, error)
	// UpsertRating performs one optimistic read-modify-write. It returns
	// ErrConflict when another writer changed the record in between.
	UpsertRating(ctx context.Context, scope model.Scope, entityID string, fn RatingMutator) (model.Rating, error)
	// ComparisonCounts returns comparisons for ids. Unrated ids are absent.
	ComparisonCounts(ctx context.Context, scope model.Scope, ids []string) (map[string]int64, error)
	// TopRatings pages through records ordered by rating desc, entity id asc.
	TopRatings(ctx context.Context, scope model.Scope, offset, limit int) ([]model.Rating, error)
	// RankOf returns the 1-based position of a rated entity. ErrNotFound if unrated.
	RankOf(ctx context.Context, scope model.Scope, entityID string) (int, error)
}

// PairMutator receives the current pair record and returns the next one.
type PairMutator func(current model.Pair) (next model.Pair, changed bool)

// PairStore is the pairwise statistics table. Ids may be passed in any order.
type PairStore interface {
	GetPair(ctx context.Context, scope model.Scope, x, y string) (model.Pair, error)
	UpsertPair(ctx context.Context, scope model.Scope, x, y string, fn PairMutator) (model.Pair, error)
	ListPairs(ctx context.Context, scope model.Scope, minComparisons int64) ([]model.Pair, error)
	// PairsFor returns the pairs involving entityID, most compared first.
	PairsFor(ctx context.Context, scope model.Scope, entityID string, limit int) ([]model.Pair, error)
}

// VoteLog is the append-only vote event log.
type VoteLog interface {
	// AppendVote stores v. When the id already exists it returns the stored
	// vote together with ErrDuplicateVote.
	AppendVote(ctx context.Context, v model.Vote) (model.Vote, error)
	GetVote(ctx context.Context, id string) (model.Vote, error)
	// PlanVote stores plan unless the vote already has one and returns the
	// plan that is stored.
	PlanVote(ctx context.Context, id string, plan model.VotePlan) (model.VotePlan, error)
	// MarkStep adds step to the vote's applied steps.
	MarkStep(ctx context.Context, id string, step model.VoteStep) error
	MarkApplied(ctx context.Context, id string, at time.Time) error
	// PendingVotes returns unapplied votes created before olderThan, oldest first.
	PendingVotes(ctx context.Context, olderThan time.Time, limit int) ([]model.Vote, error)
	CountVotes(ctx context.Context) (int64, error)
}

// Store is a complete storage backend.
type Store interface {
	EntityStore
	EntityWriter
	RatingStore
	PairStore
	VoteLog

	// Backend names the implementation, e.g. "memory".
	Backend() string
	Close(ctx context.Context) error
}

// Now is the clock used by backends for UpdatedAt stamps.
var Now = func() time.Time { return time.Now().UTC() } //nolint:gochecknoglobals // swappable in tests
