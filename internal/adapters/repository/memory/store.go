// Package memory is the in-process storage backend. It keeps every table in
// maps guarded by one RWMutex and a treap per scope for leaderboard order.
package memory

import (
	"context"
	"fmt"
	"math/rand/v2"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/okian/duel/internal/adapters/repository"
	"github.com/okian/duel/internal/domain/model"
	"github.com/okian/duel/pkg/metrics"
)

const backendName = "memory"

type pairKey struct{ a, b string }

type scopeTable struct {
	ratings map[string]model.Rating
	board   *board
	pairs   map[pairKey]model.Pair
}

// Store implements repository.Store in memory.
type Store struct {
	settings repository.Settings

	mu        sync.RWMutex
	entities  map[string]model.Entity
	pools     map[string]map[string]struct{}
	scopes    map[string]*scopeTable
	votes     map[string]model.Vote
	voteOrder []string
	closed    bool
}

var _ repository.Store = (*Store)(nil)

// New creates an empty in-memory store.
func New(opts ...repository.Option) *Store {
	return &Store{
		settings: repository.ApplyOptions(opts...),
		entities: make(map[string]model.Entity),
		pools:    make(map[string]map[string]struct{}),
		scopes:   make(map[string]*scopeTable),
		votes:    make(map[string]model.Vote),
	}
}

// Backend implements repository.Store.
func (s *Store) Backend() string { return backendName }

// Close implements repository.Store.
func (s *Store) Close(_ context.Context) error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}

func observe(op string, start time.Time) {
	metrics.RecordStoreLatency(backendName, op, metrics.Since(start))
}

// table returns the scope table, creating it when create is set. Callers hold s.mu.
func (s *Store) table(scope model.Scope, create bool) *scopeTable {
	key := scope.Key()
	t, ok := s.scopes[key]
	if !ok && create {
		t = &scopeTable{
			ratings: make(map[string]model.Rating),
			board:   &board{},
			pairs:   make(map[pairKey]model.Pair),
		}
		s.scopes[key] = t
	}
	return t
}

// PutEntity implements repository.EntityWriter.
func (s *Store) PutEntity(_ context.Context, e model.Entity) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return repository.ErrClosed
	}
	s.entities[e.ID] = e
	return nil
}

// AddToPool implements repository.EntityWriter.
func (s *Store) AddToPool(_ context.Context, groupID string, ids ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return repository.ErrClosed
	}
	pool, ok := s.pools[groupID]
	if !ok {
		pool = make(map[string]struct{})
		s.pools[groupID] = pool
	}
	for _, id := range ids {
		pool[id] = struct{}{}
	}
	return nil
}

// ListCandidates implements repository.EntityStore.
func (s *Store) ListCandidates(_ context.Context, q repository.CandidateQuery) ([]model.Entity, error) {
	defer observe("list_candidates", time.Now())
	s.mu.RLock()
	defer s.mu.RUnlock()

	var pool map[string]struct{}
	if q.GroupID != "" {
		pool = s.pools[q.GroupID]
	}
	out := make([]model.Entity, 0, 64)
	for id, e := range s.entities {
		if e.Status != model.StatusActive {
			continue
		}
		if q.Visibility != "" && e.Visibility != q.Visibility {
			continue
		}
		if q.GroupID != "" {
			if _, ok := pool[id]; !ok {
				continue
			}
		}
		if len(q.Categories) > 0 && !slices.Contains(q.Categories, e.Category) {
			continue
		}
		if q.Gender != "" && e.Gender != q.Gender {
			continue
		}
		if slices.Contains(q.ExcludeIDs, id) {
			continue
		}
		out = append(out, e)
	}

	if q.Limit > 0 && len(out) > q.Limit {
		rand.Shuffle(len(out), func(i, j int) { out[i], out[j] = out[j], out[i] })
		out = out[:q.Limit]
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// PoolSize implements repository.EntityStore.
func (s *Store) PoolSize(_ context.Context, groupID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.pools[groupID]), nil
}

// PoolContains implements repository.EntityStore.
func (s *Store) PoolContains(_ context.Context, groupID string, ids ...string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	pool := s.pools[groupID]
	for _, id := range ids {
		if _, ok := pool[id]; !ok {
			return false, nil
		}
	}
	return true, nil
}

// GetEntities implements repository.EntityStore.
func (s *Store) GetEntities(_ context.Context, ids []string) (map[string]model.Entity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]model.Entity, len(ids))
	for _, id := range ids {
		if e, ok := s.entities[id]; ok {
			out[id] = e
		}
	}
	return out, nil
}

// GetRating implements repository.RatingStore.
func (s *Store) GetRating(_ context.Context, scope model.Scope, entityID string) (model.Rating, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.currentRating(scope, entityID), nil
}

// currentRating returns a private copy of the stored record or the baseline. Callers hold s.mu.
func (s *Store) currentRating(scope model.Scope, entityID string) model.Rating {
	if t := s.table(scope, false); t != nil {
		if r, ok := t.ratings[entityID]; ok {
			return r.Clone()
		}
	}
	return model.NewRating(scope, entityID, s.settings.Baseline)
}

// UpsertRating implements repository.RatingStore. The mutator runs outside the
// lock; the write is accepted only if the version did not move meanwhile.
func (s *Store) UpsertRating(_ context.Context, scope model.Scope, entityID string, fn repository.RatingMutator) (model.Rating, error) {
	defer observe("upsert_rating", time.Now())

	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return model.Rating{}, repository.ErrClosed
	}
	prev := s.currentRating(scope, entityID)
	s.mu.RUnlock()

	next, changed := fn(prev.Clone())
	if !changed {
		return prev, nil
	}
	next, err := repository.PrepareRating(scope, entityID, prev, next)
	if err != nil {
		return model.Rating{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	t := s.table(scope, true)
	stored, had := t.ratings[entityID]
	if stored.Version != prev.Version {
		return model.Rating{}, fmt.Errorf("rating %s/%s at version %d: %w", scope, entityID, prev.Version, repository.ErrConflict)
	}
	t.ratings[entityID] = next
	t.board.move(entityID, stored.Rating, had, next.Rating)
	return next.Clone(), nil
}

// ComparisonCounts implements repository.RatingStore.
func (s *Store) ComparisonCounts(_ context.Context, scope model.Scope, ids []string) (map[string]int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]int64, len(ids))
	t := s.table(scope, false)
	if t == nil {
		return out, nil
	}
	for _, id := range ids {
		if r, ok := t.ratings[id]; ok {
			out[id] = r.Comparisons
		}
	}
	return out, nil
}

// TopRatings implements repository.RatingStore.
func (s *Store) TopRatings(_ context.Context, scope model.Scope, offset, limit int) ([]model.Rating, error) {
	defer observe("top_ratings", time.Now())
	if limit < 1 || offset < 0 {
		return nil, repository.ErrInvalidLimit
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	t := s.table(scope, false)
	if t == nil {
		return []model.Rating{}, nil
	}
	ids := t.board.page(offset, limit)
	out := make([]model.Rating, 0, len(ids))
	for _, id := range ids {
		out = append(out, t.ratings[id].Clone())
	}
	return out, nil
}

// RankOf implements repository.RatingStore.
func (s *Store) RankOf(_ context.Context, scope model.Scope, entityID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t := s.table(scope, false)
	if t == nil {
		return 0, repository.ErrNotFound
	}
	r, ok := t.ratings[entityID]
	if !ok {
		return 0, repository.ErrNotFound
	}
	return t.board.rank(entityID, r.Rating), nil
}

// GetPair implements repository.PairStore.
func (s *Store) GetPair(_ context.Context, scope model.Scope, x, y string) (model.Pair, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.currentPair(scope, x, y), nil
}

func (s *Store) currentPair(scope model.Scope, x, y string) model.Pair {
	a, b := model.CanonicalPair(x, y)
	if t := s.table(scope, false); t != nil {
		if p, ok := t.pairs[pairKey{a, b}]; ok {
			return p.Clone()
		}
	}
	return model.NewPair(scope, a, b)
}

// UpsertPair implements repository.PairStore.
func (s *Store) UpsertPair(_ context.Context, scope model.Scope, x, y string, fn repository.PairMutator) (model.Pair, error) {
	defer observe("upsert_pair", time.Now())

	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return model.Pair{}, repository.ErrClosed
	}
	prev := s.currentPair(scope, x, y)
	s.mu.RUnlock()

	next, changed := fn(prev.Clone())
	if !changed {
		return prev, nil
	}
	next, err := repository.PreparePair(scope, prev, next)
	if err != nil {
		return model.Pair{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	t := s.table(scope, true)
	key := pairKey{prev.EntityA, prev.EntityB}
	if t.pairs[key].Version != prev.Version {
		return model.Pair{}, fmt.Errorf("pair %s/%s:%s at version %d: %w", scope, key.a, key.b, prev.Version, repository.ErrConflict)
	}
	t.pairs[key] = next
	return next.Clone(), nil
}

// ListPairs implements repository.PairStore.
func (s *Store) ListPairs(_ context.Context, scope model.Scope, minComparisons int64) ([]model.Pair, error) {
	defer observe("list_pairs", time.Now())
	s.mu.RLock()
	defer s.mu.RUnlock()
	t := s.table(scope, false)
	if t == nil {
		return []model.Pair{}, nil
	}
	out := make([]model.Pair, 0, len(t.pairs))
	for _, p := range t.pairs {
		if p.Comparisons >= minComparisons {
			out = append(out, p.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].EntityA != out[j].EntityA {
			return out[i].EntityA < out[j].EntityA
		}
		return out[i].EntityB < out[j].EntityB
	})
	return out, nil
}

// PairsFor implements repository.PairStore.
func (s *Store) PairsFor(_ context.Context, scope model.Scope, entityID string, limit int) ([]model.Pair, error) {
	if limit < 1 {
		return nil, repository.ErrInvalidLimit
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	t := s.table(scope, false)
	if t == nil {
		return []model.Pair{}, nil
	}
	out := make([]model.Pair, 0, limit)
	for k, p := range t.pairs {
		if k.a == entityID || k.b == entityID {
			out = append(out, p.Clone())
		}
	}
	sortByExposure(out)
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// sortByExposure orders pairs by comparisons desc with a stable id tie-break.
func sortByExposure(pairs []model.Pair) {
	sort.Slice(pairs, func(i, j int) bool {
		if pairs[i].Comparisons != pairs[j].Comparisons {
			return pairs[i].Comparisons > pairs[j].Comparisons
		}
		if pairs[i].EntityA != pairs[j].EntityA {
			return pairs[i].EntityA < pairs[j].EntityA
		}
		return pairs[i].EntityB < pairs[j].EntityB
	})
}

// AppendVote implements repository.VoteLog.
func (s *Store) AppendVote(_ context.Context, v model.Vote) (model.Vote, error) {
	defer observe("append_vote", time.Now())
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return model.Vote{}, repository.ErrClosed
	}
	if existing, ok := s.votes[v.ID]; ok {
		return existing, repository.ErrDuplicateVote
	}
	v.Filters.Categories = slices.Clone(v.Filters.Categories)
	s.votes[v.ID] = v
	s.voteOrder = append(s.voteOrder, v.ID)
	return v, nil
}

// GetVote implements repository.VoteLog.
func (s *Store) GetVote(_ context.Context, id string) (model.Vote, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.votes[id]
	if !ok {
		return model.Vote{}, repository.ErrNotFound
	}
	return v, nil
}

// PlanVote implements repository.VoteLog.
func (s *Store) PlanVote(_ context.Context, id string, plan model.VotePlan) (model.VotePlan, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.votes[id]
	if !ok {
		return model.VotePlan{}, repository.ErrNotFound
	}
	if v.Plan == nil {
		v.Plan = &plan
		s.votes[id] = v
	}
	return *v.Plan, nil
}

// MarkStep implements repository.VoteLog.
func (s *Store) MarkStep(_ context.Context, id string, step model.VoteStep) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.votes[id]
	if !ok {
		return repository.ErrNotFound
	}
	v.Steps |= step
	s.votes[id] = v
	return nil
}

// MarkApplied implements repository.VoteLog.
func (s *Store) MarkApplied(_ context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.votes[id]
	if !ok {
		return repository.ErrNotFound
	}
	if v.AppliedAt == nil {
		at := at.UTC()
		v.AppliedAt = &at
		s.votes[id] = v
	}
	return nil
}

// PendingVotes implements repository.VoteLog.
func (s *Store) PendingVotes(_ context.Context, olderThan time.Time, limit int) ([]model.Vote, error) {
	if limit < 1 {
		return nil, repository.ErrInvalidLimit
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.Vote, 0, limit)
	for _, id := range s.voteOrder {
		v := s.votes[id]
		if v.Pending() && v.CreatedAt.Before(olderThan) {
			out = append(out, v)
			if len(out) == limit {
				break
			}
		}
	}
	return out, nil
}

// CountVotes implements repository.VoteLog.
func (s *Store) CountVotes(_ context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.votes)), nil
}
