// Package standings derives read models from the aggregates: leaderboards,
// confident relationship graphs and head-to-head records. Every derivation is
// a pure read and returns the same output for the same stored state.
package standings

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/okian/duel/internal/adapters/repository"
	"github.com/okian/duel/internal/domain/model"
	"github.com/okian/duel/internal/domain/scope"
	"github.com/okian/duel/internal/domain/types"
	"github.com/okian/duel/pkg/logger"
	"github.com/okian/duel/pkg/metrics"
)

// Defaults.
const (
	DefaultLimit           = 100
	DefaultMaxLimit        = 500
	DefaultMinComparisons  = 10
	DefaultThreshold       = 0.7
	DefaultHeadToHeadLimit = 20
	minPageSize            = 50
)

// Store is the read surface the deriver needs.
type Store interface {
	repository.EntityStore
	repository.RatingStore
	repository.PairStore
}

// GraphQuery parameterizes RelationshipGraph. Zero values take the defaults.
type GraphQuery struct {
	MinComparisons int64
	Threshold      float64
	// Limit caps the number of edges. Zero means no cap.
	Limit int
}

// Deriver computes read models. It holds no state beyond configuration.
type Deriver struct {
	store          Store
	maxLimit       int
	minComparisons int64
	threshold      float64
	log            logger.Logger
}

// New creates a Deriver over store.
func New(store Store, opts ...Option) *Deriver {
	d := &Deriver{
		store:          store,
		maxLimit:       DefaultMaxLimit,
		minComparisons: DefaultMinComparisons,
		threshold:      DefaultThreshold,
		log:            logger.Nop(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// visibility decides which entities a scope may show.
type visibility struct {
	ctx     model.Context
	members map[string]struct{}
}

func (d *Deriver) visibility(ctx context.Context, s model.Scope) (visibility, error) {
	v := visibility{ctx: s.Context}
	if s.Context != model.ContextGame {
		return v, nil
	}
	members, err := d.store.ListCandidates(ctx, repository.CandidateQuery{GroupID: s.GroupID})
	if err != nil {
		return v, fmt.Errorf("group members: %w", err)
	}
	v.members = make(map[string]struct{}, len(members))
	for _, e := range members {
		v.members[e.ID] = struct{}{}
	}
	return v, nil
}

func (v visibility) allows(e model.Entity, ok bool) bool {
	if !ok || !e.VisibleIn(v.ctx) {
		return false
	}
	if v.members != nil {
		_, member := v.members[e.ID]
		return member
	}
	return true
}

// Leaderboard returns up to limit visible entities of the scope ranked by
// rating desc, entity id asc. Rank counts visible rows only.
func (d *Deriver) Leaderboard(ctx context.Context, s model.Scope, limit int) ([]types.LeaderboardEntry, error) {
	start := time.Now()
	defer func() { metrics.RecordDerivationLatency("leaderboard", metrics.Since(start)) }()

	if err := scope.Validate(s); err != nil {
		return nil, err
	}
	switch {
	case limit < 0:
		return nil, fmt.Errorf("limit %d: %w", limit, ErrInvalidQuery)
	case limit == 0:
		limit = DefaultLimit
	case limit > d.maxLimit:
		limit = d.maxLimit
	}
	vis, err := d.visibility(ctx, s)
	if err != nil {
		return nil, err
	}

	pageSize := max(limit, minPageSize)
	out := make([]types.LeaderboardEntry, 0, limit)
	for offset := 0; len(out) < limit; offset += pageSize {
		page, err := d.store.TopRatings(ctx, s, offset, pageSize)
		if err != nil {
			return nil, fmt.Errorf("top ratings: %w", err)
		}
		if len(page) == 0 {
			break
		}
		ents, err := d.store.GetEntities(ctx, ratingIDs(page))
		if err != nil {
			return nil, fmt.Errorf("get entities: %w", err)
		}
		for _, r := range page {
			e, ok := ents[r.EntityID]
			if !vis.allows(e, ok) {
				continue
			}
			out = append(out, types.LeaderboardEntry{
				Rank:        len(out) + 1,
				Entity:      e.Public(),
				Rating:      r.Rating,
				Wins:        r.Wins,
				Losses:      r.Losses,
				Comparisons: r.Comparisons,
			})
			if len(out) == limit {
				break
			}
		}
		if len(page) < pageSize {
			break
		}
	}
	d.log.Debug(ctx, "leaderboard derived", logger.String("scope", s.Key()), logger.Int("rows", len(out)))
	return out, nil
}

// RelationshipGraph returns the confident "beats" edges of the scope. A pair
// with at least MinComparisons votes yields A->B when A won at least Threshold
// of them, B->A when B did, and nothing otherwise.
func (d *Deriver) RelationshipGraph(ctx context.Context, s model.Scope, q GraphQuery) ([]types.Edge, error) {
	start := time.Now()
	defer func() { metrics.RecordDerivationLatency("graph", metrics.Since(start)) }()

	if err := scope.Validate(s); err != nil {
		return nil, err
	}
	if q.MinComparisons == 0 {
		q.MinComparisons = d.minComparisons
	}
	if q.Threshold == 0 {
		q.Threshold = d.threshold
	}
	switch {
	case q.MinComparisons < 1:
		return nil, fmt.Errorf("min comparisons %d: %w", q.MinComparisons, ErrInvalidQuery)
	case q.Threshold <= 0 || q.Threshold > 1:
		return nil, fmt.Errorf("threshold %v: %w", q.Threshold, ErrInvalidQuery)
	case q.Limit < 0:
		return nil, fmt.Errorf("limit %d: %w", q.Limit, ErrInvalidQuery)
	}

	pairs, err := d.store.ListPairs(ctx, s, q.MinComparisons)
	if err != nil {
		return nil, fmt.Errorf("list pairs: %w", err)
	}

	type rawEdge struct {
		from, to    string
		confidence  float64
		comparisons int64
	}
	raw := make([]rawEdge, 0, len(pairs))
	ids := make([]string, 0, 2*len(pairs))
	for _, p := range pairs {
		if p.Comparisons == 0 {
			continue
		}
		confA := float64(p.AWins) / float64(p.Comparisons)
		switch {
		case confA >= q.Threshold:
			raw = append(raw, rawEdge{p.EntityA, p.EntityB, confA, p.Comparisons})
		case 1-confA >= q.Threshold:
			raw = append(raw, rawEdge{p.EntityB, p.EntityA, 1 - confA, p.Comparisons})
		default:
			continue
		}
		ids = append(ids, p.EntityA, p.EntityB)
	}

	vis, err := d.visibility(ctx, s)
	if err != nil {
		return nil, err
	}
	ents, err := d.store.GetEntities(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("get entities: %w", err)
	}

	edges := make([]types.Edge, 0, len(raw))
	for _, r := range raw {
		from, okFrom := ents[r.from]
		to, okTo := ents[r.to]
		if !vis.allows(from, okFrom) || !vis.allows(to, okTo) {
			continue
		}
		edges = append(edges, types.Edge{
			From:        from.Public(),
			To:          to.Public(),
			Confidence:  r.confidence,
			Comparisons: r.comparisons,
		})
	}
	sort.Slice(edges, func(i, j int) bool {
		a, b := edges[i], edges[j]
		if a.Confidence != b.Confidence {
			return a.Confidence > b.Confidence
		}
		if a.Comparisons != b.Comparisons {
			return a.Comparisons > b.Comparisons
		}
		if a.From.ID != b.From.ID {
			return a.From.ID < b.From.ID
		}
		return a.To.ID < b.To.ID
	})
	if q.Limit > 0 && len(edges) > q.Limit {
		edges = edges[:q.Limit]
	}
	return edges, nil
}

// HeadToHead returns an entity's standing in the scope and its most frequent
// visible opponents.
func (d *Deriver) HeadToHead(ctx context.Context, s model.Scope, entityID string, limit int) (types.HeadToHead, error) {
	start := time.Now()
	defer func() { metrics.RecordDerivationLatency("head_to_head", metrics.Since(start)) }()

	if err := scope.Validate(s); err != nil {
		return types.HeadToHead{}, err
	}
	switch {
	case limit < 0:
		return types.HeadToHead{}, fmt.Errorf("limit %d: %w", limit, ErrInvalidQuery)
	case limit == 0:
		limit = DefaultHeadToHeadLimit
	case limit > d.maxLimit:
		limit = d.maxLimit
	}
	vis, err := d.visibility(ctx, s)
	if err != nil {
		return types.HeadToHead{}, err
	}
	self, err := d.store.GetEntities(ctx, []string{entityID})
	if err != nil {
		return types.HeadToHead{}, fmt.Errorf("get entity: %w", err)
	}
	e, ok := self[entityID]
	if !vis.allows(e, ok) {
		return types.HeadToHead{}, fmt.Errorf("entity %s in %s: %w", entityID, s, ErrUnknownEntity)
	}

	r, err := d.store.GetRating(ctx, s, entityID)
	if err != nil {
		return types.HeadToHead{}, fmt.Errorf("get rating: %w", err)
	}
	rank, err := d.visibleRank(ctx, s, vis, entityID)
	if err != nil {
		return types.HeadToHead{}, err
	}
	pairs, err := d.store.PairsFor(ctx, s, entityID, limit)
	if err != nil {
		return types.HeadToHead{}, fmt.Errorf("pairs: %w", err)
	}

	oppIDs := make([]string, 0, len(pairs))
	for _, p := range pairs {
		opp, _, _ := p.Opponent(entityID)
		oppIDs = append(oppIDs, opp)
	}
	opps, err := d.store.GetEntities(ctx, oppIDs)
	if err != nil {
		return types.HeadToHead{}, fmt.Errorf("get opponents: %w", err)
	}

	out := types.HeadToHead{
		Entity:      e.Public(),
		Rank:        rank,
		Rating:      r.Rating,
		Wins:        r.Wins,
		Losses:      r.Losses,
		Comparisons: r.Comparisons,
		Opponents:   make([]types.Opponent, 0, len(pairs)),
	}
	for _, p := range pairs {
		id, wins, losses := p.Opponent(entityID)
		opp, ok := opps[id]
		if !vis.allows(opp, ok) {
			continue
		}
		out.Opponents = append(out.Opponents, types.Opponent{
			Entity:      opp.Public(),
			Wins:        wins,
			Losses:      losses,
			Comparisons: p.Comparisons,
		})
	}
	return out, nil
}

// visibleRank is the entity's position among the visible rows of the rating
// order, matching Leaderboard ranks. RankOf bounds the walk to the rows at or
// above the entity. Zero means the entity has no rating row.
func (d *Deriver) visibleRank(ctx context.Context, s model.Scope, vis visibility, entityID string) (int, error) {
	raw, err := d.store.RankOf(ctx, s, entityID)
	if errors.Is(err, repository.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("rank: %w", err)
	}
	rank := 0
	for offset := 0; offset < raw; offset += minPageSize {
		page, err := d.store.TopRatings(ctx, s, offset, min(minPageSize, raw-offset))
		if err != nil {
			return 0, fmt.Errorf("rank: %w", err)
		}
		if len(page) == 0 {
			break
		}
		ents, err := d.store.GetEntities(ctx, ratingIDs(page))
		if err != nil {
			return 0, fmt.Errorf("rank entities: %w", err)
		}
		for _, r := range page {
			if e, ok := ents[r.EntityID]; vis.allows(e, ok) {
				rank++
			}
		}
	}
	return rank, nil
}

func ratingIDs(rs []model.Rating) []string {
	out := make([]string, len(rs))
	for i, r := range rs {
		out[i] = r.EntityID
	}
	return out
}
