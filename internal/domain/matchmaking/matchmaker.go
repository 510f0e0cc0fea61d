// Package matchmaking selects the next pair of entities to show a voter,
// favouring entities that have been compared the least in the scope.
package matchmaking

import (
	"context"
	"fmt"
	"math/rand/v2"

	"github.com/okian/duel/internal/adapters/repository"
	"github.com/okian/duel/internal/domain/model"
	"github.com/okian/duel/internal/domain/scope"
	"github.com/okian/duel/internal/domain/types"
	"github.com/okian/duel/pkg/logger"
	"github.com/okian/duel/pkg/metrics"
)

// Defaults.
const (
	DefaultCandidateCap = 100
	DefaultMaxExclude   = 50
)

// globalSource draws from the goroutine-safe top-level generator.
type globalSource struct{}

func (globalSource) Float64() float64 { return rand.Float64() }

// Matchmaker is read-only and safe for concurrent use.
type Matchmaker struct {
	entities     repository.EntityStore
	ratings      repository.RatingStore
	candidateCap int
	maxExclude   int
	rng          Source
	log          logger.Logger
}

// New creates a Matchmaker over the entity feed and the rating aggregator.
func New(entities repository.EntityStore, ratings repository.RatingStore, opts ...Option) *Matchmaker {
	m := &Matchmaker{
		entities:     entities,
		ratings:      ratings,
		candidateCap: DefaultCandidateCap,
		maxExclude:   DefaultMaxExclude,
		rng:          globalSource{},
		log:          logger.Nop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// SelectMatchup returns two distinct active entities of the scope that pass
// the filters and are not excluded.
func (m *Matchmaker) SelectMatchup(ctx context.Context, s model.Scope, f model.Filters, excludeIDs []string) (types.Matchup, error) {
	if err := scope.Validate(s); err != nil {
		return types.Matchup{}, err
	}

	q := repository.CandidateQuery{
		Categories: f.Categories,
		Gender:     f.Gender,
		ExcludeIDs: scope.BoundExclude(excludeIDs, m.maxExclude),
		Limit:      m.candidateCap,
	}
	if s.Context == model.ContextGame {
		size, err := m.entities.PoolSize(ctx, s.GroupID)
		if err != nil {
			return types.Matchup{}, fmt.Errorf("pool size: %w", err)
		}
		if size < 2 {
			metrics.RecordMatchup(string(s.Context), metrics.OutcomeInsufficientPool)
			return types.Matchup{}, fmt.Errorf("group %s has %d members: %w", s.GroupID, size, ErrInsufficientPool)
		}
		q.GroupID = s.GroupID
	} else {
		q.Visibility = model.VisibilityPublic
	}

	pool, err := m.entities.ListCandidates(ctx, q)
	if err != nil {
		return types.Matchup{}, fmt.Errorf("list candidates: %w", err)
	}
	metrics.RecordMatchupPoolSize(len(pool))
	if len(pool) < 2 {
		metrics.RecordMatchup(string(s.Context), metrics.OutcomeInsufficientCandidates)
		return types.Matchup{}, fmt.Errorf("%d candidates in %s: %w", len(pool), s, ErrInsufficientCandidates)
	}

	ids := make([]string, len(pool))
	for i, e := range pool {
		ids[i] = e.ID
	}
	counts, err := m.ratings.ComparisonCounts(ctx, s, ids)
	if err != nil {
		return types.Matchup{}, fmt.Errorf("comparison counts: %w", err)
	}

	left, right, err := Sample(pool, counts, m.rng)
	if err != nil {
		return types.Matchup{}, err
	}
	metrics.RecordMatchup(string(s.Context), metrics.OutcomeServed)
	m.log.Debug(ctx, "matchup selected",
		logger.String("scope", s.Key()),
		logger.String("left", left.ID),
		logger.String("right", right.ID),
		logger.Int("pool", len(pool)))
	return types.Matchup{Left: left.Public(), Right: right.Public()}, nil
}
