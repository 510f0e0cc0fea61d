package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/okian/duel/internal/adapters/repository"
	"github.com/okian/duel/internal/domain/model"
)

const pairColumns = `entity_a_id, entity_b_id, a_wins, b_wins, comparisons, version, recent_votes, updated_at`

// GetPair implements repository.PairStore.
func (s *Store) GetPair(ctx context.Context, scope model.Scope, x, y string) (model.Pair, error) {
	a, b := model.CanonicalPair(x, y)
	row := s.db.QueryRowContext(ctx, s.q(`SELECT `+pairColumns+` FROM pair_stats WHERE `+scopeWhere+
		` AND entity_a_id = ? AND entity_b_id = ?`), append(scopeArgs(scope), a, b)...)
	p, err := scanPair(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return model.NewPair(scope, a, b), nil
	}
	if err != nil {
		return model.Pair{}, fmt.Errorf("get pair %s/%s:%s: %w", scope, a, b, err)
	}
	p.Scope = scope
	return p, nil
}

// UpsertPair implements repository.PairStore.
func (s *Store) UpsertPair(ctx context.Context, scope model.Scope, x, y string, fn repository.PairMutator) (_ model.Pair, err error) {
	defer s.observe("upsert_pair", time.Now(), &err)

	prev, err := s.GetPair(ctx, scope, x, y)
	if err != nil {
		return model.Pair{}, err
	}
	next, changed := fn(prev.Clone())
	if !changed {
		return prev, nil
	}
	next, err = repository.PreparePair(scope, prev, next)
	if err != nil {
		return model.Pair{}, err
	}
	recent, err := json.Marshal(nonNil(next.RecentVotes))
	if err != nil {
		return model.Pair{}, fmt.Errorf("encode recent votes: %w", err)
	}

	var res sql.Result
	if prev.Version == 0 {
		res, err = s.db.ExecContext(ctx, s.q(`
			INSERT INTO pair_stats (context, group_id, segment, `+pairColumns+`)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT (context, group_id, segment, entity_a_id, entity_b_id) DO NOTHING`),
			string(scope.Context), scope.GroupID, scope.Segment, next.EntityA, next.EntityB,
			next.AWins, next.BWins, next.Comparisons, next.Version, string(recent), toMillis(next.UpdatedAt),
		)
	} else {
		res, err = s.db.ExecContext(ctx, s.q(`
			UPDATE pair_stats SET a_wins = ?, b_wins = ?, comparisons = ?, version = ?, recent_votes = ?, updated_at = ?
			WHERE `+scopeWhere+` AND entity_a_id = ? AND entity_b_id = ? AND version = ?`),
			next.AWins, next.BWins, next.Comparisons, next.Version, string(recent), toMillis(next.UpdatedAt),
			string(scope.Context), scope.GroupID, scope.Segment, next.EntityA, next.EntityB, prev.Version,
		)
	}
	if err != nil {
		return model.Pair{}, fmt.Errorf("upsert pair %s/%s:%s: %w", scope, next.EntityA, next.EntityB, err)
	}
	if err = expectOneRow(res); err != nil {
		return model.Pair{}, fmt.Errorf("pair %s/%s:%s at version %d: %w", scope, next.EntityA, next.EntityB, prev.Version, err)
	}
	return next, nil
}

// ListPairs implements repository.PairStore.
func (s *Store) ListPairs(ctx context.Context, scope model.Scope, minComparisons int64) (out []model.Pair, err error) {
	defer s.observe("list_pairs", time.Now(), &err)
	return s.queryPairs(ctx, scope, `SELECT `+pairColumns+` FROM pair_stats WHERE `+scopeWhere+
		` AND comparisons >= ? ORDER BY entity_a_id, entity_b_id`, append(scopeArgs(scope), minComparisons)...)
}

// PairsFor implements repository.PairStore.
func (s *Store) PairsFor(ctx context.Context, scope model.Scope, entityID string, limit int) ([]model.Pair, error) {
	if limit < 1 {
		return nil, repository.ErrInvalidLimit
	}
	return s.queryPairs(ctx, scope, `SELECT `+pairColumns+` FROM pair_stats WHERE `+scopeWhere+
		` AND (entity_a_id = ? OR entity_b_id = ?)
		ORDER BY comparisons DESC, entity_a_id, entity_b_id LIMIT ?`,
		append(scopeArgs(scope), entityID, entityID, limit)...)
}

func (s *Store) queryPairs(ctx context.Context, scope model.Scope, query string, args ...any) ([]model.Pair, error) {
	rows, err := s.db.QueryContext(ctx, s.q(query), args...)
	if err != nil {
		return nil, fmt.Errorf("query pairs %s: %w", scope, err)
	}
	defer rows.Close()
	out := make([]model.Pair, 0, 16)
	for rows.Next() {
		p, err := scanPair(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan pair: %w", err)
		}
		p.Scope = scope
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("query pairs %s: %w", scope, err)
	}
	return out, nil
}

func scanPair(scan func(dest ...any) error) (model.Pair, error) {
	var (
		p       model.Pair
		recent  string
		updated int64
	)
	if err := scan(&p.EntityA, &p.EntityB, &p.AWins, &p.BWins, &p.Comparisons, &p.Version, &recent, &updated); err != nil {
		return model.Pair{}, err
	}
	if err := json.Unmarshal([]byte(recent), &p.RecentVotes); err != nil {
		return model.Pair{}, fmt.Errorf("decode recent votes: %w", err)
	}
	p.UpdatedAt = fromMillis(updated)
	return p, nil
}
