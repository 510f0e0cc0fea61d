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

const scopeWhere = `context = ? AND group_id = ? AND segment = ?`

func scopeArgs(scope model.Scope) []any {
	return []any{string(scope.Context), scope.GroupID, scope.Segment}
}

// GetRating implements repository.RatingStore.
func (s *Store) GetRating(ctx context.Context, scope model.Scope, entityID string) (model.Rating, error) {
	r, err := s.loadRating(ctx, scope, entityID)
	if errors.Is(err, repository.ErrNotFound) {
		return model.NewRating(scope, entityID, s.settings.Baseline), nil
	}
	return r, err
}

func (s *Store) loadRating(ctx context.Context, scope model.Scope, entityID string) (model.Rating, error) {
	row := s.db.QueryRowContext(ctx, s.q(`
		SELECT entity_id, rating, wins, losses, comparisons, version, recent_votes, updated_at
		FROM ratings WHERE `+scopeWhere+` AND entity_id = ?`),
		append(scopeArgs(scope), entityID)...)
	r, err := scanRating(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Rating{}, repository.ErrNotFound
	}
	if err != nil {
		return model.Rating{}, fmt.Errorf("get rating %s/%s: %w", scope, entityID, err)
	}
	r.Scope = scope
	return r, nil
}

// UpsertRating implements repository.RatingStore. A first write inserts at
// version 1; later writes update only the version that was read.
func (s *Store) UpsertRating(ctx context.Context, scope model.Scope, entityID string, fn repository.RatingMutator) (_ model.Rating, err error) {
	defer s.observe("upsert_rating", time.Now(), &err)

	prev, err := s.GetRating(ctx, scope, entityID)
	if err != nil {
		return model.Rating{}, err
	}
	next, changed := fn(prev.Clone())
	if !changed {
		return prev, nil
	}
	next, err = repository.PrepareRating(scope, entityID, prev, next)
	if err != nil {
		return model.Rating{}, err
	}
	recent, err := json.Marshal(nonNil(next.RecentVotes))
	if err != nil {
		return model.Rating{}, fmt.Errorf("encode recent votes: %w", err)
	}

	var res sql.Result
	if prev.Version == 0 {
		res, err = s.db.ExecContext(ctx, s.q(`
			INSERT INTO ratings (context, group_id, segment, entity_id, rating, wins, losses, comparisons, version, recent_votes, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT (context, group_id, segment, entity_id) DO NOTHING`),
			string(scope.Context), scope.GroupID, scope.Segment, entityID,
			next.Rating, next.Wins, next.Losses, next.Comparisons, next.Version, string(recent), toMillis(next.UpdatedAt),
		)
	} else {
		res, err = s.db.ExecContext(ctx, s.q(`
			UPDATE ratings SET rating = ?, wins = ?, losses = ?, comparisons = ?, version = ?, recent_votes = ?, updated_at = ?
			WHERE `+scopeWhere+` AND entity_id = ? AND version = ?`),
			next.Rating, next.Wins, next.Losses, next.Comparisons, next.Version, string(recent), toMillis(next.UpdatedAt),
			string(scope.Context), scope.GroupID, scope.Segment, entityID, prev.Version,
		)
	}
	if err != nil {
		return model.Rating{}, fmt.Errorf("upsert rating %s/%s: %w", scope, entityID, err)
	}
	if err = expectOneRow(res); err != nil {
		return model.Rating{}, fmt.Errorf("rating %s/%s at version %d: %w", scope, entityID, prev.Version, err)
	}
	return next, nil
}

// ComparisonCounts implements repository.RatingStore.
func (s *Store) ComparisonCounts(ctx context.Context, scope model.Scope, ids []string) (map[string]int64, error) {
	out := make(map[string]int64, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	args := scopeArgs(scope)
	for _, id := range ids {
		args = append(args, id)
	}
	rows, err := s.db.QueryContext(ctx, s.q(`SELECT entity_id, comparisons FROM ratings WHERE `+scopeWhere+
		` AND entity_id IN (`+placeholders(len(ids))+`)`), args...)
	if err != nil {
		return nil, fmt.Errorf("comparison counts: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			id string
			n  int64
		)
		if err := rows.Scan(&id, &n); err != nil {
			return nil, fmt.Errorf("scan comparison count: %w", err)
		}
		out[id] = n
	}
	return out, rows.Err()
}

// TopRatings implements repository.RatingStore.
func (s *Store) TopRatings(ctx context.Context, scope model.Scope, offset, limit int) (out []model.Rating, err error) {
	defer s.observe("top_ratings", time.Now(), &err)
	if limit < 1 || offset < 0 {
		return nil, repository.ErrInvalidLimit
	}
	rows, err := s.db.QueryContext(ctx, s.q(`
		SELECT entity_id, rating, wins, losses, comparisons, version, recent_votes, updated_at
		FROM ratings WHERE `+scopeWhere+`
		ORDER BY rating DESC, entity_id ASC
		LIMIT ? OFFSET ?`),
		append(scopeArgs(scope), limit, offset)...)
	if err != nil {
		return nil, fmt.Errorf("top ratings %s: %w", scope, err)
	}
	defer rows.Close()

	out = make([]model.Rating, 0, limit)
	for rows.Next() {
		r, err := scanRating(rows.Scan)
		if err != nil {
			return nil, err
		}
		r.Scope = scope
		out = append(out, r)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("top ratings %s: %w", scope, err)
	}
	return out, nil
}

// RankOf implements repository.RatingStore.
func (s *Store) RankOf(ctx context.Context, scope model.Scope, entityID string) (int, error) {
	r, err := s.loadRating(ctx, scope, entityID)
	if err != nil {
		return 0, err
	}
	var ahead int
	err = s.db.QueryRowContext(ctx, s.q(`
		SELECT COUNT(*) FROM ratings
		WHERE `+scopeWhere+` AND (rating > ? OR (rating = ? AND entity_id < ?))`),
		append(scopeArgs(scope), r.Rating, r.Rating, entityID)...).Scan(&ahead)
	if err != nil {
		return 0, fmt.Errorf("rank of %s/%s: %w", scope, entityID, err)
	}
	return ahead + 1, nil
}

func scanRating(scan func(dest ...any) error) (model.Rating, error) {
	var (
		r       model.Rating
		recent  string
		updated int64
	)
	if err := scan(&r.EntityID, &r.Rating, &r.Wins, &r.Losses, &r.Comparisons, &r.Version, &recent, &updated); err != nil {
		return model.Rating{}, err
	}
	if err := json.Unmarshal([]byte(recent), &r.RecentVotes); err != nil {
		return model.Rating{}, fmt.Errorf("decode recent votes: %w", err)
	}
	r.UpdatedAt = fromMillis(updated)
	return r, nil
}

// expectOneRow maps a write that touched nothing to a version conflict.
func expectOneRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n != 1 {
		return repository.ErrConflict
	}
	return nil
}

func nonNil(ids []string) []string {
	if ids == nil {
		return []string{}
	}
	return ids
}
