package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/okian/duel/internal/adapters/repository"
	"github.com/okian/duel/internal/domain/model"
)

const entityColumns = `id, slug, name, profession, category, gender, status, visibility, image_url, created_at`

// PutEntity implements repository.EntityWriter.
func (s *Store) PutEntity(ctx context.Context, e model.Entity) (err error) {
	defer s.observe("put_entity", time.Now(), &err)
	_, err = s.db.ExecContext(ctx, s.q(`
		INSERT INTO entities (`+entityColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			slug = excluded.slug,
			name = excluded.name,
			profession = excluded.profession,
			category = excluded.category,
			gender = excluded.gender,
			status = excluded.status,
			visibility = excluded.visibility,
			image_url = excluded.image_url`),
		e.ID, e.Slug, e.Name, e.Profession, e.Category, e.Gender,
		string(e.Status), string(e.Visibility), e.ImageURL, toMillis(e.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("put entity %s: %w", e.ID, err)
	}
	return nil
}

// AddToPool implements repository.EntityWriter.
func (s *Store) AddToPool(ctx context.Context, groupID string, ids ...string) (err error) {
	defer s.observe("add_to_pool", time.Now(), &err)
	for _, id := range ids {
		_, err = s.db.ExecContext(ctx, s.q(`
			INSERT INTO group_pool (group_id, entity_id) VALUES (?, ?)
			ON CONFLICT (group_id, entity_id) DO NOTHING`), groupID, id)
		if err != nil {
			return fmt.Errorf("add %s to pool %s: %w", id, groupID, err)
		}
	}
	return nil
}

// ListCandidates implements repository.EntityStore. When the pool exceeds the
// limit a random subset is drawn by the database.
func (s *Store) ListCandidates(ctx context.Context, q repository.CandidateQuery) (out []model.Entity, err error) {
	defer s.observe("list_candidates", time.Now(), &err)

	var (
		where = []string{"e.status = ?"}
		args  = []any{string(model.StatusActive)}
		from  = "entities e"
	)
	if q.GroupID != "" {
		from += " JOIN group_pool gp ON gp.entity_id = e.id AND gp.group_id = ?"
		args = append([]any{q.GroupID}, args...)
	}
	if q.Visibility != "" {
		where = append(where, "e.visibility = ?")
		args = append(args, string(q.Visibility))
	}
	if len(q.Categories) > 0 {
		where = append(where, "e.category IN ("+placeholders(len(q.Categories))+")")
		for _, c := range q.Categories {
			args = append(args, c)
		}
	}
	if q.Gender != "" {
		where = append(where, "e.gender = ?")
		args = append(args, q.Gender)
	}
	if len(q.ExcludeIDs) > 0 {
		where = append(where, "e.id NOT IN ("+placeholders(len(q.ExcludeIDs))+")")
		for _, id := range q.ExcludeIDs {
			args = append(args, id)
		}
	}

	inner := "SELECT e.* FROM " + from + " WHERE " + strings.Join(where, " AND ")
	if q.Limit > 0 {
		inner += " ORDER BY random() LIMIT ?"
		args = append(args, q.Limit)
	}
	query := "SELECT " + entityColumns + " FROM (" + inner + ") c ORDER BY id"

	rows, err := s.db.QueryContext(ctx, s.q(query), args...)
	if err != nil {
		return nil, fmt.Errorf("list candidates: %w", err)
	}
	defer rows.Close()

	out = make([]model.Entity, 0, 64)
	for rows.Next() {
		e, err := scanEntity(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("list candidates: %w", err)
	}
	return out, nil
}

// PoolSize implements repository.EntityStore.
func (s *Store) PoolSize(ctx context.Context, groupID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, s.q(`SELECT COUNT(*) FROM group_pool WHERE group_id = ?`), groupID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("pool size %s: %w", groupID, err)
	}
	return n, nil
}

// PoolContains implements repository.EntityStore.
func (s *Store) PoolContains(ctx context.Context, groupID string, ids ...string) (bool, error) {
	uniq := make(map[string]struct{}, len(ids))
	args := []any{groupID}
	for _, id := range ids {
		if _, ok := uniq[id]; ok {
			continue
		}
		uniq[id] = struct{}{}
		args = append(args, id)
	}
	if len(uniq) == 0 {
		return true, nil
	}
	var n int
	err := s.db.QueryRowContext(ctx, s.q(`SELECT COUNT(*) FROM group_pool WHERE group_id = ? AND entity_id IN (`+
		placeholders(len(uniq))+`)`), args...).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("pool contains %s: %w", groupID, err)
	}
	return n == len(uniq), nil
}

// GetEntities implements repository.EntityStore.
func (s *Store) GetEntities(ctx context.Context, ids []string) (map[string]model.Entity, error) {
	out := make(map[string]model.Entity, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	args := make([]any, 0, len(ids))
	for _, id := range ids {
		args = append(args, id)
	}
	rows, err := s.db.QueryContext(ctx, s.q(`SELECT `+entityColumns+` FROM entities WHERE id IN (`+
		placeholders(len(ids))+`)`), args...)
	if err != nil {
		return nil, fmt.Errorf("get entities: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		e, err := scanEntity(rows)
		if err != nil {
			return nil, err
		}
		out[e.ID] = e
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("get entities: %w", err)
	}
	return out, nil
}

func scanEntity(rows *sql.Rows) (model.Entity, error) {
	var (
		e                  model.Entity
		status, visibility string
		created            int64
	)
	if err := rows.Scan(&e.ID, &e.Slug, &e.Name, &e.Profession, &e.Category, &e.Gender,
		&status, &visibility, &e.ImageURL, &created); err != nil {
		return model.Entity{}, fmt.Errorf("scan entity: %w", err)
	}
	e.Status = model.Status(status)
	e.Visibility = model.Visibility(visibility)
	e.CreatedAt = fromMillis(created)
	return e, nil
}
