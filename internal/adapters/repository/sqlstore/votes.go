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

const voteColumns = `id, created_at, context, group_id, segment, left_id, right_id, winner_id, skipped, session_id, voter_id, filters, left_delta, right_delta, steps, applied_at`

// AppendVote implements repository.VoteLog.
func (s *Store) AppendVote(ctx context.Context, v model.Vote) (_ model.Vote, err error) {
	defer s.observe("append_vote", time.Now(), &err)

	filters, err := json.Marshal(v.Filters)
	if err != nil {
		return model.Vote{}, fmt.Errorf("encode filters: %w", err)
	}
	var (
		applied       sql.NullInt64
		leftD, rightD sql.NullFloat64
	)
	if v.AppliedAt != nil {
		applied = sql.NullInt64{Int64: toMillis(*v.AppliedAt), Valid: true}
	}
	if v.Plan != nil {
		leftD = sql.NullFloat64{Float64: v.Plan.LeftDelta, Valid: true}
		rightD = sql.NullFloat64{Float64: v.Plan.RightDelta, Valid: true}
	}
	res, err := s.db.ExecContext(ctx, s.q(`
		INSERT INTO votes (`+voteColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO NOTHING`),
		v.ID, toMillis(v.CreatedAt), string(v.Scope.Context), v.Scope.GroupID, v.Scope.Segment,
		v.LeftID, v.RightID, v.WinnerID, v.Skipped, v.SessionID, v.VoterID, string(filters),
		leftD, rightD, int64(v.Steps), applied,
	)
	if err != nil {
		return model.Vote{}, fmt.Errorf("append vote %s: %w", v.ID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		existing, getErr := s.GetVote(ctx, v.ID)
		if getErr != nil {
			return model.Vote{}, getErr
		}
		return existing, repository.ErrDuplicateVote
	}
	return v, nil
}

// GetVote implements repository.VoteLog.
func (s *Store) GetVote(ctx context.Context, id string) (model.Vote, error) {
	row := s.db.QueryRowContext(ctx, s.q(`SELECT `+voteColumns+` FROM votes WHERE id = ?`), id)
	v, err := scanVote(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Vote{}, fmt.Errorf("vote %s: %w", id, repository.ErrNotFound)
	}
	if err != nil {
		return model.Vote{}, fmt.Errorf("get vote %s: %w", id, err)
	}
	return v, nil
}

// PlanVote implements repository.VoteLog. The first plan wins.
func (s *Store) PlanVote(ctx context.Context, id string, plan model.VotePlan) (_ model.VotePlan, err error) {
	defer s.observe("plan_vote", time.Now(), &err)
	_, err = s.db.ExecContext(ctx, s.q(`UPDATE votes SET left_delta = ?, right_delta = ?
		WHERE id = ? AND left_delta IS NULL`), plan.LeftDelta, plan.RightDelta, id)
	if err != nil {
		return model.VotePlan{}, fmt.Errorf("plan vote %s: %w", id, err)
	}
	v, err := s.GetVote(ctx, id)
	if err != nil {
		return model.VotePlan{}, err
	}
	if v.Plan == nil {
		return model.VotePlan{}, fmt.Errorf("vote %s has no plan after planning: %w", id, repository.ErrInvalidRecord)
	}
	return *v.Plan, nil
}

// MarkStep implements repository.VoteLog.
func (s *Store) MarkStep(ctx context.Context, id string, step model.VoteStep) (err error) {
	defer s.observe("mark_step", time.Now(), &err)
	res, err := s.db.ExecContext(ctx, s.q(`UPDATE votes SET steps = steps | ? WHERE id = ?`), int64(step), id)
	if err != nil {
		return fmt.Errorf("mark step %s: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("vote %s: %w", id, repository.ErrNotFound)
	}
	return nil
}

// MarkApplied implements repository.VoteLog. The first stamp wins.
func (s *Store) MarkApplied(ctx context.Context, id string, at time.Time) (err error) {
	defer s.observe("mark_applied", time.Now(), &err)
	res, err := s.db.ExecContext(ctx, s.q(`UPDATE votes SET applied_at = ? WHERE id = ? AND applied_at IS NULL`), toMillis(at), id)
	if err != nil {
		return fmt.Errorf("mark applied %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n > 0 {
		return nil
	}
	_, err = s.GetVote(ctx, id)
	return err
}

// PendingVotes implements repository.VoteLog.
func (s *Store) PendingVotes(ctx context.Context, olderThan time.Time, limit int) ([]model.Vote, error) {
	if limit < 1 {
		return nil, repository.ErrInvalidLimit
	}
	rows, err := s.db.QueryContext(ctx, s.q(`SELECT `+voteColumns+` FROM votes
		WHERE applied_at IS NULL AND created_at < ?
		ORDER BY created_at, id LIMIT ?`), toMillis(olderThan), limit)
	if err != nil {
		return nil, fmt.Errorf("pending votes: %w", err)
	}
	defer rows.Close()
	out := make([]model.Vote, 0, limit)
	for rows.Next() {
		v, err := scanVote(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan vote: %w", err)
		}
		out = append(out, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("pending votes: %w", err)
	}
	return out, nil
}

// CountVotes implements repository.VoteLog.
func (s *Store) CountVotes(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM votes`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count votes: %w", err)
	}
	return n, nil
}

func scanVote(scan func(dest ...any) error) (model.Vote, error) {
	var (
		v       model.Vote
		created int64
		vctx    string
		filters string
		leftD   sql.NullFloat64
		rightD  sql.NullFloat64
		steps   int64
		applied sql.NullInt64
	)
	err := scan(&v.ID, &created, &vctx, &v.Scope.GroupID, &v.Scope.Segment, &v.LeftID, &v.RightID,
		&v.WinnerID, &v.Skipped, &v.SessionID, &v.VoterID, &filters, &leftD, &rightD, &steps, &applied)
	if err != nil {
		return model.Vote{}, err
	}
	if err := json.Unmarshal([]byte(filters), &v.Filters); err != nil {
		return model.Vote{}, fmt.Errorf("decode filters: %w", err)
	}
	v.CreatedAt = fromMillis(created)
	v.Scope.Context = model.Context(vctx)
	v.Steps = model.VoteStep(steps)
	if leftD.Valid && rightD.Valid {
		v.Plan = &model.VotePlan{LeftDelta: leftD.Float64, RightDelta: rightD.Float64}
	}
	if applied.Valid {
		at := fromMillis(applied.Int64)
		v.AppliedAt = &at
	}
	return v, nil
}
