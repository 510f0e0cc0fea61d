// Package ingest turns vote events into rating and pairwise updates.
//
// A vote is appended to the log before any aggregate changes. The first
// application fixes the Elo deltas on the logged vote, then each aggregate
// record is updated with a single-record optimistic write that the ingestor
// retries with exponential backoff. The log records which records absorbed the
// vote, so a vote left half-applied can be finished later by Replay with the
// same deltas and without touching the records it already reached.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/okian/duel/internal/adapters/repository"
	"github.com/okian/duel/internal/domain/model"
	"github.com/okian/duel/internal/domain/rating"
	"github.com/okian/duel/internal/domain/scope"
	"github.com/okian/duel/pkg/logger"
	"github.com/okian/duel/pkg/metrics"
)

// Retry defaults.
const (
	DefaultMaxAttempts = 8
	DefaultBackoffBase = 2 * time.Millisecond
	DefaultBackoffMax  = 100 * time.Millisecond
)

// Record labels for conflict metrics.
const (
	recordRating = "rating"
	recordPair   = "pair"
)

// Store is the storage surface the ingestor needs.
type Store interface {
	repository.EntityStore
	repository.RatingStore
	repository.PairStore
	repository.VoteLog
}

// ReplaySink accepts logged votes whose aggregates still need applying.
// Submit reports whether the vote was taken.
type ReplaySink interface {
	Submit(ctx context.Context, v model.Vote) bool
}

// VoteRequest is a vote as submitted by a client.
type VoteRequest struct {
	// VoteID is an optional client idempotency key. A uuid is generated when empty.
	VoteID    string
	Scope     model.Scope
	LeftID    string
	RightID   string
	WinnerID  string
	Skipped   bool
	SessionID string
	VoterID   string
	Filters   model.Filters
}

// Result describes the effect of a vote.
type Result struct {
	Vote  model.Vote
	Left  model.Rating
	Right model.Rating
	// Applied is true when the vote moved the aggregates. Skips never do.
	Applied bool
	// Duplicate is true when the vote id was already in the log.
	Duplicate bool
}

// Ingestor applies votes. It is safe for concurrent use.
type Ingestor struct {
	store       Store
	calc        *rating.Calculator
	maxAttempts int
	backoffBase time.Duration
	backoffMax  time.Duration
	sink        ReplaySink
	observer    func(Result)
	log         logger.Logger
	now         func() time.Time
}

// New creates an Ingestor over store.
func New(store Store, opts ...Option) *Ingestor {
	i := &Ingestor{
		store:       store,
		calc:        rating.NewCalculator(),
		maxAttempts: DefaultMaxAttempts,
		backoffBase: DefaultBackoffBase,
		backoffMax:  DefaultBackoffMax,
		log:         logger.Nop(),
		now:         func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// SegmentIDSeparator joins a vote id and a segment into a derived vote id.
// Client vote ids may not contain it.
const SegmentIDSeparator = "#"

// SegmentVoteID returns the derived id of a vote's copy in segment.
func SegmentVoteID(voteID, segment string) string {
	return voteID + SegmentIDSeparator + segment
}

// ApplyVote validates, logs and applies one client vote.
func (i *Ingestor) ApplyVote(ctx context.Context, req VoteRequest) (Result, error) {
	if strings.Contains(req.VoteID, SegmentIDSeparator) {
		metrics.RecordVote(string(req.Scope.Context), metrics.OutcomeRejected)
		return Result{}, fmt.Errorf("vote id %q contains %q: %w", req.VoteID, SegmentIDSeparator, ErrInvalidVote)
	}
	return i.ingest(ctx, req)
}

// ApplySegmentVote applies parent again in the segment scope sc under the
// derived id SegmentVoteID(parent.ID, sc.Segment).
func (i *Ingestor) ApplySegmentVote(ctx context.Context, parent model.Vote, sc model.Scope) (Result, error) {
	return i.ingest(ctx, VoteRequest{
		VoteID:    SegmentVoteID(parent.ID, sc.Segment),
		Scope:     sc,
		LeftID:    parent.LeftID,
		RightID:   parent.RightID,
		WinnerID:  parent.WinnerID,
		Skipped:   parent.Skipped,
		SessionID: parent.SessionID,
		VoterID:   parent.VoterID,
		Filters:   parent.Filters,
	})
}

func (i *Ingestor) ingest(ctx context.Context, req VoteRequest) (Result, error) {
	start := time.Now()
	defer func() { metrics.RecordVoteLatency(metrics.Since(start)) }()
	ctxLabel := string(req.Scope.Context)

	v, err := i.validate(ctx, req)
	if err != nil {
		metrics.RecordVote(ctxLabel, metrics.OutcomeRejected)
		return Result{}, err
	}

	stored, err := i.store.AppendVote(ctx, v)
	duplicate := errors.Is(err, repository.ErrDuplicateVote)
	if err != nil && !duplicate {
		metrics.RecordVote(ctxLabel, metrics.OutcomeFailed)
		return Result{}, fmt.Errorf("append vote: %w", err)
	}

	// The event is durable; finish even if the caller goes away.
	ctx = context.WithoutCancel(ctx)

	if duplicate {
		if stored.Scope != v.Scope || !samePair(stored, v) {
			metrics.RecordVote(ctxLabel, metrics.OutcomeRejected)
			return Result{}, fmt.Errorf("vote id %s reused for another matchup: %w", v.ID, ErrInvalidVote)
		}
		metrics.RecordVote(ctxLabel, metrics.OutcomeDuplicate)
		if !stored.Pending() {
			res, err := i.current(ctx, stored)
			res.Duplicate = true
			return res, err
		}
	}

	res, err := i.apply(ctx, stored)
	res.Duplicate = duplicate
	if err != nil {
		if errors.Is(err, ErrConcurrencyConflict) {
			metrics.RecordVote(ctxLabel, metrics.OutcomeConflict)
		} else {
			metrics.RecordVote(ctxLabel, metrics.OutcomeFailed)
		}
		i.handOff(ctx, stored, err)
		return res, err
	}
	if !duplicate {
		if stored.Skipped {
			metrics.RecordVote(ctxLabel, metrics.OutcomeSkipped)
		} else {
			metrics.RecordVote(ctxLabel, metrics.OutcomeApplied)
		}
	}
	return res, nil
}

// Replay finishes a logged vote. It reloads the vote from the log, so a queued
// copy that predates earlier progress is harmless. Applied votes are left as they are.
func (i *Ingestor) Replay(ctx context.Context, v model.Vote) (Result, error) {
	stored, err := i.store.GetVote(ctx, v.ID)
	if err != nil {
		return Result{Vote: v}, fmt.Errorf("get vote %s: %w", v.ID, err)
	}
	if !stored.Pending() {
		return i.current(ctx, stored)
	}
	return i.apply(ctx, stored)
}

func (i *Ingestor) validate(ctx context.Context, req VoteRequest) (model.Vote, error) {
	if err := scope.Validate(req.Scope); err != nil {
		return model.Vote{}, err
	}
	left := strings.TrimSpace(req.LeftID)
	right := strings.TrimSpace(req.RightID)
	winner := strings.TrimSpace(req.WinnerID)
	switch {
	case left == "" || right == "":
		return model.Vote{}, fmt.Errorf("both entity ids are required: %w", ErrInvalidVote)
	case left == right:
		return model.Vote{}, fmt.Errorf("entity %s cannot face itself: %w", left, ErrInvalidVote)
	case !req.Skipped && winner != left && winner != right:
		return model.Vote{}, fmt.Errorf("winner %q is not in the pair: %w", winner, ErrInvalidVote)
	}
	if req.Skipped {
		winner = ""
	}

	found, err := i.store.GetEntities(ctx, []string{left, right})
	if err != nil {
		return model.Vote{}, fmt.Errorf("get entities: %w", err)
	}
	for _, id := range []string{left, right} {
		if _, ok := found[id]; !ok {
			return model.Vote{}, fmt.Errorf("entity %s: %w", id, ErrUnknownEntity)
		}
	}
	if req.Scope.Context == model.ContextGame {
		ok, err := i.store.PoolContains(ctx, req.Scope.GroupID, left, right)
		if err != nil {
			return model.Vote{}, fmt.Errorf("pool membership: %w", err)
		}
		if !ok {
			return model.Vote{}, fmt.Errorf("pair is not in group %s: %w", req.Scope.GroupID, ErrInvalidVote)
		}
	}

	id := strings.TrimSpace(req.VoteID)
	if id == "" {
		id = uuid.NewString()
	}
	return model.Vote{
		ID:        id,
		CreatedAt: i.now(),
		Scope:     req.Scope,
		LeftID:    left,
		RightID:   right,
		WinnerID:  winner,
		Skipped:   req.Skipped,
		SessionID: req.SessionID,
		VoterID:   req.VoterID,
		Filters:   req.Filters,
	}, nil
}

// apply brings every aggregate record in line with v and stamps it applied.
// v must be the logged vote, so its plan and steps are current.
func (i *Ingestor) apply(ctx context.Context, v model.Vote) (Result, error) {
	if v.Skipped {
		if err := i.markApplied(ctx, v); err != nil {
			return Result{Vote: v}, err
		}
		return i.current(ctx, v)
	}

	res, err := i.current(ctx, v)
	if err != nil {
		return res, err
	}
	plan, err := i.plan(ctx, v, res.Left.Rating, res.Right.Rating)
	if err != nil {
		return res, err
	}
	v.Plan = &plan
	res.Vote = v
	leftWon := v.WinnerID == v.LeftID

	if !v.Steps.Has(model.StepLeft) {
		err = i.retry(ctx, recordRating, func() error {
			r, err := i.store.UpsertRating(ctx, v.Scope, v.LeftID, sideMutator(v.ID, plan.LeftDelta, leftWon))
			res.Left = r
			return err
		})
		if err == nil {
			err = i.markStep(ctx, &v, model.StepLeft)
		}
		if err != nil {
			return res, err
		}
	}
	if !v.Steps.Has(model.StepRight) {
		err = i.retry(ctx, recordRating, func() error {
			r, err := i.store.UpsertRating(ctx, v.Scope, v.RightID, sideMutator(v.ID, plan.RightDelta, !leftWon))
			res.Right = r
			return err
		})
		if err == nil {
			err = i.markStep(ctx, &v, model.StepRight)
		}
		if err != nil {
			return res, err
		}
	}
	if !v.Steps.Has(model.StepPair) {
		err = i.retry(ctx, recordPair, func() error {
			_, err := i.store.UpsertPair(ctx, v.Scope, v.LeftID, v.RightID, pairMutator(v.ID, v.WinnerID))
			return err
		})
		if err == nil {
			err = i.markStep(ctx, &v, model.StepPair)
		}
		if err != nil {
			return res, err
		}
	}
	if err := i.markApplied(ctx, v); err != nil {
		return res, err
	}
	res.Vote = v
	res.Applied = true

	i.log.Debug(ctx, "vote applied",
		logger.String("vote_id", v.ID),
		logger.String("scope", v.Scope.Key()),
		logger.String("winner", v.WinnerID),
		logger.Float64("delta", plan.LeftDelta))
	if i.observer != nil {
		i.observer(res)
	}
	return res, nil
}

// plan returns the vote's stored deltas, fixing them from the given ratings
// on first application. Concurrent first applications agree on one plan.
func (i *Ingestor) plan(ctx context.Context, v model.Vote, left, right float64) (model.VotePlan, error) {
	if v.Plan != nil {
		return *v.Plan, nil
	}
	delta, err := i.calc.Update(left, right, v.WinnerID == v.LeftID)
	if err != nil {
		return model.VotePlan{}, fmt.Errorf("elo update: %w", err)
	}
	plan, err := i.store.PlanVote(ctx, v.ID, model.VotePlan{LeftDelta: delta.Left, RightDelta: delta.Right})
	if err != nil {
		return model.VotePlan{}, fmt.Errorf("plan vote %s: %w", v.ID, err)
	}
	return plan, nil
}

func (i *Ingestor) markStep(ctx context.Context, v *model.Vote, step model.VoteStep) error {
	if err := i.store.MarkStep(ctx, v.ID, step); err != nil {
		return fmt.Errorf("mark step %d of %s: %w", step, v.ID, err)
	}
	v.Steps |= step
	return nil
}

func (i *Ingestor) markApplied(ctx context.Context, v model.Vote) error {
	if err := i.store.MarkApplied(ctx, v.ID, i.now()); err != nil {
		return fmt.Errorf("mark applied %s: %w", v.ID, err)
	}
	return nil
}

// current reads both sides' rating records as they stand.
func (i *Ingestor) current(ctx context.Context, v model.Vote) (Result, error) {
	res := Result{Vote: v}
	var err error
	if res.Left, err = i.store.GetRating(ctx, v.Scope, v.LeftID); err != nil {
		return res, fmt.Errorf("get rating %s: %w", v.LeftID, err)
	}
	if res.Right, err = i.store.GetRating(ctx, v.Scope, v.RightID); err != nil {
		return res, fmt.Errorf("get rating %s: %w", v.RightID, err)
	}
	return res, nil
}

// retry runs op until it stops reporting a version conflict or attempts run out.
func (i *Ingestor) retry(ctx context.Context, record string, op func() error) error {
	delay := i.backoffBase
	for attempt := 1; ; attempt++ {
		err := op()
		if err == nil || !errors.Is(err, repository.ErrConflict) {
			return err
		}
		metrics.RecordCASConflict(record)
		if attempt >= i.maxAttempts {
			return fmt.Errorf("%s update gave up after %d attempts: %w", record, attempt, ErrConcurrencyConflict)
		}
		wait := delay/2 + rand.N(delay/2+1)
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
		delay = min(delay*2, i.backoffMax)
	}
}

func (i *Ingestor) handOff(ctx context.Context, v model.Vote, cause error) {
	if i.sink == nil {
		i.log.Warn(ctx, "vote left pending", logger.String("vote_id", v.ID), logger.Error(cause))
		return
	}
	if !i.sink.Submit(ctx, v) {
		i.log.Warn(ctx, "replay queue refused vote; the sweep will pick it up",
			logger.String("vote_id", v.ID), logger.Error(cause))
		return
	}
	i.log.Info(ctx, "vote handed to replay", logger.String("vote_id", v.ID), logger.Error(cause))
}

func samePair(a, b model.Vote) bool {
	return a.LeftID == b.LeftID && a.RightID == b.RightID
}

// sideMutator adds one side's share of a vote unless the record already has it.
// The record's recent ids cover the moment between the write and its step mark.
func sideMutator(voteID string, delta float64, won bool) repository.RatingMutator {
	return func(cur model.Rating) (model.Rating, bool) {
		if cur.Applied(voteID) {
			return cur, false
		}
		cur.Rating += delta
		if won {
			cur.Wins++
		} else {
			cur.Losses++
		}
		cur.Comparisons++
		cur.RecentVotes = model.RememberVote(cur.RecentVotes, voteID)
		return cur, true
	}
}

// pairMutator credits the winner's canonical side unless the record already has the vote.
func pairMutator(voteID, winnerID string) repository.PairMutator {
	return func(cur model.Pair) (model.Pair, bool) {
		if cur.Applied(voteID) {
			return cur, false
		}
		if winnerID == cur.EntityA {
			cur.AWins++
		} else {
			cur.BWins++
		}
		cur.Comparisons++
		cur.RecentVotes = model.RememberVote(cur.RecentVotes, voteID)
		return cur, true
	}
}
