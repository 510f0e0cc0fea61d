package mongostore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/okian/duel/internal/adapters/repository"
	"github.com/okian/duel/internal/domain/model"
)

// AppendVote implements repository.VoteLog.
func (s *Store) AppendVote(ctx context.Context, v model.Vote) (_ model.Vote, err error) {
	defer s.observe("append_vote", time.Now(), &err)
	_, err = s.coll(collVotes).InsertOne(ctx, toVoteDoc(v))
	if mongo.IsDuplicateKeyError(err) {
		existing, getErr := s.GetVote(ctx, v.ID)
		if getErr != nil {
			return model.Vote{}, getErr
		}
		return existing, repository.ErrDuplicateVote
	}
	if err != nil {
		return model.Vote{}, fmt.Errorf("append vote %s: %w", v.ID, err)
	}
	return v, nil
}

// GetVote implements repository.VoteLog.
func (s *Store) GetVote(ctx context.Context, id string) (model.Vote, error) {
	var doc voteDoc
	err := s.coll(collVotes).FindOne(ctx, bson.M{"_id": id}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return model.Vote{}, fmt.Errorf("vote %s: %w", id, repository.ErrNotFound)
	}
	if err != nil {
		return model.Vote{}, fmt.Errorf("get vote %s: %w", id, err)
	}
	return doc.model(), nil
}

// PlanVote implements repository.VoteLog. The first plan wins.
func (s *Store) PlanVote(ctx context.Context, id string, plan model.VotePlan) (_ model.VotePlan, err error) {
	defer s.observe("plan_vote", time.Now(), &err)
	_, err = s.coll(collVotes).UpdateOne(ctx,
		bson.M{"_id": id, "plan": nil},
		bson.M{"$set": bson.M{"plan": planDoc{LeftDelta: plan.LeftDelta, RightDelta: plan.RightDelta}}})
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
	res, err := s.coll(collVotes).UpdateOne(ctx,
		bson.M{"_id": id},
		bson.M{"$bit": bson.M{"steps": bson.M{"or": int64(step)}}})
	if err != nil {
		return fmt.Errorf("mark step %s: %w", id, err)
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("vote %s: %w", id, repository.ErrNotFound)
	}
	return nil
}

// MarkApplied implements repository.VoteLog.
func (s *Store) MarkApplied(ctx context.Context, id string, at time.Time) (err error) {
	defer s.observe("mark_applied", time.Now(), &err)
	res, err := s.coll(collVotes).UpdateOne(ctx,
		bson.M{"_id": id, "appliedAt": nil},
		bson.M{"$set": bson.M{"appliedAt": at.UTC()}})
	if err != nil {
		return fmt.Errorf("mark applied %s: %w", id, err)
	}
	if res.MatchedCount > 0 {
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
	opts := options.Find().
		SetSort(bson.D{{Key: "createdAt", Value: 1}, {Key: "_id", Value: 1}}).
		SetLimit(int64(limit))
	docs, err := findAll[voteDoc](ctx, s.coll(collVotes),
		bson.M{"appliedAt": nil, "createdAt": bson.M{"$lt": olderThan.UTC()}}, opts)
	if err != nil {
		return nil, fmt.Errorf("pending votes: %w", err)
	}
	out := make([]model.Vote, 0, len(docs))
	for _, d := range docs {
		out = append(out, d.model())
	}
	return out, nil
}

// CountVotes implements repository.VoteLog.
func (s *Store) CountVotes(ctx context.Context) (int64, error) {
	n, err := s.coll(collVotes).CountDocuments(ctx, bson.M{})
	if err != nil {
		return 0, fmt.Errorf("count votes: %w", err)
	}
	return n, nil
}
