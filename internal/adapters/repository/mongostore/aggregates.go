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

// GetRating implements repository.RatingStore.
func (s *Store) GetRating(ctx context.Context, scope model.Scope, entityID string) (model.Rating, error) {
	var doc ratingDoc
	err := s.coll(collRatings).FindOne(ctx, bson.M{"_id": ratingID(scope, entityID)}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return model.NewRating(scope, entityID, s.settings.Baseline), nil
	}
	if err != nil {
		return model.Rating{}, fmt.Errorf("get rating %s/%s: %w", scope, entityID, err)
	}
	return doc.model(), nil
}

// UpsertRating implements repository.RatingStore.
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
	doc := toRatingDoc(next)
	if err = s.casWrite(ctx, collRatings, doc.ID, prev.Version, doc); err != nil {
		return model.Rating{}, fmt.Errorf("rating %s/%s at version %d: %w", scope, entityID, prev.Version, err)
	}
	return next, nil
}

// casWrite inserts a first version or replaces the document holding version.
func (s *Store) casWrite(ctx context.Context, coll, id string, version int64, doc any) error {
	if version == 0 {
		_, err := s.coll(coll).InsertOne(ctx, doc)
		if mongo.IsDuplicateKeyError(err) {
			return repository.ErrConflict
		}
		return err
	}
	res, err := s.coll(coll).ReplaceOne(ctx, bson.M{"_id": id, "version": version}, doc)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return repository.ErrConflict
	}
	return nil
}

// ComparisonCounts implements repository.RatingStore.
func (s *Store) ComparisonCounts(ctx context.Context, scope model.Scope, ids []string) (map[string]int64, error) {
	out := make(map[string]int64, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	filter := scopeFilter(scope)
	filter["entityId"] = bson.M{"$in": ids}
	docs, err := findAll[ratingDoc](ctx, s.coll(collRatings), filter,
		options.Find().SetProjection(bson.M{"entityId": 1, "comparisons": 1}))
	if err != nil {
		return nil, fmt.Errorf("comparison counts: %w", err)
	}
	for _, d := range docs {
		out[d.EntityID] = d.Comparisons
	}
	return out, nil
}

// TopRatings implements repository.RatingStore.
func (s *Store) TopRatings(ctx context.Context, scope model.Scope, offset, limit int) (out []model.Rating, err error) {
	defer s.observe("top_ratings", time.Now(), &err)
	if limit < 1 || offset < 0 {
		return nil, repository.ErrInvalidLimit
	}
	opts := options.Find().
		SetSort(bson.D{{Key: "rating", Value: -1}, {Key: "entityId", Value: 1}}).
		SetSkip(int64(offset)).
		SetLimit(int64(limit))
	docs, err := findAll[ratingDoc](ctx, s.coll(collRatings), scopeFilter(scope), opts)
	if err != nil {
		return nil, fmt.Errorf("top ratings %s: %w", scope, err)
	}
	out = make([]model.Rating, 0, len(docs))
	for _, d := range docs {
		out = append(out, d.model())
	}
	return out, nil
}

// RankOf implements repository.RatingStore.
func (s *Store) RankOf(ctx context.Context, scope model.Scope, entityID string) (int, error) {
	var doc ratingDoc
	err := s.coll(collRatings).FindOne(ctx, bson.M{"_id": ratingID(scope, entityID)}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return 0, repository.ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("rank of %s/%s: %w", scope, entityID, err)
	}
	filter := scopeFilter(scope)
	filter["$or"] = bson.A{
		bson.M{"rating": bson.M{"$gt": doc.Rating}},
		bson.M{"rating": doc.Rating, "entityId": bson.M{"$lt": entityID}},
	}
	ahead, err := s.coll(collRatings).CountDocuments(ctx, filter)
	if err != nil {
		return 0, fmt.Errorf("rank of %s/%s: %w", scope, entityID, err)
	}
	return int(ahead) + 1, nil
}

// GetPair implements repository.PairStore.
func (s *Store) GetPair(ctx context.Context, scope model.Scope, x, y string) (model.Pair, error) {
	a, b := model.CanonicalPair(x, y)
	var doc pairDoc
	err := s.coll(collPairs).FindOne(ctx, bson.M{"_id": pairID(scope, a, b)}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return model.NewPair(scope, a, b), nil
	}
	if err != nil {
		return model.Pair{}, fmt.Errorf("get pair %s/%s:%s: %w", scope, a, b, err)
	}
	return doc.model(), nil
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
	doc := toPairDoc(next)
	if err = s.casWrite(ctx, collPairs, doc.ID, prev.Version, doc); err != nil {
		return model.Pair{}, fmt.Errorf("pair %s/%s:%s at version %d: %w", scope, next.EntityA, next.EntityB, prev.Version, err)
	}
	return next, nil
}

// ListPairs implements repository.PairStore.
func (s *Store) ListPairs(ctx context.Context, scope model.Scope, minComparisons int64) (out []model.Pair, err error) {
	defer s.observe("list_pairs", time.Now(), &err)
	filter := scopeFilter(scope)
	filter["comparisons"] = bson.M{"$gte": minComparisons}
	return s.findPairs(ctx, filter, options.Find().SetSort(bson.D{{Key: "entityA", Value: 1}, {Key: "entityB", Value: 1}}))
}

// PairsFor implements repository.PairStore.
func (s *Store) PairsFor(ctx context.Context, scope model.Scope, entityID string, limit int) ([]model.Pair, error) {
	if limit < 1 {
		return nil, repository.ErrInvalidLimit
	}
	filter := scopeFilter(scope)
	filter["$or"] = bson.A{bson.M{"entityA": entityID}, bson.M{"entityB": entityID}}
	opts := options.Find().
		SetSort(bson.D{{Key: "comparisons", Value: -1}, {Key: "entityA", Value: 1}, {Key: "entityB", Value: 1}}).
		SetLimit(int64(limit))
	return s.findPairs(ctx, filter, opts)
}

func (s *Store) findPairs(ctx context.Context, filter bson.M, opts *options.FindOptions) ([]model.Pair, error) {
	docs, err := findAll[pairDoc](ctx, s.coll(collPairs), filter, opts)
	if err != nil {
		return nil, fmt.Errorf("find pairs: %w", err)
	}
	out := make([]model.Pair, 0, len(docs))
	for _, d := range docs {
		out = append(out, d.model())
	}
	return out, nil
}

func findAll[T any](ctx context.Context, coll *mongo.Collection, filter any, opts ...*options.FindOptions) ([]T, error) {
	cur, err := coll.Find(ctx, filter, opts...)
	if err != nil {
		return nil, err
	}
	var docs []T
	if err := cur.All(ctx, &docs); err != nil {
		return nil, err
	}
	return docs, nil
}
