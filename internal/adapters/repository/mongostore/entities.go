package mongostore

import (
	"context"
	"fmt"
	"sort"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/okian/duel/internal/adapters/repository"
	"github.com/okian/duel/internal/domain/model"
)

// PutEntity implements repository.EntityWriter.
func (s *Store) PutEntity(ctx context.Context, e model.Entity) (err error) {
	defer s.observe("put_entity", time.Now(), &err)
	_, err = s.coll(collEntities).ReplaceOne(ctx, bson.M{"_id": e.ID}, toEntityDoc(e), options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("put entity %s: %w", e.ID, err)
	}
	return nil
}

// AddToPool implements repository.EntityWriter.
func (s *Store) AddToPool(ctx context.Context, groupID string, ids ...string) (err error) {
	defer s.observe("add_to_pool", time.Now(), &err)
	if len(ids) == 0 {
		return nil
	}
	models := make([]mongo.WriteModel, 0, len(ids))
	for _, id := range ids {
		doc := poolDoc{ID: poolID(groupID, id), GroupID: groupID, EntityID: id}
		models = append(models, mongo.NewReplaceOneModel().
			SetFilter(bson.M{"_id": doc.ID}).SetReplacement(doc).SetUpsert(true))
	}
	if _, err = s.coll(collPools).BulkWrite(ctx, models); err != nil {
		return fmt.Errorf("add to pool %s: %w", groupID, err)
	}
	return nil
}

// ListCandidates implements repository.EntityStore. Oversized pools are
// reduced with $sample.
func (s *Store) ListCandidates(ctx context.Context, q repository.CandidateQuery) (out []model.Entity, err error) {
	defer s.observe("list_candidates", time.Now(), &err)

	match := bson.M{"status": string(model.StatusActive)}
	if q.Visibility != "" {
		match["visibility"] = string(q.Visibility)
	}
	if len(q.Categories) > 0 {
		match["category"] = bson.M{"$in": q.Categories}
	}
	if q.Gender != "" {
		match["gender"] = q.Gender
	}
	idFilter := bson.M{}
	if len(q.ExcludeIDs) > 0 {
		idFilter["$nin"] = q.ExcludeIDs
	}
	if q.GroupID != "" {
		members, err := s.poolMembers(ctx, q.GroupID)
		if err != nil {
			return nil, err
		}
		idFilter["$in"] = members
	}
	if len(idFilter) > 0 {
		match["_id"] = idFilter
	}

	pipeline := mongo.Pipeline{{{Key: "$match", Value: match}}}
	if q.Limit > 0 {
		pipeline = append(pipeline, bson.D{{Key: "$sample", Value: bson.M{"size": q.Limit}}})
	}
	cur, err := s.coll(collEntities).Aggregate(ctx, pipeline)
	if err != nil {
		return nil, fmt.Errorf("list candidates: %w", err)
	}
	var docs []entityDoc
	if err = cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("list candidates: %w", err)
	}

	// $sample may repeat a document on large collections.
	seen := make(map[string]struct{}, len(docs))
	out = make([]model.Entity, 0, len(docs))
	for _, d := range docs {
		if _, dup := seen[d.ID]; dup {
			continue
		}
		seen[d.ID] = struct{}{}
		out = append(out, d.model())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) poolMembers(ctx context.Context, groupID string) ([]string, error) {
	cur, err := s.coll(collPools).Find(ctx, bson.M{"groupId": groupID})
	if err != nil {
		return nil, fmt.Errorf("pool members %s: %w", groupID, err)
	}
	var docs []poolDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("pool members %s: %w", groupID, err)
	}
	ids := make([]string, 0, len(docs))
	for _, d := range docs {
		ids = append(ids, d.EntityID)
	}
	return ids, nil
}

// PoolSize implements repository.EntityStore.
func (s *Store) PoolSize(ctx context.Context, groupID string) (int, error) {
	n, err := s.coll(collPools).CountDocuments(ctx, bson.M{"groupId": groupID})
	if err != nil {
		return 0, fmt.Errorf("pool size %s: %w", groupID, err)
	}
	return int(n), nil
}

// PoolContains implements repository.EntityStore.
func (s *Store) PoolContains(ctx context.Context, groupID string, ids ...string) (bool, error) {
	uniq := make([]string, 0, len(ids))
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; !ok {
			seen[id] = struct{}{}
			uniq = append(uniq, id)
		}
	}
	if len(uniq) == 0 {
		return true, nil
	}
	n, err := s.coll(collPools).CountDocuments(ctx, bson.M{"groupId": groupID, "entityId": bson.M{"$in": uniq}})
	if err != nil {
		return false, fmt.Errorf("pool contains %s: %w", groupID, err)
	}
	return int(n) == len(uniq), nil
}

// GetEntities implements repository.EntityStore.
func (s *Store) GetEntities(ctx context.Context, ids []string) (map[string]model.Entity, error) {
	out := make(map[string]model.Entity, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	cur, err := s.coll(collEntities).Find(ctx, bson.M{"_id": bson.M{"$in": ids}})
	if err != nil {
		return nil, fmt.Errorf("get entities: %w", err)
	}
	var docs []entityDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("get entities: %w", err)
	}
	for _, d := range docs {
		out[d.ID] = d.model()
	}
	return out, nil
}
