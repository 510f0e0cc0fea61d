// Package mongostore is the MongoDB storage backend. Every aggregate document
// carries a version field and writes are conditional on the version read.
package mongostore

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/okian/duel/internal/adapters/repository"
	"github.com/okian/duel/pkg/logger"
	"github.com/okian/duel/pkg/metrics"
)

const backendName = "mongo"

// Collection names.
const (
	collEntities = "entities"
	collPools    = "group_pool"
	collRatings  = "ratings"
	collPairs    = "pair_stats"
	collVotes    = "votes"
)

// Store implements repository.Store on MongoDB.
type Store struct {
	client   *mongo.Client
	db       *mongo.Database
	settings repository.Settings
	log      logger.Logger
}

var _ repository.Store = (*Store)(nil)

// Open connects to uri, selects database and ensures the indexes.
func Open(ctx context.Context, uri, database string, opts ...repository.Option) (*Store, error) {
	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	clientOptions := options.Client().
		ApplyURI(uri).
		SetMaxPoolSize(200).
		SetMinPoolSize(5).
		SetMaxConnIdleTime(5 * time.Minute)
	client, err := mongo.Connect(connectCtx, clientOptions)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}
	if err := client.Ping(connectCtx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	settings := repository.ApplyOptions(opts...)
	s := &Store{
		client:   client,
		db:       client.Database(database),
		settings: settings,
		log:      settings.Logger.Named("mongostore"),
	}
	s.ensureIndexes(ctx)
	return s, nil
}

// ensureIndexes creates all required indexes. Failures are logged, not fatal.
func (s *Store) ensureIndexes(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, 60*time.Second)
	defer cancel()

	indexes := []struct {
		collection string
		models     []mongo.IndexModel
	}{
		{
			collEntities,
			[]mongo.IndexModel{
				{Keys: bson.D{{Key: "status", Value: 1}, {Key: "visibility", Value: 1}, {Key: "category", Value: 1}}},
			},
		},
		{
			collPools,
			[]mongo.IndexModel{
				{Keys: bson.D{{Key: "groupId", Value: 1}, {Key: "entityId", Value: 1}}, Options: options.Index().SetUnique(true)},
			},
		},
		{
			collRatings,
			[]mongo.IndexModel{
				{Keys: bson.D{
					{Key: "context", Value: 1}, {Key: "groupId", Value: 1}, {Key: "segment", Value: 1},
					{Key: "rating", Value: -1}, {Key: "entityId", Value: 1},
				}},
			},
		},
		{
			collPairs,
			[]mongo.IndexModel{
				{Keys: bson.D{{Key: "context", Value: 1}, {Key: "groupId", Value: 1}, {Key: "segment", Value: 1}, {Key: "entityA", Value: 1}}},
				{Keys: bson.D{{Key: "context", Value: 1}, {Key: "groupId", Value: 1}, {Key: "segment", Value: 1}, {Key: "entityB", Value: 1}}},
			},
		},
		{
			collVotes,
			[]mongo.IndexModel{
				{Keys: bson.D{{Key: "appliedAt", Value: 1}, {Key: "createdAt", Value: 1}}},
			},
		},
	}

	for _, idx := range indexes {
		if _, err := s.db.Collection(idx.collection).Indexes().CreateMany(ctx, idx.models); err != nil {
			s.log.Warn(ctx, "failed to create indexes", logger.String("collection", idx.collection), logger.Error(err))
		}
	}
	s.log.Debug(ctx, "database indexes ensured")
}

// Backend implements repository.Store.
func (s *Store) Backend() string { return backendName }

// Close implements repository.Store.
func (s *Store) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

// Drop removes the database. Used by tests and tooling.
func (s *Store) Drop(ctx context.Context) error {
	return s.db.Drop(ctx)
}

func (s *Store) coll(name string) *mongo.Collection { return s.db.Collection(name) }

func (s *Store) observe(op string, start time.Time, err *error) {
	metrics.RecordStoreLatency(backendName, op, metrics.Since(start))
	if err != nil && *err != nil {
		metrics.RecordStoreError(backendName, op)
	}
}
