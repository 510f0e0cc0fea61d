package service

import (
	"time"

	"github.com/okian/duel/internal/adapters/repository"
	"github.com/okian/duel/internal/config"
	"github.com/okian/duel/pkg/logger"
)

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithConfig copies every setting of cfg onto the service.
func WithConfig(cfg *config.Config) Option {
	return func(s *Service) {
		if cfg == nil {
			return
		}
		s.backend = cfg.Store
		s.sqlDSN = cfg.SQLDSN
		s.mongoURI = cfg.MongoURI
		s.mongoDatabase = cfg.MongoDatabase
		s.seedFile = cfg.SeedFile
		s.kFactor = cfg.KFactor
		s.baseline = cfg.BaselineRating
		s.candidateCap = cfg.CandidateCap
		s.maxExclude = cfg.MaxExclude
		s.maxAttempts = cfg.VoteMaxAttempts
		s.backoffBase = cfg.VoteBackoffBase
		s.backoffMax = cfg.VoteBackoffMax
		s.fanout = cfg.SegmentFanout
		s.leaderboardMax = cfg.LeaderboardMaxLimit
		s.graphMin = cfg.GraphMinComparisons
		s.graphThreshold = cfg.GraphThreshold
		s.queueSize = cfg.ReplayQueueSize
		s.workerCount = cfg.ReplayWorkers
		s.replayInterval = cfg.ReplayInterval
		s.replayGrace = cfg.ReplayGrace
		s.dedupeSize = cfg.DedupeSize
	}
}

// WithStore uses an already opened store. The service does not close it.
func WithStore(store repository.Store) Option {
	return func(s *Service) {
		if store != nil {
			s.store = store
		}
	}
}

// WithBackend selects the store the service opens on Start.
func WithBackend(kind, dsn string) Option {
	return func(s *Service) {
		s.backend = kind
		s.sqlDSN = dsn
	}
}

// WithMongo sets the MongoDB connection used by the mongo backend.
func WithMongo(uri, database string) Option {
	return func(s *Service) {
		s.mongoURI = uri
		s.mongoDatabase = database
	}
}

// WithSeedFile loads entities and group pools from a YAML file on Start.
func WithSeedFile(path string) Option {
	return func(s *Service) { s.seedFile = path }
}

// WithSegmentFanout toggles applying "all" votes to shared segments.
func WithSegmentFanout(enabled bool) Option {
	return func(s *Service) { s.fanout = enabled }
}

// WithRetry sets the optimistic write retry budget.
func WithRetry(attempts int, base, maxDelay time.Duration) Option {
	return func(s *Service) {
		if attempts > 0 {
			s.maxAttempts = attempts
		}
		if base > 0 && maxDelay >= base {
			s.backoffBase = base
			s.backoffMax = maxDelay
		}
	}
}

// WithWorkerCount sets the number of replay workers.
func WithWorkerCount(count int) Option {
	return func(s *Service) {
		if count > 0 {
			s.workerCount = count
		}
	}
}

// WithQueueSize sets the capacity of the replay queue.
func WithQueueSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.queueSize = size
		}
	}
}

// WithReplaySchedule sets how often the vote log is swept and how old a
// pending vote must be before it is replayed.
func WithReplaySchedule(interval, grace time.Duration) Option {
	return func(s *Service) {
		if interval > 0 {
			s.replayInterval = interval
		}
		if grace >= 0 {
			s.replayGrace = grace
		}
	}
}

// WithPublisher receives every applied vote.
func WithPublisher(p Publisher) Option {
	return func(s *Service) { s.publisher = p }
}

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}
