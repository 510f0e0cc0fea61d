// Package service wires storage, matchmaking, vote ingestion, standings and
// the replay pipeline into the single dependency the HTTP API consumes.
package service

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"time"

	eventqueue "github.com/okian/duel/internal/adapters/mq/queue"
	workerpool "github.com/okian/duel/internal/adapters/mq/worker"
	"github.com/okian/duel/internal/adapters/repository"
	"github.com/okian/duel/internal/adapters/repository/memory"
	"github.com/okian/duel/internal/adapters/repository/mongostore"
	"github.com/okian/duel/internal/adapters/repository/sqlstore"
	"github.com/okian/duel/internal/config"
	"github.com/okian/duel/internal/domain/dedupe"
	"github.com/okian/duel/internal/domain/ingest"
	"github.com/okian/duel/internal/domain/matchmaking"
	"github.com/okian/duel/internal/domain/model"
	"github.com/okian/duel/internal/domain/rating"
	"github.com/okian/duel/internal/domain/scope"
	"github.com/okian/duel/internal/domain/standings"
	"github.com/okian/duel/internal/domain/types"
	"github.com/okian/duel/pkg/logger"
	"github.com/okian/duel/pkg/metrics"
)

// Publisher receives applied votes, e.g. the live feed hub.
type Publisher interface {
	Publish(ctx context.Context, e types.FeedEvent)
}

// replayAdapter adapts the ingestor to worker.Replayer.
type replayAdapter struct {
	ingestor *ingest.Ingestor
}

func (a *replayAdapter) Replay(ctx context.Context, v model.Vote) error {
	_, err := a.ingestor.Replay(ctx, v)
	return err
}

// Service implements the API dependencies of the voting engine.
type Service struct {
	mu sync.RWMutex

	// Core components
	store      repository.Store
	ownsStore  bool
	matchmaker *matchmaking.Matchmaker
	ingestor   *ingest.Ingestor
	deriver    *standings.Deriver
	deduper    dedupe.Deduper
	replayQ    *eventqueue.InMemoryQueue
	workerPool *workerpool.Pool
	sweeper    *workerpool.Sweeper
	publisher  Publisher

	// Storage
	backend       string
	sqlDSN        string
	mongoURI      string
	mongoDatabase string
	seedFile      string

	// Engine configuration
	kFactor        float64
	baseline       float64
	candidateCap   int
	maxExclude     int
	maxAttempts    int
	backoffBase    time.Duration
	backoffMax     time.Duration
	fanout         bool
	leaderboardMax int
	graphMin       int64
	graphThreshold float64

	// Replay pipeline
	queueSize      int
	workerCount    int
	replayInterval time.Duration
	replayGrace    time.Duration
	dedupeSize     int

	// State
	started     bool
	stopSweeper context.CancelFunc
	sweeperDone chan struct{}

	logger logger.Logger
}

// New constructs a Service with default configuration.
func New(opts ...Option) *Service {
	s := &Service{
		backend:        config.StoreMemory,
		kFactor:        rating.DefaultKFactor,
		baseline:       repository.DefaultBaseline,
		candidateCap:   matchmaking.DefaultCandidateCap,
		maxExclude:     matchmaking.DefaultMaxExclude,
		maxAttempts:    ingest.DefaultMaxAttempts,
		backoffBase:    ingest.DefaultBackoffBase,
		backoffMax:     ingest.DefaultBackoffMax,
		fanout:         true,
		leaderboardMax: standings.DefaultMaxLimit,
		graphMin:       standings.DefaultMinComparisons,
		graphThreshold: standings.DefaultThreshold,
		queueSize:      10_000,
		workerCount:    runtime.NumCPU(),
		replayInterval: 30 * time.Second,
		replayGrace:    10 * time.Second,
		dedupeSize:     100_000,
		logger:         logger.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start opens storage and starts the replay pipeline.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}
	s.logger.Info(ctx, "starting duel service...", logger.String("store", s.backend))

	if s.store == nil {
		store, err := s.openStore(ctx)
		if err != nil {
			return err
		}
		s.store = store
		s.ownsStore = true
	}
	if s.seedFile != "" {
		if err := s.seed(ctx); err != nil {
			s.closeStore(ctx)
			return err
		}
	}

	s.deduper = dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(s.dedupeSize))
	s.replayQ = eventqueue.NewInMemoryQueue(
		eventqueue.WithCapacity(s.queueSize),
		eventqueue.WithDeduper(s.deduper),
	)
	s.matchmaker = matchmaking.New(s.store, s.store,
		matchmaking.WithCandidateCap(s.candidateCap),
		matchmaking.WithMaxExclude(s.maxExclude),
		matchmaking.WithLogger(s.logger.Named("matchmaker")),
	)
	s.ingestor = ingest.New(s.store,
		ingest.WithCalculator(rating.NewCalculator(rating.WithKFactor(s.kFactor), rating.WithBaseline(s.baseline))),
		ingest.WithMaxAttempts(s.maxAttempts),
		ingest.WithBackoff(s.backoffBase, s.backoffMax),
		ingest.WithReplaySink(s.replayQ),
		ingest.WithObserver(s.publish),
		ingest.WithLogger(s.logger.Named("ingest")),
	)
	s.deriver = standings.New(s.store,
		standings.WithMaxLimit(s.leaderboardMax),
		standings.WithGraphDefaults(s.graphMin, s.graphThreshold),
		standings.WithLogger(s.logger.Named("standings")),
	)

	// Background work outlives the start request.
	bg := context.WithoutCancel(ctx)
	s.workerPool = workerpool.NewPool(s.workerCount, s.replayQ, &replayAdapter{ingestor: s.ingestor},
		workerpool.WithLogger(s.logger))
	s.workerPool.Start(bg)

	s.sweeper = workerpool.NewSweeper(s.store, s.replayQ,
		workerpool.WithInterval(s.replayInterval),
		workerpool.WithGrace(s.replayGrace),
		workerpool.WithSweeperLogger(s.logger.Named("sweeper")),
	)
	sweepCtx, cancel := context.WithCancel(bg)
	s.stopSweeper = cancel
	s.sweeperDone = make(chan struct{})
	go func() {
		defer close(s.sweeperDone)
		s.sweeper.Run(sweepCtx)
	}()

	s.started = true
	s.logger.Info(ctx, "duel service started",
		logger.String("store", s.store.Backend()),
		logger.Int("workers", s.workerPool.Size()),
		logger.Int("queueSize", s.queueSize),
		logger.Bool("segmentFanout", s.fanout),
	)
	return nil
}

// Stop drains the replay pipeline and closes storage the service opened.
func (s *Service) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return nil
	}
	s.logger.Info(ctx, "stopping duel service...")

	s.stopSweeper()
	<-s.sweeperDone

	var firstErr error
	if err := s.workerPool.Shutdown(ctx); err != nil {
		firstErr = err
	}
	s.closeStore(ctx)

	s.started = false
	s.logger.Info(ctx, "duel service stopped")
	return firstErr
}

func (s *Service) openStore(ctx context.Context) (repository.Store, error) {
	opts := []repository.Option{
		repository.WithBaseline(s.baseline),
		repository.WithLogger(s.logger.Named("store")),
	}
	switch s.backend {
	case config.StoreMemory, "":
		return memory.New(opts...), nil
	case config.StoreSQLite:
		return sqlstore.Open(ctx, sqlstore.DriverSQLite, s.sqlDSN, opts...)
	case config.StorePostgres:
		return sqlstore.Open(ctx, sqlstore.DriverPostgres, s.sqlDSN, opts...)
	case config.StoreMongo:
		return mongostore.Open(ctx, s.mongoURI, s.mongoDatabase, opts...)
	default:
		return nil, fmt.Errorf("store %q: %w", s.backend, repository.ErrUnknownBackend)
	}
}

func (s *Service) seed(ctx context.Context) error {
	sd, err := repository.LoadSeed(s.seedFile)
	if err != nil {
		return err
	}
	n, err := repository.ApplySeed(ctx, s.store, sd)
	if err != nil {
		return fmt.Errorf("apply seed: %w", err)
	}
	s.logger.Info(ctx, "seed loaded", logger.String("file", s.seedFile),
		logger.Int("entities", n), logger.Int("groups", len(sd.Groups)))
	return nil
}

func (s *Service) closeStore(ctx context.Context) {
	if !s.ownsStore || s.store == nil {
		return
	}
	if err := s.store.Close(ctx); err != nil {
		s.logger.Error(ctx, "error closing store", logger.Error(err))
	}
	s.store = nil
	s.ownsStore = false
}

func (s *Service) ready() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.started {
		return ErrNotStarted
	}
	return nil
}

// Matchup selects the next pair to vote on.
func (s *Service) Matchup(ctx context.Context, sc model.Scope, f model.Filters, exclude []string) (types.Matchup, error) {
	if err := s.ready(); err != nil {
		return types.Matchup{}, err
	}
	return s.matchmaker.SelectMatchup(ctx, sc, f, exclude)
}

// Vote records a vote and applies it. A decided vote cast in the "all" segment
// also counts toward the category and gender segments both sides share.
func (s *Service) Vote(ctx context.Context, req ingest.VoteRequest) (types.VoteResult, error) {
	if err := s.ready(); err != nil {
		return types.VoteResult{}, err
	}
	res, err := s.ingestor.ApplyVote(ctx, req)
	if err != nil {
		return types.VoteResult{}, err
	}
	if s.fanout && !res.Vote.Skipped {
		s.fanOut(context.WithoutCancel(ctx), res.Vote)
	}

	out := types.VoteResult{
		VoteID:      res.Vote.ID,
		Result:      types.ResultRecorded,
		LeftRating:  res.Left.Rating,
		RightRating: res.Right.Rating,
		Duplicate:   res.Duplicate,
	}
	if res.Vote.Skipped {
		out.Result = types.ResultSkipped
	}
	return out, nil
}

// AcknowledgeGuest answers a vote from a caller who may not vote. Nothing is recorded.
func (s *Service) AcknowledgeGuest(ctx context.Context, req ingest.VoteRequest) types.VoteResult {
	metrics.RecordVote(string(req.Scope.Context), metrics.OutcomeGuest)
	s.logger.Debug(ctx, "guest vote acknowledged", logger.String("scope", req.Scope.Key()))
	return types.VoteResult{Result: types.ResultGuestVoteAcknowledged}
}

// fanOut applies v to each derived segment scope with a derived vote id, so a
// retried request completes the segments a previous attempt missed.
func (s *Service) fanOut(ctx context.Context, v model.Vote) {
	found, err := s.store.GetEntities(ctx, []string{v.LeftID, v.RightID})
	if err != nil {
		s.logger.Warn(ctx, "segment fan-out skipped", logger.String("vote_id", v.ID), logger.Error(err))
		return
	}
	for _, sc := range scope.FanOut(v.Scope, found[v.LeftID], found[v.RightID]) {
		_, err := s.ingestor.ApplySegmentVote(ctx, v, sc)
		if err != nil {
			s.logger.Warn(ctx, "segment vote failed",
				logger.String("vote_id", v.ID),
				logger.String("segment", sc.Segment),
				logger.Error(err))
		}
	}
}

// publish forwards an applied vote to the publisher.
func (s *Service) publish(res ingest.Result) {
	if s.publisher == nil || !res.Applied {
		return
	}
	winner, loser := res.Left, res.Right
	if res.Vote.WinnerID == res.Vote.RightID {
		winner, loser = res.Right, res.Left
	}
	s.publisher.Publish(context.Background(), types.FeedEvent{
		VoteID:      res.Vote.ID,
		Scope:       res.Vote.Scope.Key(),
		WinnerID:    winner.EntityID,
		LoserID:     loser.EntityID,
		WinnerScore: winner.Rating,
		LoserScore:  loser.Rating,
		At:          res.Vote.CreatedAt,
	})
}

// Leaderboard returns the ranked entities of a scope.
func (s *Service) Leaderboard(ctx context.Context, sc model.Scope, limit int) ([]types.LeaderboardEntry, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	return s.deriver.Leaderboard(ctx, sc, limit)
}

// Graph returns the confident relationship edges of a scope.
func (s *Service) Graph(ctx context.Context, sc model.Scope, q standings.GraphQuery) ([]types.Edge, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	return s.deriver.RelationshipGraph(ctx, sc, q)
}

// HeadToHead returns an entity's record against its most frequent opponents.
func (s *Service) HeadToHead(ctx context.Context, sc model.Scope, entityID string, limit int) (types.HeadToHead, error) {
	if err := s.ready(); err != nil {
		return types.HeadToHead{}, err
	}
	return s.deriver.HeadToHead(ctx, sc, entityID, limit)
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats(ctx context.Context) map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := map[string]any{
		"started":       s.started,
		"store":         s.backend,
		"workerCount":   s.workerCount,
		"queueSize":     s.queueSize,
		"dedupeSize":    s.dedupeSize,
		"segmentFanout": s.fanout,
	}
	if !s.started {
		return stats
	}
	stats["store"] = s.store.Backend()
	stats["queueLength"] = s.replayQ.Len(ctx)
	stats["inFlight"] = s.deduper.Size()
	if n, err := s.store.CountVotes(ctx); err == nil {
		stats["votesLogged"] = n
	} else {
		s.logger.Warn(ctx, "count votes failed", logger.Error(err))
	}
	return stats
}

// SweepPending queues stale pending votes now instead of waiting for the next tick.
func (s *Service) SweepPending(ctx context.Context) (int, error) {
	if err := s.ready(); err != nil {
		return 0, err
	}
	return s.sweeper.SweepOnce(ctx)
}
