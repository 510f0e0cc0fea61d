package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/okian/duel/internal/domain/model"
	"github.com/okian/duel/pkg/logger"
)

// Sweeper defaults.
const (
	defaultSweepInterval = 30 * time.Second
	defaultSweepGrace    = 10 * time.Second
	defaultSweepBatch    = 500
)

// PendingSource lists logged votes whose aggregates were never applied.
type PendingSource interface {
	PendingVotes(ctx context.Context, olderThan time.Time, limit int) ([]model.Vote, error)
}

// Sink accepts votes for replay.
type Sink interface {
	Enqueue(ctx context.Context, e Event) bool
}

// Sweeper periodically moves stale pending votes onto the replay queue. It
// recovers votes whose process died between logging and applying them.
type Sweeper struct {
	source   PendingSource
	sink     Sink
	interval time.Duration
	grace    time.Duration
	batch    int
	now      func() time.Time
	logger   logger.Logger
}

// SweeperOption applies a configuration option to the Sweeper.
type SweeperOption func(*Sweeper)

// WithInterval sets how often the log is swept.
func WithInterval(d time.Duration) SweeperOption {
	return func(s *Sweeper) {
		if d > 0 {
			s.interval = d
		}
	}
}

// WithGrace sets how old a pending vote must be before the sweeper takes it,
// leaving in-progress votes to their ingestor.
func WithGrace(d time.Duration) SweeperOption {
	return func(s *Sweeper) {
		if d >= 0 {
			s.grace = d
		}
	}
}

// WithBatch bounds the votes taken per sweep.
func WithBatch(n int) SweeperOption {
	return func(s *Sweeper) {
		if n > 0 {
			s.batch = n
		}
	}
}

// WithSweeperLogger sets the sweeper logger.
func WithSweeperLogger(l logger.Logger) SweeperOption {
	return func(s *Sweeper) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithClock replaces the wall clock.
func WithClock(now func() time.Time) SweeperOption {
	return func(s *Sweeper) {
		if now != nil {
			s.now = now
		}
	}
}

// NewSweeper creates a sweeper that reads source and feeds sink.
func NewSweeper(source PendingSource, sink Sink, opts ...SweeperOption) *Sweeper {
	s := &Sweeper{
		source:   source,
		sink:     sink,
		interval: defaultSweepInterval,
		grace:    defaultSweepGrace,
		batch:    defaultSweepBatch,
		now:      time.Now,
		logger:   logger.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run sweeps on every tick until ctx is canceled.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n, err := s.SweepOnce(ctx); err != nil {
				s.logger.Error(ctx, "sweep failed", logger.Error(err))
			} else if n > 0 {
				s.logger.Info(ctx, "pending votes queued for replay", logger.Int("count", n))
			}
		}
	}
}

// SweepOnce queues one batch of stale pending votes and returns how many were accepted.
func (s *Sweeper) SweepOnce(ctx context.Context) (int, error) {
	votes, err := s.source.PendingVotes(ctx, s.now().Add(-s.grace), s.batch)
	if err != nil {
		return 0, fmt.Errorf("pending votes: %w", err)
	}
	queued := 0
	for _, v := range votes {
		if !s.sink.Enqueue(ctx, v) {
			s.logger.Warn(ctx, "replay queue full; stopping sweep", logger.Int("queued", queued))
			break
		}
		queued++
	}
	return queued, nil
}
