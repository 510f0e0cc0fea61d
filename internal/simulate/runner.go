package simulate

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/okian/duel/internal/domain/types"
	"github.com/okian/duel/pkg/logger"
)

type voteBody struct {
	Context   string `json:"context,omitempty"`
	GroupID   string `json:"group_id,omitempty"`
	Segment   string `json:"segment,omitempty"`
	LeftID    string `json:"left_id"`
	RightID   string `json:"right_id"`
	WinnerID  string `json:"winner_id,omitempty"`
	Skipped   bool   `json:"skipped,omitempty"`
	SessionID string `json:"session_id"`
	VoteID    string `json:"vote_id"`
}

type counters struct {
	matchups, recorded, skipped, duplicates, conflicts, failed, mismatches atomic.Int64
}

// Run executes a simulation against cfg.BaseURL.
func Run(ctx context.Context, cfg Config, log logger.Logger) (*Stats, error) {
	cfg = cfg.withDefaults()
	if log == nil {
		log = logger.Nop()
	}
	start := time.Now()
	c := newClient(cfg.BaseURL, cfg.Token, cfg.Timeout)

	log.Info(ctx, "starting simulation",
		logger.String("baseURL", cfg.BaseURL),
		logger.Int("votes", cfg.Votes),
		logger.Int("workers", cfg.Workers))

	if err := c.get(ctx, "/healthz", nil, nil); err != nil {
		return nil, fmt.Errorf("service health check failed: %w", err)
	}

	var (
		cnt      counters
		wg       sync.WaitGroup
		fatalMu  sync.Mutex
		fatalErr error
	)
	jobs := make(chan int, cfg.Workers*2)
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	for w := 0; w < cfg.Workers; w++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			rng := rand.New(rand.NewPCG(cfg.Seed, uint64(worker)+1))
			session := uuid.NewString()
			for range jobs {
				if err := castOne(runCtx, c, &cfg, rng, session, &cnt); err != nil {
					fatalMu.Lock()
					if fatalErr == nil {
						fatalErr = err
						cancel()
					}
					fatalMu.Unlock()
				}
			}
		}(w)
	}

	lastReport := time.Now()
feed:
	for i := 0; i < cfg.Votes; i++ {
		select {
		case jobs <- i:
		case <-runCtx.Done():
			break feed
		}
		if time.Since(lastReport) > time.Second {
			lastReport = time.Now()
			log.Info(ctx, "progress", logger.Int("sent", i+1), logger.Int64("recorded", cnt.recorded.Load()))
		}
	}
	close(jobs)
	wg.Wait()
	if fatalErr != nil {
		return nil, fatalErr
	}

	board, err := leaderboard(ctx, c, &cfg)
	if err != nil {
		return nil, err
	}
	ids := make([]string, len(board))
	for i, e := range board {
		ids[i] = e.Entity.ID
	}

	stats := &Stats{
		Matchups:            cnt.matchups.Load(),
		Recorded:            cnt.recorded.Load(),
		Skipped:             cnt.skipped.Load(),
		Duplicates:          cnt.duplicates.Load(),
		Conflicts:           cnt.conflicts.Load(),
		Failed:              cnt.failed.Load(),
		DuplicateMismatches: cnt.mismatches.Load(),
		LeaderboardEntries:  len(board),
		Concordance:         Concordance(ids, cfg.strength),
		Duration:            time.Since(start),
	}
	log.Info(ctx, "simulation finished",
		logger.Int64("matchups", stats.Matchups),
		logger.Int64("recorded", stats.Recorded),
		logger.Int64("skipped", stats.Skipped),
		logger.Int64("duplicates", stats.Duplicates),
		logger.Int64("conflicts", stats.Conflicts),
		logger.Int64("failed", stats.Failed),
		logger.Int("leaderboardEntries", stats.LeaderboardEntries),
		logger.Float64("concordance", stats.Concordance),
		logger.Duration("duration", stats.Duration))

	if stats.DuplicateMismatches > 0 {
		return stats, fmt.Errorf("%d resubmitted votes were not reported as duplicates: %w", stats.DuplicateMismatches, ErrVerification)
	}
	return stats, nil
}

func scopeQuery(cfg *Config) url.Values {
	q := url.Values{}
	if cfg.Context != "" {
		q.Set("context", cfg.Context)
	}
	if cfg.GroupID != "" {
		q.Set("group_id", cfg.GroupID)
	}
	if cfg.Segment != "" {
		q.Set("segment", cfg.Segment)
	}
	return q
}

// castOne fetches a matchup and votes on it. Only errors that make further
// votes pointless are returned.
func castOne(ctx context.Context, c *client, cfg *Config, rng *rand.Rand, session string, cnt *counters) error {
	var m types.Matchup
	if err := c.get(ctx, "/v1/matchup", scopeQuery(cfg), &m); err != nil {
		var apiErr *apiError
		if errors.As(err, &apiErr) && apiErr.Status == http.StatusConflict {
			return fmt.Errorf("matchup: %w", err)
		}
		if ctx.Err() == nil {
			cnt.failed.Add(1)
		}
		return nil
	}
	cnt.matchups.Add(1)

	body := voteBody{
		Context:   cfg.Context,
		GroupID:   cfg.GroupID,
		Segment:   cfg.Segment,
		LeftID:    m.Left.ID,
		RightID:   m.Right.ID,
		SessionID: session,
		VoteID:    uuid.NewString(),
	}
	switch {
	case rng.Float64() < cfg.SkipRate:
		body.Skipped = true
	case rng.Float64() < WinProbability(cfg.strength(m.Left.ID), cfg.strength(m.Right.ID)):
		body.WinnerID = m.Left.ID
	default:
		body.WinnerID = m.Right.ID
	}

	var res types.VoteResult
	if err := c.post(ctx, "/v1/votes", body, &res); err != nil {
		var apiErr *apiError
		switch {
		case errors.As(err, &apiErr) && apiErr.Status == http.StatusServiceUnavailable:
			cnt.conflicts.Add(1)
		case ctx.Err() == nil:
			cnt.failed.Add(1)
		}
		return nil
	}
	if body.Skipped {
		cnt.skipped.Add(1)
	} else {
		cnt.recorded.Add(1)
	}

	if rng.Float64() < cfg.DuplicateRate {
		var again types.VoteResult
		if err := c.post(ctx, "/v1/votes", body, &again); err != nil {
			cnt.failed.Add(1)
			return nil
		}
		cnt.duplicates.Add(1)
		if !again.Duplicate {
			cnt.mismatches.Add(1)
		}
	}
	return nil
}

func leaderboard(ctx context.Context, c *client, cfg *Config) ([]types.LeaderboardEntry, error) {
	q := scopeQuery(cfg)
	q.Set("limit", strconv.Itoa(cfg.Top))
	var board []types.LeaderboardEntry
	if err := c.get(ctx, "/v1/leaderboard", q, &board); err != nil {
		return nil, fmt.Errorf("leaderboard: %w", err)
	}
	return board, nil
}
