// Command simulate drives a running duel service with synthetic voters.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"os"
	"runtime"
	"time"

	"github.com/okian/duel/internal/simulate"
	"github.com/okian/duel/pkg/logger"
)

const (
	defaultWorkers = 2 // multiplier for runtime.NumCPU()
	defaultRunTime = 10 * time.Minute
)

func main() {
	var (
		baseURL   = flag.String("url", "http://localhost:9080", "Base URL of the service")
		votes     = flag.Int("votes", simulate.DefaultVotes, "Number of matchups to vote on")
		top       = flag.Int("top", simulate.DefaultTop, "Leaderboard size used for verification")
		workers   = flag.Int("workers", runtime.NumCPU()*defaultWorkers, "Number of concurrent voters")
		timeout   = flag.Duration("timeout", simulate.DefaultTimeout, "HTTP request timeout")
		scopeCtx  = flag.String("context", "", "Scope context: public or game")
		groupID   = flag.String("group", "", "Group id for game scopes")
		segment   = flag.String("segment", "", "Scope segment, e.g. category:sports")
		dupRate   = flag.Float64("duplicates", 0.05, "Share of votes resubmitted with the same id")
		skipRate  = flag.Float64("skips", 0.02, "Share of matchups skipped")
		token     = flag.String("token", "", "Bearer token")
		seed      = flag.Uint64("seed", uint64(time.Now().UnixNano()), "Voter random seed")
		output    = flag.String("output", "", "Write run stats as JSON to this file")
		logFormat = flag.String("log-format", "text", "Log format: text or json")
		verbose   = flag.Bool("verbose", false, "Enable debug logging")
	)
	flag.Parse()

	if err := logger.InitWithFormat(*logFormat, os.Stdout); err != nil {
		os.Stderr.WriteString("Failed to setup logging: " + err.Error() + "\n")
		os.Exit(1)
	}
	if *verbose {
		_ = logger.SetLevelString("debug")
	}
	log := logger.Named("simulate")

	ctx, cancel := context.WithTimeout(context.Background(), defaultRunTime)
	defer cancel()

	stats, err := simulate.Run(ctx, simulate.Config{
		BaseURL:       *baseURL,
		Votes:         *votes,
		Workers:       *workers,
		Timeout:       *timeout,
		Top:           *top,
		Context:       *scopeCtx,
		GroupID:       *groupID,
		Segment:       *segment,
		DuplicateRate: *dupRate,
		SkipRate:      *skipRate,
		Token:         *token,
		Seed:          *seed,
	}, log)
	if stats != nil && *output != "" {
		if data, mErr := json.MarshalIndent(stats, "", "  "); mErr == nil {
			if wErr := os.WriteFile(*output, data, 0o600); wErr != nil {
				log.Error(ctx, "failed to write stats", logger.String("file", *output), logger.Error(wErr))
			}
		}
	}
	if err != nil {
		log.Error(ctx, "simulation failed", logger.Error(err))
		os.Exit(1)
	}
}
