// Package config defines service configuration and how it is loaded.
//
// Values are layered: defaults from New, then an optional YAML file named by
// DUEL_CONFIG, then DUEL_-prefixed environment variables.
package config

import (
	"context"
	"fmt"
	"runtime"
	"slices"
	"strings"
	"time"
)

// Storage backends.
const (
	StoreMemory   = "memory"
	StoreSQLite   = "sqlite"
	StorePostgres = "postgres"
	StoreMongo    = "mongo"
)

// Stores lists the accepted values of Config.Store.
var Stores = []string{StoreMemory, StoreSQLite, StorePostgres, StoreMongo} //nolint:gochecknoglobals // read-only lookup

// Config contains process configuration.
type Config struct {
	// Addr configures the HTTP listen address, e.g. ":8080".
	Addr string `koanf:"addr"`

	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`
	// LogFormat selects the handler: text or json.
	LogFormat string `koanf:"log_format"`

	// Store selects the storage backend: memory, sqlite, postgres or mongo.
	Store         string `koanf:"store"`
	SQLDSN        string `koanf:"sql_dsn"`
	MongoURI      string `koanf:"mongo_uri"`
	MongoDatabase string `koanf:"mongo_database"`
	// SeedFile is an optional YAML file of entities and group pools loaded at startup.
	SeedFile string `koanf:"seed_file"`

	KFactor        float64 `koanf:"k_factor"`
	BaselineRating float64 `koanf:"baseline_rating"`

	// CandidateCap bounds the candidate pool read per matchup.
	CandidateCap int `koanf:"candidate_cap"`
	// MaxExclude bounds the client exclusion list.
	MaxExclude int `koanf:"max_exclude"`

	VoteMaxAttempts int           `koanf:"vote_max_attempts"`
	VoteBackoffBase time.Duration `koanf:"vote_backoff_base"`
	VoteBackoffMax  time.Duration `koanf:"vote_backoff_max"`
	// SegmentFanout applies an "all" vote to shared category and gender segments too.
	SegmentFanout bool `koanf:"segment_fanout"`

	LeaderboardMaxLimit int     `koanf:"leaderboard_max_limit"`
	GraphMinComparisons int64   `koanf:"graph_min_comparisons"`
	GraphThreshold      float64 `koanf:"graph_threshold"`

	ReplayQueueSize int           `koanf:"replay_queue_size"`
	ReplayWorkers   int           `koanf:"replay_workers"`
	ReplayInterval  time.Duration `koanf:"replay_interval"`
	ReplayGrace     time.Duration `koanf:"replay_grace"`
	DedupeSize      int           `koanf:"dedupe_size"`

	// JWTSecret enables caller resolution. Empty means every caller may vote and view.
	JWTSecret string `koanf:"jwt_secret"`
	// CORSOrigins is a comma separated list of allowed origins.
	CORSOrigins string `koanf:"cors_origins"`

	MetricsEnabled   bool          `koanf:"metrics_enabled"`
	MetricsNamespace string        `koanf:"metrics_namespace"`
	MetricsRefresh   time.Duration `koanf:"metrics_refresh"`
	// MetricsLabels are constant labels as comma separated key=value pairs.
	MetricsLabels string `koanf:"metrics_labels"`
}

// New creates a Config holding the defaults. Context is accepted first to
// follow the project-wide convention.
func New(_ context.Context) *Config {
	return &Config{
		Addr:                ":9080",
		LogLevel:            "info",
		LogFormat:           "text",
		Store:               StoreMemory,
		MongoDatabase:       "duel",
		KFactor:             24,
		BaselineRating:      1000,
		CandidateCap:        100,
		MaxExclude:          50,
		VoteMaxAttempts:     8,
		VoteBackoffBase:     2 * time.Millisecond,
		VoteBackoffMax:      100 * time.Millisecond,
		SegmentFanout:       true,
		LeaderboardMaxLimit: 500,
		GraphMinComparisons: 10,
		GraphThreshold:      0.7,
		ReplayQueueSize:     10_000,
		ReplayWorkers:       runtime.NumCPU(),
		ReplayInterval:      30 * time.Second,
		ReplayGrace:         10 * time.Second,
		DedupeSize:          100_000,
		CORSOrigins:         "*",
		MetricsEnabled:      true,
		MetricsNamespace:    "duel",
		MetricsRefresh:      10 * time.Second,
	}
}

// Origins splits CORSOrigins into trimmed, non-empty entries.
func (c *Config) Origins() []string {
	var out []string
	for _, o := range strings.Split(c.CORSOrigins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			out = append(out, o)
		}
	}
	return out
}

// ConstLabels parses MetricsLabels. Blank entries are skipped.
func (c *Config) ConstLabels() (map[string]string, error) {
	out := map[string]string{}
	for _, kv := range strings.Split(c.MetricsLabels, ",") {
		if kv = strings.TrimSpace(kv); kv == "" {
			continue
		}
		k, v, ok := strings.Cut(kv, "=")
		k, v = strings.TrimSpace(k), strings.TrimSpace(v)
		if !ok || k == "" || v == "" {
			return nil, fmt.Errorf("%w: metrics_labels entry %q is not key=value", ErrInvalidConfig, kv)
		}
		out[k] = v
	}
	return out, nil
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	switch {
	case strings.TrimSpace(c.Addr) == "":
		return fmt.Errorf("%w: addr must not be empty", ErrInvalidConfig)
	case !slices.Contains(Stores, c.Store):
		return fmt.Errorf("%w: unknown store %q", ErrInvalidConfig, c.Store)
	case (c.Store == StoreSQLite || c.Store == StorePostgres) && c.SQLDSN == "":
		return fmt.Errorf("%w: sql_dsn is required for store %s", ErrInvalidConfig, c.Store)
	case c.Store == StoreMongo && (c.MongoURI == "" || c.MongoDatabase == ""):
		return fmt.Errorf("%w: mongo_uri and mongo_database are required for store mongo", ErrInvalidConfig)
	case c.KFactor <= 0:
		return fmt.Errorf("%w: k_factor must be positive", ErrInvalidConfig)
	case c.CandidateCap < 2:
		return fmt.Errorf("%w: candidate_cap must be at least 2", ErrInvalidConfig)
	case c.MaxExclude < 0:
		return fmt.Errorf("%w: max_exclude must not be negative", ErrInvalidConfig)
	case c.VoteMaxAttempts < 1:
		return fmt.Errorf("%w: vote_max_attempts must be positive", ErrInvalidConfig)
	case c.VoteBackoffBase <= 0 || c.VoteBackoffMax < c.VoteBackoffBase:
		return fmt.Errorf("%w: vote backoff must satisfy 0 < base <= max", ErrInvalidConfig)
	case c.LeaderboardMaxLimit < 1:
		return fmt.Errorf("%w: leaderboard_max_limit must be positive", ErrInvalidConfig)
	case c.GraphMinComparisons < 1:
		return fmt.Errorf("%w: graph_min_comparisons must be positive", ErrInvalidConfig)
	case c.GraphThreshold <= 0 || c.GraphThreshold > 1:
		return fmt.Errorf("%w: graph_threshold must be in (0,1]", ErrInvalidConfig)
	case c.ReplayQueueSize < 1:
		return fmt.Errorf("%w: replay_queue_size must be positive", ErrInvalidConfig)
	case c.ReplayInterval <= 0:
		return fmt.Errorf("%w: replay_interval must be positive", ErrInvalidConfig)
	case c.DedupeSize < 1:
		return fmt.Errorf("%w: dedupe_size must be positive", ErrInvalidConfig)
	case c.MetricsRefresh <= 0:
		return fmt.Errorf("%w: metrics_refresh must be positive", ErrInvalidConfig)
	}
	_, err := c.ConstLabels()
	return err
}
