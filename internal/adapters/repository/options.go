package repository

import (
	"math"

	"github.com/okian/duel/pkg/logger"
)

// Settings holds the options shared by every backend.
type Settings struct {
	Baseline float64
	Logger   logger.Logger
}

// Option applies a configuration option to a backend.
type Option func(*Settings)

// WithBaseline sets the rating of unseen entities.
func WithBaseline(baseline float64) Option {
	return func(s *Settings) {
		if !math.IsNaN(baseline) && !math.IsInf(baseline, 0) {
			s.Baseline = baseline
		}
	}
}

// WithLogger sets the backend logger.
func WithLogger(l logger.Logger) Option {
	return func(s *Settings) {
		if l != nil {
			s.Logger = l
		}
	}
}

// ApplyOptions resolves options over the defaults.
func ApplyOptions(opts ...Option) Settings {
	s := Settings{Baseline: DefaultBaseline, Logger: logger.Nop()}
	for _, opt := range opts {
		opt(&s)
	}
	return s
}
