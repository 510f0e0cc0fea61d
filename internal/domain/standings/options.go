package standings

import "github.com/okian/duel/pkg/logger"

// Option applies a configuration option to the Deriver.
type Option func(*Deriver)

// WithMaxLimit caps the leaderboard page size.
func WithMaxLimit(n int) Option {
	return func(d *Deriver) {
		if n > 0 {
			d.maxLimit = n
		}
	}
}

// WithGraphDefaults sets the graph parameters used when a query leaves them zero.
func WithGraphDefaults(minComparisons int64, threshold float64) Option {
	return func(d *Deriver) {
		if minComparisons > 0 {
			d.minComparisons = minComparisons
		}
		if threshold > 0 && threshold <= 1 {
			d.threshold = threshold
		}
	}
}

// WithLogger sets the deriver logger.
func WithLogger(l logger.Logger) Option {
	return func(d *Deriver) {
		if l != nil {
			d.log = l
		}
	}
}
