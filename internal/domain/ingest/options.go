package ingest

import (
	"time"

	"github.com/okian/duel/internal/domain/rating"
	"github.com/okian/duel/pkg/logger"
)

// Option applies a configuration option to the Ingestor.
type Option func(*Ingestor)

// WithCalculator sets the Elo calculator.
func WithCalculator(c *rating.Calculator) Option {
	return func(i *Ingestor) {
		if c != nil {
			i.calc = c
		}
	}
}

// WithMaxAttempts bounds the CAS attempts per record.
func WithMaxAttempts(n int) Option {
	return func(i *Ingestor) {
		if n > 0 {
			i.maxAttempts = n
		}
	}
}

// WithBackoff sets the first retry delay and its cap.
func WithBackoff(base, maxDelay time.Duration) Option {
	return func(i *Ingestor) {
		if base > 0 && maxDelay >= base {
			i.backoffBase = base
			i.backoffMax = maxDelay
		}
	}
}

// WithReplaySink sets where votes go when their aggregate update fails.
func WithReplaySink(s ReplaySink) Option {
	return func(i *Ingestor) {
		i.sink = s
	}
}

// WithObserver registers a callback invoked after a vote's aggregates are applied.
func WithObserver(fn func(Result)) Option {
	return func(i *Ingestor) {
		i.observer = fn
	}
}

// WithLogger sets the ingestor logger.
func WithLogger(l logger.Logger) Option {
	return func(i *Ingestor) {
		if l != nil {
			i.log = l
		}
	}
}

// WithClock replaces the wall clock.
func WithClock(now func() time.Time) Option {
	return func(i *Ingestor) {
		if now != nil {
			i.now = now
		}
	}
}
