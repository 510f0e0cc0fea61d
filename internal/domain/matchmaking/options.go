package matchmaking

import "github.com/okian/duel/pkg/logger"

// Option applies a configuration option to the Matchmaker.
type Option func(*Matchmaker)

// WithCandidateCap bounds the candidate pool read per request.
func WithCandidateCap(n int) Option {
	return func(m *Matchmaker) {
		if n >= 2 {
			m.candidateCap = n
		}
	}
}

// WithMaxExclude bounds how many recently seen ids a request may exclude.
func WithMaxExclude(n int) Option {
	return func(m *Matchmaker) {
		if n >= 0 {
			m.maxExclude = n
		}
	}
}

// WithSource replaces the random source. The source must be safe for
// concurrent use if the Matchmaker is shared.
func WithSource(src Source) Option {
	return func(m *Matchmaker) {
		if src != nil {
			m.rng = src
		}
	}
}

// WithLogger sets the matchmaker logger.
func WithLogger(l logger.Logger) Option {
	return func(m *Matchmaker) {
		if l != nil {
			m.log = l
		}
	}
}
