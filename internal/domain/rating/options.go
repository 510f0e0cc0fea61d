package rating

// Option applies a configuration option to the Calculator.
type Option func(*Calculator)

// WithKFactor sets the K-factor applied to every update.
func WithKFactor(k float64) Option {
	return func(c *Calculator) {
		if k > 0 {
			c.k = k
		}
	}
}

// WithBaseline sets the rating given to entities that have never been voted on.
func WithBaseline(baseline float64) Option {
	return func(c *Calculator) {
		c.baseline = baseline
	}
}
