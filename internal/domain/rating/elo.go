// Package rating implements the Elo update used to turn votes into ratings.
package rating

import (
	"fmt"
	"math"
)

// Default Elo parameters.
const (
	DefaultKFactor  = 24
	DefaultBaseline = 1000
	eloScale        = 400
)

// Delta is the simultaneous rating change produced by one decided vote.
type Delta struct {
	Left  float64
	Right float64
	// ExpectedLeft is the left side's expected score before the vote.
	ExpectedLeft float64
}

// Calculator computes Elo updates with a fixed K-factor.
type Calculator struct {
	k        float64
	baseline float64
}

// NewCalculator creates a calculator with K=24 and baseline 1000 unless overridden.
func NewCalculator(opts ...Option) *Calculator {
	c := &Calculator{
		k:        DefaultKFactor,
		baseline: DefaultBaseline,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// KFactor returns the configured K-factor.
func (c *Calculator) KFactor() float64 { return c.k }

// Baseline returns the rating of an unseen entity.
func (c *Calculator) Baseline() float64 { return c.baseline }

// Expected returns the expected score of a player rated r against an opponent rated opp.
func Expected(r, opp float64) float64 {
	return 1 / (1 + math.Pow(10, (opp-r)/eloScale))
}

// Update computes both rating changes from the ratings as they stood before the vote.
// The two deltas always sum to zero.
func (c *Calculator) Update(left, right float64, leftWon bool) (Delta, error) {
	if math.IsNaN(left) || math.IsInf(left, 0) || math.IsNaN(right) || math.IsInf(right, 0) {
		return Delta{}, fmt.Errorf("left=%v right=%v: %w", left, right, ErrInvalidRating)
	}
	if c.k <= 0 || math.IsInf(c.k, 0) || math.IsNaN(c.k) {
		return Delta{}, ErrInvalidKFactor
	}

	expected := Expected(left, right)
	actual := 0.0
	if leftWon {
		actual = 1
	}
	d := c.k * (actual - expected)
	return Delta{Left: d, Right: -d, ExpectedLeft: expected}, nil
}
