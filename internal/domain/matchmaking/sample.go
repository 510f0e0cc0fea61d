package matchmaking

import (
	"github.com/okian/duel/internal/domain/model"
)

// Source yields uniform floats in [0, 1). *rand.Rand from math/rand/v2 satisfies it.
type Source interface {
	Float64() float64
}

// Weights returns the draw weight of every pool entry. An entity with c
// comparisons weighs max(1, maxC) - c + 1, so the least compared entity weighs
// the most and the most compared still weighs at least 1.
func Weights(pool []model.Entity, counts map[string]int64) []float64 {
	var maxC int64 = 1
	for _, e := range pool {
		if c := counts[e.ID]; c > maxC {
			maxC = c
		}
	}
	out := make([]float64, len(pool))
	for i, e := range pool {
		out[i] = float64(maxC - counts[e.ID] + 1)
	}
	return out
}

// Sample draws two distinct entities, weighted toward under-sampled ones. The
// pool is not modified. It returns ErrInsufficientCandidates for pools under two.
func Sample(pool []model.Entity, counts map[string]int64, rng Source) (left, right model.Entity, err error) {
	if len(pool) < 2 {
		return model.Entity{}, model.Entity{}, ErrInsufficientCandidates
	}
	weights := Weights(pool, counts)

	li := draw(weights, -1, rng)
	ri := draw(weights, li, rng)
	return pool[li], pool[ri], nil
}

// draw picks an index proportional to weights, never returning skip.
func draw(weights []float64, skip int, rng Source) int {
	total := 0.0
	for i, w := range weights {
		if i != skip {
			total += w
		}
	}
	r := rng.Float64() * total
	last := -1
	for i, w := range weights {
		if i == skip {
			continue
		}
		last = i
		r -= w
		if r <= 0 {
			return i
		}
	}
	// Rounding can leave r marginally above zero after the last weight.
	return last
}
