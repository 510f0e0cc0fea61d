package repository

import (
	"fmt"
	"math"

	"github.com/okian/duel/internal/domain/model"
)

// CheckRating rejects a mutation that would break the rating record invariants.
func CheckRating(prev, next model.Rating) error {
	switch {
	case math.IsNaN(next.Rating) || math.IsInf(next.Rating, 0):
		return fmt.Errorf("rating %v: %w", next.Rating, ErrInvalidRecord)
	case next.Wins < 0 || next.Losses < 0 || next.Comparisons < 0:
		return fmt.Errorf("negative counters: %w", ErrInvalidRecord)
	case next.Comparisons < prev.Comparisons:
		return fmt.Errorf("comparisons decreased from %d to %d: %w", prev.Comparisons, next.Comparisons, ErrInvalidRecord)
	case next.Wins+next.Losses > next.Comparisons:
		return fmt.Errorf("wins+losses exceed comparisons: %w", ErrInvalidRecord)
	}
	return nil
}

// CheckPair rejects a mutation that would break the pairwise conservation rule.
func CheckPair(prev, next model.Pair) error {
	switch {
	case next.AWins < 0 || next.BWins < 0:
		return fmt.Errorf("negative wins: %w", ErrInvalidRecord)
	case next.AWins+next.BWins != next.Comparisons:
		return fmt.Errorf("a_wins %d + b_wins %d != comparisons %d: %w", next.AWins, next.BWins, next.Comparisons, ErrInvalidRecord)
	case next.Comparisons < prev.Comparisons:
		return fmt.Errorf("comparisons decreased: %w", ErrInvalidRecord)
	case next.EntityA != prev.EntityA || next.EntityB != prev.EntityB:
		return fmt.Errorf("pair identity changed: %w", ErrInvalidRecord)
	}
	return nil
}

// PrepareRating stamps identity, version and time on a mutated record.
func PrepareRating(scope model.Scope, entityID string, prev, next model.Rating) (model.Rating, error) {
	next.Scope = scope
	next.EntityID = entityID
	if err := CheckRating(prev, next); err != nil {
		return model.Rating{}, err
	}
	next.Version = prev.Version + 1
	next.UpdatedAt = Now()
	return next, nil
}

// PreparePair stamps identity, version and time on a mutated pair record.
func PreparePair(scope model.Scope, prev, next model.Pair) (model.Pair, error) {
	next.Scope = scope
	if err := CheckPair(prev, next); err != nil {
		return model.Pair{}, err
	}
	next.Version = prev.Version + 1
	next.UpdatedAt = Now()
	return next, nil
}
