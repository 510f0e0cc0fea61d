package matchmaking

import "errors"

// Sentinel error kinds for this package.
var (
	// ErrInsufficientPool is returned when a group pool has fewer than two members.
	ErrInsufficientPool = errors.New("insufficient pool")
	// ErrInsufficientCandidates is returned when fewer than two entities pass the filters.
	ErrInsufficientCandidates = errors.New("insufficient candidates")
)
