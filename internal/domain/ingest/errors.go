package ingest

import "errors"

// Sentinel error kinds for this package.
var (
	ErrInvalidVote   = errors.New("invalid vote")
	ErrUnknownEntity = errors.New("unknown entity")
	// ErrConcurrencyConflict means the per-key retries ran out. The vote is
	// logged and will be reapplied by the replay pipeline.
	ErrConcurrencyConflict = errors.New("concurrency conflict")
)
