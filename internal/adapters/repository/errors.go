package repository

import "errors"

// Sentinel kinds for storage errors.
var (
	ErrNotFound       = errors.New("not found")
	ErrInvalidLimit   = errors.New("invalid limit")
	ErrConflict       = errors.New("version conflict")
	ErrDuplicateVote  = errors.New("duplicate vote")
	ErrInvalidRecord  = errors.New("invalid record")
	ErrUnknownBackend = errors.New("unknown storage backend")
	ErrClosed         = errors.New("store closed")
)
