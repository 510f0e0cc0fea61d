package standings

import "errors"

// Sentinel error kinds for this package.
var (
	ErrInvalidQuery  = errors.New("invalid query")
	ErrUnknownEntity = errors.New("unknown entity")
)
