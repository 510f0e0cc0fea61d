package scope

import "errors"

// Sentinel error kinds for this package.
var (
	ErrInvalidScope  = errors.New("invalid scope")
	ErrInvalidFilter = errors.New("invalid filter")
)
