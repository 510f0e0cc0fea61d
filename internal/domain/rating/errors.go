package rating

import "errors"

// Sentinel error kinds for this package.
var (
	ErrInvalidKFactor = errors.New("k-factor must be positive and finite")
	ErrInvalidRating  = errors.New("rating must be finite")
)
