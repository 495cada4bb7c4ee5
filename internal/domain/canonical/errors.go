package canonical

import "errors"

// Sentinel kinds for canonicalization errors.
var (
	ErrScopeMismatch = errors.New("raw event outside canonicalization scope")
	ErrOutOfOrder    = errors.New("raw events must be fed in ascending id order")
)
