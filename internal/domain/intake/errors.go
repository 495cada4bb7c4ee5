package intake

import "errors"

// ErrInvalidSelectionSet is returned when a selection set violates its own invariants.
var ErrInvalidSelectionSet = errors.New("invalid selection set")
