package lifecycle

import "errors"

// ErrIllegalTransition is returned for any state change outside the transition tables.
var ErrIllegalTransition = errors.New("illegal state transition")
