package service

import "errors"

// Sentinel kinds for service errors.
var (
	ErrNotStarted     = errors.New("service not started")
	ErrUnsafeWindow   = errors.New("unsafe window requested")
	ErrEmptySelection = errors.New("no events selected")
	ErrInvalidWeek    = errors.New("invalid week index")
)
