package repository

import "errors"

// Sentinel kinds for storage errors.
var (
	ErrNotFound     = errors.New("record not found")
	ErrConflict     = errors.New("record already exists")
	ErrStaleState   = errors.New("stale state: conditional update did not affect exactly one row")
	ErrInvalidInput = errors.New("invalid storage input")
	ErrNotOpen      = errors.New("storage is not open")
)
