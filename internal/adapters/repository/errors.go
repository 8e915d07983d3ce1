package repository

import "errors"

// Sentinel errors returned by every Store implementation.
var (
	ErrNotFound      = errors.New("aggregate not found")
	ErrBatchTooLarge = errors.New("batch read exceeds store limit")
	ErrInvalidID     = errors.New("invalid identifier")
	ErrInvalidLimit  = errors.New("invalid limit")
	ErrClosed        = errors.New("store closed")
)
