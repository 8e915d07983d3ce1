package tracker

import "errors"

// Reasons an interaction is dropped before it reaches the store.
var (
	ErrGuest       = errors.New("interaction without user")
	ErrInvalidItem = errors.New("interaction without item")
)
