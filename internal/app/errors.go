package service

import "errors"

// Sentinel errors returned by the service.
var (
	ErrNotStarted         = errors.New("service not started")
	ErrInvalidInteraction = errors.New("invalid interaction")
	ErrInvalidFeed        = errors.New("invalid feed request")
	ErrUnknownDriver      = errors.New("unknown store driver")
)
