package api

import (
	"time"

	"github.com/okian/feedrank/pkg/logger"
)

const (
	defaultMaxFeedItems     = 500
	defaultMaxTrendingLimit = 100
	defaultTrendingLimit    = 10
	defaultEventsRate       = 50
	defaultEventsBurst      = 100
	maxBodyBytes            = 1 << 20
	limiterIdleTTL          = 10 * time.Minute
)

// Option configures the Server.
type Option func(*Server)

// WithLogger sets the handler logger.
func WithLogger(l logger.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.log = l
		}
	}
}

// WithMaxFeedItems caps the number of items in one ranking request.
func WithMaxFeedItems(n int) Option {
	return func(s *Server) {
		if n > 0 {
			s.maxFeedItems = n
		}
	}
}

// WithMaxTrendingLimit caps the limit accepted by GET /trending.
func WithMaxTrendingLimit(n int) Option {
	return func(s *Server) {
		if n > 0 {
			s.maxTrendingLimit = n
		}
	}
}

// WithEventsRateLimit sets the per-user rate and burst for POST /events. A
// zero rate disables limiting.
func WithEventsRateLimit(perSecond float64, burst int) Option {
	return func(s *Server) {
		if perSecond >= 0 && burst >= 0 {
			s.eventsRate = perSecond
			s.eventsBurst = burst
		}
	}
}
