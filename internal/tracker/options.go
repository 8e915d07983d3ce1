package tracker

import (
	"time"

	"github.com/okian/feedrank/internal/domain/scoring"
	"github.com/okian/feedrank/pkg/logger"
)

// Default tracker configuration.
const (
	DefaultFlushInterval    = 5 * time.Second
	DefaultMinViewDuration  = time.Second
	DefaultBatchLimit       = 10
	DefaultFlushConcurrency = 8
	DefaultMarkerTTL        = time.Hour

	defaultBreakerFailures = 5
	defaultBreakerTimeout  = 30 * time.Second
	finalFlushTimeout      = 10 * time.Second
)

// Option applies a configuration option to the Tracker.
type Option func(*Tracker)

// WithLogger sets the tracker logger.
func WithLogger(l logger.Logger) Option {
	return func(t *Tracker) {
		if l != nil {
			t.log = l
		}
	}
}

// WithClock sets the time source for view markers and timestamps.
func WithClock(now func() time.Time) Option {
	return func(t *Tracker) {
		if now != nil {
			t.now = now
		}
	}
}

// WithFlushInterval sets how often buffered view time is written.
func WithFlushInterval(d time.Duration) Option {
	return func(t *Tracker) {
		if d > 0 {
			t.flushInterval = d
		}
	}
}

// WithMinViewDuration sets the shortest view that counts.
func WithMinViewDuration(d time.Duration) Option {
	return func(t *Tracker) {
		if d >= 0 {
			t.minView = d
		}
	}
}

// WithBatchLimit sets the number of ids per batched aggregate read.
func WithBatchLimit(n int) Option {
	return func(t *Tracker) {
		if n > 0 {
			t.batchLimit = n
		}
	}
}

// WithFlushConcurrency bounds the number of entries written in parallel during a flush.
func WithFlushConcurrency(n int) Option {
	return func(t *Tracker) {
		if n > 0 {
			t.flushConcurrency = n
		}
	}
}

// WithMarkerTTL sets how long an unmatched view start is kept. Older
// markers are dropped on the next flush.
func WithMarkerTTL(d time.Duration) Option {
	return func(t *Tracker) {
		if d > 0 {
			t.markerTTL = d
		}
	}
}

// WithIdempotentLikes only moves the like counter when the stored per-user
// flag actually changes. Off by default: the caller's boolean is trusted.
func WithIdempotentLikes(enabled bool) Option {
	return func(t *Tracker) {
		t.idempotentLikes = enabled
	}
}

// WithBreaker configures the circuit breaker around store writes.
func WithBreaker(consecutiveFailures uint32, openTimeout time.Duration) Option {
	return func(t *Tracker) {
		if consecutiveFailures > 0 {
			t.breakerFailures = consecutiveFailures
		}
		if openTimeout > 0 {
			t.breakerTimeout = openTimeout
		}
	}
}

// WithCalculator replaces the engagement score calculator.
func WithCalculator(c *scoring.Calculator) Option {
	return func(t *Tracker) {
		if c != nil {
			t.calc = c
		}
	}
}
