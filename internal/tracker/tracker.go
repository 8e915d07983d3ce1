// Package tracker records per-user interactions with content items and keeps
// the per-item engagement aggregates in the store up to date.
//
// View time is buffered in memory and written by a periodic flush. Likes and
// clicks are written immediately. Every aggregate mutation is followed by a
// recomputation of the item's engagement score.
package tracker

import (
	"context"
	"errors"
	"hash/fnv"
	"sync"
	"sync/atomic"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/okian/feedrank/internal/adapters/repository"
	"github.com/okian/feedrank/internal/domain/scoring"
	"github.com/okian/feedrank/pkg/logger"
	"github.com/okian/feedrank/pkg/metrics"
)

const (
	breakerName     = "engagement_store"
	itemLockStripes = 256
)

type pendingKey struct {
	userID string
	itemID string
}

// Tracker buffers view time and writes engagement to a repository.Store.
// All methods are safe for concurrent use.
type Tracker struct {
	store repository.Store
	calc  *scoring.Calculator
	log   logger.Logger
	now   func() time.Time

	flushInterval    time.Duration
	minView          time.Duration
	batchLimit       int
	flushConcurrency int
	idempotentLikes  bool
	breakerFailures  uint32
	breakerTimeout   time.Duration
	markerTTL        time.Duration
	breaker          *gobreaker.CircuitBreaker[any]

	mu      sync.Mutex
	starts  map[pendingKey]time.Time
	pending map[pendingKey]int64

	// itemLocks serialize counter increments with the score recompute that
	// follows them, per item.
	itemLocks [itemLockStripes]sync.Mutex

	flushing atomic.Bool

	lifeMu sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// New creates a tracker writing to store.
func New(store repository.Store, opts ...Option) *Tracker {
	t := &Tracker{
		store:            store,
		calc:             scoring.NewCalculator(),
		log:              logger.Default(),
		now:              time.Now,
		flushInterval:    DefaultFlushInterval,
		minView:          DefaultMinViewDuration,
		batchLimit:       DefaultBatchLimit,
		flushConcurrency: DefaultFlushConcurrency,
		breakerFailures:  defaultBreakerFailures,
		breakerTimeout:   defaultBreakerTimeout,
		markerTTL:        DefaultMarkerTTL,
		starts:           make(map[pendingKey]time.Time),
		pending:          make(map[pendingKey]int64),
	}
	for _, opt := range opts {
		opt(t)
	}
	t.log = t.log.Named("tracker")

	failures := t.breakerFailures
	t.breaker = gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
		Name:    breakerName,
		Timeout: t.breakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			metrics.UpdateBreakerState(name, int(to))
			t.log.Warn(context.Background(), "store breaker state changed",
				logger.String("breaker", name),
				logger.String("from", from.String()),
				logger.String("to", to.String()))
		},
	})
	return t
}

func newKey(userID, itemID string) (pendingKey, error) {
	if userID == "" {
		return pendingKey{}, ErrGuest
	}
	if itemID == "" {
		return pendingKey{}, ErrInvalidItem
	}
	return pendingKey{userID: userID, itemID: itemID}, nil
}

func (t *Tracker) ignore(kind string, err error) {
	reason := "guest"
	if errors.Is(err, ErrInvalidItem) {
		reason = "invalid_item"
	}
	metrics.RecordInteractionIgnored(reason)
	t.log.Debug(context.Background(), "interaction ignored",
		logger.String("kind", kind), logger.Error(err))
}

// StartTracking marks the start of a view now.
func (t *Tracker) StartTracking(userID, itemID string) {
	t.StartTrackingAt(userID, itemID, t.now())
}

// StartTrackingAt marks the start of a view at the given time. A second start
// for the same user and item replaces the first.
func (t *Tracker) StartTrackingAt(userID, itemID string, at time.Time) {
	k, err := newKey(userID, itemID)
	if err != nil {
		t.ignore("view_start", err)
		return
	}
	t.mu.Lock()
	t.starts[k] = at
	t.mu.Unlock()
	metrics.RecordInteraction("view_start")
}

// StopTracking ends the view started by StartTracking.
func (t *Tracker) StopTracking(userID, itemID string) {
	t.StopTrackingAt(userID, itemID, t.now())
}

// StopTrackingAt ends a view at the given time. Views shorter than the
// minimum duration are discarded. A stop without a start is a no-op.
func (t *Tracker) StopTrackingAt(userID, itemID string, at time.Time) {
	k, err := newKey(userID, itemID)
	if err != nil {
		t.ignore("view_stop", err)
		return
	}
	t.mu.Lock()
	start, ok := t.starts[k]
	if ok {
		delete(t.starts, k)
	}
	t.mu.Unlock()
	if !ok {
		return
	}
	metrics.RecordInteraction("view_stop")
	t.buffer(k, at.Sub(start))
}

// RecordView buffers a view whose duration the client measured itself.
func (t *Tracker) RecordView(userID, itemID string, d time.Duration) {
	k, err := newKey(userID, itemID)
	if err != nil {
		t.ignore("view", err)
		return
	}
	metrics.RecordInteraction("view")
	t.buffer(k, d)
}

func (t *Tracker) buffer(k pendingKey, d time.Duration) {
	if d < t.minView {
		metrics.RecordInteractionIgnored("short_view")
		return
	}
	t.mu.Lock()
	t.pending[k] += d.Milliseconds()
	n := len(t.pending)
	t.mu.Unlock()
	metrics.UpdatePendingViews(n)
}

// sweepStarts drops view markers older than the marker TTL. The caller holds t.mu.
func (t *Tracker) sweepStarts(now time.Time) int {
	cutoff := now.Add(-t.markerTTL)
	n := 0
	for k, at := range t.starts {
		if at.Before(cutoff) {
			delete(t.starts, k)
			n++
		}
	}
	return n
}

// lockItem locks the stripe owning itemID and returns its unlock.
func (t *Tracker) lockItem(itemID string) func() {
	h := fnv.New32a()
	_, _ = h.Write([]byte(itemID))
	m := &t.itemLocks[h.Sum32()%itemLockStripes]
	m.Lock()
	return m.Unlock
}

// Pending returns the number of buffered user x item entries.
func (t *Tracker) Pending() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.pending)
}

// Tracking returns the number of open view markers.
func (t *Tracker) Tracking() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.starts)
}

// BreakerState reports the state of the store-write circuit breaker.
func (t *Tracker) BreakerState() string {
	return t.breaker.State().String()
}

// guarded runs a store write through the circuit breaker.
func guarded[T any](t *Tracker, op string, fn func() (T, error)) (T, error) {
	v, err := t.breaker.Execute(func() (any, error) {
		r, err := fn()
		return r, err
	})
	if err != nil {
		metrics.RecordStoreError(op)
		var zero T
		return zero, err
	}
	return v.(T), nil
}

func (t *Tracker) write(op string, fn func() error) error {
	_, err := guarded(t, op, func() (struct{}, error) {
		return struct{}{}, fn()
	})
	return err
}
