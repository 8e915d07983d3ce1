package tracker

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/okian/feedrank/internal/domain/model"
	"github.com/okian/feedrank/pkg/logger"
	"github.com/okian/feedrank/pkg/metrics"
)

// FlushResult summarizes one flush.
type FlushResult struct {
	Attempted int           `json:"attempted"`
	Written   int           `json:"written"`
	Failed    int           `json:"failed"`
	Skipped   bool          `json:"skipped"` // another flush was in flight
	Duration  time.Duration `json:"duration_ns"`
}

type pendingEntry struct {
	key pendingKey
	ms  int64
}

// Flush writes every buffered entry to the store. Entries are written in
// parallel up to the flush concurrency and Flush waits for all of them.
// Failed entries go back into the buffer for the next flush. A call made
// while another flush is running returns immediately with Skipped set.
func (t *Tracker) Flush(ctx context.Context) FlushResult {
	if !t.flushing.CompareAndSwap(false, true) {
		return FlushResult{Skipped: true}
	}
	defer t.flushing.Store(false)

	start := time.Now()
	t.mu.Lock()
	batch := t.pending
	t.pending = make(map[pendingKey]int64)
	stale := t.sweepStarts(t.now())
	t.mu.Unlock()

	if stale > 0 {
		for range stale {
			metrics.RecordInteractionIgnored("stale_marker")
		}
		t.log.Debug(ctx, "dropped stale view markers", logger.Int("count", stale))
	}

	res := FlushResult{Attempted: len(batch)}
	if len(batch) == 0 {
		return res
	}

	at := t.now()
	sem := make(chan struct{}, t.flushConcurrency)
	var (
		wg       sync.WaitGroup
		written  atomic.Int64
		failedMu sync.Mutex
		failed   []pendingEntry
	)
	for k, ms := range batch {
		wg.Add(1)
		sem <- struct{}{}
		go func(e pendingEntry) {
			defer wg.Done()
			defer func() { <-sem }()
			if err := t.flushEntry(ctx, e, at); err != nil {
				t.log.Warn(ctx, "flush entry failed, re-buffering",
					logger.String("user_id", e.key.userID),
					logger.String("item_id", e.key.itemID),
					logger.Int64("view_ms", e.ms),
					logger.Error(err))
				failedMu.Lock()
				failed = append(failed, e)
				failedMu.Unlock()
				return
			}
			written.Add(1)
		}(pendingEntry{key: k, ms: ms})
	}
	wg.Wait()

	t.mu.Lock()
	for _, e := range failed {
		t.pending[e.key] += e.ms
	}
	n := len(t.pending)
	t.mu.Unlock()

	res.Written = int(written.Load())
	res.Failed = len(failed)
	res.Duration = time.Since(start)

	metrics.UpdatePendingViews(n)
	metrics.RecordFlush(float64(res.Duration.Milliseconds()), res.Written, res.Failed)
	t.log.Debug(ctx, "flush complete",
		logger.Int("attempted", res.Attempted),
		logger.Int("written", res.Written),
		logger.Int("failed", res.Failed),
		logger.Duration("duration", res.Duration))
	return res
}

// flushEntry adds the buffered time to the user record, increments the item
// aggregate by the time and one view, then recomputes the score.
func (t *Tracker) flushEntry(ctx context.Context, e pendingEntry, at time.Time) error {
	if err := t.write("add_user_view", func() error {
		return t.store.AddUserViewTime(ctx, e.key.userID, e.key.itemID, e.ms, at)
	}); err != nil {
		return err
	}

	unlock := t.lockItem(e.key.itemID)
	defer unlock()
	agg, err := guarded(t, "increment", func() (model.Aggregate, error) {
		return t.store.Increment(ctx, e.key.itemID, model.Counters{ViewTimeMS: e.ms, Views: 1}, at)
	})
	if err != nil {
		return err
	}
	t.recompute(ctx, agg)
	return nil
}

// recompute persists the engagement score of agg. The caller holds the item
// lock taken before the increment that produced agg. A failure is logged
// only: the counters are already written and the next mutation recomputes.
func (t *Tracker) recompute(ctx context.Context, agg model.Aggregate) {
	score := t.calc.Score(agg)
	if err := t.write("set_score", func() error {
		return t.store.SetEngagementScore(ctx, agg.ItemID, score, t.now())
	}); err != nil {
		t.log.Warn(ctx, "score recompute failed",
			logger.String("item_id", agg.ItemID), logger.Error(err))
		return
	}
	metrics.RecordScoreRecompute()
}

// Serve flushes on every tick until ctx is cancelled, then runs a final
// flush bounded by its own timeout. It satisfies suture.Service.
func (t *Tracker) Serve(ctx context.Context) error {
	ticker := time.NewTicker(t.flushInterval)
	defer ticker.Stop()

	t.log.Info(ctx, "flush loop started", logger.Duration("interval", t.flushInterval))
	for {
		select {
		case <-ctx.Done():
			fctx, cancel := context.WithTimeout(context.Background(), finalFlushTimeout)
			res := t.Flush(fctx)
			cancel()
			t.log.Info(context.Background(), "flush loop stopped",
				logger.Int("final_written", res.Written),
				logger.Int("final_failed", res.Failed))
			return nil
		case <-ticker.C:
			t.Flush(ctx)
		}
	}
}

// String names the service in supervisor logs.
func (t *Tracker) String() string { return "engagement-tracker" }

// Start runs the flush loop in the background for hosts without a supervisor.
// Calling Start twice is a no-op.
func (t *Tracker) Start(ctx context.Context) {
	t.lifeMu.Lock()
	defer t.lifeMu.Unlock()
	if t.cancel != nil {
		return
	}
	runCtx, cancel := context.WithCancel(ctx)
	t.cancel = cancel
	t.done = make(chan struct{})
	go func(done chan struct{}) {
		defer close(done)
		_ = t.Serve(runCtx)
	}(t.done)
}

// Cleanup stops the flush loop started by Start and performs a final flush.
// Without a running loop it flushes directly.
func (t *Tracker) Cleanup(ctx context.Context) error {
	t.lifeMu.Lock()
	cancel, done := t.cancel, t.done
	t.cancel, t.done = nil, nil
	t.lifeMu.Unlock()

	if cancel == nil {
		t.Flush(ctx)
		return nil
	}
	cancel()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
