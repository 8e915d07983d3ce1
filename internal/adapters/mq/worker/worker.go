// Package worker applies queued interactions to the engagement tracker.
package worker

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"runtime"
	"strconv"
	"time"

	"github.com/okian/feedrank/internal/domain/model"
	"github.com/okian/feedrank/pkg/logger"
	"github.com/okian/feedrank/pkg/metrics"
)

const (
	defaultWorkerMultiplier = 4 // multiplier for runtime.NumCPU()
	shardBuffer             = 64
	poolShutdownTimeout     = 30 * time.Second
)

// ErrUnknownKind is returned for an interaction kind the worker cannot apply.
var ErrUnknownKind = errors.New("unknown interaction kind")

// Event is what workers read off the queue.
type Event = model.Interaction

// Tracker receives the interactions.
type Tracker interface {
	StartTrackingAt(userID, itemID string, at time.Time)
	StopTrackingAt(userID, itemID string, at time.Time)
	RecordView(userID, itemID string, d time.Duration)
	RecordLike(ctx context.Context, userID, itemID string, liked bool)
	RecordClick(ctx context.Context, userID, itemID string)
}

// Queue defines how workers receive events.
type Queue interface {
	Dequeue(ctx context.Context) <-chan Event
}

// Worker processes queued interactions.
type Worker interface {
	// Run consumes events until the queue is drained or ctx is cancelled.
	Run(ctx context.Context)
	// Done is closed when Run returns.
	Done() <-chan struct{}
}

// InMemoryWorker applies interactions to a Tracker.
type InMemoryWorker struct {
	queue   Queue
	tracker Tracker
	name    string
	now     func() time.Time
	done    chan struct{}
	logger  logger.Logger
}

// NewInMemoryWorker creates a new worker.
func NewInMemoryWorker(q Queue, tr Tracker, opts ...Option) *InMemoryWorker {
	w := &InMemoryWorker{
		queue:   q,
		tracker: tr,
		name:    "worker",
		now:     time.Now,
		done:    make(chan struct{}),
		logger:  logger.Default(),
	}
	for _, opt := range opts {
		opt(w)
	}
	w.logger = w.logger.Named(w.name)
	return w
}

// Run starts the worker loop.
func (w *InMemoryWorker) Run(ctx context.Context) {
	defer close(w.done)

	for event := range w.queue.Dequeue(ctx) {
		if err := w.processEvent(ctx, event); err != nil {
			w.logger.Error(ctx, "error processing interaction",
				logger.String("event_id", event.EventID), logger.Error(err))
		}
	}
}

// Done is closed once Run has returned.
func (w *InMemoryWorker) Done() <-chan struct{} { return w.done }

func (w *InMemoryWorker) processEvent(ctx context.Context, e Event) error { //nolint:gocritic // hugeParam: value semantics from the channel
	start := time.Now()
	defer func() {
		metrics.RecordWorkerProcessingLatency(float64(time.Since(start).Milliseconds()))
	}()

	at := e.TS
	if at.IsZero() {
		at = w.now()
	}

	switch e.Kind {
	case model.KindViewStart:
		w.tracker.StartTrackingAt(e.UserID, e.ItemID, at)
	case model.KindViewStop:
		w.tracker.StopTrackingAt(e.UserID, e.ItemID, at)
	case model.KindView:
		w.tracker.RecordView(e.UserID, e.ItemID, time.Duration(e.DurationMS)*time.Millisecond)
	case model.KindLike:
		w.tracker.RecordLike(ctx, e.UserID, e.ItemID, true)
	case model.KindUnlike:
		w.tracker.RecordLike(ctx, e.UserID, e.ItemID, false)
	case model.KindClick:
		w.tracker.RecordClick(ctx, e.UserID, e.ItemID)
	default:
		metrics.RecordWorkerError()
		metrics.RecordErrorByComponent("worker", "unknown_kind")
		return fmt.Errorf("%w: %q", ErrUnknownKind, e.Kind)
	}
	return nil
}

// Pool manages multiple workers. A dispatcher reads the shared queue and
// routes every event to the worker owning its user and item, so events for
// one user x item pair are applied in queue order.
type Pool struct {
	workers  []*InMemoryWorker
	shards   []shard
	queue    Queue
	cancel   context.CancelFunc
	dispatch chan struct{}
	logger   logger.Logger
}

// shard is the private queue of one worker.
type shard chan Event

// Dequeue forwards the shard's events until it is closed or ctx is cancelled.
func (s shard) Dequeue(ctx context.Context) <-chan Event {
	out := make(chan Event)
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case e, ok := <-s:
				if !ok {
					return
				}
				select {
				case out <- e:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out
}

// shardFor picks the shard of a user x item pair.
func shardFor(userID, itemID string, n int) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(userID))
	_, _ = h.Write([]byte{0})
	_, _ = h.Write([]byte(itemID))
	return int(h.Sum32() % uint32(n)) //nolint:gosec // n is a positive worker count
}

// NewPool creates a pool of workerCount workers. A count below one uses a
// multiple of the CPU count.
func NewPool(workerCount int, q Queue, tr Tracker, log logger.Logger) *Pool {
	if workerCount < 1 {
		workerCount = runtime.NumCPU() * defaultWorkerMultiplier
	}
	if log == nil {
		log = logger.Default()
	}

	p := &Pool{
		workers: make([]*InMemoryWorker, workerCount),
		shards:  make([]shard, workerCount),
		queue:   q,
		logger:  log.Named("worker-pool"),
	}
	for i := range p.workers {
		p.shards[i] = make(shard, shardBuffer)
		p.workers[i] = NewInMemoryWorker(p.shards[i], tr,
			WithName("worker-"+strconv.Itoa(i)),
			WithLogger(log))
	}
	metrics.UpdateWorkerCount(workerCount)
	return p
}

// Size returns the number of workers.
func (p *Pool) Size() int { return len(p.workers) }

// Start starts all workers.
func (p *Pool) Start(ctx context.Context) {
	runCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.dispatch = make(chan struct{})
	for _, w := range p.workers {
		go w.Run(runCtx)
	}
	go p.route(runCtx)
}

// route moves queued events to their shards and closes every shard once the
// queue is drained.
func (p *Pool) route(ctx context.Context) {
	defer close(p.dispatch)
	defer func() {
		for _, s := range p.shards {
			close(s)
		}
	}()
	for e := range p.queue.Dequeue(ctx) {
		s := p.shards[shardFor(e.UserID, e.ItemID, len(p.shards))]
		select {
		case s <- e:
		case <-ctx.Done():
			return
		}
	}
}

// Shutdown closes the queue and waits for the workers to drain it. Workers
// still running when ctx (or the pool timeout) expires are cancelled.
func (p *Pool) Shutdown(ctx context.Context) error {
	if closer, ok := p.queue.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			p.logger.Error(ctx, "error closing queue", logger.Error(err))
		}
	}

	if p.cancel == nil {
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, poolShutdownTimeout)
	defer cancel()

	var timedOut bool
	select {
	case <-p.dispatch:
	case <-shutdownCtx.Done():
		timedOut = true
		p.logger.Warn(ctx, "dispatcher shutdown timed out")
	}
	for i, w := range p.workers {
		select {
		case <-w.Done():
		case <-shutdownCtx.Done():
			timedOut = true
			p.logger.Warn(ctx, "worker shutdown timed out", logger.Int("worker_id", i))
		}
	}
	p.cancel()
	if timedOut {
		return fmt.Errorf("worker pool shutdown: %w", shutdownCtx.Err())
	}
	return nil
}
