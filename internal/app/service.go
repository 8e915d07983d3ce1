// Package service wires the engagement tracker, the feed scorer and the
// ingestion pipeline into the dependencies required by the HTTP API.
package service

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"time"

	eventqueue "github.com/okian/feedrank/internal/adapters/mq/queue"
	workerpool "github.com/okian/feedrank/internal/adapters/mq/worker"
	"github.com/okian/feedrank/internal/adapters/repository"
	"github.com/okian/feedrank/internal/config"
	"github.com/okian/feedrank/internal/domain/dedupe"
	"github.com/okian/feedrank/internal/domain/model"
	"github.com/okian/feedrank/internal/domain/ranking"
	"github.com/okian/feedrank/internal/domain/types"
	"github.com/okian/feedrank/internal/tracker"
	"github.com/okian/feedrank/pkg/logger"
	"github.com/okian/feedrank/pkg/metrics"
)

// Service implements the API dependencies for the ranking system.
type Service struct {
	mu sync.RWMutex

	// Core components
	store   repository.Store
	tracker *tracker.Tracker
	scorer  *ranking.Scorer
	deduper dedupe.Deduper
	queue   eventqueue.Queue
	pool    *workerpool.Pool

	// Configuration
	workerCount      int
	queueSize        int
	dedupeSize       int
	driver           string
	storePath        string
	ownsStore        bool
	diversityPenalty float64
	trackerOpts      []tracker.Option
	scorerOpts       []ranking.Option

	started bool
	logger  logger.Logger
}

// New constructs a new Service. Components are built by Start.
func New(opts ...Option) *Service {
	s := &Service{
		workerCount:      runtime.NumCPU() * 2,
		queueSize:        100_000,
		dedupeSize:       50_000,
		driver:           config.DriverMemory,
		ownsStore:        true,
		diversityPenalty: ranking.DefaultDiversityPenalty,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start opens the store and starts the ingestion workers. The periodic flush
// loop is not started here; run FlushLoop under a supervisor.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}
	if s.logger == nil {
		s.logger = logger.Get()
	}
	s.logger.Info(ctx, "starting feedrank service...")

	if s.store == nil {
		store, err := s.openStore(ctx)
		if err != nil {
			return err
		}
		s.store = store
	}

	trOpts := append([]tracker.Option{tracker.WithLogger(s.logger.Named("tracker"))}, s.trackerOpts...)
	s.tracker = tracker.New(s.store, trOpts...)
	s.scorer = ranking.NewScorer(s.scorerOpts...)
	s.deduper = dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(s.dedupeSize))
	s.queue = eventqueue.NewInMemoryQueue(eventqueue.WithCapacity(s.queueSize))

	s.pool = workerpool.NewPool(s.workerCount, s.queue, s.tracker, s.logger)
	// Workers stop through Stop so queued interactions are drained first.
	s.pool.Start(context.WithoutCancel(ctx))

	s.started = true
	s.logger.Info(ctx, "feedrank service started",
		logger.String("store", s.driver),
		logger.Int("workers", s.pool.Size()),
		logger.Int("queueSize", s.queueSize),
		logger.Int("dedupeSize", s.dedupeSize),
	)
	return nil
}

func (s *Service) openStore(ctx context.Context) (repository.Store, error) {
	switch s.driver {
	case config.DriverMemory, "":
		return repository.NewMemoryStore(s.storeOptions()...), nil
	case config.DriverSQLite:
		st, err := repository.NewSQLiteStore(ctx, s.storePath, s.storeOptions()...)
		if err != nil {
			return nil, fmt.Errorf("open sqlite store: %w", err)
		}
		return st, nil
	case config.DriverBadger:
		st, err := repository.NewBadgerStore(s.storePath, s.storeOptions()...)
		if err != nil {
			return nil, fmt.Errorf("open badger store: %w", err)
		}
		return st, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownDriver, s.driver)
	}
}

// Stop drains the queue into the tracker, flushes buffered view time and
// closes the store it opened.
func (s *Service) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return nil
	}
	s.logger.Info(ctx, "stopping feedrank service...")

	ctx, cancel := context.WithTimeout(ctx, stopTimeout)
	defer cancel()

	var errs []error
	if err := s.pool.Shutdown(ctx); err != nil {
		errs = append(errs, err)
	}
	if err := s.tracker.Cleanup(ctx); err != nil {
		errs = append(errs, err)
	}
	if s.ownsStore {
		if err := s.store.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close store: %w", err))
		}
		s.store = nil
	}

	s.started = false
	s.logger.Info(ctx, "feedrank service stopped")
	return errors.Join(errs...)
}

// FlushLoop returns the tracker, whose Serve method runs the periodic flush.
// It is nil before Start.
func (s *Service) FlushLoop() *tracker.Tracker {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.tracker
}

// Enqueue accepts an interaction for asynchronous processing. It reports
// duplicate=true for an event id seen before, without queueing it again. When
// the queue rejects the event its id is forgotten so the client may retry.
func (s *Service) Enqueue(ctx context.Context, in model.Interaction) (duplicate bool, err error) { //nolint:gocritic // hugeParam: copied into the queue anyway
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.started {
		return false, ErrNotStarted
	}
	if err := validateInteraction(in); err != nil {
		return false, err
	}

	if s.deduper.SeenAndRecord(ctx, in.EventID) {
		metrics.RecordInteractionDuplicate()
		s.logger.Debug(ctx, "duplicate interaction, skipping", logger.String("event_id", in.EventID))
		return true, nil
	}

	if err := s.queue.Enqueue(ctx, in); err != nil {
		s.deduper.Unrecord(ctx, in.EventID)
		return false, fmt.Errorf("enqueue interaction: %w", err)
	}
	return false, nil
}

func validateInteraction(in model.Interaction) error { //nolint:gocritic // hugeParam
	switch {
	case in.EventID == "":
		return fmt.Errorf("%w: missing event id", ErrInvalidInteraction)
	case in.ItemID == "":
		return fmt.Errorf("%w: missing item id", ErrInvalidInteraction)
	case !in.Kind.Valid():
		return fmt.Errorf("%w: unknown kind %q", ErrInvalidInteraction, in.Kind)
	case in.DurationMS < 0:
		return fmt.Errorf("%w: negative duration", ErrInvalidInteraction)
	}
	return nil
}

// RankFeed scores the requested items against their aggregates, then
// optionally sorts and spaces them out.
func (s *Service) RankFeed(ctx context.Context, req types.FeedRequest) ([]types.RankedItem, error) { //nolint:gocritic // hugeParam
	start := time.Now()
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.started {
		return nil, ErrNotStarted
	}

	ids := make([]string, 0, len(req.Items))
	for i := range req.Items {
		if req.Items[i].ID == "" {
			return nil, fmt.Errorf("%w: item %d has no id", ErrInvalidFeed, i)
		}
		ids = append(ids, req.Items[i].ID)
	}

	followed := make(map[string]struct{}, len(req.Followed))
	for _, a := range req.Followed {
		followed[a] = struct{}{}
	}

	aggregates := s.tracker.GetArtworkEngagements(ctx, ids)
	scored := s.scorer.ScoreArtworks(req.Items, aggregates, followed)
	if req.Sort {
		scored = s.scorer.SortByScore(scored)
	}
	if req.Diversify {
		penalty := s.diversityPenalty
		if req.DiversityPenalty != nil && *req.DiversityPenalty >= 0 {
			penalty = *req.DiversityPenalty
		}
		scored = ranking.ApplyDiversityBoost(scored, penalty)
	}

	var explains map[string]ranking.Breakdown
	if req.Explain {
		explains = make(map[string]ranking.Breakdown, len(req.Items))
		for _, it := range req.Items {
			explains[it.ID] = s.scorer.Explain(it, aggregates, followed)
		}
	}

	out := make([]types.RankedItem, len(scored))
	for i, it := range scored {
		out[i] = types.RankedItem{
			Position:        i + 1,
			ItemID:          it.ID,
			AuthorID:        it.AuthorID,
			EngagementScore: it.EngagementScore,
			FinalScore:      it.FinalScore,
			Placeholder:     it.Placeholder,
		}
		if b, ok := explains[it.ID]; ok {
			out[i].Explain = &b
		}
	}

	metrics.RecordFeedRank(float64(time.Since(start).Milliseconds()), len(out))
	return out, nil
}

// Engagement returns the aggregate of one item, or repository.ErrNotFound.
func (s *Service) Engagement(ctx context.Context, itemID string) (model.Aggregate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.started {
		return model.Aggregate{}, ErrNotStarted
	}
	agg := s.tracker.GetArtworkEngagement(ctx, itemID)
	if agg == nil {
		return model.Aggregate{}, repository.ErrNotFound
	}
	return *agg, nil
}

// Trending returns the n items with the highest engagement score.
func (s *Service) Trending(ctx context.Context, n int) ([]types.TrendingEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.started {
		return nil, ErrNotStarted
	}

	aggs, err := s.store.TopN(ctx, n)
	if err != nil {
		return nil, err
	}
	out := make([]types.TrendingEntry, len(aggs))
	for i, a := range aggs {
		out[i] = types.TrendingEntry{
			Rank:            i + 1,
			ItemID:          a.ItemID,
			EngagementScore: a.EngagementScore,
			TotalViews:      a.TotalViews,
			TotalLikes:      a.TotalLikes,
			TotalClicks:     a.TotalClicks,
		}
	}
	return out, nil
}

// Flush writes buffered view time now.
func (s *Service) Flush(ctx context.Context) (tracker.FlushResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.started {
		return tracker.FlushResult{}, ErrNotStarted
	}
	return s.tracker.Flush(ctx), nil
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := map[string]any{
		"started":     s.started,
		"workerCount": s.workerCount,
		"queueSize":   s.queueSize,
		"dedupeSize":  s.dedupeSize,
		"store":       s.driver,
	}
	if s.started {
		ctx := context.Background()
		queueLen := s.queue.Len(ctx)
		tracked := s.store.Count(ctx)

		stats["queueLength"] = queueLen
		stats["trackedItems"] = tracked
		stats["pendingViews"] = s.tracker.Pending()
		stats["activeViews"] = s.tracker.Tracking()
		stats["dedupeEntries"] = s.deduper.Size()
		stats["breaker"] = s.tracker.BreakerState()

		metrics.UpdateQueueSize(queueLen)
		metrics.UpdateTrackedItems(tracked)
		metrics.UpdatePendingViews(s.tracker.Pending())
	}
	return stats
}
