package service

import (
	"time"

	"github.com/okian/feedrank/internal/adapters/repository"
	"github.com/okian/feedrank/internal/config"
	"github.com/okian/feedrank/internal/domain/ranking"
	"github.com/okian/feedrank/internal/domain/scoring"
	"github.com/okian/feedrank/internal/tracker"
	"github.com/okian/feedrank/pkg/logger"
)

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithWorkerCount sets the number of worker goroutines.
func WithWorkerCount(count int) Option {
	return func(s *Service) {
		if count > 0 {
			s.workerCount = count
		}
	}
}

// WithQueueSize sets the maximum size of the interaction queue.
func WithQueueSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.queueSize = size
		}
	}
}

// WithDedupeSize sets the size of the deduplication cache.
func WithDedupeSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.dedupeSize = size
		}
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithStore injects an already opened store. Start then skips the driver
// selection and Stop does not close it.
func WithStore(store repository.Store) Option {
	return func(s *Service) {
		if store != nil {
			s.store = store
			s.ownsStore = false
		}
	}
}

// WithStoreDriver selects the store Start opens: memory, sqlite or badger.
// path is the SQLite file or the Badger directory.
func WithStoreDriver(driver, path string) Option {
	return func(s *Service) {
		s.driver = driver
		s.storePath = path
	}
}

// WithTrackerOptions passes options through to the engagement tracker.
func WithTrackerOptions(opts ...tracker.Option) Option {
	return func(s *Service) { s.trackerOpts = append(s.trackerOpts, opts...) }
}

// WithScorerOptions passes options through to the feed scorer.
func WithScorerOptions(opts ...ranking.Option) Option {
	return func(s *Service) { s.scorerOpts = append(s.scorerOpts, opts...) }
}

// WithDiversityPenalty sets the default diversity penalty for ranked feeds.
func WithDiversityPenalty(p float64) Option {
	return func(s *Service) {
		if p >= 0 {
			s.diversityPenalty = p
		}
	}
}

// OptionsFromConfig translates a loaded config into service options.
func OptionsFromConfig(cfg *config.Config) []Option {
	path := cfg.SQLitePath
	if cfg.StoreDriver == config.DriverBadger {
		path = cfg.BadgerPath
	}
	return []Option{
		WithWorkerCount(cfg.WorkerCount),
		WithQueueSize(cfg.EventQueueSize),
		WithDedupeSize(cfg.DedupeSize),
		WithStoreDriver(cfg.StoreDriver, path),
		WithDiversityPenalty(cfg.DiversityPenalty),
		WithTrackerOptions(
			tracker.WithFlushInterval(cfg.FlushInterval()),
			tracker.WithMinViewDuration(cfg.MinView()),
			tracker.WithBatchLimit(cfg.BatchReadLimit),
			tracker.WithFlushConcurrency(cfg.FlushConcurrency),
			tracker.WithIdempotentLikes(cfg.IdempotentLikes),
			tracker.WithMarkerTTL(cfg.MarkerTTL()),
			tracker.WithBreaker(uint32(max(cfg.BreakerFailureThreshold, 1)), cfg.BreakerTimeout()), //nolint:gosec // bounded by config validation
			tracker.WithCalculator(scoring.NewCalculator(scoring.WithWeights(cfg.ScoreWeights))),
		),
		WithScorerOptions(
			ranking.WithPlaceholderTag(cfg.PlaceholderTag),
			ranking.WithHalfLife(cfg.HalfLifeDays),
			ranking.WithFollowBoost(cfg.FollowBoost),
		),
	}
}

// storeOptions are handed to the store constructors.
func (s *Service) storeOptions() []repository.Option {
	return []repository.Option{repository.WithLogger(s.logger.Named("store"))}
}

const stopTimeout = 30 * time.Second
