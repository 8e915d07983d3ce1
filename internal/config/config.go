// Package config defines service configuration and its loading.
//
// Defaults come from New. Load layers an optional YAML file and FEEDRANK_*
// environment variables on top.
package config

import (
	"context"
	"fmt"
	"runtime"
	"time"

	"github.com/okian/feedrank/internal/adapters/repository"
	"github.com/okian/feedrank/internal/domain/scoring"
)

// Store drivers.
const (
	DriverMemory = "memory"
	DriverSQLite = "sqlite"
	DriverBadger = "badger"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// Addr configures the HTTP listen address, e.g. ":9080".
	Addr string `koanf:"addr"`

	// EventQueueSize bounds the in-memory interaction queue.
	EventQueueSize int `koanf:"queue_size"`

	// WorkerCount sets the number of workers applying interactions.
	WorkerCount int `koanf:"worker_count"`

	// DedupeSize sets how many interaction ids are remembered.
	DedupeSize int `koanf:"dedupe_size"`

	// StoreDriver selects the aggregate store: memory, sqlite or badger.
	StoreDriver string `koanf:"store_driver"`
	SQLitePath  string `koanf:"sqlite_path"`
	BadgerPath  string `koanf:"badger_path"`

	// Tracker.
	FlushIntervalMS  int  `koanf:"flush_interval_ms"`
	MinViewMS        int  `koanf:"min_view_ms"`
	BatchReadLimit   int  `koanf:"batch_read_limit"`
	FlushConcurrency int  `koanf:"flush_concurrency"`
	IdempotentLikes  bool `koanf:"idempotent_likes"`
	MarkerTTLMS      int  `koanf:"marker_ttl_ms"`

	// BreakerFailureThreshold consecutive store failures open the breaker
	// for BreakerTimeoutMS.
	BreakerFailureThreshold int `koanf:"breaker_failure_threshold"`
	BreakerTimeoutMS        int `koanf:"breaker_timeout_ms"`

	// ScoreWeights are the engagement formula coefficients.
	ScoreWeights scoring.Weights `koanf:"score_weights"`

	// Ranking.
	PlaceholderTag   string  `koanf:"placeholder_tag"`
	HalfLifeDays     float64 `koanf:"half_life_days"`
	FollowBoost      float64 `koanf:"follow_boost"`
	DiversityPenalty float64 `koanf:"diversity_penalty"`

	// MaxFeedItems caps the items of one POST /feed/rank.
	MaxFeedItems int `koanf:"max_feed_items"`

	// MaxTrendingLimit caps GET /trending?limit.
	MaxTrendingLimit int `koanf:"max_trending_limit"`

	// EventsRatePerSec and EventsBurst limit POST /events per user.
	EventsRatePerSec float64 `koanf:"events_rate_per_sec"`
	EventsBurst      int     `koanf:"events_burst"`
}

// New creates a Config with defaults. Context is accepted first to follow the
// project-wide convention.
func New(_ context.Context) *Config {
	return &Config{
		LogLevel:                "info",
		Addr:                    ":9080",
		EventQueueSize:          100_000,
		WorkerCount:             runtime.NumCPU() * 4,
		DedupeSize:              500_000,
		StoreDriver:             DriverMemory,
		SQLitePath:              "feedrank.db",
		BadgerPath:              "data/badger",
		FlushIntervalMS:         5000,
		MinViewMS:               1000,
		BatchReadLimit:          repository.MaxBatchRead,
		FlushConcurrency:        8,
		MarkerTTLMS:             3_600_000,
		BreakerFailureThreshold: 5,
		BreakerTimeoutMS:        30_000,
		ScoreWeights:            scoring.DefaultWeights(),
		PlaceholderTag:          "placeholder",
		HalfLifeDays:            7,
		FollowBoost:             1.5,
		DiversityPenalty:        0.15,
		MaxFeedItems:            500,
		MaxTrendingLimit:        100,
		EventsRatePerSec:        50,
		EventsBurst:             100,
	}
}

// Validate reports the first invalid setting wrapped in ErrInvalidConfig.
func (c *Config) Validate() error {
	switch {
	case c.Addr == "":
		return fmt.Errorf("%w: addr must not be empty", ErrInvalidConfig)
	case c.EventQueueSize < 1:
		return fmt.Errorf("%w: queue_size must be positive", ErrInvalidConfig)
	case c.StoreDriver != DriverMemory && c.StoreDriver != DriverSQLite && c.StoreDriver != DriverBadger:
		return fmt.Errorf("%w: unknown store_driver %q", ErrInvalidConfig, c.StoreDriver)
	case c.StoreDriver == DriverSQLite && c.SQLitePath == "":
		return fmt.Errorf("%w: sqlite_path must be set for the sqlite driver", ErrInvalidConfig)
	case c.FlushIntervalMS < 1:
		return fmt.Errorf("%w: flush_interval_ms must be positive", ErrInvalidConfig)
	case c.MinViewMS < 0:
		return fmt.Errorf("%w: min_view_ms must not be negative", ErrInvalidConfig)
	case c.BatchReadLimit < 1 || c.BatchReadLimit > repository.MaxBatchRead:
		return fmt.Errorf("%w: batch_read_limit must be in [1, %d]", ErrInvalidConfig, repository.MaxBatchRead)
	case c.FlushConcurrency < 1:
		return fmt.Errorf("%w: flush_concurrency must be positive", ErrInvalidConfig)
	case c.MarkerTTLMS < 1:
		return fmt.Errorf("%w: marker_ttl_ms must be positive", ErrInvalidConfig)
	case c.HalfLifeDays <= 0:
		return fmt.Errorf("%w: half_life_days must be positive", ErrInvalidConfig)
	case c.FollowBoost <= 0:
		return fmt.Errorf("%w: follow_boost must be positive", ErrInvalidConfig)
	case c.DiversityPenalty < 0:
		return fmt.Errorf("%w: diversity_penalty must not be negative", ErrInvalidConfig)
	case c.MaxFeedItems < 1 || c.MaxTrendingLimit < 1:
		return fmt.Errorf("%w: max_feed_items and max_trending_limit must be positive", ErrInvalidConfig)
	case c.EventsRatePerSec < 0 || c.EventsBurst < 0:
		return fmt.Errorf("%w: events rate limit must not be negative", ErrInvalidConfig)
	}
	return nil
}

// FlushInterval returns FlushIntervalMS as a duration.
func (c *Config) FlushInterval() time.Duration {
	return time.Duration(c.FlushIntervalMS) * time.Millisecond
}

// MinView returns MinViewMS as a duration.
func (c *Config) MinView() time.Duration { return time.Duration(c.MinViewMS) * time.Millisecond }

// MarkerTTL returns MarkerTTLMS as a duration.
func (c *Config) MarkerTTL() time.Duration { return time.Duration(c.MarkerTTLMS) * time.Millisecond }

// BreakerTimeout returns BreakerTimeoutMS as a duration.
func (c *Config) BreakerTimeout() time.Duration {
	return time.Duration(c.BreakerTimeoutMS) * time.Millisecond
}
