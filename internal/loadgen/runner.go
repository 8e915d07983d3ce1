package loadgen

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/okian/feedrank/pkg/logger"
)

// Errors reported by Run.
var (
	ErrUnhealthy    = errors.New("service unhealthy")
	ErrVerification = errors.New("verification failed")
)

// Run executes a complete load run: health check, generate, submit, flush,
// fetch trending and verify it.
func Run(ctx context.Context, cfg *Config, log logger.Logger) (*Stats, error) {
	if log == nil {
		log = logger.Default()
	}
	log = log.Named("loadgen")
	cfg.applyDefaults()
	stats := &Stats{StartTime: time.Now()}
	c := newHTTPClient(cfg.BaseURL, cfg.Timeout)

	log.Info(ctx, "starting load run",
		logger.String("baseURL", cfg.BaseURL),
		logger.Int("events", cfg.NumEvents),
		logger.Int("duplicates", cfg.Duplicates),
		logger.Int("workers", cfg.Workers))

	status, err := c.do(ctx, http.MethodGet, "/healthz", nil, nil)
	if err != nil {
		return stats, fmt.Errorf("%w: %v", ErrUnhealthy, err)
	}
	if status != http.StatusOK {
		return stats, fmt.Errorf("%w: status %d", ErrUnhealthy, status)
	}

	events, expected := generateEvents(cfg, newRand(cfg.Seed), time.Now())
	stats.EventsGenerated = len(events)

	submitEvents(ctx, cfg, c, events, stats, log)
	log.Info(ctx, "submission completed",
		logger.Int("accepted", stats.EventsAccepted),
		logger.Int("duplicate", stats.EventsDuplicate),
		logger.Int("throttled", stats.EventsThrottled),
		logger.Int("failed", stats.EventsFailed))

	select {
	case <-ctx.Done():
		return stats, ctx.Err()
	case <-time.After(cfg.SettleDelay):
	}

	var flushed FlushResult
	if _, err := c.do(ctx, http.MethodPost, "/admin/flush", nil, &flushed); err != nil {
		return stats, fmt.Errorf("flush: %w", err)
	}
	stats.FlushWritten = flushed.Written

	var trending struct {
		Items []TrendingEntry `json:"items"`
	}
	if _, err := c.do(ctx, http.MethodGet, fmt.Sprintf("/trending?limit=%d", cfg.TopN), nil, &trending); err != nil {
		return stats, fmt.Errorf("trending: %w", err)
	}
	stats.TrendingEntries = len(trending.Items)

	if err := verifyTrending(trending.Items, expected); err != nil {
		return stats, err
	}

	stats.EndTime = time.Now()
	stats.Duration = stats.EndTime.Sub(stats.StartTime)
	displayFinalStats(ctx, log, stats, trending.Items)
	return stats, nil
}

func displayFinalStats(ctx context.Context, log logger.Logger, stats *Stats, top []TrendingEntry) {
	var perSecond float64
	if stats.Duration > 0 {
		perSecond = float64(stats.EventsSubmitted) / stats.Duration.Seconds()
	}
	log.Info(ctx, "final statistics",
		logger.Int("eventsGenerated", stats.EventsGenerated),
		logger.Int("eventsSubmitted", stats.EventsSubmitted),
		logger.Int("eventsAccepted", stats.EventsAccepted),
		logger.Int("eventsDuplicate", stats.EventsDuplicate),
		logger.Int("eventsThrottled", stats.EventsThrottled),
		logger.Int("eventsFailed", stats.EventsFailed),
		logger.Int("flushWritten", stats.FlushWritten),
		logger.Int("trendingEntries", stats.TrendingEntries),
		logger.Duration("duration", stats.Duration),
		logger.Float64("eventsPerSecond", perSecond))
	for _, e := range top[:min(len(top), 5)] {
		log.Info(ctx, "trending",
			logger.Int("rank", e.Rank), logger.String("item", e.ItemID),
			logger.Float64("score", e.EngagementScore))
	}
}
