// Package repository persists engagement aggregates and per-user engagement records.
package repository

import (
	"context"
	"time"

	"github.com/okian/feedrank/internal/domain/model"
)

// MaxBatchRead is the largest number of ids a single GetAggregates call accepts.
const MaxBatchRead = 10

// Store provides read/write access to engagement state.
//
// Writes are upserts: the first write for an item or user x item pair creates
// the record. Like and click totals are clamped at zero on decrement.
type Store interface {
	// GetAggregate returns the aggregate of one item or ErrNotFound.
	GetAggregate(ctx context.Context, itemID string) (model.Aggregate, error)
	// GetAggregates returns the aggregates that exist among ids. More than
	// MaxBatchRead ids yields ErrBatchTooLarge.
	GetAggregates(ctx context.Context, ids []string) (map[string]model.Aggregate, error)
	// GetUserEngagement returns the per-user record or ErrNotFound.
	GetUserEngagement(ctx context.Context, userID, itemID string) (model.UserEngagement, error)

	// AddUserViewTime adds ms to the user's running view time on the item.
	AddUserViewTime(ctx context.Context, userID, itemID string, ms int64, at time.Time) error
	// SetUserLiked stores the liked flag and returns the previous value.
	SetUserLiked(ctx context.Context, userID, itemID string, liked bool, at time.Time) (bool, error)
	// MarkUserClicked sets the clicked flag.
	MarkUserClicked(ctx context.Context, userID, itemID string, at time.Time) error

	// Increment atomically adds delta to the item's counters and returns the
	// aggregate after the change.
	Increment(ctx context.Context, itemID string, delta model.Counters, at time.Time) (model.Aggregate, error)
	// SetEngagementScore persists a recomputed score.
	SetEngagementScore(ctx context.Context, itemID string, score float64, at time.Time) error

	// TopN returns up to n aggregates ordered by engagement score desc, item id asc.
	TopN(ctx context.Context, n int) ([]model.Aggregate, error)
	// Count returns the number of items with an aggregate.
	Count(ctx context.Context) int

	Close() error
}

func validateIDs(ids ...string) error {
	for _, id := range ids {
		if id == "" {
			return ErrInvalidID
		}
	}
	return nil
}

func validateBatch(ids []string, limit int) error {
	if len(ids) > limit {
		return ErrBatchTooLarge
	}
	return validateIDs(ids...)
}
