package tracker

import (
	"context"
	"errors"

	"github.com/okian/feedrank/internal/adapters/repository"
	"github.com/okian/feedrank/internal/domain/model"
	"github.com/okian/feedrank/pkg/logger"
	"github.com/okian/feedrank/pkg/metrics"
)

// RecordLike stores the user's liked flag and moves the item's like total by
// one in the direction of liked. The boolean is trusted unless idempotent
// likes are enabled. Failures are logged and not retried.
func (t *Tracker) RecordLike(ctx context.Context, userID, itemID string, liked bool) {
	kind := string(model.KindLike)
	if !liked {
		kind = string(model.KindUnlike)
	}
	k, err := newKey(userID, itemID)
	if err != nil {
		t.ignore(kind, err)
		return
	}
	metrics.RecordInteraction(kind)

	at := t.now()
	prev, err := guarded(t, "set_user_liked", func() (bool, error) {
		return t.store.SetUserLiked(ctx, k.userID, k.itemID, liked, at)
	})
	if err != nil {
		t.log.Error(ctx, "record like failed",
			logger.String("user_id", k.userID), logger.String("item_id", k.itemID), logger.Error(err))
		return
	}
	if t.idempotentLikes && prev == liked {
		metrics.RecordInteractionIgnored("like_unchanged")
		return
	}

	delta := int64(1)
	if !liked {
		delta = -1
	}
	t.increment(ctx, k.itemID, model.Counters{Likes: delta})
}

// RecordClick marks the user as having clicked and adds one click to the item.
func (t *Tracker) RecordClick(ctx context.Context, userID, itemID string) {
	k, err := newKey(userID, itemID)
	if err != nil {
		t.ignore(string(model.KindClick), err)
		return
	}
	metrics.RecordInteraction(string(model.KindClick))

	at := t.now()
	if err := t.write("mark_user_clicked", func() error {
		return t.store.MarkUserClicked(ctx, k.userID, k.itemID, at)
	}); err != nil {
		t.log.Error(ctx, "record click failed",
			logger.String("user_id", k.userID), logger.String("item_id", k.itemID), logger.Error(err))
		return
	}
	t.increment(ctx, k.itemID, model.Counters{Clicks: 1})
}

func (t *Tracker) increment(ctx context.Context, itemID string, delta model.Counters) {
	unlock := t.lockItem(itemID)
	defer unlock()

	agg, err := guarded(t, "increment", func() (model.Aggregate, error) {
		return t.store.Increment(ctx, itemID, delta, t.now())
	})
	if err != nil {
		t.log.Error(ctx, "aggregate increment failed",
			logger.String("item_id", itemID), logger.Error(err))
		return
	}
	t.recompute(ctx, agg)
}

// GetArtworkEngagement returns the item's aggregate, or nil when there is none
// or the read failed.
func (t *Tracker) GetArtworkEngagement(ctx context.Context, itemID string) *model.Aggregate {
	if itemID == "" {
		return nil
	}
	agg, err := t.store.GetAggregate(ctx, itemID)
	if errors.Is(err, repository.ErrNotFound) {
		metrics.RecordEngagementRead(true)
		return nil
	}
	if err != nil {
		metrics.RecordStoreError("get_aggregate")
		t.log.Error(ctx, "engagement read failed", logger.String("item_id", itemID), logger.Error(err))
		return nil
	}
	metrics.RecordEngagementRead(false)
	return &agg
}

// GetArtworkEngagements reads the aggregates of many items in chunks of the
// batch limit and merges them. Items without an aggregate are absent. A failed
// chunk is logged and skipped, so the result may be partial.
func (t *Tracker) GetArtworkEngagements(ctx context.Context, itemIDs []string) map[string]model.Aggregate {
	ids := uniqueIDs(itemIDs)
	out := make(map[string]model.Aggregate, len(ids))

	for start := 0; start < len(ids); start += t.batchLimit {
		end := min(start+t.batchLimit, len(ids))
		chunk := ids[start:end]

		aggs, err := t.store.GetAggregates(ctx, chunk)
		if err != nil {
			metrics.RecordStoreError("get_aggregates")
			t.log.Error(ctx, "batched engagement read failed",
				logger.Int("chunk_size", len(chunk)), logger.Error(err))
			continue
		}
		for id, agg := range aggs {
			out[id] = agg
		}
	}

	metrics.RecordEngagementRead(len(out) < len(ids))
	return out
}

func uniqueIDs(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
