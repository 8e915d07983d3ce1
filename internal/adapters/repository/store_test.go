package repository_test

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/okian/feedrank/internal/adapters/repository"
	"github.com/okian/feedrank/internal/domain/model"
)

var t0 = time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

type storeFactory struct {
	name string
	open func(t *testing.T) repository.Store
}

func factories() []storeFactory {
	return []storeFactory{
		{"memory", func(t *testing.T) repository.Store {
			return repository.NewMemoryStore()
		}},
		{"sqlite", func(t *testing.T) repository.Store {
			s, err := repository.NewSQLiteStore(context.Background(), filepath.Join(t.TempDir(), "feedrank.db"))
			if err != nil {
				t.Fatalf("open sqlite: %v", err)
			}
			return s
		}},
		{"badger", func(t *testing.T) repository.Store {
			s, err := repository.NewBadgerStore("")
			if err != nil {
				t.Fatalf("open badger: %v", err)
			}
			return s
		}},
	}
}

// forEachStore runs fn against a fresh instance of every Store implementation.
func forEachStore(t *testing.T, fn func(t *testing.T, s repository.Store)) {
	t.Helper()
	for _, f := range factories() {
		t.Run(f.name, func(t *testing.T) {
			s := f.open(t)
			t.Cleanup(func() { _ = s.Close() })
			fn(t, s)
		})
	}
}

func TestStoreIncrementCreatesAndAccumulates(t *testing.T) {
	forEachStore(t, func(t *testing.T, s repository.Store) {
		ctx := context.Background()

		if _, err := s.GetAggregate(ctx, "art-1"); !errors.Is(err, repository.ErrNotFound) {
			t.Fatalf("expected ErrNotFound before first write, got %v", err)
		}

		if _, err := s.Increment(ctx, "art-1", model.Counters{ViewTimeMS: 1500, Views: 1}, t0); err != nil {
			t.Fatalf("increment: %v", err)
		}
		agg, err := s.Increment(ctx, "art-1", model.Counters{ViewTimeMS: 500, Views: 1, Likes: 1}, t0.Add(time.Minute))
		if err != nil {
			t.Fatalf("increment: %v", err)
		}

		if agg.TotalViewTimeMS != 2000 || agg.TotalViews != 2 || agg.TotalLikes != 1 {
			t.Fatalf("unexpected counters: %+v", agg)
		}
		if !agg.CreatedAt.Equal(t0) || !agg.LastUpdated.Equal(t0.Add(time.Minute)) {
			t.Fatalf("unexpected timestamps: created=%v updated=%v", agg.CreatedAt, agg.LastUpdated)
		}

		got, err := s.GetAggregate(ctx, "art-1")
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		if got.TotalViewTimeMS != 2000 || got.TotalViews != 2 || got.ItemID != "art-1" {
			t.Fatalf("stored aggregate differs: %+v", got)
		}
		if s.Count(ctx) != 1 {
			t.Fatalf("count = %d, want 1", s.Count(ctx))
		}
	})
}

func TestStoreClampsDecrements(t *testing.T) {
	forEachStore(t, func(t *testing.T, s repository.Store) {
		ctx := context.Background()
		agg, err := s.Increment(ctx, "art-1", model.Counters{Likes: -1, Clicks: -3}, t0)
		if err != nil {
			t.Fatalf("increment: %v", err)
		}
		if agg.TotalLikes != 0 || agg.TotalClicks != 0 {
			t.Fatalf("counters went negative: %+v", agg)
		}
	})
}

func TestStoreEngagementScoreAndTopN(t *testing.T) {
	forEachStore(t, func(t *testing.T, s repository.Store) {
		ctx := context.Background()
		scores := map[string]float64{"a": 12.5, "b": 80, "c": 12.5, "d": 40}
		for id, score := range scores {
			if _, err := s.Increment(ctx, id, model.Counters{Views: 1}, t0); err != nil {
				t.Fatalf("increment %s: %v", id, err)
			}
			if err := s.SetEngagementScore(ctx, id, score, t0); err != nil {
				t.Fatalf("score %s: %v", id, err)
			}
		}
		// re-score an item so the index has to move it
		if err := s.SetEngagementScore(ctx, "d", 90, t0.Add(time.Second)); err != nil {
			t.Fatalf("rescore: %v", err)
		}

		top, err := s.TopN(ctx, 3)
		if err != nil {
			t.Fatalf("topN: %v", err)
		}
		want := []string{"d", "b", "a"}
		if len(top) != len(want) {
			t.Fatalf("topN returned %d rows, want %d", len(top), len(want))
		}
		for i, id := range want {
			if top[i].ItemID != id {
				t.Fatalf("top[%d] = %s, want %s", i, top[i].ItemID, id)
			}
		}
		if top[0].EngagementScore != 90 || top[0].TotalViews != 1 {
			t.Fatalf("score update lost counters: %+v", top[0])
		}

		all, err := s.TopN(ctx, 100)
		if err != nil || len(all) != 4 {
			t.Fatalf("topN(100) = %d rows, err %v", len(all), err)
		}
		if _, err := s.TopN(ctx, 0); !errors.Is(err, repository.ErrInvalidLimit) {
			t.Fatalf("expected ErrInvalidLimit, got %v", err)
		}
	})
}

func TestStoreGetAggregates(t *testing.T) {
	forEachStore(t, func(t *testing.T, s repository.Store) {
		ctx := context.Background()
		for _, id := range []string{"a", "c"} {
			if _, err := s.Increment(ctx, id, model.Counters{Clicks: 1}, t0); err != nil {
				t.Fatalf("increment: %v", err)
			}
		}

		got, err := s.GetAggregates(ctx, []string{"a", "b", "c"})
		if err != nil {
			t.Fatalf("batch: %v", err)
		}
		if len(got) != 2 || got["a"].TotalClicks != 1 || got["c"].TotalClicks != 1 {
			t.Fatalf("unexpected batch result: %+v", got)
		}
		if _, ok := got["b"]; ok {
			t.Fatal("missing aggregate must be absent")
		}

		ids := make([]string, repository.MaxBatchRead+1)
		for i := range ids {
			ids[i] = fmt.Sprintf("id-%d", i)
		}
		if _, err := s.GetAggregates(ctx, ids); !errors.Is(err, repository.ErrBatchTooLarge) {
			t.Fatalf("expected ErrBatchTooLarge, got %v", err)
		}

		empty, err := s.GetAggregates(ctx, nil)
		if err != nil || len(empty) != 0 {
			t.Fatalf("empty batch = %v, %v", empty, err)
		}
	})
}

func TestStoreUserEngagement(t *testing.T) {
	forEachStore(t, func(t *testing.T, s repository.Store) {
		ctx := context.Background()

		if _, err := s.GetUserEngagement(ctx, "u1", "art-1"); !errors.Is(err, repository.ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
		if err := s.AddUserViewTime(ctx, "u1", "art-1", 1200, t0); err != nil {
			t.Fatalf("view: %v", err)
		}
		if err := s.AddUserViewTime(ctx, "u1", "art-1", 800, t0.Add(time.Minute)); err != nil {
			t.Fatalf("view: %v", err)
		}

		prev, err := s.SetUserLiked(ctx, "u1", "art-1", true, t0)
		if err != nil || prev {
			t.Fatalf("first like: prev=%v err=%v", prev, err)
		}
		prev, err = s.SetUserLiked(ctx, "u1", "art-1", true, t0)
		if err != nil || !prev {
			t.Fatalf("second like: prev=%v err=%v", prev, err)
		}
		if err := s.MarkUserClicked(ctx, "u1", "art-1", t0); err != nil {
			t.Fatalf("click: %v", err)
		}

		ue, err := s.GetUserEngagement(ctx, "u1", "art-1")
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		if ue.ViewTimeMS != 2000 || !ue.Liked || !ue.Clicked {
			t.Fatalf("unexpected user engagement: %+v", ue)
		}
		if !ue.LastViewed.Equal(t0.Add(time.Minute)) {
			t.Fatalf("last viewed = %v", ue.LastViewed)
		}

		other, err := s.SetUserLiked(ctx, "u2", "art-1", false, t0)
		if err != nil || other {
			t.Fatalf("other user: prev=%v err=%v", other, err)
		}
	})
}

func TestStoreRejectsInvalidInput(t *testing.T) {
	forEachStore(t, func(t *testing.T, s repository.Store) {
		ctx := context.Background()
		if _, err := s.Increment(ctx, "", model.Counters{Views: 1}, t0); !errors.Is(err, repository.ErrInvalidID) {
			t.Fatalf("expected ErrInvalidID, got %v", err)
		}
		if err := s.AddUserViewTime(ctx, "", "art-1", 10, t0); !errors.Is(err, repository.ErrInvalidID) {
			t.Fatalf("expected ErrInvalidID, got %v", err)
		}
	})
}

func TestStoreClosed(t *testing.T) {
	for _, f := range factories() {
		t.Run(f.name, func(t *testing.T) {
			s := f.open(t)
			if err := s.Close(); err != nil {
				t.Fatalf("close: %v", err)
			}
			if _, err := s.Increment(context.Background(), "a", model.Counters{Views: 1}, t0); !errors.Is(err, repository.ErrClosed) {
				t.Fatalf("expected ErrClosed, got %v", err)
			}
		})
	}
}

func TestStoreConcurrentIncrements(t *testing.T) {
	forEachStore(t, func(t *testing.T, s repository.Store) {
		ctx := context.Background()
		const workers, perWorker = 8, 25

		var wg sync.WaitGroup
		for w := 0; w < workers; w++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for i := 0; i < perWorker; i++ {
					if _, err := s.Increment(ctx, "hot", model.Counters{Views: 1, ViewTimeMS: 10}, t0); err != nil {
						t.Errorf("increment: %v", err)
						return
					}
				}
			}()
		}
		wg.Wait()

		agg, err := s.GetAggregate(ctx, "hot")
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		if agg.TotalViews != workers*perWorker || agg.TotalViewTimeMS != workers*perWorker*10 {
			t.Fatalf("lost updates: %+v", agg)
		}
	})
}
