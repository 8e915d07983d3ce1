package worker_test

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	queue "github.com/okian/feedrank/internal/adapters/mq/queue"
	worker "github.com/okian/feedrank/internal/adapters/mq/worker"
	"github.com/okian/feedrank/internal/adapters/repository"
	model "github.com/okian/feedrank/internal/domain/model"
	"github.com/okian/feedrank/internal/tracker"
	logging "github.com/okian/feedrank/pkg/logger"
	"github.com/smartystreets/goconvey/convey"
)

type mockQueue struct {
	eventChan chan queue.Event
}

func newMockQueue() *mockQueue {
	return &mockQueue{eventChan: make(chan queue.Event, 16)}
}

func (mq *mockQueue) Dequeue(ctx context.Context) <-chan queue.Event { return mq.eventChan }

func (mq *mockQueue) Close() error {
	close(mq.eventChan)
	return nil
}

// mockTracker records every call as "method:user:item[:detail]".
type mockTracker struct {
	mu    sync.Mutex
	calls []string
}

func (m *mockTracker) record(s string) {
	m.mu.Lock()
	m.calls = append(m.calls, s)
	m.mu.Unlock()
}

func (m *mockTracker) Calls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.calls...)
}

func (m *mockTracker) StartTrackingAt(userID, itemID string, at time.Time) {
	m.record(fmt.Sprintf("start:%s:%s:%d", userID, itemID, at.Unix()))
}

func (m *mockTracker) StopTrackingAt(userID, itemID string, at time.Time) {
	m.record(fmt.Sprintf("stop:%s:%s:%d", userID, itemID, at.Unix()))
}

func (m *mockTracker) RecordView(userID, itemID string, d time.Duration) {
	m.record(fmt.Sprintf("view:%s:%s:%s", userID, itemID, d))
}

func (m *mockTracker) RecordLike(_ context.Context, userID, itemID string, liked bool) {
	m.record(fmt.Sprintf("like:%s:%s:%t", userID, itemID, liked))
}

func (m *mockTracker) RecordClick(_ context.Context, userID, itemID string) {
	m.record(fmt.Sprintf("click:%s:%s", userID, itemID))
}

func waitDone(w worker.Worker) bool {
	select {
	case <-w.Done():
		return true
	case <-time.After(2 * time.Second):
		return false
	}
}

func TestWorkerDispatch(t *testing.T) {
	convey.Convey("Given a worker reading from a queue", t, func() {
		q := newMockQueue()
		tr := &mockTracker{}
		w := worker.NewInMemoryWorker(q, tr, worker.WithName("w-test"), worker.WithLogger(logging.NewNop()))
		ts := time.Unix(1700000000, 0)

		convey.Convey("When every interaction kind is queued", func() {
			q.eventChan <- queue.Event{EventID: "1", UserID: "u", ItemID: "a", Kind: model.KindViewStart, TS: ts}
			q.eventChan <- queue.Event{EventID: "2", UserID: "u", ItemID: "a", Kind: model.KindViewStop, TS: ts.Add(3 * time.Second)}
			q.eventChan <- queue.Event{EventID: "3", UserID: "u", ItemID: "a", Kind: model.KindView, DurationMS: 1500}
			q.eventChan <- queue.Event{EventID: "4", UserID: "u", ItemID: "a", Kind: model.KindLike}
			q.eventChan <- queue.Event{EventID: "5", UserID: "u", ItemID: "a", Kind: model.KindUnlike}
			q.eventChan <- queue.Event{EventID: "6", UserID: "u", ItemID: "a", Kind: model.KindClick}
			q.eventChan <- queue.Event{EventID: "7", UserID: "u", ItemID: "a", Kind: "bogus"}
			_ = q.Close()

			w.Run(context.Background())

			convey.Convey("Then each is routed to the matching tracker call in order", func() {
				convey.So(tr.Calls(), convey.ShouldResemble, []string{
					"start:u:a:1700000000",
					"stop:u:a:1700000003",
					"view:u:a:1.5s",
					"like:u:a:true",
					"like:u:a:false",
					"click:u:a",
				})
				convey.So(waitDone(w), convey.ShouldBeTrue)
			})
		})

		convey.Convey("When the context is cancelled", func() {
			ctx, cancel := context.WithCancel(context.Background())
			inner := queue.NewInMemoryQueue(queue.WithCapacity(4))
			w := worker.NewInMemoryWorker(inner, tr, worker.WithLogger(logging.NewNop()))
			go w.Run(ctx)
			cancel()

			convey.Convey("Then the worker stops", func() {
				convey.So(waitDone(w), convey.ShouldBeTrue)
			})
		})
	})
}

func TestPool(t *testing.T) {
	convey.Convey("Given a pool of three workers on a real queue", t, func() {
		q := queue.NewInMemoryQueue(queue.WithCapacity(100))
		tr := &mockTracker{}
		pool := worker.NewPool(3, q, tr, logging.NewNop())
		convey.So(pool.Size(), convey.ShouldEqual, 3)

		pool.Start(context.Background())
		for i := 0; i < 50; i++ {
			err := q.Enqueue(context.Background(), queue.Event{
				EventID: fmt.Sprintf("e-%d", i), UserID: "u", ItemID: fmt.Sprintf("a-%d", i), Kind: model.KindClick,
			})
			convey.So(err, convey.ShouldBeNil)
		}

		convey.Convey("When the pool shuts down", func() {
			err := pool.Shutdown(context.Background())

			convey.Convey("Then every queued interaction was applied", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(tr.Calls(), convey.ShouldHaveLength, 50)
				convey.So(q.IsClosed(), convey.ShouldBeTrue)
			})
		})
	})

	convey.Convey("Given a pool that was never started", t, func() {
		q := queue.NewInMemoryQueue(queue.WithCapacity(1))
		pool := worker.NewPool(0, q, &mockTracker{}, nil)

		convey.Convey("Then shutdown returns immediately and sizes from the CPU count", func() {
			convey.So(pool.Size(), convey.ShouldBeGreaterThan, 0)
			convey.So(pool.Shutdown(context.Background()), convey.ShouldBeNil)
		})
	})
}

func TestPoolOrdering(t *testing.T) {
	t0 := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)

	convey.Convey("Given eight workers and interleaved interactions for many user x item pairs", t, func() {
		const pairs = 200
		q := queue.NewInMemoryQueue(queue.WithCapacity(pairs * 4))
		tr := &mockTracker{}
		pool := worker.NewPool(8, q, tr, logging.NewNop())

		for step, kind := range []model.InteractionKind{model.KindViewStart, model.KindViewStop, model.KindClick, model.KindUnlike} {
			for i := range pairs {
				err := q.Enqueue(context.Background(), queue.Event{
					EventID: fmt.Sprintf("e-%d-%d", step, i),
					UserID:  fmt.Sprintf("u-%d", i),
					ItemID:  fmt.Sprintf("a-%d", i%7),
					Kind:    kind,
					TS:      t0.Add(time.Duration(step) * time.Second),
				})
				convey.So(err, convey.ShouldBeNil)
			}
		}
		pool.Start(context.Background())
		convey.So(pool.Shutdown(context.Background()), convey.ShouldBeNil)

		convey.Convey("Then each pair's interactions were applied in queue order", func() {
			perPair := map[string][]string{}
			for _, c := range tr.Calls() {
				parts := strings.SplitN(c, ":", 4)
				key := parts[1] + "/" + parts[2]
				perPair[key] = append(perPair[key], parts[0])
			}
			convey.So(perPair, convey.ShouldHaveLength, pairs)
			for _, methods := range perPair {
				convey.So(methods, convey.ShouldResemble, []string{"start", "stop", "click", "like"})
			}
		})
	})

	convey.Convey("Given a real tracker behind eight workers", t, func() {
		const pairs = 5000
		tr := tracker.New(repository.NewMemoryStore(), tracker.WithLogger(logging.NewNop()))
		q := queue.NewInMemoryQueue(queue.WithCapacity(pairs * 2))
		pool := worker.NewPool(8, q, tr, logging.NewNop())
		pool.Start(context.Background())

		convey.Convey("When every user starts and stops a two second view", func() {
			for i := range pairs {
				user := fmt.Sprintf("u-%d", i)
				convey.So(q.Enqueue(context.Background(), queue.Event{
					EventID: user + "-start", UserID: user, ItemID: "a-1", Kind: model.KindViewStart, TS: t0,
				}), convey.ShouldBeNil)
				convey.So(q.Enqueue(context.Background(), queue.Event{
					EventID: user + "-stop", UserID: user, ItemID: "a-1", Kind: model.KindViewStop, TS: t0.Add(2 * time.Second),
				}), convey.ShouldBeNil)
			}
			convey.So(pool.Shutdown(context.Background()), convey.ShouldBeNil)

			convey.Convey("Then every view is buffered and no marker is left behind", func() {
				convey.So(tr.Pending(), convey.ShouldEqual, pairs)
				convey.So(tr.Tracking(), convey.ShouldEqual, 0)
			})
		})
	})
}
