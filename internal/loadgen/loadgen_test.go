package loadgen

import (
	"context"
	"errors"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/okian/feedrank/internal/adapters/http/api"
	service "github.com/okian/feedrank/internal/app"
	"github.com/okian/feedrank/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func TestGenerateEvents(t *testing.T) {
	Convey("Given a seeded generator", t, func() {
		cfg := &Config{NumEvents: 500, Users: 20, Items: 30, Duplicates: 10}
		events, expected := generateEvents(cfg, newRand(42), time.Unix(1_700_000_000, 0))

		Convey("Then it produces the events plus the re-sends", func() {
			So(len(events), ShouldEqual, 510)
			So(events[500], ShouldResemble, events[0])
			So(events[509], ShouldResemble, events[9])
		})

		Convey("And every event is well formed", func() {
			var clicks int64
			for _, e := range events[:500] {
				So(e.EventID, ShouldNotBeEmpty)
				So(e.Kind, ShouldBeIn, []string{"view", "click", "like", "unlike"})
				if e.Kind == "view" {
					So(e.DurationMS, ShouldBeBetweenOrEqual, minViewMS, maxViewMS)
				}
				if e.Kind == "click" {
					clicks++
				}
			}
			var sum int64
			for _, exp := range expected {
				sum += exp.clicks
			}
			So(sum, ShouldEqual, clicks)
		})

		Convey("And popular items come first", func() {
			So(skewedIndex(newRand(1), 1), ShouldEqual, 0)
			So(len(expected), ShouldBeLessThanOrEqualTo, 30)
		})
	})
}

func TestVerifyTrending(t *testing.T) {
	Convey("Given expectations for two items", t, func() {
		expected := map[string]*expectation{"a": {clicks: 3}, "b": {clicks: 1}}

		Convey("Then a ranked list passes", func() {
			top := []TrendingEntry{{Rank: 1, ItemID: "a", EngagementScore: 9, TotalClicks: 3}, {Rank: 2, ItemID: "b", EngagementScore: 2}}
			So(verifyTrending(top, expected), ShouldBeNil)
		})

		Convey("Then an unsorted, unknown or inflated list fails", func() {
			bad := [][]TrendingEntry{
				{{Rank: 1, ItemID: "b", EngagementScore: 2}, {Rank: 2, ItemID: "a", EngagementScore: 9}},
				{{Rank: 1, ItemID: "zzz"}},
				{{Rank: 1, ItemID: "b", TotalClicks: 5}},
				{{Rank: 2, ItemID: "a"}},
			}
			for _, top := range bad {
				So(errors.Is(verifyTrending(top, expected), ErrVerification), ShouldBeTrue)
			}
		})
	})
}

func TestRunAgainstService(t *testing.T) {
	Convey("Given a running service behind an HTTP server", t, func() {
		ctx := context.Background()
		svc := service.New(service.WithLogger(logger.NewNop()), service.WithWorkerCount(2))
		So(svc.Start(ctx), ShouldBeNil)
		defer func() { _ = svc.Stop(ctx) }()

		srv := httptest.NewServer(api.NewServer(svc, svc,
			api.WithLogger(logger.NewNop()), api.WithEventsRateLimit(0, 0)).Router())
		defer srv.Close()

		cfg := &Config{
			BaseURL: srv.URL, NumEvents: 300, Users: 25, Items: 15, Duplicates: 20,
			Workers: 4, TopN: 10, Timeout: 5 * time.Second, SettleDelay: 200 * time.Millisecond, Seed: 7,
		}

		Convey("When a load run completes", func() {
			stats, err := Run(ctx, cfg, logger.NewNop())

			Convey("Then every event was acknowledged and trending verified", func() {
				So(err, ShouldBeNil)
				So(stats.EventsSubmitted, ShouldEqual, 320)
				So(stats.EventsDuplicate, ShouldEqual, 20)
				So(stats.EventsAccepted, ShouldEqual, 300)
				So(stats.EventsFailed, ShouldEqual, 0)
				So(stats.TrendingEntries, ShouldBeGreaterThan, 0)
			})
		})
	})

	Convey("Given no service", t, func() {
		_, err := Run(context.Background(), &Config{BaseURL: "http://127.0.0.1:1", Timeout: time.Second}, logger.NewNop())

		Convey("Then the run fails the health check", func() {
			So(errors.Is(err, ErrUnhealthy), ShouldBeTrue)
		})
	})
}
