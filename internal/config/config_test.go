package config_test

import (
	"context"
	"errors"
	"runtime"
	"testing"

	"github.com/okian/feedrank/internal/config"
	"github.com/okian/feedrank/internal/domain/scoring"
	"github.com/smartystreets/goconvey/convey"
)

func TestConfig_New(t *testing.T) {
	convey.Convey("Given a new config with default options", t, func() {
		cfg := config.New(context.Background())

		convey.Convey("Then it should have sensible defaults", func() {
			convey.So(cfg.Addr, convey.ShouldEqual, ":9080")
			convey.So(cfg.EventQueueSize, convey.ShouldEqual, 100_000)
			convey.So(cfg.WorkerCount, convey.ShouldEqual, runtime.NumCPU()*4)
			convey.So(cfg.StoreDriver, convey.ShouldEqual, config.DriverMemory)
			convey.So(cfg.BatchReadLimit, convey.ShouldEqual, 10)
			convey.So(cfg.FlushInterval().Seconds(), convey.ShouldEqual, 5)
			convey.So(cfg.MinView().Seconds(), convey.ShouldEqual, 1)
			convey.So(cfg.MarkerTTL().Hours(), convey.ShouldEqual, 1)
			convey.So(cfg.DiversityPenalty, convey.ShouldEqual, 0.15)
			convey.So(cfg.ScoreWeights, convey.ShouldResemble, scoring.DefaultWeights())
			convey.So(cfg.Validate(), convey.ShouldBeNil)
		})
	})
}

func TestConfig_Validate(t *testing.T) {
	convey.Convey("Given a default config", t, func() {
		cfg := config.New(context.Background())

		cases := map[string]func(*config.Config){
			"empty addr":          func(c *config.Config) { c.Addr = "" },
			"unknown driver":      func(c *config.Config) { c.StoreDriver = "postgres" },
			"sqlite without path": func(c *config.Config) { c.StoreDriver = config.DriverSQLite; c.SQLitePath = "" },
			"batch over limit":    func(c *config.Config) { c.BatchReadLimit = 11 },
			"zero half life":      func(c *config.Config) { c.HalfLifeDays = 0 },
			"negative penalty":    func(c *config.Config) { c.DiversityPenalty = -1 },
			"zero flush interval": func(c *config.Config) { c.FlushIntervalMS = 0 },
			"zero marker ttl":     func(c *config.Config) { c.MarkerTTLMS = 0 },
		}
		for name, mutate := range cases {
			convey.Convey("When "+name, func() {
				mutate(cfg)

				convey.Convey("Then validation fails with ErrInvalidConfig", func() {
					convey.So(errors.Is(cfg.Validate(), config.ErrInvalidConfig), convey.ShouldBeTrue)
				})
			})
		}
	})
}
