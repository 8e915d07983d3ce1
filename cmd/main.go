package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/okian/feedrank/internal/adapters/http/api"
	"github.com/okian/feedrank/internal/adapters/http/swagger"
	service "github.com/okian/feedrank/internal/app"
	"github.com/okian/feedrank/internal/config"
	"github.com/okian/feedrank/internal/supervisor"
	"github.com/okian/feedrank/pkg/logger"
	"github.com/okian/feedrank/pkg/metrics"
)

// HTTP server timeout constants.
const (
	readTimeout               = 10 * time.Second
	writeTimeout              = 10 * time.Second
	idleTimeout               = 60 * time.Second
	readHeaderTimeout         = 5 * time.Second
	shutdownTimeout           = 30 * time.Second
	systemMetricsInterval     = 10 * time.Second
	serviceMetricsInterval    = 5 * time.Second
	nanosecondsPerMillisecond = 1e6
)

func main() {
	if err := logger.Init(); err != nil {
		os.Stderr.WriteString("failed to initialize logging: " + err.Error() + "\n")
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	log := logger.Get()

	// Root context with cancel on SIGINT/SIGTERM.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// defaults -> optional file -> env
	cfg, err := config.Load(ctx)
	if err != nil {
		log.Error(ctx, "failed to load config", logger.Error(err))
		os.Exit(1)
	}

	if err := logger.SetLevelString(cfg.LogLevel); err != nil {
		log.Warn(ctx, "invalid log_level; falling back to info", logger.String("log_level", cfg.LogLevel), logger.Error(err))
		_ = logger.SetLevelString("info")
	}

	svc := service.New(append(service.OptionsFromConfig(cfg), service.WithLogger(log))...)
	if err := svc.Start(ctx); err != nil {
		log.Error(ctx, "failed to start service", logger.Error(err))
		os.Exit(1)
	}

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           newRouter(cfg, svc, log),
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	tree := newTree(svc, srv, log)
	log.Info(ctx, "starting HTTP server", logger.String("addr", cfg.Addr), logger.String("store", cfg.StoreDriver))
	if err := tree.Serve(ctx); err != nil && ctx.Err() == nil {
		log.Error(ctx, "supervisor stopped", logger.Error(err))
	}
	if report, err := tree.UnstoppedServiceReport(); err == nil && len(report) > 0 {
		log.Warn(ctx, "services did not stop in time", logger.Int("count", len(report)))
	}

	stopCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := svc.Stop(stopCtx); err != nil {
		log.Error(ctx, "service shutdown failed", logger.Error(err))
	}
	log.Info(ctx, "server stopped")
}

// newRouter builds the API routes plus the OpenAPI document.
func newRouter(cfg *config.Config, svc *service.Service, log logger.Logger) chi.Router {
	apiServer := api.NewServer(svc, svc,
		api.WithLogger(log.Named("api")),
		api.WithMaxFeedItems(cfg.MaxFeedItems),
		api.WithMaxTrendingLimit(cfg.MaxTrendingLimit),
		api.WithEventsRateLimit(cfg.EventsRatePerSec, cfg.EventsBurst),
	)
	r := apiServer.Router()
	swagger.Register(r)
	return r
}

// newTree supervises the flush loop, the metrics tickers and the HTTP server.
func newTree(svc *service.Service, srv supervisor.HTTPServer, log logger.Logger) *supervisor.Tree {
	tree := supervisor.New(log.Named("supervisor").Slog(), supervisor.DefaultTreeConfig())
	tree.AddEngineService(svc.FlushLoop())
	tree.AddEngineService(supervisor.NewTickerService("system-metrics", systemMetricsInterval,
		func(context.Context) { updateSystemMetrics() }))
	tree.AddEngineService(supervisor.NewTickerService("service-metrics", serviceMetricsInterval,
		func(context.Context) { updateServiceMetrics(svc) }))
	tree.AddAPIService(supervisor.NewHTTPService(srv, shutdownTimeout))
	return tree
}

// updateSystemMetrics updates system-level metrics.
func updateSystemMetrics() {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	metrics.UpdateSystemMemoryUsage(m.Alloc)
	metrics.UpdateSystemGoroutineCount(runtime.NumGoroutine())

	if m.NumGC > 0 {
		avgPauseMs := float64(m.PauseTotalNs) / float64(m.NumGC) / nanosecondsPerMillisecond
		metrics.RecordSystemGCPauseTime(avgPauseMs)
	}
}

// updateServiceMetrics updates service-level metrics. GetStats refreshes the
// queue, tracked-item and pending-view gauges itself.
func updateServiceMetrics(svc *service.Service) {
	stats := svc.GetStats()
	if workerCount, ok := stats["workerCount"].(int); ok {
		metrics.UpdateWorkerCount(workerCount)
	}
}
