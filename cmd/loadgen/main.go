package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/okian/feedrank/internal/loadgen"
	"github.com/okian/feedrank/pkg/logger"
)

const (
	defaultWorkers = 2 // multiplier for runtime.NumCPU()
	runTimeout     = 10 * time.Minute
)

func main() {
	cfg := &loadgen.Config{}
	flag.StringVar(&cfg.BaseURL, "url", loadgen.DefaultBaseURL, "Base URL of the service")
	flag.IntVar(&cfg.NumEvents, "events", loadgen.DefaultNumEvents, "Number of interactions to generate")
	flag.IntVar(&cfg.Users, "users", loadgen.DefaultUsers, "Number of distinct users")
	flag.IntVar(&cfg.Items, "items", loadgen.DefaultItems, "Number of distinct items")
	flag.IntVar(&cfg.Duplicates, "duplicates", 100, "Number of events to re-send with the same event_id")
	flag.IntVar(&cfg.Workers, "workers", runtime.NumCPU()*defaultWorkers, "Number of concurrent submitters")
	flag.IntVar(&cfg.TopN, "top", loadgen.DefaultTopN, "Number of trending entries to fetch")
	flag.DurationVar(&cfg.Timeout, "timeout", loadgen.DefaultTimeout, "HTTP request timeout")
	flag.DurationVar(&cfg.SettleDelay, "settle", loadgen.DefaultSettleDelay, "Wait between submission and flush")
	flag.Uint64Var(&cfg.Seed, "seed", 0, "Random seed (0 picks one)")
	flag.BoolVar(&cfg.Verbose, "verbose", false, "Log progress while submitting")
	level := flag.String("log-level", "info", "Log level")
	flag.Parse()

	if err := logger.Init(); err != nil {
		os.Stderr.WriteString("failed to initialize logging: " + err.Error() + "\n")
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()
	if err := logger.SetLevelString(*level); err != nil {
		os.Stderr.WriteString("invalid log level: " + err.Error() + "\n")
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, runTimeout)
	defer cancel()

	log := logger.Get()
	if _, err := loadgen.Run(ctx, cfg, log); err != nil {
		log.Error(ctx, "load run failed", logger.Error(err))
		os.Exit(1)
	}
}
