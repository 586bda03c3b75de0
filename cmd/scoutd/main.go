// Package main provides the leadscout daemon: scheduler, worker pool and
// operator API in one process.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/raphaelgruber/leadscout/internal/analysis"
	"github.com/raphaelgruber/leadscout/internal/config"
	"github.com/raphaelgruber/leadscout/internal/contextcache"
	"github.com/raphaelgruber/leadscout/internal/db"
	"github.com/raphaelgruber/leadscout/internal/jobs"
	"github.com/raphaelgruber/leadscout/internal/llm"
	"github.com/raphaelgruber/leadscout/internal/metrics"
	"github.com/raphaelgruber/leadscout/internal/models"
	"github.com/raphaelgruber/leadscout/internal/provider"
	"github.com/raphaelgruber/leadscout/internal/ratelimit"
	"github.com/raphaelgruber/leadscout/internal/scheduler"
	"github.com/raphaelgruber/leadscout/internal/scout"
	"github.com/raphaelgruber/leadscout/internal/server"
)

const (
	queueName  = "scout"
	providerID = "reddit"
)

func main() {
	wipeDB := flag.Bool("wipe", false, "wipe all data from database on startup (testing only)")
	flag.Parse()

	cfg := config.Load()

	logger, cleanup := config.SetupLogger(cfg.LogFile, cfg.LogLevel)
	defer cleanup()
	slog.SetDefault(logger)

	slog.Info("starting scoutd", "port", cfg.ServerPort, "workers", cfg.WorkerCount)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	connectCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	store, err := db.NewClient(connectCtx, db.Config{
		URL:       cfg.SurrealDBURL,
		Namespace: cfg.SurrealDBNamespace,
		Database:  cfg.SurrealDBDatabase,
		Username:  cfg.SurrealDBUser,
		Password:  cfg.SurrealDBPass,
		AuthLevel: cfg.SurrealDBAuthLevel,
	}, logger)
	cancel()
	if err != nil {
		slog.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := store.Close(context.Background()); err != nil {
			slog.Error("failed to close database connection", "error", err)
		}
	}()

	initCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	err = store.InitSchema(initCtx)
	cancel()
	if err != nil {
		slog.Error("failed to initialize schema", "error", err)
		os.Exit(1)
	}

	if *wipeDB || os.Getenv("LEADSCOUT_WIPE_DB") == "true" {
		wipeCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
		err = store.WipeData(wipeCtx)
		cancel()
		if err != nil {
			slog.Error("failed to wipe database", "error", err)
			os.Exit(1)
		}
	}

	collector := metrics.NewCollector()

	gate := ratelimit.NewGate(map[string]ratelimit.Config{
		providerID: {
			QPM:         cfg.RateQPM,
			BurstFactor: cfg.RateBurstFactor,
			MaxInflight: cfg.RateMaxInflight,
		},
	})
	reader := metrics.WrapReader(
		provider.NewRedditReader(providerID, cfg.ProviderBaseURL, cfg.ProviderUserAgent, cfg.ProviderTimeout, gate),
		collector)

	model, err := llm.NewModel(cfg)
	if err != nil {
		slog.Error("failed to create LLM model", "error", err, "provider", cfg.LLMProvider)
		os.Exit(1)
	}
	generator := metrics.WrapGenerator(model, collector)

	contexts := contextcache.New(store, reader, generator, cfg.ContextTTL, cfg.SummaryTimeout, cfg.AuthorItemsLimit)

	engine := analysis.NewEngine(generator, cfg.DimensionTimeout, cfg.MetaTimeout, cfg.MaxFailedDimensions)
	engine.SetRecorder(collector)

	broadcaster := server.NewBroadcaster(logger)
	events := func(ev scout.Event) {
		switch ev.Type {
		case scout.EventPostNew:
			collector.Add(metrics.CounterPostsIngested, 1)
		case scout.EventPostAnalyzed:
			collector.Add(metrics.CounterPostsAnalyzed, 1)
		case scout.EventLeadCreated:
			collector.Add(metrics.CounterLeadsCreated, 1)
		case scout.EventRunSealed:
			if ev.Message == string(models.RunCompleted) {
				collector.Add(metrics.CounterRunsCompleted, 1)
			} else {
				collector.Add(metrics.CounterRunsFailed, 1)
			}
		}
		broadcaster.Publish(ev)
	}

	svc := scout.NewService(store, reader, contexts, engine, cfg.AnalysisConcurrency, events)
	svc.UseLedger(store, queueName)

	pool := jobs.NewPool(store, queueName, cfg.WorkerCount, cfg.WorkerPollInterval)
	scout.RegisterHandlers(pool, svc, contexts)

	sched := scheduler.New(store, queueName, cfg.SchedulerTick)

	srv := server.New(cfg.ServerPort, store, svc, collector, broadcaster, queueName, logger)

	go pool.Run(ctx)
	go sched.Run(ctx)

	if err := srv.Run(ctx); err != nil {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}

	slog.Info("scoutd stopped")
}
