// Package main is the entry point for the CityPulse daemon.
//
// It loads configuration, connects PostgreSQL, Redis, and AWS, wires the
// ingestion pipeline, evaluation engine, index synchronizer, and notification
// publisher into the job registry, and serves the operational HTTP surface.
//
// Graceful shutdown is handled via OS signal interception (SIGINT, SIGTERM):
// cron dispatch stops, in-flight jobs get a drain window, then the ops server
// and connections close.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"citypulse/internal/config"
	"citypulse/internal/db"
	"citypulse/internal/eval"
	"citypulse/internal/geo"
	"citypulse/internal/ingest"
	"citypulse/internal/notify"
	"citypulse/internal/ops"
	"citypulse/internal/scheduler"
	"citypulse/internal/search"
	"citypulse/internal/sources"
	"citypulse/internal/types"
)

const shutdownGrace = 30 * time.Second

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

// run encapsulates the startup lifecycle so main() can cleanly exit on error.
func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	logger := newLogger(cfg.LogLevel)
	logger.Info("citypulse daemon starting",
		slog.String("environment", cfg.Environment),
		slog.String("ops_addr", cfg.Ops.Addr))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// PostgreSQL.
	poolCfg, err := pgxpool.ParseConfig(cfg.Database.URL)
	if err != nil {
		return fmt.Errorf("parsing database config: %w", err)
	}
	poolCfg.MaxConns = int32(cfg.Database.MaxConns)
	poolCfg.MinConns = int32(cfg.Database.MinConns)
	poolCfg.MaxConnLifetime = cfg.Database.MaxConnLifetime
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return fmt.Errorf("connecting database: %w", err)
	}
	defer pool.Close()
	if err := pool.Ping(ctx); err != nil {
		return fmt.Errorf("pinging database: %w", err)
	}

	// Redis search index.
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer rdb.Close()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("pinging redis: %w", err)
	}

	// AWS clients.
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Queue.Region))
	if err != nil {
		return fmt.Errorf("loading AWS config: %w", err)
	}
	sqsClient := sqs.NewFromConfig(awsCfg, func(o *sqs.Options) {
		if cfg.Queue.EndpointURL != "" {
			o.BaseEndpoint = aws.String(cfg.Queue.EndpointURL)
		}
	})

	var metrics notify.Metrics = notify.NoopMetrics{}
	if cfg.Queue.MetricsNamespace != "" {
		cwClient := cloudwatch.NewFromConfig(awsCfg, func(o *cloudwatch.Options) {
			if cfg.Queue.EndpointURL != "" {
				o.BaseEndpoint = aws.String(cfg.Queue.EndpointURL)
			}
		})
		metrics = notify.NewCloudWatchMetrics(cwClient, cfg.Queue.MetricsNamespace, logger)
	}

	clock := types.RealClock{}

	// Ingestion.
	httpClient := &http.Client{Timeout: cfg.Sources.FetchTimeout + 5*time.Second}
	srcClient := sources.NewClient(httpClient, "open-api", sources.DefaultRetryPolicy(),
		cfg.Sources.UserAgent, sources.WithCallTimeout(cfg.Sources.FetchTimeout))
	resolver := geo.NewResolver()
	adapters := sources.All(srcClient, cfg.Sources, resolver, clock)
	store := db.NewSnapshotStore(pool)
	pipeline := ingest.New(adapters, store, logger, clock)

	// Evaluation and publishing.
	snapshots := db.NewSnapshotRepository(pool)
	interests := db.NewInterestRepository(pool)
	states := db.NewTriggerStateRepository(pool)
	engine := eval.New(snapshots, interests, states, cfg.Eval.DefaultRadiusKM, logger, clock)

	events := db.NewNotificationRepository(pool)
	publisher := notify.NewPublisher(sqsClient, cfg.Queue.NotificationQueue, events, metrics, logger, clock)

	// Search projection.
	indexer := search.NewIndexer(search.NewRedisStore(rdb), snapshots, logger)

	// Jobs.
	runs := db.NewJobRunRepository(pool)
	registry := scheduler.NewRegistry(runs, logger, clock)
	jobs := scheduler.NewJobs(pipeline, engine, publisher, indexer,
		events, runs, store, cfg.Retain, logger, clock)
	if err := scheduler.RegisterAll(registry, cfg.Schedule, jobs); err != nil {
		return fmt.Errorf("registering jobs: %w", err)
	}
	registry.Start(ctx)

	// Ops surface.
	opsHandler := ops.NewHandler(registry, runs, snapshots, logger)
	srv := &http.Server{
		Addr:              cfg.Ops.Addr,
		Handler:           opsHandler.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	srvErr := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			srvErr <- err
		}
	}()

	logger.Info("citypulse daemon running")
	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-srvErr:
		return fmt.Errorf("ops server failed: %w", err)
	}

	// Drain.
	drainCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	registry.Stop(drainCtx)
	if err := srv.Shutdown(drainCtx); err != nil {
		logger.Warn("ops server shutdown incomplete", slog.String("error", err.Error()))
	}

	logger.Info("citypulse daemon stopped")
	return nil
}

// newLogger builds the process-wide JSON logger.
func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
}
