// Package main is the operator-run full index rebuild. It clears every
// search document and re-projects the committed snapshots from PostgreSQL.
//
// Destructive by design, which is exactly why it is a separate binary: the
// periodic schedule can never reach ClearAll.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"citypulse/internal/config"
	"citypulse/internal/db"
	"citypulse/internal/search"
)

const rebuildTimeout = 10 * time.Minute

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	ctx, cancel := context.WithTimeout(context.Background(), rebuildTimeout)
	defer cancel()

	pool, err := pgxpool.New(ctx, cfg.Database.URL)
	if err != nil {
		return fmt.Errorf("connecting database: %w", err)
	}
	defer pool.Close()

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer rdb.Close()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("pinging redis: %w", err)
	}

	indexer := search.NewIndexer(search.NewRedisStore(rdb), db.NewSnapshotRepository(pool), logger)

	logger.Info("clearing search index")
	if err := indexer.ClearAll(ctx); err != nil {
		return fmt.Errorf("clearing index: %w", err)
	}

	logger.Info("rebuilding search index")
	n, err := indexer.SyncAll(ctx)
	if err != nil {
		return fmt.Errorf("rebuilding index: %w", err)
	}

	logger.Info("index rebuild complete", slog.Int("documents", n))
	return nil
}
