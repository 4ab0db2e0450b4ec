// Package db provides PostgreSQL-backed repository implementations for the
// CityPulse platform. All repositories accept a DBTX interface that is
// satisfied by both *pgxpool.Pool (for normal queries) and pgx.Tx (for
// transactional execution), enabling clean transaction support.
package db

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"citypulse/internal/types"
)

// DBTX is the minimal interface shared by *pgxpool.Pool and pgx.Tx.
// Repositories accept this so the same code works inside or outside a
// transaction.
type DBTX interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// WithTx runs fn inside a transaction, committing on nil error and rolling
// back otherwise. The snapshot reload path uses this so readers never observe
// a half-replaced domain.
func WithTx(ctx context.Context, pool *pgxpool.Pool, fn func(tx pgx.Tx) error) error {
	tx, err := pool.Begin(ctx)
	if err != nil {
		return types.NewAppError(types.ErrCodePersistence, "failed to begin transaction", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return types.NewAppError(types.ErrCodePersistence, "failed to commit transaction", err)
	}
	return nil
}

// nilIfEmptyString returns nil if the string is empty, otherwise returns a
// pointer to it. Used for nullable text columns.
func nilIfEmptyString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// nilIfZeroTime returns nil for the zero time, otherwise a pointer to it.
// Used for nullable timestamp columns defaulted in SQL.
func nilIfZeroTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

// windowStart extracts the Start time from a TimeWindow pointer, returning
// nil if the pointer is nil. Used for the nullable window_start column.
func windowStart(w *types.TimeWindow) *time.Time {
	if w == nil {
		return nil
	}
	return &w.Start
}

// windowEnd extracts the End time from a TimeWindow pointer. A zero End is
// stored as NULL (open-ended window).
func windowEnd(w *types.TimeWindow) *time.Time {
	if w == nil || w.End.IsZero() {
		return nil
	}
	return &w.End
}

// coordLat returns the latitude of a nullable coordinate.
func coordLat(c *types.Coordinate) *float64 {
	if c == nil {
		return nil
	}
	return &c.Lat
}

// coordLon returns the longitude of a nullable coordinate.
func coordLon(c *types.Coordinate) *float64 {
	if c == nil {
		return nil
	}
	return &c.Lon
}

// placeholderRow builds "($n, $n+1, ...)" for multi-row INSERT statements.
func placeholderRow(base, count int) string {
	out := "("
	for j := 0; j < count; j++ {
		if j > 0 {
			out += ", "
		}
		out += fmt.Sprintf("$%d", base+j+1)
	}
	return out + ")"
}
