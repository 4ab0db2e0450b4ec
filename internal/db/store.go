package db

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"citypulse/internal/types"
)

// SnapshotStore wraps SnapshotRepository with pool-level transaction
// handling. The ingestion pipeline talks to this so reload commits are
// atomic: readers see the old snapshot until the new one is fully in place.
type SnapshotStore struct {
	pool *pgxpool.Pool
}

// NewSnapshotStore creates a SnapshotStore on the given pool.
func NewSnapshotStore(pool *pgxpool.Pool) *SnapshotStore {
	return &SnapshotStore{pool: pool}
}

// CommitReload replaces the domain's record set and bookkeeping row in one
// transaction.
func (s *SnapshotStore) CommitReload(ctx context.Context, domain types.Domain, records []types.NormalizedRecord, status types.SnapshotStatus, fetchedAt time.Time) error {
	return WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		repo := NewSnapshotRepository(tx)
		if err := repo.ReplaceRecords(ctx, domain, records); err != nil {
			return err
		}
		return repo.SetStatus(ctx, domain, status, fetchedAt, len(records))
	})
}

// CommitUpsert merges the domain's records by external identifier and
// updates the bookkeeping row in one transaction.
func (s *SnapshotStore) CommitUpsert(ctx context.Context, domain types.Domain, records []types.NormalizedRecord, status types.SnapshotStatus, fetchedAt time.Time) error {
	return WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		repo := NewSnapshotRepository(tx)
		if err := repo.UpsertRecords(ctx, records); err != nil {
			return err
		}
		return repo.SetStatus(ctx, domain, status, fetchedAt, len(records))
	})
}

// MarkStale downgrades the domain's snapshot after a failed fetch cycle.
func (s *SnapshotStore) MarkStale(ctx context.Context, domain types.Domain) error {
	return NewSnapshotRepository(s.pool).MarkStale(ctx, domain)
}

// SaveRawPayload stores the cycle's compressed upstream payload.
func (s *SnapshotStore) SaveRawPayload(ctx context.Context, domain types.Domain, compressed []byte, fetchedAt time.Time) error {
	return NewSnapshotRepository(s.pool).SaveRawPayload(ctx, domain, compressed, fetchedAt)
}

// PruneRawPayloads deletes stored payloads fetched before the cutoff.
func (s *SnapshotStore) PruneRawPayloads(ctx context.Context, cutoff time.Time) (int64, error) {
	return NewSnapshotRepository(s.pool).PruneRawPayloads(ctx, cutoff)
}
