package db

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"citypulse/internal/types"
)

// recordInsertChunk bounds the number of rows per multi-row INSERT so the
// statement stays under PostgreSQL's 65535 parameter limit.
const recordInsertChunk = 500

// SnapshotMeta is the per-domain snapshot bookkeeping row: when the domain
// was last committed and in what state.
type SnapshotMeta struct {
	Domain      types.Domain         `json:"domain"`
	Status      types.SnapshotStatus `json:"status"`
	FetchedAt   time.Time            `json:"fetched_at"`
	RecordCount int                  `json:"record_count"`
	UpdatedAt   time.Time            `json:"updated_at"`
}

// SnapshotRepository provides data access for the domain_records and
// domain_snapshots tables. Reload-strategy writes must run inside a
// transaction (pass a pgx.Tx as the DBTX) so a half-replaced domain is never
// visible to readers.
type SnapshotRepository struct {
	db DBTX
}

// NewSnapshotRepository creates a new SnapshotRepository backed by the given
// database connection (pool or transaction).
func NewSnapshotRepository(db DBTX) *SnapshotRepository {
	return &SnapshotRepository{db: db}
}

// recordColumns is the standard column set for domain_records queries.
const recordColumns = `r.domain, r.external_id, r.name,
	r.lat, r.lon, r.district_code, r.district_name,
	r.category, r.capacity, r.available,
	r.metrics, r.attrs,
	r.window_start, r.window_end,
	r.fetched_at`

func scanRecord(rows pgx.Rows) (types.NormalizedRecord, error) {
	var rec types.NormalizedRecord
	var (
		lat          *float64
		lon          *float64
		districtCode *string
		wStart       *time.Time
		wEnd         *time.Time
	)

	err := rows.Scan(
		&rec.Domain,
		&rec.ExternalID,
		&rec.Name,
		&lat,
		&lon,
		&districtCode,
		&rec.DistrictName,
		&rec.Category,
		&rec.Capacity,
		&rec.Available,
		&rec.Metrics,
		&rec.Attrs,
		&wStart,
		&wEnd,
		&rec.FetchedAt,
	)
	if err != nil {
		return types.NormalizedRecord{}, err
	}

	if lat != nil && lon != nil {
		rec.Coordinate = &types.Coordinate{Lat: *lat, Lon: *lon}
	}
	if districtCode != nil {
		rec.DistrictCode = *districtCode
	}
	if wStart != nil {
		w := types.TimeWindow{Start: *wStart}
		if wEnd != nil {
			w.End = *wEnd
		}
		rec.Window = &w
	}
	return rec, nil
}

func recordArgs(rec *types.NormalizedRecord) []any {
	return []any{
		rec.Domain,
		rec.ExternalID,
		rec.Name,
		coordLat(rec.Coordinate),
		coordLon(rec.Coordinate),
		nilIfEmptyString(rec.DistrictCode),
		rec.DistrictName,
		rec.Category,
		rec.Capacity,
		rec.Available,
		rec.Metrics,
		rec.Attrs,
		windowStart(rec.Window),
		windowEnd(rec.Window),
		rec.FetchedAt,
	}
}

const recordInsertColumns = `domain, external_id, name,
	lat, lon, district_code, district_name,
	category, capacity, available,
	metrics, attrs,
	window_start, window_end,
	fetched_at`

const recordColCount = 15

// ReplaceRecords deletes the domain's record set and inserts the new one.
// The caller must run this inside a transaction together with SetStatus so
// the swap is atomic.
func (r *SnapshotRepository) ReplaceRecords(ctx context.Context, domain types.Domain, records []types.NormalizedRecord) error {
	if _, err := r.db.Exec(ctx,
		`DELETE FROM domain_records WHERE domain = $1`, domain,
	); err != nil {
		return types.NewAppError(types.ErrCodePersistence, "failed to clear domain records", err)
	}
	return r.insertRecords(ctx, records, "")
}

// UpsertRecords merges records by (domain, external_id). Used for domains
// whose feeds update a stable entity set in place.
func (r *SnapshotRepository) UpsertRecords(ctx context.Context, records []types.NormalizedRecord) error {
	const onConflict = ` ON CONFLICT (domain, external_id) DO UPDATE SET
		name = EXCLUDED.name,
		lat = EXCLUDED.lat,
		lon = EXCLUDED.lon,
		district_code = EXCLUDED.district_code,
		district_name = EXCLUDED.district_name,
		category = EXCLUDED.category,
		capacity = EXCLUDED.capacity,
		available = EXCLUDED.available,
		metrics = EXCLUDED.metrics,
		attrs = EXCLUDED.attrs,
		window_start = EXCLUDED.window_start,
		window_end = EXCLUDED.window_end,
		fetched_at = EXCLUDED.fetched_at`
	return r.insertRecords(ctx, records, onConflict)
}

// insertRecords bulk-inserts records in chunks using multi-row INSERT
// statements, optionally with an ON CONFLICT clause.
func (r *SnapshotRepository) insertRecords(ctx context.Context, records []types.NormalizedRecord, onConflict string) error {
	for start := 0; start < len(records); start += recordInsertChunk {
		end := start + recordInsertChunk
		if end > len(records) {
			end = len(records)
		}
		chunk := records[start:end]

		var sb strings.Builder
		sb.WriteString(`INSERT INTO domain_records (` + recordInsertColumns + `) VALUES `)
		args := make([]any, 0, len(chunk)*recordColCount)
		for i := range chunk {
			if i > 0 {
				sb.WriteString(", ")
			}
			sb.WriteString(placeholderRow(i*recordColCount, recordColCount))
			args = append(args, recordArgs(&chunk[i])...)
		}
		sb.WriteString(onConflict)

		if _, err := r.db.Exec(ctx, sb.String(), args...); err != nil {
			return types.NewAppError(types.ErrCodePersistence, "failed to insert domain records", err)
		}
	}
	return nil
}

// SetStatus upserts the domain's snapshot bookkeeping row.
func (r *SnapshotRepository) SetStatus(ctx context.Context, domain types.Domain, status types.SnapshotStatus, fetchedAt time.Time, recordCount int) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO domain_snapshots (domain, status, fetched_at, record_count, updated_at)
		 VALUES ($1, $2, $3, $4, NOW())
		 ON CONFLICT (domain) DO UPDATE SET
			status = EXCLUDED.status,
			fetched_at = EXCLUDED.fetched_at,
			record_count = EXCLUDED.record_count,
			updated_at = NOW()`,
		domain, status, fetchedAt, recordCount,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodePersistence, "failed to set snapshot status", err)
	}
	return nil
}

// MarkStale downgrades a previously committed snapshot after a failed fetch
// cycle. The record set is untouched; only the status flips so evaluation
// skips the domain. A domain with no committed snapshot is marked failed.
func (r *SnapshotRepository) MarkStale(ctx context.Context, domain types.Domain) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE domain_snapshots SET
			status = CASE WHEN status = 'failed' THEN 'failed' ELSE 'stale' END,
			updated_at = NOW()
		 WHERE domain = $1`,
		domain,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodePersistence, "failed to mark snapshot stale", err)
	}
	if tag.RowsAffected() == 0 {
		return r.SetStatus(ctx, domain, types.SnapshotFailed, time.Time{}, 0)
	}
	return nil
}

// GetMeta retrieves the snapshot bookkeeping row for a domain. Returns nil
// if the domain has never been committed.
func (r *SnapshotRepository) GetMeta(ctx context.Context, domain types.Domain) (*SnapshotMeta, error) {
	var m SnapshotMeta
	err := r.db.QueryRow(ctx,
		`SELECT domain, status, fetched_at, record_count, updated_at
		 FROM domain_snapshots WHERE domain = $1`,
		domain,
	).Scan(&m.Domain, &m.Status, &m.FetchedAt, &m.RecordCount, &m.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, types.NewAppError(types.ErrCodePersistence, "failed to read snapshot meta", err)
	}
	return &m, nil
}

// ListMeta returns the bookkeeping rows for every committed domain, ordered
// by domain. Used by the health surface and the index sync job.
func (r *SnapshotRepository) ListMeta(ctx context.Context) ([]SnapshotMeta, error) {
	rows, err := r.db.Query(ctx,
		`SELECT domain, status, fetched_at, record_count, updated_at
		 FROM domain_snapshots ORDER BY domain`)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodePersistence, "failed to list snapshot meta", err)
	}
	defer rows.Close()

	var metas []SnapshotMeta
	for rows.Next() {
		var m SnapshotMeta
		if err := rows.Scan(&m.Domain, &m.Status, &m.FetchedAt, &m.RecordCount, &m.UpdatedAt); err != nil {
			return nil, types.NewAppError(types.ErrCodePersistence, "failed to scan snapshot meta row", err)
		}
		metas = append(metas, m)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodePersistence, "error iterating snapshot meta rows", err)
	}
	return metas, nil
}

// GetSnapshot loads the committed snapshot for a domain: bookkeeping row plus
// full record set. Returns nil if the domain has never been committed.
func (r *SnapshotRepository) GetSnapshot(ctx context.Context, domain types.Domain) (*types.DataSnapshot, error) {
	meta, err := r.GetMeta(ctx, domain)
	if err != nil {
		return nil, err
	}
	if meta == nil {
		return nil, nil
	}

	rows, err := r.db.Query(ctx,
		`SELECT `+recordColumns+`
		 FROM domain_records r
		 WHERE r.domain = $1
		 ORDER BY r.external_id`,
		domain,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodePersistence, "failed to load domain records", err)
	}
	defer rows.Close()

	snap := &types.DataSnapshot{
		Domain:    domain,
		FetchedAt: meta.FetchedAt,
		Status:    meta.Status,
	}
	for rows.Next() {
		rec, scanErr := scanRecord(rows)
		if scanErr != nil {
			return nil, types.NewAppError(types.ErrCodePersistence, "failed to scan domain record", scanErr)
		}
		snap.Records = append(snap.Records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodePersistence, "error iterating domain records", err)
	}
	return snap, nil
}

// SaveRawPayload stores one cycle's compressed upstream payload for re-parse
// and debugging. Payloads are pruned by the cleanup job.
func (r *SnapshotRepository) SaveRawPayload(ctx context.Context, domain types.Domain, compressed []byte, fetchedAt time.Time) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO raw_payloads (domain, payload, fetched_at)
		 VALUES ($1, $2, $3)`,
		domain, compressed, fetchedAt,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodePersistence, "failed to save raw payload", err)
	}
	return nil
}

// PruneRawPayloads deletes stored payloads fetched before the cutoff.
// Returns the number of deleted rows.
func (r *SnapshotRepository) PruneRawPayloads(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := r.db.Exec(ctx,
		`DELETE FROM raw_payloads WHERE fetched_at < $1`, cutoff,
	)
	if err != nil {
		return 0, types.NewAppError(types.ErrCodePersistence, "failed to prune raw payloads", err)
	}
	return tag.RowsAffected(), nil
}
