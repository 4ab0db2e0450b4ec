package db

import (
	"context"
	"time"

	"citypulse/internal/types"
)

// JobRunRepository provides data access for the job_runs table, the
// per-execution history behind the operational surface and the skip audit
// trail. Rows are ephemeral; the cleanup job prunes them.
type JobRunRepository struct {
	db DBTX
}

// NewJobRunRepository creates a new JobRunRepository backed by the given
// database connection (pool or transaction).
func NewJobRunRepository(db DBTX) *JobRunRepository {
	return &JobRunRepository{db: db}
}

// Start inserts an in-flight run row and fills run.ID.
func (r *JobRunRepository) Start(ctx context.Context, run *types.JobRun) error {
	err := r.db.QueryRow(ctx,
		`INSERT INTO job_runs (job_key, started_at, outcome)
		 VALUES ($1, $2, '')
		 RETURNING id`,
		run.JobKey, run.StartedAt,
	).Scan(&run.ID)
	if err != nil {
		return types.NewAppError(types.ErrCodePersistence, "failed to record job start", err)
	}
	return nil
}

// Finish writes the terminal outcome for a run started with Start.
func (r *JobRunRepository) Finish(ctx context.Context, run *types.JobRun) error {
	_, err := r.db.Exec(ctx,
		`UPDATE job_runs SET
			finished_at = $1,
			outcome = $2,
			item_count = $3,
			source_errors = $4,
			error = $5
		 WHERE id = $6`,
		run.FinishedAt,
		run.Outcome,
		run.ItemCount,
		run.SourceErrs,
		nilIfEmptyString(run.Error),
		run.ID,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodePersistence, "failed to record job finish", err)
	}
	return nil
}

// RecordSkipped inserts a terminal skipped row in one statement. Skip events
// happen when a run request arrives while the previous run of the same key
// is still in flight; they are recorded, never queued.
func (r *JobRunRepository) RecordSkipped(ctx context.Context, jobKey string, at time.Time) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO job_runs (job_key, started_at, finished_at, outcome)
		 VALUES ($1, $2, $2, $3)`,
		jobKey, at, types.JobSkipped,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodePersistence, "failed to record skipped run", err)
	}
	return nil
}

// ListRecent returns the most recent runs, newest first, optionally filtered
// by job key. Backs the operational job listing.
func (r *JobRunRepository) ListRecent(ctx context.Context, jobKey string, limit int) ([]types.JobRun, error) {
	if limit <= 0 {
		limit = 20
	}
	if limit > 200 {
		limit = 200
	}

	query := `SELECT id, job_key, started_at, finished_at, outcome,
			COALESCE(item_count, 0), COALESCE(source_errors, '[]'::jsonb), COALESCE(error, '')
		 FROM job_runs`
	args := []any{}
	if jobKey != "" {
		query += ` WHERE job_key = $1 ORDER BY started_at DESC LIMIT $2`
		args = append(args, jobKey, limit)
	} else {
		query += ` ORDER BY started_at DESC LIMIT $1`
		args = append(args, limit)
	}

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodePersistence, "failed to list job runs", err)
	}
	defer rows.Close()

	var runs []types.JobRun
	for rows.Next() {
		var run types.JobRun
		if err := rows.Scan(
			&run.ID,
			&run.JobKey,
			&run.StartedAt,
			&run.FinishedAt,
			&run.Outcome,
			&run.ItemCount,
			&run.SourceErrs,
			&run.Error,
		); err != nil {
			return nil, types.NewAppError(types.ErrCodePersistence, "failed to scan job run row", err)
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodePersistence, "error iterating job run rows", err)
	}
	return runs, nil
}

// PruneBefore deletes finished runs that started before the cutoff. Returns
// the number of deleted rows.
func (r *JobRunRepository) PruneBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := r.db.Exec(ctx,
		`DELETE FROM job_runs
		 WHERE started_at < $1 AND finished_at IS NOT NULL`,
		cutoff,
	)
	if err != nil {
		return 0, types.NewAppError(types.ErrCodePersistence, "failed to prune job runs", err)
	}
	return tag.RowsAffected(), nil
}
