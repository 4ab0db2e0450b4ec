package db

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"citypulse/internal/types"
)

// TriggerStateRepository provides data access for the trigger_states table,
// the per (interest, domain key) evaluation memory behind hysteresis.
//
// The evaluation engine serializes work per interest, so plain read-modify-
// write is safe here; there is never more than one writer for a given row.
type TriggerStateRepository struct {
	db DBTX
}

// NewTriggerStateRepository creates a new TriggerStateRepository backed by
// the given database connection (pool or transaction).
func NewTriggerStateRepository(db DBTX) *TriggerStateRepository {
	return &TriggerStateRepository{db: db}
}

// Get retrieves the state row for one interest and domain key. Returns nil
// on first evaluation (no row yet).
func (r *TriggerStateRepository) Get(ctx context.Context, interestID, domainKey string) (*types.TriggerState, error) {
	var st types.TriggerState
	err := r.db.QueryRow(ctx,
		`SELECT user_id, interest_id, domain_key,
			last_value, last_bucket, last_notified_bucket,
			last_notified_at, episode_seq, updated_at
		 FROM trigger_states
		 WHERE interest_id = $1 AND domain_key = $2`,
		interestID, domainKey,
	).Scan(
		&st.UserID,
		&st.InterestID,
		&st.DomainKey,
		&st.LastValue,
		&st.LastBucket,
		&st.LastNotifiedBucket,
		&st.LastNotifiedAt,
		&st.EpisodeSeq,
		&st.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, types.NewAppError(types.ErrCodePersistence, "failed to read trigger state", err)
	}
	return &st, nil
}

// ListByInterest returns every state row an interest owns, ordered by domain
// key. The evaluation engine folds these per cycle: the worst record behind
// an interest can move between domain keys, and the notified bucket has to be
// tracked across all of them.
func (r *TriggerStateRepository) ListByInterest(ctx context.Context, interestID string) ([]types.TriggerState, error) {
	rows, err := r.db.Query(ctx,
		`SELECT user_id, interest_id, domain_key,
			last_value, last_bucket, last_notified_bucket,
			last_notified_at, episode_seq, updated_at
		 FROM trigger_states
		 WHERE interest_id = $1
		 ORDER BY domain_key`,
		interestID,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodePersistence, "failed to list trigger states", err)
	}
	defer rows.Close()

	var states []types.TriggerState
	for rows.Next() {
		var st types.TriggerState
		if err := rows.Scan(
			&st.UserID,
			&st.InterestID,
			&st.DomainKey,
			&st.LastValue,
			&st.LastBucket,
			&st.LastNotifiedBucket,
			&st.LastNotifiedAt,
			&st.EpisodeSeq,
			&st.UpdatedAt,
		); err != nil {
			return nil, types.NewAppError(types.ErrCodePersistence, "failed to scan trigger state row", err)
		}
		states = append(states, st)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodePersistence, "error iterating trigger state rows", err)
	}
	return states, nil
}

// Upsert writes the state row back after an evaluation cycle.
func (r *TriggerStateRepository) Upsert(ctx context.Context, st *types.TriggerState) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO trigger_states (
			user_id, interest_id, domain_key,
			last_value, last_bucket, last_notified_bucket,
			last_notified_at, episode_seq, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW())
		ON CONFLICT (interest_id, domain_key) DO UPDATE SET
			last_value = EXCLUDED.last_value,
			last_bucket = EXCLUDED.last_bucket,
			last_notified_bucket = EXCLUDED.last_notified_bucket,
			last_notified_at = EXCLUDED.last_notified_at,
			episode_seq = EXCLUDED.episode_seq,
			updated_at = NOW()`,
		st.UserID,
		st.InterestID,
		st.DomainKey,
		st.LastValue,
		st.LastBucket,
		st.LastNotifiedBucket,
		st.LastNotifiedAt,
		st.EpisodeSeq,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodePersistence, "failed to upsert trigger state", err)
	}
	return nil
}
