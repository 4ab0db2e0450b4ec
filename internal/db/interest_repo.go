package db

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"citypulse/internal/types"
)

// InterestRepository provides data access for the user_interests table.
type InterestRepository struct {
	db DBTX
}

// NewInterestRepository creates a new InterestRepository backed by the given
// database connection (pool or transaction).
func NewInterestRepository(db DBTX) *InterestRepository {
	return &InterestRepository{db: db}
}

const interestColumns = `i.id, i.user_id, i.category,
	i.location_lat, i.location_lon, i.radius_km,
	i.notify_on_clear, i.created_at`

func scanInterest(rows pgx.Rows) (types.UserInterest, error) {
	var in types.UserInterest
	var (
		lat    *float64
		lon    *float64
		radius *float64
	)
	err := rows.Scan(
		&in.ID,
		&in.UserID,
		&in.Category,
		&lat,
		&lon,
		&radius,
		&in.NotifyOnClear,
		&in.CreatedAt,
	)
	if err != nil {
		return types.UserInterest{}, err
	}
	if lat != nil && lon != nil {
		in.Location = &types.Coordinate{Lat: *lat, Lon: *lon}
	}
	if radius != nil {
		in.RadiusKM = *radius
	}
	return in, nil
}

// Create inserts a new interest, generating a prefixed UUID when the caller
// leaves the ID unset.
func (r *InterestRepository) Create(ctx context.Context, in *types.UserInterest) error {
	if in.ID == "" {
		in.ID = "int_" + uuid.NewString()
	}
	var radius *float64
	if in.RadiusKM > 0 {
		radius = &in.RadiusKM
	}
	_, err := r.db.Exec(ctx,
		`INSERT INTO user_interests (
			id, user_id, category,
			location_lat, location_lon, radius_km,
			notify_on_clear, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, COALESCE($8, NOW()))`,
		in.ID,
		in.UserID,
		in.Category,
		coordLat(in.Location),
		coordLon(in.Location),
		radius,
		in.NotifyOnClear,
		nilIfZeroTime(in.CreatedAt),
	)
	if err != nil {
		return types.NewAppError(types.ErrCodePersistence, "failed to create interest", err)
	}
	return nil
}

// GetByID retrieves one interest. Returns nil if not found.
func (r *InterestRepository) GetByID(ctx context.Context, id string) (*types.UserInterest, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+interestColumns+`
		 FROM user_interests i
		 WHERE i.id = $1`,
		id,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodePersistence, "failed to get interest", err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, types.NewAppError(types.ErrCodePersistence, "failed to get interest", err)
		}
		return nil, nil
	}
	in, err := scanInterest(rows)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodePersistence, "failed to scan interest", err)
	}
	return &in, nil
}

// ListByCategory returns every interest subscribed to the given domain,
// ordered by creation time. Evaluation walks this list per cycle.
func (r *InterestRepository) ListByCategory(ctx context.Context, category types.Domain) ([]types.UserInterest, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+interestColumns+`
		 FROM user_interests i
		 WHERE i.category = $1
		 ORDER BY i.created_at, i.id`,
		category,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodePersistence, "failed to list interests", err)
	}
	defer rows.Close()

	var interests []types.UserInterest
	for rows.Next() {
		in, scanErr := scanInterest(rows)
		if scanErr != nil {
			return nil, types.NewAppError(types.ErrCodePersistence, "failed to scan interest row", scanErr)
		}
		interests = append(interests, in)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodePersistence, "error iterating interest rows", err)
	}
	return interests, nil
}

// Delete removes an interest together with its trigger state, so a
// re-created interest starts from a clean evaluation history.
func (r *InterestRepository) Delete(ctx context.Context, id string) error {
	if _, err := r.db.Exec(ctx,
		`DELETE FROM trigger_states WHERE interest_id = $1`, id,
	); err != nil {
		return types.NewAppError(types.ErrCodePersistence, "failed to delete interest trigger state", err)
	}
	tag, err := r.db.Exec(ctx,
		`DELETE FROM user_interests WHERE id = $1`, id,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodePersistence, "failed to delete interest", err)
	}
	if tag.RowsAffected() == 0 {
		return types.NewAppError(types.ErrCodePersistence, "interest not found", pgx.ErrNoRows)
	}
	return nil
}
