package db

import (
	"context"
	"time"

	"citypulse/internal/types"
)

// NotificationRepository provides data access for the notification_events
// and notification_dead_letters tables.
//
// The events table carries a unique index on dedupe_key; INSERT ... ON
// CONFLICT DO NOTHING makes claiming a key atomic, so a duplicate publish of
// the same condition-crossing episode is a no-op regardless of how many
// evaluation cycles produce the same intent.
type NotificationRepository struct {
	db DBTX
}

// NewNotificationRepository creates a new NotificationRepository backed by
// the given database connection (pool or transaction).
func NewNotificationRepository(db DBTX) *NotificationRepository {
	return &NotificationRepository{db: db}
}

// ClaimDedupeKey records the intent against its dedupe key. Returns true if
// this call claimed the key (the intent must be published) and false if an
// earlier publish already holds it (duplicate, skip silently).
func (r *NotificationRepository) ClaimDedupeKey(ctx context.Context, intent *types.NotificationIntent) (bool, error) {
	tag, err := r.db.Exec(ctx,
		`INSERT INTO notification_events (
			dedupe_key, user_id, interest_id, event_type,
			domain, domain_key, bucket, episode_seq,
			title, message, trigger_condition,
			created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, COALESCE($12, NOW()))
		ON CONFLICT (dedupe_key) DO NOTHING`,
		intent.DedupeKey,
		intent.UserID,
		intent.InterestID,
		intent.Type,
		intent.Domain,
		intent.DomainKey,
		intent.Bucket,
		intent.EpisodeSeq,
		intent.Title,
		intent.Message,
		intent.TriggerCondition,
		nilIfZeroTime(intent.CreatedAt),
	)
	if err != nil {
		return false, types.NewAppError(types.ErrCodePersistence, "failed to claim dedupe key", err)
	}
	return tag.RowsAffected() > 0, nil
}

// ReleaseDedupeKey removes an unclaimed event row after a failed publish so
// a later cycle can retry the same episode. Without this, a transient queue
// outage would permanently swallow the notification.
func (r *NotificationRepository) ReleaseDedupeKey(ctx context.Context, dedupeKey string) error {
	_, err := r.db.Exec(ctx,
		`DELETE FROM notification_events
		 WHERE dedupe_key = $1 AND delivered_at IS NULL`,
		dedupeKey,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodePersistence, "failed to release dedupe key", err)
	}
	return nil
}

// MarkDelivered stamps the event row once the queue accepted the message.
func (r *NotificationRepository) MarkDelivered(ctx context.Context, dedupeKey, messageID string, attempts int) error {
	_, err := r.db.Exec(ctx,
		`UPDATE notification_events SET
			delivered_at = NOW(),
			message_id = $1,
			attempts = $2
		 WHERE dedupe_key = $3`,
		nilIfEmptyString(messageID), attempts, dedupeKey,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodePersistence, "failed to mark event delivered", err)
	}
	return nil
}

// DeadLetter persists an intent whose publish retries were exhausted. The
// intent is stored whole so an operator can replay it.
func (r *NotificationRepository) DeadLetter(ctx context.Context, intent *types.NotificationIntent, reason string, attempts int) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO notification_dead_letters (
			dedupe_key, intent, reason, attempts, created_at
		) VALUES ($1, $2, $3, $4, NOW())`,
		intent.DedupeKey, intent, reason, attempts,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodePersistence, "failed to dead-letter intent", err)
	}
	return nil
}

// PruneEvents deletes delivered events created before the cutoff. Returns
// the number of deleted rows.
func (r *NotificationRepository) PruneEvents(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := r.db.Exec(ctx,
		`DELETE FROM notification_events
		 WHERE created_at < $1 AND delivered_at IS NOT NULL`,
		cutoff,
	)
	if err != nil {
		return 0, types.NewAppError(types.ErrCodePersistence, "failed to prune notification events", err)
	}
	return tag.RowsAffected(), nil
}

// PruneDeadLetters deletes dead letters created before the cutoff. Returns
// the number of deleted rows.
func (r *NotificationRepository) PruneDeadLetters(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := r.db.Exec(ctx,
		`DELETE FROM notification_dead_letters WHERE created_at < $1`, cutoff,
	)
	if err != nil {
		return 0, types.NewAppError(types.ErrCodePersistence, "failed to prune dead letters", err)
	}
	return tag.RowsAffected(), nil
}
