package db

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"talentsphere/internal/types"
)

// PreferenceRepository provides data access for the notification_preferences
// table. One row per user; the categories map, quiet hours, and digest config
// are stored as JSONB so new categories never require schema changes.
type PreferenceRepository struct {
	db DBTX
}

// NewPreferenceRepository creates a PreferenceRepository backed by the given
// database connection (pool or transaction).
func NewPreferenceRepository(db DBTX) *PreferenceRepository {
	return &PreferenceRepository{db: db}
}

// GetOrDefault returns the user's stored preference record, lazily creating
// it with the documented defaults on first access. The insert uses ON
// CONFLICT DO NOTHING so concurrent first accesses converge on one row.
func (r *PreferenceRepository) GetOrDefault(ctx context.Context, userID string) (*types.NotificationPreference, error) {
	pref, err := r.get(ctx, userID)
	if err == nil {
		return pref, nil
	}
	var appErr *types.AppError
	if !errors.As(err, &appErr) || appErr.Code != types.ErrCodeNotFoundPreference {
		return nil, err
	}

	defaults := types.DefaultPreference(userID)
	if err := r.insertIfAbsent(ctx, defaults); err != nil {
		return nil, err
	}

	// Re-read: another writer may have won the insert race.
	return r.get(ctx, userID)
}

// Upsert replaces the user's preference record.
func (r *PreferenceRepository) Upsert(ctx context.Context, pref *types.NotificationPreference) error {
	categories, quietHours, digest, err := marshalPrefColumns(pref)
	if err != nil {
		return err
	}

	_, err = r.db.Exec(ctx,
		`INSERT INTO notification_preferences
		 (user_id, email_enabled, categories, quiet_hours, digest,
		  immediate_for_urgent, batch_enabled, max_emails_per_day, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW())
		 ON CONFLICT (user_id) DO UPDATE SET
		   email_enabled = EXCLUDED.email_enabled,
		   categories = EXCLUDED.categories,
		   quiet_hours = EXCLUDED.quiet_hours,
		   digest = EXCLUDED.digest,
		   immediate_for_urgent = EXCLUDED.immediate_for_urgent,
		   batch_enabled = EXCLUDED.batch_enabled,
		   max_emails_per_day = EXCLUDED.max_emails_per_day,
		   updated_at = NOW()`,
		pref.UserID,
		pref.EmailEnabled,
		categories,
		quietHours,
		digest,
		pref.ImmediateForUrgent,
		pref.BatchEnabled,
		pref.MaxEmailsPerDay,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to upsert preference", err)
	}
	return nil
}

// ListDigestDue returns users whose next digest slot has passed. The
// next_digest_at column is maintained by the digest runner after each send.
func (r *PreferenceRepository) ListDigestDue(ctx context.Context, now time.Time, limit int) ([]*types.NotificationPreference, error) {
	if limit <= 0 {
		limit = 100
	}

	rows, err := r.db.Query(ctx,
		`SELECT user_id, email_enabled, categories, quiet_hours, digest,
		        immediate_for_urgent, batch_enabled, max_emails_per_day, updated_at
		 FROM notification_preferences
		 WHERE (digest->>'daily_enabled' = 'true' OR digest->>'weekly_enabled' = 'true')
		   AND (next_digest_at IS NULL OR next_digest_at <= $1)
		 LIMIT $2`,
		now, limit,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to list digest-due users", err)
	}
	defer rows.Close()

	var results []*types.NotificationPreference
	for rows.Next() {
		pref, err := scanPreference(rows)
		if err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan preference row", err)
		}
		results = append(results, pref)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "error iterating preference rows", err)
	}

	return results, nil
}

// SetNextDigestAt records when the user's next digest is due.
func (r *PreferenceRepository) SetNextDigestAt(ctx context.Context, userID string, next time.Time) error {
	_, err := r.db.Exec(ctx,
		`UPDATE notification_preferences SET next_digest_at = $1 WHERE user_id = $2`,
		next, userID,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to set next digest time", err)
	}
	return nil
}

func (r *PreferenceRepository) get(ctx context.Context, userID string) (*types.NotificationPreference, error) {
	row := r.db.QueryRow(ctx,
		`SELECT user_id, email_enabled, categories, quiet_hours, digest,
		        immediate_for_urgent, batch_enabled, max_emails_per_day, updated_at
		 FROM notification_preferences
		 WHERE user_id = $1`,
		userID,
	)

	pref, err := scanPreference(row)
	if err != nil {
		if isNoRows(err) {
			return nil, types.NewAppError(types.ErrCodeNotFoundPreference, "preference not found", err)
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to get preference", err)
	}
	return pref, nil
}

func (r *PreferenceRepository) insertIfAbsent(ctx context.Context, pref *types.NotificationPreference) error {
	categories, quietHours, digest, err := marshalPrefColumns(pref)
	if err != nil {
		return err
	}

	_, err = r.db.Exec(ctx,
		`INSERT INTO notification_preferences
		 (user_id, email_enabled, categories, quiet_hours, digest,
		  immediate_for_urgent, batch_enabled, max_emails_per_day, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW())
		 ON CONFLICT (user_id) DO NOTHING`,
		pref.UserID,
		pref.EmailEnabled,
		categories,
		quietHours,
		digest,
		pref.ImmediateForUrgent,
		pref.BatchEnabled,
		pref.MaxEmailsPerDay,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to insert default preference", err)
	}
	return nil
}

// scanTarget is the single-row subset of pgx.Row and pgx.Rows.
type scanTarget interface {
	Scan(dest ...any) error
}

func scanPreference(row scanTarget) (*types.NotificationPreference, error) {
	var (
		pref       types.NotificationPreference
		categories []byte
		quietHours []byte
		digest     []byte
	)

	err := row.Scan(
		&pref.UserID,
		&pref.EmailEnabled,
		&categories,
		&quietHours,
		&digest,
		&pref.ImmediateForUrgent,
		&pref.BatchEnabled,
		&pref.MaxEmailsPerDay,
		&pref.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(categories, &pref.Categories); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(quietHours, &pref.QuietHours); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(digest, &pref.Digest); err != nil {
		return nil, err
	}

	return &pref, nil
}

func marshalPrefColumns(pref *types.NotificationPreference) (categories, quietHours, digest []byte, err error) {
	categories, err = json.Marshal(pref.Categories)
	if err != nil {
		return nil, nil, nil, types.NewAppError(types.ErrCodeInternalUnexpected, "failed to marshal categories", err)
	}
	quietHours, err = json.Marshal(pref.QuietHours)
	if err != nil {
		return nil, nil, nil, types.NewAppError(types.ErrCodeInternalUnexpected, "failed to marshal quiet hours", err)
	}
	digest, err = json.Marshal(pref.Digest)
	if err != nil {
		return nil, nil, nil, types.NewAppError(types.ErrCodeInternalUnexpected, "failed to marshal digest config", err)
	}
	return categories, quietHours, digest, nil
}
