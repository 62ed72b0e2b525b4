package db

import (
	"context"
	"time"

	"github.com/google/uuid"

	"talentsphere/internal/types"
)

// DeliveryLogRepository provides data access for the delivery_logs table. The
// table is append-only: rows record final delivery outcomes and are never
// updated except for the engagement timestamps.
type DeliveryLogRepository struct {
	db DBTX
}

// NewDeliveryLogRepository creates a DeliveryLogRepository backed by the given
// database connection (pool or transaction).
func NewDeliveryLogRepository(db DBTX) *DeliveryLogRepository {
	return &DeliveryLogRepository{db: db}
}

// Insert appends one delivery outcome. If the ID is empty a UUID is generated.
func (r *DeliveryLogRepository) Insert(ctx context.Context, l *types.DeliveryLog) error {
	if l.ID == "" {
		l.ID = uuid.NewString()
	}

	err := r.db.QueryRow(ctx,
		`INSERT INTO delivery_logs
		 (id, notification_id, user_id, channel, status, recipient, provider_response, sent_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, COALESCE($8, NOW()))
		 RETURNING sent_at`,
		l.ID,
		l.NotificationID,
		l.UserID,
		string(l.Channel),
		string(l.Status),
		l.Recipient,
		nilIfEmpty(l.ProviderResponse),
		nilIfZeroTime(l.SentAt),
	).Scan(&l.SentAt)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to insert delivery log", err)
	}
	return nil
}

// ListByUser returns a user's delivery logs newest-first.
func (r *DeliveryLogRepository) ListByUser(ctx context.Context, userID string, limit int) ([]*types.DeliveryLog, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}

	rows, err := r.db.Query(ctx,
		`SELECT id, notification_id, user_id, channel, status, recipient,
		        COALESCE(provider_response, ''), sent_at, opened_at, clicked_at
		 FROM delivery_logs
		 WHERE user_id = $1
		 ORDER BY sent_at DESC
		 LIMIT $2`,
		userID, limit,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to list delivery logs", err)
	}
	defer rows.Close()

	var results []*types.DeliveryLog
	for rows.Next() {
		var (
			l       types.DeliveryLog
			channel string
			status  string
		)
		if err := rows.Scan(&l.ID, &l.NotificationID, &l.UserID, &channel, &status,
			&l.Recipient, &l.ProviderResponse, &l.SentAt, &l.OpenedAt, &l.ClickedAt); err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan delivery log", err)
		}
		l.Channel = types.Channel(channel)
		l.Status = types.LogStatus(status)
		results = append(results, &l)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "error iterating delivery logs", err)
	}

	return results, nil
}

// CountEmailsSentToday counts successful email deliveries since the start of
// the user's current day. Feeds the daily email cap in the resolver.
func (r *DeliveryLogRepository) CountEmailsSentToday(ctx context.Context, userID string, dayStart time.Time) (int, error) {
	var count int
	err := r.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM delivery_logs
		 WHERE user_id = $1 AND channel = 'email' AND status = 'sent' AND sent_at >= $2`,
		userID, dayStart,
	).Scan(&count)
	if err != nil {
		return 0, types.NewAppError(types.ErrCodeInternalDB, "failed to count emails sent today", err)
	}
	return count, nil
}

// MarkOpened records the first open of a delivered email, keyed by the
// provider message id echoed back in engagement events. Later opens keep the
// original timestamp.
func (r *DeliveryLogRepository) MarkOpened(ctx context.Context, providerMessageID string, at time.Time) error {
	_, err := r.db.Exec(ctx,
		`UPDATE delivery_logs SET opened_at = $2
		 WHERE provider_response = $1 AND opened_at IS NULL`,
		providerMessageID, at,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to mark delivery opened", err)
	}
	return nil
}

// MarkClicked records the first click-through of a delivered email.
func (r *DeliveryLogRepository) MarkClicked(ctx context.Context, providerMessageID string, at time.Time) error {
	_, err := r.db.Exec(ctx,
		`UPDATE delivery_logs SET clicked_at = $2
		 WHERE provider_response = $1 AND clicked_at IS NULL`,
		providerMessageID, at,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to mark delivery clicked", err)
	}
	return nil
}
