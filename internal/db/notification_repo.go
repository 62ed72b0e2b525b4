package db

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"talentsphere/internal/types"
)

// NotificationRepository provides data access for the notifications table.
// Notifications are retained indefinitely; nothing in this repository deletes
// rows except the user-initiated Delete.
type NotificationRepository struct {
	db DBTX
}

// NewNotificationRepository creates a NotificationRepository backed by the
// given database connection (pool or transaction).
func NewNotificationRepository(db DBTX) *NotificationRepository {
	return &NotificationRepository{db: db}
}

// Create inserts a new notification record. If the ID is empty a UUID is
// generated. CreatedAt defaults to NOW() when unset.
func (r *NotificationRepository) Create(ctx context.Context, n *types.Notification) error {
	if n.ID == "" {
		n.ID = uuid.NewString()
	}

	err := r.db.QueryRow(ctx,
		`INSERT INTO notifications
		 (id, user_id, category, priority, title, message, send_email, email_sent, read, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, FALSE, FALSE, COALESCE($8, NOW()))
		 RETURNING created_at`,
		n.ID,
		n.UserID,
		string(n.Category),
		string(n.Priority),
		n.Title,
		n.Message,
		n.SendEmail,
		nilIfZeroTime(n.CreatedAt),
	).Scan(&n.CreatedAt)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to create notification", err)
	}
	return nil
}

// Get retrieves a single notification scoped to its owner.
func (r *NotificationRepository) Get(ctx context.Context, userID, id string) (*types.Notification, error) {
	var n types.Notification
	var category, priority string
	err := r.db.QueryRow(ctx,
		`SELECT id, user_id, category, priority, title, message, send_email, email_sent, read, created_at
		 FROM notifications
		 WHERE id = $1 AND user_id = $2`,
		id, userID,
	).Scan(&n.ID, &n.UserID, &category, &priority, &n.Title, &n.Message,
		&n.SendEmail, &n.EmailSent, &n.Read, &n.CreatedAt)
	if err != nil {
		if isNoRows(err) {
			return nil, types.NewAppError(types.ErrCodeNotFoundNotification, "notification not found", err)
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to get notification", err)
	}
	n.Category = types.Category(category)
	n.Priority = types.Priority(priority)
	return &n, nil
}

// NotificationFilter narrows List results.
type NotificationFilter struct {
	UnreadOnly bool
	Category   types.Category
	Limit      int
	Before     time.Time // cursor: only rows created strictly before this instant
}

// List retrieves a user's notifications newest-first with optional filters and
// cursor-based pagination on created_at.
func (r *NotificationRepository) List(ctx context.Context, userID string, filter NotificationFilter) ([]*types.Notification, error) {
	limit := filter.Limit
	if limit <= 0 || limit > 100 {
		limit = 20
	}

	conditions := []string{"user_id = $1"}
	args := []any{userID}
	argIdx := 2

	if filter.UnreadOnly {
		conditions = append(conditions, "read = FALSE")
	}
	if filter.Category != "" {
		conditions = append(conditions, fmt.Sprintf("category = $%d", argIdx))
		args = append(args, string(filter.Category))
		argIdx++
	}
	if !filter.Before.IsZero() {
		conditions = append(conditions, fmt.Sprintf("created_at < $%d", argIdx))
		args = append(args, filter.Before)
		argIdx++
	}

	query := fmt.Sprintf(
		`SELECT id, user_id, category, priority, title, message, send_email, email_sent, read, created_at
		 FROM notifications
		 WHERE %s
		 ORDER BY created_at DESC
		 LIMIT $%d`,
		strings.Join(conditions, " AND "), argIdx,
	)
	args = append(args, limit)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to list notifications", err)
	}
	defer rows.Close()

	var results []*types.Notification
	for rows.Next() {
		var n types.Notification
		var category, priority string
		if err := rows.Scan(&n.ID, &n.UserID, &category, &priority, &n.Title, &n.Message,
			&n.SendEmail, &n.EmailSent, &n.Read, &n.CreatedAt); err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan notification row", err)
		}
		n.Category = types.Category(category)
		n.Priority = types.Priority(priority)
		results = append(results, &n)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "error iterating notification rows", err)
	}

	return results, nil
}

// MarkRead flips the read flag on a single notification owned by the user.
func (r *NotificationRepository) MarkRead(ctx context.Context, userID, id string) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE notifications SET read = TRUE WHERE id = $1 AND user_id = $2`,
		id, userID,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to mark notification read", err)
	}
	if tag.RowsAffected() == 0 {
		return types.NewAppError(types.ErrCodeNotFoundNotification, "notification not found", nil)
	}
	return nil
}

// MarkAllRead flips the read flag on every unread notification for the user.
// Returns the number of rows updated.
func (r *NotificationRepository) MarkAllRead(ctx context.Context, userID string) (int64, error) {
	tag, err := r.db.Exec(ctx,
		`UPDATE notifications SET read = TRUE WHERE user_id = $1 AND read = FALSE`,
		userID,
	)
	if err != nil {
		return 0, types.NewAppError(types.ErrCodeInternalDB, "failed to mark notifications read", err)
	}
	return tag.RowsAffected(), nil
}

// MarkEmailSent records that the email channel completed for a notification.
// Called by the dispatcher after a successful send; in-app visibility does not
// depend on it.
func (r *NotificationRepository) MarkEmailSent(ctx context.Context, id string) error {
	_, err := r.db.Exec(ctx,
		`UPDATE notifications SET email_sent = TRUE WHERE id = $1`,
		id,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to mark email sent", err)
	}
	return nil
}

// Delete removes a notification owned by the user. Queue entries and delivery
// logs cascade via foreign keys.
func (r *NotificationRepository) Delete(ctx context.Context, userID, id string) error {
	tag, err := r.db.Exec(ctx,
		`DELETE FROM notifications WHERE id = $1 AND user_id = $2`,
		id, userID,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to delete notification", err)
	}
	if tag.RowsAffected() == 0 {
		return types.NewAppError(types.ErrCodeNotFoundNotification, "notification not found", nil)
	}
	return nil
}

// Stats aggregates total/unread counts and a per-category breakdown for the
// user's stats endpoint.
func (r *NotificationRepository) Stats(ctx context.Context, userID string) (*types.NotificationStats, error) {
	stats := &types.NotificationStats{ByCategory: make(map[types.Category]int64)}

	err := r.db.QueryRow(ctx,
		`SELECT COUNT(*), COUNT(*) FILTER (WHERE read = FALSE)
		 FROM notifications WHERE user_id = $1`,
		userID,
	).Scan(&stats.Total, &stats.Unread)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to count notifications", err)
	}

	rows, err := r.db.Query(ctx,
		`SELECT category, COUNT(*) FROM notifications WHERE user_id = $1 GROUP BY category`,
		userID,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to count notifications by category", err)
	}
	defer rows.Close()

	for rows.Next() {
		var category string
		var count int64
		if err := rows.Scan(&category, &count); err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan category count", err)
		}
		stats.ByCategory[types.Category(category)] = count
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "error iterating category counts", err)
	}

	return stats, nil
}
