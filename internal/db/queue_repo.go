package db

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"talentsphere/internal/types"
)

// QueueRepository provides data access for the notification_queue table. The
// queue is the hand-off point between the preference resolver (which decides
// when and how to deliver) and the dispatcher (which performs delivery).
type QueueRepository struct {
	db DBTX
}

// NewQueueRepository creates a QueueRepository backed by the given database
// connection (pool or transaction).
func NewQueueRepository(db DBTX) *QueueRepository {
	return &QueueRepository{db: db}
}

// Enqueue inserts a new queue entry in pending state. If the ID is empty a
// UUID is generated.
func (r *QueueRepository) Enqueue(ctx context.Context, e *types.QueueEntry) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.Status == "" {
		e.Status = types.QueuePending
	}

	err := r.db.QueryRow(ctx,
		`INSERT INTO notification_queue
		 (id, notification_id, user_id, channel, priority, status,
		  scheduled_at, batch_key, attempt_count, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, 0, COALESCE($9, NOW()))
		 RETURNING created_at`,
		e.ID,
		e.NotificationID,
		e.UserID,
		string(e.Channel),
		string(e.Priority),
		string(e.Status),
		e.ScheduledAt,
		nilIfEmpty(e.BatchKey),
		nilIfZeroTime(e.CreatedAt),
	).Scan(&e.CreatedAt)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to enqueue delivery", err)
	}
	return nil
}

// ClaimPending atomically claims up to limit due entries, moving them from
// pending to processing. Batched entries (those carrying a batch key) are
// skipped; the digest runner drains them separately.
//
// Ordering is priority rank descending, then FIFO on creation time. SKIP
// LOCKED lets concurrent dispatchers claim disjoint sets without blocking
// each other.
func (r *QueueRepository) ClaimPending(ctx context.Context, now time.Time, limit int) ([]*types.QueueEntry, error) {
	if limit <= 0 {
		limit = 100
	}

	rows, err := r.db.Query(ctx,
		`UPDATE notification_queue SET status = 'processing', claimed_at = $1
		 WHERE id IN (
		     SELECT id FROM notification_queue
		     WHERE status = 'pending'
		       AND scheduled_at <= $1
		       AND batch_key IS NULL
		     ORDER BY
		       CASE priority
		         WHEN 'urgent' THEN 4
		         WHEN 'high'   THEN 3
		         WHEN 'normal' THEN 2
		         WHEN 'low'    THEN 1
		         ELSE 0
		       END DESC,
		       created_at ASC
		     LIMIT $2
		     FOR UPDATE SKIP LOCKED
		 )
		 RETURNING id, notification_id, user_id, channel, priority, status,
		           scheduled_at, batch_key, attempt_count, next_retry_at, created_at`,
		now, limit,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to claim pending deliveries", err)
	}
	defer rows.Close()

	return collectQueueEntries(rows)
}

// RequeueRetrying moves retrying entries whose backoff has elapsed back to
// pending so the next claim pass picks them up. Returns the number of entries
// requeued.
func (r *QueueRepository) RequeueRetrying(ctx context.Context, now time.Time) (int64, error) {
	tag, err := r.db.Exec(ctx,
		`UPDATE notification_queue
		 SET status = 'pending', next_retry_at = NULL
		 WHERE status = 'retrying' AND next_retry_at <= $1`,
		now,
	)
	if err != nil {
		return 0, types.NewAppError(types.ErrCodeInternalDB, "failed to requeue retrying deliveries", err)
	}
	return tag.RowsAffected(), nil
}

// ReclaimStuck returns entries stuck in processing longer than the threshold
// to pending. Happens when a dispatcher crashes between claim and outcome;
// the entry is re-delivered rather than lost.
func (r *QueueRepository) ReclaimStuck(ctx context.Context, olderThan time.Time) (int64, error) {
	tag, err := r.db.Exec(ctx,
		`UPDATE notification_queue
		 SET status = 'pending', claimed_at = NULL
		 WHERE status = 'processing' AND claimed_at < $1`,
		olderThan,
	)
	if err != nil {
		return 0, types.NewAppError(types.ErrCodeInternalDB, "failed to reclaim stuck deliveries", err)
	}
	return tag.RowsAffected(), nil
}

// MarkSent finalizes a processing entry as sent. The status predicate makes
// the transition conditional: a reclaimed and re-delivered entry cannot be
// finalized twice.
func (r *QueueRepository) MarkSent(ctx context.Context, id string) error {
	return r.transition(ctx, id, types.QueueProcessing, types.QueueSent,
		`UPDATE notification_queue
		 SET status = 'sent', attempt_count = attempt_count + 1
		 WHERE id = $1 AND status = 'processing'`)
}

// MarkRetrying schedules a failed attempt for retry at the given time.
func (r *QueueRepository) MarkRetrying(ctx context.Context, id string, nextRetryAt time.Time) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE notification_queue
		 SET status = 'retrying', attempt_count = attempt_count + 1, next_retry_at = $2
		 WHERE id = $1 AND status = 'processing'`,
		id, nextRetryAt,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to mark delivery retrying", err)
	}
	if tag.RowsAffected() == 0 {
		return types.NewAppError(types.ErrCodeNotFoundQueueEntry, "queue entry not in processing state", nil)
	}
	return nil
}

// MarkFailed finalizes a processing entry as permanently failed.
func (r *QueueRepository) MarkFailed(ctx context.Context, id string) error {
	return r.transition(ctx, id, types.QueueProcessing, types.QueueFailed,
		`UPDATE notification_queue
		 SET status = 'failed', attempt_count = attempt_count + 1
		 WHERE id = $1 AND status = 'processing'`)
}

func (r *QueueRepository) transition(ctx context.Context, id string, from, to types.QueueStatus, query string) error {
	tag, err := r.db.Exec(ctx, query, id)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB,
			"failed to transition delivery from "+string(from)+" to "+string(to), err)
	}
	if tag.RowsAffected() == 0 {
		return types.NewAppError(types.ErrCodeNotFoundQueueEntry, "queue entry not in "+string(from)+" state", nil)
	}
	return nil
}

// ClaimBatch atomically claims the user's pending batched entries whose
// digest slot has arrived, moving them to processing. The digest runner
// composes a single email from the claimed set. Entries scheduled for a later
// slot stay pending so a notification batched for next Monday is never
// delivered by tonight's run.
func (r *QueueRepository) ClaimBatch(ctx context.Context, userID string, now time.Time) ([]*types.QueueEntry, error) {
	rows, err := r.db.Query(ctx,
		`UPDATE notification_queue SET status = 'processing', claimed_at = $2
		 WHERE id IN (
		     SELECT id FROM notification_queue
		     WHERE status = 'pending'
		       AND user_id = $1
		       AND batch_key IS NOT NULL
		       AND scheduled_at <= $2
		     ORDER BY created_at ASC
		     FOR UPDATE SKIP LOCKED
		 )
		 RETURNING id, notification_id, user_id, channel, priority, status,
		           scheduled_at, batch_key, attempt_count, next_retry_at, created_at`,
		userID, now,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to claim digest batch", err)
	}
	defer rows.Close()

	return collectQueueEntries(rows)
}

// ClaimBatchAll claims every pending batched entry for one user regardless of
// its digest slot. Backs the manual digest trigger, which drains the batch
// now instead of waiting.
func (r *QueueRepository) ClaimBatchAll(ctx context.Context, userID string, now time.Time) ([]*types.QueueEntry, error) {
	rows, err := r.db.Query(ctx,
		`UPDATE notification_queue SET status = 'processing', claimed_at = $2
		 WHERE id IN (
		     SELECT id FROM notification_queue
		     WHERE status = 'pending'
		       AND user_id = $1
		       AND batch_key IS NOT NULL
		     ORDER BY created_at ASC
		     FOR UPDATE SKIP LOCKED
		 )
		 RETURNING id, notification_id, user_id, channel, priority, status,
		           scheduled_at, batch_key, attempt_count, next_retry_at, created_at`,
		userID, now,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to claim digest batch", err)
	}
	defer rows.Close()

	return collectQueueEntries(rows)
}

// Get retrieves a single queue entry by ID.
func (r *QueueRepository) Get(ctx context.Context, id string) (*types.QueueEntry, error) {
	row := r.db.QueryRow(ctx,
		`SELECT id, notification_id, user_id, channel, priority, status,
		        scheduled_at, batch_key, attempt_count, next_retry_at, created_at
		 FROM notification_queue
		 WHERE id = $1`,
		id,
	)

	e, err := scanQueueEntry(row)
	if err != nil {
		if isNoRows(err) {
			return nil, types.NewAppError(types.ErrCodeNotFoundQueueEntry, "queue entry not found", err)
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to get queue entry", err)
	}
	return e, nil
}

// CountPending returns the number of entries waiting for delivery. Used by
// the health endpoint to surface backlog size.
func (r *QueueRepository) CountPending(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM notification_queue WHERE status IN ('pending', 'retrying')`,
	).Scan(&count)
	if err != nil {
		return 0, types.NewAppError(types.ErrCodeInternalDB, "failed to count pending deliveries", err)
	}
	return count, nil
}

func scanQueueEntry(row scanTarget) (*types.QueueEntry, error) {
	var (
		e           types.QueueEntry
		channel     string
		priority    string
		status      string
		batchKey    *string
		nextRetryAt *time.Time
	)

	err := row.Scan(
		&e.ID, &e.NotificationID, &e.UserID, &channel, &priority, &status,
		&e.ScheduledAt, &batchKey, &e.AttemptCount, &nextRetryAt, &e.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	e.Channel = types.Channel(channel)
	e.Priority = types.Priority(priority)
	e.Status = types.QueueStatus(status)
	if batchKey != nil {
		e.BatchKey = *batchKey
	}
	if nextRetryAt != nil {
		e.NextRetryAt = *nextRetryAt
	}
	return &e, nil
}

func collectQueueEntries(rows pgx.Rows) ([]*types.QueueEntry, error) {
	var results []*types.QueueEntry
	for rows.Next() {
		e, err := scanQueueEntry(rows)
		if err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan queue entry", err)
		}
		results = append(results, e)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "error iterating queue entries", err)
	}
	return results, nil
}
