// Package dispatch drains the delivery queue. The dispatcher claims due
// entries in priority order, delivers them over the email channel, and drives
// the retry state machine; the digest runner drains batched entries into
// single summary emails.
package dispatch

import (
	"context"
	"errors"
	"sort"
	"time"

	"talentsphere/internal/notifications/core"
	"talentsphere/internal/notifications/digest"
	"talentsphere/internal/notifications/email"
	"talentsphere/internal/types"
)

// QueueStore is the queue access the dispatcher needs. Satisfied by
// db.QueueRepository.
type QueueStore interface {
	ClaimPending(ctx context.Context, now time.Time, limit int) ([]*types.QueueEntry, error)
	ClaimBatch(ctx context.Context, userID string, now time.Time) ([]*types.QueueEntry, error)
	ClaimBatchAll(ctx context.Context, userID string, now time.Time) ([]*types.QueueEntry, error)
	RequeueRetrying(ctx context.Context, now time.Time) (int64, error)
	ReclaimStuck(ctx context.Context, olderThan time.Time) (int64, error)
	MarkSent(ctx context.Context, id string) error
	MarkRetrying(ctx context.Context, id string, nextRetryAt time.Time) error
	MarkFailed(ctx context.Context, id string) error
}

// NotificationStore is the notification access the dispatcher needs.
// Satisfied by db.NotificationRepository.
type NotificationStore interface {
	Get(ctx context.Context, userID, id string) (*types.Notification, error)
	MarkEmailSent(ctx context.Context, id string) error
}

// PreferenceStore is the preference access the digest runner needs.
// Satisfied by db.PreferenceRepository.
type PreferenceStore interface {
	GetOrDefault(ctx context.Context, userID string) (*types.NotificationPreference, error)
	ListDigestDue(ctx context.Context, now time.Time, limit int) ([]*types.NotificationPreference, error)
	SetNextDigestAt(ctx context.Context, userID string, next time.Time) error
}

// LogStore is the delivery log access the dispatcher needs. Satisfied by
// db.DeliveryLogRepository.
type LogStore interface {
	Insert(ctx context.Context, l *types.DeliveryLog) error
}

// RecipientDirectory resolves user IDs to contact addresses. Satisfied by
// db.UserRepository.
type RecipientDirectory interface {
	GetEmail(ctx context.Context, userID string) (string, error)
}

// EmailSender is the delivery side of the email channel. Satisfied by
// email.Channel.
type EmailSender interface {
	Deliver(ctx context.Context, n *types.Notification, recipient string) (string, error)
	DeliverDigest(ctx context.Context, kind types.DigestKind, batchKey, recipient string, notifications []*types.Notification, now time.Time) (string, error)
}

// Config tunes one Dispatcher instance.
type Config struct {
	BatchSize      int
	MaxAttempts    int
	RetryPolicy    core.RetryPolicy
	StuckThreshold time.Duration
}

// Dispatcher moves queue entries through the delivery state machine. One
// entry failing never blocks the rest of the batch.
type Dispatcher struct {
	queue     QueueStore
	notifs    NotificationStore
	prefs     PreferenceStore
	logs      LogStore
	users     RecipientDirectory
	channel   EmailSender
	generator *digest.Generator
	clock     types.Clock
	logger    types.Logger
	cfg       Config
}

// NewDispatcher creates a Dispatcher.
func NewDispatcher(
	queue QueueStore,
	notifs NotificationStore,
	prefs PreferenceStore,
	logs LogStore,
	users RecipientDirectory,
	channel EmailSender,
	generator *digest.Generator,
	clock types.Clock,
	logger types.Logger,
	cfg Config,
) *Dispatcher {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.RetryPolicy.MaxAttempts == 0 {
		cfg.RetryPolicy = core.DefaultEmailRetryPolicy
	}
	if cfg.StuckThreshold <= 0 {
		cfg.StuckThreshold = 5 * time.Minute
	}
	return &Dispatcher{
		queue:     queue,
		notifs:    notifs,
		prefs:     prefs,
		logs:      logs,
		users:     users,
		channel:   channel,
		generator: generator,
		clock:     clock,
		logger:    logger,
		cfg:       cfg,
	}
}

// DispatchPending runs one dispatch pass: requeue elapsed retries, claim up
// to BatchSize due entries (priority first, FIFO within priority), and
// deliver each with per-entry error isolation. Returns the number of entries
// successfully sent.
func (d *Dispatcher) DispatchPending(ctx context.Context) (int, error) {
	now := d.clock.Now()

	requeued, err := d.queue.RequeueRetrying(ctx, now)
	if err != nil {
		return 0, err
	}
	if requeued > 0 {
		d.logger.Info("requeued deliveries with elapsed backoff", "count", requeued)
	}

	entries, err := d.queue.ClaimPending(ctx, now, d.cfg.BatchSize)
	if err != nil {
		return 0, err
	}
	if len(entries) == 0 {
		return 0, nil
	}

	// The claim query picks the right rows but UPDATE ... RETURNING does not
	// promise their order; re-sort so urgent work always goes out first.
	sort.SliceStable(entries, func(i, j int) bool {
		ri, rj := entries[i].Priority.Rank(), entries[j].Priority.Rank()
		if ri != rj {
			return ri > rj
		}
		return entries[i].CreatedAt.Before(entries[j].CreatedAt)
	})

	sent := 0
	for _, entry := range entries {
		if err := d.processEntry(ctx, entry); err != nil {
			d.logger.Error("delivery attempt failed",
				"entry_id", entry.ID,
				"notification_id", entry.NotificationID,
				"attempt", entry.AttemptCount+1,
				"error", err.Error(),
			)
			continue
		}
		sent++
	}

	d.logger.Info("dispatch pass complete", "claimed", len(entries), "sent", sent)
	return sent, nil
}

// processEntry delivers one claimed entry and records the outcome. A nil
// return means the entry reached the sent state.
func (d *Dispatcher) processEntry(ctx context.Context, entry *types.QueueEntry) error {
	// Non-email channels have no delivery backend; the in-app record was
	// written when the notification was created, so finalize immediately.
	if entry.Channel != types.ChannelEmail {
		return d.queue.MarkSent(ctx, entry.ID)
	}

	n, err := d.notifs.Get(ctx, entry.UserID, entry.NotificationID)
	if err != nil {
		var appErr *types.AppError
		if errors.As(err, &appErr) && appErr.Code == types.ErrCodeNotFoundNotification {
			// The notification was deleted between enqueue and claim; nothing
			// to deliver, nothing to log.
			if markErr := d.queue.MarkFailed(ctx, entry.ID); markErr != nil {
				return markErr
			}
			return err
		}
		// A store hiccup is not a delivery verdict; route it through the
		// retry machinery.
		return d.recordFailure(ctx, entry, "", err)
	}

	recipient, err := d.users.GetEmail(ctx, entry.UserID)
	if err != nil {
		return d.recordFailure(ctx, entry, "", err)
	}

	msgID, err := d.channel.Deliver(ctx, n, recipient)
	if err != nil {
		return d.recordFailure(ctx, entry, recipient, err)
	}

	return d.recordSuccess(ctx, entry, n, recipient, msgID)
}

// recordSuccess finalizes a delivered entry: queue transition, notification
// flag, and one sent log row.
func (d *Dispatcher) recordSuccess(ctx context.Context, entry *types.QueueEntry, n *types.Notification, recipient, msgID string) error {
	if err := d.queue.MarkSent(ctx, entry.ID); err != nil {
		return err
	}
	if err := d.notifs.MarkEmailSent(ctx, n.ID); err != nil {
		d.logger.Error("failed to flag notification email_sent",
			"notification_id", n.ID, "error", err.Error())
	}
	return d.logs.Insert(ctx, &types.DeliveryLog{
		NotificationID:   n.ID,
		UserID:           entry.UserID,
		Channel:          types.ChannelEmail,
		Status:           types.LogSent,
		Recipient:        recipient,
		ProviderResponse: msgID,
		SentAt:           d.clock.Now(),
	})
}

// recordFailure routes a failed attempt to retry or terminal failure.
// Terminal failures (retries exhausted or a permanent provider rejection)
// produce exactly one failed log row.
func (d *Dispatcher) recordFailure(ctx context.Context, entry *types.QueueEntry, recipient string, cause error) error {
	attempts := entry.AttemptCount + 1

	if email.ShouldRetry(cause) && attempts < d.cfg.MaxAttempts {
		delay := core.CalculateNextRetry(d.cfg.RetryPolicy, entry.AttemptCount)
		if err := d.queue.MarkRetrying(ctx, entry.ID, d.clock.Now().Add(delay)); err != nil {
			return err
		}
		return cause
	}

	if err := d.queue.MarkFailed(ctx, entry.ID); err != nil {
		return err
	}
	if err := d.logs.Insert(ctx, &types.DeliveryLog{
		NotificationID:   entry.NotificationID,
		UserID:           entry.UserID,
		Channel:          types.ChannelEmail,
		Status:           types.LogFailed,
		Recipient:        recipient,
		ProviderResponse: cause.Error(),
		SentAt:           d.clock.Now(),
	}); err != nil {
		return err
	}
	return cause
}

// ReclaimStuck returns entries stuck in processing past the configured
// threshold to pending. Called periodically alongside dispatch passes.
func (d *Dispatcher) ReclaimStuck(ctx context.Context) (int64, error) {
	cutoff := d.clock.Now().Add(-d.cfg.StuckThreshold)
	reclaimed, err := d.queue.ReclaimStuck(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	if reclaimed > 0 {
		d.logger.Warn("reclaimed stuck deliveries", "count", reclaimed)
	}
	return reclaimed, nil
}
