package dispatch

import (
	"context"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"talentsphere/internal/notifications/core"
	"talentsphere/internal/notifications/digest"
	"talentsphere/internal/notifications/email"
	"talentsphere/internal/types"
)

// digestBatchLimit bounds how many due users one DispatchDueDigests pass
// processes. Users left over stay due and are picked up next tick.
const digestBatchLimit = 100

// digestConcurrency bounds how many users' digests are assembled in
// parallel. Entries are claimed per user, so concurrent runs never touch the
// same queue rows.
const digestConcurrency = 4

// RunDigest drains one user's due batched entries into summary emails, one
// per batch key. Entries whose digest slot is still in the future stay
// pending for their own run. Constituent entries are marked sent on success
// so the same notification never appears in two digests; the send produces a
// single log row per digest.
//
// Returns the number of digest emails sent.
func (d *Dispatcher) RunDigest(ctx context.Context, userID string) (int, error) {
	now := d.clock.Now()
	entries, err := d.queue.ClaimBatch(ctx, userID, now)
	if err != nil {
		return 0, err
	}
	return d.sendDigests(ctx, userID, entries)
}

// FlushDigest drains every batched entry for the user immediately, including
// those scheduled for a future slot. Backs the on-demand digest endpoint.
func (d *Dispatcher) FlushDigest(ctx context.Context, userID string) (int, error) {
	now := d.clock.Now()
	entries, err := d.queue.ClaimBatchAll(ctx, userID, now)
	if err != nil {
		return 0, err
	}
	return d.sendDigests(ctx, userID, entries)
}

func (d *Dispatcher) sendDigests(ctx context.Context, userID string, entries []*types.QueueEntry) (int, error) {
	if len(entries) == 0 {
		return 0, nil
	}

	digests, err := d.generator.Generate(ctx, userID, entries)
	if err != nil {
		// Entries stay in processing and are reclaimed after the stuck
		// threshold elapses.
		return 0, err
	}

	sent := 0
	for _, dg := range digests {
		if err := d.deliverDigest(ctx, dg); err != nil {
			d.logger.Error("digest delivery failed",
				"user_id", userID,
				"batch_key", dg.BatchKey,
				"error", err.Error(),
			)
			continue
		}
		if len(dg.Notifications) > 0 {
			sent++
		}
	}
	return sent, nil
}

// deliverDigest sends one composed digest and finalizes its entries. A digest
// whose notifications were all deleted finalizes silently.
func (d *Dispatcher) deliverDigest(ctx context.Context, dg *digest.Digest) error {
	if len(dg.Notifications) == 0 {
		return d.finalizeDigestEntries(ctx, dg, "", "")
	}

	recipient, err := d.users.GetEmail(ctx, dg.UserID)
	if err != nil {
		return d.failDigestEntries(ctx, dg, "", err)
	}

	msgID, err := d.channel.DeliverDigest(ctx, dg.Kind, dg.BatchKey, recipient, dg.Notifications, d.clock.Now())
	if err != nil {
		return d.failDigestEntries(ctx, dg, recipient, err)
	}

	return d.finalizeDigestEntries(ctx, dg, recipient, msgID)
}

// finalizeDigestEntries marks every constituent entry sent, flags the
// notifications, and writes one sent log row keyed to the first notification.
func (d *Dispatcher) finalizeDigestEntries(ctx context.Context, dg *digest.Digest, recipient, msgID string) error {
	for _, e := range dg.Entries {
		if err := d.queue.MarkSent(ctx, e.ID); err != nil {
			return err
		}
	}
	for _, n := range dg.Notifications {
		if err := d.notifs.MarkEmailSent(ctx, n.ID); err != nil {
			d.logger.Error("failed to flag notification email_sent",
				"notification_id", n.ID, "error", err.Error())
		}
	}
	if len(dg.Notifications) == 0 {
		return nil
	}
	return d.logs.Insert(ctx, &types.DeliveryLog{
		NotificationID:   dg.Notifications[0].ID,
		UserID:           dg.UserID,
		Channel:          types.ChannelEmail,
		Status:           types.LogSent,
		Recipient:        recipient,
		ProviderResponse: msgID,
		SentAt:           d.clock.Now(),
	})
}

// failDigestEntries applies the retry state machine to the whole batch. The
// group retries together; when the most-attempted entry exhausts the budget
// the batch fails with one failed log row.
func (d *Dispatcher) failDigestEntries(ctx context.Context, dg *digest.Digest, recipient string, cause error) error {
	maxAttempt := 0
	for _, e := range dg.Entries {
		if e.AttemptCount > maxAttempt {
			maxAttempt = e.AttemptCount
		}
	}

	if email.ShouldRetry(cause) && maxAttempt+1 < d.cfg.MaxAttempts {
		delay := core.CalculateNextRetry(d.cfg.RetryPolicy, maxAttempt)
		retryAt := d.clock.Now().Add(delay)
		for _, e := range dg.Entries {
			if err := d.queue.MarkRetrying(ctx, e.ID, retryAt); err != nil {
				return err
			}
		}
		return cause
	}

	for _, e := range dg.Entries {
		if err := d.queue.MarkFailed(ctx, e.ID); err != nil {
			return err
		}
	}
	if err := d.logs.Insert(ctx, &types.DeliveryLog{
		NotificationID:   dg.Notifications[0].ID,
		UserID:           dg.UserID,
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

// DispatchDueDigests finds users whose digest slot has passed, runs their
// digests, and schedules the next slot. One user failing never blocks the
// rest; their slot stays in the past and is retried next tick.
//
// Returns the number of users whose digests were processed.
func (d *Dispatcher) DispatchDueDigests(ctx context.Context) (int, error) {
	now := d.clock.Now()

	due, err := d.prefs.ListDigestDue(ctx, now, digestBatchLimit)
	if err != nil {
		return 0, err
	}

	var processed atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(digestConcurrency)

	for _, pref := range due {
		g.Go(func() error {
			if _, err := d.RunDigest(gctx, pref.UserID); err != nil {
				d.logger.Error("digest run failed",
					"user_id", pref.UserID,
					"error", err.Error(),
				)
				return nil
			}

			next, _, err := core.NextDigestSlot(pref, now)
			if err != nil {
				d.logger.Error("failed to calculate next digest slot",
					"user_id", pref.UserID,
					"error", err.Error(),
				)
				return nil
			}
			if err := d.prefs.SetNextDigestAt(gctx, pref.UserID, next); err != nil {
				d.logger.Error("failed to schedule next digest",
					"user_id", pref.UserID,
					"error", err.Error(),
				)
				return nil
			}
			processed.Add(1)
			return nil
		})
	}
	// Per-user failures are logged above, never propagated; Wait only
	// observes context cancellation.
	_ = g.Wait()

	n := int(processed.Load())
	if n > 0 {
		d.logger.Info("digest cycle complete", "users_processed", n)
	}
	return n, nil
}
