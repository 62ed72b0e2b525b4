package dispatch

import (
	"context"
	"time"

	"talentsphere/internal/notifications/core"
	"talentsphere/internal/types"
)

// NotificationWriter is the write access the publisher needs. Satisfied by
// db.NotificationRepository.
type NotificationWriter interface {
	Create(ctx context.Context, n *types.Notification) error
}

// QueueWriter is the enqueue access the publisher needs. Satisfied by
// db.QueueRepository.
type QueueWriter interface {
	Enqueue(ctx context.Context, e *types.QueueEntry) error
}

// EmailCounter feeds the daily email cap. Satisfied by
// db.DeliveryLogRepository.
type EmailCounter interface {
	CountEmailsSentToday(ctx context.Context, userID string, dayStart time.Time) (int, error)
}

// Publisher creates notifications and enqueues their deliveries according to
// the owner's preferences. The in-app record always exists; the resolver only
// decides what happens beyond it.
type Publisher struct {
	notifs   NotificationWriter
	queue    QueueWriter
	prefs    PreferenceStore
	emails   EmailCounter
	resolver *core.Resolver
	clock    types.Clock
	logger   types.Logger
}

// NewPublisher creates a Publisher.
func NewPublisher(
	notifs NotificationWriter,
	queue QueueWriter,
	prefs PreferenceStore,
	emails EmailCounter,
	resolver *core.Resolver,
	clock types.Clock,
	logger types.Logger,
) *Publisher {
	return &Publisher{
		notifs:   notifs,
		queue:    queue,
		prefs:    prefs,
		emails:   emails,
		resolver: resolver,
		clock:    clock,
		logger:   logger,
	}
}

// Publish persists the notification and enqueues one queue entry per
// resolved channel. Suppressed notifications get no entries; the in-app row
// still exists. Returns the resolution for callers that surface it (the test
// send endpoint does).
func (p *Publisher) Publish(ctx context.Context, n *types.Notification) (core.Resolution, error) {
	if err := p.notifs.Create(ctx, n); err != nil {
		return core.Resolution{}, err
	}

	prefs, err := p.prefs.GetOrDefault(ctx, n.UserID)
	if err != nil {
		return core.Resolution{}, err
	}

	now := p.clock.Now()
	sentToday, err := p.emails.CountEmailsSentToday(ctx, n.UserID, startOfUserDay(now, prefs.QuietHours.Timezone))
	if err != nil {
		return core.Resolution{}, err
	}

	res := p.resolver.Resolve(prefs, n, now, sentToday)
	if res.Decision == core.DecideSuppress {
		p.logger.Info("notification suppressed",
			"notification_id", n.ID,
			"reason", res.Reason,
		)
		return res, nil
	}

	for _, channel := range res.Channels {
		entry := &types.QueueEntry{
			NotificationID: n.ID,
			UserID:         n.UserID,
			Channel:        channel,
			Priority:       n.Priority,
			ScheduledAt:    res.ScheduledAt,
			BatchKey:       res.BatchKey,
		}
		if err := p.queue.Enqueue(ctx, entry); err != nil {
			return res, err
		}
	}

	p.logger.Info("notification enqueued",
		"notification_id", n.ID,
		"decision", string(res.Decision),
		"channels", len(res.Channels),
		"scheduled_at", res.ScheduledAt.Format(time.RFC3339),
	)
	return res, nil
}

// Notify adapts Publish to the single-method interface background producers
// (the sweeper's expiry warnings) depend on.
func (p *Publisher) Notify(ctx context.Context, n *types.Notification) error {
	_, err := p.Publish(ctx, n)
	return err
}

// startOfUserDay returns midnight of the user's current day. A missing or
// invalid timezone falls back to UTC, matching the resolver's fail-open
// stance.
func startOfUserDay(now time.Time, tz string) time.Time {
	loc := time.UTC
	if tz != "" {
		if l, err := time.LoadLocation(tz); err == nil {
			loc = l
		}
	}
	local := now.In(loc)
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
}
