package dispatch

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"talentsphere/internal/types"
)

func seedBatchEntry(f *dispatcherFixture, id, userID, batchKey string, createdAt time.Time) *types.QueueEntry {
	n := &types.Notification{
		ID:        "notif-" + id,
		UserID:    userID,
		Category:  types.CategoryJobAlert,
		Priority:  types.PriorityNormal,
		Title:     "Title " + id,
		Message:   "Message " + id,
		SendEmail: true,
		CreatedAt: createdAt,
	}
	f.notifs.byID[n.ID] = n
	e := &types.QueueEntry{
		ID:             id,
		NotificationID: n.ID,
		UserID:         userID,
		Channel:        types.ChannelEmail,
		Priority:       types.PriorityNormal,
		Status:         types.QueueProcessing,
		BatchKey:       batchKey,
		CreatedAt:      createdAt,
	}
	f.queue.batches[userID] = append(f.queue.batches[userID], e)
	return e
}

func TestRunDigestCollapsesBatchIntoOneEmail(t *testing.T) {
	f := newDispatcherFixture(t, Config{})
	base := f.clock.now.Add(-2 * time.Hour)
	for i, id := range []string{"b1", "b2", "b3", "b4", "b5"} {
		seedBatchEntry(f, id, "user-1", "user-1:daily:2026-03-10", base.Add(time.Duration(i)*time.Minute))
	}

	sent, err := f.d.RunDigest(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Equal(t, 1, sent)

	// One email covering all five notifications.
	require.Len(t, f.channel.sent, 1)
	assert.Equal(t, 5, f.channel.sent[0].count)
	assert.Equal(t, "user-1:daily:2026-03-10", f.channel.sent[0].batchKey)

	// Every constituent entry is finalized, but only one log row exists.
	assert.ElementsMatch(t, []string{"b1", "b2", "b3", "b4", "b5"}, f.queue.sentIDs)
	require.Len(t, f.logs.rows, 1)
	assert.Equal(t, types.LogSent, f.logs.rows[0].Status)
}

func TestRunDigestSplitsDistinctBatchKeys(t *testing.T) {
	f := newDispatcherFixture(t, Config{})
	base := f.clock.now.Add(-2 * time.Hour)
	seedBatchEntry(f, "d1", "user-1", "user-1:daily:2026-03-10", base)
	seedBatchEntry(f, "d2", "user-1", "user-1:daily:2026-03-10", base.Add(time.Minute))
	seedBatchEntry(f, "w1", "user-1", "user-1:weekly:2026-03-16", base.Add(2*time.Minute))

	sent, err := f.d.RunDigest(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Equal(t, 2, sent)
	require.Len(t, f.channel.sent, 2)
	assert.Equal(t, 2, f.channel.sent[0].count)
	assert.Equal(t, 1, f.channel.sent[1].count)
}

func TestRunDigestSkipsDeletedNotifications(t *testing.T) {
	f := newDispatcherFixture(t, Config{})
	base := f.clock.now.Add(-2 * time.Hour)
	seedBatchEntry(f, "b1", "user-1", "user-1:daily:2026-03-10", base)
	gone := seedBatchEntry(f, "b2", "user-1", "user-1:daily:2026-03-10", base.Add(time.Minute))
	delete(f.notifs.byID, gone.NotificationID)

	sent, err := f.d.RunDigest(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Equal(t, 1, sent)

	require.Len(t, f.channel.sent, 1)
	assert.Equal(t, 1, f.channel.sent[0].count)
	// The orphaned entry is still finalized so it never resurfaces.
	assert.ElementsMatch(t, []string{"b1", "b2"}, f.queue.sentIDs)
}

func TestRunDigestAllNotificationsDeletedSendsNothing(t *testing.T) {
	f := newDispatcherFixture(t, Config{})
	base := f.clock.now.Add(-2 * time.Hour)
	e := seedBatchEntry(f, "b1", "user-1", "user-1:daily:2026-03-10", base)
	delete(f.notifs.byID, e.NotificationID)

	sent, err := f.d.RunDigest(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Zero(t, sent)
	assert.Empty(t, f.channel.sent)
	assert.Equal(t, []string{"b1"}, f.queue.sentIDs)
	assert.Empty(t, f.logs.rows)
}

func TestRunDigestLeavesFutureSlotsPending(t *testing.T) {
	f := newDispatcherFixture(t, Config{})
	base := f.clock.now.Add(-2 * time.Hour)

	due := seedBatchEntry(f, "b1", "user-1", "user-1:daily:2026-03-10", base)
	due.ScheduledAt = f.clock.now.Add(-time.Hour)
	early := seedBatchEntry(f, "b2", "user-1", "user-1:weekly:2026-03-16", base.Add(time.Minute))
	early.ScheduledAt = f.clock.now.Add(6 * 24 * time.Hour)

	sent, err := f.d.RunDigest(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Equal(t, 1, sent)

	// The weekly entry waits for its own slot instead of riding along with
	// today's daily digest.
	require.Len(t, f.channel.sent, 1)
	assert.Equal(t, "user-1:daily:2026-03-10", f.channel.sent[0].batchKey)
	assert.Equal(t, []string{"b1"}, f.queue.sentIDs)
}

func TestRunDigestFirstBatchedEntryWaitsForSlot(t *testing.T) {
	f := newDispatcherFixture(t, Config{})

	// A brand-new user's first batched notification is scheduled days out;
	// the next worker pass must not mail it alone and early.
	e := seedBatchEntry(f, "b1", "user-1", "user-1:weekly:2026-03-16", f.clock.now)
	e.ScheduledAt = time.Date(2026, 3, 16, 8, 0, 0, 0, time.UTC)

	sent, err := f.d.RunDigest(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Zero(t, sent)
	assert.Empty(t, f.channel.sent)
	assert.Empty(t, f.queue.sentIDs)
}

func TestFlushDigestDrainsFutureSlots(t *testing.T) {
	f := newDispatcherFixture(t, Config{})

	e := seedBatchEntry(f, "b1", "user-1", "user-1:weekly:2026-03-16", f.clock.now)
	e.ScheduledAt = time.Date(2026, 3, 16, 8, 0, 0, 0, time.UTC)

	sent, err := f.d.FlushDigest(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Equal(t, 1, sent)
	require.Len(t, f.channel.sent, 1)
	assert.Equal(t, []string{"b1"}, f.queue.sentIDs)
}

func TestRunDigestNoPendingBatches(t *testing.T) {
	f := newDispatcherFixture(t, Config{})
	sent, err := f.d.RunDigest(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Zero(t, sent)
}

func TestRunDigestFailureRetriesWholeBatch(t *testing.T) {
	f := newDispatcherFixture(t, Config{MaxAttempts: 3})
	f.channel.digestErr = types.NewAppError(types.ErrCodeUpstreamUnavailable, "mail API down", nil)
	base := f.clock.now.Add(-2 * time.Hour)
	seedBatchEntry(f, "b1", "user-1", "user-1:daily:2026-03-10", base)
	seedBatchEntry(f, "b2", "user-1", "user-1:daily:2026-03-10", base.Add(time.Minute))

	sent, err := f.d.RunDigest(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Zero(t, sent)

	// Both entries share the same retry slot.
	require.Len(t, f.queue.retryingIDs, 2)
	assert.Equal(t, f.queue.retryingIDs["b1"], f.queue.retryingIDs["b2"])
	assert.Empty(t, f.queue.failedIDs)
	assert.Empty(t, f.logs.rows)
}

func TestRunDigestExhaustionFailsBatchWithOneLog(t *testing.T) {
	f := newDispatcherFixture(t, Config{MaxAttempts: 3})
	f.channel.digestErr = types.NewAppError(types.ErrCodeUpstreamUnavailable, "mail API down", nil)
	base := f.clock.now.Add(-2 * time.Hour)
	e1 := seedBatchEntry(f, "b1", "user-1", "user-1:daily:2026-03-10", base)
	seedBatchEntry(f, "b2", "user-1", "user-1:daily:2026-03-10", base.Add(time.Minute))
	e1.AttemptCount = 2 // the batch retries on its most-attempted member

	sent, err := f.d.RunDigest(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Zero(t, sent)

	assert.ElementsMatch(t, []string{"b1", "b2"}, f.queue.failedIDs)
	assert.Empty(t, f.queue.retryingIDs)
	require.Len(t, f.logs.rows, 1)
	assert.Equal(t, types.LogFailed, f.logs.rows[0].Status)
}

func TestDispatchDueDigestsSchedulesNextSlot(t *testing.T) {
	f := newDispatcherFixture(t, Config{})
	prefs := types.DefaultPreference("user-1")
	prefs.Digest.DailyEnabled = true
	prefs.Digest.DeliveryTime = "08:00"
	f.prefs.due = []*types.NotificationPreference{prefs}

	base := f.clock.now.Add(-2 * time.Hour)
	seedBatchEntry(f, "b1", "user-1", "user-1:daily:2026-03-10", base)

	processed, err := f.d.DispatchDueDigests(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, processed)
	require.Len(t, f.channel.sent, 1)

	// now is 14:00 UTC, so the next daily slot is tomorrow 08:00.
	next, ok := f.prefs.nextDigest["user-1"]
	require.True(t, ok)
	assert.Equal(t, time.Date(2026, 3, 11, 8, 0, 0, 0, time.UTC), next)
}

func TestDispatchDueDigestsIsolatesUsers(t *testing.T) {
	f := newDispatcherFixture(t, Config{})
	f.users.emails = map[string]string{"user-2": "amit@example.com"}

	goodPrefs := types.DefaultPreference("user-2")
	goodPrefs.Digest.DailyEnabled = true
	badPrefs := types.DefaultPreference("user-1") // no email on file
	badPrefs.Digest.DailyEnabled = true
	f.prefs.due = []*types.NotificationPreference{badPrefs, goodPrefs}

	base := f.clock.now.Add(-2 * time.Hour)
	seedBatchEntry(f, "b1", "user-1", "user-1:daily:2026-03-10", base)
	seedBatchEntry(f, "b2", "user-2", "user-2:daily:2026-03-10", base)

	processed, err := f.d.DispatchDueDigests(context.Background())
	require.NoError(t, err)

	// Both users complete the cycle: a missing recipient leaves that user's
	// batch to the retry machinery but still schedules their next slot.
	assert.Equal(t, 2, processed)
	require.Len(t, f.channel.sent, 1)
	assert.Equal(t, "amit@example.com", f.channel.sent[0].recipient)
	assert.Contains(t, f.prefs.nextDigest, "user-1")
	assert.Contains(t, f.prefs.nextDigest, "user-2")
}
