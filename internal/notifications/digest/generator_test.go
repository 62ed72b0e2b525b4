package digest

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"talentsphere/internal/types"
)

type fakeLoader struct {
	notifications map[string]*types.Notification
	getCalls      int
}

func (f *fakeLoader) Get(ctx context.Context, userID, id string) (*types.Notification, error) {
	f.getCalls++
	n, ok := f.notifications[id]
	if !ok {
		return nil, types.NewAppError(types.ErrCodeNotFoundNotification, "notification not found", nil)
	}
	return n, nil
}

func loaderWith(ids ...string) *fakeLoader {
	f := &fakeLoader{notifications: make(map[string]*types.Notification)}
	for _, id := range ids {
		f.notifications[id] = &types.Notification{ID: id, UserID: "u1", Title: "t " + id}
	}
	return f
}

func entry(id, notifID, batchKey string, createdAt time.Time) *types.QueueEntry {
	return &types.QueueEntry{
		ID:             id,
		NotificationID: notifID,
		UserID:         "u1",
		Channel:        types.ChannelEmail,
		Status:         types.QueuePending,
		BatchKey:       batchKey,
		CreatedAt:      createdAt,
	}
}

func TestGenerateGroupsByBatchKey(t *testing.T) {
	base := time.Date(2026, 3, 9, 8, 0, 0, 0, time.UTC)
	loader := loaderWith("n1", "n2", "n3")
	gen := NewGenerator(loader, types.NopLogger{})

	digests, err := gen.Generate(context.Background(), "u1", []*types.QueueEntry{
		entry("e1", "n1", "u1:daily:2026-03-09", base.Add(2*time.Minute)),
		entry("e2", "n2", "u1:weekly:2026-03-09", base),
		entry("e3", "n3", "u1:daily:2026-03-09", base.Add(time.Minute)),
	})
	require.NoError(t, err)
	require.Len(t, digests, 2)

	daily := digests[0]
	assert.Equal(t, types.DigestDaily, daily.Kind)
	require.Len(t, daily.Notifications, 2)
	// Oldest first within a batch.
	assert.Equal(t, "n3", daily.Notifications[0].ID)
	assert.Equal(t, "n1", daily.Notifications[1].ID)

	weekly := digests[1]
	assert.Equal(t, types.DigestWeekly, weekly.Kind)
	require.Len(t, weekly.Notifications, 1)
	assert.Equal(t, "n2", weekly.Notifications[0].ID)
}

func TestGenerateSkipsDeletedNotifications(t *testing.T) {
	base := time.Date(2026, 3, 9, 8, 0, 0, 0, time.UTC)
	loader := loaderWith("n1")
	gen := NewGenerator(loader, types.NopLogger{})

	digests, err := gen.Generate(context.Background(), "u1", []*types.QueueEntry{
		entry("e1", "n1", "u1:daily:2026-03-09", base),
		entry("e2", "n-gone", "u1:daily:2026-03-09", base.Add(time.Minute)),
	})
	require.NoError(t, err)
	require.Len(t, digests, 1)

	// The deleted notification's entry stays in the digest so it gets
	// finalized, but its line is omitted.
	assert.Len(t, digests[0].Entries, 2)
	require.Len(t, digests[0].Notifications, 1)
	assert.Equal(t, "n1", digests[0].Notifications[0].ID)
}

func TestGenerateCollapsesDuplicateNotifications(t *testing.T) {
	base := time.Date(2026, 3, 9, 8, 0, 0, 0, time.UTC)
	loader := loaderWith("n1", "n2")
	gen := NewGenerator(loader, types.NopLogger{})

	digests, err := gen.Generate(context.Background(), "u1", []*types.QueueEntry{
		entry("e1", "n1", "u1:daily:2026-03-09", base),
		entry("e2", "n1", "u1:daily:2026-03-09", base.Add(time.Minute)),
		entry("e3", "n2", "u1:daily:2026-03-09", base.Add(2*time.Minute)),
	})
	require.NoError(t, err)
	require.Len(t, digests, 1)

	require.Len(t, digests[0].Notifications, 2)
	assert.Equal(t, "n1", digests[0].Notifications[0].ID)
	assert.Equal(t, "n2", digests[0].Notifications[1].ID)

	// Both duplicate entries ride along for finalization, but the
	// notification is only loaded once.
	assert.Len(t, digests[0].Entries, 3)
	assert.Equal(t, 2, loader.getCalls)
}

func TestKindFromBatchKey(t *testing.T) {
	assert.Equal(t, types.DigestDaily, KindFromBatchKey("u1:daily:2026-03-09"))
	assert.Equal(t, types.DigestWeekly, KindFromBatchKey("u1:weekly:2026-03-09"))
	assert.Equal(t, types.DigestDaily, KindFromBatchKey("garbage"))
}
