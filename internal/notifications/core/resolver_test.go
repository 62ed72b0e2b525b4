package core

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"talentsphere/internal/types"
)

func testPrefs(userID string) *types.NotificationPreference {
	p := types.DefaultPreference(userID)
	p.BatchEnabled = false
	p.MaxEmailsPerDay = 0
	return p
}

func testNotification(priority types.Priority) *types.Notification {
	return &types.Notification{
		ID:        "n-1",
		UserID:    "user-1",
		Category:  types.CategoryJobAlert,
		Priority:  priority,
		Title:     "New job match",
		Message:   "A role matching your profile was posted.",
		SendEmail: true,
	}
}

func TestResolveImmediateByDefault(t *testing.T) {
	r := NewResolver(types.NopLogger{})
	now := time.Date(2026, 3, 10, 14, 0, 0, 0, time.UTC)

	res := r.Resolve(testPrefs("user-1"), testNotification(types.PriorityNormal), now, 0)

	assert.Equal(t, DecideImmediate, res.Decision)
	assert.Equal(t, []types.Channel{types.ChannelEmail}, res.Channels)
	assert.Equal(t, now, res.ScheduledAt)
	assert.Empty(t, res.BatchKey)
}

func TestResolveSuppressWhenEmailDisabled(t *testing.T) {
	r := NewResolver(types.NopLogger{})
	prefs := testPrefs("user-1")
	prefs.EmailEnabled = false
	now := time.Date(2026, 3, 10, 14, 0, 0, 0, time.UTC)

	res := r.Resolve(prefs, testNotification(types.PriorityNormal), now, 0)

	assert.Equal(t, DecideSuppress, res.Decision)
	assert.Empty(t, res.Channels)
}

func TestResolveSuppressWhenCategoryOptedOut(t *testing.T) {
	r := NewResolver(types.NopLogger{})
	prefs := testPrefs("user-1")
	prefs.Categories[types.CategoryJobAlert] = types.ChannelFlags{}
	now := time.Date(2026, 3, 10, 14, 0, 0, 0, time.UTC)

	res := r.Resolve(prefs, testNotification(types.PriorityNormal), now, 0)

	assert.Equal(t, DecideSuppress, res.Decision)
}

func TestResolveUnknownCategoryFallsBackToEmail(t *testing.T) {
	r := NewResolver(types.NopLogger{})
	prefs := testPrefs("user-1")
	n := testNotification(types.PriorityNormal)
	n.Category = types.Category("brand_new_category")
	now := time.Date(2026, 3, 10, 14, 0, 0, 0, time.UTC)

	res := r.Resolve(prefs, n, now, 0)

	assert.Equal(t, DecideImmediate, res.Decision)
	assert.Equal(t, []types.Channel{types.ChannelEmail}, res.Channels)
}

func TestResolveQuietHoursOvernight(t *testing.T) {
	r := NewResolver(types.NopLogger{})
	prefs := testPrefs("user-1")
	prefs.QuietHours = types.QuietHoursConfig{
		Enabled:  true,
		Start:    "22:00",
		End:      "06:00",
		Timezone: "UTC",
	}

	tests := []struct {
		name       string
		now        time.Time
		wantDefer  bool
		wantResume time.Time
	}{
		{
			name:       "before midnight defers to tomorrow morning",
			now:        time.Date(2026, 3, 10, 23, 30, 0, 0, time.UTC),
			wantDefer:  true,
			wantResume: time.Date(2026, 3, 11, 6, 0, 0, 0, time.UTC),
		},
		{
			name:       "after midnight defers to same morning",
			now:        time.Date(2026, 3, 11, 3, 15, 0, 0, time.UTC),
			wantDefer:  true,
			wantResume: time.Date(2026, 3, 11, 6, 0, 0, 0, time.UTC),
		},
		{
			name:      "after window delivers",
			now:       time.Date(2026, 3, 11, 7, 0, 0, 0, time.UTC),
			wantDefer: false,
		},
		{
			name:       "exactly at start is quiet",
			now:        time.Date(2026, 3, 10, 22, 0, 0, 0, time.UTC),
			wantDefer:  true,
			wantResume: time.Date(2026, 3, 11, 6, 0, 0, 0, time.UTC),
		},
		{
			name:      "exactly at end delivers",
			now:       time.Date(2026, 3, 11, 6, 0, 0, 0, time.UTC),
			wantDefer: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := r.Resolve(prefs, testNotification(types.PriorityNormal), tt.now, 0)
			if tt.wantDefer {
				require.Equal(t, DecideDefer, res.Decision)
				assert.Equal(t, tt.wantResume, res.ScheduledAt)
			} else {
				assert.Equal(t, DecideImmediate, res.Decision)
				assert.Equal(t, tt.now, res.ScheduledAt)
			}
		})
	}
}

func TestResolveQuietHoursRespectsTimezone(t *testing.T) {
	r := NewResolver(types.NopLogger{})
	prefs := testPrefs("user-1")
	prefs.QuietHours = types.QuietHoursConfig{
		Enabled:  true,
		Start:    "22:00",
		End:      "06:00",
		Timezone: "America/New_York",
	}

	// 03:30 UTC is 22:30 or 23:30 in New York depending on DST; either way
	// inside the window. Using a January date pins EST (UTC-5).
	now := time.Date(2026, 1, 15, 3, 30, 0, 0, time.UTC)
	res := r.Resolve(prefs, testNotification(types.PriorityNormal), now, 0)

	require.Equal(t, DecideDefer, res.Decision)
	// Resumes 06:00 EST = 11:00 UTC.
	assert.Equal(t, time.Date(2026, 1, 15, 11, 0, 0, 0, time.UTC), res.ScheduledAt)
}

func TestResolveUrgentBypassesQuietHours(t *testing.T) {
	r := NewResolver(types.NopLogger{})
	prefs := testPrefs("user-1")
	prefs.QuietHours = types.QuietHoursConfig{
		Enabled:  true,
		Start:    "22:00",
		End:      "06:00",
		Timezone: "UTC",
	}
	now := time.Date(2026, 3, 10, 23, 30, 0, 0, time.UTC)

	res := r.Resolve(prefs, testNotification(types.PriorityUrgent), now, 0)

	assert.Equal(t, DecideImmediate, res.Decision)
	assert.Equal(t, now, res.ScheduledAt)
}

func TestResolveUrgentHonorsOptOutOfImmediate(t *testing.T) {
	r := NewResolver(types.NopLogger{})
	prefs := testPrefs("user-1")
	prefs.ImmediateForUrgent = false
	prefs.QuietHours = types.QuietHoursConfig{
		Enabled:  true,
		Start:    "22:00",
		End:      "06:00",
		Timezone: "UTC",
	}
	now := time.Date(2026, 3, 10, 23, 30, 0, 0, time.UTC)

	res := r.Resolve(prefs, testNotification(types.PriorityUrgent), now, 0)

	assert.Equal(t, DecideDefer, res.Decision)
}

func TestResolveQuietHoursFailsOpenOnBadTimezone(t *testing.T) {
	r := NewResolver(types.NopLogger{})
	prefs := testPrefs("user-1")
	prefs.QuietHours = types.QuietHoursConfig{
		Enabled:  true,
		Start:    "22:00",
		End:      "06:00",
		Timezone: "Mars/Olympus_Mons",
	}
	now := time.Date(2026, 3, 10, 23, 30, 0, 0, time.UTC)

	res := r.Resolve(prefs, testNotification(types.PriorityNormal), now, 0)

	assert.Equal(t, DecideImmediate, res.Decision)
}

func TestResolveDailyEmailCap(t *testing.T) {
	r := NewResolver(types.NopLogger{})
	now := time.Date(2026, 3, 10, 14, 0, 0, 0, time.UTC)

	t.Run("under the cap delivers", func(t *testing.T) {
		prefs := testPrefs("user-1")
		prefs.MaxEmailsPerDay = 3

		res := r.Resolve(prefs, testNotification(types.PriorityNormal), now, 2)
		assert.Equal(t, DecideImmediate, res.Decision)
	})

	t.Run("at the cap suppresses the fourth", func(t *testing.T) {
		prefs := testPrefs("user-1")
		prefs.MaxEmailsPerDay = 3

		res := r.Resolve(prefs, testNotification(types.PriorityNormal), now, 3)
		assert.Equal(t, DecideSuppress, res.Decision)
	})

	t.Run("urgent ignores the cap", func(t *testing.T) {
		prefs := testPrefs("user-1")
		prefs.MaxEmailsPerDay = 3

		res := r.Resolve(prefs, testNotification(types.PriorityUrgent), now, 3)
		assert.Equal(t, DecideImmediate, res.Decision)
		assert.Contains(t, res.Channels, types.ChannelEmail)
	})

	t.Run("other channels survive the cap", func(t *testing.T) {
		prefs := testPrefs("user-1")
		prefs.MaxEmailsPerDay = 3
		prefs.Categories[types.CategoryJobAlert] = types.ChannelFlags{Email: true, Push: true}

		res := r.Resolve(prefs, testNotification(types.PriorityNormal), now, 3)
		require.Equal(t, DecideImmediate, res.Decision)
		assert.Equal(t, []types.Channel{types.ChannelPush}, res.Channels)
	})

	t.Run("zero cap means unlimited", func(t *testing.T) {
		prefs := testPrefs("user-1")
		prefs.MaxEmailsPerDay = 0

		res := r.Resolve(prefs, testNotification(types.PriorityNormal), now, 500)
		assert.Equal(t, DecideImmediate, res.Decision)
	})
}

func TestResolveBatchesIntoDigest(t *testing.T) {
	r := NewResolver(types.NopLogger{})
	prefs := testPrefs("user-1")
	prefs.BatchEnabled = true
	prefs.Digest.DailyEnabled = true
	prefs.Digest.DeliveryTime = "08:00"

	now := time.Date(2026, 3, 10, 14, 0, 0, 0, time.UTC)
	res := r.Resolve(prefs, testNotification(types.PriorityNormal), now, 0)

	require.Equal(t, DecideBatch, res.Decision)
	assert.Equal(t, time.Date(2026, 3, 11, 8, 0, 0, 0, time.UTC), res.ScheduledAt)
	assert.Equal(t, "user-1:daily:2026-03-11", res.BatchKey)
}

func TestResolveUrgentBypassesBatching(t *testing.T) {
	r := NewResolver(types.NopLogger{})
	prefs := testPrefs("user-1")
	prefs.BatchEnabled = true
	prefs.Digest.DailyEnabled = true

	now := time.Date(2026, 3, 10, 14, 0, 0, 0, time.UTC)
	res := r.Resolve(prefs, testNotification(types.PriorityUrgent), now, 0)

	assert.Equal(t, DecideImmediate, res.Decision)
	assert.Empty(t, res.BatchKey)
}

func TestParseTimeOfDay(t *testing.T) {
	tests := []struct {
		input   string
		hour    int
		minute  int
		wantErr bool
	}{
		{input: "00:00", hour: 0, minute: 0},
		{input: "23:59", hour: 23, minute: 59},
		{input: "08:30", hour: 8, minute: 30},
		{input: "24:00", wantErr: true},
		{input: "12:60", wantErr: true},
		{input: "9:30", wantErr: true},
		{input: "09:30:15", wantErr: true},
		{input: "", wantErr: true},
		{input: "banana", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			tod, err := parseTimeOfDay(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.hour, tod.hour)
			assert.Equal(t, tt.minute, tod.minute)
		})
	}
}
