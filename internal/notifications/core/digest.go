package core

import (
	"fmt"
	"strings"
	"time"

	"talentsphere/internal/types"
)

// DefaultDigestDeliveryTime is the fallback delivery time when the user has
// no delivery_time configured. Format: "HH:MM" in 24h.
const DefaultDigestDeliveryTime = "08:00"

// NextDigestSlot computes the next UTC instant at which a digest should go
// out for this user, and which kind of digest it is. When both daily and
// weekly digests are enabled the earlier slot wins.
//
// The delivery time is interpreted in the user's quiet-hours timezone; DST
// transitions are handled by constructing the target in that location.
func NextDigestSlot(prefs *types.NotificationPreference, now time.Time) (time.Time, types.DigestKind, error) {
	tz := prefs.QuietHours.Timezone
	if tz == "" {
		tz = "UTC"
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return time.Time{}, "", fmt.Errorf("invalid timezone %q: %w", tz, err)
	}

	deliveryTime := prefs.Digest.DeliveryTime
	if deliveryTime == "" {
		deliveryTime = DefaultDigestDeliveryTime
	}
	tod, err := parseTimeOfDay(deliveryTime)
	if err != nil {
		return time.Time{}, "", fmt.Errorf("invalid delivery_time %q: %w", deliveryTime, err)
	}

	localNow := now.In(loc)

	var (
		daily  time.Time
		weekly time.Time
	)
	if prefs.Digest.DailyEnabled {
		daily = computeNextDayAtTime(localNow, tod.hour, tod.minute, loc)
	}
	if prefs.Digest.WeeklyEnabled {
		day, dayErr := parseWeekday(prefs.Digest.WeeklyDay)
		if dayErr != nil {
			return time.Time{}, "", dayErr
		}
		weekly = computeNextWeekdayAtTime(localNow, day, tod.hour, tod.minute, loc)
	}

	switch {
	case daily.IsZero() && weekly.IsZero():
		return time.Time{}, "", fmt.Errorf("no digest enabled")
	case weekly.IsZero() || (!daily.IsZero() && daily.Before(weekly)):
		return daily.UTC(), types.DigestDaily, nil
	default:
		return weekly.UTC(), types.DigestWeekly, nil
	}
}

// BatchKey identifies the digest a queue entry belongs to. Entries resolved
// to the same user, kind, and slot date collapse into one email.
func BatchKey(userID string, kind types.DigestKind, slot time.Time) string {
	return fmt.Sprintf("%s:%s:%s", userID, kind, slot.UTC().Format("2006-01-02"))
}

// computeNextDayAtTime returns the next occurrence of hour:minute in the given
// location strictly after now. A target that has already passed today moves to
// tomorrow.
func computeNextDayAtTime(now time.Time, hour, minute int, loc *time.Location) time.Time {
	today := time.Date(now.Year(), now.Month(), now.Day(), hour, minute, 0, 0, loc)
	if today.After(now) {
		return today
	}
	return today.AddDate(0, 0, 1)
}

// computeNextWeekdayAtTime returns the next occurrence of hour:minute on the
// given weekday in the given location strictly after now.
func computeNextWeekdayAtTime(now time.Time, day time.Weekday, hour, minute int, loc *time.Location) time.Time {
	daysAhead := (int(day) - int(now.Weekday()) + 7) % 7
	candidate := time.Date(now.Year(), now.Month(), now.Day(), hour, minute, 0, 0, loc).AddDate(0, 0, daysAhead)
	if candidate.After(now) {
		return candidate
	}
	return candidate.AddDate(0, 0, 7)
}

// parseWeekday maps a lowercase weekday name to time.Weekday. Defaults to
// Monday when unset.
func parseWeekday(name string) (time.Weekday, error) {
	if name == "" {
		return time.Monday, nil
	}
	for d := time.Sunday; d <= time.Saturday; d++ {
		if strings.EqualFold(d.String(), name) {
			return d, nil
		}
	}
	return 0, fmt.Errorf("invalid weekday %q", name)
}
