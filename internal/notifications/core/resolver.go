package core

import (
	"fmt"
	"time"

	"talentsphere/internal/types"
)

// Resolver decides when and over which channels a notification is delivered,
// based on the owning user's preferences.
type Resolver struct {
	logger types.Logger
}

// NewResolver creates a Resolver. The logger is used only for fail-open
// warnings on malformed preference data.
func NewResolver(logger types.Logger) *Resolver {
	return &Resolver{logger: logger}
}

// Resolve applies the user's preferences to one notification.
//
// Decision logic (in order of precedence):
//  1. Channel opt-ins filter the candidate channel set; an empty set suppresses.
//  2. Daily email cap removes the email channel for non-urgent notifications.
//  3. Urgent priority with immediate_for_urgent set -> deliver now, bypassing
//     quiet hours and batching.
//  4. Quiet hours active in the user's local time -> defer until the window ends.
//  5. Batching enabled with a digest configured -> join the next digest.
//  6. Otherwise -> deliver now.
//
// emailsSentToday is the count of successful email deliveries since the start
// of the user's current day; the caller reads it from the delivery log.
// Malformed timezone or time-of-day strings never block delivery: evaluation
// fails open to immediate.
func (r *Resolver) Resolve(prefs *types.NotificationPreference, n *types.Notification, now time.Time, emailsSentToday int) Resolution {
	channels := r.selectChannels(prefs, n)
	if len(channels) == 0 {
		return Resolution{
			Decision: DecideSuppress,
			Reason:   "no channels enabled for this category",
		}
	}

	// Daily cap applies to email only and never to urgent notifications.
	if n.Priority != types.PriorityUrgent && prefs.MaxEmailsPerDay > 0 && emailsSentToday >= prefs.MaxEmailsPerDay {
		channels = removeChannel(channels, types.ChannelEmail)
		if len(channels) == 0 {
			return Resolution{
				Decision: DecideSuppress,
				Reason:   fmt.Sprintf("daily email cap of %d reached", prefs.MaxEmailsPerDay),
			}
		}
	}

	if n.Priority == types.PriorityUrgent && prefs.ImmediateForUrgent {
		return Resolution{
			Decision:    DecideImmediate,
			Reason:      "urgent priority bypasses quiet hours and batching",
			Channels:    channels,
			ScheduledAt: now,
		}
	}

	if prefs.QuietHours.Enabled {
		resumeAt, active, err := r.evaluateQuietHours(prefs.QuietHours, now)
		if err != nil {
			r.logger.Warn("quiet hours evaluation failed, delivering anyway",
				"user_id", prefs.UserID,
				"error", err.Error(),
			)
		} else if active {
			return Resolution{
				Decision:    DecideDefer,
				Reason:      fmt.Sprintf("quiet hours active (%s-%s %s)", prefs.QuietHours.Start, prefs.QuietHours.End, prefs.QuietHours.Timezone),
				Channels:    channels,
				ScheduledAt: resumeAt,
			}
		}
	}

	if prefs.BatchEnabled && (prefs.Digest.DailyEnabled || prefs.Digest.WeeklyEnabled) {
		slot, kind, err := NextDigestSlot(prefs, now)
		if err != nil {
			r.logger.Warn("digest slot calculation failed, delivering immediately",
				"user_id", prefs.UserID,
				"error", err.Error(),
			)
		} else {
			return Resolution{
				Decision:    DecideBatch,
				Reason:      fmt.Sprintf("batched into %s digest", kind),
				Channels:    channels,
				ScheduledAt: slot,
				BatchKey:    BatchKey(prefs.UserID, kind, slot),
			}
		}
	}

	return Resolution{
		Decision:    DecideImmediate,
		Reason:      "no delivery restrictions apply",
		Channels:    channels,
		ScheduledAt: now,
	}
}

// selectChannels intersects the notification's requested channels with the
// user's opt-ins. The per-category flags only matter when the master email
// switch and the notification's own send_email flag agree.
func (r *Resolver) selectChannels(prefs *types.NotificationPreference, n *types.Notification) []types.Channel {
	flags, ok := prefs.Categories[n.Category]
	if !ok {
		// Unknown category falls back to email-only defaults.
		flags = types.ChannelFlags{Email: true}
	}

	var channels []types.Channel
	if n.SendEmail && prefs.EmailEnabled && flags.Email {
		channels = append(channels, types.ChannelEmail)
	}
	if flags.Push {
		channels = append(channels, types.ChannelPush)
	}
	if flags.SMS {
		channels = append(channels, types.ChannelSMS)
	}
	return channels
}

// evaluateQuietHours reports whether now falls inside the user's quiet window
// and, if so, when delivery should resume (in UTC). The window is half-open:
// a notification arriving exactly at the end minute is delivered.
func (r *Resolver) evaluateQuietHours(config types.QuietHoursConfig, now time.Time) (time.Time, bool, error) {
	tz := config.Timezone
	if tz == "" {
		tz = "UTC"
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("invalid timezone %q: %w", tz, err)
	}

	start, err := parseTimeOfDay(config.Start)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("invalid quiet hours start %q: %w", config.Start, err)
	}
	end, err := parseTimeOfDay(config.End)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("invalid quiet hours end %q: %w", config.End, err)
	}

	local := now.In(loc)
	inQuiet, resumeAt := isInQuietPeriod(local, start, end)
	if !inQuiet {
		return time.Time{}, false, nil
	}
	return resumeAt.UTC(), true, nil
}

func removeChannel(channels []types.Channel, drop types.Channel) []types.Channel {
	out := channels[:0]
	for _, c := range channels {
		if c != drop {
			out = append(out, c)
		}
	}
	return out
}

// timeOfDay represents a wall-clock time with hour and minute components.
type timeOfDay struct {
	hour   int
	minute int
}

// toMinutes converts a timeOfDay to minutes since midnight for comparison.
func (t timeOfDay) toMinutes() int {
	return t.hour*60 + t.minute
}

// parseTimeOfDay parses a "HH:MM" string into a timeOfDay. The input must be
// exactly five characters; trailing content is rejected.
func parseTimeOfDay(s string) (timeOfDay, error) {
	if len(s) != 5 || s[2] != ':' {
		return timeOfDay{}, fmt.Errorf("expected HH:MM format, got %q", s)
	}
	var h, m int
	n, err := fmt.Sscanf(s, "%d:%d", &h, &m)
	if err != nil || n != 2 {
		return timeOfDay{}, fmt.Errorf("expected HH:MM format, got %q", s)
	}
	if h < 0 || h > 23 || m < 0 || m > 59 {
		return timeOfDay{}, fmt.Errorf("time out of range: %q", s)
	}
	return timeOfDay{hour: h, minute: m}, nil
}

// isInQuietPeriod checks if the given local time falls within the quiet period
// defined by start and end. Handles overnight periods (e.g. 22:00-06:00).
// Returns whether the time is quiet and when the period ends in the same
// location.
func isInQuietPeriod(now time.Time, start, end timeOfDay) (bool, time.Time) {
	nowMinutes := now.Hour()*60 + now.Minute()
	startMinutes := start.toMinutes()
	endMinutes := end.toMinutes()

	if startMinutes <= endMinutes {
		// Same-day period (e.g. 09:00-17:00).
		if nowMinutes >= startMinutes && nowMinutes < endMinutes {
			resumeAt := time.Date(
				now.Year(), now.Month(), now.Day(),
				end.hour, end.minute, 0, 0, now.Location(),
			)
			return true, resumeAt
		}
		return false, time.Time{}
	}

	// Overnight period (e.g. 22:00-06:00).
	if nowMinutes >= startMinutes {
		// Before midnight: resume tomorrow at end time.
		tomorrow := now.AddDate(0, 0, 1)
		resumeAt := time.Date(
			tomorrow.Year(), tomorrow.Month(), tomorrow.Day(),
			end.hour, end.minute, 0, 0, now.Location(),
		)
		return true, resumeAt
	}
	if nowMinutes < endMinutes {
		// After midnight: resume today at end time.
		resumeAt := time.Date(
			now.Year(), now.Month(), now.Day(),
			end.hour, end.minute, 0, 0, now.Location(),
		)
		return true, resumeAt
	}

	return false, time.Time{}
}
