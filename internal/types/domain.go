package types

import "time"

// Notification is one user-facing event. It is created by domain workflows
// (job published, application status change, expiry warning) and retained
// indefinitely for in-app history; email delivery state is tracked separately
// so the read/unread flag never depends on channel outcomes.
type Notification struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Category  Category  `json:"category"`
	Priority  Priority  `json:"priority"`
	Title     string    `json:"title"`
	Message   string    `json:"message"`
	SendEmail bool      `json:"send_email"`
	EmailSent bool      `json:"email_sent"`
	Read      bool      `json:"read"`
	CreatedAt time.Time `json:"created_at"`
}

// ChannelFlags holds per-channel opt-in for a single category.
type ChannelFlags struct {
	Email bool `json:"email"`
	Push  bool `json:"push"`
	SMS   bool `json:"sms"`
}

// QuietHoursConfig is a per-user local-time window during which non-urgent
// notifications are deferred. Start and End are "HH:MM" wall-clock strings in
// the given IANA timezone; a window with Start > End wraps past midnight.
type QuietHoursConfig struct {
	Enabled  bool   `json:"enabled"`
	Start    string `json:"start"`
	End      string `json:"end"`
	Timezone string `json:"timezone"`
}

// DigestConfig controls batched digest emails.
type DigestConfig struct {
	DailyEnabled  bool   `json:"daily_enabled"`
	WeeklyEnabled bool   `json:"weekly_enabled"`
	WeeklyDay     string `json:"weekly_day"`    // lowercase weekday name, e.g. "monday"
	DeliveryTime  string `json:"delivery_time"` // "HH:MM" in the quiet-hours timezone
}

// NotificationPreference is the single per-user preference record. Exactly one
// exists per user; it is created lazily with DefaultPreference on first access.
//
// Category opt-ins are a structured mapping rather than one boolean column per
// category, so adding a category never changes the schema.
type NotificationPreference struct {
	UserID             string                    `json:"user_id"`
	EmailEnabled       bool                      `json:"email_enabled"`
	Categories         map[Category]ChannelFlags `json:"categories"`
	QuietHours         QuietHoursConfig          `json:"quiet_hours"`
	Digest             DigestConfig              `json:"digest"`
	ImmediateForUrgent bool                      `json:"immediate_for_urgent"`
	BatchEnabled       bool                      `json:"batch_enabled"`
	MaxEmailsPerDay    int                       `json:"max_emails_per_day"`
	UpdatedAt          time.Time                 `json:"updated_at"`
}

// DefaultMaxEmailsPerDay caps non-urgent email volume for new users.
const DefaultMaxEmailsPerDay = 10

// DefaultPreference returns the documented defaults used when a user has no
// stored preference record: email on, urgent-immediate on, batching on, every
// category enabled for email only.
func DefaultPreference(userID string) *NotificationPreference {
	categories := make(map[Category]ChannelFlags)
	for _, c := range []Category{
		CategoryJobAlert, CategoryApplicationUpdate, CategoryInterviewReminder,
		CategoryJobExpiryWarning, CategoryNewFeature, CategoryPlatformUpdate,
		CategoryPromotion, CategorySystem,
	} {
		categories[c] = ChannelFlags{Email: true}
	}

	return &NotificationPreference{
		UserID:             userID,
		EmailEnabled:       true,
		Categories:         categories,
		QuietHours:         QuietHoursConfig{Timezone: "UTC"},
		Digest:             DigestConfig{WeeklyDay: "monday", DeliveryTime: "08:00"},
		ImmediateForUrgent: true,
		BatchEnabled:       true,
		MaxEmailsPerDay:    DefaultMaxEmailsPerDay,
	}
}

// QueueEntry is one pending delivery attempt for a (notification, user,
// channel) triple. BatchKey groups entries destined for the same digest.
type QueueEntry struct {
	ID             string      `json:"id"`
	NotificationID string      `json:"notification_id"`
	UserID         string      `json:"user_id"`
	Channel        Channel     `json:"channel"`
	Priority       Priority    `json:"priority"`
	Status         QueueStatus `json:"status"`
	ScheduledAt    time.Time   `json:"scheduled_at"`
	BatchKey       string      `json:"batch_key,omitempty"`
	AttemptCount   int         `json:"attempt_count"`
	NextRetryAt    time.Time   `json:"next_retry_at,omitempty"`
	CreatedAt      time.Time   `json:"created_at"`
}

// DeliveryLog is the append-only audit record of a delivery attempt's final
// outcome. Only OpenedAt and ClickedAt are ever written after creation.
type DeliveryLog struct {
	ID               string     `json:"id"`
	NotificationID   string     `json:"notification_id"`
	UserID           string     `json:"user_id"`
	Channel          Channel    `json:"channel"`
	Status           LogStatus  `json:"status"`
	Recipient        string     `json:"recipient"`
	ProviderResponse string     `json:"provider_response,omitempty"`
	SentAt           time.Time  `json:"sent_at"`
	OpenedAt         *time.Time `json:"opened_at,omitempty"`
	ClickedAt        *time.Time `json:"clicked_at,omitempty"`
}

// ExpiringPosting is the minimal posting shape needed to emit expiry
// warnings to owners.
type ExpiringPosting struct {
	ID        string
	Kind      PostingKind
	Title     string
	OwnerID   string
	ExpiresAt time.Time
}

// PostingStats classifies one posting table's external rows against the
// retention cutoff.
type PostingStats struct {
	TotalExternal       int64 `json:"total_external"`
	EligibleForDeletion int64 `json:"eligible_for_deletion"`
	Active              int64 `json:"active"`
}

// CleanupStats is the full read-only eligibility report served by the admin
// stats endpoint and logged before each sweep.
type CleanupStats struct {
	Jobs            PostingStats `json:"jobs"`
	Scholarships    PostingStats `json:"scholarships"`
	CutoffDate      time.Time    `json:"cutoff_date"`
	GracePeriodDays int          `json:"grace_period_days"`
}

// SweepSummary reports the outcome of one full sweep.
type SweepSummary struct {
	JobsDeleted         int64 `json:"jobs_deleted"`
	ScholarshipsDeleted int64 `json:"scholarships_deleted"`
	TotalDeleted        int64 `json:"total_deleted"`
}

// NotificationStats summarizes a user's notification history for the stats
// endpoint.
type NotificationStats struct {
	Total      int64              `json:"total"`
	Unread     int64              `json:"unread"`
	ByCategory map[Category]int64 `json:"by_category"`
}
