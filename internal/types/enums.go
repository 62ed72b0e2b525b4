package types

// PostingSource identifies where a job or scholarship posting originated.
// Internal postings are authored on the platform and are never touched by the
// retention sweeper; external postings are aggregated from outside boards and
// are subject to automatic cleanup once stale.
type PostingSource string

const (
	SourceInternal PostingSource = "internal"
	SourceExternal PostingSource = "external"
)

// PostingKind distinguishes the two swept entity types.
type PostingKind string

const (
	PostingJob         PostingKind = "job"
	PostingScholarship PostingKind = "scholarship"
)

// Category classifies a notification by the domain event that produced it.
type Category string

const (
	CategoryJobAlert          Category = "job_alert"
	CategoryApplicationUpdate Category = "application_update"
	CategoryInterviewReminder Category = "interview_reminder"
	CategoryJobExpiryWarning  Category = "job_expiry_warning"
	CategoryNewFeature        Category = "new_feature"
	CategoryPlatformUpdate    Category = "platform_update"
	CategoryPromotion         Category = "promotion"
	CategorySystem            Category = "system"
)

// ValidCategory reports whether c is a known notification category.
func ValidCategory(c Category) bool {
	switch c {
	case CategoryJobAlert, CategoryApplicationUpdate, CategoryInterviewReminder,
		CategoryJobExpiryWarning, CategoryNewFeature, CategoryPlatformUpdate,
		CategoryPromotion, CategorySystem:
		return true
	}
	return false
}

// Priority orders notifications for dispatch. Urgent bypasses quiet hours,
// digest batching, and the daily email cap.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

// Rank maps a priority to a sortable weight (higher dispatches first).
// Unknown priorities rank below low so malformed rows never starve real work.
func (p Priority) Rank() int {
	switch p {
	case PriorityUrgent:
		return 4
	case PriorityHigh:
		return 3
	case PriorityNormal:
		return 2
	case PriorityLow:
		return 1
	default:
		return 0
	}
}

// ValidPriority reports whether p is a known priority level.
func ValidPriority(p Priority) bool {
	return p.Rank() > 0
}

// Channel identifies a notification delivery transport.
type Channel string

const (
	ChannelEmail Channel = "email"
	ChannelPush  Channel = "push"
	ChannelSMS   Channel = "sms"
)

// QueueStatus is the processing state of a delivery queue entry.
//
// Transitions: pending -> processing -> {sent, failed, retrying};
// retrying re-enters pending once its backoff elapses; entries that exhaust
// MaxAttempts become terminally failed.
type QueueStatus string

const (
	QueuePending    QueueStatus = "pending"
	QueueProcessing QueueStatus = "processing"
	QueueSent       QueueStatus = "sent"
	QueueFailed     QueueStatus = "failed"
	QueueRetrying   QueueStatus = "retrying"
)

// LogStatus is the terminal outcome recorded in the delivery log.
type LogStatus string

const (
	LogSent   LogStatus = "sent"
	LogFailed LogStatus = "failed"
)

// DigestKind selects between the two digest schedules.
type DigestKind string

const (
	DigestDaily  DigestKind = "daily"
	DigestWeekly DigestKind = "weekly"
)
