// Package core provides the shared delivery infrastructure used by the
// dispatcher and digest workers. It centralizes preference resolution, retry
// logic, and the delivery decision model, ensuring every channel applies the
// same rules.
package core

import (
	"time"

	"talentsphere/internal/types"
)

// Decision represents the outcome of a preference resolution.
type Decision string

const (
	// DecideImmediate indicates the notification should be sent now.
	DecideImmediate Decision = "immediate"

	// DecideDefer indicates delivery should wait until quiet hours end.
	DecideDefer Decision = "defer"

	// DecideBatch indicates the notification joins the user's next digest.
	DecideBatch Decision = "batch"

	// DecideSuppress indicates no channel will carry this notification.
	// The in-app record already exists; nothing else happens.
	DecideSuppress Decision = "suppress"
)

// Resolution contains the outcome and metadata from a preference resolution.
// ScheduledAt is the earliest delivery instant; for DecideBatch it is the next
// digest slot and BatchKey identifies the digest the entry belongs to.
type Resolution struct {
	Decision    Decision
	Reason      string
	Channels    []types.Channel
	ScheduledAt time.Time
	BatchKey    string
}

// RetryPolicy defines the exponential backoff parameters for delivery retries.
type RetryPolicy struct {
	MaxAttempts   int
	BaseDelay     time.Duration
	MaxDelay      time.Duration
	BackoffFactor float64
}

// DefaultEmailRetryPolicy matches the dispatcher's configuration defaults.
var DefaultEmailRetryPolicy = RetryPolicy{
	MaxAttempts:   3,
	BaseDelay:     1 * time.Minute,
	MaxDelay:      30 * time.Minute,
	BackoffFactor: 2.0,
}

// CalculateNextRetry computes the delay before the next retry attempt using
// exponential backoff: delay = min(BaseDelay * BackoffFactor^attempt, MaxDelay).
func CalculateNextRetry(policy RetryPolicy, attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}

	delay := float64(policy.BaseDelay)
	for i := 0; i < attempt; i++ {
		delay *= policy.BackoffFactor
	}

	d := time.Duration(delay)
	if d > policy.MaxDelay || d < 0 {
		d = policy.MaxDelay
	}

	return d
}
