// Package email implements the email delivery channel. It renders
// notification and digest emails and delivers them via an external
// EmailProvider, classifying provider failures as terminal or retryable.
package email

import (
	"errors"

	"talentsphere/internal/types"
)

// ErrRecipientBlocked indicates the email provider has the recipient on a
// suppression list or has blocked delivery. Terminal; never retried.
var ErrRecipientBlocked = errors.New("recipient blocked by provider")

// IsBlocklistError checks whether an error indicates the recipient is blocked
// by the email provider. It checks both the sentinel ErrRecipientBlocked and
// the AppError code ErrCodeEmailBlocked returned by the provider client.
func IsBlocklistError(err error) bool {
	if errors.Is(err, ErrRecipientBlocked) {
		return true
	}
	var appErr *types.AppError
	if errors.As(err, &appErr) {
		return appErr.Code == types.ErrCodeEmailBlocked
	}
	return false
}

// ShouldRetry inspects a delivery error to determine if it is transient.
// Blocklist errors are terminal. Rate limiting and provider outages are
// transient. Unknown errors default to transient so flaky networks do not
// silently drop notifications.
func ShouldRetry(err error) bool {
	if err == nil {
		return false
	}
	if IsBlocklistError(err) {
		return false
	}

	var appErr *types.AppError
	if errors.As(err, &appErr) {
		switch appErr.Code {
		case types.ErrCodeEmailBlocked:
			return false
		case types.ErrCodeUpstreamRateLimited, types.ErrCodeUpstreamUnavailable:
			return true
		}
	}

	return true
}
