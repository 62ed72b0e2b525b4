// Package external is the anti-corruption layer between TalentSphere domain
// logic and third-party vendor APIs. All outbound HTTP calls route through
// BaseClient, which enforces circuit breaking, retries with exponential
// backoff, and error mapping to AppError codes.
package external

import "context"

// SendInput carries one fully rendered email to the provider.
type SendInput struct {
	To          string
	FromAddress string
	FromName    string
	Subject     string
	BodyText    string
	BodyHTML    string
	ReferenceID string
}

// EmailProvider abstracts the transactional email service.
//
// Send transmits one rendered email and returns the provider's message ID.
// Implementations map provider failures to AppError codes: recipient
// suppression to ErrCodeEmailBlocked, throttling to ErrCodeUpstreamRateLimited,
// outages to ErrCodeUpstreamUnavailable.
type EmailProvider interface {
	Send(ctx context.Context, input SendInput) (providerMsgID string, err error)
}
