package email

import (
	"context"
	"fmt"
	"time"

	"talentsphere/internal/external"
	"talentsphere/internal/types"
)

// Channel delivers rendered notification emails through an external
// EmailProvider. It owns the sender identity; recipients come from the
// dispatcher per delivery.
type Channel struct {
	provider    external.EmailProvider
	fromAddress string
	fromName    string
	logger      types.Logger
}

// ChannelConfig holds the dependencies needed to create a Channel.
type ChannelConfig struct {
	Provider    external.EmailProvider
	FromAddress string
	FromName    string
	Logger      types.Logger
}

// NewChannel creates an email Channel with the given dependencies.
func NewChannel(cfg ChannelConfig) *Channel {
	return &Channel{
		provider:    cfg.Provider,
		fromAddress: cfg.FromAddress,
		fromName:    cfg.FromName,
		logger:      cfg.Logger,
	}
}

// Deliver sends one notification email to the recipient and returns the
// provider message ID. Errors propagate unwrapped so the dispatcher can
// classify them with ShouldRetry.
func (c *Channel) Deliver(ctx context.Context, n *types.Notification, recipient string) (string, error) {
	if n == nil {
		return "", fmt.Errorf("email channel: notification is nil")
	}

	c.logger.Info("attempting email delivery",
		"dest", RedactEmail(recipient),
		"notification_id", n.ID,
	)

	rendered := RenderNotification(n)
	return c.provider.Send(ctx, external.SendInput{
		To:          recipient,
		FromAddress: c.fromAddress,
		FromName:    c.fromName,
		Subject:     rendered.Subject,
		BodyText:    rendered.BodyText,
		BodyHTML:    rendered.BodyHTML,
		ReferenceID: n.ID,
	})
}

// DeliverDigest sends one digest email covering the given batch and returns
// the provider message ID. The reference ID is the batch key so provider
// events can be traced back to the digest.
func (c *Channel) DeliverDigest(ctx context.Context, kind types.DigestKind, batchKey, recipient string, notifications []*types.Notification, now time.Time) (string, error) {
	if len(notifications) == 0 {
		return "", fmt.Errorf("email channel: empty digest batch")
	}

	c.logger.Info("attempting digest delivery",
		"dest", RedactEmail(recipient),
		"kind", string(kind),
		"count", len(notifications),
	)

	rendered := RenderDigest(kind, notifications, now)
	return c.provider.Send(ctx, external.SendInput{
		To:          recipient,
		FromAddress: c.fromAddress,
		FromName:    c.fromName,
		Subject:     rendered.Subject,
		BodyText:    rendered.BodyText,
		BodyHTML:    rendered.BodyHTML,
		ReferenceID: batchKey,
	})
}
