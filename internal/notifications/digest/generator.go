// Package digest composes batched queue entries into digest payloads. One
// digest covers every entry sharing a batch key; the email channel turns the
// payload into a single summary message.
package digest

import (
	"context"
	"errors"
	"sort"
	"strings"

	"talentsphere/internal/types"
)

// Digest is one composed batch ready for delivery.
type Digest struct {
	UserID        string
	Kind          types.DigestKind
	BatchKey      string
	Entries       []*types.QueueEntry
	Notifications []*types.Notification
}

// NotificationLoader is the read access the generator needs. Satisfied by
// db.NotificationRepository.
type NotificationLoader interface {
	Get(ctx context.Context, userID, id string) (*types.Notification, error)
}

// Generator builds digests from claimed queue entries.
type Generator struct {
	notifications NotificationLoader
	logger        types.Logger
}

// NewGenerator creates a Generator.
func NewGenerator(notifications NotificationLoader, logger types.Logger) *Generator {
	return &Generator{notifications: notifications, logger: logger}
}

// Generate groups the claimed entries by batch key and loads the underlying
// notifications, oldest first. Entries whose notification has been deleted by
// the user are skipped, not failed: the digest simply omits them. Duplicate
// queue entries for the same notification within a batch collapse to one line
// in the digest; the extra entries still belong to the digest so the caller
// finalizes them as sent. A digest whose every notification is gone comes back
// with an empty Notifications slice; callers mark its entries sent without
// emailing.
func (g *Generator) Generate(ctx context.Context, userID string, entries []*types.QueueEntry) ([]*Digest, error) {
	byKey := make(map[string][]*types.QueueEntry)
	var keys []string
	for _, e := range entries {
		if _, seen := byKey[e.BatchKey]; !seen {
			keys = append(keys, e.BatchKey)
		}
		byKey[e.BatchKey] = append(byKey[e.BatchKey], e)
	}
	sort.Strings(keys)

	var digests []*Digest
	for _, key := range keys {
		group := byKey[key]
		sort.Slice(group, func(i, j int) bool {
			return group[i].CreatedAt.Before(group[j].CreatedAt)
		})

		d := &Digest{
			UserID:   userID,
			Kind:     KindFromBatchKey(key),
			BatchKey: key,
			Entries:  group,
		}

		seen := make(map[string]bool, len(group))
		for _, e := range group {
			if seen[e.NotificationID] {
				continue
			}
			seen[e.NotificationID] = true
			n, err := g.notifications.Get(ctx, userID, e.NotificationID)
			if err != nil {
				var appErr *types.AppError
				if errors.As(err, &appErr) && appErr.Code == types.ErrCodeNotFoundNotification {
					g.logger.Info("digest skipping deleted notification",
						"notification_id", e.NotificationID,
						"batch_key", key,
					)
					continue
				}
				return nil, err
			}
			d.Notifications = append(d.Notifications, n)
		}

		digests = append(digests, d)
	}

	return digests, nil
}

// KindFromBatchKey recovers the digest kind from a "user:kind:date" batch
// key. Malformed keys default to daily.
func KindFromBatchKey(key string) types.DigestKind {
	parts := strings.Split(key, ":")
	if len(parts) >= 2 && types.DigestKind(parts[1]) == types.DigestWeekly {
		return types.DigestWeekly
	}
	return types.DigestDaily
}
