package handlers

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"time"

	"talentsphere/internal/core"
	"talentsphere/internal/notifications/email"
	"talentsphere/internal/types"
)

// maxEventBodySize caps the provider event payload. Providers batch events,
// but a batch beyond this size is not plausible traffic.
const maxEventBodySize = 1 << 20

// EngagementStore is the delivery log write access the events handler needs.
// Satisfied by db.DeliveryLogRepository.
type EngagementStore interface {
	MarkOpened(ctx context.Context, providerMessageID string, at time.Time) error
	MarkClicked(ctx context.Context, providerMessageID string, at time.Time) error
}

// NewEmailEventsHandler returns the webhook endpoint the email provider posts
// engagement events to. Per-event store failures are logged and skipped: the
// provider retries the whole batch on a non-2xx, which would double-apply the
// events that did land.
func NewEmailEventsHandler(store EngagementStore, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(io.LimitReader(r.Body, maxEventBodySize))
		if err != nil {
			core.Error(w, r, types.NewAppError(types.ErrCodeValidationInvalidJSON,
				"failed to read event payload", err))
			return
		}

		events, err := email.ParseEngagementEvents(body)
		if err != nil {
			core.Error(w, r, types.NewAppError(types.ErrCodeValidationInvalidJSON,
				"malformed event payload", err))
			return
		}

		applied := 0
		for _, ev := range events {
			switch ev.Type {
			case email.EngagementOpen:
				err = store.MarkOpened(r.Context(), ev.MessageID, ev.At)
			case email.EngagementClick:
				err = store.MarkClicked(r.Context(), ev.MessageID, ev.At)
			}
			if err != nil {
				logger.Error("failed to record engagement event",
					"event", string(ev.Type),
					"message_id", ev.MessageID,
					"error", err.Error(),
				)
				continue
			}
			applied++
		}

		core.JSON(w, r, http.StatusOK, core.APIResponse{Data: map[string]int{"applied": applied}})
	}
}
