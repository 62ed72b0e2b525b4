package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"talentsphere/internal/core"
	"talentsphere/internal/db"
	notifcore "talentsphere/internal/notifications/core"
	"talentsphere/internal/types"
)

// validate is the shared request validator. Handlers rely on struct tags;
// cross-field rules live in the handler bodies.
var validate = validator.New()

// NotificationRepo is the notification data access the handler needs.
// Satisfied by db.NotificationRepository.
type NotificationRepo interface {
	Get(ctx context.Context, userID, id string) (*types.Notification, error)
	List(ctx context.Context, userID string, filter db.NotificationFilter) ([]*types.Notification, error)
	MarkRead(ctx context.Context, userID, id string) error
	MarkAllRead(ctx context.Context, userID string) (int64, error)
	Delete(ctx context.Context, userID, id string) error
	Stats(ctx context.Context, userID string) (*types.NotificationStats, error)
}

// DeliveryLogRepo is the delivery log read access the handler needs.
// Satisfied by db.DeliveryLogRepository.
type DeliveryLogRepo interface {
	ListByUser(ctx context.Context, userID string, limit int) ([]*types.DeliveryLog, error)
}

// NotificationPublisher routes new notifications through the preference
// resolver. Satisfied by dispatch.Publisher.
type NotificationPublisher interface {
	Publish(ctx context.Context, n *types.Notification) (notifcore.Resolution, error)
}

// DigestTrigger drains a user's batched entries on demand. Satisfied by
// dispatch.Dispatcher.
type DigestTrigger interface {
	FlushDigest(ctx context.Context, userID string) (int, error)
}

// CreateNotificationRequest is the admin request body for
// POST /v1/notifications.
type CreateNotificationRequest struct {
	UserID    string `json:"user_id" validate:"required"`
	Category  string `json:"category" validate:"required"`
	Priority  string `json:"priority" validate:"required"`
	Title     string `json:"title" validate:"required,max=200"`
	Message   string `json:"message" validate:"required,max=2000"`
	SendEmail bool   `json:"send_email"`
}

// TestNotificationRequest is the body for POST /v1/notifications/test. All
// fields are optional; defaults exercise the common path.
type TestNotificationRequest struct {
	Category string `json:"category,omitempty"`
	Priority string `json:"priority,omitempty"`
}

// NotificationHandler serves the user notification endpoints.
type NotificationHandler struct {
	notifications NotificationRepo
	logs          DeliveryLogRepo
	publisher     NotificationPublisher
	digests       DigestTrigger
	logger        *slog.Logger
}

// NewNotificationHandler creates a NotificationHandler.
func NewNotificationHandler(
	notifications NotificationRepo,
	logs DeliveryLogRepo,
	publisher NotificationPublisher,
	digests DigestTrigger,
	logger *slog.Logger,
) *NotificationHandler {
	return &NotificationHandler{
		notifications: notifications,
		logs:          logs,
		publisher:     publisher,
		digests:       digests,
		logger:        logger,
	}
}

// Mount registers the notification routes.
func (h *NotificationHandler) Mount(r chi.Router) {
	r.Route("/notifications", func(r chi.Router) {
		r.Get("/", h.List)
		r.With(core.RequireAdmin).Post("/", h.Create)
		r.Get("/stats", h.Stats)
		r.Get("/delivery-logs", h.DeliveryLogs)
		r.Post("/mark-all-read", h.MarkAllRead)
		r.Post("/test", h.SendTest)
		r.Post("/weekly-digest", h.TriggerDigest)
		r.Put("/{id}/read", h.MarkRead)
		r.Delete("/{id}", h.Delete)
	})
}

// List serves GET /v1/notifications with optional unread_only, category,
// limit, and before (RFC3339 cursor) query parameters.
func (h *NotificationHandler) List(w http.ResponseWriter, r *http.Request) {
	actor, ok := types.GetActor(r.Context())
	if !ok {
		core.Error(w, r, types.NewAppError(types.ErrCodeAuthTokenInvalid, "no actor in context", nil))
		return
	}

	filter := db.NotificationFilter{}
	q := r.URL.Query()
	filter.UnreadOnly = q.Get("unread_only") == "true"
	if c := q.Get("category"); c != "" {
		if !types.ValidCategory(types.Category(c)) {
			core.Error(w, r, types.NewAppError(types.ErrCodeValidationInvalidCategory,
				"unknown notification category", nil))
			return
		}
		filter.Category = types.Category(c)
	}
	if l := q.Get("limit"); l != "" {
		if n, err := strconv.Atoi(l); err == nil {
			filter.Limit = n
		}
	}
	if b := q.Get("before"); b != "" {
		t, err := time.Parse(time.RFC3339, b)
		if err != nil {
			core.Error(w, r, types.NewAppError(types.ErrCodeValidationInvalidTime,
				"before must be an RFC3339 timestamp", err))
			return
		}
		filter.Before = t
	}

	notifications, err := h.notifications.List(r.Context(), actor.ID, filter)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: notifications})
}

// Create serves POST /v1/notifications: an admin publishes a notification to
// any user, routed through the preference resolver.
func (h *NotificationHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateNotificationRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}
	if err := validate.Struct(req); err != nil {
		core.Error(w, r, types.NewAppError(types.ErrCodeValidationMissingField,
			"missing or invalid fields", err))
		return
	}
	if !types.ValidCategory(types.Category(req.Category)) {
		core.Error(w, r, types.NewAppError(types.ErrCodeValidationInvalidCategory,
			"unknown notification category", nil))
		return
	}
	if !types.ValidPriority(types.Priority(req.Priority)) {
		core.Error(w, r, types.NewAppError(types.ErrCodeValidationInvalidPriority,
			"unknown notification priority", nil))
		return
	}

	n := &types.Notification{
		UserID:    req.UserID,
		Category:  types.Category(req.Category),
		Priority:  types.Priority(req.Priority),
		Title:     req.Title,
		Message:   req.Message,
		SendEmail: req.SendEmail,
	}
	res, err := h.publisher.Publish(r.Context(), n)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	core.JSON(w, r, http.StatusCreated, core.APIResponse{Data: map[string]any{
		"notification": n,
		"decision":     string(res.Decision),
		"reason":       res.Reason,
	}})
}

// Stats serves GET /v1/notifications/stats.
func (h *NotificationHandler) Stats(w http.ResponseWriter, r *http.Request) {
	actor, ok := types.GetActor(r.Context())
	if !ok {
		core.Error(w, r, types.NewAppError(types.ErrCodeAuthTokenInvalid, "no actor in context", nil))
		return
	}

	stats, err := h.notifications.Stats(r.Context(), actor.ID)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: stats})
}

// DeliveryLogs serves GET /v1/notifications/delivery-logs.
func (h *NotificationHandler) DeliveryLogs(w http.ResponseWriter, r *http.Request) {
	actor, ok := types.GetActor(r.Context())
	if !ok {
		core.Error(w, r, types.NewAppError(types.ErrCodeAuthTokenInvalid, "no actor in context", nil))
		return
	}

	limit := 0
	if l := r.URL.Query().Get("limit"); l != "" {
		if n, err := strconv.Atoi(l); err == nil {
			limit = n
		}
	}

	logs, err := h.logs.ListByUser(r.Context(), actor.ID, limit)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: logs})
}

// MarkRead serves PUT /v1/notifications/{id}/read.
func (h *NotificationHandler) MarkRead(w http.ResponseWriter, r *http.Request) {
	actor, ok := types.GetActor(r.Context())
	if !ok {
		core.Error(w, r, types.NewAppError(types.ErrCodeAuthTokenInvalid, "no actor in context", nil))
		return
	}

	id := chi.URLParam(r, "id")
	if err := h.notifications.MarkRead(r.Context(), actor.ID, id); err != nil {
		core.Error(w, r, err)
		return
	}
	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: map[string]string{"status": "read"}})
}

// MarkAllRead serves POST /v1/notifications/mark-all-read.
func (h *NotificationHandler) MarkAllRead(w http.ResponseWriter, r *http.Request) {
	actor, ok := types.GetActor(r.Context())
	if !ok {
		core.Error(w, r, types.NewAppError(types.ErrCodeAuthTokenInvalid, "no actor in context", nil))
		return
	}

	updated, err := h.notifications.MarkAllRead(r.Context(), actor.ID)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: map[string]int64{"marked_read": updated}})
}

// Delete serves DELETE /v1/notifications/{id}.
func (h *NotificationHandler) Delete(w http.ResponseWriter, r *http.Request) {
	actor, ok := types.GetActor(r.Context())
	if !ok {
		core.Error(w, r, types.NewAppError(types.ErrCodeAuthTokenInvalid, "no actor in context", nil))
		return
	}

	id := chi.URLParam(r, "id")
	if err := h.notifications.Delete(r.Context(), actor.ID, id); err != nil {
		core.Error(w, r, err)
		return
	}
	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: map[string]string{"status": "deleted"}})
}

// SendTest serves POST /v1/notifications/test: the caller sends themselves a
// notification to verify their preference setup end to end.
func (h *NotificationHandler) SendTest(w http.ResponseWriter, r *http.Request) {
	actor, ok := types.GetActor(r.Context())
	if !ok {
		core.Error(w, r, types.NewAppError(types.ErrCodeAuthTokenInvalid, "no actor in context", nil))
		return
	}

	req := TestNotificationRequest{Category: string(types.CategorySystem), Priority: string(types.PriorityNormal)}
	if r.ContentLength > 0 {
		if err := core.DecodeJSON(w, r, &req); err != nil {
			core.Error(w, r, err)
			return
		}
	}
	if !types.ValidCategory(types.Category(req.Category)) {
		core.Error(w, r, types.NewAppError(types.ErrCodeValidationInvalidCategory,
			"unknown notification category", nil))
		return
	}
	if !types.ValidPriority(types.Priority(req.Priority)) {
		core.Error(w, r, types.NewAppError(types.ErrCodeValidationInvalidPriority,
			"unknown notification priority", nil))
		return
	}

	n := &types.Notification{
		UserID:    actor.ID,
		Category:  types.Category(req.Category),
		Priority:  types.Priority(req.Priority),
		Title:     "Test notification",
		Message:   "This is a test of your notification settings.",
		SendEmail: true,
	}
	res, err := h.publisher.Publish(r.Context(), n)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	core.JSON(w, r, http.StatusCreated, core.APIResponse{Data: map[string]any{
		"notification_id": n.ID,
		"decision":        string(res.Decision),
		"reason":          res.Reason,
	}})
}

// TriggerDigest serves POST /v1/notifications/weekly-digest: drain the
// caller's batched entries into digest emails now instead of waiting for the
// scheduled slot.
func (h *NotificationHandler) TriggerDigest(w http.ResponseWriter, r *http.Request) {
	actor, ok := types.GetActor(r.Context())
	if !ok {
		core.Error(w, r, types.NewAppError(types.ErrCodeAuthTokenInvalid, "no actor in context", nil))
		return
	}

	sent, err := h.digests.FlushDigest(r.Context(), actor.ID)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: map[string]int{"digests_sent": sent}})
}
