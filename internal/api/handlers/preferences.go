package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"talentsphere/internal/core"
	"talentsphere/internal/types"
)

// PreferenceRepo is the preference data access the handler needs. Satisfied
// by db.PreferenceRepository.
type PreferenceRepo interface {
	GetOrDefault(ctx context.Context, userID string) (*types.NotificationPreference, error)
	Upsert(ctx context.Context, pref *types.NotificationPreference) error
}

// UpdatePreferenceRequest is the body for PUT /v1/preferences. The whole
// record is replaced; clients send the full document.
type UpdatePreferenceRequest struct {
	EmailEnabled       bool                                  `json:"email_enabled"`
	Categories         map[types.Category]types.ChannelFlags `json:"categories"`
	QuietHours         types.QuietHoursConfig                `json:"quiet_hours"`
	Digest             types.DigestConfig                    `json:"digest"`
	ImmediateForUrgent bool                                  `json:"immediate_for_urgent"`
	BatchEnabled       bool                                  `json:"batch_enabled"`
	MaxEmailsPerDay    int                                   `json:"max_emails_per_day" validate:"gte=0,lte=100"`
}

// PreferenceHandler serves the user preference endpoints.
type PreferenceHandler struct {
	prefs  PreferenceRepo
	logger *slog.Logger
}

// NewPreferenceHandler creates a PreferenceHandler.
func NewPreferenceHandler(prefs PreferenceRepo, logger *slog.Logger) *PreferenceHandler {
	return &PreferenceHandler{prefs: prefs, logger: logger}
}

// Mount registers the preference routes.
func (h *PreferenceHandler) Mount(r chi.Router) {
	r.Route("/preferences", func(r chi.Router) {
		r.Get("/", h.Get)
		r.Put("/", h.Update)
	})
}

// Get serves GET /v1/preferences, creating the default record on first
// access.
func (h *PreferenceHandler) Get(w http.ResponseWriter, r *http.Request) {
	actor, ok := types.GetActor(r.Context())
	if !ok {
		core.Error(w, r, types.NewAppError(types.ErrCodeAuthTokenInvalid, "no actor in context", nil))
		return
	}

	pref, err := h.prefs.GetOrDefault(r.Context(), actor.ID)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: pref})
}

// Update serves PUT /v1/preferences: full-document replacement after
// validation.
func (h *PreferenceHandler) Update(w http.ResponseWriter, r *http.Request) {
	actor, ok := types.GetActor(r.Context())
	if !ok {
		core.Error(w, r, types.NewAppError(types.ErrCodeAuthTokenInvalid, "no actor in context", nil))
		return
	}

	var req UpdatePreferenceRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}
	if err := validate.Struct(req); err != nil {
		core.Error(w, r, types.NewAppError(types.ErrCodeValidationMissingField,
			"missing or invalid fields", err))
		return
	}
	if err := validatePreference(&req); err != nil {
		core.Error(w, r, err)
		return
	}

	pref := &types.NotificationPreference{
		UserID:             actor.ID,
		EmailEnabled:       req.EmailEnabled,
		Categories:         req.Categories,
		QuietHours:         req.QuietHours,
		Digest:             req.Digest,
		ImmediateForUrgent: req.ImmediateForUrgent,
		BatchEnabled:       req.BatchEnabled,
		MaxEmailsPerDay:    req.MaxEmailsPerDay,
	}
	if pref.Categories == nil {
		pref.Categories = types.DefaultPreference(actor.ID).Categories
	}

	if err := h.prefs.Upsert(r.Context(), pref); err != nil {
		core.Error(w, r, err)
		return
	}
	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: pref})
}

// validatePreference applies the cross-field rules the struct tags cannot
// express: category names, time-of-day strings, IANA timezone, weekday.
func validatePreference(req *UpdatePreferenceRequest) error {
	for category := range req.Categories {
		if !types.ValidCategory(category) {
			return types.NewAppErrorWithDetails(types.ErrCodeValidationInvalidCategory,
				"unknown notification category", nil,
				map[string]any{"category": string(category)})
		}
	}

	if req.QuietHours.Enabled {
		if err := validateTimeOfDay(req.QuietHours.Start); err != nil {
			return err
		}
		if err := validateTimeOfDay(req.QuietHours.End); err != nil {
			return err
		}
		if req.QuietHours.Timezone != "" {
			if _, err := time.LoadLocation(req.QuietHours.Timezone); err != nil {
				return types.NewAppError(types.ErrCodeValidationInvalidTimezone,
					"unknown IANA timezone", err)
			}
		}
	}

	if req.Digest.DailyEnabled || req.Digest.WeeklyEnabled {
		if req.Digest.DeliveryTime != "" {
			if err := validateTimeOfDay(req.Digest.DeliveryTime); err != nil {
				return err
			}
		}
	}
	if req.Digest.WeeklyEnabled && req.Digest.WeeklyDay != "" {
		if !validWeekday(req.Digest.WeeklyDay) {
			return types.NewAppError(types.ErrCodeValidationInvalidTime,
				"weekly_day must be a lowercase weekday name", nil)
		}
	}

	return nil
}

func validateTimeOfDay(s string) error {
	if _, err := time.Parse("15:04", s); err != nil {
		return types.NewAppError(types.ErrCodeValidationInvalidTime,
			"time of day must be in HH:MM format", err)
	}
	return nil
}

func validWeekday(name string) bool {
	switch name {
	case "sunday", "monday", "tuesday", "wednesday", "thursday", "friday", "saturday":
		return true
	}
	return false
}
