// Package handlers contains the HTTP handler implementations for the
// TalentSphere background-service API: the admin cleanup surface and the
// user-facing notification and preference endpoints.
package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"talentsphere/internal/core"
	"talentsphere/internal/sweeper"
	"talentsphere/internal/types"
)

// CleanupService is the sweeper surface the admin handler drives. Satisfied
// by sweeper.Sweeper.
type CleanupService interface {
	CollectStats(ctx context.Context) (*types.CleanupStats, error)
	Run(ctx context.Context) (*types.SweepSummary, error)
	SweepJobs(ctx context.Context) (int64, error)
	SweepScholarships(ctx context.Context) (int64, error)
	Status() sweeper.Status
}

// CleanupHandler serves the admin retention endpoints. Every route is gated
// by core.RequireAdmin.
type CleanupHandler struct {
	service CleanupService
	logger  *slog.Logger
}

// NewCleanupHandler creates a CleanupHandler.
func NewCleanupHandler(service CleanupService, logger *slog.Logger) *CleanupHandler {
	return &CleanupHandler{service: service, logger: logger}
}

// Mount registers the cleanup routes.
func (h *CleanupHandler) Mount(r chi.Router) {
	r.Route("/cleanup", func(r chi.Router) {
		r.Use(core.RequireAdmin)
		r.Get("/stats", h.Stats)
		r.Post("/run", h.RunAll)
		r.Post("/jobs", h.RunJobs)
		r.Post("/scholarships", h.RunScholarships)
		r.Get("/service/status", h.ServiceStatus)
	})
}

// Stats serves GET /v1/cleanup/stats: the read-only eligibility report.
func (h *CleanupHandler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.service.CollectStats(r.Context())
	if err != nil {
		core.Error(w, r, err)
		return
	}
	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: stats})
}

// RunAll serves POST /v1/cleanup/run: a full sweep over both tables.
func (h *CleanupHandler) RunAll(w http.ResponseWriter, r *http.Request) {
	summary, err := h.service.Run(r.Context())
	if err != nil {
		// A partial summary still reaches the admin in the error details.
		if summary != nil {
			h.logger.Warn("sweep finished with errors",
				"total_deleted", summary.TotalDeleted,
				"error", err.Error(),
			)
		}
		core.Error(w, r, err)
		return
	}
	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: summary})
}

// RunJobs serves POST /v1/cleanup/jobs: sweep jobs only.
func (h *CleanupHandler) RunJobs(w http.ResponseWriter, r *http.Request) {
	deleted, err := h.service.SweepJobs(r.Context())
	if err != nil {
		core.Error(w, r, err)
		return
	}
	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: map[string]int64{"jobs_deleted": deleted}})
}

// RunScholarships serves POST /v1/cleanup/scholarships: sweep scholarships
// only.
func (h *CleanupHandler) RunScholarships(w http.ResponseWriter, r *http.Request) {
	deleted, err := h.service.SweepScholarships(r.Context())
	if err != nil {
		core.Error(w, r, err)
		return
	}
	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: map[string]int64{"scholarships_deleted": deleted}})
}

// ServiceStatus serves GET /v1/cleanup/service/status: live sweeper state.
func (h *CleanupHandler) ServiceStatus(w http.ResponseWriter, r *http.Request) {
	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: h.service.Status()})
}

// NewCleanupHealthHandler returns the unauthenticated liveness probe for the
// retention sweeper. It always answers 200; a broken store or a failed last
// run shows up in the body so monitors can tell degraded from down.
func NewCleanupHealthHandler(service CleanupService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status := service.Status()
		resp := map[string]any{
			"status":  "ok",
			"running": status.Running,
		}
		if status.LastRunError != "" {
			resp["status"] = "unhealthy"
			resp["last_run_error"] = status.LastRunError
		}

		stats, err := service.CollectStats(r.Context())
		if err != nil {
			resp["status"] = "unhealthy"
			resp["error"] = err.Error()
		} else {
			resp["pending_deletion"] = stats.Jobs.EligibleForDeletion +
				stats.Scholarships.EligibleForDeletion
		}

		core.JSON(w, r, http.StatusOK, core.APIResponse{Data: resp})
	}
}
