package core

import (
	"context"
	"net/http"
	"time"
)

// HealthChecker reports one subsystem's liveness. Name appears in the health
// payload; Check returns nil when healthy.
type HealthChecker interface {
	Name() string
	Check(ctx context.Context) error
}

// HealthStatus is the health endpoint payload.
type HealthStatus struct {
	Status    string            `json:"status"`
	Timestamp time.Time         `json:"timestamp"`
	Checks    map[string]string `json:"checks,omitempty"`
}

// NewHealthHandler builds the unauthenticated GET /health handler. Any
// failing check degrades the overall status and flips the response to 503 so
// load balancers rotate the instance out.
func NewHealthHandler(checkers ...HealthChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		status := HealthStatus{
			Status:    "ok",
			Timestamp: time.Now().UTC(),
			Checks:    make(map[string]string, len(checkers)),
		}

		httpStatus := http.StatusOK
		for _, c := range checkers {
			if err := c.Check(ctx); err != nil {
				status.Checks[c.Name()] = err.Error()
				status.Status = "degraded"
				httpStatus = http.StatusServiceUnavailable
				continue
			}
			status.Checks[c.Name()] = "ok"
		}

		JSON(w, r, httpStatus, status)
	}
}

// PingChecker adapts a ping function (pgxpool.Pool.Ping fits) to
// HealthChecker.
type PingChecker struct {
	CheckName string
	Ping      func(ctx context.Context) error
}

func (p PingChecker) Name() string                    { return p.CheckName }
func (p PingChecker) Check(ctx context.Context) error { return p.Ping(ctx) }
