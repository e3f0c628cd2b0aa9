package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/threadcart/storefront/internal/repositories"
)

var startTime = time.Now()

// ReadinessChecker reports the state of backing dependencies.
type ReadinessChecker interface {
	Check(ctx context.Context) repositories.ReadinessReport
}

// HealthHandlers serves /healthz and /readyz.
type HealthHandlers struct {
	readiness ReadinessChecker
	clock     func() time.Time
}

// HealthOption customises HealthHandlers.
type HealthOption func(*HealthHandlers)

// WithHealthReadiness sets the dependency checker used by /readyz.
func WithHealthReadiness(r ReadinessChecker) HealthOption {
	return func(h *HealthHandlers) {
		h.readiness = r
	}
}

// WithHealthClock overrides the clock used in responses.
func WithHealthClock(clock func() time.Time) HealthOption {
	return func(h *HealthHandlers) {
		if clock != nil {
			h.clock = clock
		}
	}
}

func NewHealthHandlers(opts ...HealthOption) *HealthHandlers {
	h := &HealthHandlers{clock: time.Now}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	return h
}

// Healthz is a liveness probe and never touches dependencies.
func (h *HealthHandlers) Healthz(w http.ResponseWriter, _ *http.Request) {
	now := h.clock().UTC()
	writeJSONResponse(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"uptime":    now.Sub(startTime).Round(time.Second).String(),
		"timestamp": now.Format(time.RFC3339),
	})
}

// Readyz runs the readiness probes; a down dependency yields 503.
func (h *HealthHandlers) Readyz(w http.ResponseWriter, r *http.Request) {
	if h.readiness == nil {
		writeJSONResponse(w, http.StatusOK, map[string]any{
			"status":    repositories.ProbeStatusOK,
			"checkedAt": h.clock().UTC().Format(time.RFC3339),
		})
		return
	}
	report := h.readiness.Check(r.Context())
	status := http.StatusOK
	if report.Status == repositories.ProbeStatusDown {
		status = http.StatusServiceUnavailable
	}
	writeJSONResponse(w, status, report)
}
