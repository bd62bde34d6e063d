package api

import (
	"context"
	"net/http"
	"time"
)

type HealthHandler struct {
	postgres Pinger
	redis    Pinger
	env      string
	version  string
}

func NewHealthHandler(postgres, redis Pinger, env, version string) *HealthHandler {
	return &HealthHandler{
		postgres: postgres,
		redis:    redis,
		env:      env,
		version:  version,
	}
}

type LivenessResponse struct {
	Status  string `json:"status"`
	Version string `json:"version,omitempty"`
	Env     string `json:"env,omitempty"`
}

type ReadinessResponse struct {
	Status       string            `json:"status"`
	Version      string            `json:"version,omitempty"`
	Env          string            `json:"env,omitempty"`
	Dependencies map[string]string `json:"dependencies"`
}

func (h *HealthHandler) Liveness(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, LivenessResponse{
		Status:  "ok",
		Version: h.version,
		Env:     h.env,
	})
}

// Readiness reports "error" when Postgres is down and "degraded" when only Redis is.
// Reserves do not touch Redis; only cancel and reschedule need it.
func (h *HealthHandler) Readiness(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	deps := map[string]string{
		"postgres": ping(ctx, h.postgres),
		"redis":    ping(ctx, h.redis),
	}

	status := "ok"
	switch {
	case deps["postgres"] != "ok":
		status = "error"
	case deps["redis"] == "down":
		status = "degraded"
	}

	httpStatus := http.StatusOK
	if status == "error" {
		httpStatus = http.StatusServiceUnavailable
	}

	writeJSON(w, httpStatus, ReadinessResponse{
		Status:       status,
		Version:      h.version,
		Env:          h.env,
		Dependencies: deps,
	})
}

func ping(ctx context.Context, p Pinger) string {
	if p == nil {
		return "disabled"
	}
	pctx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	if err := p.Ping(pctx); err != nil {
		return "down"
	}
	return "ok"
}
