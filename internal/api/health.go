package api

import (
	"context"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
)

// Pinger is anything the readiness probe can check.
type Pinger interface {
	Ping(ctx context.Context) error
}

type HealthHandler struct {
	backend  Pinger
	postgres Pinger
	redis    *redis.Client
	env      string
	version  string
}

// NewHealthHandler builds the probes. postgres and redis may be nil when the
// event log or the shared stores are not configured.
func NewHealthHandler(backend, postgres Pinger, redis *redis.Client, env, version string) *HealthHandler {
	return &HealthHandler{
		backend:  backend,
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

// Readiness reports "error" when the clinic API or a configured redis is
// unreachable, since redis holds the identity store the gateway reads its
// credential from. A postgres outage only degrades readiness.
func (h *HealthHandler) Readiness(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	deps := make(map[string]string)
	status := "ok"

	if err := ping(ctx, h.backend); err != nil {
		deps["backend"] = "down"
		status = "error"
	} else {
		deps["backend"] = "ok"
	}

	switch {
	case h.redis == nil:
		deps["redis"] = "disabled"
	case ping(ctx, redisPinger{h.redis}) != nil:
		deps["redis"] = "down"
		status = "error"
	default:
		deps["redis"] = "ok"
	}

	switch {
	case h.postgres == nil:
		deps["postgres"] = "disabled"
	case ping(ctx, h.postgres) != nil:
		deps["postgres"] = "down"
		if status == "ok" {
			status = "degraded"
		}
	default:
		deps["postgres"] = "ok"
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

func ping(ctx context.Context, p Pinger) error {
	if p == nil {
		return errNoBackend
	}
	pingCtx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	return p.Ping(pingCtx)
}

type redisPinger struct {
	client *redis.Client
}

func (p redisPinger) Ping(ctx context.Context) error {
	return p.client.Ping(ctx).Err()
}
