package server

import (
	"context"
	"net/http"
	"time"

	xhttp "FinSignal/pkg/http"

	"github.com/labstack/echo/v4"
)

const readinessTimeout = 2 * time.Second

// Pinger is a dependency probed by the readiness check.
type Pinger interface {
	Health(ctx context.Context) error
}

// CacheProbe is satisfied by pkg/cache services.
type CacheProbe interface {
	Exists(ctx context.Context, keys ...string) (bool, error)
}

// HealthHandler serves GET /health/ready, which checks every infrastructure
// dependency. Liveness stays on the server's /health route.
type HealthHandler struct {
	checks map[string]func(context.Context) error
}

var _ xhttp.Handler = (*HealthHandler)(nil)

// NewHealthHandler probes db and cache when they are non-nil.
func NewHealthHandler(db Pinger, cache CacheProbe) *HealthHandler {
	h := &HealthHandler{checks: map[string]func(context.Context) error{}}
	if db != nil {
		h.checks["clickhouse"] = db.Health
	}
	if cache != nil {
		h.checks["cache"] = func(ctx context.Context) error {
			_, err := cache.Exists(ctx, "health")
			return err
		}
	}
	return h
}

func (h *HealthHandler) RegisterRoutes(e *echo.Echo) {
	e.GET("/health/ready", h.Ready)
}

// Ready reports per dependency status; any failure yields 503 in the body status.
func (h *HealthHandler) Ready(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), readinessTimeout)
	defer cancel()

	status := http.StatusOK
	report := make(map[string]string, len(h.checks))
	for name, check := range h.checks {
		if err := check(ctx); err != nil {
			report[name] = err.Error()
			status = http.StatusServiceUnavailable
			continue
		}
		report[name] = "ok"
	}
	return xhttp.DataResponse(c, status, report)
}
