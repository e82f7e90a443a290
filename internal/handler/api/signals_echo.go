package api

import (
	"context"
	"strings"

	models "FinSignal/internal/domain/models"
	"FinSignal/internal/service/ratelimit"
	xhttp "FinSignal/pkg/http"
	xlogger "FinSignal/pkg/logger"

	"github.com/labstack/echo/v4"
)

// SignalLifecycle is the service surface exposed over HTTP.
type SignalLifecycle interface {
	FetchTradingSignals(ctx context.Context, forceRefresh bool) []models.TradingSignal
	UpdateAllSignalsStatus(ctx context.Context) []models.TradingSignal
	Generators() []models.SignalType
}

// MonitorRunner runs one monitor pass and reports whether it ran.
type MonitorRunner interface {
	MonitorOnce(ctx context.Context) ([]models.TradingSignal, bool)
}

const (
	refreshBurst  = 3
	refreshPerSec = 0.05
)

// SignalsEchoHandler implements Echo-based HTTP handlers for the signal lifecycle.
type SignalsEchoHandler struct {
	logger  *xlogger.Logger
	svc     SignalLifecycle
	monitor MonitorRunner
	rl      *ratelimit.Limiter
}

func NewSignalsEchoHandler(logger *xlogger.Logger, svc SignalLifecycle, monitor MonitorRunner) *SignalsEchoHandler {
	if logger == nil {
		logger = xlogger.Nop()
	}
	return &SignalsEchoHandler{logger: logger, svc: svc, monitor: monitor, rl: ratelimit.New()}
}

func (h *SignalsEchoHandler) RegisterRoutes(e *echo.Echo) {
	g := e.Group("/api/signals")
	g.GET("", h.List)
	g.GET("/generators", h.Generators)
	g.POST("/status", h.UpdateStatus)
	g.POST("/monitor", h.Monitor)
}

// List returns current signals, filtered by symbol and direction. refresh=true
// forces a new cycle and is rate limited per client.
func (h *SignalsEchoHandler) List(c echo.Context) error {
	req := &models.SignalsRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	if req.Refresh && !h.rl.Allow(c.RealIP()+":refresh", refreshBurst, refreshPerSec) {
		h.logger.Warn("signals.list refresh rate_limited", xlogger.String("remote", c.RealIP()))
		return xhttp.AppErrorResponse(c, xhttp.TooManyRequestsError("refresh", "too many refresh requests", int(1/refreshPerSec)))
	}

	all := h.svc.FetchTradingSignals(c.Request().Context(), req.Refresh)
	rows := make([]models.TradingSignal, 0, len(all))
	for _, s := range all {
		if req.Symbol != "" && !strings.EqualFold(s.Symbol, req.Symbol) {
			continue
		}
		if req.Direction != "" && string(s.Signal) != req.Direction {
			continue
		}
		rows = append(rows, s)
	}
	total := int64(len(rows))
	if len(rows) > req.Limit {
		rows = rows[:req.Limit]
	}
	c.Response().Header().Set(echo.HeaderCacheControl, "private, max-age=15")
	return xhttp.ListResponse(c, rows, total)
}

func (h *SignalsEchoHandler) Generators(c echo.Context) error {
	return xhttp.SuccessResponse(c, h.svc.Generators())
}

// UpdateStatus re-evaluates every active signal against current prices.
func (h *SignalsEchoHandler) UpdateStatus(c echo.Context) error {
	updated := h.svc.UpdateAllSignalsStatus(c.Request().Context())
	return xhttp.ListResponse(c, updated, int64(len(updated)))
}

// Monitor runs a replacement pass unless another instance holds the monitor lock.
func (h *SignalsEchoHandler) Monitor(c echo.Context) error {
	replaced, ran := h.monitor.MonitorOnce(c.Request().Context())
	if !ran {
		return xhttp.AppErrorResponse(c, xhttp.ConflictError("ERR_MONITOR_BUSY", "monitor pass already running"))
	}
	if replaced == nil {
		replaced = []models.TradingSignal{}
	}
	h.logger.Info("signals.monitor done", xlogger.Int("replaced", len(replaced)))
	return xhttp.ListResponse(c, replaced, int64(len(replaced)))
}
