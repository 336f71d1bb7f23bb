package api

import (
	"context"
	"errors"
	"time"

	"TickPilot/internal/domain/models"
	"TickPilot/internal/usecase"
	xhttp "TickPilot/pkg/http"
	xlogger "TickPilot/pkg/logger"

	"github.com/labstack/echo/v4"
)

// EngineControl is the part of the engine the HTTP surface drives.
type EngineControl interface {
	Summary() models.TickSummary
	State() usecase.EngineState
	Transitions(limit int) []models.StateTransition
	ActivateKillSwitch(ctx context.Context, reason string) error
	DeactivateKillSwitch(ctx context.Context) error
	OverrideRegime(ctx context.Context, name string) error
}

// EngineHandler serves engine status and operator controls over Echo.
type EngineHandler struct {
	logger  *xlogger.Logger
	engine  EngineControl
	candles *usecase.CandlesUseCase
	signals *SignalsHandler
}

// NewEngineHandler accepts nil candles and signals; their routes are then not mounted.
func NewEngineHandler(logger *xlogger.Logger, engine EngineControl, candles *usecase.CandlesUseCase, signals *SignalsHandler) *EngineHandler {
	if logger == nil {
		logger = xlogger.NewNop()
	}
	return &EngineHandler{logger: logger, engine: engine, candles: candles, signals: signals}
}

func (h *EngineHandler) RegisterRoutes(g *echo.Group) {
	g.GET("/summary", h.Summary)
	g.GET("/state", h.State)
	g.GET("/transitions", h.Transitions)
	g.POST("/kill-switch", h.ActivateKillSwitch)
	g.DELETE("/kill-switch", h.DeactivateKillSwitch)
	g.POST("/regime/override", h.OverrideRegime)
	if h.candles != nil {
		g.GET("/candles/:symbol", h.Candles)
	}
	if h.signals != nil {
		g.GET("/signals", echo.WrapHandler(h.signals.Signals()))
	}
}

func (h *EngineHandler) Summary(c echo.Context) error {
	return xhttp.SuccessResponse(c, h.engine.Summary())
}

func (h *EngineHandler) State(c echo.Context) error {
	c.Response().Header().Set(echo.HeaderCacheControl, "no-store")
	return xhttp.SuccessResponse(c, h.engine.State())
}

func (h *EngineHandler) Transitions(c echo.Context) error {
	req := &models.TransitionsRequest{}
	if verr := xhttp.BindRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	since := xhttp.ParseTimeDefault(req.Since, time.Time{})

	all := h.engine.Transitions(0)
	out := make([]models.StateTransition, 0, len(all))
	for _, tr := range all {
		if !since.IsZero() && !tr.Timestamp.After(since) {
			continue
		}
		out = append(out, tr)
	}
	if len(out) > req.Limit {
		out = out[len(out)-req.Limit:]
	}
	return xhttp.ListResponse(c, out, int64(len(out)))
}

func (h *EngineHandler) ActivateKillSwitch(c echo.Context) error {
	req := &models.KillSwitchRequest{}
	if verr := xhttp.BindRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	if err := h.engine.ActivateKillSwitch(c.Request().Context(), req.Reason); err != nil {
		h.logger.Error("kill switch persist error", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, xhttp.InternalError("kill switch engaged but state was not saved").WithError(err))
	}
	h.logger.Warn("kill switch activated via api",
		xlogger.String("reason", req.Reason),
		xlogger.String("remote", c.RealIP()),
	)
	return xhttp.SuccessResponse(c, h.engine.Summary())
}

func (h *EngineHandler) DeactivateKillSwitch(c echo.Context) error {
	if err := h.engine.DeactivateKillSwitch(c.Request().Context()); err != nil {
		h.logger.Error("kill switch persist error", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, xhttp.InternalError("kill switch released but state was not saved").WithError(err))
	}
	h.logger.Info("kill switch released via api", xlogger.String("remote", c.RealIP()))
	return xhttp.SuccessResponse(c, h.engine.Summary())
}

func (h *EngineHandler) OverrideRegime(c echo.Context) error {
	req := &models.RegimeOverrideRequest{}
	if verr := xhttp.BindRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	err := h.engine.OverrideRegime(c.Request().Context(), req.Regime)
	switch {
	case errors.Is(err, usecase.ErrUnknownRegime):
		return xhttp.AppErrorResponse(c, xhttp.BadRequestError(err.Error()))
	case err != nil:
		h.logger.Error("regime override error", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, xhttp.InternalError("regime override was not saved").WithError(err))
	}
	return xhttp.SuccessResponse(c, h.engine.State().Regime)
}

func (h *EngineHandler) Candles(c echo.Context) error {
	req := &models.CandlesRequest{}
	if verr := xhttp.BindRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	res, err := h.candles.GetCandles(c.Request().Context(), usecase.GetCandlesParams{
		Symbol:  req.Symbol,
		Limit:   req.Limit,
		Archive: req.Archive,
	})
	if errors.Is(err, usecase.ErrArchiveDisabled) {
		return xhttp.AppErrorResponse(c, xhttp.NotFoundError(err.Error()))
	}
	if err != nil {
		h.logger.Error("candles usecase error", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, xhttp.InternalError("failed to load candles").WithError(err))
	}
	c.Response().Header().Set(echo.HeaderCacheControl, "private, max-age=15")
	return xhttp.SuccessResponse(c, res)
}

var _ xhttp.Handler = (*EngineHandler)(nil)
