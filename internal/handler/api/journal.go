package api

import (
	"context"

	xhttp "TickPilot/pkg/http"
	xlogger "TickPilot/pkg/logger"

	"github.com/labstack/echo/v4"
)

// DeadLetterCounter reports how many journal writes exhausted their retries.
type DeadLetterCounter interface {
	DeadLetters(ctx context.Context) (int64, error)
}

// JournalHealth is the body of GET /journal/dead-letters.
type JournalHealth struct {
	DeadLetters int64 `json:"dead_letters"`
}

// JournalHandler exposes the health of the queued trade journal.
type JournalHandler struct {
	logger *xlogger.Logger
	queue  DeadLetterCounter
}

func NewJournalHandler(logger *xlogger.Logger, queue DeadLetterCounter) *JournalHandler {
	if logger == nil {
		logger = xlogger.NewNop()
	}
	return &JournalHandler{logger: logger, queue: queue}
}

func (h *JournalHandler) RegisterRoutes(g *echo.Group) {
	g.GET("/journal/dead-letters", h.DeadLetters)
}

func (h *JournalHandler) DeadLetters(c echo.Context) error {
	n, err := h.queue.DeadLetters(c.Request().Context())
	if err != nil {
		h.logger.Error("dead letter count error", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, xhttp.InternalError("journal queue unavailable").WithError(err))
	}
	c.Response().Header().Set(echo.HeaderCacheControl, "no-store")
	return xhttp.SuccessResponse(c, JournalHealth{DeadLetters: n})
}

var _ xhttp.Handler = (*JournalHandler)(nil)
