package handlers

import (
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/memohai/jobrelay/internal/route"
)

type PingHandler struct {
	logger *slog.Logger
}

func NewPingHandler(log *slog.Logger) *PingHandler {
	return &PingHandler{logger: log.With(slog.String("handler", "ping"))}
}

func (h *PingHandler) Register(e *echo.Echo) {
	e.GET(route.Ping, h.Ping)
}

// Ping godoc
// @Summary Liveness check
// @Tags system
// @Produce json
// @Success 200 {object} PingResponse
// @Failure 401 {object} ErrorResponse
// @Router /ping [get]
func (h *PingHandler) Ping(c echo.Context) error {
	return c.JSON(http.StatusOK, PingResponse{Message: "Pong!"})
}
