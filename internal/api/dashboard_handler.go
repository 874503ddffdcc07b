package api

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

func (h *Handler) GetStats(e echo.Context) error {
	stats, err := h.dashboard.GetStats(e.Request().Context(), actorFrom(e).UserID)
	if err != nil {
		return h.transportError(e, err)
	}

	return e.JSON(http.StatusOK, stats)
}

func (h *Handler) GetOpenTasks(e echo.Context) error {
	tasks, err := h.dashboard.GetOpenTasks(e.Request().Context(), actorFrom(e).UserID)
	if err != nil {
		return h.transportError(e, err)
	}

	return e.JSON(http.StatusOK, tasks)
}
