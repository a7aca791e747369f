package v1

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/example/sketchd/internal/domain"
)

// GetThread returns the ordered message log plus the latest run summary.
// GET /v1/sessions/:session_id/thread
func (h *Handler) GetThread(c echo.Context) error {
	view, err := h.service.ListThread(c.Request().Context(), c.Param("session_id"))
	if err != nil {
		if errors.Is(err, domain.ErrSessionNotFound) {
			return c.JSON(http.StatusNotFound, map[string]string{"error": "session not found"})
		}
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	return c.JSON(http.StatusOK, view)
}
