// Package v1 provides the v1 HTTP handlers for the orchestrator.
package v1

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/example/sketchd/internal/service"
)

// Handler handles HTTP requests.
type Handler struct {
	service *service.Service
}

// NewHandler creates a new handler.
func NewHandler(service *service.Service) *Handler {
	return &Handler{
		service: service,
	}
}

// RegisterRoutes registers routes with the echo server.
func (h *Handler) RegisterRoutes(e *echo.Echo) {
	// Mutation entry points
	e.POST("/v1/sessions/:session_id/prompts", h.EnqueuePrompt)
	e.POST("/v1/sessions/:session_id/prompts/:prompt_message_id/stop", h.StopPrompt)

	// Read-only queries
	e.GET("/v1/sessions/:session_id/thread", h.GetThread)
	e.GET("/v1/sessions/:session_id/prompts/:prompt_message_id", h.GetRun)

	e.GET("/health", h.Health)
}

// Health returns health status.
func (h *Handler) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status":  "healthy",
		"version": "0.1.0",
	})
}
