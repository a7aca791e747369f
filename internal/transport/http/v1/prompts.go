package v1

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/example/sketchd/internal/domain"
)

type enqueueBody struct {
	Prompt          string `json:"prompt"`
	PromptMessageID string `json:"prompt_message_id"`
	TraceID         string `json:"trace_id,omitempty"`
	ActorID         string `json:"actor_id,omitempty"`
}

// EnqueuePrompt accepts one edit request.
// POST /v1/sessions/:session_id/prompts
func (h *Handler) EnqueuePrompt(c echo.Context) error {
	var body enqueueBody
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}

	result, err := h.service.EnqueuePrompt(c.Request().Context(), domain.EnqueueRequest{
		SessionID:       c.Param("session_id"),
		PromptMessageID: body.PromptMessageID,
		Prompt:          body.Prompt,
		TraceID:         body.TraceID,
		ActorID:         body.ActorID,
	})
	if err != nil {
		if errors.Is(err, domain.ErrEmptyPrompt) {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "prompt text is empty"})
		}
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}

	status := http.StatusAccepted
	if result.Outcome == domain.EnqueueOutcomeDuplicate {
		status = http.StatusOK
	}
	return c.JSON(status, result)
}

// StopPrompt requests cooperative cancellation of a run.
// POST /v1/sessions/:session_id/prompts/:prompt_message_id/stop
func (h *Handler) StopPrompt(c echo.Context) error {
	result, err := h.service.StopPrompt(c.Request().Context(), c.Param("session_id"), c.Param("prompt_message_id"))
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	if result.Outcome == domain.StopOutcomeNotFound {
		return c.JSON(http.StatusNotFound, result)
	}
	return c.JSON(http.StatusOK, result)
}

// GetRun returns a single run by its idempotency key.
// GET /v1/sessions/:session_id/prompts/:prompt_message_id
func (h *Handler) GetRun(c echo.Context) error {
	run, err := h.service.GetRun(c.Request().Context(), c.Param("session_id"), c.Param("prompt_message_id"))
	if err != nil {
		if errors.Is(err, domain.ErrRunNotFound) {
			return c.JSON(http.StatusNotFound, map[string]string{"error": "run not found"})
		}
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	return c.JSON(http.StatusOK, run)
}
