package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/codebuildervaibhav/video-transcriber/internal/pipeline"
)

// ProcessHandler exposes batch run triggers. The pipeline is injected at
// construction time; handlers never reach it through global state.
type ProcessHandler struct {
	runner *pipeline.Runner
}

// NewProcessHandler creates a process handler around the shared runner.
func NewProcessHandler(runner *pipeline.Runner) *ProcessHandler {
	return &ProcessHandler{runner: runner}
}

// HandleSync runs a full batch pass and responds with its summary once it
// finishes. Long-running by design; use HandleAsync for fire-and-forget.
func (h *ProcessHandler) HandleSync(c *fiber.Ctx) error {
	summary, err := h.runner.Run(c.Context())
	if errors.Is(err, pipeline.ErrRunInProgress) {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{
			"error": "a batch run is already in progress",
			"code":  "ERR_RUN_IN_PROGRESS",
		})
	}
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": err.Error(),
			"code":  "ERR_BATCH_FAILED",
		})
	}

	return c.JSON(fiber.Map{
		"success": true,
		"message": "processing complete",
		"data":    summary,
	})
}

// HandleAsync starts a batch run in the background and acknowledges
// immediately with its run id.
func (h *ProcessHandler) HandleAsync(c *fiber.Ctx) error {
	runID, err := h.runner.StartAsync()
	if errors.Is(err, pipeline.ErrRunInProgress) {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{
			"error": "a batch run is already in progress",
			"code":  "ERR_RUN_IN_PROGRESS",
		})
	}
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": err.Error(),
			"code":  "ERR_BATCH_FAILED",
		})
	}

	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
		"run_id":  runID,
		"status":  "started",
		"message": "batch run started in background",
	})
}

// HandleRunStatus reports whether a run is active and the last run's outcome.
func (h *ProcessHandler) HandleRunStatus(c *fiber.Ctx) error {
	running, info := h.runner.Status()
	return c.JSON(fiber.Map{
		"running": running,
		"run":     info,
	})
}
