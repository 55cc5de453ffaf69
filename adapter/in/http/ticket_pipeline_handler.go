// Package http provides the HTTP trigger API for the pipeline.
package http

import (
	"errors"
	"time"

	"ticket_worker/core/domain"
	"ticket_worker/core/service/pipeline"
	"ticket_worker/pkg/apperr"

	"github.com/gofiber/fiber/v2"
)

const (
	defaultRunWindowHours = 24
	defaultRunMaxCount    = 20
	maxRunMaxCount        = 100
)

// PipelineHandler handles manual pipeline trigger requests.
type PipelineHandler struct {
	coordinator *pipeline.Coordinator
}

// NewPipelineHandler creates a new pipeline handler.
func NewPipelineHandler(coordinator *pipeline.Coordinator) *PipelineHandler {
	return &PipelineHandler{
		coordinator: coordinator,
	}
}

// Register registers pipeline routes.
func (h *PipelineHandler) Register(router fiber.Router) {
	p := router.Group("/pipeline")

	p.Post("/run", h.RunPipeline)
	p.Get("/stats", h.GetStats)
}

// =============================================================================
// Handlers
// =============================================================================

type runRequest struct {
	WindowHours int `json:"window_hours"`
	MaxCount    int `json:"max_count"`
}

type runStatsResponse struct {
	RunID      string `json:"run_id"`
	StartedAt  string `json:"started_at"`
	FinishedAt string `json:"finished_at"`
	Fetched    int64  `json:"fetched"`
	Analyzed   int64  `json:"analyzed"`
	Actionable int64  `json:"actionable"`
	Created    int64  `json:"created"`
	Skipped    int64  `json:"skipped"`
	Errored    int64  `json:"errored"`
}

// RunPipeline triggers one pipeline run and waits for its stats.
func (h *PipelineHandler) RunPipeline(c *fiber.Ctx) error {
	req := runRequest{
		WindowHours: defaultRunWindowHours,
		MaxCount:    defaultRunMaxCount,
	}
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return apperr.BadRequest("invalid request body")
		}
	}

	if req.WindowHours <= 0 {
		req.WindowHours = defaultRunWindowHours
	}
	if req.MaxCount <= 0 {
		req.MaxCount = defaultRunMaxCount
	}
	if req.MaxCount > maxRunMaxCount {
		req.MaxCount = maxRunMaxCount
	}

	windowEnd := time.Now().UTC()
	windowStart := windowEnd.Add(-time.Duration(req.WindowHours) * time.Hour)

	stats, err := h.coordinator.RunOnce(c.Context(), windowStart, windowEnd, req.MaxCount)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrAlreadyRunning):
			return apperr.AlreadyRunning()
		case errors.Is(err, domain.ErrSourceUnavailable):
			return apperr.SourceUnavailable(err)
		default:
			return apperr.Internal(err)
		}
	}

	return c.JSON(fiber.Map{
		"success": true,
		"stats":   toStatsResponse(stats),
	})
}

// GetStats returns the latest run stats plus lifetime totals.
func (h *PipelineHandler) GetStats(c *fiber.Ctx) error {
	totals := h.coordinator.Totals()

	resp := fiber.Map{
		"running": h.coordinator.IsRunning(),
		"totals": fiber.Map{
			"fetched":    totals.Fetched,
			"analyzed":   totals.Analyzed,
			"actionable": totals.Actionable,
			"created":    totals.Created,
			"skipped":    totals.Skipped,
			"errored":    totals.Errored,
		},
	}

	if last := h.coordinator.LastStats(); last != nil {
		resp["last_run"] = toStatsResponse(last)
	}

	return c.JSON(resp)
}

func toStatsResponse(stats *domain.RunStats) runStatsResponse {
	return runStatsResponse{
		RunID:      stats.RunID,
		StartedAt:  stats.StartedAt.Format(time.RFC3339),
		FinishedAt: stats.FinishedAt.Format(time.RFC3339),
		Fetched:    stats.Fetched,
		Analyzed:   stats.Analyzed,
		Actionable: stats.Actionable,
		Created:    stats.Created,
		Skipped:    stats.Skipped,
		Errored:    stats.Errored,
	}
}
