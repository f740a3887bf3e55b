package handlers

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/tweet-triage/internal/api/dto"
	"github.com/spec-kit/tweet-triage/internal/metrics"
)

// MetricsHandler serves the dashboard's aggregate statistics.
type MetricsHandler struct {
	aggregator *metrics.Aggregator
}

// NewMetricsHandler constructs handler.
func NewMetricsHandler(aggregator *metrics.Aggregator) *MetricsHandler {
	return &MetricsHandler{aggregator: aggregator}
}

// Get GET /metrics?window_minutes=60. Zero window returns everything
// retained.
func (h *MetricsHandler) Get(c *fiber.Ctx) error {
	window := time.Duration(parseIntQuery(c, "window_minutes", 0)) * time.Minute
	summary := h.aggregator.Snapshot(window)
	return c.JSON(fiber.Map{"data": dto.FromSummary(summary)})
}
