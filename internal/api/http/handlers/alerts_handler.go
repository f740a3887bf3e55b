package handlers

import (
	"bufio"
	"encoding/json"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/tweet-triage/internal/alerts"
	"github.com/spec-kit/tweet-triage/internal/api/dto"
)

// AlertsHandler serves the alert stream: cursor-based pages for catch-up
// consumers and an SSE feed for live ones.
type AlertsHandler struct {
	log *alerts.Log
}

// NewAlertsHandler constructs handler.
func NewAlertsHandler(log *alerts.Log) *AlertsHandler {
	return &AlertsHandler{log: log}
}

// List GET /alerts?cursor=0&limit=50. The returned next_cursor is stable
// across reconnects; the stream is append-only.
func (h *AlertsHandler) List(c *fiber.Ctx) error {
	cursor, _ := strconv.ParseUint(c.Query("cursor", "0"), 10, 64)
	limit := parseIntQuery(c, "limit", 50)

	page, next := h.log.Page(cursor, limit)
	items := make([]dto.AlertResponse, 0, len(page))
	for _, alert := range page {
		items = append(items, dto.FromAlert(alert))
	}
	return c.JSON(fiber.Map{"data": dto.AlertPageResponse{
		Alerts:     items,
		NextCursor: next,
	}})
}

// Stream GET /alerts/stream delivers alerts as Server-Sent Events starting
// from the optional cursor, then live as they fire.
func (h *AlertsHandler) Stream(c *fiber.Ctx) error {
	cursor, _ := strconv.ParseUint(c.Query("cursor", strconv.FormatUint(h.log.Len(), 10)), 10, 64)

	c.Set("Content-Type", "text/event-stream")
	c.Set("Cache-Control", "no-cache")
	c.Set("Connection", "keep-alive")

	log := h.log
	c.Context().SetBodyStreamWriter(func(w *bufio.Writer) {
		streamAlerts(w, log, cursor, streamKeepaliveInterval)
	})
	return nil
}

// streamKeepaliveInterval bounds how long a dead client can hold the writer
// goroutine: the next keepalive write fails and ends the stream.
const streamKeepaliveInterval = 15 * time.Second

func streamAlerts(w *bufio.Writer, log *alerts.Log, cursor uint64, keepalive time.Duration) {
	// Catch up from the requested cursor first.
	for {
		page, next := log.Page(cursor, 100)
		if len(page) == 0 {
			break
		}
		for _, alert := range page {
			if !writeSSE(w, dto.FromAlert(alert)) {
				return
			}
		}
		cursor = next
	}

	ch := log.Subscribe()
	defer log.Unsubscribe(ch)
	ticker := time.NewTicker(keepalive)
	defer ticker.Stop()
	for {
		select {
		case alert, ok := <-ch:
			if !ok {
				return
			}
			if !writeSSE(w, dto.FromAlert(alert)) {
				return
			}
		case <-ticker.C:
			if !writeKeepalive(w) {
				return
			}
		}
	}
}

func writeSSE(w *bufio.Writer, alert dto.AlertResponse) bool {
	data, err := json.Marshal(alert)
	if err != nil {
		return false
	}
	if _, err := w.WriteString("event: alert\ndata: " + string(data) + "\n\n"); err != nil {
		return false
	}
	return w.Flush() == nil
}

// writeKeepalive emits an SSE comment line ignored by clients.
func writeKeepalive(w *bufio.Writer) bool {
	if _, err := w.WriteString(": keepalive\n\n"); err != nil {
		return false
	}
	return w.Flush() == nil
}
