package dto

import (
	"time"

	"github.com/spec-kit/tweet-triage/internal/domain"
)

// AlertResponse payload.
type AlertResponse struct {
	ID            string               `json:"id"`
	RuleID        string               `json:"rule_id"`
	Group         string               `json:"group,omitempty"`
	Severity      domain.AlertSeverity `json:"severity"`
	Message       string               `json:"message"`
	TriggeredAt   time.Time            `json:"triggered_at"`
	WindowSummary map[string]float64   `json:"window_summary"`
}

// AlertPageResponse is one page of the alert stream.
type AlertPageResponse struct {
	Alerts     []AlertResponse `json:"alerts"`
	NextCursor uint64          `json:"next_cursor"`
}

// FromAlert maps a domain alert to its DTO.
func FromAlert(alert domain.Alert) AlertResponse {
	return AlertResponse{
		ID:            alert.ID,
		RuleID:        alert.RuleID,
		Group:         alert.Group,
		Severity:      alert.Severity,
		Message:       alert.Message,
		TriggeredAt:   alert.TriggeredAt,
		WindowSummary: alert.WindowSummary,
	}
}
