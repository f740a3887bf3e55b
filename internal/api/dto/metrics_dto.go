package dto

import (
	"time"

	"github.com/spec-kit/tweet-triage/internal/domain"
	"github.com/spec-kit/tweet-triage/internal/metrics"
)

// MetricsResponse is the dashboard's aggregate view.
type MetricsResponse struct {
	Total            int64                           `json:"total"`
	ByStatus         map[domain.TicketStatus]int64   `json:"by_status"`
	ByPriority       map[domain.TicketPriority]int64 `json:"by_priority"`
	ByCategory       map[domain.Category]int64       `json:"by_category"`
	BySentiment      map[domain.Sentiment]int64      `json:"by_sentiment"`
	ManualReview     int64                           `json:"manual_review"`
	Escalations      int64                           `json:"escalations"`
	Answered         int64                           `json:"answered"`
	AlertsTotal      int64                           `json:"alerts_total"`
	AlertsBySeverity map[domain.AlertSeverity]int64  `json:"alerts_by_severity"`
	ResponseCount    int64                           `json:"response_count"`
	ResponseMean     float64                         `json:"response_mean_minutes"`
	ResponseP50      float64                         `json:"response_p50_minutes"`
	ResponseP90      float64                         `json:"response_p90_minutes"`
	ResponseP99      float64                         `json:"response_p99_minutes"`
	HourlyVolume     map[string]int64                `json:"hourly_volume"`
}

// FromSummary maps a metrics summary to its DTO.
func FromSummary(s metrics.Summary) MetricsResponse {
	hourly := make(map[string]int64, len(s.HourlyVolume))
	for hour, count := range s.HourlyVolume {
		hourly[hour.Format(time.RFC3339)] = count
	}
	return MetricsResponse{
		Total:            s.Total,
		ByStatus:         s.ByStatus,
		ByPriority:       s.ByPriority,
		ByCategory:       s.ByCategory,
		BySentiment:      s.BySentiment,
		ManualReview:     s.ManualReview,
		Escalations:      s.Escalations,
		Answered:         s.Answered,
		AlertsTotal:      s.AlertsTotal,
		AlertsBySeverity: s.AlertsBySeverity,
		ResponseCount:    s.ResponseCount,
		ResponseMean:     s.ResponseMean,
		ResponseP50:      s.ResponseP50,
		ResponseP90:      s.ResponseP90,
		ResponseP99:      s.ResponseP99,
		HourlyVolume:     hourly,
	}
}
