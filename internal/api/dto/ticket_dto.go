package dto

import (
	"time"

	"github.com/spec-kit/tweet-triage/internal/domain"
)

// IngestMessageRequest is the ingestion boundary payload.
type IngestMessageRequest struct {
	SourceMessageID string     `json:"source_message_id"`
	Author          string     `json:"author"`
	Content         string     `json:"content"`
	ReceivedAt      *time.Time `json:"received_at"`
}

// IngestMessageResponse returns the (possibly pre-existing) ticket id.
type IngestMessageResponse struct {
	TicketID string `json:"ticket_id"`
	Created  bool   `json:"created"`
}

// TicketSummary response.
type TicketSummary struct {
	ID                  string                `json:"id"`
	SourceMessageID     string                `json:"source_message_id"`
	Author              string                `json:"author"`
	Status              domain.TicketStatus   `json:"status"`
	Priority            domain.TicketPriority `json:"priority"`
	Sentiment           domain.Sentiment      `json:"sentiment"`
	Category            domain.Category       `json:"category"`
	UrgencyScore        float64               `json:"urgency_score"`
	AssignedAgent       *string               `json:"assigned_agent,omitempty"`
	NeedsManualReview   bool                  `json:"needs_manual_review"`
	ReceivedAt          time.Time             `json:"received_at"`
	StatusEnteredAt     time.Time             `json:"status_entered_at"`
	ResponseTimeMinutes *float64              `json:"response_time_minutes,omitempty"`
	Version             uint64                `json:"version"`
}

// TicketDetailResponse provides full ticket info.
type TicketDetailResponse struct {
	TicketSummary
	Content               string `json:"content"`
	ResponseText          string `json:"response_text,omitempty"`
	ClassificationVersion int64  `json:"classification_version"`
}

// AgentActionRequest carries the shared fields of agent actions. When
// ExpectedVersion is zero the handler acts on the version it reads, so a
// concurrent writer still surfaces as a 409.
type AgentActionRequest struct {
	ExpectedVersion uint64 `json:"expected_version"`
	ResponseText    string `json:"response_text,omitempty"`
	Reason          string `json:"reason,omitempty"`
	AgentID         string `json:"agent_id,omitempty"`
}

// FromTicket maps a domain ticket to its summary DTO.
func FromTicket(t *domain.Ticket) TicketSummary {
	return TicketSummary{
		ID:                  t.ID,
		SourceMessageID:     t.SourceMessageID,
		Author:              t.Author,
		Status:              t.Status,
		Priority:            t.Priority,
		Sentiment:           t.Sentiment,
		Category:            t.Category,
		UrgencyScore:        t.UrgencyScore,
		AssignedAgent:       t.AssignedAgent,
		NeedsManualReview:   t.NeedsManualReview,
		ReceivedAt:          t.ReceivedAt,
		StatusEnteredAt:     t.StatusEnteredAt,
		ResponseTimeMinutes: t.ResponseTimeMinutes,
		Version:             t.Version,
	}
}

// FromTicketDetail maps a domain ticket to its detail DTO.
func FromTicketDetail(t *domain.Ticket) TicketDetailResponse {
	return TicketDetailResponse{
		TicketSummary:         FromTicket(t),
		Content:               t.Content,
		ResponseText:          t.ResponseText,
		ClassificationVersion: t.ClassificationVersion,
	}
}
