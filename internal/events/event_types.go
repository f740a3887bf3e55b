package events

import (
	"time"

	"github.com/spec-kit/tweet-triage/internal/domain"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventTicketCreated       EventType = "ticket_created"
	EventTicketClassified    EventType = "ticket_classified"
	EventTicketStatusChanged EventType = "ticket_status_changed"
	EventTicketAssigned      EventType = "ticket_assigned"
	EventAlertTriggered      EventType = "alert_triggered"
)

// ActorType distinguishes event origins.
type ActorType string

const (
	ActorTypeSystem ActorType = "SYSTEM"
	ActorTypeAgent  ActorType = "AGENT"
)

// Actor encapsulates who caused an event.
type Actor struct {
	Type    ActorType `json:"type"`
	AgentID *string   `json:"agent_id,omitempty"`
}

// SystemActor is the actor for engine-originated events (ingestion,
// classification, SLA escalation).
func SystemActor() Actor {
	return Actor{Type: ActorTypeSystem}
}

// AgentActor is the actor for agent-originated events.
func AgentActor(agentID string) Actor {
	return Actor{Type: ActorTypeAgent, AgentID: &agentID}
}

// Event represents a lifecycle event emitted by the engine. The event log is
// the replayable source of truth; every payload carries enough to rebuild
// derived state (SLA timers, alert windows, metric projections).
type Event struct {
	ID        string      `json:"id"`
	Type      EventType   `json:"type"`
	TicketID  string      `json:"ticket_id"`
	Actor     Actor       `json:"actor"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   interface{} `json:"payload"`
}

// TicketCreatedPayload payload.
type TicketCreatedPayload struct {
	SourceMessageID string                `json:"source_message_id"`
	Author          string                `json:"author"`
	Priority        domain.TicketPriority `json:"priority"`
	ReceivedAt      time.Time             `json:"received_at"`
}

// TicketClassifiedPayload payload. Old values are included so consumers that
// keep per-sentiment or per-category tallies can adjust without re-reading.
type TicketClassifiedPayload struct {
	ClassificationVersion int64                 `json:"classification_version"`
	Sentiment             domain.Sentiment      `json:"sentiment"`
	Category              domain.Category       `json:"category"`
	Priority              domain.TicketPriority `json:"priority"`
	UrgencyScore          float64               `json:"urgency_score"`
	OldSentiment          domain.Sentiment      `json:"old_sentiment,omitempty"`
	OldCategory           domain.Category       `json:"old_category,omitempty"`
	OldPriority           domain.TicketPriority `json:"old_priority,omitempty"`
	ManualReview          bool                  `json:"manual_review,omitempty"`
}

// TicketStatusChangedPayload payload.
type TicketStatusChangedPayload struct {
	OldStatus           domain.TicketStatus   `json:"old_status"`
	NewStatus           domain.TicketStatus   `json:"new_status"`
	Priority            domain.TicketPriority `json:"priority"`
	StatusEnteredAt     time.Time             `json:"status_entered_at"`
	Reason              string                `json:"reason,omitempty"`
	ResponseTimeMinutes *float64              `json:"response_time_minutes,omitempty"`
}

// TicketAssignedPayload payload.
type TicketAssignedPayload struct {
	AgentID    string  `json:"agent_id"`
	OldAgentID *string `json:"old_agent_id,omitempty"`
}

// AlertTriggeredPayload payload.
type AlertTriggeredPayload struct {
	AlertID       string               `json:"alert_id"`
	RuleID        string               `json:"rule_id"`
	Group         string               `json:"group,omitempty"`
	Severity      domain.AlertSeverity `json:"severity"`
	Message       string               `json:"message"`
	WindowSummary map[string]float64   `json:"window_summary"`
}
