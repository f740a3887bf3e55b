package domain

import "time"

// AlertSeverity enumerates how loudly an alert should be surfaced.
type AlertSeverity string

const (
	AlertSeverityCritical AlertSeverity = "CRITICAL"
	AlertSeverityWarning  AlertSeverity = "WARNING"
	AlertSeverityInfo     AlertSeverity = "INFO"
)

// Alert is an append-only record emitted by the rule engine when a rule
// predicate flips from false to true. Consumers read alerts as a stream and
// never mutate them.
type Alert struct {
	ID            string
	RuleID        string
	Group         string
	Severity      AlertSeverity
	Message       string
	TriggeredAt   time.Time
	WindowSummary map[string]float64
}
