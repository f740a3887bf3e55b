package sla

import (
	"time"

	"github.com/spec-kit/tweet-triage/internal/config"
	"github.com/spec-kit/tweet-triage/internal/domain"
)

// Policy maps (status, priority) to the response deadline measured from
// entering the status. Statuses with no entry carry no auto-deadline:
// Answered is closed, Escalated waits for a human.
type Policy struct {
	table map[domain.TicketStatus]map[domain.TicketPriority]time.Duration
}

// PolicyFromConfig builds the standard policy: the same per-priority
// thresholds apply to Pending and InProgress.
func PolicyFromConfig(cfg config.SLAConfig) Policy {
	byPriority := map[domain.TicketPriority]time.Duration{
		domain.TicketPriorityHigh:   time.Duration(cfg.HighMinutes) * time.Minute,
		domain.TicketPriorityMedium: time.Duration(cfg.MediumMinutes) * time.Minute,
		domain.TicketPriorityLow:    time.Duration(cfg.LowMinutes) * time.Minute,
	}
	return Policy{table: map[domain.TicketStatus]map[domain.TicketPriority]time.Duration{
		domain.TicketStatusPending:    byPriority,
		domain.TicketStatusInProgress: byPriority,
	}}
}

// NewPolicy builds a policy from an explicit table, mainly for tests.
func NewPolicy(table map[domain.TicketStatus]map[domain.TicketPriority]time.Duration) Policy {
	return Policy{table: table}
}

// Deadline returns the allowed dwell time for a status/priority pair, or
// false when the status has no auto-deadline.
func (p Policy) Deadline(status domain.TicketStatus, priority domain.TicketPriority) (time.Duration, bool) {
	byPriority, ok := p.table[status]
	if !ok {
		return 0, false
	}
	d, ok := byPriority[priority]
	if !ok || d <= 0 {
		return 0, false
	}
	return d, true
}
