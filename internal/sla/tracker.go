package sla

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/tweet-triage/internal/domain"
	"github.com/spec-kit/tweet-triage/internal/events"
	"github.com/spec-kit/tweet-triage/internal/store"
	apperrors "github.com/spec-kit/tweet-triage/pkg/util/errorutil"
)

const fireAttempts = 3

// Tracker guarantees that no ticket silently overstays its deadline. It
// keeps exactly one outstanding timer per ticket, armed for the ticket's
// current status, and rearms it on every lifecycle event. Work is
// proportional to transitions, never to the full ticket population.
//
// A firing timer re-reads current state before acting; if the ticket already
// moved on, or another writer wins the escalation race, the timer drops out
// silently. Only derived state lives here, rebuildable from a replay.
type Tracker struct {
	store  *store.Store
	policy Policy
	logger *zap.Logger
	now    func() time.Time

	mu     sync.Mutex
	timers map[string]*armedTimer
	closed bool
}

type armedTimer struct {
	timer     *time.Timer
	status    domain.TicketStatus
	enteredAt time.Time
}

// Option customizes tracker construction.
type Option func(*Tracker)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(t *Tracker) { t.now = now }
}

// NewTracker constructs a tracker over the given store and policy.
func NewTracker(st *store.Store, policy Policy, logger *zap.Logger, opts ...Option) *Tracker {
	if logger == nil {
		logger = zap.NewNop()
	}
	t := &Tracker{
		store:  st,
		policy: policy,
		logger: logger,
		now:    time.Now,
		timers: make(map[string]*armedTimer),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Bind subscribes the tracker to ticket lifecycle events.
func (t *Tracker) Bind(dispatcher events.Dispatcher) {
	dispatcher.Subscribe(events.EventTicketCreated, func(ctx context.Context, event events.Event) error {
		payload, ok := event.Payload.(events.TicketCreatedPayload)
		if !ok {
			return nil
		}
		t.arm(event.TicketID, domain.TicketStatusPending, payload.Priority, payload.ReceivedAt)
		return nil
	})
	dispatcher.Subscribe(events.EventTicketStatusChanged, func(ctx context.Context, event events.Event) error {
		payload, ok := event.Payload.(events.TicketStatusChangedPayload)
		if !ok {
			return nil
		}
		t.arm(event.TicketID, payload.NewStatus, payload.Priority, payload.StatusEnteredAt)
		return nil
	})
	// Reclassification can change priority, which moves the deadline.
	dispatcher.Subscribe(events.EventTicketClassified, func(ctx context.Context, event events.Event) error {
		payload, ok := event.Payload.(events.TicketClassifiedPayload)
		if !ok || payload.Priority == payload.OldPriority {
			return nil
		}
		ticket, err := t.store.Get(ctx, event.TicketID)
		if err != nil {
			return err
		}
		t.arm(ticket.ID, ticket.Status, ticket.Priority, ticket.StatusEnteredAt)
		return nil
	})
}

// Resync arms timers for restored tickets, typically after a journal replay.
func (t *Tracker) Resync(tickets []domain.Ticket) {
	for i := range tickets {
		ticket := &tickets[i]
		t.arm(ticket.ID, ticket.Status, ticket.Priority, ticket.StatusEnteredAt)
	}
}

// arm cancels the ticket's previous timer and schedules one for the new
// status, if that status carries a deadline.
func (t *Tracker) arm(ticketID string, status domain.TicketStatus, priority domain.TicketPriority, enteredAt time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return
	}

	if prior, ok := t.timers[ticketID]; ok {
		prior.timer.Stop()
		delete(t.timers, ticketID)
	}

	dwell, ok := t.policy.Deadline(status, priority)
	if !ok {
		return
	}

	delay := enteredAt.Add(dwell).Sub(t.now())
	if delay < 0 {
		delay = 0
	}
	armed := &armedTimer{status: status, enteredAt: enteredAt}
	armed.timer = time.AfterFunc(delay, func() {
		t.fire(ticketID, status, enteredAt)
	})
	t.timers[ticketID] = armed
}

// fire handles a deadline expiry. State may be stale by the time we run, so
// everything is re-checked against the store and a lost race counts as done.
func (t *Tracker) fire(ticketID string, status domain.TicketStatus, enteredAt time.Time) {
	t.mu.Lock()
	if armed, ok := t.timers[ticketID]; ok && armed.status == status && armed.enteredAt.Equal(enteredAt) {
		delete(t.timers, ticketID)
	}
	t.mu.Unlock()

	ctx := context.Background()
	for attempt := 1; attempt <= fireAttempts; attempt++ {
		ticket, err := t.store.Get(ctx, ticketID)
		if err != nil {
			t.logger.Warn("sla check could not read ticket",
				zap.String("ticket_id", ticketID), zap.Int("attempt", attempt), zap.Error(err))
			continue
		}
		if ticket.Status != status || !ticket.StatusEnteredAt.Equal(enteredAt) {
			return // ticket moved on before the deadline hit
		}

		// Priority may have been reclassified upward since arming; if the
		// deadline moved into the future, rearm instead of escalating early.
		if dwell, ok := t.policy.Deadline(ticket.Status, ticket.Priority); ok {
			if deadline := ticket.StatusEnteredAt.Add(dwell); t.now().Before(deadline) {
				t.arm(ticket.ID, ticket.Status, ticket.Priority, ticket.StatusEnteredAt)
				return
			}
		} else {
			return
		}

		_, err = t.store.Escalate(ctx, ticketID, ticket.Version, "sla_breach", events.SystemActor())
		switch {
		case err == nil:
			t.logger.Info("ticket escalated on sla breach",
				zap.String("ticket_id", ticketID),
				zap.String("status", string(status)),
				zap.String("priority", string(ticket.Priority)))
			return
		case apperrors.IsInvalidTransition(err):
			// Someone else already moved the ticket.
			return
		case apperrors.IsConflict(err):
			// A concurrent write bumped the version. It may have been a
			// status-preserving one (classification), so re-read and let the
			// status check above decide.
			continue
		default:
			t.logger.Warn("sla escalation attempt failed",
				zap.String("ticket_id", ticketID), zap.Int("attempt", attempt), zap.Error(err))
		}
	}
	t.logger.Error("sla escalation abandoned after retries", zap.String("ticket_id", ticketID))
}

// Close stops all outstanding timers.
func (t *Tracker) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
	for id, armed := range t.timers {
		armed.timer.Stop()
		delete(t.timers, id)
	}
}
