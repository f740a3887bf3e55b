package store

import (
	"context"
	"hash/fnv"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/tweet-triage/internal/domain"
	"github.com/spec-kit/tweet-triage/internal/events"
	apperrors "github.com/spec-kit/tweet-triage/pkg/util/errorutil"
)

const shardCount = 32

// Snapshotter receives the materialized current state of a ticket after
// every accepted mutation. Implementations must tolerate being called
// concurrently for different tickets.
type Snapshotter interface {
	UpsertSnapshot(ctx context.Context, ticket *domain.Ticket) error
}

// Store is the authoritative home of ticket state. It is the sole mutator:
// every status change, assignment and classification flows through it, and
// each mutation is guarded by the ticket's version so racing writers get at
// most one winner. Tickets are sharded by id; writers to different tickets
// never contend, and readers never block writers on other shards.
type Store struct {
	logger     *zap.Logger
	dispatcher events.Dispatcher
	snapshots  Snapshotter
	now        func() time.Time

	shards [shardCount]shard

	dedupMu sync.RWMutex
	dedup   map[string]string // source_message_id -> ticket id
}

type shard struct {
	mu      sync.RWMutex
	tickets map[string]*domain.Ticket
}

// Option customizes store construction.
type Option func(*Store)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithSnapshotter attaches a materialized-state writer.
func WithSnapshotter(sn Snapshotter) Option {
	return func(s *Store) { s.snapshots = sn }
}

// New constructs an empty store.
func New(logger *zap.Logger, dispatcher events.Dispatcher, opts ...Option) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Store{
		logger:     logger,
		dispatcher: dispatcher,
		now:        time.Now,
		dedup:      make(map[string]string),
	}
	for i := range s.shards {
		s.shards[i].tickets = make(map[string]*domain.Ticket)
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) shardFor(ticketID string) *shard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(ticketID))
	return &s.shards[h.Sum32()%shardCount]
}

// Create registers a ticket for an inbound message. Ingestion is idempotent
// on SourceMessageID: the first caller creates the ticket, every later (or
// concurrently racing) caller gets the winner's ticket back with
// created=false.
func (s *Store) Create(ctx context.Context, msg domain.InboundMessage) (*domain.Ticket, bool, error) {
	if msg.SourceMessageID == "" {
		return nil, false, apperrors.NewValidationError("source_message_id required", nil)
	}

	receivedAt := msg.ReceivedAt
	if receivedAt.IsZero() {
		receivedAt = s.now()
	}

	s.dedupMu.Lock()
	if existingID, ok := s.dedup[msg.SourceMessageID]; ok {
		s.dedupMu.Unlock()
		existing, err := s.Get(ctx, existingID)
		if err != nil {
			return nil, false, err
		}
		return existing, false, nil
	}

	ticket := &domain.Ticket{
		ID:              uuid.NewString(),
		SourceMessageID: msg.SourceMessageID,
		Author:          msg.Author,
		Content:         msg.Content,
		ReceivedAt:      receivedAt,
		Sentiment:       domain.SentimentNeutral,
		Category:        domain.CategoryUncategorized,
		Priority:        domain.TicketPriorityMedium,
		Status:          domain.TicketStatusPending,
		StatusEnteredAt: receivedAt,
		Version:         1,
	}

	sh := s.shardFor(ticket.ID)
	sh.mu.Lock()
	sh.tickets[ticket.ID] = ticket
	sh.mu.Unlock()

	s.dedup[msg.SourceMessageID] = ticket.ID
	s.dedupMu.Unlock()

	s.publish(ctx, events.Event{
		Type:     events.EventTicketCreated,
		TicketID: ticket.ID,
		Actor:    events.SystemActor(),
		Payload: events.TicketCreatedPayload{
			SourceMessageID: ticket.SourceMessageID,
			Author:          ticket.Author,
			Priority:        ticket.Priority,
			ReceivedAt:      ticket.ReceivedAt,
		},
	})
	s.snapshot(ctx, ticket.Clone())

	return ticket.Clone(), true, nil
}

// Get returns a copy of the ticket.
func (s *Store) Get(ctx context.Context, id string) (*domain.Ticket, error) {
	sh := s.shardFor(id)
	sh.mu.RLock()
	ticket, ok := sh.tickets[id]
	if !ok {
		sh.mu.RUnlock()
		return nil, apperrors.NewNotFound("ticket", map[string]any{"ticket_id": id})
	}
	clone := ticket.Clone()
	sh.mu.RUnlock()
	return clone, nil
}

// GetBySourceMessageID resolves the ticket created for an inbound message.
func (s *Store) GetBySourceMessageID(ctx context.Context, sourceMessageID string) (*domain.Ticket, error) {
	s.dedupMu.RLock()
	id, ok := s.dedup[sourceMessageID]
	s.dedupMu.RUnlock()
	if !ok {
		return nil, apperrors.NewNotFound("ticket", map[string]any{"source_message_id": sourceMessageID})
	}
	return s.Get(ctx, id)
}

// Filter narrows List results. Zero-valued fields match everything.
type Filter struct {
	Statuses     []domain.TicketStatus
	Priorities   []domain.TicketPriority
	Categories   []domain.Category
	Sentiments   []domain.Sentiment
	ManualReview *bool
	ReceivedFrom *time.Time
	ReceivedTo   *time.Time
	Limit        int
	Offset       int
}

func (f Filter) matches(t *domain.Ticket) bool {
	if len(f.Statuses) > 0 && !containsStatus(f.Statuses, t.Status) {
		return false
	}
	if len(f.Priorities) > 0 && !containsPriority(f.Priorities, t.Priority) {
		return false
	}
	if len(f.Categories) > 0 && !containsCategory(f.Categories, t.Category) {
		return false
	}
	if len(f.Sentiments) > 0 && !containsSentiment(f.Sentiments, t.Sentiment) {
		return false
	}
	if f.ManualReview != nil && t.NeedsManualReview != *f.ManualReview {
		return false
	}
	if f.ReceivedFrom != nil && t.ReceivedAt.Before(*f.ReceivedFrom) {
		return false
	}
	if f.ReceivedTo != nil && t.ReceivedAt.After(*f.ReceivedTo) {
		return false
	}
	return true
}

// List returns ticket snapshots matching the filter, newest first.
func (s *Store) List(ctx context.Context, filter Filter) []domain.Ticket {
	matched := make([]domain.Ticket, 0)
	for i := range s.shards {
		sh := &s.shards[i]
		sh.mu.RLock()
		for _, ticket := range sh.tickets {
			if filter.matches(ticket) {
				matched = append(matched, *ticket.Clone())
			}
		}
		sh.mu.RUnlock()
	}

	sort.Slice(matched, func(i, j int) bool {
		if matched[i].ReceivedAt.Equal(matched[j].ReceivedAt) {
			return matched[i].ID < matched[j].ID
		}
		return matched[i].ReceivedAt.After(matched[j].ReceivedAt)
	})

	if filter.Offset > 0 {
		if filter.Offset >= len(matched) {
			return []domain.Ticket{}
		}
		matched = matched[filter.Offset:]
	}
	if filter.Limit > 0 && filter.Limit < len(matched) {
		matched = matched[:filter.Limit]
	}
	return matched
}

// Claim moves a Pending or Escalated ticket to InProgress for the agent.
func (s *Store) Claim(ctx context.Context, id string, expectedVersion uint64, agentID string) (*domain.Ticket, error) {
	return s.transition(ctx, id, expectedVersion, domain.TicketStatusInProgress, "claimed", events.AgentActor(agentID), func(t *domain.Ticket) {
		t.AssignedAgent = &agentID
	})
}

// Respond answers the ticket and finalizes its response time.
func (s *Store) Respond(ctx context.Context, id string, expectedVersion uint64, agentID, responseText string) (*domain.Ticket, error) {
	return s.transition(ctx, id, expectedVersion, domain.TicketStatusAnswered, "responded", events.AgentActor(agentID), func(t *domain.Ticket) {
		if t.AssignedAgent == nil {
			t.AssignedAgent = &agentID
		}
		t.ResponseText = responseText
		if t.ResponseTimeMinutes == nil {
			minutes := s.now().Sub(t.ReceivedAt).Minutes()
			if minutes < 0 {
				minutes = 0
			}
			t.ResponseTimeMinutes = &minutes
		}
	})
}

// Escalate forces the ticket to Escalated, on SLA breach or manual action.
func (s *Store) Escalate(ctx context.Context, id string, expectedVersion uint64, reason string, actor events.Actor) (*domain.Ticket, error) {
	if reason == "" {
		reason = "escalated"
	}
	return s.transition(ctx, id, expectedVersion, domain.TicketStatusEscalated, reason, actor, nil)
}

// Reopen moves an Answered ticket back to InProgress. This is the only exit
// from Answered; nothing ever reverts a ticket to Pending.
func (s *Store) Reopen(ctx context.Context, id string, expectedVersion uint64, agentID string) (*domain.Ticket, error) {
	return s.transition(ctx, id, expectedVersion, domain.TicketStatusInProgress, "reopened", events.AgentActor(agentID), func(t *domain.Ticket) {
		t.AssignedAgent = &agentID
	})
}

// Reassign hands the ticket to another agent without changing its status.
func (s *Store) Reassign(ctx context.Context, id string, expectedVersion uint64, agentID string) (*domain.Ticket, error) {
	var assigned events.TicketAssignedPayload

	_, err := s.mutate(ctx, id, expectedVersion, func(t *domain.Ticket) error {
		if t.Status == domain.TicketStatusAnswered {
			return apperrors.NewValidationError("cannot reassign an answered ticket", nil)
		}
		assigned = events.TicketAssignedPayload{AgentID: agentID, OldAgentID: t.AssignedAgent}
		t.AssignedAgent = &agentID
		return nil
	})
	if err != nil {
		return nil, err
	}

	clone, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	s.publish(ctx, events.Event{
		Type:     events.EventTicketAssigned,
		TicketID: id,
		Actor:    events.AgentActor(agentID),
		Payload:  assigned,
	})
	s.snapshot(ctx, clone)
	return clone, nil
}

// ApplyClassification records classifier output on the ticket. Last write
// wins through the same version gate as any other mutation: a stale result
// for a ticket that has moved on is rejected with a conflict and simply
// discarded by the caller.
func (s *Store) ApplyClassification(ctx context.Context, id string, expectedVersion uint64, c domain.Classification) (*domain.Ticket, error) {
	if c.UrgencyScore < 0 || c.UrgencyScore > 1 {
		return nil, apperrors.NewValidationError("urgency_score must be in [0,1]", map[string]any{"urgency_score": c.UrgencyScore})
	}
	if c.Priority == "" {
		c.Priority = domain.TicketPriorityMedium
	}
	if c.Category == "" {
		c.Category = domain.CategoryUncategorized
	}
	if c.Sentiment == "" {
		c.Sentiment = domain.SentimentNeutral
	}

	var payload events.TicketClassifiedPayload
	_, err := s.mutate(ctx, id, expectedVersion, func(t *domain.Ticket) error {
		payload = events.TicketClassifiedPayload{
			ClassificationVersion: t.ClassificationVersion + 1,
			Sentiment:             c.Sentiment,
			Category:              c.Category,
			Priority:              c.Priority,
			UrgencyScore:          c.UrgencyScore,
			OldSentiment:          t.Sentiment,
			OldCategory:           t.Category,
			OldPriority:           t.Priority,
		}
		t.Sentiment = c.Sentiment
		t.Category = c.Category
		t.Priority = c.Priority
		t.UrgencyScore = c.UrgencyScore
		t.ClassificationVersion++
		t.NeedsManualReview = false
		return nil
	})
	if err != nil {
		return nil, err
	}

	clone, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	s.publish(ctx, events.Event{
		Type:     events.EventTicketClassified,
		TicketID: id,
		Actor:    events.SystemActor(),
		Payload:  payload,
	})
	s.snapshot(ctx, clone)
	return clone, nil
}

// FlagManualReview marks a ticket whose classification attempts are
// exhausted. The ticket keeps flowing; a human sorts it out later.
func (s *Store) FlagManualReview(ctx context.Context, id string, expectedVersion uint64) (*domain.Ticket, error) {
	var payload events.TicketClassifiedPayload
	_, err := s.mutate(ctx, id, expectedVersion, func(t *domain.Ticket) error {
		t.NeedsManualReview = true
		payload = events.TicketClassifiedPayload{
			ClassificationVersion: t.ClassificationVersion,
			Sentiment:             t.Sentiment,
			Category:              t.Category,
			Priority:              t.Priority,
			UrgencyScore:          t.UrgencyScore,
			OldSentiment:          t.Sentiment,
			OldCategory:           t.Category,
			OldPriority:           t.Priority,
			ManualReview:          true,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	clone, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	s.publish(ctx, events.Event{
		Type:     events.EventTicketClassified,
		TicketID: id,
		Actor:    events.SystemActor(),
		Payload:  payload,
	})
	s.snapshot(ctx, clone)
	return clone, nil
}

// Restore loads previously materialized tickets, typically replayed from the
// journal at startup. No events are emitted.
func (s *Store) Restore(tickets []domain.Ticket) {
	s.dedupMu.Lock()
	defer s.dedupMu.Unlock()
	for i := range tickets {
		ticket := tickets[i].Clone()
		sh := s.shardFor(ticket.ID)
		sh.mu.Lock()
		sh.tickets[ticket.ID] = ticket
		sh.mu.Unlock()
		s.dedup[ticket.SourceMessageID] = ticket.ID
	}
}

// transition applies a status change under the version gate, then emits the
// status-changed event (and an assignment event when the agent changed).
func (s *Store) transition(ctx context.Context, id string, expectedVersion uint64, next domain.TicketStatus, reason string, actor events.Actor, apply func(*domain.Ticket)) (*domain.Ticket, error) {
	var payload events.TicketStatusChangedPayload
	var assigned *events.TicketAssignedPayload

	_, err := s.mutate(ctx, id, expectedVersion, func(t *domain.Ticket) error {
		if !domain.ValidTransition(t.Status, next) {
			return apperrors.NewInvalidTransition(string(t.Status), string(next))
		}
		oldStatus := t.Status
		oldAgent := t.AssignedAgent
		hadResponseTime := t.ResponseTimeMinutes != nil
		if apply != nil {
			apply(t)
		}
		t.Status = next
		t.StatusEnteredAt = s.now()
		payload = events.TicketStatusChangedPayload{
			OldStatus:       oldStatus,
			NewStatus:       next,
			Priority:        t.Priority,
			StatusEnteredAt: t.StatusEnteredAt,
			Reason:          reason,
		}
		// Carried only when finalized by this transition, so consumers
		// counting response times never double-count a reopened ticket.
		if !hadResponseTime && t.ResponseTimeMinutes != nil {
			payload.ResponseTimeMinutes = t.ResponseTimeMinutes
		}
		if t.AssignedAgent != nil && (oldAgent == nil || *oldAgent != *t.AssignedAgent) {
			assigned = &events.TicketAssignedPayload{AgentID: *t.AssignedAgent, OldAgentID: oldAgent}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	clone, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	s.publish(ctx, events.Event{
		Type:     events.EventTicketStatusChanged,
		TicketID: id,
		Actor:    actor,
		Payload:  payload,
	})
	if assigned != nil {
		s.publish(ctx, events.Event{
			Type:     events.EventTicketAssigned,
			TicketID: id,
			Actor:    actor,
			Payload:  *assigned,
		})
	}
	s.snapshot(ctx, clone)
	return clone, nil
}

// mutate runs apply on the live ticket while holding its shard lock. The
// version gate runs first; apply sees the ticket only if the caller's read
// was still current, and an accepted mutation bumps the version.
func (s *Store) mutate(ctx context.Context, id string, expectedVersion uint64, apply func(*domain.Ticket) error) (*domain.Ticket, error) {
	sh := s.shardFor(id)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	ticket, ok := sh.tickets[id]
	if !ok {
		return nil, apperrors.NewNotFound("ticket", map[string]any{"ticket_id": id})
	}
	if ticket.Version != expectedVersion {
		return nil, apperrors.NewConflict("ticket version mismatch", map[string]any{
			"ticket_id":        id,
			"expected_version": expectedVersion,
			"current_version":  ticket.Version,
		})
	}
	if err := apply(ticket); err != nil {
		return nil, err
	}
	ticket.Version++
	return ticket, nil
}

func (s *Store) publish(ctx context.Context, event events.Event) {
	if s.dispatcher == nil {
		return
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = s.now()
	}
	_ = s.dispatcher.Publish(ctx, event)
}

func (s *Store) snapshot(ctx context.Context, ticket *domain.Ticket) {
	if s.snapshots == nil {
		return
	}
	if err := s.snapshots.UpsertSnapshot(ctx, ticket); err != nil {
		s.logger.Error("snapshot write failed", zap.String("ticket_id", ticket.ID), zap.Error(err))
	}
}

func containsStatus(list []domain.TicketStatus, v domain.TicketStatus) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}

func containsPriority(list []domain.TicketPriority, v domain.TicketPriority) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}

func containsCategory(list []domain.Category, v domain.Category) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}

func containsSentiment(list []domain.Sentiment, v domain.Sentiment) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}
