package store

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/tweet-triage/internal/domain"
	"github.com/spec-kit/tweet-triage/internal/events"
	apperrors "github.com/spec-kit/tweet-triage/pkg/util/errorutil"
)

type recordingDispatcher struct {
	mu     sync.Mutex
	events []events.Event
}

func (d *recordingDispatcher) Publish(ctx context.Context, event events.Event) error {
	d.mu.Lock()
	d.events = append(d.events, event)
	d.mu.Unlock()
	return nil
}

func (d *recordingDispatcher) Subscribe(eventType events.EventType, handler events.EventHandler) {}

func (d *recordingDispatcher) byType(t events.EventType) []events.Event {
	d.mu.Lock()
	defer d.mu.Unlock()
	var out []events.Event
	for _, e := range d.events {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

func newTestStore(t *testing.T) (*Store, *recordingDispatcher) {
	t.Helper()
	dispatcher := &recordingDispatcher{}
	return New(nil, dispatcher), dispatcher
}

func mustCreate(t *testing.T, s *Store, sourceID string) *domain.Ticket {
	t.Helper()
	ticket, created, err := s.Create(context.Background(), domain.InboundMessage{
		SourceMessageID: sourceID,
		Author:          "@customer",
		Content:         "where is my order?",
	})
	require.NoError(t, err)
	require.True(t, created)
	return ticket
}

func TestCreateIsIdempotentOnSourceMessageID(t *testing.T) {
	s, dispatcher := newTestStore(t)
	ctx := context.Background()

	first, created, err := s.Create(ctx, domain.InboundMessage{SourceMessageID: "tw-1", Author: "@a", Content: "help"})
	require.NoError(t, err)
	require.True(t, created)

	second, created, err := s.Create(ctx, domain.InboundMessage{SourceMessageID: "tw-1", Author: "@a", Content: "help"})
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.ID, second.ID)

	assert.Len(t, dispatcher.byType(events.EventTicketCreated), 1)
}

func TestCreateConcurrentDuplicatesYieldOneTicket(t *testing.T) {
	s, dispatcher := newTestStore(t)
	ctx := context.Background()

	const goroutines = 32
	var created int64
	ids := make([]string, goroutines)
	errs := make([]error, goroutines)

	var wg sync.WaitGroup
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ticket, wasCreated, err := s.Create(ctx, domain.InboundMessage{
				SourceMessageID: "tw-race",
				Author:          "@a",
				Content:         "same message",
			})
			if err != nil {
				errs[i] = err
				return
			}
			if wasCreated {
				atomic.AddInt64(&created, 1)
			}
			ids[i] = ticket.ID
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		require.NoError(t, err)
	}

	assert.EqualValues(t, 1, created)
	for _, id := range ids[1:] {
		assert.Equal(t, ids[0], id)
	}
	assert.Len(t, dispatcher.byType(events.EventTicketCreated), 1)
}

func TestCreateRequiresSourceMessageID(t *testing.T) {
	s, _ := newTestStore(t)
	_, _, err := s.Create(context.Background(), domain.InboundMessage{Author: "@a", Content: "hi"})
	require.Error(t, err)
	domainErr := apperrors.ToDomainError(err)
	assert.Equal(t, apperrors.CodeValidation, domainErr.Code)
}

func TestNewTicketDefaults(t *testing.T) {
	s, _ := newTestStore(t)
	ticket := mustCreate(t, s, "tw-2")

	assert.Equal(t, domain.TicketStatusPending, ticket.Status)
	assert.Equal(t, domain.TicketPriorityMedium, ticket.Priority)
	assert.Equal(t, domain.SentimentNeutral, ticket.Sentiment)
	assert.Equal(t, domain.CategoryUncategorized, ticket.Category)
	assert.EqualValues(t, 1, ticket.Version)
	assert.Nil(t, ticket.AssignedAgent)
	assert.Nil(t, ticket.ResponseTimeMinutes)
}

func TestVersionMismatchRejectsWithoutMutating(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	ticket := mustCreate(t, s, "tw-3")

	_, err := s.Claim(ctx, ticket.ID, ticket.Version+5, "agent-1")
	require.Error(t, err)
	assert.True(t, apperrors.IsConflict(err))

	current, err := s.Get(ctx, ticket.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStatusPending, current.Status)
	assert.Equal(t, ticket.Version, current.Version)
}

func TestConcurrentWritersExactlyOneWins(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	ticket := mustCreate(t, s, "tw-4")

	var respondErr, escalateErr error
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		_, respondErr = s.Respond(ctx, ticket.ID, ticket.Version, "agent-1", "on it")
	}()
	go func() {
		defer wg.Done()
		_, escalateErr = s.Escalate(ctx, ticket.ID, ticket.Version, "manual", events.AgentActor("agent-2"))
	}()
	wg.Wait()

	winners := 0
	for _, err := range []error{respondErr, escalateErr} {
		if err == nil {
			winners++
		} else {
			assert.True(t, apperrors.IsConflict(err), "loser must see a version conflict, got %v", err)
		}
	}
	assert.Equal(t, 1, winners)

	final, err := s.Get(ctx, ticket.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 2, final.Version)
}

func TestStateMachineRejectsIllegalEdges(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	// Answered never goes back to Pending; there is no operation that even
	// names Pending as a target, so exercise the adjacent illegal edges.
	ticket := mustCreate(t, s, "tw-5")
	answered, err := s.Respond(ctx, ticket.ID, ticket.Version, "agent-1", "done")
	require.NoError(t, err)

	_, err = s.Escalate(ctx, ticket.ID, answered.Version, "too late", events.AgentActor("agent-1"))
	require.Error(t, err)
	assert.True(t, apperrors.IsInvalidTransition(err))

	_, err = s.Respond(ctx, ticket.ID, answered.Version, "agent-1", "again")
	require.Error(t, err)
	assert.True(t, apperrors.IsInvalidTransition(err))

	// The failed attempts must not have burned versions.
	current, err := s.Get(ctx, ticket.ID)
	require.NoError(t, err)
	assert.Equal(t, answered.Version, current.Version)
}

func TestClaimRespondLifecycle(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	ticket := mustCreate(t, s, "tw-6")

	claimed, err := s.Claim(ctx, ticket.ID, ticket.Version, "agent-1")
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStatusInProgress, claimed.Status)
	require.NotNil(t, claimed.AssignedAgent)
	assert.Equal(t, "agent-1", *claimed.AssignedAgent)

	answered, err := s.Respond(ctx, ticket.ID, claimed.Version, "agent-1", "resolved")
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStatusAnswered, answered.Status)
	assert.Equal(t, "resolved", answered.ResponseText)
	require.NotNil(t, answered.ResponseTimeMinutes)
	assert.GreaterOrEqual(t, *answered.ResponseTimeMinutes, 0.0)
}

func TestEscalatedTicketCanBeReclaimed(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	ticket := mustCreate(t, s, "tw-7")

	escalated, err := s.Escalate(ctx, ticket.ID, ticket.Version, "sla_breach", events.SystemActor())
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStatusEscalated, escalated.Status)

	claimed, err := s.Claim(ctx, ticket.ID, escalated.Version, "agent-2")
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStatusInProgress, claimed.Status)
}

func TestResponseTimeFinalizedExactlyOnce(t *testing.T) {
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	current := base
	dispatcher := &recordingDispatcher{}
	s := New(nil, dispatcher, WithClock(func() time.Time { return current }))
	ctx := context.Background()

	ticket, _, err := s.Create(ctx, domain.InboundMessage{SourceMessageID: "tw-8", Author: "@a", Content: "hi"})
	require.NoError(t, err)

	current = base.Add(30 * time.Minute)
	answered, err := s.Respond(ctx, ticket.ID, ticket.Version, "agent-1", "first answer")
	require.NoError(t, err)
	require.NotNil(t, answered.ResponseTimeMinutes)
	assert.InDelta(t, 30.0, *answered.ResponseTimeMinutes, 0.01)

	reopened, err := s.Reopen(ctx, ticket.ID, answered.Version, "agent-1")
	require.NoError(t, err)

	current = base.Add(5 * time.Hour)
	again, err := s.Respond(ctx, ticket.ID, reopened.Version, "agent-1", "second answer")
	require.NoError(t, err)
	require.NotNil(t, again.ResponseTimeMinutes)
	assert.InDelta(t, 30.0, *again.ResponseTimeMinutes, 0.01, "response time sticks to the first answer")

	// Only the first answer carries the finalized response time on the wire.
	var carried int
	for _, e := range dispatcher.byType(events.EventTicketStatusChanged) {
		payload := e.Payload.(events.TicketStatusChangedPayload)
		if payload.ResponseTimeMinutes != nil {
			carried++
		}
	}
	assert.Equal(t, 1, carried)
}

func TestReassignKeepsStatus(t *testing.T) {
	s, dispatcher := newTestStore(t)
	ctx := context.Background()
	ticket := mustCreate(t, s, "tw-9")

	claimed, err := s.Claim(ctx, ticket.ID, ticket.Version, "agent-1")
	require.NoError(t, err)

	reassigned, err := s.Reassign(ctx, ticket.ID, claimed.Version, "agent-2")
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStatusInProgress, reassigned.Status)
	require.NotNil(t, reassigned.AssignedAgent)
	assert.Equal(t, "agent-2", *reassigned.AssignedAgent)

	assigned := dispatcher.byType(events.EventTicketAssigned)
	require.Len(t, assigned, 2)
	last := assigned[1].Payload.(events.TicketAssignedPayload)
	assert.Equal(t, "agent-2", last.AgentID)
	require.NotNil(t, last.OldAgentID)
	assert.Equal(t, "agent-1", *last.OldAgentID)
}

func TestApplyClassificationValidatesAndBumps(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	ticket := mustCreate(t, s, "tw-10")

	_, err := s.ApplyClassification(ctx, ticket.ID, ticket.Version, domain.Classification{UrgencyScore: 1.5})
	require.Error(t, err)
	assert.Equal(t, apperrors.CodeValidation, apperrors.ToDomainError(err).Code)

	updated, err := s.ApplyClassification(ctx, ticket.ID, ticket.Version, domain.Classification{
		Sentiment:    domain.SentimentNegative,
		Category:     domain.CategoryComplaint,
		Priority:     domain.TicketPriorityHigh,
		UrgencyScore: 0.9,
	})
	require.NoError(t, err)
	assert.Equal(t, domain.SentimentNegative, updated.Sentiment)
	assert.Equal(t, domain.TicketPriorityHigh, updated.Priority)
	assert.EqualValues(t, 1, updated.ClassificationVersion)
	assert.False(t, updated.NeedsManualReview)

	// A stale retry is a conflict, not an overwrite.
	_, err = s.ApplyClassification(ctx, ticket.ID, ticket.Version, domain.Classification{UrgencyScore: 0.1})
	require.Error(t, err)
	assert.True(t, apperrors.IsConflict(err))
}

func TestFlagManualReviewClearedByLaterClassification(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	ticket := mustCreate(t, s, "tw-11")

	flagged, err := s.FlagManualReview(ctx, ticket.ID, ticket.Version)
	require.NoError(t, err)
	assert.True(t, flagged.NeedsManualReview)

	classified, err := s.ApplyClassification(ctx, ticket.ID, flagged.Version, domain.Classification{
		Sentiment:    domain.SentimentPositive,
		Category:     domain.CategoryCompliment,
		Priority:     domain.TicketPriorityLow,
		UrgencyScore: 0.1,
	})
	require.NoError(t, err)
	assert.False(t, classified.NeedsManualReview)
}

func TestListFiltersAndPaginates(t *testing.T) {
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	s := New(nil, &recordingDispatcher{})
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		ticket, _, err := s.Create(ctx, domain.InboundMessage{
			SourceMessageID: fmt.Sprintf("tw-list-%d", i),
			Author:          "@a",
			Content:         "msg",
			ReceivedAt:      base.Add(time.Duration(i) * time.Minute),
		})
		require.NoError(t, err)
		if i%2 == 0 {
			_, err = s.Claim(ctx, ticket.ID, ticket.Version, "agent-1")
			require.NoError(t, err)
		}
	}

	pending := s.List(ctx, Filter{Statuses: []domain.TicketStatus{domain.TicketStatusPending}})
	assert.Len(t, pending, 5)

	all := s.List(ctx, Filter{})
	require.Len(t, all, 10)
	assert.True(t, all[0].ReceivedAt.After(all[9].ReceivedAt), "newest first")

	page := s.List(ctx, Filter{Limit: 3, Offset: 8})
	assert.Len(t, page, 2)

	from := base.Add(7 * time.Minute)
	recent := s.List(ctx, Filter{ReceivedFrom: &from})
	assert.Len(t, recent, 3)
}

func TestRestoreRebuildsDedupIndex(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	agent := "agent-1"
	s.Restore([]domain.Ticket{{
		ID:              "restored-1",
		SourceMessageID: "tw-restored",
		Author:          "@a",
		Content:         "old message",
		Status:          domain.TicketStatusInProgress,
		AssignedAgent:   &agent,
		Version:         4,
	}})

	got, err := s.Get(ctx, "restored-1")
	require.NoError(t, err)
	assert.EqualValues(t, 4, got.Version)

	same, created, err := s.Create(ctx, domain.InboundMessage{SourceMessageID: "tw-restored", Author: "@a", Content: "dup"})
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, "restored-1", same.ID)
}
