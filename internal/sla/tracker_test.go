package sla

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/tweet-triage/internal/domain"
	"github.com/spec-kit/tweet-triage/internal/events"
	"github.com/spec-kit/tweet-triage/internal/store"
)

func shortPolicy(d time.Duration) Policy {
	byPriority := map[domain.TicketPriority]time.Duration{
		domain.TicketPriorityHigh:   d,
		domain.TicketPriorityMedium: 4 * d,
		domain.TicketPriorityLow:    8 * d,
	}
	return NewPolicy(map[domain.TicketStatus]map[domain.TicketPriority]time.Duration{
		domain.TicketStatusPending:    byPriority,
		domain.TicketStatusInProgress: byPriority,
	})
}

func newTrackedStore(t *testing.T, deadline time.Duration) (*store.Store, *Tracker) {
	t.Helper()
	dispatcher := events.NewInMemoryDispatcher(nil)
	st := store.New(nil, dispatcher)
	tracker := NewTracker(st, shortPolicy(deadline), nil)
	tracker.Bind(dispatcher)
	t.Cleanup(tracker.Close)
	return st, tracker
}

func createHigh(t *testing.T, st *store.Store) *domain.Ticket {
	t.Helper()
	ctx := context.Background()
	ticket, created, err := st.Create(ctx, domain.InboundMessage{
		SourceMessageID: "tw-" + t.Name(),
		Author:          "@a",
		Content:         "urgent",
	})
	require.NoError(t, err)
	require.True(t, created)
	classified, err := st.ApplyClassification(ctx, ticket.ID, ticket.Version, domain.Classification{
		Sentiment:    domain.SentimentNegative,
		Category:     domain.CategoryComplaint,
		Priority:     domain.TicketPriorityHigh,
		UrgencyScore: 0.95,
	})
	require.NoError(t, err)
	return classified
}

func waitForStatus(t *testing.T, st *store.Store, id string, status domain.TicketStatus, within time.Duration) *domain.Ticket {
	t.Helper()
	deadline := time.Now().Add(within)
	for time.Now().Before(deadline) {
		ticket, err := st.Get(context.Background(), id)
		require.NoError(t, err)
		if ticket.Status == status {
			return ticket
		}
		time.Sleep(5 * time.Millisecond)
	}
	ticket, err := st.Get(context.Background(), id)
	require.NoError(t, err)
	t.Fatalf("ticket %s never reached %s, stuck at %s", id, status, ticket.Status)
	return nil
}

func TestPendingTicketEscalatesOnDeadline(t *testing.T) {
	st, _ := newTrackedStore(t, 50*time.Millisecond)
	ticket := createHigh(t, st)

	escalated := waitForStatus(t, st, ticket.ID, domain.TicketStatusEscalated, time.Second)
	assert.Equal(t, domain.TicketStatusEscalated, escalated.Status)
}

func TestAnsweredTicketNeverEscalates(t *testing.T) {
	st, _ := newTrackedStore(t, 50*time.Millisecond)
	ticket := createHigh(t, st)

	_, err := st.Respond(context.Background(), ticket.ID, ticket.Version, "agent-1", "done")
	require.NoError(t, err)

	time.Sleep(200 * time.Millisecond)
	final, err := st.Get(context.Background(), ticket.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStatusAnswered, final.Status)
}

func TestClaimRestartsTheClock(t *testing.T) {
	st, _ := newTrackedStore(t, 400*time.Millisecond)
	ticket := createHigh(t, st)

	// Claim before the Pending deadline; dwell time restarts for
	// InProgress, so the ticket must still be InProgress after the original
	// deadline has passed.
	time.Sleep(200 * time.Millisecond)
	claimed, err := st.Claim(context.Background(), ticket.ID, ticket.Version, "agent-1")
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStatusInProgress, claimed.Status)

	time.Sleep(300 * time.Millisecond)
	mid, err := st.Get(context.Background(), ticket.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStatusInProgress, mid.Status)

	// With no response, the InProgress deadline eventually fires too.
	escalated := waitForStatus(t, st, ticket.ID, domain.TicketStatusEscalated, 2*time.Second)
	assert.Equal(t, domain.TicketStatusEscalated, escalated.Status)
}

func TestReclassificationTightensDeadline(t *testing.T) {
	dispatcher := events.NewInMemoryDispatcher(nil)
	st := store.New(nil, dispatcher)
	tracker := NewTracker(st, shortPolicy(60*time.Millisecond), nil)
	tracker.Bind(dispatcher)
	t.Cleanup(tracker.Close)

	ctx := context.Background()
	ticket, _, err := st.Create(ctx, domain.InboundMessage{SourceMessageID: "tw-reclass", Author: "@a", Content: "hmm"})
	require.NoError(t, err)

	// Default Medium gets 240ms; bump to High and the 60ms deadline,
	// measured from entering Pending, applies instead.
	_, err = st.ApplyClassification(ctx, ticket.ID, ticket.Version, domain.Classification{
		Priority:     domain.TicketPriorityHigh,
		Sentiment:    domain.SentimentNegative,
		Category:     domain.CategoryComplaint,
		UrgencyScore: 0.9,
	})
	require.NoError(t, err)

	waitForStatus(t, st, ticket.ID, domain.TicketStatusEscalated, time.Second)
}

func TestEscalatedTicketsCarryNoDeadline(t *testing.T) {
	st, _ := newTrackedStore(t, 40*time.Millisecond)
	ticket := createHigh(t, st)

	escalated := waitForStatus(t, st, ticket.ID, domain.TicketStatusEscalated, time.Second)

	time.Sleep(150 * time.Millisecond)
	still, err := st.Get(context.Background(), ticket.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStatusEscalated, still.Status)
	assert.Equal(t, escalated.Version, still.Version)
}

func TestResyncArmsRestoredTickets(t *testing.T) {
	dispatcher := events.NewInMemoryDispatcher(nil)
	st := store.New(nil, dispatcher)
	tracker := NewTracker(st, shortPolicy(40*time.Millisecond), nil)
	tracker.Bind(dispatcher)
	t.Cleanup(tracker.Close)

	restored := domain.Ticket{
		ID:              "restored-sla",
		SourceMessageID: "tw-restored-sla",
		Author:          "@a",
		Content:         "was pending before restart",
		Status:          domain.TicketStatusPending,
		Priority:        domain.TicketPriorityHigh,
		ReceivedAt:      time.Now().Add(-time.Hour),
		StatusEnteredAt: time.Now().Add(-time.Hour),
		Version:         1,
	}
	st.Restore([]domain.Ticket{restored})
	tracker.Resync([]domain.Ticket{restored})

	// Deadline is long past, so the timer fires immediately.
	waitForStatus(t, st, "restored-sla", domain.TicketStatusEscalated, time.Second)
}

func TestPolicyDeadlineLookup(t *testing.T) {
	policy := shortPolicy(10 * time.Millisecond)

	d, ok := policy.Deadline(domain.TicketStatusPending, domain.TicketPriorityHigh)
	require.True(t, ok)
	assert.Equal(t, 10*time.Millisecond, d)

	_, ok = policy.Deadline(domain.TicketStatusAnswered, domain.TicketPriorityHigh)
	assert.False(t, ok)

	_, ok = policy.Deadline(domain.TicketStatusEscalated, domain.TicketPriorityLow)
	assert.False(t, ok)
}
