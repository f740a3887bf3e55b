package journal

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/spec-kit/tweet-triage/internal/domain"
	"github.com/spec-kit/tweet-triage/internal/events"
)

// Journal persists the append-only lifecycle event log and the materialized
// current-state table. The in-memory store remains the authority while the
// process lives; the journal exists so a restarted engine can reload the
// ticket population and so auditors can replay history.
type Journal struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

// New wraps a pgx pool as a journal.
func New(pool *pgxpool.Pool, logger *zap.Logger) *Journal {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Journal{pool: pool, logger: logger}
}

// Bind subscribes the journal to every lifecycle event type. Append failures
// are logged, never propagated: a degraded journal must not block ticket
// processing.
func (j *Journal) Bind(dispatcher events.Dispatcher) {
	handler := func(ctx context.Context, event events.Event) error {
		if err := j.AppendEvent(ctx, event); err != nil {
			j.logger.Error("journal append failed",
				zap.String("event_id", event.ID),
				zap.String("event_type", string(event.Type)),
				zap.Error(err))
		}
		return nil
	}
	for _, eventType := range []events.EventType{
		events.EventTicketCreated,
		events.EventTicketClassified,
		events.EventTicketStatusChanged,
		events.EventTicketAssigned,
		events.EventAlertTriggered,
	} {
		dispatcher.Subscribe(eventType, handler)
	}
}

// AppendEvent writes one event to the log.
func (j *Journal) AppendEvent(ctx context.Context, event events.Event) error {
	payload, err := json.Marshal(event.Payload)
	if err != nil {
		return fmt.Errorf("marshal event payload: %w", err)
	}
	const query = `
        INSERT INTO ticket_events (id, event_type, ticket_id, actor_type, actor_agent_id, occurred_at, payload)
        VALUES ($1,$2,$3,$4,$5,$6,$7)
        ON CONFLICT (id) DO NOTHING`
	_, err = j.pool.Exec(ctx, query,
		event.ID,
		string(event.Type),
		event.TicketID,
		string(event.Actor.Type),
		event.Actor.AgentID,
		event.Timestamp,
		payload,
	)
	return err
}

// UpsertSnapshot writes the materialized current state of a ticket.
func (j *Journal) UpsertSnapshot(ctx context.Context, ticket *domain.Ticket) error {
	const query = `
        INSERT INTO ticket_snapshots (
            id, source_message_id, author, content, received_at,
            sentiment, category, priority, urgency_score, classification_version,
            needs_manual_review, status, assigned_agent, status_entered_at,
            response_text, response_time_minutes, version
        ) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17)
        ON CONFLICT (id) DO UPDATE SET
            sentiment = EXCLUDED.sentiment,
            category = EXCLUDED.category,
            priority = EXCLUDED.priority,
            urgency_score = EXCLUDED.urgency_score,
            classification_version = EXCLUDED.classification_version,
            needs_manual_review = EXCLUDED.needs_manual_review,
            status = EXCLUDED.status,
            assigned_agent = EXCLUDED.assigned_agent,
            status_entered_at = EXCLUDED.status_entered_at,
            response_text = EXCLUDED.response_text,
            response_time_minutes = EXCLUDED.response_time_minutes,
            version = EXCLUDED.version
        WHERE ticket_snapshots.version < EXCLUDED.version`
	_, err := j.pool.Exec(ctx, query,
		ticket.ID,
		ticket.SourceMessageID,
		ticket.Author,
		ticket.Content,
		ticket.ReceivedAt,
		string(ticket.Sentiment),
		string(ticket.Category),
		string(ticket.Priority),
		ticket.UrgencyScore,
		ticket.ClassificationVersion,
		ticket.NeedsManualReview,
		string(ticket.Status),
		ticket.AssignedAgent,
		ticket.StatusEnteredAt,
		ticket.ResponseText,
		ticket.ResponseTimeMinutes,
		ticket.Version,
	)
	return err
}

// LoadSnapshots reads the whole materialized state, oldest first, for
// restoring the in-memory store at startup.
func (j *Journal) LoadSnapshots(ctx context.Context) ([]domain.Ticket, error) {
	const query = `
        SELECT id, source_message_id, author, content, received_at,
               sentiment, category, priority, urgency_score, classification_version,
               needs_manual_review, status, assigned_agent, status_entered_at,
               response_text, response_time_minutes, version
        FROM ticket_snapshots
        ORDER BY received_at`
	rows, err := j.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	tickets := make([]domain.Ticket, 0)
	for rows.Next() {
		var t domain.Ticket
		var sentiment, category, priority, status string
		if err := rows.Scan(
			&t.ID,
			&t.SourceMessageID,
			&t.Author,
			&t.Content,
			&t.ReceivedAt,
			&sentiment,
			&category,
			&priority,
			&t.UrgencyScore,
			&t.ClassificationVersion,
			&t.NeedsManualReview,
			&status,
			&t.AssignedAgent,
			&t.StatusEnteredAt,
			&t.ResponseText,
			&t.ResponseTimeMinutes,
			&t.Version,
		); err != nil {
			return nil, err
		}
		t.Sentiment = domain.Sentiment(sentiment)
		t.Category = domain.Category(category)
		t.Priority = domain.TicketPriority(priority)
		t.Status = domain.TicketStatus(status)
		tickets = append(tickets, t)
	}
	return tickets, rows.Err()
}
