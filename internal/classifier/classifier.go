package classifier

import (
	"context"

	"github.com/spec-kit/tweet-triage/internal/domain"
)

// Snapshot is the part of a ticket a classifier gets to see.
type Snapshot struct {
	TicketID string `json:"ticket_id"`
	Author   string `json:"author"`
	Content  string `json:"content"`
}

// Adapter abstracts the external classification service. The engine never
// implements the model itself; it calls Classify and applies the result
// through the ticket store's optimistic-concurrency path. Implementations
// signal an outage with an error satisfying
// errorutil.IsClassificationUnavailable, which the worker retries with
// backoff.
type Adapter interface {
	Classify(ctx context.Context, snapshot Snapshot) (domain.Classification, error)
}
