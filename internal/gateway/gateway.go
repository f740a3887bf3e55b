package gateway

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/spec-kit/tweet-triage/internal/domain"
	"github.com/spec-kit/tweet-triage/internal/store"
	apperrors "github.com/spec-kit/tweet-triage/pkg/util/errorutil"
)

// DedupCache is an optional fast-path lookup in front of the store's own
// authoritative dedup index, useful when several engine instances share one
// inbound firehose. Cache misses and cache errors are never fatal; the store
// decides.
type DedupCache interface {
	Lookup(ctx context.Context, sourceMessageID string) (ticketID string, ok bool)
	Remember(ctx context.Context, sourceMessageID, ticketID string)
}

// Gateway accepts inbound messages and turns each distinct one into exactly
// one ticket. Ingesting the same source message twice, sequentially or
// concurrently, yields the same ticket id.
type Gateway struct {
	store  *store.Store
	dedup  DedupCache
	logger *zap.Logger
}

// New constructs the gateway; dedup may be nil.
func New(st *store.Store, dedup DedupCache, logger *zap.Logger) *Gateway {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Gateway{store: st, dedup: dedup, logger: logger}
}

// Ingest registers one inbound message. Returns the ticket and whether this
// call created it.
func (g *Gateway) Ingest(ctx context.Context, msg domain.InboundMessage) (*domain.Ticket, bool, error) {
	msg.SourceMessageID = strings.TrimSpace(msg.SourceMessageID)
	msg.Author = strings.TrimSpace(msg.Author)
	if msg.SourceMessageID == "" {
		return nil, false, apperrors.NewValidationError("source_message_id required", nil)
	}
	if strings.TrimSpace(msg.Content) == "" {
		return nil, false, apperrors.NewValidationError("content required", nil)
	}

	if g.dedup != nil {
		if ticketID, ok := g.dedup.Lookup(ctx, msg.SourceMessageID); ok {
			if ticket, err := g.store.Get(ctx, ticketID); err == nil {
				return ticket, false, nil
			}
			// Cache points at a ticket this instance doesn't hold; fall
			// through to the authoritative path.
			g.logger.Debug("dedup cache drift", zap.String("source_message_id", msg.SourceMessageID))
		}
	}

	ticket, created, err := g.store.Create(ctx, msg)
	if err != nil {
		return nil, false, err
	}
	if created {
		g.logger.Info("ticket created",
			zap.String("ticket_id", ticket.ID),
			zap.String("source_message_id", ticket.SourceMessageID))
		if g.dedup != nil {
			g.dedup.Remember(ctx, ticket.SourceMessageID, ticket.ID)
		}
	}
	return ticket, created, nil
}
