package worker

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/tweet-triage/internal/classifier"
	"github.com/spec-kit/tweet-triage/internal/config"
	"github.com/spec-kit/tweet-triage/internal/domain"
	"github.com/spec-kit/tweet-triage/internal/events"
	"github.com/spec-kit/tweet-triage/internal/store"
	apperrors "github.com/spec-kit/tweet-triage/pkg/util/errorutil"
)

const (
	queueDepth           = 4096
	applyConflictRetries = 3
)

// ClassificationWorker asynchronously enriches tickets through the
// classifier adapter. It subscribes to ticket creation, calls the external
// service off the ingestion path, and applies results through the store's
// version gate so a stale result for a ticket that already moved on is
// rejected and discarded. Outages are retried with exponential backoff up to
// a bounded attempt count, after which the ticket is flagged for manual
// review instead of being blocked.
type ClassificationWorker struct {
	store   *store.Store
	adapter classifier.Adapter
	logger  *zap.Logger
	cfg     config.ClassifierConfig

	jobs chan string
	wg   sync.WaitGroup
}

// NewClassificationWorker constructs the worker.
func NewClassificationWorker(st *store.Store, adapter classifier.Adapter, cfg config.ClassifierConfig, logger *zap.Logger) *ClassificationWorker {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 1
	}
	return &ClassificationWorker{
		store:   st,
		adapter: adapter,
		logger:  logger,
		cfg:     cfg,
		jobs:    make(chan string, queueDepth),
	}
}

// Bind subscribes the worker to ticket creation events.
func (w *ClassificationWorker) Bind(dispatcher events.Dispatcher) {
	dispatcher.Subscribe(events.EventTicketCreated, func(ctx context.Context, event events.Event) error {
		w.Enqueue(ctx, event.TicketID)
		return nil
	})
}

// Enqueue schedules a ticket for (re)classification. The fast path is
// non-blocking so a full queue never stalls ingestion; overflow is handed to
// a goroutine that waits for capacity.
func (w *ClassificationWorker) Enqueue(ctx context.Context, ticketID string) {
	select {
	case w.jobs <- ticketID:
	default:
		w.logger.Warn("classification queue full, queueing in background", zap.String("ticket_id", ticketID))
		go func() {
			select {
			case w.jobs <- ticketID:
			case <-ctx.Done():
			}
		}()
	}
}

// Start launches the worker pool. Workers exit when ctx is cancelled; Wait
// blocks until they are gone.
func (w *ClassificationWorker) Start(ctx context.Context) {
	for i := 0; i < w.cfg.Workers; i++ {
		w.wg.Add(1)
		go func() {
			defer w.wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case ticketID := <-w.jobs:
					w.process(ctx, ticketID)
				}
			}
		}()
	}
}

// Wait blocks until all workers have stopped.
func (w *ClassificationWorker) Wait() {
	w.wg.Wait()
}

func (w *ClassificationWorker) process(ctx context.Context, ticketID string) {
	ticket, err := w.store.Get(ctx, ticketID)
	if err != nil {
		w.logger.Warn("classification skipped", zap.String("ticket_id", ticketID), zap.Error(err))
		return
	}

	snapshot := classifier.Snapshot{
		TicketID: ticket.ID,
		Author:   ticket.Author,
		Content:  ticket.Content,
	}

	for attempt := 1; attempt <= w.cfg.MaxAttempts; attempt++ {
		result, err := w.adapter.Classify(ctx, snapshot)
		if err == nil {
			w.apply(ctx, ticketID, result)
			return
		}
		if !apperrors.IsClassificationUnavailable(err) {
			w.logger.Error("classification failed permanently",
				zap.String("ticket_id", ticketID), zap.Error(err))
			break
		}
		w.logger.Warn("classifier unavailable",
			zap.String("ticket_id", ticketID),
			zap.Int("attempt", attempt),
			zap.Error(err))
		if attempt < w.cfg.MaxAttempts && !w.sleep(ctx, w.backoff(attempt)) {
			return
		}
	}

	w.flagManual(ctx, ticketID)
}

// apply writes the classification through the version gate, re-reading on
// conflict. Tickets are never deleted, so a persistent conflict here means
// writers are actively racing; a handful of retries suffices.
func (w *ClassificationWorker) apply(ctx context.Context, ticketID string, result domain.Classification) {
	for i := 0; i < applyConflictRetries; i++ {
		ticket, err := w.store.Get(ctx, ticketID)
		if err != nil {
			w.logger.Warn("classification apply skipped", zap.String("ticket_id", ticketID), zap.Error(err))
			return
		}
		_, err = w.store.ApplyClassification(ctx, ticketID, ticket.Version, result)
		if err == nil {
			return
		}
		if !apperrors.IsConflict(err) {
			w.logger.Error("classification apply failed", zap.String("ticket_id", ticketID), zap.Error(err))
			return
		}
	}
	w.logger.Warn("classification apply lost repeated races", zap.String("ticket_id", ticketID))
}

func (w *ClassificationWorker) flagManual(ctx context.Context, ticketID string) {
	for i := 0; i < applyConflictRetries; i++ {
		ticket, err := w.store.Get(ctx, ticketID)
		if err != nil {
			return
		}
		if _, err := w.store.FlagManualReview(ctx, ticketID, ticket.Version); err == nil {
			return
		} else if !apperrors.IsConflict(err) {
			w.logger.Error("manual review flag failed", zap.String("ticket_id", ticketID), zap.Error(err))
			return
		}
	}
}

func (w *ClassificationWorker) backoff(attempt int) time.Duration {
	base := time.Duration(w.cfg.BackoffBaseMS) * time.Millisecond
	if base <= 0 {
		base = 500 * time.Millisecond
	}
	max := time.Duration(w.cfg.BackoffMaxMS) * time.Millisecond
	if max <= 0 {
		max = 30 * time.Second
	}
	delay := base << uint(attempt-1)
	if delay > max || delay <= 0 {
		delay = max
	}
	return delay
}

// sleep waits for d or until ctx is cancelled; returns false on cancellation.
func (w *ClassificationWorker) sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
