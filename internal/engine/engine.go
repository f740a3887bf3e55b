package engine

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/tweet-triage/internal/alerts"
	"github.com/spec-kit/tweet-triage/internal/classifier"
	"github.com/spec-kit/tweet-triage/internal/config"
	"github.com/spec-kit/tweet-triage/internal/domain"
	"github.com/spec-kit/tweet-triage/internal/events"
	"github.com/spec-kit/tweet-triage/internal/gateway"
	"github.com/spec-kit/tweet-triage/internal/journal"
	"github.com/spec-kit/tweet-triage/internal/metrics"
	"github.com/spec-kit/tweet-triage/internal/sla"
	"github.com/spec-kit/tweet-triage/internal/store"
	"github.com/spec-kit/tweet-triage/internal/worker"
)

// Engine assembles the ticket lifecycle core: store, ingestion gateway, SLA
// tracker, alert rule engine, metrics aggregator and classification worker,
// all fanned together over one event dispatcher. The store holds the only
// authoritative state; everything else is derived and rebuilt from the
// journal on startup.
type Engine struct {
	Logger     *zap.Logger
	Dispatcher events.Dispatcher
	Store      *store.Store
	Gateway    *gateway.Gateway
	Tracker    *sla.Tracker
	Alerts     *alerts.Engine
	AlertLog   *alerts.Log
	Metrics    *metrics.Aggregator
	Classifier *worker.ClassificationWorker

	journal *journal.Journal
}

// Options carries the pluggable collaborators. Zero values wire sensible
// defaults; tests inject fakes and clocks.
type Options struct {
	Logger    *zap.Logger
	Adapter   classifier.Adapter
	Dedup     gateway.DedupCache
	Journal   *journal.Journal
	Clock     func() time.Time
	Rules     []alerts.Rule
	SLAPolicy *sla.Policy
}

// New wires the engine from configuration.
func New(cfg *config.Config, opts Options) *Engine {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	clock := opts.Clock
	if clock == nil {
		clock = time.Now
	}
	adapter := opts.Adapter
	if adapter == nil {
		adapter = classifier.NewHTTPClient(cfg.Classifier)
	}

	dispatcher := events.NewInMemoryDispatcher(logger)

	storeOpts := []store.Option{store.WithClock(clock)}
	if opts.Journal != nil {
		storeOpts = append(storeOpts, store.WithSnapshotter(opts.Journal))
	}
	st := store.New(logger, dispatcher, storeOpts...)

	policy := sla.PolicyFromConfig(cfg.SLA)
	if opts.SLAPolicy != nil {
		policy = *opts.SLAPolicy
	}
	tracker := sla.NewTracker(st, policy, logger, sla.WithClock(clock))

	alertLog := alerts.NewLog()
	cooldown := time.Duration(cfg.Alerts.CooldownMinutes) * time.Minute
	ruleEngine := alerts.NewEngine(alertLog, dispatcher, cooldown, logger, alerts.WithClock(clock))
	if len(opts.Rules) > 0 {
		ruleEngine.Register(opts.Rules...)
	} else {
		ruleEngine.Register(alerts.DefaultRules(cfg.Alerts)...)
	}

	aggregator := metrics.NewAggregator(metrics.WithClock(clock))
	classificationWorker := worker.NewClassificationWorker(st, adapter, cfg.Classifier, logger)
	gw := gateway.New(st, opts.Dedup, logger)

	// Subscription order is delivery order on the synchronous dispatcher:
	// timers first, then rules, projections, journal, classification.
	tracker.Bind(dispatcher)
	ruleEngine.Bind(dispatcher)
	aggregator.Bind(dispatcher)
	if opts.Journal != nil {
		opts.Journal.Bind(dispatcher)
	}
	classificationWorker.Bind(dispatcher)

	return &Engine{
		Logger:     logger,
		Dispatcher: dispatcher,
		Store:      st,
		Gateway:    gw,
		Tracker:    tracker,
		Alerts:     ruleEngine,
		AlertLog:   alertLog,
		Metrics:    aggregator,
		Classifier: classificationWorker,
		journal:    opts.Journal,
	}
}

// Start restores persisted state and launches background workers. Workers
// exit when ctx is cancelled.
func (e *Engine) Start(ctx context.Context) error {
	if e.journal != nil {
		tickets, err := e.journal.LoadSnapshots(ctx)
		if err != nil {
			return err
		}
		if len(tickets) > 0 {
			e.restore(tickets)
			e.Logger.Info("restored tickets from journal", zap.Int("count", len(tickets)))
		}
	}
	e.Classifier.Start(ctx)
	return nil
}

// restore seeds the store and every derived projection from a snapshot
// population. SLA timers, rule counters and metrics all line up with the
// restored tickets before the first live event arrives.
func (e *Engine) restore(tickets []domain.Ticket) {
	e.Store.Restore(tickets)
	e.Tracker.Resync(tickets)
	e.Alerts.Resync(tickets)
	e.Metrics.Resync(tickets)
}

// Close stops SLA timers and waits for workers to drain.
func (e *Engine) Close() {
	e.Tracker.Close()
	e.Classifier.Wait()
}
