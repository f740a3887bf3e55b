package alerts

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/tweet-triage/internal/config"
	"github.com/spec-kit/tweet-triage/internal/domain"
	"github.com/spec-kit/tweet-triage/internal/events"
)

// Engine evaluates alert rules over the lifecycle event stream. Rules keep
// incremental window counters, so each event costs an Observe plus one
// predicate read per rule instead of a rescan of ticket history.
//
// Alerts are edge-triggered: a rule fires when its predicate flips from
// false to true, stays quiet while it remains true, and may fire again only
// after the predicate has gone false and the cool-down has elapsed.
type Engine struct {
	logger     *zap.Logger
	dispatcher events.Dispatcher
	log        *Log
	cooldown   time.Duration
	now        func() time.Time

	mu    sync.Mutex
	rules []Rule
	state map[string]*ruleState // keyed by ruleID + "\x00" + group
}

type ruleState struct {
	active    bool
	lastFired time.Time
}

// Option customizes engine construction.
type Option func(*Engine)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// NewEngine constructs a rule engine writing to the given alert log.
func NewEngine(log *Log, dispatcher events.Dispatcher, cooldown time.Duration, logger *zap.Logger, opts ...Option) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	e := &Engine{
		logger:     logger,
		dispatcher: dispatcher,
		log:        log,
		cooldown:   cooldown,
		now:        time.Now,
		state:      make(map[string]*ruleState),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// DefaultRules builds the standard rule set from configuration.
func DefaultRules(cfg config.AlertsConfig) []Rule {
	window := time.Duration(cfg.WindowMinutes) * time.Minute
	return []Rule{
		&PendingBacklogRule{Threshold: cfg.PendingBacklog},
		&NegativeSentimentShareRule{
			Window:    window,
			Share:     float64(cfg.NegativeSharePercent) / 100,
			MinSample: cfg.NegativeShareMinCount,
		},
		&MeanResponseTimeRule{
			Window:    window,
			Threshold: time.Duration(cfg.MeanResponseMinutes) * time.Minute,
		},
		&VolumeSpikeRule{
			Window:    window,
			Increase:  float64(cfg.VolumeSpikePercent) / 100,
			MinSample: cfg.VolumeSpikeMinCount,
		},
	}
}

// TicketResyncer is implemented by rules that can rebuild their counters
// from a restored ticket population instead of the event stream.
type TicketResyncer interface {
	ResyncTickets(tickets []domain.Ticket, now time.Time)
}

// Resync rebuilds rule state from a restored ticket population, typically
// after a journal replay at startup. Edge state is left untouched: a
// predicate that is already true post-restore fires on the first event cycle.
func (e *Engine) Resync(tickets []domain.Ticket) {
	e.mu.Lock()
	defer e.mu.Unlock()
	now := e.now()
	for _, rule := range e.rules {
		if r, ok := rule.(TicketResyncer); ok {
			r.ResyncTickets(tickets, now)
		}
	}
}

// Register adds a rule to the evaluation set.
func (e *Engine) Register(rules ...Rule) {
	e.mu.Lock()
	e.rules = append(e.rules, rules...)
	e.mu.Unlock()
}

// Bind subscribes the engine to the lifecycle events rules consume.
func (e *Engine) Bind(dispatcher events.Dispatcher) {
	handler := func(ctx context.Context, event events.Event) error {
		e.handle(event)
		return nil
	}
	dispatcher.Subscribe(events.EventTicketCreated, handler)
	dispatcher.Subscribe(events.EventTicketStatusChanged, handler)
	dispatcher.Subscribe(events.EventTicketClassified, handler)
}

// handle folds one event into every rule and evaluates them. A rule that
// panics or misbehaves is logged and skipped for this cycle; it neither
// blocks the other rules nor ticket processing.
func (e *Engine) handle(event events.Event) {
	e.mu.Lock()
	defer e.mu.Unlock()

	now := event.Timestamp
	if now.IsZero() {
		now = e.now()
	}

	for _, rule := range e.rules {
		evals, err := e.observeAndEvaluate(rule, event, now)
		if err != nil {
			e.logger.Error("rule evaluation failed, skipping for this cycle",
				zap.String("rule_id", rule.ID()), zap.Error(err))
			continue
		}
		for _, eval := range evals {
			e.applyEdge(rule, eval, now)
		}
	}
}

func (e *Engine) observeAndEvaluate(rule Rule, event events.Event, now time.Time) (evals []Evaluation, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("rule panic: %v", r)
		}
	}()
	rule.Observe(event, now)
	return rule.Evaluate(now), nil
}

func (e *Engine) applyEdge(rule Rule, eval Evaluation, now time.Time) {
	key := rule.ID() + "\x00" + eval.Group
	state, ok := e.state[key]
	if !ok {
		state = &ruleState{}
		e.state[key] = state
	}

	if !eval.Firing {
		state.active = false
		return
	}
	if state.active {
		return // level held true, already fired
	}
	state.active = true
	if !state.lastFired.IsZero() && now.Sub(state.lastFired) < e.cooldown {
		return // re-armed inside the cool-down
	}
	state.lastFired = now

	alert := domain.Alert{
		ID:            uuid.NewString(),
		RuleID:        rule.ID(),
		Group:         eval.Group,
		Severity:      rule.Severity(),
		Message:       eval.Message,
		TriggeredAt:   now,
		WindowSummary: eval.Summary,
	}
	e.emit(alert)
}

func (e *Engine) emit(alert domain.Alert) {
	e.log.Append(alert)
	e.logger.Warn("alert triggered",
		zap.String("rule_id", alert.RuleID),
		zap.String("group", alert.Group),
		zap.String("severity", string(alert.Severity)),
		zap.String("message", alert.Message))

	if e.dispatcher == nil {
		return
	}
	_ = e.dispatcher.Publish(context.Background(), events.Event{
		ID:        uuid.NewString(),
		Type:      events.EventAlertTriggered,
		Actor:     events.SystemActor(),
		Timestamp: alert.TriggeredAt,
		Payload: events.AlertTriggeredPayload{
			AlertID:       alert.ID,
			RuleID:        alert.RuleID,
			Group:         alert.Group,
			Severity:      alert.Severity,
			Message:       alert.Message,
			WindowSummary: alert.WindowSummary,
		},
	})
}
