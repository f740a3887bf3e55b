package metrics

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/spec-kit/tweet-triage/internal/domain"
	"github.com/spec-kit/tweet-triage/internal/events"
)

const maxResponseSamples = 10000

// Aggregator maintains read-only projections of the ticket population from
// the lifecycle event stream. It never touches the ticket store; its numbers
// lag the store by event-delivery latency but each transition is counted
// exactly once.
type Aggregator struct {
	now func() time.Time

	mu          sync.RWMutex
	total       int64
	byStatus    map[domain.TicketStatus]int64
	byPriority  map[domain.TicketPriority]int64
	byCategory  map[domain.Category]int64
	bySentiment map[domain.Sentiment]int64
	manual      int64
	escalations int64
	answered    int64

	alertsTotal      int64
	alertsBySeverity map[domain.AlertSeverity]int64

	responses    []responseSample // ring, newest appended
	hourlyVolume map[time.Time]int64
}

type responseSample struct {
	at      time.Time
	minutes float64
}

// Option customizes aggregator construction.
type Option func(*Aggregator)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(a *Aggregator) { a.now = now }
}

// NewAggregator constructs an empty aggregator.
func NewAggregator(opts ...Option) *Aggregator {
	a := &Aggregator{
		now:              time.Now,
		byStatus:         make(map[domain.TicketStatus]int64),
		byPriority:       make(map[domain.TicketPriority]int64),
		byCategory:       make(map[domain.Category]int64),
		bySentiment:      make(map[domain.Sentiment]int64),
		alertsBySeverity: make(map[domain.AlertSeverity]int64),
		hourlyVolume:     make(map[time.Time]int64),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Bind subscribes the aggregator to the event stream.
func (a *Aggregator) Bind(dispatcher events.Dispatcher) {
	dispatcher.Subscribe(events.EventTicketCreated, func(ctx context.Context, event events.Event) error {
		payload, ok := event.Payload.(events.TicketCreatedPayload)
		if !ok {
			return nil
		}
		a.onCreated(payload)
		return nil
	})
	dispatcher.Subscribe(events.EventTicketStatusChanged, func(ctx context.Context, event events.Event) error {
		payload, ok := event.Payload.(events.TicketStatusChangedPayload)
		if !ok {
			return nil
		}
		a.onStatusChanged(event.Timestamp, payload)
		return nil
	})
	dispatcher.Subscribe(events.EventTicketClassified, func(ctx context.Context, event events.Event) error {
		payload, ok := event.Payload.(events.TicketClassifiedPayload)
		if !ok {
			return nil
		}
		a.onClassified(payload)
		return nil
	})
	dispatcher.Subscribe(events.EventAlertTriggered, func(ctx context.Context, event events.Event) error {
		payload, ok := event.Payload.(events.AlertTriggeredPayload)
		if !ok {
			return nil
		}
		a.onAlert(payload)
		return nil
	})
}

// Resync seeds the projections from a restored ticket population, typically
// after a journal replay at startup. Lifetime counters that the snapshots
// cannot distinguish (escalations) are seeded from current state, so they
// restart as lower bounds.
func (a *Aggregator) Resync(tickets []domain.Ticket) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for i := range tickets {
		t := &tickets[i]
		a.total++
		a.byStatus[t.Status]++
		a.byPriority[t.Priority]++
		a.byCategory[t.Category]++
		a.bySentiment[t.Sentiment]++
		a.hourlyVolume[t.ReceivedAt.Truncate(time.Hour)]++
		if t.NeedsManualReview {
			a.manual++
		}
		if t.Status == domain.TicketStatusEscalated {
			a.escalations++
		}
		if t.ResponseTimeMinutes != nil {
			a.answered++
			a.responses = append(a.responses, responseSample{at: t.StatusEnteredAt, minutes: *t.ResponseTimeMinutes})
		}
	}
	if len(a.responses) > maxResponseSamples {
		a.responses = a.responses[len(a.responses)-maxResponseSamples:]
	}
}

func (a *Aggregator) onCreated(payload events.TicketCreatedPayload) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.total++
	a.byStatus[domain.TicketStatusPending]++
	a.byPriority[payload.Priority]++
	a.byCategory[domain.CategoryUncategorized]++
	a.bySentiment[domain.SentimentNeutral]++
	a.hourlyVolume[payload.ReceivedAt.Truncate(time.Hour)]++
}

func (a *Aggregator) onStatusChanged(at time.Time, payload events.TicketStatusChangedPayload) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.byStatus[payload.OldStatus]--
	a.byStatus[payload.NewStatus]++
	if payload.NewStatus == domain.TicketStatusEscalated {
		a.escalations++
	}
	if payload.NewStatus == domain.TicketStatusAnswered && payload.ResponseTimeMinutes != nil {
		a.answered++
		a.responses = append(a.responses, responseSample{at: at, minutes: *payload.ResponseTimeMinutes})
		if len(a.responses) > maxResponseSamples {
			a.responses = a.responses[len(a.responses)-maxResponseSamples:]
		}
	}
}

func (a *Aggregator) onClassified(payload events.TicketClassifiedPayload) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if payload.ManualReview {
		a.manual++
		return
	}
	if payload.OldSentiment != payload.Sentiment {
		a.bySentiment[payload.OldSentiment]--
		a.bySentiment[payload.Sentiment]++
	}
	if payload.OldCategory != payload.Category {
		a.byCategory[payload.OldCategory]--
		a.byCategory[payload.Category]++
	}
	if payload.OldPriority != payload.Priority {
		a.byPriority[payload.OldPriority]--
		a.byPriority[payload.Priority]++
	}
}

func (a *Aggregator) onAlert(payload events.AlertTriggeredPayload) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.alertsTotal++
	a.alertsBySeverity[payload.Severity]++
}

// Summary is a point-in-time read of the projections.
type Summary struct {
	Total            int64
	ByStatus         map[domain.TicketStatus]int64
	ByPriority       map[domain.TicketPriority]int64
	ByCategory       map[domain.Category]int64
	BySentiment      map[domain.Sentiment]int64
	ManualReview     int64
	Escalations      int64
	Answered         int64
	AlertsTotal      int64
	AlertsBySeverity map[domain.AlertSeverity]int64

	ResponseCount int64
	ResponseMean  float64
	ResponseP50   float64
	ResponseP90   float64
	ResponseP99   float64

	HourlyVolume map[time.Time]int64
}

// Snapshot computes a summary. Response-time statistics and hourly volume
// are restricted to the given window; zero means everything retained.
func (a *Aggregator) Snapshot(window time.Duration) Summary {
	a.mu.RLock()
	defer a.mu.RUnlock()

	summary := Summary{
		Total:            a.total,
		ByStatus:         copyMap(a.byStatus),
		ByPriority:       copyMap(a.byPriority),
		ByCategory:       copyMap(a.byCategory),
		BySentiment:      copyMap(a.bySentiment),
		ManualReview:     a.manual,
		Escalations:      a.escalations,
		Answered:         a.answered,
		AlertsTotal:      a.alertsTotal,
		AlertsBySeverity: copyMap(a.alertsBySeverity),
		HourlyVolume:     make(map[time.Time]int64),
	}

	var cutoff time.Time
	if window > 0 {
		cutoff = a.now().Add(-window)
	}

	minutes := make([]float64, 0, len(a.responses))
	var sum float64
	for _, sample := range a.responses {
		if !cutoff.IsZero() && sample.at.Before(cutoff) {
			continue
		}
		minutes = append(minutes, sample.minutes)
		sum += sample.minutes
	}
	summary.ResponseCount = int64(len(minutes))
	if len(minutes) > 0 {
		summary.ResponseMean = sum / float64(len(minutes))
		sort.Float64s(minutes)
		summary.ResponseP50 = percentile(minutes, 0.50)
		summary.ResponseP90 = percentile(minutes, 0.90)
		summary.ResponseP99 = percentile(minutes, 0.99)
	}

	for hour, count := range a.hourlyVolume {
		if !cutoff.IsZero() && hour.Add(time.Hour).Before(cutoff) {
			continue
		}
		summary.HourlyVolume[hour] = count
	}
	return summary
}

func percentile(sorted []float64, q float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(q * float64(len(sorted)-1))
	return sorted[idx]
}

func copyMap[K comparable](src map[K]int64) map[K]int64 {
	dst := make(map[K]int64, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}
