package alerts

import (
	"fmt"
	"sort"
	"time"

	"github.com/spec-kit/tweet-triage/internal/domain"
	"github.com/spec-kit/tweet-triage/internal/events"
)

// Evaluation is one rule predicate outcome for one group.
type Evaluation struct {
	Group   string
	Firing  bool
	Message string
	Summary map[string]float64
}

// Rule maintains incremental state over the lifecycle event stream and
// evaluates a threshold predicate. Rules are driven entirely by the engine:
// Observe folds one event into the rule's window counters, Evaluate reads
// them out. Neither is called concurrently.
type Rule interface {
	ID() string
	Severity() domain.AlertSeverity
	Observe(event events.Event, now time.Time)
	Evaluate(now time.Time) []Evaluation
}

// PendingBacklogRule fires when the live count of Pending tickets exceeds a
// threshold. The gauge is maintained from creations and transitions out of
// Pending; nothing ever transitions back in.
type PendingBacklogRule struct {
	Threshold int

	pending int
}

func (r *PendingBacklogRule) ID() string { return "pending_backlog" }

func (r *PendingBacklogRule) Severity() domain.AlertSeverity { return domain.AlertSeverityWarning }

func (r *PendingBacklogRule) Observe(event events.Event, now time.Time) {
	switch event.Type {
	case events.EventTicketCreated:
		r.pending++
	case events.EventTicketStatusChanged:
		payload, ok := event.Payload.(events.TicketStatusChangedPayload)
		if !ok {
			return
		}
		if payload.OldStatus == domain.TicketStatusPending && payload.NewStatus != domain.TicketStatusPending {
			r.pending--
		}
	}
}

// ResyncTickets rebuilds the gauge from a restored population.
func (r *PendingBacklogRule) ResyncTickets(tickets []domain.Ticket, now time.Time) {
	r.pending = 0
	for i := range tickets {
		if tickets[i].Status == domain.TicketStatusPending {
			r.pending++
		}
	}
}

func (r *PendingBacklogRule) Evaluate(now time.Time) []Evaluation {
	return []Evaluation{{
		Firing:  r.pending > r.Threshold,
		Message: fmt.Sprintf("pending backlog at %d tickets (threshold %d)", r.pending, r.Threshold),
		Summary: map[string]float64{
			"pending":   float64(r.pending),
			"threshold": float64(r.Threshold),
		},
	}}
}

// NegativeSentimentShareRule fires when the share of negatively classified
// tickets inside the window exceeds Share. With PerCategory set it keeps one
// window pair per category and evaluates each independently.
type NegativeSentimentShareRule struct {
	Window      time.Duration
	Share       float64 // 0..1
	MinSample   int
	PerCategory bool

	groups map[string]*sentimentCounters
}

type sentimentCounters struct {
	total    *slidingWindow
	negative *slidingWindow
}

func (r *NegativeSentimentShareRule) ID() string {
	if r.PerCategory {
		return "negative_sentiment_share_by_category"
	}
	return "negative_sentiment_share"
}

func (r *NegativeSentimentShareRule) Severity() domain.AlertSeverity {
	return domain.AlertSeverityCritical
}

func (r *NegativeSentimentShareRule) Observe(event events.Event, now time.Time) {
	if event.Type != events.EventTicketClassified {
		return
	}
	payload, ok := event.Payload.(events.TicketClassifiedPayload)
	if !ok || payload.ManualReview {
		return
	}

	group := ""
	if r.PerCategory {
		group = string(payload.Category)
	}
	if r.groups == nil {
		r.groups = make(map[string]*sentimentCounters)
	}
	counters, ok := r.groups[group]
	if !ok {
		counters = &sentimentCounters{
			total:    newSlidingWindow(r.Window),
			negative: newSlidingWindow(r.Window),
		}
		r.groups[group] = counters
	}

	at := event.Timestamp
	counters.total.Add(at, 1)
	if payload.Sentiment == domain.SentimentNegative {
		counters.negative.Add(at, 1)
	}
}

// ResyncTickets reseeds the sentiment windows from a restored population.
// Snapshots carry no classification timestamp, so ReceivedAt stands in; a
// ticket classified long after arrival may land outside the window.
func (r *NegativeSentimentShareRule) ResyncTickets(tickets []domain.Ticket, now time.Time) {
	r.groups = make(map[string]*sentimentCounters)
	cutoff := now.Add(-r.Window)
	for i := range tickets {
		t := &tickets[i]
		if t.ClassificationVersion == 0 || t.NeedsManualReview || t.ReceivedAt.Before(cutoff) {
			continue
		}
		group := ""
		if r.PerCategory {
			group = string(t.Category)
		}
		counters, ok := r.groups[group]
		if !ok {
			counters = &sentimentCounters{
				total:    newSlidingWindow(r.Window),
				negative: newSlidingWindow(r.Window),
			}
			r.groups[group] = counters
		}
		counters.total.Add(t.ReceivedAt, 1)
		if t.Sentiment == domain.SentimentNegative {
			counters.negative.Add(t.ReceivedAt, 1)
		}
	}
}

func (r *NegativeSentimentShareRule) Evaluate(now time.Time) []Evaluation {
	evals := make([]Evaluation, 0, len(r.groups))
	for group, counters := range r.groups {
		total := counters.total.Count(now)
		negative := counters.negative.Count(now)
		share := 0.0
		if total > 0 {
			share = float64(negative) / float64(total)
		}
		firing := total >= r.MinSample && share > r.Share
		label := "overall"
		if group != "" {
			label = group
		}
		evals = append(evals, Evaluation{
			Group:  group,
			Firing: firing,
			Message: fmt.Sprintf("negative sentiment share %.0f%% over last %s (%s)",
				share*100, r.Window, label),
			Summary: map[string]float64{
				"total":     float64(total),
				"negative":  float64(negative),
				"share":     share,
				"threshold": r.Share,
			},
		})
	}
	return evals
}

// MeanResponseTimeRule fires when the mean finalized response time of
// tickets answered inside the window exceeds Threshold.
type MeanResponseTimeRule struct {
	Window    time.Duration
	Threshold time.Duration

	responses *slidingWindow
}

func (r *MeanResponseTimeRule) ID() string { return "mean_response_time" }

func (r *MeanResponseTimeRule) Severity() domain.AlertSeverity { return domain.AlertSeverityWarning }

func (r *MeanResponseTimeRule) Observe(event events.Event, now time.Time) {
	if event.Type != events.EventTicketStatusChanged {
		return
	}
	payload, ok := event.Payload.(events.TicketStatusChangedPayload)
	if !ok || payload.NewStatus != domain.TicketStatusAnswered || payload.ResponseTimeMinutes == nil {
		return
	}
	if r.responses == nil {
		r.responses = newSlidingWindow(r.Window)
	}
	r.responses.Add(event.Timestamp, *payload.ResponseTimeMinutes)
}

// ResyncTickets reseeds the response window from a restored population.
// Answered tickets enter at StatusEnteredAt, which is the answer time unless
// the ticket has since been reopened.
func (r *MeanResponseTimeRule) ResyncTickets(tickets []domain.Ticket, now time.Time) {
	r.responses = newSlidingWindow(r.Window)
	cutoff := now.Add(-r.Window)
	answered := make([]*domain.Ticket, 0, len(tickets))
	for i := range tickets {
		t := &tickets[i]
		if t.Status != domain.TicketStatusAnswered || t.ResponseTimeMinutes == nil || t.StatusEnteredAt.Before(cutoff) {
			continue
		}
		answered = append(answered, t)
	}
	sort.Slice(answered, func(i, j int) bool {
		return answered[i].StatusEnteredAt.Before(answered[j].StatusEnteredAt)
	})
	for _, t := range answered {
		r.responses.Add(t.StatusEnteredAt, *t.ResponseTimeMinutes)
	}
}

func (r *MeanResponseTimeRule) Evaluate(now time.Time) []Evaluation {
	if r.responses == nil {
		return []Evaluation{{Firing: false, Summary: map[string]float64{"answered": 0}}}
	}
	count := r.responses.Count(now)
	mean := r.responses.Mean(now)
	thresholdMinutes := r.Threshold.Minutes()
	return []Evaluation{{
		Firing: count > 0 && mean > thresholdMinutes,
		Message: fmt.Sprintf("mean response time %.0f min over last %s (threshold %.0f min)",
			mean, r.Window, thresholdMinutes),
		Summary: map[string]float64{
			"answered":       float64(count),
			"mean_minutes":   mean,
			"threshold_mins": thresholdMinutes,
		},
	}}
}

// VolumeSpikeRule fires when ticket volume in the current window exceeds the
// prior window's volume by more than Increase (e.g. 0.5 for +50%). It keeps
// one long window of 2x retention and one short window; the prior window's
// count is the difference.
type VolumeSpikeRule struct {
	Window    time.Duration
	Increase  float64
	MinSample int

	long  *slidingWindow
	short *slidingWindow
}

func (r *VolumeSpikeRule) ID() string { return "volume_spike" }

func (r *VolumeSpikeRule) Severity() domain.AlertSeverity { return domain.AlertSeverityCritical }

func (r *VolumeSpikeRule) Observe(event events.Event, now time.Time) {
	if event.Type != events.EventTicketCreated {
		return
	}
	if r.long == nil {
		r.long = newSlidingWindow(2 * r.Window)
		r.short = newSlidingWindow(r.Window)
	}
	r.long.Add(event.Timestamp, 1)
	r.short.Add(event.Timestamp, 1)
}

// ResyncTickets reseeds both volume windows from a restored population.
// Tickets arrive ordered by ReceivedAt when restored from the journal.
func (r *VolumeSpikeRule) ResyncTickets(tickets []domain.Ticket, now time.Time) {
	r.long = newSlidingWindow(2 * r.Window)
	r.short = newSlidingWindow(r.Window)
	cutoff := now.Add(-2 * r.Window)
	for i := range tickets {
		at := tickets[i].ReceivedAt
		if at.Before(cutoff) {
			continue
		}
		r.long.Add(at, 1)
		r.short.Add(at, 1)
	}
}

func (r *VolumeSpikeRule) Evaluate(now time.Time) []Evaluation {
	if r.long == nil {
		return []Evaluation{{Firing: false, Summary: map[string]float64{"current": 0, "prior": 0}}}
	}
	current := r.short.Count(now)
	prior := r.long.Count(now) - current
	firing := prior >= r.MinSample && float64(current) > float64(prior)*(1+r.Increase)
	return []Evaluation{{
		Firing: firing,
		Message: fmt.Sprintf("ticket volume %d vs %d in prior %s (threshold +%.0f%%)",
			current, prior, r.Window, r.Increase*100),
		Summary: map[string]float64{
			"current":   float64(current),
			"prior":     float64(prior),
			"threshold": r.Increase,
		},
	}}
}
