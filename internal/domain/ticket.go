package domain

import "time"

// TicketStatus enumerates lifecycle states for tickets.
type TicketStatus string

const (
	TicketStatusPending    TicketStatus = "PENDING"
	TicketStatusInProgress TicketStatus = "IN_PROGRESS"
	TicketStatusAnswered   TicketStatus = "ANSWERED"
	TicketStatusEscalated  TicketStatus = "ESCALATED"
)

// TicketPriority enumerates SLA urgency.
type TicketPriority string

const (
	TicketPriorityHigh   TicketPriority = "HIGH"
	TicketPriorityMedium TicketPriority = "MEDIUM"
	TicketPriorityLow    TicketPriority = "LOW"
)

// Sentiment is the classified tone of the inbound message.
type Sentiment string

const (
	SentimentPositive Sentiment = "POSITIVE"
	SentimentNegative Sentiment = "NEGATIVE"
	SentimentNeutral  Sentiment = "NEUTRAL"
)

// Category is an open set; these are the values the classifier emits today,
// but unknown categories are accepted as-is.
type Category string

const (
	CategoryProductQuestion Category = "PRODUCT_QUESTION"
	CategoryComplaint       Category = "COMPLAINT"
	CategorySupportRequest  Category = "SUPPORT_REQUEST"
	CategoryCompliment      Category = "COMPLIMENT"
	CategoryDelivery        Category = "DELIVERY"
	CategoryRefund          Category = "REFUND"
	CategoryUncategorized   Category = "UNCATEGORIZED"
)

// InboundMessage is the raw payload handed to the ingestion gateway.
type InboundMessage struct {
	SourceMessageID string
	Author          string
	Content         string
	ReceivedAt      time.Time
}

// Classification carries the fields the classifier assigns to a ticket.
type Classification struct {
	Sentiment    Sentiment
	Category     Category
	Priority     TicketPriority
	UrgencyScore float64
}

// Ticket is the tracked unit of work created for one inbound message.
//
// ID, SourceMessageID, Author, Content and ReceivedAt are immutable after
// creation. Version increases on every accepted mutation and is the token
// for optimistic concurrency: a caller supplies the version it read, and a
// mismatch rejects the update without touching state.
type Ticket struct {
	ID              string
	SourceMessageID string
	Author          string
	Content         string
	ReceivedAt      time.Time

	Sentiment             Sentiment
	Category              Category
	Priority              TicketPriority
	UrgencyScore          float64
	ClassificationVersion int64
	NeedsManualReview     bool

	Status          TicketStatus
	AssignedAgent   *string
	StatusEnteredAt time.Time
	ResponseText    string

	// ResponseTimeMinutes is finalized when the ticket is answered.
	ResponseTimeMinutes *float64

	Version uint64
}

// Clone returns a deep copy safe to hand to readers while the store keeps
// mutating its own instance.
func (t *Ticket) Clone() *Ticket {
	clone := *t
	if t.AssignedAgent != nil {
		agent := *t.AssignedAgent
		clone.AssignedAgent = &agent
	}
	if t.ResponseTimeMinutes != nil {
		minutes := *t.ResponseTimeMinutes
		clone.ResponseTimeMinutes = &minutes
	}
	return &clone
}

var allowedTransitions = map[TicketStatus][]TicketStatus{
	TicketStatusPending:    {TicketStatusInProgress, TicketStatusAnswered, TicketStatusEscalated},
	TicketStatusInProgress: {TicketStatusAnswered, TicketStatusEscalated},
	TicketStatusEscalated:  {TicketStatusInProgress, TicketStatusAnswered},
	// Answered is closed by default; the only way out is an explicit reopen
	// back to InProgress, never a silent revert to Pending.
	TicketStatusAnswered: {TicketStatusInProgress},
}

// ValidTransition reports whether current -> next is an edge in the ticket
// state machine.
func ValidTransition(current, next TicketStatus) bool {
	for _, candidate := range allowedTransitions[current] {
		if candidate == next {
			return true
		}
	}
	return false
}
