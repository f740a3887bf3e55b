package handlers

import (
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/tweet-triage/internal/api/dto"
	"github.com/spec-kit/tweet-triage/internal/auth"
	"github.com/spec-kit/tweet-triage/internal/domain"
	"github.com/spec-kit/tweet-triage/internal/events"
	"github.com/spec-kit/tweet-triage/internal/store"
	"github.com/spec-kit/tweet-triage/internal/worker"
	apperrors "github.com/spec-kit/tweet-triage/pkg/util/errorutil"
)

// TicketsHandler serves the query boundary and the agent-action boundary.
// Every action maps onto one optimistic-concurrency store call; a lost race
// surfaces as 409 and the caller re-reads.
type TicketsHandler struct {
	store      *store.Store
	classifier *worker.ClassificationWorker
}

// NewTicketsHandler constructs handler.
func NewTicketsHandler(st *store.Store, classifier *worker.ClassificationWorker) *TicketsHandler {
	return &TicketsHandler{store: st, classifier: classifier}
}

// List GET /tickets.
func (h *TicketsHandler) List(c *fiber.Ctx) error {
	filter := parseTicketFilter(c)
	tickets := h.store.List(c.UserContext(), filter)
	items := make([]dto.TicketSummary, 0, len(tickets))
	for i := range tickets {
		items = append(items, dto.FromTicket(&tickets[i]))
	}
	return c.JSON(fiber.Map{"data": items})
}

// Get GET /tickets/:id.
func (h *TicketsHandler) Get(c *fiber.Ctx) error {
	ticket, err := h.store.Get(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.FromTicketDetail(ticket)})
}

// Claim POST /tickets/:id/claim.
func (h *TicketsHandler) Claim(c *fiber.Ctx) error {
	return h.action(c, func(id string, version uint64, agentID string, req dto.AgentActionRequest) (*domain.Ticket, error) {
		return h.store.Claim(c.UserContext(), id, version, agentID)
	})
}

// Respond POST /tickets/:id/respond.
func (h *TicketsHandler) Respond(c *fiber.Ctx) error {
	return h.action(c, func(id string, version uint64, agentID string, req dto.AgentActionRequest) (*domain.Ticket, error) {
		if strings.TrimSpace(req.ResponseText) == "" {
			return nil, apperrors.NewValidationError("response_text required", nil)
		}
		return h.store.Respond(c.UserContext(), id, version, agentID, req.ResponseText)
	})
}

// Escalate POST /tickets/:id/escalate.
func (h *TicketsHandler) Escalate(c *fiber.Ctx) error {
	return h.action(c, func(id string, version uint64, agentID string, req dto.AgentActionRequest) (*domain.Ticket, error) {
		reason := req.Reason
		if reason == "" {
			reason = "manual_escalation"
		}
		return h.store.Escalate(c.UserContext(), id, version, reason, events.AgentActor(agentID))
	})
}

// Reassign POST /tickets/:id/reassign.
func (h *TicketsHandler) Reassign(c *fiber.Ctx) error {
	return h.action(c, func(id string, version uint64, agentID string, req dto.AgentActionRequest) (*domain.Ticket, error) {
		target := req.AgentID
		if target == "" {
			return nil, apperrors.NewValidationError("agent_id required", nil)
		}
		return h.store.Reassign(c.UserContext(), id, version, target)
	})
}

// Reopen POST /tickets/:id/reopen.
func (h *TicketsHandler) Reopen(c *fiber.Ctx) error {
	return h.action(c, func(id string, version uint64, agentID string, req dto.AgentActionRequest) (*domain.Ticket, error) {
		return h.store.Reopen(c.UserContext(), id, version, agentID)
	})
}

// Reclassify POST /tickets/:id/reclassify requeues a ticket for
// classification, typically after a manual-review flag.
func (h *TicketsHandler) Reclassify(c *fiber.Ctx) error {
	id := c.Params("id")
	if _, err := h.store.Get(c.UserContext(), id); err != nil {
		return err
	}
	h.classifier.Enqueue(c.UserContext(), id)
	return c.JSON(fiber.Map{"data": fiber.Map{"ticket_id": id, "queued": true}})
}

type actionFunc func(id string, version uint64, agentID string, req dto.AgentActionRequest) (*domain.Ticket, error)

func (h *TicketsHandler) action(c *fiber.Ctx, fn actionFunc) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("agent required")
	}

	var req dto.AgentActionRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return apperrors.NewValidationError("invalid payload", nil)
		}
	}

	id := c.Params("id")
	version := req.ExpectedVersion
	if version == 0 {
		ticket, err := h.store.Get(c.UserContext(), id)
		if err != nil {
			return err
		}
		version = ticket.Version
	}

	ticket, err := fn(id, version, principal.Agent.ID, req)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.FromTicket(ticket)})
}

func parseTicketFilter(c *fiber.Ctx) store.Filter {
	filter := store.Filter{
		Limit:  parseIntQuery(c, "limit", 100),
		Offset: parseIntQuery(c, "offset", 0),
	}
	for _, status := range splitQuery(c.Query("status")) {
		filter.Statuses = append(filter.Statuses, domain.TicketStatus(strings.ToUpper(status)))
	}
	for _, priority := range splitQuery(c.Query("priority")) {
		filter.Priorities = append(filter.Priorities, domain.TicketPriority(strings.ToUpper(priority)))
	}
	for _, category := range splitQuery(c.Query("category")) {
		filter.Categories = append(filter.Categories, domain.Category(strings.ToUpper(category)))
	}
	for _, sentiment := range splitQuery(c.Query("sentiment")) {
		filter.Sentiments = append(filter.Sentiments, domain.Sentiment(strings.ToUpper(sentiment)))
	}
	if v := c.Query("manual_review"); v != "" {
		manual := v == "true" || v == "1"
		filter.ManualReview = &manual
	}
	if from := parseTimeQuery(c, "received_from"); from != nil {
		filter.ReceivedFrom = from
	}
	if to := parseTimeQuery(c, "received_to"); to != nil {
		filter.ReceivedTo = to
	}
	return filter
}

func splitQuery(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func parseIntQuery(c *fiber.Ctx, key string, fallback int) int {
	raw := c.Query(key)
	if raw == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return parsed
}

func parseTimeQuery(c *fiber.Ctx, key string) *time.Time {
	raw := c.Query(key)
	if raw == "" {
		return nil
	}
	parsed, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return nil
	}
	return &parsed
}
