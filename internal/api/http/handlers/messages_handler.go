package handlers

import (
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/tweet-triage/internal/api/dto"
	"github.com/spec-kit/tweet-triage/internal/domain"
	"github.com/spec-kit/tweet-triage/internal/gateway"
	apperrors "github.com/spec-kit/tweet-triage/pkg/util/errorutil"
)

// MessagesHandler exposes the ingestion boundary.
type MessagesHandler struct {
	gateway *gateway.Gateway
}

// NewMessagesHandler constructs handler.
func NewMessagesHandler(gw *gateway.Gateway) *MessagesHandler {
	return &MessagesHandler{gateway: gw}
}

// Ingest POST /messages. Re-posting a known source_message_id returns the
// existing ticket id with 200 instead of 201; duplicates are never an error.
func (h *MessagesHandler) Ingest(c *fiber.Ctx) error {
	var req dto.IngestMessageRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}

	msg := domain.InboundMessage{
		SourceMessageID: req.SourceMessageID,
		Author:          req.Author,
		Content:         req.Content,
	}
	if req.ReceivedAt != nil {
		msg.ReceivedAt = *req.ReceivedAt
	}

	ticket, created, err := h.gateway.Ingest(c.UserContext(), msg)
	if err != nil {
		return err
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	return c.Status(status).JSON(fiber.Map{"data": dto.IngestMessageResponse{
		TicketID: ticket.ID,
		Created:  created,
	}})
}
