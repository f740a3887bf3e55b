package handlers

import (
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/tweet-triage/internal/api/dto"
	"github.com/spec-kit/tweet-triage/internal/service"
	apperrors "github.com/spec-kit/tweet-triage/pkg/util/errorutil"
)

// AgentsHandler serves agent authentication and directory endpoints.
type AgentsHandler struct {
	agents *service.AgentService
}

// NewAgentsHandler constructs handler.
func NewAgentsHandler(agents *service.AgentService) *AgentsHandler {
	return &AgentsHandler{agents: agents}
}

// Login POST /auth/agents/login.
func (h *AgentsHandler) Login(c *fiber.Ctx) error {
	var req dto.AgentLoginRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if req.Handle == "" || req.Password == "" {
		return apperrors.NewValidationError("handle and password required", nil)
	}

	token, expiresAt, agent, err := h.agents.Login(c.UserContext(), req.Handle, req.Password)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.AgentLoginResponse{
		Token:     token,
		ExpiresAt: expiresAt,
		Agent:     dto.FromAgent(agent),
	}})
}

// Register POST /auth/agents/register (supervisor only).
func (h *AgentsHandler) Register(c *fiber.Ctx) error {
	var req dto.AgentRegisterRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}

	agent, err := h.agents.Register(c.UserContext(), req.Handle, req.DisplayName, req.Password, req.Role)
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": dto.FromAgent(agent)})
}
