package dto

import (
	"time"

	"github.com/spec-kit/tweet-triage/internal/domain"
)

// AgentLoginRequest payload.
type AgentLoginRequest struct {
	Handle   string `json:"handle"`
	Password string `json:"password"`
}

// AgentLoginResponse payload.
type AgentLoginResponse struct {
	Token     string        `json:"token"`
	ExpiresAt time.Time     `json:"expires_at"`
	Agent     AgentResponse `json:"agent"`
}

// AgentRegisterRequest payload.
type AgentRegisterRequest struct {
	Handle      string           `json:"handle"`
	DisplayName string           `json:"display_name"`
	Password    string           `json:"password"`
	Role        domain.AgentRole `json:"role"`
}

// AgentResponse payload.
type AgentResponse struct {
	ID          string           `json:"id"`
	Handle      string           `json:"handle"`
	DisplayName string           `json:"display_name"`
	Role        domain.AgentRole `json:"role"`
}

// FromAgent maps a domain agent to its DTO.
func FromAgent(agent *domain.Agent) AgentResponse {
	return AgentResponse{
		ID:          agent.ID,
		Handle:      agent.Handle,
		DisplayName: agent.DisplayName,
		Role:        agent.Role,
	}
}
