package domain

import "time"

// AgentRole enumerates what an authenticated agent may do.
type AgentRole string

const (
	AgentRoleAgent      AgentRole = "AGENT"
	AgentRoleSupervisor AgentRole = "SUPERVISOR"
)

// Agent is a support operator acting on tickets through the agent boundary.
type Agent struct {
	ID           string
	Handle       string
	DisplayName  string
	PasswordHash string
	Role         AgentRole
	CreatedAt    time.Time
}
