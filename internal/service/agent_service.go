package service

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/spec-kit/tweet-triage/internal/auth"
	"github.com/spec-kit/tweet-triage/internal/config"
	"github.com/spec-kit/tweet-triage/internal/domain"
	apperrors "github.com/spec-kit/tweet-triage/pkg/util/errorutil"
)

// AgentService owns the agent directory and login flow. Agents are the only
// authenticated principals; everything they do to tickets flows through the
// agent-action endpoints.
type AgentService struct {
	tokens     *auth.TokenManager
	bcryptCost int

	mu       sync.RWMutex
	byID     map[string]*domain.Agent
	byHandle map[string]*domain.Agent
}

// NewAgentService constructs the service and seeds the bootstrap agent when
// configured.
func NewAgentService(cfg config.AuthConfig) (*AgentService, error) {
	s := &AgentService{
		tokens:     auth.NewTokenManager(cfg.JWTSecret, cfg.AccessTokenTTLMinutes),
		bcryptCost: cfg.BcryptCost,
		byID:       make(map[string]*domain.Agent),
		byHandle:   make(map[string]*domain.Agent),
	}
	if cfg.BootstrapAgentHandle != "" && cfg.BootstrapAgentSecret != "" {
		if _, err := s.Register(context.Background(), cfg.BootstrapAgentHandle, cfg.BootstrapAgentHandle, cfg.BootstrapAgentSecret, domain.AgentRoleSupervisor); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// TokenManager exposes the token manager for middleware wiring.
func (s *AgentService) TokenManager() *auth.TokenManager {
	return s.tokens
}

// Register adds an agent to the directory.
func (s *AgentService) Register(ctx context.Context, handle, displayName, password string, role domain.AgentRole) (*domain.Agent, error) {
	handle = strings.ToLower(strings.TrimSpace(handle))
	if handle == "" || password == "" {
		return nil, apperrors.NewValidationError("handle and password required", nil)
	}
	if role == "" {
		role = domain.AgentRoleAgent
	}

	hash, err := auth.HashPassword(password, s.bcryptCost)
	if err != nil {
		return nil, err
	}

	agent := &domain.Agent{
		ID:           uuid.NewString(),
		Handle:       handle,
		DisplayName:  displayName,
		PasswordHash: hash,
		Role:         role,
		CreatedAt:    time.Now(),
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.byHandle[handle]; exists {
		return nil, apperrors.NewConflict("agent handle already registered", map[string]any{"handle": handle})
	}
	s.byID[agent.ID] = agent
	s.byHandle[handle] = agent
	return cloneAgent(agent), nil
}

// Login verifies credentials and issues a token.
func (s *AgentService) Login(ctx context.Context, handle, password string) (string, time.Time, *domain.Agent, error) {
	handle = strings.ToLower(strings.TrimSpace(handle))

	s.mu.RLock()
	agent, ok := s.byHandle[handle]
	s.mu.RUnlock()
	if !ok {
		return "", time.Time{}, nil, apperrors.NewUnauthorized("invalid credentials")
	}
	if err := auth.ComparePassword(agent.PasswordHash, password); err != nil {
		return "", time.Time{}, nil, apperrors.NewUnauthorized("invalid credentials")
	}

	token, expiresAt, err := s.tokens.GenerateToken(agent.ID, agent.Role)
	if err != nil {
		return "", time.Time{}, nil, err
	}
	return token, expiresAt, cloneAgent(agent), nil
}

// GetByID resolves an agent, for the auth middleware.
func (s *AgentService) GetByID(ctx context.Context, id string) (*domain.Agent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	agent, ok := s.byID[id]
	if !ok {
		return nil, apperrors.NewNotFound("agent", map[string]any{"agent_id": id})
	}
	return cloneAgent(agent), nil
}

func cloneAgent(agent *domain.Agent) *domain.Agent {
	clone := *agent
	return &clone
}
