package service

import (
	"context"
	"errors"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/helpdesk-kit/helpdesk/internal/domain"
	"github.com/helpdesk-kit/helpdesk/internal/repository"
	apperrors "github.com/helpdesk-kit/helpdesk/pkg/util/errorutil"
)

// AgentService manages the agent roster. Mutations are administrative
// actions; the routing layer enforces the admin role.
type AgentService struct {
	agents repository.AgentRepository
	cache  AgentCache
}

// NewAgentService constructs the service.
func NewAgentService(agents repository.AgentRepository, cache AgentCache) *AgentService {
	return &AgentService{agents: agents, cache: cache}
}

// AgentUpdateInput carries optional roster mutations.
type AgentUpdateInput struct {
	Name     *string
	IsActive *bool
}

// Register adds an agent to the roster, active by default.
func (s *AgentService) Register(ctx context.Context, name, email string) (*domain.Agent, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if _, err := s.agents.GetByEmail(ctx, email); err == nil {
		return nil, apperrors.NewConflict("agent already registered", map[string]any{"email": email})
	} else if !errors.Is(err, pgx.ErrNoRows) {
		return nil, apperrors.MapError(err)
	}

	agent := &domain.Agent{
		Name:     strings.TrimSpace(name),
		Email:    email,
		IsActive: true,
	}
	if err := s.agents.Create(ctx, agent); err != nil {
		return nil, apperrors.MapError(err)
	}
	return agent, nil
}

// Update applies roster mutations and drops any cached copy.
func (s *AgentService) Update(ctx context.Context, id string, input AgentUpdateInput) (*domain.Agent, error) {
	agent, err := s.agents.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFound("agent", map[string]any{"agent_id": id})
		}
		return nil, apperrors.MapError(err)
	}

	if input.Name != nil {
		agent.Name = strings.TrimSpace(*input.Name)
	}
	if input.IsActive != nil {
		agent.IsActive = *input.IsActive
	}
	if err := s.agents.Update(ctx, agent); err != nil {
		return nil, apperrors.MapError(err)
	}
	if s.cache != nil {
		s.cache.InvalidateAgent(ctx, agent.ID)
	}
	return agent, nil
}

// List returns roster entries in registration order.
func (s *AgentService) List(ctx context.Context, limit, offset int) ([]domain.Agent, error) {
	agents, err := s.agents.List(ctx, limit, offset)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return agents, nil
}

// Get returns a single roster entry.
func (s *AgentService) Get(ctx context.Context, id string) (*domain.Agent, error) {
	agent, err := s.agents.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFound("agent", map[string]any{"agent_id": id})
		}
		return nil, apperrors.MapError(err)
	}
	return agent, nil
}
