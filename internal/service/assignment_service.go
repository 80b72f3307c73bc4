package service

import (
	"context"

	"github.com/helpdesk-kit/helpdesk/internal/domain"
	"github.com/helpdesk-kit/helpdesk/internal/observability"
	"github.com/helpdesk-kit/helpdesk/internal/repository"
	apperrors "github.com/helpdesk-kit/helpdesk/pkg/util/errorutil"
)

// AssignmentService distributes new tickets across the active agent roster
// in strict round-robin order.
type AssignmentService struct {
	agents   repository.AgentRepository
	rotation repository.RotationRepository
	metrics  *observability.Metrics
}

// AssignmentDependencies bundles repositories.
type AssignmentDependencies struct {
	AgentRepo    repository.AgentRepository
	RotationRepo repository.RotationRepository
	Metrics      *observability.Metrics
}

// NewAssignmentService creates the service.
func NewAssignmentService(deps AssignmentDependencies) *AssignmentService {
	return &AssignmentService{
		agents:   deps.AgentRepo,
		rotation: deps.RotationRepo,
		metrics:  deps.Metrics,
	}
}

// SelectNextAgent returns the agent for the next ticket plus the rotation
// index it was chosen at.
//
// The roster is fetched in registration order and the cursor is advanced
// modulo the roster size in a single atomic statement, so two concurrent
// creations can never observe the same index. When the roster shrank since
// the previous assignment the modulo keeps the index in bounds; the rotation
// may skip or repeat an agent relative to a fixed history, which is accepted.
func (s *AssignmentService) SelectNextAgent(ctx context.Context) (*domain.Agent, int, error) {
	roster, err := s.agents.ListActive(ctx)
	if err != nil {
		return nil, 0, apperrors.MapError(err)
	}
	if len(roster) == 0 {
		// The cursor must not move when nobody can be assigned.
		return nil, 0, apperrors.NewAssignmentUnavailable()
	}

	index, err := s.rotation.Advance(ctx, len(roster))
	if err != nil {
		return nil, 0, apperrors.MapError(err)
	}
	agent := roster[index]
	s.metrics.RecordAssignment(agent.Email)
	return &agent, index, nil
}
