package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/helpdesk-kit/helpdesk/internal/domain"
	"github.com/helpdesk-kit/helpdesk/internal/events"
	"github.com/helpdesk-kit/helpdesk/internal/repository"
	apperrors "github.com/helpdesk-kit/helpdesk/pkg/util/errorutil"
)

// AgentCache is a best-effort read-through cache for agent denormalization.
// Implementations must degrade to a miss on any failure.
type AgentCache interface {
	GetAgent(ctx context.Context, id string) (*domain.Agent, bool)
	SetAgent(ctx context.Context, agent *domain.Agent)
	InvalidateAgent(ctx context.Context, id string)
}

// TicketService owns ticket creation, authorized state transitions and
// comment/audit attachment.
type TicketService struct {
	tickets    repository.TicketRepository
	agents     repository.AgentRepository
	audit      repository.AuditLogRepository
	assignment *AssignmentService
	cache      AgentCache
	dispatcher events.Dispatcher
}

// TicketDependencies bundles collaborators for ticket service.
type TicketDependencies struct {
	TicketRepo repository.TicketRepository
	AgentRepo  repository.AgentRepository
	AuditRepo  repository.AuditLogRepository
	Assignment *AssignmentService
	AgentCache AgentCache
	Dispatcher events.Dispatcher
}

// TicketCreateInput describes ticket creation payload.
type TicketCreateInput struct {
	Title       string
	Description string
	Priority    domain.TicketPriority
}

// TicketListInput describes listing filters.
type TicketListInput struct {
	Mine       bool
	Statuses   []domain.TicketStatus
	Priorities []domain.TicketPriority
	SearchTerm *string
	Limit      int
	Offset     int
}

// NewTicketService constructs the service.
func NewTicketService(deps TicketDependencies) *TicketService {
	return &TicketService{
		tickets:    deps.TicketRepo,
		agents:     deps.AgentRepo,
		audit:      deps.AuditRepo,
		assignment: deps.Assignment,
		cache:      deps.AgentCache,
		dispatcher: deps.Dispatcher,
	}
}

// Create assigns an agent via the rotation engine and persists a new open
// ticket. Creation timestamps are set server-side. When no agent is active
// the creation fails with the capacity error from the assignment engine and
// nothing is persisted.
func (s *TicketService) Create(ctx context.Context, creator *domain.User, input TicketCreateInput) (*domain.Ticket, *domain.Agent, error) {
	if creator == nil {
		return nil, nil, apperrors.NewUnauthorized("authentication required")
	}
	agent, rotationIndex, err := s.assignment.SelectNextAgent(ctx)
	if err != nil {
		return nil, nil, err
	}

	ticket := &domain.Ticket{
		Title:           strings.TrimSpace(input.Title),
		Description:     strings.TrimSpace(input.Description),
		Status:          domain.TicketStatusOpen,
		Priority:        input.Priority,
		CreatedBy:       creator.ID,
		AssignedAgentID: agent.ID,
	}
	if ticket.Priority == "" {
		ticket.Priority = domain.TicketPriorityNormal
	}

	// A crash here leaves the cursor advanced with no ticket inserted. That
	// is a skipped rotation slot, accepted instead of a cross-row transaction.
	if err := s.tickets.Create(ctx, ticket); err != nil {
		return nil, nil, apperrors.MapError(err)
	}

	if err := s.recordAudit(ctx, creator, ticket.ID, domain.AuditTicketCreated, nil, map[string]any{
		"status":            ticket.Status,
		"priority":          ticket.Priority,
		"assigned_agent_id": ticket.AssignedAgentID,
	}); err != nil {
		return nil, nil, apperrors.MapError(err)
	}
	s.publishEvent(ctx, creator, events.Event{
		Type:     events.EventTicketCreated,
		TicketID: ticket.ID,
		Payload: events.TicketCreatedPayload{
			Title:           ticket.Title,
			Priority:        ticket.Priority,
			AssignedAgentID: ticket.AssignedAgentID,
		},
	})
	s.publishEvent(ctx, creator, events.Event{
		Type:     events.EventTicketAssigned,
		TicketID: ticket.ID,
		Payload: events.TicketAssignedPayload{
			AgentID:    agent.ID,
			AgentEmail: agent.Email,
			Rotation:   rotationIndex,
		},
	})
	return ticket, agent, nil
}

// List returns a page of tickets plus the total count for the filter.
// Ordering is creation time descending.
func (s *TicketService) List(ctx context.Context, requester *domain.User, input TicketListInput) ([]domain.Ticket, int, error) {
	if requester == nil {
		return nil, 0, apperrors.NewUnauthorized("authentication required")
	}
	filter := repository.TicketFilter{
		Statuses:   input.Statuses,
		Priorities: input.Priorities,
		SearchTerm: input.SearchTerm,
		Limit:      input.Limit,
		Offset:     input.Offset,
	}
	if input.Mine {
		userID := requester.ID
		filter.MineUserID = &userID
		if agentID := s.rosterEntryID(ctx, requester); agentID != "" {
			filter.MineAgentID = &agentID
		}
	}

	tickets, err := s.tickets.ListWithFilter(ctx, filter)
	if err != nil {
		return nil, 0, apperrors.MapError(err)
	}
	total, err := s.tickets.Count(ctx, filter)
	if err != nil {
		return nil, 0, apperrors.MapError(err)
	}
	for i := range tickets {
		tickets[i].Comments = s.visibleComments(requester, &tickets[i])
	}
	return tickets, total, nil
}

// Get fetches a ticket the requester may view, along with its agent for
// display. The agent lookup is best-effort: on failure the ticket is
// returned without the denormalized info rather than failing the request.
func (s *TicketService) Get(ctx context.Context, requester *domain.User, ticketID string) (*domain.Ticket, *domain.Agent, error) {
	ticket, err := s.getTicket(ctx, ticketID)
	if err != nil {
		return nil, nil, err
	}
	if !s.canView(ctx, requester, ticket) {
		return nil, nil, apperrors.NewForbidden("access denied")
	}
	ticket.Comments = s.visibleComments(requester, ticket)
	return ticket, s.lookupAgent(ctx, ticket.AssignedAgentID), nil
}

// UpdateStatus drives the ticket state machine. Closed is terminal; any
// mutation attempt against a closed ticket fails with TicketClosed.
func (s *TicketService) UpdateStatus(ctx context.Context, requester *domain.User, ticketID string, newStatus domain.TicketStatus) (*domain.Ticket, error) {
	ticket, err := s.getTicket(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	if !s.canUpdateStatus(ctx, requester, ticket) {
		return nil, apperrors.NewForbidden("not allowed to update ticket status")
	}
	if !newStatus.Valid() {
		return nil, apperrors.NewValidationError("invalid status", map[string]any{"status": newStatus})
	}
	if ticket.Status == domain.TicketStatusClosed {
		return nil, apperrors.NewTicketClosed(ticket.ID)
	}
	if !domain.CanTransition(ticket.Status, newStatus) {
		return nil, apperrors.NewValidationError("invalid status transition", map[string]any{
			"from": ticket.Status,
			"to":   newStatus,
		})
	}

	oldStatus := ticket.Status
	var closedAt *time.Time
	if newStatus == domain.TicketStatusClosed {
		now := time.Now()
		closedAt = &now
	}
	if err := s.tickets.UpdateStatus(ctx, ticket.ID, newStatus, closedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			// Lost a race against a concurrent close; the row-level guard
			// refused the write.
			return nil, apperrors.NewTicketClosed(ticket.ID)
		}
		return nil, apperrors.MapError(err)
	}
	ticket.Status = newStatus
	ticket.ClosedAt = closedAt

	if err := s.recordAudit(ctx, requester, ticket.ID, domain.AuditStatusChanged,
		map[string]any{"status": oldStatus},
		map[string]any{"status": newStatus}); err != nil {
		return nil, apperrors.MapError(err)
	}
	s.publishEvent(ctx, requester, events.Event{
		Type:     events.EventTicketStatusChanged,
		TicketID: ticket.ID,
		Payload: events.TicketStatusChangedPayload{
			OldStatus: oldStatus,
			NewStatus: newStatus,
		},
	})
	return ticket, nil
}

// AddComment appends a comment with a server timestamp. Viewers may comment
// on closed tickets too; the audit trail needs it.
func (s *TicketService) AddComment(ctx context.Context, requester *domain.User, ticketID, body string, internal bool) (*domain.Comment, error) {
	ticket, err := s.getTicket(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	if !s.canView(ctx, requester, ticket) {
		return nil, apperrors.NewForbidden("access denied")
	}
	if requester.Role == domain.RoleUser {
		// End-users cannot author internal notes.
		internal = false
	}

	comment := domain.Comment{
		ID:         uuid.NewString(),
		AuthorID:   requester.ID,
		AuthorName: requester.Name,
		Body:       strings.TrimSpace(body),
		Internal:   internal,
		CreatedAt:  time.Now().UTC(),
	}
	if err := s.tickets.AppendComment(ctx, ticket.ID, comment); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFound("ticket", map[string]any{"ticket_id": ticketID})
		}
		return nil, apperrors.MapError(err)
	}

	if err := s.recordAudit(ctx, requester, ticket.ID, domain.AuditCommentAdded, nil, map[string]any{
		"comment_id": comment.ID,
		"internal":   comment.Internal,
	}); err != nil {
		return nil, apperrors.MapError(err)
	}
	s.publishEvent(ctx, requester, events.Event{
		Type:     events.EventTicketCommentAdded,
		TicketID: ticket.ID,
		Payload: events.TicketCommentAddedPayload{
			CommentID:   comment.ID,
			Internal:    comment.Internal,
			BodyPreview: stringPreview(comment.Body, 120),
		},
	})
	return &comment, nil
}

// Delete removes a ticket. Administrators only.
func (s *TicketService) Delete(ctx context.Context, requester *domain.User, ticketID string) error {
	if requester == nil || requester.Role != domain.RoleAdmin {
		return apperrors.NewForbidden("administrator required")
	}
	ticket, err := s.getTicket(ctx, ticketID)
	if err != nil {
		return err
	}
	if err := s.tickets.Delete(ctx, ticket.ID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return apperrors.NewNotFound("ticket", map[string]any{"ticket_id": ticketID})
		}
		return apperrors.MapError(err)
	}

	if err := s.recordAudit(ctx, requester, ticket.ID, domain.AuditTicketDeleted,
		map[string]any{"title": ticket.Title, "status": ticket.Status}, nil); err != nil {
		return apperrors.MapError(err)
	}
	s.publishEvent(ctx, requester, events.Event{
		Type:     events.EventTicketDeleted,
		TicketID: ticket.ID,
		Payload:  events.TicketDeletedPayload{Title: ticket.Title},
	})
	return nil
}

// ListAudit returns the audit trail for a ticket. Administrators only.
func (s *TicketService) ListAudit(ctx context.Context, requester *domain.User, ticketID string, limit, offset int) ([]domain.AuditLogEntry, error) {
	if requester == nil || requester.Role != domain.RoleAdmin {
		return nil, apperrors.NewForbidden("administrator required")
	}
	if _, err := s.getTicket(ctx, ticketID); err != nil {
		return nil, err
	}
	entries, err := s.audit.ListByTicket(ctx, ticketID, limit, offset)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return entries, nil
}

func (s *TicketService) getTicket(ctx context.Context, ticketID string) (*domain.Ticket, error) {
	ticket, err := s.tickets.GetByID(ctx, ticketID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFound("ticket", map[string]any{"ticket_id": ticketID})
		}
		return nil, apperrors.MapError(err)
	}
	return ticket, nil
}

// canView: creator, assigned agent, or administrator.
func (s *TicketService) canView(ctx context.Context, user *domain.User, ticket *domain.Ticket) bool {
	if user == nil {
		return false
	}
	if user.Role == domain.RoleAdmin {
		return true
	}
	if ticket.CreatedBy == user.ID {
		return true
	}
	if user.Role == domain.RoleAgent {
		if agentID := s.rosterEntryID(ctx, user); agentID != "" && agentID == ticket.AssignedAgentID {
			return true
		}
	}
	return false
}

// canUpdateStatus: administrator, creator, or the assigned agent. Applied
// uniformly across every status mutation path.
func (s *TicketService) canUpdateStatus(ctx context.Context, user *domain.User, ticket *domain.Ticket) bool {
	return s.canView(ctx, user, ticket)
}

// rosterEntryID maps an account to its roster entry by email, or "" when the
// account is not on the roster.
func (s *TicketService) rosterEntryID(ctx context.Context, user *domain.User) string {
	agent, err := s.agents.GetByEmail(ctx, user.Email)
	if err != nil {
		return ""
	}
	return agent.ID
}

// visibleComments hides internal notes from end-users.
func (s *TicketService) visibleComments(user *domain.User, ticket *domain.Ticket) []domain.Comment {
	if user.Role != domain.RoleUser {
		return ticket.Comments
	}
	filtered := make([]domain.Comment, 0, len(ticket.Comments))
	for _, comment := range ticket.Comments {
		if comment.Internal {
			continue
		}
		filtered = append(filtered, comment)
	}
	return filtered
}

func (s *TicketService) lookupAgent(ctx context.Context, agentID string) *domain.Agent {
	if s.cache != nil {
		if agent, ok := s.cache.GetAgent(ctx, agentID); ok {
			return agent
		}
	}
	agent, err := s.agents.GetByID(ctx, agentID)
	if err != nil {
		return nil
	}
	if s.cache != nil {
		s.cache.SetAgent(ctx, agent)
	}
	return agent
}

func (s *TicketService) recordAudit(ctx context.Context, actor *domain.User, ticketID string, action domain.AuditAction, oldValue, newValue map[string]any) error {
	if s.audit == nil {
		return nil
	}
	return s.audit.Create(ctx, &domain.AuditLogEntry{
		TicketID:  ticketID,
		ActorID:   actor.ID,
		ActorRole: actor.Role,
		Action:    action,
		OldValue:  oldValue,
		NewValue:  newValue,
	})
}

func (s *TicketService) publishEvent(ctx context.Context, actor *domain.User, event events.Event) {
	if s.dispatcher == nil {
		return
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	event.Actor = events.Actor{UserID: actor.ID, Role: actor.Role}
	_ = s.dispatcher.Publish(ctx, event)
}

func stringPreview(body string, max int) string {
	body = strings.TrimSpace(body)
	if len(body) <= max {
		return body
	}
	if max <= 3 {
		return body[:max]
	}
	return body[:max-3] + "..."
}
