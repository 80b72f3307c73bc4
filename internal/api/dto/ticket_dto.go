package dto

import (
	"time"

	"github.com/helpdesk-kit/helpdesk/internal/domain"
)

// CreateTicketRequest payload.
type CreateTicketRequest struct {
	Title       string                `json:"title"`
	Description string                `json:"description"`
	Priority    domain.TicketPriority `json:"priority"`
}

// UpdateStatusRequest payload.
type UpdateStatusRequest struct {
	Status domain.TicketStatus `json:"status"`
}

// CreateCommentRequest payload.
type CreateCommentRequest struct {
	Body     string `json:"body"`
	Internal bool   `json:"internal"`
}

// TicketSummary response.
type TicketSummary struct {
	ID              string                `json:"id"`
	Title           string                `json:"title"`
	Status          domain.TicketStatus   `json:"status"`
	Priority        domain.TicketPriority `json:"priority"`
	CreatedBy       string                `json:"created_by"`
	AssignedAgentID string                `json:"assigned_agent_id"`
	CreatedAt       time.Time             `json:"created_at"`
	UpdatedAt       time.Time             `json:"updated_at"`
}

// TicketPage is the paginated listing envelope.
type TicketPage struct {
	Items    []TicketSummary `json:"items"`
	Total    int             `json:"total"`
	Page     int             `json:"page"`
	PageSize int             `json:"page_size"`
}

// TicketDetailResponse provides full ticket info with denormalized agent data.
type TicketDetailResponse struct {
	ID            string                `json:"id"`
	Title         string                `json:"title"`
	Description   string                `json:"description"`
	Status        domain.TicketStatus   `json:"status"`
	Priority      domain.TicketPriority `json:"priority"`
	CreatedBy     string                `json:"created_by"`
	AssignedAgent *AgentResponse        `json:"assigned_agent,omitempty"`
	Comments      []CommentResponse     `json:"comments"`
	CreatedAt     time.Time             `json:"created_at"`
	UpdatedAt     time.Time             `json:"updated_at"`
	ClosedAt      *time.Time            `json:"closed_at,omitempty"`
}

// CommentResponse represents a thread entry.
type CommentResponse struct {
	ID         string    `json:"id"`
	AuthorID   string    `json:"author_id"`
	AuthorName string    `json:"author_name"`
	Body       string    `json:"body"`
	Internal   bool      `json:"internal"`
	CreatedAt  time.Time `json:"created_at"`
}

// AuditEntryResponse represents one audit trail record.
type AuditEntryResponse struct {
	ID        string             `json:"id"`
	TicketID  string             `json:"ticket_id"`
	ActorID   string             `json:"actor_id"`
	ActorRole domain.Role        `json:"actor_role"`
	Action    domain.AuditAction `json:"action"`
	OldValue  map[string]any     `json:"old_value,omitempty"`
	NewValue  map[string]any     `json:"new_value,omitempty"`
	CreatedAt time.Time          `json:"created_at"`
}
