package domain

import "time"

// AuditAction captures what a log entry records.
type AuditAction string

const (
	AuditTicketCreated AuditAction = "ticket_created"
	AuditStatusChanged AuditAction = "status_changed"
	AuditCommentAdded  AuditAction = "comment_added"
	AuditTicketDeleted AuditAction = "ticket_deleted"
)

// AuditLogEntry is a write-once record of a mutating action on a ticket.
// Entries are never updated or deleted.
type AuditLogEntry struct {
	ID        string
	TicketID  string
	ActorID   string
	ActorRole Role
	Action    AuditAction
	OldValue  map[string]any
	NewValue  map[string]any
	CreatedAt time.Time
}
