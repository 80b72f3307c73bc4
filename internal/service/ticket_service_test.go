package service

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"

	"github.com/helpdesk-kit/helpdesk/internal/domain"
	"github.com/helpdesk-kit/helpdesk/internal/events"
	"github.com/helpdesk-kit/helpdesk/internal/observability"
	apperrors "github.com/helpdesk-kit/helpdesk/pkg/util/errorutil"
)

type ticketFixture struct {
	svc        *TicketService
	agentRepo  *fakeAgentRepo
	ticketRepo *fakeTicketRepo
	auditRepo  *fakeAuditRepo
	rotation   *fakeRotationRepo
	dispatcher *recordingDispatcher
}

func newTicketFixture(t *testing.T, agentNames ...string) *ticketFixture {
	t.Helper()
	agentRepo := &fakeAgentRepo{}
	for _, name := range agentNames {
		agent := &domain.Agent{Name: name, Email: name + "@helpdesk.test", IsActive: true}
		if err := agentRepo.Create(context.Background(), agent); err != nil {
			t.Fatalf("seed agent %s: %v", name, err)
		}
	}
	rotation := &fakeRotationRepo{}
	ticketRepo := newFakeTicketRepo()
	auditRepo := &fakeAuditRepo{}
	dispatcher := &recordingDispatcher{}
	assignment := NewAssignmentService(AssignmentDependencies{
		AgentRepo:    agentRepo,
		RotationRepo: rotation,
		Metrics:      observability.NewMetrics(),
	})
	svc := NewTicketService(TicketDependencies{
		TicketRepo: ticketRepo,
		AgentRepo:  agentRepo,
		AuditRepo:  auditRepo,
		Assignment: assignment,
		Dispatcher: dispatcher,
	})
	return &ticketFixture{
		svc:        svc,
		agentRepo:  agentRepo,
		ticketRepo: ticketRepo,
		auditRepo:  auditRepo,
		rotation:   rotation,
		dispatcher: dispatcher,
	}
}

func testUser(role domain.Role) *domain.User {
	return &domain.User{
		ID:    uuid.NewString(),
		Name:  "test " + string(role),
		Email: uuid.NewString() + "@helpdesk.test",
		Role:  role,
	}
}

func assertErrorCode(t *testing.T, err error, code string) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected %s error, got nil", code)
	}
	var domainErr *apperrors.DomainError
	if !errors.As(err, &domainErr) {
		t.Fatalf("expected DomainError, got %v", err)
	}
	if domainErr.Code != code {
		t.Fatalf("got error code %s, want %s", domainErr.Code, code)
	}
}

func TestCreateAssignsRoundRobin(t *testing.T) {
	fx := newTicketFixture(t, "alice", "bob")
	creator := testUser(domain.RoleUser)

	want := []string{"alice", "bob", "alice", "bob"}
	for i, name := range want {
		ticket, agent, err := fx.svc.Create(context.Background(), creator, TicketCreateInput{
			Title:       "printer on fire",
			Description: "third floor printer is smoking",
		})
		if err != nil {
			t.Fatalf("create %d: %v", i, err)
		}
		if agent.Name != name {
			t.Errorf("create %d: assigned %s, want %s", i, agent.Name, name)
		}
		if ticket.Status != domain.TicketStatusOpen {
			t.Errorf("create %d: status %s, want open", i, ticket.Status)
		}
		if ticket.Priority != domain.TicketPriorityNormal {
			t.Errorf("create %d: priority %s, want normal default", i, ticket.Priority)
		}
		if ticket.AssignedAgentID != agent.ID {
			t.Errorf("create %d: assigned agent id mismatch", i)
		}
	}

	if got := len(fx.auditRepo.byAction(domain.AuditTicketCreated)); got != 4 {
		t.Errorf("audit ticket_created entries: %d, want 4", got)
	}
	if got := len(fx.dispatcher.byType(events.EventTicketAssigned)); got != 4 {
		t.Errorf("ticket_assigned events: %d, want 4", got)
	}
}

func TestCreateFailsWithoutActiveAgents(t *testing.T) {
	fx := newTicketFixture(t)
	creator := testUser(domain.RoleUser)

	_, _, err := fx.svc.Create(context.Background(), creator, TicketCreateInput{Title: "help"})
	assertErrorCode(t, err, "ASSIGNMENT_UNAVAILABLE")

	if fx.rotation.advances != 0 {
		t.Errorf("cursor advanced %d times with empty roster, want 0", fx.rotation.advances)
	}
	if total, _ := fx.ticketRepo.Count(context.Background(), ticketCountAll()); total != 0 {
		t.Errorf("persisted %d tickets on failed creation, want 0", total)
	}
}

func TestGetRoundTripAndVisibility(t *testing.T) {
	fx := newTicketFixture(t, "alice")
	creator := testUser(domain.RoleUser)

	created, _, err := fx.svc.Create(context.Background(), creator, TicketCreateInput{
		Title:       "  vpn broken  ",
		Description: "cannot connect since monday",
		Priority:    domain.TicketPriorityHigh,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if created.Title != "vpn broken" {
		t.Errorf("title not trimmed: %q", created.Title)
	}

	got, agent, err := fx.svc.Get(context.Background(), creator, created.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.ID != created.ID || got.Title != created.Title || got.Priority != domain.TicketPriorityHigh {
		t.Errorf("round trip mismatch: %+v", got)
	}
	if agent == nil || agent.Name != "alice" {
		t.Errorf("denormalized agent missing, got %+v", agent)
	}

	stranger := testUser(domain.RoleUser)
	_, _, err = fx.svc.Get(context.Background(), stranger, created.ID)
	assertErrorCode(t, err, "FORBIDDEN")

	_, _, err = fx.svc.Get(context.Background(), creator, uuid.NewString())
	assertErrorCode(t, err, "NOT_FOUND")
}

func TestUpdateStatusTransitions(t *testing.T) {
	fx := newTicketFixture(t, "alice")
	creator := testUser(domain.RoleUser)
	ticket, _, err := fx.svc.Create(context.Background(), creator, TicketCreateInput{Title: "laptop dead"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	_, err = fx.svc.UpdateStatus(context.Background(), creator, ticket.ID, domain.TicketStatus("resolved"))
	assertErrorCode(t, err, "INVALID_INPUT")

	_, err = fx.svc.UpdateStatus(context.Background(), creator, ticket.ID, domain.TicketStatusOpen)
	assertErrorCode(t, err, "INVALID_INPUT")

	updated, err := fx.svc.UpdateStatus(context.Background(), creator, ticket.ID, domain.TicketStatusInProgress)
	if err != nil {
		t.Fatalf("open -> in_progress: %v", err)
	}
	if updated.Status != domain.TicketStatusInProgress {
		t.Fatalf("status %s, want in_progress", updated.Status)
	}

	closed, err := fx.svc.UpdateStatus(context.Background(), creator, ticket.ID, domain.TicketStatusClosed)
	if err != nil {
		t.Fatalf("in_progress -> closed: %v", err)
	}
	if closed.ClosedAt == nil {
		t.Error("closed ticket missing closed_at")
	}

	_, err = fx.svc.UpdateStatus(context.Background(), creator, ticket.ID, domain.TicketStatusOpen)
	assertErrorCode(t, err, "TICKET_CLOSED")

	if got := len(fx.auditRepo.byAction(domain.AuditStatusChanged)); got != 2 {
		t.Errorf("audit status_changed entries: %d, want 2", got)
	}
}

func TestUpdateStatusAuthorization(t *testing.T) {
	fx := newTicketFixture(t, "alice")
	creator := testUser(domain.RoleUser)
	ticket, assigned, err := fx.svc.Create(context.Background(), creator, TicketCreateInput{Title: "screen flicker"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	stranger := testUser(domain.RoleUser)
	_, err = fx.svc.UpdateStatus(context.Background(), stranger, ticket.ID, domain.TicketStatusInProgress)
	assertErrorCode(t, err, "FORBIDDEN")

	// The assigned agent authenticates with the account matching its roster email.
	agentUser := &domain.User{
		ID:    uuid.NewString(),
		Name:  assigned.Name,
		Email: assigned.Email,
		Role:  domain.RoleAgent,
	}
	if _, err := fx.svc.UpdateStatus(context.Background(), agentUser, ticket.ID, domain.TicketStatusInProgress); err != nil {
		t.Fatalf("assigned agent update: %v", err)
	}

	admin := testUser(domain.RoleAdmin)
	if _, err := fx.svc.UpdateStatus(context.Background(), admin, ticket.ID, domain.TicketStatusClosed); err != nil {
		t.Fatalf("admin update: %v", err)
	}
}

func TestAddComment(t *testing.T) {
	fx := newTicketFixture(t, "alice")
	creator := testUser(domain.RoleUser)
	ticket, assigned, err := fx.svc.Create(context.Background(), creator, TicketCreateInput{Title: "keyboard sticky"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	// End-users cannot author internal notes even when they ask to.
	comment, err := fx.svc.AddComment(context.Background(), creator, ticket.ID, "  spilled coffee on it  ", true)
	if err != nil {
		t.Fatalf("user comment: %v", err)
	}
	if comment.Internal {
		t.Error("end-user comment stored as internal")
	}
	if comment.Body != "spilled coffee on it" {
		t.Errorf("comment body not trimmed: %q", comment.Body)
	}
	if comment.CreatedAt.IsZero() {
		t.Error("comment missing server timestamp")
	}

	agentUser := &domain.User{
		ID:    uuid.NewString(),
		Name:  assigned.Name,
		Email: assigned.Email,
		Role:  domain.RoleAgent,
	}
	internalNote, err := fx.svc.AddComment(context.Background(), agentUser, ticket.ID, "looks like liquid damage", true)
	if err != nil {
		t.Fatalf("agent internal note: %v", err)
	}
	if !internalNote.Internal {
		t.Error("agent internal note stored as public")
	}

	// Internal notes stay hidden from the end-user view.
	got, _, err := fx.svc.Get(context.Background(), creator, ticket.ID)
	if err != nil {
		t.Fatalf("get as creator: %v", err)
	}
	if len(got.Comments) != 1 {
		t.Fatalf("creator sees %d comments, want 1", len(got.Comments))
	}
	asAgent, _, err := fx.svc.Get(context.Background(), agentUser, ticket.ID)
	if err != nil {
		t.Fatalf("get as agent: %v", err)
	}
	if len(asAgent.Comments) != 2 {
		t.Fatalf("agent sees %d comments, want 2", len(asAgent.Comments))
	}

	// Commenting stays possible after close; the trail must record followups.
	if _, err := fx.svc.UpdateStatus(context.Background(), creator, ticket.ID, domain.TicketStatusClosed); err != nil {
		t.Fatalf("close: %v", err)
	}
	if _, err := fx.svc.AddComment(context.Background(), creator, ticket.ID, "thanks, replaced", false); err != nil {
		t.Fatalf("comment on closed ticket: %v", err)
	}
}

func TestDeleteRequiresAdmin(t *testing.T) {
	fx := newTicketFixture(t, "alice")
	creator := testUser(domain.RoleUser)
	ticket, _, err := fx.svc.Create(context.Background(), creator, TicketCreateInput{Title: "obsolete request"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	err = fx.svc.Delete(context.Background(), creator, ticket.ID)
	assertErrorCode(t, err, "FORBIDDEN")
	if _, _, err := fx.svc.Get(context.Background(), creator, ticket.ID); err != nil {
		t.Fatalf("ticket gone after forbidden delete: %v", err)
	}

	admin := testUser(domain.RoleAdmin)
	if err := fx.svc.Delete(context.Background(), admin, ticket.ID); err != nil {
		t.Fatalf("admin delete: %v", err)
	}
	_, _, err = fx.svc.Get(context.Background(), admin, ticket.ID)
	assertErrorCode(t, err, "NOT_FOUND")

	if got := len(fx.auditRepo.byAction(domain.AuditTicketDeleted)); got != 1 {
		t.Errorf("audit ticket_deleted entries: %d, want 1", got)
	}
}

func TestListFiltersAndPagination(t *testing.T) {
	fx := newTicketFixture(t, "alice")
	first := testUser(domain.RoleUser)
	second := testUser(domain.RoleUser)

	for i := 0; i < 3; i++ {
		if _, _, err := fx.svc.Create(context.Background(), first, TicketCreateInput{Title: "alpha issue"}); err != nil {
			t.Fatalf("seed first user ticket %d: %v", i, err)
		}
	}
	for i := 0; i < 2; i++ {
		if _, _, err := fx.svc.Create(context.Background(), second, TicketCreateInput{Title: "beta issue"}); err != nil {
			t.Fatalf("seed second user ticket %d: %v", i, err)
		}
	}

	admin := testUser(domain.RoleAdmin)
	all, total, err := fx.svc.List(context.Background(), admin, TicketListInput{Limit: 10})
	if err != nil {
		t.Fatalf("list all: %v", err)
	}
	if total != 5 || len(all) != 5 {
		t.Fatalf("list all: total=%d len=%d, want 5/5", total, len(all))
	}
	for i := 1; i < len(all); i++ {
		if all[i].CreatedAt.After(all[i-1].CreatedAt) {
			t.Fatal("list not ordered by creation time descending")
		}
	}

	mine, total, err := fx.svc.List(context.Background(), first, TicketListInput{Mine: true, Limit: 10})
	if err != nil {
		t.Fatalf("list mine: %v", err)
	}
	if total != 3 || len(mine) != 3 {
		t.Fatalf("list mine: total=%d len=%d, want 3/3", total, len(mine))
	}
	for _, ticket := range mine {
		if ticket.CreatedBy != first.ID {
			t.Errorf("mine filter leaked ticket created by %s", ticket.CreatedBy)
		}
	}

	if _, err := fx.svc.UpdateStatus(context.Background(), first, mine[0].ID, domain.TicketStatusClosed); err != nil {
		t.Fatalf("close for status filter: %v", err)
	}
	closed, total, err := fx.svc.List(context.Background(), admin, TicketListInput{
		Statuses: []domain.TicketStatus{domain.TicketStatusClosed},
		Limit:    10,
	})
	if err != nil {
		t.Fatalf("list closed: %v", err)
	}
	if total != 1 || len(closed) != 1 {
		t.Fatalf("list closed: total=%d len=%d, want 1/1", total, len(closed))
	}

	page, total, err := fx.svc.List(context.Background(), admin, TicketListInput{Limit: 2, Offset: 4})
	if err != nil {
		t.Fatalf("list page: %v", err)
	}
	if total != 5 {
		t.Errorf("paged total=%d, want 5", total)
	}
	if len(page) != 1 {
		t.Errorf("last page length=%d, want 1", len(page))
	}

	search := "beta"
	found, total, err := fx.svc.List(context.Background(), admin, TicketListInput{SearchTerm: &search, Limit: 10})
	if err != nil {
		t.Fatalf("list search: %v", err)
	}
	if total != 2 || len(found) != 2 {
		t.Fatalf("list search: total=%d len=%d, want 2/2", total, len(found))
	}
}

func TestListAuditRequiresAdmin(t *testing.T) {
	fx := newTicketFixture(t, "alice")
	creator := testUser(domain.RoleUser)
	ticket, _, err := fx.svc.Create(context.Background(), creator, TicketCreateInput{Title: "audit me"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := fx.svc.UpdateStatus(context.Background(), creator, ticket.ID, domain.TicketStatusClosed); err != nil {
		t.Fatalf("close: %v", err)
	}

	_, err = fx.svc.ListAudit(context.Background(), creator, ticket.ID, 50, 0)
	assertErrorCode(t, err, "FORBIDDEN")

	admin := testUser(domain.RoleAdmin)
	entries, err := fx.svc.ListAudit(context.Background(), admin, ticket.ID, 50, 0)
	if err != nil {
		t.Fatalf("admin audit: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("audit entries: %d, want 2 (created + status change)", len(entries))
	}
	if entries[0].Action != domain.AuditTicketCreated || entries[1].Action != domain.AuditStatusChanged {
		t.Errorf("unexpected audit order: %s, %s", entries[0].Action, entries[1].Action)
	}
}
