package service

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/helpdesk-kit/helpdesk/internal/domain"
	"github.com/helpdesk-kit/helpdesk/internal/events"
	"github.com/helpdesk-kit/helpdesk/internal/repository"
)

// fakeAgentRepo is an in-memory roster keeping registration order.
type fakeAgentRepo struct {
	mu     sync.Mutex
	agents []domain.Agent
}

func (f *fakeAgentRepo) Create(_ context.Context, agent *domain.Agent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	agent.ID = uuid.NewString()
	agent.CreatedAt = time.Now().Add(time.Duration(len(f.agents)) * time.Millisecond)
	agent.UpdatedAt = agent.CreatedAt
	f.agents = append(f.agents, *agent)
	return nil
}

func (f *fakeAgentRepo) Update(_ context.Context, agent *domain.Agent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.agents {
		if f.agents[i].ID == agent.ID {
			f.agents[i] = *agent
			return nil
		}
	}
	return pgx.ErrNoRows
}

func (f *fakeAgentRepo) GetByID(_ context.Context, id string) (*domain.Agent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.agents {
		if f.agents[i].ID == id {
			agent := f.agents[i]
			return &agent, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (f *fakeAgentRepo) GetByEmail(_ context.Context, email string) (*domain.Agent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.agents {
		if f.agents[i].Email == email {
			agent := f.agents[i]
			return &agent, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (f *fakeAgentRepo) ListActive(_ context.Context) ([]domain.Agent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var active []domain.Agent
	for _, agent := range f.agents {
		if agent.IsActive {
			active = append(active, agent)
		}
	}
	return active, nil
}

func (f *fakeAgentRepo) List(_ context.Context, limit, offset int) ([]domain.Agent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if offset >= len(f.agents) {
		return nil, nil
	}
	end := len(f.agents)
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}
	return append([]domain.Agent{}, f.agents[offset:end]...), nil
}

// fakeRotationRepo advances its cursor under a mutex, mirroring the
// single-statement atomicity of the real implementation.
type fakeRotationRepo struct {
	mu       sync.Mutex
	cursor   int
	hasValue bool
	advances int
}

func (f *fakeRotationRepo) Advance(_ context.Context, rosterSize int) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.advances++
	if !f.hasValue {
		f.hasValue = true
		f.cursor = 0
		return 0, nil
	}
	f.cursor = (f.cursor + 1) % rosterSize
	return f.cursor, nil
}

func (f *fakeRotationRepo) Get(_ context.Context) (*domain.RotationCursor, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.hasValue {
		return nil, pgx.ErrNoRows
	}
	return &domain.RotationCursor{LastIndex: f.cursor}, nil
}

// fakeTicketRepo stores tickets in memory with a deterministic creation order.
type fakeTicketRepo struct {
	mu      sync.Mutex
	tickets map[string]*domain.Ticket
	seq     int
}

func newFakeTicketRepo() *fakeTicketRepo {
	return &fakeTicketRepo{tickets: make(map[string]*domain.Ticket)}
}

func (f *fakeTicketRepo) Create(_ context.Context, ticket *domain.Ticket) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seq++
	ticket.ID = uuid.NewString()
	ticket.CreatedAt = time.Unix(int64(f.seq), 0).UTC()
	ticket.UpdatedAt = ticket.CreatedAt
	clone := *ticket
	f.tickets[ticket.ID] = &clone
	return nil
}

func (f *fakeTicketRepo) GetByID(_ context.Context, id string) (*domain.Ticket, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ticket, ok := f.tickets[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	clone := *ticket
	clone.Comments = append([]domain.Comment{}, ticket.Comments...)
	return &clone, nil
}

func (f *fakeTicketRepo) UpdateStatus(_ context.Context, id string, status domain.TicketStatus, closedAt *time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	ticket, ok := f.tickets[id]
	if !ok || ticket.Status == domain.TicketStatusClosed {
		return pgx.ErrNoRows
	}
	ticket.Status = status
	ticket.ClosedAt = closedAt
	ticket.UpdatedAt = time.Now()
	return nil
}

func (f *fakeTicketRepo) AppendComment(_ context.Context, id string, comment domain.Comment) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	ticket, ok := f.tickets[id]
	if !ok {
		return pgx.ErrNoRows
	}
	ticket.Comments = append(ticket.Comments, comment)
	ticket.UpdatedAt = time.Now()
	return nil
}

func (f *fakeTicketRepo) Delete(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.tickets[id]; !ok {
		return pgx.ErrNoRows
	}
	delete(f.tickets, id)
	return nil
}

func (f *fakeTicketRepo) matches(ticket *domain.Ticket, filter repository.TicketFilter) bool {
	if filter.MineUserID != nil {
		mine := ticket.CreatedBy == *filter.MineUserID
		if !mine && filter.MineAgentID != nil {
			mine = ticket.AssignedAgentID == *filter.MineAgentID
		}
		if !mine {
			return false
		}
	}
	if len(filter.Statuses) > 0 {
		found := false
		for _, status := range filter.Statuses {
			if ticket.Status == status {
				found = true
			}
		}
		if !found {
			return false
		}
	}
	if len(filter.Priorities) > 0 {
		found := false
		for _, pr := range filter.Priorities {
			if ticket.Priority == pr {
				found = true
			}
		}
		if !found {
			return false
		}
	}
	if filter.SearchTerm != nil && strings.TrimSpace(*filter.SearchTerm) != "" {
		needle := strings.ToLower(strings.TrimSpace(*filter.SearchTerm))
		if !strings.Contains(strings.ToLower(ticket.Title), needle) &&
			!strings.Contains(strings.ToLower(ticket.Description), needle) {
			return false
		}
	}
	return true
}

func (f *fakeTicketRepo) ListWithFilter(_ context.Context, filter repository.TicketFilter) ([]domain.Ticket, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var matched []domain.Ticket
	for _, ticket := range f.tickets {
		if f.matches(ticket, filter) {
			matched = append(matched, *ticket)
		}
	}
	sort.Slice(matched, func(i, j int) bool {
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}
	if offset >= len(matched) {
		return nil, nil
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = 20
	}
	end := offset + limit
	if end > len(matched) {
		end = len(matched)
	}
	return matched[offset:end], nil
}

func (f *fakeTicketRepo) Count(_ context.Context, filter repository.TicketFilter) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	total := 0
	for _, ticket := range f.tickets {
		if f.matches(ticket, filter) {
			total++
		}
	}
	return total, nil
}

func ticketCountAll() repository.TicketFilter {
	return repository.TicketFilter{}
}

// fakeAuditRepo collects entries append-only.
type fakeAuditRepo struct {
	mu      sync.Mutex
	entries []domain.AuditLogEntry
}

func (f *fakeAuditRepo) Create(_ context.Context, entry *domain.AuditLogEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	entry.ID = uuid.NewString()
	entry.CreatedAt = time.Now()
	f.entries = append(f.entries, *entry)
	return nil
}

func (f *fakeAuditRepo) ListByTicket(_ context.Context, ticketID string, limit, offset int) ([]domain.AuditLogEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var result []domain.AuditLogEntry
	for _, entry := range f.entries {
		if entry.TicketID == ticketID {
			result = append(result, entry)
		}
	}
	return result, nil
}

func (f *fakeAuditRepo) byAction(action domain.AuditAction) []domain.AuditLogEntry {
	f.mu.Lock()
	defer f.mu.Unlock()
	var result []domain.AuditLogEntry
	for _, entry := range f.entries {
		if entry.Action == action {
			result = append(result, entry)
		}
	}
	return result
}

// recordingDispatcher captures published events.
type recordingDispatcher struct {
	mu     sync.Mutex
	events []events.Event
}

func (d *recordingDispatcher) Publish(_ context.Context, event events.Event) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.events = append(d.events, event)
	return nil
}

func (d *recordingDispatcher) Subscribe(events.EventType, events.EventHandler) {}

func (d *recordingDispatcher) byType(eventType events.EventType) []events.Event {
	d.mu.Lock()
	defer d.mu.Unlock()
	var result []events.Event
	for _, event := range d.events {
		if event.Type == eventType {
			result = append(result, event)
		}
	}
	return result
}
