package engine

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/eutonafila/shopqueue/services/queue-service/internal/model"
)

type memStore struct {
	mu             sync.Mutex
	schedules      map[string]model.ShopSchedule
	servers        map[string][]model.Server
	services       map[string]model.Service
	tickets        map[string]*model.Ticket
	positionWrites int
}

func newMemStore() *memStore {
	return &memStore{
		schedules: map[string]model.ShopSchedule{},
		servers:   map[string][]model.Server{},
		services:  map[string]model.Service{},
		tickets:   map[string]*model.Ticket{},
	}
}

func (m *memStore) add(t model.Ticket) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := t
	m.tickets[t.ID] = &cp
}

func (m *memStore) ticket(id string) model.Ticket {
	m.mu.Lock()
	defer m.mu.Unlock()
	return *m.tickets[id]
}

func (m *memStore) writes() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.positionWrites
}

func (m *memStore) GetShopSchedule(_ context.Context, shopID string) (model.ShopSchedule, error) {
	s, ok := m.schedules[shopID]
	if !ok {
		return model.ShopSchedule{}, model.ErrNotFound
	}
	return s, nil
}

func (m *memStore) ListServers(_ context.Context, shopID string) ([]model.Server, error) {
	return append([]model.Server(nil), m.servers[shopID]...), nil
}

func (m *memStore) GetService(_ context.Context, shopID, serviceID string) (model.Service, error) {
	svc, ok := m.services[serviceID]
	if !ok || svc.ShopID != shopID {
		return model.Service{}, model.ErrNotFound
	}
	return svc, nil
}

func (m *memStore) ListServices(_ context.Context, shopID string) ([]model.Service, error) {
	var out []model.Service
	for _, svc := range m.services {
		if svc.ShopID == shopID {
			out = append(out, svc)
		}
	}
	return out, nil
}

func (m *memStore) filter(keep func(model.Ticket) bool) []model.Ticket {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Ticket
	for _, t := range m.tickets {
		if keep(*t) {
			out = append(out, *t)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func (m *memStore) ListWaitingTickets(_ context.Context, shopID string) ([]model.Ticket, error) {
	return m.filter(func(t model.Ticket) bool {
		return t.ShopID == shopID && t.Status == model.StatusWaiting
	}), nil
}

func (m *memStore) ListInProgressTickets(_ context.Context, shopID string) ([]model.Ticket, error) {
	return m.filter(func(t model.Ticket) bool {
		return t.ShopID == shopID && t.Status == model.StatusInProgress
	}), nil
}

func (m *memStore) ListAppointmentTicketsForDay(_ context.Context, shopID string, start, end time.Time) ([]model.Ticket, error) {
	return m.filter(func(t model.Ticket) bool {
		return t.ShopID == shopID && t.Type == model.TicketAppointment && !t.Status.Terminal() &&
			t.ScheduledTime != nil && !t.ScheduledTime.Before(start) && t.ScheduledTime.Before(end)
	}), nil
}

func (m *memStore) CountActiveTickets(_ context.Context, shopID string, typ model.TicketType) (int, error) {
	return len(m.filter(func(t model.Ticket) bool {
		return t.ShopID == shopID && !t.Status.Terminal() && (typ == "" || t.Type == typ)
	})), nil
}

func (m *memStore) GetTicket(_ context.Context, ticketID string) (model.Ticket, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tickets[ticketID]
	if !ok {
		return model.Ticket{}, model.ErrNotFound
	}
	return *t, nil
}

func (m *memStore) CreateTicket(_ context.Context, t model.Ticket) (model.Ticket, error) {
	m.add(t)
	return t, nil
}

func (m *memStore) UpdateTicketPosition(_ context.Context, ticketID string, position int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tickets[ticketID]
	if !ok {
		return model.ErrNotFound
	}
	t.Position = position
	m.positionWrites++
	return nil
}

func (m *memStore) UpdateTicketStatus(_ context.Context, ticketID string, from model.TicketStatus, upd model.StatusUpdate) (model.Ticket, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tickets[ticketID]
	if !ok {
		return model.Ticket{}, model.ErrNotFound
	}
	if t.Status != from {
		return model.Ticket{}, model.ErrStaleState
	}
	t.Status = upd.Status
	t.AssignedServerID = upd.AssignedServerID
	if upd.StartedAt != nil {
		t.StartedAt = upd.StartedAt
	}
	if upd.CompletedAt != nil {
		t.CompletedAt = upd.CompletedAt
	}
	t.Position = upd.Position
	return *t, nil
}
