// Package engine implements queue scheduling for a shop: wait estimates, queue positions,
// ticket lifecycle and appointment slot availability.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/eutonafila/shopqueue/libs/keylock"
	"github.com/eutonafila/shopqueue/services/queue-service/internal/model"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Store is the data access the engine depends on. Lookups for missing rows return
// model.ErrNotFound.
type Store interface {
	GetShopSchedule(ctx context.Context, shopID string) (model.ShopSchedule, error)
	ListServers(ctx context.Context, shopID string) ([]model.Server, error)
	GetService(ctx context.Context, shopID, serviceID string) (model.Service, error)
	ListServices(ctx context.Context, shopID string) ([]model.Service, error)

	// ListWaitingTickets returns waiting tickets ordered by created_at.
	ListWaitingTickets(ctx context.Context, shopID string) ([]model.Ticket, error)
	ListInProgressTickets(ctx context.Context, shopID string) ([]model.Ticket, error)
	// ListAppointmentTicketsForDay returns non-terminal appointments scheduled in [start, end).
	ListAppointmentTicketsForDay(ctx context.Context, shopID string, start, end time.Time) ([]model.Ticket, error)
	// CountActiveTickets counts non-terminal tickets. An empty type counts every type.
	CountActiveTickets(ctx context.Context, shopID string, typ model.TicketType) (int, error)

	GetTicket(ctx context.Context, ticketID string) (model.Ticket, error)
	CreateTicket(ctx context.Context, t model.Ticket) (model.Ticket, error)
	UpdateTicketPosition(ctx context.Context, ticketID string, position int) error
	// UpdateTicketStatus applies upd only while the ticket is still in status from.
	// It returns model.ErrStaleState otherwise.
	UpdateTicketStatus(ctx context.Context, ticketID string, from model.TicketStatus, upd model.StatusUpdate) (model.Ticket, error)
}

type Service struct {
	store  Store
	logger *slog.Logger
	locks  keylock.Locker
	now    func() time.Time
	tracer trace.Tracer
}

type Option func(*Service)

// WithLocker serializes position recalculation per shop through l.
func WithLocker(l keylock.Locker) Option {
	return func(s *Service) {
		if l != nil {
			s.locks = l
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

func New(store Store, logger *slog.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Service{
		store:  store,
		logger: logger,
		locks:  keylock.NewLocal(),
		now:    time.Now,
		tracer: otel.Tracer("queue-service/engine"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) startSpan(ctx context.Context, name, shopID string) (context.Context, trace.Span) {
	return s.tracer.Start(ctx, name, trace.WithAttributes(attribute.String("shop.id", shopID)))
}

func (s *Service) schedule(ctx context.Context, shopID string) (model.ShopSchedule, error) {
	if shopID == "" {
		return model.ShopSchedule{}, invalid("", "", "shop_id", "shop_id is required")
	}
	sched, err := s.store.GetShopSchedule(ctx, shopID)
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			return model.ShopSchedule{}, notFound(shopID, "", "shop_id", "shop does not exist")
		}
		return model.ShopSchedule{}, fmt.Errorf("get shop schedule: %w", err)
	}
	return sched.WithDefaults(), nil
}

// activeService resolves a service of the shop that can still be booked.
func (s *Service) activeService(ctx context.Context, shopID, serviceID string) (model.Service, error) {
	if serviceID == "" {
		return model.Service{}, invalid(shopID, "", "service_id", "service_id is required")
	}
	svc, err := s.store.GetService(ctx, shopID, serviceID)
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			return model.Service{}, notFound(shopID, "", "service_id", "service does not exist")
		}
		return model.Service{}, fmt.Errorf("get service: %w", err)
	}
	if svc.ShopID != "" && svc.ShopID != shopID {
		return model.Service{}, notFound(shopID, "", "service_id", "service does not exist")
	}
	if !svc.IsActive {
		return model.Service{}, invalid(shopID, "", "service_id", "service is not active")
	}
	return svc, nil
}
