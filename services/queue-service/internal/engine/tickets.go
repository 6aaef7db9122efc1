package engine

import (
	"context"
	"fmt"
	"strings"

	"github.com/eutonafila/shopqueue/services/queue-service/internal/availability"
	"github.com/eutonafila/shopqueue/services/queue-service/internal/model"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
)

type JoinRequest struct {
	ShopID       string
	ServiceID    string
	CustomerName string
}

// JoinQueue adds a walk-in customer to the end of the live queue.
func (s *Service) JoinQueue(ctx context.Context, req JoinRequest) (model.Ticket, error) {
	ctx, span := s.startSpan(ctx, "engine.JoinQueue", req.ShopID)
	defer span.End()

	sched, err := s.schedule(ctx, strings.TrimSpace(req.ShopID))
	if err != nil {
		return model.Ticket{}, err
	}
	svc, err := s.activeService(ctx, sched.ShopID, strings.TrimSpace(req.ServiceID))
	if err != nil {
		return model.Ticket{}, err
	}
	full, err := s.queueFull(ctx, sched)
	if err != nil {
		return model.Ticket{}, err
	}
	if full {
		return model.Ticket{}, &Error{Kind: ErrCapacityExceeded, ShopID: sched.ShopID, Message: "queue is full"}
	}

	wait, err := s.QueueClearMinutes(ctx, sched.ShopID)
	if err != nil {
		return model.Ticket{}, err
	}
	created, err := s.store.CreateTicket(ctx, model.Ticket{
		ID:                   uuid.NewString(),
		ShopID:               sched.ShopID,
		ServiceID:            svc.ID,
		CustomerName:         strings.TrimSpace(req.CustomerName),
		Type:                 model.TicketWalkIn,
		Status:               model.StatusWaiting,
		CreatedAt:            s.now().UTC(),
		EstimatedWaitMinutes: &wait,
	})
	if err != nil {
		return model.Ticket{}, fmt.Errorf("create ticket: %w", err)
	}
	span.SetAttributes(attribute.String("ticket.id", created.ID))

	return s.settle(ctx, span, sched.ShopID, created), nil
}

type BookRequest struct {
	ShopID       string
	ServiceID    string
	Date         string
	Time         string
	ServerID     string
	CustomerName string
}

// BookAppointment reserves a listed, available slot. Unlike slot listing, a shop at its
// appointment cap rejects the booking with ErrCapacityExceeded.
func (s *Service) BookAppointment(ctx context.Context, req BookRequest) (model.Ticket, error) {
	ctx, span := s.startSpan(ctx, "engine.BookAppointment", req.ShopID)
	defer span.End()

	sched, err := s.schedule(ctx, strings.TrimSpace(req.ShopID))
	if err != nil {
		return model.Ticket{}, err
	}
	full, err := s.appointmentsFull(ctx, sched)
	if err != nil {
		return model.Ticket{}, err
	}
	if full {
		return model.Ticket{}, &Error{Kind: ErrCapacityExceeded, ShopID: sched.ShopID, Message: "appointment capacity reached"}
	}
	minute, err := availability.ParseClock(req.Time)
	if err != nil {
		return model.Ticket{}, invalid(sched.ShopID, "", "time", "time must be HH:MM")
	}

	plan, err := s.computeDay(ctx, sched, SlotQuery{
		ShopID:    sched.ShopID,
		Date:      req.Date,
		ServiceID: req.ServiceID,
		ServerID:  req.ServerID,
	})
	if err != nil {
		return model.Ticket{}, err
	}
	bookable := false
	for _, c := range plan.slots {
		if c.window.Start == minute {
			bookable = c.available
			break
		}
	}
	if !bookable {
		return model.Ticket{}, invalid(sched.ShopID, "", "time", "requested slot is not available")
	}

	scheduled := availability.At(plan.day, minute).UTC()
	created, err := s.store.CreateTicket(ctx, model.Ticket{
		ID:                uuid.NewString(),
		ShopID:            sched.ShopID,
		ServiceID:         strings.TrimSpace(req.ServiceID),
		CustomerName:      strings.TrimSpace(req.CustomerName),
		Type:              model.TicketAppointment,
		Status:            model.StatusPending,
		PreferredServerID: strings.TrimSpace(req.ServerID),
		CreatedAt:         s.now().UTC(),
		ScheduledTime:     &scheduled,
	})
	if err != nil {
		return model.Ticket{}, fmt.Errorf("create ticket: %w", err)
	}
	span.SetAttributes(attribute.String("ticket.id", created.ID))
	return created, nil
}
