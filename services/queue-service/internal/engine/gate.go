package engine

import (
	"context"
	"fmt"

	"github.com/eutonafila/shopqueue/services/queue-service/internal/model"
)

// appointmentsFull reports whether the shop holds as many non-terminal appointments as
// its appointment share of the queue allows. Disabled appointments fail with ErrUnavailable.
func (s *Service) appointmentsFull(ctx context.Context, sched model.ShopSchedule) (bool, error) {
	if !sched.AllowAppointments {
		return false, &Error{Kind: ErrUnavailable, ShopID: sched.ShopID, Message: "appointments are disabled for this shop"}
	}
	n, err := s.store.CountActiveTickets(ctx, sched.ShopID, model.TicketAppointment)
	if err != nil {
		return false, fmt.Errorf("count appointment tickets: %w", err)
	}
	return n >= sched.AppointmentCap(), nil
}

// queueFull reports whether the shop already holds maxQueueSize non-terminal tickets.
// A shop without a configured maximum is never full.
func (s *Service) queueFull(ctx context.Context, sched model.ShopSchedule) (bool, error) {
	if sched.MaxQueueSize <= 0 {
		return false, nil
	}
	n, err := s.store.CountActiveTickets(ctx, sched.ShopID, "")
	if err != nil {
		return false, fmt.Errorf("count active tickets: %w", err)
	}
	return n >= sched.MaxQueueSize, nil
}
