package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/eutonafila/shopqueue/services/queue-service/internal/model"
	"go.opentelemetry.io/otel/attribute"
)

// transitionMap lists, per target status, the statuses a ticket may move from.
var transitionMap = map[model.TicketStatus][]model.TicketStatus{
	model.StatusWaiting:    {model.StatusPending},
	model.StatusInProgress: {model.StatusWaiting},
	model.StatusCompleted:  {model.StatusInProgress},
	model.StatusCancelled:  {model.StatusPending, model.StatusWaiting, model.StatusInProgress},
}

func ValidTransition(from, to model.TicketStatus) bool {
	for _, status := range transitionMap[to] {
		if status == from {
			return true
		}
	}
	return false
}

type TransitionRequest struct {
	TicketID         string
	Status           model.TicketStatus
	AssignedServerID string
}

// TransitionTicketStatus moves a ticket along its lifecycle and renumbers the shop queue.
func (s *Service) TransitionTicketStatus(ctx context.Context, req TransitionRequest) (model.Ticket, error) {
	req.TicketID = strings.TrimSpace(req.TicketID)
	req.AssignedServerID = strings.TrimSpace(req.AssignedServerID)
	if req.TicketID == "" {
		return model.Ticket{}, invalid("", "", "ticket_id", "ticket_id is required")
	}
	if !req.Status.Valid() {
		return model.Ticket{}, invalid("", req.TicketID, "status", fmt.Sprintf("unknown status %q", req.Status))
	}

	t, err := s.getTicket(ctx, req.TicketID)
	if err != nil {
		return model.Ticket{}, err
	}
	ctx, span := s.startSpan(ctx, "engine.TransitionTicketStatus", t.ShopID)
	defer span.End()
	span.SetAttributes(
		attribute.String("ticket.id", t.ID),
		attribute.String("ticket.from", string(t.Status)),
		attribute.String("ticket.to", string(req.Status)),
	)

	if !ValidTransition(t.Status, req.Status) {
		return model.Ticket{}, invalid(t.ShopID, t.ID, "status",
			fmt.Sprintf("invalid transition from %s to %s", t.Status, req.Status))
	}

	now := s.now().UTC()
	upd := model.StatusUpdate{Status: req.Status, AssignedServerID: t.AssignedServerID}
	switch req.Status {
	case model.StatusInProgress:
		serverID := req.AssignedServerID
		if serverID == "" {
			serverID = t.AssignedServerID
		}
		if serverID == "" {
			return model.Ticket{}, invalid(t.ShopID, t.ID, "assigned_server_id", "assigned_server_id is required to start service")
		}
		if err := s.requireActiveServer(ctx, t, serverID); err != nil {
			return model.Ticket{}, err
		}
		upd.AssignedServerID = serverID
		upd.StartedAt = &now
	case model.StatusCompleted:
		upd.CompletedAt = &now
	}

	updated, err := s.store.UpdateTicketStatus(ctx, t.ID, t.Status, upd)
	if err != nil {
		switch {
		case errors.Is(err, model.ErrNotFound):
			return model.Ticket{}, notFound(t.ShopID, t.ID, "ticket_id", "ticket does not exist")
		case errors.Is(err, model.ErrStaleState):
			return model.Ticket{}, invalid(t.ShopID, t.ID, "status", "ticket status changed concurrently, reload and retry")
		}
		return model.Ticket{}, fmt.Errorf("update ticket status: %w", err)
	}

	return s.settle(ctx, span, t.ShopID, updated), nil
}

func (s *Service) requireActiveServer(ctx context.Context, t model.Ticket, serverID string) error {
	servers, err := s.EligibleServers(ctx, t.ShopID, false)
	if err != nil {
		return err
	}
	for _, srv := range servers {
		if srv.ID == serverID {
			return nil
		}
	}
	return invalid(t.ShopID, t.ID, "assigned_server_id", "server is not an active server of this shop")
}

func (s *Service) getTicket(ctx context.Context, ticketID string) (model.Ticket, error) {
	t, err := s.store.GetTicket(ctx, ticketID)
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			return model.Ticket{}, notFound("", ticketID, "ticket_id", "ticket does not exist")
		}
		return model.Ticket{}, fmt.Errorf("get ticket: %w", err)
	}
	return t, nil
}
