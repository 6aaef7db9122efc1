package engine

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/eutonafila/shopqueue/services/queue-service/internal/model"
	"github.com/eutonafila/shopqueue/services/queue-service/internal/waittime"
	"go.opentelemetry.io/otel/attribute"
)

// GetWaitEstimate returns the minutes until a ticket at position can start. A nil result
// means the position is not in the active queue.
func (s *Service) GetWaitEstimate(ctx context.Context, shopID string, position int) (*int, error) {
	if position <= 0 {
		return nil, nil
	}
	ctx, span := s.startSpan(ctx, "engine.GetWaitEstimate", shopID)
	defer span.End()
	span.SetAttributes(attribute.Int("queue.position", position))

	sched, err := s.schedule(ctx, shopID)
	if err != nil {
		return nil, err
	}
	minutes, err := s.liveEstimate(ctx, sched, position-1)
	if err != nil {
		return nil, err
	}
	return &minutes, nil
}

// liveEstimate treats every ticket ahead as one assumed slot and in-progress work as the
// unfinished part of its slot.
func (s *Service) liveEstimate(ctx context.Context, sched model.ShopSchedule, ahead int) (int, error) {
	servers, err := s.workingServers(ctx, sched.ShopID)
	if err != nil {
		return 0, err
	}
	inProgress, err := s.store.ListInProgressTickets(ctx, sched.ShopID)
	if err != nil {
		return 0, fmt.Errorf("list in-progress tickets: %w", err)
	}
	sort.SliceStable(inProgress, func(i, j int) bool {
		return startedAt(inProgress[i]).Before(startedAt(inProgress[j]))
	})

	now := s.now()
	jobs := make([]float64, 0, len(inProgress)+ahead)
	for _, t := range inProgress {
		if t.StartedAt == nil {
			jobs = append(jobs, float64(sched.AssumedSlotMinutes))
			continue
		}
		jobs = append(jobs, waittime.Remaining(sched.AssumedSlotMinutes, *t.StartedAt, now))
	}
	jobs = append(jobs, waittime.Uniform(float64(sched.AssumedSlotMinutes), ahead)...)
	return waittime.Estimate(jobs, servers), nil
}

// QueueClearMinutes is the live estimate for a customer joining behind everyone currently waiting.
func (s *Service) QueueClearMinutes(ctx context.Context, shopID string) (int, error) {
	sched, err := s.schedule(ctx, shopID)
	if err != nil {
		return 0, err
	}
	waiting, err := s.store.ListWaitingTickets(ctx, shopID)
	if err != nil {
		return 0, fmt.Errorf("list waiting tickets: %w", err)
	}
	return s.liveEstimate(ctx, sched, len(waiting))
}

type TicketWait struct {
	Ticket      model.Ticket
	WaitMinutes *int
}

// GetTicketWait resolves a ticket and estimates the wait at its current position.
func (s *Service) GetTicketWait(ctx context.Context, ticketID string) (TicketWait, error) {
	if ticketID == "" {
		return TicketWait{}, invalid("", "", "ticket_id", "ticket_id is required")
	}
	t, err := s.getTicket(ctx, ticketID)
	if err != nil {
		return TicketWait{}, err
	}
	pos := t.Position
	if t.Status != model.StatusWaiting {
		pos = 0
	}
	wait, err := s.GetWaitEstimate(ctx, t.ShopID, pos)
	if err != nil {
		return TicketWait{}, err
	}
	return TicketWait{Ticket: t, WaitMinutes: wait}, nil
}

// SimulateWait estimates the wait behind jobs customers of one service on servers servers.
func (s *Service) SimulateWait(ctx context.Context, shopID, serviceID string, servers, jobs int) (int, error) {
	ctx, span := s.startSpan(ctx, "engine.SimulateWait", shopID)
	defer span.End()

	if jobs < 0 {
		return 0, invalid(shopID, "", "jobs", "jobs must not be negative")
	}
	if _, err := s.schedule(ctx, shopID); err != nil {
		return 0, err
	}
	svc, err := s.activeService(ctx, shopID, serviceID)
	if err != nil {
		return 0, err
	}
	if servers < 1 {
		servers = 1
	}
	return waittime.Estimate(waittime.Uniform(float64(svc.DurationMinutes), jobs), servers), nil
}

func startedAt(t model.Ticket) time.Time {
	if t.StartedAt != nil {
		return *t.StartedAt
	}
	return t.CreatedAt
}
