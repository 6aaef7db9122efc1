package engine

import (
	"context"
	"fmt"
	"sort"

	"github.com/eutonafila/shopqueue/services/queue-service/internal/model"
	"go.opentelemetry.io/otel/trace"
)

// settle renumbers the shop after a committed ticket write and returns the reloaded
// ticket. The write stands either way: a failed renumber is logged and left to the
// recalculation triggered by the ticket event.
func (s *Service) settle(ctx context.Context, span trace.Span, shopID string, written model.Ticket) model.Ticket {
	if _, err := s.RecalculatePositions(ctx, shopID); err != nil {
		span.RecordError(err)
		s.logger.Warn("recalculate positions after ticket write", "shop_id", shopID, "ticket_id", written.ID, "err", err)
		return written
	}
	fresh, err := s.getTicket(ctx, written.ID)
	if err != nil {
		span.RecordError(err)
		s.logger.Warn("reload ticket after recalculation", "shop_id", shopID, "ticket_id", written.ID, "err", err)
		return written
	}
	return fresh
}

// RecalculatePositions renumbers the shop's waiting tickets 1..N by join time and clears
// the position of in-progress tickets. Only changed rows are written; the returned count
// is the number of writes.
func (s *Service) RecalculatePositions(ctx context.Context, shopID string) (int, error) {
	if shopID == "" {
		return 0, invalid("", "", "shop_id", "shop_id is required")
	}
	ctx, span := s.startSpan(ctx, "engine.RecalculatePositions", shopID)
	defer span.End()

	unlock, err := s.locks.Lock(ctx, "positions:"+shopID)
	if err != nil {
		return 0, fmt.Errorf("lock shop positions: %w", err)
	}
	defer unlock()

	waiting, err := s.store.ListWaitingTickets(ctx, shopID)
	if err != nil {
		return 0, fmt.Errorf("list waiting tickets: %w", err)
	}
	sortByJoin(waiting)

	updated := 0
	for i, t := range waiting {
		pos := i + 1
		if t.Position == pos {
			continue
		}
		if err := s.store.UpdateTicketPosition(ctx, t.ID, pos); err != nil {
			return updated, fmt.Errorf("update position of ticket %s: %w", t.ID, err)
		}
		updated++
	}

	inProgress, err := s.store.ListInProgressTickets(ctx, shopID)
	if err != nil {
		return updated, fmt.Errorf("list in-progress tickets: %w", err)
	}
	for _, t := range inProgress {
		if t.Position == 0 {
			continue
		}
		if err := s.store.UpdateTicketPosition(ctx, t.ID, 0); err != nil {
			return updated, fmt.Errorf("clear position of ticket %s: %w", t.ID, err)
		}
		updated++
	}

	s.logger.Debug("queue positions recalculated", "shop_id", shopID, "waiting", len(waiting), "updated", updated)
	return updated, nil
}

func sortByJoin(tickets []model.Ticket) {
	sort.SliceStable(tickets, func(i, j int) bool {
		a, b := tickets[i], tickets[j]
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.ID < b.ID
	})
}
