package engine

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/eutonafila/shopqueue/services/queue-service/internal/availability"
	"github.com/eutonafila/shopqueue/services/queue-service/internal/model"
	"go.opentelemetry.io/otel/attribute"
)

type SlotQuery struct {
	ShopID    string
	Date      string
	ServiceID string
	ServerID  string
	// QueueClearMinutes hides today's slots starting before now plus this many minutes.
	QueueClearMinutes *int
}

type Slot struct {
	Time      string
	Available bool
}

// ListAppointmentSlots enumerates the bookable slots for one service on one day.
// A shop whose appointment share is used up yields an empty list rather than an error.
func (s *Service) ListAppointmentSlots(ctx context.Context, q SlotQuery) ([]Slot, error) {
	ctx, span := s.startSpan(ctx, "engine.ListAppointmentSlots", q.ShopID)
	defer span.End()
	span.SetAttributes(attribute.String("slots.date", q.Date), attribute.String("service.id", q.ServiceID))

	sched, err := s.schedule(ctx, q.ShopID)
	if err != nil {
		return nil, err
	}
	full, err := s.appointmentsFull(ctx, sched)
	if err != nil {
		return nil, err
	}
	if full {
		return []Slot{}, nil
	}
	day, err := s.computeDay(ctx, sched, q)
	if err != nil {
		return nil, err
	}
	out := make([]Slot, 0, len(day.slots))
	for _, c := range day.slots {
		out = append(out, Slot{Time: availability.FormatClock(c.window.Start), Available: c.available})
	}
	span.SetAttributes(attribute.Int("slots.count", len(out)))
	return out, nil
}

type candidate struct {
	window    availability.Window
	available bool
}

type dayPlan struct {
	day   time.Time
	slots []candidate
}

func (s *Service) computeDay(ctx context.Context, sched model.ShopSchedule, q SlotQuery) (dayPlan, error) {
	svc, err := s.activeService(ctx, sched.ShopID, strings.TrimSpace(q.ServiceID))
	if err != nil {
		return dayPlan{}, err
	}

	loc, ok := availability.LoadLocation(sched.Timezone)
	if !ok {
		s.logger.Warn("invalid shop timezone, using UTC", "shop_id", sched.ShopID, "timezone", sched.Timezone)
	}
	day, err := availability.ParseDay(q.Date, loc)
	if err != nil {
		return dayPlan{}, invalid(sched.ShopID, "", "date", err.Error())
	}
	plan := dayPlan{day: day}

	now := s.now().In(loc)
	today, _ := availability.ParseDay(now.Format("2006-01-02"), loc)
	if day.Before(today) {
		return plan, nil
	}

	hours, open := sched.Hours[day.Weekday()]
	if !open || hours.CloseMinute <= hours.OpenMinute {
		return plan, nil
	}
	var lunch *availability.Window
	if hours.HasLunch && hours.LunchEndMinute > hours.LunchStartMinute {
		lunch = &availability.Window{Start: hours.LunchStartMinute, End: hours.LunchEndMinute}
	}
	slotLength := svc.DurationMinutes + sched.SlotBufferMinutes
	windows := availability.Candidates(hours.OpenMinute, hours.CloseMinute, svc.DurationMinutes, slotLength, lunch)
	if len(windows) == 0 {
		return plan, nil
	}

	servers, err := s.EligibleServers(ctx, sched.ShopID, false)
	if err != nil {
		return dayPlan{}, err
	}
	ids := make([]string, 0, len(servers))
	for _, srv := range servers {
		ids = append(ids, srv.ID)
	}
	preferred := strings.TrimSpace(q.ServerID)
	commitments, err := s.commitments(ctx, sched, day)
	if err != nil {
		return dayPlan{}, err
	}
	board := availability.NewBoard(ids, commitments)
	if preferred != "" && !board.Has(preferred) {
		return dayPlan{}, invalid(sched.ShopID, "", "server_id", "server is not an active server of this shop")
	}

	cutoff := -1
	var clearAt time.Time
	if availability.SameDay(now, day) {
		cutoff = availability.MinuteOfDay(now, loc) + 1
		if q.QueueClearMinutes != nil && *q.QueueClearMinutes > 0 {
			clearAt = now.Add(time.Duration(*q.QueueClearMinutes) * time.Minute)
		}
	}

	for _, w := range windows {
		if w.Start < cutoff {
			continue
		}
		// Compared as instants so seconds past the minute still push the cutoff.
		if !clearAt.IsZero() && availability.At(day, w.Start).Before(clearAt) {
			continue
		}
		plan.slots = append(plan.slots, candidate{window: w, available: board.Available(w, preferred)})
	}
	return plan, nil
}

// commitments collects the day's booked time. Appointments are anchored at their
// scheduled time and in-progress work at its start. A ticket belongs to its assigned
// server, else its preferred server, else it competes for any server.
func (s *Service) commitments(ctx context.Context, sched model.ShopSchedule, day time.Time) ([]availability.Commitment, error) {
	start, end := availability.DayBounds(day)
	appts, err := s.store.ListAppointmentTicketsForDay(ctx, sched.ShopID, start, end)
	if err != nil {
		return nil, fmt.Errorf("list appointments for day: %w", err)
	}
	inProgress, err := s.store.ListInProgressTickets(ctx, sched.ShopID)
	if err != nil {
		return nil, fmt.Errorf("list in-progress tickets: %w", err)
	}
	services, err := s.store.ListServices(ctx, sched.ShopID)
	if err != nil {
		return nil, fmt.Errorf("list services: %w", err)
	}
	durations := make(map[string]int, len(services))
	for _, svc := range services {
		durations[svc.ID] = svc.DurationMinutes
	}

	loc := day.Location()
	seen := make(map[string]struct{}, len(appts)+len(inProgress))
	var out []availability.Commitment
	for _, t := range append(appts, inProgress...) {
		if _, dup := seen[t.ID]; dup || t.Status.Terminal() {
			continue
		}
		seen[t.ID] = struct{}{}

		var anchor time.Time
		switch {
		case t.ScheduledTime != nil:
			anchor = *t.ScheduledTime
		case t.StartedAt != nil:
			anchor = *t.StartedAt
		default:
			continue
		}
		if !availability.SameDay(anchor.In(loc), day) {
			continue
		}
		dur := durations[t.ServiceID]
		if dur <= 0 {
			dur = sched.DefaultServiceDurationMinutes
		}
		startMinute := availability.MinuteOfDay(anchor, loc)
		owner := t.AssignedServerID
		if owner == "" {
			owner = t.PreferredServerID
		}
		out = append(out, availability.Commitment{
			ServerID: owner,
			Window:   availability.Window{Start: startMinute, End: startMinute + dur},
		})
	}
	return out, nil
}
