package engine

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/eutonafila/shopqueue/services/queue-service/internal/model"
)

func TestJoinQueue(t *testing.T) {
	st := testShop()
	base := local(2, 10, 0)
	st.add(waitingTicket("t1", base, 1))
	st.add(waitingTicket("t2", base.Add(time.Minute), 2))
	svc := newTestService(t, st, base.Add(5*time.Minute))

	tk, err := svc.JoinQueue(context.Background(), JoinRequest{ShopID: shopID, ServiceID: "trim", CustomerName: " Ana "})
	if err != nil {
		t.Fatalf("join: %v", err)
	}
	if tk.Status != model.StatusWaiting || tk.Type != model.TicketWalkIn || tk.Position != 3 {
		t.Fatalf("unexpected ticket %+v", tk)
	}
	if tk.CustomerName != "Ana" || tk.ScheduledTime != nil {
		t.Fatalf("unexpected ticket fields %+v", tk)
	}
	if tk.EstimatedWaitMinutes == nil || *tk.EstimatedWaitMinutes != 20 {
		t.Fatalf("expected 20 minute estimate, got %v", tk.EstimatedWaitMinutes)
	}
}

type failingLocker struct{ err error }

func (l failingLocker) Lock(context.Context, string) (func(), error) {
	return nil, l.err
}

func TestJoinQueue_KeepsTicketWhenRenumberFails(t *testing.T) {
	st := testShop()
	base := local(2, 10, 0)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := New(st, logger,
		WithClock(func() time.Time { return base }),
		WithLocker(failingLocker{err: errors.New("redis down")}),
	)

	tk, err := svc.JoinQueue(context.Background(), JoinRequest{ShopID: shopID, ServiceID: "cut"})
	if err != nil {
		t.Fatalf("join must succeed once the ticket is stored, got %v", err)
	}
	if tk.ID == "" || tk.Status != model.StatusWaiting {
		t.Fatalf("unexpected ticket %+v", tk)
	}
	if n, _ := st.CountActiveTickets(context.Background(), shopID, ""); n != 1 {
		t.Fatalf("expected exactly one stored ticket, got %d", n)
	}

	svc = newTestService(t, st, base)
	if _, err := svc.RecalculatePositions(context.Background(), shopID); err != nil {
		t.Fatalf("recalculate: %v", err)
	}
	if got := st.ticket(tk.ID).Position; got != 1 {
		t.Fatalf("expected a later recalculation to repair the position, got %d", got)
	}
}

func TestTransition_KeepsStatusWhenRenumberFails(t *testing.T) {
	st := testShop()
	base := local(2, 10, 0)
	st.add(waitingTicket("t1", base, 1))
	st.add(waitingTicket("t2", base.Add(time.Minute), 2))
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := New(st, logger,
		WithClock(func() time.Time { return base }),
		WithLocker(failingLocker{err: errors.New("redis down")}),
	)

	tk, err := svc.TransitionTicketStatus(context.Background(), TransitionRequest{TicketID: "t1", Status: model.StatusCancelled})
	if err != nil {
		t.Fatalf("transition must succeed once the status is stored, got %v", err)
	}
	if tk.Status != model.StatusCancelled || st.ticket("t1").Status != model.StatusCancelled {
		t.Fatalf("expected cancelled ticket, got %+v", tk)
	}
}

func TestJoinQueue_Full(t *testing.T) {
	st := testShop()
	sched := st.schedules[shopID]
	sched.MaxQueueSize = 2
	st.schedules[shopID] = sched
	base := local(2, 10, 0)
	st.add(waitingTicket("t1", base, 1))
	st.add(waitingTicket("t2", base, 2))
	svc := newTestService(t, st, base)

	_, err := svc.JoinQueue(context.Background(), JoinRequest{ShopID: shopID, ServiceID: "cut"})
	if !errors.Is(err, ErrCapacityExceeded) {
		t.Fatalf("expected capacity exceeded, got %v", err)
	}
}

func TestBookAppointment(t *testing.T) {
	st := testShop()
	svc := newTestService(t, st, local(2, 10, 0))
	ctx := context.Background()

	tk, err := svc.BookAppointment(ctx, BookRequest{ShopID: shopID, ServiceID: "cut", Date: "2026-03-03", Time: "14:00", ServerID: "s1", CustomerName: "Bia"})
	if err != nil {
		t.Fatalf("book: %v", err)
	}
	if tk.Status != model.StatusPending || tk.Type != model.TicketAppointment || tk.PreferredServerID != "s1" {
		t.Fatalf("unexpected ticket %+v", tk)
	}
	if tk.ScheduledTime == nil || !tk.ScheduledTime.Equal(local(3, 14, 0)) || tk.ScheduledTime.Location() != time.UTC {
		t.Fatalf("expected UTC scheduled time for 14:00 local, got %v", tk.ScheduledTime)
	}

	_, err = svc.BookAppointment(ctx, BookRequest{ShopID: shopID, ServiceID: "cut", Date: "2026-03-03", Time: "14:00", ServerID: "s1"})
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("expected double booking of s1 to fail, got %v", err)
	}
	if _, err := svc.BookAppointment(ctx, BookRequest{ShopID: shopID, ServiceID: "cut", Date: "2026-03-03", Time: "14:00", ServerID: "s2"}); err != nil {
		t.Fatalf("expected s2 to take 14:00: %v", err)
	}
	_, err = svc.BookAppointment(ctx, BookRequest{ShopID: shopID, ServiceID: "cut", Date: "2026-03-03", Time: "14:00"})
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("expected full slot to be rejected, got %v", err)
	}
}

func TestBookAppointment_Rejections(t *testing.T) {
	st := testShop()
	svc := newTestService(t, st, local(2, 10, 0))
	ctx := context.Background()

	for _, at := range []string{"14:07", "25:00", "", "12:30"} {
		_, err := svc.BookAppointment(ctx, BookRequest{ShopID: shopID, ServiceID: "cut", Date: "2026-03-02", Time: at})
		if !errors.Is(err, ErrValidation) {
			t.Fatalf("time %q: expected validation error, got %v", at, err)
		}
	}

	sched := st.schedules[shopID]
	sched.MaxQueueSize = 2
	st.schedules[shopID] = sched
	st.add(appointment("a1", "s1", local(4, 9, 0)))
	_, err := svc.BookAppointment(ctx, BookRequest{ShopID: shopID, ServiceID: "cut", Date: "2026-03-03", Time: "09:00"})
	if !errors.Is(err, ErrCapacityExceeded) {
		t.Fatalf("expected capacity exceeded, got %v", err)
	}

	sched.AllowAppointments = false
	st.schedules[shopID] = sched
	_, err = svc.BookAppointment(ctx, BookRequest{ShopID: shopID, ServiceID: "cut", Date: "2026-03-03", Time: "09:00"})
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected unavailable, got %v", err)
	}
}

func TestErrorMessageCarriesContext(t *testing.T) {
	err := error(invalid("shop-1", "t-9", "status", "invalid transition from completed to waiting"))
	want := "validation failed: invalid transition from completed to waiting (shop_id=shop-1 ticket_id=t-9 field=status)"
	if err.Error() != want {
		t.Fatalf("unexpected message %q", err.Error())
	}
	if !errors.Is(err, ErrValidation) || errors.Is(err, ErrNotFound) {
		t.Fatalf("unexpected errors.Is classification")
	}
}
