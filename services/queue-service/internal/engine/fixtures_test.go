package engine

import (
	"io"
	"log/slog"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/eutonafila/shopqueue/services/queue-service/internal/model"
)

const shopID = "shop-1"

var saoPaulo = mustLoad("America/Sao_Paulo")

func mustLoad(name string) *time.Location {
	loc, err := time.LoadLocation(name)
	if err != nil {
		panic(err)
	}
	return loc
}

// local returns a wall clock instant in the shop's zone.
func local(day, hour, minute int) time.Time {
	return time.Date(2026, time.March, day, hour, minute, 0, 0, saoPaulo)
}

func ptr[T any](v T) *T { return &v }

func testShop() *memStore {
	st := newMemStore()
	st.schedules[shopID] = model.ShopSchedule{
		ShopID:   shopID,
		Timezone: "America/Sao_Paulo",
		Hours: map[time.Weekday]model.DayHours{
			time.Monday: {OpenMinute: 9 * 60, CloseMinute: 18 * 60, LunchStartMinute: 12 * 60, LunchEndMinute: 13 * 60, HasLunch: true},
			time.Tuesday: {OpenMinute: 7 * 60, CloseMinute: 18 * 60},
		},
		MaxQueueSize:                  20,
		MaxAppointmentsFraction:       0.5,
		AllowAppointments:             true,
		DefaultServiceDurationMinutes: 30,
		AssumedSlotMinutes:            20,
		SlotBufferMinutes:             5,
	}
	st.servers[shopID] = []model.Server{
		{ID: "s1", ShopID: shopID, IsActive: true, IsPresent: true},
		{ID: "s2", ShopID: shopID, IsActive: true, IsPresent: true},
		{ID: "s3", ShopID: shopID, IsActive: false, IsPresent: true},
	}
	st.services["cut"] = model.Service{ID: "cut", ShopID: shopID, DurationMinutes: 30, IsActive: true}
	st.services["trim"] = model.Service{ID: "trim", ShopID: shopID, DurationMinutes: 20, IsActive: true}
	st.services["perm"] = model.Service{ID: "perm", ShopID: shopID, DurationMinutes: 90, IsActive: false}
	st.services["foreign"] = model.Service{ID: "foreign", ShopID: "shop-2", DurationMinutes: 30, IsActive: true}
	return st
}

func newTestService(t *testing.T, st *memStore, now time.Time) *Service {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return New(st, logger, WithClock(func() time.Time { return now }))
}

func waitingTicket(id string, joined time.Time, position int) model.Ticket {
	return model.Ticket{
		ID:        id,
		ShopID:    shopID,
		ServiceID: "cut",
		Type:      model.TicketWalkIn,
		Status:    model.StatusWaiting,
		CreatedAt: joined,
		Position:  position,
	}
}

func appointment(id, serverID string, at time.Time) model.Ticket {
	return model.Ticket{
		ID:                id,
		ShopID:            shopID,
		ServiceID:         "cut",
		Type:              model.TicketAppointment,
		Status:            model.StatusPending,
		PreferredServerID: serverID,
		CreatedAt:         at.Add(-48 * time.Hour),
		ScheduledTime:     ptr(at.UTC()),
	}
}
