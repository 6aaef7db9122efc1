package storage

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"testing"
	"time"

	"github.com/eutonafila/shopqueue/libs/db"
	"github.com/eutonafila/shopqueue/services/queue-service/internal/engine"
	"github.com/eutonafila/shopqueue/services/queue-service/internal/model"
	"github.com/eutonafila/shopqueue/services/queue-service/internal/outbox"
	"github.com/google/uuid"
)

var _ engine.Store = (*Repository)(nil)

func setupTestStore(t *testing.T) (*db.Pool, *Repository, string) {
	t.Helper()
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	ctx := context.Background()
	pool, err := db.Open(ctx, dsn)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(pool.Close)

	applyMigrations(t, pool)
	shopID := seedShop(t, pool)
	return pool, NewRepository(pool, outbox.NewRepository(pool)), shopID
}

func applyMigrations(t *testing.T, pool *db.Pool) {
	t.Helper()
	files, err := filepath.Glob(filepath.Join("..", "..", "migrations", "*.sql"))
	if err != nil || len(files) == 0 {
		t.Fatalf("find migrations: %v (found %d)", err, len(files))
	}
	sort.Strings(files)
	for _, f := range files {
		sql, err := os.ReadFile(f)
		if err != nil {
			t.Fatalf("read %s: %v", f, err)
		}
		if _, err := pool.Exec(context.Background(), string(sql)); err != nil {
			t.Fatalf("apply %s: %v", f, err)
		}
	}
}

// seedShop creates an isolated shop so tests can share one database.
func seedShop(t *testing.T, pool *db.Pool) string {
	t.Helper()
	ctx := context.Background()
	shopID := "shop-" + uuid.NewString()
	stmts := []struct {
		sql  string
		args []any
	}{
		{`INSERT INTO shops (id, name, timezone, max_queue_size, max_appointments_fraction) VALUES ($1, 'Test Cuts', 'America/Sao_Paulo', 20, 0.5)`, []any{shopID}},
		{`INSERT INTO shop_hours (shop_id, weekday, open_minute, close_minute, lunch_start_minute, lunch_end_minute) VALUES ($1, 1, 540, 1080, 720, 780)`, []any{shopID}},
		{`INSERT INTO shop_hours (shop_id, weekday, open_minute, close_minute) VALUES ($1, 2, 420, 1080)`, []any{shopID}},
		{`INSERT INTO servers (id, shop_id, name, is_active, is_present) VALUES ($1, $2, 'Ana', TRUE, TRUE)`, []any{shopID + "-s1", shopID}},
		{`INSERT INTO servers (id, shop_id, name, is_active, is_present) VALUES ($1, $2, 'Bruno', TRUE, FALSE)`, []any{shopID + "-s2", shopID}},
		{`INSERT INTO services (id, shop_id, name, duration_minutes) VALUES ($1, $2, 'Cut', 30)`, []any{shopID + "-cut", shopID}},
	}
	for _, s := range stmts {
		if _, err := pool.Exec(ctx, s.sql, s.args...); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}
	return shopID
}

func TestRepository_ShopSchedule(t *testing.T) {
	_, repo, shopID := setupTestStore(t)
	ctx := context.Background()

	s, err := repo.GetShopSchedule(ctx, shopID)
	if err != nil {
		t.Fatalf("get schedule: %v", err)
	}
	if s.Timezone != "America/Sao_Paulo" || s.AssumedSlotMinutes != 20 || s.SlotBufferMinutes != 5 {
		t.Fatalf("unexpected schedule %+v", s)
	}
	mon := s.Hours[time.Monday]
	if !mon.HasLunch || mon.LunchStartMinute != 720 || mon.OpenMinute != 540 {
		t.Fatalf("unexpected monday hours %+v", mon)
	}
	if s.Hours[time.Tuesday].HasLunch {
		t.Fatalf("tuesday has no lunch")
	}
	if _, ok := s.Hours[time.Sunday]; ok {
		t.Fatalf("sunday must be closed")
	}

	if _, err := repo.GetShopSchedule(ctx, "missing"); !errors.Is(err, model.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestRepository_TicketLifecycleWritesOutbox(t *testing.T) {
	pool, repo, shopID := setupTestStore(t)
	ctx := context.Background()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := engine.New(repo, logger)

	first, err := svc.JoinQueue(ctx, engine.JoinRequest{ShopID: shopID, ServiceID: shopID + "-cut", CustomerName: "Carla"})
	if err != nil {
		t.Fatalf("join: %v", err)
	}
	second, err := svc.JoinQueue(ctx, engine.JoinRequest{ShopID: shopID, ServiceID: shopID + "-cut", CustomerName: "Davi"})
	if err != nil {
		t.Fatalf("join: %v", err)
	}
	if first.Position != 1 || second.Position != 2 {
		t.Fatalf("unexpected positions %d %d", first.Position, second.Position)
	}

	started, err := svc.TransitionTicketStatus(ctx, engine.TransitionRequest{TicketID: first.ID, Status: model.StatusInProgress, AssignedServerID: shopID + "-s1"})
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if started.Position != 0 || started.StartedAt == nil {
		t.Fatalf("unexpected started ticket %+v", started)
	}
	moved, err := repo.GetTicket(ctx, second.ID)
	if err != nil {
		t.Fatalf("get ticket: %v", err)
	}
	if moved.Position != 1 {
		t.Fatalf("expected second ticket to move to 1, got %d", moved.Position)
	}

	if _, err := repo.UpdateTicketStatus(ctx, first.ID, model.StatusWaiting, model.StatusUpdate{Status: model.StatusCancelled}); !errors.Is(err, model.ErrStaleState) {
		t.Fatalf("expected stale state, got %v", err)
	}

	var created, changed int
	err = pool.QueryRow(ctx, `
		SELECT count(*) FILTER (WHERE event_type = $2), count(*) FILTER (WHERE event_type = $3)
		FROM outbox_events
		WHERE aggregate_id = ANY($1)
	`, []string{first.ID, second.ID}, outbox.EventTicketCreated, outbox.EventTicketStatusChanged).Scan(&created, &changed)
	if err != nil {
		t.Fatalf("count outbox: %v", err)
	}
	if created != 2 || changed != 1 {
		t.Fatalf("expected 2 created and 1 status event, got %d and %d", created, changed)
	}
}

func TestRepository_AppointmentsForDay(t *testing.T) {
	_, repo, shopID := setupTestStore(t)
	ctx := context.Background()

	loc, _ := time.LoadLocation("America/Sao_Paulo")
	day := time.Date(2030, 1, 8, 0, 0, 0, 0, loc)
	inDay := day.Add(14 * time.Hour).UTC()
	nextDay := day.Add(26 * time.Hour).UTC()
	for _, at := range []time.Time{inDay, nextDay} {
		scheduled := at
		if _, err := repo.CreateTicket(ctx, model.Ticket{
			ID: uuid.NewString(), ShopID: shopID, ServiceID: shopID + "-cut",
			Type: model.TicketAppointment, Status: model.StatusPending,
			PreferredServerID: shopID + "-s1", CreatedAt: time.Now().UTC(), ScheduledTime: &scheduled,
		}); err != nil {
			t.Fatalf("create appointment: %v", err)
		}
	}

	got, err := repo.ListAppointmentTicketsForDay(ctx, shopID, day.UTC(), day.AddDate(0, 0, 1).UTC())
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 1 || !got[0].ScheduledTime.Equal(inDay) || got[0].PreferredServerID != shopID+"-s1" {
		t.Fatalf("unexpected appointments %+v", got)
	}

	n, err := repo.CountActiveTickets(ctx, shopID, model.TicketAppointment)
	if err != nil || n != 2 {
		t.Fatalf("expected 2 active appointments, got %d err=%v", n, err)
	}
	n, err = repo.CountActiveTickets(ctx, shopID, model.TicketWalkIn)
	if err != nil || n != 0 {
		t.Fatalf("expected no walk-ins, got %d err=%v", n, err)
	}
}
