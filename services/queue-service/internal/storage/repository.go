package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/eutonafila/shopqueue/libs/db"
	"github.com/eutonafila/shopqueue/services/queue-service/internal/model"
	"github.com/eutonafila/shopqueue/services/queue-service/internal/outbox"
	"github.com/jackc/pgx/v5"
)

// Repository is the Postgres backed store for shops, rosters and tickets. Ticket writes
// append their domain event to the outbox in the same transaction.
type Repository struct {
	pool   *db.Pool
	outbox *outbox.Repository
}

func NewRepository(pool *db.Pool, outboxRepo *outbox.Repository) *Repository {
	return &Repository{pool: pool, outbox: outboxRepo}
}

func (r *Repository) GetShopSchedule(ctx context.Context, shopID string) (model.ShopSchedule, error) {
	s := model.ShopSchedule{ShopID: shopID, Hours: map[time.Weekday]model.DayHours{}}
	err := r.pool.QueryRow(ctx, `
		SELECT timezone, max_queue_size, max_appointments_fraction, allow_appointments,
		       default_service_duration_minutes, assumed_slot_minutes, slot_buffer_minutes
		FROM shops
		WHERE id = $1
	`, shopID).Scan(&s.Timezone, &s.MaxQueueSize, &s.MaxAppointmentsFraction, &s.AllowAppointments,
		&s.DefaultServiceDurationMinutes, &s.AssumedSlotMinutes, &s.SlotBufferMinutes)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.ShopSchedule{}, model.ErrNotFound
		}
		return model.ShopSchedule{}, err
	}

	rows, err := r.pool.Query(ctx, `
		SELECT weekday, open_minute, close_minute, lunch_start_minute, lunch_end_minute
		FROM shop_hours
		WHERE shop_id = $1
	`, shopID)
	if err != nil {
		return model.ShopSchedule{}, err
	}
	defer rows.Close()

	for rows.Next() {
		var weekday int16
		var h model.DayHours
		var lunchStart, lunchEnd *int32
		if err := rows.Scan(&weekday, &h.OpenMinute, &h.CloseMinute, &lunchStart, &lunchEnd); err != nil {
			return model.ShopSchedule{}, err
		}
		if lunchStart != nil && lunchEnd != nil {
			h.HasLunch = true
			h.LunchStartMinute = int(*lunchStart)
			h.LunchEndMinute = int(*lunchEnd)
		}
		s.Hours[time.Weekday(weekday)] = h
	}
	return s, rows.Err()
}

func (r *Repository) ListServers(ctx context.Context, shopID string) ([]model.Server, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, shop_id, name, is_active, is_present
		FROM servers
		WHERE shop_id = $1
		ORDER BY id
	`, shopID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Server
	for rows.Next() {
		var s model.Server
		if err := rows.Scan(&s.ID, &s.ShopID, &s.Name, &s.IsActive, &s.IsPresent); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (r *Repository) GetService(ctx context.Context, shopID, serviceID string) (model.Service, error) {
	var s model.Service
	err := r.pool.QueryRow(ctx, `
		SELECT id, shop_id, name, duration_minutes, is_active
		FROM services
		WHERE shop_id = $1 AND id = $2
	`, shopID, serviceID).Scan(&s.ID, &s.ShopID, &s.Name, &s.DurationMinutes, &s.IsActive)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Service{}, model.ErrNotFound
		}
		return model.Service{}, err
	}
	return s, nil
}

func (r *Repository) ListServices(ctx context.Context, shopID string) ([]model.Service, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, shop_id, name, duration_minutes, is_active
		FROM services
		WHERE shop_id = $1
		ORDER BY id
	`, shopID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Service
	for rows.Next() {
		var s model.Service
		if err := rows.Scan(&s.ID, &s.ShopID, &s.Name, &s.DurationMinutes, &s.IsActive); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

const ticketColumns = `
	id, shop_id, service_id, customer_name, type, status,
	COALESCE(assigned_server_id, ''), COALESCE(preferred_server_id, ''),
	created_at, scheduled_time, started_at, completed_at, position, estimated_wait_minutes`

func scanTicket(row pgx.Row) (model.Ticket, error) {
	var (
		t        model.Ticket
		typ      string
		status   string
		estimate *int32
	)
	err := row.Scan(&t.ID, &t.ShopID, &t.ServiceID, &t.CustomerName, &typ, &status,
		&t.AssignedServerID, &t.PreferredServerID,
		&t.CreatedAt, &t.ScheduledTime, &t.StartedAt, &t.CompletedAt, &t.Position, &estimate)
	if err != nil {
		return model.Ticket{}, err
	}
	t.Type = model.TicketType(typ)
	t.Status = model.TicketStatus(status)
	if estimate != nil {
		v := int(*estimate)
		t.EstimatedWaitMinutes = &v
	}
	return t, nil
}

func (r *Repository) listTickets(ctx context.Context, query string, args ...any) ([]model.Ticket, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Ticket
	for rows.Next() {
		t, err := scanTicket(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (r *Repository) ListWaitingTickets(ctx context.Context, shopID string) ([]model.Ticket, error) {
	return r.listTickets(ctx, `SELECT `+ticketColumns+`
		FROM tickets
		WHERE shop_id = $1 AND status = 'waiting'
		ORDER BY created_at, id
	`, shopID)
}

func (r *Repository) ListInProgressTickets(ctx context.Context, shopID string) ([]model.Ticket, error) {
	return r.listTickets(ctx, `SELECT `+ticketColumns+`
		FROM tickets
		WHERE shop_id = $1 AND status = 'in_progress'
		ORDER BY started_at NULLS LAST, id
	`, shopID)
}

func (r *Repository) ListAppointmentTicketsForDay(ctx context.Context, shopID string, start, end time.Time) ([]model.Ticket, error) {
	return r.listTickets(ctx, `SELECT `+ticketColumns+`
		FROM tickets
		WHERE shop_id = $1
		  AND type = 'appointment'
		  AND status NOT IN ('completed', 'cancelled')
		  AND scheduled_time >= $2 AND scheduled_time < $3
		ORDER BY scheduled_time, id
	`, shopID, start.UTC(), end.UTC())
}

func (r *Repository) CountActiveTickets(ctx context.Context, shopID string, typ model.TicketType) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx, `
		SELECT count(*)
		FROM tickets
		WHERE shop_id = $1
		  AND status NOT IN ('completed', 'cancelled')
		  AND ($2 = '' OR type = $2)
	`, shopID, string(typ)).Scan(&n)
	return n, err
}

func (r *Repository) GetTicket(ctx context.Context, ticketID string) (model.Ticket, error) {
	t, err := scanTicket(r.pool.QueryRow(ctx, `SELECT `+ticketColumns+` FROM tickets WHERE id = $1`, ticketID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Ticket{}, model.ErrNotFound
		}
		return model.Ticket{}, err
	}
	return t, nil
}

func (r *Repository) CreateTicket(ctx context.Context, t model.Ticket) (model.Ticket, error) {
	var created model.Ticket
	err := r.pool.InTx(ctx, func(tx pgx.Tx) error {
		var err error
		created, err = scanTicket(tx.QueryRow(ctx, `
			INSERT INTO tickets (id, shop_id, service_id, customer_name, type, status,
			                     assigned_server_id, preferred_server_id, created_at, scheduled_time,
			                     position, estimated_wait_minutes)
			VALUES ($1, $2, $3, $4, $5, $6, NULLIF($7, ''), NULLIF($8, ''), $9, $10, $11, $12)
			RETURNING `+ticketColumns,
			t.ID, t.ShopID, t.ServiceID, t.CustomerName, string(t.Type), string(t.Status),
			t.AssignedServerID, t.PreferredServerID, t.CreatedAt, t.ScheduledTime,
			t.Position, t.EstimatedWaitMinutes,
		))
		if err != nil {
			return err
		}
		evt, err := outbox.NewTicketCreated(created)
		if err != nil {
			return err
		}
		if err := r.outbox.Insert(ctx, tx, evt); err != nil {
			return fmt.Errorf("insert outbox event: %w", err)
		}
		return nil
	})
	if err != nil {
		return model.Ticket{}, err
	}
	return created, nil
}

func (r *Repository) UpdateTicketPosition(ctx context.Context, ticketID string, position int) error {
	tag, err := r.pool.Exec(ctx, `UPDATE tickets SET position = $2 WHERE id = $1`, ticketID, position)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return model.ErrNotFound
	}
	return nil
}

func (r *Repository) UpdateTicketStatus(ctx context.Context, ticketID string, from model.TicketStatus, upd model.StatusUpdate) (model.Ticket, error) {
	var updated model.Ticket
	err := r.pool.InTx(ctx, func(tx pgx.Tx) error {
		var err error
		updated, err = scanTicket(tx.QueryRow(ctx, `
			UPDATE tickets
			SET status = $3,
			    assigned_server_id = NULLIF($4, ''),
			    started_at = COALESCE($5, started_at),
			    completed_at = COALESCE($6, completed_at),
			    position = $7
			WHERE id = $1 AND status = $2
			RETURNING `+ticketColumns,
			ticketID, string(from), string(upd.Status), upd.AssignedServerID, upd.StartedAt, upd.CompletedAt, upd.Position,
		))
		if errors.Is(err, pgx.ErrNoRows) {
			return staleOrMissing(ctx, tx, ticketID)
		}
		if err != nil {
			return err
		}

		occurred := time.Now()
		switch {
		case upd.CompletedAt != nil:
			occurred = *upd.CompletedAt
		case upd.StartedAt != nil:
			occurred = *upd.StartedAt
		}
		evt, err := outbox.NewTicketStatusChanged(updated, from, occurred)
		if err != nil {
			return err
		}
		if err := r.outbox.Insert(ctx, tx, evt); err != nil {
			return fmt.Errorf("insert outbox event: %w", err)
		}
		return nil
	})
	if err != nil {
		return model.Ticket{}, err
	}
	return updated, nil
}

// staleOrMissing explains why a guarded status update matched no row.
func staleOrMissing(ctx context.Context, tx pgx.Tx, ticketID string) error {
	var exists bool
	if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM tickets WHERE id = $1)`, ticketID).Scan(&exists); err != nil {
		return err
	}
	if !exists {
		return model.ErrNotFound
	}
	return model.ErrStaleState
}
