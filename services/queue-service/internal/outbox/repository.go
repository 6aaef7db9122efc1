package outbox

import (
	"context"
	"time"

	"github.com/eutonafila/shopqueue/libs/db"
	otelx "github.com/eutonafila/shopqueue/libs/otel"
	"github.com/jackc/pgx/v5"
)

// Repository persists ticket events next to the ticket rows they describe.
type Repository struct {
	pool *db.Pool
}

func NewRepository(pool *db.Pool) *Repository {
	return &Repository{pool: pool}
}

// Record is a stored event awaiting or past publication.
type Record struct {
	ID        int64
	EventID   string
	Event     Event
	Trace     otelx.TraceContext
	CreatedAt time.Time
}

// Insert appends evt within tx, capturing the caller's trace context so the published
// message continues the same trace.
func (r *Repository) Insert(ctx context.Context, tx pgx.Tx, evt Event) error {
	tc := otelx.CaptureTraceContext(ctx)
	_, err := tx.Exec(ctx, `
		INSERT INTO outbox_events (aggregate_type, aggregate_id, event_type, payload, traceparent, tracestate)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, evt.AggregateType, evt.AggregateID, evt.EventType, evt.Payload, tc.Traceparent, tc.Tracestate)
	return err
}

// Claim locks up to limit unpublished rows in id order. Rows locked by a concurrent
// publisher are skipped.
func (r *Repository) Claim(ctx context.Context, tx pgx.Tx, limit int) ([]Record, error) {
	rows, err := tx.Query(ctx, `
		SELECT id, event_id::text, aggregate_type, aggregate_id, event_type, payload,
		       COALESCE(traceparent, ''), COALESCE(tracestate, ''), created_at
		FROM outbox_events
		WHERE published_at IS NULL
		ORDER BY id
		LIMIT $1
		FOR UPDATE SKIP LOCKED
	`, limit)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (Record, error) {
		var rec Record
		err := row.Scan(&rec.ID, &rec.EventID,
			&rec.Event.AggregateType, &rec.Event.AggregateID, &rec.Event.EventType, &rec.Event.Payload,
			&rec.Trace.Traceparent, &rec.Trace.Tracestate, &rec.CreatedAt)
		return rec, err
	})
}

func (r *Repository) MarkPublished(ctx context.Context, tx pgx.Tx, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := tx.Exec(ctx, `UPDATE outbox_events SET published_at = now() WHERE id = ANY($1)`, ids)
	return err
}
