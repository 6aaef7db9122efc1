package inbox

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/eutonafila/shopqueue/libs/db"
	"github.com/jackc/pgx/v5/pgconn"
)

const uniqueViolation = "23505"

// Repository remembers consumed event ids so redelivered Kafka messages are skipped.
type Repository struct {
	pool *db.Pool
}

func NewRepository(pool *db.Pool) *Repository {
	return &Repository{pool: pool}
}

// Record claims eventID. It reports false when another delivery already claimed it.
func (r *Repository) Record(ctx context.Context, eventID string, eventType string) (bool, error) {
	if eventID == "" {
		return false, errors.New("inbox: empty event id")
	}
	_, err := r.pool.Exec(ctx, `INSERT INTO inbox_events (event_id, event_type) VALUES ($1, $2)`, eventID, eventType)
	switch {
	case err == nil:
		return true, nil
	case IsDuplicate(err):
		return false, nil
	default:
		return false, fmt.Errorf("inbox record %s: %w", eventID, err)
	}
}

// Forget releases a claim whose handling failed.
func (r *Repository) Forget(ctx context.Context, eventID string) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM inbox_events WHERE event_id = $1`, eventID)
	return err
}

// Prune deletes claims older than retention and returns how many were removed.
func (r *Repository) Prune(ctx context.Context, retention time.Duration) (int64, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM inbox_events WHERE received_at < now() - make_interval(secs => $1)`,
		retention.Seconds())
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func IsDuplicate(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}
