package outbox

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
)

// Repository persists events in outbox_events. All methods run inside the
// caller's transaction.
type Repository struct{}

func NewRepository() *Repository {
	return &Repository{}
}

func (r *Repository) Insert(ctx context.Context, tx pgx.Tx, evt Event) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO outbox_events (event_id, aggregate_type, aggregate_id, event_type, payload, traceparent, tracestate)
		VALUES ($1, 'appointment', $2, $3, $4, $5, $6)
	`, evt.ID, evt.AggregateID, evt.Type, evt.Payload, evt.Traceparent, evt.Tracestate)
	return err
}

type Record struct {
	ID    int64
	Event Event
}

func (r *Repository) FetchUnpublished(ctx context.Context, tx pgx.Tx, limit int) ([]Record, error) {
	rows, err := tx.Query(ctx, `
		SELECT id, event_id, aggregate_id, event_type, payload, traceparent, tracestate, created_at
		FROM outbox_events
		WHERE published_at IS NULL
		ORDER BY id
		LIMIT $1
		FOR UPDATE SKIP LOCKED
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var (
			rcd       Record
			createdAt time.Time
		)
		e := &rcd.Event
		if err := rows.Scan(&rcd.ID, &e.ID, &e.AggregateID, &e.Type, &e.Payload, &e.Traceparent, &e.Tracestate, &createdAt); err != nil {
			return nil, err
		}
		e.CreatedAt = createdAt
		records = append(records, rcd)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return records, nil
}

func (r *Repository) MarkPublished(ctx context.Context, tx pgx.Tx, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := tx.Exec(ctx, `
		UPDATE outbox_events
		SET published_at = now()
		WHERE id = ANY($1)
	`, ids)
	return err
}
