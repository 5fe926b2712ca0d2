package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/md-rashed-zaman/slotbook/libs/db"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/outbox"
)

const appointmentColumns = `id, reservation_code, service_id, service_label, price_cents, price_on_request,
	customer_name, customer_phone, locale, start_time, end_time, status, reminder_sent, cancelled_at, created_at`

// PostgresStore relies on the appointments_no_overlap exclusion constraint:
// concurrent overlapping inserts are serialized by Postgres and all but one
// fail with SQLSTATE 23P01.
type PostgresStore struct {
	db     db.Querier
	outbox *outbox.Repository
	loc    *time.Location
}

func NewPostgresStore(q db.Querier, repo *outbox.Repository, loc *time.Location) *PostgresStore {
	if loc == nil {
		loc = time.UTC
	}
	return &PostgresStore{db: q, outbox: repo, loc: loc}
}

func (s *PostgresStore) InsertIfNoOverlap(ctx context.Context, a model.Appointment, emit Emit) (model.Appointment, error) {
	if !a.EndTime.After(a.StartTime) {
		return model.Appointment{}, ErrInvalidRange
	}
	a.Status = model.StatusConfirmed

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return model.Appointment{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	err = tx.QueryRow(ctx, `
		INSERT INTO appointments
			(id, reservation_code, service_id, service_label, price_cents, price_on_request,
			 customer_name, customer_phone, locale, start_time, end_time, status, reminder_sent)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING created_at
	`, a.ID, a.ReservationCode, a.ServiceID, a.ServiceLabel, a.PriceCents, a.PriceOnRequest,
		a.CustomerName, a.CustomerPhone, a.Locale, a.StartTime, a.EndTime, string(a.Status), a.ReminderSent).Scan(&a.CreatedAt)
	if err != nil {
		if db.IsExclusionViolation(err) || db.IsUniqueViolation(err) {
			return model.Appointment{}, ErrConflict
		}
		return model.Appointment{}, fmt.Errorf("insert appointment: %w", err)
	}
	a.CreatedAt = a.CreatedAt.In(s.loc)

	if err := s.writeEvents(ctx, tx, emit, a); err != nil {
		return model.Appointment{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return model.Appointment{}, err
	}
	return a, nil
}

func (s *PostgresStore) UpdateStatus(ctx context.Context, id string, status model.Status, at time.Time, emit Emit) (model.Appointment, bool, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return model.Appointment{}, false, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	cur, err := s.scan(tx.QueryRow(ctx, `SELECT `+appointmentColumns+` FROM appointments WHERE id = $1 FOR UPDATE`, id))
	if err != nil {
		return model.Appointment{}, false, err
	}
	next, changed, err := transition(cur, status, at)
	if err != nil || !changed {
		return cur, false, err
	}

	if _, err := tx.Exec(ctx, `
		UPDATE appointments
		SET status = $2,
			cancelled_at = $3
		WHERE id = $1
	`, id, string(next.Status), next.CancelledAt); err != nil {
		return cur, false, fmt.Errorf("update status: %w", err)
	}
	if err := s.writeEvents(ctx, tx, emit, next); err != nil {
		return cur, false, err
	}
	if err := tx.Commit(ctx); err != nil {
		return cur, false, err
	}
	return next, true, nil
}

func (s *PostgresStore) MarkReminderSent(ctx context.Context, id string, emit Emit) (model.Appointment, bool, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return model.Appointment{}, false, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	a, err := s.scan(tx.QueryRow(ctx, `
		UPDATE appointments
		SET reminder_sent = true
		WHERE id = $1 AND reminder_sent = false AND status = 'confirmed'
		RETURNING `+appointmentColumns, id))
	if errors.Is(err, ErrNotFound) {
		// Someone else claimed it, or it was cancelled meanwhile.
		return model.Appointment{}, false, nil
	}
	if err != nil {
		return model.Appointment{}, false, err
	}
	if err := s.writeEvents(ctx, tx, emit, a); err != nil {
		return model.Appointment{}, false, err
	}
	if err := tx.Commit(ctx); err != nil {
		return model.Appointment{}, false, err
	}
	return a, true, nil
}

func (s *PostgresStore) Get(ctx context.Context, id string) (model.Appointment, error) {
	return s.scan(s.db.QueryRow(ctx, `SELECT `+appointmentColumns+` FROM appointments WHERE id = $1`, id))
}

func (s *PostgresStore) QueryByDateRange(ctx context.Context, start, end time.Time, filter StatusFilter) ([]model.Appointment, error) {
	return s.list(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE start_time < $2
			AND end_time > $1
			AND ($3 = '' OR status = $3)
		ORDER BY start_time ASC, id ASC
	`, start, end, string(filter))
}

func (s *PostgresStore) ReminderCandidates(ctx context.Context, from, to time.Time, limit int) ([]model.Appointment, error) {
	if limit <= 0 {
		limit = 100
	}
	return s.list(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE status = 'confirmed'
			AND reminder_sent = false
			AND start_time > $1
			AND start_time <= $2
		ORDER BY start_time ASC
		LIMIT $3
	`, from, to, limit)
}

func (s *PostgresStore) Stats(ctx context.Context, now time.Time) (Stats, error) {
	var st Stats
	err := s.db.QueryRow(ctx, `
		SELECT count(*),
			count(*) FILTER (WHERE status = 'confirmed' AND end_time >= $1),
			count(*) FILTER (WHERE status = 'confirmed' AND end_time < $1),
			count(*) FILTER (WHERE status = 'cancelled')
		FROM appointments
	`, now).Scan(&st.Total, &st.Upcoming, &st.Completed, &st.Cancelled)
	return st, err
}

func (s *PostgresStore) writeEvents(ctx context.Context, tx pgx.Tx, emit Emit, a model.Appointment) error {
	events, err := runEmit(emit, a)
	if err != nil {
		return err
	}
	for _, e := range events {
		if err := s.outbox.Insert(ctx, tx, e); err != nil {
			return fmt.Errorf("insert outbox event: %w", err)
		}
	}
	return nil
}

func (s *PostgresStore) list(ctx context.Context, sql string, args ...any) ([]model.Appointment, error) {
	rows, err := s.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Appointment
	for rows.Next() {
		a, err := s.scan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *PostgresStore) scan(row pgx.Row) (model.Appointment, error) {
	var (
		a           model.Appointment
		status      string
		cancelledAt *time.Time
	)
	err := row.Scan(
		&a.ID,
		&a.ReservationCode,
		&a.ServiceID,
		&a.ServiceLabel,
		&a.PriceCents,
		&a.PriceOnRequest,
		&a.CustomerName,
		&a.CustomerPhone,
		&a.Locale,
		&a.StartTime,
		&a.EndTime,
		&status,
		&a.ReminderSent,
		&cancelledAt,
		&a.CreatedAt,
	)
	// A malformed id can never match a uuid primary key.
	if errors.Is(err, pgx.ErrNoRows) || db.IsInvalidTextRepresentation(err) {
		return model.Appointment{}, ErrNotFound
	}
	if err != nil {
		return model.Appointment{}, err
	}
	a.Status = model.Status(status)
	a.StartTime = a.StartTime.In(s.loc)
	a.EndTime = a.EndTime.In(s.loc)
	a.CreatedAt = a.CreatedAt.In(s.loc)
	if cancelledAt != nil {
		t := cancelledAt.In(s.loc)
		a.CancelledAt = &t
	}
	return a, nil
}
