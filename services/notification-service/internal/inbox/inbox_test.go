package inbox

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v4"
)

func TestRepositoryRecord(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock: %v", err)
	}
	defer mock.Close()

	mock.ExpectExec(`INSERT INTO inbox_events`).
		WithArgs("evt-1", "booking.appointment.booked.v1").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec(`INSERT INTO inbox_events`).
		WithArgs("evt-1", "booking.appointment.booked.v1").
		WillReturnError(&pgconn.PgError{Code: "23505"})
	mock.ExpectExec(`INSERT INTO inbox_events`).
		WithArgs("evt-2", "booking.appointment.booked.v1").
		WillReturnError(errors.New("connection reset"))

	repo := NewRepository(mock)
	ctx := context.Background()

	if first, err := repo.Record(ctx, "evt-1", "booking.appointment.booked.v1"); err != nil || !first {
		t.Fatalf("first record: %v %v", first, err)
	}
	if first, err := repo.Record(ctx, "evt-1", "booking.appointment.booked.v1"); err != nil || first {
		t.Fatalf("duplicate should be reported, got %v %v", first, err)
	}
	if _, err := repo.Record(ctx, "evt-2", "booking.appointment.booked.v1"); err == nil {
		t.Fatal("expected db error")
	}
	if _, err := repo.Record(ctx, "", "x"); !errors.Is(err, ErrMissingEventID) {
		t.Fatalf("expected ErrMissingEventID, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestMemoryEvictsOldest(t *testing.T) {
	m := NewMemory(2)
	ctx := context.Background()
	for _, id := range []string{"a", "b", "c"} {
		if ok, _ := m.Record(ctx, id, ""); !ok {
			t.Fatalf("%s should be new", id)
		}
	}
	if ok, _ := m.Record(ctx, "c", ""); ok {
		t.Fatal("c is a duplicate")
	}
	if ok, _ := m.Record(ctx, "a", ""); !ok {
		t.Fatal("a should have been evicted")
	}
}

func TestForgetAllowsRedelivery(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock: %v", err)
	}
	defer mock.Close()
	mock.ExpectExec(`DELETE FROM inbox_events WHERE event_id = \$1`).
		WithArgs("evt-1").
		WillReturnResult(pgxmock.NewResult("DELETE", 1))
	if err := NewRepository(mock).Forget(context.Background(), "evt-1"); err != nil {
		t.Fatalf("forget: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}

	m := NewMemory(10)
	ctx := context.Background()
	_, _ = m.Record(ctx, "evt-1", "")
	if err := m.Forget(ctx, "evt-1"); err != nil {
		t.Fatalf("forget: %v", err)
	}
	if ok, _ := m.Record(ctx, "evt-1", ""); !ok {
		t.Fatal("evt-1 should be recorded again after Forget")
	}
}
