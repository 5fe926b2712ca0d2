package lifecycle

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/outbox"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/storage"
)

var now = time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)

func seed(t *testing.T, s storage.Store, id string, start time.Time) {
	t.Helper()
	_, err := s.InsertIfNoOverlap(context.Background(), model.Appointment{
		ID:        id,
		StartTime: start,
		EndTime:   start.Add(30 * time.Minute),
	}, nil)
	if err != nil {
		t.Fatalf("seed %s: %v", id, err)
	}
}

func newManager(t *testing.T) (*Manager, *storage.MemoryStore, *outbox.Queue) {
	t.Helper()
	q := outbox.NewQueue()
	store := storage.NewMemoryStore(time.UTC, q)
	m := NewManager(store, slog.New(slog.NewTextHandler(io.Discard, nil)), nil)
	m.now = func() time.Time { return now }
	return m, store, q
}

func TestDerive(t *testing.T) {
	a := model.Appointment{
		StartTime: now.Add(-time.Hour),
		EndTime:   now.Add(-30 * time.Minute),
		Status:    model.StatusConfirmed,
	}
	if got := Derive(a, now); got != model.StatusCompleted {
		t.Fatalf("expected completed, got %s", got)
	}
	if got := Derive(a, a.EndTime); got != model.StatusConfirmed {
		t.Fatalf("an appointment ending exactly now is not completed yet, got %s", got)
	}
	a.Status = model.StatusCancelled
	if got := Derive(a, now); got != model.StatusCancelled {
		t.Fatalf("cancelled never becomes completed, got %s", got)
	}
}

func TestCancelIsIdempotent(t *testing.T) {
	m, store, q := newManager(t)
	seed(t, store, "a", now.Add(2*time.Hour))

	first, err := m.Cancel(context.Background(), "a")
	if err != nil || first.Status != model.StatusCancelled {
		t.Fatalf("first cancel: %+v %v", first, err)
	}
	second, err := m.Cancel(context.Background(), "a")
	if err != nil || second.Status != model.StatusCancelled {
		t.Fatalf("second cancel: %+v %v", second, err)
	}
	events := q.Drain()
	if len(events) != 1 || events[0].Type != outbox.TopicAppointmentCancelled {
		t.Fatalf("expected one cancellation event, got %+v", events)
	}

	if _, err := m.Cancel(context.Background(), "missing"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestCancelCompletedAppointment(t *testing.T) {
	m, store, _ := newManager(t)
	seed(t, store, "done", now.Add(-2*time.Hour))

	got, err := m.Cancel(context.Background(), "done")
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if got.Status != model.StatusCancelled {
		t.Fatalf("expected cancelled, got %s", got.Status)
	}
}

func TestListViews(t *testing.T) {
	m, store, _ := newManager(t)
	seed(t, store, "past-1", now.Add(-48*time.Hour))
	seed(t, store, "past-2", now.Add(-3*time.Hour))
	seed(t, store, "next-1", now.Add(time.Hour))
	seed(t, store, "next-2", now.Add(26*time.Hour))
	seed(t, store, "cancelled", now.Add(3*time.Hour))
	if _, err := m.Cancel(context.Background(), "cancelled"); err != nil {
		t.Fatalf("cancel: %v", err)
	}

	ids := func(appts []model.Appointment) []string {
		out := make([]string, len(appts))
		for i, a := range appts {
			out[i] = a.ID
		}
		return out
	}
	check := func(view View, want ...string) {
		t.Helper()
		got, err := m.List(context.Background(), view, time.Time{}, time.Time{})
		if err != nil {
			t.Fatalf("List(%s): %v", view, err)
		}
		g := ids(got)
		if len(g) != len(want) {
			t.Fatalf("List(%s) = %v, want %v", view, g, want)
		}
		for i := range want {
			if g[i] != want[i] {
				t.Fatalf("List(%s) = %v, want %v", view, g, want)
			}
		}
	}

	check(ViewUpcoming, "next-1", "next-2")
	check(ViewCompleted, "past-2", "past-1")
	check(ViewCancelled, "cancelled")
	check(ViewAll, "past-1", "past-2", "next-1", "cancelled", "next-2")

	all, _ := m.List(context.Background(), ViewAll, time.Time{}, time.Time{})
	if all[0].Status != model.StatusCompleted {
		t.Fatalf("past appointments should be presented as completed, got %s", all[0].Status)
	}

	st, err := m.Stats(context.Background())
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if st != (storage.Stats{Total: 5, Upcoming: 2, Completed: 2, Cancelled: 1}) {
		t.Fatalf("unexpected stats %+v", st)
	}
}

func TestParseView(t *testing.T) {
	if v, err := ParseView(""); err != nil || v != ViewUpcoming {
		t.Fatalf("empty filter should default to upcoming, got %q %v", v, err)
	}
	if _, err := ParseView("archived"); err == nil {
		t.Fatal("expected error for unknown filter")
	}
}
