package storage

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/changefeed"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/model"
)

type recorder struct {
	mu     sync.Mutex
	events []changefeed.Event
}

func (r *recorder) Publish(_ context.Context, e changefeed.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func TestNotifyingPublishesOnlySuccessfulMutations(t *testing.T) {
	ctx := context.Background()
	rec := &recorder{}
	s := NewNotifying(NewMemoryStore(time.UTC, nil), rec)

	if _, err := s.InsertIfNoOverlap(ctx, appt("a", 600, 30), nil); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if _, err := s.InsertIfNoOverlap(ctx, appt("b", 600, 30), nil); !errors.Is(err, ErrConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
	if _, _, err := s.UpdateStatus(ctx, "a", model.StatusCancelled, day, nil); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if _, _, err := s.UpdateStatus(ctx, "a", model.StatusCancelled, day, nil); err != nil {
		t.Fatalf("repeat cancel: %v", err)
	}
	if _, claimed, _ := s.MarkReminderSent(ctx, "a", nil); claimed {
		t.Fatal("cancelled appointments cannot be claimed")
	}

	if len(rec.events) != 2 {
		t.Fatalf("expected 2 events, got %+v", rec.events)
	}
	if rec.events[0].Kind != changefeed.KindInsert || rec.events[0].Snapshot.Status != model.StatusConfirmed {
		t.Fatalf("unexpected insert event %+v", rec.events[0])
	}
	if rec.events[1].Kind != changefeed.KindUpdate || rec.events[1].Snapshot.Status != model.StatusCancelled {
		t.Fatalf("unexpected update event %+v", rec.events[1])
	}
	if rec.events[1].AppointmentID != "a" || rec.events[1].Collection != changefeed.CollectionAppointments {
		t.Fatalf("unexpected envelope %+v", rec.events[1])
	}
}
