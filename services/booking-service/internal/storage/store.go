// Package storage is the system of record for appointments. Every
// implementation guarantees that no two confirmed appointments overlap and
// that outbox events are recorded atomically with the mutation they describe.
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/outbox"
)

var (
	ErrConflict          = errors.New("appointment overlaps an existing confirmed appointment")
	ErrNotFound          = errors.New("appointment not found")
	ErrInvalidRange      = errors.New("appointment end must be after start")
	ErrInvalidTransition = errors.New("invalid status transition")
)

// StatusFilter restricts queries to one stored status. The zero value matches all.
type StatusFilter string

const (
	FilterAll       StatusFilter = ""
	FilterConfirmed StatusFilter = StatusFilter(model.StatusConfirmed)
	FilterCancelled StatusFilter = StatusFilter(model.StatusCancelled)
)

func (f StatusFilter) match(s model.Status) bool {
	return f == FilterAll || model.Status(f) == s
}

// Emit builds the outbox events for a mutation from the post-mutation
// snapshot. It runs inside the store's transaction; an error aborts the
// mutation. A nil Emit records no events.
type Emit func(model.Appointment) ([]outbox.Event, error)

type Stats struct {
	Total     int `json:"total"`
	Upcoming  int `json:"upcoming"`
	Completed int `json:"completed"`
	Cancelled int `json:"cancelled"`
}

type Store interface {
	// InsertIfNoOverlap commits a as confirmed unless it overlaps a confirmed
	// appointment, in which case it returns ErrConflict and changes nothing.
	InsertIfNoOverlap(ctx context.Context, a model.Appointment, emit Emit) (model.Appointment, error)
	// UpdateStatus moves an appointment to status. Repeating the current
	// status is a no-op reported as changed=false; emit only runs on change.
	UpdateStatus(ctx context.Context, id string, status model.Status, at time.Time, emit Emit) (model.Appointment, bool, error)
	// MarkReminderSent claims the reminder of a confirmed appointment. Exactly
	// one caller observes claimed=true.
	MarkReminderSent(ctx context.Context, id string, emit Emit) (model.Appointment, bool, error)
	Get(ctx context.Context, id string) (model.Appointment, error)
	// QueryByDateRange returns appointments intersecting [start, end) ordered by start.
	QueryByDateRange(ctx context.Context, start, end time.Time, filter StatusFilter) ([]model.Appointment, error)
	// ReminderCandidates lists confirmed, unreminded appointments starting in (from, to].
	ReminderCandidates(ctx context.Context, from, to time.Time, limit int) ([]model.Appointment, error)
	Stats(ctx context.Context, now time.Time) (Stats, error)
}

// transition applies the stored status state machine:
// confirmed -> cancelled, and same-status no-ops. Cancelled is terminal.
func transition(cur model.Appointment, to model.Status, at time.Time) (model.Appointment, bool, error) {
	switch to {
	case model.StatusConfirmed, model.StatusCancelled:
	default:
		return cur, false, ErrInvalidTransition
	}
	if cur.Status == to {
		return cur, false, nil
	}
	if cur.Status == model.StatusCancelled {
		return cur, false, ErrInvalidTransition
	}
	next := cur
	next.Status = to
	if to == model.StatusCancelled {
		ts := at
		next.CancelledAt = &ts
	}
	return next, true, nil
}

func runEmit(emit Emit, a model.Appointment) ([]outbox.Event, error) {
	if emit == nil {
		return nil, nil
	}
	return emit(a)
}
