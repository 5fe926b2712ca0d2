// Package lifecycle owns appointment status changes after booking. The only
// stored transition is confirmed -> cancelled; "completed" is computed from
// the clock and never written.
package lifecycle

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	otelx "github.com/md-rashed-zaman/slotbook/libs/otel"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/metrics"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/outbox"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/storage"
	"go.opentelemetry.io/otel/attribute"
)

// Derive returns the status shown to staff: completed once a confirmed
// appointment has ended.
func Derive(a model.Appointment, now time.Time) model.Status {
	if a.Status == model.StatusConfirmed && a.EndTime.Before(now) {
		return model.StatusCompleted
	}
	return a.Status
}

// Present returns a copy of a carrying its derived status.
func Present(a model.Appointment, now time.Time) model.Appointment {
	a.Status = Derive(a, now)
	return a
}

// View is a dashboard filter.
type View string

const (
	ViewUpcoming  View = "upcoming"
	ViewCompleted View = "completed"
	ViewCancelled View = "cancelled"
	ViewAll       View = "all"
)

func ParseView(s string) (View, error) {
	switch v := View(s); v {
	case "":
		return ViewUpcoming, nil
	case ViewUpcoming, ViewCompleted, ViewCancelled, ViewAll:
		return v, nil
	default:
		return "", fmt.Errorf("unknown filter %q", s)
	}
}

type Manager struct {
	store   storage.Store
	logger  *slog.Logger
	metrics *metrics.Metrics
	now     func() time.Time
}

func NewManager(store storage.Store, logger *slog.Logger, m *metrics.Metrics) *Manager {
	return &Manager{store: store, logger: logger, metrics: m, now: time.Now}
}

// Cancel marks an appointment cancelled. Cancelling twice is not an error and
// emits a single cancellation event. A completed appointment may be cancelled;
// it only changes what the dashboard shows.
func (m *Manager) Cancel(ctx context.Context, id string) (model.Appointment, error) {
	ctx, span := otelx.Tracer("lifecycle").Start(ctx, "lifecycle.Cancel")
	defer span.End()
	span.SetAttributes(attribute.String("appointment_id", id))

	now := m.now()
	a, changed, err := m.store.UpdateStatus(ctx, id, model.StatusCancelled, now, func(a model.Appointment) ([]outbox.Event, error) {
		e, err := outbox.NewEvent(ctx, outbox.TopicAppointmentCancelled, a)
		return []outbox.Event{e}, err
	})
	if err != nil {
		span.RecordError(err)
		return model.Appointment{}, err
	}
	if changed {
		m.metrics.Cancelled()
		m.logger.InfoContext(ctx, "appointment cancelled", "appointment_id", id)
	}
	return Present(a, now), nil
}

// List returns appointments intersecting [from, to) that fall under view,
// each carrying its derived status. Zero bounds default to a year either side
// of now, narrowed to the future for upcoming and the past for completed.
func (m *Manager) List(ctx context.Context, view View, from, to time.Time) ([]model.Appointment, error) {
	now := m.now()
	if from.IsZero() {
		from = now.AddDate(-1, 0, 0)
		if view == ViewUpcoming {
			from = now
		}
	}
	if to.IsZero() {
		to = now.AddDate(1, 0, 0)
		if view == ViewCompleted {
			to = now
		}
	}

	filter := storage.FilterAll
	switch view {
	case ViewUpcoming, ViewCompleted:
		filter = storage.FilterConfirmed
	case ViewCancelled:
		filter = storage.FilterCancelled
	}
	appts, err := m.store.QueryByDateRange(ctx, from, to, filter)
	if err != nil {
		return nil, err
	}

	out := make([]model.Appointment, 0, len(appts))
	for _, a := range appts {
		p := Present(a, now)
		switch {
		case view == ViewUpcoming && p.Status != model.StatusConfirmed:
			continue
		case view == ViewCompleted && p.Status != model.StatusCompleted:
			continue
		}
		out = append(out, p)
	}
	if view == ViewCompleted || view == ViewCancelled {
		// Most recent first.
		sort.SliceStable(out, func(i, j int) bool { return out[i].StartTime.After(out[j].StartTime) })
	}
	return out, nil
}

func (m *Manager) Stats(ctx context.Context) (storage.Stats, error) {
	return m.store.Stats(ctx, m.now())
}
