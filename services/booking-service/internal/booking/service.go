// Package booking turns a customer's booking request into a committed
// appointment, or a typed reason why it cannot be one.
package booking

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/google/uuid"
	otelx "github.com/md-rashed-zaman/slotbook/libs/otel"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/availability"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/catalog"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/metrics"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/outbox"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/storage"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

type Request struct {
	ServiceID     string `json:"service_id"`
	Date          string `json:"date"`
	Time          string `json:"time"`
	CustomerName  string `json:"customer_name"`
	CustomerPhone string `json:"customer_phone"`
	Locale        string `json:"locale"`
}

type Config struct {
	// HorizonDays is how many calendar days, today included, are bookable.
	HorizonDays int
	// ReminderLead is how long before the start the reminder goes out.
	// Appointments booked inside that window get no separate reminder.
	ReminderLead time.Duration
}

type Service struct {
	catalog *catalog.Catalog
	calc    availability.Calculator
	store   storage.Store
	cfg     Config
	logger  *slog.Logger
	metrics *metrics.Metrics
	now     func() time.Time
}

func NewService(cat *catalog.Catalog, calc availability.Calculator, store storage.Store, logger *slog.Logger, m *metrics.Metrics, cfg Config) *Service {
	if cfg.HorizonDays <= 0 {
		cfg.HorizonDays = 14
	}
	return &Service{
		catalog: cat,
		calc:    calc,
		store:   store,
		cfg:     cfg,
		logger:  logger,
		metrics: m,
		now:     time.Now,
	}
}

// Submit validates req, re-checks availability and commits the appointment.
// It returns a *ValidationError, ErrUnknownService, ErrSlotTaken or an
// infrastructure error; nothing is stored unless the error is nil.
func (s *Service) Submit(ctx context.Context, req Request) (model.Appointment, error) {
	ctx, span := otelx.Tracer("booking").Start(ctx, "booking.Submit")
	defer span.End()
	span.SetAttributes(attribute.String("service_id", req.ServiceID), attribute.String("date", req.Date))

	appt, err := s.submit(ctx, req)
	var verr *ValidationError
	switch {
	case err == nil:
		s.metrics.BookingOutcome(metrics.OutcomeBooked)
		span.SetAttributes(attribute.String("appointment_id", appt.ID))
		s.logger.InfoContext(ctx, "appointment booked",
			"appointment_id", appt.ID,
			"service_id", appt.ServiceID,
			"start_time", appt.StartTime,
		)
	case errors.Is(err, ErrSlotTaken):
		s.metrics.BookingOutcome(metrics.OutcomeSlotTaken)
	case errors.As(err, &verr), errors.Is(err, ErrUnknownService):
		s.metrics.BookingOutcome(metrics.OutcomeInvalid)
	default:
		s.metrics.BookingOutcome(metrics.OutcomeError)
		span.RecordError(err)
		span.SetStatus(codes.Error, "booking failed")
		s.logger.ErrorContext(ctx, "booking failed", "err", err, "service_id", req.ServiceID)
	}
	return appt, err
}

func (s *Service) submit(ctx context.Context, req Request) (model.Appointment, error) {
	name, err := normalizeName(req.CustomerName)
	if err != nil {
		return model.Appointment{}, err
	}
	phone, ok := NormalizePhone(req.CustomerPhone)
	if !ok {
		return model.Appointment{}, invalid("customer_phone", "must be in international format, e.g. +33612345678")
	}
	svc, err := s.bookableService(req.ServiceID)
	if err != nil {
		return model.Appointment{}, err
	}
	day, err := s.parseDay(req.Date)
	if err != nil {
		return model.Appointment{}, err
	}
	start, err := s.calc.Hours.At(req.Date, req.Time)
	if err != nil {
		return model.Appointment{}, invalid("time", "must be HH:MM")
	}

	now := s.now()
	if start.Before(now) {
		return model.Appointment{}, invalid("time", "is in the past")
	}
	if err := s.calc.Hours.Fits(start, svc.Duration); err != nil {
		switch {
		case errors.Is(err, availability.ErrClosedDay):
			return model.Appointment{}, invalid("date", err.Error())
		default:
			return model.Appointment{}, invalid("time", err.Error())
		}
	}

	// Advisory pre-check against the current schedule; the store re-checks atomically.
	free, err := s.freeSlots(ctx, day, svc.Duration, now)
	if err != nil {
		return model.Appointment{}, err
	}
	if !slices.ContainsFunc(free, start.Equal) {
		return model.Appointment{}, ErrSlotTaken
	}

	locale := catalog.NormalizeLocale(req.Locale)
	id := uuid.NewString()
	appt := model.Appointment{
		ID:              id,
		ReservationCode: model.ReservationCode(id),
		ServiceID:       svc.ID,
		ServiceLabel:    svc.Name(locale),
		PriceCents:      svc.Price.Cents,
		PriceOnRequest:  svc.Price.OnRequest,
		CustomerName:    name,
		CustomerPhone:   phone,
		Locale:          locale,
		StartTime:       start,
		EndTime:         start.Add(svc.Duration),
		Status:          model.StatusConfirmed,
		ReminderSent:    s.cfg.ReminderLead > 0 && !start.After(now.Add(s.cfg.ReminderLead)),
	}

	committed, err := s.store.InsertIfNoOverlap(ctx, appt, func(a model.Appointment) ([]outbox.Event, error) {
		e, err := outbox.NewEvent(ctx, outbox.TopicAppointmentBooked, a)
		return []outbox.Event{e}, err
	})
	if errors.Is(err, storage.ErrConflict) {
		return model.Appointment{}, ErrSlotTaken
	}
	if err != nil {
		return model.Appointment{}, fmt.Errorf("commit appointment: %w", err)
	}
	return committed, nil
}

// Availability lists free HH:MM start times for a service on date.
func (s *Service) Availability(ctx context.Context, serviceID, date string) ([]string, error) {
	svc, err := s.bookableService(serviceID)
	if err != nil {
		return nil, err
	}
	day, err := s.parseDay(date)
	if err != nil {
		return nil, err
	}
	free, err := s.freeSlots(ctx, day, svc.Duration, s.now())
	if err != nil {
		return nil, err
	}
	return s.calc.Format(free), nil
}

// BookableDates lists the dates inside the booking horizon on which the shop is open.
func (s *Service) BookableDates() []string {
	today := s.today()
	var out []string
	for i := 0; i < s.cfg.HorizonDays; i++ {
		d := today.AddDate(0, 0, i)
		if !s.calc.Hours.IsClosed(d) {
			out = append(out, d.Format(time.DateOnly))
		}
	}
	return out
}

func (s *Service) freeSlots(ctx context.Context, day time.Time, d time.Duration, now time.Time) ([]time.Time, error) {
	winStart, winEnd, open := s.calc.Hours.Window(day)
	if !open {
		return nil, nil
	}
	existing, err := s.store.QueryByDateRange(ctx, winStart, winEnd, storage.FilterConfirmed)
	if err != nil {
		return nil, fmt.Errorf("load schedule: %w", err)
	}
	return s.calc.Slots(day, d, existing, now), nil
}

func (s *Service) bookableService(id string) (catalog.Service, error) {
	svc, ok := s.catalog.Get(id)
	if !ok {
		return catalog.Service{}, ErrUnknownService
	}
	if !svc.Bookable() {
		return catalog.Service{}, invalid("service_id", "cannot be booked online, please call the shop")
	}
	return svc, nil
}

// parseDay reads date and checks it lies between today and the horizon.
func (s *Service) parseDay(date string) (time.Time, error) {
	day, err := s.calc.Hours.ParseDate(date)
	if err != nil {
		return time.Time{}, invalid("date", "must be YYYY-MM-DD")
	}
	today := s.today()
	if day.Before(today) {
		return time.Time{}, invalid("date", "is in the past")
	}
	if !day.Before(today.AddDate(0, 0, s.cfg.HorizonDays)) {
		return time.Time{}, invalid("date", fmt.Sprintf("must be within the next %d days", s.cfg.HorizonDays))
	}
	return day, nil
}

func (s *Service) today() time.Time {
	loc := s.calc.Hours.Location
	y, m, d := s.now().In(loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, loc)
}
