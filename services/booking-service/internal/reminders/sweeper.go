// Package reminders finds confirmed appointments entering the reminder lead
// window and claims each one exactly once. A claim writes a
// booking.reminder.due.v1 outbox event in the same transaction as the flag,
// so the SMS is triggered once even with several sweepers running.
package reminders

import (
	"context"
	"log/slog"
	"time"

	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/metrics"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/outbox"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/storage"
)

type Sweeper struct {
	store     storage.Store
	logger    *slog.Logger
	metrics   *metrics.Metrics
	lead      time.Duration
	interval  time.Duration
	batchSize int
	now       func() time.Time
}

type Config struct {
	Lead      time.Duration
	Interval  time.Duration
	BatchSize int
}

func NewSweeper(store storage.Store, logger *slog.Logger, m *metrics.Metrics, cfg Config) *Sweeper {
	if cfg.Lead <= 0 {
		cfg.Lead = 24 * time.Hour
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 10 * time.Minute
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	return &Sweeper{
		store:     store,
		logger:    logger,
		metrics:   m,
		lead:      cfg.Lead,
		interval:  cfg.Interval,
		batchSize: cfg.BatchSize,
		now:       time.Now,
	}
}

// Run sweeps once immediately and then on every tick until ctx is done.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		if n, err := s.Sweep(ctx); err != nil {
			s.logger.Error("reminder sweep failed", "err", err)
		} else if n > 0 {
			s.logger.Info("reminders claimed", "count", n)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Sweep claims reminders for appointments starting in (now, now+lead] and
// returns how many this call won.
func (s *Sweeper) Sweep(ctx context.Context) (int, error) {
	now := s.now()
	candidates, err := s.store.ReminderCandidates(ctx, now, now.Add(s.lead), s.batchSize)
	if err != nil {
		return 0, err
	}

	claimed := 0
	for _, c := range candidates {
		_, ok, err := s.store.MarkReminderSent(ctx, c.ID, func(a model.Appointment) ([]outbox.Event, error) {
			e, err := outbox.NewEvent(ctx, outbox.TopicReminderDue, a)
			return []outbox.Event{e}, err
		})
		if err != nil {
			// Leave it unclaimed; the next sweep retries.
			s.logger.Warn("reminder claim failed", "err", err, "appointment_id", c.ID)
			continue
		}
		s.metrics.ReminderClaim(ok)
		if ok {
			claimed++
		}
	}
	return claimed, nil
}
