// Package metrics holds the booking-service Prometheus collectors. A nil
// *Metrics is valid and records nothing, which keeps tests free of registries.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

type Metrics struct {
	bookings        *prometheus.CounterVec
	cancellations   prometheus.Counter
	remindersClaims *prometheus.CounterVec
	outboxPublished *prometheus.CounterVec
	outboxFailures  prometheus.Counter
	feedSubscribers prometheus.Gauge
	feedDropped     prometheus.Counter
}

func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		bookings: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "slotbook",
			Name:      "booking_attempts_total",
			Help:      "Booking submissions by outcome.",
		}, []string{"outcome"}),
		cancellations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "slotbook",
			Name:      "cancellations_total",
			Help:      "Appointments moved to cancelled.",
		}),
		remindersClaims: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "slotbook",
			Name:      "reminder_claims_total",
			Help:      "Reminder claim attempts by result.",
		}, []string{"result"}),
		outboxPublished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "slotbook",
			Name:      "outbox_published_total",
			Help:      "Outbox events delivered to Kafka by topic.",
		}, []string{"topic"}),
		outboxFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "slotbook",
			Name:      "outbox_publish_failures_total",
			Help:      "Failed outbox publish batches.",
		}),
		feedSubscribers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "slotbook",
			Name:      "changefeed_subscribers",
			Help:      "Connected change feed subscribers.",
		}),
		feedDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "slotbook",
			Name:      "changefeed_dropped_subscribers_total",
			Help:      "Subscribers disconnected for falling behind.",
		}),
	}
	reg.MustRegister(m.bookings, m.cancellations, m.remindersClaims, m.outboxPublished, m.outboxFailures, m.feedSubscribers, m.feedDropped)
	return m
}

// Booking outcomes.
const (
	OutcomeBooked    = "booked"
	OutcomeSlotTaken = "slot_taken"
	OutcomeInvalid   = "invalid"
	OutcomeError     = "error"
)

func (m *Metrics) BookingOutcome(outcome string) {
	if m == nil {
		return
	}
	m.bookings.WithLabelValues(outcome).Inc()
}

func (m *Metrics) Cancelled() {
	if m == nil {
		return
	}
	m.cancellations.Inc()
}

// ReminderClaim records "claimed" or "lost" (another sweeper won).
func (m *Metrics) ReminderClaim(claimed bool) {
	if m == nil {
		return
	}
	result := "lost"
	if claimed {
		result = "claimed"
	}
	m.remindersClaims.WithLabelValues(result).Inc()
}

func (m *Metrics) OutboxPublished(topic string, n int) {
	if m == nil {
		return
	}
	m.outboxPublished.WithLabelValues(topic).Add(float64(n))
}

func (m *Metrics) OutboxFailure() {
	if m == nil {
		return
	}
	m.outboxFailures.Inc()
}

func (m *Metrics) SubscriberAdded() {
	if m == nil {
		return
	}
	m.feedSubscribers.Inc()
}

func (m *Metrics) SubscriberRemoved(dropped bool) {
	if m == nil {
		return
	}
	m.feedSubscribers.Dec()
	if dropped {
		m.feedDropped.Inc()
	}
}
