// Package changefeed fans appointment mutations out to live observers such as
// the staff dashboard. Delivery is best effort: a subscriber that falls behind
// is disconnected and is expected to reload state through the list endpoint.
package changefeed

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/metrics"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/model"
)

const CollectionAppointments = "appointments"

type Kind string

const (
	KindInsert Kind = "insert"
	KindUpdate Kind = "update"
)

type Event struct {
	Collection    string            `json:"collection"`
	AppointmentID string            `json:"appointment_id"`
	Kind          Kind              `json:"kind"`
	Snapshot      model.Appointment `json:"snapshot"`
	OccurredAt    time.Time         `json:"occurred_at"`
}

func NewEvent(kind Kind, snapshot model.Appointment) Event {
	return Event{
		Collection:    CollectionAppointments,
		AppointmentID: snapshot.ID,
		Kind:          kind,
		Snapshot:      snapshot,
		OccurredAt:    time.Now().UTC(),
	}
}

// Publisher accepts events for delivery. Publish never blocks on observers.
type Publisher interface {
	Publish(ctx context.Context, e Event)
}

type Subscription struct {
	id      uint64
	ch      chan Event
	dropped bool
}

// C is closed when the subscription ends.
func (s *Subscription) C() <-chan Event { return s.ch }

// Dropped reports whether the hub closed the subscription because it lagged.
// Only meaningful after C is closed.
func (s *Subscription) Dropped() bool { return s.dropped }

type Hub struct {
	mu      sync.Mutex
	subs    map[uint64]*Subscription
	nextID  uint64
	buffer  int
	closed  bool
	logger  *slog.Logger
	metrics *metrics.Metrics
}

func NewHub(buffer int, logger *slog.Logger, m *metrics.Metrics) *Hub {
	if buffer <= 0 {
		buffer = 64
	}
	return &Hub{
		subs:    map[uint64]*Subscription{},
		buffer:  buffer,
		logger:  logger,
		metrics: m,
	}
}

func (h *Hub) Subscribe() *Subscription {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.nextID++
	s := &Subscription{id: h.nextID, ch: make(chan Event, h.buffer)}
	if h.closed {
		close(s.ch)
		return s
	}
	h.subs[s.id] = s
	h.metrics.SubscriberAdded()
	return s
}

func (h *Hub) Unsubscribe(s *Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.subs[s.id]; !ok {
		return
	}
	delete(h.subs, s.id)
	close(s.ch)
	h.metrics.SubscriberRemoved(false)
}

func (h *Hub) Publish(_ context.Context, e Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, s := range h.subs {
		select {
		case s.ch <- e:
		default:
			s.dropped = true
			delete(h.subs, id)
			close(s.ch)
			h.metrics.SubscriberRemoved(true)
			h.logger.Warn("change feed subscriber dropped", "subscriber", id, "buffer", h.buffer)
		}
	}
}

func (h *Hub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// Close ends every subscription; later subscriptions are closed immediately.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for id, s := range h.subs {
		delete(h.subs, id)
		close(s.ch)
		h.metrics.SubscriberRemoved(false)
	}
}
