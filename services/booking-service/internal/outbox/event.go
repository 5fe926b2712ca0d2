package outbox

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	otelx "github.com/md-rashed-zaman/slotbook/libs/otel"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/model"
)

// Topics consumed by the notification worker. The Kafka topic equals the event type.
const (
	TopicAppointmentBooked    = "booking.appointment.booked.v1"
	TopicAppointmentCancelled = "booking.appointment.cancelled.v1"
	TopicReminderDue          = "booking.reminder.due.v1"
)

// Event is the envelope written to the outbox in the same transaction as the
// appointment mutation it describes.
type Event struct {
	ID          string
	Type        string
	AggregateID string
	Payload     []byte
	Traceparent string
	Tracestate  string
	CreatedAt   time.Time
}

// Payload is what the SMS collaborator needs to render a message.
type Payload struct {
	AppointmentID   string `json:"appointment_id"`
	ReservationCode string `json:"reservation_code"`
	CustomerPhone   string `json:"customer_phone"`
	CustomerName    string `json:"customer_name"`
	ServiceLabel    string `json:"service_label"`
	StartTime       string `json:"start_time"`
	Price           string `json:"price"`
	Locale          string `json:"locale"`
}

func NewPayload(a model.Appointment) Payload {
	price := "on_request"
	if !a.PriceOnRequest {
		price = formatCents(a.PriceCents)
	}
	return Payload{
		AppointmentID:   a.ID,
		ReservationCode: a.ReservationCode,
		CustomerPhone:   a.CustomerPhone,
		CustomerName:    a.CustomerName,
		ServiceLabel:    a.ServiceLabel,
		StartTime:       a.StartTime.Format(time.RFC3339),
		Price:           price,
		Locale:          a.Locale,
	}
}

// NewEvent builds an event of type topic for a, capturing the trace context of ctx.
func NewEvent(ctx context.Context, topic string, a model.Appointment) (Event, error) {
	body, err := json.Marshal(NewPayload(a))
	if err != nil {
		return Event{}, err
	}
	tp, ts := otelx.TraceContextStrings(ctx)
	return Event{
		ID:          uuid.NewString(),
		Type:        topic,
		AggregateID: a.ID,
		Payload:     body,
		Traceparent: tp,
		Tracestate:  ts,
		CreatedAt:   time.Now().UTC(),
	}, nil
}

func formatCents(c int64) string {
	return fmt.Sprintf("%d.%02d", c/100, c%100)
}
