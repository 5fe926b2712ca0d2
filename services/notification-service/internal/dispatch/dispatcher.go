// Package dispatch turns booking events into SMS sends.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/md-rashed-zaman/slotbook/libs/kafkax"
	"github.com/md-rashed-zaman/slotbook/services/notification-service/internal/messages"
	"github.com/md-rashed-zaman/slotbook/services/notification-service/internal/sms"
	"github.com/segmentio/kafka-go"
)

type Dispatcher struct {
	sender sms.Sender
	loc    *time.Location
	logger *slog.Logger
}

func New(sender sms.Sender, loc *time.Location, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{sender: sender, loc: loc, logger: logger}
}

// Handle renders and sends one message. Malformed or unknown events are
// logged and skipped; only delivery failures are returned.
func (d *Dispatcher) Handle(ctx context.Context, msg kafka.Message) error {
	eventType := kafkax.HeaderValue(msg.Headers, kafkax.HeaderEventType)
	if eventType == "" {
		eventType = msg.Topic
	}
	payload, err := messages.Decode(msg.Value)
	if err != nil {
		d.logger.ErrorContext(ctx, "invalid booking payload", "err", err, "topic", msg.Topic)
		return nil
	}
	body, err := messages.Render(eventType, payload, d.loc)
	if errors.Is(err, messages.ErrUnsupportedEvent) {
		d.logger.WarnContext(ctx, "event ignored", "event_type", eventType)
		return nil
	}
	if err != nil {
		d.logger.ErrorContext(ctx, "render failed", "err", err, "appointment_id", payload.AppointmentID)
		return nil
	}

	if err := d.sender.Send(ctx, payload.CustomerPhone, body); err != nil {
		return fmt.Errorf("send %s for %s: %w", eventType, payload.AppointmentID, err)
	}
	d.logger.InfoContext(ctx, "sms sent",
		"appointment_id", payload.AppointmentID,
		"event_type", eventType,
		"provider", d.sender.ProviderID(),
	)
	return nil
}
