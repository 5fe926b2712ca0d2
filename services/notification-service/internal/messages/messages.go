// Package messages renders the SMS text for booking events.
package messages

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Topics produced by booking-service.
const (
	TopicAppointmentBooked    = "booking.appointment.booked.v1"
	TopicAppointmentCancelled = "booking.appointment.cancelled.v1"
	TopicReminderDue          = "booking.reminder.due.v1"
)

var ErrUnsupportedEvent = errors.New("unsupported event type")

// Payload mirrors the booking-service event body.
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

func Decode(raw []byte) (Payload, error) {
	var p Payload
	if err := json.Unmarshal(raw, &p); err != nil {
		return Payload{}, fmt.Errorf("decode payload: %w", err)
	}
	if p.AppointmentID == "" || p.CustomerPhone == "" || p.StartTime == "" {
		return Payload{}, errors.New("payload missing appointment_id, customer_phone or start_time")
	}
	return p, nil
}

// Render builds the message for eventType in the customer's locale, with
// times shown in loc. Unknown locales get French.
func Render(eventType string, p Payload, loc *time.Location) (string, error) {
	start, err := time.Parse(time.RFC3339, p.StartTime)
	if err != nil {
		return "", fmt.Errorf("start_time: %w", err)
	}
	if loc != nil {
		start = start.In(loc)
	}
	code := p.ReservationCode
	if code == "" {
		code = "N/A"
	}

	en := strings.HasPrefix(strings.ToLower(p.Locale), "en")
	when := formatFrench(start)
	if en {
		when = formatEnglish(start)
	}

	switch eventType {
	case TopicAppointmentBooked:
		if en {
			return fmt.Sprintf("Hello %s, your appointment for %s is confirmed on %s.%s Code: %s.",
				p.CustomerName, p.ServiceLabel, when, priceLine(p.Price, true), code), nil
		}
		return fmt.Sprintf("Bonjour %s, votre RDV pour %s est confirmé le %s.%s Code: %s.",
			p.CustomerName, p.ServiceLabel, when, priceLine(p.Price, false), code), nil
	case TopicReminderDue:
		if en {
			return fmt.Sprintf("Reminder: %s, your appointment for %s is on %s. See you soon! Code: %s.",
				p.CustomerName, p.ServiceLabel, when, code), nil
		}
		return fmt.Sprintf("Rappel : %s, votre RDV pour %s a lieu le %s. À bientôt ! Code: %s.",
			p.CustomerName, p.ServiceLabel, when, code), nil
	case TopicAppointmentCancelled:
		if en {
			return fmt.Sprintf("Hello %s, your appointment for %s on %s has been cancelled. Code: %s.",
				p.CustomerName, p.ServiceLabel, when, code), nil
		}
		return fmt.Sprintf("Bonjour %s, votre RDV pour %s du %s est annulé. Code: %s.",
			p.CustomerName, p.ServiceLabel, when, code), nil
	default:
		return "", fmt.Errorf("%w: %s", ErrUnsupportedEvent, eventType)
	}
}

func priceLine(price string, en bool) string {
	if price == "" || price == "on_request" {
		return ""
	}
	if en {
		return " Price: €" + price + "."
	}
	return " Prix : " + strings.Replace(price, ".", ",", 1) + " €."
}

var (
	frDays   = [...]string{"dimanche", "lundi", "mardi", "mercredi", "jeudi", "vendredi", "samedi"}
	frMonths = [...]string{"janvier", "février", "mars", "avril", "mai", "juin", "juillet", "août", "septembre", "octobre", "novembre", "décembre"}
)

// formatFrench gives "lundi 2 mars à 14:00".
func formatFrench(t time.Time) string {
	return fmt.Sprintf("%s %d %s à %s", frDays[t.Weekday()], t.Day(), frMonths[t.Month()-1], t.Format("15:04"))
}

// formatEnglish gives "Monday 2 March at 14:00".
func formatEnglish(t time.Time) string {
	return t.Format("Monday 2 January") + " at " + t.Format("15:04")
}
