package model

import (
	"strings"
	"time"
)

type Status string

const (
	StatusConfirmed Status = "confirmed"
	StatusCancelled Status = "cancelled"
	// StatusCompleted is never stored; see lifecycle.Derive.
	StatusCompleted Status = "completed"
)

// Appointment is one customer reservation. Service label and price are
// snapshotted at booking time so later catalog edits do not rewrite history.
type Appointment struct {
	ID              string     `json:"id"`
	ReservationCode string     `json:"reservation_code"`
	ServiceID       string     `json:"service_id"`
	ServiceLabel    string     `json:"service_label"`
	PriceCents      int64      `json:"price_cents"`
	PriceOnRequest  bool       `json:"price_on_request,omitempty"`
	CustomerName    string     `json:"customer_name"`
	CustomerPhone   string     `json:"customer_phone"`
	Locale          string     `json:"locale"`
	StartTime       time.Time  `json:"start_time"`
	EndTime         time.Time  `json:"end_time"`
	Status          Status     `json:"status"`
	ReminderSent    bool       `json:"reminder_sent"`
	CancelledAt     *time.Time `json:"cancelled_at,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
}

// Overlaps reports whether [start,end) intersects the appointment's
// half-open interval. Back-to-back appointments do not overlap.
func (a Appointment) Overlaps(start, end time.Time) bool {
	return start.Before(a.EndTime) && a.StartTime.Before(end)
}

// ReservationCode derives the short code read out to customers from the
// appointment id: its first eight hex digits, upper-cased.
func ReservationCode(id string) string {
	code := strings.ToUpper(strings.ReplaceAll(id, "-", ""))
	if len(code) > 8 {
		code = code[:8]
	}
	return code
}
