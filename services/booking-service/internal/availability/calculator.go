package availability

import (
	"time"

	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/model"
)

// Calculator computes bookable start times for one day. It is a pure function
// of its inputs; the result is advisory and re-checked at commit time.
type Calculator struct {
	Hours Hours
}

func NewCalculator(h Hours) Calculator {
	return Calculator{Hours: h}
}

// Slots lists start times t on day's opening window, every Granularity, such
// that [t, t+d) overlaps no confirmed appointment and t is not before now.
func (c Calculator) Slots(day time.Time, d time.Duration, appts []model.Appointment, now time.Time) []time.Time {
	start, end, open := c.Hours.Window(day)
	if !open {
		return nil
	}
	busy := make([]Interval, 0, len(appts))
	for _, a := range appts {
		if a.Status != model.StatusConfirmed {
			continue
		}
		busy = append(busy, Interval{Start: a.StartTime, End: a.EndTime})
	}
	return AvailableSlots(start, end, d, c.Hours.Granularity, busy, now)
}

// Format renders slot start times as HH:MM in the shop's timezone.
func (c Calculator) Format(slots []time.Time) []string {
	out := make([]string, 0, len(slots))
	for _, s := range slots {
		out = append(out, s.In(c.Hours.Location).Format("15:04"))
	}
	return out
}
