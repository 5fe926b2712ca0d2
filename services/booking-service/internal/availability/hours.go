package availability

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	ErrClosedDay    = errors.New("the shop is closed that day")
	ErrOutsideHours = errors.New("outside opening hours")
	ErrOffGrid      = errors.New("not on the booking grid")
)

// Clock is a wall-clock time of day in the shop's timezone.
type Clock struct {
	Hour   int
	Minute int
}

func ParseClock(s string) (Clock, error) {
	t, err := time.Parse("15:04", strings.TrimSpace(s))
	if err != nil {
		return Clock{}, fmt.Errorf("clock %q: want HH:MM", s)
	}
	return Clock{Hour: t.Hour(), Minute: t.Minute()}, nil
}

func (c Clock) String() string {
	return fmt.Sprintf("%02d:%02d", c.Hour, c.Minute)
}

func (c Clock) minutes() int { return c.Hour*60 + c.Minute }

// On returns the instant c on the calendar day of day, in loc.
func (c Clock) On(day time.Time, loc *time.Location) time.Time {
	y, m, d := day.In(loc).Date()
	return time.Date(y, m, d, c.Hour, c.Minute, 0, 0, loc)
}

func ParseWeekday(s string) (time.Weekday, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for d := time.Sunday; d <= time.Saturday; d++ {
		name := strings.ToLower(d.String())
		if s == name || s == name[:3] {
			return d, nil
		}
	}
	return 0, fmt.Errorf("unknown weekday %q", s)
}

// Hours is the shop's static operating configuration.
type Hours struct {
	Location    *time.Location
	Open        Clock
	Close       Clock
	Granularity time.Duration
	ClosedDays  []time.Weekday
}

func (h Hours) Validate() error {
	if h.Location == nil {
		return errors.New("hours: location is required")
	}
	if h.Close.minutes() <= h.Open.minutes() {
		return fmt.Errorf("hours: close %s must be after open %s", h.Close, h.Open)
	}
	if h.Granularity <= 0 || h.Granularity > 24*time.Hour {
		return fmt.Errorf("hours: invalid granularity %s", h.Granularity)
	}
	return nil
}

func (h Hours) IsClosed(day time.Time) bool {
	wd := day.In(h.Location).Weekday()
	for _, c := range h.ClosedDays {
		if c == wd {
			return true
		}
	}
	return false
}

// Window returns the opening interval of the calendar day containing day.
func (h Hours) Window(day time.Time) (start, end time.Time, open bool) {
	if h.IsClosed(day) {
		return time.Time{}, time.Time{}, false
	}
	return h.Open.On(day, h.Location), h.Close.On(day, h.Location), true
}

// ParseDate reads a YYYY-MM-DD calendar date at midnight in the shop's timezone.
func (h Hours) ParseDate(s string) (time.Time, error) {
	return time.ParseInLocation(time.DateOnly, strings.TrimSpace(s), h.Location)
}

// At combines a calendar date and an HH:MM time in the shop's timezone.
func (h Hours) At(date, clock string) (time.Time, error) {
	day, err := h.ParseDate(date)
	if err != nil {
		return time.Time{}, err
	}
	c, err := ParseClock(clock)
	if err != nil {
		return time.Time{}, err
	}
	return c.On(day, h.Location), nil
}

// Fits checks that [start, start+d) lies inside the opening window of an open
// day and that start is a grid point.
func (h Hours) Fits(start time.Time, d time.Duration) error {
	winStart, winEnd, open := h.Window(start)
	if !open {
		return ErrClosedDay
	}
	if start.Before(winStart) || start.Add(d).After(winEnd) {
		return ErrOutsideHours
	}
	if start.Sub(winStart)%h.Granularity != 0 {
		return ErrOffGrid
	}
	return nil
}
