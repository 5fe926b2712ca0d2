package availability

import (
	"slices"
	"time"
)

// Interval is a half-open busy range [Start, End).
type Interval struct {
	Start time.Time
	End   time.Time
}

// Overlaps reports whether [start, end) intersects i.
func (i Interval) Overlaps(start, end time.Time) bool {
	return start.Before(i.End) && i.Start.Before(end)
}

// AvailableSlots steps through [windowStart, windowEnd) and keeps every start t
// for which [t, t+duration) fits in the window, overlaps nothing in busy and
// is not before now. busy need not be sorted.
func AvailableSlots(windowStart, windowEnd time.Time, duration, step time.Duration, busy []Interval, now time.Time) []time.Time {
	if duration <= 0 || step <= 0 || windowStart.Add(duration).After(windowEnd) {
		return nil
	}

	sorted := slices.Clone(busy)
	slices.SortFunc(sorted, func(a, b Interval) int { return a.End.Compare(b.End) })

	var slots []time.Time
	next := 0
	for t := windowStart; !t.Add(duration).After(windowEnd); t = t.Add(step) {
		// Intervals ending at or before t cannot block t or any later start.
		for next < len(sorted) && !sorted[next].End.After(t) {
			next++
		}
		if t.Before(now) {
			continue
		}
		end := t.Add(duration)
		if !slices.ContainsFunc(sorted[next:], func(b Interval) bool { return b.Overlaps(t, end) }) {
			slots = append(slots, t)
		}
	}
	return slots
}
