package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/outbox"
)

// maxIndexedSpan bounds range queries served from the per-day index; wider
// ranges scan every appointment.
const maxIndexedSpan = 62 * 24 * time.Hour

// MemoryStore keeps appointments in process. A single write lock serializes
// the overlap check with the insert; events go to an in-memory outbox queue.
type MemoryStore struct {
	mu    sync.RWMutex
	byID  map[string]model.Appointment
	byDay map[string][]string
	loc   *time.Location
	queue *outbox.Queue
}

func NewMemoryStore(loc *time.Location, queue *outbox.Queue) *MemoryStore {
	if loc == nil {
		loc = time.UTC
	}
	return &MemoryStore{
		byID:  map[string]model.Appointment{},
		byDay: map[string][]string{},
		loc:   loc,
		queue: queue,
	}
}

func (s *MemoryStore) InsertIfNoOverlap(_ context.Context, a model.Appointment, emit Emit) (model.Appointment, error) {
	if !a.EndTime.After(a.StartTime) {
		return model.Appointment{}, ErrInvalidRange
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.byID[a.ID]; exists {
		return model.Appointment{}, ErrConflict
	}
	for _, other := range s.rangeLocked(a.StartTime, a.EndTime) {
		if other.Status == model.StatusConfirmed && other.Overlaps(a.StartTime, a.EndTime) {
			return model.Appointment{}, ErrConflict
		}
	}

	a.Status = model.StatusConfirmed
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now()
	}
	events, err := runEmit(emit, a)
	if err != nil {
		return model.Appointment{}, err
	}

	s.byID[a.ID] = a
	for _, day := range s.dayKeys(a.StartTime, a.EndTime) {
		s.byDay[day] = append(s.byDay[day], a.ID)
	}
	s.enqueue(events)
	return a, nil
}

func (s *MemoryStore) UpdateStatus(_ context.Context, id string, status model.Status, at time.Time, emit Emit) (model.Appointment, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.byID[id]
	if !ok {
		return model.Appointment{}, false, ErrNotFound
	}
	next, changed, err := transition(cur, status, at)
	if err != nil || !changed {
		return cur, false, err
	}
	events, err := runEmit(emit, next)
	if err != nil {
		return cur, false, err
	}
	s.byID[id] = next
	s.enqueue(events)
	return next, true, nil
}

func (s *MemoryStore) MarkReminderSent(_ context.Context, id string, emit Emit) (model.Appointment, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.byID[id]
	if !ok || cur.ReminderSent || cur.Status != model.StatusConfirmed {
		return cur, false, nil
	}
	next := cur
	next.ReminderSent = true
	events, err := runEmit(emit, next)
	if err != nil {
		return cur, false, err
	}
	s.byID[id] = next
	s.enqueue(events)
	return next, true, nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (model.Appointment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.byID[id]
	if !ok {
		return model.Appointment{}, ErrNotFound
	}
	return a, nil
}

func (s *MemoryStore) QueryByDateRange(_ context.Context, start, end time.Time, filter StatusFilter) ([]model.Appointment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []model.Appointment
	for _, a := range s.rangeLocked(start, end) {
		if filter.match(a.Status) && a.Overlaps(start, end) {
			out = append(out, a)
		}
	}
	sortByStart(out)
	return out, nil
}

func (s *MemoryStore) ReminderCandidates(_ context.Context, from, to time.Time, limit int) ([]model.Appointment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []model.Appointment
	for _, a := range s.byID {
		if a.Status == model.StatusConfirmed && !a.ReminderSent && a.StartTime.After(from) && !a.StartTime.After(to) {
			out = append(out, a)
		}
	}
	sortByStart(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemoryStore) Stats(_ context.Context, now time.Time) (Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var st Stats
	for _, a := range s.byID {
		st.Total++
		switch {
		case a.Status == model.StatusCancelled:
			st.Cancelled++
		case a.EndTime.Before(now):
			st.Completed++
		default:
			st.Upcoming++
		}
	}
	return st, nil
}

// rangeLocked returns candidate appointments that may intersect [start, end).
// Callers still apply the exact overlap test.
func (s *MemoryStore) rangeLocked(start, end time.Time) []model.Appointment {
	if !end.After(start) || end.Sub(start) > maxIndexedSpan {
		out := make([]model.Appointment, 0, len(s.byID))
		for _, a := range s.byID {
			out = append(out, a)
		}
		return out
	}
	seen := map[string]bool{}
	var out []model.Appointment
	for _, day := range s.dayKeys(start, end) {
		for _, id := range s.byDay[day] {
			if seen[id] {
				continue
			}
			seen[id] = true
			out = append(out, s.byID[id])
		}
	}
	return out
}

// dayKeys lists the shop-local calendar days touched by [start, end).
func (s *MemoryStore) dayKeys(start, end time.Time) []string {
	last := end.Add(-time.Nanosecond).In(s.loc)
	y, m, d := start.In(s.loc).Date()
	day := time.Date(y, m, d, 0, 0, 0, 0, s.loc)
	var keys []string
	for !day.After(last) {
		keys = append(keys, day.Format(time.DateOnly))
		day = day.AddDate(0, 0, 1)
	}
	return keys
}

func (s *MemoryStore) enqueue(events []outbox.Event) {
	if s.queue != nil {
		s.queue.Append(events...)
	}
}

func sortByStart(appts []model.Appointment) {
	sort.Slice(appts, func(i, j int) bool {
		if appts[i].StartTime.Equal(appts[j].StartTime) {
			return appts[i].ID < appts[j].ID
		}
		return appts[i].StartTime.Before(appts[j].StartTime)
	})
}
