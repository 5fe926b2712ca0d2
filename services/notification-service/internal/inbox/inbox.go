// Package inbox remembers processed event ids so redelivered Kafka messages
// are not sent twice.
package inbox

import (
	"container/list"
	"context"
	"errors"
	"sync"

	"github.com/md-rashed-zaman/slotbook/libs/db"
)

var ErrMissingEventID = errors.New("event id missing")

// Repository stores event ids in inbox_events; the primary key rejects
// duplicates.
type Repository struct {
	db db.Querier
}

func NewRepository(q db.Querier) *Repository {
	return &Repository{db: q}
}

// Record reports whether eventID is seen for the first time.
func (r *Repository) Record(ctx context.Context, eventID string, eventType string) (bool, error) {
	if eventID == "" {
		return false, ErrMissingEventID
	}
	_, err := r.db.Exec(ctx, `
		INSERT INTO inbox_events (event_id, event_type)
		VALUES ($1, $2)
	`, eventID, eventType)
	if err == nil {
		return true, nil
	}
	if db.IsUniqueViolation(err) {
		return false, nil
	}
	return false, err
}

// Forget deletes eventID so the next delivery is processed again.
func (r *Repository) Forget(ctx context.Context, eventID string) error {
	if eventID == "" {
		return nil
	}
	_, err := r.db.Exec(ctx, `DELETE FROM inbox_events WHERE event_id = $1`, eventID)
	return err
}

// Memory keeps the most recent ids in process. Duplicates older than the
// capacity, or seen before a restart, slip through.
type Memory struct {
	mu    sync.Mutex
	cap   int
	order *list.List
	seen  map[string]*list.Element
}

func NewMemory(capacity int) *Memory {
	if capacity <= 0 {
		capacity = 10000
	}
	return &Memory{cap: capacity, order: list.New(), seen: make(map[string]*list.Element)}
}

func (m *Memory) Record(_ context.Context, eventID string, _ string) (bool, error) {
	if eventID == "" {
		return false, ErrMissingEventID
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.seen[eventID]; ok {
		return false, nil
	}
	m.seen[eventID] = m.order.PushBack(eventID)
	if m.order.Len() > m.cap {
		oldest := m.order.Front()
		m.order.Remove(oldest)
		delete(m.seen, oldest.Value.(string))
	}
	return true, nil
}

func (m *Memory) Forget(_ context.Context, eventID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if el, ok := m.seen[eventID]; ok {
		m.order.Remove(el)
		delete(m.seen, eventID)
	}
	return nil
}
