package outbox

import "sync"

// Queue is the in-memory outbox used with the memory store. Events appended
// under the store's write lock are drained by Publisher.RunQueue.
type Queue struct {
	mu     sync.Mutex
	events []Event
	notify chan struct{}
}

func NewQueue() *Queue {
	return &Queue{notify: make(chan struct{}, 1)}
}

func (q *Queue) Append(events ...Event) {
	if len(events) == 0 {
		return
	}
	q.mu.Lock()
	q.events = append(q.events, events...)
	q.mu.Unlock()
	select {
	case q.notify <- struct{}{}:
	default:
	}
}

// Drain removes and returns all pending events.
func (q *Queue) Drain() []Event {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := q.events
	q.events = nil
	return out
}

// Requeue puts unsent events back at the head of the queue.
func (q *Queue) Requeue(events []Event) {
	if len(events) == 0 {
		return
	}
	q.mu.Lock()
	q.events = append(append([]Event(nil), events...), q.events...)
	q.mu.Unlock()
}

func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.events)
}

// Ready is signalled after Append.
func (q *Queue) Ready() <-chan struct{} {
	return q.notify
}
