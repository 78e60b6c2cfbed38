package transcript

import (
	"sync"

	"live-transcription-service/internal/models"
)

// Queue is an unbounded FIFO hand-off between one producer (the recognizer)
// and one consumer (the session loop). Push never blocks.
type Queue struct {
	mu     sync.Mutex
	events []models.Event
}

// NewQueue creates an empty queue.
func NewQueue() *Queue {
	return &Queue{}
}

// Push appends an event.
func (q *Queue) Push(ev models.Event) {
	q.mu.Lock()
	q.events = append(q.events, ev)
	q.mu.Unlock()
}

// Drain removes and returns every pending event in arrival order.
// Returns an empty slice when nothing is pending.
func (q *Queue) Drain() []models.Event {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.events) == 0 {
		return []models.Event{}
	}
	out := q.events
	q.events = nil
	return out
}

// Len returns the number of pending events.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.events)
}
