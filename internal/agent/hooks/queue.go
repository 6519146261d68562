package hooks

import (
	"sync"

	"sandboxagent/internal/agent/domain"
)

// DefaultQueueSize is the channel capacity used when none is configured.
const DefaultQueueSize = 256

// Queue is a FIFO of events handed from hook callbacks to the merger.
// Enqueue never blocks: once the channel is full, events spill into an
// overflow list and FIFO order holds across both.
type Queue struct {
	mu       sync.Mutex
	ch       chan domain.Event
	overflow []domain.Event
}

func NewQueue(capacity int) *Queue {
	if capacity <= 0 {
		capacity = DefaultQueueSize
	}
	return &Queue{ch: make(chan domain.Event, capacity)}
}

// Enqueue appends event to the tail of the queue.
func (q *Queue) Enqueue(event domain.Event) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.overflow) == 0 {
		select {
		case q.ch <- event:
			return
		default:
		}
	}
	q.overflow = append(q.overflow, event)
}

// Drain removes and returns every pending event in FIFO order.
func (q *Queue) Drain() []domain.Event {
	q.mu.Lock()
	defer q.mu.Unlock()

	var out []domain.Event
loop:
	for {
		select {
		case event := <-q.ch:
			out = append(out, event)
		default:
			break loop
		}
	}
	if len(q.overflow) > 0 {
		out = append(out, q.overflow...)
		q.overflow = nil
	}
	return out
}

// Len reports the number of pending events.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.ch) + len(q.overflow)
}
