package engine

import (
	"sync"

	"github.com/qwerty-development/tableflow/internal/domain"
)

// EventKind distinguishes between queued triggers.
type EventKind int

const (
	// EventKindChange is a booking or assignment change.
	EventKindChange EventKind = iota + 1
	// EventKindTick is a periodic re-evaluation.
	EventKindTick
)

// Event is one trigger for a worker.
type Event struct {
	Kind   EventKind
	Change domain.ChangeEvent
}

// Trigger names the event for logs and spans.
func (e Event) Trigger() string {
	if e.Kind == EventKindTick {
		return "tick"
	}
	return "change:" + string(e.Change.Type)
}

// eventQueue is a thread-safe FIFO queue of triggers.
//
// The queue is unbounded so change-event consumers never block on a slow
// cycle. Ticks coalesce: a tick is dropped while another tick is still
// queued.
//
// The queue uses a channel for signaling to enable context-aware waiting
// in the worker loop.
type eventQueue struct {
	mu          sync.Mutex
	events      []Event
	tickPending bool
	closed      bool
	signal      chan struct{} // Signals event availability (buffered, size 1)
}

func newEventQueue() *eventQueue {
	return &eventQueue{
		events: make([]Event, 0, 16),
		signal: make(chan struct{}, 1),
	}
}

// Enqueue adds an event to the back of the queue.
// Returns false if the queue is closed or the tick was coalesced.
func (q *eventQueue) Enqueue(e Event) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}
	if e.Kind == EventKindTick {
		if q.tickPending {
			return false
		}
		q.tickPending = true
	}

	q.events = append(q.events, e)

	// Non-blocking: buffer of 1 coalesces multiple signals
	select {
	case q.signal <- struct{}{}:
	default:
	}
	return true
}

// TryDequeue removes the front event without blocking.
func (q *eventQueue) TryDequeue() (Event, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.events) == 0 {
		return Event{}, false
	}
	e := q.events[0]
	q.events[0] = Event{}
	if len(q.events) == 1 {
		q.events = q.events[:0]
	} else {
		q.events = q.events[1:]
	}
	if e.Kind == EventKindTick {
		q.tickPending = false
	}
	return e, true
}

// Drain removes and returns every queued event in FIFO order.
func (q *eventQueue) Drain() []Event {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.events) == 0 {
		return nil
	}
	out := make([]Event, len(q.events))
	copy(out, q.events)
	q.events = q.events[:0]
	q.tickPending = false
	return out
}

// Wait returns a channel that signals when events may be available.
// The channel is closed when the queue is closed.
func (q *eventQueue) Wait() <-chan struct{} {
	return q.signal
}

// Len returns the current queue length.
func (q *eventQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.events)
}

// Close signals that no more events will be enqueued.
func (q *eventQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}
	q.closed = true
	close(q.signal)
}
