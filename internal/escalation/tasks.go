package escalation

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/qwerty-development/tableflow/internal/domain"
)

// DefaultAutoSeatDelay is how long a party stays arrived before it is
// moved to seated automatically.
const DefaultAutoSeatDelay = 2 * time.Minute

// ScheduledTransition is a status change to apply once DueAt passes, as
// long as the booking is still in From.
type ScheduledTransition struct {
	ID           string        `json:"id"`
	RestaurantID string        `json:"restaurant_id"`
	BookingID    string        `json:"booking_id"`
	From         domain.Status `json:"from"`
	To           domain.Status `json:"to"`
	DueAt        time.Time     `json:"due_at"`
}

// TaskQueue holds pending auto-progress transitions. At most one task per
// (booking, from) pair is pending at a time.
type TaskQueue interface {
	Schedule(ctx context.Context, t ScheduledTransition) (bool, error)
	Cancel(ctx context.Context, bookingID string) (int, error)
	Pending(ctx context.Context, restaurantID string) ([]ScheduledTransition, error)
	Due(ctx context.Context, restaurantID string, now time.Time) ([]ScheduledTransition, error)
	Complete(ctx context.Context, id string) error
}

// AutoSeat returns the arrived -> seated task for a booking that just
// arrived, or false when the delay disables auto-progress.
func AutoSeat(ids IDGenerator, b domain.Booking, arrivedAt time.Time, delay time.Duration) (ScheduledTransition, bool) {
	if delay <= 0 {
		return ScheduledTransition{}, false
	}
	return ScheduledTransition{
		ID:           ids.Generate(),
		RestaurantID: b.RestaurantID,
		BookingID:    b.ID,
		From:         domain.StatusArrived,
		To:           domain.StatusSeated,
		DueAt:        arrivedAt.Add(delay),
	}, true
}

// MemoryTasks is an in-process TaskQueue.
type MemoryTasks struct {
	mu    sync.Mutex
	tasks map[string]ScheduledTransition
}

// NewMemoryTasks creates an empty queue.
func NewMemoryTasks() *MemoryTasks {
	return &MemoryTasks{tasks: make(map[string]ScheduledTransition)}
}

// Schedule adds t unless a task for the same booking and From is pending.
func (q *MemoryTasks) Schedule(_ context.Context, t ScheduledTransition) (bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for _, existing := range q.tasks {
		if existing.BookingID == t.BookingID && existing.From == t.From {
			return false, nil
		}
	}
	q.tasks[t.ID] = t
	return true, nil
}

// Cancel drops every pending task for the booking.
func (q *MemoryTasks) Cancel(_ context.Context, bookingID string) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	n := 0
	for id, t := range q.tasks {
		if t.BookingID == bookingID {
			delete(q.tasks, id)
			n++
		}
	}
	return n, nil
}

// Pending lists the queued tasks for a restaurant ordered by due time.
func (q *MemoryTasks) Pending(_ context.Context, restaurantID string) ([]ScheduledTransition, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.filter(func(t ScheduledTransition) bool {
		return restaurantID == "" || t.RestaurantID == restaurantID
	}), nil
}

// Due lists the tasks whose due time is at or before now.
func (q *MemoryTasks) Due(_ context.Context, restaurantID string, now time.Time) ([]ScheduledTransition, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.filter(func(t ScheduledTransition) bool {
		return (restaurantID == "" || t.RestaurantID == restaurantID) && !t.DueAt.After(now)
	}), nil
}

// Complete removes a task after it was applied or dropped.
func (q *MemoryTasks) Complete(_ context.Context, id string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	delete(q.tasks, id)
	return nil
}

func (q *MemoryTasks) filter(keep func(ScheduledTransition) bool) []ScheduledTransition {
	var out []ScheduledTransition
	for _, t := range q.tasks {
		if keep(t) {
			out = append(out, t)
		}
	}
	SortTasks(out)
	return out
}

// SortTasks orders tasks by due time then id.
func SortTasks(ts []ScheduledTransition) {
	sort.Slice(ts, func(i, j int) bool {
		if !ts[i].DueAt.Equal(ts[j].DueAt) {
			return ts[i].DueAt.Before(ts[j].DueAt)
		}
		return ts[i].ID < ts[j].ID
	})
}
