package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qwerty-development/tableflow/internal/domain"
)

func change(bookingID string) Event {
	return Event{Kind: EventKindChange, Change: domain.ChangeEvent{
		Type:         domain.EventBookingUpdated,
		RestaurantID: "r-1",
		BookingID:    bookingID,
	}}
}

func TestEventQueue_FIFO(t *testing.T) {
	q := newEventQueue()

	for _, id := range []string{"A", "B", "C"} {
		require.True(t, q.Enqueue(change(id)))
	}

	for _, want := range []string{"A", "B", "C"} {
		got, ok := q.TryDequeue()
		require.True(t, ok)
		assert.Equal(t, want, got.Change.BookingID)
	}
	_, ok := q.TryDequeue()
	assert.False(t, ok, "dequeue from empty queue should return false")
}

func TestEventQueue_TicksCoalesce(t *testing.T) {
	q := newEventQueue()

	assert.True(t, q.Enqueue(Event{Kind: EventKindTick}))
	assert.False(t, q.Enqueue(Event{Kind: EventKindTick}), "second pending tick is dropped")
	assert.True(t, q.Enqueue(change("A")), "changes are never coalesced")
	assert.Equal(t, 2, q.Len())

	ev, ok := q.TryDequeue()
	require.True(t, ok)
	assert.Equal(t, EventKindTick, ev.Kind)

	assert.True(t, q.Enqueue(Event{Kind: EventKindTick}), "tick accepted once the pending one left")
}

func TestEventQueue_DrainResetsTick(t *testing.T) {
	q := newEventQueue()
	q.Enqueue(Event{Kind: EventKindTick})
	q.Enqueue(change("A"))

	batch := q.Drain()
	require.Len(t, batch, 2)
	assert.Equal(t, 0, q.Len())
	assert.Nil(t, q.Drain())

	assert.True(t, q.Enqueue(Event{Kind: EventKindTick}))
}

func TestEventQueue_Close(t *testing.T) {
	q := newEventQueue()
	q.Enqueue(change("A"))
	q.Close()
	q.Close() // idempotent

	assert.False(t, q.Enqueue(change("B")), "closed queue rejects events")

	<-q.Wait() // buffered signal from the enqueue
	_, open := <-q.Wait()
	assert.False(t, open, "signal channel is closed")

	// events queued before Close are still drained
	assert.Len(t, q.Drain(), 1)
}

func TestEventQueue_Signal(t *testing.T) {
	q := newEventQueue()
	q.Enqueue(change("A"))
	q.Enqueue(change("B"))

	select {
	case <-q.Wait():
	default:
		t.Fatal("expected a pending signal")
	}
	select {
	case <-q.Wait():
		t.Fatal("signals should coalesce into one")
	default:
	}
}

func TestEvent_Trigger(t *testing.T) {
	assert.Equal(t, "tick", Event{Kind: EventKindTick}.Trigger())
	assert.Equal(t, "change:booking_updated", change("A").Trigger())
}
