package escalation

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qwerty-development/tableflow/internal/domain"
)

func TestAutoSeat(t *testing.T) {
	b := domain.Booking{ID: "b-1", RestaurantID: "r-1", Status: domain.StatusArrived}

	task, ok := AutoSeat(NewSequenceGenerator("task"), b, at(18, 0), DefaultAutoSeatDelay)
	require.True(t, ok)
	assert.Equal(t, "task-0001", task.ID)
	assert.Equal(t, domain.StatusArrived, task.From)
	assert.Equal(t, domain.StatusSeated, task.To)
	assert.Equal(t, at(18, 2), task.DueAt)

	_, ok = AutoSeat(NewSequenceGenerator("task"), b, at(18, 0), 0)
	assert.False(t, ok)
}

func TestMemoryTasks(t *testing.T) {
	ctx := context.Background()
	q := NewMemoryTasks()
	ids := NewSequenceGenerator("task")

	first, _ := AutoSeat(ids, domain.Booking{ID: "b-1", RestaurantID: "r-1"}, at(18, 0), 2*time.Minute)
	second, _ := AutoSeat(ids, domain.Booking{ID: "b-2", RestaurantID: "r-1"}, at(18, 1), 2*time.Minute)
	dup, _ := AutoSeat(ids, domain.Booking{ID: "b-1", RestaurantID: "r-1"}, at(18, 1), 2*time.Minute)

	for _, task := range []ScheduledTransition{second, first} {
		ok, err := q.Schedule(ctx, task)
		require.NoError(t, err)
		assert.True(t, ok)
	}
	ok, err := q.Schedule(ctx, dup)
	require.NoError(t, err)
	assert.False(t, ok, "one pending task per booking and status")

	pending, err := q.Pending(ctx, "r-1")
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, "b-1", pending[0].BookingID)

	due, err := q.Due(ctx, "r-1", at(18, 2))
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, "b-1", due[0].BookingID)

	require.NoError(t, q.Complete(ctx, due[0].ID))
	n, err := q.Cancel(ctx, "b-2")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	pending, err = q.Pending(ctx, "")
	require.NoError(t, err)
	assert.Empty(t, pending)
}
