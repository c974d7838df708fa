package lifecycle

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qwerty-development/tableflow/internal/domain"
)

var t0 = time.Date(2026, 3, 14, 18, 0, 0, 0, time.UTC)

func newBooking(status domain.Status) domain.Booking {
	return domain.Booking{
		ID:           "b-1",
		RestaurantID: "r-1",
		PartySize:    2,
		BookingTime:  t0,
		Status:       status,
		GuestName:    "Ada",
		TableIDs:     []string{"t5"},
	}
}

func TestTransition_StampsCheckIn(t *testing.T) {
	m := NewMachine(nil)
	b := newBooking(domain.StatusConfirmed)

	entry, err := m.Transition(&b, Request{To: domain.StatusArrived, Actor: "host", At: t0})
	require.NoError(t, err)

	assert.Equal(t, domain.StatusArrived, b.Status)
	require.NotNil(t, b.CheckedInAt)
	assert.Equal(t, t0, *b.CheckedInAt)
	assert.Nil(t, b.SeatedAt)
	assert.Equal(t, domain.StatusConfirmed, entry.From)
	assert.Equal(t, domain.StatusArrived, entry.To)
	assert.Equal(t, ModeStrict, entry.Mode)
	assert.Equal(t, int64(1), entry.Seq)
}

func TestTransition_KeepsExistingCheckIn(t *testing.T) {
	m := NewMachine(nil)
	b := newBooking(domain.StatusCompleted)
	earlier := t0.Add(-time.Hour)
	b.CheckedInAt = &earlier

	_, err := m.Transition(&b, Request{To: domain.StatusArrived, Mode: ModeOverride, At: t0})
	require.NoError(t, err)
	assert.Equal(t, earlier, *b.CheckedInAt)
}

func TestTransition_StampsSeated(t *testing.T) {
	m := NewMachine(nil)
	b := newBooking(domain.StatusArrived)

	_, err := m.Transition(&b, Request{To: domain.StatusSeated, At: t0.Add(5 * time.Minute)})
	require.NoError(t, err)
	require.NotNil(t, b.SeatedAt)
	assert.Equal(t, t0.Add(5*time.Minute), *b.SeatedAt)
}

func TestTransition_CompletedToSeated(t *testing.T) {
	m := NewMachine(nil)

	strict := newBooking(domain.StatusCompleted)
	_, err := m.Transition(&strict, Request{To: domain.StatusSeated, Mode: ModeStrict, At: t0})
	require.Error(t, err)
	assert.True(t, IsInvalidTransition(err))

	var ite *InvalidTransitionError
	require.ErrorAs(t, err, &ite)
	assert.Equal(t, domain.StatusCompleted, ite.From)
	assert.Equal(t, domain.StatusSeated, ite.To)
	assert.Equal(t, "strict", ite.Policy)
	assert.Equal(t, domain.StatusCompleted, strict.Status, "failed transition must not coerce")
	assert.Nil(t, strict.SeatedAt)

	override := newBooking(domain.StatusCompleted)
	entry, err := m.Transition(&override, Request{To: domain.StatusSeated, Mode: ModeOverride, Actor: "manager", At: t0})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusSeated, override.Status)
	assert.Equal(t, ModeOverride, entry.Mode)
	assert.Equal(t, "manager", entry.Actor)
}

func TestTransition_WrappedErrorStillDetected(t *testing.T) {
	m := NewMachine(nil)
	b := newBooking(domain.StatusPending)
	_, err := m.Transition(&b, Request{To: domain.StatusPayment, At: t0})
	wrapped := fmt.Errorf("api: %w", err)
	assert.True(t, IsInvalidTransition(wrapped))
	assert.Contains(t, err.Error(), "pending -> payment")
}

func TestTransition_HistorySequenceIncreases(t *testing.T) {
	m := NewMachine(NewSequenceAt(41))
	b := newBooking(domain.StatusConfirmed)

	path := []domain.Status{
		domain.StatusArrived,
		domain.StatusSeated,
		domain.StatusOrdered,
		domain.StatusAppetizers,
		domain.StatusMainCourse,
		domain.StatusPayment,
		domain.StatusCompleted,
	}
	var last int64 = 41
	for i, to := range path {
		entry, err := m.Transition(&b, Request{To: to, At: t0.Add(time.Duration(i) * time.Minute)})
		require.NoError(t, err, "step %d to %s", i, to)
		assert.Greater(t, entry.Seq, last)
		last = entry.Seq
	}
	assert.Equal(t, domain.StatusCompleted, b.Status)
}

func TestTransition_MetadataCopied(t *testing.T) {
	m := NewMachine(nil)
	b := newBooking(domain.StatusConfirmed)
	meta := map[string]string{"reason": "vip"}

	entry, err := m.Transition(&b, Request{To: domain.StatusArrived, Metadata: meta, At: t0})
	require.NoError(t, err)
	meta["reason"] = "changed"
	assert.Equal(t, "vip", entry.Metadata["reason"])
}

func TestHistoryEntry_Event(t *testing.T) {
	m := NewMachine(nil)
	b := newBooking(domain.StatusConfirmed)
	entry, err := m.Transition(&b, Request{To: domain.StatusArrived, At: t0})
	require.NoError(t, err)

	ev := entry.Event()
	assert.Equal(t, domain.EventStatusTransitioned, ev.Type)
	assert.Equal(t, "r-1", ev.RestaurantID)
	assert.Equal(t, "b-1", ev.BookingID)
}

func TestObserve(t *testing.T) {
	m := NewMachine(nil)

	t.Run("unchanged", func(t *testing.T) {
		_, ok, err := m.Observe(newBooking(domain.StatusSeated), newBooking(domain.StatusSeated), t0)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("strict edge", func(t *testing.T) {
		entry, ok, err := m.Observe(newBooking(domain.StatusPayment), newBooking(domain.StatusCompleted), t0)
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, ModeStrict, entry.Mode)
		assert.Equal(t, ActorExternal, entry.Actor)
	})

	t.Run("override correction", func(t *testing.T) {
		entry, ok, err := m.Observe(newBooking(domain.StatusConfirmed), newBooking(domain.StatusSeated), t0)
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, ModeOverride, entry.Mode)
	})

	t.Run("rejected", func(t *testing.T) {
		_, ok, err := m.Observe(newBooking(domain.StatusNoShow), newBooking(domain.StatusPayment), t0)
		assert.False(t, ok)
		assert.True(t, IsInvalidTransition(err))
	})
}
