package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qwerty-development/tableflow/internal/domain"
	"github.com/qwerty-development/tableflow/internal/lifecycle"
)

func TestAppendHistory_RoundTripAndOrder(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t)

	entries := []lifecycle.HistoryEntry{
		{Seq: 2, BookingID: "b-1", RestaurantID: "r-1", From: domain.StatusArrived, To: domain.StatusSeated,
			Actor: "host", Mode: lifecycle.ModeStrict, At: at(18, 2)},
		{Seq: 1, BookingID: "b-1", RestaurantID: "r-1", From: domain.StatusConfirmed, To: domain.StatusArrived,
			Actor: "host", Mode: lifecycle.ModeStrict, At: at(18, 0), Metadata: map[string]string{"source": "tablet"}},
		{Seq: 3, BookingID: "b-2", RestaurantID: "r-1", From: domain.StatusPending, To: domain.StatusConfirmed,
			Actor: lifecycle.ActorExternal, Mode: lifecycle.ModeOverride, At: at(18, 5)},
	}
	for _, h := range entries {
		require.NoError(t, s.AppendHistory(ctx, h))
	}
	// Replaying the same seq is ignored.
	require.NoError(t, s.AppendHistory(ctx, entries[0]))

	got, err := s.History(ctx, "b-1")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, entries[1], got[0])
	assert.Equal(t, entries[0], got[1])

	none, err := s.History(ctx, "missing")
	require.NoError(t, err)
	assert.NotNil(t, none)
	assert.Empty(t, none)

	last, err := s.LastSeq(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), last)
}

func TestLastSeq_Empty(t *testing.T) {
	last, err := createTestStore(t).LastSeq(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(0), last)
}

func TestSaveConflicts_UpsertAndNeverReopen(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t)

	c := createTestConflict("walk", "res")
	require.NoError(t, s.SaveConflicts(ctx, []domain.Conflict{c}, at(18, 0)))

	c.Urgency = domain.UrgencyCritical
	c.MinutesToArrival = 29
	require.NoError(t, s.SaveConflicts(ctx, []domain.Conflict{c}, at(18, 31)))

	open, err := s.Conflicts(ctx, "r-1", false)
	require.NoError(t, err)
	require.Len(t, open, 1)
	assert.Equal(t, domain.UrgencyCritical, open[0].Urgency)
	assert.Equal(t, 29, open[0].MinutesToArrival)

	c.Resolve(domain.ResolutionWalkInVacated, at(18, 40))
	require.NoError(t, s.SaveConflicts(ctx, []domain.Conflict{c}, at(18, 40)))

	// A stale open copy cannot overwrite the resolved row.
	stale := createTestConflict("walk", "res")
	require.NoError(t, s.SaveConflicts(ctx, []domain.Conflict{stale}, at(18, 41)))

	open, err = s.Conflicts(ctx, "r-1", false)
	require.NoError(t, err)
	assert.Empty(t, open)

	all, err := s.Conflicts(ctx, "r-1", true)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.True(t, all[0].Resolved)
	assert.Equal(t, domain.ResolutionWalkInVacated, all[0].Resolution)
}

func TestSaveConflicts_OrderedByArrival(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t)

	late := createTestConflict("walk-a", "res-late")
	late.ArrivalTime = at(20, 0)
	early := createTestConflict("walk-b", "res-early")
	early.ArrivalTime = at(18, 30)
	other := createTestConflict("walk-c", "res-other")
	other.RestaurantID = "r-2"

	require.NoError(t, s.SaveConflicts(ctx, []domain.Conflict{late, early, other}, at(18, 0)))
	require.NoError(t, s.SaveConflicts(ctx, nil, at(18, 0)))

	got, err := s.Conflicts(ctx, "r-1", false)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "res-early", got[0].UpcomingBookingID)
	assert.Equal(t, "res-late", got[1].UpcomingBookingID)
}

func TestResolveConflict(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t)

	c := createTestConflict("walk", "res")
	require.NoError(t, s.SaveConflicts(ctx, []domain.Conflict{c}, at(18, 0)))

	got, err := s.ResolveConflict(ctx, c.ID, domain.ResolutionDismissed, at(18, 10))
	require.NoError(t, err)
	assert.True(t, got.Resolved)
	assert.Equal(t, domain.ResolutionDismissed, got.Resolution)

	again, err := s.ResolveConflict(ctx, c.ID, domain.ResolutionWalkInVacated, at(18, 20))
	require.NoError(t, err)
	assert.Equal(t, domain.ResolutionDismissed, again.Resolution)
	require.NotNil(t, again.ResolvedAt)
	assert.Equal(t, at(18, 10), *again.ResolvedAt)

	_, err = s.ResolveConflict(ctx, "missing", domain.ResolutionDismissed, at(18, 20))
	assert.ErrorIs(t, err, ErrConflictNotFound)
}
