package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qwerty-development/tableflow/internal/domain"
	"github.com/qwerty-development/tableflow/internal/escalation"
)

func TestRecord_IdempotentPerThreshold(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t)
	c := createTestConflict("walk", "res")

	inserted, err := s.Record(ctx, escalation.Render(c, domain.ThresholdWarning, "n-1", at(18, 0)))
	require.NoError(t, err)
	assert.True(t, inserted)

	inserted, err = s.Record(ctx, escalation.Render(c, domain.ThresholdWarning, "n-2", at(18, 1)))
	require.NoError(t, err)
	assert.False(t, inserted)

	all, err := s.Notifications(ctx, "r-1", false)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "n-1", all[0].ID)
	assert.Equal(t, []int{5}, all[0].TableNumbers)
	assert.True(t, all[0].ActionRequired)
	assert.Equal(t, at(18, 0), all[0].CreatedAt)
}

func TestStage_TracksHighestThreshold(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t)
	c := createTestConflict("walk", "res")

	stage, err := s.Stage(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StageNone, stage)

	_, err = s.Record(ctx, escalation.Render(c, domain.ThresholdUrgent, "n-1", at(18, 31)))
	require.NoError(t, err)

	stage, err = s.Stage(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StageUrgentSent, stage)
}

func TestDismiss(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t)
	c := createTestConflict("walk", "res")

	_, err := s.Record(ctx, escalation.Render(c, domain.ThresholdWarning, "n-1", at(18, 0)))
	require.NoError(t, err)
	_, err = s.Record(ctx, escalation.Render(c, domain.ThresholdUrgent, "n-2", at(18, 31)))
	require.NoError(t, err)

	require.NoError(t, s.Dismiss(ctx, "n-1", at(18, 32)))
	require.NoError(t, s.Dismiss(ctx, "n-1", at(18, 50)))
	assert.ErrorIs(t, s.Dismiss(ctx, "missing", at(18, 50)), escalation.ErrNotificationNotFound)

	active, err := s.Notifications(ctx, "r-1", true)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, "n-2", active[0].ID)

	all, err := s.Notifications(ctx, "r-1", false)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "n-2", all[0].ID, "newest first")
	require.NotNil(t, all[1].DismissedAt)
	assert.Equal(t, at(18, 32), *all[1].DismissedAt, "first dismissal time kept")

	n, err := s.DismissConflict(ctx, c.ID, at(18, 40))
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	active, err = s.Notifications(ctx, "r-1", true)
	require.NoError(t, err)
	assert.Empty(t, active)
}

// The SQLite store drives the scheduler exactly like the memory state and
// survives a reopen without resending.
func TestStore_AsSentStateAcrossRestart(t *testing.T) {
	ctx := context.Background()
	path := t.TempDir() + "/state.db"
	c := createTestConflict("walk", "res")

	s, err := Open(path)
	require.NoError(t, err)
	sched := escalation.NewScheduler(escalation.NewSequenceGenerator("n"), nil)

	got, err := sched.Tick(ctx, []domain.Conflict{c}, s, at(18, 0))
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.NoError(t, s.Close())

	s, err = Open(path)
	require.NoError(t, err)
	defer s.Close()

	got, err = sched.Tick(ctx, []domain.Conflict{c}, s, at(18, 10))
	require.NoError(t, err)
	assert.Empty(t, got)

	got, err = sched.Tick(ctx, []domain.Conflict{c}, s, at(18, 31))
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, domain.ThresholdUrgent, got[0].Threshold)
}
