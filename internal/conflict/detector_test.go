package conflict

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qwerty-development/tableflow/internal/domain"
	"github.com/qwerty-development/tableflow/internal/occupancy"
	"github.com/qwerty-development/tableflow/internal/testutil"
)

var at = testutil.At

type floor struct {
	tables   []domain.Table
	bookings []domain.Booking
}

func (f *floor) booking(id string) *domain.Booking {
	for i := range f.bookings {
		if f.bookings[i].ID == id {
			return &f.bookings[i]
		}
	}
	return nil
}

func (f *floor) input(now time.Time, previous []domain.Conflict) Input {
	occ, _ := occupancy.Resolve(f.tables, f.bookings, now)
	return Input{
		RestaurantID: "r-1",
		Bookings:     f.bookings,
		Occupancy:    occ,
		Candidates:   CandidateWalkIns(f.bookings, now, DefaultCandidateWindow),
		Previous:     previous,
		Now:          now,
	}
}

// walkInFloor: walk-in seated at Table 5 at 18:00, reservation at 19:00.
func walkInFloor() *floor {
	seated := at(18, 0)
	return &floor{
		tables: []domain.Table{
			{ID: "t5", RestaurantID: "r-1", Number: 5, Capacity: 4, Active: true},
			{ID: "t6", RestaurantID: "r-1", Number: 6, Capacity: 4, Active: true},
		},
		bookings: []domain.Booking{
			{
				ID: "walk", RestaurantID: "r-1", PartySize: 2, BookingTime: seated,
				TurnTimeMinutes: 90, Status: domain.StatusSeated, GuestName: "Walk In",
				SeatedAt: &seated, TableIDs: []string{"t5"},
			},
			{
				ID: "res", RestaurantID: "r-1", PartySize: 4, BookingTime: at(19, 0),
				TurnTimeMinutes: 120, Status: domain.StatusConfirmed, GuestName: "Reserved Guest",
				TableIDs: []string{"t5"},
			},
		},
	}
}

func TestDetect_WalkInAgainstReservation(t *testing.T) {
	f := walkInFloor()

	got := Detect(f.input(at(18, 0), nil))

	require.Len(t, got, 1)
	c := got[0]
	assert.Equal(t, domain.ConflictID("walk", "res"), c.ID)
	assert.Equal(t, "walk", c.WalkInBookingID)
	assert.Equal(t, "res", c.UpcomingBookingID)
	assert.Equal(t, []string{"t5"}, c.TableIDs)
	assert.Equal(t, []int{5}, c.TableNumbers)
	assert.Equal(t, domain.UrgencyWarning, c.Urgency)
	assert.Equal(t, 60, c.MinutesToArrival)
	assert.Equal(t, at(18, 45), c.MustVacateBy)
	assert.Equal(t, at(18, 0), c.SeatedAt)
	assert.Equal(t, at(18, 0), c.DetectedAt)
	assert.False(t, c.Resolved)
}

func TestDetect_Idempotent(t *testing.T) {
	f := walkInFloor()
	in := f.input(at(18, 10), nil)

	first := Detect(in)
	second := Detect(in)

	require.Equal(t, len(first), len(second))
	for i := range first {
		assert.Equal(t, first[i].Key(), second[i].Key())
		assert.Equal(t, first[i].Urgency, second[i].Urgency)
	}

	// Feeding the result back in does not duplicate.
	again := Detect(f.input(at(18, 10), first))
	require.Len(t, again, 1)
	assert.Equal(t, first[0], again[0])
}

func TestDetect_UrgencyFollowsTime(t *testing.T) {
	f := walkInFloor()
	prev := Detect(f.input(at(18, 0), nil))

	later := Detect(f.input(at(18, 31), prev))

	require.Len(t, later, 1)
	assert.Equal(t, domain.UrgencyCritical, later[0].Urgency)
	assert.Equal(t, 29, later[0].MinutesToArrival)
	assert.Equal(t, at(18, 0), later[0].DetectedAt, "first detection time is kept")
}

func TestDetect_OpenConflictSurvivesArrival(t *testing.T) {
	f := walkInFloor()
	prev := Detect(f.input(at(18, 0), nil))

	got := Detect(f.input(at(19, 5), prev))

	require.Len(t, got, 1)
	assert.False(t, got[0].Resolved)
	assert.Equal(t, domain.UrgencyCritical, got[0].Urgency)
	assert.Equal(t, -5, got[0].MinutesToArrival)
}

func TestDetect_ResolvedWhenAssignmentRemoved(t *testing.T) {
	f := walkInFloor()
	prev := Detect(f.input(at(18, 0), nil))

	f.booking("walk").TableIDs = nil
	got := Detect(f.input(at(18, 40), prev))

	require.Len(t, got, 1)
	c := got[0]
	assert.True(t, c.Resolved)
	assert.Equal(t, domain.ResolutionWalkInReassigned, c.Resolution)
	require.NotNil(t, c.ResolvedAt)
	assert.Equal(t, at(18, 40), *c.ResolvedAt)

	// Restoring the assignment does not reopen it.
	f.booking("walk").TableIDs = []string{"t5"}
	again := Detect(f.input(at(18, 45), got))
	require.Len(t, again, 1)
	assert.True(t, again[0].Resolved)
	assert.Equal(t, at(18, 40), *again[0].ResolvedAt)
}

func TestDetect_ResolutionReasons(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(f *floor)
		want   domain.Resolution
	}{
		{
			name:   "walk-in completed",
			mutate: func(f *floor) { f.booking("walk").Status = domain.StatusCompleted },
			want:   domain.ResolutionWalkInVacated,
		},
		{
			name:   "walk-in moved to another table",
			mutate: func(f *floor) { f.booking("walk").TableIDs = []string{"t6"} },
			want:   domain.ResolutionWalkInReassigned,
		},
		{
			name:   "reservation cancelled",
			mutate: func(f *floor) { f.booking("res").Status = domain.StatusCancelledByUser },
			want:   domain.ResolutionUpcomingReleased,
		},
		{
			name:   "reservation moved to another table",
			mutate: func(f *floor) { f.booking("res").TableIDs = []string{"t6"} },
			want:   domain.ResolutionUpcomingReleased,
		},
		{
			name:   "reservation pushed past lookahead",
			mutate: func(f *floor) { f.booking("res").BookingTime = at(22, 0) },
			want:   domain.ResolutionUpcomingReleased,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := walkInFloor()
			prev := Detect(f.input(at(18, 0), nil))
			tt.mutate(f)

			got := Detect(f.input(at(18, 20), prev))

			require.Len(t, got, 1)
			assert.True(t, got[0].Resolved)
			assert.Equal(t, tt.want, got[0].Resolution)
		})
	}
}

func TestDetect_OutsideLookahead(t *testing.T) {
	f := walkInFloor()
	f.booking("res").BookingTime = at(21, 1)

	assert.Empty(t, Detect(f.input(at(18, 0), nil)))
}

func TestDetect_CustomLookahead(t *testing.T) {
	f := walkInFloor()
	d := Detector{Lookahead: 30 * time.Minute}

	assert.Empty(t, d.Detect(f.input(at(18, 0), nil)))
	assert.Len(t, d.Detect(f.input(at(18, 30), nil)), 1)
}

func TestDetect_CombinedTables(t *testing.T) {
	f := walkInFloor()
	f.booking("walk").TableIDs = []string{"t5", "t6"}
	f.booking("res").TableIDs = []string{"t5", "t6"}

	got := Detect(f.input(at(18, 0), nil))

	require.Len(t, got, 1)
	assert.Equal(t, []string{"t5", "t6"}, got[0].TableIDs)
	assert.Equal(t, []int{5, 6}, got[0].TableNumbers)
}

func TestDetect_IgnoresStaleCandidates(t *testing.T) {
	f := walkInFloor()
	f.booking("res").BookingTime = at(20, 0)

	// Seated more than an hour ago and never detected before.
	assert.Empty(t, Detect(f.input(at(19, 5), nil)))
}

func TestCandidateWalkIns(t *testing.T) {
	bookings := []domain.Booking{
		{ID: "b", Status: domain.StatusSeated, SeatedAt: testutil.Ptr(at(17, 55))},
		{ID: "a", Status: domain.StatusArrived, CheckedInAt: testutil.Ptr(at(17, 30))},
		{ID: "c", Status: domain.StatusConfirmed},
		{ID: "d", Status: domain.StatusSeated},
	}

	got := CandidateWalkIns(bookings, at(18, 0), time.Hour)
	require.Len(t, got, 2)
	assert.Equal(t, "a", got[0].ID)
	assert.Equal(t, "b", got[1].ID)

	narrow := CandidateWalkIns(bookings, at(18, 0), 10*time.Minute)
	require.Len(t, narrow, 1)
	assert.Equal(t, "b", narrow[0].ID)
}

func TestDismissAndOpen(t *testing.T) {
	f := walkInFloor()
	got := Detect(f.input(at(18, 0), nil))
	require.Len(t, got, 1)

	Dismiss(&got[0], at(18, 5))
	assert.Equal(t, domain.ResolutionDismissed, got[0].Resolution)
	assert.Empty(t, Open(got))

	after := Detect(f.input(at(18, 10), got))
	require.Len(t, after, 1)
	assert.True(t, after[0].Resolved, "dismissed conflicts stay closed")
}
