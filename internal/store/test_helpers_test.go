package store

import (
	"path/filepath"
	"testing"

	"github.com/qwerty-development/tableflow/internal/domain"
	"github.com/qwerty-development/tableflow/internal/testutil"
)

// createTestStore creates a store in a temp dir, closed on cleanup.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

var at = testutil.At

// createTestConflict: walk-in on Table 5 against a 19:00 reservation.
func createTestConflict(walkIn, upcoming string) domain.Conflict {
	return domain.Conflict{
		ID:                domain.ConflictID(walkIn, upcoming),
		RestaurantID:      "r-1",
		WalkInBookingID:   walkIn,
		UpcomingBookingID: upcoming,
		TableIDs:          []string{"t5"},
		TableNumbers:      []int{5},
		WalkInGuest:       "Walk In",
		UpcomingGuest:     "Reserved Guest",
		ArrivalTime:       at(19, 0),
		SeatedAt:          at(18, 0),
		MustVacateBy:      at(18, 45),
		MinutesToArrival:  60,
		Urgency:           domain.UrgencyWarning,
		DetectedAt:        at(18, 0),
	}
}
