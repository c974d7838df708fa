package simulate

import (
	"context"
	"fmt"
	"slices"
	"sort"

	"github.com/qwerty-development/tableflow/internal/domain"
	"github.com/qwerty-development/tableflow/internal/occupancy"
)

// check compares the state left by the latest tick with want.
func (r *runner) check(ctx context.Context, want *Expect) ([]string, error) {
	var failures []string
	fail := func(format string, args ...any) {
		failures = append(failures, fmt.Sprintf(format, args...))
	}

	records := make(map[string]occupancy.Record, len(r.board.Tables))
	for _, rec := range r.board.Tables {
		records[rec.TableID] = rec
	}
	for _, id := range sortedKeys(want.Tables) {
		rec, ok := records[id]
		if !ok {
			fail("table %s: not on board", id)
			continue
		}
		checkTable(id, rec, want.Tables[id], fail)
	}

	for _, ce := range want.Conflicts {
		c, ok := findConflict(r.conflicts, ce.WalkIn, ce.Upcoming)
		if !ok {
			fail("conflict %s/%s: not found", ce.WalkIn, ce.Upcoming)
			continue
		}
		checkConflict(r.sc, c, ce, fail)
	}

	if want.OpenConflicts != nil {
		open := 0
		for _, c := range r.conflicts {
			if !c.Resolved {
				open++
			}
		}
		if open != *want.OpenConflicts {
			fail("open conflicts: got %d, want %d", open, *want.OpenConflicts)
		}
	}

	if want.Emitted != nil {
		got := make([]string, 0, len(r.emitted))
		for _, n := range r.emitted {
			got = append(got, string(n.Threshold))
		}
		if !slices.Equal(got, want.Emitted) {
			fail("emitted: got %v, want %v", got, want.Emitted)
		}
	}

	if want.ActiveNotifications != nil {
		active, err := r.eng.Notifications(ctx, r.sc.Restaurant, true)
		if err != nil {
			return nil, err
		}
		if len(active) != *want.ActiveNotifications {
			fail("active notifications: got %d, want %d", len(active), *want.ActiveNotifications)
		}
	}

	for _, id := range sortedKeys(want.Status) {
		b, err := r.src.LoadBooking(ctx, id)
		if err != nil {
			return nil, err
		}
		if string(b.Status) != want.Status[id] {
			fail("booking %s status: got %s, want %s", id, b.Status, want.Status[id])
		}
	}

	return failures, nil
}

func checkTable(id string, rec occupancy.Record, want TableExpect, fail func(string, ...any)) {
	if want.Occupied != nil && rec.IsOccupied != *want.Occupied {
		fail("table %s occupied: got %t, want %t", id, rec.IsOccupied, *want.Occupied)
	}
	if want.OccupiedBy != "" {
		got := string(rec.OccupiedBy)
		if got == "" {
			got = "free"
		}
		if got != want.OccupiedBy {
			fail("table %s occupied_by: got %s, want %s", id, got, want.OccupiedBy)
		}
	}
	if want.Current != "" {
		got := ""
		if rec.Current != nil {
			got = rec.Current.BookingID
		}
		if got != want.Current {
			fail("table %s current: got %q, want %q", id, got, want.Current)
		}
	}
	if want.Next != "" {
		got := ""
		if rec.Next != nil {
			got = rec.Next.BookingID
		}
		if got != want.Next {
			fail("table %s next: got %q, want %q", id, got, want.Next)
		}
	}
	if want.WalkIn != nil && rec.CanAcceptWalkIn != *want.WalkIn {
		fail("table %s walk_in: got %t, want %t", id, rec.CanAcceptWalkIn, *want.WalkIn)
	}
}

func checkConflict(sc *Scenario, c domain.Conflict, want ConflictExpect, fail func(string, ...any)) {
	key := c.Key()
	if want.Urgency != "" && string(c.Urgency) != want.Urgency {
		fail("conflict %s urgency: got %s, want %s", key, c.Urgency, want.Urgency)
	}
	if want.MustVacateBy != "" {
		if !c.MustVacateBy.Equal(sc.mustTime(want.MustVacateBy)) {
			fail("conflict %s must_vacate_by: got %s, want %s", key, clockLabel(c.MustVacateBy), want.MustVacateBy)
		}
	}
	if want.Resolved != nil && c.Resolved != *want.Resolved {
		fail("conflict %s resolved: got %t, want %t", key, c.Resolved, *want.Resolved)
	}
	if want.Resolution != "" && string(c.Resolution) != want.Resolution {
		fail("conflict %s resolution: got %q, want %q", key, c.Resolution, want.Resolution)
	}
}

func findConflict(cs []domain.Conflict, walkIn, upcoming string) (domain.Conflict, bool) {
	for _, c := range cs {
		if c.WalkInBookingID == walkIn && c.UpcomingBookingID == upcoming {
			return c, true
		}
	}
	return domain.Conflict{}, false
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
