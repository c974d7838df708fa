package conflict

import (
	"sort"
	"time"

	"github.com/qwerty-development/tableflow/internal/domain"
	"github.com/qwerty-development/tableflow/internal/occupancy"
)

// DefaultCandidateWindow bounds how recently a party must have become
// present to be re-checked as a walk-in.
const DefaultCandidateWindow = 60 * time.Minute

// Input is everything one detection pass needs. It is a pure snapshot;
// Detect performs no I/O.
type Input struct {
	// Bookings is the restaurant snapshot with table ids attached.
	Bookings []domain.Booking

	// Occupancy is the resolver output for the same instant.
	Occupancy map[string]occupancy.Record

	// Candidates are the walk-ins to check for new conflicts.
	Candidates []domain.Booking

	// Previous are the conflicts known before this pass, open or resolved.
	Previous []domain.Conflict

	RestaurantID string
	Now          time.Time
}

// Detector finds conflicts. The zero value uses the default horizons.
type Detector struct {
	Lookahead    time.Duration
	VacateBuffer time.Duration
}

// Detect runs a zero-value Detector.
func Detect(in Input) []domain.Conflict {
	return Detector{}.Detect(in)
}

// CandidateWalkIns returns the physically-present bookings that became
// present within window before now.
func CandidateWalkIns(bookings []domain.Booking, now time.Time, window time.Duration) []domain.Booking {
	if window <= 0 {
		window = DefaultCandidateWindow
	}
	var out []domain.Booking
	for _, b := range bookings {
		if !b.Status.IsPhysicallyPresent() {
			continue
		}
		since, ok := b.PresentSince()
		if !ok {
			continue
		}
		age := now.Sub(since)
		if age >= 0 && age <= window {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Detect returns the full conflict set after this pass: every conflict in
// in.Previous (updated or resolved) plus the newly found ones, ordered by
// arrival time then id.
func (d Detector) Detect(in Input) []domain.Conflict {
	lookahead := d.Lookahead
	if lookahead <= 0 {
		lookahead = domain.ConflictLookahead
	}
	vacate := d.VacateBuffer
	if vacate <= 0 {
		vacate = domain.VacateBuffer
	}

	byID := make(map[string]domain.Booking, len(in.Bookings))
	upcomingByTable := make(map[string][]domain.Booking)
	for _, b := range in.Bookings {
		byID[b.ID] = b
		if b.Status != domain.StatusConfirmed {
			continue
		}
		for _, tid := range b.TableIDs {
			upcomingByTable[tid] = append(upcomingByTable[tid], b)
		}
	}

	previous := make(map[string]domain.Conflict, len(in.Previous))
	for _, c := range in.Previous {
		previous[c.Key()] = c
	}

	results := make(map[string]domain.Conflict)

	for _, cand := range in.Candidates {
		walkIn, ok := byID[cand.ID]
		if !ok || !walkIn.Status.IsPhysicallyPresent() {
			continue
		}
		for _, tid := range walkIn.TableIDs {
			if !occupiedByPresence(in.Occupancy, tid) {
				continue
			}
			for _, up := range upcomingByTable[tid] {
				if up.ID == walkIn.ID {
					continue
				}
				untilArrival := up.BookingTime.Sub(in.Now)
				if untilArrival <= 0 || untilArrival > lookahead {
					continue
				}
				key := walkIn.ID + "/" + up.ID
				if _, done := results[key]; done {
					continue
				}
				if prev, seen := previous[key]; seen && prev.Resolved {
					continue
				}
				c := d.build(in, walkIn, up, previous[key], vacate)
				results[key] = c
			}
		}
	}

	for key, prev := range previous {
		if _, done := results[key]; done {
			continue
		}
		if prev.Resolved {
			results[key] = prev
			continue
		}
		results[key] = d.reevaluate(in, byID, prev, lookahead, vacate)
	}

	out := make([]domain.Conflict, 0, len(results))
	for _, c := range results {
		out = append(out, c)
	}
	domain.SortConflicts(out)
	return out
}

// reevaluate keeps an open conflict alive while the walk-in still holds a
// shared table and the reservation is still confirmed there. The
// reservation time may already have passed: that is the overdue case.
func (d Detector) reevaluate(in Input, byID map[string]domain.Booking, prev domain.Conflict, lookahead, vacate time.Duration) domain.Conflict {
	c := prev
	walkIn, ok := byID[prev.WalkInBookingID]
	if !ok || !walkIn.Status.IsPhysicallyPresent() {
		c.Resolve(domain.ResolutionWalkInVacated, in.Now)
		return c
	}
	up, ok := byID[prev.UpcomingBookingID]
	if !ok || up.Status != domain.StatusConfirmed || up.BookingTime.Sub(in.Now) > lookahead {
		c.Resolve(domain.ResolutionUpcomingReleased, in.Now)
		return c
	}
	if len(sharedTables(in.Occupancy, walkIn, up)) == 0 {
		if holdsAny(walkIn, prev.TableIDs) {
			c.Resolve(domain.ResolutionUpcomingReleased, in.Now)
		} else {
			c.Resolve(domain.ResolutionWalkInReassigned, in.Now)
		}
		return c
	}
	return d.build(in, walkIn, up, prev, vacate)
}

// build derives the conflict for a live (walk-in, upcoming) pair, keeping
// the identity and first-detection time of prev when present.
func (d Detector) build(in Input, walkIn, up domain.Booking, prev domain.Conflict, vacate time.Duration) domain.Conflict {
	tables := sharedTables(in.Occupancy, walkIn, up)
	numbers := make([]int, 0, len(tables))
	for _, tid := range tables {
		numbers = append(numbers, in.Occupancy[tid].TableNumber)
	}
	sort.Ints(numbers)

	seatedAt, ok := walkIn.PresentSince()
	if !ok {
		seatedAt = prev.SeatedAt
	}
	detectedAt := prev.DetectedAt
	if prev.ID == "" || detectedAt.IsZero() {
		detectedAt = in.Now
	}
	restaurantID := walkIn.RestaurantID
	if restaurantID == "" {
		restaurantID = in.RestaurantID
	}

	untilArrival := up.BookingTime.Sub(in.Now)
	return domain.Conflict{
		ID:                domain.ConflictID(walkIn.ID, up.ID),
		RestaurantID:      restaurantID,
		WalkInBookingID:   walkIn.ID,
		UpcomingBookingID: up.ID,
		TableIDs:          tables,
		TableNumbers:      numbers,
		WalkInGuest:       domain.NormalizeName(walkIn.GuestName),
		UpcomingGuest:     domain.NormalizeName(up.GuestName),
		ArrivalTime:       up.BookingTime,
		SeatedAt:          seatedAt,
		MustVacateBy:      up.BookingTime.Add(-vacate),
		MinutesToArrival:  int(untilArrival / time.Minute),
		Urgency:           domain.UrgencyFor(untilArrival),
		DetectedAt:        detectedAt,
	}
}

// Dismiss resolves a conflict by explicit staff action.
func Dismiss(c *domain.Conflict, now time.Time) {
	c.Resolve(domain.ResolutionDismissed, now)
}

// Open filters out resolved conflicts.
func Open(cs []domain.Conflict) []domain.Conflict {
	var out []domain.Conflict
	for _, c := range cs {
		if !c.Resolved {
			out = append(out, c)
		}
	}
	return out
}

func occupiedByPresence(records map[string]occupancy.Record, tableID string) bool {
	rec, ok := records[tableID]
	return ok && rec.OccupiedBy == occupancy.OccupiedByPresence
}

// sharedTables returns the tables held by walkIn (and occupied by presence)
// that up is also assigned to, sorted by id.
func sharedTables(records map[string]occupancy.Record, walkIn, up domain.Booking) []string {
	var out []string
	for _, tid := range walkIn.TableIDs {
		if up.HasTable(tid) && occupiedByPresence(records, tid) {
			out = append(out, tid)
		}
	}
	sort.Strings(out)
	return out
}

func holdsAny(b domain.Booking, tableIDs []string) bool {
	for _, tid := range tableIDs {
		if b.HasTable(tid) {
			return true
		}
	}
	return false
}
