package occupancy

import (
	"log/slog"
	"sort"
	"time"

	"github.com/qwerty-development/tableflow/internal/domain"
)

// DefaultWalkInHorizon is how far ahead a confirmed booking blocks walk-ins.
const DefaultWalkInHorizon = 90 * time.Minute

// OccupiedBy says which rule made a table occupied.
type OccupiedBy string

const (
	OccupiedByNone     OccupiedBy = ""
	OccupiedByPresence OccupiedBy = "presence"
	OccupiedBySchedule OccupiedBy = "schedule"
)

// CurrentBooking describes the party holding a table.
type CurrentBooking struct {
	BookingID           string        `json:"booking_id"`
	Status              domain.Status `json:"status"`
	GuestName           string        `json:"guest_name"`
	PartySize           int           `json:"party_size"`
	SeatedAt            *time.Time    `json:"seated_at,omitempty"`
	EstimatedCompletion time.Time     `json:"estimated_completion"`
}

// NextBooking describes the next confirmed reservation for a table.
type NextBooking struct {
	BookingID string    `json:"booking_id"`
	Time      time.Time `json:"time"`
	PartySize int       `json:"party_size"`
	GuestName string    `json:"guest_name"`
}

// Record is the derived occupancy of one table.
type Record struct {
	TableID         string          `json:"table_id"`
	TableNumber     int             `json:"table_number"`
	Capacity        int             `json:"capacity"`
	IsOccupied      bool            `json:"is_occupied"`
	OccupiedBy      OccupiedBy      `json:"occupied_by,omitempty"`
	Current         *CurrentBooking `json:"current_booking,omitempty"`
	Next            *NextBooking    `json:"next_booking,omitempty"`
	CanAcceptWalkIn bool            `json:"can_accept_walk_in"`
}

// Resolver computes occupancy records. The zero value is usable.
type Resolver struct {
	// WalkInHorizon blocks walk-ins when the next booking is at most this
	// far away. Zero uses DefaultWalkInHorizon.
	WalkInHorizon time.Duration

	// Logger receives skipped-assignment warnings. Nil uses slog.Default().
	Logger *slog.Logger
}

// Resolve computes the occupancy of every active table using a zero-value
// Resolver.
func Resolve(tables []domain.Table, bookings []domain.Booking, now time.Time) (map[string]Record, []Issue) {
	return Resolver{}.Resolve(tables, bookings, now)
}

type claim struct {
	booking domain.Booking
	present bool
}

// Resolve computes the occupancy of every active table at now.
//
// Bookings outside the active status set are ignored. An assignment to a
// table missing from the active set is skipped, logged and reported as an
// Issue; the remaining tables are still resolved.
func (r Resolver) Resolve(tables []domain.Table, bookings []domain.Booking, now time.Time) (map[string]Record, []Issue) {
	horizon := r.WalkInHorizon
	if horizon <= 0 {
		horizon = DefaultWalkInHorizon
	}
	logger := r.Logger
	if logger == nil {
		logger = slog.Default()
	}

	active := make(map[string]domain.Table, len(tables))
	for _, t := range tables {
		if t.Active {
			active[t.ID] = t
		}
	}

	var issues []Issue
	claims := make(map[string][]claim, len(active))
	for _, b := range bookings {
		if !b.Status.IsActive() {
			continue
		}
		for _, tableID := range b.TableIDs {
			if _, ok := active[tableID]; !ok {
				issue := Issue{
					Kind:      IssueInconsistentAssignment,
					BookingID: b.ID,
					TableID:   tableID,
					Detail:    "table not in active table set",
				}
				logger.Warn("skipping assignment",
					"booking_id", b.ID,
					"table_id", tableID,
					"event", "inconsistent_assignment",
				)
				issues = append(issues, issue)
				continue
			}
			claims[tableID] = append(claims[tableID], claim{
				booking: b,
				present: b.Status.IsPhysicallyPresent(),
			})
		}
	}

	out := make(map[string]Record, len(active))
	for id, t := range active {
		rec, tableIssues := resolveTable(t, claims[id], now, horizon)
		for _, is := range tableIssues {
			logger.Warn("multiple present bookings on table",
				"booking_id", is.BookingID,
				"table_id", is.TableID,
				"event", "double_presence",
			)
		}
		issues = append(issues, tableIssues...)
		out[id] = rec
	}

	sortIssues(issues)
	return out, issues
}

func resolveTable(t domain.Table, claims []claim, now time.Time, horizon time.Duration) (Record, []Issue) {
	rec := Record{
		TableID:     t.ID,
		TableNumber: t.Number,
		Capacity:    t.Capacity,
	}

	var present, scheduled, upcoming []domain.Booking
	for _, c := range claims {
		b := c.booking
		if c.present {
			present = append(present, b)
			continue
		}
		if !b.BookingTime.After(now) && !now.After(b.End()) {
			scheduled = append(scheduled, b)
		}
		if b.Status == domain.StatusConfirmed && b.BookingTime.After(now) {
			upcoming = append(upcoming, b)
		}
	}

	var issues []Issue
	if len(present) > 0 {
		sort.Slice(present, func(i, j int) bool { return presentBefore(present[i], present[j]) })
		rec.IsOccupied = true
		rec.OccupiedBy = OccupiedByPresence
		rec.Current = current(present[0])
		for _, extra := range present[1:] {
			issues = append(issues, Issue{
				Kind:      IssueDoublePresence,
				BookingID: extra.ID,
				TableID:   t.ID,
				Detail:    "table already held by " + present[0].ID,
			})
		}
	} else if len(scheduled) > 0 {
		sort.Slice(scheduled, func(i, j int) bool { return bookedBefore(scheduled[i], scheduled[j]) })
		rec.IsOccupied = true
		rec.OccupiedBy = OccupiedBySchedule
		rec.Current = current(scheduled[0])
	}

	if len(upcoming) > 0 {
		sort.Slice(upcoming, func(i, j int) bool { return bookedBefore(upcoming[i], upcoming[j]) })
		n := upcoming[0]
		rec.Next = &NextBooking{
			BookingID: n.ID,
			Time:      n.BookingTime,
			PartySize: n.PartySize,
			GuestName: domain.NormalizeName(n.GuestName),
		}
	}

	rec.CanAcceptWalkIn = rec.OccupiedBy != OccupiedByPresence &&
		(rec.Next == nil || rec.Next.Time.Sub(now) > horizon)

	return rec, issues
}

func current(b domain.Booking) *CurrentBooking {
	start := b.BookingTime
	var seated *time.Time
	if b.SeatedAt != nil {
		t := *b.SeatedAt
		seated = &t
		start = t
	}
	return &CurrentBooking{
		BookingID:           b.ID,
		Status:              b.Status,
		GuestName:           domain.NormalizeName(b.GuestName),
		PartySize:           b.PartySize,
		SeatedAt:            seated,
		EstimatedCompletion: start.Add(b.TurnTime()),
	}
}

// presentBefore orders physically-present bookings by the instant they
// became present, falling back to booking time, then id.
func presentBefore(a, b domain.Booking) bool {
	at, aok := a.PresentSince()
	if !aok {
		at = a.BookingTime
	}
	bt, bok := b.PresentSince()
	if !bok {
		bt = b.BookingTime
	}
	if !at.Equal(bt) {
		return at.Before(bt)
	}
	return a.ID < b.ID
}

func bookedBefore(a, b domain.Booking) bool {
	if !a.BookingTime.Equal(b.BookingTime) {
		return a.BookingTime.Before(b.BookingTime)
	}
	return a.ID < b.ID
}

// Sorted returns the records ordered by table number, then id.
func Sorted(records map[string]Record) []Record {
	out := make([]Record, 0, len(records))
	for _, r := range records {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].TableNumber != out[j].TableNumber {
			return out[i].TableNumber < out[j].TableNumber
		}
		return out[i].TableID < out[j].TableID
	})
	return out
}
