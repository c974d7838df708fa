package domain

import (
	"sort"
	"time"
)

// DefaultTurnTimeMinutes is used when a booking carries no turn time.
const DefaultTurnTimeMinutes = 120

// Booking is a reservation or walk-in as read from the record store.
type Booking struct {
	ID              string     `json:"id"`
	RestaurantID    string     `json:"restaurant_id"`
	PartySize       int        `json:"party_size"`
	BookingTime     time.Time  `json:"booking_time"`
	TurnTimeMinutes int        `json:"turn_time_minutes"`
	Status          Status     `json:"status"`
	GuestName       string     `json:"guest_name"`
	CheckedInAt     *time.Time `json:"checked_in_at,omitempty"`
	SeatedAt        *time.Time `json:"seated_at,omitempty"`
	TableIDs        []string   `json:"table_ids"`
}

// TurnTime returns the expected table occupation time.
func (b Booking) TurnTime() time.Duration {
	minutes := b.TurnTimeMinutes
	if minutes <= 0 {
		minutes = DefaultTurnTimeMinutes
	}
	return time.Duration(minutes) * time.Minute
}

// End returns booking_time + turn time.
func (b Booking) End() time.Time {
	return b.BookingTime.Add(b.TurnTime())
}

// HasTable reports whether the booking is assigned to tableID.
func (b Booking) HasTable(tableID string) bool {
	for _, id := range b.TableIDs {
		if id == tableID {
			return true
		}
	}
	return false
}

// PresentSince returns the instant the party became physically present:
// the seated time when known, otherwise the check-in time.
func (b Booking) PresentSince() (time.Time, bool) {
	if b.SeatedAt != nil {
		return *b.SeatedAt, true
	}
	if b.CheckedInAt != nil {
		return *b.CheckedInAt, true
	}
	return time.Time{}, false
}

// Clone returns a deep copy so callers may mutate the result freely.
func (b Booking) Clone() Booking {
	out := b
	if b.CheckedInAt != nil {
		t := *b.CheckedInAt
		out.CheckedInAt = &t
	}
	if b.SeatedAt != nil {
		t := *b.SeatedAt
		out.SeatedAt = &t
	}
	out.TableIDs = append([]string(nil), b.TableIDs...)
	return out
}

// Table is a physical table. The engine never mutates tables.
type Table struct {
	ID           string `json:"id"`
	RestaurantID string `json:"restaurant_id"`
	Number       int    `json:"number"`
	Capacity     int    `json:"capacity"`
	Active       bool   `json:"active"`
	Combinable   bool   `json:"combinable"`
}

// TableAssignment links a booking to one of its tables.
type TableAssignment struct {
	BookingID string `json:"booking_id"`
	TableID   string `json:"table_id"`
}

// Window bounds the booking times loaded into a snapshot.
type Window struct {
	From time.Time
	To   time.Time
}

// DayWindow returns the window from the start of yesterday to the end of
// tomorrow relative to now, which covers parties seated across midnight.
func DayWindow(now time.Time) Window {
	y, m, d := now.Date()
	start := time.Date(y, m, d, 0, 0, 0, 0, now.Location())
	return Window{From: start.AddDate(0, 0, -1), To: start.AddDate(0, 0, 2)}
}

// Snapshot is the consistent view of one restaurant used by a recompute.
type Snapshot struct {
	RestaurantID string            `json:"restaurant_id"`
	Tables       []Table           `json:"tables"`
	Bookings     []Booking         `json:"bookings"`
	Assignments  []TableAssignment `json:"assignments,omitempty"`
	LoadedAt     time.Time         `json:"loaded_at"`
}

// Attach replaces each booking's TableIDs with the snapshot assignments.
// Assignments are authoritative and replace the whole set per booking.
// Bookings without assignments keep their embedded TableIDs.
func (s *Snapshot) Attach() {
	if len(s.Assignments) == 0 {
		return
	}
	byBooking := make(map[string][]string)
	for _, a := range s.Assignments {
		byBooking[a.BookingID] = append(byBooking[a.BookingID], a.TableID)
	}
	for i := range s.Bookings {
		if ids, ok := byBooking[s.Bookings[i].ID]; ok {
			sort.Strings(ids)
			s.Bookings[i].TableIDs = ids
		}
	}
}

// Booking returns the booking with the given id.
func (s *Snapshot) Booking(id string) (Booking, bool) {
	for _, b := range s.Bookings {
		if b.ID == id {
			return b, true
		}
	}
	return Booking{}, false
}

// TableByID indexes the snapshot tables by id.
func (s *Snapshot) TableByID() map[string]Table {
	out := make(map[string]Table, len(s.Tables))
	for _, t := range s.Tables {
		out[t.ID] = t
	}
	return out
}

// EventType distinguishes inbound change events.
type EventType string

const (
	EventBookingInserted    EventType = "booking_inserted"
	EventBookingUpdated     EventType = "booking_updated"
	EventAssignmentChanged  EventType = "assignment_changed"
	EventStatusTransitioned EventType = "status_transitioned"
)

// ChangeEvent is a booking or assignment mutation that triggers a recompute.
// Booking carries the post-change record when the producer includes it.
type ChangeEvent struct {
	Type         EventType `json:"type"`
	RestaurantID string    `json:"restaurant_id"`
	BookingID    string    `json:"booking_id,omitempty"`
	Booking      *Booking  `json:"booking,omitempty"`
	TableIDs     []string  `json:"table_ids,omitempty"`
	OccurredAt   time.Time `json:"occurred_at"`
}
