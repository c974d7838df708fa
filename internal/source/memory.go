package source

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/qwerty-development/tableflow/internal/domain"
)

// MemorySource is an in-process record store. Safe for concurrent use.
type MemorySource struct {
	mu       sync.RWMutex
	tables   map[string]domain.Table
	bookings map[string]domain.Booking
}

var _ SnapshotSource = (*MemorySource)(nil)

// NewMemorySource creates an empty source.
func NewMemorySource() *MemorySource {
	return &MemorySource{
		tables:   make(map[string]domain.Table),
		bookings: make(map[string]domain.Booking),
	}
}

// PutTable inserts or replaces a table.
func (m *MemorySource) PutTable(t domain.Table) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tables[t.ID] = t
}

// PutBooking inserts or replaces a booking, tables included.
func (m *MemorySource) PutBooking(b domain.Booking) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.bookings[b.ID] = b.Clone()
}

// Snapshot implements SnapshotSource.
func (m *MemorySource) Snapshot(_ context.Context, restaurantID string, w domain.Window) (domain.Snapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	snap := domain.Snapshot{RestaurantID: restaurantID, Tables: []domain.Table{}, Bookings: []domain.Booking{}}
	for _, t := range m.tables {
		if t.RestaurantID == restaurantID && t.Active {
			snap.Tables = append(snap.Tables, t)
		}
	}
	for _, b := range m.bookings {
		if b.RestaurantID != restaurantID {
			continue
		}
		inWindow := !b.BookingTime.Before(w.From) && b.BookingTime.Before(w.To)
		if !inWindow && !b.Status.IsPhysicallyPresent() {
			continue
		}
		snap.Bookings = append(snap.Bookings, b.Clone())
	}
	sort.Slice(snap.Tables, func(i, j int) bool {
		if snap.Tables[i].Number != snap.Tables[j].Number {
			return snap.Tables[i].Number < snap.Tables[j].Number
		}
		return snap.Tables[i].ID < snap.Tables[j].ID
	})
	sort.Slice(snap.Bookings, func(i, j int) bool {
		if !snap.Bookings[i].BookingTime.Equal(snap.Bookings[j].BookingTime) {
			return snap.Bookings[i].BookingTime.Before(snap.Bookings[j].BookingTime)
		}
		return snap.Bookings[i].ID < snap.Bookings[j].ID
	})
	for _, b := range snap.Bookings {
		for _, tid := range b.TableIDs {
			snap.Assignments = append(snap.Assignments, domain.TableAssignment{BookingID: b.ID, TableID: tid})
		}
	}
	return snap, nil
}

// LoadBooking implements SnapshotSource.
func (m *MemorySource) LoadBooking(_ context.Context, bookingID string) (domain.Booking, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, ok := m.bookings[bookingID]
	if !ok {
		return domain.Booking{}, ErrBookingNotFound
	}
	return b.Clone(), nil
}

// UpdateBookingStatus implements SnapshotSource.
func (m *MemorySource) UpdateBookingStatus(_ context.Context, b domain.Booking, _ time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.bookings[b.ID]
	if !ok {
		return ErrBookingNotFound
	}
	next := b.Clone()
	cur.Status = next.Status
	cur.CheckedInAt = next.CheckedInAt
	cur.SeatedAt = next.SeatedAt
	m.bookings[b.ID] = cur
	return nil
}

// ReplaceAssignments implements SnapshotSource.
func (m *MemorySource) ReplaceAssignments(_ context.Context, bookingID string, tableIDs []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.bookings[bookingID]
	if !ok {
		return ErrBookingNotFound
	}
	ids := append([]string(nil), tableIDs...)
	sort.Strings(ids)
	cur.TableIDs = ids
	m.bookings[bookingID] = cur
	return nil
}
