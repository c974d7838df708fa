package source

import (
	"context"
	"errors"
	"time"

	"github.com/qwerty-development/tableflow/internal/domain"
)

// ErrBookingNotFound is returned for an unknown booking id.
var ErrBookingNotFound = errors.New("booking not found")

// SnapshotSource is the engine's view of the record store.
type SnapshotSource interface {
	// Snapshot returns the active tables, the bookings in the window plus
	// any physically-present booking, and their assignments.
	Snapshot(ctx context.Context, restaurantID string, w domain.Window) (domain.Snapshot, error)

	LoadBooking(ctx context.Context, bookingID string) (domain.Booking, error)

	// UpdateBookingStatus persists Status, CheckedInAt and SeatedAt of b.
	UpdateBookingStatus(ctx context.Context, b domain.Booking, at time.Time) error

	// ReplaceAssignments sets the booking's tables to exactly tableIDs.
	ReplaceAssignments(ctx context.Context, bookingID string, tableIDs []string) error
}

func presentStatuses() []domain.Status {
	var out []domain.Status
	for _, s := range domain.AllStatuses {
		if s.IsPhysicallyPresent() {
			out = append(out, s)
		}
	}
	return out
}
