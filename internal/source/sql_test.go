package source

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qwerty-development/tableflow/internal/domain"
	"github.com/qwerty-development/tableflow/internal/testutil"
)

var at = testutil.At

func openTestSource(t *testing.T) *SQLSource {
	t.Helper()
	ctx := context.Background()
	src, err := Open(ctx, DriverSQLite, filepath.Join(t.TempDir(), "records.db"))
	require.NoError(t, err)
	t.Cleanup(func() { src.Close() })
	require.NoError(t, src.EnsureSchema(ctx))
	return src
}

func seed(t *testing.T, src *SQLSource) {
	t.Helper()
	ctx := context.Background()
	db := src.DB()

	tables := []struct {
		id     string
		number int
		active bool
	}{
		{"t5", 5, true},
		{"t6", 6, true},
		{"t9", 9, false},
	}
	for _, tb := range tables {
		_, err := db.ExecContext(ctx, `
			INSERT INTO restaurant_tables (id, restaurant_id, table_number, capacity, is_active, is_combinable)
			VALUES (?, 'r-1', ?, 4, ?, 0)
		`, tb.id, tb.number, tb.active)
		require.NoError(t, err)
	}

	seated := at(18, 0)
	bookings := []struct {
		id     string
		when   time.Time
		status domain.Status
		seated *time.Time
		tables []string
	}{
		{"walk", at(18, 0), domain.StatusSeated, &seated, []string{"t5"}},
		{"res", at(19, 0), domain.StatusConfirmed, nil, []string{"t5"}},
		{"tomorrow", at(19, 0).AddDate(0, 0, 3), domain.StatusConfirmed, nil, nil},
		{"lingering", at(19, 0).AddDate(0, 0, -3), domain.StatusPayment, &seated, []string{"t6"}},
	}
	for _, b := range bookings {
		_, err := db.ExecContext(ctx, `
			INSERT INTO bookings (id, restaurant_id, party_size, booking_time, turn_time_minutes, status, guest_name, seated_at)
			VALUES (?, 'r-1', 2, ?, 120, ?, ?, ?)
		`, b.id, b.when, string(b.status), "Guest "+b.id, nullTime(b.seated))
		require.NoError(t, err)
		for _, tid := range b.tables {
			_, err := db.ExecContext(ctx, `INSERT INTO booking_tables (booking_id, table_id) VALUES (?, ?)`, b.id, tid)
			require.NoError(t, err)
		}
	}
}

func TestOpen_RejectsUnknownDriver(t *testing.T) {
	_, err := Open(context.Background(), "postgres", "whatever")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported")
}

func TestSQLSource_Snapshot(t *testing.T) {
	src := openTestSource(t)
	seed(t, src)

	snap, err := src.Snapshot(context.Background(), "r-1", domain.DayWindow(at(18, 30)))
	require.NoError(t, err)

	require.Len(t, snap.Tables, 2, "inactive tables are not loaded")
	assert.Equal(t, 5, snap.Tables[0].Number)
	assert.Equal(t, 6, snap.Tables[1].Number)

	ids := make([]string, len(snap.Bookings))
	for i, b := range snap.Bookings {
		ids[i] = b.ID
	}
	assert.ElementsMatch(t, []string{"walk", "res", "lingering"}, ids)

	walk, ok := snap.Booking("walk")
	require.True(t, ok)
	assert.Equal(t, domain.StatusSeated, walk.Status)
	assert.Equal(t, []string{"t5"}, walk.TableIDs)
	require.NotNil(t, walk.SeatedAt)
	assert.Equal(t, at(18, 0), *walk.SeatedAt)
	assert.Equal(t, at(18, 0), walk.BookingTime)
	assert.Equal(t, "Guest walk", walk.GuestName)
}

func TestSQLSource_StatusAndAssignments(t *testing.T) {
	ctx := context.Background()
	src := openTestSource(t)
	seed(t, src)

	b, err := src.LoadBooking(ctx, "res")
	require.NoError(t, err)
	assert.Equal(t, []string{"t5"}, b.TableIDs)

	checkedIn := at(18, 58)
	b.Status = domain.StatusArrived
	b.CheckedInAt = &checkedIn
	require.NoError(t, src.UpdateBookingStatus(ctx, b, checkedIn))
	require.NoError(t, src.ReplaceAssignments(ctx, "res", []string{"t6", "t5"}))

	got, err := src.LoadBooking(ctx, "res")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusArrived, got.Status)
	require.NotNil(t, got.CheckedInAt)
	assert.Equal(t, checkedIn, *got.CheckedInAt)
	assert.Nil(t, got.SeatedAt)
	assert.Equal(t, []string{"t5", "t6"}, got.TableIDs)

	require.NoError(t, src.ReplaceAssignments(ctx, "res", nil))
	got, err = src.LoadBooking(ctx, "res")
	require.NoError(t, err)
	assert.Empty(t, got.TableIDs)
}

func TestSQLSource_NotFound(t *testing.T) {
	ctx := context.Background()
	src := openTestSource(t)

	_, err := src.LoadBooking(ctx, "missing")
	assert.ErrorIs(t, err, ErrBookingNotFound)

	err = src.UpdateBookingStatus(ctx, domain.Booking{ID: "missing", Status: domain.StatusSeated}, at(18, 0))
	assert.ErrorIs(t, err, ErrBookingNotFound)
}
