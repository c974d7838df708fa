package source

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/mattn/go-sqlite3"

	"github.com/qwerty-development/tableflow/internal/domain"
)

// Supported drivers.
const (
	DriverMySQL  = "mysql"
	DriverSQLite = "sqlite3"
)

//go:embed schema.sql
var sqliteSchema string

// SQLSource reads and writes the record store over database/sql.
type SQLSource struct {
	db     *sql.DB
	driver string
}

var _ SnapshotSource = (*SQLSource)(nil)

// Open connects to the record store and verifies the connection.
// For MySQL the DSN should carry parseTime=true&loc=UTC.
func Open(ctx context.Context, driver, dsn string) (*SQLSource, error) {
	switch driver {
	case DriverMySQL, DriverSQLite:
	default:
		return nil, fmt.Errorf("unsupported record store driver %q", driver)
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open record store: %w", err)
	}

	if driver == DriverSQLite {
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
	} else {
		db.SetMaxOpenConns(25)
		db.SetMaxIdleConns(25)
		db.SetConnMaxLifetime(30 * time.Minute)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("connect to record store: %w", err)
	}
	return &SQLSource{db: db, driver: driver}, nil
}

// New wraps an existing connection.
func New(db *sql.DB, driver string) *SQLSource {
	return &SQLSource{db: db, driver: driver}
}

// Close closes the connection.
func (s *SQLSource) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// DB returns the underlying connection.
func (s *SQLSource) DB() *sql.DB { return s.db }

// EnsureSchema creates the record-store tables on SQLite. The MySQL schema
// is owned by the booking service, so this is a no-op there.
func (s *SQLSource) EnsureSchema(ctx context.Context) error {
	if s.driver != DriverSQLite {
		return nil
	}
	if _, err := s.db.ExecContext(ctx, sqliteSchema); err != nil {
		return fmt.Errorf("apply record store schema: %w", err)
	}
	return nil
}

// Ping checks the connection.
func (s *SQLSource) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Snapshot loads one restaurant's tables, bookings and assignments.
func (s *SQLSource) Snapshot(ctx context.Context, restaurantID string, w domain.Window) (domain.Snapshot, error) {
	tables, err := s.LoadActiveTables(ctx, restaurantID)
	if err != nil {
		return domain.Snapshot{}, err
	}
	bookings, err := s.LoadActiveBookings(ctx, restaurantID, w)
	if err != nil {
		return domain.Snapshot{}, err
	}
	ids := make([]string, len(bookings))
	for i, b := range bookings {
		ids[i] = b.ID
	}
	assignments, err := s.LoadAssignments(ctx, ids)
	if err != nil {
		return domain.Snapshot{}, err
	}

	snap := domain.Snapshot{
		RestaurantID: restaurantID,
		Tables:       tables,
		Bookings:     bookings,
		Assignments:  assignments,
	}
	snap.Attach()
	return snap, nil
}

// LoadActiveTables returns the restaurant's active tables by number.
func (s *SQLSource) LoadActiveTables(ctx context.Context, restaurantID string) ([]domain.Table, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, restaurant_id, table_number, capacity, is_active, is_combinable
		FROM restaurant_tables
		WHERE restaurant_id = ? AND is_active = 1
		ORDER BY table_number ASC, id ASC
	`, restaurantID)
	if err != nil {
		return nil, fmt.Errorf("query tables: %w", err)
	}
	defer rows.Close()

	tables := []domain.Table{}
	for rows.Next() {
		var t domain.Table
		if err := rows.Scan(&t.ID, &t.RestaurantID, &t.Number, &t.Capacity, &t.Active, &t.Combinable); err != nil {
			return nil, fmt.Errorf("scan table: %w", err)
		}
		tables = append(tables, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tables: %w", err)
	}
	return tables, nil
}

const bookingColumns = `id, restaurant_id, party_size, booking_time, turn_time_minutes, status,
		       guest_name, checked_in_at, seated_at`

// LoadActiveBookings returns the bookings whose time falls in w, plus every
// physically-present booking regardless of time.
func (s *SQLSource) LoadActiveBookings(ctx context.Context, restaurantID string, w domain.Window) ([]domain.Booking, error) {
	present := presentStatuses()
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(present)), ", ")

	args := []any{restaurantID, w.From.UTC(), w.To.UTC()}
	for _, st := range present {
		args = append(args, string(st))
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT `+bookingColumns+`
		FROM bookings
		WHERE restaurant_id = ?
		  AND ((booking_time >= ? AND booking_time < ?) OR status IN (`+placeholders+`))
		ORDER BY booking_time ASC, id ASC
	`, args...)
	if err != nil {
		return nil, fmt.Errorf("query bookings: %w", err)
	}
	defer rows.Close()

	bookings := []domain.Booking{}
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, err
		}
		bookings = append(bookings, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate bookings: %w", err)
	}
	return bookings, nil
}

// LoadAssignments returns the table assignments of the given bookings.
func (s *SQLSource) LoadAssignments(ctx context.Context, bookingIDs []string) ([]domain.TableAssignment, error) {
	if len(bookingIDs) == 0 {
		return nil, nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(bookingIDs)), ", ")
	args := make([]any, len(bookingIDs))
	for i, id := range bookingIDs {
		args[i] = id
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT booking_id, table_id FROM booking_tables
		WHERE booking_id IN (`+placeholders+`)
		ORDER BY booking_id ASC, table_id ASC
	`, args...)
	if err != nil {
		return nil, fmt.Errorf("query assignments: %w", err)
	}
	defer rows.Close()

	var out []domain.TableAssignment
	for rows.Next() {
		var a domain.TableAssignment
		if err := rows.Scan(&a.BookingID, &a.TableID); err != nil {
			return nil, fmt.Errorf("scan assignment: %w", err)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate assignments: %w", err)
	}
	return out, nil
}

// LoadBooking returns one booking with its tables.
func (s *SQLSource) LoadBooking(ctx context.Context, bookingID string) (domain.Booking, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE id = ?`, bookingID)
	b, err := scanBooking(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Booking{}, ErrBookingNotFound
	}
	if err != nil {
		return domain.Booking{}, err
	}

	assignments, err := s.LoadAssignments(ctx, []string{bookingID})
	if err != nil {
		return domain.Booking{}, err
	}
	for _, a := range assignments {
		b.TableIDs = append(b.TableIDs, a.TableID)
	}
	sort.Strings(b.TableIDs)
	return b, nil
}

// UpdateBookingStatus writes the status and presence stamps of b.
func (s *SQLSource) UpdateBookingStatus(ctx context.Context, b domain.Booking, at time.Time) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE bookings
		SET status = ?, checked_in_at = ?, seated_at = ?, updated_at = ?
		WHERE id = ?
	`, string(b.Status), nullTime(b.CheckedInAt), nullTime(b.SeatedAt), at.UTC(), b.ID)
	if err != nil {
		return fmt.Errorf("update booking %s: %w", b.ID, err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update booking %s: rows affected: %w", b.ID, err)
	}
	if n == 0 {
		return ErrBookingNotFound
	}
	return nil
}

// ReplaceAssignments replaces the booking's table set in one transaction.
func (s *SQLSource) ReplaceAssignments(ctx context.Context, bookingID string, tableIDs []string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("replace assignments: begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	if _, err := tx.ExecContext(ctx, `DELETE FROM booking_tables WHERE booking_id = ?`, bookingID); err != nil {
		return fmt.Errorf("replace assignments: delete: %w", err)
	}
	for _, tid := range tableIDs {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO booking_tables (booking_id, table_id) VALUES (?, ?)
		`, bookingID, tid); err != nil {
			return fmt.Errorf("replace assignments: insert %s: %w", tid, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("replace assignments: commit: %w", err)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanBooking(row scanner) (domain.Booking, error) {
	var (
		b         domain.Booking
		status    string
		guest     sql.NullString
		turn      sql.NullInt64
		checkedIn sql.NullTime
		seated    sql.NullTime
	)
	if err := row.Scan(&b.ID, &b.RestaurantID, &b.PartySize, &b.BookingTime, &turn, &status,
		&guest, &checkedIn, &seated); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Booking{}, err
		}
		return domain.Booking{}, fmt.Errorf("scan booking: %w", err)
	}
	b.Status = domain.Status(status)
	b.GuestName = guest.String
	b.TurnTimeMinutes = int(turn.Int64)
	b.BookingTime = b.BookingTime.UTC()
	if checkedIn.Valid {
		t := checkedIn.Time.UTC()
		b.CheckedInAt = &t
	}
	if seated.Valid {
		t := seated.Time.UTC()
		b.SeatedAt = &t
	}
	return b, nil
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}
