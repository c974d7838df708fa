package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/qwerty-development/tableflow/internal/domain"
	"github.com/qwerty-development/tableflow/internal/lifecycle"
)

// ErrConflictNotFound is returned for an unknown conflict id.
var ErrConflictNotFound = errors.New("conflict not found")

// History returns the status history of a booking ordered by seq.
//
// Returns an empty slice (not nil) when the booking has no history.
func (s *Store) History(ctx context.Context, bookingID string) ([]lifecycle.HistoryEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT seq, booking_id, restaurant_id, from_status, to_status, actor, mode, at, metadata
		FROM status_history
		WHERE booking_id = ?
		ORDER BY seq ASC
	`, bookingID)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	entries := []lifecycle.HistoryEntry{}
	for rows.Next() {
		var (
			h        lifecycle.HistoryEntry
			from, to string
			mode     string
			at, meta string
		)
		if err := rows.Scan(&h.Seq, &h.BookingID, &h.RestaurantID, &from, &to, &h.Actor, &mode, &at, &meta); err != nil {
			return nil, fmt.Errorf("scan history: %w", err)
		}
		h.From = domain.Status(from)
		h.To = domain.Status(to)
		h.Mode = lifecycle.Mode(mode)
		if h.At, err = parseTime(at); err != nil {
			return nil, fmt.Errorf("scan history: %w", err)
		}
		if h.Metadata, err = unmarshalMetadata(meta); err != nil {
			return nil, fmt.Errorf("scan history: %w", err)
		}
		entries = append(entries, h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate history: %w", err)
	}
	return entries, nil
}

// LastSeq returns the highest history sequence number, or 0 when empty.
// The engine resumes its sequence from here after a restart.
func (s *Store) LastSeq(ctx context.Context) (int64, error) {
	var seq sql.NullInt64
	if err := s.db.QueryRowContext(ctx, `SELECT MAX(seq) FROM status_history`).Scan(&seq); err != nil {
		return 0, fmt.Errorf("last seq: %w", err)
	}
	return seq.Int64, nil
}

// Conflicts returns the stored conflicts of a restaurant ordered by arrival
// time then id. Resolved conflicts are included only when asked for.
func (s *Store) Conflicts(ctx context.Context, restaurantID string, includeResolved bool) ([]domain.Conflict, error) {
	query := `
		SELECT body FROM conflicts
		WHERE restaurant_id = ?`
	if !includeResolved {
		query += ` AND resolved = 0`
	}
	query += `
		ORDER BY arrival_time ASC, id ASC`

	rows, err := s.db.QueryContext(ctx, query, restaurantID)
	if err != nil {
		return nil, fmt.Errorf("query conflicts: %w", err)
	}
	defer rows.Close()

	out := []domain.Conflict{}
	for rows.Next() {
		var body string
		if err := rows.Scan(&body); err != nil {
			return nil, fmt.Errorf("scan conflict: %w", err)
		}
		var c domain.Conflict
		if err := json.Unmarshal([]byte(body), &c); err != nil {
			return nil, fmt.Errorf("decode conflict: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate conflicts: %w", err)
	}
	return out, nil
}

// Conflict returns one conflict by id.
func (s *Store) Conflict(ctx context.Context, id string) (domain.Conflict, error) {
	var body string
	err := s.db.QueryRowContext(ctx, `SELECT body FROM conflicts WHERE id = ?`, id).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Conflict{}, ErrConflictNotFound
	}
	if err != nil {
		return domain.Conflict{}, fmt.Errorf("load conflict %s: %w", id, err)
	}
	var c domain.Conflict
	if err := json.Unmarshal([]byte(body), &c); err != nil {
		return domain.Conflict{}, fmt.Errorf("decode conflict %s: %w", id, err)
	}
	return c, nil
}

// ResolveConflict marks a stored conflict resolved. Resolving an already
// resolved conflict returns it unchanged.
func (s *Store) ResolveConflict(ctx context.Context, id string, reason domain.Resolution, at time.Time) (domain.Conflict, error) {
	c, err := s.Conflict(ctx, id)
	if err != nil {
		return domain.Conflict{}, err
	}
	if c.Resolved {
		return c, nil
	}
	c.Resolve(reason, at)
	if err := s.SaveConflicts(ctx, []domain.Conflict{c}, at); err != nil {
		return domain.Conflict{}, fmt.Errorf("resolve conflict %s: %w", id, err)
	}
	return c, nil
}
