package store

import (
	"context"
	"fmt"
	"time"

	"github.com/qwerty-development/tableflow/internal/domain"
	"github.com/qwerty-development/tableflow/internal/escalation"
)

var _ escalation.TaskQueue = (*Store)(nil)

// Schedule queues a transition unless one is already pending for the same
// booking and from-status.
func (s *Store) Schedule(ctx context.Context, t escalation.ScheduledTransition) (bool, error) {
	result, err := s.db.ExecContext(ctx, `
		INSERT INTO scheduled_transitions
		(id, restaurant_id, booking_id, from_status, to_status, due_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT DO NOTHING
	`,
		t.ID,
		t.RestaurantID,
		t.BookingID,
		string(t.From),
		string(t.To),
		formatTime(t.DueAt),
	)
	if err != nil {
		return false, fmt.Errorf("schedule transition: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("schedule transition: rows affected: %w", err)
	}
	return n > 0, nil
}

// Cancel drops every pending transition for a booking.
func (s *Store) Cancel(ctx context.Context, bookingID string) (int, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM scheduled_transitions WHERE booking_id = ?`, bookingID)
	if err != nil {
		return 0, fmt.Errorf("cancel transitions: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("cancel transitions: rows affected: %w", err)
	}
	return int(n), nil
}

// Pending lists queued transitions ordered by due time. An empty
// restaurantID lists all restaurants.
func (s *Store) Pending(ctx context.Context, restaurantID string) ([]escalation.ScheduledTransition, error) {
	return s.queryTasks(ctx, `
		SELECT id, restaurant_id, booking_id, from_status, to_status, due_at
		FROM scheduled_transitions
		WHERE (? = '' OR restaurant_id = ?)
		ORDER BY due_at ASC, id ASC
	`, restaurantID, restaurantID)
}

// Due lists the transitions due at or before now.
func (s *Store) Due(ctx context.Context, restaurantID string, now time.Time) ([]escalation.ScheduledTransition, error) {
	return s.queryTasks(ctx, `
		SELECT id, restaurant_id, booking_id, from_status, to_status, due_at
		FROM scheduled_transitions
		WHERE (? = '' OR restaurant_id = ?) AND due_at <= ?
		ORDER BY due_at ASC, id ASC
	`, restaurantID, restaurantID, formatTime(now))
}

// Complete removes a transition after it was applied or dropped.
func (s *Store) Complete(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM scheduled_transitions WHERE id = ?`, id); err != nil {
		return fmt.Errorf("complete transition: %w", err)
	}
	return nil
}

func (s *Store) queryTasks(ctx context.Context, query string, args ...any) ([]escalation.ScheduledTransition, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query transitions: %w", err)
	}
	defer rows.Close()

	var out []escalation.ScheduledTransition
	for rows.Next() {
		var (
			t        escalation.ScheduledTransition
			from, to string
			due      string
		)
		if err := rows.Scan(&t.ID, &t.RestaurantID, &t.BookingID, &from, &to, &due); err != nil {
			return nil, fmt.Errorf("scan transition: %w", err)
		}
		t.From = domain.Status(from)
		t.To = domain.Status(to)
		if t.DueAt, err = parseTime(due); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate transitions: %w", err)
	}
	return out, nil
}
