package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/qwerty-development/tableflow/internal/domain"
	"github.com/qwerty-development/tableflow/internal/escalation"
)

var _ escalation.SentState = (*Store)(nil)

// Stage returns the highest threshold recorded for a conflict, dismissed or
// not.
func (s *Store) Stage(ctx context.Context, conflictID string) (domain.Stage, error) {
	var rank sql.NullInt64
	err := s.db.QueryRowContext(ctx, `
		SELECT MAX(threshold_rank) FROM notifications WHERE conflict_id = ?
	`, conflictID).Scan(&rank)
	if err != nil {
		return domain.StageNone, fmt.Errorf("load stage: %w", err)
	}
	return domain.Stage(rank.Int64), nil
}

// Record inserts a notification.
// Uses ON CONFLICT(conflict_id, threshold) DO NOTHING; inserted reports
// whether this call created the row.
func (s *Store) Record(ctx context.Context, n domain.Notification) (bool, error) {
	tables, err := marshalInts(n.TableNumbers)
	if err != nil {
		return false, fmt.Errorf("record notification: %w", err)
	}

	result, err := s.db.ExecContext(ctx, `
		INSERT INTO notifications
		(id, conflict_id, restaurant_id, threshold, threshold_rank, title, message,
		 action_required, table_numbers, walk_in_guest, upcoming_guest, dismissed, dismissed_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT DO NOTHING
	`,
		n.ID,
		n.ConflictID,
		n.RestaurantID,
		string(n.Threshold),
		n.Threshold.Rank(),
		n.Title,
		n.Message,
		boolInt(n.ActionRequired),
		tables,
		n.WalkInGuest,
		n.UpcomingGuest,
		boolInt(n.Dismissed),
		formatNullTime(n.DismissedAt),
		formatTime(n.CreatedAt),
	)
	if err != nil {
		return false, fmt.Errorf("record notification: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("record notification: rows affected: %w", err)
	}
	return rowsAffected > 0, nil
}

// DismissConflict dismisses every undismissed notification of a conflict
// and returns how many changed.
func (s *Store) DismissConflict(ctx context.Context, conflictID string, at time.Time) (int, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE notifications
		SET dismissed = 1, dismissed_at = ?
		WHERE conflict_id = ? AND dismissed = 0
	`, formatTime(at), conflictID)
	if err != nil {
		return 0, fmt.Errorf("dismiss conflict notifications: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("dismiss conflict notifications: rows affected: %w", err)
	}
	return int(n), nil
}

// Dismiss marks one notification dismissed. Dismissing twice is a no-op;
// an unknown id returns escalation.ErrNotificationNotFound.
func (s *Store) Dismiss(ctx context.Context, notificationID string, at time.Time) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE notifications
		SET dismissed = 1, dismissed_at = COALESCE(dismissed_at, ?)
		WHERE id = ?
	`, formatTime(at), notificationID)
	if err != nil {
		return fmt.Errorf("dismiss notification: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("dismiss notification: rows affected: %w", err)
	}
	if n == 0 {
		return escalation.ErrNotificationNotFound
	}
	return nil
}

// Notifications lists a restaurant's notifications, newest first.
func (s *Store) Notifications(ctx context.Context, restaurantID string, activeOnly bool) ([]domain.Notification, error) {
	query := `
		SELECT id, conflict_id, restaurant_id, threshold, title, message, action_required,
		       table_numbers, walk_in_guest, upcoming_guest, dismissed, dismissed_at, created_at
		FROM notifications
		WHERE restaurant_id = ?`
	if activeOnly {
		query += ` AND dismissed = 0`
	}
	query += `
		ORDER BY created_at DESC, threshold_rank DESC, id ASC`

	rows, err := s.db.QueryContext(ctx, query, restaurantID)
	if err != nil {
		return nil, fmt.Errorf("query notifications: %w", err)
	}
	defer rows.Close()

	out := []domain.Notification{}
	for rows.Next() {
		var (
			n                 domain.Notification
			threshold         string
			action, dismissed int
			tables, createdAt string
			dismissedAt       sql.NullString
		)
		if err := rows.Scan(&n.ID, &n.ConflictID, &n.RestaurantID, &threshold, &n.Title, &n.Message, &action,
			&tables, &n.WalkInGuest, &n.UpcomingGuest, &dismissed, &dismissedAt, &createdAt); err != nil {
			return nil, fmt.Errorf("scan notification: %w", err)
		}
		n.Threshold = domain.Threshold(threshold)
		n.ActionRequired = action == 1
		n.Dismissed = dismissed == 1
		if n.TableNumbers, err = unmarshalInts(tables); err != nil {
			return nil, err
		}
		if n.DismissedAt, err = parseNullTime(dismissedAt); err != nil {
			return nil, err
		}
		if n.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate notifications: %w", err)
	}
	return out, nil
}
