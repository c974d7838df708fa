package store

import (
	"context"
	"fmt"
	"time"

	"github.com/qwerty-development/tableflow/internal/domain"
	"github.com/qwerty-development/tableflow/internal/lifecycle"
)

// AppendHistory inserts a status history entry.
// Uses ON CONFLICT(seq) DO NOTHING so replays of the same entry are ignored.
func (s *Store) AppendHistory(ctx context.Context, h lifecycle.HistoryEntry) error {
	meta, err := marshalMetadata(h.Metadata)
	if err != nil {
		return fmt.Errorf("append history: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO status_history
		(seq, booking_id, restaurant_id, from_status, to_status, actor, mode, at, metadata)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(seq) DO NOTHING
	`,
		h.Seq,
		h.BookingID,
		h.RestaurantID,
		string(h.From),
		string(h.To),
		h.Actor,
		string(h.Mode),
		formatTime(h.At),
		meta,
	)
	if err != nil {
		return fmt.Errorf("append history: %w", err)
	}
	return nil
}

// SaveConflicts upserts the full conflict set from one detection pass in a
// single transaction. A conflict stored as resolved is never reopened.
func (s *Store) SaveConflicts(ctx context.Context, conflicts []domain.Conflict, now time.Time) error {
	if len(conflicts) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("save conflicts: begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	for _, c := range conflicts {
		body, err := marshalJSON(c)
		if err != nil {
			return fmt.Errorf("save conflicts: marshal %s: %w", c.ID, err)
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO conflicts
			(id, restaurant_id, walk_in_booking_id, upcoming_booking_id, arrival_time, resolved, body, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				arrival_time = excluded.arrival_time,
				resolved     = excluded.resolved,
				body         = excluded.body,
				updated_at   = excluded.updated_at
			WHERE conflicts.resolved = 0
		`,
			c.ID,
			c.RestaurantID,
			c.WalkInBookingID,
			c.UpcomingBookingID,
			formatTime(c.ArrivalTime),
			boolInt(c.Resolved),
			body,
			formatTime(now),
		)
		if err != nil {
			return fmt.Errorf("save conflicts: upsert %s: %w", c.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("save conflicts: commit: %w", err)
	}
	return nil
}
