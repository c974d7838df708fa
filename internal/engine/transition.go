package engine

import (
	"context"
	"fmt"

	"github.com/qwerty-development/tableflow/internal/cache"
	"github.com/qwerty-development/tableflow/internal/domain"
	"github.com/qwerty-development/tableflow/internal/lifecycle"
	"github.com/qwerty-development/tableflow/internal/source"
)

// TransitionRequest asks for a booking status change.
type TransitionRequest struct {
	RestaurantID string
	BookingID    string
	To           domain.Status
	Actor        string
	// Mode selects the policy. Empty uses the configured default.
	Mode     lifecycle.Mode
	Metadata map[string]string
}

// Transition applies a status change, persists it to the record store,
// appends history and queues a recompute. A change the policy forbids
// returns *lifecycle.InvalidTransitionError and changes nothing.
func (e *Engine) Transition(ctx context.Context, req TransitionRequest) (lifecycle.HistoryEntry, error) {
	w := e.worker(req.RestaurantID)

	w.mu.Lock()
	entry, b, err := e.transitionLocked(ctx, w, req)
	w.mu.Unlock()
	if err != nil {
		return lifecycle.HistoryEntry{}, err
	}

	if err := e.cache.Invalidate(ctx, req.RestaurantID); err != nil {
		e.logger.Warn("board cache invalidate failed", "event", "cache_failed", "restaurant_id", req.RestaurantID, "error", err)
	}
	e.announce(ctx, entry)
	ev := entry.Event()
	ev.Booking = &b
	e.notify(w, ev)
	return entry, nil
}

// CRITICAL: caller holds w.mu.
func (e *Engine) transitionLocked(ctx context.Context, w *worker, req TransitionRequest) (lifecycle.HistoryEntry, domain.Booking, error) {
	b, err := e.src.LoadBooking(ctx, req.BookingID)
	if err != nil {
		return lifecycle.HistoryEntry{}, domain.Booking{}, fmt.Errorf("load booking %s: %w", req.BookingID, err)
	}
	if b.RestaurantID != w.restaurantID {
		return lifecycle.HistoryEntry{}, domain.Booking{}, fmt.Errorf("booking %s in restaurant %s: %w", req.BookingID, w.restaurantID, source.ErrBookingNotFound)
	}

	mode := req.Mode
	if mode == "" {
		mode = e.cfg.DefaultMode
	}
	now := e.clock.Now()

	entry, err := e.machine.Transition(&b, lifecycle.Request{
		To:       req.To,
		Actor:    req.Actor,
		Mode:     mode,
		Metadata: req.Metadata,
		At:       now,
	})
	if err != nil {
		e.logger.Warn("transition rejected",
			"event", "invalid_transition",
			"code", string(ErrCodeInvalidTransition),
			"restaurant_id", w.restaurantID,
			"booking_id", b.ID,
			"to", req.To,
			"mode", mode,
			"error", err,
		)
		return lifecycle.HistoryEntry{}, domain.Booking{}, err
	}

	if entry.To.IsPhysicallyPresent() && !entry.From.IsPhysicallyPresent() {
		e.warnSharedPresence(w, b)
	}

	if err := e.src.UpdateBookingStatus(ctx, b, now); err != nil {
		return lifecycle.HistoryEntry{}, domain.Booking{}, fmt.Errorf("persist status of %s: %w", b.ID, err)
	}
	if err := e.state.AppendHistory(ctx, entry); err != nil {
		return lifecycle.HistoryEntry{}, domain.Booking{}, newRuntimeError(ErrCodeStateFailed, w.restaurantID, "transition", "append history", err)
	}
	if _, seen := w.known[b.ID]; seen {
		w.known[b.ID] = b
	}
	if err := e.afterStatusChange(ctx, b, now); err != nil {
		return lifecycle.HistoryEntry{}, domain.Booking{}, newRuntimeError(ErrCodeStateFailed, w.restaurantID, "transition", "update auto-progress", err)
	}

	e.logger.Info("status transitioned",
		"event", "status_transitioned",
		"restaurant_id", w.restaurantID,
		"booking_id", b.ID,
		"from", entry.From,
		"to", entry.To,
		"actor", entry.Actor,
		"mode", entry.Mode,
		"seq", entry.Seq,
	)
	return entry, b, nil
}

// warnSharedPresence logs when b becomes present on a table another
// present booking held at the last snapshot. The transition still goes
// ahead; the resolver reports the double presence on the next cycle.
// CRITICAL: caller holds w.mu.
func (e *Engine) warnSharedPresence(w *worker, b domain.Booking) {
	for _, other := range w.known {
		if other.ID == b.ID || !other.Status.IsPhysicallyPresent() {
			continue
		}
		for _, tid := range b.TableIDs {
			if !other.HasTable(tid) {
				continue
			}
			e.logger.Warn("table already has a present party",
				"event", "shared_presence",
				"code", string(ErrCodeInconsistentAssignment),
				"restaurant_id", w.restaurantID,
				"booking_id", b.ID,
				"present_booking_id", other.ID,
				"table_id", tid,
			)
		}
	}
}

// DismissConflict resolves a conflict on staff request and dismisses its
// notifications. Dismissing twice is a no-op. It waits for a running cycle
// of the conflict's restaurant, so no notification is recorded for the
// conflict after it returns.
func (e *Engine) DismissConflict(ctx context.Context, conflictID string) (domain.Conflict, error) {
	found, err := e.state.Conflict(ctx, conflictID)
	if err != nil {
		return domain.Conflict{}, err
	}
	w := e.worker(found.RestaurantID)

	w.mu.Lock()
	c, n, err := e.dismissLocked(ctx, conflictID)
	w.mu.Unlock()
	if err != nil {
		return domain.Conflict{}, err
	}

	if err := e.cache.Invalidate(ctx, c.RestaurantID); err != nil {
		e.logger.Warn("board cache invalidate failed", "event", "cache_failed", "restaurant_id", c.RestaurantID, "error", err)
	}
	e.logger.Info("conflict dismissed",
		"event", "conflict_dismissed",
		"restaurant_id", c.RestaurantID,
		"conflict_id", c.ID,
		"resolution", c.Resolution,
		"notifications", n,
	)
	return c, nil
}

// CRITICAL: caller holds the worker lock of the conflict's restaurant.
func (e *Engine) dismissLocked(ctx context.Context, conflictID string) (domain.Conflict, int, error) {
	now := e.clock.Now()
	c, err := e.state.ResolveConflict(ctx, conflictID, domain.ResolutionDismissed, now)
	if err != nil {
		return domain.Conflict{}, 0, err
	}
	n, err := e.state.DismissConflict(ctx, conflictID, now)
	if err != nil {
		return domain.Conflict{}, 0, fmt.Errorf("dismiss notifications of %s: %w", conflictID, err)
	}
	return c, n, nil
}

// DismissNotification marks one notification read.
func (e *Engine) DismissNotification(ctx context.Context, notificationID string) error {
	return e.state.Dismiss(ctx, notificationID, e.clock.Now())
}

// Board returns the cached board, recomputing when the cache misses.
func (e *Engine) Board(ctx context.Context, restaurantID string) (cache.Board, error) {
	b, ok, err := e.cache.Get(ctx, restaurantID)
	if err != nil {
		e.logger.Warn("board cache read failed", "event", "cache_failed", "restaurant_id", restaurantID, "error", err)
	}
	if ok {
		return b, nil
	}
	return e.Recompute(ctx, restaurantID)
}

// Conflicts lists stored conflicts of a restaurant by arrival time.
func (e *Engine) Conflicts(ctx context.Context, restaurantID string, includeResolved bool) ([]domain.Conflict, error) {
	return e.state.Conflicts(ctx, restaurantID, includeResolved)
}

// Notifications lists a restaurant's notifications, newest first.
func (e *Engine) Notifications(ctx context.Context, restaurantID string, activeOnly bool) ([]domain.Notification, error) {
	return e.state.Notifications(ctx, restaurantID, activeOnly)
}

// History returns a booking's status history in seq order.
func (e *Engine) History(ctx context.Context, bookingID string) ([]lifecycle.HistoryEntry, error) {
	return e.state.History(ctx, bookingID)
}
