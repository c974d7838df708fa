package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/qwerty-development/tableflow/internal/cache"
	"github.com/qwerty-development/tableflow/internal/conflict"
	"github.com/qwerty-development/tableflow/internal/domain"
	"github.com/qwerty-development/tableflow/internal/escalation"
	"github.com/qwerty-development/tableflow/internal/lifecycle"
	"github.com/qwerty-development/tableflow/internal/occupancy"
)

// ActorAutoProgress is the history actor of scheduled transitions.
const ActorAutoProgress = "system:auto_progress"

// cycle runs the full pipeline once for w's restaurant.
// CRITICAL: caller holds w.mu.
func (e *Engine) cycle(parent context.Context, w *worker, trigger string) (cache.Board, error) {
	rid := w.restaurantID

	ctx, cancel := context.WithTimeout(parent, e.cfg.Deadline)
	defer cancel()

	ctx, span := e.tracer.Start(ctx, "engine.cycle", trace.WithAttributes(
		attribute.String("restaurant_id", rid),
		attribute.String("trigger", trigger),
	))
	defer span.End()

	started := time.Now()
	board, err := e.stages(ctx, w, trigger, span)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			err = newRuntimeError(ErrCodeDeadlineExceeded, rid, trigger,
				fmt.Sprintf("cycle exceeded %s", e.cfg.Deadline), err)
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return cache.Board{}, err
	}

	e.logger.Debug("cycle complete",
		"event", "cycle_complete",
		"restaurant_id", rid,
		"trigger", trigger,
		"conflicts", len(board.Conflicts),
		"occupied", board.Summary.Occupied,
		"elapsed", time.Since(started).String(),
	)
	return board, nil
}

func (e *Engine) stages(ctx context.Context, w *worker, trigger string, span trace.Span) (cache.Board, error) {
	rid := w.restaurantID
	now := e.clock.Now()
	e.checkSkew(w, now, trigger)

	snap, err := e.src.Snapshot(ctx, rid, domain.DayWindow(now))
	if err != nil {
		return cache.Board{}, newRuntimeError(ErrCodeSnapshotFailed, rid, trigger, "load snapshot", err)
	}
	snap.LoadedAt = now
	span.AddEvent("snapshot_loaded", trace.WithAttributes(
		attribute.Int("tables", len(snap.Tables)),
		attribute.Int("bookings", len(snap.Bookings)),
	))

	if err := e.observe(ctx, w, snap.Bookings, now, trigger); err != nil {
		return cache.Board{}, err
	}
	if err := e.applyDueTasks(ctx, w, &snap, now, trigger); err != nil {
		return cache.Board{}, err
	}
	if err := ctx.Err(); err != nil {
		return cache.Board{}, err
	}

	records, issues := e.resolver.Resolve(snap.Tables, snap.Bookings, now)
	span.AddEvent("occupancy_resolved", trace.WithAttributes(
		attribute.Int("records", len(records)),
		attribute.Int("issues", len(issues)),
	))
	for _, issue := range issues {
		if issue.Kind == occupancy.IssueInconsistentAssignment {
			span.AddEvent(string(ErrCodeInconsistentAssignment), trace.WithAttributes(
				attribute.String("booking_id", issue.BookingID),
				attribute.String("table_id", issue.TableID),
			))
		}
	}

	previous, err := e.state.Conflicts(ctx, rid, true)
	if err != nil {
		return cache.Board{}, newRuntimeError(ErrCodeStateFailed, rid, trigger, "load conflicts", err)
	}
	detected := e.detector.Detect(conflict.Input{
		Bookings:     snap.Bookings,
		Occupancy:    records,
		Candidates:   conflict.CandidateWalkIns(snap.Bookings, now, e.cfg.CandidateWindow),
		Previous:     previous,
		RestaurantID: rid,
		Now:          now,
	})
	changed := e.logConflictChanges(rid, previous, detected)
	if err := e.state.SaveConflicts(ctx, changed, now); err != nil {
		return cache.Board{}, newRuntimeError(ErrCodeStateFailed, rid, trigger, "save conflicts", err)
	}
	span.AddEvent("conflicts_detected", trace.WithAttributes(attribute.Int("live", len(changed))))

	pending, err := e.undismissed(ctx, rid, previous, changed)
	if err != nil {
		return cache.Board{}, newRuntimeError(ErrCodeStateFailed, rid, trigger, "load active notifications", err)
	}
	notes, err := e.scheduler.Tick(ctx, append(changed, pending...), e.state, now)
	if err != nil {
		// partial: notifications recorded before the error are still delivered
		e.logger.Warn("escalation incomplete",
			"event", "escalation_failed",
			"code", string(ErrCodeStateFailed),
			"restaurant_id", rid,
			"error", err,
		)
	}
	if len(notes) > 0 {
		if err := e.sink.Deliver(ctx, notes); err != nil {
			logCycleError(e.logger, newRuntimeError(ErrCodeDeliveryFailed, rid, trigger,
				fmt.Sprintf("deliver %d notification(s)", len(notes)), err))
		}
		span.AddEvent("notifications_delivered", trace.WithAttributes(attribute.Int("count", len(notes))))
	}

	open := conflict.Open(detected)
	if open == nil {
		open = []domain.Conflict{}
	}
	board := cache.Board{
		RestaurantID: rid,
		ComputedAt:   now,
		Tables:       occupancy.Sorted(records),
		Summary:      occupancy.Summarize(records),
		Conflicts:    open,
		Issues:       issues,
	}
	if err := e.cache.Put(ctx, board); err != nil {
		e.logger.Warn("board cache write failed",
			"event", "cache_failed",
			"restaurant_id", rid,
			"error", err,
		)
	}

	w.lastNow = now
	return board, nil
}

// checkSkew warns when now moved backwards beyond the tolerance.
func (e *Engine) checkSkew(w *worker, now time.Time, trigger string) {
	if w.lastNow.IsZero() {
		return
	}
	if back := w.lastNow.Sub(now); back > e.cfg.ClockSkewTolerance {
		e.logger.Warn("clock moved backwards",
			"event", "clock_skew",
			"code", string(ErrCodeClockSkew),
			"restaurant_id", w.restaurantID,
			"trigger", trigger,
			"skew", back.String(),
		)
	}
}

// observe diffs the snapshot against the last one and records history for
// status changes made outside the engine. On error the failing booking and
// every booking after it keep their previous known state, so the next
// cycle observes the same change again.
func (e *Engine) observe(ctx context.Context, w *worker, bookings []domain.Booking, now time.Time, trigger string) error {
	seen := make(map[string]domain.Booking, len(bookings))
	for i, b := range bookings {
		if err := e.observeOne(ctx, w, b, now, trigger); err != nil {
			for _, rest := range bookings[i:] {
				if prev, ok := w.known[rest.ID]; ok {
					seen[rest.ID] = prev
				}
			}
			w.known = seen
			return err
		}
		seen[b.ID] = b
	}
	w.known = seen
	return nil
}

// observeOne handles one booking of the snapshot. Auto-progress is updated
// before history is appended: both are safe to repeat, and history is what
// marks the change as seen.
func (e *Engine) observeOne(ctx context.Context, w *worker, b domain.Booking, now time.Time, trigger string) error {
	prev, ok := w.known[b.ID]
	if !ok {
		if b.Status == domain.StatusArrived {
			if err := e.scheduleAutoSeat(ctx, b, now); err != nil {
				return newRuntimeError(ErrCodeStateFailed, w.restaurantID, trigger, "schedule auto-seat", err)
			}
		}
		return nil
	}

	entry, changed, err := e.machine.Observe(prev, b, now)
	if err != nil {
		e.logger.Warn("observed transition rejected",
			"event", "invalid_transition",
			"code", string(ErrCodeInvalidTransition),
			"restaurant_id", w.restaurantID,
			"booking_id", b.ID,
			"from", prev.Status,
			"to", b.Status,
			"error", err,
		)
		return nil
	}
	if !changed {
		return nil
	}
	if err := e.afterStatusChange(ctx, b, now); err != nil {
		return newRuntimeError(ErrCodeStateFailed, w.restaurantID, trigger, "update auto-progress", err)
	}
	if err := e.state.AppendHistory(ctx, entry); err != nil {
		return newRuntimeError(ErrCodeStateFailed, w.restaurantID, trigger, "append history", err)
	}
	e.logger.Info("status change observed",
		"event", "status_observed",
		"restaurant_id", w.restaurantID,
		"booking_id", b.ID,
		"from", entry.From,
		"to", entry.To,
		"mode", entry.Mode,
		"seq", entry.Seq,
	)
	return nil
}

// afterStatusChange keeps the auto-progress queue in step with b.Status.
func (e *Engine) afterStatusChange(ctx context.Context, b domain.Booking, at time.Time) error {
	if b.Status == domain.StatusArrived {
		return e.scheduleAutoSeat(ctx, b, at)
	}
	n, err := e.state.Cancel(ctx, b.ID)
	if err != nil {
		return err
	}
	if n > 0 {
		e.logger.Debug("auto-progress cancelled",
			"event", "auto_progress_cancelled",
			"booking_id", b.ID,
			"status", b.Status,
			"count", n,
		)
	}
	return nil
}

func (e *Engine) scheduleAutoSeat(ctx context.Context, b domain.Booking, at time.Time) error {
	arrivedAt := at
	if b.CheckedInAt != nil {
		arrivedAt = *b.CheckedInAt
	}
	task, ok := escalation.AutoSeat(e.ids, b, arrivedAt, e.cfg.AutoSeatDelay)
	if !ok {
		return nil
	}
	inserted, err := e.state.Schedule(ctx, task)
	if err != nil {
		return err
	}
	if inserted {
		e.logger.Debug("auto-seat scheduled",
			"event", "auto_seat_scheduled",
			"restaurant_id", b.RestaurantID,
			"booking_id", b.ID,
			"due_at", task.DueAt,
		)
	}
	return nil
}

// applyDueTasks applies scheduled transitions whose time has come. A task
// whose booking already left its From status is dropped.
func (e *Engine) applyDueTasks(ctx context.Context, w *worker, snap *domain.Snapshot, now time.Time, trigger string) error {
	due, err := e.state.Due(ctx, w.restaurantID, now)
	if err != nil {
		return newRuntimeError(ErrCodeStateFailed, w.restaurantID, trigger, "load due tasks", err)
	}

	index := make(map[string]int, len(snap.Bookings))
	for i, b := range snap.Bookings {
		index[b.ID] = i
	}

	for _, task := range due {
		i, ok := index[task.BookingID]
		if !ok || snap.Bookings[i].Status != task.From {
			if err := e.state.Complete(ctx, task.ID); err != nil {
				return newRuntimeError(ErrCodeStateFailed, w.restaurantID, trigger, "drop stale task", err)
			}
			continue
		}

		b := snap.Bookings[i].Clone()
		entry, err := e.machine.Transition(&b, lifecycle.Request{
			To:       task.To,
			Actor:    ActorAutoProgress,
			Mode:     lifecycle.ModeStrict,
			At:       now,
			Metadata: map[string]string{"task_id": task.ID},
		})
		if err != nil {
			e.logger.Warn("auto-progress rejected",
				"event", "invalid_transition",
				"code", string(ErrCodeInvalidTransition),
				"booking_id", task.BookingID,
				"error", err,
			)
			if err := e.state.Complete(ctx, task.ID); err != nil {
				return newRuntimeError(ErrCodeStateFailed, w.restaurantID, trigger, "drop rejected task", err)
			}
			continue
		}
		// task stays queued on failure and is retried next cycle
		if err := e.src.UpdateBookingStatus(ctx, b, now); err != nil {
			return newRuntimeError(ErrCodeStateFailed, w.restaurantID, trigger, "persist auto-progress", err)
		}
		if err := e.state.AppendHistory(ctx, entry); err != nil {
			return newRuntimeError(ErrCodeStateFailed, w.restaurantID, trigger, "append history", err)
		}
		if err := e.state.Complete(ctx, task.ID); err != nil {
			return newRuntimeError(ErrCodeStateFailed, w.restaurantID, trigger, "complete task", err)
		}

		snap.Bookings[i] = b
		w.known[b.ID] = b
		e.logger.Info("booking auto-progressed",
			"event", "auto_progressed",
			"restaurant_id", w.restaurantID,
			"booking_id", b.ID,
			"from", entry.From,
			"to", entry.To,
			"seq", entry.Seq,
		)
		e.announce(ctx, entry)
	}
	return nil
}

// undismissed returns conflicts resolved before this pass that still have
// active notifications, so escalation retries dismissing them.
func (e *Engine) undismissed(ctx context.Context, restaurantID string, previous, live []domain.Conflict) ([]domain.Conflict, error) {
	active, err := e.state.Notifications(ctx, restaurantID, true)
	if err != nil || len(active) == 0 {
		return nil, err
	}
	open := make(map[string]bool, len(active))
	for _, n := range active {
		open[n.ConflictID] = true
	}
	queued := make(map[string]bool, len(live))
	for _, c := range live {
		queued[c.ID] = true
	}

	var out []domain.Conflict
	for _, c := range previous {
		if c.Resolved && open[c.ID] && !queued[c.ID] {
			out = append(out, c)
		}
	}
	return out, nil
}

// logConflictChanges logs opened and closed conflicts and returns the
// conflicts worth writing: everything except those already resolved
// before this pass.
func (e *Engine) logConflictChanges(restaurantID string, previous, detected []domain.Conflict) []domain.Conflict {
	before := make(map[string]domain.Conflict, len(previous))
	for _, c := range previous {
		before[c.ID] = c
	}

	var live []domain.Conflict
	for _, c := range detected {
		prev, existed := before[c.ID]
		if existed && prev.Resolved {
			continue
		}
		live = append(live, c)

		switch {
		case !existed:
			e.logger.Info("conflict detected",
				"event", "conflict_detected",
				"restaurant_id", restaurantID,
				"conflict_id", c.ID,
				"walk_in_booking_id", c.WalkInBookingID,
				"upcoming_booking_id", c.UpcomingBookingID,
				"tables", c.TableNumbers,
				"minutes_to_arrival", c.MinutesToArrival,
				"urgency", c.Urgency,
			)
		case c.Resolved:
			e.logger.Info("conflict resolved",
				"event", "conflict_resolved",
				"restaurant_id", restaurantID,
				"conflict_id", c.ID,
				"resolution", c.Resolution,
			)
		}
	}
	return live
}

// announce publishes an engine-made status change. Failures are logged:
// the record store already holds the new status.
func (e *Engine) announce(ctx context.Context, entry lifecycle.HistoryEntry) {
	if e.changes == nil {
		return
	}
	if err := e.changes.Publish(ctx, entry.Event()); err != nil {
		e.logger.Warn("change publish failed",
			"event", "publish_failed",
			"booking_id", entry.BookingID,
			"error", err,
		)
	}
}
