package simulate

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/qwerty-development/tableflow/internal/cache"
	"github.com/qwerty-development/tableflow/internal/clock"
	"github.com/qwerty-development/tableflow/internal/config"
	"github.com/qwerty-development/tableflow/internal/domain"
	"github.com/qwerty-development/tableflow/internal/engine"
	"github.com/qwerty-development/tableflow/internal/escalation"
	"github.com/qwerty-development/tableflow/internal/events"
	"github.com/qwerty-development/tableflow/internal/lifecycle"
	"github.com/qwerty-development/tableflow/internal/source"
)

// ActorSimulation is recorded on transitions without an explicit actor.
const ActorSimulation = "simulation"

// runner holds one run's in-memory world. Each run starts fresh.
type runner struct {
	sc     *Scenario
	src    *source.MemorySource
	state  *engine.MemoryStore
	clock  *clock.FakeClock
	sink   *events.MemorySink
	eng    *engine.Engine
	logger *slog.Logger

	board     cache.Board
	conflicts []domain.Conflict
	emitted   []domain.Notification
	delivered int
	result    *Result
}

// Run replays a scenario against a fresh engine backed by memory stores
// and a fake clock. Expectation failures are recorded in the trace; an
// error means the scenario could not be executed.
func Run(ctx context.Context, sc *Scenario, logger *slog.Logger) (*Result, error) {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	cfg, err := config.ParseEngine([]byte(sc.Config), sc.Name+".cue")
	if err != nil {
		return nil, fmt.Errorf("scenario config: %w", err)
	}

	r := &runner{
		sc:     sc,
		src:    source.NewMemorySource(),
		state:  engine.NewMemoryStore(),
		clock:  clock.Fake(sc.mustTime(sc.Start)),
		sink:   &events.MemorySink{},
		logger: logger,
		result: &Result{Scenario: sc.Name, Trace: []TraceEvent{}},
	}
	r.seed()
	r.eng = engine.New(r.src, r.state,
		engine.WithConfig(cfg),
		engine.WithClock(r.clock),
		engine.WithIDs(escalation.NewSequenceGenerator("n")),
		engine.WithLogger(logger),
		engine.WithSink(r.sink),
	)

	for i, step := range sc.Steps {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := r.step(ctx, i+1, step); err != nil {
			return nil, fmt.Errorf("step %d: %w", i+1, err)
		}
	}
	return r.result, nil
}

func (r *runner) seed() {
	for _, t := range r.sc.Tables {
		r.src.PutTable(domain.Table{
			ID:           t.ID,
			RestaurantID: r.sc.Restaurant,
			Number:       t.Number,
			Capacity:     t.Capacity,
			Active:       !t.Inactive,
		})
	}
	for _, b := range r.sc.Bookings {
		r.src.PutBooking(domain.Booking{
			ID:              b.ID,
			RestaurantID:    r.sc.Restaurant,
			PartySize:       b.PartySize,
			BookingTime:     r.sc.mustTime(b.Time),
			TurnTimeMinutes: b.TurnTime,
			Status:          domain.Status(b.Status),
			GuestName:       b.Guest,
			CheckedInAt:     r.sc.optionalTime(b.CheckedIn),
			SeatedAt:        r.sc.optionalTime(b.Seated),
			TableIDs:        b.Tables,
		})
	}
}

func (r *runner) step(ctx context.Context, n int, step Step) error {
	if step.At != "" {
		r.clock.Set(r.sc.mustTime(step.At))
	}
	ev := TraceEvent{Step: n, At: clockLabel(r.clock.Now())}

	switch {
	case step.Tick:
		if err := r.tick(ctx, &ev); err != nil {
			return err
		}
	case step.Transition != nil:
		if err := r.transition(ctx, step.Transition, &ev); err != nil {
			return err
		}
	case step.Assign != nil:
		ev.Type = EventAssign
		ev.Booking = step.Assign.Booking
		ev.TableID = step.Assign.Tables
		if err := r.src.ReplaceAssignments(ctx, step.Assign.Booking, step.Assign.Tables); err != nil {
			return err
		}
	case step.Unassign != "":
		ev.Type = EventUnassign
		ev.Booking = step.Unassign
		if err := r.src.ReplaceAssignments(ctx, step.Unassign, nil); err != nil {
			return err
		}
	case step.Expect != nil:
		ev.Type = EventExpect
		failures, err := r.check(ctx, step.Expect)
		if err != nil {
			return err
		}
		ev.Failures = failures
	default:
		// A bare clock move is not traced.
		return nil
	}

	r.result.Trace = append(r.result.Trace, ev)
	return nil
}

func (r *runner) tick(ctx context.Context, ev *TraceEvent) error {
	board, err := r.eng.Recompute(ctx, r.sc.Restaurant)
	if err != nil {
		return err
	}
	conflicts, err := r.eng.Conflicts(ctx, r.sc.Restaurant, true)
	if err != nil {
		return err
	}
	active, err := r.eng.Notifications(ctx, r.sc.Restaurant, true)
	if err != nil {
		return err
	}

	delivered := r.sink.Delivered()
	r.emitted = delivered[r.delivered:]
	r.delivered = len(delivered)
	r.board = board
	r.conflicts = conflicts

	count := len(active)
	summary := board.Summary
	ev.Type = EventTick
	ev.Summary = &summary
	ev.Tables = tableLines(board.Tables)
	ev.Conflicts = conflictLines(conflicts)
	ev.Emitted = noticeLines(r.emitted)
	ev.Active = &count
	ev.Issues = issueLines(board)
	return nil
}

func (r *runner) transition(ctx context.Context, ts *TransitionStep, ev *TraceEvent) error {
	mode := lifecycle.Mode(ts.Mode)
	actor := ts.Actor
	if actor == "" {
		actor = ActorSimulation
	}

	ev.Type = EventTransition
	ev.Booking = ts.Booking
	ev.To = ts.To
	ev.Mode = string(mode)
	if mode == "" {
		ev.Mode = string(r.eng.Config().DefaultMode)
	}

	before, err := r.src.LoadBooking(ctx, ts.Booking)
	if err != nil {
		return err
	}
	ev.From = string(before.Status)

	entry, err := r.eng.Transition(ctx, engine.TransitionRequest{
		RestaurantID: r.sc.Restaurant,
		BookingID:    ts.Booking,
		To:           domain.Status(ts.To),
		Actor:        actor,
		Mode:         mode,
	})
	switch {
	case err == nil:
		ev.Seq = entry.Seq
		if ts.Error != "" {
			ev.Failures = append(ev.Failures, fmt.Sprintf("expected error %s, transition succeeded", ts.Error))
		}
	case lifecycle.IsInvalidTransition(err):
		ev.Error = "invalid_transition"
		if ts.Error != ev.Error {
			ev.Failures = append(ev.Failures, fmt.Sprintf("unexpected error: %v", err))
		}
	case errors.Is(err, source.ErrBookingNotFound):
		ev.Error = "not_found"
		if ts.Error != ev.Error {
			ev.Failures = append(ev.Failures, fmt.Sprintf("unexpected error: %v", err))
		}
	default:
		return err
	}
	return nil
}
