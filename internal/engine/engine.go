package engine

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/qwerty-development/tableflow/internal/cache"
	"github.com/qwerty-development/tableflow/internal/clock"
	"github.com/qwerty-development/tableflow/internal/config"
	"github.com/qwerty-development/tableflow/internal/conflict"
	"github.com/qwerty-development/tableflow/internal/domain"
	"github.com/qwerty-development/tableflow/internal/escalation"
	"github.com/qwerty-development/tableflow/internal/events"
	"github.com/qwerty-development/tableflow/internal/lifecycle"
	"github.com/qwerty-development/tableflow/internal/occupancy"
	"github.com/qwerty-development/tableflow/internal/source"
)

const tracerName = "github.com/qwerty-development/tableflow/internal/engine"

// ErrStopped is returned when a change arrives after Run has returned.
var ErrStopped = errors.New("engine stopped")

// ChangeEmitter announces status changes made by the engine itself.
// Implemented by events.ChangePublisher.
type ChangeEmitter interface {
	Publish(ctx context.Context, ev domain.ChangeEvent) error
}

// Engine runs one single-writer worker per restaurant.
//
// Thread-safety model:
//   - HandleChange(), Tick(), TickAll(): safe from any goroutine
//   - Transition(), Recompute(), DismissConflict(): safe from any
//     goroutine; they take the restaurant's worker lock, so they never
//     interleave with a running cycle for the same restaurant
//   - DismissNotification(): safe from any goroutine; it only touches one
//     notification row, and a cycle never un-dismisses one
//   - Run(): must be called once, from one goroutine
type Engine struct {
	src     source.SnapshotSource
	state   StateStore
	cfg     config.Engine
	clock   clock.Clock
	ids     escalation.IDGenerator
	logger  *slog.Logger
	tracer  trace.Tracer
	cache   cache.SnapshotCache
	sink    events.NotificationSink
	changes ChangeEmitter

	machine   *lifecycle.Machine
	resolver  occupancy.Resolver
	detector  conflict.Detector
	scheduler *escalation.Scheduler

	mu      sync.Mutex
	workers map[string]*worker
	runCtx  context.Context // non-nil while Run is active
	stopped bool
	wg      sync.WaitGroup
}

// worker is the per-restaurant single writer.
type worker struct {
	restaurantID string
	queue        *eventQueue
	started      bool

	// mu serializes cycles and synchronous calls for the restaurant.
	mu      sync.Mutex
	known   map[string]domain.Booking // bookings as of the last snapshot
	lastNow time.Time
}

// Option configures an Engine.
type Option func(*Engine)

// WithConfig sets the engine policy. Zero fields keep their defaults.
func WithConfig(cfg config.Engine) Option {
	return func(e *Engine) { e.cfg = cfg }
}

// WithClock sets the wall clock. Tests pass a clock.FakeClock.
func WithClock(c clock.Clock) Option {
	return func(e *Engine) { e.clock = c }
}

// WithIDs sets the generator for notification and task ids.
func WithIDs(ids escalation.IDGenerator) Option {
	return func(e *Engine) { e.ids = ids }
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// WithTracer overrides the tracer taken from the global provider.
func WithTracer(t trace.Tracer) Option {
	return func(e *Engine) { e.tracer = t }
}

// WithCache sets where computed boards are published.
func WithCache(c cache.SnapshotCache) Option {
	return func(e *Engine) { e.cache = c }
}

// WithSink sets where new notifications are delivered.
func WithSink(s events.NotificationSink) Option {
	return func(e *Engine) { e.sink = s }
}

// WithChanges sets where engine-made status changes are announced.
func WithChanges(c ChangeEmitter) Option {
	return func(e *Engine) { e.changes = c }
}

// New creates an Engine reading from src and writing engine state to state.
// New performs no I/O; call Resume before Run to continue the history
// sequence of an existing store.
func New(src source.SnapshotSource, state StateStore, opts ...Option) *Engine {
	e := &Engine{
		src:     src,
		state:   state,
		cfg:     config.Default(),
		clock:   clock.Real(),
		ids:     escalation.UUIDv7Generator{},
		workers: make(map[string]*worker),
	}
	for _, opt := range opts {
		opt(e)
	}

	e.cfg = withDefaults(e.cfg)
	if e.logger == nil {
		e.logger = slog.Default()
	}
	if e.tracer == nil {
		e.tracer = otel.Tracer(tracerName)
	}
	if e.cache == nil {
		e.cache = cache.NewMemoryCache(e.cfg.CacheTTL, e.clock.Now)
	}
	if e.sink == nil {
		e.sink = events.LogSink{Logger: e.logger}
	}

	e.machine = lifecycle.NewMachine(nil)
	e.resolver = occupancy.Resolver{WalkInHorizon: e.cfg.WalkInHorizon, Logger: e.logger}
	e.detector = conflict.Detector{Lookahead: e.cfg.Lookahead, VacateBuffer: e.cfg.VacateBuffer}
	e.scheduler = &escalation.Scheduler{
		WarningAt: e.cfg.WarningAt,
		UrgentAt:  e.cfg.UrgentAt,
		IDs:       e.ids,
		Logger:    e.logger,
	}
	return e
}

// withDefaults fills zero durations from the schema defaults.
func withDefaults(cfg config.Engine) config.Engine {
	def := config.Default()
	fill := func(v *time.Duration, d time.Duration) {
		if *v <= 0 {
			*v = d
		}
	}
	fill(&cfg.TickInterval, def.TickInterval)
	fill(&cfg.Deadline, def.Deadline)
	fill(&cfg.Lookahead, def.Lookahead)
	fill(&cfg.CandidateWindow, def.CandidateWindow)
	fill(&cfg.VacateBuffer, def.VacateBuffer)
	fill(&cfg.WalkInHorizon, def.WalkInHorizon)
	fill(&cfg.WarningAt, def.WarningAt)
	fill(&cfg.UrgentAt, def.UrgentAt)
	fill(&cfg.CacheTTL, def.CacheTTL)
	if cfg.DefaultMode == "" {
		cfg.DefaultMode = def.DefaultMode
	}
	// AutoSeatDelay and ClockSkewTolerance may legitimately be zero.
	return cfg
}

// Config returns the effective policy.
func (e *Engine) Config() config.Engine {
	return e.cfg
}

// Resume continues the history sequence from the last stored entry so
// seq stays strictly increasing across restarts.
func (e *Engine) Resume(ctx context.Context) error {
	last, err := e.state.LastSeq(ctx)
	if err != nil {
		return newRuntimeError(ErrCodeStateFailed, "", "", "resume history sequence", err)
	}
	e.machine = lifecycle.NewMachine(lifecycle.NewSequenceAt(last))
	e.logger.Info("history sequence resumed", "event", "engine_resume", "seq", last)
	return nil
}

// Run starts a worker per restaurant and ticks them on the configured
// interval. Workers for other restaurants start on their first change
// event. Blocks until ctx is cancelled.
func (e *Engine) Run(ctx context.Context, restaurantIDs ...string) error {
	e.mu.Lock()
	if e.runCtx != nil || e.stopped {
		e.mu.Unlock()
		return errors.New("engine: Run called twice")
	}
	e.runCtx = ctx
	for _, w := range e.workers {
		e.startWorkerLocked(w)
	}
	e.mu.Unlock()

	for _, rid := range restaurantIDs {
		e.worker(rid)
	}

	e.logger.Info("engine starting",
		"event", "engine_start",
		"restaurants", len(restaurantIDs),
		"tick_interval", e.cfg.TickInterval.String(),
	)

	ticker := e.clock.NewTicker(e.cfg.TickInterval)
	defer ticker.Stop()

	e.TickAll()
	for {
		select {
		case <-ctx.Done():
			e.logger.Info("engine stopping: context cancelled", "event", "engine_stop")
			e.stop()
			return ctx.Err()
		case <-ticker.C:
			e.TickAll()
		}
	}
}

func (e *Engine) stop() {
	e.mu.Lock()
	e.stopped = true
	e.runCtx = nil
	for _, w := range e.workers {
		w.queue.Close()
	}
	e.mu.Unlock()
	e.wg.Wait()
}

// worker returns the worker for a restaurant, creating it (and starting
// its goroutine while Run is active) on first use.
func (e *Engine) worker(restaurantID string) *worker {
	e.mu.Lock()
	defer e.mu.Unlock()

	w, ok := e.workers[restaurantID]
	if !ok {
		w = &worker{
			restaurantID: restaurantID,
			queue:        newEventQueue(),
			known:        make(map[string]domain.Booking),
		}
		e.workers[restaurantID] = w
	}
	if e.runCtx != nil {
		e.startWorkerLocked(w)
	}
	return w
}

func (e *Engine) startWorkerLocked(w *worker) {
	if w.started {
		return
	}
	w.started = true
	e.wg.Add(1)
	go e.runWorker(e.runCtx, w)
}

// runWorker is the single-writer loop of one restaurant.
func (e *Engine) runWorker(ctx context.Context, w *worker) {
	defer e.wg.Done()

	for {
		if batch := w.queue.Drain(); len(batch) > 0 {
			e.process(ctx, w, batch)
			continue
		}

		select {
		case <-ctx.Done():
			return
		case _, ok := <-w.queue.Wait():
			if !ok && w.queue.Len() == 0 {
				return
			}
		}
	}
}

// process runs one cycle for a drained batch of triggers.
func (e *Engine) process(ctx context.Context, w *worker, batch []Event) {
	trigger := batch[0].Trigger()
	for _, ev := range batch {
		if ev.Kind == EventKindChange {
			trigger = ev.Trigger()
			break
		}
	}
	if len(batch) > 1 {
		e.logger.Debug("triggers coalesced",
			"event", "triggers_coalesced",
			"restaurant_id", w.restaurantID,
			"count", len(batch),
		)
	}

	if _, err := e.runCycle(ctx, w, trigger); err != nil {
		// log and continue: the next trigger recomputes from scratch
		logCycleError(e.logger, err)
	}
}

// HandleChange queues a recompute for the event's restaurant. It matches
// events.Handler so a Consumer can feed the engine directly.
func (e *Engine) HandleChange(_ context.Context, ev domain.ChangeEvent) error {
	if ev.RestaurantID == "" {
		return errors.New("change event without restaurant_id")
	}
	w := e.worker(ev.RestaurantID)
	e.mu.Lock()
	stopped := e.stopped
	e.mu.Unlock()
	if stopped {
		return ErrStopped
	}
	w.queue.Enqueue(Event{Kind: EventKindChange, Change: ev})
	return nil
}

// Tick queues a coalesced tick for one restaurant.
func (e *Engine) Tick(restaurantID string) bool {
	return e.worker(restaurantID).queue.Enqueue(Event{Kind: EventKindTick})
}

// TickAll queues a tick for every known restaurant.
func (e *Engine) TickAll() {
	e.mu.Lock()
	workers := make([]*worker, 0, len(e.workers))
	for _, w := range e.workers {
		workers = append(workers, w)
	}
	e.mu.Unlock()

	for _, w := range workers {
		w.queue.Enqueue(Event{Kind: EventKindTick})
	}
}

// QueueLen returns the number of queued triggers for a restaurant.
func (e *Engine) QueueLen(restaurantID string) int {
	return e.worker(restaurantID).queue.Len()
}

// Recompute runs one cycle synchronously and returns the board.
func (e *Engine) Recompute(ctx context.Context, restaurantID string) (cache.Board, error) {
	return e.runCycle(ctx, e.worker(restaurantID), "recompute")
}

func (e *Engine) runCycle(ctx context.Context, w *worker, trigger string) (cache.Board, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return e.cycle(ctx, w, trigger)
}

// notify queues a change for a running worker. Outside Run the change is
// dropped; the caller's next Recompute sees it.
func (e *Engine) notify(w *worker, ev domain.ChangeEvent) {
	e.mu.Lock()
	running := w.started && !e.stopped
	e.mu.Unlock()
	if running {
		w.queue.Enqueue(Event{Kind: EventKindChange, Change: ev})
	}
}

func logCycleError(logger *slog.Logger, err error) {
	var re *RuntimeError
	if errors.As(err, &re) {
		logger.Error("cycle failed",
			"event", "cycle_failed",
			"code", string(re.Code),
			"restaurant_id", re.RestaurantID,
			"trigger", re.Trigger,
			"error", err,
		)
		return
	}
	logger.Error("cycle failed", "event", "cycle_failed", "error", err)
}
