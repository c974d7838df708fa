package engine

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/qwerty-development/tableflow/internal/domain"
	"github.com/qwerty-development/tableflow/internal/escalation"
	"github.com/qwerty-development/tableflow/internal/lifecycle"
	"github.com/qwerty-development/tableflow/internal/store"
)

// StateStore is the engine-owned state: history, conflicts, sent
// notifications and pending auto-progress tasks. *store.Store is the
// durable implementation; MemoryStore backs simulations.
type StateStore interface {
	escalation.SentState
	escalation.TaskQueue

	AppendHistory(ctx context.Context, h lifecycle.HistoryEntry) error
	History(ctx context.Context, bookingID string) ([]lifecycle.HistoryEntry, error)
	LastSeq(ctx context.Context) (int64, error)

	SaveConflicts(ctx context.Context, conflicts []domain.Conflict, now time.Time) error
	Conflicts(ctx context.Context, restaurantID string, includeResolved bool) ([]domain.Conflict, error)
	Conflict(ctx context.Context, id string) (domain.Conflict, error)
	ResolveConflict(ctx context.Context, id string, reason domain.Resolution, at time.Time) (domain.Conflict, error)

	Notifications(ctx context.Context, restaurantID string, activeOnly bool) ([]domain.Notification, error)
}

var _ StateStore = (*store.Store)(nil)
var _ StateStore = (*MemoryStore)(nil)

// MemoryStore is an in-process StateStore with the same semantics as the
// SQLite store: history keyed by seq, resolved conflicts never reopen.
type MemoryStore struct {
	*escalation.MemoryState
	*escalation.MemoryTasks

	mu        sync.Mutex
	history   map[int64]lifecycle.HistoryEntry
	conflicts map[string]domain.Conflict
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		MemoryState: escalation.NewMemoryState(),
		MemoryTasks: escalation.NewMemoryTasks(),
		history:     make(map[int64]lifecycle.HistoryEntry),
		conflicts:   make(map[string]domain.Conflict),
	}
}

// AppendHistory implements StateStore. A repeated seq is ignored.
func (m *MemoryStore) AppendHistory(_ context.Context, h lifecycle.HistoryEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.history[h.Seq]; !ok {
		m.history[h.Seq] = h
	}
	return nil
}

// History implements StateStore.
func (m *MemoryStore) History(_ context.Context, bookingID string) ([]lifecycle.HistoryEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []lifecycle.HistoryEntry{}
	for _, h := range m.history {
		if h.BookingID == bookingID {
			out = append(out, h)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Seq < out[j].Seq })
	return out, nil
}

// LastSeq implements StateStore.
func (m *MemoryStore) LastSeq(_ context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var last int64
	for seq := range m.history {
		if seq > last {
			last = seq
		}
	}
	return last, nil
}

// SaveConflicts implements StateStore.
func (m *MemoryStore) SaveConflicts(_ context.Context, conflicts []domain.Conflict, _ time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range conflicts {
		if existing, ok := m.conflicts[c.ID]; ok && existing.Resolved {
			continue
		}
		m.conflicts[c.ID] = c
	}
	return nil
}

// Conflicts implements StateStore.
func (m *MemoryStore) Conflicts(_ context.Context, restaurantID string, includeResolved bool) ([]domain.Conflict, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []domain.Conflict{}
	for _, c := range m.conflicts {
		if c.RestaurantID != restaurantID || (c.Resolved && !includeResolved) {
			continue
		}
		out = append(out, c)
	}
	domain.SortConflicts(out)
	return out, nil
}

// Conflict implements StateStore.
func (m *MemoryStore) Conflict(_ context.Context, id string) (domain.Conflict, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.conflicts[id]
	if !ok {
		return domain.Conflict{}, store.ErrConflictNotFound
	}
	return c, nil
}

// ResolveConflict implements StateStore.
func (m *MemoryStore) ResolveConflict(_ context.Context, id string, reason domain.Resolution, at time.Time) (domain.Conflict, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.conflicts[id]
	if !ok {
		return domain.Conflict{}, store.ErrConflictNotFound
	}
	c.Resolve(reason, at)
	m.conflicts[id] = c
	return c, nil
}

// Notifications implements StateStore, newest first.
func (m *MemoryStore) Notifications(_ context.Context, restaurantID string, activeOnly bool) ([]domain.Notification, error) {
	var out []domain.Notification
	if activeOnly {
		out = m.MemoryState.Active(restaurantID)
	} else {
		out = m.MemoryState.Notifications(restaurantID)
		sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	}
	if out == nil {
		out = []domain.Notification{}
	}
	return out, nil
}
