package escalation

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/qwerty-development/tableflow/internal/domain"
)

// ErrNotificationNotFound is returned when dismissing an unknown id.
var ErrNotificationNotFound = errors.New("notification not found")

// SentState records which thresholds were sent per conflict.
//
// Record must be idempotent on (ConflictID, Threshold): a second call for the
// same pair returns inserted=false and leaves the first row untouched.
type SentState interface {
	Stage(ctx context.Context, conflictID string) (domain.Stage, error)
	Record(ctx context.Context, n domain.Notification) (inserted bool, err error)
	DismissConflict(ctx context.Context, conflictID string, at time.Time) (int, error)
	Dismiss(ctx context.Context, notificationID string, at time.Time) error
}

// MemoryState is an in-process SentState used by simulations and tests.
//
// Safe for concurrent use.
type MemoryState struct {
	mu    sync.Mutex
	byKey map[string]domain.Notification // conflictID + ":" + threshold
	order []string
}

// NewMemoryState creates an empty state.
func NewMemoryState() *MemoryState {
	return &MemoryState{byKey: make(map[string]domain.Notification)}
}

func sentKey(conflictID string, t domain.Threshold) string {
	return conflictID + ":" + string(t)
}

// Stage returns the highest threshold recorded for the conflict, dismissed
// or not.
func (m *MemoryState) Stage(_ context.Context, conflictID string) (domain.Stage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	stage := domain.StageNone
	for _, t := range domain.Thresholds {
		if _, ok := m.byKey[sentKey(conflictID, t)]; ok {
			if s := domain.StageAfter(t); s > stage {
				stage = s
			}
		}
	}
	return stage, nil
}

// Record stores n unless its (conflict, threshold) pair already exists.
func (m *MemoryState) Record(_ context.Context, n domain.Notification) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := sentKey(n.ConflictID, n.Threshold)
	if _, ok := m.byKey[key]; ok {
		return false, nil
	}
	m.byKey[key] = n
	m.order = append(m.order, key)
	return true, nil
}

// DismissConflict dismisses every undismissed notification of the conflict
// and returns how many changed.
func (m *MemoryState) DismissConflict(_ context.Context, conflictID string, at time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	changed := 0
	for _, t := range domain.Thresholds {
		key := sentKey(conflictID, t)
		n, ok := m.byKey[key]
		if !ok || n.Dismissed {
			continue
		}
		dismiss(&n, at)
		m.byKey[key] = n
		changed++
	}
	return changed, nil
}

// Dismiss marks one notification dismissed. Dismissing twice is a no-op.
func (m *MemoryState) Dismiss(_ context.Context, notificationID string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for key, n := range m.byKey {
		if n.ID != notificationID {
			continue
		}
		if !n.Dismissed {
			dismiss(&n, at)
			m.byKey[key] = n
		}
		return nil
	}
	return ErrNotificationNotFound
}

// Notifications returns every recorded notification in insertion order.
// An empty restaurantID matches all restaurants.
func (m *MemoryState) Notifications(restaurantID string) []domain.Notification {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]domain.Notification, 0, len(m.order))
	for _, key := range m.order {
		n := m.byKey[key]
		if restaurantID == "" || n.RestaurantID == restaurantID {
			out = append(out, n)
		}
	}
	return out
}

// Active returns the undismissed notifications, newest first.
func (m *MemoryState) Active(restaurantID string) []domain.Notification {
	var out []domain.Notification
	for _, n := range m.Notifications(restaurantID) {
		if !n.Dismissed {
			out = append(out, n)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

func dismiss(n *domain.Notification, at time.Time) {
	t := at
	n.Dismissed = true
	n.DismissedAt = &t
}
