// Package cache keeps the last computed board per restaurant so the HTTP
// surface can answer reads without recomputing. Entries expire after a
// TTL; the engine overwrites them on every cycle.
package cache

import (
	"context"
	"sync"
	"time"

	"github.com/qwerty-development/tableflow/internal/domain"
	"github.com/qwerty-development/tableflow/internal/occupancy"
)

// DefaultTTL bounds how stale a cached board may be.
const DefaultTTL = 2 * time.Minute

// Board is the derived floor state of one restaurant at ComputedAt.
type Board struct {
	RestaurantID string             `json:"restaurant_id"`
	ComputedAt   time.Time          `json:"computed_at"`
	Tables       []occupancy.Record `json:"tables"`
	Summary      occupancy.Summary  `json:"summary"`
	Conflicts    []domain.Conflict  `json:"conflicts"`
	Issues       []occupancy.Issue  `json:"issues,omitempty"`
}

// SnapshotCache stores boards by restaurant id.
type SnapshotCache interface {
	Get(ctx context.Context, restaurantID string) (Board, bool, error)
	Put(ctx context.Context, b Board) error
	Invalidate(ctx context.Context, restaurantID string) error
}

type memoryEntry struct {
	board   Board
	expires time.Time
}

// MemoryCache is an in-process SnapshotCache. Safe for concurrent use.
type MemoryCache struct {
	mu      sync.RWMutex
	ttl     time.Duration
	now     func() time.Time
	entries map[string]memoryEntry
}

var _ SnapshotCache = (*MemoryCache)(nil)

// NewMemoryCache creates a cache. A zero ttl uses DefaultTTL; a nil now
// uses time.Now.
func NewMemoryCache(ttl time.Duration, now func() time.Time) *MemoryCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if now == nil {
		now = time.Now
	}
	return &MemoryCache{ttl: ttl, now: now, entries: make(map[string]memoryEntry)}
}

// Get returns the board if present and not expired.
func (c *MemoryCache) Get(_ context.Context, restaurantID string) (Board, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[restaurantID]
	if !ok || !c.now().Before(e.expires) {
		return Board{}, false, nil
	}
	return e.board, true, nil
}

// Put stores b until now + ttl.
func (c *MemoryCache) Put(_ context.Context, b Board) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[b.RestaurantID] = memoryEntry{board: b, expires: c.now().Add(c.ttl)}
	return nil
}

// Invalidate drops the restaurant's board.
func (c *MemoryCache) Invalidate(_ context.Context, restaurantID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, restaurantID)
	return nil
}
