package entitlement

import (
	"context"
	"sync"
	"time"

	"github.com/amica-legal/amica/internal/domain"
)

// TierCache is a read-through cache for resolved entitlement records. A miss
// is not an error: implementations return ok=false and the resolver falls
// back to the store.
type TierCache interface {
	Get(ctx context.Context, userID string) (*domain.EntitlementRecord, bool, error)
	Set(ctx context.Context, userID string, rec *domain.EntitlementRecord, ttl time.Duration) error
	Delete(ctx context.Context, userID string) error
}

type memoryCacheEntry struct {
	rec       domain.EntitlementRecord
	expiresAt time.Time
}

// MemoryCache is an in-process TierCache with per-entry TTL. Used when no
// Redis instance is configured, and in tests.
type MemoryCache struct {
	mu      sync.RWMutex
	entries map[string]memoryCacheEntry
	now     func() time.Time
}

var _ TierCache = (*MemoryCache)(nil)

func NewMemoryCache() *MemoryCache {
	return &MemoryCache{
		entries: make(map[string]memoryCacheEntry),
		now:     time.Now,
	}
}

func (c *MemoryCache) Get(_ context.Context, userID string) (*domain.EntitlementRecord, bool, error) {
	c.mu.RLock()
	entry, ok := c.entries[userID]
	c.mu.RUnlock()

	if !ok || c.now().After(entry.expiresAt) {
		return nil, false, nil
	}
	rec := entry.rec
	return &rec, true, nil
}

func (c *MemoryCache) Set(_ context.Context, userID string, rec *domain.EntitlementRecord, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[userID] = memoryCacheEntry{
		rec:       *rec,
		expiresAt: c.now().Add(ttl),
	}
	return nil
}

func (c *MemoryCache) Delete(_ context.Context, userID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.entries, userID)
	return nil
}
