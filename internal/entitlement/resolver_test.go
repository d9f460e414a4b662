package entitlement

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/amica-legal/amica/internal/domain"
	"github.com/amica-legal/amica/internal/store"
)

func newTestResolver(t *testing.T) (*Resolver, *store.MemoryStore, *MemoryCache) {
	t.Helper()

	s := store.NewMemoryStore()
	cache := NewMemoryCache()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewResolver(s, cache, time.Minute, logger), s, cache
}

func TestResolver_MissingRecordResolvesFree(t *testing.T) {
	ctx := context.Background()
	r, _, _ := newTestResolver(t)

	rec, err := r.Resolve(ctx, "user-none")
	require.NoError(t, err)
	assert.Equal(t, domain.TierFree, rec.Tier)
	assert.Equal(t, domain.StatusFree, rec.Status)
	assert.Empty(t, rec.SubscriptionID)

	tier, err := r.ResolveTier(ctx, "user-none")
	require.NoError(t, err)
	assert.Equal(t, domain.TierFree, tier)
}

func TestResolver_ReadsStoreAndCaches(t *testing.T) {
	ctx := context.Background()
	r, s, cache := newTestResolver(t)

	_, err := s.ApplyEntitlement(ctx, domain.EntitlementRecord{
		UserID:         "user-1",
		Tier:           domain.TierAttorney,
		Status:         domain.StatusActive,
		SubscriptionID: "sub_123",
		PriceID:        "price_attorney_monthly",
	}, time.Now())
	require.NoError(t, err)

	tier, err := r.ResolveTier(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, domain.TierAttorney, tier)

	cached, ok, err := cache.Get(ctx, "user-1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, domain.TierAttorney, cached.Tier)
}

func TestResolver_CacheHitSkipsStore(t *testing.T) {
	ctx := context.Background()
	r, s, cache := newTestResolver(t)

	// Put a cached record with no store backing. A cache hit must not
	// consult the store at all.
	rec := &domain.EntitlementRecord{
		UserID: "user-1",
		Tier:   domain.TierProfessional,
		Status: domain.StatusActive,
	}
	require.NoError(t, cache.Set(ctx, "user-1", rec, time.Minute))

	got, err := r.Resolve(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, domain.TierProfessional, got.Tier)

	_, err = s.GetEntitlement(ctx, "user-1")
	assert.ErrorIs(t, err, store.ErrNotFound, "store must remain untouched")
}

func TestResolver_InvalidatePicksUpNewState(t *testing.T) {
	ctx := context.Background()
	r, s, _ := newTestResolver(t)

	base := time.Now()
	_, err := s.ApplyEntitlement(ctx, domain.EntitlementRecord{
		UserID:  "user-1",
		Tier:    domain.TierProfessional,
		Status:  domain.StatusActive,
		PriceID: "price_professional_monthly",
	}, base)
	require.NoError(t, err)

	tier, err := r.ResolveTier(ctx, "user-1")
	require.NoError(t, err)
	require.Equal(t, domain.TierProfessional, tier)

	// Subscription canceled, record downgraded.
	_, err = s.ApplyEntitlement(ctx, domain.EntitlementRecord{
		UserID: "user-1",
		Tier:   domain.TierFree,
		Status: domain.StatusCanceled,
	}, base.Add(time.Minute))
	require.NoError(t, err)

	// Still cached until invalidated.
	tier, err = r.ResolveTier(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, domain.TierProfessional, tier)

	r.Invalidate(ctx, "user-1")

	tier, err = r.ResolveTier(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, domain.TierFree, tier)
}

func TestResolver_HasCapability(t *testing.T) {
	ctx := context.Background()
	r, s, _ := newTestResolver(t)

	_, err := s.ApplyEntitlement(ctx, domain.EntitlementRecord{
		UserID: "user-1",
		Tier:   domain.TierProfessional,
		Status: domain.StatusActive,
	}, time.Now())
	require.NoError(t, err)

	ok, err := r.HasCapability(ctx, "user-1", CapabilityCaseLawAccess)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = r.HasCapability(ctx, "user-1", CapabilityMultiClient)
	require.NoError(t, err)
	assert.False(t, ok)

	// Free user only has the baseline.
	ok, err = r.HasCapability(ctx, "user-free", CapabilityDocumentGeneration)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = r.HasCapability(ctx, "user-free", CapabilityAIDrafting)
	require.NoError(t, err)
	assert.False(t, ok)
}
