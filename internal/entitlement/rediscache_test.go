package entitlement

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/amica-legal/amica/internal/domain"
)

func newTestRedisCache(t *testing.T) (*RedisCache, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	return NewRedisCache(client), mr
}

func TestRedisCache_RoundTrip(t *testing.T) {
	ctx := context.Background()
	cache, _ := newTestRedisCache(t)

	_, ok, err := cache.Get(ctx, "user-1")
	require.NoError(t, err)
	assert.False(t, ok)

	periodEnd := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)
	rec := &domain.EntitlementRecord{
		UserID:           "user-1",
		Tier:             domain.TierProfessional,
		Status:           domain.StatusActive,
		SubscriptionID:   "sub_123",
		PriceID:          "price_professional_monthly",
		CurrentPeriodEnd: &periodEnd,
	}
	require.NoError(t, cache.Set(ctx, "user-1", rec, time.Minute))

	got, ok, err := cache.Get(ctx, "user-1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, domain.TierProfessional, got.Tier)
	assert.Equal(t, "sub_123", got.SubscriptionID)
	require.NotNil(t, got.CurrentPeriodEnd)
	assert.True(t, got.CurrentPeriodEnd.Equal(periodEnd))
}

func TestRedisCache_Delete(t *testing.T) {
	ctx := context.Background()
	cache, _ := newTestRedisCache(t)

	rec := domain.FreeEntitlement("user-1")
	require.NoError(t, cache.Set(ctx, "user-1", rec, time.Minute))
	require.NoError(t, cache.Delete(ctx, "user-1"))

	_, ok, err := cache.Get(ctx, "user-1")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRedisCache_TTLExpiry(t *testing.T) {
	ctx := context.Background()
	cache, mr := newTestRedisCache(t)

	rec := domain.FreeEntitlement("user-1")
	require.NoError(t, cache.Set(ctx, "user-1", rec, time.Minute))

	mr.FastForward(2 * time.Minute)

	_, ok, err := cache.Get(ctx, "user-1")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRedisCache_CorruptEntryIsMiss(t *testing.T) {
	ctx := context.Background()
	cache, mr := newTestRedisCache(t)

	require.NoError(t, mr.Set("entitlement:user-1", "not-json{"))

	_, ok, err := cache.Get(ctx, "user-1")
	require.NoError(t, err)
	assert.False(t, ok)
}
