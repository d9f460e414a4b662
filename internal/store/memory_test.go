package store

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/amica-legal/amica/internal/domain"
)

func TestMemoryStore_CustomerMapping(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	t.Run("missing mapping returns ErrNotFound", func(t *testing.T) {
		_, err := s.GetCustomerMapping(ctx, "user-none")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("first write wins", func(t *testing.T) {
		first, err := s.PutCustomerMapping(ctx, domain.CustomerMapping{
			UserID:     "user-1",
			CustomerID: "cus_first",
			Email:      "one@example.com",
		})
		require.NoError(t, err)
		assert.Equal(t, "cus_first", first.CustomerID)
		assert.False(t, first.CreatedAt.IsZero())

		second, err := s.PutCustomerMapping(ctx, domain.CustomerMapping{
			UserID:     "user-1",
			CustomerID: "cus_second",
			Email:      "one@example.com",
		})
		require.NoError(t, err)
		assert.Equal(t, "cus_first", second.CustomerID, "existing mapping must be preserved")

		got, err := s.GetCustomerMapping(ctx, "user-1")
		require.NoError(t, err)
		assert.Equal(t, "cus_first", got.CustomerID)
	})
}

func TestMemoryStore_ApplyEntitlement(t *testing.T) {
	ctx := context.Background()

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	rec := func(tier domain.Tier) domain.EntitlementRecord {
		return domain.EntitlementRecord{
			UserID:         "user-1",
			Tier:           tier,
			Status:         domain.StatusActive,
			SubscriptionID: "sub_123",
			PriceID:        "price_pro",
		}
	}

	t.Run("applies to empty store", func(t *testing.T) {
		s := NewMemoryStore()
		applied, err := s.ApplyEntitlement(ctx, rec(domain.TierProfessional), base)
		require.NoError(t, err)
		assert.True(t, applied)

		got, err := s.GetEntitlement(ctx, "user-1")
		require.NoError(t, err)
		assert.Equal(t, domain.TierProfessional, got.Tier)
		require.NotNil(t, got.LastReconciledAt)
		assert.Equal(t, base, *got.LastReconciledAt)
	})

	t.Run("discards strictly older event", func(t *testing.T) {
		s := NewMemoryStore()
		applied, err := s.ApplyEntitlement(ctx, rec(domain.TierProfessional), base)
		require.NoError(t, err)
		require.True(t, applied)

		applied, err = s.ApplyEntitlement(ctx, rec(domain.TierFree), base.Add(-time.Minute))
		require.NoError(t, err)
		assert.False(t, applied)

		got, err := s.GetEntitlement(ctx, "user-1")
		require.NoError(t, err)
		assert.Equal(t, domain.TierProfessional, got.Tier, "stale event must not clobber newer state")
	})

	t.Run("applies event with equal timestamp", func(t *testing.T) {
		s := NewMemoryStore()
		applied, err := s.ApplyEntitlement(ctx, rec(domain.TierProfessional), base)
		require.NoError(t, err)
		require.True(t, applied)

		applied, err = s.ApplyEntitlement(ctx, rec(domain.TierAttorney), base)
		require.NoError(t, err)
		assert.True(t, applied)

		got, err := s.GetEntitlement(ctx, "user-1")
		require.NoError(t, err)
		assert.Equal(t, domain.TierAttorney, got.Tier)
	})

	t.Run("applies newer event", func(t *testing.T) {
		s := NewMemoryStore()
		_, err := s.ApplyEntitlement(ctx, rec(domain.TierProfessional), base)
		require.NoError(t, err)

		applied, err := s.ApplyEntitlement(ctx, rec(domain.TierFree), base.Add(time.Minute))
		require.NoError(t, err)
		assert.True(t, applied)

		got, err := s.GetEntitlement(ctx, "user-1")
		require.NoError(t, err)
		assert.Equal(t, domain.TierFree, got.Tier)
	})

	t.Run("concurrent applies keep a consistent record", func(t *testing.T) {
		s := NewMemoryStore()

		var wg sync.WaitGroup
		for i := 0; i < 20; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				_, err := s.ApplyEntitlement(ctx, rec(domain.TierProfessional), base.Add(time.Duration(i)*time.Second))
				assert.NoError(t, err)
			}(i)
		}
		wg.Wait()

		got, err := s.GetEntitlement(ctx, "user-1")
		require.NoError(t, err)
		require.NotNil(t, got.LastReconciledAt)
		assert.Equal(t, base.Add(19*time.Second), *got.LastReconciledAt)
	})
}

func TestMemoryStore_EventLedger(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	seen, err := s.SeenEvent(ctx, "evt_1")
	require.NoError(t, err)
	assert.False(t, seen)

	require.NoError(t, s.RecordEvent(ctx, "evt_1", "customer.subscription.updated", time.Now()))

	seen, err = s.SeenEvent(ctx, "evt_1")
	require.NoError(t, err)
	assert.True(t, seen)

	// Duplicate record is a no-op, not an error.
	require.NoError(t, s.RecordEvent(ctx, "evt_1", "customer.subscription.updated", time.Now()))
}
