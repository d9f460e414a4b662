package entitlement

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/amica-legal/amica/internal/domain"
	"github.com/amica-legal/amica/internal/store"
)

// Resolver answers tier and capability questions for a user, reading the
// entitlement store through a TTL cache. Cache failures degrade to direct
// store reads rather than failing the request.
type Resolver struct {
	store  store.Store
	cache  TierCache
	ttl    time.Duration
	logger *slog.Logger
}

func NewResolver(s store.Store, cache TierCache, ttl time.Duration, logger *slog.Logger) *Resolver {
	return &Resolver{
		store:  s,
		cache:  cache,
		ttl:    ttl,
		logger: logger,
	}
}

// Resolve returns the entitlement record for a user. A user with no stored
// record resolves to the implicit free entitlement.
func (r *Resolver) Resolve(ctx context.Context, userID string) (*domain.EntitlementRecord, error) {
	if rec, ok, err := r.cache.Get(ctx, userID); err != nil {
		r.logger.Warn("entitlement cache read failed, falling back to store",
			slog.String("user_id", userID),
			slog.String("error", err.Error()))
	} else if ok {
		return rec, nil
	}

	rec, err := r.store.GetEntitlement(ctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			rec = domain.FreeEntitlement(userID)
		} else {
			return nil, fmt.Errorf("resolve entitlement: %w", err)
		}
	}

	if err := r.cache.Set(ctx, userID, rec, r.ttl); err != nil {
		r.logger.Warn("entitlement cache write failed",
			slog.String("user_id", userID),
			slog.String("error", err.Error()))
	}

	return rec, nil
}

// ResolveTier returns just the tier for a user.
func (r *Resolver) ResolveTier(ctx context.Context, userID string) (domain.Tier, error) {
	rec, err := r.Resolve(ctx, userID)
	if err != nil {
		return "", err
	}
	return rec.Tier, nil
}

// HasCapability resolves the user's tier and checks the capability table.
func (r *Resolver) HasCapability(ctx context.Context, userID string, cap Capability) (bool, error) {
	tier, err := r.ResolveTier(ctx, userID)
	if err != nil {
		return false, err
	}
	return HasCapability(tier, cap), nil
}

// Invalidate drops the cached record for a user. Called after reconciliation
// applies a change.
func (r *Resolver) Invalidate(ctx context.Context, userID string) {
	if err := r.cache.Delete(ctx, userID); err != nil {
		r.logger.Warn("entitlement cache invalidation failed",
			slog.String("user_id", userID),
			slog.String("error", err.Error()))
	}
}
