package store

import (
	"context"
	"errors"
	"time"

	"github.com/amica-legal/amica/internal/domain"
)

// ErrNotFound is returned when a mapping or entitlement record does not exist.
// For entitlements, absence is meaningful: it is the free tier.
var ErrNotFound = errors.New("store: not found")

// Store persists customer mappings, entitlement records, and the webhook
// event ledger. Both key spaces are keyed by the internal user ID, never by
// processor identifiers, so application-side lookups never round-trip to the
// processor.
type Store interface {
	// GetCustomerMapping returns the mapping for a user, or ErrNotFound.
	GetCustomerMapping(ctx context.Context, userID string) (*domain.CustomerMapping, error)

	// PutCustomerMapping persists a mapping. Mappings are append-only: if one
	// already exists for the user the existing mapping wins and is returned.
	PutCustomerMapping(ctx context.Context, m domain.CustomerMapping) (*domain.CustomerMapping, error)

	// GetEntitlement returns the entitlement record for a user, or ErrNotFound.
	GetEntitlement(ctx context.Context, userID string) (*domain.EntitlementRecord, error)

	// ApplyEntitlement upserts the record, guarded by event time: the write
	// only lands if the stored LastReconciledAt is absent or not newer than
	// eventTime. Returns false when the incoming state is stale and was
	// discarded. This compare-and-set is the serialization point for
	// concurrent webhook deliveries touching the same user.
	ApplyEntitlement(ctx context.Context, rec domain.EntitlementRecord, eventTime time.Time) (applied bool, err error)

	// SeenEvent reports whether the processor event ID is already in the
	// ledger.
	SeenEvent(ctx context.Context, eventID string) (bool, error)

	// RecordEvent adds the event ID to the ledger after successful
	// application. Recording an already-present ID is not an error.
	RecordEvent(ctx context.Context, eventID, eventType string, processedAt time.Time) error
}
