package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/amica-legal/amica/internal/domain"
)

// PostgresStore implements Store using PostgreSQL.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// Compile-time check to ensure PostgresStore implements Store.
var _ Store = (*PostgresStore)(nil)

// NewPostgresStore creates a new PostgresStore instance.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// GetCustomerMapping returns the customer mapping for a user.
func (s *PostgresStore) GetCustomerMapping(ctx context.Context, userID string) (*domain.CustomerMapping, error) {
	const q = `
		SELECT user_id, customer_id, email, created_at
		FROM customer_mappings
		WHERE user_id = $1`

	var m domain.CustomerMapping
	err := s.pool.QueryRow(ctx, q, userID).Scan(&m.UserID, &m.CustomerID, &m.Email, &m.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get customer mapping: %w", err)
	}
	return &m, nil
}

// PutCustomerMapping inserts a mapping. First write wins: a concurrent insert
// for the same user leaves the existing row untouched, and the stored row is
// returned either way.
func (s *PostgresStore) PutCustomerMapping(ctx context.Context, m domain.CustomerMapping) (*domain.CustomerMapping, error) {
	const q = `
		INSERT INTO customer_mappings (user_id, customer_id, email, created_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (user_id) DO NOTHING`

	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}

	if _, err := s.pool.Exec(ctx, q, m.UserID, m.CustomerID, m.Email, m.CreatedAt); err != nil {
		return nil, fmt.Errorf("put customer mapping: %w", err)
	}

	return s.GetCustomerMapping(ctx, m.UserID)
}

// GetEntitlement returns the entitlement record for a user.
func (s *PostgresStore) GetEntitlement(ctx context.Context, userID string) (*domain.EntitlementRecord, error) {
	const q = `
		SELECT user_id, tier, status, subscription_id, price_id,
		       current_period_end, cancel_at_period_end, trial_end,
		       last_reconciled_at, updated_at
		FROM entitlements
		WHERE user_id = $1`

	var rec domain.EntitlementRecord
	var tier string
	err := s.pool.QueryRow(ctx, q, userID).Scan(
		&rec.UserID,
		&tier,
		&rec.Status,
		&rec.SubscriptionID,
		&rec.PriceID,
		&rec.CurrentPeriodEnd,
		&rec.CancelAtPeriodEnd,
		&rec.TrialEnd,
		&rec.LastReconciledAt,
		&rec.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get entitlement: %w", err)
	}
	rec.Tier = domain.Tier(tier)
	return &rec, nil
}

// ApplyEntitlement upserts the entitlement record with a compare-and-set on
// last_reconciled_at. The conditional update resolves both the out-of-order
// delivery hazard and concurrent deliveries for the same subscription in a
// single atomic statement.
func (s *PostgresStore) ApplyEntitlement(ctx context.Context, rec domain.EntitlementRecord, eventTime time.Time) (bool, error) {
	const q = `
		INSERT INTO entitlements (
			user_id, tier, status, subscription_id, price_id,
			current_period_end, cancel_at_period_end, trial_end,
			last_reconciled_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (user_id) DO UPDATE SET
			tier                 = EXCLUDED.tier,
			status               = EXCLUDED.status,
			subscription_id      = EXCLUDED.subscription_id,
			price_id             = EXCLUDED.price_id,
			current_period_end   = EXCLUDED.current_period_end,
			cancel_at_period_end = EXCLUDED.cancel_at_period_end,
			trial_end            = EXCLUDED.trial_end,
			last_reconciled_at   = EXCLUDED.last_reconciled_at,
			updated_at           = EXCLUDED.updated_at
		WHERE entitlements.last_reconciled_at IS NULL
		   OR entitlements.last_reconciled_at <= EXCLUDED.last_reconciled_at`

	eventTime = eventTime.UTC()
	tag, err := s.pool.Exec(ctx, q,
		rec.UserID,
		string(rec.Tier),
		rec.Status,
		rec.SubscriptionID,
		rec.PriceID,
		rec.CurrentPeriodEnd,
		rec.CancelAtPeriodEnd,
		rec.TrialEnd,
		eventTime,
		time.Now().UTC(),
	)
	if err != nil {
		return false, fmt.Errorf("apply entitlement: %w", err)
	}

	return tag.RowsAffected() > 0, nil
}

// SeenEvent reports whether the event ID is already in the ledger.
func (s *PostgresStore) SeenEvent(ctx context.Context, eventID string) (bool, error) {
	const q = `SELECT EXISTS (SELECT 1 FROM webhook_events WHERE event_id = $1)`

	var seen bool
	if err := s.pool.QueryRow(ctx, q, eventID).Scan(&seen); err != nil {
		return false, fmt.Errorf("seen event: %w", err)
	}
	return seen, nil
}

// RecordEvent adds the event to the ledger. Duplicate IDs are a no-op.
func (s *PostgresStore) RecordEvent(ctx context.Context, eventID, eventType string, processedAt time.Time) error {
	const q = `
		INSERT INTO webhook_events (event_id, event_type, processed_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (event_id) DO NOTHING`

	if _, err := s.pool.Exec(ctx, q, eventID, eventType, processedAt.UTC()); err != nil {
		return fmt.Errorf("record event: %w", err)
	}
	return nil
}
