package reconciler

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/amica-legal/amica/internal/domain"
	"github.com/amica-legal/amica/internal/entitlement"
	"github.com/amica-legal/amica/internal/events"
	"github.com/amica-legal/amica/internal/store"
	"github.com/amica-legal/amica/internal/telemetry"
)

// CacheInvalidator drops a user's cached entitlement after a change is
// applied. Satisfied by entitlement.Resolver.
type CacheInvalidator interface {
	Invalidate(ctx context.Context, userID string)
}

// Reconciler applies webhook notifications to the entitlement store.
// Safe for concurrent use: ordering between notifications for the same
// subscription is resolved by the store's compare-and-set, not by locking
// here.
type Reconciler struct {
	store      store.Store
	prices     entitlement.PriceTable
	publisher  events.Publisher
	invalidate CacheInvalidator
	metrics    *telemetry.BusinessMetrics
	logger     *slog.Logger
}

func New(s store.Store, prices entitlement.PriceTable, publisher events.Publisher, invalidate CacheInvalidator, metrics *telemetry.BusinessMetrics, logger *slog.Logger) *Reconciler {
	return &Reconciler{
		store:      s,
		prices:     prices,
		publisher:  publisher,
		invalidate: invalidate,
		metrics:    metrics,
		logger:     logger,
	}
}

// Process applies one signature-verified webhook payload.
//
// A non-nil return means a transient failure (store unavailable): the caller
// responds 5xx so the processor redelivers. All terminal conditions, such as
// malformed payloads, missing metadata, unknown event types, and stale or
// duplicate events, are logged and swallowed so the processor stops
// retrying.
func (r *Reconciler) Process(ctx context.Context, payload []byte) error {
	start := time.Now()

	evt, err := DecodeEvent(payload)
	if err != nil {
		// Malformed but authentic. Retrying cannot fix it.
		r.logger.Error("discarding undecodable webhook payload",
			slog.String("error", err.Error()))
		r.metrics.RecordWebhookFailed("unknown", "decode")
		return nil
	}

	env := evt.Env()
	r.metrics.RecordWebhookReceived(env.Type)
	defer func() {
		r.metrics.ObserveWebhookLatency(env.Type, time.Since(start).Seconds())
	}()

	seen, err := r.store.SeenEvent(ctx, env.ID)
	if err != nil {
		r.metrics.RecordWebhookFailed(env.Type, "store")
		return domain.Internal(err, "reconciler.process", "failed to check event ledger")
	}
	if seen {
		r.logger.Debug("skipping already processed event",
			slog.String("event_id", env.ID),
			slog.String("event_type", env.Type))
		return nil
	}

	switch e := evt.(type) {
	case SubscriptionEvent:
		if err := r.processSubscription(ctx, e); err != nil {
			r.metrics.RecordWebhookFailed(env.Type, "store")
			return err
		}
	case InvoiceEvent:
		// Informational only. Payment failures do not change tier; Stripe
		// moves the subscription to past_due and sends an updated event.
		r.logger.Info("invoice payment event",
			slog.String("event_id", env.ID),
			slog.String("subscription_id", e.SubscriptionID),
			slog.Bool("paid", e.Paid))
	case UnknownEvent:
		r.logger.Debug("acknowledging unhandled event type",
			slog.String("event_id", env.ID),
			slog.String("event_type", env.Type))
	}

	if err := r.store.RecordEvent(ctx, env.ID, env.Type, time.Now().UTC()); err != nil {
		r.metrics.RecordWebhookFailed(env.Type, "store")
		return domain.Internal(err, "reconciler.process", "failed to record event")
	}

	r.metrics.RecordWebhookProcessed(env.Type)
	return nil
}

func (r *Reconciler) processSubscription(ctx context.Context, evt SubscriptionEvent) error {
	snap := evt.Snapshot

	if snap.UserID == "" {
		// Without metadata there is no way to map the subscription to a
		// user. Acknowledge so the processor stops redelivering, but make
		// noise: this means a session was created without metadata.
		r.logger.Error("subscription event carries no user metadata",
			slog.String("event_id", evt.ID),
			slog.String("event_type", evt.Type),
			slog.String("subscription_id", snap.SubscriptionID))
		r.metrics.RecordWebhookFailed(evt.Type, "missing_metadata")
		return nil
	}

	prior, err := r.store.GetEntitlement(ctx, snap.UserID)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return domain.Internal(err, "reconciler.subscription", "failed to read entitlement")
	}
	priorTier := domain.TierFree
	if prior != nil {
		priorTier = prior.Tier
	}

	var rec domain.EntitlementRecord
	if evt.Deleted {
		// A deleted event for a subscription the user has since replaced
		// must not clobber the replacement's entitlement.
		if prior != nil && prior.SubscriptionID != "" && prior.SubscriptionID != snap.SubscriptionID {
			r.logger.Info("ignoring deletion of superseded subscription",
				slog.String("user_id", snap.UserID),
				slog.String("deleted_subscription_id", snap.SubscriptionID),
				slog.String("current_subscription_id", prior.SubscriptionID))
			return nil
		}
		rec = domain.EntitlementRecord{
			UserID: snap.UserID,
			Tier:   domain.TierFree,
			Status: domain.StatusCanceled,
		}
	} else {
		tier, known := r.prices.DeriveTier(snap.PriceID)
		if !known {
			// Misconfiguration, not a user error. Defaulting to free is the
			// only safe answer: never guess a paid tier.
			r.logger.Error("price ID missing from price table, defaulting to free tier",
				slog.String("user_id", snap.UserID),
				slog.String("price_id", snap.PriceID),
				slog.String("subscription_id", snap.SubscriptionID))
			r.metrics.RecordUnknownPrice(snap.PriceID)
		}
		rec = domain.EntitlementRecord{
			UserID:            snap.UserID,
			Tier:              tier,
			Status:            snap.Status,
			SubscriptionID:    snap.SubscriptionID,
			PriceID:           snap.PriceID,
			CurrentPeriodEnd:  snap.CurrentPeriodEnd,
			CancelAtPeriodEnd: snap.CancelAtPeriodEnd,
			TrialEnd:          snap.TrialEnd,
		}
	}

	applied, err := r.store.ApplyEntitlement(ctx, rec, evt.OccurredAt)
	if err != nil {
		return domain.Internal(err, "reconciler.subscription", "failed to apply entitlement")
	}
	if !applied {
		r.logger.Warn("discarding stale subscription event",
			slog.String("event_id", evt.ID),
			slog.String("user_id", snap.UserID),
			slog.Time("event_time", evt.OccurredAt))
		r.metrics.RecordWebhookStale(evt.Type)
		return nil
	}

	if rec.Tier != priorTier {
		r.metrics.RecordTierChange(string(priorTier), string(rec.Tier))
	}

	r.invalidate.Invalidate(ctx, snap.UserID)
	if err := r.publisher.PublishEntitlementChanged(events.EntitlementChanged{
		UserID:     snap.UserID,
		Tier:       rec.Tier,
		Status:     rec.Status,
		EventID:    evt.ID,
		OccurredAt: evt.OccurredAt,
	}); err != nil {
		// Best effort. Remote caches expire on TTL anyway.
		r.logger.Warn("failed to publish entitlement change",
			slog.String("user_id", snap.UserID),
			slog.String("error", err.Error()))
	}

	r.logger.Info("entitlement reconciled",
		slog.String("event_id", evt.ID),
		slog.String("event_type", evt.Type),
		slog.String("user_id", snap.UserID),
		slog.String("tier", string(rec.Tier)),
		slog.String("status", rec.Status))

	return nil
}
