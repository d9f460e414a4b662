// Package reconciler applies payment processor webhook notifications to the
// entitlement store.
package reconciler

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/stripe/stripe-go/v82"
)

// Stripe event types the reconciler acts on. Anything else is acknowledged
// without mutation.
const (
	eventSubscriptionCreated = "customer.subscription.created"
	eventSubscriptionUpdated = "customer.subscription.updated"
	eventSubscriptionDeleted = "customer.subscription.deleted"
	eventInvoicePaid         = "invoice.payment_succeeded"
	eventInvoiceFailed       = "invoice.payment_failed"
)

// Envelope carries the processor-assigned identity of a notification. The
// event ID drives idempotency; the timestamp drives the ordering guard.
type Envelope struct {
	ID         string
	Type       string
	OccurredAt time.Time
}

// SubscriptionSnapshot is the subscription state carried by a lifecycle
// event, flattened out of the raw payload.
type SubscriptionSnapshot struct {
	SubscriptionID    string
	UserID            string
	PriceID           string
	Status            string
	CancelAtPeriodEnd bool
	CurrentPeriodEnd  *time.Time
	TrialEnd          *time.Time
}

// Event is a decoded webhook notification. Exactly one of the concrete types
// below is returned per payload.
type Event interface {
	Env() Envelope
}

// SubscriptionEvent is a subscription created/updated/deleted notification.
type SubscriptionEvent struct {
	Envelope
	Deleted  bool
	Snapshot SubscriptionSnapshot
}

// InvoiceEvent is a payment outcome notification. Informational only: tier
// never changes on payment events.
type InvoiceEvent struct {
	Envelope
	Paid           bool
	SubscriptionID string
}

// UnknownEvent is any event type the reconciler does not act on.
type UnknownEvent struct {
	Envelope
}

func (e SubscriptionEvent) Env() Envelope { return e.Envelope }
func (e InvoiceEvent) Env() Envelope      { return e.Envelope }
func (e UnknownEvent) Env() Envelope      { return e.Envelope }

// DecodeEvent parses a raw webhook payload into a typed event. The payload
// must already be signature-verified.
func DecodeEvent(payload []byte) (Event, error) {
	var event stripe.Event
	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, fmt.Errorf("parse webhook payload: %w", err)
	}

	env := Envelope{
		ID:         event.ID,
		Type:       string(event.Type),
		OccurredAt: time.Unix(event.Created, 0).UTC(),
	}
	if env.ID == "" {
		return nil, fmt.Errorf("webhook payload missing event ID")
	}
	if event.Data == nil {
		return nil, fmt.Errorf("webhook payload missing event data")
	}

	switch env.Type {
	case eventSubscriptionCreated, eventSubscriptionUpdated, eventSubscriptionDeleted:
		var sub stripe.Subscription
		if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
			return nil, fmt.Errorf("parse subscription payload: %w", err)
		}
		return SubscriptionEvent{
			Envelope: env,
			Deleted:  env.Type == eventSubscriptionDeleted,
			Snapshot: snapshotFromSubscription(&sub),
		}, nil

	case eventInvoicePaid, eventInvoiceFailed:
		var inv stripe.Invoice
		if err := json.Unmarshal(event.Data.Raw, &inv); err != nil {
			return nil, fmt.Errorf("parse invoice payload: %w", err)
		}
		evt := InvoiceEvent{
			Envelope: env,
			Paid:     env.Type == eventInvoicePaid,
		}
		if inv.Parent != nil && inv.Parent.SubscriptionDetails != nil && inv.Parent.SubscriptionDetails.Subscription != nil {
			evt.SubscriptionID = inv.Parent.SubscriptionDetails.Subscription.ID
		}
		return evt, nil

	default:
		return UnknownEvent{Envelope: env}, nil
	}
}

func snapshotFromSubscription(sub *stripe.Subscription) SubscriptionSnapshot {
	snap := SubscriptionSnapshot{
		SubscriptionID:    sub.ID,
		UserID:            sub.Metadata["user_id"],
		Status:            string(sub.Status),
		CancelAtPeriodEnd: sub.CancelAtPeriodEnd,
	}

	if sub.TrialEnd > 0 {
		t := time.Unix(sub.TrialEnd, 0).UTC()
		snap.TrialEnd = &t
	}

	// Price and period live on the subscription item, not the subscription.
	if sub.Items != nil && len(sub.Items.Data) > 0 {
		item := sub.Items.Data[0]
		if item.Price != nil {
			snap.PriceID = item.Price.ID
		}
		if item.CurrentPeriodEnd > 0 {
			t := time.Unix(item.CurrentPeriodEnd, 0).UTC()
			snap.CurrentPeriodEnd = &t
		}
	}

	return snap
}
