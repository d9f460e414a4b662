package billing

import (
	"context"
	"time"
)

// Provider defines the interface for the payment processor.
// Implementations can use Stripe, Paddle, etc.
type Provider interface {
	// CreateCustomer creates a customer record in the billing provider.
	// The user ID must be attached as provider-side metadata: it is the only
	// mechanism for recovering the internal user from later webhook payloads,
	// which carry provider-native identifiers exclusively.
	CreateCustomer(ctx context.Context, params CreateCustomerParams) (*Customer, error)

	// CreateCheckoutSession requests a subscription-mode checkout session.
	// Metadata must be attached to both the session and the subscription it
	// will create; subscriptions are created asynchronously relative to the
	// session, so metadata set at session-creation time is the only way to
	// propagate it.
	CreateCheckoutSession(ctx context.Context, params CreateCheckoutSessionParams) (*CheckoutSession, error)

	// CreatePortalSession creates a self-service billing portal session.
	// Returns the URL where the customer manages their subscription and
	// payment methods.
	CreatePortalSession(ctx context.Context, params CreatePortalSessionParams) (*PortalSession, error)

	// VerifyWebhookSignature verifies that a webhook request is authentic.
	// Verification runs against the exact bytes received; a re-serialized
	// copy of the body will not verify.
	VerifyWebhookSignature(payload []byte, signature string, secret string) error
}

// CreateCustomerParams contains parameters for creating a customer.
type CreateCustomerParams struct {
	// UserID is the internal user identifier, stored as provider metadata
	// and used as the idempotency key so concurrent create attempts for the
	// same user cannot produce two provider customers.
	UserID string

	// Email prefills the customer record.
	Email string
}

// Customer represents a billing customer.
type Customer struct {
	ID        string
	Email     string
	CreatedAt time.Time
}

// CreateCheckoutSessionParams contains parameters for creating a checkout session.
type CreateCheckoutSessionParams struct {
	// CustomerID is the provider customer (cus_...) resolved via the
	// identity map before the session is requested.
	CustomerID string

	// UserID is attached as metadata on the session and the subscription.
	UserID string

	// PriceID is the provider price (price_...) being subscribed to.
	PriceID string

	// SuccessURL and CancelURL are the post-checkout redirect targets.
	SuccessURL string
	CancelURL  string

	// TrialDays starts the subscription in a trial when > 0.
	TrialDays int64
}

// CheckoutSession represents a provider checkout session.
type CheckoutSession struct {
	ID  string
	URL string
}

// CreatePortalSessionParams contains parameters for creating a portal session.
type CreatePortalSessionParams struct {
	CustomerID string
	ReturnURL  string
}

// PortalSession represents a provider billing portal session.
type PortalSession struct {
	ID        string
	URL       string
	CreatedAt time.Time
}
