package billing

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/client"
	"github.com/stripe/stripe-go/v82/webhook"
)

// metadataUserIDKey is the provider-side metadata key carrying the internal
// user identifier on customers, sessions, and subscriptions.
const metadataUserIDKey = "user_id"

// StripeProvider implements Provider using the Stripe API.
// The client is constructed once with a bounded HTTP timeout and injected;
// no package-level Stripe state is used.
type StripeProvider struct {
	config StripeConfig
	client *client.API
}

// NewStripeProvider creates a new Stripe billing provider.
func NewStripeProvider(config StripeConfig) (*StripeProvider, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	timeout := time.Duration(config.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	httpClient := &http.Client{Timeout: timeout}
	backends := stripe.NewBackends(httpClient)

	sc := &client.API{}
	sc.Init(config.APIKey, backends)

	return &StripeProvider{
		config: config,
		client: sc,
	}, nil
}

// CreateCustomer creates a Stripe customer tagged with the internal user ID.
// The idempotency key is derived from the user ID, so two racing create
// attempts for the same user resolve to one Stripe customer.
func (s *StripeProvider) CreateCustomer(ctx context.Context, params CreateCustomerParams) (*Customer, error) {
	if params.UserID == "" {
		return nil, fmt.Errorf("stripe: user ID is required for customer creation")
	}

	cp := &stripe.CustomerParams{
		Email: stripe.String(params.Email),
	}
	cp.Context = ctx
	cp.IdempotencyKey = stripe.String("customer-create-" + params.UserID)
	cp.AddMetadata(metadataUserIDKey, params.UserID)

	cust, err := s.client.Customers.New(cp)
	if err != nil {
		return nil, wrapStripeErr(err, "customer creation failed")
	}

	return &Customer{
		ID:        cust.ID,
		Email:     cust.Email,
		CreatedAt: time.Unix(cust.Created, 0),
	}, nil
}

// CreateCheckoutSession creates a subscription-mode checkout session.
// The user ID is attached to both the session and the subscription it will
// create, since the subscription materializes asynchronously and webhooks
// only carry what was stamped here.
func (s *StripeProvider) CreateCheckoutSession(ctx context.Context, params CreateCheckoutSessionParams) (*CheckoutSession, error) {
	subData := &stripe.CheckoutSessionSubscriptionDataParams{
		Metadata: map[string]string{
			metadataUserIDKey: params.UserID,
		},
	}
	if params.TrialDays > 0 {
		subData.TrialPeriodDays = stripe.Int64(params.TrialDays)
	}

	sp := &stripe.CheckoutSessionParams{
		Mode:       stripe.String(string(stripe.CheckoutSessionModeSubscription)),
		Customer:   stripe.String(params.CustomerID),
		SuccessURL: stripe.String(params.SuccessURL),
		CancelURL:  stripe.String(params.CancelURL),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				Price:    stripe.String(params.PriceID),
				Quantity: stripe.Int64(1),
			},
		},
		SubscriptionData: subData,
	}
	sp.Context = ctx
	sp.AddMetadata(metadataUserIDKey, params.UserID)

	sess, err := s.client.CheckoutSessions.New(sp)
	if err != nil {
		return nil, wrapStripeErr(err, "checkout session creation failed")
	}

	return &CheckoutSession{
		ID:  sess.ID,
		URL: sess.URL,
	}, nil
}

// CreatePortalSession creates a Stripe billing portal session.
func (s *StripeProvider) CreatePortalSession(ctx context.Context, params CreatePortalSessionParams) (*PortalSession, error) {
	pp := &stripe.BillingPortalSessionParams{
		Customer:  stripe.String(params.CustomerID),
		ReturnURL: stripe.String(params.ReturnURL),
	}
	pp.Context = ctx

	sess, err := s.client.BillingPortalSessions.New(pp)
	if err != nil {
		return nil, wrapStripeErr(err, "portal session creation failed")
	}

	return &PortalSession{
		ID:        sess.ID,
		URL:       sess.URL,
		CreatedAt: time.Unix(sess.Created, 0),
	}, nil
}

// VerifyWebhookSignature verifies a Stripe webhook signature against the raw
// request body.
func (s *StripeProvider) VerifyWebhookSignature(payload []byte, signature string, secret string) error {
	if err := webhook.ValidatePayload(payload, signature, secret); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidWebhookSignature, err)
	}
	return nil
}

// wrapStripeErr converts SDK errors into StripeError, chaining ErrUpstream so
// callers can classify without importing the SDK.
func wrapStripeErr(err error, message string) error {
	var se *stripe.Error
	if errors.As(err, &se) {
		return fmt.Errorf("%w: %w", ErrUpstream, &StripeError{
			Message:       se.Msg,
			Code:          string(se.Code),
			RequestID:     se.RequestID,
			OriginalError: err,
		})
	}
	// Network errors and timeouts arrive as plain errors
	return fmt.Errorf("%w: %s: %w", ErrUpstream, message, err)
}
