// Package account issues checkout and portal sessions, resolving the
// user-to-customer identity mapping lazily on first use.
package account

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/sync/singleflight"

	"github.com/amica-legal/amica/internal/billing"
	"github.com/amica-legal/amica/internal/domain"
	"github.com/amica-legal/amica/internal/store"
	"github.com/amica-legal/amica/internal/telemetry"
)

// Service coordinates the identity map and the billing provider.
type Service struct {
	store    store.Store
	provider billing.Provider
	metrics  *telemetry.BusinessMetrics
	logger   *slog.Logger

	// group collapses concurrent customer creations for the same user into
	// one provider call. The provider-side idempotency key is the backstop
	// for concurrent creates across instances.
	group singleflight.Group
}

func NewService(s store.Store, provider billing.Provider, metrics *telemetry.BusinessMetrics, logger *slog.Logger) *Service {
	return &Service{
		store:    s,
		provider: provider,
		metrics:  metrics,
		logger:   logger,
	}
}

// CheckoutParams are the inputs for starting a subscription checkout.
type CheckoutParams struct {
	UserID     string
	Email      string
	PriceID    string
	SuccessURL string
	CancelURL  string
	TrialDays  int64
}

// CheckoutResult carries the provider session the caller redirects to.
type CheckoutResult struct {
	SessionID string
	URL       string
}

// GetOrCreateCustomer returns the provider customer ID for a user, creating
// the customer and mapping on first use. The mapping is append-only: if a
// concurrent request created it first, the stored mapping wins and any extra
// provider customer is abandoned.
func (s *Service) GetOrCreateCustomer(ctx context.Context, userID, email string) (string, error) {
	const op = "account.customer"

	if userID == "" {
		return "", domain.Invalid(op, "user ID is required")
	}

	if m, err := s.store.GetCustomerMapping(ctx, userID); err == nil {
		return m.CustomerID, nil
	} else if !errors.Is(err, store.ErrNotFound) {
		return "", domain.Internal(err, op, "failed to look up customer mapping")
	}

	v, err, _ := s.group.Do(userID, func() (interface{}, error) {
		// Re-check under the flight: another goroutine may have finished
		// between our miss and this call.
		if m, err := s.store.GetCustomerMapping(ctx, userID); err == nil {
			return m.CustomerID, nil
		} else if !errors.Is(err, store.ErrNotFound) {
			return nil, domain.Internal(err, op, "failed to look up customer mapping")
		}

		customer, err := s.provider.CreateCustomer(ctx, billing.CreateCustomerParams{
			UserID: userID,
			Email:  email,
		})
		if err != nil {
			return nil, domain.Upstream(err, op, "failed to create billing customer")
		}

		m, err := s.store.PutCustomerMapping(ctx, domain.CustomerMapping{
			UserID:     userID,
			CustomerID: customer.ID,
			Email:      email,
		})
		if err != nil {
			return nil, domain.Internal(err, op, "failed to store customer mapping")
		}

		if m.CustomerID != customer.ID {
			// Lost the race to another instance. The stored mapping wins.
			s.logger.Warn("discarding duplicate billing customer",
				slog.String("user_id", userID),
				slog.String("kept", m.CustomerID),
				slog.String("discarded", customer.ID))
		} else {
			s.metrics.RecordCustomerCreated()
		}

		return m.CustomerID, nil
	})
	if err != nil {
		return "", err
	}

	return v.(string), nil
}

// CreateCheckoutSession starts a subscription checkout for a user, creating
// the provider customer first if needed.
func (s *Service) CreateCheckoutSession(ctx context.Context, params CheckoutParams) (*CheckoutResult, error) {
	const op = "account.checkout"

	if params.UserID == "" {
		return nil, domain.Invalid(op, "user ID is required")
	}
	if params.PriceID == "" {
		return nil, domain.Invalid(op, "price ID is required")
	}
	if params.SuccessURL == "" || params.CancelURL == "" {
		return nil, domain.Invalid(op, "success and cancel URLs are required")
	}

	customerID, err := s.GetOrCreateCustomer(ctx, params.UserID, params.Email)
	if err != nil {
		return nil, err
	}

	session, err := s.provider.CreateCheckoutSession(ctx, billing.CreateCheckoutSessionParams{
		CustomerID: customerID,
		UserID:     params.UserID,
		PriceID:    params.PriceID,
		SuccessURL: params.SuccessURL,
		CancelURL:  params.CancelURL,
		TrialDays:  params.TrialDays,
	})
	if err != nil {
		// Not retried here: replaying a session creation risks duplicate
		// payment sessions. The caller decides whether to try again.
		return nil, domain.Upstream(err, op, "failed to create checkout session")
	}

	s.metrics.RecordCheckoutSession()
	s.logger.Info("checkout session created",
		slog.String("user_id", params.UserID),
		slog.String("price_id", params.PriceID),
		slog.String("session_id", session.ID))

	return &CheckoutResult{SessionID: session.ID, URL: session.URL}, nil
}

// CreatePortalSession creates a billing portal session for a user. Users
// without a customer mapping have never begun checkout and have no portal to
// manage.
func (s *Service) CreatePortalSession(ctx context.Context, userID, returnURL string) (string, error) {
	const op = "account.portal"

	if userID == "" {
		return "", domain.Invalid(op, "user ID is required")
	}
	if returnURL == "" {
		return "", domain.Invalid(op, "return URL is required")
	}

	m, err := s.store.GetCustomerMapping(ctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return "", domain.NotFound(op, "billing customer", userID)
		}
		return "", domain.Internal(err, op, "failed to look up customer mapping")
	}

	session, err := s.provider.CreatePortalSession(ctx, billing.CreatePortalSessionParams{
		CustomerID: m.CustomerID,
		ReturnURL:  returnURL,
	})
	if err != nil {
		return "", domain.Upstream(err, op, fmt.Sprintf("failed to create portal session for %s", m.CustomerID))
	}

	s.metrics.RecordPortalSession()

	return session.URL, nil
}
