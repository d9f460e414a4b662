package billing

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestCreateCustomer tests customer creation with the mock provider
func TestCreateCustomer(t *testing.T) {
	tests := []struct {
		name      string
		params    CreateCustomerParams
		setupMock func(*MockProvider)
		wantErr   bool
	}{
		{
			name: "creates customer with user metadata",
			params: CreateCustomerParams{
				UserID: "user_123",
				Email:  "parent@example.com",
			},
			setupMock: func(m *MockProvider) {
				m.CreateCustomerFunc = func(ctx context.Context, params CreateCustomerParams) (*Customer, error) {
					// The user ID is the sole recovery path from webhook
					// payloads, so creation without it must fail
					if params.UserID == "" {
						return nil, errors.New("user_id required in metadata")
					}
					return &Customer{ID: "cus_test_123", Email: params.Email}, nil
				}
			},
		},
		{
			name: "rejects missing user ID",
			params: CreateCustomerParams{
				Email: "parent@example.com",
			},
			setupMock: func(m *MockProvider) {
				m.CreateCustomerFunc = func(ctx context.Context, params CreateCustomerParams) (*Customer, error) {
					if params.UserID == "" {
						return nil, errors.New("user_id required in metadata")
					}
					return &Customer{ID: "cus_test_123"}, nil
				}
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := NewMockProvider()
			if tt.setupMock != nil {
				tt.setupMock(mock)
			}

			cust, err := mock.CreateCustomer(context.Background(), tt.params)

			if tt.wantErr {
				assert.Error(t, err)
				return
			}

			require.NoError(t, err)
			assert.NotEmpty(t, cust.ID)
			assert.Equal(t, tt.params.Email, cust.Email)
		})
	}
}

// TestCreateCheckoutSession tests checkout session creation scenarios
func TestCreateCheckoutSession(t *testing.T) {
	tests := []struct {
		name      string
		params    CreateCheckoutSessionParams
		setupMock func(*MockProvider)
		wantErr   error
	}{
		{
			name: "creates subscription checkout session",
			params: CreateCheckoutSessionParams{
				CustomerID: "cus_test_123",
				UserID:     "user_123",
				PriceID:    "price_professional_monthly",
				SuccessURL: "https://app.example.com/billing/success",
				CancelURL:  "https://app.example.com/pricing",
			},
		},
		{
			name: "passes trial days through",
			params: CreateCheckoutSessionParams{
				CustomerID: "cus_test_123",
				UserID:     "user_123",
				PriceID:    "price_essential_monthly",
				SuccessURL: "https://app.example.com/billing/success",
				CancelURL:  "https://app.example.com/pricing",
				TrialDays:  14,
			},
			setupMock: func(m *MockProvider) {
				m.CreateCheckoutSessionFunc = func(ctx context.Context, params CreateCheckoutSessionParams) (*CheckoutSession, error) {
					if params.TrialDays != 14 {
						return nil, errors.New("trial days not propagated")
					}
					return &CheckoutSession{ID: "cs_trial", URL: "https://checkout.stripe.test/cs_trial"}, nil
				}
			},
		},
		{
			name: "surfaces upstream failure without retry",
			params: CreateCheckoutSessionParams{
				CustomerID: "cus_test_123",
				UserID:     "user_123",
				PriceID:    "price_professional_monthly",
				SuccessURL: "https://app.example.com/billing/success",
				CancelURL:  "https://app.example.com/pricing",
			},
			setupMock: func(m *MockProvider) {
				calls := 0
				m.CreateCheckoutSessionFunc = func(ctx context.Context, params CreateCheckoutSessionParams) (*CheckoutSession, error) {
					calls++
					if calls > 1 {
						return nil, errors.New("retried a non-transient-safe operation")
					}
					return nil, ErrUpstream
				}
			},
			wantErr: ErrUpstream,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := NewMockProvider()
			if tt.setupMock != nil {
				tt.setupMock(mock)
			}

			sess, err := mock.CreateCheckoutSession(context.Background(), tt.params)

			if tt.wantErr != nil {
				require.Error(t, err)
				assert.True(t, errors.Is(err, tt.wantErr))
				return
			}

			require.NoError(t, err)
			assert.NotEmpty(t, sess.ID)
			assert.NotEmpty(t, sess.URL, "redirect URL needed for the client")
		})
	}
}

// TestVerifyWebhookSignature tests webhook signature verification
func TestVerifyWebhookSignature(t *testing.T) {
	tests := []struct {
		name      string
		payload   []byte
		signature string
		secret    string
		setupMock func(*MockProvider)
		wantErr   error
	}{
		{
			name:      "verifies valid webhook signature",
			payload:   []byte(`{"type":"customer.subscription.updated","data":{}}`),
			signature: "valid_signature",
			secret:    "whsec_test_secret",
			setupMock: func(m *MockProvider) {
				m.VerifyWebhookSignatureFunc = func(payload []byte, signature string, secret string) error {
					if signature == "valid_signature" && secret == "whsec_test_secret" {
						return nil
					}
					return ErrInvalidWebhookSignature
				}
			},
		},
		{
			name:      "rejects invalid signature",
			payload:   []byte(`{"type":"customer.subscription.updated","data":{}}`),
			signature: "invalid_signature",
			secret:    "whsec_test_secret",
			setupMock: func(m *MockProvider) {
				m.VerifyWebhookSignatureFunc = func(payload []byte, signature string, secret string) error {
					if signature != "valid_signature" {
						return ErrInvalidWebhookSignature
					}
					return nil
				}
			},
			wantErr: ErrInvalidWebhookSignature,
		},
		{
			name:      "rejects wrong secret",
			payload:   []byte(`{"type":"customer.subscription.updated","data":{}}`),
			signature: "valid_signature",
			secret:    "whsec_wrong_secret",
			setupMock: func(m *MockProvider) {
				m.VerifyWebhookSignatureFunc = func(payload []byte, signature string, secret string) error {
					if secret != "whsec_test_secret" {
						return ErrInvalidWebhookSignature
					}
					return nil
				}
			},
			wantErr: ErrInvalidWebhookSignature,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := NewMockProvider()
			if tt.setupMock != nil {
				tt.setupMock(mock)
			}

			err := mock.VerifyWebhookSignature(tt.payload, tt.signature, tt.secret)

			if tt.wantErr != nil {
				assert.Error(t, err)
				assert.True(t, errors.Is(err, tt.wantErr))
				return
			}

			assert.NoError(t, err)
		})
	}
}

// TestStripeConfig_Validation tests configuration validation
func TestStripeConfig_Validation(t *testing.T) {
	t.Run("validates required API key", func(t *testing.T) {
		config := StripeConfig{
			APIKey:        "",
			WebhookSecret: "whsec_test",
		}
		err := config.Validate()
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "API key is required")
	})

	t.Run("validates required webhook secret", func(t *testing.T) {
		config := StripeConfig{
			APIKey:        "sk_test_123",
			WebhookSecret: "",
		}
		err := config.Validate()
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "webhook secret is required")
	})

	t.Run("accepts valid configuration", func(t *testing.T) {
		config := StripeConfig{
			APIKey:        "sk_test_123",
			WebhookSecret: "whsec_test",
		}
		assert.NoError(t, config.Validate())
	})

	t.Run("detects test mode correctly", func(t *testing.T) {
		testConfig := StripeConfig{
			APIKey:        "sk_test_123456",
			WebhookSecret: "whsec_test",
		}
		assert.True(t, testConfig.IsTestMode())

		liveConfig := StripeConfig{
			APIKey:        "sk_live_123456",
			WebhookSecret: "whsec_live",
		}
		assert.False(t, liveConfig.IsTestMode())
	})

	t.Run("provider constructor rejects invalid config", func(t *testing.T) {
		_, err := NewStripeProvider(StripeConfig{})
		assert.Error(t, err)
	})
}

// TestStripeError tests the StripeError type
func TestStripeError(t *testing.T) {
	t.Run("formats error message correctly", func(t *testing.T) {
		err := &StripeError{
			Message: "No such customer",
			Code:    "resource_missing",
		}
		assert.Contains(t, err.Error(), "No such customer")
		assert.Contains(t, err.Error(), "resource_missing")
	})

	t.Run("identifies temporary errors", func(t *testing.T) {
		rateLimitErr := &StripeError{Code: "rate_limit"}
		assert.True(t, rateLimitErr.IsTemporary())

		connectionErr := &StripeError{Code: "api_connection_error"}
		assert.True(t, connectionErr.IsTemporary())

		permanentErr := &StripeError{Code: "invalid_request"}
		assert.False(t, permanentErr.IsTemporary())
	})
}
