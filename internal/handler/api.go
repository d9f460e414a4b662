package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/amica-legal/amica/internal/account"
	"github.com/amica-legal/amica/internal/domain"
	"github.com/amica-legal/amica/internal/entitlement"
)

// APIHandler serves the entitlement and billing session endpoints.
type APIHandler struct {
	account  *account.Service
	resolver *entitlement.Resolver
	validate *validator.Validate
	logger   *slog.Logger
}

func NewAPIHandler(account *account.Service, resolver *entitlement.Resolver, logger *slog.Logger) *APIHandler {
	return &APIHandler{
		account:  account,
		resolver: resolver,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		logger:   logger,
	}
}

type subscriptionResponse struct {
	SubscriptionID    string     `json:"subscriptionId"`
	PriceID           string     `json:"priceId"`
	CurrentPeriodEnd  *time.Time `json:"currentPeriodEnd,omitempty"`
	CancelAtPeriodEnd bool       `json:"cancelAtPeriodEnd"`
	TrialEnd          *time.Time `json:"trialEnd,omitempty"`
}

type entitlementResponse struct {
	UserID       string                   `json:"userId"`
	Tier         domain.Tier              `json:"tier"`
	Status       string                   `json:"status"`
	Capabilities []entitlement.Capability `json:"capabilities"`
	Subscription *subscriptionResponse    `json:"subscription"`
}

// GetEntitlement handles GET /api/entitlements/{userID}.
// Users without a stored record report the free tier; this is never a 404.
func (h *APIHandler) GetEntitlement(w http.ResponseWriter, r *http.Request) {
	userID := r.PathValue("userID")
	if userID == "" {
		Error(w, r, domain.Invalid("api.entitlement", "user ID is required"))
		return
	}

	rec, err := h.resolver.Resolve(r.Context(), userID)
	if err != nil {
		Error(w, r, err)
		return
	}

	resp := entitlementResponse{
		UserID:       rec.UserID,
		Tier:         rec.Tier,
		Status:       rec.Status,
		Capabilities: entitlement.Capabilities(rec.Tier),
	}
	if rec.SubscriptionID != "" {
		resp.Subscription = &subscriptionResponse{
			SubscriptionID:    rec.SubscriptionID,
			PriceID:           rec.PriceID,
			CurrentPeriodEnd:  rec.CurrentPeriodEnd,
			CancelAtPeriodEnd: rec.CancelAtPeriodEnd,
			TrialEnd:          rec.TrialEnd,
		}
	}

	JSON(w, http.StatusOK, resp)
}

type checkCapabilityResponse struct {
	UserID     string      `json:"userId"`
	Tier       domain.Tier `json:"tier"`
	Capability string      `json:"capability"`
	Granted    bool        `json:"granted"`
}

// CheckCapability handles GET /api/entitlements/{userID}/capabilities/{capability}.
func (h *APIHandler) CheckCapability(w http.ResponseWriter, r *http.Request) {
	userID := r.PathValue("userID")
	capability := r.PathValue("capability")
	if userID == "" || capability == "" {
		Error(w, r, domain.Invalid("api.capability", "user ID and capability are required"))
		return
	}

	tier, err := h.resolver.ResolveTier(r.Context(), userID)
	if err != nil {
		Error(w, r, err)
		return
	}

	JSON(w, http.StatusOK, checkCapabilityResponse{
		UserID:     userID,
		Tier:       tier,
		Capability: capability,
		Granted:    entitlement.HasCapability(tier, entitlement.Capability(capability)),
	})
}

type checkoutRequest struct {
	UserID     string `json:"userId" validate:"required"`
	Email      string `json:"email" validate:"required,email"`
	PriceID    string `json:"priceId" validate:"required"`
	SuccessURL string `json:"successUrl" validate:"required,url"`
	CancelURL  string `json:"cancelUrl" validate:"required,url"`
	TrialDays  int64  `json:"trialDays" validate:"gte=0,lte=730"`
}

type checkoutResponse struct {
	SessionID string `json:"sessionId"`
	URL       string `json:"url"`
}

// CreateCheckout handles POST /api/billing/checkout.
func (h *APIHandler) CreateCheckout(w http.ResponseWriter, r *http.Request) {
	var req checkoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		Error(w, r, domain.Invalid("api.checkout", "invalid request body"))
		return
	}
	if err := h.validate.Struct(req); err != nil {
		Error(w, r, domain.Invalid("api.checkout", validationMessage(err)))
		return
	}

	result, err := h.account.CreateCheckoutSession(r.Context(), account.CheckoutParams{
		UserID:     req.UserID,
		Email:      req.Email,
		PriceID:    req.PriceID,
		SuccessURL: req.SuccessURL,
		CancelURL:  req.CancelURL,
		TrialDays:  req.TrialDays,
	})
	if err != nil {
		Error(w, r, err)
		return
	}

	JSON(w, http.StatusOK, checkoutResponse{
		SessionID: result.SessionID,
		URL:       result.URL,
	})
}

type portalRequest struct {
	UserID    string `json:"userId" validate:"required"`
	ReturnURL string `json:"returnUrl" validate:"required,url"`
}

type portalResponse struct {
	URL string `json:"url"`
}

// CreatePortal handles POST /api/billing/portal.
func (h *APIHandler) CreatePortal(w http.ResponseWriter, r *http.Request) {
	var req portalRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		Error(w, r, domain.Invalid("api.portal", "invalid request body"))
		return
	}
	if err := h.validate.Struct(req); err != nil {
		Error(w, r, domain.Invalid("api.portal", validationMessage(err)))
		return
	}

	url, err := h.account.CreatePortalSession(r.Context(), req.UserID, req.ReturnURL)
	if err != nil {
		Error(w, r, err)
		return
	}

	JSON(w, http.StatusOK, portalResponse{URL: url})
}

// validationMessage flattens validator errors into a single user-safe string.
func validationMessage(err error) string {
	errs, ok := err.(validator.ValidationErrors)
	if !ok || len(errs) == 0 {
		return "invalid request"
	}
	fe := errs[0]
	switch fe.Tag() {
	case "required":
		return fe.Field() + " is required"
	case "email":
		return fe.Field() + " must be a valid email address"
	case "url":
		return fe.Field() + " must be a valid URL"
	default:
		return fe.Field() + " is invalid"
	}
}
