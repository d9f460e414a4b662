package handler

import (
	"io"
	"log/slog"
	"net/http"

	"github.com/amica-legal/amica/internal/billing"
	"github.com/amica-legal/amica/internal/domain"
	"github.com/amica-legal/amica/internal/reconciler"
)

// WebhookHandler receives payment processor webhooks and hands verified
// payloads to the reconciler.
type WebhookHandler struct {
	provider      billing.Provider
	webhookSecret string
	reconciler    *reconciler.Reconciler
	logger        *slog.Logger
}

func NewWebhookHandler(provider billing.Provider, webhookSecret string, rec *reconciler.Reconciler, logger *slog.Logger) *WebhookHandler {
	return &WebhookHandler{
		provider:      provider,
		webhookSecret: webhookSecret,
		reconciler:    rec,
		logger:        logger,
	}
}

// HandleWebhook processes POST /webhooks/stripe.
//
// The signature is verified against the exact bytes received; the body must
// not be parsed or re-serialized before verification. After verification,
// only transient store failures produce a 5xx (so the processor redelivers);
// every other outcome is acknowledged with 200.
func (h *WebhookHandler) HandleWebhook(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(r.Body)
	if err != nil {
		Error(w, r, domain.Invalid("webhook.receive", "failed to read request body"))
		return
	}

	signature := r.Header.Get("Stripe-Signature")
	if err := h.provider.VerifyWebhookSignature(payload, signature, h.webhookSecret); err != nil {
		// Potential spoofing attempt. Log it loudly, reject terminally.
		h.logger.Warn("webhook signature verification failed",
			slog.String("remote_addr", r.RemoteAddr),
			slog.String("error", err.Error()))
		Error(w, r, domain.InvalidSignature("webhook.verify", err))
		return
	}

	if err := h.reconciler.Process(r.Context(), payload); err != nil {
		// Transient failure: a non-2xx response makes the processor
		// redeliver the event later.
		Error(w, r, err)
		return
	}

	JSON(w, http.StatusOK, map[string]bool{"received": true})
}
