package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// BusinessMetrics holds Prometheus metrics for billing-level observability.
type BusinessMetrics struct {
	// Webhooks
	WebhookReceived  *prometheus.CounterVec
	WebhookProcessed *prometheus.CounterVec
	WebhookFailed    *prometheus.CounterVec
	WebhookStale     *prometheus.CounterVec
	WebhookLatency   *prometheus.HistogramVec

	// Sessions
	CheckoutSessions prometheus.Counter
	PortalSessions   prometheus.Counter
	CustomersCreated prometheus.Counter

	// Entitlements
	TierChanges          *prometheus.CounterVec
	UnknownPriceMappings *prometheus.CounterVec
}

// NewBusinessMetrics creates all business metrics and registers them with
// the default registry.
func NewBusinessMetrics(namespace string) *BusinessMetrics {
	return NewBusinessMetricsWithRegistry(namespace, prometheus.DefaultRegisterer)
}

// NewBusinessMetricsWithRegistry creates all business metrics on a specific
// registerer. Tests use this with a fresh registry to avoid duplicate
// registration panics.
func NewBusinessMetricsWithRegistry(namespace string, reg prometheus.Registerer) *BusinessMetrics {
	if namespace == "" {
		namespace = "amica"
	}

	subsystem := "billing"
	factory := promauto.With(reg)

	m := &BusinessMetrics{
		WebhookReceived: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "webhook_received_total",
				Help:      "Total webhooks received",
			},
			[]string{"event_type"},
		),
		WebhookProcessed: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "webhook_processed_total",
				Help:      "Total webhooks successfully processed",
			},
			[]string{"event_type"},
		),
		WebhookFailed: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "webhook_failed_total",
				Help:      "Total webhook processing failures",
			},
			[]string{"event_type", "error_type"},
		),
		WebhookStale: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "webhook_stale_discarded_total",
				Help:      "Total webhooks discarded as older than the stored state",
			},
			[]string{"event_type"},
		),
		WebhookLatency: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "webhook_processing_seconds",
				Help:      "Webhook processing duration",
				Buckets:   []float64{.01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"event_type"},
		),
		CheckoutSessions: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "checkout_sessions_total",
				Help:      "Total checkout sessions created",
			},
		),
		PortalSessions: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "portal_sessions_total",
				Help:      "Total billing portal sessions created",
			},
		),
		CustomersCreated: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "customers_created_total",
				Help:      "Total billing customers created",
			},
		),
		TierChanges: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "tier_changes_total",
				Help:      "Total entitlement tier transitions applied",
			},
			[]string{"from_tier", "to_tier"},
		),
		UnknownPriceMappings: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "unknown_price_mappings_total",
				Help:      "Total webhook events carrying a price ID absent from the price table",
			},
			[]string{"price_id"},
		),
	}

	return m
}

// RecordWebhookReceived increments the received counter for an event type.
func (m *BusinessMetrics) RecordWebhookReceived(eventType string) {
	m.WebhookReceived.WithLabelValues(eventType).Inc()
}

// RecordWebhookProcessed increments the processed counter for an event type.
func (m *BusinessMetrics) RecordWebhookProcessed(eventType string) {
	m.WebhookProcessed.WithLabelValues(eventType).Inc()
}

// RecordWebhookFailed increments the failure counter.
func (m *BusinessMetrics) RecordWebhookFailed(eventType, errorType string) {
	m.WebhookFailed.WithLabelValues(eventType, errorType).Inc()
}

// RecordWebhookStale increments the stale-discard counter.
func (m *BusinessMetrics) RecordWebhookStale(eventType string) {
	m.WebhookStale.WithLabelValues(eventType).Inc()
}

// ObserveWebhookLatency records how long processing one webhook took.
func (m *BusinessMetrics) ObserveWebhookLatency(eventType string, seconds float64) {
	m.WebhookLatency.WithLabelValues(eventType).Observe(seconds)
}

// RecordCheckoutSession increments the checkout session counter.
func (m *BusinessMetrics) RecordCheckoutSession() {
	m.CheckoutSessions.Inc()
}

// RecordPortalSession increments the portal session counter.
func (m *BusinessMetrics) RecordPortalSession() {
	m.PortalSessions.Inc()
}

// RecordCustomerCreated increments the customer creation counter.
func (m *BusinessMetrics) RecordCustomerCreated() {
	m.CustomersCreated.Inc()
}

// RecordTierChange increments the tier transition counter.
func (m *BusinessMetrics) RecordTierChange(from, to string) {
	m.TierChanges.WithLabelValues(from, to).Inc()
}

// RecordUnknownPrice increments the unknown price mapping counter.
func (m *BusinessMetrics) RecordUnknownPrice(priceID string) {
	m.UnknownPriceMappings.WithLabelValues(priceID).Inc()
}
