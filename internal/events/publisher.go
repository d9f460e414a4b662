// Package events publishes entitlement change notifications so other
// instances can drop their cached tier snapshots.
package events

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/amica-legal/amica/internal/domain"
)

// SubjectEntitlementChanged is the subject entitlement change events are
// published on.
const SubjectEntitlementChanged = "amica.entitlement.changed"

// EntitlementChanged is the payload published after reconciliation applies a
// change to a user's entitlement.
type EntitlementChanged struct {
	UserID     string      `json:"user_id"`
	Tier       domain.Tier `json:"tier"`
	Status     string      `json:"status"`
	EventID    string      `json:"event_id"`
	OccurredAt time.Time   `json:"occurred_at"`
}

// Publisher emits entitlement change events. Publishing is best-effort:
// failures are logged by callers, never propagated into webhook processing.
type Publisher interface {
	PublishEntitlementChanged(evt EntitlementChanged) error
}

// NATSPublisher publishes over a NATS connection.
type NATSPublisher struct {
	conn *nats.Conn
}

var _ Publisher = (*NATSPublisher)(nil)

func NewNATSPublisher(conn *nats.Conn) *NATSPublisher {
	return &NATSPublisher{conn: conn}
}

func (p *NATSPublisher) PublishEntitlementChanged(evt EntitlementChanged) error {
	data, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("marshal entitlement change: %w", err)
	}
	if err := p.conn.Publish(SubjectEntitlementChanged, data); err != nil {
		return fmt.Errorf("publish entitlement change: %w", err)
	}
	return nil
}

// SubscribeEntitlementChanged invokes handle for each entitlement change
// event received on the connection. Malformed payloads are logged and
// dropped.
func SubscribeEntitlementChanged(conn *nats.Conn, logger *slog.Logger, handle func(EntitlementChanged)) (*nats.Subscription, error) {
	return conn.Subscribe(SubjectEntitlementChanged, func(msg *nats.Msg) {
		var evt EntitlementChanged
		if err := json.Unmarshal(msg.Data, &evt); err != nil {
			logger.Warn("dropping malformed entitlement change event",
				slog.String("subject", msg.Subject),
				slog.String("error", err.Error()))
			return
		}
		handle(evt)
	})
}

// NoopPublisher discards events. Used when NATS is not configured.
type NoopPublisher struct{}

var _ Publisher = NoopPublisher{}

func (NoopPublisher) PublishEntitlementChanged(EntitlementChanged) error { return nil }
