package domain

import "time"

// Tier is a subscription level. Tiers form a total order: every capability
// granted at a tier is also granted at every higher tier.
type Tier string

const (
	TierFree         Tier = "free"
	TierEssential    Tier = "essential"
	TierProfessional Tier = "professional"
	TierAttorney     Tier = "attorney"
	TierEnterprise   Tier = "enterprise"
)

// tierRank defines the total order over tiers.
var tierRank = map[Tier]int{
	TierFree:         0,
	TierEssential:    1,
	TierProfessional: 2,
	TierAttorney:     3,
	TierEnterprise:   4,
}

// OrderedTiers lists all tiers from lowest to highest.
var OrderedTiers = []Tier{
	TierFree,
	TierEssential,
	TierProfessional,
	TierAttorney,
	TierEnterprise,
}

// Rank returns the tier's position in the total order. Unknown tiers rank
// below free so a corrupted value never grants access.
func (t Tier) Rank() int {
	if r, ok := tierRank[t]; ok {
		return r
	}
	return -1
}

// AtLeast reports whether t is equal to or above other in the tier order.
func (t Tier) AtLeast(other Tier) bool {
	return t.Rank() >= other.Rank()
}

// Valid reports whether t is a known tier.
func (t Tier) Valid() bool {
	_, ok := tierRank[t]
	return ok
}

// Subscription lifecycle statuses as reported by the payment processor.
// Status is distinct from Tier: a canceled subscription keeps reporting its
// former tier until reconciliation downgrades the record.
const (
	StatusFree     = "free"
	StatusActive   = "active"
	StatusTrialing = "trialing"
	StatusPastDue  = "past_due"
	StatusCanceled = "canceled"
)

// EntitlementRecord is the authoritative per-user tier/status snapshot
// derived from billing state. The absence of a record is equivalent to
// tier=free, status=free; records are never pre-created for free users.
type EntitlementRecord struct {
	UserID            string
	Tier              Tier
	Status            string
	SubscriptionID    string
	PriceID           string
	CurrentPeriodEnd  *time.Time
	CancelAtPeriodEnd bool
	TrialEnd          *time.Time

	// LastReconciledAt is the processor timestamp of the event that produced
	// this record. Reconciliation discards events strictly older than it, so
	// out-of-order webhook delivery cannot regress the record.
	LastReconciledAt *time.Time

	UpdatedAt time.Time
}

// FreeEntitlement returns the implicit record for a user with no stored
// entitlement.
func FreeEntitlement(userID string) *EntitlementRecord {
	return &EntitlementRecord{
		UserID: userID,
		Tier:   TierFree,
		Status: StatusFree,
	}
}

// CustomerMapping associates an internal user with a processor customer.
// Mappings are created lazily on first checkout and never deleted: the
// processor-side customer persists through cancellation.
type CustomerMapping struct {
	UserID     string
	CustomerID string
	Email      string
	CreatedAt  time.Time
}
