// Package entitlement maps billing state to feature access. The price table,
// capability table, and quota table are static: tier derivation and gate
// checks are pure lookups with no I/O.
package entitlement

import "github.com/amica-legal/amica/internal/domain"

// PriceTable maps processor price IDs to tiers. Populated from configuration
// at startup. A price ID missing from the table derives the free tier, never
// an arbitrary paid one.
type PriceTable map[string]domain.Tier

// DeriveTier returns the tier for a price ID, falling back to free when the
// price is unknown. The boolean reports whether the mapping was known, so
// callers can log the misconfiguration loudly.
func (p PriceTable) DeriveTier(priceID string) (domain.Tier, bool) {
	if tier, ok := p[priceID]; ok {
		return tier, true
	}
	return domain.TierFree, false
}

// Capability is a named feature gate associated with a minimum tier.
type Capability string

const (
	CapabilityDocumentGeneration Capability = "document_generation"
	CapabilityCalendar           Capability = "calendar"
	CapabilityChatSupport        Capability = "chat_support"
	CapabilityCaseLawAccess      Capability = "case_law_access"
	CapabilityAIDrafting         Capability = "ai_drafting"
	CapabilityMultiClient        Capability = "multi_client"
	CapabilityPrioritySupport    Capability = "priority_support"
)

// AllCapabilities lists every known capability.
var AllCapabilities = []Capability{
	CapabilityDocumentGeneration,
	CapabilityCalendar,
	CapabilityChatSupport,
	CapabilityCaseLawAccess,
	CapabilityAIDrafting,
	CapabilityMultiClient,
	CapabilityPrioritySupport,
}

// minTier records the lowest tier granting each capability. Because tiers are
// totally ordered, a single minimum per capability guarantees that anything
// granted at tier N is also granted above N.
var minTier = map[Capability]domain.Tier{
	CapabilityDocumentGeneration: domain.TierFree,
	CapabilityCalendar:           domain.TierEssential,
	CapabilityChatSupport:        domain.TierEssential,
	CapabilityCaseLawAccess:      domain.TierProfessional,
	CapabilityAIDrafting:         domain.TierProfessional,
	CapabilityMultiClient:        domain.TierAttorney,
	CapabilityPrioritySupport:    domain.TierEnterprise,
}

// HasCapability reports whether the tier grants the capability. Unknown
// capabilities are never granted.
func HasCapability(tier domain.Tier, cap Capability) bool {
	min, ok := minTier[cap]
	if !ok {
		return false
	}
	return tier.AtLeast(min)
}

// Capabilities returns the full capability set granted at a tier.
func Capabilities(tier domain.Tier) []Capability {
	var caps []Capability
	for _, c := range AllCapabilities {
		if HasCapability(tier, c) {
			caps = append(caps, c)
		}
	}
	return caps
}

// QuotaKind names a metered resource.
type QuotaKind string

const (
	QuotaDocumentsPerMonth QuotaKind = "documents_per_month"
	QuotaAIRequestsPerDay  QuotaKind = "ai_requests_per_day"
)

// QuotaUnlimited marks a quota with no numeric ceiling.
const QuotaUnlimited = -1

// quotaLimits holds per-tier numeric ceilings. Limits never decrease as the
// tier increases.
var quotaLimits = map[QuotaKind]map[domain.Tier]int{
	QuotaDocumentsPerMonth: {
		domain.TierFree:         3,
		domain.TierEssential:    25,
		domain.TierProfessional: 100,
		domain.TierAttorney:     500,
		domain.TierEnterprise:   QuotaUnlimited,
	},
	QuotaAIRequestsPerDay: {
		domain.TierFree:         5,
		domain.TierEssential:    50,
		domain.TierProfessional: 200,
		domain.TierAttorney:     1000,
		domain.TierEnterprise:   QuotaUnlimited,
	},
}

// QuotaLimit returns the ceiling for a quota at a tier. Unknown quota kinds
// and unknown tiers get zero, denying access.
func QuotaLimit(tier domain.Tier, kind QuotaKind) int {
	limits, ok := quotaLimits[kind]
	if !ok {
		return 0
	}
	limit, ok := limits[tier]
	if !ok {
		return 0
	}
	return limit
}

// Remaining computes how much of a quota is left given current usage.
// Access is denied when the result is zero or negative. Unlimited quotas
// always report QuotaUnlimited.
func Remaining(tier domain.Tier, kind QuotaKind, used int) int {
	limit := QuotaLimit(tier, kind)
	if limit == QuotaUnlimited {
		return QuotaUnlimited
	}
	return limit - used
}

// Allowed reports whether usage is still within the quota.
func Allowed(tier domain.Tier, kind QuotaKind, used int) bool {
	r := Remaining(tier, kind, used)
	return r == QuotaUnlimited || r > 0
}
