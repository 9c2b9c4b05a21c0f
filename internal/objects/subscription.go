package objects

import "time"

// Tier is a named subscription plan bundling a feature set and usage limits.
type Tier string

const (
	TierCore         Tier = "core"
	TierProfessional Tier = "professional"
	TierEnterprise   Tier = "enterprise"
)

func (t Tier) Valid() bool {
	switch t {
	case TierCore, TierProfessional, TierEnterprise:
		return true
	default:
		return false
	}
}

// SubscriptionStatus mirrors the billing collaborator's subscription states.
type SubscriptionStatus string

const (
	SubscriptionActive   SubscriptionStatus = "active"
	SubscriptionPastDue  SubscriptionStatus = "past_due"
	SubscriptionCanceled SubscriptionStatus = "canceled"
	SubscriptionTrialing SubscriptionStatus = "trialing"
)

// Usable reports whether the subscription grants access. PAST_DUE is treated
// as no active subscription.
func (s SubscriptionStatus) Usable() bool {
	return s == SubscriptionActive || s == SubscriptionTrialing
}

// TenantSubscription is the billing collaborator's view of a tenant. The quota
// gate holds a read-through cached copy bounded by the configured staleness
// window; the billing service remains the source of truth.
type TenantSubscription struct {
	TenantID           string             `json:"tenantID"`
	Tier               Tier               `json:"tier"`
	Status             SubscriptionStatus `json:"status"`
	CurrentPeriodStart time.Time          `json:"currentPeriodStart"`
	CurrentPeriodEnd   time.Time          `json:"currentPeriodEnd"`
}
