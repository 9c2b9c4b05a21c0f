package dependencies

import (
	"github.com/clinicsync/gatekeeper/conf"
	"github.com/clinicsync/gatekeeper/internal/admission"
)

// NewSubscriptionSource builds the billing collaborator. Deployments without
// a billing integration seed subscriptions statically from configuration.
func NewSubscriptionSource(config conf.Config) admission.SubscriptionSource {
	return admission.NewStaticSubscriptionSource(config.Tenants.Subscriptions...)
}

// NewHistoryProvider builds the historical-pattern collaborator, seeded from
// configuration.
func NewHistoryProvider(config conf.Config) admission.HistoryProvider {
	provider := admission.NewStaticHistoryProvider()

	for tenantID, summary := range config.Tenants.Histories {
		provider.Put(tenantID, summary)
	}

	return provider
}
