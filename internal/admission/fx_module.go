package admission

import (
	"go.uber.org/fx"
)

// Module wires the admission pipeline. The application supplies Config, a
// SubscriptionSource, a CounterStore, an AuditStore, a HistoryProvider, a
// Sink and the shared executor.
var Module = fx.Module("admission",
	fx.Provide(NewEntitlements),
	fx.Provide(NewSubscriptionService),
	fx.Provide(NewFeatureService),
	fx.Provide(NewBiasService),
	fx.Provide(NewConfidenceService),
	fx.Provide(NewQuotaGateService),
	fx.Provide(NewUsageService),
	fx.Provide(NewAuditService),
	fx.Provide(NewAdmissionService),
)
