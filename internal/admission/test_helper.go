package admission

import (
	"github.com/zhenzou/executors"
)

// testEnv bundles a fully wired in-memory pipeline for tests.
type testEnv struct {
	cfg           Config
	source        *StaticSubscriptionSource
	history       *StaticHistoryProvider
	counters      *MemoryCounterStore
	auditStore    *MemoryAuditStore
	sink          Sink
	admission     *AdmissionService
	quota         *QuotaGateService
	usage         *UsageService
	audit         *AuditService
	subscriptions *SubscriptionService
}

// newTestEnv wires the full pipeline against in-memory stores. Callers
// mutate the returned collaborators to set up scenarios.
func newTestEnv(cfg Config, sink Sink) (*testEnv, error) {
	source := NewStaticSubscriptionSource()
	history := NewStaticHistoryProvider()
	counters := NewMemoryCounterStore()
	auditStore := NewMemoryAuditStore()

	entitlements, err := NewEntitlements(cfg)
	if err != nil {
		return nil, err
	}

	features, err := NewFeatureService(cfg, history)
	if err != nil {
		return nil, err
	}

	bias, err := NewBiasService(cfg, sink)
	if err != nil {
		return nil, err
	}

	subscriptions := NewSubscriptionService(cfg, source)
	confidence := NewConfidenceService(cfg, sink)
	quota := NewQuotaGateService(cfg, subscriptions, entitlements, counters)
	usage := NewUsageService(cfg, counters, entitlements, sink, executors.NewPoolScheduleExecutor(executors.WithMaxConcurrent(1)))
	audit := NewAuditService(auditStore, sink)
	admission := NewAdmissionService(cfg, features, bias, confidence, quota, usage, audit, sink)

	return &testEnv{
		cfg:           cfg,
		source:        source,
		history:       history,
		counters:      counters,
		auditStore:    auditStore,
		sink:          sink,
		admission:     admission,
		quota:         quota,
		usage:         usage,
		audit:         audit,
		subscriptions: subscriptions,
	}, nil
}
