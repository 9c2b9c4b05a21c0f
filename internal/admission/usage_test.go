package admission

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/clinicsync/gatekeeper/internal/objects"
	"github.com/clinicsync/gatekeeper/internal/pkg/xtime"
)

func usageFixture(t *testing.T) (*UsageService, *MemoryCounterStore, *captureSink) {
	t.Helper()

	cfg := DefaultConfig()
	counters := NewMemoryCounterStore()
	sink := newCaptureSink()

	entitlements, err := NewEntitlements(cfg)
	require.NoError(t, err)

	return NewUsageService(cfg, counters, entitlements, sink, nil), counters, sink
}

func testDecision(tenantID string) *objects.RoutingDecision {
	return &objects.RoutingDecision{
		DecisionID: "dec-" + tenantID,
		TenantID:   tenantID,
		Outcome:    objects.OutcomeAutonomousApproved,
		CreatedAt:  xtime.Now(),
	}
}

func testPeriod() xtime.Period {
	now := xtime.Now()

	return xtime.Period{Start: now.Add(-time.Hour), End: now.Add(time.Hour)}
}

func TestUsageCommit_AtMostOncePerDecision(t *testing.T) {
	svc, counters, _ := usageFixture(t)
	ctx := context.Background()
	period := testPeriod()
	decision := testDecision("tenant-1")

	require.NoError(t, svc.Commit(ctx, decision, objects.TierCore, period, []objects.Resource{objects.ResourceClients}))
	require.NoError(t, svc.Commit(ctx, decision, objects.TierCore, period, []objects.Resource{objects.ResourceClients}))

	key := CounterKey{TenantID: "tenant-1", Resource: objects.ResourceClients, PeriodStart: period.Start}
	n, err := counters.Get(ctx, key)
	require.NoError(t, err)
	require.EqualValues(t, 1, n)
}

func TestUsageCommit_OverLimitRollsBack(t *testing.T) {
	svc, counters, _ := usageFixture(t)
	ctx := context.Background()
	period := testPeriod()

	key := CounterKey{TenantID: "tenant-2", Resource: objects.ResourceClients, PeriodStart: period.Start}
	_, _, err := counters.Increment(ctx, key, 500, "seed", time.Hour)
	require.NoError(t, err)

	err = svc.Commit(ctx, testDecision("tenant-2"), objects.TierCore, period, []objects.Resource{objects.ResourceClients})
	require.Error(t, err)

	deny, ok := AsGateError(err)
	require.True(t, ok)
	require.Equal(t, KindUsageLimitExceeded, deny.Kind)
	require.Equal(t, objects.ResourceClients, deny.Resource)
	require.EqualValues(t, 500, deny.Current)
	require.EqualValues(t, 500, deny.Limit)

	// The compensating decrement restored the counter.
	n, err := counters.Get(ctx, key)
	require.NoError(t, err)
	require.EqualValues(t, 500, n)
}

func TestUsageCommit_ReplayAtLimitStaysNoOp(t *testing.T) {
	svc, counters, _ := usageFixture(t)
	ctx := context.Background()
	period := testPeriod()
	decision := testDecision("tenant-6")

	key := CounterKey{TenantID: "tenant-6", Resource: objects.ResourceClients, PeriodStart: period.Start}
	_, _, err := counters.Increment(ctx, key, 499, "seed", time.Hour)
	require.NoError(t, err)

	require.NoError(t, svc.Commit(ctx, decision, objects.TierCore, period, []objects.Resource{objects.ResourceClients}))

	// Push the counter past the limit behind the committed decision's back.
	_, _, err = counters.Increment(ctx, key, 1, "drift", time.Hour)
	require.NoError(t, err)

	// Replaying the committed decision must stay a no-op, not a denial.
	require.NoError(t, svc.Commit(ctx, decision, objects.TierCore, period, []objects.Resource{objects.ResourceClients}))

	n, err := counters.Get(ctx, key)
	require.NoError(t, err)
	require.EqualValues(t, 501, n)
}

func TestUsageCommit_UnlimitedTierNeverDenies(t *testing.T) {
	svc, counters, _ := usageFixture(t)
	ctx := context.Background()
	period := testPeriod()

	key := CounterKey{TenantID: "tenant-3", Resource: objects.ResourceClients, PeriodStart: period.Start}
	_, _, err := counters.Increment(ctx, key, 1_000_000, "seed", time.Hour)
	require.NoError(t, err)

	err = svc.Commit(ctx, testDecision("tenant-3"), objects.TierEnterprise, period, []objects.Resource{objects.ResourceClients})
	require.NoError(t, err)
}

func TestUsageCommit_WarningEmittedOncePerPeriod(t *testing.T) {
	svc, counters, sink := usageFixture(t)
	ctx := context.Background()
	period := testPeriod()

	// 80% of the CORE client limit is 400; start just below it.
	key := CounterKey{TenantID: "tenant-4", Resource: objects.ResourceClients, PeriodStart: period.Start}
	_, _, err := counters.Increment(ctx, key, 399, "seed", time.Hour)
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		decision := testDecision("tenant-4")
		decision.DecisionID = decision.DecisionID + string(rune('a'+i))

		require.NoError(t, svc.Commit(ctx, decision, objects.TierCore, period, []objects.Resource{objects.ResourceClients}))
	}

	warnings := sink.eventsOfType(EventUsageWarning)
	require.Len(t, warnings, 1)
	require.Equal(t, "tenant-4", warnings[0].TenantID)
	require.Equal(t, "clients", warnings[0].Payload["resource"])
	require.EqualValues(t, 400, warnings[0].Payload["current"])
	require.Equal(t, "199", warnings[0].Payload["monthlyPrice"])
}

func TestUsageCommit_UnknownTier(t *testing.T) {
	svc, _, _ := usageFixture(t)

	err := svc.Commit(context.Background(), testDecision("tenant-5"), objects.Tier("platinum"), testPeriod(), []objects.Resource{objects.ResourceClients})
	require.ErrorIs(t, err, ErrUnknownTier)
}
