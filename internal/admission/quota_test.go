package admission

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/clinicsync/gatekeeper/internal/objects"
)

func TestQuotaGate_Allowed(t *testing.T) {
	env, _ := newEnv(t)
	env.source.Put(activeSubscription("tenant-1", objects.TierCore))

	res, err := env.quota.Check(context.Background(), "tenant-1", "client_registration")
	require.NoError(t, err)
	require.True(t, res.Allowed)
	require.Nil(t, res.Deny)
	require.Equal(t, objects.TierCore, res.Tier)
	require.EqualValues(t, 500, res.Limits[objects.ResourceClients])
	require.Zero(t, res.Usage[objects.ResourceClients])
	require.False(t, res.Period.Start.IsZero())
}

func TestQuotaGate_NoSubscription(t *testing.T) {
	env, _ := newEnv(t)

	res, err := env.quota.Check(context.Background(), "tenant-missing", "client_registration")
	require.NoError(t, err)
	require.False(t, res.Allowed)
	require.Equal(t, KindNoActiveSubscription, res.Deny.Kind)
}

func TestQuotaGate_UnusableStatuses(t *testing.T) {
	env, _ := newEnv(t)

	for _, status := range []objects.SubscriptionStatus{objects.SubscriptionPastDue, objects.SubscriptionCanceled} {
		t.Run(string(status), func(t *testing.T) {
			sub := activeSubscription("tenant-"+string(status), objects.TierCore)
			sub.Status = status
			env.source.Put(sub)

			res, err := env.quota.Check(context.Background(), sub.TenantID, "client_registration")
			require.NoError(t, err)
			require.False(t, res.Allowed)
			require.Equal(t, KindNoActiveSubscription, res.Deny.Kind)
		})
	}
}

func TestQuotaGate_FeatureNotIncluded(t *testing.T) {
	env, _ := newEnv(t)
	env.source.Put(activeSubscription("tenant-2", objects.TierCore))

	res, err := env.quota.Check(context.Background(), "tenant-2", "custom_integrations")
	require.NoError(t, err)
	require.False(t, res.Allowed)
	require.Equal(t, KindFeatureNotIncluded, res.Deny.Kind)
	require.Equal(t, "custom_integrations", res.Deny.Feature)
}

func TestQuotaGate_LimitExceeded(t *testing.T) {
	env, _ := newEnv(t)
	env.source.Put(activeSubscription("tenant-3", objects.TierCore))
	fillUsage(t, env, "tenant-3", objects.ResourceClients, 500)

	res, err := env.quota.Check(context.Background(), "tenant-3", "client_registration")
	require.NoError(t, err)
	require.False(t, res.Allowed)
	require.Equal(t, KindUsageLimitExceeded, res.Deny.Kind)
	require.Equal(t, objects.ResourceClients, res.Deny.Resource)
	require.EqualValues(t, 500, res.Deny.Current)
	require.EqualValues(t, 500, res.Deny.Limit)
}

func TestQuotaGate_FirstViolationInDeterministicOrder(t *testing.T) {
	env, _ := newEnv(t)
	env.source.Put(activeSubscription("tenant-4", objects.TierCore))

	// Both limits exceeded; "assessments" sorts before "clients".
	fillUsage(t, env, "tenant-4", objects.ResourceAssessments, 1000)
	fillUsage(t, env, "tenant-4", objects.ResourceClients, 500)

	res, err := env.quota.Check(context.Background(), "tenant-4", "client_registration")
	require.NoError(t, err)
	require.False(t, res.Allowed)
	require.Equal(t, objects.ResourceAssessments, res.Deny.Resource)
}

func TestQuotaGate_UnlimitedEnterprise(t *testing.T) {
	env, _ := newEnv(t)
	env.source.Put(activeSubscription("tenant-5", objects.TierEnterprise))
	fillUsage(t, env, "tenant-5", objects.ResourceClients, 1_000_000)

	res, err := env.quota.Check(context.Background(), "tenant-5", "client_registration")
	require.NoError(t, err)
	require.True(t, res.Allowed)
}

func TestQuotaGate_UnknownTierIsInternalFault(t *testing.T) {
	env, _ := newEnv(t)

	sub := activeSubscription("tenant-6", objects.TierCore)
	sub.Tier = objects.Tier("legacy")
	env.source.Put(sub)

	_, err := env.quota.Check(context.Background(), "tenant-6", "client_registration")
	require.ErrorIs(t, err, ErrUnknownTier)
}

func TestQuotaGate_IsPureRead(t *testing.T) {
	env, _ := newEnv(t)
	env.source.Put(activeSubscription("tenant-7", objects.TierCore))

	for i := 0; i < 5; i++ {
		_, err := env.quota.Check(context.Background(), "tenant-7", "client_registration")
		require.NoError(t, err)
	}

	key := CounterKey{TenantID: "tenant-7", Resource: objects.ResourceClients, PeriodStart: currentPeriodStart(env, "tenant-7")}
	n, err := env.counters.Get(context.Background(), key)
	require.NoError(t, err)
	require.Zero(t, n)
}

func TestSubscriptionService_CachesWithinStalenessBound(t *testing.T) {
	env, _ := newEnv(t)
	env.source.Put(activeSubscription("tenant-8", objects.TierCore))

	sub, err := env.subscriptions.Lookup(context.Background(), "tenant-8")
	require.NoError(t, err)
	require.Equal(t, objects.TierCore, sub.Tier)

	// An upgrade is not visible until the cached entry expires.
	env.source.Put(activeSubscription("tenant-8", objects.TierEnterprise))

	sub, err = env.subscriptions.Lookup(context.Background(), "tenant-8")
	require.NoError(t, err)
	require.Equal(t, objects.TierCore, sub.Tier)
}
