package admission

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/clinicsync/gatekeeper/internal/objects"
	"github.com/clinicsync/gatekeeper/internal/pkg/xtime"
)

// QuotaCheckResult is the quota gate's answer for (tenant, feature).
type QuotaCheckResult struct {
	Allowed bool

	// Deny carries the structured denial when Allowed is false.
	Deny *GateError

	Tier   objects.Tier
	Limits map[objects.Resource]int64
	Usage  map[objects.Resource]int64
	Period xtime.Period
}

// QuotaGateService validates tenant subscription status, feature entitlement
// and current-period usage against tier limits. It is a pure read: usage is
// only mutated by the accumulator on approval, so rejected requests are never
// charged. Under concurrency the check is advisory; the accumulator's atomic
// post-increment is authoritative.
type QuotaGateService struct {
	subscriptions *SubscriptionService
	entitlements  *Entitlements
	counters      CounterStore
	location      *time.Location
}

func NewQuotaGateService(cfg Config, subscriptions *SubscriptionService, entitlements *Entitlements, counters CounterStore) *QuotaGateService {
	return &QuotaGateService{
		subscriptions: subscriptions,
		entitlements:  entitlements,
		counters:      counters,
		location:      cfg.Location(),
	}
}

// Check runs the gate for (tenant, feature).
func (s *QuotaGateService) Check(ctx context.Context, tenantID, featureName string) (QuotaCheckResult, error) {
	sub, err := s.subscriptions.Lookup(ctx, tenantID)
	if err != nil {
		if errors.Is(err, ErrSubscriptionNotFound) {
			return QuotaCheckResult{Deny: NewNoActiveSubscription()}, nil
		}

		return QuotaCheckResult{}, fmt.Errorf("subscription lookup: %w", err)
	}

	if !sub.Status.Usable() {
		return QuotaCheckResult{Deny: NewNoActiveSubscription()}, nil
	}

	tier, ok := s.entitlements.ForTier(sub.Tier)
	if !ok {
		return QuotaCheckResult{}, fmt.Errorf("%w: %q", ErrUnknownTier, sub.Tier)
	}

	if !tier.HasFeature(featureName) {
		return QuotaCheckResult{
			Deny: NewFeatureNotIncluded(featureName),
			Tier: sub.Tier,
		}, nil
	}

	period := s.billingPeriod(sub)

	usage := make(map[objects.Resource]int64, len(tier.Resources()))

	// Deterministic resource order: the first violated limit is reported
	// even when several are exceeded at once.
	for _, resource := range tier.Resources() {
		current, err := s.counters.Get(ctx, CounterKey{
			TenantID:    tenantID,
			Resource:    resource,
			PeriodStart: period.Start,
		})
		if err != nil {
			return QuotaCheckResult{}, fmt.Errorf("usage read for %s: %w", resource, err)
		}

		usage[resource] = current

		limit := tier.Limit(resource)
		if limit == objects.UnlimitedLimit {
			continue
		}

		if current >= limit {
			return QuotaCheckResult{
				Deny:   NewUsageLimitExceeded(resource, current, limit),
				Tier:   sub.Tier,
				Limits: tier.Limits(),
				Usage:  usage,
				Period: period,
			}, nil
		}
	}

	return QuotaCheckResult{
		Allowed: true,
		Tier:    sub.Tier,
		Limits:  tier.Limits(),
		Usage:   usage,
		Period:  period,
	}, nil
}

// billingPeriod prefers the billing collaborator's period bounds; when the
// subscription carries none (trials created moments ago), it falls back to
// the calendar month.
func (s *QuotaGateService) billingPeriod(sub *objects.TenantSubscription) xtime.Period {
	if !sub.CurrentPeriodStart.IsZero() && sub.CurrentPeriodEnd.After(sub.CurrentPeriodStart) {
		return xtime.Period{Start: sub.CurrentPeriodStart.UTC(), End: sub.CurrentPeriodEnd.UTC()}
	}

	return xtime.CurrentMonthlyPeriod(s.location)
}
