package admission

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/zhenzou/executors"

	"github.com/clinicsync/gatekeeper/internal/log"
	"github.com/clinicsync/gatekeeper/internal/objects"
	"github.com/clinicsync/gatekeeper/internal/pkg/xcontext"
	"github.com/clinicsync/gatekeeper/internal/pkg/xtime"
)

// UsageService is the usage accumulator: on autonomous approval it atomically
// increments the tenant's per-resource counters for the current period.
// At-most-once per decision: the counter store's idempotency key is the
// decision ID, so replaying a decision is a no-op.
type UsageService struct {
	counters     CounterStore
	entitlements *Entitlements
	sink         Sink
	executor     executors.ScheduledExecutor
	warningRatio float64
}

func NewUsageService(cfg Config, counters CounterStore, entitlements *Entitlements, sink Sink, executor executors.ScheduledExecutor) *UsageService {
	ratio := cfg.Usage.WarningRatio
	if ratio <= 0 || ratio > 1 {
		ratio = 0.8
	}

	return &UsageService{
		counters:     counters,
		entitlements: entitlements,
		sink:         sink,
		executor:     executor,
		warningRatio: ratio,
	}
}

// Commit consumes the given resources for an approved decision. The
// post-increment value is the authoritative limit enforcement: if it exceeds
// a finite limit the increment is rolled back (compensating decrement) and a
// UsageLimitExceeded gate error is returned, converting the decision to
// Rejected. Two concurrent approvals racing past a limit cannot both succeed.
func (s *UsageService) Commit(ctx context.Context, decision *objects.RoutingDecision, tier objects.Tier, period xtime.Period, resources []objects.Resource) error {
	entitlements, ok := s.entitlements.ForTier(tier)
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownTier, tier)
	}

	ttl := period.Remaining(xtime.Now())
	if ttl <= 0 {
		ttl = time.Minute
	}

	committed := make([]CounterKey, 0, len(resources))

	for _, resource := range resources {
		key := CounterKey{
			TenantID:    decision.TenantID,
			Resource:    resource,
			PeriodStart: period.Start,
		}

		idempotencyKey := fmt.Sprintf("%s:%s", decision.DecisionID, resource)

		value, applied, err := s.counters.Increment(ctx, key, 1, idempotencyKey, ttl)
		if err != nil {
			s.rollback(ctx, committed)
			return fmt.Errorf("usage increment for %s: %w", resource, err)
		}

		if applied {
			committed = append(committed, key)
		}

		limit := entitlements.Limit(resource)
		if applied && limit != objects.UnlimitedLimit && value > limit {
			// Concurrency conflict: the advisory pre-check passed but the
			// authoritative increment went over. Compensate and deny with
			// the post-compensation usage.
			s.rollback(ctx, committed)
			return NewUsageLimitExceeded(resource, value-1, limit)
		}

		if applied && limit != objects.UnlimitedLimit {
			s.maybeWarn(ctx, decision.TenantID, resource, value, limit, entitlements, period, ttl)
		}
	}

	s.projectAsync(ctx, decision, resources)

	return nil
}

func (s *UsageService) rollback(ctx context.Context, committed []CounterKey) {
	for _, key := range committed {
		if _, err := s.counters.Decrement(ctx, key, 1); err != nil {
			log.Error(ctx, "usage rollback failed",
				log.String("tenant_id", key.TenantID),
				log.String("resource", string(key.Resource)),
				log.Cause(err),
			)
		}
	}
}

// maybeWarn emits the usage-warning event the first time the counter crosses
// the warning ratio of a finite limit, at most once per period per resource.
func (s *UsageService) maybeWarn(ctx context.Context, tenantID string, resource objects.Resource, value, limit int64, entitlements *TierEntitlements, period xtime.Period, ttl time.Duration) {
	threshold := int64(math.Ceil(s.warningRatio * float64(limit)))
	if value < threshold {
		return
	}

	markKey := fmt.Sprintf("warn:%s:%s:%d", tenantID, resource, period.Start.Unix())

	first, err := s.counters.MarkOnce(ctx, markKey, ttl)
	if err != nil {
		log.Warn(ctx, "usage warning mark failed", log.String("tenant_id", tenantID), log.Cause(err))
		return
	}

	if !first {
		return
	}

	s.sink.Publish(ctx, Event{
		Type:       EventUsageWarning,
		TenantID:   tenantID,
		OccurredAt: xtime.Now(),
		Payload: map[string]any{
			"resource":     string(resource),
			"current":      value,
			"limit":        limit,
			"tier":         string(entitlements.Tier),
			"monthlyPrice": entitlements.MonthlyPrice.String(),
			"periodEnd":    period.End,
		},
	})
}

// projectAsync publishes the eventually-consistent usage projection for
// reporting. The relational copy is never used for limit decisions.
func (s *UsageService) projectAsync(ctx context.Context, decision *objects.RoutingDecision, resources []objects.Resource) {
	event := Event{
		Type:       EventUsageProjection,
		TenantID:   decision.TenantID,
		OccurredAt: xtime.Now(),
		Payload: map[string]any{
			"decisionID": decision.DecisionID,
			"resources":  resourceNames(resources),
		},
	}

	if s.executor == nil {
		s.sink.Publish(ctx, event)
		return
	}

	detached, cancel := xcontext.DetachWithTimeout(ctx, 5*time.Second)

	err := s.executor.Execute(executors.RunnableFunc(func(context.Context) {
		defer cancel()
		s.sink.Publish(detached, event)
	}))
	if err != nil {
		cancel()
		log.Warn(ctx, "usage projection rejected by executor", log.Cause(err))
	}
}

func resourceNames(resources []objects.Resource) []string {
	names := make([]string, len(resources))
	for i, r := range resources {
		names[i] = string(r)
	}

	return names
}
