package admission

import (
	"fmt"
	"sort"

	"github.com/samber/lo"
	"github.com/shopspring/decimal"

	"github.com/clinicsync/gatekeeper/internal/objects"
)

// TierEntitlements is the immutable entitlement table for one tier: its
// feature set, its per-resource limits and a deterministic resource order so
// limit violations are reported stably.
type TierEntitlements struct {
	Tier         objects.Tier
	MonthlyPrice decimal.Decimal

	features  map[string]struct{}
	limits    map[objects.Resource]int64
	resources []objects.Resource
}

// HasFeature reports whether the tier includes the named feature.
func (t *TierEntitlements) HasFeature(name string) bool {
	_, ok := t.features[name]
	return ok
}

// Limit returns the limit for a resource. Resources absent from the table are
// unlimited.
func (t *TierEntitlements) Limit(resource objects.Resource) int64 {
	if limit, ok := t.limits[resource]; ok {
		return limit
	}

	return objects.UnlimitedLimit
}

// Resources returns the tier's resources in deterministic (sorted) order.
func (t *TierEntitlements) Resources() []objects.Resource {
	return t.resources
}

// Limits returns a copy of the limit table.
func (t *TierEntitlements) Limits() map[objects.Resource]int64 {
	out := make(map[objects.Resource]int64, len(t.limits))
	for k, v := range t.limits {
		out[k] = v
	}

	return out
}

// Entitlements holds every tier's entitlement table. Built once at process
// start from configuration and passed by reference into each component; no
// mutable singleton state.
type Entitlements struct {
	tiers map[objects.Tier]*TierEntitlements
}

func NewEntitlements(cfg Config) (*Entitlements, error) {
	if len(cfg.Tiers) == 0 {
		return nil, fmt.Errorf("no tiers configured")
	}

	tiers := make(map[objects.Tier]*TierEntitlements, len(cfg.Tiers))

	for _, tc := range cfg.Tiers {
		if !tc.Name.Valid() {
			return nil, fmt.Errorf("invalid tier name %q", tc.Name)
		}

		if _, dup := tiers[tc.Name]; dup {
			return nil, fmt.Errorf("duplicate tier %q", tc.Name)
		}

		limits := make(map[objects.Resource]int64, len(tc.Limits))
		for name, limit := range tc.Limits {
			if limit < 0 && limit != objects.UnlimitedLimit {
				return nil, fmt.Errorf("tier %q resource %q: invalid limit %d", tc.Name, name, limit)
			}

			limits[objects.Resource(name)] = limit
		}

		resources := lo.Keys(limits)
		sort.Slice(resources, func(i, j int) bool { return resources[i] < resources[j] })

		tiers[tc.Name] = &TierEntitlements{
			Tier:         tc.Name,
			MonthlyPrice: tc.MonthlyPrice,
			features:     lo.SliceToMap(tc.Features, func(f string) (string, struct{}) { return f, struct{}{} }),
			limits:       limits,
			resources:    resources,
		}
	}

	return &Entitlements{tiers: tiers}, nil
}

// ForTier returns the entitlement table for a tier.
func (e *Entitlements) ForTier(tier objects.Tier) (*TierEntitlements, bool) {
	t, ok := e.tiers[tier]
	return t, ok
}
