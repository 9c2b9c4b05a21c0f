package admission

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/clinicsync/gatekeeper/internal/objects"
)

// Config is the admission pipeline configuration. Every policy value the
// components consume lives here; component code never hard-codes thresholds,
// weights or tier tables.
type Config struct {
	// Deadline is the end-to-end admission target. Exceeding it is a
	// degraded-performance event, not a failure; the decision is still
	// returned.
	Deadline time.Duration `conf:"deadline" yaml:"deadline" json:"deadline"`

	// SubscriptionStaleness bounds how old a cached subscription may be
	// before it is re-validated against the billing source of truth.
	SubscriptionStaleness time.Duration `conf:"subscription_staleness" yaml:"subscription_staleness" json:"subscription_staleness"`

	// Timezone is the billing-period timezone, IANA name. Empty means UTC.
	Timezone string `conf:"timezone" yaml:"timezone" json:"timezone"`

	Thresholds ThresholdsConfig `conf:"thresholds" yaml:"thresholds" json:"thresholds"`
	Bias       BiasConfig       `conf:"bias" yaml:"bias" json:"bias"`
	Confidence ConfidenceConfig `conf:"confidence" yaml:"confidence" json:"confidence"`
	Usage      UsageConfig      `conf:"usage" yaml:"usage" json:"usage"`
	History    HistoryConfig    `conf:"history" yaml:"history" json:"history"`
	Tiers      []TierConfig     `conf:"tiers" yaml:"tiers" json:"tiers"`

	// FeatureResources maps a feature name to the resources an approved
	// request for it consumes. Features absent from the map consume nothing.
	FeatureResources map[string][]string `conf:"feature_resources" yaml:"feature_resources" json:"feature_resources"`
}

// ConsumedResources returns the resources an approval for the feature commits.
func (c Config) ConsumedResources(feature string) []objects.Resource {
	names := c.FeatureResources[feature]
	out := make([]objects.Resource, len(names))

	for i, name := range names {
		out[i] = objects.Resource(name)
	}

	return out
}

// ThresholdsConfig holds the confidence routing boundaries. The autonomous
// value is empirically tuned in production and changes without code changes;
// tenants may override it.
type ThresholdsConfig struct {
	Autonomous float64 `conf:"autonomous" yaml:"autonomous" json:"autonomous"`
	Supervised float64 `conf:"supervised" yaml:"supervised" json:"supervised"`

	// PerTenant overrides the autonomous threshold for individual tenants.
	PerTenant map[string]float64 `conf:"per_tenant" yaml:"per_tenant" json:"per_tenant"`
}

// AutonomousFor returns the autonomous threshold for a tenant.
func (c ThresholdsConfig) AutonomousFor(tenantID string) float64 {
	if v, ok := c.PerTenant[tenantID]; ok {
		return v
	}

	return c.Autonomous
}

// BiasFactorConfig is one named fairness check. Rule is an expr-lang
// expression over the feature record; a triggered rule contributes Weight to
// the bias score. Fairness policy is data, not code.
type BiasFactorConfig struct {
	Name   string  `conf:"name" yaml:"name" json:"name"`
	Weight float64 `conf:"weight" yaml:"weight" json:"weight"`
	Rule   string  `conf:"rule" yaml:"rule" json:"rule"`
}

type BiasConfig struct {
	Factors []BiasFactorConfig `conf:"factors" yaml:"factors" json:"factors"`

	// PotentialThreshold and DetectedThreshold split the score into
	// SAFE / POTENTIAL_BIAS / BIAS_DETECTED.
	PotentialThreshold float64 `conf:"potential_threshold" yaml:"potential_threshold" json:"potential_threshold"`
	DetectedThreshold  float64 `conf:"detected_threshold" yaml:"detected_threshold" json:"detected_threshold"`
}

type ConfidenceConfig struct {
	Prior float64 `conf:"prior" yaml:"prior" json:"prior"`

	// CompletenessWeight scales the data-completeness bonus around the pivot.
	CompletenessWeight float64 `conf:"completeness_weight" yaml:"completeness_weight" json:"completeness_weight"`
	CompletenessPivot  float64 `conf:"completeness_pivot" yaml:"completeness_pivot" json:"completeness_pivot"`

	// RiskPenalty is subtracted once per risk tag.
	RiskPenalty float64 `conf:"risk_penalty" yaml:"risk_penalty" json:"risk_penalty"`

	// HistoryWeight scales the tenant historical-accuracy bonus; the bonus
	// only applies once the tenant has MinHistorySamples decisions.
	HistoryWeight     float64 `conf:"history_weight" yaml:"history_weight" json:"history_weight"`
	HistoryPivot      float64 `conf:"history_pivot" yaml:"history_pivot" json:"history_pivot"`
	MinHistorySamples int64   `conf:"min_history_samples" yaml:"min_history_samples" json:"min_history_samples"`

	// Min and Max clamp the result: never impossible, never certain.
	Min float64 `conf:"min" yaml:"min" json:"min"`
	Max float64 `conf:"max" yaml:"max" json:"max"`
}

type UsageConfig struct {
	// WarningRatio of a finite limit at which a usage-warning event fires,
	// at most once per period per resource.
	WarningRatio float64 `conf:"warning_ratio" yaml:"warning_ratio" json:"warning_ratio"`
}

type HistoryConfig struct {
	// CacheSize bounds the per-process LRU of tenant history summaries.
	CacheSize int `conf:"cache_size" yaml:"cache_size" json:"cache_size"`
}

// TierConfig declares one subscription tier: its feature set, its per-resource
// limits (-1 = unlimited) and its monthly price for reporting.
type TierConfig struct {
	Name         objects.Tier     `conf:"name" yaml:"name" json:"name"`
	Features     []string         `conf:"features" yaml:"features" json:"features"`
	Limits       map[string]int64 `conf:"limits" yaml:"limits" json:"limits"`
	MonthlyPrice decimal.Decimal  `conf:"monthly_price" yaml:"monthly_price" json:"monthly_price"`
}

// DefaultConfig returns the production-validated defaults. Deployments
// override via the configuration file; tests construct their own.
func DefaultConfig() Config {
	return Config{
		Deadline:              100 * time.Millisecond,
		SubscriptionStaleness: 5 * time.Minute,
		Thresholds: ThresholdsConfig{
			Autonomous: 0.808,
			Supervised: 0.75,
		},
		Bias: BiasConfig{
			PotentialThreshold: 0.1,
			DetectedThreshold:  0.3,
			Factors: []BiasFactorConfig{
				{Name: "age_band", Weight: 0.15, Rule: `age > 0 && (age < 18 || age >= 75)`},
				{Name: "location_class", Weight: 0.10, Rule: `location == "remote" || location == "unknown"`},
				{Name: "medical_complexity", Weight: 0.15, Rule: `"complex_medical" in riskTags`},
			},
		},
		Confidence: ConfidenceConfig{
			Prior:              0.85,
			CompletenessWeight: 0.10,
			CompletenessPivot:  0.5,
			RiskPenalty:        0.03,
			HistoryWeight:      0.05,
			HistoryPivot:       0.8,
			MinHistorySamples:  50,
			Min:                0.50,
			Max:                0.99,
		},
		Usage: UsageConfig{
			WarningRatio: 0.8,
		},
		History: HistoryConfig{
			CacheSize: 1024,
		},
		FeatureResources: map[string][]string{
			"client_registration": {string(objects.ResourceClients)},
			"appointment_booking": {string(objects.ResourceAssessments)},
			"campaign_builder":    {string(objects.ResourceCampaigns)},
		},
		Tiers: []TierConfig{
			{
				Name:     objects.TierCore,
				Features: []string{"client_registration", "appointment_booking", "basic_reporting"},
				Limits: map[string]int64{
					string(objects.ResourceClients):     500,
					string(objects.ResourceAssessments): 1000,
					string(objects.ResourceCampaigns):   5,
				},
				MonthlyPrice: decimal.NewFromInt(199),
			},
			{
				Name:     objects.TierProfessional,
				Features: []string{"client_registration", "appointment_booking", "basic_reporting", "autonomous_routing", "campaign_builder"},
				Limits: map[string]int64{
					string(objects.ResourceClients):     2500,
					string(objects.ResourceAssessments): 10000,
					string(objects.ResourceCampaigns):   50,
				},
				MonthlyPrice: decimal.NewFromInt(499),
			},
			{
				Name:     objects.TierEnterprise,
				Features: []string{"client_registration", "appointment_booking", "basic_reporting", "autonomous_routing", "campaign_builder", "priority_support", "custom_integrations"},
				Limits: map[string]int64{
					string(objects.ResourceClients):     objects.UnlimitedLimit,
					string(objects.ResourceAssessments): objects.UnlimitedLimit,
					string(objects.ResourceCampaigns):   objects.UnlimitedLimit,
				},
				MonthlyPrice: decimal.NewFromInt(1299),
			},
		},
	}
}

// Location resolves the configured billing timezone.
func (c Config) Location() *time.Location {
	if c.Timezone == "" {
		return time.UTC
	}

	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}

	return loc
}
