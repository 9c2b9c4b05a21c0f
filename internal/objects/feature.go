package objects

import "time"

// Resource names a countable entitlement (clients, assessments, ...). Usage
// counters and tier limits are keyed by resource.
type Resource string

const (
	ResourceClients     Resource = "clients"
	ResourceAssessments Resource = "assessments"
	ResourceCampaigns   Resource = "campaigns"
)

// UnlimitedLimit marks a resource without a finite limit.
const UnlimitedLimit int64 = -1

// RiskTag labels a risk factor detected on an inbound registration.
type RiskTag string

const (
	RiskTagIncompleteHistory RiskTag = "incomplete_history"
	RiskTagMinor             RiskTag = "minor"
	RiskTagAdvancedAge       RiskTag = "advanced_age"
	RiskTagComplexMedical    RiskTag = "complex_medical"
	RiskTagOutOfArea         RiskTag = "out_of_area"
	RiskTagDuplicateSuspect  RiskTag = "duplicate_suspect"
)

// LocationClass is the declared-location classification of the applicant.
type LocationClass string

const (
	LocationLocal    LocationClass = "local"
	LocationRegional LocationClass = "regional"
	LocationRemote   LocationClass = "remote"
	LocationUnknown  LocationClass = "unknown"
)

// TenantHistorySummary summarizes a tenant's historical routing outcomes. It
// feeds the confidence estimator's history bonus.
type TenantHistorySummary struct {
	Accuracy       float64 `json:"accuracy"`
	AutonomousRate float64 `json:"autonomousRate"`
	SampleCount    int64   `json:"sampleCount"`
}

// FeatureRecord is the normalized, immutable view of one inbound registration.
// It is created once by the feature extractor and consumed read-only by the
// signal providers; it is discarded after the routing decision is produced.
type FeatureRecord struct {
	TenantID string `json:"tenantID"`

	Age               int           `json:"age"`
	Location          LocationClass `json:"location"`
	HasMedicalHistory bool          `json:"hasMedicalHistory"`
	HasAllergyRecord  bool          `json:"hasAllergyRecord"`
	HasMedicationList bool          `json:"hasMedicationList"`

	// Completeness is the data-completeness ratio in [0, 1].
	Completeness float64   `json:"completeness"`
	RiskTags     []RiskTag `json:"riskTags,omitempty"`

	Source      string    `json:"source"`
	SubmittedAt time.Time `json:"submittedAt"`
	Weekday     int       `json:"weekday"`
	HourOfDay   int       `json:"hourOfDay"`

	// Fingerprint is an xxhash of the raw payload, for audit correlation.
	Fingerprint string `json:"fingerprint"`

	History TenantHistorySummary `json:"history"`
}

// HasRiskTag reports whether the record carries the given tag.
func (r *FeatureRecord) HasRiskTag(tag RiskTag) bool {
	for _, t := range r.RiskTags {
		if t == tag {
			return true
		}
	}

	return false
}
