package admission

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/cespare/xxhash/v2"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/tidwall/gjson"

	"github.com/clinicsync/gatekeeper/internal/dumper"
	"github.com/clinicsync/gatekeeper/internal/log"
	"github.com/clinicsync/gatekeeper/internal/objects"
	"github.com/clinicsync/gatekeeper/internal/pkg/xtime"
)

// RawRegistration is the inbound request as handed over by the API layer:
// the payload is opaque JSON plus request context.
type RawRegistration struct {
	TenantID   string          `json:"tenantID"`
	Source     string          `json:"source"`
	ReceivedAt int64           `json:"receivedAt,omitempty"`
	Payload    json.RawMessage `json:"payload"`
}

// completenessPaths are the payload paths that count toward the
// data-completeness ratio. Identity fields are required separately.
var completenessPaths = []string{
	"firstName",
	"lastName",
	"email",
	"phone",
	"dateOfBirth",
	"age",
	"location.class",
	"location.zip",
	"medicalHistory.conditions",
	"medicalHistory.allergies",
	"medicalHistory.medications",
	"consent.treatment",
}

// requiredIdentityPaths must be present or the request fails fast with
// MalformedInput. This is the only validation performed here; format checks
// belong to the API layer.
var requiredIdentityPaths = []string{"firstName", "lastName", "email"}

// FeatureService normalizes raw request payloads into immutable feature
// records. Pure except for the read-only tenant history lookup, which is
// cached per tenant in a bounded LRU.
type FeatureService struct {
	history      HistoryProvider
	historyCache *lru.Cache[string, objects.TenantHistorySummary]
}

func NewFeatureService(cfg Config, history HistoryProvider) (*FeatureService, error) {
	size := cfg.History.CacheSize
	if size <= 0 {
		size = 1024
	}

	cache, err := lru.New[string, objects.TenantHistorySummary](size)
	if err != nil {
		return nil, fmt.Errorf("history cache: %w", err)
	}

	return &FeatureService{history: history, historyCache: cache}, nil
}

// Extract builds the FeatureRecord for one registration. Returns
// MalformedInput if required identity fields are absent.
func (s *FeatureService) Extract(ctx context.Context, raw RawRegistration) (*objects.FeatureRecord, error) {
	if raw.TenantID == "" {
		return nil, NewMalformedInput("tenantID")
	}

	if !gjson.ValidBytes(raw.Payload) {
		dumper.DumpBytes(ctx, raw.Payload, "malformed_registration")

		return nil, NewMalformedInput("payload")
	}

	for _, path := range requiredIdentityPaths {
		if !gjson.GetBytes(raw.Payload, path).Exists() {
			return nil, NewMalformedInput(path)
		}
	}

	now := xtime.Now()

	rec := &objects.FeatureRecord{
		TenantID:    raw.TenantID,
		Source:      raw.Source,
		SubmittedAt: now,
		Weekday:     int(now.Weekday()),
		HourOfDay:   now.Hour(),
		Fingerprint: fmt.Sprintf("%016x", xxhash.Sum64(raw.Payload)),
	}

	rec.Age = extractAge(raw.Payload, now)
	rec.Location = extractLocation(raw.Payload)

	history := gjson.GetBytes(raw.Payload, "medicalHistory")
	rec.HasMedicalHistory = history.Get("conditions").Exists() && len(history.Get("conditions").Array()) > 0
	rec.HasAllergyRecord = history.Get("allergies").Exists()
	rec.HasMedicationList = history.Get("medications").Exists()

	present := 0
	for _, path := range completenessPaths {
		if gjson.GetBytes(raw.Payload, path).Exists() {
			present++
		}
	}

	rec.Completeness = float64(present) / float64(len(completenessPaths))
	rec.RiskTags = deriveRiskTags(rec, history)

	summary, err := s.tenantHistory(ctx, raw.TenantID)
	if err != nil {
		// History is a bonus signal; its absence degrades confidence, not
		// availability.
		log.Warn(ctx, "tenant history lookup failed", log.String("tenant_id", raw.TenantID), log.Cause(err))
	} else {
		rec.History = summary
	}

	return rec, nil
}

func (s *FeatureService) tenantHistory(ctx context.Context, tenantID string) (objects.TenantHistorySummary, error) {
	if summary, ok := s.historyCache.Get(tenantID); ok {
		return summary, nil
	}

	summary, err := s.history.GetSummary(ctx, tenantID)
	if err != nil {
		return objects.TenantHistorySummary{}, err
	}

	s.historyCache.Add(tenantID, summary)

	return summary, nil
}

func extractAge(payload []byte, now time.Time) int {
	if age := gjson.GetBytes(payload, "age"); age.Exists() {
		return int(age.Int())
	}

	if dob := gjson.GetBytes(payload, "dateOfBirth"); dob.Exists() {
		if t := dob.Time(); !t.IsZero() {
			age := now.Year() - t.Year()
			// Not yet had the birthday this year.
			if now.Month() < t.Month() || (now.Month() == t.Month() && now.Day() < t.Day()) {
				age--
			}

			return age
		}
	}

	return 0
}

func extractLocation(payload []byte) objects.LocationClass {
	switch objects.LocationClass(gjson.GetBytes(payload, "location.class").String()) {
	case objects.LocationLocal:
		return objects.LocationLocal
	case objects.LocationRegional:
		return objects.LocationRegional
	case objects.LocationRemote:
		return objects.LocationRemote
	default:
		return objects.LocationUnknown
	}
}

func deriveRiskTags(rec *objects.FeatureRecord, history gjson.Result) []objects.RiskTag {
	var tags []objects.RiskTag

	if rec.Age > 0 && rec.Age < 18 {
		tags = append(tags, objects.RiskTagMinor)
	}

	if rec.Age >= 75 {
		tags = append(tags, objects.RiskTagAdvancedAge)
	}

	if len(history.Get("conditions").Array()) >= 3 {
		tags = append(tags, objects.RiskTagComplexMedical)
	}

	if rec.Location == objects.LocationRemote || rec.Location == objects.LocationUnknown {
		tags = append(tags, objects.RiskTagOutOfArea)
	}

	if rec.Completeness < 0.5 {
		tags = append(tags, objects.RiskTagIncompleteHistory)
	}

	return tags
}
