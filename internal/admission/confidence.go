package admission

import (
	"context"
	"fmt"
	"math"

	"github.com/clinicsync/gatekeeper/internal/log"
	"github.com/clinicsync/gatekeeper/internal/metrics"
	"github.com/clinicsync/gatekeeper/internal/objects"
	"github.com/clinicsync/gatekeeper/internal/pkg/xtime"
)

// ConfidenceService maps a FeatureRecord to a ConfidenceAssessment. It is a
// deliberate placeholder for a real model: downstream only requires a float
// plus a risk classification, so the estimator can be swapped without
// touching the routing engine.
type ConfidenceService struct {
	cfg        ConfidenceConfig
	thresholds ThresholdsConfig
	sink       Sink
}

func NewConfidenceService(cfg Config, sink Sink) *ConfidenceService {
	return &ConfidenceService{cfg: cfg.Confidence, thresholds: cfg.Thresholds, sink: sink}
}

// Estimate computes the calibrated confidence: the configured prior, adjusted
// by a data-completeness bonus, a per-risk-tag penalty and a tenant
// historical-accuracy bonus, clamped to the configured [min, max]. The lower
// bound keeps every request reviewable, the upper bound keeps every request
// overridable.
func (s *ConfidenceService) Estimate(ctx context.Context, rec *objects.FeatureRecord) objects.ConfidenceAssessment {
	if rec == nil {
		return s.failOpen(ctx, "", fmt.Errorf("nil feature record"))
	}

	confidence := s.cfg.Prior
	confidence += s.cfg.CompletenessWeight * (rec.Completeness - s.cfg.CompletenessPivot)
	confidence -= s.cfg.RiskPenalty * float64(len(rec.RiskTags))

	if rec.History.SampleCount >= s.cfg.MinHistorySamples {
		confidence += s.cfg.HistoryWeight * (rec.History.Accuracy - s.cfg.HistoryPivot)
	}

	if math.IsNaN(confidence) || math.IsInf(confidence, 0) {
		return s.failOpen(ctx, rec.TenantID, fmt.Errorf("non-finite confidence from prior=%v", s.cfg.Prior))
	}

	confidence = clamp(confidence, s.cfg.Min, s.cfg.Max)
	riskLevel := s.riskLevel(rec, confidence)

	return objects.ConfidenceAssessment{
		Confidence: confidence,
		Approve:    confidence >= s.thresholds.Autonomous,
		RiskLevel:  riskLevel,
		FollowUps:  followUpsFor(riskLevel),
	}
}

func (s *ConfidenceService) riskLevel(rec *objects.FeatureRecord, confidence float64) objects.RiskLevel {
	switch {
	case len(rec.RiskTags) >= 3 || confidence < s.thresholds.Supervised:
		return objects.RiskHigh
	case len(rec.RiskTags) == 2:
		return objects.RiskMedium
	default:
		return objects.RiskLow
	}
}

func followUpsFor(level objects.RiskLevel) []string {
	switch level {
	case objects.RiskHigh:
		return []string{"manual-chart-review", "verify-identity-documents"}
	case objects.RiskMedium:
		return []string{"confirm-contact-details"}
	default:
		return nil
	}
}

// failOpen returns the clamped floor with the Degraded marker: an estimator
// outage must never block registrations, but is never mistaken for a genuine
// estimate.
func (s *ConfidenceService) failOpen(ctx context.Context, tenantID string, err error) objects.ConfidenceAssessment {
	log.Error(ctx, "confidence estimation failed open", log.String("tenant_id", tenantID), log.Cause(err))
	metrics.RecordDegraded(ctx, "confidence")

	if s.sink != nil {
		s.sink.Publish(ctx, Event{
			Type:       EventDegradedSignal,
			TenantID:   tenantID,
			OccurredAt: xtime.Now(),
			Payload:    map[string]any{"signal": "confidence", "error": err.Error()},
		})
	}

	return objects.ConfidenceAssessment{
		Confidence: s.cfg.Min,
		Approve:    false,
		RiskLevel:  objects.RiskHigh,
		FollowUps:  followUpsFor(objects.RiskHigh),
		Degraded:   true,
	}
}
