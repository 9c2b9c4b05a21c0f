package admission

import (
	"context"
	"fmt"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
	"github.com/samber/lo"

	"github.com/clinicsync/gatekeeper/internal/log"
	"github.com/clinicsync/gatekeeper/internal/metrics"
	"github.com/clinicsync/gatekeeper/internal/objects"
	"github.com/clinicsync/gatekeeper/internal/pkg/xtime"
)

// biasFactor is one compiled fairness check.
type biasFactor struct {
	name    string
	weight  float64
	program *vm.Program
}

// BiasService produces a BiasAssessment from a FeatureRecord using an
// additive scoring policy over configured factor rules. Rules and weights are
// data: fairness policy changes independently of code.
//
// The service fails OPEN: a faulting evaluation reports SAFE with score 0 and
// the Degraded marker set, so a bias-check outage never blocks registrations
// but stays distinguishable in the audit trail.
type BiasService struct {
	factors            []biasFactor
	potentialThreshold float64
	detectedThreshold  float64
	sink               Sink
}

func NewBiasService(cfg Config, sink Sink) (*BiasService, error) {
	factors := make([]biasFactor, 0, len(cfg.Bias.Factors))

	for _, fc := range cfg.Bias.Factors {
		if fc.Weight < 0 || fc.Weight > 1 {
			return nil, fmt.Errorf("bias factor %q: weight %v out of [0,1]", fc.Name, fc.Weight)
		}

		program, err := expr.Compile(fc.Rule, expr.Env(biasEnv(nil)), expr.AsBool())
		if err != nil {
			return nil, fmt.Errorf("bias factor %q: compile rule: %w", fc.Name, err)
		}

		factors = append(factors, biasFactor{name: fc.Name, weight: fc.Weight, program: program})
	}

	return &BiasService{
		factors:            factors,
		potentialThreshold: cfg.Bias.PotentialThreshold,
		detectedThreshold:  cfg.Bias.DetectedThreshold,
		sink:               sink,
	}, nil
}

func biasEnv(rec *objects.FeatureRecord) map[string]any {
	env := map[string]any{
		"age":               0,
		"location":          "",
		"completeness":      0.0,
		"riskTags":          []string{},
		"hasMedicalHistory": false,
		"source":            "",
	}

	if rec != nil {
		env["age"] = rec.Age
		env["location"] = string(rec.Location)
		env["completeness"] = rec.Completeness
		env["riskTags"] = lo.Map(rec.RiskTags, func(t objects.RiskTag, _ int) string { return string(t) })
		env["hasMedicalHistory"] = rec.HasMedicalHistory
		env["source"] = rec.Source
	}

	return env
}

// Evaluate scores the record against every configured factor. The sum of
// triggered weights is clamped to [0, 1].
func (s *BiasService) Evaluate(ctx context.Context, rec *objects.FeatureRecord) objects.BiasAssessment {
	if rec == nil {
		return s.failOpen(ctx, "", fmt.Errorf("nil feature record"))
	}

	env := biasEnv(rec)

	var (
		score   float64
		matched []string
	)

	for _, factor := range s.factors {
		out, err := expr.Run(factor.program, env)
		if err != nil {
			return s.failOpen(ctx, rec.TenantID, fmt.Errorf("factor %q: %w", factor.name, err))
		}

		triggered, ok := out.(bool)
		if !ok {
			return s.failOpen(ctx, rec.TenantID, fmt.Errorf("factor %q: non-boolean result %T", factor.name, out))
		}

		if triggered {
			score += factor.weight
			matched = append(matched, factor.name)
		}
	}

	score = clamp(score, 0, 1)

	return objects.BiasAssessment{
		Score:   score,
		Status:  s.classify(score),
		Factors: matched,
	}
}

func (s *BiasService) classify(score float64) objects.BiasStatus {
	switch {
	case score > s.detectedThreshold:
		return objects.BiasDetected
	case score > s.potentialThreshold:
		return objects.BiasPotential
	default:
		return objects.BiasSafe
	}
}

func (s *BiasService) failOpen(ctx context.Context, tenantID string, err error) objects.BiasAssessment {
	log.Error(ctx, "bias evaluation failed open", log.String("tenant_id", tenantID), log.Cause(err))
	metrics.RecordDegraded(ctx, "bias")

	if s.sink != nil {
		s.sink.Publish(ctx, Event{
			Type:       EventDegradedSignal,
			TenantID:   tenantID,
			OccurredAt: xtime.Now(),
			Payload:    map[string]any{"signal": "bias", "error": err.Error()},
		})
	}

	return objects.BiasAssessment{
		Score:    0,
		Status:   objects.BiasSafe,
		Degraded: true,
	}
}

func clamp(v, lower, upper float64) float64 {
	if v < lower {
		return lower
	}

	if v > upper {
		return upper
	}

	return v
}
