package admission

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/clinicsync/gatekeeper/internal/contexts"
	"github.com/clinicsync/gatekeeper/internal/log"
	"github.com/clinicsync/gatekeeper/internal/metrics"
	"github.com/clinicsync/gatekeeper/internal/objects"
	"github.com/clinicsync/gatekeeper/internal/pkg/xtime"
)

// AdmitRequest is one admission evaluation: a tenant asking to execute a
// feature with a raw registration payload.
type AdmitRequest struct {
	TenantID    string
	FeatureName string
	Source      string
	Payload     json.RawMessage
}

// AdmitResult carries the terminal decision. Deny is set alongside a
// Rejected outcome with the structured entitlement denial.
type AdmitResult struct {
	Decision *objects.RoutingDecision
	Deny     *GateError
}

// AdmissionService orchestrates one admission cycle: the quota gate runs
// concurrently with feature extraction, which fans out to the bias evaluator
// and confidence estimator; the decision engine joins all three and applies
// the outcome precedence. Gate denial wins over everything, a detected bias
// wins over raw confidence.
type AdmissionService struct {
	cfg        Config
	features   *FeatureService
	bias       *BiasService
	confidence *ConfidenceService
	quota      *QuotaGateService
	usage      *UsageService
	audit      *AuditService
	sink       Sink
}

func NewAdmissionService(
	cfg Config,
	features *FeatureService,
	bias *BiasService,
	confidence *ConfidenceService,
	quota *QuotaGateService,
	usage *UsageService,
	audit *AuditService,
	sink Sink,
) *AdmissionService {
	return &AdmissionService{
		cfg:        cfg,
		features:   features,
		bias:       bias,
		confidence: confidence,
		quota:      quota,
		usage:      usage,
		audit:      audit,
		sink:       sink,
	}
}

// Admit evaluates one registration and returns the terminal routing decision.
//
// The Go error return is reserved for malformed input and internal faults;
// entitlement denials come back as a Rejected decision with Deny set, so the
// caller always has an auditable decision for them.
//
// The caller's deadline classifies performance but never aborts the
// evaluation: a decision that is computed late is still returned, with a
// degraded-performance event published.
func (s *AdmissionService) Admit(ctx context.Context, req AdmitRequest) (*AdmitResult, error) {
	if req.TenantID == "" {
		return nil, NewMalformedInput("tenantID")
	}

	if req.FeatureName == "" {
		return nil, NewMalformedInput("featureName")
	}

	decisionID := uuid.NewString()
	ctx = contexts.WithDecisionID(contexts.WithTenantID(ctx, req.TenantID), decisionID)

	if req.Source != "" {
		ctx = contexts.WithSource(ctx, req.Source)
	}

	started := xtime.Now()

	// The admission deadline must not cancel in-flight work, so the
	// pipeline runs on a context stripped of the caller's cancellation.
	workCtx := context.WithoutCancel(ctx)

	var (
		quotaRes QuotaCheckResult
		record   *objects.FeatureRecord
		biasRes  objects.BiasAssessment
		confRes  objects.ConfidenceAssessment
	)

	g, gctx := errgroup.WithContext(workCtx)

	g.Go(func() error {
		var err error

		quotaRes, err = s.quota.Check(gctx, req.TenantID, req.FeatureName)
		if err != nil {
			return fmt.Errorf("quota gate: %w", err)
		}

		return nil
	})

	g.Go(func() error {
		var err error

		record, err = s.features.Extract(gctx, RawRegistration{
			TenantID:   req.TenantID,
			Source:     req.Source,
			ReceivedAt: started.Unix(),
			Payload:    req.Payload,
		})
		if err != nil {
			return err
		}

		signals, sctx := errgroup.WithContext(gctx)

		signals.Go(func() error {
			biasRes = s.bias.Evaluate(sctx, record)
			return nil
		})

		signals.Go(func() error {
			confRes = s.confidence.Estimate(sctx, record)
			return nil
		})

		return signals.Wait()
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}

	decision := &objects.RoutingDecision{
		DecisionID:      decisionID,
		TenantID:        req.TenantID,
		Confidence:      confRes.Confidence,
		BiasScore:       biasRes.Score,
		Tier:            quotaRes.Tier,
		DegradedSignals: degradedSignals(biasRes, confRes),
		CreatedAt:       xtime.Now(),
	}

	result := &AdmitResult{Decision: decision}

	switch {
	case !quotaRes.Allowed:
		decision.Outcome = objects.OutcomeRejected
		decision.Reason = rejectionReason(quotaRes.Deny.Kind)
		result.Deny = quotaRes.Deny

	case biasRes.Status == objects.BiasDetected:
		decision.Outcome = objects.OutcomeEscalated
		decision.Reason = objects.ReasonBias
		decision.ReviewETA = reviewETAFor(objects.RiskHigh)

	case confRes.Confidence >= s.cfg.Thresholds.AutonomousFor(req.TenantID):
		decision.Outcome = objects.OutcomeAutonomousApproved
		s.commitUsage(workCtx, result, quotaRes, req.FeatureName)

	default:
		decision.Outcome = objects.OutcomeEscalated
		decision.Reason = objects.ReasonLowConfidence
		decision.ReviewETA = reviewETAFor(confRes.RiskLevel)
		decision.FollowUps = confRes.FollowUps
	}

	s.audit.Record(workCtx, decision)

	elapsed := xtime.Now().Sub(started)
	if s.cfg.Deadline > 0 && elapsed > s.cfg.Deadline {
		s.reportSlow(workCtx, decision, elapsed)
	}

	metrics.RecordDecision(ctx, string(decision.Outcome), decision.Reason, elapsed)

	log.Info(ctx, "admission decision",
		log.String("feature", req.FeatureName),
		log.String("outcome", string(decision.Outcome)),
		log.String("reason", decision.Reason),
		log.Float64("confidence", decision.Confidence),
		log.Float64("bias_score", decision.BiasScore),
		log.Duration("elapsed", elapsed),
	)

	return result, nil
}

// commitUsage consumes the approved feature's resources. A concurrency
// conflict at the authoritative increment converts the decision to Rejected;
// a store fault is an operational alert and never overturns the approval.
func (s *AdmissionService) commitUsage(ctx context.Context, result *AdmitResult, quotaRes QuotaCheckResult, feature string) {
	resources := s.cfg.ConsumedResources(feature)
	if len(resources) == 0 {
		return
	}

	decision := result.Decision

	err := s.usage.Commit(ctx, decision, quotaRes.Tier, quotaRes.Period, resources)
	if err == nil {
		return
	}

	if deny, ok := AsGateError(err); ok {
		decision.Outcome = objects.OutcomeRejected
		decision.Reason = rejectionReason(deny.Kind)
		result.Deny = deny

		return
	}

	log.Error(ctx, "usage commit failed after approval",
		log.String("decision_id", decision.DecisionID),
		log.Cause(err),
	)

	s.sink.Publish(ctx, Event{
		Type:       EventUsageCommitLoss,
		TenantID:   decision.TenantID,
		OccurredAt: xtime.Now(),
		Payload: map[string]any{
			"decisionID": decision.DecisionID,
			"error":      err.Error(),
		},
	})
}

func (s *AdmissionService) reportSlow(ctx context.Context, decision *objects.RoutingDecision, elapsed time.Duration) {
	log.Warn(ctx, "admission deadline exceeded",
		log.Duration("elapsed", elapsed),
		log.Duration("deadline", s.cfg.Deadline),
	)

	metrics.RecordDegraded(ctx, "deadline")

	s.sink.Publish(ctx, Event{
		Type:       EventDegradedPerformance,
		TenantID:   decision.TenantID,
		OccurredAt: xtime.Now(),
		Payload: map[string]any{
			"decisionID": decision.DecisionID,
			"elapsed":    elapsed.String(),
			"deadline":   s.cfg.Deadline.String(),
		},
	})
}

func degradedSignals(bias objects.BiasAssessment, conf objects.ConfidenceAssessment) []string {
	var signals []string

	if bias.Degraded {
		signals = append(signals, "bias")
	}

	if conf.Degraded {
		signals = append(signals, "confidence")
	}

	return signals
}

func rejectionReason(kind GateErrorKind) string {
	switch kind {
	case KindNoActiveSubscription:
		return "no-active-subscription"
	case KindFeatureNotIncluded:
		return "feature-not-included"
	case KindUsageLimitExceeded:
		return "usage-limit-exceeded"
	default:
		return "rejected"
	}
}

func reviewETAFor(level objects.RiskLevel) time.Duration {
	switch level {
	case objects.RiskHigh:
		return 24 * time.Hour
	case objects.RiskMedium:
		return 8 * time.Hour
	default:
		return 4 * time.Hour
	}
}
