package objects

// BiasStatus classifies the fairness-risk signal.
type BiasStatus string

const (
	BiasSafe      BiasStatus = "SAFE"
	BiasPotential BiasStatus = "POTENTIAL_BIAS"
	BiasDetected  BiasStatus = "BIAS_DETECTED"
)

// BiasAssessment is the bias evaluator's output. It is derived synchronously
// and never persisted independently of the decision record.
type BiasAssessment struct {
	// Score is clamped to [0, 1].
	Score   float64    `json:"score"`
	Status  BiasStatus `json:"status"`
	Factors []string   `json:"factors,omitempty"`

	// Degraded marks a fail-open result: the evaluator faulted and reported
	// SAFE with score 0. Distinguishable in the audit trail from a genuine
	// SAFE result.
	Degraded bool `json:"degraded,omitempty"`
}

// RiskLevel classifies the request for routing and follow-up purposes.
type RiskLevel string

const (
	RiskLow    RiskLevel = "low"
	RiskMedium RiskLevel = "medium"
	RiskHigh   RiskLevel = "high"
)

// ConfidenceAssessment is the confidence estimator's output.
type ConfidenceAssessment struct {
	// Confidence is clamped to [0.5, 0.99]: never impossible, never certain.
	Confidence float64   `json:"confidence"`
	Approve    bool      `json:"approve"`
	RiskLevel  RiskLevel `json:"riskLevel"`
	FollowUps  []string  `json:"followUps,omitempty"`

	// Degraded marks a fail-open result, see BiasAssessment.Degraded.
	Degraded bool `json:"degraded,omitempty"`
}
