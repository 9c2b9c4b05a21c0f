package objects

import "time"

// Outcome is the terminal state of one admission evaluation. There is no
// intermediate persisted state; the whole evaluation is synchronous.
type Outcome string

const (
	OutcomeRejected           Outcome = "rejected"
	OutcomeAutonomousApproved Outcome = "autonomous_approved"
	OutcomeEscalated          Outcome = "escalated"
)

// Escalation reasons.
const (
	ReasonBias          = "bias"
	ReasonLowConfidence = "low-confidence"
)

// RoutingDecision is the single immutable record both the audit recorder and
// the caller consume.
type RoutingDecision struct {
	DecisionID string  `json:"decisionID"`
	TenantID   string  `json:"tenantID"`
	Outcome    Outcome `json:"outcome"`

	Confidence float64 `json:"confidence"`
	BiasScore  float64 `json:"biasScore"`
	Tier       Tier    `json:"tier,omitempty"`
	Reason     string  `json:"reason"`

	// DegradedSignals names the signal providers that failed open while this
	// decision was computed, e.g. "bias", "confidence".
	DegradedSignals []string `json:"degradedSignals,omitempty"`

	// ReviewETA is the estimated human-review turnaround, set on escalation.
	ReviewETA time.Duration `json:"reviewETA,omitempty"`

	// FollowUps are the suggested follow-up actions from the estimator.
	FollowUps []string `json:"followUps,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
}

// Autonomous reports whether the decision was made without human review.
func (d *RoutingDecision) Autonomous() bool {
	return d.Outcome == OutcomeAutonomousApproved
}
