package objects

import "time"

// AuditRecord is one link in a tenant's append-only audit chain. Hash covers
// the previous record's hash plus this record's serialized decision fields, so
// any mutation of history invalidates every subsequent link.
type AuditRecord struct {
	Sequence   int64  `json:"sequence"`
	TenantID   string `json:"tenantID"`
	DecisionID string `json:"decisionID"`

	Outcome    Outcome `json:"outcome"`
	Confidence float64 `json:"confidence"`
	BiasScore  float64 `json:"biasScore"`
	Reason     string  `json:"reason"`

	// DegradedSignals records which signal providers failed open for this
	// decision, so a degraded SAFE result stays distinguishable from a
	// genuine one after the fact.
	DegradedSignals []string `json:"degradedSignals,omitempty"`

	PrevHash  string    `json:"prevHash"`
	Hash      string    `json:"hash"`
	CreatedAt time.Time `json:"createdAt"`
}
