package admission

import (
	"context"
	"time"

	"github.com/clinicsync/gatekeeper/internal/log"
)

// Event types published to the notification sink.
const (
	EventUsageWarning        = "usage_warning"
	EventUsageProjection     = "usage_projection"
	EventDegradedPerformance = "degraded_performance"
	EventDegradedSignal      = "degraded_signal"
	EventAuditLoss           = "audit_loss"
	EventUsageCommitLoss     = "usage_commit_loss"
)

// Event is a fire-and-forget operational notification. Delivery is best
// effort; nothing in the admission path blocks on it.
type Event struct {
	Type       string         `json:"type"`
	TenantID   string         `json:"tenantID"`
	OccurredAt time.Time      `json:"occurredAt"`
	Payload    map[string]any `json:"payload,omitempty"`
}

// Sink is the notification collaborator interface.
type Sink interface {
	Publish(ctx context.Context, event Event)
}

// LogSink writes events to the structured log. The default sink when no
// external notification transport is configured.
type LogSink struct{}

func NewLogSink() *LogSink {
	return &LogSink{}
}

func (s *LogSink) Publish(ctx context.Context, event Event) {
	log.Info(ctx, "notification event",
		log.String("event_type", event.Type),
		log.String("tenant_id", event.TenantID),
		log.Any("payload", event.Payload),
	)
}
