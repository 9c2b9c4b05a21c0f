package metrics

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var (
	decisions      metric.Int64Counter
	decisionTime   metric.Float64Histogram
	degradedEvents metric.Int64Counter
	auditFailures  metric.Int64Counter
)

func initInstruments(name string) error {
	meter := otel.Meter(name)

	var err error

	decisions, err = meter.Int64Counter("admission.decisions",
		metric.WithDescription("Routing decisions by terminal outcome"))
	if err != nil {
		return err
	}

	decisionTime, err = meter.Float64Histogram("admission.decision.duration",
		metric.WithDescription("End-to-end admission latency"),
		metric.WithUnit("ms"))
	if err != nil {
		return err
	}

	degradedEvents, err = meter.Int64Counter("admission.degraded",
		metric.WithDescription("Degraded-performance and fail-open signal events"))
	if err != nil {
		return err
	}

	auditFailures, err = meter.Int64Counter("admission.audit.failures",
		metric.WithDescription("Audit records lost to persistence faults"))

	return err
}

// RecordDecision counts a terminal decision and observes its latency. Safe to
// call before SetupMetrics; uninitialised instruments are skipped.
func RecordDecision(ctx context.Context, outcome, reason string, elapsed time.Duration) {
	attrs := metric.WithAttributes(
		attribute.String("outcome", outcome),
		attribute.String("reason", reason),
	)

	if decisions != nil {
		decisions.Add(ctx, 1, attrs)
	}

	if decisionTime != nil {
		decisionTime.Record(ctx, float64(elapsed)/float64(time.Millisecond), attrs)
	}
}

// RecordDegraded counts a degraded event by kind (deadline, bias, confidence).
func RecordDegraded(ctx context.Context, kind string) {
	if degradedEvents != nil {
		degradedEvents.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", kind)))
	}
}

// RecordAuditFailure counts a lost audit record.
func RecordAuditFailure(ctx context.Context) {
	if auditFailures != nil {
		auditFailures.Add(ctx, 1)
	}
}
