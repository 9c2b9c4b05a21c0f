package tracing

import (
	"context"

	"github.com/clinicsync/gatekeeper/internal/contexts"
	"github.com/clinicsync/gatekeeper/internal/log"
)

func SetupLogger(logger *log.Logger) {
	logger.AddHook(log.HookFunc(TraceFieldsHooks))
}

// TraceFieldsHooks adds trace ID and request ID to log entries if they exist in the context.
func TraceFieldsHooks(ctx context.Context, msg string, fields ...log.Field) []log.Field {
	if ctx == nil {
		return fields
	}

	if traceID, ok := GetTraceID(ctx); ok {
		fields = append(fields, log.String("trace_id", traceID))
	}

	if requestID, ok := GetRequestID(ctx); ok {
		fields = append(fields, log.String("request_id", requestID))
	}

	if operationName, ok := GetOperationName(ctx); ok {
		fields = append(fields, log.String("operation_name", operationName))
	}

	if tenantID, ok := contexts.GetTenantID(ctx); ok {
		fields = append(fields, log.String("tenant_id", tenantID))
	}

	if decisionID, ok := contexts.GetDecisionID(ctx); ok {
		fields = append(fields, log.String("decision_id", decisionID))
	}

	return fields
}
