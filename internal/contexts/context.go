package contexts

import "context"

// WithTenantID stores the tenant ID in the context.
func WithTenantID(ctx context.Context, tenantID string) context.Context {
	container := getContainer(ctx)
	container.TenantID = &tenantID

	return withContainer(ctx, container)
}

// GetTenantID retrieves the tenant ID from the context.
func GetTenantID(ctx context.Context) (string, bool) {
	container := getContainer(ctx)
	if container.TenantID != nil {
		return *container.TenantID, true
	}

	return "", false
}

// WithDecisionID stores the routing decision ID in the context.
func WithDecisionID(ctx context.Context, decisionID string) context.Context {
	container := getContainer(ctx)
	container.DecisionID = &decisionID

	return withContainer(ctx, container)
}

// GetDecisionID retrieves the routing decision ID from the context.
func GetDecisionID(ctx context.Context) (string, bool) {
	container := getContainer(ctx)
	if container.DecisionID != nil {
		return *container.DecisionID, true
	}

	return "", false
}

// WithSource stores the registration source in the context.
func WithSource(ctx context.Context, source string) context.Context {
	container := getContainer(ctx)
	container.Source = &source

	return withContainer(ctx, container)
}

// GetSourceOrDefault retrieves the registration source from the context, or
// returns the default value if it doesn't exist.
func GetSourceOrDefault(ctx context.Context, defaultSource string) string {
	container := getContainer(ctx)
	if container.Source != nil {
		return *container.Source
	}

	return defaultSource
}
