package admission

import (
	"context"
	"sync"

	"github.com/clinicsync/gatekeeper/internal/objects"
)

// HistoryProvider supplies a tenant's historical-pattern summary. Read-only;
// the record store owns the underlying data.
type HistoryProvider interface {
	GetSummary(ctx context.Context, tenantID string) (objects.TenantHistorySummary, error)
}

// StaticHistoryProvider is an in-memory HistoryProvider for tests and the
// one-shot CLI. Tenants without an entry get a zero summary, which the
// confidence estimator treats as "no history yet".
type StaticHistoryProvider struct {
	mu        sync.RWMutex
	summaries map[string]objects.TenantHistorySummary
}

func NewStaticHistoryProvider() *StaticHistoryProvider {
	return &StaticHistoryProvider{summaries: map[string]objects.TenantHistorySummary{}}
}

func (p *StaticHistoryProvider) GetSummary(ctx context.Context, tenantID string) (objects.TenantHistorySummary, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	return p.summaries[tenantID], nil
}

// Put replaces the stored summary for a tenant.
func (p *StaticHistoryProvider) Put(tenantID string, summary objects.TenantHistorySummary) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.summaries[tenantID] = summary
}
