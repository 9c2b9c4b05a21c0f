package admission

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/clinicsync/gatekeeper/internal/log"
	"github.com/clinicsync/gatekeeper/internal/objects"
	"github.com/clinicsync/gatekeeper/internal/pkg/xcache"
)

// ErrSubscriptionNotFound is returned by a SubscriptionSource when the tenant
// has no subscription at all.
var ErrSubscriptionNotFound = errors.New("subscription not found")

// SubscriptionSource is the billing collaborator's read-by-tenant interface.
type SubscriptionSource interface {
	GetSubscription(ctx context.Context, tenantID string) (*objects.TenantSubscription, error)
}

// SubscriptionService is the read-through cached subscription lookup. Cache
// entries expire at the configured staleness bound, so a gate decision never
// sees a record older than the bound without re-validating against the source
// of truth. The cache is never push-invalidated by this core.
type SubscriptionService struct {
	source SubscriptionSource
	cache  xcache.Cache[objects.TenantSubscription]
}

func NewSubscriptionService(cfg Config, source SubscriptionSource) *SubscriptionService {
	staleness := cfg.SubscriptionStaleness
	if staleness <= 0 {
		staleness = 5 * time.Minute
	}

	return &SubscriptionService{
		source: source,
		cache:  xcache.NewMemoryWithOptions[objects.TenantSubscription](staleness, 2*staleness),
	}
}

// Lookup returns the tenant's subscription, from cache when fresh.
func (s *SubscriptionService) Lookup(ctx context.Context, tenantID string) (*objects.TenantSubscription, error) {
	if cached, err := s.cache.Get(ctx, subscriptionCacheKey(tenantID)); err == nil {
		return &cached, nil
	}

	sub, err := s.source.GetSubscription(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	if err := s.cache.Set(ctx, subscriptionCacheKey(tenantID), *sub); err != nil {
		log.Warn(ctx, "failed to cache subscription", log.String("tenant_id", tenantID), log.Cause(err))
	}

	return sub, nil
}

func subscriptionCacheKey(tenantID string) string {
	return fmt.Sprintf("sub:%s", tenantID)
}

// StaticSubscriptionSource is an in-memory SubscriptionSource used by tests
// and the one-shot CLI. Safe for concurrent use.
type StaticSubscriptionSource struct {
	mu   sync.RWMutex
	subs map[string]objects.TenantSubscription
}

func NewStaticSubscriptionSource(subs ...objects.TenantSubscription) *StaticSubscriptionSource {
	m := make(map[string]objects.TenantSubscription, len(subs))
	for _, sub := range subs {
		m[sub.TenantID] = sub
	}

	return &StaticSubscriptionSource{subs: m}
}

func (s *StaticSubscriptionSource) GetSubscription(ctx context.Context, tenantID string) (*objects.TenantSubscription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sub, ok := s.subs[tenantID]
	if !ok {
		return nil, ErrSubscriptionNotFound
	}

	return &sub, nil
}

// Put replaces the stored subscription for a tenant.
func (s *StaticSubscriptionSource) Put(sub objects.TenantSubscription) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.subs[sub.TenantID] = sub
}
