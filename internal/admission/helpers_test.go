package admission

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/clinicsync/gatekeeper/internal/objects"
	"github.com/clinicsync/gatekeeper/internal/pkg/xtime"
)

// captureSink records every published event for assertions.
type captureSink struct {
	mu     sync.Mutex
	events []Event
}

func newCaptureSink() *captureSink {
	return &captureSink{}
}

func (s *captureSink) Publish(_ context.Context, event Event) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.events = append(s.events, event)
}

func (s *captureSink) eventsOfType(eventType string) []Event {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []Event

	for _, e := range s.events {
		if e.Type == eventType {
			out = append(out, e)
		}
	}

	return out
}

func newEnv(t *testing.T) (*testEnv, *captureSink) {
	t.Helper()

	sink := newCaptureSink()

	env, err := newTestEnv(DefaultConfig(), sink)
	require.NoError(t, err)

	return env, sink
}

func activeSubscription(tenantID string, tier objects.Tier) objects.TenantSubscription {
	now := xtime.Now()

	return objects.TenantSubscription{
		TenantID:           tenantID,
		Tier:               tier,
		Status:             objects.SubscriptionActive,
		CurrentPeriodStart: now.AddDate(0, 0, -10),
		CurrentPeriodEnd:   now.AddDate(0, 0, 20),
	}
}

// completePayload fills every completeness field with unremarkable values:
// adult age, local location, a single condition. Completeness 1.0, no risk
// tags, no bias factors triggered.
func completePayload() json.RawMessage {
	return json.RawMessage(`{
		"firstName": "Ana",
		"lastName": "Silva",
		"email": "ana.silva@example.com",
		"phone": "+1-555-0100",
		"dateOfBirth": "1990-03-14T00:00:00Z",
		"age": 36,
		"location": {"class": "local", "zip": "94110"},
		"medicalHistory": {
			"conditions": ["asthma"],
			"allergies": [],
			"medications": []
		},
		"consent": {"treatment": true}
	}`)
}

// sparsePayload carries only the required identity fields plus phone and age:
// completeness well under half, unknown location.
func sparsePayload() json.RawMessage {
	return json.RawMessage(`{
		"firstName": "Bo",
		"lastName": "Chen",
		"email": "bo.chen@example.com",
		"phone": "+1-555-0101",
		"age": 41
	}`)
}

// biasedPayload triggers every bias factor: minor age, remote location,
// three conditions.
func biasedPayload() json.RawMessage {
	return json.RawMessage(`{
		"firstName": "Kim",
		"lastName": "Ray",
		"email": "kim.ray@example.com",
		"phone": "+1-555-0102",
		"dateOfBirth": "2010-06-01T00:00:00Z",
		"age": 16,
		"location": {"class": "remote", "zip": "00000"},
		"medicalHistory": {
			"conditions": ["diabetes", "asthma", "epilepsy"],
			"allergies": ["penicillin"],
			"medications": ["insulin"]
		},
		"consent": {"treatment": true}
	}`)
}

// fillUsage advances the tenant's counter for the current period.
func fillUsage(t *testing.T, env *testEnv, tenantID string, resource objects.Resource, n int64) {
	t.Helper()

	key := CounterKey{
		TenantID:    tenantID,
		Resource:    resource,
		PeriodStart: currentPeriodStart(env, tenantID),
	}

	_, applied, err := env.counters.Increment(context.Background(), key, n, "seed:"+tenantID+":"+string(resource), time.Hour)
	require.NoError(t, err)
	require.True(t, applied)
}

// currentPeriodStart mirrors the quota gate's period resolution for a tenant
// seeded via activeSubscription.
func currentPeriodStart(env *testEnv, tenantID string) time.Time {
	sub, err := env.source.GetSubscription(context.Background(), tenantID)
	if err != nil {
		return xtime.CurrentMonthlyPeriod(env.cfg.Location()).Start
	}

	return sub.CurrentPeriodStart.UTC()
}
