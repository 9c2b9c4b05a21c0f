package admission

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/clinicsync/gatekeeper/internal/objects"
)

func featureFixture(t *testing.T) (*FeatureService, *StaticHistoryProvider) {
	t.Helper()

	history := NewStaticHistoryProvider()
	svc, err := NewFeatureService(DefaultConfig(), history)
	require.NoError(t, err)

	return svc, history
}

func TestFeatureService_ExtractCompleteRecord(t *testing.T) {
	svc, _ := featureFixture(t)

	rec, err := svc.Extract(context.Background(), RawRegistration{
		TenantID: "tenant-1",
		Source:   "web_form",
		Payload:  completePayload(),
	})
	require.NoError(t, err)

	require.Equal(t, "tenant-1", rec.TenantID)
	require.Equal(t, "web_form", rec.Source)
	require.Equal(t, 36, rec.Age)
	require.Equal(t, objects.LocationLocal, rec.Location)
	require.True(t, rec.HasMedicalHistory)
	require.True(t, rec.HasAllergyRecord)
	require.True(t, rec.HasMedicationList)
	require.InDelta(t, 1.0, rec.Completeness, 1e-9)
	require.Empty(t, rec.RiskTags)
	require.Len(t, rec.Fingerprint, 16)
}

func TestFeatureService_ExtractSparseRecord(t *testing.T) {
	svc, _ := featureFixture(t)

	rec, err := svc.Extract(context.Background(), RawRegistration{
		TenantID: "tenant-1",
		Payload:  sparsePayload(),
	})
	require.NoError(t, err)

	require.Equal(t, objects.LocationUnknown, rec.Location)
	require.Less(t, rec.Completeness, 0.5)
	require.Contains(t, rec.RiskTags, objects.RiskTagOutOfArea)
	require.Contains(t, rec.RiskTags, objects.RiskTagIncompleteHistory)
}

func TestFeatureService_RiskTags(t *testing.T) {
	svc, _ := featureFixture(t)

	rec, err := svc.Extract(context.Background(), RawRegistration{
		TenantID: "tenant-1",
		Payload:  biasedPayload(),
	})
	require.NoError(t, err)

	require.Contains(t, rec.RiskTags, objects.RiskTagMinor)
	require.Contains(t, rec.RiskTags, objects.RiskTagComplexMedical)
	require.Contains(t, rec.RiskTags, objects.RiskTagOutOfArea)
	require.NotContains(t, rec.RiskTags, objects.RiskTagAdvancedAge)
}

func TestFeatureService_AgeFromDateOfBirth(t *testing.T) {
	svc, _ := featureFixture(t)

	rec, err := svc.Extract(context.Background(), RawRegistration{
		TenantID: "tenant-1",
		Payload: []byte(`{
			"firstName": "Ana",
			"lastName": "Silva",
			"email": "a@example.com",
			"dateOfBirth": "1950-01-01T00:00:00Z"
		}`),
	})
	require.NoError(t, err)
	require.GreaterOrEqual(t, rec.Age, 75)
	require.Contains(t, rec.RiskTags, objects.RiskTagAdvancedAge)
}

func TestExtractAge_BirthdayBoundary(t *testing.T) {
	now := time.Date(2026, time.June, 15, 12, 0, 0, 0, time.UTC)

	// Birthday later this year: still 35.
	require.Equal(t, 35, extractAge([]byte(`{"dateOfBirth":"1990-09-20T00:00:00Z"}`), now))
	require.Equal(t, 35, extractAge([]byte(`{"dateOfBirth":"1990-06-16T00:00:00Z"}`), now))

	// Birthday passed or today: 36.
	require.Equal(t, 36, extractAge([]byte(`{"dateOfBirth":"1990-03-01T00:00:00Z"}`), now))
	require.Equal(t, 36, extractAge([]byte(`{"dateOfBirth":"1990-06-15T00:00:00Z"}`), now))

	// Explicit age wins over dateOfBirth.
	require.Equal(t, 40, extractAge([]byte(`{"age":40,"dateOfBirth":"1990-09-20T00:00:00Z"}`), now))
}

func TestFeatureService_MalformedInput(t *testing.T) {
	svc, _ := featureFixture(t)
	ctx := context.Background()

	tests := []struct {
		name  string
		raw   RawRegistration
		field string
	}{
		{"empty tenant", RawRegistration{Payload: completePayload()}, "tenantID"},
		{"invalid json", RawRegistration{TenantID: "t", Payload: []byte(`{`)}, "payload"},
		{"missing first name", RawRegistration{TenantID: "t", Payload: []byte(`{"lastName":"S","email":"a@b.c"}`)}, "firstName"},
		{"missing email", RawRegistration{TenantID: "t", Payload: []byte(`{"firstName":"A","lastName":"S"}`)}, "email"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Extract(ctx, tt.raw)
			require.Error(t, err)

			ge, ok := AsGateError(err)
			require.True(t, ok)
			require.Equal(t, KindMalformedInput, ge.Kind)
			require.Equal(t, tt.field, ge.Field)
		})
	}
}

func TestFeatureService_HistoryAttachedAndCached(t *testing.T) {
	svc, history := featureFixture(t)
	ctx := context.Background()

	history.Put("tenant-1", objects.TenantHistorySummary{Accuracy: 0.92, AutonomousRate: 0.7, SampleCount: 200})

	rec, err := svc.Extract(ctx, RawRegistration{TenantID: "tenant-1", Payload: completePayload()})
	require.NoError(t, err)
	require.EqualValues(t, 200, rec.History.SampleCount)

	// Subsequent extractions reuse the cached summary even if the provider
	// changes underneath.
	history.Put("tenant-1", objects.TenantHistorySummary{SampleCount: 999})

	rec, err = svc.Extract(ctx, RawRegistration{TenantID: "tenant-1", Payload: completePayload()})
	require.NoError(t, err)
	require.EqualValues(t, 200, rec.History.SampleCount)
}

type failingHistoryProvider struct{}

func (failingHistoryProvider) GetSummary(ctx context.Context, tenantID string) (objects.TenantHistorySummary, error) {
	return objects.TenantHistorySummary{}, errors.New("store offline")
}

func TestFeatureService_HistoryFailureIsNotFatal(t *testing.T) {
	svc, err := NewFeatureService(DefaultConfig(), failingHistoryProvider{})
	require.NoError(t, err)

	rec, err := svc.Extract(context.Background(), RawRegistration{TenantID: "tenant-1", Payload: completePayload()})
	require.NoError(t, err)
	require.Zero(t, rec.History.SampleCount)
}

func TestFeatureService_FingerprintStable(t *testing.T) {
	svc, _ := featureFixture(t)
	ctx := context.Background()

	a, err := svc.Extract(ctx, RawRegistration{TenantID: "t", Payload: completePayload()})
	require.NoError(t, err)

	b, err := svc.Extract(ctx, RawRegistration{TenantID: "t", Payload: completePayload()})
	require.NoError(t, err)
	require.Equal(t, a.Fingerprint, b.Fingerprint)

	c, err := svc.Extract(ctx, RawRegistration{TenantID: "t", Payload: sparsePayload()})
	require.NoError(t, err)
	require.NotEqual(t, a.Fingerprint, c.Fingerprint)
}
