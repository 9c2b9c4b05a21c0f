package admission

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/clinicsync/gatekeeper/internal/objects"
)

func auditDecision(tenantID, decisionID string, outcome objects.Outcome) *objects.RoutingDecision {
	return &objects.RoutingDecision{
		DecisionID: decisionID,
		TenantID:   tenantID,
		Outcome:    outcome,
		Confidence: 0.9,
		BiasScore:  0.05,
	}
}

func TestAuditService_ChainLinks(t *testing.T) {
	store := NewMemoryAuditStore()
	svc := NewAuditService(store, newCaptureSink())
	ctx := context.Background()

	svc.Record(ctx, auditDecision("tenant-1", "d1", objects.OutcomeAutonomousApproved))
	svc.Record(ctx, auditDecision("tenant-1", "d2", objects.OutcomeEscalated))
	svc.Record(ctx, auditDecision("tenant-1", "d3", objects.OutcomeRejected))

	records, err := store.List(ctx, "tenant-1")
	require.NoError(t, err)
	require.Len(t, records, 3)

	require.EqualValues(t, 1, records[0].Sequence)
	require.Equal(t, genesisHash, records[0].PrevHash)

	for i := 1; i < len(records); i++ {
		require.EqualValues(t, i+1, records[i].Sequence)
		require.Equal(t, records[i-1].Hash, records[i].PrevHash)
	}

	require.NoError(t, svc.VerifyChain(ctx, "tenant-1"))
}

func TestAuditService_ChainsAreIndependentPerTenant(t *testing.T) {
	store := NewMemoryAuditStore()
	svc := NewAuditService(store, newCaptureSink())
	ctx := context.Background()

	svc.Record(ctx, auditDecision("tenant-a", "d1", objects.OutcomeAutonomousApproved))
	svc.Record(ctx, auditDecision("tenant-b", "d2", objects.OutcomeAutonomousApproved))
	svc.Record(ctx, auditDecision("tenant-a", "d3", objects.OutcomeEscalated))

	recordsA, err := store.List(ctx, "tenant-a")
	require.NoError(t, err)
	require.Len(t, recordsA, 2)
	require.EqualValues(t, 2, recordsA[1].Sequence)

	recordsB, err := store.List(ctx, "tenant-b")
	require.NoError(t, err)
	require.Len(t, recordsB, 1)
	require.EqualValues(t, 1, recordsB[0].Sequence)
}

func TestAuditService_DegradedSignalsRecorded(t *testing.T) {
	store := NewMemoryAuditStore()
	svc := NewAuditService(store, newCaptureSink())
	ctx := context.Background()

	genuine := auditDecision("tenant-7", "d1", objects.OutcomeAutonomousApproved)
	degraded := auditDecision("tenant-7", "d2", objects.OutcomeAutonomousApproved)
	degraded.DegradedSignals = []string{"bias"}

	svc.Record(ctx, genuine)
	svc.Record(ctx, degraded)

	records, err := store.List(ctx, "tenant-7")
	require.NoError(t, err)
	require.Len(t, records, 2)

	require.Empty(t, records[0].DegradedSignals)
	require.Equal(t, []string{"bias"}, records[1].DegradedSignals)

	// Stripping the marker after the fact breaks the chain: the fail-open
	// provenance is covered by the record hash, not just stored beside it.
	store.mu.Lock()
	store.chains["tenant-7"][1].DegradedSignals = nil
	store.mu.Unlock()

	err = svc.VerifyChain(ctx, "tenant-7")
	require.Error(t, err)
	require.Contains(t, err.Error(), "content hash mismatch")
}

func TestAuditService_VerifyChainDetectsTampering(t *testing.T) {
	store := NewMemoryAuditStore()
	svc := NewAuditService(store, newCaptureSink())
	ctx := context.Background()

	svc.Record(ctx, auditDecision("tenant-2", "d1", objects.OutcomeAutonomousApproved))
	svc.Record(ctx, auditDecision("tenant-2", "d2", objects.OutcomeAutonomousApproved))

	// Rewrite history in place.
	store.mu.Lock()
	store.chains["tenant-2"][0].Confidence = 0.1
	store.mu.Unlock()

	err := svc.VerifyChain(ctx, "tenant-2")
	require.Error(t, err)
	require.Contains(t, err.Error(), "content hash mismatch")
}

func TestAuditService_ConcurrentRecordsStayGapless(t *testing.T) {
	store := NewMemoryAuditStore()
	svc := NewAuditService(store, newCaptureSink())
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)

		go func(i int) {
			defer wg.Done()
			svc.Record(ctx, auditDecision("tenant-3", "d", objects.OutcomeAutonomousApproved))
		}(i)
	}
	wg.Wait()

	records, err := store.List(ctx, "tenant-3")
	require.NoError(t, err)
	require.Len(t, records, 20)
	require.NoError(t, svc.VerifyChain(ctx, "tenant-3"))
}

type failingAuditStore struct {
	*MemoryAuditStore
}

func (s *failingAuditStore) Append(ctx context.Context, record *objects.AuditRecord) error {
	return errors.New("disk full")
}

func TestAuditService_PersistenceFaultRaisesAlert(t *testing.T) {
	sink := newCaptureSink()
	svc := NewAuditService(&failingAuditStore{MemoryAuditStore: NewMemoryAuditStore()}, sink)

	// Record must not panic or propagate the fault.
	svc.Record(context.Background(), auditDecision("tenant-4", "d1", objects.OutcomeAutonomousApproved))

	alerts := sink.eventsOfType(EventAuditLoss)
	require.Len(t, alerts, 1)
	require.Equal(t, "tenant-4", alerts[0].TenantID)
	require.Equal(t, "d1", alerts[0].Payload["decisionID"])
}

func TestRedisAuditStore_RoundTrip(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	defer client.Close()

	store := NewRedisAuditStore(client)
	svc := NewAuditService(store, newCaptureSink())
	ctx := context.Background()

	last, err := store.Last(ctx, "tenant-5")
	require.NoError(t, err)
	require.Nil(t, last)

	svc.Record(ctx, auditDecision("tenant-5", "d1", objects.OutcomeAutonomousApproved))
	svc.Record(ctx, auditDecision("tenant-5", "d2", objects.OutcomeRejected))

	last, err = store.Last(ctx, "tenant-5")
	require.NoError(t, err)
	require.NotNil(t, last)
	require.EqualValues(t, 2, last.Sequence)
	require.Equal(t, "d2", last.DecisionID)

	require.NoError(t, svc.VerifyChain(ctx, "tenant-5"))
}

func TestAuditService_ResumesChainFromStore(t *testing.T) {
	store := NewMemoryAuditStore()
	ctx := context.Background()

	first := NewAuditService(store, newCaptureSink())
	first.Record(ctx, auditDecision("tenant-6", "d1", objects.OutcomeAutonomousApproved))

	// A fresh service instance picks up the persisted tail.
	second := NewAuditService(store, newCaptureSink())
	second.Record(ctx, auditDecision("tenant-6", "d2", objects.OutcomeEscalated))

	records, err := store.List(ctx, "tenant-6")
	require.NoError(t, err)
	require.Len(t, records, 2)
	require.Equal(t, records[0].Hash, records[1].PrevHash)
	require.NoError(t, second.VerifyChain(ctx, "tenant-6"))
}
