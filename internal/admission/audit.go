package admission

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/hashicorp/go-multierror"
	"github.com/redis/go-redis/v9"

	"github.com/clinicsync/gatekeeper/internal/dumper"
	"github.com/clinicsync/gatekeeper/internal/log"
	"github.com/clinicsync/gatekeeper/internal/metrics"
	"github.com/clinicsync/gatekeeper/internal/objects"
	"github.com/clinicsync/gatekeeper/internal/pkg/xtime"
)

// genesisHash anchors the first record of every tenant's chain.
const genesisHash = "0000000000000000000000000000000000000000000000000000000000000000"

// AuditStore persists per-tenant append-only audit chains.
type AuditStore interface {
	// Append stores the record at the tail of the tenant's chain.
	Append(ctx context.Context, record *objects.AuditRecord) error
	// Last returns the tail record, or nil if the chain is empty.
	Last(ctx context.Context, tenantID string) (*objects.AuditRecord, error)
	// List returns the tenant's records in chain order.
	List(ctx context.Context, tenantID string) ([]*objects.AuditRecord, error)
}

// AuditService records every routing decision in a tamper-evident per-tenant
// chain: each record carries the sha256 of its predecessor, so removing or
// rewriting any record breaks verification of everything after it.
//
// Recording never fails the request it describes. A persistence fault is
// logged and surfaced as an alert event instead.
type AuditService struct {
	store AuditStore
	sink  Sink

	mu    sync.Mutex
	tails map[string]*tenantTail
}

type tenantTail struct {
	mu sync.Mutex

	loaded   bool
	sequence int64
	hash     string
}

func NewAuditService(store AuditStore, sink Sink) *AuditService {
	return &AuditService{
		store: store,
		sink:  sink,
		tails: make(map[string]*tenantTail),
	}
}

func (s *AuditService) tail(tenantID string) *tenantTail {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tails[tenantID]
	if !ok {
		t = &tenantTail{}
		s.tails[tenantID] = t
	}

	return t
}

// Record appends a record for the decision to the tenant's chain. The
// per-tenant lock serialises appends so sequences stay gapless and each
// PrevHash matches the previous record's Hash even under concurrent
// decisions for the same tenant.
func (s *AuditService) Record(ctx context.Context, decision *objects.RoutingDecision) {
	t := s.tail(decision.TenantID)

	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.loaded {
		last, err := s.store.Last(ctx, decision.TenantID)
		if err != nil {
			s.reportLoss(ctx, decision, fmt.Errorf("load chain tail: %w", err))
			return
		}

		if last != nil {
			t.sequence = last.Sequence
			t.hash = last.Hash
		} else {
			t.hash = genesisHash
		}

		t.loaded = true
	}

	record := &objects.AuditRecord{
		Sequence:        t.sequence + 1,
		TenantID:        decision.TenantID,
		DecisionID:      decision.DecisionID,
		Outcome:         decision.Outcome,
		Confidence:      decision.Confidence,
		BiasScore:       decision.BiasScore,
		Reason:          decision.Reason,
		DegradedSignals: decision.DegradedSignals,
		PrevHash:        t.hash,
		CreatedAt:       xtime.Now(),
	}

	hash, err := recordHash(record)
	if err != nil {
		s.reportLoss(ctx, decision, fmt.Errorf("hash record: %w", err))
		return
	}

	record.Hash = hash

	if err := s.store.Append(ctx, record); err != nil {
		s.reportLoss(ctx, decision, fmt.Errorf("append record: %w", err))
		return
	}

	t.sequence = record.Sequence
	t.hash = record.Hash

	if log.DebugEnabled(ctx) {
		log.Debug(ctx, "audit record appended",
			log.String("tenant_id", record.TenantID),
			log.Int64("sequence", record.Sequence),
			log.String("hash", record.Hash),
		)
	}
}

func (s *AuditService) reportLoss(ctx context.Context, decision *objects.RoutingDecision, err error) {
	log.Error(ctx, "audit record lost",
		log.String("tenant_id", decision.TenantID),
		log.String("decision_id", decision.DecisionID),
		log.Cause(err),
	)

	metrics.RecordAuditFailure(ctx)
	dumper.DumpObject(ctx, decision, "lost_audit_decision")

	s.sink.Publish(ctx, Event{
		Type:       EventAuditLoss,
		TenantID:   decision.TenantID,
		OccurredAt: xtime.Now(),
		Payload: map[string]any{
			"decisionID": decision.DecisionID,
			"error":      err.Error(),
		},
	})
}

// VerifyChain walks a tenant's chain from the start and reports every break:
// sequence gaps, PrevHash mismatches and records whose stored hash does not
// match their content.
func (s *AuditService) VerifyChain(ctx context.Context, tenantID string) error {
	records, err := s.store.List(ctx, tenantID)
	if err != nil {
		return fmt.Errorf("list audit records: %w", err)
	}

	var result *multierror.Error

	prevHash := genesisHash
	prevSeq := int64(0)

	for _, record := range records {
		if record.Sequence != prevSeq+1 {
			result = multierror.Append(result, fmt.Errorf("sequence gap: got %d after %d", record.Sequence, prevSeq))
		}

		if record.PrevHash != prevHash {
			result = multierror.Append(result, fmt.Errorf("record %d: prev hash mismatch", record.Sequence))
		}

		computed, err := recordHash(record)
		if err != nil {
			result = multierror.Append(result, fmt.Errorf("record %d: %w", record.Sequence, err))
		} else if computed != record.Hash {
			result = multierror.Append(result, fmt.Errorf("record %d: content hash mismatch", record.Sequence))
		}

		prevHash = record.Hash
		prevSeq = record.Sequence
	}

	return result.ErrorOrNil()
}

// recordHash computes the sha256 of the record's canonical JSON form with the
// Hash field cleared. encoding/json emits struct fields in declaration order,
// which keeps the form stable across processes.
func recordHash(record *objects.AuditRecord) (string, error) {
	clone := *record
	clone.Hash = ""

	data, err := json.Marshal(&clone)
	if err != nil {
		return "", err
	}

	sum := sha256.Sum256(data)

	return hex.EncodeToString(sum[:]), nil
}

// MemoryAuditStore keeps chains in process memory.
type MemoryAuditStore struct {
	mu     sync.RWMutex
	chains map[string][]*objects.AuditRecord
}

func NewMemoryAuditStore() *MemoryAuditStore {
	return &MemoryAuditStore{chains: make(map[string][]*objects.AuditRecord)}
}

func (s *MemoryAuditStore) Append(_ context.Context, record *objects.AuditRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	clone := *record
	s.chains[record.TenantID] = append(s.chains[record.TenantID], &clone)

	return nil
}

func (s *MemoryAuditStore) Last(_ context.Context, tenantID string) (*objects.AuditRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	chain := s.chains[tenantID]
	if len(chain) == 0 {
		return nil, nil
	}

	clone := *chain[len(chain)-1]

	return &clone, nil
}

func (s *MemoryAuditStore) List(_ context.Context, tenantID string) ([]*objects.AuditRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	chain := s.chains[tenantID]
	out := make([]*objects.AuditRecord, len(chain))

	for i, record := range chain {
		clone := *record
		out[i] = &clone
	}

	return out, nil
}

// RedisAuditStore persists each tenant's chain as a redis list, one JSON
// record per element, appended with RPUSH so list order is chain order.
type RedisAuditStore struct {
	client redis.UniversalClient
	prefix string
}

func NewRedisAuditStore(client redis.UniversalClient) *RedisAuditStore {
	return &RedisAuditStore{client: client, prefix: "gk:audit:"}
}

func (s *RedisAuditStore) key(tenantID string) string {
	return s.prefix + tenantID
}

func (s *RedisAuditStore) Append(ctx context.Context, record *objects.AuditRecord) error {
	data, err := json.Marshal(record)
	if err != nil {
		return err
	}

	return s.client.RPush(ctx, s.key(record.TenantID), data).Err()
}

func (s *RedisAuditStore) Last(ctx context.Context, tenantID string) (*objects.AuditRecord, error) {
	data, err := s.client.LIndex(ctx, s.key(tenantID), -1).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}

		return nil, err
	}

	var record objects.AuditRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, err
	}

	return &record, nil
}

func (s *RedisAuditStore) List(ctx context.Context, tenantID string) ([]*objects.AuditRecord, error) {
	items, err := s.client.LRange(ctx, s.key(tenantID), 0, -1).Result()
	if err != nil {
		return nil, err
	}

	out := make([]*objects.AuditRecord, 0, len(items))

	for _, item := range items {
		var record objects.AuditRecord
		if err := json.Unmarshal([]byte(item), &record); err != nil {
			return nil, err
		}

		out = append(out, &record)
	}

	return out, nil
}
