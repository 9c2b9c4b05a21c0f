package admission

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/clinicsync/gatekeeper/internal/objects"
	"github.com/clinicsync/gatekeeper/internal/pkg/xtime"
)

// CounterKey identifies one usage counter: (tenant, resource, period).
type CounterKey struct {
	TenantID    string
	Resource    objects.Resource
	PeriodStart time.Time
}

func (k CounterKey) String() string {
	return fmt.Sprintf("usage:%s:%s:%d", k.TenantID, k.Resource, k.PeriodStart.Unix())
}

// CounterStore is the atomic usage-counter collaborator. The pre-check in the
// quota gate is advisory; the authoritative enforcement is Increment's
// post-increment return value. Implementations must make Increment a single
// atomic operation, not a read-modify-write.
type CounterStore interface {
	// Increment adds delta to the counter with the given expiry, at most once
	// per idempotency key. It returns the post-increment value and whether
	// this call applied the increment (false means the key was already used
	// and the counter is returned unchanged).
	Increment(ctx context.Context, key CounterKey, delta int64, idempotencyKey string, ttl time.Duration) (int64, bool, error)

	// Decrement compensates a prior increment (rollback path). The
	// idempotency key is left in place so a replay of the same decision
	// remains a no-op.
	Decrement(ctx context.Context, key CounterKey, delta int64) (int64, error)

	// Get reads the current counter value; 0 if absent.
	Get(ctx context.Context, key CounterKey) (int64, error)

	// MarkOnce sets a one-shot flag with the given expiry. It returns true
	// only for the call that created the flag.
	MarkOnce(ctx context.Context, key string, ttl time.Duration) (bool, error)
}

// incrementScript performs the idempotent increment-with-expiry atomically.
// KEYS[1] = counter key, KEYS[2] = idempotency key.
// ARGV[1] = delta, ARGV[2] = idempotency marker, ARGV[3] = ttl millis.
var incrementScript = redis.NewScript(`
local applied = redis.call("SET", KEYS[2], ARGV[2], "NX", "PX", ARGV[3])
if not applied then
  return {tonumber(redis.call("GET", KEYS[1])) or 0, 0}
end
local n = redis.call("INCRBY", KEYS[1], ARGV[1])
if redis.call("PTTL", KEYS[1]) < 0 then
  redis.call("PEXPIRE", KEYS[1], ARGV[3])
end
return {n, 1}
`)

// RedisCounterStore implements CounterStore on go-redis. Counters expire with
// the billing period, so rollover is a natural reset.
type RedisCounterStore struct {
	client *redis.Client
	prefix string
}

func NewRedisCounterStore(client *redis.Client) *RedisCounterStore {
	return &RedisCounterStore{client: client, prefix: "gk:"}
}

func (s *RedisCounterStore) counterKey(key CounterKey) string {
	return s.prefix + key.String()
}

func (s *RedisCounterStore) idemKey(key CounterKey, idempotencyKey string) string {
	return fmt.Sprintf("%sidem:%s:%s", s.prefix, key.TenantID, idempotencyKey)
}

func (s *RedisCounterStore) Increment(ctx context.Context, key CounterKey, delta int64, idempotencyKey string, ttl time.Duration) (int64, bool, error) {
	if ttl <= 0 {
		ttl = time.Minute
	}

	res, err := incrementScript.Run(ctx, s.client,
		[]string{s.counterKey(key), s.idemKey(key, idempotencyKey)},
		delta, idempotencyKey, ttl.Milliseconds(),
	).Result()
	if err != nil {
		return 0, false, fmt.Errorf("counter increment: %w", err)
	}

	vals, ok := res.([]interface{})
	if !ok || len(vals) != 2 {
		return 0, false, fmt.Errorf("counter increment: unexpected script result %T", res)
	}

	value, _ := vals[0].(int64)
	applied, _ := vals[1].(int64)

	return value, applied == 1, nil
}

func (s *RedisCounterStore) Decrement(ctx context.Context, key CounterKey, delta int64) (int64, error) {
	n, err := s.client.DecrBy(ctx, s.counterKey(key), delta).Result()
	if err != nil {
		return 0, fmt.Errorf("counter decrement: %w", err)
	}

	return n, nil
}

func (s *RedisCounterStore) Get(ctx context.Context, key CounterKey) (int64, error) {
	n, err := s.client.Get(ctx, s.counterKey(key)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}

	if err != nil {
		return 0, fmt.Errorf("counter get: %w", err)
	}

	return n, nil
}

func (s *RedisCounterStore) MarkOnce(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	if ttl <= 0 {
		ttl = time.Minute
	}

	ok, err := s.client.SetNX(ctx, s.prefix+"mark:"+key, "1", ttl).Result()
	if err != nil {
		return false, fmt.Errorf("counter mark: %w", err)
	}

	return ok, nil
}

// MemoryCounterStore is a process-local CounterStore for tests and single
// node deployments without redis.
type MemoryCounterStore struct {
	mu       sync.Mutex
	counters map[string]*memoryCounter
	marks    map[string]time.Time
	idem     map[string]time.Time
}

type memoryCounter struct {
	value     int64
	expiresAt time.Time
}

func NewMemoryCounterStore() *MemoryCounterStore {
	return &MemoryCounterStore{
		counters: map[string]*memoryCounter{},
		marks:    map[string]time.Time{},
		idem:     map[string]time.Time{},
	}
}

func (s *MemoryCounterStore) Increment(ctx context.Context, key CounterKey, delta int64, idempotencyKey string, ttl time.Duration) (int64, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := xtime.Now()
	idemKey := key.TenantID + ":" + idempotencyKey

	if exp, seen := s.idem[idemKey]; seen && exp.After(now) {
		return s.currentLocked(key, now), false, nil
	}

	s.idem[idemKey] = now.Add(ttl)

	c := s.counters[key.String()]
	if c == nil || !c.expiresAt.After(now) {
		c = &memoryCounter{expiresAt: now.Add(ttl)}
		s.counters[key.String()] = c
	}

	c.value += delta

	return c.value, true, nil
}

func (s *MemoryCounterStore) Decrement(ctx context.Context, key CounterKey, delta int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := xtime.Now()

	c := s.counters[key.String()]
	if c == nil || !c.expiresAt.After(now) {
		return 0, nil
	}

	c.value -= delta

	return c.value, nil
}

func (s *MemoryCounterStore) Get(ctx context.Context, key CounterKey) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.currentLocked(key, xtime.Now()), nil
}

func (s *MemoryCounterStore) currentLocked(key CounterKey, now time.Time) int64 {
	c := s.counters[key.String()]
	if c == nil || !c.expiresAt.After(now) {
		return 0
	}

	return c.value
}

func (s *MemoryCounterStore) MarkOnce(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := xtime.Now()

	if exp, seen := s.marks[key]; seen && exp.After(now) {
		return false, nil
	}

	s.marks[key] = now.Add(ttl)

	return true, nil
}
