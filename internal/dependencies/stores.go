package dependencies

import (
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/clinicsync/gatekeeper/conf"
	"github.com/clinicsync/gatekeeper/internal/admission"
	"github.com/clinicsync/gatekeeper/internal/pkg/xredis"
)

// NewRedisClient builds the shared redis client, or nil in memory mode.
func NewRedisClient(config conf.Config) (*redis.Client, error) {
	if config.Store.Mode != conf.StoreModeRedis {
		return nil, nil
	}

	client, err := xredis.NewClient(config.Redis)
	if err != nil {
		return nil, fmt.Errorf("redis client: %w", err)
	}

	return client, nil
}

// NewCounterStore selects the usage-counter backend from the store mode.
func NewCounterStore(config conf.Config, client *redis.Client) (admission.CounterStore, error) {
	switch config.Store.Mode {
	case conf.StoreModeRedis:
		return admission.NewRedisCounterStore(client), nil
	case "", conf.StoreModeMemory:
		return admission.NewMemoryCounterStore(), nil
	default:
		return nil, fmt.Errorf("unknown store mode %q", config.Store.Mode)
	}
}

// NewAuditStore selects the audit-chain backend from the store mode.
func NewAuditStore(config conf.Config, client *redis.Client) (admission.AuditStore, error) {
	switch config.Store.Mode {
	case conf.StoreModeRedis:
		return admission.NewRedisAuditStore(client), nil
	case "", conf.StoreModeMemory:
		return admission.NewMemoryAuditStore(), nil
	default:
		return nil, fmt.Errorf("unknown store mode %q", config.Store.Mode)
	}
}
