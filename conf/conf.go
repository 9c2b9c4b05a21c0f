// Package conf loads the gatekeeper configuration from file and environment.
package conf

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"

	"github.com/clinicsync/gatekeeper/internal/admission"
	"github.com/clinicsync/gatekeeper/internal/log"
	"github.com/clinicsync/gatekeeper/internal/metrics"
	"github.com/clinicsync/gatekeeper/internal/objects"
	"github.com/clinicsync/gatekeeper/internal/pkg/xredis"
	"github.com/clinicsync/gatekeeper/internal/tracing"
)

// Config is the root configuration.
type Config struct {
	Name string `conf:"name" yaml:"name" json:"name"`

	Log       log.Config       `conf:"log" yaml:"log" json:"log"`
	Trace     tracing.Config   `conf:"trace" yaml:"trace" json:"trace"`
	Metrics   metrics.Config   `conf:"metrics" yaml:"metrics" json:"metrics"`
	Redis     xredis.Config    `conf:"redis" yaml:"redis" json:"redis"`
	Store     StoreConfig      `conf:"store" yaml:"store" json:"store"`
	Admission admission.Config `conf:"admission" yaml:"admission" json:"admission"`
	Tenants   TenantsConfig    `conf:"tenants" yaml:"tenants" json:"tenants"`
}

// TenantsConfig statically seeds the billing and history collaborators for
// deployments that run without those integrations (dev, smoke checks).
type TenantsConfig struct {
	Subscriptions []objects.TenantSubscription            `conf:"subscriptions" yaml:"subscriptions" json:"subscriptions"`
	Histories     map[string]objects.TenantHistorySummary `conf:"histories" yaml:"histories" json:"histories"`
}

// StoreConfig selects the backing store for usage counters and audit chains.
type StoreConfig struct {
	// Mode is "memory" or "redis". Memory is single-node only; limits are
	// not enforced across processes.
	Mode string `conf:"mode" yaml:"mode" json:"mode"`
}

const (
	StoreModeMemory = "memory"
	StoreModeRedis  = "redis"
)

// Load reads gatekeeper.yml plus GATEKEEPER_* environment overrides and
// merges them over the defaults.
func Load() (Config, error) {
	v := viper.New()
	v.SetConfigName("gatekeeper")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./conf")
	v.AddConfigPath("/etc/gatekeeper")

	v.SetEnvPrefix("GATEKEEPER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults registered here are env-overridable even without a file.
	v.SetDefault("name", "gatekeeper")
	v.SetDefault("store.mode", StoreModeMemory)
	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.url", "")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("log.output", "stdout")
	v.SetDefault("metrics.enabled", false)
	v.SetDefault("metrics.exporter", "stdout")
	v.SetDefault("metrics.endpoint", "")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	config := Default()

	err := v.Unmarshal(&config, func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "conf"
		dc.WeaklyTypedInput = true
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToTimeHookFunc(time.RFC3339),
			mapstructure.StringToSliceHookFunc(","),
			stringToDecimalHookFunc(),
		)
	})
	if err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	return config, nil
}

// Default returns the configuration used when no file overrides it.
func Default() Config {
	return Config{
		Name: "gatekeeper",
		Log: log.Config{
			Name:   "gatekeeper",
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Store: StoreConfig{
			Mode: StoreModeMemory,
		},
		Admission: admission.DefaultConfig(),
	}
}

// stringToDecimalHookFunc decodes tier prices written as "199" or 199.
func stringToDecimalHookFunc() mapstructure.DecodeHookFunc {
	return func(from, to reflect.Type, data any) (any, error) {
		if to != reflect.TypeOf(decimal.Decimal{}) {
			return data, nil
		}

		switch value := data.(type) {
		case string:
			return decimal.NewFromString(value)
		case int:
			return decimal.NewFromInt(int64(value)), nil
		case int64:
			return decimal.NewFromInt(value), nil
		case float64:
			return decimal.NewFromFloat(value), nil
		default:
			return data, nil
		}
	}
}
