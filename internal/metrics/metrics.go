package metrics

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	sdk "go.opentelemetry.io/otel/sdk/metric"
)

// Config selects the metrics exporter. Disabled by default.
type Config struct {
	Enabled bool `conf:"enabled" yaml:"enabled" json:"enabled"`

	// Exporter is one of "stdout", "otlp-grpc", "otlp-http".
	Exporter string `conf:"exporter" yaml:"exporter" json:"exporter"`

	// Endpoint for the otlp exporters, host:port.
	Endpoint string `conf:"endpoint" yaml:"endpoint" json:"endpoint"`

	// Interval between metric exports. Zero means the SDK default.
	Interval time.Duration `conf:"interval" yaml:"interval" json:"interval"`

	// Insecure disables TLS for the otlp exporters.
	Insecure bool `conf:"insecure" yaml:"insecure" json:"insecure"`
}

// NewProvider builds the meter provider for the configured exporter. Returns
// nil when metrics are disabled; callers treat a nil provider as a no-op.
func NewProvider(cfg Config) (*sdk.MeterProvider, error) {
	if !cfg.Enabled {
		return nil, nil
	}

	exporter, err := newExporter(cfg)
	if err != nil {
		return nil, err
	}

	opts := []sdk.PeriodicReaderOption{}
	if cfg.Interval > 0 {
		opts = append(opts, sdk.WithInterval(cfg.Interval))
	}

	provider := sdk.NewMeterProvider(
		sdk.WithReader(sdk.NewPeriodicReader(exporter, opts...)),
	)

	return provider, nil
}

func newExporter(cfg Config) (sdk.Exporter, error) {
	switch cfg.Exporter {
	case "", "stdout":
		return stdoutmetric.New()
	case "otlp-grpc":
		opts := []otlpmetricgrpc.Option{}
		if cfg.Endpoint != "" {
			opts = append(opts, otlpmetricgrpc.WithEndpoint(cfg.Endpoint))
		}

		if cfg.Insecure {
			opts = append(opts, otlpmetricgrpc.WithInsecure())
		}

		return otlpmetricgrpc.New(context.Background(), opts...)
	case "otlp-http":
		opts := []otlpmetrichttp.Option{}
		if cfg.Endpoint != "" {
			opts = append(opts, otlpmetrichttp.WithEndpoint(cfg.Endpoint))
		}

		if cfg.Insecure {
			opts = append(opts, otlpmetrichttp.WithInsecure())
		}

		return otlpmetrichttp.New(context.Background(), opts...)
	default:
		return nil, fmt.Errorf("unknown metrics exporter %q", cfg.Exporter)
	}
}

// SetupMetrics installs the provider globally and initialises the pipeline
// instruments under the given service name.
func SetupMetrics(provider *sdk.MeterProvider, name string) error {
	otel.SetMeterProvider(provider)
	return initInstruments(name)
}
