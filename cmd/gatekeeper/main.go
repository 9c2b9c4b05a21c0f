package main

import (
	"bytes"
	"context"
	"fmt"
	"os"

	"github.com/andreazorzetto/yh/highlight"
	"github.com/hokaccha/go-prettyjson"
	"github.com/spf13/cast"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"gopkg.in/yaml.v3"

	sdk "go.opentelemetry.io/otel/sdk/metric"

	"github.com/clinicsync/gatekeeper/conf"
	"github.com/clinicsync/gatekeeper/internal/admission"
	"github.com/clinicsync/gatekeeper/internal/build"
	"github.com/clinicsync/gatekeeper/internal/dependencies"
	"github.com/clinicsync/gatekeeper/internal/log"
	"github.com/clinicsync/gatekeeper/internal/metrics"
)

func main() {
	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "config":
			handleConfigCommand()
			return
		case "admit":
			runAdmit()
			return
		case "version", "--version", "-v":
			showVersion()
			return
		case "build-info":
			showBuildInfo()
			return
		case "help", "--help", "-h":
			showHelp()
			return
		}
	}

	showHelp()
}

func showBuildInfo() {
	fmt.Println(build.GetBuildInfo())
}

type logger struct{}

func (l *logger) LogEvent(event fxevent.Event) {
	log.Debug(context.Background(), "fx event", log.Any("event", event))
}

// runAdmit evaluates one registration payload against the configured
// pipeline and prints the decision. Intended for ops smoke checks.
func runAdmit() {
	var (
		tenantID    string
		featureName = "client_registration"
		source      = "cli"
		payloadPath string
	)

	for i := 2; i < len(os.Args); i++ {
		switch os.Args[i] {
		case "--tenant", "-t":
			if i+1 < len(os.Args) {
				i++
				tenantID = os.Args[i]
			}
		case "--feature", "-F":
			if i+1 < len(os.Args) {
				i++
				featureName = os.Args[i]
			}
		case "--source", "-s":
			if i+1 < len(os.Args) {
				i++
				source = os.Args[i]
			}
		case "--file", "-f":
			if i+1 < len(os.Args) {
				i++
				payloadPath = os.Args[i]
			}
		}
	}

	if tenantID == "" || payloadPath == "" {
		fmt.Println("Usage: gatekeeper admit -t <tenant-id> -f <payload.json> [-F <feature>] [-s <source>]")
		os.Exit(1)
	}

	payload, err := os.ReadFile(payloadPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to read payload: %v\n", err)
		os.Exit(1)
	}

	var svc *admission.AdmissionService

	app := fx.New(
		fx.WithLogger(func() fxevent.Logger {
			return &logger{}
		}),
		fx.Provide(conf.Load),
		fx.Provide(func(config conf.Config) (*sdk.MeterProvider, error) {
			return metrics.NewProvider(config.Metrics)
		}),
		dependencies.Module,
		admission.Module,
		fx.Invoke(func(lc fx.Lifecycle, config conf.Config, provider *sdk.MeterProvider) {
			lc.Append(fx.Hook{
				OnStart: func(ctx context.Context) error {
					if provider != nil {
						return metrics.SetupMetrics(provider, config.Name)
					}

					return nil
				},
				OnStop: func(ctx context.Context) error {
					if provider != nil {
						return provider.Shutdown(ctx)
					}

					return nil
				},
			})
		}),
		fx.Populate(&svc),
	)

	ctx := context.Background()

	if err := app.Start(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to start: %v\n", err)
		os.Exit(1)
	}

	defer func() {
		_ = app.Stop(ctx)
	}()

	result, err := svc.Admit(ctx, admission.AdmitRequest{
		TenantID:    tenantID,
		FeatureName: featureName,
		Source:      source,
		Payload:     payload,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Admission failed: %v\n", err)
		os.Exit(1)
	}

	out, err := prettyjson.Marshal(result)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to render decision: %v\n", err)
		os.Exit(1)
	}

	fmt.Println(string(out))
}

func handleConfigCommand() {
	if len(os.Args) < 3 {
		fmt.Println("Usage: gatekeeper config <preview|validate|get>")
		os.Exit(1)
	}

	switch os.Args[2] {
	case "preview":
		configPreview()
	case "validate":
		configValidate()
	case "get":
		configGet()
	default:
		fmt.Println("Usage: gatekeeper config <preview|validate|get>")
		os.Exit(1)
	}
}

func configPreview() {
	format := "yml"

	for i := 3; i < len(os.Args); i++ {
		if os.Args[i] == "--format" || os.Args[i] == "-f" {
			if i+1 < len(os.Args) {
				format = os.Args[i+1]
			}
		}
	}

	config, err := conf.Load()
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	var output string

	switch format {
	case "json":
		b, err := prettyjson.Marshal(config)
		if err != nil {
			fmt.Printf("Failed to preview config: %v\n", err)
			os.Exit(1)
		}

		output = string(b)
	case "yml", "yaml":
		b, err := yaml.Marshal(config)
		if err != nil {
			fmt.Printf("Failed to preview config: %v\n", err)
			os.Exit(1)
		}

		output, err = highlight.Highlight(bytes.NewBuffer(b))
		if err != nil {
			fmt.Printf("Failed to preview config: %v\n", err)
			os.Exit(1)
		}
	default:
		fmt.Printf("Unsupported format: %s\n", format)
		os.Exit(1)
	}

	fmt.Println(output)
}

func configValidate() {
	config, err := conf.Load()
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	errors := validateConfig(config)

	if len(errors) == 0 {
		fmt.Println("Configuration is valid!")
		return
	}

	fmt.Println("Configuration validation failed:")

	for _, err := range errors {
		fmt.Printf("  - %s\n", err)
	}

	os.Exit(1)
}

func validateConfig(config conf.Config) []string {
	var errors []string

	if config.Log.Name == "" {
		errors = append(errors, "log.name cannot be empty")
	}

	if config.Store.Mode != conf.StoreModeMemory && config.Store.Mode != conf.StoreModeRedis {
		errors = append(errors, "store.mode must be memory or redis")
	}

	if config.Store.Mode == conf.StoreModeRedis && config.Redis.Addr == "" && config.Redis.URL == "" {
		errors = append(errors, "redis.addr or redis.url must be set when store.mode is redis")
	}

	if config.Admission.Deadline <= 0 {
		errors = append(errors, "admission.deadline must be positive")
	}

	if config.Admission.Thresholds.Autonomous < config.Admission.Thresholds.Supervised {
		errors = append(errors, "admission.thresholds.autonomous must not be below the supervised boundary")
	}

	if len(config.Admission.Tiers) == 0 {
		errors = append(errors, "admission.tiers cannot be empty")
	}

	if !build.ValidVersion(build.Version) {
		errors = append(errors, fmt.Sprintf("embedded version %q is not a semantic version", build.Version))
	}

	return errors
}

func configGet() {
	if len(os.Args) < 4 {
		fmt.Println("Usage: gatekeeper config get <key>")
		fmt.Println("")
		fmt.Println("Available keys:")
		fmt.Println("  name                             Service name")
		fmt.Println("  store.mode                       Counter/audit store backend")
		fmt.Println("  redis.addr                       Redis address")
		fmt.Println("  log.level                        Log level")
		fmt.Println("  admission.deadline               Admission deadline")
		fmt.Println("  admission.thresholds.autonomous  Autonomous confidence threshold")
		os.Exit(1)
	}

	key := os.Args[3]

	config, err := conf.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	var value interface{}

	switch key {
	case "name":
		value = config.Name
	case "store.mode":
		value = config.Store.Mode
	case "redis.addr":
		value = config.Redis.Addr
	case "log.level":
		value = config.Log.Level
	case "admission.deadline":
		value = config.Admission.Deadline
	case "admission.thresholds.autonomous":
		value = config.Admission.Thresholds.Autonomous
	default:
		fmt.Fprintf(os.Stderr, "Unknown config key: %s\n", key)
		os.Exit(1)
	}

	fmt.Println(cast.ToString(value))
}

func showHelp() {
	fmt.Println("ClinicSync Gatekeeper")
	fmt.Println("")
	fmt.Println("Usage:")
	fmt.Println("  gatekeeper admit -t <tenant> -f <payload.json>   Evaluate one registration")
	fmt.Println("  gatekeeper config preview                        Preview configuration")
	fmt.Println("  gatekeeper config validate                       Validate configuration")
	fmt.Println("  gatekeeper config get <key>                      Get a specific config value")
	fmt.Println("  gatekeeper version                               Show version")
	fmt.Println("  gatekeeper build-info                            Show build information")
	fmt.Println("  gatekeeper help                                  Show this help message")
	fmt.Println("")
	fmt.Println("Options:")
	fmt.Println("  -F, --feature NAME        Feature to admit (default client_registration)")
	fmt.Println("  -s, --source SOURCE       Registration source label")
	fmt.Println("  -f, --format FORMAT       Output format for config preview (yml, json)")
}

func showVersion() {
	fmt.Println(build.Version)
}
