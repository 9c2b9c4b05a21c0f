package dependencies

import (
	"context"

	"github.com/zhenzou/executors"
	"go.uber.org/fx"

	"github.com/clinicsync/gatekeeper/conf"
	"github.com/clinicsync/gatekeeper/internal/admission"
	"github.com/clinicsync/gatekeeper/internal/log"
	"github.com/clinicsync/gatekeeper/internal/tracing"
)

var Module = fx.Module("dependencies",
	fx.Provide(func(config conf.Config) (*log.Logger, error) {
		logger, err := log.New(config.Log)
		if err != nil {
			return nil, err
		}

		tracing.SetupLogger(logger)
		log.SetDefault(logger)

		return logger, nil
	}),
	fx.Provide(func(config conf.Config) admission.Config {
		return config.Admission
	}),
	fx.Provide(NewExecutors),
	fx.Provide(NewRedisClient),
	fx.Provide(NewCounterStore),
	fx.Provide(NewAuditStore),
	fx.Provide(NewSubscriptionSource),
	fx.Provide(NewHistoryProvider),
	fx.Provide(func() admission.Sink { return admission.NewLogSink() }),
	fx.Invoke(func(lc fx.Lifecycle, executor executors.ScheduledExecutor) {
		lc.Append(fx.Hook{
			OnStop: func(ctx context.Context) error {
				return executor.Shutdown(ctx)
			},
		})
	}),
)
