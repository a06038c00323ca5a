package metrics

import (
	"context"

	"github.com/go-core-fx/logger"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/repoagent/repoagent/internal/eventloop"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

func Module() fx.Option {
	return fx.Module(
		"metrics",
		logger.WithNamedLogger("metrics"),
		fx.Provide(
			func() prometheus.Registerer { return prometheus.DefaultRegisterer },
			func() prometheus.Gatherer { return prometheus.DefaultGatherer },
		),
		fx.Provide(New),
		fx.Provide(NewObserver, fx.Private),
		fx.Invoke(func(lc fx.Lifecycle, o *Observer, loop *eventloop.Loop, logger *zap.Logger) {
			lc.Append(fx.Hook{
				OnStart: func(_ context.Context) error {
					logger.Info("starting metrics module")
					o.Start()
					return nil
				},
				OnStop: func(ctx context.Context) error {
					logger.Info("stopping metrics module")
					err := loop.Sync(ctx)
					o.Stop()
					return err
				},
			})
		}),
	)
}
