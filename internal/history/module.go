package history

import (
	"context"

	"github.com/go-core-fx/logger"
	"github.com/repoagent/repoagent/internal/eventloop"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Module provides the journal store and its query service.
func Module() fx.Option {
	return fx.Module(
		"history",
		logger.WithNamedLogger("history"),
		fx.Provide(NewRepository, fx.Private),
		fx.Provide(NewService),
	)
}

// RecorderModule journals the sessions of a running manager.
func RecorderModule() fx.Option {
	return fx.Module(
		"history-recorder",
		logger.WithNamedLogger("history"),
		fx.Provide(NewRecorder, fx.Private),
		fx.Invoke(func(lc fx.Lifecycle, rec *Recorder, loop *eventloop.Loop, logger *zap.Logger) {
			lc.Append(fx.Hook{
				OnStart: func(_ context.Context) error {
					logger.Info("starting history recorder")
					rec.Start()
					return nil
				},
				OnStop: func(ctx context.Context) error {
					logger.Info("stopping history recorder")
					// Let finished sessions queued by the manager shutdown land.
					if err := loop.Sync(ctx); err != nil {
						logger.Warn("event loop did not drain", zap.Error(err))
					}
					return rec.Stop(ctx)
				},
			})
		}),
	)
}
