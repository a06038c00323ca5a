package eventloop

import (
	"context"
	"errors"

	"github.com/go-core-fx/logger"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

func Module() fx.Option {
	return fx.Module(
		"eventloop",
		logger.WithNamedLogger("eventloop"),
		fx.Provide(New),
		fx.Invoke(func(lc fx.Lifecycle, loop *Loop, logger *zap.Logger) {
			lc.Append(fx.Hook{
				OnStart: func(_ context.Context) error {
					logger.Info("starting event loop")
					go func() {
						if err := loop.Run(context.Background()); err != nil && !errors.Is(err, context.Canceled) {
							logger.Error("event loop exited", zap.Error(err))
						}
					}()
					return nil
				},
				OnStop: func(ctx context.Context) error {
					logger.Info("stopping event loop")
					loop.Stop()
					select {
					case <-loop.Done():
						return nil
					case <-ctx.Done():
						return ctx.Err()
					}
				},
			})
		}),
	)
}
