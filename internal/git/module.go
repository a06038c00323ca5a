package git

import (
	"context"

	"github.com/go-core-fx/logger"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Module provides the go-git backed Service used by in-process commands.
func Module() fx.Option {
	return fx.Module(
		"git",
		logger.WithNamedLogger("git"),
		fx.Provide(NewService),
		fx.Invoke(func(lc fx.Lifecycle, logger *zap.Logger) {
			lc.Append(fx.Hook{
				OnStart: func(_ context.Context) error {
					logger.Info("starting git module")
					return nil
				},
			})
		}),
	)
}
