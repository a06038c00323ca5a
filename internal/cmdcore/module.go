package cmdcore

import (
	"github.com/go-core-fx/logger"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

func Module() fx.Option {
	return fx.Module(
		"cmdcore",
		logger.WithNamedLogger("cmdcore"),
		fx.Provide(func(cfg Config, handler Handler, logger *zap.Logger) (Launcher, error) {
			logger.Info("selecting command launcher",
				zap.String("mode", string(cfg.Mode)),
				zap.String("executable", cfg.Executable))
			return NewLauncher(cfg, handler, logger)
		}),
	)
}
