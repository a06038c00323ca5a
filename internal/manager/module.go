package manager

import (
	"context"
	"fmt"

	"github.com/go-core-fx/logger"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

func Module() fx.Option {
	return fx.Module(
		"manager",
		logger.WithNamedLogger("manager"),
		fx.Provide(New),
		fx.Invoke(func(lc fx.Lifecycle, m *Manager, cfg Config, logger *zap.Logger) {
			lc.Append(fx.Hook{
				OnStart: func(_ context.Context) error {
					logger.Info("starting manager module", zap.Int("repositories", len(cfg.Repositories)))
					for _, path := range cfg.Repositories {
						if _, err := m.OpenRepoAgent(path); err != nil {
							return fmt.Errorf("failed to open %s: %w", path, err)
						}
					}
					return nil
				},
				OnStop: func(ctx context.Context) error {
					logger.Info("stopping manager module")
					return m.Close(ctx)
				},
			})
		}),
	)
}
